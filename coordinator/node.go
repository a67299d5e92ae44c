package coordinator

import "fmt"

// Node identifies one spoke. It is fixed for the lifetime of a coordinator.
type Node struct {
	Address string `toml:"address" json:"address"`
	Name    string `toml:"name"    json:"name"`
}

func (n Node) String() string {
	return fmt.Sprintf("%s (%s)", n.Name, n.Address)
}
