package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/hubnspoke/coordinator"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/report"
	"github.com/pelletier/go-toml"
)

var (
	errNoNodes       = errors.New("federation has no nodes")
	errNoAddress     = errors.New("node has no address")
	errDuplicateNode = errors.New("duplicate node name")
)

// Federation is the TOML description of the nodes and model of a run.
type Federation struct {
	ModelID string             `toml:"model_id"`
	Rounds  int                `toml:"rounds"`
	Seed    uint64             `toml:"seed"`
	Nodes   []coordinator.Node `toml:"nodes"`
	Model   ModelConfig        `toml:"model"`
}

type ModelConfig struct {
	Layers []fl.Layer `toml:"layers"`
}

func LoadFederation(path string) (*Federation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading federation file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing federation file: %w", err)
	}

	var fed Federation
	if err := tree.Unmarshal(&fed); err != nil {
		return nil, fmt.Errorf("error unmarshaling federation: %w", err)
	}
	if err := fed.normalize(); err != nil {
		return nil, err
	}

	return &fed, nil
}

// normalize names anonymous nodes and rejects ambiguous ones.
func (f *Federation) normalize() error {
	if len(f.Nodes) == 0 {
		return errNoNodes
	}

	gen := namegenerator.NewGenerator()
	// Nodes are keyed by report file name, so "Node One" and "NodeOne" clash.
	seen := make(map[string]string, len(f.Nodes))
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Address == "" {
			return fmt.Errorf("%w: node %d", errNoAddress, i)
		}
		if n.Name == "" {
			name := gen.Generate()
			for seen[report.FileName(name)] != "" {
				name = gen.Generate()
			}
			n.Name = name
		}
		key := report.FileName(n.Name)
		if key == "" {
			return fmt.Errorf("%w: %q", report.ErrInvalidNodeName, n.Name)
		}
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q and %q share the report %s.json", errDuplicateNode, prev, n.Name, key)
		}
		seen[key] = n.Name
	}

	return nil
}
