// Package checkpoint holds the global model checkpoint exchanged with spokes
// and persisted by the hub between stages.
package checkpoint

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var ErrShapeMismatch = errors.New("tensor data does not match its shape")

// Tensor is a dense row-major tensor.
type Tensor struct {
	Shape []int     `cbor:"shape" json:"shape"`
	Data  []float64 `cbor:"data"  json:"data"`
}

func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return len(t.Data)
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}

	return n
}

func (t Tensor) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in shape %v", ErrShapeMismatch, t.Shape)
		}
	}
	if t.Size() != len(t.Data) {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShapeMismatch, t.Shape, t.Size(), len(t.Data))
	}

	return nil
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: slices.Clone(t.Shape),
		Data:  slices.Clone(t.Data),
	}
}

// Weights maps layer names to tensors.
type Weights map[string]Tensor

// Clone returns a deep copy.
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for k, t := range w {
		out[k] = t.Clone()
	}

	return out
}

// Layers returns the layer names in sorted order.
func (w Weights) Layers() []string {
	return slices.Sorted(maps.Keys(w))
}

func (w Weights) Validate() error {
	for name, t := range w {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("layer %s: %w", name, err)
		}
	}

	return nil
}

// Checkpoint is the persisted global model. Only Weights is forwarded to
// spokes; the rest is metadata.
type Checkpoint struct {
	Weights Weights  `cbor:"weights"`
	Epoch   *int     `cbor:"epoch,omitempty"`
	Metric  *float64 `cbor:"metric,omitempty"`
}

type LayerSummary struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Size  int    `json:"size"`
}

// Summary describes a checkpoint without its tensor data.
type Summary struct {
	Layers     []LayerSummary `json:"layers"`
	Parameters int            `json:"parameters"`
	Epoch      *int           `json:"epoch,omitempty"`
	Metric     *float64       `json:"metric,omitempty"`
}

func (c Checkpoint) Summarize() Summary {
	s := Summary{
		Layers: make([]LayerSummary, 0, len(c.Weights)),
		Epoch:  c.Epoch,
		Metric: c.Metric,
	}
	for _, name := range c.Weights.Layers() {
		t := c.Weights[name]
		s.Layers = append(s.Layers, LayerSummary{Name: name, Shape: slices.Clone(t.Shape), Size: t.Size()})
		s.Parameters += len(t.Data)
	}

	return s
}
