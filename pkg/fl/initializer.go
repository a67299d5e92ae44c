package fl

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/absmach/hubnspoke/pkg/checkpoint"
)

type Layer struct {
	Name  string `toml:"name"`
	Shape []int  `toml:"shape"`
}

// LayerInitializer draws Glorot-uniform weights for every layer with two or
// more dimensions and zeros for one-dimensional (bias) layers. The same seed
// always yields the same model.
type LayerInitializer struct {
	Layers []Layer
	Seed   uint64
}

func NewLayerInitializer(layers []Layer, seed uint64) Initializer {
	return &LayerInitializer{Layers: layers, Seed: seed}
}

func (li *LayerInitializer) Initialize(_ context.Context) (checkpoint.Weights, error) {
	if len(li.Layers) == 0 {
		return nil, ErrNoLayers
	}

	rng := rand.New(rand.NewPCG(li.Seed, li.Seed^0x9e3779b97f4a7c15))
	w := make(checkpoint.Weights, len(li.Layers))
	for _, l := range li.Layers {
		if l.Name == "" || len(l.Shape) == 0 {
			return nil, fmt.Errorf("%w: layer %q", ErrInvalidShape, l.Name)
		}
		size := 1
		for _, d := range l.Shape {
			if d <= 0 {
				return nil, fmt.Errorf("%w: layer %s has shape %v", ErrInvalidShape, l.Name, l.Shape)
			}
			size *= d
		}

		data := make([]float64, size)
		if len(l.Shape) > 1 {
			fanOut := l.Shape[0]
			fanIn := size / fanOut
			limit := math.Sqrt(6 / float64(fanIn+fanOut))
			for i := range data {
				data[i] = (rng.Float64()*2 - 1) * limit
			}
		}

		w[l.Name] = checkpoint.Tensor{
			Shape: append([]int(nil), l.Shape...),
			Data:  data,
		}
	}

	return w, nil
}
