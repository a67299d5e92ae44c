package fl

import (
	"context"
	"fmt"
	"slices"

	"github.com/absmach/hubnspoke/pkg/checkpoint"
)

// FedAvgAggregator averages every tensor element across updates.
type FedAvgAggregator struct{}

func NewFedAvgAggregator() Aggregator {
	return &FedAvgAggregator{}
}

func (f *FedAvgAggregator) Aggregate(_ context.Context, updates []checkpoint.Weights) (checkpoint.Weights, error) {
	if len(updates) == 0 {
		return nil, ErrNoUpdates
	}
	if err := Compatible(updates); err != nil {
		return nil, err
	}

	n := float64(len(updates))
	global := updates[0].Clone()
	for name, t := range global {
		for i := range t.Data {
			sum := 0.0
			for _, u := range updates {
				sum += u[name].Data[i]
			}
			t.Data[i] = sum / n
		}
	}

	return global, nil
}

// Compatible checks that all updates carry the same layers with the same shapes.
func Compatible(updates []checkpoint.Weights) error {
	if len(updates) == 0 {
		return nil
	}

	ref := updates[0]
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatibleWeights, err)
	}
	for i, u := range updates[1:] {
		if len(u) != len(ref) {
			return fmt.Errorf("%w: update %d has %d layers, want %d", ErrIncompatibleWeights, i+1, len(u), len(ref))
		}
		for name, t := range ref {
			ut, ok := u[name]
			if !ok {
				return fmt.Errorf("%w: update %d lacks layer %s", ErrIncompatibleWeights, i+1, name)
			}
			if !slices.Equal(ut.Shape, t.Shape) || len(ut.Data) != len(t.Data) {
				return fmt.Errorf("%w: layer %s of update %d has shape %v, want %v", ErrIncompatibleWeights, name, i+1, ut.Shape, t.Shape)
			}
		}
	}

	return nil
}
