package fl_test

import (
	"context"
	"testing"

	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalar(v float64) checkpoint.Weights {
	return checkpoint.Weights{"w": {Shape: []int{1}, Data: []float64{v}}}
}

func TestFedAvgAggregator(t *testing.T) {
	agg := fl.NewFedAvgAggregator()

	cases := []struct {
		desc    string
		updates []checkpoint.Weights
		want    checkpoint.Weights
		err     error
	}{
		{
			desc:    "two scalars",
			updates: []checkpoint.Weights{scalar(1), scalar(3)},
			want:    scalar(2),
		},
		{
			desc:    "order does not matter",
			updates: []checkpoint.Weights{scalar(3), scalar(1)},
			want:    scalar(2),
		},
		{
			desc:    "single update is returned as is",
			updates: []checkpoint.Weights{scalar(5)},
			want:    scalar(5),
		},
		{
			desc: "multi layer",
			updates: []checkpoint.Weights{
				{"a": {Shape: []int{2}, Data: []float64{0, 2}}, "b": {Shape: []int{1}, Data: []float64{1}}},
				{"a": {Shape: []int{2}, Data: []float64{2, 4}}, "b": {Shape: []int{1}, Data: []float64{3}}},
				{"a": {Shape: []int{2}, Data: []float64{4, 6}}, "b": {Shape: []int{1}, Data: []float64{5}}},
			},
			want: checkpoint.Weights{"a": {Shape: []int{2}, Data: []float64{2, 4}}, "b": {Shape: []int{1}, Data: []float64{3}}},
		},
		{
			desc: "no updates",
			err:  fl.ErrNoUpdates,
		},
		{
			desc:    "different layers",
			updates: []checkpoint.Weights{scalar(1), {"v": {Shape: []int{1}, Data: []float64{1}}}},
			err:     fl.ErrIncompatibleWeights,
		},
		{
			desc:    "different shapes",
			updates: []checkpoint.Weights{scalar(1), {"w": {Shape: []int{2}, Data: []float64{1, 2}}}},
			err:     fl.ErrIncompatibleWeights,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := agg.Aggregate(context.Background(), tc.updates)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFedAvgDoesNotMutateInputs(t *testing.T) {
	first := scalar(1)
	_, err := fl.NewFedAvgAggregator().Aggregate(context.Background(), []checkpoint.Weights{first, scalar(3)})
	require.NoError(t, err)
	assert.Equal(t, scalar(1), first)
}
