package fl_test

import (
	"context"
	"math"
	"testing"

	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerInitializer(t *testing.T) {
	layers := []fl.Layer{
		{Name: "fc1.weight", Shape: []int{4, 3}},
		{Name: "fc1.bias", Shape: []int{4}},
	}

	w, err := fl.NewLayerInitializer(layers, 7).Initialize(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Validate())
	assert.Equal(t, []string{"fc1.bias", "fc1.weight"}, w.Layers())
	assert.Equal(t, []float64{0, 0, 0, 0}, w["fc1.bias"].Data)

	limit := math.Sqrt(6.0 / 7.0)
	for _, v := range w["fc1.weight"].Data {
		assert.LessOrEqual(t, math.Abs(v), limit)
	}

	again, err := fl.NewLayerInitializer(layers, 7).Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w, again, "same seed must give the same model")
}

func TestLayerInitializerErrors(t *testing.T) {
	cases := []struct {
		desc   string
		layers []fl.Layer
		err    error
	}{
		{desc: "no layers", err: fl.ErrNoLayers},
		{desc: "empty shape", layers: []fl.Layer{{Name: "a"}}, err: fl.ErrInvalidShape},
		{desc: "zero dimension", layers: []fl.Layer{{Name: "a", Shape: []int{2, 0}}}, err: fl.ErrInvalidShape},
		{desc: "missing name", layers: []fl.Layer{{Shape: []int{1}}}, err: fl.ErrInvalidShape},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := fl.NewLayerInitializer(tc.layers, 1).Initialize(context.Background())
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
