package fl_test

import (
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/absmach/hubnspoke/pkg/errors"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory(t *testing.T) {
	h, err := fl.NewHistory(filepath.Join(t.TempDir(), "rounds"))
	require.NoError(t, err)

	summary := fl.RoundSummary{
		RoundID:       "run-1-r1",
		ModelID:       "monai-test",
		Round:         1,
		StartTime:     time.Now().UTC().Truncate(time.Second),
		EndTime:       time.Now().UTC().Truncate(time.Second),
		Contributions: 2,
		Aggregated:    true,
		Nodes: []fl.NodeOutcome{
			{Node: "a", Stage: "AGGREGATION_STARTED", Outcome: "ok"},
			{Node: "b", Stage: "AGGREGATION_STARTED", Outcome: "transport_error", Error: "unavailable"},
		},
	}
	require.NoError(t, h.SaveRound(summary))
	require.NoError(t, h.SaveRound(fl.RoundSummary{RoundID: "run-1-r2", Round: 2}))

	got, err := h.LoadRound("run-1-r1")
	require.NoError(t, err)
	assert.Equal(t, summary, got)

	ids, err := h.ListRounds()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1-r1", "run-1-r2"}, ids)

	assert.ErrorIs(t, h.SaveRound(fl.RoundSummary{RoundID: "../../"}), pkgerrors.ErrEmptyKey)

	_, err = h.LoadRound("missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}
