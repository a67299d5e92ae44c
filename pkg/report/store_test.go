package report_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/hubnspoke/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOrCreateAccumulates(t *testing.T) {
	store := report.NewStore(t.TempDir())

	for _, v := range []float64{0.1, 0.2, 0.3} {
		_, err := store.AppendOrCreate("node 1", report.Record{"val_mean_dice_scores": v})
		require.NoError(t, err)
	}

	rep, err := store.Get("node 1")
	require.NoError(t, err)
	assert.Equal(t, []any{0.1, 0.2, 0.3}, rep.Metrics["val_mean_dice_scores"])
	assert.Equal(t, 3, rep.Rounds())
	assert.Nil(t, rep.TestDiceScores)

	path, err := store.Path("node 1")
	require.NoError(t, err)
	assert.Equal(t, "node1.json", filepath.Base(path))
}

func TestAppendOrCreateKeyMismatch(t *testing.T) {
	cases := []struct {
		desc string
		rec  report.Record
	}{
		{
			desc: "missing key",
			rec:  report.Record{"val_mean_dice_scores": 0.4},
		},
		{
			desc: "extra key",
			rec:  report.Record{"val_mean_dice_scores": 0.4, "train_loss_values": 1.0, "lr": 0.01},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			store := report.NewStore(t.TempDir())
			_, err := store.AppendOrCreate("node", report.Record{"val_mean_dice_scores": 0.1, "train_loss_values": 2.0})
			require.NoError(t, err)

			path, err := store.Path("node")
			require.NoError(t, err)
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			_, err = store.AppendOrCreate("node", tc.rec)
			assert.ErrorIs(t, err, report.ErrMetricsMismatch)

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after, "a rejected record must leave the report untouched")
		})
	}
}

func TestAppendOrCreateRejectsReservedKey(t *testing.T) {
	store := report.NewStore(t.TempDir())

	_, err := store.AppendOrCreate("node", report.Record{report.TestDiceScoresKey: 0.9})
	assert.ErrorIs(t, err, report.ErrReservedKey)
}

func TestPatchTestResult(t *testing.T) {
	store := report.NewStore(t.TempDir())

	_, err := store.PatchTestResult("ghost", []float64{0.9})
	assert.ErrorIs(t, err, report.ErrReportNotFound)
	path, err := store.Path("ghost")
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	_, err = store.AppendOrCreate("node", report.Record{"train_loss_values": []float64{1.2, 0.8}})
	require.NoError(t, err)

	_, err = store.PatchTestResult("node", []float64{0.7})
	require.NoError(t, err)
	_, err = store.PatchTestResult("node", []float64{0.8, 0.85})
	require.NoError(t, err)

	_, err = store.AppendOrCreate("node", report.Record{"train_loss_values": []float64{0.6}})
	require.NoError(t, err, "the evaluation result must not take part in round accumulation")

	rep, err := store.Get("node")
	require.NoError(t, err)
	assert.Equal(t, []any{0.8, 0.85}, rep.TestDiceScores)
	assert.Equal(t, []any{[]any{1.2, 0.8}, []any{0.6}}, rep.Metrics["train_loss_values"])
}

func TestReportFileLayout(t *testing.T) {
	store := report.NewStore(t.TempDir())
	_, err := store.AppendOrCreate("node", report.Record{"val_mean_dice_scores": 0.5})
	require.NoError(t, err)
	_, err = store.PatchTestResult("node", 0.75)
	require.NoError(t, err)

	path, err := store.Path("node")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, map[string]any{
		"val_mean_dice_scores": []any{0.5},
		"test_dice_scores":     0.75,
	}, doc)
}

func TestCheck(t *testing.T) {
	store := report.NewStore(t.TempDir())
	_, err := store.AppendOrCreate("node", report.Record{"val_mean_dice_scores": 0.1})
	require.NoError(t, err)

	cases := []struct {
		desc string
		node string
		rec  report.Record
		err  error
	}{
		{desc: "matching keys", node: "node", rec: report.Record{"val_mean_dice_scores": 0.2}},
		{desc: "new node", node: "other", rec: report.Record{"train_loss_values": 0.2}},
		{desc: "unexpected key", node: "node", rec: report.Record{"val_mean_dice_scores": 0.2, "train_loss_values": 0.3}, err: report.ErrMetricsMismatch},
		{desc: "missing key", node: "node", rec: report.Record{}, err: report.ErrMetricsMismatch},
		{desc: "reserved key", node: "node", rec: report.Record{report.TestDiceScoresKey: 1}, err: report.ErrReservedKey},
		{desc: "invalid node", node: "../", rec: report.Record{}, err: report.ErrInvalidNodeName},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := store.Check(tc.node, tc.rec)
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}

	rep, err := store.Get("node")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rounds())
	_, err = store.Get("other")
	assert.ErrorIs(t, err, report.ErrReportNotFound)
}

func TestFileName(t *testing.T) {
	cases := map[string]string{
		"Node One": "NodeOne",
		"NodeOne":  "NodeOne",
		"Nœud":     "Nud",
		"site-2_a": "site-2_a",
		"..":       "",
	}
	for node, want := range cases {
		assert.Equal(t, want, report.FileName(node), node)
	}
}

func TestInvalidNodeName(t *testing.T) {
	store := report.NewStore(t.TempDir())

	_, err := store.AppendOrCreate("../", report.Record{"a": 1})
	assert.ErrorIs(t, err, report.ErrInvalidNodeName)
}
