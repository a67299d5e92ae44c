package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/absmach/hubnspoke/coordinator/api"
	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, withState bool) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	history, err := fl.NewHistory(filepath.Join(dir, "rounds"))
	require.NoError(t, err)
	checkpoints := checkpoint.NewStore(filepath.Join(dir, "model.cbor"))
	reports := report.NewStore(dir)

	if withState {
		require.NoError(t, history.SaveRound(fl.RoundSummary{RoundID: "r1", ModelID: "m", Round: 1, Contributions: 2, Aggregated: true}))
		require.NoError(t, checkpoints.Save(context.Background(), checkpoint.Checkpoint{
			Weights: checkpoint.Weights{"bias": {Shape: []int{2}, Data: []float64{1, 2}}},
		}))
		_, err := reports.AppendOrCreate("Node One", report.Record{"train_loss_values": 0.5})
		require.NoError(t, err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(api.MakeHandler(api.Sources{
		History:     history,
		Checkpoints: checkpoints,
		Reports:     reports,
	}, logger, "instance-1"))
	t.Cleanup(ts.Close)

	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return resp.StatusCode, body
}

func TestHandler(t *testing.T) {
	ts := newServer(t, true)

	cases := []struct {
		desc   string
		path   string
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			desc:   "health",
			path:   "/health",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "pass", body["status"])
				assert.Equal(t, "instance-1", body["instance_id"])
			},
		},
		{
			desc:   "list rounds",
			path:   "/rounds",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(1), body["total"])
				assert.Equal(t, []any{"r1"}, body["rounds"])
			},
		},
		{
			desc:   "get round",
			path:   "/rounds/r1",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(2), body["contributions"])
				assert.Equal(t, true, body["aggregated"])
			},
		},
		{
			desc:   "missing round",
			path:   "/rounds/r9",
			status: http.StatusNotFound,
		},
		{
			desc:   "checkpoint summary",
			path:   "/checkpoint",
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(2), body["parameters"])
			},
		},
		{
			desc:   "report",
			path:   "/reports/" + url.PathEscape("Node One"),
			status: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, []any{0.5}, body["train_loss_values"])
			},
		},
		{
			desc:   "missing report",
			path:   "/reports/ghost",
			status: http.StatusNotFound,
		},
		{
			desc:   "invalid node name",
			path:   "/reports/" + url.PathEscape("***"),
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			status, body := get(t, ts, tc.path)
			assert.Equal(t, tc.status, status)
			if tc.check != nil {
				tc.check(t, body)
			}
			if tc.status >= http.StatusBadRequest {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestHandlerEmptyState(t *testing.T) {
	ts := newServer(t, false)

	status, body := get(t, ts, "/rounds")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["rounds"])

	status, _ = get(t, ts, "/checkpoint")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newServer(t, false)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
