package coordinator_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/absmach/hubnspoke/coordinator"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/registry"
	"github.com/absmach/hubnspoke/pkg/transport"
	"github.com/absmach/hubnspoke/pkg/transport/spoketest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2/content/memory"
)

type failingUploader struct{}

func (failingUploader) Upload(context.Context, registry.Artifact) (ocispec.Descriptor, error) {
	return ocispec.Descriptor{}, errors.New("registry unreachable")
}

func federation(t *testing.T, f *fixture, names ...string) []coordinator.Service {
	t.Helper()

	services := make([]coordinator.Service, 0, len(names))
	for i, name := range names {
		spoke := f.network.Spoke(t, name)
		spoke.Handle(transport.TrainedModel, spoketest.Reply(trainedModel(weights(float64(i), float64(i)), 0.5, 0.25)))
		spoke.Handle(transport.ReportTransfer, spoketest.Reply(map[string]any{"test_dice_scores": 0.9}))
		services = append(services, f.coordinator(name))
	}

	return services
}

func TestRunnerRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	services := federation(t, f, "alpha", "beta")
	services = append(services, f.coordinator("ghost"))

	history, err := fl.NewHistory(filepath.Join(f.dir, "rounds"))
	require.NoError(t, err)
	target := memory.New()

	runner := coordinator.NewRunner(coordinator.RunnerConfig{ModelID: modelID, Rounds: 2, Concurrency: 2}, services, coordinator.RunnerDeps{
		Accumulator: fl.NewAccumulator(fl.NewFedAvgAggregator(), 0, coordinator.CommitTo(f.checkpoints)),
		History:     history,
		Uploader:    registry.NewUploader(target, "latest"),
		Checkpoints: f.checkpoints,
		Notifier:    f.events,
	}, logger)

	summaries, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	for i, s := range summaries {
		assert.Equal(t, i+1, s.Round)
		assert.Equal(t, modelID, s.ModelID)
		assert.Equal(t, 2, s.Contributions)
		assert.True(t, s.Aggregated)
		assert.Len(t, s.Nodes, 12)

		saved, err := history.LoadRound(s.RoundID)
		require.NoError(t, err)
		assert.Equal(t, s.Round, saved.Round)
	}

	cpt, err := f.checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, weights(0.5, 0.5), cpt.Weights)

	for _, name := range []string{"alpha", "beta"} {
		rep, err := f.reports.Get(name)
		require.NoError(t, err)
		assert.Equal(t, 2, rep.Rounds())
		assert.Equal(t, 0.9, rep.TestDiceScores)
	}

	_, err = f.reports.Get("ghost")
	assert.Error(t, err)

	desc, err := target.Resolve(ctx, "latest")
	require.NoError(t, err)
	assert.Equal(t, ocispec.MediaTypeImageManifest, desc.MediaType)

	stages := f.events.stages()
	assert.Contains(t, stages, coordinator.StageFederationDone)
	assert.Equal(t, coordinator.StageUploadCompleted, stages[len(stages)-1])
}

func TestRunnerStopsOnceAfterLastRound(t *testing.T) {
	f := newFixture(t)
	spoke := f.network.Spoke(t, "solo")
	spoke.Handle(transport.TrainedModel, spoketest.Reply(trainedModel(weights(1), 0.5, 0.5)))
	spoke.Handle(transport.ReportTransfer, spoketest.Reply(map[string]any{"test_dice_scores": 0.7}))

	runner := coordinator.NewRunner(coordinator.RunnerConfig{ModelID: modelID, Rounds: 3}, []coordinator.Service{f.coordinator("solo")}, coordinator.RunnerDeps{
		Accumulator: fl.NewAccumulator(fl.NewFedAvgAggregator(), 0, coordinator.CommitTo(f.checkpoints)),
	}, logger)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, spoke.Calls(transport.ModelTransfer))
	assert.Equal(t, 3, spoke.Calls(transport.TrainedModel))
	assert.Equal(t, 1, spoke.Calls(transport.StopMessage))
}

func TestRunnerQuorum(t *testing.T) {
	f := newFixture(t)
	services := federation(t, f, "a", "b", "c")

	acc := fl.NewAccumulator(fl.NewFedAvgAggregator(), 2, coordinator.CommitTo(f.checkpoints))
	runner := coordinator.NewRunner(coordinator.RunnerConfig{ModelID: modelID, Rounds: 1}, services, coordinator.RunnerDeps{
		Accumulator: acc,
	}, logger)

	summary, err := runner.RunRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Contributions)
	assert.True(t, summary.Aggregated)

	var refused int
	for _, n := range summary.Nodes {
		if n.Stage == coordinator.StageAggregateStarted.String() && n.Outcome == coordinator.OutcomeLocalError.String() {
			refused++
		}
	}
	assert.Equal(t, 1, refused)
	assert.Equal(t, 0, acc.Len())
}

func TestRunnerUploadFailure(t *testing.T) {
	f := newFixture(t)
	services := federation(t, f, "node")

	runner := coordinator.NewRunner(coordinator.RunnerConfig{ModelID: modelID, Rounds: 1}, services, coordinator.RunnerDeps{
		Accumulator: fl.NewAccumulator(fl.NewFedAvgAggregator(), 0, coordinator.CommitTo(f.checkpoints)),
		Uploader:    failingUploader{},
		Checkpoints: f.checkpoints,
		Notifier:    f.events,
	}, logger)

	summaries, err := runner.Run(context.Background())
	assert.Error(t, err)
	assert.Len(t, summaries, 1)

	stages := f.events.stages()
	assert.Equal(t, coordinator.StageUploadFailed, stages[len(stages)-1])
}

func TestRunnerCancelled(t *testing.T) {
	f := newFixture(t)
	services := federation(t, f, "node")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := coordinator.NewRunner(coordinator.RunnerConfig{ModelID: modelID, Rounds: 2}, services, coordinator.RunnerDeps{
		Accumulator: fl.NewAccumulator(fl.NewFedAvgAggregator(), 0, nil),
	}, logger)

	summaries, err := runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, summaries, 1)
}

func TestRunnerProbeAll(t *testing.T) {
	f := newFixture(t)
	services := federation(t, f, "a", "b")
	services = append(services, f.coordinator("ghost"))

	runner := coordinator.NewRunner(coordinator.RunnerConfig{ModelID: modelID}, services, coordinator.RunnerDeps{}, logger)
	results := runner.ProbeAll(context.Background())
	require.Len(t, results, 3)
	assert.True(t, results[0].Alive())
	assert.True(t, results[1].Alive())
	assert.False(t, results[2].Alive())
	assert.Equal(t, "ghost", results[2].Node.Name)
}
