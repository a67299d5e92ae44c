package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/registry"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"
)

var ErrNoCheckpoint = errors.New("no checkpoint to upload")

type Uploader interface {
	Upload(ctx context.Context, a registry.Artifact) (ocispec.Descriptor, error)
}

type RawCheckpoint interface {
	ReadRaw() ([]byte, error)
}

type RunnerConfig struct {
	ModelID string
	Rounds  int
	// Concurrency bounds the nodes served at once; zero means all of them.
	Concurrency int
}

// RunnerDeps are optional except for Accumulator.
type RunnerDeps struct {
	Accumulator *fl.Accumulator
	History     *fl.History
	Uploader    Uploader
	Checkpoints RawCheckpoint
	Notifier    Notifier
}

// Runner drives every node through the configured number of rounds.
type Runner struct {
	cfg      RunnerConfig
	services []Service
	deps     RunnerDeps
	logger   *slog.Logger
}

func NewRunner(cfg RunnerConfig, services []Service, deps RunnerDeps, logger *slog.Logger) *Runner {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}

	return &Runner{
		cfg:      cfg,
		services: services,
		deps:     deps,
		logger:   logger,
	}
}

// Run executes the federation. Node failures never abort it; only context
// cancellation or a failed upload produce an error.
func (r *Runner) Run(ctx context.Context) ([]fl.RoundSummary, error) {
	summaries := make([]fl.RoundSummary, 0, r.cfg.Rounds)
	for round := 1; round <= r.cfg.Rounds; round++ {
		summary, err := r.RunRound(ctx, round)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, err
		}
	}

	r.logger.InfoContext(ctx, "stopping nodes", slog.Int("round", r.cfg.Rounds))
	r.fanOut(ctx, func(ctx context.Context, svc Service) Result {
		return svc.Stop(ctx, r.cfg.Rounds)
	})
	if err := ctx.Err(); err != nil {
		return summaries, err
	}

	return summaries, r.upload(ctx)
}

// RunRound runs one bootstrap, train, aggregate and test pass over all nodes.
// Each phase completes on every node before the next one starts.
func (r *Runner) RunRound(ctx context.Context, round int) (fl.RoundSummary, error) {
	acc := r.deps.Accumulator
	defer acc.Reset()

	summary := fl.RoundSummary{
		RoundID:   uuid.NewString(),
		ModelID:   r.cfg.ModelID,
		Round:     round,
		StartTime: time.Now().UTC(),
	}
	logger := r.logger.With(slog.Int("round", round), slog.String("round_id", summary.RoundID))
	logger.InfoContext(ctx, "round started", slog.Int("nodes", len(r.services)))

	phases := []func(context.Context, Service) Result{
		func(ctx context.Context, svc Service) Result { return svc.Bootstrap(ctx, round) },
		func(ctx context.Context, svc Service) Result { return svc.Train(ctx, round) },
		func(ctx context.Context, svc Service) Result { return svc.Aggregate(ctx, round, acc) },
		func(ctx context.Context, svc Service) Result { return svc.Test(ctx, round) },
	}
	for i, phase := range phases {
		for _, res := range r.fanOut(ctx, phase) {
			summary.Nodes = append(summary.Nodes, nodeOutcome(res))
		}
		if err := ctx.Err(); err != nil {
			summary.EndTime = time.Now().UTC()

			return summary, err
		}

		// Pending contributions are aggregated before the model is tested.
		if i == 2 {
			out, err := acc.Flush(ctx)
			if err != nil {
				logger.WarnContext(ctx, "failed to aggregate pending contributions", slog.Any("error", err))
			} else if out.Aggregated {
				logger.InfoContext(ctx, "pending contributions aggregated", slog.Int("contributions", out.Contributions))
			}
			summary.Contributions = acc.Len()
			summary.Aggregated = acc.Aggregations() > 0
		}
	}
	summary.EndTime = time.Now().UTC()

	if r.deps.History != nil {
		if err := r.deps.History.SaveRound(summary); err != nil {
			logger.WarnContext(ctx, "failed to save round summary", slog.Any("error", err))
		}
	}
	logger.InfoContext(ctx, "round completed",
		slog.Int("contributions", summary.Contributions),
		slog.Bool("aggregated", summary.Aggregated),
		slog.String("duration", summary.EndTime.Sub(summary.StartTime).String()),
	)

	return summary, nil
}

// ProbeAll checks every node concurrently, in node order.
func (r *Runner) ProbeAll(ctx context.Context) []ProbeResult {
	results := make([]ProbeResult, len(r.services))
	g := r.group()
	for i, svc := range r.services {
		g.Go(func() error {
			results[i] = svc.Probe(ctx)

			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Runner) fanOut(ctx context.Context, fn func(context.Context, Service) Result) []Result {
	results := make([]Result, len(r.services))
	g := r.group()
	for i, svc := range r.services {
		g.Go(func() error {
			results[i] = fn(ctx, svc)

			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Runner) group() *errgroup.Group {
	g := &errgroup.Group{}
	if r.cfg.Concurrency > 0 {
		g.SetLimit(r.cfg.Concurrency)
	}

	return g
}

func (r *Runner) upload(ctx context.Context) error {
	if r.deps.Uploader == nil || r.deps.Checkpoints == nil {
		return nil
	}

	logger := r.logger.With(slog.String("status", StageUploadStarted.String()))
	logger.InfoContext(ctx, "uploading the final model")
	r.notify(ctx, StageUploadStarted, nil)

	desc, err := r.doUpload(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to upload the final model",
			slog.String("status", StageUploadFailed.String()),
			slog.Any("error", err),
		)
		r.notify(ctx, StageUploadFailed, err)

		return err
	}

	r.logger.InfoContext(ctx, "final model uploaded",
		slog.String("status", StageUploadCompleted.String()),
		slog.String("digest", desc.Digest.String()),
	)
	r.notify(ctx, StageUploadCompleted, nil)

	return nil
}

func (r *Runner) doUpload(ctx context.Context) (ocispec.Descriptor, error) {
	raw, err := r.deps.Checkpoints.ReadRaw()
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	if raw == nil {
		return ocispec.Descriptor{}, ErrNoCheckpoint
	}

	desc, err := r.deps.Uploader.Upload(ctx, registry.Artifact{
		ModelID:    r.cfg.ModelID,
		Round:      r.cfg.Rounds,
		Checkpoint: raw,
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to upload checkpoint: %w", err)
	}

	return desc, nil
}

func (r *Runner) notify(ctx context.Context, stage Stage, err error) {
	ev := Event{
		ModelID: r.cfg.ModelID,
		Round:   r.cfg.Rounds,
		Stage:   stage,
		Time:    time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if err := r.deps.Notifier.Notify(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "failed to publish upload event", slog.Any("error", err))
	}
}

func nodeOutcome(res Result) fl.NodeOutcome {
	out := fl.NodeOutcome{
		Node:    res.Node.Name,
		Stage:   res.Stage.String(),
		Outcome: res.Outcome.String(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}

	return out
}
