package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/hubnspoke/coordinator"
	"github.com/absmach/hubnspoke/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Node() coordinator.Node {
	return lm.svc.Node()
}

func (lm *loggingMiddleware) Probe(ctx context.Context) (res coordinator.ProbeResult) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("node",
				slog.String("name", res.Node.Name),
				slog.String("address", res.Node.Address),
			),
			slog.String("node_status", res.Status),
		}
		if res.Err != nil {
			args = append(args, slog.Any("error", res.Err))
			lm.logger.Warn("Probe node failed", args...)

			return
		}
		lm.logger.Info("Probe node completed successfully", args...)
	}(time.Now())

	return lm.svc.Probe(ctx)
}

func (lm *loggingMiddleware) Bootstrap(ctx context.Context, round int) (res coordinator.Result) {
	defer lm.log("Bootstrap", round, &res, time.Now())

	return lm.svc.Bootstrap(ctx, round)
}

func (lm *loggingMiddleware) Train(ctx context.Context, round int) (res coordinator.Result) {
	defer lm.log("Train", round, &res, time.Now())

	return lm.svc.Train(ctx, round)
}

func (lm *loggingMiddleware) Aggregate(ctx context.Context, round int, acc *fl.Accumulator) (res coordinator.Result) {
	defer lm.log("Aggregate", round, &res, time.Now())

	return lm.svc.Aggregate(ctx, round, acc)
}

func (lm *loggingMiddleware) Test(ctx context.Context, round int) (res coordinator.Result) {
	defer lm.log("Test", round, &res, time.Now())

	return lm.svc.Test(ctx, round)
}

func (lm *loggingMiddleware) Stop(ctx context.Context, round int) (res coordinator.Result) {
	defer lm.log("Stop", round, &res, time.Now())

	return lm.svc.Stop(ctx, round)
}

func (lm *loggingMiddleware) log(op string, round int, res *coordinator.Result, begin time.Time) {
	args := []any{
		slog.String("duration", time.Since(begin).String()),
		slog.Int("round", round),
		slog.Group("node",
			slog.String("name", res.Node.Name),
			slog.String("address", res.Node.Address),
		),
		slog.String("stage", res.Stage.String()),
		slog.String("outcome", res.Outcome.String()),
	}
	switch {
	case res.Outcome == coordinator.OutcomeSkipped:
		lm.logger.Info(op+" node skipped", args...)
	case res.Err != nil:
		args = append(args, slog.Any("error", res.Err))
		lm.logger.Warn(op+" node failed", args...)
	default:
		lm.logger.Info(op+" node completed successfully", args...)
	}
}
