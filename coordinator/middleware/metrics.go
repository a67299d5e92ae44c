package middleware

import (
	"context"
	"time"

	"github.com/absmach/hubnspoke/coordinator"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

// Metrics counts calls per method and outcome. Both instruments must accept
// the "method" and "outcome" labels.
func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Node() coordinator.Node {
	return mm.svc.Node()
}

func (mm *metricsMiddleware) Probe(ctx context.Context) (res coordinator.ProbeResult) {
	defer func(begin time.Time) {
		outcome := "alive"
		if !res.Alive() {
			outcome = "not_alive"
		}
		mm.counter.With("method", "probe", "outcome", outcome).Add(1)
		mm.latency.With("method", "probe", "outcome", outcome).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Probe(ctx)
}

func (mm *metricsMiddleware) Bootstrap(ctx context.Context, round int) (res coordinator.Result) {
	defer mm.observe("bootstrap", &res, time.Now())

	return mm.svc.Bootstrap(ctx, round)
}

func (mm *metricsMiddleware) Train(ctx context.Context, round int) (res coordinator.Result) {
	defer mm.observe("train", &res, time.Now())

	return mm.svc.Train(ctx, round)
}

func (mm *metricsMiddleware) Aggregate(ctx context.Context, round int, acc *fl.Accumulator) (res coordinator.Result) {
	defer mm.observe("aggregate", &res, time.Now())

	return mm.svc.Aggregate(ctx, round, acc)
}

func (mm *metricsMiddleware) Test(ctx context.Context, round int) (res coordinator.Result) {
	defer mm.observe("test", &res, time.Now())

	return mm.svc.Test(ctx, round)
}

func (mm *metricsMiddleware) Stop(ctx context.Context, round int) (res coordinator.Result) {
	defer mm.observe("stop", &res, time.Now())

	return mm.svc.Stop(ctx, round)
}

func (mm *metricsMiddleware) observe(method string, res *coordinator.Result, begin time.Time) {
	outcome := res.Outcome.String()
	mm.counter.With("method", method, "outcome", outcome).Add(1)
	mm.latency.With("method", method, "outcome", outcome).Observe(time.Since(begin).Seconds())
}
