package middleware

import (
	"context"

	"github.com/absmach/hubnspoke/coordinator"
	"github.com/absmach/hubnspoke/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Node() coordinator.Node {
	return tm.svc.Node()
}

func (tm *tracing) Probe(ctx context.Context) coordinator.ProbeResult {
	ctx, span := tm.tracer.Start(ctx, "probe", trace.WithAttributes(tm.nodeAttrs()...))
	defer span.End()

	res := tm.svc.Probe(ctx)
	span.SetAttributes(attribute.String("node_status", res.Status))
	if res.Err != nil {
		span.RecordError(res.Err)
	}

	return res
}

func (tm *tracing) Bootstrap(ctx context.Context, round int) coordinator.Result {
	ctx, span := tm.start(ctx, "bootstrap", round)
	defer span.End()

	return finish(span, tm.svc.Bootstrap(ctx, round))
}

func (tm *tracing) Train(ctx context.Context, round int) coordinator.Result {
	ctx, span := tm.start(ctx, "train", round)
	defer span.End()

	return finish(span, tm.svc.Train(ctx, round))
}

func (tm *tracing) Aggregate(ctx context.Context, round int, acc *fl.Accumulator) coordinator.Result {
	ctx, span := tm.start(ctx, "aggregate", round)
	defer span.End()

	return finish(span, tm.svc.Aggregate(ctx, round, acc))
}

func (tm *tracing) Test(ctx context.Context, round int) coordinator.Result {
	ctx, span := tm.start(ctx, "test", round)
	defer span.End()

	return finish(span, tm.svc.Test(ctx, round))
}

func (tm *tracing) Stop(ctx context.Context, round int) coordinator.Result {
	ctx, span := tm.start(ctx, "stop", round)
	defer span.End()

	return finish(span, tm.svc.Stop(ctx, round))
}

func (tm *tracing) start(ctx context.Context, name string, round int) (context.Context, trace.Span) {
	attrs := append(tm.nodeAttrs(), attribute.Int("round", round))

	return tm.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (tm *tracing) nodeAttrs() []attribute.KeyValue {
	node := tm.svc.Node()

	return []attribute.KeyValue{
		attribute.String("node", node.Name),
		attribute.String("address", node.Address),
	}
}

func finish(span trace.Span, res coordinator.Result) coordinator.Result {
	span.SetAttributes(
		attribute.String("stage", res.Stage.String()),
		attribute.String("outcome", res.Outcome.String()),
	)
	if res.Err != nil && res.Outcome != coordinator.OutcomeSkipped {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Outcome.String())
	}

	return res
}
