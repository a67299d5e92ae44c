package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/absmach/hubnspoke/pkg/api"
	"github.com/absmach/hubnspoke/pkg/checkpoint"
	"github.com/absmach/hubnspoke/pkg/fl"
	"github.com/absmach/hubnspoke/pkg/report"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "hub"

type HistoryReader interface {
	ListRounds() ([]string, error)
	LoadRound(roundID string) (fl.RoundSummary, error)
}

type CheckpointReader interface {
	Load(ctx context.Context) (*checkpoint.Checkpoint, error)
}

type ReportReader interface {
	Get(node string) (report.Report, error)
}

// Sources are the hub state exposed over HTTP, read-only.
type Sources struct {
	History     HistoryReader
	Checkpoints CheckpointReader
	Reports     ReportReader
}

func MakeHandler(src Sources, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(api.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/rounds", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listRoundsEndpoint(src),
			decodeListReq,
			api.EncodeResponse,
			opts...,
		), "list-rounds").ServeHTTP)
		r.Get("/{roundID}", otelhttp.NewHandler(kithttp.NewServer(
			getRoundEndpoint(src),
			decodeEntityReq("roundID"),
			api.EncodeResponse,
			opts...,
		), "get-round").ServeHTTP)
	})

	mux.Get("/checkpoint", otelhttp.NewHandler(kithttp.NewServer(
		getCheckpointEndpoint(src),
		decodeListReq,
		api.EncodeResponse,
		opts...,
	), "get-checkpoint").ServeHTTP)

	mux.Get("/reports/{node}", otelhttp.NewHandler(kithttp.NewServer(
		getReportEndpoint(src),
		decodeEntityReq("node"),
		api.EncodeResponse,
		opts...,
	), "get-report").ServeHTTP)

	mux.Get("/health", api.Health(serviceName, instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeListReq(context.Context, *http.Request) (any, error) {
	return listReq{}, nil
}
