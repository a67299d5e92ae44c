package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	pkgerrors "github.com/absmach/hubnspoke/pkg/errors"
	"github.com/absmach/hubnspoke/pkg/report"
	kithttp "github.com/go-kit/kit/transport/http"
)

const ContentType = "application/json"

var ErrValidation = errors.New("failed to validate request")

// Response is implemented by endpoint responses that control their own
// status code and headers.
type Response interface {
	Code() int
	Headers() map[string]string
	Empty() bool
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	w.Header().Set("Content-Type", ContentType)
	if ar, ok := response.(Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

type errorRes struct {
	Err string `json:"error"`
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidData),
		errors.Is(err, report.ErrInvalidNodeName):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, report.ErrReportNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	if err := json.NewEncoder(w).Encode(errorRes{Err: err.Error()}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// LoggingErrorEncoder logs server errors before encoding them.
func LoggingErrorEncoder(logger *slog.Logger, enc kithttp.ErrorEncoder) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		if !errors.Is(err, ErrValidation) {
			logger.WarnContext(ctx, "request failed", slog.Any("error", err))
		}
		enc(ctx, err, w)
	}
}

type health struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	InstanceID  string `json:"instance_id"`
	Description string `json:"description"`
}

// Health answers liveness checks of the named service.
func Health(service, instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/health+json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(health{
			Status:      "pass",
			Service:     service,
			InstanceID:  instanceID,
			Description: service + " service",
		})
	}
}
