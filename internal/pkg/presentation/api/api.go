package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/diwise/ngsild-client/internal/pkg/application/loader"
	"github.com/diwise/ngsild-client/internal/pkg/presentation/api/auth"
	ngsierrors "github.com/diwise/ngsild-client/pkg/ngsild/errors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("entity-loader/api")

func RegisterHandlers(ctx context.Context, r *chi.Mux, policies io.Reader, tenant string, l loader.EntityLoader) error {

	authenticator, err := auth.NewAuthenticator(ctx, policies)
	if err != nil {
		return fmt.Errorf("failed to create api authenticator: %w", err)
	}

	log := logging.GetFromContext(ctx)

	r.Get("/health", NewHealthHandler())
	r.Get("/api/v0/status", NewStatusHandler(log, authenticator, tenant, l))

	return nil
}

func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewStatusHandler reports the outcome of the most recent sync run as
// json to authorized callers.
func NewStatusHandler(logger *slog.Logger, authenticator auth.Enticator, tenant string, l loader.EntityLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "loader-status")
		defer span.End()

		traceID, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		if err := authenticator.CheckAccess(ctx, r, tenant); err != nil {
			log.Warn("access not granted", "err", err.Error())
			ngsierrors.ReportUnauthorizedRequest(w, "access denied", traceID)
			return
		}

		body, err := json.Marshal(l.Status())
		if err != nil {
			log.Error("failed to marshal loader status", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}
