package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbtalk/dbtalk/internal/config"
	"github.com/dbtalk/dbtalk/internal/history"
	"github.com/dbtalk/dbtalk/internal/nl2sql"
	"github.com/dbtalk/dbtalk/internal/observability"
	"github.com/dbtalk/dbtalk/internal/query"
	"github.com/dbtalk/dbtalk/internal/schema"
)

const maxRequestBytes = 1 << 20

type ReadinessCheck func(ctx context.Context) error

// Asker is the part of the chain the HTTP surface needs.
type Asker interface {
	Ask(ctx context.Context, question string) (nl2sql.Answer, error)
	Translate(ctx context.Context, question string) (nl2sql.Translation, error)
	Schema(ctx context.Context) (schema.Snapshot, error)
}

// ArchiveQuerier runs read-only SQL over archived run history.
type ArchiveQuerier interface {
	Query(ctx context.Context, sqlText string, rowLimit int) (query.Result, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Chain             Asker
	History           history.Reader
	Archive           ArchiveQuerier
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, observability.RouteMiddleware(handler))
	}

	handle("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	handle("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	handle("GET /v1/metrics", promhttp.Handler().ServeHTTP)

	handle("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	handle("POST /v1/query/translate", func(w http.ResponseWriter, r *http.Request) {
		handleTranslate(deps, w, r)
	})
	handle("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	handle("GET /v1/history", func(w http.ResponseWriter, r *http.Request) {
		handleHistory(deps, w, r)
	})
	handle("POST /v1/history/archive/query", func(w http.ResponseWriter, r *http.Request) {
		handleArchiveQuery(cfg, deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckPing adapts a Ping method, such as (*sql.DB).PingContext, to a
// readiness check.
func CheckPing(name string, ping func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ping == nil {
			return errors.New(name + " is not configured")
		}
		if err := ping(ctx); err != nil {
			return errors.New(name + " unavailable: " + err.Error())
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
