package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const traceHeader = "X-Trace-ID"

type routeKey struct{}

// route is filled in by RouteMiddleware once the mux has matched a pattern.
type route struct {
	pattern string
}

func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = newTraceID()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ContextWithTraceID(r.Context(), traceID)))
	})
}

// RouteMiddleware wraps a handler registered on a ServeMux and reports the
// matched pattern to MetricsMiddleware and LoggingMiddleware.
func RouteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if matched, ok := r.Context().Value(routeKey{}).(*route); ok {
			matched.pattern = r.Pattern
		}
		next.ServeHTTP(w, r)
	})
}

// MetricsMiddleware counts requests by the route RouteMiddleware recorded.
// Requests no route served are labelled "unmatched".
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		r, matched := withRoute(r)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		observeHTTPRequest(r.Method, matched.pattern, recorder.status, time.Since(start))
	})
}

func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, matched := withRoute(r)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			routeName := matched.pattern
			if routeName == "" {
				routeName = unmatchedRoute
			}
			logger.InfoContext(r.Context(), "http_request", append(LogAttrs(r.Context()),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routeName),
				slog.Int("status", recorder.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int("bytes", recorder.bytes),
			)...)
		})
	}
}

// withRoute reuses a route holder placed by an outer middleware.
func withRoute(r *http.Request) (*http.Request, *route) {
	if matched, ok := r.Context().Value(routeKey{}).(*route); ok {
		return r, matched
	}
	matched := &route{}
	return r.WithContext(context.WithValue(r.Context(), routeKey{}, matched)), matched
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

func newTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
