package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cam3ron2/github-stats-card/internal/insights"
	"github.com/cam3ron2/github-stats-card/internal/stats"
	"github.com/cam3ron2/github-stats-card/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxInsightsBodyBytes = 1 << 20

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"

// StatsBackend serves the stats and insights routes.
type StatsBackend interface {
	Compute(ctx context.Context, usernames []string) (stats.UserStats, error)
	ComputeFromSnapshots(ctx context.Context, usernames []string) (stats.UserStats, error)
	Insights(ctx context.Context, record stats.UserStats) (insights.Response, error)
	DefaultUsers() []string
}

type requestIDKey struct{}

// NewHTTPHandler wires the stats, insights, metrics and health endpoints on a single router.
func NewHTTPHandler(backend StatsBackend, metricsHandler http.Handler, healthHandler http.Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &statsAPI{backend: backend, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.RealIP, requestID, middleware.Recoverer)

	traceMode := telemetry.CurrentMode()
	router.Method(http.MethodGet, "/stats", wrapHTTPHandler(traceMode, "stats", http.HandlerFunc(api.stats)))
	router.Method(http.MethodPost, "/insights", wrapHTTPHandler(traceMode, "insights", http.HandlerFunc(api.insights)))
	router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", metricsHandler))
	router.Handle("/livez", wrapHTTPHandler(traceMode, "livez", healthHandler))
	router.Handle("/readyz", wrapHTTPHandler(traceMode, "readyz", healthHandler))
	router.Handle("/healthz", wrapHTTPHandler(traceMode, "healthz", healthHandler))
	return router
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statsAPI struct {
	backend StatsBackend
	logger  *zap.Logger
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (a *statsAPI) stats(w http.ResponseWriter, r *http.Request) {
	usernames := a.usernames(r)
	var (
		record stats.UserStats
		err    error
	)
	switch source := r.URL.Query().Get("source"); source {
	case "", "live":
		record, err = a.backend.Compute(r.Context(), usernames)
	case "snapshot":
		record, err = a.backend.ComputeFromSnapshots(r.Context(), usernames)
	default:
		a.writeError(w, r, http.StatusBadRequest, errors.New("source must be live or snapshot"))
		return
	}
	if err != nil {
		a.writeError(w, r, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *statsAPI) insights(w http.ResponseWriter, r *http.Request) {
	var (
		record stats.UserStats
		err    error
	)
	if r.URL.Query().Has("users") {
		record, err = a.backend.Compute(r.Context(), a.usernames(r))
		if err != nil {
			a.writeError(w, r, statusForError(err), err)
			return
		}
	} else {
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInsightsBodyBytes))
		if err := decoder.Decode(&record); err != nil {
			a.writeError(w, r, http.StatusBadRequest, errors.New("request body must be a stats record"))
			return
		}
	}

	response, err := a.backend.Insights(r.Context(), record)
	if err != nil {
		status := statusForError(err)
		if errors.Is(err, ErrInsightsDisabled) {
			status = http.StatusNotFound
		}
		a.writeError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *statsAPI) usernames(r *http.Request) []string {
	raw := r.URL.Query().Get("users")
	if strings.TrimSpace(raw) == "" && !r.URL.Query().Has("users") {
		return a.backend.DefaultUsers()
	}
	return strings.Split(raw, ",")
}

func (a *statsAPI) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	id := requestIDFrom(r.Context())
	level := a.logger.Info
	if status >= http.StatusInternalServerError {
		level = a.logger.Warn
	}
	level("request failed",
		zap.String("request_id", id),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeJSON(w, status, errorBody{Error: err.Error(), RequestID: id})
}

func statusForError(err error) int {
	var (
		credentialErr *stats.CredentialError
		upstreamErr   *stats.UpstreamRequestError
		yearErr       *stats.YearFetchError
		allYearsErr   *stats.AllYearsFailedError
		malformedErr  *stats.MalformedUpstreamResponse
	)
	switch {
	case errors.Is(err, stats.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &credentialErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &upstreamErr), errors.As(err, &yearErr), errors.As(err, &allYearsErr), errors.As(err, &malformedErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isUpstreamFailure(err error) bool {
	status := statusForError(err)
	return status == http.StatusBadGateway || status == http.StatusGatewayTimeout
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func wrapHTTPHandler(traceMode telemetry.Mode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if traceMode == telemetry.ModeOff {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("github-stats-card/internal/app").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.request_id", requestIDFrom(r.Context())),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
