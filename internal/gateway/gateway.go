// Package gateway exposes the REST API: it resolves the requested
// target(s), dispatches the command, and renders outcomes as JSON.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JamesDodds/ipmi-api-gateway/internal/dispatch"
	"github.com/JamesDodds/ipmi-api-gateway/internal/history"
	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

// Server holds the wired components behind the HTTP surface.
type Server struct {
	registry   *target.Registry
	resolver   *target.Resolver
	dispatcher *dispatch.Dispatcher
	journal    *history.Writer
	store      *history.Store
	logger     *slog.Logger
	started    time.Time
}

func NewServer(registry *target.Registry, resolver *target.Resolver, dispatcher *dispatch.Dispatcher, journal *history.Writer, store *history.Store, logger *slog.Logger) *Server {
	return &Server{
		registry:   registry,
		resolver:   resolver,
		dispatcher: dispatcher,
		journal:    journal,
		store:      store,
		logger:     logger,
		started:    time.Now(),
	}
}

// Handler builds the route table wrapped in request-id and access-log
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleLiveness)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/servers", s.handleServers)
	mux.HandleFunc("GET /api/v1/servers/status", s.handleServersStatus)
	mux.HandleFunc("POST /api/v1/power/on", s.handlePowerOn)
	mux.HandleFunc("POST /api/v1/power/off", s.handlePowerOff)
	mux.HandleFunc("POST /api/v1/power/reset", s.handlePowerReset)
	mux.HandleFunc("GET /api/v1/power/status", s.handlePowerStatus)
	mux.HandleFunc("GET /api/v1/system/info", s.handleSystemInfo)
	mux.HandleFunc("GET /api/v1/system/sensors", s.handleSensors)
	mux.HandleFunc("GET /api/v1/system/events", s.handleEvents)
	mux.HandleFunc("DELETE /api/v1/system/events", s.handleEventsClear)
	mux.HandleFunc("GET /api/v1/system/events/info", s.handleEventsInfo)
	mux.HandleFunc("GET /api/v1/boot/device", s.handleBootDeviceGet)
	mux.HandleFunc("POST /api/v1/boot/device", s.handleBootDeviceSet)
	mux.HandleFunc("POST /api/v1/bulk/power/on", s.handleBulkPowerOn)
	mux.HandleFunc("POST /api/v1/bulk/power/off", s.handleBulkPowerOff)
	mux.HandleFunc("GET /api/v1/bulk/sensors", s.handleBulkSensors)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)

	return s.withRequestID(s.withAccessLog(mux))
}

type contextKey string

const requestIDKey contextKey = "request-id"

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", requestID(r.Context()))
	})
}
