package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/health"
	"github.com/madddiyarn/regulus/internal/httputil"
	"github.com/madddiyarn/regulus/internal/metrics"
	"github.com/madddiyarn/regulus/internal/store"
	"github.com/madddiyarn/regulus/internal/tle"
)

// Detector runs one detection request.
type Detector interface {
	Detect(ctx context.Context, req conjunction.Request) (*conjunction.Result, error)
}

// EventStore reads recorded conjunctions.
type EventStore interface {
	Query(ctx context.Context, f store.Filter) ([]conjunction.Event, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// Catalog looks up element sets.
type Catalog interface {
	LatestElementSet(ctx context.Context, objectID int) (tle.ElementSet, error)
	Freshness(now time.Time, staleAfter time.Duration) tle.Freshness
}

// Config holds the transport settings.
type Config struct {
	Addr string
	// TrustProxy makes request logs use X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// DetectTimeout bounds one detection request; 0 means no bound.
	DetectTimeout time.Duration
	// MaxDetections and MaxDetectionsPerClient cap concurrent detection
	// requests; 0 is unlimited.
	MaxDetections          int
	MaxDetectionsPerClient int
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Detector  Detector
	Events    EventStore
	Catalog   Catalog
	Readiness *health.Readiness
	// StaleAfter returns the element-set staleness limit in effect.
	StaleAfter func() time.Duration
	Now        func() time.Time
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, logger *slog.Logger, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	h := &handlers{deps: deps, logger: logger, detectTimeout: cfg.DetectTimeout}
	limiter := newDetectLimiter(cfg.MaxDetectionsPerClient, cfg.MaxDetections)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", deps.Readiness.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /api/v1/conjunctions/detect", limiter.limit(h, cfg.TrustProxy, h.detect))
	mux.HandleFunc("GET /api/v1/conjunctions", h.listEvents)
	mux.HandleFunc("GET /api/v1/conjunctions/stats", h.stats)
	mux.HandleFunc("GET /api/v1/catalog/{object_id}", h.catalogEntry)

	// Build middleware chain: metrics -> logging -> mux.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	writeTimeout := 30 * time.Second
	if cfg.DetectTimeout > 0 {
		writeTimeout = cfg.DetectTimeout + 10*time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
