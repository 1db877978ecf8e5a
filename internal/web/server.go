package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/pantrysync/internal/inference"
	"github.com/vbonduro/pantrysync/internal/reconcile"
	"github.com/vbonduro/pantrysync/internal/service"
)

// Candidates holds the ranked model lists used by the inference endpoints.
type Candidates struct {
	Vision      []string
	Text        []string
	MaxAttempts int
}

type Server struct {
	records    *service.RecordService
	sync       *reconcile.Engine
	inference  *inference.Orchestrator
	candidates Candidates
	metrics    http.Handler
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer wires the JSON API. metricsHandler may be nil, in which case
// /metrics is not served.
func NewServer(
	records *service.RecordService,
	engine *reconcile.Engine,
	orch *inference.Orchestrator,
	candidates Candidates,
	metricsHandler http.Handler,
	logger *slog.Logger,
) *Server {
	s := &Server{
		records:    records,
		sync:       engine,
		inference:  orch,
		candidates: candidates,
		metrics:    metricsHandler,
		mux:        http.NewServeMux(),
		logger:     logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
	})

	s.mux.HandleFunc("GET /users/{owner}/profile", s.handleGetProfile)
	s.mux.HandleFunc("PATCH /users/{owner}/profile", s.handleUpdateProfile)
	s.mux.HandleFunc("POST /users/{owner}/profile/photo", s.handleUploadProfilePhoto)

	s.mux.HandleFunc("POST /users/{owner}/sync", s.handleReconcile)
	s.mux.HandleFunc("GET /users/{owner}/sync", s.handlePending)
	s.mux.HandleFunc("GET /users/{owner}/assets/{category}/{file}", s.handleGetAsset)

	s.mux.HandleFunc("POST /users/{owner}/{collection}", s.handleCreateRecord)
	s.mux.HandleFunc("GET /users/{owner}/{collection}", s.handleListRecords)
	s.mux.HandleFunc("GET /users/{owner}/{collection}/{id}", s.handleGetRecord)
	s.mux.HandleFunc("PATCH /users/{owner}/{collection}/{id}", s.handleUpdateRecord)
	s.mux.HandleFunc("DELETE /users/{owner}/{collection}/{id}", s.handleDeleteRecord)
	s.mux.HandleFunc("POST /users/{owner}/{collection}/{id}/photo", s.handleUploadPhoto)

	s.mux.HandleFunc("POST /inference/label", s.handleLabel)
	s.mux.HandleFunc("POST /inference/rewrite", s.handleRewrite)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// HTTPServer returns a configured *http.Server for addr. Inference calls can
// take a while, hence the long write timeout.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
