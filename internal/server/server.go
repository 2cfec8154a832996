// Package server provides the HTTP server for the SpaceVision object detection service.
package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ayusman/spacevision/internal/artifacts"
	"github.com/ayusman/spacevision/internal/detection"
	"github.com/ayusman/spacevision/internal/metrics"
	"github.com/ayusman/spacevision/internal/results"
	"github.com/ayusman/spacevision/internal/server/api"
	"github.com/ayusman/spacevision/internal/store"
)

// Config holds the server configuration. Every collaborator is optional;
// routes whose collaborator is missing are not registered.
type Config struct {
	StaticDir string
	Pipeline  api.Pipeline
	Results   *results.Store
	Archive   *store.Store
	Artifacts *artifacts.Storage
	Critical  detection.CriticalSet
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
	// Backend names the active detector backend, reported on /api/health.
	Backend string

	MaxUploadBytes int64
	// CORSOrigins lists allowed browser origins. Empty allows all.
	CORSOrigins []string
}

// Server represents the HTTP server for the SpaceVision application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	logger  *zap.Logger
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		logger: logger.Named("http"),
		start:  time.Now(),
	}
	s.setupRoutes()

	var c *cors.Cors
	if len(config.CORSOrigins) > 0 {
		c = cors.New(cors.Options{
			AllowedOrigins:   config.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		})
	} else {
		c = cors.AllowAll()
	}
	s.handler = c.Handler(api.Sessions(s.instrument(s.mux)))

	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/critical-objects", api.NewCriticalHandler(s.config.Critical))

	if s.config.Pipeline != nil {
		detect := api.NewDetectHandler(s.config.Pipeline, s.logger)
		s.mux.Handle("/api/upload", api.NewUploadHandler(s.config.Pipeline, s.config.MaxUploadBytes, s.logger))
		s.mux.Handle("/api/detect", detect)
		s.mux.Handle("/detect_webcam", detect)
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Pipeline, s.config.CORSOrigins, s.logger))
	}

	if s.config.Results != nil {
		var archive *store.ResultRepository
		if s.config.Archive != nil {
			archive = s.config.Archive.Results()
		}
		s.mux.Handle("/api/results/", api.NewResultsHandler(s.config.Results, archive, s.logger))
	}

	if s.config.Artifacts != nil {
		s.mux.HandleFunc(api.UploadsPrefix, s.handleUploads)
	}

	if s.config.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.Results != nil {
		response["history"] = s.config.Results.Len()
	}
	if s.config.Backend != "" {
		response["backend"] = s.config.Backend
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleUploads serves saved artifacts under /uploads/<name>.
func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, api.UploadsPrefix)
	data, err := s.config.Artifacts.Open(name)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("failed to read artifact", zap.String("name", name), zap.Error(err))
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if r.Method == http.MethodHead {
		return
	}
	w.Write(data)
}

// instrument records request metrics and logs each request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.config.Metrics.ObserveRequest(r.Method, route, rec.status, elapsed)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed))
	})
}

// statusRecorder captures the response status. It forwards Hijack and Flush
// so WebSocket upgrades keep working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// HTTPServer returns an http.Server for addr using this handler.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return s.HTTPServer(addr).ListenAndServe()
}
