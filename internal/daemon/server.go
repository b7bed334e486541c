package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/animus-coder/codesmith/internal/agent"
	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/extract"
	"github.com/animus-coder/codesmith/internal/ingest"
	"github.com/animus-coder/codesmith/internal/llm/configbuilder"
	"github.com/animus-coder/codesmith/internal/logging"
	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/retrieval"
	"github.com/animus-coder/codesmith/internal/rpc/generate"
	"github.com/animus-coder/codesmith/internal/rpc/sessions"
	"github.com/animus-coder/codesmith/internal/session"
	"github.com/animus-coder/codesmith/internal/tools"
	"github.com/animus-coder/codesmith/internal/version"
)

// Server hosts the session API, the Generate stream and operational endpoints.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	service *session.Service
	runner  generate.Runner
}

// NewServer wires models, indexing, agents and extraction into a daemon.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	embed, err := retrieval.NewEmbeddingFunc(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	metrics := observability.NewMetrics()
	strategy := agent.NewStrategyEngine(registry, cfg.Strategy).WithMetrics(metrics)

	service := &session.Service{
		Manager: session.NewManager(cfg.Storage.DataDir, logger),
		Factory: &tools.Factory{
			Parser: ingest.NewNativeParser(),
			Indexer: &retrieval.Indexer{
				Embed:       embed,
				Chunker:     ingest.Chunker{Size: cfg.Index.ChunkSize, Overlap: cfg.Index.ChunkOverlap},
				Concurrency: cfg.Index.Concurrency,
				Logger:      logging.Component(logger, "index"),
			},
			Models:  strategy,
			TopK:    cfg.Index.TopK,
			Logger:  logging.Component(logger, "tools"),
			Metrics: metrics,
		},
		Builder: &agent.Builder{
			Strategy: strategy,
			Config:   cfg.Agent,
			Logger:   logger,
			Metrics:  metrics,
		},
		Extractor: &extract.Extractor{
			Models:  strategy,
			Config:  cfg.Extraction,
			Logger:  logger,
			Metrics: metrics,
		},
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		Metrics:        metrics,
		Logger:         logger,
	}

	return &Server{
		cfg:     cfg,
		logger:  logging.Component(logger, "daemon"),
		metrics: metrics,
		service: service,
		runner:  &generate.SessionRunner{Service: service, Logger: logger},
	}, nil
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", s.healthHandler)
	r.Get("/metrics", s.metricsHandler)

	ndjson := generate.NewHandler(s.runner, s.metrics)
	api := &sessions.Handler{
		Service:  s.service,
		Generate: ndjson,
		Metrics:  s.metrics,
		Logger:   s.logger,
	}
	api.Routes(r)

	if s.transport() != "ndjson" {
		path, handler := generate.NewConnectHandler(s.runner, s.metrics)
		r.Handle(path, handler)
		return h2c.NewHandler(r, &http2.Server{})
	}
	return r
}

func (s *Server) transport() string {
	return strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport))
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting codesmith daemon",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("transport", s.transport()),
			zap.String("version", version.Full()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down codesmith daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}
	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// accessLog logs and counts requests by their route pattern.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, status)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
