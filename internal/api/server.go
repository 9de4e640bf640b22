// Package api exposes the submission engine and its attempt log over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Submitter runs submissions. *engine.Engine implements it.
type Submitter interface {
	DiscoverAndSubmit(ctx context.Context, site model.Site) model.SubmissionAttempt
	SubmitBatch(ctx context.Context, sites []model.Site, limit int) []model.SubmissionAttempt
}

// Options configure a Server.
type Options struct {
	Engine Submitter
	Store  store.Store
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer       prometheus.Gatherer
	LookbackHours  int
	AllowedOrigins []string
	// MaxSites caps a single request. Zero means 100.
	MaxSites int
	// Breakers, when set, are reported by /healthz.
	Breakers *resilience.Breakers
}

// Server handles the HTTP API.
type Server struct {
	eng      Submitter
	store    store.Store
	stats    *monitoring.Collector
	gatherer prometheus.Gatherer
	origins  []string
	lookback int
	maxSites int
	breakers *resilience.Breakers

	// ctx outlives requests; accepted background batches run under it.
	ctx context.Context
	wg  sync.WaitGroup
}

// New creates a Server. Background submissions are cancelled with ctx.
func New(ctx context.Context, o Options) *Server {
	s := &Server{
		eng:      o.Engine,
		store:    o.Store,
		stats:    monitoring.NewCollector(o.Store),
		gatherer: o.Gatherer,
		origins:  o.AllowedOrigins,
		lookback: o.LookbackHours,
		maxSites: o.MaxSites,
		breakers: o.Breakers,
		ctx:      ctx,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.lookback <= 0 {
		s.lookback = 24
	}
	if s.maxSites <= 0 {
		s.maxSites = 100
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/submit", s.handleSubmit)
		r.Get("/attempts", s.handleListAttempts)
		r.Get("/attempts/{id}", s.handleGetAttempt)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// Wait blocks until accepted background batches finish.
func (s *Server) Wait() {
	s.wg.Wait()
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
