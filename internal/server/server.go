// Package server exposes the engine over HTTP: token decode, one-shot
// coverage encoding, and batch run management backed by the store.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/undergis/spatialid/internal/batch"
	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/store"
)

// DefaultMaxBatchRuns caps background batch runs per server.
const DefaultMaxBatchRuns = 4

// Config holds the HTTP listener settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      float64 // requests per second, 0 disables limiting
	RateBurst      int
	MaxBatchRuns   int // concurrent background batch runs, 0 uses the default
}

// Server routes requests onto the engine and store.
type Server struct {
	cfg    Config
	opts   model.Options
	store  store.Store
	runner *batch.Runner

	// baseCtx bounds background batch runs; they survive the request that
	// started them but not the server.
	baseCtx context.Context

	// batchSlots admits background batch runs up to MaxBatchRuns; a full
	// channel means the next submission is refused, not queued.
	batchSlots chan struct{}
}

// New builds a server around default engine options and a store.
func New(cfg Config, opts model.Options, st store.Store) *Server {
	slots := cfg.MaxBatchRuns
	if slots <= 0 {
		slots = DefaultMaxBatchRuns
	}
	return &Server{
		cfg:        cfg,
		opts:       opts,
		store:      st,
		runner:     &batch.Runner{Store: st},
		baseCtx:    context.Background(),
		batchSlots: make(chan struct{}, slots),
	}
}

// Router assembles the chi handler chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = int(s.cfg.RateLimit)
		}
		r.Use(rateLimiter(rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/cells/{z}/{f}/{x}/{y}", s.handleDecodeCell)
		r.Post("/coverage", s.handleCoverage)
		r.Post("/batch", s.handleBatch)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/outcomes", s.handleListOutcomes)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("server: listening", zap.String("addr", s.cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}
