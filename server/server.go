package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/hupe1980/vecsim"
)

// Version is reported by /health.
const Version = "1.0.0"

// ServiceName is reported by /health.
const ServiceName = "vecsim"

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 64 << 20

// Options configures a Server.
type Options struct {
	// Logger receives request and autosave logs. Defaults to vecsim.NoopLogger.
	Logger *vecsim.Logger

	// APIKeyHash is a bcrypt hash. When set, requests must present the
	// matching key as a bearer token.
	APIKeyHash string

	// AutoSave writes a snapshot after every successful mutation.
	AutoSave bool

	// MaxBodyBytes bounds request bodies. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// ShutdownTimeout bounds graceful shutdown in Run.
	ShutdownTimeout time.Duration
}

// Server serves a DB over HTTP.
type Server struct {
	db      *vecsim.DB
	opts    Options
	logger  *vecsim.Logger
	handler http.Handler

	// bearer tokens already verified against APIKeyHash
	verified sync.Map
}

// New creates a server for db.
func New(db *vecsim.DB, optFns ...func(o *Options)) *Server {
	opts := Options{
		MaxBodyBytes:    DefaultMaxBodyBytes,
		ShutdownTimeout: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = vecsim.NoopLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		db:     db,
		opts:   opts,
		logger: opts.Logger,
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = s.requestID(s.logRequests(s.authenticate(mux)))
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("GET /statistics", s.handleStatistics)

	mux.HandleFunc("POST /vectors", s.handleInsert)
	mux.HandleFunc("GET /vectors", s.handleList)
	mux.HandleFunc("POST /vectors/batch", s.handleBatchInsert)
	mux.HandleFunc("GET /vectors/{key}", s.handleGet)
	mux.HandleFunc("PUT /vectors/{key}", s.handleUpdate)
	mux.HandleFunc("DELETE /vectors/{key}", s.handleDelete)

	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /search/batch", s.handleSearchBatch)

	mux.HandleFunc("GET /config/distance-metric", s.handleGetMetric)
	mux.HandleFunc("PUT /config/distance-metric", s.handleSetMetric)
	mux.HandleFunc("GET /config/algorithm", s.handleGetAlgorithm)
	mux.HandleFunc("PUT /config/algorithm", s.handleSetAlgorithm)
	mux.HandleFunc("GET /config/simd", s.handleGetSIMD)
	mux.HandleFunc("PUT /config/simd", s.handleSetSIMD)

	mux.HandleFunc("POST /save", s.handleSave)
	mux.HandleFunc("POST /compact", s.handleCompact)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// autosave snapshots the DB after a mutation when enabled. Failures are
// logged; the mutation itself already succeeded.
func (s *Server) autosave(ctx context.Context) {
	if !s.opts.AutoSave {
		return
	}
	if _, err := s.db.Save(ctx); err != nil && !errors.Is(err, vecsim.ErrNoSnapshotStore) {
		s.logger.WarnContext(ctx, "autosave failed", "request_id", RequestID(ctx), "error", err)
	}
}
