// Package httpapi serves the read side of the pipeline: sealed batches,
// run summaries, and live segment streams over SSE and WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
	"github.com/PhantoomDev/reddit-content-generator/internal/sink"
)

// Store is the read-side view of the batch store.
type Store interface {
	CountBatches(ctx context.Context, filters sink.BatchFilters) (int64, error)
	ListBatches(ctx context.Context, filters sink.BatchFilters) ([]core.Batch, error)
}

type Options struct {
	Addr           string
	RateRPS        int
	RateBurst      int
	AllowedOrigins []string
	EnableMetrics  bool
	Build          BuildInfo
	ConfigSummary  map[string]any
}

type streamClient struct {
	ch      chan core.Segment
	filters Filters
}

type Server struct {
	httpServer *http.Server
	store      Store
	opts       Options
	metrics    *Metrics
	limiter    *ipRateLimiter
	cors       *corsPolicy
	startedAt  time.Time

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	lastRun *core.RunSummary
	closed  bool
}

func New(store Store, opts Options) *Server {
	srv := &Server{
		store:     store,
		opts:      opts,
		metrics:   newMetrics(),
		limiter:   newIPRateLimiter(opts.RateRPS, opts.RateBurst),
		cors:      newCORSPolicy(opts.AllowedOrigins),
		clients:   make(map[*streamClient]struct{}),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.wrap("healthz", srv.handleHealthz))
	mux.HandleFunc("/info", srv.wrap("info", srv.handleInfo))
	mux.HandleFunc("/summary", srv.wrap("summary", srv.handleSummary))
	mux.HandleFunc("/batches", srv.wrap("batches", srv.handleBatches))
	mux.HandleFunc("/batches/count", srv.wrap("batches_count", srv.handleBatchCount))
	mux.HandleFunc("/stream", srv.wrap("stream", srv.handleStream))
	mux.HandleFunc("/stream/ws", srv.wrap("stream_ws", srv.handleStreamWS))
	if opts.EnableMetrics {
		mux.Handle("/metrics", srv.metrics.Handler())
	}

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// Metrics exposes the server's collectors so other components can
// register on the same scrape endpoint.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// wrap applies the shared middleware chain: CORS, per-IP rate limiting,
// and request metrics.
func (s *Server) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newResponseRecorder(w)

		if handled, status := s.cors.handlePreflight(rec, r); handled {
			s.metrics.ObserveRequest(route, r.Method, status, time.Since(start))
			return
		}
		if !s.cors.applyHeaders(rec, r) {
			http.Error(rec, "origin not allowed", http.StatusForbidden)
			s.metrics.ObserveRequest(route, r.Method, http.StatusForbidden, time.Since(start))
			return
		}
		if !s.limiter.Allow(remoteIP(r)) {
			s.metrics.IncRateLimited()
			http.Error(rec, "rate limit exceeded", http.StatusTooManyRequests)
			s.metrics.ObserveRequest(route, r.Method, http.StatusTooManyRequests, time.Since(start))
			return
		}

		h(rec, r)
		s.metrics.ObserveRequest(route, r.Method, rec.Status(), time.Since(start))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SetRunSummary records the most recent run for the summary endpoint.
func (s *Server) SetRunSummary(summary core.RunSummary) {
	s.mu.Lock()
	s.lastRun = &summary
	s.mu.Unlock()
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := s.lastRun
	s.mu.Unlock()

	if gz, ok := maybeGzip(w, r); ok {
		defer func() { _ = gz.Close() }()
	}

	resp := map[string]any{"config": s.opts.ConfigSummary}
	if last != nil {
		resp["last_run"] = last
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Batch listings carry whole segment payloads.
	if gz, ok := maybeGzip(w, r); ok {
		defer func() { _ = gz.Close() }()
	}

	batches, err := s.store.ListBatches(r.Context(), filters.BatchFilters())
	if err != nil {
		s.metrics.IncStoreErrors()
		slog.Error("list batches failed", "err", err)
		http.Error(w, "list error", http.StatusInternalServerError)
		return
	}
	if batches == nil {
		batches = []core.Batch{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(batches)
}

func (s *Server) handleBatchCount(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, err := s.store.CountBatches(r.Context(), filters.BatchFilters())
	if err != nil {
		s.metrics.IncStoreErrors()
		slog.Error("count batches failed", "err", err)
		http.Error(w, "count error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{"count": count})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client, ok := s.addClient(filters.CloneForStream())
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.removeClient(client)

	s.metrics.IncSSEClients(1)
	defer s.metrics.IncSSEClients(-1)

	fmt.Fprintf(w, ":ok\n\n")
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ":ping\n\n")
			flusher.Flush()
		case seg, ok := <-client.ch:
			if !ok {
				return
			}
			data, err := json.Marshal(seg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: segment\ndata: %s\n\n", data)
			flusher.Flush()
			s.metrics.IncSegmentsSent("sse")
		}
	}
}

func (s *Server) addClient(filters Filters) (*streamClient, bool) {
	client := &streamClient{ch: make(chan core.Segment, 64), filters: filters}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.clients[client] = struct{}{}
	return client, true
}

func (s *Server) removeClient(client *streamClient) {
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
}

// Broadcast fans a freshly batched segment out to every stream client.
// Slow clients lose segments rather than blocking the pipeline.
func (s *Server) Broadcast(seg core.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if !client.filters.MatchesSegment(seg) {
			continue
		}
		select {
		case client.ch <- seg:
		default:
			s.metrics.IncBroadcastDrops("stream")
		}
	}
}

func (s *Server) Start() error {
	slog.Info("http api listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for client := range s.clients {
		close(client.ch)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}
