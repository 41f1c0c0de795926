// Package api serves calculations and connection status to the browser UI.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Shivam-Patel-G/blended-math/config"
	"github.com/Shivam-Patel-G/blended-math/core/audit"
	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/monitoring"
)

// Contracts are the addresses shown on the contracts endpoint.
type Contracts struct {
	Rust     string
	Solidity string
}

// Options wires the server's collaborators. Only Calculator is required.
type Options struct {
	Calculator  contracts.Calculator
	Monitor     *monitoring.ConnectionMonitor
	Metrics     *monitoring.Metrics
	History     *monitoring.PerformanceHistory
	Audit       *audit.Logger
	Gatherer    prometheus.Gatherer
	Network     config.NetworkConfig
	Contracts   Contracts
	RateLimit   float64
	RateBurst   int
	CallTimeout time.Duration
	Logger      *logrus.Logger
}

// Server is the HTTP and WebSocket front of the toolkit.
type Server struct {
	opts     Options
	logger   *logrus.Logger
	limiter  *clientLimiter
	router   *mux.Router
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*wsClient]bool
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.History == nil {
		opts.History = monitoring.NewPerformanceHistory(0)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	s := &Server{
		opts:    opts,
		logger:  opts.Logger,
		limiter: newClientLimiter(limit, opts.RateBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]bool),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/network", s.handleNetwork).Methods(http.MethodGet)
	v1.HandleFunc("/contracts", s.handleContracts).Methods(http.MethodGet)
	v1.HandleFunc("/calculate", s.handleCalculate).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/compare", s.handleCompare).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)

	s.router = r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done and pushes monitor status changes to
// WebSocket clients.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.opts.Monitor != nil {
		updates, unsubscribe := s.opts.Monitor.Subscribe()
		defer unsubscribe()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case st := <-updates:
					s.BroadcastStatus(st)
				}
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("API server starting")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+clientIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
