// Package api provides the read-only HTTP status surface: /healthz and
// /status. Adapted from the teacher's Server (gorilla/mux router, rs/cors
// wrapping, http.Server with explicit Read/WriteTimeout, graceful Stop
// via context), stripped of its WebSocket/backtest-control surface since
// LearningLoop has nothing for a client to drive — this server only
// observes, it never blocks or steers the loop (spec.md §5's "monitoring
// emissions are best-effort").
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/champion"
)

// LoopStatus is the subset of LearningLoop's live state /status reports.
type LoopStatus interface {
	CurrentIteration() int
}

// Server is the status-only HTTP surface.
type Server struct {
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	loop       LoopStatus
	champ      *champion.Tracker
	startedAt  time.Time
}

// Config configures the server's listen address and timeouts.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New builds a Server. loop and champ are queried live on every request;
// neither is mutated here.
func New(logger *zap.Logger, cfg Config, loop LoopStatus, champ *champion.Tracker) *Server {
	s := &Server{
		logger:    logger.Named("status-api"),
		router:    mux.NewRouter(),
		loop:      loop,
		champ:     champ,
		startedAt: time.Now(),
	}
	s.setupRoutes()

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
}

// Router exposes the underlying mux.Router for tests (httptest.Server).
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start runs the HTTP server and blocks until it stops; callers run this
// in its own goroutine since LearningLoop never waits on it.
func (s *Server) Start() error {
	s.logger.Info("status API listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type statusResponse struct {
	UptimeSeconds     float64 `json:"uptimeSeconds"`
	CurrentIteration  int     `json:"currentIteration"`
	HasChampion       bool    `json:"hasChampion"`
	ChampionSharpe    float64 `json:"championSharpe,omitempty"`
	ChampionIteration int     `json:"championIteration,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		UptimeSeconds:    time.Since(s.startedAt).Seconds(),
		CurrentIteration: s.loop.CurrentIteration(),
	}
	if cur := s.champ.Current(); cur != nil {
		resp.HasChampion = true
		sharpe, _ := cur.Metrics.SharpeRatio.Float64()
		resp.ChampionSharpe = sharpe
		resp.ChampionIteration = cur.IterationNum
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
