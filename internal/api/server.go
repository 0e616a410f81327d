// Package api exposes the engine's operator surface over a narrow HTTP
// API. The full chat/dashboard front end is an external collaborator; this
// package only gives it (and any other HTTP client) a wire-level way to
// read Status, Snapshot, and Recommendations and to Configure, Start, and
// Stop a session.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/dzakiart/derivengine/pkg/domain"
)

// Engine is the subset of the trading engine's operator surface the HTTP
// layer fronts. internal/engine.Engine, the façade over the trade manager,
// the scanner, and the event bus, implements it.
type Engine interface {
	Status() StatusView
	Snapshot() SnapshotView
	Recommendations(topN int) []RecommendationView
	Configure(req ConfigureRequest) error
	Start(ctx context.Context) error
	Stop() SummaryView
}

// ConfigureRequest is the decoded body of a configure request.
type ConfigureRequest struct {
	Symbol       string  `json:"symbol"`
	Stake        string  `json:"stake"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"durationUnit"`
	TargetTrades int     `json:"targetTrades"`
}

// StatusView is the JSON shape of Status().
type StatusView struct {
	State      domain.TradeManagerState `json:"state"`
	Stats      domain.AggregateStats    `json:"stats"`
	Symbol     string                   `json:"symbol"`
	Martingale domain.MartingaleState   `json:"martingale"`
}

// SnapshotView is the JSON shape of Snapshot() (the event bus's retained
// state).
type SnapshotView struct {
	OpenPositions int       `json:"openPositions"`
	TradeCount    int       `json:"tradeCount"`
	LastBalance   string    `json:"lastBalance,omitempty"`
	AsOf          time.Time `json:"asOf"`
}

// RecommendationView is one ranked entry from the Pair Scanner.
type RecommendationView struct {
	Symbol     string  `json:"symbol"`
	Score      float64 `json:"score"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
}

// SummaryView is returned by Stop().
type SummaryView struct {
	Total       int    `json:"total"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
	TotalProfit string `json:"totalProfit"`
}

// Server is the engine's HTTP operator surface.
type Server struct {
	logger     *zap.Logger
	engine     Engine
	router     *mux.Router
	httpServer *http.Server
	addr       string
}

// NewServer constructs a Server bound to engine and listening on addr
// ("host:port").
func NewServer(logger *zap.Logger, engine Engine, addr string) *Server {
	s := &Server{
		logger: logger.Named("api"),
		engine: engine,
		router: mux.NewRouter(),
		addr:   addr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/recommendations", s.handleRecommendations).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/configure", s.handleConfigure).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/start", s.handleStart).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/stop", s.handleStop).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Router exposes the underlying mux.Router so tests can drive requests
// through httptest.NewServer without binding a real listener.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start begins serving HTTP. It blocks until the server stops or fails.
func (s *Server) Start() error {
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	s.logger.Info("starting operator HTTP surface", zap.String("addr", s.addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	topN := 5
	if v := r.URL.Query().Get("top_n"); v != "" {
		if n, err := fmt.Sscanf(v, "%d", &topN); err != nil || n == 0 {
			topN = 5
		}
	}
	writeJSON(w, http.StatusOK, s.engine.Recommendations(topN))
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.Configure(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stop())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
