// Package api exposes the operator HTTP surface: health, strategy
// management, manager lifecycle, the global trading switch and the
// liquidation endpoint. Every process-facing dependency is injected so the
// server itself stays a thin routing layer.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/health"
	"github.com/stackmesh/tradepilot/internal/liquidation"
	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/internal/manager"
	"github.com/stackmesh/tradepilot/internal/restart"
	"github.com/stackmesh/tradepilot/internal/store"
	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// StrategyLister is the slice of the registry the server reads.
type StrategyLister interface {
	List() []types.StrategyDescriptor
}

// Server is the operator HTTP server.
type Server struct {
	manager    manager.StrategyManager
	registry   StrategyLister
	monitor    health.Monitor
	controller restart.Controller
	sequencer  liquidation.Sequencer
	store      store.Store
	log        *logger.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates the operator server with its dependencies injected.
func NewServer(
	mgr manager.StrategyManager,
	registry StrategyLister,
	monitor health.Monitor,
	controller restart.Controller,
	sequencer liquidation.Sequencer,
	s store.Store,
	log *logger.Logger,
) *Server {
	return &Server{
		manager:    mgr,
		registry:   registry,
		monitor:    monitor,
		controller: controller,
		sequencer:  sequencer,
		store:      s,
		log:        log,
	}
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/strategies", s.handleListStrategies).Methods("GET")
	router.HandleFunc("/api/strategies/{id}/enable", s.handleEnableStrategy).Methods("POST")
	router.HandleFunc("/api/manager/start", s.handleStart).Methods("POST")
	router.HandleFunc("/api/manager/stop", s.handleStop).Methods("POST")
	router.HandleFunc("/api/manager/restart", s.handleRestart).Methods("POST")
	router.HandleFunc("/api/manager/reset", s.handleReset).Methods("POST")
	router.HandleFunc("/api/trading", s.handleGetTrading).Methods("GET")
	router.HandleFunc("/api/trading/toggle", s.handleToggleTrading).Methods("POST")
	router.HandleFunc("/api/liquidate", s.handleLiquidate).Methods("POST")
	router.HandleFunc("/api/signals", s.handleSignals).Methods("GET")

	return router
}

// Start binds the listener and serves in the background.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to listen on %s", address)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("Operator API listening", zap.String("address", listener.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			s.log.Error("Operator API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the server down, bounded.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// Address returns the bound listen address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Check(r.Context())

	status := http.StatusOK
	if report.Status == types.HealthStatusError {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, report)
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleEnableStrategy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	if err := s.manager.Enable(id, req.Enabled); err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": req.Enabled})
}

type startRequest struct {
	// Interval is the poll interval in seconds. Zero means the default.
	Interval int `json:"interval"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

			return
		}
	}

	interval := manager.DefaultInterval
	if req.Interval > 0 {
		interval = time.Duration(req.Interval) * time.Second
	}

	if err := s.manager.Start(interval); err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"running": true, "interval": int(interval.Seconds())})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Stop(); err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

			return
		}
	}

	interval := manager.DefaultInterval
	if req.Interval > 0 {
		interval = time.Duration(req.Interval) * time.Second
	}

	attempt, err := s.controller.Restart(r.Context(), interval)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, attempt)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	report, err := s.controller.Reset(r.Context())
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetTrading(w http.ResponseWriter, r *http.Request) {
	value, err := s.store.Get(r.Context(), store.KeyTradingEnabled)
	if err != nil && !errors.HasCode(err, errors.ErrCodeKeyNotFound) {
		s.writeError(w, err)

		return
	}

	// An absent flag means trading is disabled.
	s.writeJSON(w, http.StatusOK, map[string]any{"enabled": value == "true"})
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleToggleTrading(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	value := "false"
	if req.Enabled {
		value = "true"
	}

	if err := s.store.Set(r.Context(), store.KeyTradingEnabled, value, 0); err != nil {
		s.writeError(w, err)

		return
	}

	// Other processes pick the change up on their next flag read; the
	// publish is a courtesy nudge.
	if err := s.store.Publish(r.Context(), store.ChannelSettings, store.KeyTradingEnabled); err != nil {
		s.log.Warn("Failed to publish settings update", zap.Error(err))
	}

	s.log.Warn("Trading flag changed", zap.Bool("enabled", req.Enabled))
	s.writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	s.log.Warn("Liquidation requested",
		zap.String("remote", r.RemoteAddr),
		zap.String("request_id", uuid.NewString()))

	report, err := s.sequencer.LiquidateAll(r.Context())
	if err != nil {
		// The report still matters: the flag state and partial closes
		// tell the operator what needs manual attention.
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"report": report,
		})

		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.Keys(r.Context(), store.PatternSignals)
	if err != nil {
		s.writeError(w, err)

		return
	}

	signals := make([]types.Signal, 0, len(keys))

	for _, key := range keys {
		var signal types.Signal
		if err := s.store.GetJSON(r.Context(), key, &signal); err != nil {
			// Expired between the scan and the read.
			continue
		}

		signals = append(signals, signal)
	}

	s.writeJSON(w, http.StatusOK, signals)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)

	status := http.StatusInternalServerError

	switch code {
	case errors.ErrCodeInvalidParameter, errors.ErrCodeInvalidInterval,
		errors.ErrCodeInvalidConfiguration, errors.ErrCodeInvalidSizing,
		errors.ErrCodeMissingParameter:
		status = http.StatusBadRequest
	case errors.ErrCodeStrategyNotFound, errors.ErrCodeKeyNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeAlreadyRunning, errors.ErrCodeNotRunning,
		errors.ErrCodeRestartInProgress:
		status = http.StatusConflict
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: int(code)})
}
