package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coolgate/internal/config"
	"coolgate/internal/events"
	"coolgate/internal/metrics"
	"coolgate/internal/model"
)

// GateView is the read-only window the API exposes over the guard.
type GateView interface {
	IsInitialized() bool
	Interval() uint32
	Expiry(identity string) (uint64, bool)
	RootCaller() (string, bool)
}

type Server struct {
	cfg     *config.Manager
	gate    GateView
	events  *events.Store
	stats   *metrics.Store
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string     `json:"status"`
	Time       string     `json:"time"`
	Version    string     `json:"version"`
	ConfigPath string     `json:"config_path"`
	Gate       gateStatus `json:"gate"`
	API        apiStatus  `json:"api"`
	Storage    bool       `json:"storage"`
	Kafka      bool       `json:"kafka"`
}

type gateStatus struct {
	Initialized bool   `json:"initialized"`
	IntervalSec uint32 `json:"interval_sec"`
	RootCaller  string `json:"root_caller,omitempty"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func Start(ctx context.Context, cfg *config.Manager, gate GateView, eventsStore *events.Store, statsStore *metrics.Store, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		gate:    gate,
		events:  eventsStore,
		stats:   statsStore,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/gate", server.handleGate)
	mux.HandleFunc("/gate/expiry/", server.handleExpiry)
	mux.HandleFunc("/events", server.handleEvents)
	mux.HandleFunc("/stats", server.handleStats)
	mux.HandleFunc("/stats/", server.handleStats)
	mux.HandleFunc("/admin/clear", server.handleClear)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	gs := gateStatus{}
	if s.gate != nil {
		gs.Initialized = s.gate.IsInitialized()
		gs.IntervalSec = s.gate.Interval()
		if root, ok := s.gate.RootCaller(); ok {
			gs.RootCaller = root
		}
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Gate:       gs,
		API:        apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Storage:    cfg.Storage.Enabled,
		Kafka:      cfg.Events.Kafka.Enabled,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.gate == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	root, active := s.gate.RootCaller()
	writeJSON(w, http.StatusOK, map[string]any{
		"initialized":  s.gate.IsInitialized(),
		"interval_sec": s.gate.Interval(),
		"root_caller":  root,
		"root_active":  active,
	})
}

func (s *Server) handleExpiry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.gate == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	identity := strings.TrimPrefix(r.URL.Path, "/gate/expiry/")
	if identity == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	expiry, ok := s.gate.Expiry(identity)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": identity,
		"expiry":   expiry,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.events == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.GateEvent
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.events.Since(ts)
	} else {
		list = s.events.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": list,
		"count":  len(list),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.stats == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	identity := strings.TrimPrefix(r.URL.Path, "/stats")
	identity = strings.TrimPrefix(identity, "/")
	if identity != "" {
		st, updated, ok := s.stats.Get(identity)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"identity":   identity,
			"updated_at": updated.Format(time.RFC3339Nano),
			"stats":      st,
		})
		return
	}
	all := s.stats.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": all,
		"count": len(all),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.events != nil {
			s.events.Clear()
		}
		if s.stats != nil {
			s.stats.Clear()
		}
	case "events":
		if s.events != nil {
			s.events.Clear()
		}
	case "stats":
		if s.stats != nil {
			s.stats.Clear()
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
