// Package server exposes the monitor's HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carwatch/olx-monitor/internal/models"
	"github.com/carwatch/olx-monitor/internal/processor"
	"github.com/carwatch/olx-monitor/internal/storage"
)

const timestampLayout = "2006-01-02 15:04:05"

// Crawler is the part of *processor.Crawler the API drives.
type Crawler interface {
	RunCycle(ctx context.Context) (*processor.CycleResult, error)
	LastRun() (time.Time, bool)
}

// Store is the part of storage.Backend the API reads and resets.
type Store interface {
	ListAll(ctx context.Context) ([]models.AdRecord, error)
	Reset(ctx context.Context) (int, error)
}

type Server struct {
	crawler  Crawler
	store    Store
	location *time.Location
	now      func() time.Time
}

func New(crawler Crawler, store Store, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{crawler: crawler, store: store, location: loc, now: time.Now}
}

// Handler returns the routed API with permissive CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /ads", s.handleAds)
	mux.HandleFunc("POST /trigger", s.handleTrigger)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return withCORS(mux)
}

type statusResponse struct {
	Status  string `json:"status"`
	LastRun string `json:"last_run"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	lastRun := "never"
	if t, ok := s.crawler.LastRun(); ok {
		lastRun = t.In(s.location).Format(timestampLayout)
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "online", LastRun: lastRun})
}

func (s *Server) handleAds(w http.ResponseWriter, r *http.Request) {
	ads, err := s.store.ListAll(r.Context())
	if err != nil {
		slog.Error("Failed to list ads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ads")
		return
	}
	if ads == nil {
		ads = []models.AdRecord{}
	}
	writeJSON(w, http.StatusOK, ads)
}

type triggerResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	NewAds    int    `json:"new_ads"`
}

// handleTrigger runs a cycle synchronously. The cycle is detached from the
// request so a dropped client does not abort it halfway.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	result, err := s.runCycle(context.WithoutCancel(r.Context()))
	resp := triggerResponse{Timestamp: s.now().In(s.location).Format(timestampLayout)}

	switch {
	case errors.Is(err, processor.ErrCycleInProgress):
		resp.Status, resp.Message = "error", err.Error()
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		slog.Error("Triggered cycle failed", "error", err)
		resp.Status, resp.Message = "error", err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		resp.Status = "success"
		resp.RunID = result.RunID
		resp.NewAds = len(result.NewAds)
		resp.Message = fmt.Sprintf("Cycle finished: %d new ads found", resp.NewAds)
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) runCycle(ctx context.Context) (result *processor.CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in triggered cycle", "panic", r)
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return s.crawler.RunCycle(ctx)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.Reset(r.Context())
	switch {
	case errors.Is(err, storage.ErrNoBackend):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		slog.Error("Failed to reset ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset seen ads")
	default:
		slog.Info("Seen-ad ledger reset", "deleted", deleted)
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "deleted": deleted})
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
