// Package server exposes the resolver, alert inbox, and policy-change
// webhook over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/alert"
	"github.com/sells-group/tariffwatch/internal/ingest"
	"github.com/sells-group/tariffwatch/internal/model"
	"github.com/sells-group/tariffwatch/internal/store"
)

// Resolver answers tariff rate lookups.
type Resolver interface {
	Resolve(ctx context.Context, code string) model.TariffRate
}

// AlertStore is the alert inbox surface the server reads and updates.
type AlertStore interface {
	ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]model.Alert, error)
	MarkAlertRead(ctx context.Context, alertID string, read bool) error
}

// Processor handles incoming policy changes.
type Processor interface {
	Process(ctx context.Context, pc model.PolicyChange) (ingest.Result, error)
}

// Server is the HTTP API.
type Server struct {
	resolver  Resolver
	alerts    AlertStore
	processor Processor
}

// New creates a Server.
func New(resolver Resolver, alerts AlertStore, processor Processor) *Server {
	return &Server{resolver: resolver, alerts: alerts, processor: processor}
}

// Router builds the chi router with middleware and all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/resolve/{code}", s.handleResolve)
	r.Get("/alerts", s.handleListAlerts)
	r.Post("/alerts/{id}/read", s.handleMarkRead)
	r.Post("/webhook/policy-change", s.handlePolicyChange)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	rate := s.resolver.Resolve(r.Context(), code)
	writeJSON(w, http.StatusOK, rate)
}

// alertView is an Alert plus its rendered headline.
type alertView struct {
	model.Alert
	Headline string `json:"headline"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	alerts, err := s.alerts.ListAlerts(r.Context(), userID, unreadOnly)
	if err != nil {
		zap.L().Error("server: list alerts", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list alerts failed")
		return
	}

	views := make([]alertView, len(alerts))
	for i, a := range alerts {
		views[i] = alertView{Alert: a, Headline: alert.Headline(a)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": views})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	// Default to marking read; {"read": false} flips it back.
	read := true
	if r.ContentLength > 0 {
		var req struct {
			Read *bool `json:"read"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Read != nil {
			read = *req.Read
		}
	}

	if err := s.alerts.MarkAlertRead(r.Context(), alertID, read); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		zap.L().Error("server: mark alert read", zap.String("alert_id", alertID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": alertID, "is_read": read})
}

func (s *Server) handlePolicyChange(w http.ResponseWriter, r *http.Request) {
	pc, err := ingest.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.processor.Process(r.Context(), pc)
	if err != nil {
		zap.L().Error("server: process policy change",
			zap.String("policy_type", string(pc.PolicyType)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	status := http.StatusOK
	if result.Quarantined {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
