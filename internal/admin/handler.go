package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
)

type ModerateRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject feature unfeature delete"`
}

type Handler struct {
	svc      *Service
	isAdmin  func(context.Context, *models.User) bool
	log      *slog.Logger
	validate *validator.Validate
}

// NewHandler serves the admin endpoints. isAdmin backs the unauthenticated
// check endpoint; the other routes sit behind middleware.RequireAdmin.
func NewHandler(svc *Service, isAdmin func(context.Context, *models.User) bool, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, isAdmin: isAdmin, log: log, validate: validator.New()}
}

// Check reports whether the caller is an admin; it never fails.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"isAdmin": u != nil && h.isAdmin(r.Context(), u)})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) Agents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.Agents(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(v string) (*time.Time, bool) {
	if v == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, true
		}
	}
	return nil, false
}

func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, okFrom := parseTime(q.Get("from"))
	to, okTo := parseTime(q.Get("to"))
	if !okFrom || !okTo {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "Invalid date range"))
		return
	}
	tasks, err := h.svc.Tasks(r.Context(), models.TaskFilter{Status: q.Get("status"), From: from, To: to})
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) ModerateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid agent id"))
		return
	}
	var req ModerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "Invalid action"))
		return
	}
	a, err := h.svc.Moderate(r.Context(), middleware.UserFromCtx(r.Context()), id, req.Action)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": a})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
