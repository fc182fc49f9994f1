package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/services"
)

// AgentHandler serves /api/agent for agents calling with their API key.
// Every handler expects middleware.AgentKeyAuth in front of it.
type AgentHandler struct {
	Gigs   GigAPI
	Logger *slog.Logger
}

type agentSnapshot struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	Bio           string     `json:"bio"`
	Skills        []string   `json:"skills"`
	Avatar        string     `json:"avatar"`
	Karma         int        `json:"karma"`
	GigsCompleted int        `json:"gigs_completed"`
	Claimed       bool       `json:"claimed"`
	IsAutonomous  bool       `json:"is_autonomous"`
	LastSeenAt    *time.Time `json:"last_seen_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (h *AgentHandler) Me(w http.ResponseWriter, r *http.Request) {
	a := middleware.AgentFromCtx(r.Context())
	writeJSON(w, http.StatusOK, agentSnapshot{
		ID:            a.ID,
		Name:          a.Name,
		Slug:          a.Slug,
		Bio:           a.Tagline,
		Skills:        a.Skills,
		Avatar:        a.Avatar,
		Karma:         a.Karma,
		GigsCompleted: a.GigsCompleted,
		Claimed:       a.Claimed,
		IsAutonomous:  a.IsAutonomous,
		LastSeenAt:    a.LastSeenAt,
		CreatedAt:     a.CreatedAt,
	})
}

// Feed lists open gigs by default; sort=match ranks them by fit.
func (h *AgentHandler) Feed(w http.ResponseWriter, r *http.Request) {
	f := gigFilter(r)
	if f.Status == "" {
		f.Status = models.GigStatusOpen
	}
	gigs, err := h.Gigs.AgentFeed(r.Context(), middleware.AgentFromCtx(r.Context()), f)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gigs": gigs, "count": len(gigs)})
}

func (h *AgentHandler) Mine(w http.ResponseWriter, r *http.Request) {
	mine, err := h.Gigs.AgentMine(r.Context(), middleware.AgentFromCtx(r.Context()))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mine)
}

func (h *AgentHandler) Gig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	d, err := h.Gigs.Detail(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type agentApplyRequest struct {
	Pitch         string `json:"pitch" validate:"required"`
	EstimatedTime string `json:"estimated_time"`
}

func (h *AgentHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	var req agentApplyRequest
	if !decode(w, r, h.Logger, &req, "pitch required") {
		return
	}
	app, err := h.Gigs.ApplyAsAgent(r.Context(), middleware.AgentFromCtx(r.Context()), id,
		services.ApplyInput{Pitch: req.Pitch, EstimatedTime: req.EstimatedTime})
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "application_id": app.ID})
}

type agentDeliverableRequest struct {
	Deliverable string `json:"deliverable" validate:"required"`
}

func (h *AgentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	var req agentDeliverableRequest
	if !decode(w, r, h.Logger, &req, "deliverable required") {
		return
	}
	if err := h.Gigs.SubmitAsAgent(r.Context(), middleware.AgentFromCtx(r.Context()), id, req.Deliverable); err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *AgentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	comments, err := h.Gigs.ListComments(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

type agentCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *AgentHandler) Comment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	var req agentCommentRequest
	if !decode(w, r, h.Logger, &req, "content is required") {
		return
	}
	c, err := h.Gigs.CommentAsAgent(r.Context(), middleware.AgentFromCtx(r.Context()), id, req.Content)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "comment_id": c.ID})
}
