package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/services"
)

// GigAPI is the gig workflow; *services.GigService satisfies it.
type GigAPI interface {
	Create(ctx context.Context, user *models.User, in services.CreateGigInput) (*models.Gig, error)
	List(ctx context.Context, f models.GigFilter) ([]*models.Gig, error)
	Detail(ctx context.Context, id uuid.UUID) (*services.GigDetail, error)
	Mine(ctx context.Context, user *models.User) ([]*models.Gig, error)
	Apply(ctx context.Context, user *models.User, gigID, agentID uuid.UUID, in services.ApplyInput) (*models.GigApplication, error)
	Accept(ctx context.Context, user *models.User, gigID, appID uuid.UUID) error
	Submit(ctx context.Context, user *models.User, gigID uuid.UUID, deliverable string) error
	Approve(ctx context.Context, user *models.User, gigID uuid.UUID) error
	RequestRevision(ctx context.Context, user *models.User, gigID uuid.UUID, feedback string) error
	Comment(ctx context.Context, user *models.User, gigID uuid.UUID, agentID *uuid.UUID, content string) (*models.GigComment, error)
	ListComments(ctx context.Context, gigID uuid.UUID) ([]*models.GigComment, error)

	ApplyAsAgent(ctx context.Context, agent *models.Agent, gigID uuid.UUID, in services.ApplyInput) (*models.GigApplication, error)
	SubmitAsAgent(ctx context.Context, agent *models.Agent, gigID uuid.UUID, deliverable string) error
	CommentAsAgent(ctx context.Context, agent *models.Agent, gigID uuid.UUID, content string) (*models.GigComment, error)
	AgentFeed(ctx context.Context, agent *models.Agent, f models.GigFilter) ([]*models.Gig, error)
	AgentMine(ctx context.Context, agent *models.Agent) (*services.AgentGigs, error)
}

// GigHandler serves /api/gigs for signed-in humans.
type GigHandler struct {
	Gigs   GigAPI
	Logger *slog.Logger
}

func (h *GigHandler) List(w http.ResponseWriter, r *http.Request) {
	gigs, err := h.Gigs.List(r.Context(), gigFilter(r))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": gigs})
}

type createGigRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	BudgetUSD   float64  `json:"budget_usd"`
	Skills      []string `json:"skills"`
}

func (h *GigHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGigRequest
	if !decode(w, r, h.Logger, &req, "") {
		return
	}
	gig, err := h.Gigs.Create(r.Context(), middleware.UserFromCtx(r.Context()), services.CreateGigInput{
		Title:       req.Title,
		Description: req.Description,
		BudgetUSD:   req.BudgetUSD,
		Skills:      req.Skills,
	})
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": gig})
}

func (h *GigHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	d, err := h.Gigs.Detail(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": d})
}

func (h *GigHandler) Mine(w http.ResponseWriter, r *http.Request) {
	gigs, err := h.Gigs.Mine(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": gigs})
}

type applyRequest struct {
	AgentID       string `json:"agent_id" validate:"required,uuid"`
	Pitch         string `json:"pitch" validate:"required"`
	EstimatedTime string `json:"estimated_time"`
}

func (h *GigHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	var req applyRequest
	if !decode(w, r, h.Logger, &req, "agent_id and pitch required") {
		return
	}
	app, err := h.Gigs.Apply(r.Context(), middleware.UserFromCtx(r.Context()), id, uuid.MustParse(req.AgentID),
		services.ApplyInput{Pitch: req.Pitch, EstimatedTime: req.EstimatedTime})
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": app})
}

type acceptRequest struct {
	ApplicationID string `json:"application_id" validate:"required,uuid"`
}

func (h *GigHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	var req acceptRequest
	if !decode(w, r, h.Logger, &req, "application_id required") {
		return
	}
	if err := h.Gigs.Accept(r.Context(), middleware.UserFromCtx(r.Context()), id, uuid.MustParse(req.ApplicationID)); err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

type deliverableRequest struct {
	Deliverable string `json:"deliverable"`
}

func (h *GigHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	var req deliverableRequest
	if !decode(w, r, h.Logger, &req, "") {
		return
	}
	if err := h.Gigs.Submit(r.Context(), middleware.UserFromCtx(r.Context()), id, req.Deliverable); err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *GigHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	if err := h.Gigs.Approve(r.Context(), middleware.UserFromCtx(r.Context()), id); err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

type revisionRequest struct {
	Feedback string `json:"feedback"`
}

func (h *GigHandler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	var req revisionRequest
	if !decode(w, r, h.Logger, &req, "") {
		return
	}
	if err := h.Gigs.RequestRevision(r.Context(), middleware.UserFromCtx(r.Context()), id, req.Feedback); err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *GigHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	comments, err := h.Gigs.ListComments(r.Context(), id)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": comments})
}

type commentRequest struct {
	Content string `json:"content"`
	AgentID string `json:"agent_id" validate:"omitempty,uuid"`
}

// Comment posts as the user, or as one of the user's agents when agent_id
// is given.
func (h *GigHandler) Comment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h.Logger, "gig")
	if !ok {
		return
	}
	var req commentRequest
	if !decode(w, r, h.Logger, &req, "invalid agent_id") {
		return
	}
	c, err := h.Gigs.Comment(r.Context(), middleware.UserFromCtx(r.Context()), id, optionalID(req.AgentID), req.Content)
	if err != nil {
		apierr.Write(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": c})
}
