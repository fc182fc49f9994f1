package registry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
)

// AgentRequest is the creator payload for creating or editing an agent.
type AgentRequest struct {
	Name          string   `json:"name"`
	Tagline       string   `json:"tagline"`
	Description   string   `json:"description"`
	CategoryID    string   `json:"category_id" validate:"omitempty,uuid"`
	Skills        []string `json:"skills"`
	PriceUSD      float64  `json:"price_usd" validate:"gte=0"`
	MarketRateUSD float64  `json:"market_rate_usd" validate:"gte=0"`
	Avatar        string   `json:"avatar"`

	Model         string   `json:"model"`
	APIKey        string   `json:"api_key"`
	SystemPrompt  string   `json:"system_prompt"`
	KnowledgeBase string   `json:"knowledge_base"`
	OutputFormat  string   `json:"output_format"`
	Temperature   *float32 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens     int      `json:"max_tokens" validate:"gte=0"`
	WebhookURL    string   `json:"webhook_url" validate:"omitempty,url"`
	WebhookSecret string   `json:"webhook_secret"`
	AssistantID   string   `json:"assistant_id"`

	SubscriptionPlans map[models.Tier]models.PlanTerms `json:"subscription_plans"`
}

func (r AgentRequest) input() AgentInput {
	in := AgentInput{
		Name:              r.Name,
		Tagline:           r.Tagline,
		Description:       r.Description,
		Skills:            r.Skills,
		PriceUSD:          r.PriceUSD,
		MarketRateUSD:     r.MarketRateUSD,
		Avatar:            r.Avatar,
		Model:             r.Model,
		ProviderKey:       r.APIKey,
		SystemPrompt:      r.SystemPrompt,
		KnowledgeBase:     r.KnowledgeBase,
		OutputFormat:      r.OutputFormat,
		Temperature:       r.Temperature,
		MaxTokens:         r.MaxTokens,
		WebhookURL:        r.WebhookURL,
		WebhookSecret:     r.WebhookSecret,
		AssistantID:       r.AssistantID,
		SubscriptionPlans: r.SubscriptionPlans,
	}
	if id, err := uuid.Parse(r.CategoryID); err == nil {
		in.CategoryID = &id
	}
	return in
}

type ConnectionTestRequest struct {
	Type          string `json:"type"`
	URL           string `json:"url"`
	WebhookSecret string `json:"webhook_secret"`
	APIKey        string `json:"api_key"`
	AssistantID   string `json:"assistant_id"`
}

type RegisterRequest struct {
	Name   string   `json:"name" validate:"required"`
	Bio    string   `json:"bio" validate:"required"`
	Skills []string `json:"skills" validate:"required,min=1"`
}

type ClaimRequest struct {
	ClaimToken string `json:"claim_token" validate:"required"`
}

type Handler struct {
	svc      Service
	log      *slog.Logger
	validate *validator.Validate
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log, validate: validator.New()}
}

// --- marketplace ---

func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	res, err := h.svc.ListAgents(r.Context(), models.AgentQuery{
		Search:   strings.TrimSpace(q.Get("q")),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Page:     page,
	})
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Featured(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.Featured(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": agents})
}

func (h *Handler) AgentBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.AgentBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": p})
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cats})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": st})
}

// --- creator ---

func (h *Handler) MyAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.MyAgents(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": agents})
}

func (h *Handler) decodeAgent(w http.ResponseWriter, r *http.Request) (AgentInput, bool) {
	var req AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return AgentInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "Invalid agent fields"))
		return AgentInput{}, false
	}
	return req.input(), true
}

func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeAgent(w, r)
	if !ok {
		return
	}
	a, err := h.svc.CreateAgent(r.Context(), middleware.UserFromCtx(r.Context()), in)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": a})
}

func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeAgent(w, r)
	if !ok {
		return
	}
	a, err := h.svc.UpdateAgent(r.Context(), middleware.UserFromCtx(r.Context()), id, in)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": a})
}

func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.agentID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteAgent(r.Context(), middleware.UserFromCtx(r.Context()), id); err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Earnings(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// TestConnection always answers 200; failures are reported in the body.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req ConnectionTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return
	}
	res := h.svc.TestConnection(r.Context(), ConnectionTest{
		Type:          req.Type,
		URL:           req.URL,
		WebhookSecret: req.WebhookSecret,
		APIKey:        req.APIKey,
		AssistantID:   req.AssistantID,
	})
	writeJSON(w, http.StatusOK, res)
}

// --- autonomous agents ---

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "name, bio, and skills[] are required"))
		return
	}
	reg, err := h.svc.RegisterAutonomous(r.Context(), RegisterInput{Name: req.Name, Bio: req.Bio, Skills: req.Skills})
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (h *Handler) ClaimInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ClaimInfo(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": info})
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "claim_token required"))
		return
	}
	a, err := h.svc.Claim(r.Context(), middleware.UserFromCtx(r.Context()), req.ClaimToken)
	if err != nil {
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Agent claimed successfully", "agent": a})
}

func (h *Handler) agentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.Write(w, h.log, apierr.New(apierr.InvalidArgument, "invalid agent id"))
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
