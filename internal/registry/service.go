// Package registry is the agent side of the marketplace: public listings,
// creator-managed agents, self-registered autonomous agents and the claim
// flow that binds them to a human.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/execution"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/vault"
)

const (
	PerPage       = 12
	featuredLimit = 6
	reviewLimit   = 10

	// PlatformFeeRate is the share of creator revenue kept by the platform.
	PlatformFeeRate = 0.10
)

type Service interface {
	ListAgents(ctx context.Context, q models.AgentQuery) (*AgentPage, error)
	Featured(ctx context.Context) ([]*models.Agent, error)
	AgentBySlug(ctx context.Context, slug string) (*AgentProfile, error)
	Categories(ctx context.Context) ([]*models.Category, error)
	Stats(ctx context.Context) (*PublicStats, error)

	MyAgents(ctx context.Context, user *models.User) ([]*models.Agent, error)
	CreateAgent(ctx context.Context, user *models.User, in AgentInput) (*models.Agent, error)
	UpdateAgent(ctx context.Context, user *models.User, id uuid.UUID, in AgentInput) (*models.Agent, error)
	DeleteAgent(ctx context.Context, user *models.User, id uuid.UUID) error
	Earnings(ctx context.Context, user *models.User) (*models.Earnings, error)
	TestConnection(ctx context.Context, in ConnectionTest) execution.ProbeResult

	RegisterAutonomous(ctx context.Context, in RegisterInput) (*Registration, error)
	ClaimInfo(ctx context.Context, token string) (*ClaimInfo, error)
	Claim(ctx context.Context, user *models.User, token string) (*models.Agent, error)
}

// AgentStore is the agent persistence the registry needs.
type AgentStore interface {
	Create(ctx context.Context, a *models.Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetBySlug(ctx context.Context, slug string) (*models.Agent, error)
	GetByClaimToken(ctx context.Context, token string) (*models.Agent, error)
	List(ctx context.Context, q models.AgentQuery) ([]*models.Agent, int, error)
	ListFeatured(ctx context.Context, limit int) ([]*models.Agent, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*models.Agent, error)
	Update(ctx context.Context, a *models.Agent) error
	Delete(ctx context.Context, id uuid.UUID) error
	Claim(ctx context.Context, token string, userID uuid.UUID) (*models.Agent, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
}

type ReviewLister interface {
	ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Review, error)
}

type CreatorPromoter interface {
	PromoteToCreator(ctx context.Context, id uuid.UUID) error
}

type StatsStore interface {
	PublicStats(ctx context.Context) (*PublicStats, error)
	CreatorLedger(ctx context.Context, creatorID uuid.UUID) (*CreatorLedger, error)
}

// Sealer encrypts provider credentials before they are stored.
type Sealer interface {
	Seal(plaintext string) (string, error)
}

// Prober runs creator connection tests.
type Prober interface {
	ProbeWebhook(ctx context.Context, url, secret string) execution.ProbeResult
	ProbeAssistant(ctx context.Context, assistantID string, key vault.Secret) execution.ProbeResult
}

type AgentPage struct {
	Agents     []*models.Agent `json:"data"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
}

type AgentProfile struct {
	*models.Agent
	Reviews  []*models.Review `json:"reviews"`
	Category *models.Category `json:"category"`
}

// AgentInput is the creator-editable part of an agent. On update only
// non-zero fields are applied.
type AgentInput struct {
	Name          string
	Tagline       string
	Description   string
	CategoryID    *uuid.UUID
	Skills        []string
	PriceUSD      float64
	MarketRateUSD float64
	Avatar        string

	Model         string
	ProviderKey   string
	SystemPrompt  string
	KnowledgeBase string
	OutputFormat  string
	Temperature   *float32
	MaxTokens     int
	WebhookURL    string
	WebhookSecret string
	AssistantID   string

	SubscriptionPlans map[models.Tier]models.PlanTerms
}

type ConnectionTest struct {
	Type          string
	URL           string
	WebhookSecret string
	APIKey        string
	AssistantID   string
}

type RegisterInput struct {
	Name   string
	Bio    string
	Skills []string
}

// Registration is returned once; the API key is never retrievable again.
type Registration struct {
	AgentID    uuid.UUID `json:"agent_id"`
	APIKey     string    `json:"api_key"`
	ClaimToken string    `json:"claim_token"`
	ClaimURL   string    `json:"claim_url"`
	Message    string    `json:"message"`
}

type ClaimInfo struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Tagline string    `json:"tagline"`
	Skills  []string  `json:"skills"`
	Avatar  string    `json:"avatar"`
	Claimed bool      `json:"claimed"`
}

// Deps wires a registry service.
type Deps struct {
	Agents   AgentStore
	Reviews  ReviewLister
	Users    CreatorPromoter
	Ledgers  StatsStore
	Sealer   Sealer
	Prober   Prober
	ClaimURL func(token string) string
	Logger   *slog.Logger
}

type service struct {
	Deps
}

func NewService(d Deps) Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.ClaimURL == nil {
		d.ClaimURL = func(token string) string { return "/claim/" + token }
	}
	return &service{Deps: d}
}

var _ Service = (*service)(nil)

var slugSanitize = regexp.MustCompile(`[^a-z0-9]+`)

func slugFromName(name string) string {
	s := slugSanitize.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "agent"
	}
	return s + "-" + uuid.New().String()[:8]
}

func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func internal(err error) error {
	var e *apierr.Error
	if errors.As(err, &e) {
		return err
	}
	return apierr.Wrap(apierr.Internal, "internal error", err)
}

// --- marketplace ---

func (s *service) ListAgents(ctx context.Context, q models.AgentQuery) (*AgentPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	q.PerPage = PerPage
	agents, total, err := s.Agents.List(ctx, q)
	if err != nil {
		return nil, internal(fmt.Errorf("list agents: %w", err))
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	return &AgentPage{
		Agents:     agents,
		Total:      total,
		Page:       q.Page,
		TotalPages: (total + PerPage - 1) / PerPage,
	}, nil
}

func (s *service) Featured(ctx context.Context) ([]*models.Agent, error) {
	agents, err := s.Agents.ListFeatured(ctx, featuredLimit)
	if err != nil {
		return nil, internal(fmt.Errorf("list featured: %w", err))
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	return agents, nil
}

// AgentBySlug loads an agent with its latest reviews and its category.
func (s *service) AgentBySlug(ctx context.Context, slug string) (*AgentProfile, error) {
	agent, err := s.Agents.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apierr.New(apierr.NotFound, "Agent not found")
		}
		return nil, internal(fmt.Errorf("get agent: %w", err))
	}

	var (
		reviews        []*models.Review
		categories     []*models.Category
		errRev, errCat error
	)
	wg := conc.NewWaitGroup()
	wg.Go(func() { reviews, errRev = s.Reviews.ListByAgent(ctx, agent.ID, reviewLimit) })
	wg.Go(func() { categories, errCat = s.Agents.ListCategories(ctx) })
	wg.Wait()
	if err := errors.Join(errRev, errCat); err != nil {
		return nil, internal(fmt.Errorf("load agent profile: %w", err))
	}

	p := &AgentProfile{Agent: agent, Reviews: reviews}
	if p.Reviews == nil {
		p.Reviews = []*models.Review{}
	}
	if agent.CategoryID != nil {
		for _, c := range categories {
			if c.ID == *agent.CategoryID {
				p.Category = c
				break
			}
		}
	}
	return p, nil
}

func (s *service) Categories(ctx context.Context) ([]*models.Category, error) {
	cats, err := s.Agents.ListCategories(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("list categories: %w", err))
	}
	if cats == nil {
		cats = []*models.Category{}
	}
	return cats, nil
}

func (s *service) Stats(ctx context.Context) (*PublicStats, error) {
	st, err := s.Ledgers.PublicStats(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("public stats: %w", err))
	}
	return st, nil
}

// --- creator ---

func (s *service) MyAgents(ctx context.Context, user *models.User) ([]*models.Agent, error) {
	agents, err := s.Agents.ListByCreator(ctx, user.ID)
	if err != nil {
		return nil, internal(fmt.Errorf("list creator agents: %w", err))
	}
	if agents == nil {
		agents = []*models.Agent{}
	}
	return agents, nil
}

func validPlans(plans map[models.Tier]models.PlanTerms) bool {
	for tier, terms := range plans {
		if !tier.Valid() || terms.TasksPerMonth <= 0 || terms.DiscountPct < 0 || terms.DiscountPct >= 100 {
			return false
		}
	}
	return true
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func (s *service) CreateAgent(ctx context.Context, user *models.User, in AgentInput) (*models.Agent, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Tagline = strings.TrimSpace(in.Tagline)
	if in.Name == "" || in.Tagline == "" || in.CategoryID == nil || in.PriceUSD <= 0 {
		return nil, apierr.New(apierr.InvalidArgument, "Name, tagline, category and price required")
	}
	if !validPlans(in.SubscriptionPlans) {
		return nil, apierr.New(apierr.InvalidArgument, "Invalid subscription plan")
	}
	if in.WebhookURL != "" && !validWebhookURL(in.WebhookURL) {
		return nil, apierr.New(apierr.InvalidArgument, "Invalid webhook URL")
	}

	creatorID := user.ID
	a := &models.Agent{
		ID:                uuid.New(),
		CreatorID:         &creatorID,
		CategoryID:        in.CategoryID,
		Name:              in.Name,
		Slug:              slugFromName(in.Name),
		Tagline:           in.Tagline,
		Description:       in.Description,
		Avatar:            in.Avatar,
		Skills:            normalizeSkills(in.Skills),
		PriceUSD:          in.PriceUSD,
		MarketRateUSD:     in.MarketRateUSD,
		Status:            models.AgentStatusActive,
		Claimed:           true,
		SubscriptionPlans: in.SubscriptionPlans,
	}
	if a.MarketRateUSD <= 0 {
		a.MarketRateUSD = in.PriceUSD * 10
	}
	if a.Avatar == "" {
		a.Avatar = "🤖"
	}
	if err := s.applyExecution(a, in); err != nil {
		return nil, err
	}

	if user.Role != models.UserRoleCreator {
		if err := s.Users.PromoteToCreator(ctx, user.ID); err != nil {
			return nil, internal(fmt.Errorf("promote creator: %w", err))
		}
	}
	if err := s.Agents.Create(ctx, a); err != nil {
		return nil, internal(fmt.Errorf("create agent: %w", err))
	}
	s.Logger.Info("agent created", "agent_id", a.ID, "creator_id", user.ID, "backend", a.Backend().Kind())
	return a, nil
}

// applyExecution copies non-empty execution settings onto a, sealing the
// provider key.
func (s *service) applyExecution(a *models.Agent, in AgentInput) error {
	e := &a.Execution
	if in.Model != "" {
		e.Model = in.Model
	}
	if in.ProviderKey != "" {
		sealed, err := s.Sealer.Seal(in.ProviderKey)
		if err != nil {
			return internal(fmt.Errorf("seal provider key: %w", err))
		}
		e.ProviderKeyEncrypted = sealed
	}
	if in.SystemPrompt != "" {
		e.SystemPrompt = in.SystemPrompt
	}
	if in.KnowledgeBase != "" {
		e.KnowledgeBase = in.KnowledgeBase
	}
	if in.OutputFormat != "" {
		e.OutputFormat = in.OutputFormat
	}
	if in.Temperature != nil {
		e.Temperature = in.Temperature
	}
	if in.MaxTokens > 0 {
		e.MaxTokens = in.MaxTokens
	}
	if in.WebhookURL != "" {
		e.WebhookURL = in.WebhookURL
	}
	if in.WebhookSecret != "" {
		e.WebhookSecret = in.WebhookSecret
	}
	if in.AssistantID != "" {
		e.AssistantID = in.AssistantID
	}
	return nil
}

func (s *service) ownedAgent(ctx context.Context, user *models.User, id uuid.UUID) (*models.Agent, error) {
	a, err := s.Agents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apierr.New(apierr.NotFound, "Agent not found")
		}
		return nil, internal(fmt.Errorf("get agent: %w", err))
	}
	if !a.OwnedBy(user.ID) {
		return nil, apierr.New(apierr.NotFound, "Agent not found")
	}
	return a, nil
}

func (s *service) UpdateAgent(ctx context.Context, user *models.User, id uuid.UUID, in AgentInput) (*models.Agent, error) {
	a, err := s.ownedAgent(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if in.PriceUSD < 0 || in.MarketRateUSD < 0 {
		return nil, apierr.New(apierr.InvalidArgument, "Price must be positive")
	}
	if !validPlans(in.SubscriptionPlans) {
		return nil, apierr.New(apierr.InvalidArgument, "Invalid subscription plan")
	}
	if in.WebhookURL != "" && !validWebhookURL(in.WebhookURL) {
		return nil, apierr.New(apierr.InvalidArgument, "Invalid webhook URL")
	}

	if v := strings.TrimSpace(in.Name); v != "" {
		a.Name = v
	}
	if v := strings.TrimSpace(in.Tagline); v != "" {
		a.Tagline = v
	}
	if in.Description != "" {
		a.Description = in.Description
	}
	if in.CategoryID != nil {
		a.CategoryID = in.CategoryID
	}
	if in.Skills != nil {
		a.Skills = normalizeSkills(in.Skills)
	}
	if in.PriceUSD > 0 {
		a.PriceUSD = in.PriceUSD
	}
	if in.MarketRateUSD > 0 {
		a.MarketRateUSD = in.MarketRateUSD
	}
	if in.Avatar != "" {
		a.Avatar = in.Avatar
	}
	if in.SubscriptionPlans != nil {
		a.SubscriptionPlans = in.SubscriptionPlans
	}
	if err := s.applyExecution(a, in); err != nil {
		return nil, err
	}

	if err := s.Agents.Update(ctx, a); err != nil {
		return nil, internal(fmt.Errorf("update agent: %w", err))
	}
	return a, nil
}

func (s *service) DeleteAgent(ctx context.Context, user *models.User, id uuid.UUID) error {
	if _, err := s.ownedAgent(ctx, user, id); err != nil {
		return err
	}
	if err := s.Agents.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrStateChanged) {
		return internal(fmt.Errorf("delete agent: %w", err))
	}
	s.Logger.Info("agent deleted", "agent_id", id, "creator_id", user.ID)
	return nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Earnings sums completed task revenue and subscription payments across the
// creator's agents, net of the platform fee.
func (s *service) Earnings(ctx context.Context, user *models.User) (*models.Earnings, error) {
	ledger, err := s.Ledgers.CreatorLedger(ctx, user.ID)
	if err != nil {
		return nil, internal(fmt.Errorf("creator ledger: %w", err))
	}
	e := &models.Earnings{Tasks: ledger.Tasks, SubscriptionRevenue: ledger.SubscriptionRevenue}
	if e.Tasks == nil {
		e.Tasks = []*models.Task{}
	}
	var taskTotal float64
	for _, t := range ledger.Tasks {
		switch t.Status {
		case models.TaskStatusCompleted:
			taskTotal += t.PriceUSD
			e.Completed++
		case models.TaskStatusPending, models.TaskStatusInProgress:
			e.Pending++
		}
	}
	e.Total = round2(taskTotal + ledger.SubscriptionRevenue)
	e.PlatformFee = round2(e.Total * PlatformFeeRate)
	e.NetEarnings = round2(e.Total - e.PlatformFee)
	return e, nil
}

func (s *service) TestConnection(ctx context.Context, in ConnectionTest) execution.ProbeResult {
	switch in.Type {
	case "webhook":
		if in.URL == "" {
			return execution.ProbeResult{Message: "URL is required"}
		}
		if !validWebhookURL(in.URL) {
			return execution.ProbeResult{Message: "Invalid webhook URL"}
		}
		return s.Prober.ProbeWebhook(ctx, in.URL, in.WebhookSecret)
	case "assistant":
		if in.AssistantID == "" || in.APIKey == "" {
			return execution.ProbeResult{Message: "Assistant ID and API key required"}
		}
		return s.Prober.ProbeAssistant(ctx, in.AssistantID, vault.NewSecret(in.APIKey))
	default:
		return execution.ProbeResult{Message: "Invalid type"}
	}
}

// --- autonomous agents ---

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RegisterAutonomous creates an unowned agent and returns its API key and
// claim link.
func (s *service) RegisterAutonomous(ctx context.Context, in RegisterInput) (*Registration, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Bio = strings.TrimSpace(in.Bio)
	skills := normalizeSkills(in.Skills)
	if in.Name == "" || in.Bio == "" || len(skills) == 0 {
		return nil, apierr.New(apierr.InvalidArgument, "name, bio, and skills[] are required")
	}

	keyHex, err := randomHex(16)
	if err != nil {
		return nil, internal(fmt.Errorf("generate api key: %w", err))
	}
	claimToken, err := randomHex(24)
	if err != nil {
		return nil, internal(fmt.Errorf("generate claim token: %w", err))
	}
	apiKey := models.AgentAPIKeyPrefix + keyHex
	keyHash := middleware.HashAPIKey(apiKey)

	a := &models.Agent{
		ID:           uuid.New(),
		Name:         in.Name,
		Slug:         slugFromName(in.Name),
		Tagline:      in.Bio,
		Description:  in.Bio,
		Avatar:       "https://api.dicebear.com/7.x/bottts/svg?seed=" + url.QueryEscape(in.Name),
		Skills:       skills,
		Status:       models.AgentStatusActive,
		IsAutonomous: true,
		ClaimToken:   &claimToken,
		APIKeyHash:   &keyHash,
	}
	if err := s.Agents.Create(ctx, a); err != nil {
		return nil, internal(fmt.Errorf("register agent: %w", err))
	}
	s.Logger.Info("autonomous agent registered", "agent_id", a.ID)
	return &Registration{
		AgentID:    a.ID,
		APIKey:     apiKey,
		ClaimToken: claimToken,
		ClaimURL:   s.ClaimURL(claimToken),
		Message:    "Save your API key. It will not be shown again.",
	}, nil
}

func (s *service) ClaimInfo(ctx context.Context, token string) (*ClaimInfo, error) {
	if token == "" {
		return nil, apierr.New(apierr.InvalidArgument, "token required")
	}
	a, err := s.Agents.GetByClaimToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apierr.New(apierr.NotFound, "Not found")
		}
		return nil, internal(fmt.Errorf("get by claim token: %w", err))
	}
	return &ClaimInfo{ID: a.ID, Name: a.Name, Tagline: a.Tagline, Skills: a.Skills, Avatar: a.Avatar, Claimed: a.Claimed}, nil
}

// Claim binds an autonomous agent to user. Only the first claim succeeds.
func (s *service) Claim(ctx context.Context, user *models.User, token string) (*models.Agent, error) {
	if token == "" {
		return nil, apierr.New(apierr.InvalidArgument, "claim_token required")
	}
	a, err := s.Agents.GetByClaimToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apierr.New(apierr.NotFound, "Invalid claim token")
		}
		return nil, internal(fmt.Errorf("get by claim token: %w", err))
	}
	if a.Claimed {
		return nil, apierr.New(apierr.Conflict, "Agent already claimed")
	}
	claimed, err := s.Agents.Claim(ctx, token, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return nil, apierr.New(apierr.Conflict, "Agent already claimed")
		}
		return nil, internal(fmt.Errorf("claim agent: %w", err))
	}
	if user.Role != models.UserRoleCreator {
		if err := s.Users.PromoteToCreator(ctx, user.ID); err != nil {
			s.Logger.Warn("promote creator after claim", "user_id", user.ID, "error", err)
		}
	}
	s.Logger.Info("agent claimed", "agent_id", claimed.ID, "user_id", user.ID)
	return claimed, nil
}
