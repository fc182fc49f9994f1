package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

type AgentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

const agentColumns = `a.id, a.creator_id, a.category_id, a.name, a.slug, a.tagline, a.description, a.avatar, a.skills,
	a.price_usd, a.market_rate_usd, a.status, a.featured, a.is_autonomous, a.claimed, a.claim_token, a.api_key_hash,
	a.last_seen_at, a.avg_rating, a.total_tasks, a.total_reviews, a.karma, a.gigs_completed,
	a.model, a.provider_key_encrypted, a.system_prompt, a.knowledge_base, a.output_format, a.temperature, a.max_tokens,
	a.webhook_url, a.webhook_secret, a.assistant_id, a.subscription_plans, a.created_at, a.updated_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	e := &a.Execution
	err := row.Scan(&a.ID, &a.CreatorID, &a.CategoryID, &a.Name, &a.Slug, &a.Tagline, &a.Description, &a.Avatar, &a.Skills,
		&a.PriceUSD, &a.MarketRateUSD, &a.Status, &a.Featured, &a.IsAutonomous, &a.Claimed, &a.ClaimToken, &a.APIKeyHash,
		&a.LastSeenAt, &a.AvgRating, &a.TotalTasks, &a.TotalReviews, &a.Karma, &a.GigsCompleted,
		&e.Model, &e.ProviderKeyEncrypted, &e.SystemPrompt, &e.KnowledgeBase, &e.OutputFormat, &e.Temperature, &e.MaxTokens,
		&e.WebhookURL, &e.WebhookSecret, &e.AssistantID, &a.SubscriptionPlans, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func collectAgents(rows pgx.Rows) ([]*models.Agent, error) {
	defer rows.Close()
	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AgentRepo) Create(ctx context.Context, a *models.Agent) error {
	e := a.Execution
	plans := a.SubscriptionPlans
	if plans == nil {
		plans = map[models.Tier]models.PlanTerms{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO agents (id, creator_id, category_id, name, slug, tagline, description, avatar, skills, price_usd,
			market_rate_usd, status, featured, is_autonomous, claimed, claim_token, api_key_hash,
			model, provider_key_encrypted, system_prompt, knowledge_base, output_format, temperature, max_tokens,
			webhook_url, webhook_secret, assistant_id, subscription_plans)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		RETURNING created_at, updated_at
	`, a.ID, a.CreatorID, a.CategoryID, a.Name, a.Slug, a.Tagline, a.Description, a.Avatar, a.Skills, a.PriceUSD,
		a.MarketRateUSD, a.Status, a.Featured, a.IsAutonomous, a.Claimed, a.ClaimToken, a.APIKeyHash,
		e.Model, e.ProviderKeyEncrypted, e.SystemPrompt, e.KnowledgeBase, e.OutputFormat, e.Temperature, e.MaxTokens,
		e.WebhookURL, e.WebhookSecret, e.AssistantID, plans).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translate(err)
}

func (r *AgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents a WHERE a.id = $1`, id))
}

func (r *AgentRepo) GetBySlug(ctx context.Context, slug string) (*models.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents a WHERE a.slug = $1`, slug))
}

func (r *AgentRepo) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents a WHERE a.api_key_hash = $1`, hash))
}

func (r *AgentRepo) GetByClaimToken(ctx context.Context, token string) (*models.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents a WHERE a.claim_token = $1`, token))
}

// GetProviderKey returns the sealed provider credential of an agent.
func (r *AgentRepo) GetProviderKey(ctx context.Context, id uuid.UUID) (string, error) {
	var sealed string
	err := r.pool.QueryRow(ctx, `SELECT provider_key_encrypted FROM agents WHERE id = $1`, id).Scan(&sealed)
	return sealed, translate(err)
}

// List returns one page of active agents and the total match count.
func (r *AgentRepo) List(ctx context.Context, q models.AgentQuery) ([]*models.Agent, int, error) {
	where := []string{"a.status = 'active'"}
	var args []any
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		where = append(where, fmt.Sprintf("(a.name ILIKE $%d OR a.tagline ILIKE $%d OR a.description ILIKE $%d)", len(args), len(args), len(args)))
	}
	if q.Category != "" {
		args = append(args, q.Category)
		where = append(where, fmt.Sprintf("a.category_id = (SELECT id FROM categories WHERE slug = $%d)", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM agents a WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "a.total_tasks DESC"
	switch q.Sort {
	case "rating":
		order = "a.avg_rating DESC"
	case "price_low":
		order = "a.price_usd ASC"
	case "price_high":
		order = "a.price_usd DESC"
	case "newest":
		order = "a.created_at DESC"
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 12
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM agents a WHERE %s ORDER BY a.featured DESC, %s LIMIT $%d OFFSET $%d`,
		agentColumns, cond, order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	agents, err := collectAgents(rows)
	return agents, total, err
}

func (r *AgentRepo) ListFeatured(ctx context.Context, limit int) ([]*models.Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+agentColumns+` FROM agents a
		WHERE a.status = 'active' AND a.featured
		ORDER BY a.avg_rating DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectAgents(rows)
}

func (r *AgentRepo) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*models.Agent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents a WHERE a.creator_id = $1 ORDER BY a.created_at DESC`, creatorID)
	if err != nil {
		return nil, err
	}
	return collectAgents(rows)
}

// Update writes the creator-editable profile and execution configuration.
func (r *AgentRepo) Update(ctx context.Context, a *models.Agent) error {
	e := a.Execution
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents SET name = $2, tagline = $3, description = $4, avatar = $5, skills = $6, price_usd = $7,
			market_rate_usd = $8, category_id = $9, model = $10, provider_key_encrypted = $11, system_prompt = $12,
			knowledge_base = $13, output_format = $14, temperature = $15, max_tokens = $16, webhook_url = $17,
			webhook_secret = $18, assistant_id = $19, subscription_plans = $20, updated_at = now()
		WHERE id = $1
	`, a.ID, a.Name, a.Tagline, a.Description, a.Avatar, a.Skills, a.PriceUSD,
		a.MarketRateUSD, a.CategoryID, e.Model, e.ProviderKeyEncrypted, e.SystemPrompt,
		e.KnowledgeBase, e.OutputFormat, e.Temperature, e.MaxTokens, e.WebhookURL,
		e.WebhookSecret, e.AssistantID, a.SubscriptionPlans)
	return affected(tag, err)
}

func (r *AgentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id))
}

func (r *AgentRepo) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE agents SET last_seen_at = now() WHERE id = $1`, id)
	return err
}

// Claim binds an unclaimed agent to userID. A second claim of the same token
// returns ErrStateChanged.
func (r *AgentRepo) Claim(ctx context.Context, token string, userID uuid.UUID) (*models.Agent, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE agents SET creator_id = $2, claimed = TRUE, updated_at = now()
		WHERE claim_token = $1 AND NOT claimed
	`, token, userID)
	if err := affected(tag, err); err != nil {
		return nil, err
	}
	return r.GetByClaimToken(ctx, token)
}

func (r *AgentRepo) IncrementTotalTasks(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE agents SET total_tasks = total_tasks + 1 WHERE id = $1`, id)
	return err
}

func (r *AgentRepo) UpdateRatingStats(ctx context.Context, tx pgx.Tx, id uuid.UUID, avg float64, count int) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE agents SET avg_rating = $2, total_reviews = $3, updated_at = now() WHERE id = $1
	`, id, avg, count))
}

// CreditGigCompletion bumps the completion counter and karma of an agent.
func (r *AgentRepo) CreditGigCompletion(ctx context.Context, tx pgx.Tx, id uuid.UUID, karma int) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE agents SET gigs_completed = gigs_completed + 1, karma = karma + $2, updated_at = now() WHERE id = $1
	`, id, karma))
}

func (r *AgentRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	return affected(r.pool.Exec(ctx, `UPDATE agents SET status = $2, updated_at = now() WHERE id = $1`, id, status))
}

func (r *AgentRepo) SetFeatured(ctx context.Context, id uuid.UUID, featured bool) error {
	return affected(r.pool.Exec(ctx, `UPDATE agents SET featured = $2, updated_at = now() WHERE id = $1`, id, featured))
}

func (r *AgentRepo) ListCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, icon FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Icon); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
