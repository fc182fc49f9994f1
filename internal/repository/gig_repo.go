package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upmolt/backend/internal/models"
)

type GigRepo struct {
	pool *pgxpool.Pool
}

func NewGigRepo(pool *pgxpool.Pool) *GigRepo {
	return &GigRepo{pool: pool}
}

const gigColumns = `g.id, g.user_id, g.title, g.description, g.budget_usd, g.skills, g.status, g.assigned_agent_id,
	g.deliverable, g.deliverable_submitted_at, g.completed_at, g.created_at,
	(SELECT count(*) FROM gig_applications ga WHERE ga.gig_id = g.id)`

func scanGig(row pgx.Row, extra ...any) (*models.Gig, error) {
	var g models.Gig
	dest := []any{&g.ID, &g.UserID, &g.Title, &g.Description, &g.BudgetUSD, &g.Skills, &g.Status, &g.AssignedAgentID,
		&g.Deliverable, &g.DeliverableSubmittedAt, &g.CompletedAt, &g.CreatedAt, &g.ApplicationCount}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func collectGigs(rows pgx.Rows) ([]*models.Gig, error) {
	defer rows.Close()
	var out []*models.Gig
	for rows.Next() {
		g, err := scanGig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GigRepo) Create(ctx context.Context, g *models.Gig) error {
	skills := g.Skills
	if skills == nil {
		skills = []string{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO gigs (id, user_id, title, description, budget_usd, skills, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, g.ID, g.UserID, g.Title, g.Description, g.BudgetUSD, skills, g.Status).Scan(&g.CreatedAt)
	return translate(err)
}

func (r *GigRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	return scanGig(r.pool.QueryRow(ctx, `SELECT `+gigColumns+` FROM gigs g WHERE g.id = $1`, id))
}

// List returns gigs matching f. Skills match on overlap with the gig's skills.
func (r *GigRepo) List(ctx context.Context, f models.GigFilter) ([]*models.Gig, error) {
	var where []string
	var args []any
	status := f.Status
	if status == "" {
		status = models.GigStatusOpen
	}
	if status != "all" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("g.status = $%d", len(args)))
	}
	if len(f.Skills) > 0 {
		args = append(args, f.Skills)
		where = append(where, fmt.Sprintf("g.skills && $%d", len(args)))
	}
	if f.MinBudget > 0 {
		args = append(args, f.MinBudget)
		where = append(where, fmt.Sprintf("g.budget_usd >= $%d", len(args)))
	}
	if f.MaxBudget > 0 {
		args = append(args, f.MaxBudget)
		where = append(where, fmt.Sprintf("g.budget_usd <= $%d", len(args)))
	}
	if f.ExcludeAppliedBy != nil {
		args = append(args, *f.ExcludeAppliedBy)
		where = append(where, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM gig_applications ga WHERE ga.gig_id = g.id AND ga.agent_id = $%d)", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = "WHERE " + strings.Join(where, " AND ")
	}
	order := "g.created_at DESC"
	switch f.Sort {
	case "budget_high":
		order = "g.budget_usd DESC"
	case "budget_low":
		order = "g.budget_usd ASC"
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM gigs g %s ORDER BY %s LIMIT $%d`,
		gigColumns, cond, order, len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectGigs(rows)
}

func (r *GigRepo) ListByPoster(ctx context.Context, userID uuid.UUID) ([]*models.Gig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+gigColumns+` FROM gigs g WHERE g.user_id = $1 ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectGigs(rows)
}

// ListAssigned returns gigs currently or previously assigned to the agent.
func (r *GigRepo) ListAssigned(ctx context.Context, agentID uuid.UUID) ([]*models.Gig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+gigColumns+` FROM gigs g WHERE g.assigned_agent_id = $1 ORDER BY g.created_at DESC
	`, agentID)
	if err != nil {
		return nil, err
	}
	return collectGigs(rows)
}

// Assign moves an open gig to in_progress under agentID. Returns
// ErrStateChanged if the gig is no longer open.
func (r *GigRepo) Assign(ctx context.Context, tx pgx.Tx, gigID, agentID uuid.UUID) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE gigs SET status = 'in_progress', assigned_agent_id = $2
		WHERE id = $1 AND status = 'open'
	`, gigID, agentID))
}

func (r *GigRepo) SubmitDeliverable(ctx context.Context, gigID, agentID uuid.UUID, deliverable string) error {
	return affected(r.pool.Exec(ctx, `
		UPDATE gigs SET status = 'submitted', deliverable = $3, deliverable_submitted_at = now()
		WHERE id = $1 AND assigned_agent_id = $2 AND status = 'in_progress'
	`, gigID, agentID, deliverable))
}

func (r *GigRepo) Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE gigs SET status = 'completed', completed_at = now() WHERE id = $1 AND status = 'submitted'
	`, id))
}

// Reopen sends a submitted gig back to the assigned agent.
func (r *GigRepo) Reopen(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE gigs SET status = 'in_progress' WHERE id = $1 AND status = 'submitted'
	`, id))
}

// -----------------------------------------------------------------------------
// Applications
// -----------------------------------------------------------------------------

type ApplicationRepo struct {
	pool *pgxpool.Pool
}

func NewApplicationRepo(pool *pgxpool.Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool}
}

const applicationColumns = `ga.id, ga.gig_id, ga.agent_id, ga.pitch, ga.estimated_time, ga.status, ga.created_at`

func scanApplication(row pgx.Row, extra ...any) (*models.GigApplication, error) {
	var a models.GigApplication
	dest := []any{&a.ID, &a.GigID, &a.AgentID, &a.Pitch, &a.EstimatedTime, &a.Status, &a.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// Create inserts an application while the gig is still open. The gig row is
// share-locked, so a concurrent Assign either sees the new row in Resolve or
// makes this insert match nothing (ErrStateChanged). A second application by
// the same agent to the same gig returns ErrDuplicate.
func (r *ApplicationRepo) Create(ctx context.Context, a *models.GigApplication) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO gig_applications (id, gig_id, agent_id, pitch, estimated_time, status)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM gigs WHERE id = $2 AND status = 'open' FOR SHARE)
		RETURNING created_at
	`, a.ID, a.GigID, a.AgentID, a.Pitch, a.EstimatedTime, a.Status).Scan(&a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrStateChanged
	}
	return translate(err)
}

func (r *ApplicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GigApplication, error) {
	return scanApplication(r.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM gig_applications ga WHERE ga.id = $1`, id))
}

func (r *ApplicationRepo) ListByGig(ctx context.Context, gigID uuid.UUID) ([]*models.GigApplication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+applicationColumns+`, a.name, a.slug, a.avg_rating
		FROM gig_applications ga JOIN agents a ON a.id = ga.agent_id
		WHERE ga.gig_id = $1
		ORDER BY ga.created_at
	`, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.GigApplication
	for rows.Next() {
		var name, slug string
		var rating float64
		app, err := scanApplication(rows, &name, &slug, &rating)
		if err != nil {
			return nil, err
		}
		app.AgentName, app.AgentSlug, app.AgentRating = name, slug, rating
		out = append(out, app)
	}
	return out, rows.Err()
}

// ListByAgent returns the agent's applications with their gigs attached.
func (r *ApplicationRepo) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.GigApplication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+applicationColumns+`, g.id, g.title, g.budget_usd, g.status
		FROM gig_applications ga JOIN gigs g ON g.id = ga.gig_id
		WHERE ga.agent_id = $1
		ORDER BY ga.created_at DESC
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.GigApplication
	for rows.Next() {
		g := &models.Gig{}
		app, err := scanApplication(rows, &g.ID, &g.Title, &g.BudgetUSD, &g.Status)
		if err != nil {
			return nil, err
		}
		app.Gig = g
		out = append(out, app)
	}
	return out, rows.Err()
}

// Resolve accepts appID and rejects every other application to gigID in a
// single statement.
func (r *ApplicationRepo) Resolve(ctx context.Context, tx pgx.Tx, gigID, appID uuid.UUID) error {
	return affected(on(r.pool, tx).Exec(ctx, `
		UPDATE gig_applications
		SET status = CASE WHEN id = $2 THEN 'accepted' ELSE 'rejected' END
		WHERE gig_id = $1
	`, gigID, appID))
}

// -----------------------------------------------------------------------------
// Comments
// -----------------------------------------------------------------------------

type CommentRepo struct {
	pool *pgxpool.Pool
}

func NewCommentRepo(pool *pgxpool.Pool) *CommentRepo {
	return &CommentRepo{pool: pool}
}

func (r *CommentRepo) Create(ctx context.Context, tx pgx.Tx, c *models.GigComment) error {
	err := on(r.pool, tx).QueryRow(ctx, `
		INSERT INTO gig_comments (id, gig_id, user_id, agent_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.GigID, c.UserID, c.AgentID, c.Content).Scan(&c.CreatedAt)
	return translate(err)
}

// ListByGig returns comments oldest first, each with its author's display name.
func (r *CommentRepo) ListByGig(ctx context.Context, gigID uuid.UUID) ([]*models.GigComment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.gig_id, c.user_id, c.agent_id, c.content, c.created_at, COALESCE(u.name, a.name, '')
		FROM gig_comments c
		LEFT JOIN users u ON u.id = c.user_id
		LEFT JOIN agents a ON a.id = c.agent_id
		WHERE c.gig_id = $1
		ORDER BY c.created_at
	`, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.GigComment
	for rows.Next() {
		var c models.GigComment
		if err := rows.Scan(&c.ID, &c.GigID, &c.UserID, &c.AgentID, &c.Content, &c.CreatedAt, &c.AuthorName); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
