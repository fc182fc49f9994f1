package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sourcegraph/conc"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/metrics"
	"github.com/upmolt/backend/internal/models"
)

type GigStore interface {
	Create(ctx context.Context, g *models.Gig) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	List(ctx context.Context, f models.GigFilter) ([]*models.Gig, error)
	ListByPoster(ctx context.Context, userID uuid.UUID) ([]*models.Gig, error)
	ListAssigned(ctx context.Context, agentID uuid.UUID) ([]*models.Gig, error)
	Assign(ctx context.Context, tx pgx.Tx, gigID, agentID uuid.UUID) error
	SubmitDeliverable(ctx context.Context, gigID, agentID uuid.UUID, deliverable string) error
	Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	Reopen(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type ApplicationStore interface {
	Create(ctx context.Context, a *models.GigApplication) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GigApplication, error)
	ListByGig(ctx context.Context, gigID uuid.UUID) ([]*models.GigApplication, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.GigApplication, error)
	Resolve(ctx context.Context, tx pgx.Tx, gigID, appID uuid.UUID) error
}

type CommentStore interface {
	Create(ctx context.Context, tx pgx.Tx, c *models.GigComment) error
	ListByGig(ctx context.Context, gigID uuid.UUID) ([]*models.GigComment, error)
}

type GigAgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	CreditGigCompletion(ctx context.Context, tx pgx.Tx, id uuid.UUID, karma int) error
}

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// GigService runs the post, apply, accept, deliver, approve/revise cycle.
type GigService struct {
	Pool         TxBeginner
	Gigs         GigStore
	Applications ApplicationStore
	Comments     CommentStore
	Agents       GigAgentStore
	Users        UserLookup
	Logger       *slog.Logger
}

type CreateGigInput struct {
	Title       string
	Description string
	BudgetUSD   float64
	Skills      []string
}

func (s *GigService) Create(ctx context.Context, user *models.User, in CreateGigInput) (*models.Gig, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" || in.BudgetUSD <= 0 {
		return nil, apierr.New(apierr.InvalidArgument, "Missing required fields")
	}
	skills := in.Skills
	if skills == nil {
		skills = []string{}
	}
	g := &models.Gig{
		ID:          uuid.New(),
		UserID:      user.ID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		BudgetUSD:   in.BudgetUSD,
		Skills:      skills,
		Status:      models.GigStatusOpen,
	}
	if err := s.Gigs.Create(ctx, g); err != nil {
		return nil, internal(fmt.Errorf("create gig: %w", err))
	}
	metrics.GigTransitions.WithLabelValues("post").Inc()
	s.Logger.Info("gig posted", "gig_id", g.ID, "user_id", user.ID, "budget_usd", g.BudgetUSD)
	return g, nil
}

func (s *GigService) List(ctx context.Context, f models.GigFilter) ([]*models.Gig, error) {
	gigs, err := s.Gigs.List(ctx, f)
	if err != nil {
		return nil, internal(err)
	}
	return gigs, nil
}

// GigDetail is a gig with everything its page shows.
type GigDetail struct {
	*models.Gig
	PosterName    string                   `json:"poster_name"`
	Applications  []*models.GigApplication `json:"applications"`
	Comments      []*models.GigComment     `json:"comments"`
	AssignedAgent *models.Agent            `json:"assigned_agent,omitempty"`
}

// Detail loads the gig and fans out the related reads.
func (s *GigService) Detail(ctx context.Context, id uuid.UUID) (*GigDetail, error) {
	g, err := s.Gigs.GetByID(ctx, id)
	if err != nil {
		return nil, lookup(err, "Gig")
	}
	d := &GigDetail{Gig: g}

	var appsErr, commentsErr error
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		if u, err := s.Users.GetByID(ctx, g.UserID); err == nil {
			d.PosterName = u.Name
		}
	})
	wg.Go(func() { d.Applications, appsErr = s.Applications.ListByGig(ctx, id) })
	wg.Go(func() { d.Comments, commentsErr = s.Comments.ListByGig(ctx, id) })
	if g.AssignedAgentID != nil {
		wg.Go(func() {
			if a, err := s.Agents.GetByID(ctx, *g.AssignedAgentID); err == nil {
				d.AssignedAgent = a
			}
		})
	}
	wg.Wait()

	if err := errors.Join(appsErr, commentsErr); err != nil {
		return nil, internal(fmt.Errorf("load gig detail: %w", err))
	}
	return d, nil
}

// Mine lists the gigs the user posted.
func (s *GigService) Mine(ctx context.Context, user *models.User) ([]*models.Gig, error) {
	gigs, err := s.Gigs.ListByPoster(ctx, user.ID)
	if err != nil {
		return nil, internal(err)
	}
	return gigs, nil
}

type ApplyInput struct {
	Pitch         string
	EstimatedTime string
}

// Apply submits a pitch on behalf of an agent the user owns.
func (s *GigService) Apply(ctx context.Context, user *models.User, gigID, agentID uuid.UUID, in ApplyInput) (*models.GigApplication, error) {
	if agentID == uuid.Nil || strings.TrimSpace(in.Pitch) == "" {
		return nil, apierr.New(apierr.InvalidArgument, "agent_id and pitch required")
	}
	agent, err := s.Agents.GetByID(ctx, agentID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, internal(err)
	}
	if agent == nil || !agent.OwnedBy(user.ID) {
		return nil, apierr.New(apierr.PermissionDenied, "Not your agent")
	}
	return s.apply(ctx, agent, gigID, in)
}

// ApplyAsAgent is the autonomous path; the agent is the authenticated caller.
func (s *GigService) ApplyAsAgent(ctx context.Context, agent *models.Agent, gigID uuid.UUID, in ApplyInput) (*models.GigApplication, error) {
	if strings.TrimSpace(in.Pitch) == "" {
		return nil, apierr.New(apierr.InvalidArgument, "pitch required")
	}
	return s.apply(ctx, agent, gigID, in)
}

func (s *GigService) apply(ctx context.Context, agent *models.Agent, gigID uuid.UUID, in ApplyInput) (*models.GigApplication, error) {
	g, err := s.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return nil, lookup(err, "Gig")
	}
	if g.Status != models.GigStatusOpen {
		return nil, apierr.New(apierr.FailedPrecondition, "Gig is not open")
	}
	app := &models.GigApplication{
		ID:            uuid.New(),
		GigID:         gigID,
		AgentID:       agent.ID,
		Pitch:         in.Pitch,
		EstimatedTime: in.EstimatedTime,
		Status:        models.ApplicationStatusPending,
	}
	if err := s.Applications.Create(ctx, app); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicate):
			return nil, apierr.New(apierr.AlreadyExists, "Already applied")
		case errors.Is(err, models.ErrStateChanged):
			return nil, apierr.New(apierr.FailedPrecondition, "Gig is not open")
		}
		return nil, internal(fmt.Errorf("create application: %w", err))
	}
	metrics.GigTransitions.WithLabelValues("apply").Inc()
	s.Logger.Info("gig application", "gig_id", gigID, "agent_id", agent.ID)
	return app, nil
}

// Accept picks one application: it is accepted, its siblings are rejected
// and the gig is assigned, all in one transaction.
func (s *GigService) Accept(ctx context.Context, user *models.User, gigID, appID uuid.UUID) error {
	g, err := s.posterGig(ctx, user, gigID)
	if err != nil {
		return err
	}
	if g.Status != models.GigStatusOpen {
		return apierr.New(apierr.FailedPrecondition, "Gig is not open")
	}
	app, err := s.Applications.GetByID(ctx, appID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return internal(err)
	}
	if app == nil || app.GigID != gigID {
		return apierr.New(apierr.NotFound, "Application not found")
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := s.Gigs.Assign(ctx, tx, gigID, app.AgentID); err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return apierr.New(apierr.Conflict, "Gig is not open")
		}
		return internal(fmt.Errorf("assign gig: %w", err))
	}
	if err := s.Applications.Resolve(ctx, tx, gigID, appID); err != nil {
		return internal(fmt.Errorf("resolve applications: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return internal(fmt.Errorf("commit accept: %w", err))
	}
	metrics.GigTransitions.WithLabelValues("accept").Inc()
	s.Logger.Info("gig accepted", "gig_id", gigID, "application_id", appID, "agent_id", app.AgentID)
	return nil
}

// Submit records the deliverable from the owner of the assigned agent.
func (s *GigService) Submit(ctx context.Context, user *models.User, gigID uuid.UUID, deliverable string) error {
	g, err := s.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return lookup(err, "Gig")
	}
	if g.Status != models.GigStatusInProgress || g.AssignedAgentID == nil {
		return apierr.New(apierr.FailedPrecondition, "Gig is not in progress")
	}
	agent, err := s.Agents.GetByID(ctx, *g.AssignedAgentID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return internal(err)
	}
	if agent == nil || !agent.OwnedBy(user.ID) {
		return apierr.New(apierr.PermissionDenied, "Not the assigned agent owner")
	}
	return s.submit(ctx, g, agent.ID, deliverable)
}

// SubmitAsAgent is the autonomous path for the assigned agent itself.
func (s *GigService) SubmitAsAgent(ctx context.Context, agent *models.Agent, gigID uuid.UUID, deliverable string) error {
	g, err := s.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return lookup(err, "Gig")
	}
	if g.AssignedAgentID == nil || *g.AssignedAgentID != agent.ID {
		return apierr.New(apierr.PermissionDenied, "Not assigned to this gig")
	}
	if g.Status != models.GigStatusInProgress {
		return apierr.New(apierr.FailedPrecondition, "Gig is not in progress")
	}
	return s.submit(ctx, g, agent.ID, deliverable)
}

func (s *GigService) submit(ctx context.Context, g *models.Gig, agentID uuid.UUID, deliverable string) error {
	if strings.TrimSpace(deliverable) == "" {
		return apierr.New(apierr.InvalidArgument, "Deliverable required")
	}
	if err := s.Gigs.SubmitDeliverable(ctx, g.ID, agentID, deliverable); err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return apierr.New(apierr.Conflict, "Gig is not in progress")
		}
		return internal(fmt.Errorf("submit deliverable: %w", err))
	}
	metrics.GigTransitions.WithLabelValues("submit").Inc()
	s.Logger.Info("gig deliverable submitted", "gig_id", g.ID, "agent_id", agentID)
	return nil
}

// Approve completes a submitted gig and credits the assigned agent.
func (s *GigService) Approve(ctx context.Context, user *models.User, gigID uuid.UUID) error {
	g, err := s.posterGig(ctx, user, gigID)
	if err != nil {
		return err
	}
	if g.Status != models.GigStatusSubmitted || g.AssignedAgentID == nil {
		return apierr.New(apierr.FailedPrecondition, "Gig not submitted")
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := s.Gigs.Complete(ctx, tx, gigID); err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return apierr.New(apierr.Conflict, "Gig not submitted")
		}
		return internal(fmt.Errorf("complete gig: %w", err))
	}
	if err := s.Agents.CreditGigCompletion(ctx, tx, *g.AssignedAgentID, models.KarmaPerApprovedGig); err != nil {
		return internal(fmt.Errorf("credit agent: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return internal(fmt.Errorf("commit approve: %w", err))
	}
	metrics.GigTransitions.WithLabelValues("approve").Inc()
	s.Logger.Info("gig approved", "gig_id", gigID, "agent_id", *g.AssignedAgentID)
	return nil
}

// RequestRevision records the feedback as a comment and sends the gig back
// to in_progress. The deliverable stays for the agent to revise.
func (s *GigService) RequestRevision(ctx context.Context, user *models.User, gigID uuid.UUID, feedback string) error {
	g, err := s.posterGig(ctx, user, gigID)
	if err != nil {
		return err
	}
	if g.Status != models.GigStatusSubmitted {
		return apierr.New(apierr.FailedPrecondition, "Gig not submitted")
	}
	if strings.TrimSpace(feedback) == "" {
		return apierr.New(apierr.InvalidArgument, "Feedback required")
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	uid := user.ID
	c := &models.GigComment{ID: uuid.New(), GigID: gigID, UserID: &uid, Content: "Revision requested: " + feedback}
	if err := s.Comments.Create(ctx, tx, c); err != nil {
		return internal(fmt.Errorf("create revision comment: %w", err))
	}
	if err := s.Gigs.Reopen(ctx, tx, gigID); err != nil {
		if errors.Is(err, models.ErrStateChanged) {
			return apierr.New(apierr.Conflict, "Gig not submitted")
		}
		return internal(fmt.Errorf("reopen gig: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return internal(fmt.Errorf("commit revision: %w", err))
	}
	metrics.GigTransitions.WithLabelValues("revise").Inc()
	s.Logger.Info("gig revision requested", "gig_id", gigID)
	return nil
}

// Comment posts as the user, or as agentID when the user owns that agent.
func (s *GigService) Comment(ctx context.Context, user *models.User, gigID uuid.UUID, agentID *uuid.UUID, content string) (*models.GigComment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apierr.New(apierr.InvalidArgument, "Content required")
	}
	c := &models.GigComment{ID: uuid.New(), GigID: gigID, Content: content}
	if agentID != nil {
		agent, err := s.Agents.GetByID(ctx, *agentID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, internal(err)
		}
		if agent == nil || !agent.OwnedBy(user.ID) {
			return nil, apierr.New(apierr.PermissionDenied, "Not your agent")
		}
		c.AgentID = &agent.ID
		c.AuthorName = agent.Name
	} else {
		uid := user.ID
		c.UserID = &uid
		c.AuthorName = user.Name
	}
	return s.comment(ctx, c)
}

func (s *GigService) CommentAsAgent(ctx context.Context, agent *models.Agent, gigID uuid.UUID, content string) (*models.GigComment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apierr.New(apierr.InvalidArgument, "Content required")
	}
	aid := agent.ID
	return s.comment(ctx, &models.GigComment{ID: uuid.New(), GigID: gigID, AgentID: &aid, Content: content, AuthorName: agent.Name})
}

func (s *GigService) comment(ctx context.Context, c *models.GigComment) (*models.GigComment, error) {
	if _, err := s.Gigs.GetByID(ctx, c.GigID); err != nil {
		return nil, lookup(err, "Gig")
	}
	if err := s.Comments.Create(ctx, nil, c); err != nil {
		return nil, internal(fmt.Errorf("create comment: %w", err))
	}
	return c, nil
}

func (s *GigService) ListComments(ctx context.Context, gigID uuid.UUID) ([]*models.GigComment, error) {
	comments, err := s.Comments.ListByGig(ctx, gigID)
	if err != nil {
		return nil, internal(err)
	}
	return comments, nil
}

// AgentFeed lists gigs for an autonomous agent, hiding ones it applied to.
// Sort "match" ranks them by fit for the agent.
func (s *GigService) AgentFeed(ctx context.Context, agent *models.Agent, f models.GigFilter) ([]*models.Gig, error) {
	f.ExcludeAppliedBy = &agent.ID
	rank := f.Sort == SortMatch
	if rank {
		f.Sort = ""
	}
	gigs, err := s.List(ctx, f)
	if err != nil || !rank {
		return gigs, err
	}
	return RankGigsForAgent(agent, gigs), nil
}

// AgentGigs is what an agent is working on and what it is waiting to hear about.
type AgentGigs struct {
	Assigned     []*models.Gig            `json:"assigned"`
	Applications []*models.GigApplication `json:"applications"`
}

func (s *GigService) AgentMine(ctx context.Context, agent *models.Agent) (*AgentGigs, error) {
	var out AgentGigs
	var assignedErr, appsErr error
	wg := conc.NewWaitGroup()
	wg.Go(func() { out.Assigned, assignedErr = s.Gigs.ListAssigned(ctx, agent.ID) })
	wg.Go(func() { out.Applications, appsErr = s.Applications.ListByAgent(ctx, agent.ID) })
	wg.Wait()
	if err := errors.Join(assignedErr, appsErr); err != nil {
		return nil, internal(err)
	}
	return &out, nil
}

func (s *GigService) posterGig(ctx context.Context, user *models.User, gigID uuid.UUID) (*models.Gig, error) {
	g, err := s.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return nil, lookup(err, "Gig")
	}
	if g.UserID != user.ID {
		return nil, apierr.New(apierr.PermissionDenied, "Not your gig")
	}
	return g, nil
}
