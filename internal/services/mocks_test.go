package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/upmolt/backend/internal/execution"
	"github.com/upmolt/backend/internal/ledger"
	"github.com/upmolt/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

// --- TxBeginner mock ---

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// --- TaskStore mock ---

type mockTaskStore struct {
	tasks map[uuid.UUID]*models.Task
}

func newMockTaskStore() *mockTaskStore { return &mockTaskStore{tasks: make(map[uuid.UUID]*models.Task)} }

func (m *mockTaskStore) put(t *models.Task) *models.Task {
	c := *t
	m.tasks[t.ID] = &c
	return t
}

func (m *mockTaskStore) Create(_ context.Context, _ pgx.Tx, t *models.Task) error {
	m.put(t)
	return nil
}
func (m *mockTaskStore) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *t
	return &c, nil
}
func (m *mockTaskStore) ListByClient(_ context.Context, clientID uuid.UUID) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range m.tasks {
		if t.ClientID == clientID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (m *mockTaskStore) MarkPaid(_ context.Context, _ pgx.Tx, id uuid.UUID, subID *uuid.UUID) error {
	t, ok := m.tasks[id]
	if !ok || t.Status != models.TaskStatusPending || t.PaymentStatus != models.PaymentStatusPending {
		return models.ErrStateChanged
	}
	t.Status = models.TaskStatusInProgress
	t.PaymentStatus = models.PaymentStatusPaid
	t.SubscriptionID = subID
	return nil
}
func (m *mockTaskStore) Complete(_ context.Context, id uuid.UUID, status, result string) (*models.Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.Status != models.TaskStatusInProgress {
		return nil, models.ErrStateChanged
	}
	now := time.Now()
	t.Status = status
	t.Result = &result
	t.CompletedAt = &now
	c := *t
	return &c, nil
}
func (m *mockTaskStore) SetReview(_ context.Context, _ pgx.Tx, id uuid.UUID, rating int, review string) error {
	t, ok := m.tasks[id]
	if !ok || t.Rating != nil {
		return models.ErrStateChanged
	}
	t.Rating = &rating
	t.Review = &review
	return nil
}

// --- Agent store mock ---

type mockAgentStore struct {
	agents       map[uuid.UUID]*models.Agent
	incremented  map[uuid.UUID]int
	karma        map[uuid.UUID]int
	avg          float64
	reviewsCount int
}

func newMockAgentStore(agents ...*models.Agent) *mockAgentStore {
	m := &mockAgentStore{
		agents:      make(map[uuid.UUID]*models.Agent),
		incremented: make(map[uuid.UUID]int),
		karma:       make(map[uuid.UUID]int),
	}
	for _, a := range agents {
		m.agents[a.ID] = a
	}
	return m
}

func (m *mockAgentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}
func (m *mockAgentStore) IncrementTotalTasks(_ context.Context, id uuid.UUID) error {
	m.incremented[id]++
	return nil
}
func (m *mockAgentStore) UpdateRatingStats(_ context.Context, _ pgx.Tx, _ uuid.UUID, avg float64, count int) error {
	m.avg, m.reviewsCount = avg, count
	return nil
}
func (m *mockAgentStore) CreditGigCompletion(_ context.Context, _ pgx.Tx, id uuid.UUID, karma int) error {
	m.karma[id] += karma
	return nil
}

// --- Subscription store mock ---

type mockSubStore struct {
	subs map[uuid.UUID]*models.Subscription
}

func newMockSubStore(subs ...*models.Subscription) *mockSubStore {
	m := &mockSubStore{subs: make(map[uuid.UUID]*models.Subscription)}
	for _, s := range subs {
		m.subs[s.ID] = s
	}
	return m
}

func (m *mockSubStore) Create(_ context.Context, _ pgx.Tx, s *models.Subscription) error {
	m.subs[s.ID] = s
	return nil
}
func (m *mockSubStore) GetByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	s, ok := m.subs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *s
	return &c, nil
}
func (m *mockSubStore) GetActive(_ context.Context, userID, agentID uuid.UUID) (*models.Subscription, error) {
	for _, s := range m.subs {
		if s.UserID == userID && s.AgentID == agentID && s.Status == models.SubscriptionStatusActive {
			c := *s
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}
func (m *mockSubStore) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for _, s := range m.subs {
		if s.UserID == userID && s.Status == models.SubscriptionStatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}
func (m *mockSubStore) ConsumeQuota(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	s, ok := m.subs[id]
	if !ok || s.Status != models.SubscriptionStatusActive || s.TasksUsed >= s.TasksPerMonth {
		return models.ErrStateChanged
	}
	s.TasksUsed++
	return nil
}
func (m *mockSubStore) Cancel(_ context.Context, id uuid.UUID) error {
	s, ok := m.subs[id]
	if !ok || s.Status != models.SubscriptionStatusActive {
		return models.ErrStateChanged
	}
	s.Status = models.SubscriptionStatusCancelled
	return nil
}

// --- Review store mock ---

type mockReviewStore struct {
	reviews []*models.Review
}

func (m *mockReviewStore) Create(_ context.Context, _ pgx.Tx, r *models.Review) error {
	for _, existing := range m.reviews {
		if existing.TaskID == r.TaskID {
			return models.ErrDuplicate
		}
	}
	m.reviews = append(m.reviews, r)
	return nil
}
func (m *mockReviewStore) RatingsForAgent(_ context.Context, _ pgx.Tx, agentID uuid.UUID) ([]int, error) {
	var out []int
	for _, r := range m.reviews {
		if r.AgentID == agentID {
			out = append(out, r.Rating)
		}
	}
	return out, nil
}

// --- Savings mock ---

type mockSavings struct {
	saved map[uuid.UUID]float64
}

func (m *mockSavings) AddSaved(_ context.Context, _ pgx.Tx, id uuid.UUID, amount float64) error {
	if m.saved == nil {
		m.saved = make(map[uuid.UUID]float64)
	}
	m.saved[id] += amount
	return nil
}

// --- Dispatcher mock ---

type mockDispatcher struct {
	out   execution.Outcome
	err   error
	calls int
}

func (m *mockDispatcher) Dispatch(context.Context, *models.Agent, *models.Task) (execution.Outcome, error) {
	m.calls++
	return m.out, m.err
}

// --- Dispatch enqueue recorder ---

type enqueueRecorder struct {
	taskIDs []uuid.UUID
}

func (r *enqueueRecorder) insert(_ context.Context, _ pgx.Tx, args execution.DispatchTaskArgs) error {
	r.taskIDs = append(r.taskIDs, args.TaskID)
	return nil
}

// --- Notifier mock: records calls ---

type sentNote struct {
	userID uuid.UUID
	typ    string
	title  string
	msg    string
	data   map[string]string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []sentNote
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, typ, title, msg string, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, sentNote{userID, typ, title, msg, data})
}

// --- Gig stores ---

type mockGigStore struct {
	gigs       map[uuid.UUID]*models.Gig
	lastFilter models.GigFilter
}

func newMockGigStore(gigs ...*models.Gig) *mockGigStore {
	m := &mockGigStore{gigs: make(map[uuid.UUID]*models.Gig)}
	for _, g := range gigs {
		m.gigs[g.ID] = g
	}
	return m
}

func (m *mockGigStore) Create(_ context.Context, g *models.Gig) error {
	m.gigs[g.ID] = g
	return nil
}
func (m *mockGigStore) GetByID(_ context.Context, id uuid.UUID) (*models.Gig, error) {
	g, ok := m.gigs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *g
	return &c, nil
}
func (m *mockGigStore) List(_ context.Context, f models.GigFilter) ([]*models.Gig, error) {
	m.lastFilter = f
	var out []*models.Gig
	for _, g := range m.gigs {
		out = append(out, g)
	}
	return out, nil
}
func (m *mockGigStore) ListByPoster(_ context.Context, userID uuid.UUID) ([]*models.Gig, error) {
	var out []*models.Gig
	for _, g := range m.gigs {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}
func (m *mockGigStore) ListAssigned(_ context.Context, agentID uuid.UUID) ([]*models.Gig, error) {
	var out []*models.Gig
	for _, g := range m.gigs {
		if g.AssignedAgentID != nil && *g.AssignedAgentID == agentID {
			out = append(out, g)
		}
	}
	return out, nil
}
func (m *mockGigStore) Assign(_ context.Context, _ pgx.Tx, gigID, agentID uuid.UUID) error {
	g, ok := m.gigs[gigID]
	if !ok || g.Status != models.GigStatusOpen {
		return models.ErrStateChanged
	}
	g.Status = models.GigStatusInProgress
	g.AssignedAgentID = &agentID
	return nil
}
func (m *mockGigStore) SubmitDeliverable(_ context.Context, gigID, agentID uuid.UUID, deliverable string) error {
	g, ok := m.gigs[gigID]
	if !ok || g.Status != models.GigStatusInProgress || g.AssignedAgentID == nil || *g.AssignedAgentID != agentID {
		return models.ErrStateChanged
	}
	now := time.Now()
	g.Status = models.GigStatusSubmitted
	g.Deliverable = &deliverable
	g.DeliverableSubmittedAt = &now
	return nil
}
func (m *mockGigStore) Complete(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	g, ok := m.gigs[id]
	if !ok || g.Status != models.GigStatusSubmitted {
		return models.ErrStateChanged
	}
	now := time.Now()
	g.Status = models.GigStatusCompleted
	g.CompletedAt = &now
	return nil
}
func (m *mockGigStore) Reopen(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	g, ok := m.gigs[id]
	if !ok || g.Status != models.GigStatusSubmitted {
		return models.ErrStateChanged
	}
	g.Status = models.GigStatusInProgress
	return nil
}

type mockAppStore struct {
	apps map[uuid.UUID]*models.GigApplication
	gigs *mockGigStore
	// beforeCreate runs between the service's open check and the insert.
	beforeCreate func()
}

func newMockAppStore() *mockAppStore {
	return &mockAppStore{apps: make(map[uuid.UUID]*models.GigApplication)}
}

func (m *mockAppStore) Create(_ context.Context, a *models.GigApplication) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	if m.gigs != nil {
		if g, ok := m.gigs.gigs[a.GigID]; !ok || g.Status != models.GigStatusOpen {
			return models.ErrStateChanged
		}
	}
	for _, existing := range m.apps {
		if existing.GigID == a.GigID && existing.AgentID == a.AgentID {
			return models.ErrDuplicate
		}
	}
	m.apps[a.ID] = a
	return nil
}
func (m *mockAppStore) GetByID(_ context.Context, id uuid.UUID) (*models.GigApplication, error) {
	a, ok := m.apps[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}
func (m *mockAppStore) ListByGig(_ context.Context, gigID uuid.UUID) ([]*models.GigApplication, error) {
	var out []*models.GigApplication
	for _, a := range m.apps {
		if a.GigID == gigID {
			out = append(out, a)
		}
	}
	return out, nil
}
func (m *mockAppStore) ListByAgent(_ context.Context, agentID uuid.UUID) ([]*models.GigApplication, error) {
	var out []*models.GigApplication
	for _, a := range m.apps {
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	return out, nil
}
func (m *mockAppStore) Resolve(_ context.Context, _ pgx.Tx, gigID, appID uuid.UUID) error {
	for _, a := range m.apps {
		if a.GigID != gigID {
			continue
		}
		if a.ID == appID {
			a.Status = models.ApplicationStatusAccepted
		} else {
			a.Status = models.ApplicationStatusRejected
		}
	}
	return nil
}

type mockCommentStore struct {
	comments []*models.GigComment
}

func (m *mockCommentStore) Create(_ context.Context, _ pgx.Tx, c *models.GigComment) error {
	m.comments = append(m.comments, c)
	return nil
}
func (m *mockCommentStore) ListByGig(_ context.Context, gigID uuid.UUID) ([]*models.GigComment, error) {
	var out []*models.GigComment
	for _, c := range m.comments {
		if c.GigID == gigID {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockUsers map[uuid.UUID]*models.User

func (m mockUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

// --- Ledger mock ---

type mockLedger struct {
	opened []ledger.Target
	amount float64
}

func (m *mockLedger) Open(_ context.Context, _ pgx.Tx, userID uuid.UUID, target ledger.Target, amountUSD float64) (*models.Payment, error) {
	m.opened = append(m.opened, target)
	m.amount = amountUSD
	return &models.Payment{
		ID:             uuid.New(),
		UserID:         userID,
		TaskID:         target.TaskID,
		SubscriptionID: target.SubscriptionID,
		AmountUSD:      amountUSD,
		Status:         models.PaymentRecordPending,
	}, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func newUser(name string) *models.User {
	return &models.User{ID: uuid.New(), Name: name, Email: name + "@example.com", Role: models.UserRoleClient}
}

func newAgent(creator *models.User) *models.Agent {
	a := &models.Agent{ID: uuid.New(), Name: "Copybot", Slug: "copybot", Status: models.AgentStatusActive, PriceUSD: 50, MarketRateUSD: 500}
	if creator != nil {
		a.CreatorID = &creator.ID
	}
	return a
}
