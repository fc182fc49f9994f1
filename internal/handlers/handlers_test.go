package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/ledger"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockTasks struct {
	created     services.CreateTaskInput
	callback    services.CallbackInput
	secret      string
	callbackErr error
	rating      int
}

func (m *mockTasks) CreateTask(_ context.Context, _ *models.User, in services.CreateTaskInput) (*models.Task, error) {
	m.created = in
	return &models.Task{ID: uuid.New(), AgentID: in.AgentID, Tier: in.Tier, Status: models.TaskStatusPending}, nil
}
func (m *mockTasks) UseSubscription(_ context.Context, _ *models.User, taskID, _ uuid.UUID) (*models.Task, error) {
	return &models.Task{ID: taskID}, nil
}
func (m *mockTasks) CompleteFromCallback(_ context.Context, in services.CallbackInput, secret string) (*models.Task, error) {
	m.callback, m.secret = in, secret
	if m.callbackErr != nil {
		return nil, m.callbackErr
	}
	return &models.Task{ID: in.TaskID, Status: models.TaskStatusCompleted}, nil
}
func (m *mockTasks) SubmitReview(_ context.Context, _ *models.User, taskID uuid.UUID, rating int, _ string) (*models.Review, error) {
	m.rating = rating
	return &models.Review{ID: uuid.New(), TaskID: taskID, Rating: rating}, nil
}
func (m *mockTasks) GetTask(_ context.Context, _ *models.User, id uuid.UUID) (*models.Task, error) {
	return &models.Task{ID: id}, nil
}
func (m *mockTasks) ListTasks(context.Context, *models.User) ([]*models.Task, error) {
	return []*models.Task{}, nil
}

type mockGigs struct {
	filter    models.GigFilter
	agentID   uuid.UUID
	apply     services.ApplyInput
	commentBy *uuid.UUID
}

func (m *mockGigs) Create(_ context.Context, _ *models.User, in services.CreateGigInput) (*models.Gig, error) {
	return &models.Gig{ID: uuid.New(), Title: in.Title}, nil
}
func (m *mockGigs) List(_ context.Context, f models.GigFilter) ([]*models.Gig, error) {
	m.filter = f
	return []*models.Gig{{ID: uuid.New()}}, nil
}
func (m *mockGigs) Detail(_ context.Context, id uuid.UUID) (*services.GigDetail, error) {
	return &services.GigDetail{Gig: &models.Gig{ID: id}}, nil
}
func (m *mockGigs) Mine(context.Context, *models.User) ([]*models.Gig, error) { return nil, nil }
func (m *mockGigs) Apply(_ context.Context, _ *models.User, gigID, agentID uuid.UUID, in services.ApplyInput) (*models.GigApplication, error) {
	m.agentID, m.apply = agentID, in
	return &models.GigApplication{ID: uuid.New(), GigID: gigID, AgentID: agentID}, nil
}
func (m *mockGigs) Accept(context.Context, *models.User, uuid.UUID, uuid.UUID) error  { return nil }
func (m *mockGigs) Submit(context.Context, *models.User, uuid.UUID, string) error     { return nil }
func (m *mockGigs) Approve(context.Context, *models.User, uuid.UUID) error            { return nil }
func (m *mockGigs) RequestRevision(context.Context, *models.User, uuid.UUID, string) error {
	return nil
}
func (m *mockGigs) Comment(_ context.Context, _ *models.User, gigID uuid.UUID, agentID *uuid.UUID, content string) (*models.GigComment, error) {
	m.commentBy = agentID
	return &models.GigComment{ID: uuid.New(), GigID: gigID, Content: content}, nil
}
func (m *mockGigs) ListComments(context.Context, uuid.UUID) ([]*models.GigComment, error) {
	return []*models.GigComment{}, nil
}
func (m *mockGigs) ApplyAsAgent(_ context.Context, agent *models.Agent, gigID uuid.UUID, in services.ApplyInput) (*models.GigApplication, error) {
	m.agentID, m.apply = agent.ID, in
	return &models.GigApplication{ID: uuid.New(), GigID: gigID, AgentID: agent.ID}, nil
}
func (m *mockGigs) SubmitAsAgent(context.Context, *models.Agent, uuid.UUID, string) error {
	return apierr.New(apierr.PermissionDenied, "Not assigned to this gig")
}
func (m *mockGigs) CommentAsAgent(_ context.Context, agent *models.Agent, gigID uuid.UUID, content string) (*models.GigComment, error) {
	return &models.GigComment{ID: uuid.New(), GigID: gigID, AgentID: &agent.ID, Content: content}, nil
}
func (m *mockGigs) AgentFeed(_ context.Context, agent *models.Agent, f models.GigFilter) ([]*models.Gig, error) {
	m.agentID, m.filter = agent.ID, f
	return []*models.Gig{{ID: uuid.New()}, {ID: uuid.New()}}, nil
}
func (m *mockGigs) AgentMine(context.Context, *models.Agent) (*services.AgentGigs, error) {
	return &services.AgentGigs{}, nil
}

type mockPayments struct {
	target    ledger.Target
	signature string
}

func (m *mockPayments) CreatePayment(_ context.Context, _ *models.User, t ledger.Target) (*models.Payment, error) {
	m.target = t
	return &models.Payment{ID: uuid.New(), AmountUSD: 12.5}, nil
}
func (m *mockPayments) Verify(_ context.Context, _ *models.User, id uuid.UUID, sig string) (*models.Payment, error) {
	m.signature = sig
	return &models.Payment{ID: id, Status: models.PaymentRecordCompleted}, nil
}
func (m *mockPayments) SOLPrice(context.Context) float64 { return 150 }

type mockSubscriptions struct {
	active *models.Subscription
}

func (m *mockSubscriptions) Subscribe(_ context.Context, _ *models.User, agentID uuid.UUID, tier models.Tier) (*models.Subscription, *models.Payment, error) {
	return &models.Subscription{ID: uuid.New(), AgentID: agentID, Tier: tier}, &models.Payment{ID: uuid.New()}, nil
}
func (m *mockSubscriptions) Check(context.Context, *models.User, uuid.UUID) (*models.Subscription, error) {
	return m.active, nil
}
func (m *mockSubscriptions) List(context.Context, *models.User) ([]*models.Subscription, error) {
	return nil, nil
}
func (m *mockSubscriptions) Cancel(context.Context, *models.User, uuid.UUID) error { return nil }

type mockNotifications struct {
	marked *uuid.UUID
	calls  int
}

func (m *mockNotifications) List(context.Context, *models.User) ([]*models.Notification, error) {
	return nil, nil
}
func (m *mockNotifications) MarkRead(_ context.Context, _ *models.User, id *uuid.UUID) error {
	m.marked = id
	m.calls++
	return nil
}
func (m *mockNotifications) UnreadCount(context.Context, *models.User) (int, error) { return 3, nil }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var testUser = &models.User{ID: uuid.New(), Email: "client@example.com", Name: "Client"}

func serve(t *testing.T, pattern string, h http.HandlerFunc, method, path, body string, ctx ...func(context.Context) context.Context) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	c := middleware.WithUser(req.Context(), testUser)
	for _, f := range ctx {
		c = f(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req.WithContext(c))
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func TestCreateTask_DefaultsTier(t *testing.T) {
	tasks := &mockTasks{}
	h := &TaskHandler{Tasks: tasks, Logger: testLogger}
	agentID := uuid.New()

	rec := serve(t, "/api/tasks", h.CreateTask, http.MethodPost, "/api/tasks",
		`{"agent_id":"`+agentID.String()+`","title":"Summarise","description":"the report"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if tasks.created.Tier != models.TierBasic {
		t.Errorf("expected basic tier, got %q", tasks.created.Tier)
	}
	if tasks.created.AgentID != agentID {
		t.Errorf("agent id not passed through")
	}
}

func TestCreateTask_InvalidJSON(t *testing.T) {
	h := &TaskHandler{Tasks: &mockTasks{}, Logger: testLogger}
	rec := serve(t, "/api/tasks", h.CreateTask, http.MethodPost, "/api/tasks", `{`)
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "invalid JSON" {
		t.Fatalf("expected 400 invalid JSON, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitReview_RatingRange(t *testing.T) {
	tasks := &mockTasks{}
	h := &TaskHandler{Tasks: tasks, Logger: testLogger}
	path := "/api/tasks/" + uuid.NewString() + "/review"

	for _, body := range []string{`{"rating":0}`, `{"rating":6}`, `{}`} {
		rec := serve(t, "/api/tasks/{id}/review", h.SubmitReview, http.MethodPost, path, body)
		if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "Rating 1-5 required" {
			t.Errorf("%s: expected 400, got %d %s", body, rec.Code, rec.Body.String())
		}
	}

	rec := serve(t, "/api/tasks/{id}/review", h.SubmitReview, http.MethodPost, path, `{"rating":5,"comment":"great"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if tasks.rating != 5 {
		t.Errorf("expected rating 5, got %d", tasks.rating)
	}
}

func TestGetTask_BadID(t *testing.T) {
	h := &TaskHandler{Tasks: &mockTasks{}, Logger: testLogger}
	rec := serve(t, "/api/tasks/{id}", h.GetTask, http.MethodGet, "/api/tasks/nope", "")
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "invalid task id" {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUseSubscription_RequiresIDs(t *testing.T) {
	h := &TaskHandler{Tasks: &mockTasks{}, Logger: testLogger}
	rec := serve(t, "/api/tasks/use-subscription", h.UseSubscription, http.MethodPost,
		"/api/tasks/use-subscription", `{"task_id":"`+uuid.NewString()+`"}`)
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "task_id and subscription_id required" {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCallback(t *testing.T) {
	v, err := services.NewPayloadValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	taskID := uuid.New()

	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantCode   int
		wantError  string
	}{
		{"missing result", `{"task_id":"` + taskID.String() + `"}`, nil, http.StatusBadRequest, "task_id and result required"},
		{"empty result", `{"task_id":"` + taskID.String() + `","result":""}`, nil, http.StatusBadRequest, "task_id and result required"},
		{"not json", `task done`, nil, http.StatusBadRequest, "task_id and result required"},
		{"unknown task id", `{"task_id":"abc","result":"done"}`, nil, http.StatusNotFound, "Task not found"},
		{"not in progress", `{"task_id":"` + taskID.String() + `","result":"done"}`,
			apierr.New(apierr.Conflict, "Task is not in_progress"), http.StatusConflict, "Task is not in_progress"},
		{"ok", `{"task_id":"` + taskID.String() + `","status":"completed","result":"done"}`, nil, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := &mockTasks{callbackErr: tt.serviceErr}
			h := &TaskHandler{Tasks: tasks, Validator: v, Logger: testLogger}

			req := httptest.NewRequest(http.MethodPost, "/api/tasks/callback", strings.NewReader(tt.body))
			req.Header.Set("X-Webhook-Secret", "s3cret")
			rec := httptest.NewRecorder()
			h.Callback(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantError != "" {
				if got := errorBody(t, rec); got != tt.wantError {
					t.Errorf("expected %q, got %q", tt.wantError, got)
				}
				return
			}
			if tasks.secret != "s3cret" || tasks.callback.TaskID != taskID || tasks.callback.Result != "done" {
				t.Errorf("callback not passed through: %+v secret=%q", tasks.callback, tasks.secret)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Gigs
// ---------------------------------------------------------------------------

func TestGigList_ParsesFilter(t *testing.T) {
	gigs := &mockGigs{}
	h := &GigHandler{Gigs: gigs, Logger: testLogger}
	rec := serve(t, "/api/gigs", h.List, http.MethodGet,
		"/api/gigs?status=open&skills=go,%20sql,,&min_budget=10&max_budget=99.5&sort=budget_high", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f := gigs.filter
	if f.Status != "open" || f.Sort != "budget_high" || f.MinBudget != 10 || f.MaxBudget != 99.5 {
		t.Errorf("unexpected filter %+v", f)
	}
	if len(f.Skills) != 2 || f.Skills[0] != "go" || f.Skills[1] != "sql" {
		t.Errorf("unexpected skills %q", f.Skills)
	}
}

func TestGigApply(t *testing.T) {
	gigs := &mockGigs{}
	h := &GigHandler{Gigs: gigs, Logger: testLogger}
	path := "/api/gigs/" + uuid.NewString() + "/apply"

	rec := serve(t, "/api/gigs/{id}/apply", h.Apply, http.MethodPost, path, `{"pitch":"I can do it"}`)
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "agent_id and pitch required" {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
	}

	agentID := uuid.New()
	rec = serve(t, "/api/gigs/{id}/apply", h.Apply, http.MethodPost, path,
		`{"agent_id":"`+agentID.String()+`","pitch":"I can do it","estimated_time":"2h"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if gigs.agentID != agentID || gigs.apply.EstimatedTime != "2h" {
		t.Errorf("apply input not passed through: %v %+v", gigs.agentID, gigs.apply)
	}
}

func TestGigComment_AsAgent(t *testing.T) {
	gigs := &mockGigs{}
	h := &GigHandler{Gigs: gigs, Logger: testLogger}
	path := "/api/gigs/" + uuid.NewString() + "/comments"

	rec := serve(t, "/api/gigs/{id}/comments", h.Comment, http.MethodPost, path, `{"content":"hi"}`)
	if rec.Code != http.StatusCreated || gigs.commentBy != nil {
		t.Fatalf("expected a user comment, got %d by %v", rec.Code, gigs.commentBy)
	}

	agentID := uuid.New()
	rec = serve(t, "/api/gigs/{id}/comments", h.Comment, http.MethodPost, path,
		`{"content":"hi","agent_id":"`+agentID.String()+`"}`)
	if rec.Code != http.StatusCreated || gigs.commentBy == nil || *gigs.commentBy != agentID {
		t.Fatalf("expected an agent comment, got %d by %v", rec.Code, gigs.commentBy)
	}

	rec = serve(t, "/api/gigs/{id}/comments", h.Comment, http.MethodPost, path, `{"content":"hi","agent_id":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad agent_id, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Payments, subscriptions, notifications
// ---------------------------------------------------------------------------

func TestPaymentCreate_Target(t *testing.T) {
	payments := &mockPayments{}
	h := &PaymentHandler{Payments: payments, Logger: testLogger}
	subID := uuid.New()

	rec := serve(t, "/api/payments", h.Create, http.MethodPost, "/api/payments", `{"subscription_id":"`+subID.String()+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if payments.target.TaskID != nil || payments.target.SubscriptionID == nil || *payments.target.SubscriptionID != subID {
		t.Errorf("unexpected target %+v", payments.target)
	}
}

func TestPaymentVerify_MissingFields(t *testing.T) {
	payments := &mockPayments{}
	h := &PaymentHandler{Payments: payments, Logger: testLogger}

	rec := serve(t, "/api/payments/verify", h.Verify, http.MethodPost, "/api/payments/verify", `{"payment_id":"`+uuid.NewString()+`"}`)
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "Missing fields" {
		t.Fatalf("expected 400 Missing fields, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, "/api/payments/verify", h.Verify, http.MethodPost, "/api/payments/verify",
		`{"payment_id":"`+uuid.NewString()+`","tx_signature":"5xSig"}`)
	if rec.Code != http.StatusOK || payments.signature != "5xSig" {
		t.Fatalf("expected 200 with signature passed, got %d %q", rec.Code, payments.signature)
	}
}

func TestSOLPrice(t *testing.T) {
	h := &PaymentHandler{Payments: &mockPayments{}, Logger: testLogger}
	rec := serve(t, "/api/payments/sol-price", h.SOLPrice, http.MethodGet, "/api/payments/sol-price", "")
	if strings.TrimSpace(rec.Body.String()) != `{"price":150}` {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestSubscriptionCheck(t *testing.T) {
	subs := &mockSubscriptions{}
	h := &SubscriptionHandler{Subscriptions: subs, Logger: testLogger}

	rec := serve(t, "/api/subscriptions/check", h.Check, http.MethodGet, "/api/subscriptions/check", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without agent_id, got %d", rec.Code)
	}

	rec = serve(t, "/api/subscriptions/check", h.Check, http.MethodGet, "/api/subscriptions/check?agent_id="+uuid.NewString(), "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"subscription":null}` {
		t.Fatalf("expected null subscription, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubscribe_Created(t *testing.T) {
	h := &SubscriptionHandler{Subscriptions: &mockSubscriptions{}, Logger: testLogger}
	rec := serve(t, "/api/subscriptions", h.Subscribe, http.MethodPost, "/api/subscriptions",
		`{"agent_id":"`+uuid.NewString()+`","tier":"standard"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["subscription"] == nil || body["payment"] == nil {
		t.Errorf("expected subscription and payment, got %s", rec.Body.String())
	}
}

func TestNotificationMarkRead(t *testing.T) {
	notes := &mockNotifications{}
	h := &NotificationHandler{Notifications: notes, Logger: testLogger}

	rec := serve(t, "/api/notifications", h.MarkRead, http.MethodPut, "/api/notifications", "")
	if rec.Code != http.StatusOK || notes.marked != nil {
		t.Fatalf("empty body should mark all, got %d %v", rec.Code, notes.marked)
	}

	id := uuid.New()
	rec = serve(t, "/api/notifications", h.MarkRead, http.MethodPut, "/api/notifications", `{"id":"`+id.String()+`"}`)
	if rec.Code != http.StatusOK || notes.marked == nil || *notes.marked != id {
		t.Fatalf("expected one marked, got %d %v", rec.Code, notes.marked)
	}
	if notes.calls != 2 {
		t.Errorf("expected 2 calls, got %d", notes.calls)
	}

	rec = serve(t, "/api/notifications/unread", h.Unread, http.MethodGet, "/api/notifications/unread", "")
	if strings.TrimSpace(rec.Body.String()) != `{"count":3}` {
		t.Errorf("unexpected unread body %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Agent API
// ---------------------------------------------------------------------------

func withAgent(a *models.Agent) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context { return middleware.WithAgent(ctx, a) }
}

func TestAgentMe(t *testing.T) {
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &models.Agent{ID: uuid.New(), Name: "Scout", Slug: "scout-1a2b3c4d", Tagline: "finds things",
		Skills: []string{"search"}, Karma: 7, IsAutonomous: true, LastSeenAt: &seen}
	h := &AgentHandler{Gigs: &mockGigs{}, Logger: testLogger}

	rec := serve(t, "/api/agent/me", h.Me, http.MethodGet, "/api/agent/me", "", withAgent(a))
	var got agentSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID || got.Bio != "finds things" || got.Karma != 7 || !got.IsAutonomous || got.Claimed {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

func TestAgentFeed_DefaultsOpen(t *testing.T) {
	gigs := &mockGigs{}
	a := &models.Agent{ID: uuid.New()}
	h := &AgentHandler{Gigs: gigs, Logger: testLogger}

	rec := serve(t, "/api/agent/gigs", h.Feed, http.MethodGet, "/api/agent/gigs?skills=go&sort=match", "", withAgent(a))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gigs.filter.Status != models.GigStatusOpen || gigs.filter.Sort != "match" || gigs.agentID != a.ID {
		t.Errorf("unexpected filter %+v for %v", gigs.filter, gigs.agentID)
	}
	var body struct {
		Gigs  []json.RawMessage `json:"gigs"`
		Count int               `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Gigs) != 2 {
		t.Errorf("expected 2 gigs, got %d/%d", body.Count, len(body.Gigs))
	}
}

func TestAgentApplyAndSubmit(t *testing.T) {
	gigs := &mockGigs{}
	a := &models.Agent{ID: uuid.New()}
	h := &AgentHandler{Gigs: gigs, Logger: testLogger}
	gigID := uuid.NewString()

	rec := serve(t, "/api/agent/gigs/{id}/apply", h.Apply, http.MethodPost, "/api/agent/gigs/"+gigID+"/apply", `{}`, withAgent(a))
	if rec.Code != http.StatusBadRequest || errorBody(t, rec) != "pitch required" {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, "/api/agent/gigs/{id}/apply", h.Apply, http.MethodPost, "/api/agent/gigs/"+gigID+"/apply",
		`{"pitch":"on it"}`, withAgent(a))
	if rec.Code != http.StatusCreated || gigs.agentID != a.ID {
		t.Fatalf("expected 201 as agent, got %d", rec.Code)
	}

	rec = serve(t, "/api/agent/gigs/{id}/submit", h.Submit, http.MethodPost, "/api/agent/gigs/"+gigID+"/submit",
		`{"deliverable":"done"}`, withAgent(a))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when not assigned, got %d", rec.Code)
	}
}
