package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/models"
)

func newSubscriptionFixture() (*SubscriptionService, *mockSubStore, *mockLedger, *models.User, *models.Agent) {
	client := newUser("client")
	agent := newAgent(newUser("creator"))
	agent.PriceUSD = 20
	subs := newMockSubStore()
	led := &mockLedger{}
	svc := &SubscriptionService{
		Pool:          mockPool{},
		Subscriptions: subs,
		Agents:        newMockAgentStore(agent),
		Ledger:        led,
		Logger:        discardLogger(),
	}
	return svc, subs, led, client, agent
}

func TestSubscribe_DefaultPlanPricing(t *testing.T) {
	svc, subs, led, client, agent := newSubscriptionFixture()

	sub, payment, err := svc.Subscribe(context.Background(), client, agent.ID, models.TierStandard)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// 20 * 15 * 0.8
	if sub.PriceUSD != 240 || sub.TasksPerMonth != 15 || sub.Status != models.SubscriptionStatusPending {
		t.Errorf("unexpected subscription %+v", sub)
	}
	if _, ok := subs.subs[sub.ID]; !ok {
		t.Error("subscription not stored")
	}
	if len(led.opened) != 1 || led.opened[0].SubscriptionID == nil || *led.opened[0].SubscriptionID != sub.ID {
		t.Fatalf("expected a payment opened for the subscription, got %+v", led.opened)
	}
	if led.amount != 240 || payment.AmountUSD != 240 {
		t.Errorf("expected payment of 240, got %v", led.amount)
	}
}

func TestSubscribe_AgentPlanOverride(t *testing.T) {
	svc, _, _, client, agent := newSubscriptionFixture()
	agent.SubscriptionPlans = map[models.Tier]models.PlanTerms{
		models.TierBasic: {TasksPerMonth: 3, DiscountPct: 50},
	}

	sub, _, err := svc.Subscribe(context.Background(), client, agent.ID, models.TierBasic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.TasksPerMonth != 3 || sub.PriceUSD != 30 {
		t.Errorf("expected 3 tasks for 30, got %d for %v", sub.TasksPerMonth, sub.PriceUSD)
	}
}

func TestSubscribe_Rejections(t *testing.T) {
	svc, subs, led, client, agent := newSubscriptionFixture()
	existing := &models.Subscription{ID: uuid.New(), UserID: client.ID, AgentID: agent.ID, Status: models.SubscriptionStatusActive}

	if _, _, err := svc.Subscribe(context.Background(), client, agent.ID, "gold"); !apierr.IsCode(err, apierr.InvalidArgument) {
		t.Errorf("bad tier: expected InvalidArgument, got %v", err)
	}
	if _, _, err := svc.Subscribe(context.Background(), client, uuid.New(), models.TierBasic); !apierr.IsCode(err, apierr.NotFound) {
		t.Errorf("unknown agent: expected NotFound, got %v", err)
	}
	subs.subs[existing.ID] = existing
	if _, _, err := svc.Subscribe(context.Background(), client, agent.ID, models.TierBasic); !apierr.IsCode(err, apierr.FailedPrecondition) {
		t.Errorf("already subscribed: expected FailedPrecondition, got %v", err)
	}
	if len(led.opened) != 0 {
		t.Error("rejected subscriptions must not open payments")
	}
}

func TestCheckAndCancel(t *testing.T) {
	svc, subs, _, client, agent := newSubscriptionFixture()

	got, err := svc.Check(context.Background(), client, agent.ID)
	if err != nil || got != nil {
		t.Fatalf("expected no subscription, got %v %v", got, err)
	}

	sub := &models.Subscription{ID: uuid.New(), UserID: client.ID, AgentID: agent.ID, TasksPerMonth: 5, TasksUsed: 2, Status: models.SubscriptionStatusActive}
	subs.subs[sub.ID] = sub
	got, err = svc.Check(context.Background(), client, agent.ID)
	if err != nil || got == nil || got.Remaining() != 3 {
		t.Fatalf("expected active subscription with 3 remaining, got %+v %v", got, err)
	}

	if err := svc.Cancel(context.Background(), newUser("stranger"), sub.ID); !apierr.IsCode(err, apierr.PermissionDenied) {
		t.Errorf("stranger: expected PermissionDenied, got %v", err)
	}
	if err := svc.Cancel(context.Background(), client, sub.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := svc.Cancel(context.Background(), client, sub.ID); !apierr.IsCode(err, apierr.Conflict) {
		t.Errorf("second cancel: expected Conflict, got %v", err)
	}
	if err := svc.Cancel(context.Background(), client, uuid.New()); !apierr.IsCode(err, apierr.NotFound) {
		t.Errorf("missing: expected NotFound, got %v", err)
	}
}

func TestCancel_PendingStaysPayable(t *testing.T) {
	svc, subs, _, client, agent := newSubscriptionFixture()
	sub := &models.Subscription{ID: uuid.New(), UserID: client.ID, AgentID: agent.ID, TasksPerMonth: 5, Status: models.SubscriptionStatusPending}
	subs.subs[sub.ID] = sub

	if err := svc.Cancel(context.Background(), client, sub.ID); !apierr.IsCode(err, apierr.Conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if sub.Status != models.SubscriptionStatusPending || sub.CancelledAt != nil {
		t.Fatalf("pending subscription changed: %+v", sub)
	}
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

type mockNotificationStore struct {
	created   []*models.Notification
	createErr error
	markedAll bool
	marked    []uuid.UUID
	unread    int
}

func (m *mockNotificationStore) Create(_ context.Context, n *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, n)
	return nil
}
func (m *mockNotificationStore) ListRecent(_ context.Context, _ uuid.UUID, limit int) ([]*models.Notification, error) {
	if len(m.created) > limit {
		return m.created[:limit], nil
	}
	return m.created, nil
}
func (m *mockNotificationStore) MarkRead(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	for _, n := range m.created {
		if n.ID == id {
			m.marked = append(m.marked, id)
			return nil
		}
	}
	return models.ErrNotFound
}
func (m *mockNotificationStore) MarkAllRead(context.Context, uuid.UUID) error {
	m.markedAll = true
	return nil
}
func (m *mockNotificationStore) CountUnread(context.Context, uuid.UUID) (int, error) {
	return m.unread, nil
}

func TestNotificationService(t *testing.T) {
	store := &mockNotificationStore{unread: 4}
	svc := &NotificationService{Store: store, Logger: discardLogger()}
	user := newUser("client")
	ctx := context.Background()

	svc.Notify(ctx, user.ID, models.NotificationTaskCompleted, "Task Completed!", "done", map[string]string{"task_id": "t1"})
	if len(store.created) != 1 || store.created[0].Data["task_id"] != "t1" {
		t.Fatalf("expected one stored notification, got %+v", store.created)
	}

	if err := svc.MarkRead(ctx, user, &store.created[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	missing := uuid.New()
	if err := svc.MarkRead(ctx, user, &missing); !apierr.IsCode(err, apierr.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if err := svc.MarkRead(ctx, user, nil); err != nil || !store.markedAll {
		t.Errorf("expected mark-all, got %v", err)
	}
	if n, _ := svc.UnreadCount(ctx, user); n != 4 {
		t.Errorf("expected 4 unread, got %d", n)
	}
}

func TestNotify_SwallowsStoreErrors(t *testing.T) {
	store := &mockNotificationStore{createErr: errors.New("db down")}
	svc := &NotificationService{Store: store, Logger: discardLogger()}
	svc.Notify(context.Background(), uuid.New(), models.NotificationTaskCreated, "t", "m", nil)
	if len(store.created) != 0 {
		t.Error("nothing should be stored")
	}
}
