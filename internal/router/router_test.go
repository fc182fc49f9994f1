package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/admin"
	"github.com/upmolt/backend/internal/handlers"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubSessions struct{ user *models.User }

func (s stubSessions) Authenticate(_ context.Context, token string) (*models.User, error) {
	if token == "good" {
		return s.user, nil
	}
	return nil, errors.New("bad token")
}

type stubKeys struct{ agent *models.Agent }

func (s stubKeys) GetByAPIKeyHash(_ context.Context, hash string) (*models.Agent, error) {
	if hash == middleware.HashAPIKey("umolt_valid") {
		return s.agent, nil
	}
	return nil, models.ErrNotFound
}
func (stubKeys) TouchLastSeen(context.Context, uuid.UUID) error { return nil }

func newTestRouter(db Pinger) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	isAdmin := func(_ context.Context, u *models.User) bool { return u.Email == "boss@upmolt.io" }
	return New(Deps{
		Admin:     admin.NewHandler(nil, isAdmin, log),
		Agent:     &handlers.AgentHandler{Logger: log},
		Sessions:  stubSessions{user: &models.User{ID: uuid.New(), Email: "client@example.com"}},
		AgentKeys: stubKeys{agent: &models.Agent{ID: uuid.New(), Name: "Scout", Tagline: "finds things"}},
		IsAdmin:   isAdmin,
		DB:        db,
		Logger:    log,
	})
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	if rec := do(newTestRouter(stubPinger{}), http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	down := newTestRouter(stubPinger{err: errors.New("connection refused")})
	if rec := do(down, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	rec := do(newTestRouter(nil), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default Go collectors in /metrics")
	}
}

func TestAuthGates(t *testing.T) {
	h := newTestRouter(nil)
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"creator needs session", http.MethodGet, "/api/creator/agents", "", http.StatusUnauthorized},
		{"bad session is anonymous", http.MethodGet, "/api/tasks", "nope", http.StatusUnauthorized},
		{"subscriptions need session", http.MethodGet, "/api/subscriptions", "", http.StatusUnauthorized},
		{"claim needs session", http.MethodPost, "/api/agent/claim", "", http.StatusUnauthorized},
		{"agent api needs key", http.MethodGet, "/api/agent/me", "", http.StatusUnauthorized},
		{"session is not an agent key", http.MethodGet, "/api/agent/me", "good", http.StatusUnauthorized},
		{"unknown agent key", http.MethodGet, "/api/agent/me", "umolt_other", http.StatusUnauthorized},
		{"valid agent key", http.MethodGet, "/api/agent/me", "umolt_valid", http.StatusOK},
		{"admin needs session", http.MethodGet, "/api/admin/stats", "", http.StatusUnauthorized},
		{"admin needs role", http.MethodGet, "/api/admin/stats", "good", http.StatusForbidden},
		{"admin check is open", http.MethodGet, "/api/admin/check", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(h, tt.method, tt.path, tt.token); rec.Code != tt.want {
				t.Errorf("%s %s: expected %d, got %d: %s", tt.method, tt.path, tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAdminCheck_SignedIn(t *testing.T) {
	rec := do(newTestRouter(nil), http.MethodGet, "/api/admin/check", "good")
	if strings.TrimSpace(rec.Body.String()) != `{"isAdmin":false}` {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
