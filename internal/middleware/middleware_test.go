package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/auth"
	"github.com/upmolt/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubKeyStore struct {
	agents  map[string]*models.Agent
	touched []uuid.UUID
	err     error
}

func (s *stubKeyStore) GetByAPIKeyHash(_ context.Context, hash string) (*models.Agent, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.agents[hash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func (s *stubKeyStore) TouchLastSeen(_ context.Context, id uuid.UUID) error {
	s.touched = append(s.touched, id)
	return nil
}

type stubAuthenticator struct {
	tokens map[string]*models.User
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*models.User, error) {
	if u, ok := s.tokens[token]; ok {
		return u, nil
	}
	return nil, auth.ErrInvalidToken
}

// echoHandler writes the name of whoever the context carries.
var echoHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if a := AgentFromCtx(r.Context()); a != nil {
		w.Write([]byte("agent:" + a.Name))
		return
	}
	if u := UserFromCtx(r.Context()); u != nil {
		w.Write([]byte("user:" + u.Email))
		return
	}
	w.Write([]byte("anonymous"))
})

func get(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// AgentKeyAuth
// ---------------------------------------------------------------------------

func TestAgentKeyAuth_ValidKey(t *testing.T) {
	key := models.AgentAPIKeyPrefix + "0123456789abcdef0123456789abcdef"
	agent := &models.Agent{ID: uuid.New(), Name: "Scout"}
	store := &stubKeyStore{agents: map[string]*models.Agent{HashAPIKey(key): agent}}

	rec := get(AgentKeyAuth(store, nil)(echoHandler), "Bearer "+key)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != "agent:Scout" {
		t.Errorf("expected agent in context, got %q", body)
	}
	if len(store.touched) != 1 || store.touched[0] != agent.ID {
		t.Errorf("expected last_seen touch for %s, got %v", agent.ID, store.touched)
	}
}

func TestAgentKeyAuth_Rejects(t *testing.T) {
	store := &stubKeyStore{agents: map[string]*models.Agent{}}
	mw := AgentKeyAuth(store, nil)(echoHandler)

	cases := []struct {
		name   string
		header string
	}{
		{"no header at all", ""},
		{"empty bearer", "Bearer "},
		{"wrong scheme", "Basic abc123"},
		{"not an agent key", "Bearer session-token"},
		{"unknown key", "Bearer umolt_ffffffffffffffffffffffffffffffff"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := get(mw, tc.header); rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
	if len(store.touched) != 0 {
		t.Errorf("rejected calls must not touch last_seen, got %v", store.touched)
	}
}

func TestAgentKeyAuth_StoreFailure(t *testing.T) {
	store := &stubKeyStore{err: errors.New("connection reset")}
	rec := get(AgentKeyAuth(store, nil)(echoHandler), "Bearer umolt_abc")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHashAPIKey(t *testing.T) {
	h := HashAPIKey("umolt_x")
	if len(h) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h))
	}
	if h == HashAPIKey("umolt_y") {
		t.Error("distinct keys must hash differently")
	}
}

// ---------------------------------------------------------------------------
// Session, RequireUser, RequireAdmin
// ---------------------------------------------------------------------------

func TestSession_AttachesUser(t *testing.T) {
	u := &models.User{ID: uuid.New(), Email: "ada@example.com"}
	mw := Session(stubAuthenticator{tokens: map[string]*models.User{"good": u}}, nil)(echoHandler)

	if body := get(mw, "Bearer good").Body.String(); body != "user:ada@example.com" {
		t.Errorf("expected user in context, got %q", body)
	}
	if body := get(mw, "Bearer bad").Body.String(); body != "anonymous" {
		t.Errorf("invalid token should pass through anonymous, got %q", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "good"})
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Body.String() != "user:ada@example.com" {
		t.Errorf("expected cookie session, got %q", rec.Body.String())
	}
}

func TestRequireUser(t *testing.T) {
	u := &models.User{ID: uuid.New(), Email: "ada@example.com"}
	h := Session(stubAuthenticator{tokens: map[string]*models.User{"good": u}}, nil)(RequireUser(nil)(echoHandler))

	if rec := get(h, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", rec.Code)
	}
	if rec := get(h, "Bearer good"); rec.Code != http.StatusOK {
		t.Errorf("signed in: expected 200, got %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	boss := &models.User{ID: uuid.New(), Email: "boss@upmolt.io"}
	client := &models.User{ID: uuid.New(), Email: "client@example.com"}
	isAdmin := func(_ context.Context, u *models.User) bool { return u.Email == "boss@upmolt.io" }

	h := Session(stubAuthenticator{tokens: map[string]*models.User{"boss": boss, "client": client}}, nil)(
		RequireAdmin(isAdmin, nil)(echoHandler),
	)

	cases := []struct {
		authz string
		want  int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer client", http.StatusForbidden},
		{"Bearer boss", http.StatusOK},
	}
	for _, c := range cases {
		if rec := get(h, c.authz); rec.Code != c.want {
			t.Errorf("%q: expected %d, got %d", c.authz, c.want, rec.Code)
		}
	}
}
