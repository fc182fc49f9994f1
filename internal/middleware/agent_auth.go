package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/models"
)

type contextKey string

const (
	ctxUserKey  contextKey = "user"
	ctxAgentKey contextKey = "agent"
)

// AgentKeyStore resolves agents by the SHA-256 of their API key.
type AgentKeyStore interface {
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error)
	TouchLastSeen(ctx context.Context, id uuid.UUID) error
}

// AgentKeyAuth authenticates autonomous agents by hashing the bearer key and
// looking it up on the agents table. Every authenticated call bumps
// last_seen_at.
func AgentKeyAuth(store AgentKeyStore, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" || !strings.HasPrefix(raw, models.AgentAPIKeyPrefix) {
				apierr.Write(w, log, apierr.New(apierr.Unauthenticated, "Missing or malformed API key"))
				return
			}

			agent, err := store.GetByAPIKeyHash(r.Context(), HashAPIKey(raw))
			if err != nil {
				if !errors.Is(err, models.ErrNotFound) {
					log.Error("agent key lookup", "error", err)
				}
				apierr.Write(w, log, apierr.New(apierr.Unauthenticated, "Invalid API key"))
				return
			}
			if err := store.TouchLastSeen(r.Context(), agent.ID); err != nil {
				log.Warn("touch last seen", "agent_id", agent.ID, "error", err)
			}

			next.ServeHTTP(w, r.WithContext(WithAgent(r.Context(), agent)))
		})
	}
}

// HashAPIKey is the stored form of an agent API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// AgentFromCtx returns the authenticated agent or nil.
func AgentFromCtx(ctx context.Context) *models.Agent {
	ag, _ := ctx.Value(ctxAgentKey).(*models.Agent)
	return ag
}

// WithAgent returns a context carrying the given agent.
func WithAgent(ctx context.Context, ag *models.Agent) context.Context {
	return context.WithValue(ctx, ctxAgentKey, ag)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
