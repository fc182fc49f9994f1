package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/auth"
	"github.com/upmolt/backend/internal/models"
)

// Authenticator resolves a session token; auth.Service satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Session attaches the signed-in user to the context when a valid token is
// present. It never rejects; RequireUser does.
func Session(a Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" || isAgentKey(token) {
				next.ServeHTTP(w, r)
				return
			}
			u, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					log.Error("session lookup", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func isAgentKey(token string) bool {
	return strings.HasPrefix(token, models.AgentAPIKeyPrefix)
}

// RequireUser rejects requests without a session user.
func RequireUser(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromCtx(r.Context()) == nil {
				apierr.Write(w, log, apierr.New(apierr.Unauthenticated, "Unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin gates a route on the injected role predicate.
func RequireAdmin(isAdmin func(context.Context, *models.User) bool, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromCtx(r.Context())
			if u == nil {
				apierr.Write(w, log, apierr.New(apierr.Unauthenticated, "Unauthorized"))
				return
			}
			if !isAdmin(r.Context(), u) {
				apierr.Write(w, log, apierr.New(apierr.PermissionDenied, "Forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromCtx returns the session user or nil.
func UserFromCtx(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxUserKey).(*models.User)
	return u
}

// WithUser returns a context carrying the given user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxUserKey, u)
}
