// Package policy resolves platform roles through an OPA rego module. The
// admin allow-list is policy data, so it can grow without a code change.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"

	"github.com/upmolt/backend/internal/models"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	roleQuery = "data.upmolt.admin.role"
)

//go:embed admin.rego
var defaultModule string

type AdminPolicy struct {
	query rego.PreparedEvalQuery
	log   *slog.Logger
}

// NewAdminPolicy compiles the role module against the given allow-list.
// modulePath replaces the embedded module when non-empty.
func NewAdminPolicy(ctx context.Context, admins []string, modulePath string, log *slog.Logger) (*AdminPolicy, error) {
	module := defaultModule
	name := "admin.rego"
	if modulePath != "" {
		b, err := os.ReadFile(modulePath)
		if err != nil {
			return nil, fmt.Errorf("read policy %q: %w", modulePath, err)
		}
		module, name = string(b), modulePath
	}

	list := make([]any, 0, len(admins))
	for _, a := range admins {
		if a = strings.TrimSpace(a); a != "" {
			list = append(list, a)
		}
	}
	store := inmem.NewFromObject(map[string]any{"admins": list})

	pq, err := rego.New(
		rego.Query(roleQuery),
		rego.Module(name, module),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile admin policy: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminPolicy{query: pq, log: log}, nil
}

// Role evaluates the user's platform role.
func (p *AdminPolicy) Role(ctx context.Context, u *models.User) (string, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(map[string]any{
		"id":    u.ID.String(),
		"email": u.Email,
	}))
	if err != nil {
		return "", fmt.Errorf("evaluate admin policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return RoleUser, nil
	}
	role, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return RoleUser, nil
	}
	return role, nil
}

// IsAdmin is the predicate handed to the admin gate. Evaluation errors deny.
func (p *AdminPolicy) IsAdmin(ctx context.Context, u *models.User) bool {
	if u == nil {
		return false
	}
	role, err := p.Role(ctx, u)
	if err != nil {
		p.log.Error("admin policy", "user_id", u.ID, "error", err)
		return false
	}
	return role == RoleAdmin
}
