package rbac

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopfront-hq/shopfront/internal/auth"
)

// Evaluator is the in-memory RBAC policy evaluation engine.
type Evaluator struct {
	roles map[string][]string // roleName → permissions
	mu    sync.RWMutex
}

// NewEvaluator returns an evaluator preloaded with roles. Pass
// DefaultRoles() for the production table.
func NewEvaluator(roles map[string][]string) *Evaluator {
	e := &Evaluator{roles: make(map[string][]string, len(roles))}
	for name, perms := range roles {
		e.roles[name] = perms
	}
	return e
}

// RegisterRole adds or replaces a role.
func (e *Evaluator) RegisterRole(name string, permissions []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roles[name] = permissions
}

// Authorize checks whether the identity holds action. Platform admins are
// allowed everything; otherwise evaluation is deny-by-default.
func (e *Evaluator) Authorize(_ context.Context, identity *auth.Identity, action string) (*Decision, error) {
	if identity == nil {
		return &Decision{Allowed: false, Reason: "no identity"}, nil
	}
	if identity.IsPlatformAdmin {
		return &Decision{Allowed: true}, nil
	}

	if e.checkRolePermissions(identity.Roles, action) {
		return &Decision{Allowed: true}, nil
	}

	return &Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("no permission for %s", action),
	}, nil
}

func (e *Evaluator) checkRolePermissions(roles []string, action string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, role := range roles {
		for _, perm := range e.roles[role] {
			if matches(perm, action) {
				return true
			}
		}
	}
	return false
}

// matches supports "*" and resource wildcards such as "catalog:*".
func matches(perm, action string) bool {
	if perm == "*" || perm == action {
		return true
	}
	if prefix, ok := strings.CutSuffix(perm, ":*"); ok {
		resource, _, _ := strings.Cut(action, ":")
		return resource == prefix
	}
	return false
}
