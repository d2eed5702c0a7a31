package rbac

import (
	"context"

	"github.com/shopfront-hq/shopfront/internal/auth"
)

const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
)

// Permissions checked by the HTTP surface.
const (
	PermBotsRead        = "bots:read"
	PermBotsWrite       = "bots:write"
	PermCatalogRead     = "catalog:read"
	PermCatalogWrite    = "catalog:write"
	PermOrdersRead      = "orders:read"
	PermOrdersWrite     = "orders:write"
	PermSubscribersRead = "subscribers:read"
	PermSubscribersBan  = "subscribers:write"
	PermMailingsRead    = "mailings:read"
	PermMailingsWrite   = "mailings:write"
	PermReferenceRead   = "reference:read"
	PermModeratorsRead  = "moderators:read"
	PermModeratorsWrite = "moderators:write"
	PermAuditRead       = "audit:read"
)

// Decision represents the result of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// PolicyEngine defines the authorization interface.
type PolicyEngine interface {
	Authorize(ctx context.Context, identity *auth.Identity, action string) (*Decision, error)
}

// DefaultRoles returns the built-in role table.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		RoleOwner: {"*"},
		RoleModerator: {
			"catalog:*",
			"orders:*",
			"subscribers:*",
			"mailings:*",
			PermBotsRead,
			PermReferenceRead,
		},
	}
}
