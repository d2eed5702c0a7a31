// Package tenant manages operator accounts and the moderators who work in
// them.
package tenant

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopfront-hq/shopfront/internal/platform/slug"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrSlugTaken      = errors.New("tenant slug already in use")
	ErrInvalidSlug    = errors.New("invalid tenant slug")
	ErrInvalidStatus  = errors.New("invalid tenant status")
)

// Tenant statuses. Background workers only sweep active tenants.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

const (
	minSlugLen = 3
	maxSlugLen = 63
)

// Tenant is an operator account. Every bot, catalog and order belongs to one.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Paths a tenant slug would shadow.
var reservedSlugs = map[string]bool{
	"api": true, "www": true, "admin": true, "auth": true,
	"telegram": true, "static": true, "healthz": true, "readyz": true,
}

// ValidateSlug accepts exactly the slugs slug.Make produces, 3 to 63
// characters long and not reserved.
func ValidateSlug(s string) error {
	if n := len(s); n < minSlugLen || n > maxSlugLen {
		return fmt.Errorf("%w: length must be %d-%d", ErrInvalidSlug, minSlugLen, maxSlugLen)
	}
	if slug.Make(s) != s {
		return fmt.Errorf("%w: only lowercase letters, digits and inner hyphens", ErrInvalidSlug)
	}
	if reservedSlugs[s] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSlug, s)
	}
	return nil
}

// slugFor returns the requested slug, or one derived from name.
func slugFor(name, requested string) string {
	if requested != "" {
		return requested
	}
	return slug.Make(name)
}
