package auth

import (
	"errors"
)

var (
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Identity represents an authenticated moderator's claims.
type Identity struct {
	UserID          string   `json:"user_id"`
	TenantID        string   `json:"tenant_id"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	Roles           []string `json:"roles"`
	IsPlatformAdmin bool     `json:"is_platform_admin"`
	TokenType       string   `json:"token_type"` // "access" or "refresh"
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
