package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// signingMethod is the only algorithm tokens are issued or accepted with.
var signingMethod = jwt.SigningMethodHS256

type shopfrontClaims struct {
	jwt.RegisteredClaims
	UserID          string   `json:"uid"`
	TenantID        string   `json:"tid"`
	Username        string   `json:"usr,omitempty"`
	Email           string   `json:"email,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	IsPlatformAdmin bool     `json:"padm,omitempty"`
	TokenType       string   `json:"type"`
}

func (c *shopfrontClaims) identity() *Identity {
	return &Identity{
		UserID:          c.UserID,
		TenantID:        c.TenantID,
		Username:        c.Username,
		Email:           c.Email,
		Roles:           c.Roles,
		IsPlatformAdmin: c.IsPlatformAdmin,
		TokenType:       c.TokenType,
	}
}

// TokenService issues and verifies moderator session tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        map[string]time.Duration
}

func NewTokenService(signingKey, issuer string, expiryHours, refreshExpiryHours int) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl: map[string]time.Duration{
			TokenTypeAccess:  time.Duration(expiryHours) * time.Hour,
			TokenTypeRefresh: time.Duration(refreshExpiryHours) * time.Hour,
		},
	}
}

func (s *TokenService) CreateAccessToken(identity *Identity) (string, error) {
	return s.sign(identity, TokenTypeAccess)
}

func (s *TokenService) CreateRefreshToken(identity *Identity) (string, error) {
	return s.sign(identity, TokenTypeRefresh)
}

func (s *TokenService) sign(identity *Identity, tokenType string) (string, error) {
	now := time.Now()
	claims := shopfrontClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl[tokenType])),
		},
		UserID:          identity.UserID,
		TenantID:        identity.TenantID,
		Username:        identity.Username,
		Email:           identity.Email,
		Roles:           identity.Roles,
		IsPlatformAdmin: identity.IsPlatformAdmin,
		TokenType:       tokenType,
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the
// identity the token was issued for. Errors wrap ErrTokenExpired or
// ErrTokenInvalid.
func (s *TokenService) ValidateToken(tokenString string) (*Identity, error) {
	claims := &shopfrontClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.signingKey, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if _, known := s.ttl[claims.TokenType]; !known {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrTokenInvalid, claims.TokenType)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}
	return claims.identity(), nil
}
