package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrMalformedHeader   = errors.New("invalid authorization header format")
)

// devToken is the bearer value accepted in dev mode.
const devToken = "dev"

type identityContextKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// GetIdentity returns the authenticated moderator, or nil.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*Identity)
	return identity
}

// Middleware rejects requests without a valid access token.
func Middleware(tokenSvc *TokenService) func(http.Handler) http.Handler {
	return MiddlewareWithDevMode(tokenSvc, nil)
}

// MiddlewareWithDevMode also accepts "Bearer dev" and maps it to
// devIdentity. A nil devIdentity disables the shortcut.
func MiddlewareWithDevMode(tokenSvc *TokenService, devIdentity *Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authenticate(r, tokenSvc, devIdentity)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="shopfront"`)
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func authenticate(r *http.Request, tokenSvc *TokenService, devIdentity *Identity) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingAuthHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, ErrMalformedHeader
	}

	if token == devToken && devIdentity != nil {
		return devIdentity, nil
	}

	identity, err := tokenSvc.ValidateToken(token)
	if err != nil {
		return nil, errors.New("invalid token")
	}
	// Refresh tokens are only good for /auth/token/refresh.
	if identity.TokenType != TokenTypeAccess {
		return nil, errors.New("access token required")
	}
	return identity, nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
