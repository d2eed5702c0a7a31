package middleware

import (
	"context"
	"net/http"

	"github.com/shopfront-hq/shopfront/internal/auth"
)

// TenantHeader lets a platform admin work inside another operator account.
// It is ignored for everyone else.
const TenantHeader = "X-Tenant-ID"

type tenantContextKey struct{}

// TenantContext puts the tenant the request acts for into the context,
// where handlers pick it up for RLS. That is the moderator's own tenant,
// or the TenantHeader value for platform admins.
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())
		if identity == nil {
			next.ServeHTTP(w, r)
			return
		}

		tenantID := identity.TenantID
		if override := r.Header.Get(TenantHeader); override != "" && identity.IsPlatformAdmin {
			tenantID = override
		}
		if tenantID == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTenantID(r.Context(), tenantID)))
	})
}

// WithTenantID stores tenantID in ctx. The webhook uses it after resolving
// a bot slug, since subscribers carry no identity.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

func GetTenantID(ctx context.Context) string {
	id, _ := ctx.Value(tenantContextKey{}).(string)
	return id
}
