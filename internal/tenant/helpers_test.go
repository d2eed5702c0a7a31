package tenant

import (
	"context"

	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
)

func withTenant(ctx context.Context, tenantID string) context.Context {
	return middleware.WithTenantID(ctx, tenantID)
}
