package audit

import (
	"context"

	"github.com/shopfront-hq/shopfront/internal/rbac"
)

// RBACAdapter lets an audit Logger receive rbac denial events.
type RBACAdapter struct {
	Logger Logger
}

// Log converts the rbac event and forwards it.
func (a RBACAdapter) Log(ctx context.Context, e rbac.AuditEvent) {
	a.Logger.Log(ctx, Event{
		TenantID:     e.TenantID,
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Metadata:     e.Metadata,
		Source:       e.Source,
	})
}
