package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopfront-hq/shopfront/internal/auth"
)

// Event represents a single auditable action in the system.
type Event struct {
	TenantID     uuid.UUID
	UserID       *uuid.UUID // nil for webhook and worker events
	Action       string     // e.g. "bot.created", "order.accepted", "access.denied"
	ResourceType string     // e.g. "bot", "product", "order"
	ResourceID   *uuid.UUID
	Metadata     map[string]any
	Source       string // "api", "telegram", "system"
}

const (
	SourceAPI      = "api"
	SourceTelegram = "telegram"
	SourceSystem   = "system"
)

const (
	ActionBotCreated      = "bot.created"
	ActionBotUpdated      = "bot.updated"
	ActionBotDeleted      = "bot.deleted"
	ActionBotWebhookSet   = "bot.webhook_set"
	ActionBotWebhookUnset = "bot.webhook_unset"

	ActionCategoryCreated = "category.created"
	ActionCategoryUpdated = "category.updated"
	ActionCategoryDeleted = "category.deleted"

	ActionProductCreated   = "product.created"
	ActionProductUpdated   = "product.updated"
	ActionProductDeleted   = "product.deleted"
	ActionProductsImported = "product.imported"

	ActionOrderSubmitted = "order.submitted"
	ActionOrderAccepted  = "order.accepted"
	ActionOrderDeclined  = "order.declined"
	ActionOrderCanceled  = "order.canceled"
	ActionOrderCompleted = "order.completed"

	ActionSubscriberBanned   = "subscriber.banned"
	ActionSubscriberUnbanned = "subscriber.unbanned"

	ActionMailingCreated  = "mailing.created"
	ActionMailingUpdated  = "mailing.updated"
	ActionMailingDeleted  = "mailing.deleted"
	ActionMailingSent     = "mailing.sent"
	ActionMailingRecalled = "mailing.recalled"

	ActionModeratorCreated         = "moderator.created"
	ActionModeratorDeactivated     = "moderator.deactivated"
	ActionModeratorPasswordChanged = "moderator.password_changed"

	ActionTenantCreated       = "tenant.created"
	ActionTenantStatusChanged = "tenant.status_changed"

	ActionWebhookRejected = "webhook.rejected"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ActorIDFromContext extracts the authenticated moderator's UUID from ctx,
// or nil when there is none.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	identity := auth.GetIdentity(ctx)
	if identity == nil {
		return nil
	}
	uid, err := uuid.Parse(identity.UserID)
	if err != nil {
		return nil
	}
	return &uid
}

// ParseID returns a pointer to the parsed UUID or nil when id is not one.
func ParseID(id string) *uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	return &parsed
}

// API builds an API-sourced event for the moderator in ctx.
func API(ctx context.Context, tenantID, action, resourceType, resourceID string, metadata map[string]any) Event {
	evt := Event{
		UserID:       ActorIDFromContext(ctx),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   ParseID(resourceID),
		Metadata:     metadata,
		Source:       SourceAPI,
	}
	if tid := ParseID(tenantID); tid != nil {
		evt.TenantID = *tid
	}
	return evt
}

// Telegram builds an event raised by a subscriber through a bot webhook.
func Telegram(tenantID, action, resourceType, resourceID string, metadata map[string]any) Event {
	evt := Event{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   ParseID(resourceID),
		Metadata:     metadata,
		Source:       SourceTelegram,
	}
	if tid := ParseID(tenantID); tid != nil {
		evt.TenantID = *tid
	}
	return evt
}
