// Package outbox is the durable per-tenant queue of Telegram deliveries:
// mailing posts and order status notifications.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMailing     Kind = "mailing"
	KindOrderStatus Kind = "order_status"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusDead    Status = "dead"
)

// Job is one queued delivery to a single chat.
type Job struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	BotID         string          `json:"bot_id"`
	Kind          Kind            `json:"kind"`
	ChatID        int64           `json:"chat_id"`
	PostID        *string         `json:"post_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	AttemptCount  int             `json:"attempt_count"`
	MaxAttempts   int             `json:"max_attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	LockedAt      *time.Time      `json:"locked_at,omitempty"`
	LastError     *string         `json:"last_error,omitempty"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Message is the payload of both job kinds. PhotoURL is only set for
// mailings with a picture; the text then becomes the caption.
type Message struct {
	Text     string `json:"text"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// Decode reads the job payload.
func (j Job) Decode() (Message, error) {
	var m Message
	if err := json.Unmarshal(j.Payload, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// NewJob describes a job to enqueue.
type NewJob struct {
	BotID   string
	Kind    Kind
	ChatID  int64
	PostID  *string
	Message Message
}
