// Package mailings manages broadcast posts of a bot: drafting, scheduling,
// fan-out to subscribers through the outbox and recall.
package mailings

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrPostNotFound   = errors.New("post not found")
	ErrTextRequired   = errors.New("post text is required")
	ErrTextTooLong    = errors.New("post text is too long")
	ErrNotEditable    = errors.New("post can no longer be changed")
	ErrNotRecallable  = errors.New("only sending or sent posts can be recalled")
	ErrInvalidPhoto   = errors.New("photo_url must be an http or https url")
	ErrSendTimeNeeded = errors.New("send_time is required to schedule a post")
)

// Telegram limits: 4096 characters per message and 1024 per photo caption.
const (
	maxTextLen    = 4096
	maxCaptionLen = 1024
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusCanceled  Status = "canceled"
)

// Post fields are ordered like postColumns.
type Post struct {
	ID        string     `json:"id"`
	BotID     string     `json:"bot_id"`
	Text      string     `json:"text"`
	PhotoURL  string     `json:"photo_url"`
	SendTime  *time.Time `json:"send_time,omitempty"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Editable reports whether moderators may still change the post.
func (p *Post) Editable() bool {
	return p.Status == StatusDraft || p.Status == StatusScheduled
}

type SentMessage struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ChatID    int64     `json:"chat_id"`
	MessageID int       `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Input is the writable part of a post. Schedule without SendTime is
// rejected; a past SendTime sends on the next scheduler tick.
type Input struct {
	Text     string     `json:"text"`
	PhotoURL string     `json:"photo_url"`
	SendTime *time.Time `json:"send_time"`
	Schedule bool       `json:"schedule"`
}

func (in *Input) Validate() error {
	in.Text = strings.TrimSpace(in.Text)
	in.PhotoURL = strings.TrimSpace(in.PhotoURL)
	if in.Text == "" {
		return ErrTextRequired
	}
	limit := maxTextLen
	if in.PhotoURL != "" {
		limit = maxCaptionLen
		if !strings.HasPrefix(in.PhotoURL, "https://") && !strings.HasPrefix(in.PhotoURL, "http://") {
			return ErrInvalidPhoto
		}
	}
	if utf8.RuneCountInString(in.Text) > limit {
		return ErrTextTooLong
	}
	if in.Schedule && in.SendTime == nil {
		return ErrSendTimeNeeded
	}
	return nil
}

func (in *Input) status() Status {
	if in.Schedule {
		return StatusScheduled
	}
	return StatusDraft
}
