// Package subscribers tracks the Telegram users of every bot.
package subscribers

import (
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrSubscriberNotFound = errors.New("subscriber not found")

type Subscriber struct {
	ID        string     `json:"id"`
	BotID     string     `json:"bot_id"`
	ChatID    int64      `json:"chat_id"`
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Info      string     `json:"info"`
	Avatar    string     `json:"avatar"`
	IsActive  bool       `json:"is_active"`
	IsAdmin   bool       `json:"is_admin"`
	BannedAt  *time.Time `json:"banned_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (s *Subscriber) IsBanned() bool {
	return s.BannedAt != nil
}

// Profile is what a Telegram user tells us about themselves.
type Profile struct {
	ChatID   int64
	Name     string
	Username string
}

// ProfileFromUser builds a Profile, falling back to the full name when the
// user has no username.
func ProfileFromUser(u *tgbotapi.User) Profile {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	username := u.UserName
	if username == "" {
		username = name
	}
	return Profile{ChatID: u.ID, Name: name, Username: username}
}

// IsOperator reports whether the profile belongs to the bot's operator.
func (p Profile) IsOperator(operator string) bool {
	operator = strings.TrimPrefix(operator, "@")
	return operator != "" && strings.EqualFold(p.Username, operator)
}
