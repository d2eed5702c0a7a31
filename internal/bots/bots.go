// Package bots manages the Telegram shop fronts of a tenant and keeps their
// webhooks registered with Telegram.
package bots

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrBotNotFound      = errors.New("bot not found")
	ErrNameRequired     = errors.New("bot name is required")
	ErrNameTooLong      = errors.New("bot name must be at most 128 characters")
	ErrTokenRequired    = errors.New("bot token is required")
	ErrNameTaken        = errors.New("bot name already exists")
	ErrTokenTaken       = errors.New("bot token is already used by another bot")
	ErrTermsOfAgreement = errors.New("a bot cannot be created without accepting the terms of agreement")
	ErrInvalidReference = errors.New("unknown country, delivery type, payment type or currency")
)

// Bot is one Telegram shop front.
type Bot struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Description      string    `json:"description"`
	Token            string    `json:"-"`
	OwnerID          *string   `json:"owner_id,omitempty"`
	TelegramOperator string    `json:"telegram_operator"`
	CurrencyID       *string   `json:"currency_id,omitempty"`
	CurrencySymbol   string    `json:"currency_symbol"`
	IsWebhookSet     bool      `json:"is_webhook_set"`
	WelcomeText      string    `json:"welcome_text"`
	TermsOfAgreement bool      `json:"terms_of_agreement"`
	CountryIDs       []string  `json:"country_ids"`
	DeliveryTypeIDs  []string  `json:"delivery_type_ids"`
	PaymentTypeIDs   []string  `json:"payment_type_ids"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Input carries the writable fields of a bot.
type Input struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Token            string   `json:"token"`
	TelegramOperator string   `json:"telegram_operator"`
	CurrencyID       *string  `json:"currency_id"`
	WelcomeText      string   `json:"welcome_text"`
	TermsOfAgreement bool     `json:"terms_of_agreement"`
	CountryIDs       []string `json:"country_ids"`
	DeliveryTypeIDs  []string `json:"delivery_type_ids"`
	PaymentTypeIDs   []string `json:"payment_type_ids"`
}

// Normalize trims the input and strips a leading "@" from the operator.
func (in *Input) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Token = strings.TrimSpace(in.Token)
	in.TelegramOperator = strings.TrimPrefix(strings.TrimSpace(in.TelegramOperator), "@")
	if in.CurrencyID != nil && *in.CurrencyID == "" {
		in.CurrencyID = nil
	}
}

func (in *Input) Validate() error {
	in.Normalize()
	if in.Name == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(in.Name) > 128 {
		return ErrNameTooLong
	}
	if in.Token == "" {
		return ErrTokenRequired
	}
	for _, ids := range [][]string{in.CountryIDs, in.DeliveryTypeIDs, in.PaymentTypeIDs} {
		for _, id := range ids {
			if _, err := uuid.Parse(id); err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidReference, id)
			}
		}
	}
	if in.CurrencyID != nil {
		if _, err := uuid.Parse(*in.CurrencyID); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidReference, *in.CurrencyID)
		}
	}
	return nil
}

// Route maps a public webhook slug to the bot and its tenant.
type Route struct {
	Slug     string
	BotID    string
	TenantID string
}
