package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

var ErrNoRecipient = errors.New("mail recipient is required")

// Sender delivers a single message with a plain text and an optional HTML part.
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP sends mail through an authenticated SMTP relay.
type SMTP struct {
	cfg  Config
	opts []mail.Option
}

// NewSMTP creates an SMTP sender. Authentication is enabled when a username is set.
func NewSMTP(cfg Config) *SMTP {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return &SMTP{cfg: cfg, opts: opts}
}

func (s *SMTP) Send(ctx context.Context, to, subject, text, html string) error {
	msg, err := buildMessage(s.cfg.From, to, subject, text, html)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, text, html string) (*mail.Msg, error) {
	if to == "" {
		return nil, ErrNoRecipient
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("setting sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	if html != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, html)
	}
	return msg, nil
}

// Nop logs and discards messages. Used when mail is disabled.
type Nop struct {
	Logger *slog.Logger
}

func (n Nop) Send(_ context.Context, to, subject, _, _ string) error {
	if to == "" {
		return ErrNoRecipient
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail disabled, message dropped", "to", to, "subject", subject)
	return nil
}
