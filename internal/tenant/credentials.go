package tenant

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/shopfront-hq/shopfront/internal/mailer"
)

// CredentialsMailer emails login details to newly created moderators.
// Delivery failures are logged and never fail the request.
type CredentialsMailer struct {
	sender  mailer.Sender
	siteURL string
	logger  *slog.Logger
}

func NewCredentialsMailer(sender mailer.Sender, siteURL string, logger *slog.Logger) *CredentialsMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialsMailer{sender: sender, siteURL: siteURL, logger: logger}
}

func (c *CredentialsMailer) Send(ctx context.Context, m *Moderator, password string) {
	if c == nil || c.sender == nil {
		return
	}
	subject := "Your Shopfront moderator account"
	text := fmt.Sprintf("Site: %s\nUsername: %s\nPassword: %s\n", c.siteURL, m.Username, password)
	body := fmt.Sprintf("<p>Site: %s</p><p>Username: <b>%s</b></p><p>Password: <b>%s</b></p>",
		html.EscapeString(c.siteURL), html.EscapeString(m.Username), html.EscapeString(password))

	if err := c.sender.Send(ctx, m.Email, subject, text, body); err != nil {
		c.logger.Error("sending moderator credentials", "moderator_id", m.ID, "error", err)
	}
}
