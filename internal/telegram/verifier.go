package telegram

import (
	"crypto/hmac"
	"errors"
	"net/http"
)

const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

var (
	ErrMissingSecret = errors.New("missing webhook secret token")
	ErrInvalidSecret = errors.New("invalid webhook secret token")
)

// Verifier validates the secret token Telegram echoes on webhook deliveries.
// An empty configured secret disables the check.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(headers http.Header) error {
	if v == nil || v.secret == "" {
		return nil
	}
	got := headers.Get(SecretHeader)
	if got == "" {
		return ErrMissingSecret
	}
	if !hmac.Equal([]byte(got), []byte(v.secret)) {
		return ErrInvalidSecret
	}
	return nil
}
