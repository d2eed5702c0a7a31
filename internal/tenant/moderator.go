package tenant

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"regexp"
	"time"
)

var (
	ErrModeratorNotFound = errors.New("moderator not found")
	ErrEmailInvalid      = errors.New("invalid email address")
	ErrUsernameInvalid   = errors.New("invalid username")
	ErrLoginTaken        = errors.New("email or username already in use")
	ErrRoleInvalid       = errors.New("invalid role")
	ErrSelfDeactivation  = errors.New("cannot deactivate yourself")
)

const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
)

// Moderator is a site operator who manages the tenant's bots.
type Moderator struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewModerator is the input for ModeratorStore.Create.
type NewModerator struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Password  string `json:"password,omitempty"`
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// Validate normalizes the role and checks email and username.
func (m *NewModerator) Validate() error {
	if err := ValidateEmail(m.Email); err != nil {
		return err
	}
	if !usernamePattern.MatchString(m.Username) {
		return fmt.Errorf("%w: 3-64 letters, digits, '_', '.' or '-'", ErrUsernameInvalid)
	}
	switch m.Role {
	case "":
		m.Role = RoleModerator
	case RoleOwner, RoleModerator:
	default:
		return fmt.Errorf("%w: %q", ErrRoleInvalid, m.Role)
	}
	return nil
}

// ValidateEmail checks that an email address is syntactically valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrEmailInvalid)
	}
	_, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEmailInvalid, err)
	}
	return nil
}

const (
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordLength   = 8
)

// GeneratePassword returns a random 8 character password of letters and digits.
func GeneratePassword() (string, error) {
	buf := make([]byte, passwordLength)
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}
