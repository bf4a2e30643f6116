package services

import (
	"context"
	"net/mail"
	"strings"

	"golang.org/x/text/cases"

	"membershare/src/apperr"
	"membershare/src/models"
)

// InvitationMessage is everything a notifier needs to render an invitation
// or reminder email.
type InvitationMessage struct {
	Email     string
	Token     string
	AcceptURL string
	GroupID   int64
	GroupName string
	OwnerName string
	ExpiresAt int64
}

// Notifier delivers invitation emails. A non-nil error means the message
// was not handed off.
type Notifier interface {
	SendInvitation(ctx context.Context, msg InvitationMessage) error
	SendReminder(ctx context.Context, msg InvitationMessage) error
}

// Identity is the account directory. Buyers are registered under the id the
// commerce platform reports; invitees without a session get generated ids,
// which never reuse a registered one.
type Identity interface {
	LookupByEmail(ctx context.Context, email string) (models.Account, bool, error)
	RegisterAccount(ctx context.Context, id int64, email, displayName string) (models.Account, error)
	CreateAccount(ctx context.Context, email, displayName string) (models.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
}

// SessionIssuer mints a bearer token for an account created during accept.
type SessionIssuer interface {
	IssueSession(account models.Account) (string, error)
}

var emailFolder = cases.Fold()

// NormalizeEmail trims and case-folds an address for comparison and storage.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// ParseEmail validates a user-supplied address and returns its normalized form.
func ParseEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.MissingField("email")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInvalid, "invalid email address", err)
	}
	return NormalizeEmail(addr.Address), nil
}

func requireIdentified(p models.Principal) error {
	if p.Anonymous() {
		return apperr.New(apperr.CodeUnauthenticated, "sign in required")
	}
	return nil
}

func requireAdmin(p models.Principal) error {
	if err := requireIdentified(p); err != nil {
		return err
	}
	if !p.Admin {
		return apperr.Forbidden("admin access required")
	}
	return nil
}
