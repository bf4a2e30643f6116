// Package identity is the store-backed account directory used to provision
// invitees who have no account yet.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"membershare/src/apperr"
	"membershare/src/models"
	"membershare/src/storage"
)

const maxUsernameSuffix = 10_000

// Directory implements account lookup and creation.
type Directory struct {
	store storage.AccountStore
	cost  int
}

func NewDirectory(store storage.AccountStore) *Directory {
	return &Directory{store: store, cost: bcrypt.DefaultCost}
}

func (d *Directory) LookupByEmail(ctx context.Context, email string) (models.Account, bool, error) {
	account, err := d.store.GetAccountByEmail(ctx, email)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return models.Account{}, false, nil
	}
	if err != nil {
		return models.Account{}, false, err
	}
	return account, true, nil
}

// RegisterAccount records an account whose id was assigned upstream, such as a
// commerce buyer. Registering the same id and email again returns the stored
// account. An id or email already bound to someone else is a conflict.
func (d *Directory) RegisterAccount(ctx context.Context, id int64, email, displayName string) (models.Account, error) {
	if id == 0 {
		return models.Account{}, apperr.MissingField("user id")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return models.Account{}, apperr.MissingField("email")
	}

	existing, err := d.store.GetAccount(ctx, id)
	if err == nil {
		if !sameEmail(existing.Email, email) {
			return models.Account{}, apperr.Conflict("user id is registered to a different email")
		}
		return existing, nil
	}
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		return models.Account{}, err
	}

	if other, found, err := d.LookupByEmail(ctx, email); err != nil {
		return models.Account{}, err
	} else if found {
		if other.ID != id {
			return models.Account{}, apperr.Conflict("email is registered to a different user id")
		}
		return other, nil
	}

	account, err := d.newAccount(ctx, email, displayName)
	if err != nil {
		return models.Account{}, err
	}
	account.ID = id
	return d.store.CreateAccount(ctx, account)
}

// CreateAccount provisions an account keyed by email with a random password.
func (d *Directory) CreateAccount(ctx context.Context, email, displayName string) (models.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return models.Account{}, apperr.MissingField("email")
	}
	account, err := d.newAccount(ctx, email, displayName)
	if err != nil {
		return models.Account{}, err
	}
	return d.store.CreateAccount(ctx, account)
}

func (d *Directory) DeleteAccount(ctx context.Context, id int64) error {
	return d.store.DeleteAccount(ctx, id)
}

func (d *Directory) newAccount(ctx context.Context, email, displayName string) (models.Account, error) {
	username, err := d.uniqueUsername(ctx, UsernameBase(email))
	if err != nil {
		return models.Account{}, err
	}

	password, err := randomPassword()
	if err != nil {
		return models.Account{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	if displayName == "" {
		displayName = username
	}
	return models.Account{
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}, nil
}

func sameEmail(a, b string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(a)) == fold.String(strings.TrimSpace(b))
}

// UsernameBase derives a username from an email's local part, keeping
// letters, digits, dot, dash and underscore.
func UsernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "member"
	}
	return b.String()
}

func (d *Directory) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; i <= maxUsernameSuffix; i++ {
		exists, err := d.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return "", apperr.Conflict("could not find a free username")
}

func randomPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
