// Package auth issues and verifies the bearer tokens that carry the acting
// principal.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"membershare/src/apperr"
	"membershare/src/models"
)

const RoleAdmin = "admin"

// Claims is the token payload. Subject holds the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Sessions signs HS256 tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for p.
func (s *Sessions) Issue(p models.Principal) (string, error) {
	now := s.now()
	claims := Claims{
		Email: p.Email,
		Name:  p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if p.Admin {
		claims.Role = RoleAdmin
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// IssueSession signs a token for a freshly created account.
func (s *Sessions) IssueSession(account models.Account) (string, error) {
	return s.Issue(models.Principal{UserID: account.ID, Email: account.Email, Name: account.DisplayName})
}

// Parse verifies raw and returns its principal.
func (s *Sessions) Parse(raw string) (models.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Principal{}, apperr.Wrap(apperr.CodeUnauthenticated, "session expired", err)
		}
		return models.Principal{}, apperr.Wrap(apperr.CodeUnauthenticated, "invalid session token", err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return models.Principal{}, apperr.New(apperr.CodeUnauthenticated, "invalid session subject")
	}
	return models.Principal{
		UserID: userID,
		Email:  claims.Email,
		Name:   claims.Name,
		Admin:  claims.Role == RoleAdmin,
	}, nil
}
