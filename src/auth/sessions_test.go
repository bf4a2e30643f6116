package auth

import (
	"testing"
	"time"

	"membershare/src/apperr"
	"membershare/src/models"
)

func TestSessionsRoundTrip(t *testing.T) {
	sessions := NewSessions("0123456789abcdef0123456789abcdef", time.Hour)
	token, err := sessions.Issue(models.Principal{UserID: 42, Email: "owner@example.com", Name: "Owner", Admin: true})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	p, err := sessions.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UserID != 42 || p.Email != "owner@example.com" || p.Name != "Owner" || !p.Admin {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestSessionsRejects(t *testing.T) {
	issuer := NewSessions("0123456789abcdef0123456789abcdef", time.Hour)
	token, err := issuer.IssueSession(models.Account{ID: 7, Email: "invitee@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	expired := NewSessions("0123456789abcdef0123456789abcdef", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	tests := []struct {
		name     string
		sessions *Sessions
		token    string
	}{
		{name: "wrong secret", sessions: NewSessions("another-secret-another-secret-xx", time.Hour), token: token},
		{name: "expired", sessions: expired, token: token},
		{name: "garbage", sessions: issuer, token: "not-a-jwt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.sessions.Parse(tc.token)
			if apperr.CodeOf(err) != apperr.CodeUnauthenticated {
				t.Fatalf("expected UNAUTHENTICATED, got %v", err)
			}
		})
	}
}
