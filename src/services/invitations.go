package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"membershare/src/apperr"
	"membershare/src/lib"
	"membershare/src/models"
	"membershare/src/storage"
)

const (
	TokenLength   = 64
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var tracer trace.Tracer = otel.Tracer("membershare/services")

// GenerateToken draws TokenLength characters from [A-Za-z0-9] using
// rejection sampling so every character is uniform.
func GenerateToken(r io.Reader) (string, error) {
	const limit = 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength)
	for len(out) < TokenLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// ValidTokenShape reports whether token is exactly TokenLength alphanumerics.
func ValidTokenShape(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// StatusMessage is the text shown for an invitation that is no longer pending.
func StatusMessage(status models.InvitationStatus) string {
	switch status {
	case models.InvitationAccepted:
		return "This invitation has already been accepted."
	case models.InvitationDeclined:
		return "This invitation has been declined."
	case models.InvitationExpired:
		return "This invitation has expired."
	case models.InvitationRevoked:
		return "This invitation has been revoked."
	default:
		return ""
	}
}

// InvitationService issues tokens and drives the invitation state machine.
type InvitationService struct {
	store       storage.InvitationStore
	ttl         time.Duration
	maxAttempts int
	metrics     *lib.Metrics
	random      io.Reader
	now         func() time.Time
}

func NewInvitationService(store storage.InvitationStore, ttl time.Duration, maxAttempts int, metrics *lib.Metrics) *InvitationService {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &InvitationService{
		store:       store,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		random:      rand.Reader,
		now:         time.Now,
	}
}

// Issue creates a pending invitation for email. An empty token is generated.
func (s *InvitationService) Issue(ctx context.Context, groupID int64, email, token string) (models.Invitation, error) {
	ctx, span := tracer.Start(ctx, "invitations.issue")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	sentAt := s.now()
	invitation := models.Invitation{
		GroupID:   groupID,
		Email:     email,
		Status:    models.InvitationPending,
		SentAt:    sentAt.Unix(),
		ExpiresAt: sentAt.Add(s.ttl).Unix(),
	}

	if token != "" {
		invitation.Token = token
		return s.store.CreateInvitation(ctx, invitation)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidate, err := GenerateToken(s.random)
		if err != nil {
			return models.Invitation{}, err
		}
		exists, err := s.store.InvitationTokenExists(ctx, candidate)
		if err != nil {
			return models.Invitation{}, err
		}
		if exists {
			s.metrics.Inc("invitation_token_collisions_total")
			continue
		}

		invitation.Token = candidate
		created, err := s.store.CreateInvitation(ctx, invitation)
		if apperr.HasCode(err, apperr.CodeConflict) {
			s.metrics.Inc("invitation_token_collisions_total")
			continue
		}
		if err != nil {
			return models.Invitation{}, err
		}
		s.metrics.Inc("invitations_issued_total")
		return created, nil
	}
	return models.Invitation{}, fmt.Errorf("allocate invitation token: %d attempts collided", s.maxAttempts)
}

// Lookup validates token shape, loads the invitation and applies the point
// expiry check. A pending invitation past its expiry is moved to expired and
// reported with an EXPIRED error alongside the updated record.
func (s *InvitationService) Lookup(ctx context.Context, token string) (models.Invitation, error) {
	if !ValidTokenShape(token) {
		return models.Invitation{}, apperr.Invalid("invalid invitation token")
	}
	invitation, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return models.Invitation{}, apperr.NotFound("invitation not found or has been revoked")
		}
		return models.Invitation{}, err
	}

	now := s.now().Unix()
	if invitation.Status == models.InvitationPending && invitation.ExpiredAt(now) {
		if _, err := s.store.TransitionInvitation(ctx, invitation.ID, models.InvitationPending, models.InvitationExpired, now); err != nil {
			return models.Invitation{}, err
		}
		s.metrics.Inc("invitations_expired_total")
		invitation.Status = models.InvitationExpired
		return invitation, apperr.New(apperr.CodeExpired, StatusMessage(models.InvitationExpired))
	}
	return invitation, nil
}

// Sweep expires every pending invitation whose expiry has passed.
func (s *InvitationService) Sweep(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "invitations.sweep")
	defer span.End()

	n, err := s.store.ExpireInvitations(ctx, s.now().Unix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("invitations.expired", n))
	s.metrics.Add("invitations_expired_total", uint64(n))
	return n, nil
}

// Revoke withdraws a pending invitation.
func (s *InvitationService) Revoke(ctx context.Context, id int64) (models.Invitation, error) {
	invitation, err := s.store.GetInvitation(ctx, id)
	if err != nil {
		return models.Invitation{}, err
	}
	ok, err := s.store.TransitionInvitation(ctx, id, models.InvitationPending, models.InvitationRevoked, s.now().Unix())
	if err != nil {
		return models.Invitation{}, err
	}
	if !ok {
		return models.Invitation{}, apperr.Conflict("only pending invitations can be revoked")
	}
	invitation.Status = models.InvitationRevoked
	return invitation, nil
}
