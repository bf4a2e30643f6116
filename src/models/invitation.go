package models

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation is a token-addressed offer to join a group.
type Invitation struct {
	ID         int64            `json:"id"`
	GroupID    int64            `json:"group_id"`
	Email      string           `json:"email"`
	Token      string           `json:"-"`
	Status     InvitationStatus `json:"status"`
	SentAt     int64            `json:"sent_at"`
	ExpiresAt  int64            `json:"expires_at"`
	AcceptedAt int64            `json:"accepted_at,omitempty"`
}

func (i Invitation) ExpiredAt(now int64) bool {
	return i.ExpiresAt > 0 && now > i.ExpiresAt
}

type InvitationStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Declined int `json:"declined"`
	Expired  int `json:"expired"`
	Revoked  int `json:"revoked"`
}
