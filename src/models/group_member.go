package models

type MemberType string

const (
	MemberCustomer   MemberType = "customer"
	MemberSubaccount MemberType = "subaccount"
)

type MemberStatus string

const (
	MemberActive  MemberStatus = "active"
	MemberPending MemberStatus = "pending"
	MemberRevoked MemberStatus = "revoked"
)

// GroupMember is one row of a group's roster. UserID stays zero until the
// invitee has an account; JoinedAt stays zero until the member is active.
type GroupMember struct {
	ID         int64        `json:"id"`
	GroupID    int64        `json:"group_id"`
	UserID     int64        `json:"user_id,omitempty"`
	Email      string       `json:"email"`
	MemberType MemberType   `json:"member_type"`
	Status     MemberStatus `json:"status"`
	InvitedAt  int64        `json:"invited_at"`
	JoinedAt   int64        `json:"joined_at,omitempty"`
}
