package models

import (
	"strconv"
	"strings"
)

// ExternalMembership mirrors a membership record owned by the membership provider.
type ExternalMembership struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	PlanID     int64   `json:"plan_id"`
	PlanSlug   string  `json:"plan_slug"`
	Status     string  `json:"status"`
	ProductIDs []int64 `json:"product_ids"`
	UpdatedAt  int64   `json:"updated_at"`
}

func (m ExternalMembership) Active() bool {
	return strings.EqualFold(m.Status, "active")
}

// Covers reports whether the membership's plan includes the product or variation.
func (m ExternalMembership) Covers(productID, variationID int64) bool {
	for _, id := range m.ProductIDs {
		if id == 0 {
			continue
		}
		if id == productID || id == variationID {
			return true
		}
	}
	return false
}

// MatchesPlan accepts either a numeric plan id or a plan slug.
func (m ExternalMembership) MatchesPlan(plan string) bool {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return false
	}
	if id, err := strconv.ParseInt(plan, 10, 64); err == nil {
		return id == m.PlanID
	}
	return strings.EqualFold(plan, m.PlanSlug)
}

// GroupStatusFor maps an external membership status onto the group status it implies.
func GroupStatusFor(membershipStatus string) GroupStatus {
	switch strings.ToLower(strings.TrimSpace(membershipStatus)) {
	case "active":
		return GroupActive
	case "expired", "cancelled":
		return GroupExpired
	default:
		return GroupSuspended
	}
}

type MembershipEventType string

const (
	MembershipStatusChanged MembershipEventType = "status_changed"
	MembershipDeleted       MembershipEventType = "deleted"
	MembershipGranted       MembershipEventType = "granted"
	MembershipSaved         MembershipEventType = "saved"
)

// MembershipEvent is a lifecycle notification from the membership provider.
type MembershipEvent struct {
	EventID    string              `json:"event_id,omitempty"`
	Type       MembershipEventType `json:"type"`
	Membership ExternalMembership  `json:"membership"`
	OldStatus  string              `json:"old_status,omitempty"`
	NewStatus  string              `json:"new_status,omitempty"`
}
