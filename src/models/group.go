package models

type GroupStatus string

const (
	GroupActive    GroupStatus = "active"
	GroupSuspended GroupStatus = "suspended"
	GroupExpired   GroupStatus = "expired"
)

func (s GroupStatus) Valid() bool {
	switch s {
	case GroupActive, GroupSuspended, GroupExpired:
		return true
	default:
		return false
	}
}

// Group is a capacity-bounded set of users sharing one purchased membership.
// MembershipID is zero while the group is not linked to an external membership.
type Group struct {
	ID             int64       `json:"id"`
	OwnerID        int64       `json:"owner_id"`
	ProductID      int64       `json:"product_id"`
	VariationID    int64       `json:"variation_id"`
	MembershipID   int64       `json:"membership_id,omitempty"`
	Name           string      `json:"name"`
	MaxSubaccounts int         `json:"max_subaccounts"`
	Status         GroupStatus `json:"status"`
	CreatedAt      int64       `json:"created_at"`
}

func (g Group) Linked() bool {
	return g.MembershipID != 0
}

// GroupStats aggregates counts across every stored group.
type GroupStats struct {
	TotalGroups       int `json:"total_groups"`
	ActiveGroups      int `json:"active_groups"`
	LinkedGroups      int `json:"linked_groups"`
	TotalSubaccounts  int `json:"total_subaccounts"`
	ActiveSubaccounts int `json:"active_subaccounts"`
}
