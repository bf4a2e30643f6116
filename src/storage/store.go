// Package storage defines the entitlement store contract shared by the
// postgres and sqlite backends.
package storage

import (
	"context"
	"errors"

	"membershare/src/models"
)

// ErrDuplicateEvent is returned when a webhook event id was already recorded.
var ErrDuplicateEvent = errors.New("duplicate event")

// GroupFilter narrows ListGroups. Zero values are ignored. MemberUserID only
// matches groups where that user's membership is active.
type GroupFilter struct {
	OwnerID      int64
	MemberUserID int64
	MembershipID int64
	Status       models.GroupStatus
	UnlinkedOnly bool
	Limit        int
}

// MemberCount splits a group's subaccount rows by status.
type MemberCount struct {
	Active  int
	Pending int
}

func (c MemberCount) Seats() int {
	return c.Active + c.Pending
}

type GroupStore interface {
	CreateGroup(ctx context.Context, group models.Group, owner *models.GroupMember) (models.Group, error)
	GetGroup(ctx context.Context, id int64) (models.Group, error)
	GetGroupByOwnerVariation(ctx context.Context, ownerID, variationID int64) (models.Group, error)
	ListGroups(ctx context.Context, filter GroupFilter) ([]models.Group, error)
	RenameGroup(ctx context.Context, id int64, name string) error
	UpdateGroupStatus(ctx context.Context, id int64, status models.GroupStatus) (bool, error)
	LinkGroupMembership(ctx context.Context, id, membershipID int64) (bool, error)
	ExpireGroupsByMembership(ctx context.Context, membershipID int64) (int64, error)
	DeleteGroup(ctx context.Context, id int64) error
	GroupStats(ctx context.Context) (models.GroupStats, error)
}

type MemberStore interface {
	CreateMember(ctx context.Context, member models.GroupMember) (models.GroupMember, error)
	// AddMemberWithinCapacity inserts a subaccount only while active plus
	// pending subaccounts stay below the group's capacity. ok is false when full.
	AddMemberWithinCapacity(ctx context.Context, member models.GroupMember) (created models.GroupMember, ok bool, err error)
	// ActivateMember moves a pending row to active only while active
	// subaccounts stay below the group's capacity.
	ActivateMember(ctx context.Context, id, userID, joinedAt int64) (bool, error)
	GetMember(ctx context.Context, id int64) (models.GroupMember, error)
	FindMemberByEmail(ctx context.Context, groupID int64, email string) (models.GroupMember, error)
	FindMemberByUser(ctx context.Context, groupID, userID int64, memberType models.MemberType) (models.GroupMember, error)
	ListMembers(ctx context.Context, groupID int64, status models.MemberStatus) ([]models.GroupMember, error)
	CountMembers(ctx context.Context, groupID int64) (MemberCount, error)
	DeleteMember(ctx context.Context, id int64) error
}

type InvitationStore interface {
	CreateInvitation(ctx context.Context, invitation models.Invitation) (models.Invitation, error)
	GetInvitation(ctx context.Context, id int64) (models.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (models.Invitation, error)
	InvitationTokenExists(ctx context.Context, token string) (bool, error)
	ListInvitations(ctx context.Context, groupID int64, status models.InvitationStatus) ([]models.Invitation, error)
	// TransitionInvitation changes status only if the row is still in from.
	TransitionInvitation(ctx context.Context, id int64, from, to models.InvitationStatus, at int64) (bool, error)
	ExpireInvitations(ctx context.Context, now int64) (int64, error)
	InvitationStats(ctx context.Context) (models.InvitationStats, error)
}

type AccountStore interface {
	// CreateAccount keeps a non-zero account.ID and generates one otherwise.
	// Generated ids are always greater than every stored id.
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)
	GetAccount(ctx context.Context, id int64) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	DeleteAccount(ctx context.Context, id int64) error
}

type MembershipStore interface {
	UpsertMembership(ctx context.Context, membership models.ExternalMembership) error
	GetMembership(ctx context.Context, id int64) (models.ExternalMembership, error)
	ListMembershipsByUser(ctx context.Context, userID int64) ([]models.ExternalMembership, error)
	DeleteMembership(ctx context.Context, id int64) error
}

type WebhookLog interface {
	RecordWebhookEvent(ctx context.Context, eventID, source string, receivedAt int64) error
}

// Store is the full entitlement store.
type Store interface {
	GroupStore
	MemberStore
	InvitationStore
	AccountStore
	MembershipStore
	WebhookLog
	Close() error
}
