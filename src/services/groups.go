package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"membershare/src/apperr"
	"membershare/src/lib"
	"membershare/src/models"
	"membershare/src/storage"
)

// GroupSettings carries the site-level values the lifecycle needs.
type GroupSettings struct {
	SiteName            string
	PublicBaseURL       string
	GroupLabel          string
	DeclineReleasesSeat bool
}

// GroupDeps are the collaborators of GroupService. Sync, Limiter and
// Sessions are optional.
type GroupDeps struct {
	Store       storage.Store
	Invitations *InvitationService
	Sync        *SyncService
	Notifier    Notifier
	Identity    Identity
	Sessions    SessionIssuer
	Limiter     *InviteLimiter
	Metrics     *lib.Metrics
	Logger      *slog.Logger
}

// GroupService owns group creation, membership changes and invitations.
type GroupService struct {
	store       storage.Store
	invitations *InvitationService
	sync        *SyncService
	notifier    Notifier
	identity    Identity
	sessions    SessionIssuer
	limiter     *InviteLimiter
	metrics     *lib.Metrics
	logger      *slog.Logger
	settings    GroupSettings
	now         func() time.Time
}

func NewGroupService(deps GroupDeps, settings GroupSettings) *GroupService {
	if settings.GroupLabel == "" {
		settings.GroupLabel = "Group"
	}
	settings.PublicBaseURL = strings.TrimRight(settings.PublicBaseURL, "/")
	return &GroupService{
		store:       deps.Store,
		invitations: deps.Invitations,
		sync:        deps.Sync,
		notifier:    deps.Notifier,
		identity:    deps.Identity,
		sessions:    deps.Sessions,
		limiter:     deps.Limiter,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		settings:    settings,
		now:         time.Now,
	}
}

// GroupView is the owner's dashboard for one group.
type GroupView struct {
	Group          models.Group         `json:"group"`
	Members        []models.GroupMember `json:"members"`
	Invitations    []models.Invitation  `json:"invitations"`
	SeatsUsed      int                  `json:"seats_used"`
	SeatsRemaining int                  `json:"seats_remaining"`
}

// AdminStats combines group and invitation counters.
type AdminStats struct {
	Groups      models.GroupStats      `json:"groups"`
	Invitations models.InvitationStats `json:"invitations"`
}

// CreateFromPurchase creates one group per sharing-enabled line. Lines whose
// (buyer, variation) group already exists return the existing group.
func (s *GroupService) CreateFromPurchase(ctx context.Context, purchase models.PurchaseCompleted) ([]models.Group, error) {
	ctx, span := tracer.Start(ctx, "groups.create_from_purchase")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", purchase.OrderID), attribute.Int64("buyer.id", purchase.Buyer.UserID))

	if purchase.Buyer.UserID == 0 {
		return nil, apperr.MissingField("buyer user id")
	}
	buyerEmail := NormalizeEmail(purchase.Buyer.Email)
	if buyerEmail == "" {
		return nil, apperr.MissingField("buyer email")
	}

	if s.identity != nil {
		if _, err := s.identity.RegisterAccount(ctx, purchase.Buyer.UserID, buyerEmail, purchase.Buyer.DisplayName); err != nil {
			return nil, err
		}
	}

	groups := make([]models.Group, 0, len(purchase.Items))
	for _, item := range purchase.Items {
		if !item.Sharing.Enabled {
			continue
		}
		if item.ProductID == 0 {
			return groups, apperr.MissingField("product id")
		}
		group, err := s.createForItem(ctx, purchase.Buyer.UserID, buyerEmail, item)
		if err != nil {
			return groups, err
		}
		groups = append(groups, group)
	}

	if s.sync != nil && len(groups) > 0 {
		if _, err := s.sync.LinkUnlinked(ctx, purchase.Buyer.UserID); err != nil {
			s.logger.Warn("auto-link after purchase failed", "buyer_id", purchase.Buyer.UserID, "error", err)
		}
	}
	return groups, nil
}

func (s *GroupService) createForItem(ctx context.Context, buyerID int64, buyerEmail string, item models.PurchaseItem) (models.Group, error) {
	variationID := item.EffectiveVariationID()
	existing, err := s.store.GetGroupByOwnerVariation(ctx, buyerID, variationID)
	if err == nil {
		return existing, nil
	}
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		return models.Group{}, err
	}

	label := item.Sharing.GroupLabel
	if label == "" {
		label = s.settings.GroupLabel
	}
	name := strings.TrimSpace(item.ProductName + " " + label)

	group, err := s.store.CreateGroup(ctx, models.Group{
		OwnerID:        buyerID,
		ProductID:      item.ProductID,
		VariationID:    variationID,
		Name:           name,
		MaxSubaccounts: item.Capacity(),
		Status:         models.GroupActive,
	}, &models.GroupMember{
		UserID:     buyerID,
		Email:      buyerEmail,
		MemberType: models.MemberCustomer,
		Status:     models.MemberActive,
		JoinedAt:   s.now().Unix(),
	})
	if apperr.HasCode(err, apperr.CodeConflict) {
		// Another delivery of the same purchase won the insert.
		return s.store.GetGroupByOwnerVariation(ctx, buyerID, variationID)
	}
	if err != nil {
		return models.Group{}, err
	}

	s.metrics.Inc("groups_created_total")
	s.logger.Info("group created", "group_id", group.ID, "owner_id", buyerID, "variation_id", variationID, "capacity", group.MaxSubaccounts)
	return group, nil
}

// ownedGroup loads a group the principal must own.
func (s *GroupService) ownedGroup(ctx context.Context, p models.Principal, groupID int64) (models.Group, error) {
	if err := requireIdentified(p); err != nil {
		return models.Group{}, err
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if group.OwnerID != p.UserID {
		return models.Group{}, apperr.Forbidden("only the group owner can manage this group")
	}
	return group, nil
}

func (s *GroupService) Rename(ctx context.Context, p models.Principal, groupID int64, name string) (models.Group, error) {
	group, err := s.ownedGroup(ctx, p, groupID)
	if err != nil {
		return models.Group{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Group{}, apperr.MissingField("name")
	}
	if err := s.store.RenameGroup(ctx, group.ID, name); err != nil {
		return models.Group{}, err
	}
	group.Name = name
	return group, nil
}

// RemoveMember deletes a subaccount row. Any invitation for the same email is
// left as is.
func (s *GroupService) RemoveMember(ctx context.Context, p models.Principal, groupID, memberID int64) error {
	group, err := s.ownedGroup(ctx, p, groupID)
	if err != nil {
		return err
	}
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if member.GroupID != group.ID {
		return apperr.NotFound("member not found")
	}
	if member.MemberType == models.MemberCustomer {
		return apperr.Conflict("the owner's own membership is managed with leave")
	}
	if err := s.store.DeleteMember(ctx, member.ID); err != nil {
		return err
	}
	s.metrics.Inc("members_removed_total")
	s.logger.Info("member removed", "group_id", group.ID, "member_id", member.ID)
	return nil
}

// Join restores the owner's own customer row.
func (s *GroupService) Join(ctx context.Context, p models.Principal, groupID int64) (models.GroupMember, error) {
	group, err := s.ownedGroup(ctx, p, groupID)
	if err != nil {
		return models.GroupMember{}, err
	}
	_, err = s.store.FindMemberByUser(ctx, group.ID, p.UserID, models.MemberCustomer)
	if err == nil {
		return models.GroupMember{}, apperr.Conflict("you are already a member of this group")
	}
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		return models.GroupMember{}, err
	}

	email := NormalizeEmail(p.Email)
	if email == "" {
		return models.GroupMember{}, apperr.MissingField("email")
	}
	now := s.now().Unix()
	return s.store.CreateMember(ctx, models.GroupMember{
		GroupID:    group.ID,
		UserID:     p.UserID,
		Email:      email,
		MemberType: models.MemberCustomer,
		Status:     models.MemberActive,
		InvitedAt:  now,
		JoinedAt:   now,
	})
}

// Leave removes the owner's own customer row. Subaccounts are unaffected.
func (s *GroupService) Leave(ctx context.Context, p models.Principal, groupID int64) error {
	group, err := s.ownedGroup(ctx, p, groupID)
	if err != nil {
		return err
	}
	member, err := s.store.FindMemberByUser(ctx, group.ID, p.UserID, models.MemberCustomer)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return apperr.Conflict("you are not a member of this group")
	}
	if err != nil {
		return err
	}
	return s.store.DeleteMember(ctx, member.ID)
}

// View returns the group with its roster, invitations and seat usage. Owners
// and admins may view.
func (s *GroupService) View(ctx context.Context, p models.Principal, groupID int64) (GroupView, error) {
	if err := requireIdentified(p); err != nil {
		return GroupView{}, err
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return GroupView{}, err
	}
	if group.OwnerID != p.UserID && !p.Admin {
		return GroupView{}, apperr.Forbidden("only the group owner can view this group")
	}

	members, err := s.store.ListMembers(ctx, group.ID, "")
	if err != nil {
		return GroupView{}, err
	}
	invitations, err := s.store.ListInvitations(ctx, group.ID, "")
	if err != nil {
		return GroupView{}, err
	}
	count, err := s.store.CountMembers(ctx, group.ID)
	if err != nil {
		return GroupView{}, err
	}
	return GroupView{
		Group:          group,
		Members:        members,
		Invitations:    invitations,
		SeatsUsed:      count.Seats(),
		SeatsRemaining: max(group.MaxSubaccounts-count.Seats(), 0),
	}, nil
}

func (s *GroupService) ListOwned(ctx context.Context, p models.Principal) ([]models.Group, error) {
	if err := requireIdentified(p); err != nil {
		return nil, err
	}
	return s.store.ListGroups(ctx, storage.GroupFilter{OwnerID: p.UserID})
}

// ListShared lists groups the principal belongs to without owning.
func (s *GroupService) ListShared(ctx context.Context, p models.Principal) ([]models.Group, error) {
	if err := requireIdentified(p); err != nil {
		return nil, err
	}
	groups, err := s.store.ListGroups(ctx, storage.GroupFilter{MemberUserID: p.UserID})
	if err != nil {
		return nil, err
	}
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if g.OwnerID != p.UserID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *GroupService) ListAll(ctx context.Context, p models.Principal, status models.GroupStatus) ([]models.Group, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Invalid("unknown group status")
	}
	return s.store.ListGroups(ctx, storage.GroupFilter{Status: status})
}

func (s *GroupService) SetStatus(ctx context.Context, p models.Principal, groupID int64, status models.GroupStatus) (models.Group, error) {
	if err := requireAdmin(p); err != nil {
		return models.Group{}, err
	}
	if _, err := s.store.UpdateGroupStatus(ctx, groupID, status); err != nil {
		return models.Group{}, err
	}
	s.logger.Info("group status set by admin", "group_id", groupID, "status", status, "admin_id", p.UserID)
	return s.store.GetGroup(ctx, groupID)
}

func (s *GroupService) Delete(ctx context.Context, p models.Principal, groupID int64) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	s.logger.Info("group deleted by admin", "group_id", groupID, "admin_id", p.UserID)
	return nil
}

func (s *GroupService) RevokeInvitation(ctx context.Context, p models.Principal, invitationID int64) (models.Invitation, error) {
	if err := requireAdmin(p); err != nil {
		return models.Invitation{}, err
	}
	return s.invitations.Revoke(ctx, invitationID)
}

func (s *GroupService) Stats(ctx context.Context, p models.Principal) (AdminStats, error) {
	if err := requireAdmin(p); err != nil {
		return AdminStats{}, err
	}
	groups, err := s.store.GroupStats(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	invitations, err := s.store.InvitationStats(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	return AdminStats{Groups: groups, Invitations: invitations}, nil
}
