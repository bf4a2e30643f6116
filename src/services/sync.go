package services

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"membershare/src/apperr"
	"membershare/src/lib"
	"membershare/src/models"
	"membershare/src/storage"
)

// SyncResult counts the writes a reconciliation pass made.
type SyncResult struct {
	Checked int `json:"checked"`
	Linked  int `json:"linked"`
	Updated int `json:"updated"`
}

// SharedEntitlement is access a user inherits through someone else's group.
type SharedEntitlement struct {
	GroupID      int64              `json:"group_id"`
	GroupName    string             `json:"group_name"`
	OwnerID      int64              `json:"owner_id"`
	MembershipID int64              `json:"membership_id"`
	PlanID       int64              `json:"plan_id"`
	PlanSlug     string             `json:"plan_slug"`
	Status       string             `json:"status"`
	GroupStatus  models.GroupStatus `json:"group_status"`
}

type AccessSummary struct {
	UserID int64                       `json:"user_id"`
	Direct []models.ExternalMembership `json:"direct"`
	Shared []SharedEntitlement         `json:"shared"`
}

// SyncService reconciles groups with the external membership lifecycle and
// answers shared-access queries.
type SyncService struct {
	store   storage.Store
	metrics *lib.Metrics
	logger  *slog.Logger
}

func NewSyncService(store storage.Store, metrics *lib.Metrics, logger *slog.Logger) *SyncService {
	return &SyncService{store: store, metrics: metrics, logger: logger}
}

// HandleEvent dispatches a membership provider event.
func (s *SyncService) HandleEvent(ctx context.Context, event models.MembershipEvent) (SyncResult, error) {
	switch event.Type {
	case models.MembershipStatusChanged:
		return s.OnStatusChanged(ctx, event)
	case models.MembershipDeleted:
		return s.OnDeleted(ctx, event.Membership.ID)
	case models.MembershipGranted, models.MembershipSaved:
		return s.OnGranted(ctx, event.Membership)
	default:
		return SyncResult{}, apperr.Invalid(fmt.Sprintf("unknown membership event type %q", event.Type))
	}
}

// OnStatusChanged applies the new status to the stored membership and maps it
// onto every matching group of the holder. The event only needs the
// membership id and a status; snapshot fields it carries refresh the mirror.
// Groups already in the target status are not written.
func (s *SyncService) OnStatusChanged(ctx context.Context, event models.MembershipEvent) (SyncResult, error) {
	ctx, span := tracer.Start(ctx, "sync.status_changed")
	defer span.End()

	id := event.Membership.ID
	if id == 0 {
		return SyncResult{}, apperr.MissingField("membership id")
	}
	status := event.NewStatus
	if status == "" {
		status = event.Membership.Status
	}
	if status == "" {
		return SyncResult{}, apperr.MissingField("new status")
	}
	span.SetAttributes(attribute.Int64("membership.id", id), attribute.String("membership.status", status))

	membership, known, err := s.mergedMembership(ctx, event.Membership)
	if err != nil {
		return SyncResult{}, err
	}
	membership.Status = status

	var groups []models.Group
	if known {
		if err := s.store.UpsertMembership(ctx, membership); err != nil {
			return SyncResult{}, err
		}
		groups, err = s.store.ListGroups(ctx, storage.GroupFilter{OwnerID: membership.UserID})
	} else {
		// Without a mirror the holder is unknown; only linked groups can match.
		groups, err = s.store.ListGroups(ctx, storage.GroupFilter{MembershipID: id})
	}
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	target := models.GroupStatusFor(status)
	for _, group := range groups {
		matched := group.MembershipID == id ||
			(!group.Linked() && membership.Covers(group.ProductID, group.VariationID))
		if !matched {
			continue
		}
		result.Checked++
		if err := s.reconcile(ctx, group, membership, target, &result); err != nil {
			return result, err
		}
	}

	s.logger.Info("membership status synced",
		"membership_id", id,
		"old_status", event.OldStatus,
		"new_status", status,
		"mirrored", known,
		"groups_updated", result.Updated,
	)
	return result, nil
}

// mergedMembership overlays the non-zero fields of snapshot on the stored
// mirror. known is false when neither names the holder.
func (s *SyncService) mergedMembership(ctx context.Context, snapshot models.ExternalMembership) (models.ExternalMembership, bool, error) {
	stored, err := s.store.GetMembership(ctx, snapshot.ID)
	if err != nil && !apperr.HasCode(err, apperr.CodeNotFound) {
		return models.ExternalMembership{}, false, err
	}
	merged := stored
	merged.ID = snapshot.ID
	if snapshot.UserID != 0 {
		merged.UserID = snapshot.UserID
	}
	if snapshot.PlanID != 0 {
		merged.PlanID = snapshot.PlanID
	}
	if snapshot.PlanSlug != "" {
		merged.PlanSlug = snapshot.PlanSlug
	}
	if len(snapshot.ProductIDs) > 0 {
		merged.ProductIDs = snapshot.ProductIDs
	}
	merged.UpdatedAt = 0
	return merged, merged.UserID != 0, nil
}

func (s *SyncService) reconcile(ctx context.Context, group models.Group, membership models.ExternalMembership, target models.GroupStatus, result *SyncResult) error {
	if !group.Linked() {
		linked, err := s.store.LinkGroupMembership(ctx, group.ID, membership.ID)
		if err != nil {
			return err
		}
		if linked {
			result.Linked++
			s.metrics.Inc("groups_linked_total")
		}
	}
	if group.Status == target {
		return nil
	}
	changed, err := s.store.UpdateGroupStatus(ctx, group.ID, target)
	if err != nil {
		return err
	}
	if changed {
		result.Updated++
		s.metrics.Inc("group_status_changes_total")
	}
	return nil
}

// OnDeleted expires every group linked to the membership and drops the mirror.
func (s *SyncService) OnDeleted(ctx context.Context, membershipID int64) (SyncResult, error) {
	if membershipID == 0 {
		return SyncResult{}, apperr.MissingField("membership id")
	}
	n, err := s.store.ExpireGroupsByMembership(ctx, membershipID)
	if err != nil {
		return SyncResult{}, err
	}
	if err := s.store.DeleteMembership(ctx, membershipID); err != nil {
		return SyncResult{}, err
	}
	s.metrics.Add("group_status_changes_total", uint64(n))
	s.logger.Info("membership deleted", "membership_id", membershipID, "groups_expired", n)
	return SyncResult{Updated: int(n)}, nil
}

// OnGranted mirrors a new or saved membership and links the holder's groups.
func (s *SyncService) OnGranted(ctx context.Context, membership models.ExternalMembership) (SyncResult, error) {
	if err := s.store.UpsertMembership(ctx, membership); err != nil {
		return SyncResult{}, err
	}
	linked, err := s.LinkUnlinked(ctx, membership.UserID)
	if err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Linked: linked}, nil
}

// LinkUnlinked records a membership link for each of the owner's unlinked
// groups whose product or variation the membership's plan covers.
func (s *SyncService) LinkUnlinked(ctx context.Context, ownerID int64) (int, error) {
	memberships, err := s.store.ListMembershipsByUser(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(memberships) == 0 {
		return 0, nil
	}
	groups, err := s.store.ListGroups(ctx, storage.GroupFilter{OwnerID: ownerID, UnlinkedOnly: true})
	if err != nil {
		return 0, err
	}

	linked := 0
	for _, group := range groups {
		membership, ok := coveringMembership(memberships, group)
		if !ok {
			continue
		}
		done, err := s.store.LinkGroupMembership(ctx, group.ID, membership.ID)
		if err != nil {
			return linked, err
		}
		if done {
			linked++
			s.metrics.Inc("groups_linked_total")
		}
	}
	return linked, nil
}

func coveringMembership(memberships []models.ExternalMembership, group models.Group) (models.ExternalMembership, bool) {
	for _, m := range memberships {
		if m.Covers(group.ProductID, group.VariationID) {
			return m, true
		}
	}
	return models.ExternalMembership{}, false
}

// resolveMembership finds the owner's membership backing group: the linked
// id first, then a plan-product match.
func (s *SyncService) resolveMembership(ctx context.Context, group models.Group) (models.ExternalMembership, bool, error) {
	if group.Linked() {
		m, err := s.store.GetMembership(ctx, group.MembershipID)
		if err == nil {
			return m, true, nil
		}
		if !apperr.HasCode(err, apperr.CodeNotFound) {
			return models.ExternalMembership{}, false, err
		}
	}
	memberships, err := s.store.ListMembershipsByUser(ctx, group.OwnerID)
	if err != nil {
		return models.ExternalMembership{}, false, err
	}
	m, ok := coveringMembership(memberships, group)
	return m, ok, nil
}

// sharedGroups lists active groups where userID holds an active seat and is
// not the owner.
func (s *SyncService) sharedGroups(ctx context.Context, userID int64) ([]models.Group, error) {
	groups, err := s.store.ListGroups(ctx, storage.GroupFilter{MemberUserID: userID, Status: models.GroupActive})
	if err != nil {
		return nil, err
	}
	out := groups[:0]
	for _, g := range groups {
		if g.OwnerID != userID {
			out = append(out, g)
		}
	}
	return out, nil
}

// UserHasSharedAccess reports whether userID inherits access to plan through
// a group. It does not consider the user's own memberships.
func (s *SyncService) UserHasSharedAccess(ctx context.Context, userID int64, plan string) (bool, error) {
	ctx, span := tracer.Start(ctx, "sync.shared_access")
	defer span.End()

	if userID == 0 {
		return false, apperr.MissingField("user id")
	}
	if plan == "" {
		return false, apperr.MissingField("plan")
	}

	groups, err := s.sharedGroups(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, group := range groups {
		membership, ok, err := s.resolveMembership(ctx, group)
		if err != nil {
			return false, err
		}
		if ok && membership.Active() && membership.MatchesPlan(plan) {
			return true, nil
		}
	}
	return false, nil
}

// AccessSummary lists the user's own memberships and everything inherited
// through groups.
func (s *SyncService) AccessSummary(ctx context.Context, userID int64) (AccessSummary, error) {
	direct, err := s.store.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return AccessSummary{}, err
	}
	groups, err := s.sharedGroups(ctx, userID)
	if err != nil {
		return AccessSummary{}, err
	}

	summary := AccessSummary{UserID: userID, Direct: direct, Shared: make([]SharedEntitlement, 0, len(groups))}
	for _, group := range groups {
		membership, ok, err := s.resolveMembership(ctx, group)
		if err != nil {
			return AccessSummary{}, err
		}
		if !ok {
			continue
		}
		summary.Shared = append(summary.Shared, SharedEntitlement{
			GroupID:      group.ID,
			GroupName:    group.Name,
			OwnerID:      group.OwnerID,
			MembershipID: membership.ID,
			PlanID:       membership.PlanID,
			PlanSlug:     membership.PlanSlug,
			Status:       membership.Status,
			GroupStatus:  group.Status,
		})
	}
	return summary, nil
}

// ResyncAll reconciles every stored group against the mirrored memberships.
func (s *SyncService) ResyncAll(ctx context.Context) (SyncResult, error) {
	ctx, span := tracer.Start(ctx, "sync.resync_all")
	defer span.End()

	groups, err := s.store.ListGroups(ctx, storage.GroupFilter{})
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for _, group := range groups {
		membership, ok, err := s.resolveMembership(ctx, group)
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}
		result.Checked++
		if err := s.reconcile(ctx, group, membership, models.GroupStatusFor(membership.Status), &result); err != nil {
			return result, err
		}
	}
	s.logger.Info("resync complete", "checked", result.Checked, "linked", result.Linked, "updated", result.Updated)
	return result, nil
}

func (s *SyncService) Stats(ctx context.Context) (models.GroupStats, error) {
	return s.store.GroupStats(ctx)
}
