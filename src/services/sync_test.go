package services

import (
	"context"
	"testing"

	"membershare/src/apperr"
	"membershare/src/models"
)

func goldMembership(status string) models.ExternalMembership {
	return models.ExternalMembership{
		ID:         77,
		UserID:     ownerPrincipal.UserID,
		PlanID:     5,
		PlanSlug:   "gold",
		Status:     status,
		ProductIDs: []int64{100},
	}
}

// joinedMember creates a group with one accepted subaccount and returns the
// subaccount's principal.
func (e *testEnv) joinedMember(t *testing.T) (models.Group, models.Principal) {
	t.Helper()
	group := e.createGroup(t, 3)
	token := e.invite(t, group.ID, "friend@example.com")
	outcome, err := e.groups.Accept(context.Background(), models.Principal{}, token)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return group, models.Principal{UserID: outcome.Account.ID, Email: outcome.Account.Email}
}

func TestStatusChangedMapsGroupStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 3)

	steps := []struct {
		status      string
		wantStatus  models.GroupStatus
		wantUpdated int
	}{
		{status: "active", wantStatus: models.GroupActive, wantUpdated: 0},
		{status: "paused", wantStatus: models.GroupSuspended, wantUpdated: 1},
		{status: "paused", wantStatus: models.GroupSuspended, wantUpdated: 0},
		{status: "cancelled", wantStatus: models.GroupExpired, wantUpdated: 1},
		{status: "active", wantStatus: models.GroupActive, wantUpdated: 1},
		{status: "pending", wantStatus: models.GroupSuspended, wantUpdated: 1},
		{status: "expired", wantStatus: models.GroupExpired, wantUpdated: 1},
	}
	for i, step := range steps {
		res, err := env.sync.OnStatusChanged(ctx, models.MembershipEvent{
			Type:       models.MembershipStatusChanged,
			Membership: goldMembership("active"),
			NewStatus:  step.status,
		})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if res.Updated != step.wantUpdated {
			t.Fatalf("step %d (%s): updated = %d, want %d", i, step.status, res.Updated, step.wantUpdated)
		}
		got, err := env.store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("get group: %v", err)
		}
		if got.Status != step.wantStatus || got.MembershipID != 77 {
			t.Fatalf("step %d (%s): group = %+v", i, step.status, got)
		}
	}
}

func TestStatusChangedKeepsStoredPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group, member := env.joinedMember(t)
	if _, err := env.sync.OnGranted(ctx, goldMembership("active")); err != nil {
		t.Fatalf("granted: %v", err)
	}

	events := []struct {
		name       string
		membership models.ExternalMembership
		newStatus  string
		want       models.GroupStatus
	}{
		{name: "id only", membership: models.ExternalMembership{ID: 77}, newStatus: "cancelled", want: models.GroupExpired},
		{name: "id and holder", membership: models.ExternalMembership{ID: 77, UserID: ownerPrincipal.UserID}, newStatus: "paused", want: models.GroupSuspended},
		{name: "back to active", membership: models.ExternalMembership{ID: 77}, newStatus: "active", want: models.GroupActive},
	}
	for _, tc := range events {
		res, err := env.sync.HandleEvent(ctx, models.MembershipEvent{
			Type:       models.MembershipStatusChanged,
			Membership: tc.membership,
			NewStatus:  tc.newStatus,
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if res.Updated != 1 {
			t.Fatalf("%s: expected one update, got %+v", tc.name, res)
		}
		got, err := env.store.GetGroup(ctx, group.ID)
		if err != nil || got.Status != tc.want {
			t.Fatalf("%s: group = %+v, %v", tc.name, got, err)
		}
		mirror, err := env.store.GetMembership(ctx, 77)
		if err != nil {
			t.Fatalf("%s: mirror: %v", tc.name, err)
		}
		if mirror.Status != tc.newStatus || mirror.UserID != ownerPrincipal.UserID || mirror.PlanID != 5 ||
			mirror.PlanSlug != "gold" || len(mirror.ProductIDs) != 1 || mirror.ProductIDs[0] != 100 {
			t.Fatalf("%s: plan snapshot lost: %+v", tc.name, mirror)
		}
	}

	ok, err := env.sync.UserHasSharedAccess(ctx, member.UserID, "gold")
	if err != nil || !ok {
		t.Fatalf("shared access should survive partial events: %v, %v", ok, err)
	}
}

func TestStatusChangedWithoutMirrorUsesLinkedGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 3)
	if _, err := env.store.LinkGroupMembership(ctx, group.ID, 88); err != nil {
		t.Fatalf("link: %v", err)
	}

	res, err := env.sync.HandleEvent(ctx, models.MembershipEvent{
		Type:       models.MembershipStatusChanged,
		Membership: models.ExternalMembership{ID: 88},
		OldStatus:  "active",
		NewStatus:  "paused",
	})
	if err != nil {
		t.Fatalf("status changed: %v", err)
	}
	if res.Checked != 1 || res.Updated != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	got, err := env.store.GetGroup(ctx, group.ID)
	if err != nil || got.Status != models.GroupSuspended {
		t.Fatalf("linked group should be suspended: %+v, %v", got, err)
	}
	if _, err := env.store.GetMembership(ctx, 88); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("no mirror should be written without a holder, got %v", err)
	}

	if _, err := env.sync.HandleEvent(ctx, models.MembershipEvent{
		Type:       models.MembershipStatusChanged,
		Membership: models.ExternalMembership{ID: 88},
	}); apperr.CodeOf(err) != apperr.CodeMissingField {
		t.Fatalf("expected MISSING_FIELD without a status, got %v", err)
	}
}

func TestStatusChangedIgnoresUncoveredGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 3)

	other := goldMembership("cancelled")
	other.ProductIDs = []int64{999}
	res, err := env.sync.OnStatusChanged(ctx, models.MembershipEvent{Type: models.MembershipStatusChanged, Membership: other})
	if err != nil {
		t.Fatalf("status changed: %v", err)
	}
	if res.Checked != 0 {
		t.Fatalf("expected no matching groups, got %+v", res)
	}
	got, err := env.store.GetGroup(ctx, group.ID)
	if err != nil || got.Status != models.GroupActive || got.Linked() {
		t.Fatalf("uncovered group must be untouched: %+v, %v", got, err)
	}
}

func TestDeletedExpiresLinkedGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 3)

	if _, err := env.sync.HandleEvent(ctx, models.MembershipEvent{Type: models.MembershipGranted, Membership: goldMembership("active")}); err != nil {
		t.Fatalf("granted: %v", err)
	}
	linked, err := env.store.GetGroup(ctx, group.ID)
	if err != nil || linked.MembershipID != 77 {
		t.Fatalf("grant should link the group: %+v, %v", linked, err)
	}

	res, err := env.sync.HandleEvent(ctx, models.MembershipEvent{Type: models.MembershipDeleted, Membership: models.ExternalMembership{ID: 77}})
	if err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("expected one expired group, got %+v", res)
	}
	got, err := env.store.GetGroup(ctx, group.ID)
	if err != nil || got.Status != models.GroupExpired {
		t.Fatalf("group should be expired, not deleted: %+v, %v", got, err)
	}
	if _, err := env.store.GetMembership(ctx, 77); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("mirror row should be removed, got %v", err)
	}

	if _, err := env.sync.HandleEvent(ctx, models.MembershipEvent{Type: "renewed"}); apperr.CodeOf(err) != apperr.CodeInvalid {
		t.Fatalf("expected INVALID for unknown type, got %v", err)
	}
}

func TestPurchaseAutoLinksExistingMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.store.UpsertMembership(ctx, goldMembership("active")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	group := env.createGroup(t, 2)
	got, err := env.store.GetGroup(ctx, group.ID)
	if err != nil || got.MembershipID != 77 {
		t.Fatalf("purchase should auto-link: %+v, %v", got, err)
	}
}

func TestUserHasSharedAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group, member := env.joinedMember(t)
	if err := env.store.UpsertMembership(ctx, goldMembership("active")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tests := []struct {
		name   string
		userID int64
		plan   string
		want   bool
	}{
		{name: "member by slug", userID: member.UserID, plan: "gold", want: true},
		{name: "member by slug any case", userID: member.UserID, plan: "GOLD", want: true},
		{name: "member by plan id", userID: member.UserID, plan: "5", want: true},
		{name: "other plan", userID: member.UserID, plan: "silver", want: false},
		{name: "owner has no shared access", userID: ownerPrincipal.UserID, plan: "gold", want: false},
		{name: "stranger", userID: 4242, plan: "gold", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := env.sync.UserHasSharedAccess(ctx, tc.userID, tc.plan)
			if err != nil {
				t.Fatalf("access: %v", err)
			}
			if got != tc.want {
				t.Fatalf("UserHasSharedAccess(%d, %q) = %v, want %v", tc.userID, tc.plan, got, tc.want)
			}
		})
	}

	if _, err := env.store.UpdateGroupStatus(ctx, group.ID, models.GroupSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if ok, err := env.sync.UserHasSharedAccess(ctx, member.UserID, "gold"); err != nil || ok {
		t.Fatalf("suspended group must not grant access: %v, %v", ok, err)
	}
	if _, err := env.store.UpdateGroupStatus(ctx, group.ID, models.GroupActive); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if err := env.store.UpsertMembership(ctx, goldMembership("paused")); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if ok, err := env.sync.UserHasSharedAccess(ctx, member.UserID, "gold"); err != nil || ok {
		t.Fatalf("inactive membership must not grant access: %v, %v", ok, err)
	}
	if _, err := env.sync.UserHasSharedAccess(ctx, member.UserID, ""); apperr.CodeOf(err) != apperr.CodeMissingField {
		t.Fatalf("expected MISSING_FIELD for empty plan, got %v", err)
	}
}

func TestAccessSummaryAndResync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group, member := env.joinedMember(t)

	if err := env.store.UpsertMembership(ctx, goldMembership("cancelled")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	res, err := env.sync.ResyncAll(ctx)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if res.Checked != 1 || res.Linked != 1 || res.Updated != 1 {
		t.Fatalf("unexpected resync result: %+v", res)
	}
	got, err := env.store.GetGroup(ctx, group.ID)
	if err != nil || got.Status != models.GroupExpired || got.MembershipID != 77 {
		t.Fatalf("resync should link and expire: %+v, %v", got, err)
	}

	again, err := env.sync.ResyncAll(ctx)
	if err != nil || again.Linked != 0 || again.Updated != 0 {
		t.Fatalf("second resync should be a no-op: %+v, %v", again, err)
	}

	if err := env.store.UpsertMembership(ctx, goldMembership("active")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := env.sync.ResyncAll(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	summary, err := env.sync.AccessSummary(ctx, member.UserID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Direct) != 0 || len(summary.Shared) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if s := summary.Shared[0]; s.GroupID != group.ID || s.PlanSlug != "gold" || s.OwnerID != ownerPrincipal.UserID {
		t.Fatalf("unexpected shared entitlement: %+v", s)
	}

	owner, err := env.sync.AccessSummary(ctx, ownerPrincipal.UserID)
	if err != nil || len(owner.Direct) != 1 || len(owner.Shared) != 0 {
		t.Fatalf("owner summary: %+v, %v", owner, err)
	}

	stats, err := env.sync.Stats(ctx)
	if err != nil || stats.LinkedGroups != 1 || stats.ActiveSubaccounts != 1 {
		t.Fatalf("stats: %+v, %v", stats, err)
	}
}
