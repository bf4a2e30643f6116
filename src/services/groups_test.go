package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"membershare/src/apperr"
	"membershare/src/models"
)

func TestCreateFromPurchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	disabled := sharedItem(300, 301, 5)
	disabled.Sharing.Enabled = false
	simple := sharedItem(400, 0, 1)
	simple.ProductName = "Silver Pass"
	simple.Sharing = models.SharingConfig{Enabled: true, LimitType: models.LimitFixed, FixedLimit: 2, GroupLabel: "Team"}

	groups, err := env.groups.CreateFromPurchase(ctx, purchaseOf(sharedItem(100, 200, 4), disabled, simple))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected two groups, got %d", len(groups))
	}

	gold, silver := groups[0], groups[1]
	if gold.Name != "Gold Membership Family" || gold.MaxSubaccounts != 4 || gold.VariationID != 200 {
		t.Fatalf("unexpected gold group: %+v", gold)
	}
	if silver.Name != "Silver Pass Team" || silver.MaxSubaccounts != 2 || silver.VariationID != 400 {
		t.Fatalf("unexpected silver group: %+v", silver)
	}

	owner, err := env.store.FindMemberByUser(ctx, gold.ID, ownerPrincipal.UserID, models.MemberCustomer)
	if err != nil {
		t.Fatalf("owner member: %v", err)
	}
	if owner.Status != models.MemberActive || owner.Email != "owner@example.com" {
		t.Fatalf("unexpected owner member: %+v", owner)
	}

	again, err := env.groups.CreateFromPurchase(ctx, purchaseOf(sharedItem(100, 200, 9)))
	if err != nil {
		t.Fatalf("repeat purchase: %v", err)
	}
	if len(again) != 1 || again[0].ID != gold.ID || again[0].MaxSubaccounts != 4 {
		t.Fatalf("repeat purchase should return the existing group, got %+v", again)
	}

	if _, err := env.groups.CreateFromPurchase(ctx, models.PurchaseCompleted{Items: []models.PurchaseItem{sharedItem(1, 2, 3)}}); apperr.CodeOf(err) != apperr.CodeMissingField {
		t.Fatalf("expected MISSING_FIELD without buyer, got %v", err)
	}
}

func TestInviteCapacityScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 3)

	for i := 1; i <= 3; i++ {
		res, err := env.groups.Invite(ctx, ownerPrincipal, group.ID, fmt.Sprintf("friend%d@example.com", i))
		if err != nil {
			t.Fatalf("invite %d: %v", i, err)
		}
		if !res.Delivered || res.Member.Status != models.MemberPending {
			t.Fatalf("unexpected result: %+v", res)
		}
	}

	_, err := env.groups.Invite(ctx, ownerPrincipal, group.ID, "friend4@example.com")
	if apperr.CodeOf(err) != apperr.CodeConflict || apperr.PublicMessage(err) != "group has reached its member limit" {
		t.Fatalf("expected member limit conflict, got %v", err)
	}

	view, err := env.groups.View(ctx, ownerPrincipal, group.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.SeatsUsed != 3 || view.SeatsRemaining != 0 || len(view.Members) != 4 || len(view.Invitations) != 3 {
		t.Fatalf("unexpected view: used=%d remaining=%d members=%d invitations=%d",
			view.SeatsUsed, view.SeatsRemaining, len(view.Members), len(view.Invitations))
	}
	if len(env.notifier.invitations) != 3 {
		t.Fatalf("expected three emails, got %d", len(env.notifier.invitations))
	}
	if want := "https://club.example/invitations/" + env.notifier.invitations[0].Token; env.notifier.invitations[0].AcceptURL != want {
		t.Fatalf("accept url = %q, want %q", env.notifier.invitations[0].AcceptURL, want)
	}
}

func TestInviteRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 5)
	env.invite(t, group.ID, "taken@example.com")

	stranger := models.Principal{UserID: 99, Email: "stranger@example.com"}
	tests := []struct {
		name      string
		principal models.Principal
		email     string
		code      apperr.Code
	}{
		{name: "anonymous", principal: models.Principal{}, email: "x@example.com", code: apperr.CodeUnauthenticated},
		{name: "not owner", principal: stranger, email: "x@example.com", code: apperr.CodeForbidden},
		{name: "empty email", principal: ownerPrincipal, email: "  ", code: apperr.CodeMissingField},
		{name: "malformed email", principal: ownerPrincipal, email: "not an email", code: apperr.CodeInvalid},
		{name: "self invite", principal: ownerPrincipal, email: "Owner@Example.com", code: apperr.CodeConflict},
		{name: "duplicate by case", principal: ownerPrincipal, email: "TAKEN@example.com", code: apperr.CodeConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.groups.Invite(ctx, tc.principal, group.ID, tc.email)
			if apperr.CodeOf(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	count, err := env.store.CountMembers(ctx, group.ID)
	if err != nil || count.Seats() != 1 {
		t.Fatalf("rejected invites must not reserve seats: %+v, %v", count, err)
	}
}

func TestInviteRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.groups.limiter = NewInviteLimiter(1, 1)
	group := env.createGroup(t, 5)

	env.invite(t, group.ID, "one@example.com")
	_, err := env.groups.Invite(context.Background(), ownerPrincipal, group.ID, "two@example.com")
	if apperr.CodeOf(err) != apperr.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
}

func TestInviteRateLimitCountsOnlyReservations(t *testing.T) {
	env := newTestEnv(t)
	env.groups.limiter = NewInviteLimiter(1, 1)
	ctx := context.Background()
	group := env.createGroup(t, 5)
	env.invite(t, group.ID, "taken@example.com")
	env.groups.limiter = NewInviteLimiter(1, 1)

	rejected := []struct {
		email string
		code  apperr.Code
	}{
		{email: "not an email", code: apperr.CodeInvalid},
		{email: "owner@example.com", code: apperr.CodeConflict},
		{email: "taken@example.com", code: apperr.CodeConflict},
	}
	for _, tc := range rejected {
		if _, err := env.groups.Invite(ctx, ownerPrincipal, group.ID, tc.email); apperr.CodeOf(err) != tc.code {
			t.Fatalf("invite %q: expected %s, got %v", tc.email, tc.code, err)
		}
	}

	if _, err := env.groups.Invite(ctx, ownerPrincipal, group.ID, "fresh@example.com"); err != nil {
		t.Fatalf("rejected attempts must not spend the budget: %v", err)
	}
	if _, err := env.groups.Invite(ctx, ownerPrincipal, group.ID, "later@example.com"); apperr.CodeOf(err) != apperr.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
}

func TestInviteDeliveryFailureKeepsInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 2)
	env.notifier.fail = true

	res, err := env.groups.Invite(ctx, ownerPrincipal, group.ID, "friend@example.com")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if res.Delivered || res.Warning == "" {
		t.Fatalf("expected degraded result, got %+v", res)
	}
	stored, err := env.store.GetInvitation(ctx, res.Invitation.ID)
	if err != nil || stored.Status != models.InvitationPending {
		t.Fatalf("invitation should remain pending: %+v, %v", stored, err)
	}
	if env.metrics.Get("invitation_delivery_failures_total") != 1 {
		t.Fatalf("expected delivery failure metric")
	}
}

func TestAcceptAnonymousCreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 3)
	token := env.invite(t, group.ID, "friend@example.com")

	outcome, err := env.groups.Accept(ctx, models.Principal{}, token)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if outcome.Status != models.InvitationAccepted || outcome.Account == nil || outcome.Session == "" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Account.Username != "friend" {
		t.Fatalf("username = %q, want friend", outcome.Account.Username)
	}

	p, err := env.sessions.Parse(outcome.Session)
	if err != nil || p.UserID != outcome.Account.ID {
		t.Fatalf("session does not identify the new account: %+v, %v", p, err)
	}

	member, err := env.store.FindMemberByEmail(ctx, group.ID, "friend@example.com")
	if err != nil {
		t.Fatalf("find member: %v", err)
	}
	if member.Status != models.MemberActive || member.UserID != outcome.Account.ID || member.JoinedAt != env.clock.Unix() {
		t.Fatalf("unexpected member: %+v", member)
	}

	again, err := env.groups.Accept(ctx, models.Principal{}, token)
	if err != nil {
		t.Fatalf("second accept should be informational, got %v", err)
	}
	if again.Message != "This invitation has already been accepted." {
		t.Fatalf("unexpected message %q", again.Message)
	}

	shared, err := env.groups.ListShared(ctx, p)
	if err != nil || len(shared) != 1 || shared[0].ID != group.ID {
		t.Fatalf("ListShared = %+v, %v", shared, err)
	}
}

func TestInviteeAccountNeverSharesBuyerID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 3)
	token := env.invite(t, group.ID, "stranger@example.com")

	outcome, err := env.groups.Accept(ctx, models.Principal{}, token)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	invitee, err := env.sessions.Parse(outcome.Session)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if invitee.UserID == ownerPrincipal.UserID || invitee.UserID == group.OwnerID {
		t.Fatalf("invitee id %d collides with owner id %d", invitee.UserID, group.OwnerID)
	}

	if _, err := env.groups.View(ctx, invitee, group.ID); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("invitee must not view the owner's group, got %v", err)
	}
	if _, err := env.groups.Rename(ctx, invitee, group.ID, "hijacked"); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("invitee must not rename the owner's group, got %v", err)
	}

	if _, err := env.sync.OnGranted(ctx, goldMembership("active")); err != nil {
		t.Fatalf("granted: %v", err)
	}
	ok, err := env.sync.UserHasSharedAccess(ctx, invitee.UserID, "gold")
	if err != nil || !ok {
		t.Fatalf("invitee should have shared access: %v, %v", ok, err)
	}

	late := purchaseOf(sharedItem(500, 600, 2))
	late.Buyer = models.Buyer{UserID: invitee.UserID, Email: "someone-else@example.com"}
	if _, err := env.groups.CreateFromPurchase(ctx, late); apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("a buyer id already held by another account must be rejected, got %v", err)
	}
	owned, err := env.groups.ListOwned(ctx, invitee)
	if err != nil || len(owned) != 0 {
		t.Fatalf("invitee must own nothing: %+v, %v", owned, err)
	}
}

func TestAcceptIdentityRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 3)

	existingToken := env.invite(t, group.ID, "known@example.com")
	if _, err := env.store.CreateAccount(ctx, models.Account{Username: "known", Email: "known@example.com"}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if _, err := env.groups.Accept(ctx, models.Principal{}, existingToken); apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Fatalf("expected UNAUTHENTICATED for existing account, got %v", err)
	}

	mismatch := models.Principal{UserID: 50, Email: "someone-else@example.com"}
	if _, err := env.groups.Accept(ctx, mismatch, existingToken); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected FORBIDDEN on email mismatch, got %v", err)
	}

	signedIn := models.Principal{UserID: 51, Email: "KNOWN@example.com"}
	outcome, err := env.groups.Accept(ctx, signedIn, existingToken)
	if err != nil {
		t.Fatalf("signed-in accept: %v", err)
	}
	if outcome.Account != nil || outcome.Session != "" {
		t.Fatalf("signed-in accept must not create an account: %+v", outcome)
	}
	if _, err := env.groups.Accept(ctx, models.Principal{}, "bad-token"); apperr.CodeOf(err) != apperr.CodeInvalid {
		t.Fatalf("expected INVALID for malformed token, got %v", err)
	}
}

func TestAcceptRechecksCapacityWhenSeatWasReleased(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 1)

	token := env.invite(t, group.ID, "first@example.com")
	first, err := env.store.FindMemberByEmail(ctx, group.ID, "first@example.com")
	if err != nil {
		t.Fatalf("find member: %v", err)
	}
	if err := env.groups.RemoveMember(ctx, ownerPrincipal, group.ID, first.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	env.invite(t, group.ID, "second@example.com")

	_, err = env.groups.Accept(ctx, models.Principal{UserID: 70, Email: "first@example.com"}, token)
	if apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("expected CONFLICT when the released seat was taken, got %v", err)
	}
	inv, err := env.groups.LookupInvitation(ctx, token)
	if err != nil || inv.Status != models.InvitationPending {
		t.Fatalf("invitation should stay pending after a failed accept: %+v, %v", inv, err)
	}
}

func TestAnonymousAcceptOnFullGroupCreatesNoAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 1)

	token := env.invite(t, group.ID, "first@example.com")
	first, err := env.store.FindMemberByEmail(ctx, group.ID, "first@example.com")
	if err != nil {
		t.Fatalf("find member: %v", err)
	}
	if err := env.groups.RemoveMember(ctx, ownerPrincipal, group.ID, first.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	secondToken := env.invite(t, group.ID, "second@example.com")
	if _, err := env.groups.Accept(ctx, models.Principal{}, secondToken); err != nil {
		t.Fatalf("accept second: %v", err)
	}

	if _, err := env.groups.Accept(ctx, models.Principal{}, token); apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("expected CONFLICT on a full group, got %v", err)
	}
	if _, err := env.store.GetAccountByEmail(ctx, "first@example.com"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("failed accept must not leave an account behind, got %v", err)
	}

	second, err := env.store.FindMemberByEmail(ctx, group.ID, "second@example.com")
	if err != nil {
		t.Fatalf("find member: %v", err)
	}
	if err := env.groups.RemoveMember(ctx, ownerPrincipal, group.ID, second.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	outcome, err := env.groups.Accept(ctx, models.Principal{}, token)
	if err != nil {
		t.Fatalf("retry after a seat freed up: %v", err)
	}
	if outcome.Status != models.InvitationAccepted || outcome.Session == "" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestAcceptRequiresActiveGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 2)
	token := env.invite(t, group.ID, "friend@example.com")

	if _, err := env.store.UpdateGroupStatus(ctx, group.ID, models.GroupSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	_, err := env.groups.Accept(ctx, models.Principal{UserID: 9, Email: "friend@example.com"}, token)
	if apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("expected CONFLICT for suspended group, got %v", err)
	}
}

func TestExpiredInvitationShowsMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 2)
	token := env.invite(t, group.ID, "late@example.com")

	env.advance(8 * 24 * time.Hour)
	if _, err := env.invitations.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	outcome, err := env.groups.Accept(ctx, models.Principal{}, token)
	if err != nil {
		t.Fatalf("accept after sweep: %v", err)
	}
	if outcome.Status != models.InvitationExpired || outcome.Message != "This invitation has expired." {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestDecline(t *testing.T) {
	tests := []struct {
		name          string
		releasesSeat  bool
		wantSeatsUsed int
	}{
		{name: "keeps pending seat", releasesSeat: false, wantSeatsUsed: 1},
		{name: "releases pending seat", releasesSeat: true, wantSeatsUsed: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnvWith(t, GroupSettings{DeclineReleasesSeat: tc.releasesSeat})
			ctx := context.Background()
			group := env.createGroup(t, 2)
			token := env.invite(t, group.ID, "friend@example.com")

			outcome, err := env.groups.Decline(ctx, models.Principal{}, token)
			if err != nil {
				t.Fatalf("decline: %v", err)
			}
			if outcome.Status != models.InvitationDeclined || outcome.Message != "This invitation has been declined." {
				t.Fatalf("unexpected outcome: %+v", outcome)
			}
			count, err := env.store.CountMembers(ctx, group.ID)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if count.Seats() != tc.wantSeatsUsed {
				t.Fatalf("seats used = %d, want %d", count.Seats(), tc.wantSeatsUsed)
			}

			again, err := env.groups.Accept(ctx, models.Principal{}, token)
			if err != nil || again.Message != "This invitation has been declined." {
				t.Fatalf("accept after decline: %+v, %v", again, err)
			}
		})
	}
}

func TestRenameJoinLeaveRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 2)

	if _, err := env.groups.Rename(ctx, ownerPrincipal, group.ID, "   "); apperr.CodeOf(err) != apperr.CodeMissingField {
		t.Fatalf("expected MISSING_FIELD for empty name, got %v", err)
	}
	renamed, err := env.groups.Rename(ctx, ownerPrincipal, group.ID, "The Smiths")
	if err != nil || renamed.Name != "The Smiths" {
		t.Fatalf("rename: %+v, %v", renamed, err)
	}
	if _, err := env.groups.Rename(ctx, models.Principal{UserID: 2, Email: "x@example.com"}, group.ID, "Nope"); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}

	if _, err := env.groups.Join(ctx, ownerPrincipal, group.ID); apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("expected double join CONFLICT, got %v", err)
	}
	if err := env.groups.Leave(ctx, ownerPrincipal, group.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := env.groups.Leave(ctx, ownerPrincipal, group.ID); apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("expected leave-when-absent CONFLICT, got %v", err)
	}
	if _, err := env.groups.Join(ctx, ownerPrincipal, group.ID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	env.invite(t, group.ID, "friend@example.com")
	member, err := env.store.FindMemberByEmail(ctx, group.ID, "friend@example.com")
	if err != nil {
		t.Fatalf("find member: %v", err)
	}
	owner, err := env.store.FindMemberByUser(ctx, group.ID, ownerPrincipal.UserID, models.MemberCustomer)
	if err != nil {
		t.Fatalf("find owner: %v", err)
	}
	if err := env.groups.RemoveMember(ctx, ownerPrincipal, group.ID, owner.ID); apperr.CodeOf(err) != apperr.CodeConflict {
		t.Fatalf("expected CONFLICT removing the owner row, got %v", err)
	}
	if err := env.groups.RemoveMember(ctx, ownerPrincipal, group.ID+1, member.ID); err == nil {
		t.Fatalf("expected error for member of another group")
	}
	if err := env.groups.RemoveMember(ctx, ownerPrincipal, group.ID, member.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	invitations, err := env.store.ListInvitations(ctx, group.ID, models.InvitationPending)
	if err != nil || len(invitations) != 1 {
		t.Fatalf("removing a member must leave its invitation: %d, %v", len(invitations), err)
	}
}

func TestRemind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 2)
	res, err := env.groups.Invite(ctx, ownerPrincipal, group.ID, "friend@example.com")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	if _, err := env.groups.Remind(ctx, ownerPrincipal, res.Invitation.ID); err != nil {
		t.Fatalf("remind: %v", err)
	}
	if len(env.notifier.reminders) != 1 || env.notifier.reminders[0].Email != "friend@example.com" {
		t.Fatalf("unexpected reminders: %+v", env.notifier.reminders)
	}

	env.notifier.fail = true
	if _, err := env.groups.Remind(ctx, ownerPrincipal, res.Invitation.ID); apperr.CodeOf(err) != apperr.CodeDeliveryFailure {
		t.Fatalf("expected DELIVERY_FAILURE, got %v", err)
	}
	if _, err := env.groups.Remind(ctx, models.Principal{UserID: 3, Email: "x@example.com"}, res.Invitation.ID); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-owner, got %v", err)
	}
}

func TestAdminOperations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group := env.createGroup(t, 2)
	res, err := env.groups.Invite(ctx, ownerPrincipal, group.ID, "friend@example.com")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	admin := models.Principal{UserID: 1000, Email: "admin@example.com", Admin: true}

	if _, err := env.groups.ListAll(ctx, ownerPrincipal, ""); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-admin, got %v", err)
	}
	if _, err := env.groups.View(ctx, admin, group.ID); err != nil {
		t.Fatalf("admin view: %v", err)
	}

	updated, err := env.groups.SetStatus(ctx, admin, group.ID, models.GroupSuspended)
	if err != nil || updated.Status != models.GroupSuspended {
		t.Fatalf("set status: %+v, %v", updated, err)
	}
	suspended, err := env.groups.ListAll(ctx, admin, models.GroupSuspended)
	if err != nil || len(suspended) != 1 {
		t.Fatalf("list suspended: %d, %v", len(suspended), err)
	}
	if _, err := env.groups.ListAll(ctx, admin, "bogus"); apperr.CodeOf(err) != apperr.CodeInvalid {
		t.Fatalf("expected INVALID status filter, got %v", err)
	}

	if _, err := env.groups.RevokeInvitation(ctx, admin, res.Invitation.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	stats, err := env.groups.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Groups.TotalGroups != 1 || stats.Invitations.Revoked != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := env.groups.Delete(ctx, admin, group.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.store.GetGroup(ctx, group.ID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected group to be gone, got %v", err)
	}
}
