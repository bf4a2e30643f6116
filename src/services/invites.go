package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"membershare/src/apperr"
	"membershare/src/models"
)

// InviteResult reports an invitation whose seat is reserved. Delivered is
// false when the notifier failed; the invitation still stands.
type InviteResult struct {
	Invitation models.Invitation  `json:"invitation"`
	Member     models.GroupMember `json:"member"`
	Delivered  bool               `json:"delivered"`
	Warning    string             `json:"warning,omitempty"`
}

// InvitationOutcome is what the token endpoints report. Message is set for
// invitations that are no longer pending and for completed actions. Session
// is set when accept created a new account.
type InvitationOutcome struct {
	Invitation models.Invitation       `json:"invitation"`
	Group      models.Group            `json:"group"`
	Status     models.InvitationStatus `json:"status"`
	Message    string                  `json:"message,omitempty"`
	Account    *models.Account         `json:"account,omitempty"`
	Session    string                  `json:"session,omitempty"`
}

func (s *GroupService) acceptURL(token string) string {
	return s.settings.PublicBaseURL + "/invitations/" + token
}

func (s *GroupService) invitationMessage(group models.Group, owner string, inv models.Invitation) InvitationMessage {
	return InvitationMessage{
		Email:     inv.Email,
		Token:     inv.Token,
		AcceptURL: s.acceptURL(inv.Token),
		GroupID:   group.ID,
		GroupName: group.Name,
		OwnerName: owner,
		ExpiresAt: inv.ExpiresAt,
	}
}

// Invite reserves a seat for email and sends the invitation.
func (s *GroupService) Invite(ctx context.Context, p models.Principal, groupID int64, rawEmail string) (InviteResult, error) {
	ctx, span := tracer.Start(ctx, "groups.invite")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	group, err := s.ownedGroup(ctx, p, groupID)
	if err != nil {
		return InviteResult{}, err
	}
	if group.Status != models.GroupActive {
		return InviteResult{}, apperr.Conflict("group is not active")
	}

	email, err := ParseEmail(rawEmail)
	if err != nil {
		return InviteResult{}, err
	}

	ownerEmail := NormalizeEmail(p.Email)
	if owner, err := s.store.FindMemberByUser(ctx, group.ID, group.OwnerID, models.MemberCustomer); err == nil {
		ownerEmail = NormalizeEmail(owner.Email)
	}
	if email == ownerEmail {
		return InviteResult{}, apperr.Conflict("you cannot invite yourself")
	}

	if _, err := s.store.FindMemberByEmail(ctx, group.ID, email); err == nil {
		return InviteResult{}, apperr.Conflict("this email is already a member of the group")
	} else if !apperr.HasCode(err, apperr.CodeNotFound) {
		return InviteResult{}, err
	}

	if !s.limiter.Allow(p.UserID, s.now()) {
		s.metrics.Inc("invitations_rate_limited_total")
		return InviteResult{}, apperr.New(apperr.CodeRateLimited, "too many invitations, try again later")
	}

	member, ok, err := s.store.AddMemberWithinCapacity(ctx, models.GroupMember{
		GroupID:    group.ID,
		Email:      email,
		MemberType: models.MemberSubaccount,
		Status:     models.MemberPending,
		InvitedAt:  s.now().Unix(),
	})
	if err != nil {
		return InviteResult{}, err
	}
	if !ok {
		s.metrics.Inc("invitations_rejected_capacity_total")
		return InviteResult{}, apperr.Conflict("group has reached its member limit")
	}

	invitation, err := s.invitations.Issue(ctx, group.ID, email, "")
	if err != nil {
		if delErr := s.store.DeleteMember(ctx, member.ID); delErr != nil {
			s.logger.Error("release reserved seat failed", "member_id", member.ID, "error", delErr)
		}
		return InviteResult{}, err
	}

	result := InviteResult{Invitation: invitation, Member: member, Delivered: true}
	if err := s.notifier.SendInvitation(ctx, s.invitationMessage(group, p.Name, invitation)); err != nil {
		s.metrics.Inc("invitation_delivery_failures_total")
		s.logger.Warn("invitation email failed", "group_id", group.ID, "invitation_id", invitation.ID, "error", err)
		result.Delivered = false
		result.Warning = "invitation created but the email could not be sent"
	} else {
		s.metrics.Inc("invitations_sent_total")
	}

	s.logger.Info("invitation issued", "group_id", group.ID, "invitation_id", invitation.ID, "delivered", result.Delivered)
	return result, nil
}

// LookupInvitation resolves a token for display.
func (s *GroupService) LookupInvitation(ctx context.Context, token string) (InvitationOutcome, error) {
	invitation, err := s.invitations.Lookup(ctx, token)
	if err != nil {
		return InvitationOutcome{}, err
	}
	group, err := s.store.GetGroup(ctx, invitation.GroupID)
	if err != nil {
		return InvitationOutcome{}, err
	}
	return InvitationOutcome{
		Invitation: invitation,
		Group:      group,
		Status:     invitation.Status,
		Message:    StatusMessage(invitation.Status),
	}, nil
}

// Accept joins the invitee to the group. Invitations that are no longer
// pending yield their status message without error.
func (s *GroupService) Accept(ctx context.Context, p models.Principal, token string) (InvitationOutcome, error) {
	ctx, span := tracer.Start(ctx, "groups.accept")
	defer span.End()

	outcome, err := s.LookupInvitation(ctx, token)
	if err != nil || outcome.Status != models.InvitationPending {
		return outcome, err
	}
	invitation, group := outcome.Invitation, outcome.Group
	span.SetAttributes(attribute.Int64("group.id", group.ID), attribute.Int64("invitation.id", invitation.ID))

	if group.Status != models.GroupActive {
		return InvitationOutcome{}, apperr.Conflict("group is not active")
	}

	userID := p.UserID
	if p.Anonymous() {
		// No account is created unless a seat is free.
		if err := s.requireNewInvitee(ctx, invitation.Email); err != nil {
			return InvitationOutcome{}, err
		}
		if err := s.seatOpen(ctx, group, invitation.Email); err != nil {
			return InvitationOutcome{}, err
		}
		account, session, err := s.createInviteeAccount(ctx, invitation.Email)
		if err != nil {
			return InvitationOutcome{}, err
		}
		userID = account.ID
		outcome.Account = &account
		outcome.Session = session
	} else if NormalizeEmail(p.Email) != NormalizeEmail(invitation.Email) {
		return InvitationOutcome{}, apperr.Forbidden("this invitation was sent to a different email address")
	}

	now := s.now().Unix()
	if err := s.seatInvitee(ctx, group, invitation.Email, userID, now); err != nil {
		if outcome.Account != nil {
			s.discardAccount(ctx, outcome.Account.ID)
		}
		return InvitationOutcome{}, err
	}

	ok, err := s.store.TransitionInvitation(ctx, invitation.ID, models.InvitationPending, models.InvitationAccepted, now)
	if err != nil {
		return InvitationOutcome{}, err
	}
	if !ok {
		return InvitationOutcome{}, apperr.Conflict("invitation is no longer pending")
	}

	s.metrics.Inc("invitations_accepted_total")
	s.logger.Info("invitation accepted", "group_id", group.ID, "invitation_id", invitation.ID, "user_id", userID)

	invitation.Status = models.InvitationAccepted
	invitation.AcceptedAt = now
	outcome.Invitation = invitation
	outcome.Status = invitation.Status
	outcome.Message = fmt.Sprintf("You have joined %s.", group.Name)
	return outcome, nil
}

// requireNewInvitee rejects anonymous accepts for emails that already have
// an account; those users must sign in.
func (s *GroupService) requireNewInvitee(ctx context.Context, email string) error {
	_, found, err := s.identity.LookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if found {
		return apperr.New(apperr.CodeUnauthenticated, "an account already exists for this email, sign in to accept")
	}
	return nil
}

func (s *GroupService) createInviteeAccount(ctx context.Context, email string) (models.Account, string, error) {
	account, err := s.identity.CreateAccount(ctx, email, "")
	if err != nil {
		return models.Account{}, "", err
	}
	s.metrics.Inc("accounts_created_total")

	if s.sessions == nil {
		return account, "", nil
	}
	session, err := s.sessions.IssueSession(account)
	if err != nil {
		s.discardAccount(ctx, account.ID)
		return models.Account{}, "", err
	}
	return account, session, nil
}

func (s *GroupService) discardAccount(ctx context.Context, id int64) {
	if err := s.identity.DeleteAccount(ctx, id); err != nil {
		s.logger.Error("discard invitee account failed", "account_id", id, "error", err)
		return
	}
	s.logger.Info("discarded invitee account after failed accept", "account_id", id)
}

// seatOpen reports whether seatInvitee can currently succeed for email. It
// is advisory; seatInvitee still enforces capacity atomically.
func (s *GroupService) seatOpen(ctx context.Context, group models.Group, email string) error {
	member, err := s.store.FindMemberByEmail(ctx, group.ID, email)
	if err != nil && !apperr.HasCode(err, apperr.CodeNotFound) {
		return err
	}
	if err == nil && member.Status == models.MemberActive {
		return nil
	}
	count, err := s.store.CountMembers(ctx, group.ID)
	if err != nil {
		return err
	}
	used := count.Seats()
	if member.Status == models.MemberPending {
		used = count.Active
	}
	if used >= group.MaxSubaccounts {
		return apperr.Conflict("group has reached its member limit")
	}
	return nil
}

// seatInvitee activates the invitee's pending row, or inserts a fresh active
// row when it is gone. Both paths are bounded by capacity.
func (s *GroupService) seatInvitee(ctx context.Context, group models.Group, email string, userID, now int64) error {
	full := apperr.Conflict("group has reached its member limit")

	member, err := s.store.FindMemberByEmail(ctx, group.ID, email)
	switch {
	case err == nil && member.Status == models.MemberActive:
		return nil
	case err == nil && member.Status == models.MemberPending:
		ok, err := s.store.ActivateMember(ctx, member.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return full
		}
		return nil
	case err == nil:
		if err := s.store.DeleteMember(ctx, member.ID); err != nil {
			return err
		}
	case !apperr.HasCode(err, apperr.CodeNotFound):
		return err
	}

	_, ok, err := s.store.AddMemberWithinCapacity(ctx, models.GroupMember{
		GroupID:    group.ID,
		UserID:     userID,
		Email:      email,
		MemberType: models.MemberSubaccount,
		Status:     models.MemberActive,
		InvitedAt:  now,
		JoinedAt:   now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return full
	}
	return nil
}

// Decline marks a pending invitation declined. The reserved seat is kept
// unless the service is configured to release it.
func (s *GroupService) Decline(ctx context.Context, p models.Principal, token string) (InvitationOutcome, error) {
	outcome, err := s.LookupInvitation(ctx, token)
	if err != nil || outcome.Status != models.InvitationPending {
		return outcome, err
	}
	invitation := outcome.Invitation

	if !p.Anonymous() && NormalizeEmail(p.Email) != NormalizeEmail(invitation.Email) {
		return InvitationOutcome{}, apperr.Forbidden("this invitation was sent to a different email address")
	}

	ok, err := s.store.TransitionInvitation(ctx, invitation.ID, models.InvitationPending, models.InvitationDeclined, s.now().Unix())
	if err != nil {
		return InvitationOutcome{}, err
	}
	if !ok {
		return InvitationOutcome{}, apperr.Conflict("invitation is no longer pending")
	}

	if s.settings.DeclineReleasesSeat {
		member, err := s.store.FindMemberByEmail(ctx, invitation.GroupID, invitation.Email)
		if err == nil && member.Status == models.MemberPending {
			if err := s.store.DeleteMember(ctx, member.ID); err != nil {
				return InvitationOutcome{}, err
			}
		} else if err != nil && !apperr.HasCode(err, apperr.CodeNotFound) {
			return InvitationOutcome{}, err
		}
	}

	s.metrics.Inc("invitations_declined_total")
	invitation.Status = models.InvitationDeclined
	outcome.Invitation = invitation
	outcome.Status = invitation.Status
	outcome.Message = StatusMessage(models.InvitationDeclined)
	return outcome, nil
}

// Remind resends a pending invitation.
func (s *GroupService) Remind(ctx context.Context, p models.Principal, invitationID int64) (models.Invitation, error) {
	if err := requireIdentified(p); err != nil {
		return models.Invitation{}, err
	}
	invitation, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return models.Invitation{}, err
	}
	group, err := s.ownedGroup(ctx, p, invitation.GroupID)
	if err != nil {
		return models.Invitation{}, err
	}
	if invitation.Status != models.InvitationPending {
		return models.Invitation{}, apperr.Conflict("only pending invitations can be reminded")
	}
	if invitation.ExpiredAt(s.now().Unix()) {
		return models.Invitation{}, apperr.New(apperr.CodeExpired, StatusMessage(models.InvitationExpired))
	}

	if err := s.notifier.SendReminder(ctx, s.invitationMessage(group, p.Name, invitation)); err != nil {
		s.metrics.Inc("invitation_delivery_failures_total")
		return models.Invitation{}, apperr.Wrap(apperr.CodeDeliveryFailure, "failed to send reminder", err)
	}
	s.metrics.Inc("reminders_sent_total")
	return invitation, nil
}
