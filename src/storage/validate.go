package storage

import (
	"strings"

	"membershare/src/apperr"
	"membershare/src/models"
)

// ValidateGroup checks required group fields before any write.
func ValidateGroup(group models.Group) error {
	if group.OwnerID == 0 {
		return apperr.MissingField("owner id")
	}
	if group.VariationID == 0 {
		return apperr.MissingField("variation id")
	}
	if strings.TrimSpace(group.Name) == "" {
		return apperr.MissingField("name")
	}
	if group.MaxSubaccounts < 0 {
		return apperr.Invalid("max subaccounts must be >= 0")
	}
	if group.Status != "" && !group.Status.Valid() {
		return apperr.Invalid("unknown group status")
	}
	return nil
}

func ValidateMember(member models.GroupMember) error {
	if member.GroupID == 0 {
		return apperr.MissingField("group id")
	}
	if strings.TrimSpace(member.Email) == "" {
		return apperr.MissingField("email")
	}
	switch member.MemberType {
	case models.MemberCustomer, models.MemberSubaccount:
	default:
		return apperr.Invalid("unknown member type")
	}
	switch member.Status {
	case models.MemberActive, models.MemberPending, models.MemberRevoked:
	default:
		return apperr.Invalid("unknown member status")
	}
	return nil
}

func ValidateInvitation(invitation models.Invitation) error {
	if invitation.GroupID == 0 {
		return apperr.MissingField("group id")
	}
	if strings.TrimSpace(invitation.Email) == "" {
		return apperr.MissingField("email")
	}
	if strings.TrimSpace(invitation.Token) == "" {
		return apperr.MissingField("token")
	}
	if invitation.ExpiresAt == 0 {
		return apperr.MissingField("expires at")
	}
	return nil
}

func ValidateAccount(account models.Account) error {
	if strings.TrimSpace(account.Email) == "" {
		return apperr.MissingField("email")
	}
	if strings.TrimSpace(account.Username) == "" {
		return apperr.MissingField("username")
	}
	return nil
}
