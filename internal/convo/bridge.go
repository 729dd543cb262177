package convo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"parley/core/internal/mailbridge"
	"parley/core/internal/store"
)

// resolveSendAsIdentity loads an email identity and verifies it is able to
// send: the identity itself enabled, and its custom domain, if any, active
// with sending allowed.
func (s *Service) resolveSendAsIdentity(ctx context.Context, orgID int64, publicID string) (store.EmailIdentity, error) {
	identity, err := s.store.GetEmailIdentityByPublicID(ctx, orgID, publicID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.EmailIdentity{}, notFoundError("Email identity not found")
	}
	if err != nil {
		return store.EmailIdentity{}, fmt.Errorf("lookup email identity %s: %w", publicID, err)
	}
	if !identity.SendingEnabled {
		return store.EmailIdentity{}, unprocessableError("Sending is disabled for this email identity")
	}
	if identity.DomainStatus.Valid && identity.DomainStatus.String != "active" {
		return store.EmailIdentity{}, unprocessableError("The domain of this email identity is not active")
	}
	if identity.DomainSendingMode.Valid && identity.DomainSendingMode.String == "disabled" {
		return store.EmailIdentity{}, unprocessableError("Sending is disabled for the domain of this email identity")
	}
	return identity, nil
}

// authorizeSendAs checks that the member may send as the identity: a direct
// grant, a grant to one of their teams, or a grant to a space the
// conversation is currently filed in.
func (s *Service) authorizeSendAs(ctx context.Context, identity store.EmailIdentity, orgMemberID int64, convoSpaceIDs []int64) error {
	senders, err := s.store.GetAuthorizedSenders(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("authorize send as %s: %w", identity.PublicID, err)
	}
	spaceSet := make(map[int64]struct{}, len(convoSpaceIDs))
	for _, id := range convoSpaceIDs {
		spaceSet[id] = struct{}{}
	}
	for _, sender := range senders {
		if sender.OrgMemberID.Valid && sender.OrgMemberID.Int64 == orgMemberID {
			return nil
		}
		if sender.TeamID.Valid {
			isMember, err := s.store.IsTeamMember(ctx, sender.TeamID.Int64, orgMemberID)
			if err != nil {
				return fmt.Errorf("authorize send as %s: %w", identity.PublicID, err)
			}
			if isMember {
				return nil
			}
		}
		if sender.SpaceID.Valid {
			if _, ok := spaceSet[sender.SpaceID.Int64]; ok {
				return nil
			}
		}
	}
	return unauthorizedError("User is not authorized to send as this email identity")
}

// shouldDispatch reports whether an entry leaves the org boundary: only
// messages, never comments, and only when contacts participate and an
// identity was chosen to send as.
func shouldDispatch(hasContacts bool, hasSendAs bool, entryType string) bool {
	return hasContacts && hasSendAs && entryType == "message"
}

// dispatchEntry hands a committed entry to the mail bridge. The entry is
// already durable; a delivery failure surfaces to the caller without undoing
// anything.
func (s *Service) dispatchEntry(ctx context.Context, orgID int64, convo store.Convo, entry store.ConvoEntry, sendAsPublicID, addressedPublicID string) error {
	if s.bridge == nil {
		return internalError("Mail delivery is not configured")
	}
	err := s.bridge.SendConvoEntryEmail(ctx, mailbridge.SendEntryRequest{
		OrgID:                        orgID,
		ConvoPublicID:                convo.PublicID,
		EntryPublicID:                entry.PublicID,
		SendAsIdentityPublicID:       sendAsPublicID,
		AddressedParticipantPublicID: addressedPublicID,
	})
	if err != nil {
		log.Printf("convo: dispatch entry %s: %v", entry.PublicID, err)
		return internalError("Failed to dispatch the message for delivery")
	}
	return nil
}
