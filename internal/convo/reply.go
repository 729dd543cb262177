package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"parley/core/internal/idgen"
	"parley/core/internal/realtime"
	"parley/core/internal/store"
)

type ReplyInput struct {
	ReplyToEntryPublicID   string            `json:"replyToMessagePublicId"`
	SendAsIdentityPublicID string            `json:"sendAsEmailIdentityPublicId"`
	Body                   json.RawMessage   `json:"message"`
	MessageType            string            `json:"messageType"`
	Attachments            []AttachmentInput `json:"attachments"`
}

type ReplyResult struct {
	EntryPublicID string `json:"publicId"`
	BodyPlainText string `json:"bodyPlainText"`
}

// Reply appends an entry to an existing conversation, threading it under the
// entry being replied to. Authors who are not yet participants join the
// conversation as contributors.
func (s *Service) Reply(ctx context.Context, org store.Org, actor store.OrgMember, input ReplyInput) (ReplyResult, error) {
	if input.ReplyToEntryPublicID == "" {
		return ReplyResult{}, validationError("Reply target is required")
	}
	if input.MessageType != "message" && input.MessageType != "comment" {
		return ReplyResult{}, validationError("Message type must be message or comment")
	}
	if len(input.Body) == 0 {
		return ReplyResult{}, validationError("Message body is required")
	}

	target, err := s.store.GetEntryByPublicID(ctx, org.ID, input.ReplyToEntryPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReplyResult{}, unprocessableError("Reply to message not found")
	}
	if err != nil {
		return ReplyResult{}, fmt.Errorf("lookup reply target: %w", err)
	}
	convo, err := s.store.GetConvoByID(ctx, target.ConvoID)
	if err != nil {
		return ReplyResult{}, fmt.Errorf("lookup convo: %w", err)
	}
	convoSpaces, err := s.store.GetConvoSpaces(ctx, convo.ID)
	if err != nil {
		return ReplyResult{}, err
	}
	participants, err := s.store.GetConvoParticipants(ctx, convo.ID)
	if err != nil {
		return ReplyResult{}, err
	}

	var sendAs *store.EmailIdentity
	var sendAsID sql.NullInt64
	if input.SendAsIdentityPublicID != "" {
		identity, err := s.resolveSendAsIdentity(ctx, org.ID, input.SendAsIdentityPublicID)
		if err != nil {
			return ReplyResult{}, err
		}
		sendAs = &identity
		sendAsID = sql.NullInt64{Int64: identity.ID, Valid: true}
	}

	authorRow, err := s.replyAuthor(ctx, org.ID, convo.ID, actor, participants, sendAsID, input.MessageType)
	if err != nil {
		return ReplyResult{}, err
	}

	hasContacts := false
	for _, p := range participants {
		if p.ContactID.Valid {
			hasContacts = true
			break
		}
	}
	if sendAs != nil && hasContacts {
		spaceIDs := make([]int64, 0, len(convoSpaces))
		for _, ref := range convoSpaces {
			spaceIDs = append(spaceIDs, ref.SpaceID)
		}
		if err := s.authorizeSendAs(ctx, *sendAs, actor.ID, spaceIDs); err != nil {
			return ReplyResult{}, err
		}
	}

	body, plainText, inline, err := s.processBody(input.Body)
	if err != nil {
		return ReplyResult{}, err
	}
	now := s.now()
	entry, err := s.store.InsertEntry(ctx, store.ConvoEntry{
		PublicID:      s.newID(idgen.KindConvoEntry),
		OrgID:         org.ID,
		ConvoID:       convo.ID,
		AuthorID:      authorRow.ID,
		SubjectID:     target.SubjectID,
		ReplyToID:     sql.NullInt64{Int64: target.ID, Valid: true},
		Type:          input.MessageType,
		Visibility:    "all_participants",
		Body:          body,
		BodyPlainText: plainText,
		CreatedAt:     now,
	})
	if err != nil {
		return ReplyResult{}, err
	}

	if err := s.store.UpdateConvoLastUpdated(ctx, convo.ID, now); err != nil {
		return ReplyResult{}, err
	}
	if err := s.store.InsertEntryReply(ctx, target.ID, entry.ID); err != nil {
		return ReplyResult{}, err
	}
	if err := s.recordAttachments(ctx, org.ID, convo.ID, entry.ID, authorRow.ID, input.Attachments, inline); err != nil {
		return ReplyResult{}, err
	}
	if err := s.markSeen(ctx, convo.ID, entry.ID, authorRow, now); err != nil {
		return ReplyResult{}, err
	}

	if shouldDispatch(hasContacts, sendAs != nil, input.MessageType) {
		if err := s.dispatchEntry(ctx, org.ID, convo, entry, sendAs.PublicID, ""); err != nil {
			return ReplyResult{}, err
		}
	}

	s.indexEntry(org, convo, entry, s.subjectText(ctx, convo.ID, target.SubjectID))
	channels := make([]string, 0, len(convoSpaces))
	for _, ref := range convoSpaces {
		channels = append(channels, realtime.SpaceChannel(ref.SpacePublicID))
	}
	s.emitOnChannels(ctx, channels, realtime.EventConvoEntryNew, map[string]string{
		"convoPublicId": convo.PublicID,
		"entryPublicId": entry.PublicID,
	})

	return ReplyResult{EntryPublicID: entry.PublicID, BodyPlainText: plainText}, nil
}

// replyAuthor finds the participant row the actor replies through. A direct
// row is reused, updating its sender identity if an outbound message switches
// it. Without one, the actor joins as a contributor.
func (s *Service) replyAuthor(ctx context.Context, orgID, convoID int64, actor store.OrgMember, participants []store.ConvoParticipantDetail, sendAsID sql.NullInt64, messageType string) (store.ConvoParticipant, error) {
	for _, p := range participants {
		if p.OrgMemberID.Valid && p.OrgMemberID.Int64 == actor.ID {
			if sendAsID.Valid && messageType == "message" &&
				(!p.EmailIdentityID.Valid || p.EmailIdentityID.Int64 != sendAsID.Int64) {
				if err := s.store.UpdateParticipantEmailIdentity(ctx, p.ID, sendAsID.Int64); err != nil {
					return store.ConvoParticipant{}, err
				}
				p.EmailIdentityID = sendAsID
			}
			return p.ConvoParticipant, nil
		}
	}
	row, _, err := s.store.InsertMemberParticipant(ctx, store.ConvoParticipant{
		PublicID:        s.newID(idgen.KindConvoParticipant),
		OrgID:           orgID,
		ConvoID:         convoID,
		OrgMemberID:     sql.NullInt64{Int64: actor.ID, Valid: true},
		EmailIdentityID: sendAsID,
		Role:            "contributor",
		Notifications:   "active",
		Active:          true,
	})
	return row, err
}

func (s *Service) subjectText(ctx context.Context, convoID int64, subjectID sql.NullInt64) string {
	subjects, err := s.store.GetConvoSubjects(ctx, convoID)
	if err != nil {
		return ""
	}
	for _, subject := range subjects {
		if subjectID.Valid && subject.ID == subjectID.Int64 {
			return subject.Subject
		}
	}
	if len(subjects) > 0 {
		return subjects[len(subjects)-1].Subject
	}
	return ""
}
