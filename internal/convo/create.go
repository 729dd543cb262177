package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"parley/core/internal/idgen"
	"parley/core/internal/realtime"
	"parley/core/internal/spaces"
	"parley/core/internal/store"
)

type CreateConvoInput struct {
	SpacePublicIDs         []string          `json:"spacePublicIds"`
	MemberPublicIDs        []string          `json:"participantMemberPublicIds"`
	TeamPublicIDs          []string          `json:"participantTeamPublicIds"`
	ContactPublicIDs       []string          `json:"participantContactPublicIds"`
	EmailParticipants      []string          `json:"participantEmails"`
	SendAsIdentityPublicID string            `json:"sendAsEmailIdentityPublicId"`
	To                     RecipientRef      `json:"to"`
	Topic                  string            `json:"topic"`
	Body                   json.RawMessage   `json:"message"`
	FirstMessageType       string            `json:"firstMessageType"`
	Attachments            []AttachmentInput `json:"attachments"`
}

type CreateConvoResult struct {
	ConvoPublicID string `json:"publicId"`
	EntryPublicID string `json:"entryPublicId"`
}

// CreateConvo creates a conversation with its first entry, registers every
// requested participant, and files it into the requested spaces. When
// external contacts are addressed with a message, the entry is handed to the
// mail bridge after commit.
func (s *Service) CreateConvo(ctx context.Context, org store.Org, actor store.OrgMember, input CreateConvoInput) (CreateConvoResult, error) {
	if err := validateCreateInput(input); err != nil {
		return CreateConvoResult{}, err
	}

	var sendAs *store.EmailIdentity
	if input.SendAsIdentityPublicID != "" {
		identity, err := s.resolveSendAsIdentity(ctx, org.ID, input.SendAsIdentityPublicID)
		if err != nil {
			return CreateConvoResult{}, err
		}
		sendAs = &identity
	}

	targetSpaces, err := s.resolveTargetSpaces(ctx, org.ID, actor, input.SpacePublicIDs)
	if err != nil {
		return CreateConvoResult{}, err
	}

	members, err := s.resolveMembers(ctx, org.ID, input.MemberPublicIDs)
	if err != nil {
		return CreateConvoResult{}, err
	}
	teams, err := s.resolveTeams(ctx, org.ID, input.TeamPublicIDs)
	if err != nil {
		return CreateConvoResult{}, err
	}
	contacts, err := s.resolveContacts(ctx, org.ID, input.ContactPublicIDs)
	if err != nil {
		return CreateConvoResult{}, err
	}
	for _, address := range input.EmailParticipants {
		contact, err := s.ensureContactForEmail(ctx, org.ID, address)
		if err != nil {
			return CreateConvoResult{}, err
		}
		if !containsContact(contacts, contact.ID) {
			contacts = append(contacts, contact)
		}
	}

	filingSpaces, err := s.collectFilingSpaces(ctx, targetSpaces, members, teams)
	if err != nil {
		return CreateConvoResult{}, err
	}

	now := s.now()
	convo, err := s.store.InsertConvo(ctx, org.ID, s.newID(idgen.KindConvo), now)
	if err != nil {
		return CreateConvoResult{}, err
	}
	spaceChannels := make([]string, 0, len(filingSpaces))
	for _, space := range filingSpaces {
		if _, err := s.store.AddConvoToSpace(ctx, s.newID(idgen.KindConvoToSpace), convo.ID, space.ID); err != nil {
			return CreateConvoResult{}, err
		}
		spaceChannels = append(spaceChannels, realtime.SpaceChannel(space.PublicID))
	}
	subject, err := s.store.InsertConvoSubject(ctx, s.newID(idgen.KindConvoSubject), convo.ID, input.Topic)
	if err != nil {
		return CreateConvoResult{}, err
	}

	var sendAsID sql.NullInt64
	if sendAs != nil {
		sendAsID = sql.NullInt64{Int64: sendAs.ID, Valid: true}
	}
	reg, err := s.registerParticipants(ctx, participantPlan{
		orgID:    org.ID,
		convoID:  convo.ID,
		author:   actor,
		sendAsID: sendAsID,
		members:  members,
		teams:    teams,
		contacts: contacts,
		to:       input.To,
	})
	if err != nil {
		return CreateConvoResult{}, err
	}

	body, plainText, inline, err := s.processBody(input.Body)
	if err != nil {
		return CreateConvoResult{}, err
	}
	entry, err := s.store.InsertEntry(ctx, store.ConvoEntry{
		PublicID:      s.newID(idgen.KindConvoEntry),
		OrgID:         org.ID,
		ConvoID:       convo.ID,
		AuthorID:      reg.authorRow.ID,
		SubjectID:     sql.NullInt64{Int64: subject.ID, Valid: true},
		Type:          input.FirstMessageType,
		Visibility:    "all_participants",
		Body:          body,
		BodyPlainText: plainText,
		CreatedAt:     now,
	})
	if err != nil {
		return CreateConvoResult{}, err
	}

	if err := s.markSeen(ctx, convo.ID, entry.ID, reg.authorRow, now); err != nil {
		return CreateConvoResult{}, err
	}
	if err := s.recordAttachments(ctx, org.ID, convo.ID, entry.ID, reg.authorRow.ID, input.Attachments, inline); err != nil {
		return CreateConvoResult{}, err
	}

	if shouldDispatch(reg.hasContacts, sendAs != nil, input.FirstMessageType) {
		if err := s.dispatchEntry(ctx, org.ID, convo, entry, sendAs.PublicID, reg.addressedPublicID); err != nil {
			return CreateConvoResult{}, err
		}
	}

	s.indexEntry(org, convo, entry, input.Topic)
	channels := append(spaceChannels, realtime.OrgChannel(org.PublicID))
	s.emitOnChannels(ctx, channels, realtime.EventConvoNew, map[string]string{"publicId": convo.PublicID})

	return CreateConvoResult{ConvoPublicID: convo.PublicID, EntryPublicID: entry.PublicID}, nil
}

func validateCreateInput(input CreateConvoInput) error {
	if input.Topic == "" {
		return validationError("Topic is required")
	}
	if input.FirstMessageType != "message" && input.FirstMessageType != "comment" {
		return validationError("First message type must be message or comment")
	}
	if len(input.SpacePublicIDs) == 0 {
		return validationError("At least one space is required")
	}
	if len(input.MemberPublicIDs)+len(input.TeamPublicIDs)+len(input.ContactPublicIDs)+len(input.EmailParticipants) == 0 {
		return validationError("At least one participant is required")
	}
	if len(input.EmailParticipants) > 0 && input.SendAsIdentityPublicID == "" {
		return validationError("A send as identity is required to message external participants")
	}
	if len(input.Body) == 0 {
		return validationError("Message body is required")
	}
	return nil
}

// resolveTargetSpaces loads the requested spaces and verifies the author may
// create conversations in each of them.
func (s *Service) resolveTargetSpaces(ctx context.Context, orgID int64, actor store.OrgMember, publicIDs []string) ([]store.Space, error) {
	resolved := make([]store.Space, 0, len(publicIDs))
	for _, publicID := range publicIDs {
		space, err := s.store.GetSpaceByPublicID(ctx, orgID, publicID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("Space not found")
		}
		if err != nil {
			return nil, fmt.Errorf("lookup space %s: %w", publicID, err)
		}
		membership, ok, err := spaces.Resolve(ctx, s.store, space, actor.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, forbiddenError("You are not a member of this space")
		}
		if !membership.Permissions.CanCreate {
			return nil, forbiddenError("You are not allowed to create conversations in this space")
		}
		resolved = append(resolved, space)
	}
	return resolved, nil
}

// collectFilingSpaces widens the target spaces so every internal participant
// can see the conversation: members without access get it filed into their
// personal space, teams without access into their default space.
func (s *Service) collectFilingSpaces(ctx context.Context, targets []store.Space, members []store.OrgMember, teams []store.Team) ([]store.Space, error) {
	filing := make([]store.Space, 0, len(targets))
	seen := make(map[int64]struct{}, len(targets))
	for _, space := range targets {
		if _, dup := seen[space.ID]; dup {
			continue
		}
		seen[space.ID] = struct{}{}
		filing = append(filing, space)
	}

	addByID := func(spaceID int64) error {
		if _, dup := seen[spaceID]; dup {
			return nil
		}
		space, err := s.store.GetSpaceByID(ctx, spaceID)
		if err != nil {
			return fmt.Errorf("lookup filing space %d: %w", spaceID, err)
		}
		seen[space.ID] = struct{}{}
		filing = append(filing, space)
		return nil
	}

	for _, member := range members {
		hasAccess := false
		for _, space := range targets {
			_, ok, err := spaces.Resolve(ctx, s.store, space, member.ID)
			if err != nil {
				return nil, err
			}
			if ok {
				hasAccess = true
				break
			}
		}
		if !hasAccess && member.PersonalSpaceID.Valid {
			if err := addByID(member.PersonalSpaceID.Int64); err != nil {
				return nil, err
			}
		}
	}

	for _, team := range teams {
		hasAccess := false
		for _, space := range targets {
			if space.Type == "open" {
				hasAccess = true
				break
			}
			ok, err := s.store.TeamHasSpaceMembership(ctx, space.ID, team.ID)
			if err != nil {
				return nil, err
			}
			if ok {
				hasAccess = true
				break
			}
		}
		if !hasAccess && team.DefaultSpaceID.Valid {
			if err := addByID(team.DefaultSpaceID.Int64); err != nil {
				return nil, err
			}
		}
	}

	return filing, nil
}

func containsContact(contacts []store.Contact, id int64) bool {
	for _, c := range contacts {
		if c.ID == id {
			return true
		}
	}
	return false
}
