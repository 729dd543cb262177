package convo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parley/core/internal/realtime"
	"parley/core/internal/storage"
	"parley/core/internal/store"
)

// DeleteConvos removes one or more conversations. Authorization is checked
// for every conversation before anything is deleted; the row cascade then
// happens in one transaction. Blob purge, search cleanup and events follow
// best effort.
func (s *Service) DeleteConvos(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicIDs []string) error {
	if len(convoPublicIDs) == 0 {
		return validationError("At least one conversation is required")
	}
	convos, err := s.store.GetConvosByPublicIDs(ctx, org.ID, convoPublicIDs)
	if err != nil {
		return err
	}
	if len(convos) != len(convoPublicIDs) {
		return notFoundError("One or more conversations not found")
	}

	convoIDs := make([]int64, 0, len(convos))
	spaceConvos := make(map[string][]string)
	for _, convo := range convos {
		spaceRefs, err := s.store.GetConvoSpaces(ctx, convo.ID)
		if err != nil {
			return err
		}
		allowed, err := s.canDelete(ctx, convo.ID, spaceRefs, actor.ID)
		if err != nil {
			return err
		}
		if !allowed {
			return unauthorizedError("You are not allowed to delete one or more of these conversations")
		}
		convoIDs = append(convoIDs, convo.ID)
		for _, ref := range spaceRefs {
			spaceConvos[ref.SpacePublicID] = append(spaceConvos[ref.SpacePublicID], convo.PublicID)
		}
	}

	attachments, err := s.store.GetAttachmentsForConvos(ctx, convoIDs)
	if err != nil {
		return err
	}
	var entryPublicIDs []string
	for _, convo := range convos {
		entries, err := s.store.GetConvoEntries(ctx, convo.ID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			entryPublicIDs = append(entryPublicIDs, entry.PublicID)
		}
	}

	if err := s.store.DeleteConvos(ctx, convoIDs); err != nil {
		return internalError("Failed to delete conversations")
	}

	if s.blobs != nil && len(attachments) > 0 {
		keys := make([]string, 0, len(attachments))
		for _, att := range attachments {
			keys = append(keys, storage.AttachmentKey(org.PublicID, att.PublicID, att.FileName))
		}
		s.blobs.DeleteAttachments(ctx, keys)
	}
	if s.index != nil {
		s.index.DeleteEntries(entryPublicIDs)
	}
	for spacePublicID, publicIDs := range spaceConvos {
		s.emit(ctx, realtime.SpaceChannel(spacePublicID), realtime.EventConvoDeleted,
			map[string][]string{"publicIds": publicIDs})
	}
	return nil
}

// canDelete allows actors who participate in the conversation, directly or
// through a team, and otherwise actors covered by every space the
// conversation is filed in.
func (s *Service) canDelete(ctx context.Context, convoID int64, spaceRefs []store.ConvoSpaceRef, orgMemberID int64) (bool, error) {
	_, err := s.store.FindParticipantForMember(ctx, convoID, orgMemberID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("lookup participant: %w", err)
	}
	if len(spaceRefs) == 0 {
		return false, nil
	}
	for _, ref := range spaceRefs {
		if ref.SpaceType == "open" {
			continue
		}
		ok, err := s.store.HasSpaceMember(ctx, ref.SpaceID, orgMemberID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
