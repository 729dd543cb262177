package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parley/core/internal/idgen"
	"parley/core/internal/prose"
	"parley/core/internal/search"
	"parley/core/internal/store"
)

// AttachmentInput references a pre-uploaded file the entry should carry.
type AttachmentInput struct {
	PublicID string `json:"publicId"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
}

// processBody rewrites inline proxy images to their stable attachment URLs
// and derives the plain text projection. Inline references found in the body
// come back so they can be recorded as attachments of the entry.
func (s *Service) processBody(raw json.RawMessage) (json.RawMessage, string, []prose.InlineProxy, error) {
	doc, err := prose.Parse(raw)
	if err != nil {
		return nil, "", nil, validationError("Message body is not a valid document")
	}

	var inline []prose.InlineProxy
	prose.WalkImages(doc, func(src string) string {
		proxy, ok := prose.ParseInlineProxyURL(src)
		if !ok {
			return src
		}
		inline = append(inline, proxy)
		if s.blobs == nil {
			return src
		}
		return s.blobs.AttachmentURL(proxy.OrgShortcode, proxy.AttachmentPublicID, proxy.FileName)
	})

	body, err := prose.Marshal(doc)
	if err != nil {
		return nil, "", nil, internalError("Failed to process message body")
	}
	return body, prose.PlainText(doc), inline, nil
}

// recordAttachments persists the entry's attachments: the explicitly attached
// uploads plus any inline images embedded in the body. Every row is attributed
// to the participant who authored the entry. Matching pending upload markers
// are consumed.
func (s *Service) recordAttachments(ctx context.Context, orgID int64, convoID int64, entryID int64, participantID int64, hard []AttachmentInput, inline []prose.InlineProxy) error {
	entryRef := sql.NullInt64{Int64: entryID, Valid: true}

	for _, att := range hard {
		if err := idgen.Validate(idgen.KindConvoAttachment, att.PublicID); err != nil {
			return validationError("One or more attachments are invalid")
		}
		if err := s.consumePending(ctx, orgID, att.PublicID); err != nil {
			return err
		}
		if _, err := s.store.InsertAttachment(ctx, store.ConvoAttachment{
			PublicID:      att.PublicID,
			OrgID:         orgID,
			ConvoID:       convoID,
			ConvoEntryID:  entryRef,
			ParticipantID: participantID,
			FileName:      att.FileName,
			FileType:      att.FileType,
			Size:          att.Size,
		}); err != nil {
			return err
		}
	}

	for _, proxy := range inline {
		if err := s.consumePending(ctx, orgID, proxy.AttachmentPublicID); err != nil {
			return err
		}
		if _, err := s.store.InsertAttachment(ctx, store.ConvoAttachment{
			PublicID:      proxy.AttachmentPublicID,
			OrgID:         orgID,
			ConvoID:       convoID,
			ConvoEntryID:  entryRef,
			ParticipantID: participantID,
			FileName:      proxy.FileName,
			FileType:      proxy.FileType,
			Size:          proxy.Size,
			Inline:        true,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) consumePending(ctx context.Context, orgID int64, attachmentPublicID string) error {
	_, err := s.store.GetPendingAttachment(ctx, orgID, attachmentPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		// Already promoted, e.g. the same upload referenced twice.
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup pending attachment %s: %w", attachmentPublicID, err)
	}
	return s.store.PromotePendingAttachment(ctx, orgID, attachmentPublicID)
}

// markSeen records that the author has seen the conversation and the entry
// they just wrote.
func (s *Service) markSeen(ctx context.Context, convoID, entryID int64, participant store.ConvoParticipant, at time.Time) error {
	if !participant.OrgMemberID.Valid {
		return nil
	}
	if err := s.store.UpsertConvoSeen(ctx, convoID, participant.ID, participant.OrgMemberID.Int64, at); err != nil {
		return err
	}
	return s.store.UpsertEntrySeen(ctx, entryID, participant.ID, participant.OrgMemberID.Int64, at)
}

func (s *Service) indexEntry(org store.Org, convo store.Convo, entry store.ConvoEntry, subject string) {
	if s.index == nil {
		return
	}
	s.index.IndexEntry(search.EntryRecord{
		ID:            entry.PublicID,
		ConvoPublicID: convo.PublicID,
		OrgPublicID:   org.PublicID,
		Subject:       subject,
		BodyPlainText: entry.BodyPlainText,
		Type:          entry.Type,
		CreatedAt:     entry.CreatedAt.Unix(),
	})
}
