package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func (s *PostgresStore) InsertAttachment(ctx context.Context, a ConvoAttachment) (ConvoAttachment, error) {
	var inserted ConvoAttachment
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO convo_attachments
			(public_id, org_id, convo_id, convo_entry_id, convo_participant_id, file_name, file_type, size, inline, public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, public_id, org_id, convo_id, convo_entry_id, convo_participant_id, file_name, file_type, size, inline, public
	`, a.PublicID, a.OrgID, a.ConvoID, a.ConvoEntryID, a.ParticipantID, a.FileName, a.FileType, a.Size, a.Inline, a.Public,
	).Scan(&inserted.ID, &inserted.PublicID, &inserted.OrgID, &inserted.ConvoID, &inserted.ConvoEntryID,
		&inserted.ParticipantID, &inserted.FileName, &inserted.FileType, &inserted.Size, &inserted.Inline, &inserted.Public)
	if err != nil {
		return ConvoAttachment{}, fmt.Errorf("insert attachment: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetPendingAttachment(ctx context.Context, orgID int64, publicID string) (PendingAttachment, error) {
	var pa PendingAttachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, org_id, org_public_id, file_name
		FROM pending_attachments WHERE org_id = $1 AND public_id = $2
	`, orgID, publicID).Scan(&pa.ID, &pa.PublicID, &pa.OrgID, &pa.OrgPublicID, &pa.FileName)
	if err != nil {
		return PendingAttachment{}, err
	}
	return pa, nil
}

// PromotePendingAttachment removes the pending marker once an upload has been
// bound to an entry. Missing markers are ignored since two entries may race
// to claim the same upload.
func (s *PostgresStore) PromotePendingAttachment(ctx context.Context, orgID int64, publicID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_attachments WHERE org_id = $1 AND public_id = $2`,
		orgID, publicID,
	); err != nil {
		return fmt.Errorf("promote pending attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachmentsForConvos(ctx context.Context, convoIDs []int64) ([]ConvoAttachment, error) {
	if len(convoIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(convoIDs))
	args := make([]any, len(convoIDs))
	for i, id := range convoIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_id, org_id, convo_id, convo_entry_id, convo_participant_id, file_name, file_type, size, inline, public
		FROM convo_attachments WHERE convo_id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list convo attachments: %w", err)
	}
	defer rows.Close()

	var attachments []ConvoAttachment
	for rows.Next() {
		var a ConvoAttachment
		if err := rows.Scan(&a.ID, &a.PublicID, &a.OrgID, &a.ConvoID, &a.ConvoEntryID,
			&a.ParticipantID, &a.FileName, &a.FileType, &a.Size, &a.Inline, &a.Public); err != nil {
			return nil, fmt.Errorf("scan convo attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (s *PostgresStore) GetConvoAttachments(ctx context.Context, convoID int64) ([]ConvoAttachment, error) {
	attachments, err := s.GetAttachmentsForConvos(ctx, []int64{convoID})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return attachments, nil
}
