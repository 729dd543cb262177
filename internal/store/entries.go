package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const entryColumns = `id, public_id, org_id, convo_id, author_id, subject_id, reply_to_id,
	type, visibility, body, body_plain_text, metadata, created_at`

func scanEntry(row *sql.Row) (ConvoEntry, error) {
	var e ConvoEntry
	err := row.Scan(&e.ID, &e.PublicID, &e.OrgID, &e.ConvoID, &e.AuthorID, &e.SubjectID,
		&e.ReplyToID, &e.Type, &e.Visibility, &e.Body, &e.BodyPlainText, &e.Metadata, &e.CreatedAt)
	return e, err
}

func (s *PostgresStore) InsertEntry(ctx context.Context, e ConvoEntry) (ConvoEntry, error) {
	inserted, err := scanEntry(s.db.QueryRowContext(ctx, `
		INSERT INTO convo_entries
			(public_id, org_id, convo_id, author_id, subject_id, reply_to_id,
			 type, visibility, body, body_plain_text, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+entryColumns,
		e.PublicID, e.OrgID, e.ConvoID, e.AuthorID, e.SubjectID, e.ReplyToID,
		e.Type, e.Visibility, []byte(e.Body), e.BodyPlainText, nullableJSON(e.Metadata), e.CreatedAt))
	if err != nil {
		return ConvoEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	return inserted, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (s *PostgresStore) GetEntryByPublicID(ctx context.Context, orgID int64, publicID string) (ConvoEntry, error) {
	return scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM convo_entries WHERE org_id = $1 AND public_id = $2`,
		orgID, publicID))
}

func (s *PostgresStore) GetConvoEntries(ctx context.Context, convoID int64) ([]ConvoEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM convo_entries WHERE convo_id = $1
		ORDER BY created_at, id
	`, convoID)
	if err != nil {
		return nil, fmt.Errorf("list convo entries: %w", err)
	}
	defer rows.Close()

	var entries []ConvoEntry
	for rows.Next() {
		var e ConvoEntry
		if err := rows.Scan(&e.ID, &e.PublicID, &e.OrgID, &e.ConvoID, &e.AuthorID, &e.SubjectID,
			&e.ReplyToID, &e.Type, &e.Visibility, &e.Body, &e.BodyPlainText, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan convo entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetLatestEntry(ctx context.Context, convoID int64) (EntryPreview, error) {
	var p EntryPreview
	err := s.db.QueryRowContext(ctx, `
		SELECT public_id, type, visibility, body_plain_text, created_at
		FROM convo_entries WHERE convo_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, convoID).Scan(&p.PublicID, &p.Type, &p.Visibility, &p.BodyPlainText, &p.CreatedAt)
	if err != nil {
		return EntryPreview{}, err
	}
	return p, nil
}

func (s *PostgresStore) InsertEntryReply(ctx context.Context, entrySourceID, entryReplyID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO convo_entry_replies (entry_source_id, entry_reply_id)
		VALUES ($1, $2)
	`, entrySourceID, entryReplyID); err != nil {
		return fmt.Errorf("insert entry reply: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertConvoSeen(ctx context.Context, convoID, participantID, orgMemberID int64, seenAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO convo_seen_timestamps (convo_id, participant_id, org_member_id, seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (convo_id, participant_id, org_member_id) DO UPDATE SET seen_at = EXCLUDED.seen_at
	`, convoID, participantID, orgMemberID, seenAt); err != nil {
		return fmt.Errorf("upsert convo seen: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertEntrySeen(ctx context.Context, entryID, participantID, orgMemberID int64, seenAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO convo_entry_seen_timestamps (convo_entry_id, participant_id, org_member_id, seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (convo_entry_id, participant_id, org_member_id) DO UPDATE SET seen_at = EXCLUDED.seen_at
	`, entryID, participantID, orgMemberID, seenAt); err != nil {
		return fmt.Errorf("upsert entry seen: %w", err)
	}
	return nil
}
