package store

import (
	"context"
	"fmt"
	"strings"
)

// DeleteConvos removes the given conversations and every dependent row in a
// single transaction. Either all conversations disappear or none do.
func (s *PostgresStore) DeleteConvos(ctx context.Context, convoIDs []int64) error {
	if len(convoIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(convoIDs))
	args := make([]any, len(convoIDs))
	for i, id := range convoIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	in := strings.Join(placeholders, ", ")
	entriesIn := `SELECT id FROM convo_entries WHERE convo_id IN (` + in + `)`
	participantsIn := `SELECT id FROM convo_participants WHERE convo_id IN (` + in + `)`

	statements := []string{
		`DELETE FROM convo_seen_timestamps WHERE convo_id IN (` + in + `)`,
		`DELETE FROM convo_entry_seen_timestamps WHERE convo_entry_id IN (` + entriesIn + `)`,
		`DELETE FROM convo_entry_replies WHERE entry_source_id IN (` + entriesIn + `) OR entry_reply_id IN (` + entriesIn + `)`,
		`DELETE FROM convo_entry_private_visibility_participants WHERE entry_id IN (` + entriesIn + `)`,
		`DELETE FROM convo_entry_raw_html_emails WHERE entry_id IN (` + entriesIn + `)`,
		`DELETE FROM convo_attachments WHERE convo_id IN (` + in + `)`,
		`DELETE FROM convo_entries WHERE convo_id IN (` + in + `)`,
		`DELETE FROM convo_participant_team_members WHERE convo_participant_id IN (` + participantsIn + `)`,
		`DELETE FROM convo_participants WHERE convo_id IN (` + in + `)`,
		`DELETE FROM convo_tags WHERE convo_id IN (` + in + `)`,
		`DELETE FROM convo_workflows WHERE convo_id IN (` + in + `)`,
		`DELETE FROM convo_to_spaces WHERE convo_id IN (` + in + `)`,
		`DELETE FROM convo_subjects WHERE convo_id IN (` + in + `)`,
		`DELETE FROM convos WHERE id IN (` + in + `)`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete convo rows: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}
