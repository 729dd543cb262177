package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const participantColumns = `id, public_id, org_id, convo_id, org_member_id, team_id, contact_id,
	email_identity_id, role, notifications, active, hidden, last_read_at`

func scanParticipant(row *sql.Row) (ConvoParticipant, error) {
	var p ConvoParticipant
	err := row.Scan(&p.ID, &p.PublicID, &p.OrgID, &p.ConvoID, &p.OrgMemberID, &p.TeamID,
		&p.ContactID, &p.EmailIdentityID, &p.Role, &p.Notifications, &p.Active, &p.Hidden, &p.LastReadAt)
	return p, err
}

func (s *PostgresStore) InsertParticipant(ctx context.Context, p ConvoParticipant) (ConvoParticipant, error) {
	inserted, err := scanParticipant(s.db.QueryRowContext(ctx, `
		INSERT INTO convo_participants
			(public_id, org_id, convo_id, org_member_id, team_id, contact_id,
			 email_identity_id, role, notifications, active, hidden)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+participantColumns,
		p.PublicID, p.OrgID, p.ConvoID, p.OrgMemberID, p.TeamID, p.ContactID,
		p.EmailIdentityID, p.Role, p.Notifications, p.Active, p.Hidden))
	if err != nil {
		return ConvoParticipant{}, fmt.Errorf("insert participant: %w", err)
	}
	return inserted, nil
}

// InsertMemberParticipant inserts a participant row for an org member. If the
// member already participates in the conversation the existing row is
// returned unchanged and created is false.
func (s *PostgresStore) InsertMemberParticipant(ctx context.Context, p ConvoParticipant) (ConvoParticipant, bool, error) {
	inserted, err := scanParticipant(s.db.QueryRowContext(ctx, `
		INSERT INTO convo_participants
			(public_id, org_id, convo_id, org_member_id, email_identity_id,
			 role, notifications, active, hidden)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (convo_id, org_member_id) WHERE org_member_id IS NOT NULL DO NOTHING
		RETURNING `+participantColumns,
		p.PublicID, p.OrgID, p.ConvoID, p.OrgMemberID, p.EmailIdentityID,
		p.Role, p.Notifications, p.Active, p.Hidden))
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ConvoParticipant{}, false, fmt.Errorf("insert member participant: %w", err)
	}
	existing, err := s.FindParticipantByMember(ctx, p.ConvoID, p.OrgMemberID.Int64)
	if err != nil {
		return ConvoParticipant{}, false, fmt.Errorf("lookup existing member participant: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) FindParticipantByMember(ctx context.Context, convoID, orgMemberID int64) (ConvoParticipant, error) {
	return scanParticipant(s.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM convo_participants
		WHERE convo_id = $1 AND org_member_id = $2
	`, convoID, orgMemberID))
}

// FindParticipantForMember locates the participant row a member acts through,
// preferring their direct row over one derived from a team they belong to.
func (s *PostgresStore) FindParticipantForMember(ctx context.Context, convoID, orgMemberID int64) (ConvoParticipant, error) {
	return scanParticipant(s.db.QueryRowContext(ctx, `
		SELECT p.id, p.public_id, p.org_id, p.convo_id, p.org_member_id, p.team_id, p.contact_id,
		       p.email_identity_id, p.role, p.notifications, p.active, p.hidden, p.last_read_at
		FROM convo_participants p
		LEFT JOIN team_members tm ON tm.team_id = p.team_id
		WHERE p.convo_id = $1 AND (p.org_member_id = $2 OR tm.org_member_id = $2)
		ORDER BY p.org_member_id NULLS LAST
		LIMIT 1
	`, convoID, orgMemberID))
}

func (s *PostgresStore) InsertParticipantTeamMember(ctx context.Context, convoParticipantID, teamParticipantID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO convo_participant_team_members (convo_participant_id, team_participant_id)
		VALUES ($1, $2)
		ON CONFLICT (convo_participant_id, team_participant_id) DO NOTHING
	`, convoParticipantID, teamParticipantID); err != nil {
		return fmt.Errorf("insert participant team member: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConvoParticipants(ctx context.Context, convoID int64) ([]ConvoParticipantDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.public_id, p.org_id, p.convo_id, p.org_member_id, p.team_id, p.contact_id,
		       p.email_identity_id, p.role, p.notifications, p.active, p.hidden, p.last_read_at,
		       m.public_id, m.display_name,
		       t.public_id, t.name,
		       c.public_id, c.name, c.email_username, c.email_domain
		FROM convo_participants p
		LEFT JOIN org_members m ON m.id = p.org_member_id
		LEFT JOIN teams t ON t.id = p.team_id
		LEFT JOIN contacts c ON c.id = p.contact_id
		WHERE p.convo_id = $1
		ORDER BY p.id
	`, convoID)
	if err != nil {
		return nil, fmt.Errorf("list convo participants: %w", err)
	}
	defer rows.Close()

	var details []ConvoParticipantDetail
	for rows.Next() {
		var d ConvoParticipantDetail
		if err := rows.Scan(&d.ID, &d.PublicID, &d.OrgID, &d.ConvoID, &d.OrgMemberID, &d.TeamID,
			&d.ContactID, &d.EmailIdentityID, &d.Role, &d.Notifications, &d.Active, &d.Hidden, &d.LastReadAt,
			&d.OrgMemberPublicID, &d.OrgMemberName,
			&d.TeamPublicID, &d.TeamName,
			&d.ContactPublicID, &d.ContactName, &d.ContactUsername, &d.ContactDomain); err != nil {
			return nil, fmt.Errorf("scan convo participant: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func (s *PostgresStore) UpdateParticipantEmailIdentity(ctx context.Context, participantID, emailIdentityID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE convo_participants SET email_identity_id = $2 WHERE id = $1`,
		participantID, emailIdentityID,
	); err != nil {
		return fmt.Errorf("update participant identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchParticipantLastRead(ctx context.Context, participantID int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE convo_participants SET last_read_at = $2 WHERE id = $1`,
		participantID, at,
	); err != nil {
		return fmt.Errorf("touch participant last read: %w", err)
	}
	return nil
}
