package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres and verifies the connection before returning.
// A request fans out into several short queries (participants, subjects,
// attachments), so the pool holds idle connections rather than reopening
// per query.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(25)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetOrgByShortcode(ctx context.Context, shortcode string) (Org, error) {
	var org Org
	err := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, shortcode, name FROM orgs WHERE shortcode = $1`, shortcode,
	).Scan(&org.ID, &org.PublicID, &org.Shortcode, &org.Name)
	if err != nil {
		return Org{}, err
	}
	return org, nil
}

func (s *PostgresStore) GetOrgByID(ctx context.Context, orgID int64) (Org, error) {
	var org Org
	err := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, shortcode, name FROM orgs WHERE id = $1`, orgID,
	).Scan(&org.ID, &org.PublicID, &org.Shortcode, &org.Name)
	if err != nil {
		return Org{}, err
	}
	return org, nil
}

func (s *PostgresStore) GetOrgMemberByPublicID(ctx context.Context, orgID int64, publicID string) (OrgMember, error) {
	var m OrgMember
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, org_id, display_name, personal_space_id
		FROM org_members WHERE org_id = $1 AND public_id = $2
	`, orgID, publicID).Scan(&m.ID, &m.PublicID, &m.OrgID, &m.DisplayName, &m.PersonalSpaceID)
	if err != nil {
		return OrgMember{}, err
	}
	return m, nil
}

// GetOrgMembersByPublicIDs resolves each public id within the org, silently
// skipping ids that match nothing. Callers detect invalid input by comparing
// result and request lengths.
func (s *PostgresStore) GetOrgMembersByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]OrgMember, error) {
	members := make([]OrgMember, 0, len(publicIDs))
	for _, publicID := range publicIDs {
		member, err := s.GetOrgMemberByPublicID(ctx, orgID, publicID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup org member %s: %w", publicID, err)
		}
		members = append(members, member)
	}
	return members, nil
}

func (s *PostgresStore) GetTeamByPublicID(ctx context.Context, orgID int64, publicID string) (Team, error) {
	var t Team
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, org_id, name, default_space_id, default_email_identity_id
		FROM teams WHERE org_id = $1 AND public_id = $2
	`, orgID, publicID).Scan(&t.ID, &t.PublicID, &t.OrgID, &t.Name, &t.DefaultSpaceID, &t.DefaultEmailIdentityID)
	if err != nil {
		return Team{}, err
	}
	return t, nil
}

func (s *PostgresStore) GetTeamsByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]Team, error) {
	teams := make([]Team, 0, len(publicIDs))
	for _, publicID := range publicIDs {
		team, err := s.GetTeamByPublicID(ctx, orgID, publicID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup team %s: %w", publicID, err)
		}
		teams = append(teams, team)
	}
	return teams, nil
}

func (s *PostgresStore) GetTeamMembers(ctx context.Context, teamID int64) ([]OrgMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.public_id, m.org_id, m.display_name, m.personal_space_id
		FROM team_members tm
		JOIN org_members m ON m.id = tm.org_member_id
		WHERE tm.team_id = $1
		ORDER BY m.id
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	var members []OrgMember
	for rows.Next() {
		var m OrgMember
		if err := rows.Scan(&m.ID, &m.PublicID, &m.OrgID, &m.DisplayName, &m.PersonalSpaceID); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) IsTeamMember(ctx context.Context, teamID, orgMemberID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id = $1 AND org_member_id = $2)`,
		teamID, orgMemberID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check team membership: %w", err)
	}
	return exists, nil
}
