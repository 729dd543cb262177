package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *PostgresStore) InsertConvo(ctx context.Context, orgID int64, publicID string, now time.Time) (Convo, error) {
	var c Convo
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO convos (public_id, org_id, last_updated_at, created_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id, public_id, org_id, last_updated_at, created_at
	`, publicID, orgID, now).Scan(&c.ID, &c.PublicID, &c.OrgID, &c.LastUpdatedAt, &c.CreatedAt)
	if err != nil {
		return Convo{}, fmt.Errorf("insert convo: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetConvoByPublicID(ctx context.Context, orgID int64, publicID string) (Convo, error) {
	var c Convo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, org_id, last_updated_at, created_at
		FROM convos WHERE org_id = $1 AND public_id = $2
	`, orgID, publicID).Scan(&c.ID, &c.PublicID, &c.OrgID, &c.LastUpdatedAt, &c.CreatedAt)
	if err != nil {
		return Convo{}, err
	}
	return c, nil
}

func (s *PostgresStore) GetConvoByID(ctx context.Context, convoID int64) (Convo, error) {
	var c Convo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, org_id, last_updated_at, created_at
		FROM convos WHERE id = $1
	`, convoID).Scan(&c.ID, &c.PublicID, &c.OrgID, &c.LastUpdatedAt, &c.CreatedAt)
	if err != nil {
		return Convo{}, err
	}
	return c, nil
}

func (s *PostgresStore) GetConvosByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]Convo, error) {
	convos := make([]Convo, 0, len(publicIDs))
	for _, publicID := range publicIDs {
		convo, err := s.GetConvoByPublicID(ctx, orgID, publicID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup convo %s: %w", publicID, err)
		}
		convos = append(convos, convo)
	}
	return convos, nil
}

func (s *PostgresStore) UpdateConvoLastUpdated(ctx context.Context, convoID int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE convos SET last_updated_at = $2 WHERE id = $1`, convoID, at,
	); err != nil {
		return fmt.Errorf("touch convo: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertConvoSubject(ctx context.Context, publicID string, convoID int64, subject string) (ConvoSubject, error) {
	var cs ConvoSubject
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO convo_subjects (public_id, convo_id, subject)
		VALUES ($1, $2, $3)
		RETURNING id, public_id, convo_id, subject
	`, publicID, convoID, subject).Scan(&cs.ID, &cs.PublicID, &cs.ConvoID, &cs.Subject)
	if err != nil {
		return ConvoSubject{}, fmt.Errorf("insert convo subject: %w", err)
	}
	return cs, nil
}

func (s *PostgresStore) GetConvoSubjects(ctx context.Context, convoID int64) ([]ConvoSubject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_id, convo_id, subject
		FROM convo_subjects WHERE convo_id = $1
		ORDER BY id
	`, convoID)
	if err != nil {
		return nil, fmt.Errorf("list convo subjects: %w", err)
	}
	defer rows.Close()

	var subjects []ConvoSubject
	for rows.Next() {
		var cs ConvoSubject
		if err := rows.Scan(&cs.ID, &cs.PublicID, &cs.ConvoID, &cs.Subject); err != nil {
			return nil, fmt.Errorf("scan convo subject: %w", err)
		}
		subjects = append(subjects, cs)
	}
	return subjects, rows.Err()
}

// AddConvoToSpace files the conversation into a space. Filing twice into the
// same space is a no-op that returns the existing link row.
func (s *PostgresStore) AddConvoToSpace(ctx context.Context, publicID string, convoID, spaceID int64) (ConvoToSpace, error) {
	var cts ConvoToSpace
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO convo_to_spaces (public_id, convo_id, space_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (convo_id, space_id) DO UPDATE SET convo_id = EXCLUDED.convo_id
		RETURNING id, public_id, convo_id, space_id
	`, publicID, convoID, spaceID).Scan(&cts.ID, &cts.PublicID, &cts.ConvoID, &cts.SpaceID)
	if err != nil {
		return ConvoToSpace{}, fmt.Errorf("add convo to space: %w", err)
	}
	return cts, nil
}

func (s *PostgresStore) GetConvoToSpace(ctx context.Context, convoID, spaceID int64) (ConvoToSpace, error) {
	var cts ConvoToSpace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, convo_id, space_id
		FROM convo_to_spaces WHERE convo_id = $1 AND space_id = $2
	`, convoID, spaceID).Scan(&cts.ID, &cts.PublicID, &cts.ConvoID, &cts.SpaceID)
	if err != nil {
		return ConvoToSpace{}, err
	}
	return cts, nil
}

func (s *PostgresStore) GetConvoSpaces(ctx context.Context, convoID int64) ([]ConvoSpaceRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.public_id, sp.type, cts.id
		FROM convo_to_spaces cts
		JOIN spaces sp ON sp.id = cts.space_id
		WHERE cts.convo_id = $1
		ORDER BY cts.id
	`, convoID)
	if err != nil {
		return nil, fmt.Errorf("list convo spaces: %w", err)
	}
	defer rows.Close()

	var refs []ConvoSpaceRef
	for rows.Next() {
		var ref ConvoSpaceRef
		if err := rows.Scan(&ref.SpaceID, &ref.SpacePublicID, &ref.SpaceType, &ref.ConvoToSpace); err != nil {
			return nil, fmt.Errorf("scan convo space: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// RemoveConvoFromSpaces unfiles the conversation from every space it is
// currently in. Workflow history rows tied to the links cascade away.
func (s *PostgresStore) RemoveConvoFromSpaces(ctx context.Context, convoID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM convo_to_spaces WHERE convo_id = $1`, convoID,
	); err != nil {
		return fmt.Errorf("remove convo from spaces: %w", err)
	}
	return nil
}
