package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const contactColumns = `id, public_id, org_id, reputation_id, name, email_username, email_domain, type, screener_status`

func scanContact(row *sql.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.PublicID, &c.OrgID, &c.ReputationID, &c.Name,
		&c.EmailUsername, &c.EmailDomain, &c.Type, &c.ScreenerStatus)
	return c, err
}

func (s *PostgresStore) GetContactByPublicID(ctx context.Context, orgID int64, publicID string) (Contact, error) {
	return scanContact(s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE org_id = $1 AND public_id = $2`,
		orgID, publicID))
}

func (s *PostgresStore) GetContactsByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]Contact, error) {
	contacts := make([]Contact, 0, len(publicIDs))
	for _, publicID := range publicIDs {
		contact, err := s.GetContactByPublicID(ctx, orgID, publicID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup contact %s: %w", publicID, err)
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

func (s *PostgresStore) FindContactByEmail(ctx context.Context, orgID int64, username, domain string) (Contact, error) {
	return scanContact(s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE org_id = $1 AND email_username = $2 AND email_domain = $3`,
		orgID, username, domain))
}

func (s *PostgresStore) FindReputationByEmail(ctx context.Context, emailAddress string) (ContactReputation, error) {
	var rep ContactReputation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email_address FROM contact_reputations WHERE email_address = $1`,
		emailAddress,
	).Scan(&rep.ID, &rep.EmailAddress)
	if err != nil {
		return ContactReputation{}, err
	}
	return rep, nil
}

// EnsureReputation creates the global reputation row for an address if it is
// missing. Concurrent creators converge on the same row.
func (s *PostgresStore) EnsureReputation(ctx context.Context, emailAddress string) (ContactReputation, error) {
	var rep ContactReputation
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO contact_reputations (email_address)
		VALUES ($1)
		ON CONFLICT (email_address) DO UPDATE SET last_updated = now()
		RETURNING id, email_address
	`, emailAddress).Scan(&rep.ID, &rep.EmailAddress)
	if err != nil {
		return ContactReputation{}, fmt.Errorf("ensure reputation: %w", err)
	}
	return rep, nil
}

// EnsureContact creates an org contact for the address, or returns the
// existing one when another writer beat us to it. The candidate's name, type
// and screener status only apply on first creation.
func (s *PostgresStore) EnsureContact(ctx context.Context, candidate Contact) (Contact, error) {
	contact, err := scanContact(s.db.QueryRowContext(ctx, `
		INSERT INTO contacts (public_id, org_id, reputation_id, name, email_username, email_domain, type, screener_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (org_id, email_username, email_domain)
			DO UPDATE SET email_username = EXCLUDED.email_username
		RETURNING `+contactColumns,
		candidate.PublicID, candidate.OrgID, candidate.ReputationID, candidate.Name,
		candidate.EmailUsername, candidate.EmailDomain, candidate.Type, candidate.ScreenerStatus))
	if err != nil {
		return Contact{}, fmt.Errorf("ensure contact: %w", err)
	}
	return contact, nil
}
