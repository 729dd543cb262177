package convo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"parley/core/internal/idgen"
	"parley/core/internal/store"
)

// resolveMembers maps member public ids to rows. A request naming any unknown
// member is rejected as a whole.
func (s *Service) resolveMembers(ctx context.Context, orgID int64, publicIDs []string) ([]store.OrgMember, error) {
	if len(publicIDs) == 0 {
		return nil, nil
	}
	members, err := s.store.GetOrgMembersByPublicIDs(ctx, orgID, publicIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve members: %w", err)
	}
	if len(members) != len(publicIDs) {
		return nil, validationError("One or more members are invalid")
	}
	return members, nil
}

func (s *Service) resolveTeams(ctx context.Context, orgID int64, publicIDs []string) ([]store.Team, error) {
	if len(publicIDs) == 0 {
		return nil, nil
	}
	teams, err := s.store.GetTeamsByPublicIDs(ctx, orgID, publicIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve teams: %w", err)
	}
	if len(teams) != len(publicIDs) {
		return nil, validationError("One or more teams are invalid")
	}
	return teams, nil
}

func (s *Service) resolveContacts(ctx context.Context, orgID int64, publicIDs []string) ([]store.Contact, error) {
	if len(publicIDs) == 0 {
		return nil, nil
	}
	contacts, err := s.store.GetContactsByPublicIDs(ctx, orgID, publicIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve contacts: %w", err)
	}
	if len(contacts) != len(publicIDs) {
		return nil, validationError("One or more contacts are invalid")
	}
	return contacts, nil
}

func splitEmailAddress(address string) (username, domain string, err error) {
	address = strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return "", "", validationError(fmt.Sprintf("Invalid email address %q", address))
	}
	return address[:at], address[at+1:], nil
}

// ensureContactForEmail resolves a raw address to the org's contact for it,
// creating the contact and its global reputation on first sight. New contacts
// start pre-approved since the org itself chose to write to them.
func (s *Service) ensureContactForEmail(ctx context.Context, orgID int64, address string) (store.Contact, error) {
	username, domain, err := splitEmailAddress(address)
	if err != nil {
		return store.Contact{}, err
	}

	contact, err := s.store.FindContactByEmail(ctx, orgID, username, domain)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Contact{}, fmt.Errorf("find contact %s@%s: %w", username, domain, err)
	}

	normalized := username + "@" + domain
	reputation, err := s.store.FindReputationByEmail(ctx, normalized)
	if errors.Is(err, sql.ErrNoRows) {
		reputation, err = s.store.EnsureReputation(ctx, normalized)
	}
	if err != nil {
		return store.Contact{}, fmt.Errorf("resolve reputation %s: %w", normalized, err)
	}

	return s.store.EnsureContact(ctx, store.Contact{
		PublicID:       s.newID(idgen.KindContact),
		OrgID:          orgID,
		ReputationID:   sql.NullInt64{Int64: reputation.ID, Valid: true},
		Name:           normalized,
		EmailUsername:  username,
		EmailDomain:    domain,
		Type:           "person",
		ScreenerStatus: "approve",
	})
}

func contactEmail(c store.Contact) string {
	return c.EmailUsername + "@" + c.EmailDomain
}
