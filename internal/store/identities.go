package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetEmailIdentityByPublicID(ctx context.Context, orgID int64, publicID string) (EmailIdentity, error) {
	var ei EmailIdentity
	err := s.db.QueryRowContext(ctx, `
		SELECT ei.id, ei.public_id, ei.org_id, ei.username, ei.domain_name, ei.display_name,
		       ei.sending_enabled, ei.is_catch_all, d.domain_status, d.sending_mode
		FROM email_identities ei
		LEFT JOIN domains d ON d.id = ei.domain_id
		WHERE ei.org_id = $1 AND ei.public_id = $2
	`, orgID, publicID).Scan(&ei.ID, &ei.PublicID, &ei.OrgID, &ei.Username, &ei.DomainName,
		&ei.DisplayName, &ei.SendingEnabled, &ei.IsCatchAll, &ei.DomainStatus, &ei.DomainSendingMode)
	if err != nil {
		return EmailIdentity{}, err
	}
	return ei, nil
}

func (s *PostgresStore) GetAuthorizedSenders(ctx context.Context, identityID int64) ([]AuthorizedSender, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_member_id, team_id, space_id
		FROM email_identity_authorized_senders
		WHERE identity_id = $1
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list authorized senders: %w", err)
	}
	defer rows.Close()

	var senders []AuthorizedSender
	for rows.Next() {
		var as AuthorizedSender
		if err := rows.Scan(&as.OrgMemberID, &as.TeamID, &as.SpaceID); err != nil {
			return nil, fmt.Errorf("scan authorized sender: %w", err)
		}
		senders = append(senders, as)
	}
	return senders, rows.Err()
}
