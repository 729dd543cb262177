package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) GetSpaceByPublicID(ctx context.Context, orgID int64, publicID string) (Space, error) {
	var sp Space
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, org_id, shortcode, name, type, personal_space
		FROM spaces WHERE org_id = $1 AND public_id = $2
	`, orgID, publicID).Scan(&sp.ID, &sp.PublicID, &sp.OrgID, &sp.Shortcode, &sp.Name, &sp.Type, &sp.PersonalSpace)
	if err != nil {
		return Space{}, err
	}
	return sp, nil
}

func (s *PostgresStore) GetSpaceByID(ctx context.Context, spaceID int64) (Space, error) {
	var sp Space
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, org_id, shortcode, name, type, personal_space
		FROM spaces WHERE id = $1
	`, spaceID).Scan(&sp.ID, &sp.PublicID, &sp.OrgID, &sp.Shortcode, &sp.Name, &sp.Type, &sp.PersonalSpace)
	if err != nil {
		return Space{}, err
	}
	return sp, nil
}

const spaceMemberColumns = `
	sm.id, sm.public_id, sm.space_id, sm.org_member_id, sm.team_id, sm.role,
	sm.can_create, sm.can_read, sm.can_comment, sm.can_reply, sm.can_delete,
	sm.can_change_workflow, sm.can_set_workflow_to_closed, sm.can_add_tags,
	sm.can_move_to_another_space, sm.can_add_to_another_space, sm.can_merge,
	sm.can_add_participants`

// FindSpaceMembership returns the membership row granting the org member
// access to the space, either directly or through one of their teams.
// Direct rows win over team-derived ones.
func (s *PostgresStore) FindSpaceMembership(ctx context.Context, spaceID, orgMemberID int64) (SpaceMember, error) {
	var m SpaceMember
	err := s.db.QueryRowContext(ctx, `
		SELECT `+spaceMemberColumns+`
		FROM space_members sm
		LEFT JOIN team_members tm ON tm.team_id = sm.team_id
		WHERE sm.space_id = $1 AND (sm.org_member_id = $2 OR tm.org_member_id = $2)
		ORDER BY sm.org_member_id NULLS LAST
		LIMIT 1
	`, spaceID, orgMemberID).Scan(
		&m.ID, &m.PublicID, &m.SpaceID, &m.OrgMemberID, &m.TeamID, &m.Role,
		&m.Permissions.CanCreate, &m.Permissions.CanRead, &m.Permissions.CanComment,
		&m.Permissions.CanReply, &m.Permissions.CanDelete, &m.Permissions.CanChangeWorkflow,
		&m.Permissions.CanSetWorkflowToClosed, &m.Permissions.CanAddTags,
		&m.Permissions.CanMoveToAnotherSpace, &m.Permissions.CanAddToAnotherSpace,
		&m.Permissions.CanMergeConvos, &m.Permissions.CanAddParticipants,
	)
	if err != nil {
		return SpaceMember{}, err
	}
	return m, nil
}

func (s *PostgresStore) HasSpaceMember(ctx context.Context, spaceID, orgMemberID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM space_members sm
			LEFT JOIN team_members tm ON tm.team_id = sm.team_id
			WHERE sm.space_id = $1 AND (sm.org_member_id = $2 OR tm.org_member_id = $2)
		)
	`, spaceID, orgMemberID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check space member: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) TeamHasSpaceMembership(ctx context.Context, spaceID, teamID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM space_members WHERE space_id = $1 AND team_id = $2)`,
		spaceID, teamID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check team space membership: %w", err)
	}
	return exists, nil
}

const spaceWorkflowColumns = `id, public_id, space_id, name, color, icon, description, type, sort_order, disabled`

func (s *PostgresStore) GetSpaceWorkflows(ctx context.Context, spaceID int64) ([]SpaceWorkflow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+spaceWorkflowColumns+`
		FROM space_workflows WHERE space_id = $1
		ORDER BY sort_order, id
	`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list space workflows: %w", err)
	}
	defer rows.Close()

	var workflows []SpaceWorkflow
	for rows.Next() {
		var w SpaceWorkflow
		if err := rows.Scan(&w.ID, &w.PublicID, &w.SpaceID, &w.Name, &w.Color, &w.Icon,
			&w.Description, &w.Type, &w.Order, &w.Disabled); err != nil {
			return nil, fmt.Errorf("scan space workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

func (s *PostgresStore) GetSpaceWorkflowByPublicID(ctx context.Context, spaceID int64, publicID string) (SpaceWorkflow, error) {
	var w SpaceWorkflow
	err := s.db.QueryRowContext(ctx, `
		SELECT `+spaceWorkflowColumns+`
		FROM space_workflows WHERE space_id = $1 AND public_id = $2
	`, spaceID, publicID).Scan(&w.ID, &w.PublicID, &w.SpaceID, &w.Name, &w.Color, &w.Icon,
		&w.Description, &w.Type, &w.Order, &w.Disabled)
	if err != nil {
		return SpaceWorkflow{}, err
	}
	return w, nil
}

// GetCurrentConvoWorkflow returns the workflow most recently applied to the
// conversation within the space. The history is append only.
func (s *PostgresStore) GetCurrentConvoWorkflow(ctx context.Context, convoID, spaceID int64) (SpaceWorkflow, error) {
	var w SpaceWorkflow
	err := s.db.QueryRowContext(ctx, `
		SELECT w.id, w.public_id, w.space_id, w.name, w.color, w.icon, w.description, w.type, w.sort_order, w.disabled
		FROM convo_workflows cw
		JOIN space_workflows w ON w.id = cw.workflow_id
		WHERE cw.convo_id = $1 AND cw.space_id = $2
		ORDER BY cw.created_at DESC, cw.id DESC
		LIMIT 1
	`, convoID, spaceID).Scan(&w.ID, &w.PublicID, &w.SpaceID, &w.Name, &w.Color, &w.Icon,
		&w.Description, &w.Type, &w.Order, &w.Disabled)
	if err != nil {
		return SpaceWorkflow{}, err
	}
	return w, nil
}

func (s *PostgresStore) InsertConvoWorkflow(ctx context.Context, publicID string, convoID, spaceID, convoToSpaceID, workflowID, byOrgMemberID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO convo_workflows (public_id, convo_id, space_id, convo_to_space_id, workflow_id, by_org_member_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, publicID, convoID, spaceID, convoToSpaceID, workflowID, byOrgMemberID)
	if err != nil {
		return fmt.Errorf("insert convo workflow: %w", err)
	}
	return nil
}
