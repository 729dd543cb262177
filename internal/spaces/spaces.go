// Package spaces resolves what an org member may do inside a space. Open
// spaces grant every org member a baseline membership; private spaces require
// an explicit membership row, held directly or through a team.
package spaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parley/core/internal/store"
)

type membershipStore interface {
	FindSpaceMembership(ctx context.Context, spaceID, orgMemberID int64) (store.SpaceMember, error)
}

// Membership is the resolved authority of one org member in one space. Role
// is empty when access derives from the space being open rather than from a
// membership row.
type Membership struct {
	Space       store.Space
	Role        string
	Permissions store.SpacePermissions
}

func openPermissions() store.SpacePermissions {
	return store.SpacePermissions{
		CanCreate:              true,
		CanRead:                true,
		CanComment:             true,
		CanReply:               true,
		CanDelete:              true,
		CanChangeWorkflow:      true,
		CanSetWorkflowToClosed: true,
		CanAddTags:             true,
		CanMoveToAnotherSpace:  true,
		CanAddToAnotherSpace:   true,
		CanMergeConvos:         true,
		CanAddParticipants:     true,
	}
}

// Resolve returns the member's authority in the space. ok is false when the
// space is private and no membership row covers the member.
func Resolve(ctx context.Context, st membershipStore, space store.Space, orgMemberID int64) (Membership, bool, error) {
	member, err := st.FindSpaceMembership(ctx, space.ID, orgMemberID)
	if err == nil {
		return Membership{Space: space, Role: member.Role, Permissions: member.Permissions}, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Membership{}, false, fmt.Errorf("resolve space membership: %w", err)
	}
	if space.Type == "open" {
		return Membership{Space: space, Permissions: openPermissions()}, true, nil
	}
	return Membership{}, false, nil
}
