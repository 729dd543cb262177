package convo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parley/core/internal/idgen"
	"parley/core/internal/realtime"
	"parley/core/internal/spaces"
	"parley/core/internal/store"
)

// AddToSpace files an already-filed conversation into an additional space.
func (s *Service) AddToSpace(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID, spacePublicID string) error {
	space, convo, currentRefs, err := s.spaceOpTargets(ctx, org.ID, convoPublicID, spacePublicID)
	if err != nil {
		return err
	}
	allowed, err := s.allowedInAnyCurrentSpace(ctx, currentRefs, actor.ID, func(p store.SpacePermissions) bool {
		return p.CanAddToAnotherSpace
	})
	if err != nil {
		return err
	}
	if !allowed {
		return unauthorizedError("You are not allowed to add this conversation to another space")
	}

	if _, err := s.store.AddConvoToSpace(ctx, s.newID(idgen.KindConvoToSpace), convo.ID, space.ID); err != nil {
		return err
	}
	s.emit(ctx, realtime.SpaceChannel(space.PublicID), realtime.EventConvoNew,
		map[string]string{"publicId": convo.PublicID})
	return nil
}

// MoveToSpace refiles the conversation: it leaves every space it is in and
// lands in the destination only.
func (s *Service) MoveToSpace(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID, spacePublicID string) error {
	space, convo, currentRefs, err := s.spaceOpTargets(ctx, org.ID, convoPublicID, spacePublicID)
	if err != nil {
		return err
	}
	allowed, err := s.allowedInAnyCurrentSpace(ctx, currentRefs, actor.ID, func(p store.SpacePermissions) bool {
		return p.CanMoveToAnotherSpace
	})
	if err != nil {
		return err
	}
	if !allowed {
		return unauthorizedError("You are not allowed to move this conversation to another space")
	}

	if err := s.store.RemoveConvoFromSpaces(ctx, convo.ID); err != nil {
		return err
	}
	if _, err := s.store.AddConvoToSpace(ctx, s.newID(idgen.KindConvoToSpace), convo.ID, space.ID); err != nil {
		return err
	}

	s.emit(ctx, realtime.SpaceChannel(space.PublicID), realtime.EventConvoNew,
		map[string]string{"publicId": convo.PublicID})
	vacated := make([]string, 0, len(currentRefs))
	for _, ref := range currentRefs {
		if ref.SpacePublicID == space.PublicID {
			continue
		}
		vacated = append(vacated, realtime.SpaceChannel(ref.SpacePublicID))
	}
	s.emitOnChannels(ctx, vacated, realtime.EventConvoDeleted,
		map[string][]string{"publicIds": {convo.PublicID}})
	return nil
}

func (s *Service) spaceOpTargets(ctx context.Context, orgID int64, convoPublicID, spacePublicID string) (store.Space, store.Convo, []store.ConvoSpaceRef, error) {
	space, err := s.store.GetSpaceByPublicID(ctx, orgID, spacePublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Space{}, store.Convo{}, nil, notFoundError("Space not found")
	}
	if err != nil {
		return store.Space{}, store.Convo{}, nil, fmt.Errorf("lookup space: %w", err)
	}
	convo, err := s.store.GetConvoByPublicID(ctx, orgID, convoPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Space{}, store.Convo{}, nil, notFoundError("Conversation not found")
	}
	if err != nil {
		return store.Space{}, store.Convo{}, nil, fmt.Errorf("lookup convo: %w", err)
	}
	refs, err := s.store.GetConvoSpaces(ctx, convo.ID)
	if err != nil {
		return store.Space{}, store.Convo{}, nil, err
	}
	if len(refs) == 0 {
		return store.Space{}, store.Convo{}, nil, unprocessableError("Conversation is not in any space")
	}
	return space, convo, refs, nil
}

// allowedInAnyCurrentSpace checks a permission flag across the member's
// memberships in the conversation's current spaces. Authority in one space is
// enough.
func (s *Service) allowedInAnyCurrentSpace(ctx context.Context, refs []store.ConvoSpaceRef, orgMemberID int64, allowed func(store.SpacePermissions) bool) (bool, error) {
	for _, ref := range refs {
		space, err := s.store.GetSpaceByID(ctx, ref.SpaceID)
		if err != nil {
			return false, fmt.Errorf("lookup space %d: %w", ref.SpaceID, err)
		}
		membership, ok, err := spaces.Resolve(ctx, s.store, space, orgMemberID)
		if err != nil {
			return false, err
		}
		if ok && allowed(membership.Permissions) {
			return true, nil
		}
	}
	return false, nil
}
