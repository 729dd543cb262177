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

type WorkflowView struct {
	PublicID string `json:"publicId"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Type     string `json:"type"`
	Order    int    `json:"order"`
	Disabled bool   `json:"disabled"`
}

// SpaceWorkflowState is the workflow picture of one conversation in one
// space: the workflow it currently sits in plus the space's available
// workflows grouped by stage.
type SpaceWorkflowState struct {
	Space   SpaceView      `json:"space"`
	Current *WorkflowView  `json:"current,omitempty"`
	Open    []WorkflowView `json:"open"`
	Active  []WorkflowView `json:"active"`
	Closed  []WorkflowView `json:"closed"`
}

// GetConvoSpaceWorkflows reports the workflow state of the conversation in
// every space it is filed in.
func (s *Service) GetConvoSpaceWorkflows(ctx context.Context, org store.Org, convoPublicID string) ([]SpaceWorkflowState, error) {
	convo, err := s.store.GetConvoByPublicID(ctx, org.ID, convoPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("Conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup convo: %w", err)
	}
	refs, err := s.store.GetConvoSpaces(ctx, convo.ID)
	if err != nil {
		return nil, err
	}

	states := make([]SpaceWorkflowState, 0, len(refs))
	for _, ref := range refs {
		state := SpaceWorkflowState{
			Space:  SpaceView{PublicID: ref.SpacePublicID, Type: ref.SpaceType},
			Open:   []WorkflowView{},
			Active: []WorkflowView{},
			Closed: []WorkflowView{},
		}
		current, err := s.store.GetCurrentConvoWorkflow(ctx, convo.ID, ref.SpaceID)
		if err == nil {
			view := workflowView(current)
			state.Current = &view
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup current workflow: %w", err)
		}
		available, err := s.store.GetSpaceWorkflows(ctx, ref.SpaceID)
		if err != nil {
			return nil, err
		}
		for _, w := range available {
			if w.Disabled {
				continue
			}
			switch w.Type {
			case "open":
				state.Open = append(state.Open, workflowView(w))
			case "active":
				state.Active = append(state.Active, workflowView(w))
			case "closed":
				state.Closed = append(state.Closed, workflowView(w))
			}
		}
		states = append(states, state)
	}
	return states, nil
}

// SetWorkflow moves the conversation to a workflow within one space by
// appending to the workflow history. History is never rewritten.
func (s *Service) SetWorkflow(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID, spacePublicID, workflowPublicID string) error {
	space, err := s.store.GetSpaceByPublicID(ctx, org.ID, spacePublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError("Space not found")
	}
	if err != nil {
		return fmt.Errorf("lookup space: %w", err)
	}

	membership, ok, err := spaces.Resolve(ctx, s.store, space, actor.ID)
	if err != nil {
		return err
	}
	if !ok || !membership.Permissions.CanChangeWorkflow {
		return unauthorizedError("You are not allowed to change workflows in this space")
	}

	convo, err := s.store.GetConvoByPublicID(ctx, org.ID, convoPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError("Conversation not found")
	}
	if err != nil {
		return fmt.Errorf("lookup convo: %w", err)
	}
	link, err := s.store.GetConvoToSpace(ctx, convo.ID, space.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return unprocessableError("Conversation is not in this space")
	}
	if err != nil {
		return fmt.Errorf("lookup convo space link: %w", err)
	}

	workflow, err := s.store.GetSpaceWorkflowByPublicID(ctx, space.ID, workflowPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError("Workflow not found")
	}
	if err != nil {
		return fmt.Errorf("lookup workflow: %w", err)
	}
	if workflow.Disabled {
		return unprocessableError("This workflow is disabled")
	}
	if workflow.Type == "closed" && !membership.Permissions.CanSetWorkflowToClosed {
		return unauthorizedError("You are not allowed to close conversations in this space")
	}

	if err := s.store.InsertConvoWorkflow(ctx, s.newID(idgen.KindConvoWorkflow),
		convo.ID, space.ID, link.ID, workflow.ID, actor.ID); err != nil {
		return err
	}
	s.emit(ctx, realtime.SpaceChannel(space.PublicID), realtime.EventConvoWorkflowUpdate, map[string]string{
		"convoPublicId":    convo.PublicID,
		"workflowPublicId": workflow.PublicID,
	})
	return nil
}

func workflowView(w store.SpaceWorkflow) WorkflowView {
	return WorkflowView{
		PublicID: w.PublicID,
		Name:     w.Name,
		Color:    w.Color,
		Type:     w.Type,
		Order:    w.Order,
		Disabled: w.Disabled,
	}
}
