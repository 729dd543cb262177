package convo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"parley/core/internal/idgen"
	"parley/core/internal/store"
)

// RecipientRef names the participant an outbound message is addressed to.
type RecipientRef struct {
	Kind     string `json:"kind"` // orgMember, team, contact, email
	PublicID string `json:"publicId,omitempty"`
	Email    string `json:"email,omitempty"`
}

type participantPlan struct {
	orgID    int64
	convoID  int64
	author   store.OrgMember
	sendAsID sql.NullInt64
	members  []store.OrgMember
	teams    []store.Team
	contacts []store.Contact
	to       RecipientRef
}

type registration struct {
	authorRow         store.ConvoParticipant
	addressedPublicID string
	hasContacts       bool
}

// registerParticipants writes every participant row for a new conversation.
// The author goes first so their assigned row wins the per-member uniqueness
// over any later appearance in the member or team lists.
func (s *Service) registerParticipants(ctx context.Context, plan participantPlan) (registration, error) {
	var reg registration

	authorRow, _, err := s.store.InsertMemberParticipant(ctx, store.ConvoParticipant{
		PublicID:        s.newID(idgen.KindConvoParticipant),
		OrgID:           plan.orgID,
		ConvoID:         plan.convoID,
		OrgMemberID:     sql.NullInt64{Int64: plan.author.ID, Valid: true},
		EmailIdentityID: plan.sendAsID,
		Role:            "assigned",
		Notifications:   "active",
		Active:          true,
	})
	if err != nil {
		return registration{}, err
	}
	reg.authorRow = authorRow

	for _, member := range plan.members {
		if member.ID == plan.author.ID {
			continue
		}
		row, _, err := s.store.InsertMemberParticipant(ctx, store.ConvoParticipant{
			PublicID:      s.newID(idgen.KindConvoParticipant),
			OrgID:         plan.orgID,
			ConvoID:       plan.convoID,
			OrgMemberID:   sql.NullInt64{Int64: member.ID, Valid: true},
			Role:          "contributor",
			Notifications: "active",
			Active:        true,
		})
		if err != nil {
			return registration{}, err
		}
		if plan.to.Kind == "orgMember" && plan.to.PublicID == member.PublicID {
			reg.addressedPublicID = row.PublicID
		}
	}

	for _, team := range plan.teams {
		if err := s.registerTeam(ctx, plan, team, &reg); err != nil {
			return registration{}, err
		}
	}

	for _, contact := range plan.contacts {
		row, err := s.store.InsertParticipant(ctx, store.ConvoParticipant{
			PublicID:      s.newID(idgen.KindConvoParticipant),
			OrgID:         plan.orgID,
			ConvoID:       plan.convoID,
			ContactID:     sql.NullInt64{Int64: contact.ID, Valid: true},
			Role:          "contributor",
			Notifications: "active",
			Active:        true,
		})
		if err != nil {
			return registration{}, err
		}
		reg.hasContacts = true
		if s.isAddressedContact(plan.to, contact) {
			reg.addressedPublicID = row.PublicID
		}
	}

	return reg, nil
}

// registerTeam adds the team's own participant row, then an individual row
// per team member linked back to the team row. Members already participating
// keep their existing row; only the link is added.
func (s *Service) registerTeam(ctx context.Context, plan participantPlan, team store.Team, reg *registration) error {
	teamRow, err := s.store.InsertParticipant(ctx, store.ConvoParticipant{
		PublicID:        s.newID(idgen.KindConvoParticipant),
		OrgID:           plan.orgID,
		ConvoID:         plan.convoID,
		TeamID:          sql.NullInt64{Int64: team.ID, Valid: true},
		EmailIdentityID: team.DefaultEmailIdentityID,
		Role:            "contributor",
		Notifications:   "active",
		Active:          true,
	})
	if err != nil {
		return err
	}
	if plan.to.Kind == "team" && plan.to.PublicID == team.PublicID {
		reg.addressedPublicID = teamRow.PublicID
	}

	members, err := s.store.GetTeamMembers(ctx, team.ID)
	if err != nil {
		return fmt.Errorf("register team %s: %w", team.PublicID, err)
	}
	for _, member := range members {
		memberRow, _, err := s.store.InsertMemberParticipant(ctx, store.ConvoParticipant{
			PublicID:        s.newID(idgen.KindConvoParticipant),
			OrgID:           plan.orgID,
			ConvoID:         plan.convoID,
			OrgMemberID:     sql.NullInt64{Int64: member.ID, Valid: true},
			EmailIdentityID: team.DefaultEmailIdentityID,
			Role:            "teamMember",
			Notifications:   "active",
			Active:          true,
		})
		if err != nil {
			return err
		}
		if err := s.store.InsertParticipantTeamMember(ctx, memberRow.ID, teamRow.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) isAddressedContact(to RecipientRef, contact store.Contact) bool {
	switch to.Kind {
	case "contact":
		return to.PublicID == contact.PublicID
	case "email":
		return strings.EqualFold(strings.TrimSpace(to.Email), contactEmail(contact))
	}
	return false
}
