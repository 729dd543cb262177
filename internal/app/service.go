package app

import (
	"context"

	"parley/core/internal/cache"
	"parley/core/internal/convo"
	"parley/core/internal/store"
)

// ConvoService is the conversation surface the HTTP layer exposes.
type ConvoService interface {
	CreateConvo(ctx context.Context, org store.Org, actor store.OrgMember, input convo.CreateConvoInput) (convo.CreateConvoResult, error)
	Reply(ctx context.Context, org store.Org, actor store.OrgMember, input convo.ReplyInput) (convo.ReplyResult, error)
	GetConvo(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID string) (convo.ConvoDetail, error)
	GetConvoForMember(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID string) (convo.ConvoSummary, error)
	DeleteConvos(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicIDs []string) error
	AddToSpace(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID, spacePublicID string) error
	MoveToSpace(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID, spacePublicID string) error
	GetConvoSpaceWorkflows(ctx context.Context, org store.Org, convoPublicID string) ([]convo.SpaceWorkflowState, error)
	SetWorkflow(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID, spacePublicID, workflowPublicID string) error
}

// Directory resolves the org and acting member for a request.
type Directory interface {
	OrgByShortcode(ctx context.Context, shortcode string) (store.Org, error)
	MemberByPublicID(ctx context.Context, orgID int64, publicID string) (store.OrgMember, error)
}

type memberStore interface {
	GetOrgMemberByPublicID(ctx context.Context, orgID int64, publicID string) (store.OrgMember, error)
}

// StoreDirectory serves org lookups through the redis cache and member
// lookups straight from the database.
type StoreDirectory struct {
	orgs    *cache.OrgCache
	members memberStore
}

func NewStoreDirectory(orgs *cache.OrgCache, members memberStore) *StoreDirectory {
	return &StoreDirectory{orgs: orgs, members: members}
}

func (d *StoreDirectory) OrgByShortcode(ctx context.Context, shortcode string) (store.Org, error) {
	return d.orgs.Get(ctx, shortcode)
}

func (d *StoreDirectory) MemberByPublicID(ctx context.Context, orgID int64, publicID string) (store.OrgMember, error) {
	return d.members.GetOrgMemberByPublicID(ctx, orgID, publicID)
}
