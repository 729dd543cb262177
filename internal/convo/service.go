// Package convo implements conversation orchestration: creating and replying
// to conversations, registering participants, filing into spaces, workflow
// state, and deletion.
package convo

import (
	"context"
	"time"

	"parley/core/internal/idgen"
	"parley/core/internal/mailbridge"
	"parley/core/internal/search"
	"parley/core/internal/store"
)

type dataStore interface {
	GetOrgMembersByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]store.OrgMember, error)
	GetTeamsByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]store.Team, error)
	GetTeamMembers(ctx context.Context, teamID int64) ([]store.OrgMember, error)
	IsTeamMember(ctx context.Context, teamID, orgMemberID int64) (bool, error)

	GetContactsByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]store.Contact, error)
	FindContactByEmail(ctx context.Context, orgID int64, username, domain string) (store.Contact, error)
	FindReputationByEmail(ctx context.Context, emailAddress string) (store.ContactReputation, error)
	EnsureReputation(ctx context.Context, emailAddress string) (store.ContactReputation, error)
	EnsureContact(ctx context.Context, candidate store.Contact) (store.Contact, error)

	GetSpaceByPublicID(ctx context.Context, orgID int64, publicID string) (store.Space, error)
	GetSpaceByID(ctx context.Context, spaceID int64) (store.Space, error)
	FindSpaceMembership(ctx context.Context, spaceID, orgMemberID int64) (store.SpaceMember, error)
	HasSpaceMember(ctx context.Context, spaceID, orgMemberID int64) (bool, error)
	TeamHasSpaceMembership(ctx context.Context, spaceID, teamID int64) (bool, error)
	GetSpaceWorkflows(ctx context.Context, spaceID int64) ([]store.SpaceWorkflow, error)
	GetSpaceWorkflowByPublicID(ctx context.Context, spaceID int64, publicID string) (store.SpaceWorkflow, error)
	GetCurrentConvoWorkflow(ctx context.Context, convoID, spaceID int64) (store.SpaceWorkflow, error)
	InsertConvoWorkflow(ctx context.Context, publicID string, convoID, spaceID, convoToSpaceID, workflowID, byOrgMemberID int64) error

	InsertConvo(ctx context.Context, orgID int64, publicID string, now time.Time) (store.Convo, error)
	GetConvoByPublicID(ctx context.Context, orgID int64, publicID string) (store.Convo, error)
	GetConvoByID(ctx context.Context, convoID int64) (store.Convo, error)
	GetConvosByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]store.Convo, error)
	UpdateConvoLastUpdated(ctx context.Context, convoID int64, at time.Time) error
	InsertConvoSubject(ctx context.Context, publicID string, convoID int64, subject string) (store.ConvoSubject, error)
	GetConvoSubjects(ctx context.Context, convoID int64) ([]store.ConvoSubject, error)
	AddConvoToSpace(ctx context.Context, publicID string, convoID, spaceID int64) (store.ConvoToSpace, error)
	GetConvoToSpace(ctx context.Context, convoID, spaceID int64) (store.ConvoToSpace, error)
	GetConvoSpaces(ctx context.Context, convoID int64) ([]store.ConvoSpaceRef, error)
	RemoveConvoFromSpaces(ctx context.Context, convoID int64) error

	InsertParticipant(ctx context.Context, p store.ConvoParticipant) (store.ConvoParticipant, error)
	InsertMemberParticipant(ctx context.Context, p store.ConvoParticipant) (store.ConvoParticipant, bool, error)
	FindParticipantForMember(ctx context.Context, convoID, orgMemberID int64) (store.ConvoParticipant, error)
	InsertParticipantTeamMember(ctx context.Context, convoParticipantID, teamParticipantID int64) error
	GetConvoParticipants(ctx context.Context, convoID int64) ([]store.ConvoParticipantDetail, error)
	UpdateParticipantEmailIdentity(ctx context.Context, participantID, emailIdentityID int64) error
	TouchParticipantLastRead(ctx context.Context, participantID int64, at time.Time) error

	InsertEntry(ctx context.Context, e store.ConvoEntry) (store.ConvoEntry, error)
	GetEntryByPublicID(ctx context.Context, orgID int64, publicID string) (store.ConvoEntry, error)
	GetConvoEntries(ctx context.Context, convoID int64) ([]store.ConvoEntry, error)
	GetLatestEntry(ctx context.Context, convoID int64) (store.EntryPreview, error)
	InsertEntryReply(ctx context.Context, entrySourceID, entryReplyID int64) error
	UpsertConvoSeen(ctx context.Context, convoID, participantID, orgMemberID int64, seenAt time.Time) error
	UpsertEntrySeen(ctx context.Context, entryID, participantID, orgMemberID int64, seenAt time.Time) error

	InsertAttachment(ctx context.Context, a store.ConvoAttachment) (store.ConvoAttachment, error)
	GetPendingAttachment(ctx context.Context, orgID int64, publicID string) (store.PendingAttachment, error)
	PromotePendingAttachment(ctx context.Context, orgID int64, publicID string) error
	GetAttachmentsForConvos(ctx context.Context, convoIDs []int64) ([]store.ConvoAttachment, error)
	GetConvoAttachments(ctx context.Context, convoID int64) ([]store.ConvoAttachment, error)

	GetEmailIdentityByPublicID(ctx context.Context, orgID int64, publicID string) (store.EmailIdentity, error)
	GetAuthorizedSenders(ctx context.Context, identityID int64) ([]store.AuthorizedSender, error)

	DeleteConvos(ctx context.Context, convoIDs []int64) error
}

type eventNotifier interface {
	Emit(ctx context.Context, channel, event string, payload any)
	EmitOnChannels(ctx context.Context, channels []string, event string, payload any)
}

type mailBridge interface {
	SendConvoEntryEmail(ctx context.Context, req mailbridge.SendEntryRequest) error
}

type blobStore interface {
	AttachmentURL(orgShortcode, attachmentPublicID, fileName string) string
	DeleteAttachments(ctx context.Context, keys []string)
}

type entryIndexer interface {
	IndexEntry(record search.EntryRecord)
	DeleteEntries(entryPublicIDs []string)
}

// Service carries out conversation operations. The bridge, blobs and index
// collaborators are optional; a nil collaborator disables that side effect.
type Service struct {
	store    dataStore
	notifier eventNotifier
	bridge   mailBridge
	blobs    blobStore
	index    entryIndexer

	now   func() time.Time
	newID func(kind idgen.Kind) string
}

func NewService(st dataStore, notifier eventNotifier, bridge mailBridge, blobs blobStore, index entryIndexer) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		bridge:   bridge,
		blobs:    blobs,
		index:    index,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    idgen.New,
	}
}

// SetMailBridge wires outbound delivery after construction. Startup code
// calls this only when the bridge backend is configured, which keeps the
// interface field nil instead of holding a nil concrete pointer.
func (s *Service) SetMailBridge(bridge mailBridge) { s.bridge = bridge }

// SetBlobStore wires attachment storage after construction.
func (s *Service) SetBlobStore(blobs blobStore) { s.blobs = blobs }

// SetEntryIndexer wires search indexing after construction.
func (s *Service) SetEntryIndexer(index entryIndexer) { s.index = index }

func (s *Service) emit(ctx context.Context, channel, event string, payload any) {
	if s.notifier != nil {
		s.notifier.Emit(ctx, channel, event, payload)
	}
}

func (s *Service) emitOnChannels(ctx context.Context, channels []string, event string, payload any) {
	if s.notifier != nil && len(channels) > 0 {
		s.notifier.EmitOnChannels(ctx, channels, event, payload)
	}
}
