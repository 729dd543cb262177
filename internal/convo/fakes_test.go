package convo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"parley/core/internal/mailbridge"
	"parley/core/internal/search"
	"parley/core/internal/store"
)

type emittedEvent struct {
	Channel string
	Event   string
	Payload any
}

type fakeNotifier struct {
	events []emittedEvent
}

func (f *fakeNotifier) Emit(ctx context.Context, channel, event string, payload any) {
	f.events = append(f.events, emittedEvent{Channel: channel, Event: event, Payload: payload})
}

func (f *fakeNotifier) EmitOnChannels(ctx context.Context, channels []string, event string, payload any) {
	for _, channel := range channels {
		f.events = append(f.events, emittedEvent{Channel: channel, Event: event, Payload: payload})
	}
}

func (f *fakeNotifier) channelsFor(event string) []string {
	var channels []string
	for _, e := range f.events {
		if e.Event == event {
			channels = append(channels, e.Channel)
		}
	}
	return channels
}

type fakeBridge struct {
	calls []mailbridge.SendEntryRequest
	err   error
}

func (f *fakeBridge) SendConvoEntryEmail(ctx context.Context, req mailbridge.SendEntryRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

type fakeBlobs struct {
	deleted [][]string
}

func (f *fakeBlobs) AttachmentURL(orgShortcode, attachmentPublicID, fileName string) string {
	return "https://files.test/attachment/" + orgShortcode + "/" + attachmentPublicID + "/" + fileName
}

func (f *fakeBlobs) DeleteAttachments(ctx context.Context, keys []string) {
	f.deleted = append(f.deleted, keys)
}

type fakeIndex struct {
	indexed []search.EntryRecord
	deleted [][]string
}

func (f *fakeIndex) IndexEntry(record search.EntryRecord) {
	f.indexed = append(f.indexed, record)
}

func (f *fakeIndex) DeleteEntries(entryPublicIDs []string) {
	f.deleted = append(f.deleted, entryPublicIDs)
}

type testEnv struct {
	svc      *Service
	store    *fakeStore
	notifier *fakeNotifier
	bridge   *fakeBridge
	blobs    *fakeBlobs
	index    *fakeIndex

	org       store.Org
	actor     store.OrgMember
	mainSpace store.Space
}

func fullPermissions() store.SpacePermissions {
	return store.SpacePermissions{
		CanCreate: true, CanRead: true, CanComment: true, CanReply: true,
		CanDelete: true, CanChangeWorkflow: true, CanSetWorkflowToClosed: true,
		CanAddTags: true, CanMoveToAnotherSpace: true, CanAddToAnotherSpace: true,
		CanMergeConvos: true, CanAddParticipants: true,
	}
}

// newTestEnv seeds an org with one actor who fully controls a private space.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	notifier := &fakeNotifier{}
	bridge := &fakeBridge{}
	blobs := &fakeBlobs{}
	index := &fakeIndex{}
	svc := NewService(fs, notifier, bridge, blobs, index)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	env := &testEnv{
		svc: svc, store: fs, notifier: notifier, bridge: bridge, blobs: blobs, index: index,
		org: store.Org{ID: 1, PublicID: "o_main", Shortcode: "acme"},
	}
	env.mainSpace = fs.addSpace(store.Space{ID: 50, PublicID: "sp_main", OrgID: 1, Type: "private"})
	env.actor = store.OrgMember{ID: 10, PublicID: "om_actor", OrgID: 1}
	fs.orgMembersByPublicID[env.actor.PublicID] = env.actor
	fs.memberships[[2]int64{env.mainSpace.ID, env.actor.ID}] = store.SpaceMember{
		ID: 90, SpaceID: env.mainSpace.ID,
		OrgMemberID: sql.NullInt64{Int64: env.actor.ID, Valid: true},
		Role:        "admin", Permissions: fullPermissions(),
	}
	return env
}

func docBody(text string) []byte {
	return []byte(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"` + text + `"}]}]}`)
}
