package convo

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"parley/core/internal/store"
)

// seedConvo creates a conversation with a first entry through the service
// itself, so replies operate on realistic state.
func seedConvo(t *testing.T, env *testEnv, input CreateConvoInput) CreateConvoResult {
	t.Helper()
	result, err := env.svc.CreateConvo(context.Background(), env.org, env.actor, input)
	if err != nil {
		t.Fatalf("seed convo: %v", err)
	}
	env.bridge.calls = nil
	env.notifier.events = nil
	env.index.indexed = nil
	return result
}

func internalConvoInput() CreateConvoInput {
	return CreateConvoInput{
		SpacePublicIDs:   []string{"sp_main"},
		MemberPublicIDs:  []string{"om_actor"},
		Topic:            "thread",
		Body:             docBody("first"),
		FirstMessageType: "comment",
	}
}

func TestReplyThreadsUnderTarget(t *testing.T) {
	env := newTestEnv(t)
	seeded := seedConvo(t, env, internalConvoInput())

	result, err := env.svc.Reply(context.Background(), env.org, env.actor, ReplyInput{
		ReplyToEntryPublicID: seeded.EntryPublicID,
		Body:                 docBody("second"),
		MessageType:          "comment",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if result.BodyPlainText != "second" {
		t.Errorf("BodyPlainText = %q", result.BodyPlainText)
	}

	if len(env.store.entries) != 2 {
		t.Fatalf("%d entries, want 2", len(env.store.entries))
	}
	first, second := env.store.entries[0], env.store.entries[1]
	if !second.ReplyToID.Valid || second.ReplyToID.Int64 != first.ID {
		t.Errorf("ReplyToID = %+v, want %d", second.ReplyToID, first.ID)
	}
	if second.SubjectID != first.SubjectID {
		t.Errorf("subject not inherited: %+v vs %+v", second.SubjectID, first.SubjectID)
	}
	if len(env.store.entryReplies) != 1 || env.store.entryReplies[0] != [2]int64{first.ID, second.ID} {
		t.Errorf("entryReplies = %v", env.store.entryReplies)
	}
	if got := env.store.lastUpdated[second.ConvoID]; !got.Equal(second.CreatedAt) {
		t.Errorf("lastUpdatedAt = %v, want entry timestamp", got)
	}
	if len(env.bridge.calls) != 0 {
		t.Error("internal reply reached the bridge")
	}
}

func TestReplyTargetMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Reply(context.Background(), env.org, env.actor, ReplyInput{
		ReplyToEntryPublicID: "ce_missing",
		Body:                 docBody("x"),
		MessageType:          "comment",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("err = %v, want unprocessable", err)
	}
}

func TestReplyNonParticipantJoinsAsContributor(t *testing.T) {
	env := newTestEnv(t)
	seeded := seedConvo(t, env, internalConvoInput())
	bob := store.OrgMember{ID: 11, PublicID: "om_bob", OrgID: 1}
	env.store.orgMembersByPublicID[bob.PublicID] = bob

	_, err := env.svc.Reply(context.Background(), env.org, bob, ReplyInput{
		ReplyToEntryPublicID: seeded.EntryPublicID,
		Body:                 docBody("joining in"),
		MessageType:          "comment",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	var bobRow *store.ConvoParticipant
	for i, p := range env.store.participants {
		if p.OrgMemberID.Valid && p.OrgMemberID.Int64 == bob.ID {
			bobRow = &env.store.participants[i]
		}
	}
	if bobRow == nil {
		t.Fatal("no participant row synthesized for the author")
	}
	if bobRow.Role != "contributor" {
		t.Errorf("role = %q, want contributor", bobRow.Role)
	}
	if env.store.entries[1].AuthorID != bobRow.ID {
		t.Error("entry not attributed to the synthesized row")
	}
}

func TestReplyOutboundSwitchesSenderIdentity(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(env)
	other := store.EmailIdentity{
		ID: 32, PublicID: "ei_sales", OrgID: 1, SendingEnabled: true,
	}
	env.store.identitiesByPublicID[other.PublicID] = other
	env.store.authorizedSenders[other.ID] = []store.AuthorizedSender{
		{OrgMemberID: sql.NullInt64{Int64: env.actor.ID, Valid: true}},
	}

	seeded := seedConvo(t, env, CreateConvoInput{
		SpacePublicIDs:         []string{"sp_main"},
		EmailParticipants:      []string{"customer@example.com"},
		SendAsIdentityPublicID: "ei_support",
		Topic:                  "outbound",
		Body:                   docBody("first"),
		FirstMessageType:       "message",
	})

	_, err := env.svc.Reply(context.Background(), env.org, env.actor, ReplyInput{
		ReplyToEntryPublicID:   seeded.EntryPublicID,
		SendAsIdentityPublicID: "ei_sales",
		Body:                   docBody("from sales now"),
		MessageType:            "message",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}

	author, err := env.store.FindParticipantForMember(context.Background(), env.store.convos[0].ID, env.actor.ID)
	if err != nil {
		t.Fatalf("author lookup: %v", err)
	}
	if !author.EmailIdentityID.Valid || author.EmailIdentityID.Int64 != other.ID {
		t.Errorf("author identity = %+v, want %d", author.EmailIdentityID, other.ID)
	}
	if len(env.bridge.calls) != 1 || env.bridge.calls[0].SendAsIdentityPublicID != "ei_sales" {
		t.Errorf("bridge calls = %+v", env.bridge.calls)
	}
}

func TestReplySendAsRequiresAuthorization(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(env)
	seeded := seedConvo(t, env, CreateConvoInput{
		SpacePublicIDs:         []string{"sp_main"},
		EmailParticipants:      []string{"customer@example.com"},
		SendAsIdentityPublicID: "ei_support",
		Topic:                  "outbound",
		Body:                   docBody("first"),
		FirstMessageType:       "message",
	})
	bob := store.OrgMember{ID: 11, PublicID: "om_bob", OrgID: 1}
	env.store.orgMembersByPublicID[bob.PublicID] = bob

	_, err := env.svc.Reply(context.Background(), env.org, bob, ReplyInput{
		ReplyToEntryPublicID:   seeded.EntryPublicID,
		SendAsIdentityPublicID: "ei_support",
		Body:                   docBody("impersonating"),
		MessageType:            "message",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UNAUTHORIZED" {
		t.Fatalf("err = %v, want UNAUTHORIZED", err)
	}
	if len(env.bridge.calls) != 0 {
		t.Error("unauthorized reply reached the bridge")
	}
}

func TestReplySendAsSpaceGrant(t *testing.T) {
	env := newTestEnv(t)
	identity := seedIdentity(env)
	env.store.authorizedSenders[identity.ID] = []store.AuthorizedSender{
		{SpaceID: sql.NullInt64{Int64: env.mainSpace.ID, Valid: true}},
	}
	seeded := seedConvo(t, env, CreateConvoInput{
		SpacePublicIDs:         []string{"sp_main"},
		EmailParticipants:      []string{"customer@example.com"},
		SendAsIdentityPublicID: "ei_support",
		Topic:                  "outbound",
		Body:                   docBody("first"),
		FirstMessageType:       "message",
	})
	bob := store.OrgMember{ID: 11, PublicID: "om_bob", OrgID: 1}
	env.store.orgMembersByPublicID[bob.PublicID] = bob

	_, err := env.svc.Reply(context.Background(), env.org, bob, ReplyInput{
		ReplyToEntryPublicID:   seeded.EntryPublicID,
		SendAsIdentityPublicID: "ei_support",
		Body:                   docBody("on behalf of the space"),
		MessageType:            "message",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(env.bridge.calls) != 1 {
		t.Fatalf("%d bridge calls, want 1", len(env.bridge.calls))
	}
}
