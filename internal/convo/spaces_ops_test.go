package convo

import (
	"context"
	"errors"
	"testing"

	"parley/core/internal/store"
)

func TestAddToSpace(t *testing.T) {
	env := newTestEnv(t)
	dest := env.store.addSpace(store.Space{ID: 57, PublicID: "sp_archive", OrgID: 1, Type: "private"})
	seeded := seedConvo(t, env, internalConvoInput())

	if err := env.svc.AddToSpace(context.Background(), env.org, env.actor, seeded.ConvoPublicID, dest.PublicID); err != nil {
		t.Fatalf("AddToSpace: %v", err)
	}

	refs, err := env.store.GetConvoSpaces(context.Background(), env.store.convos[0].ID)
	if err != nil {
		t.Fatalf("GetConvoSpaces: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("%d spaces, want 2", len(refs))
	}
	channels := env.notifier.channelsFor("convo:new")
	want := "private-space-sp_archive"
	found := false
	for _, ch := range channels {
		if ch == want {
			found = true
		}
	}
	if !found {
		t.Errorf("convo:new channels = %v, want %s", channels, want)
	}

	// Re-adding is a no-op, not an error.
	if err := env.svc.AddToSpace(context.Background(), env.org, env.actor, seeded.ConvoPublicID, dest.PublicID); err != nil {
		t.Fatalf("AddToSpace twice: %v", err)
	}
	refs, _ = env.store.GetConvoSpaces(context.Background(), env.store.convos[0].ID)
	if len(refs) != 2 {
		t.Errorf("%d spaces after re-add, want 2", len(refs))
	}
}

func TestAddToSpaceRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	env.store.addSpace(store.Space{ID: 57, PublicID: "sp_archive", OrgID: 1, Type: "private"})
	seeded := seedConvo(t, env, internalConvoInput())

	limited := fullPermissions()
	limited.CanAddToAnotherSpace = false
	env.store.memberships[[2]int64{env.mainSpace.ID, env.actor.ID}] = store.SpaceMember{
		ID: 90, SpaceID: env.mainSpace.ID, Permissions: limited,
	}

	err := env.svc.AddToSpace(context.Background(), env.org, env.actor, seeded.ConvoPublicID, "sp_archive")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UNAUTHORIZED" {
		t.Fatalf("err = %v, want UNAUTHORIZED", err)
	}
	refs, _ := env.store.GetConvoSpaces(context.Background(), env.store.convos[0].ID)
	if len(refs) != 1 {
		t.Errorf("%d spaces, want unchanged", len(refs))
	}
}

func TestMoveToSpace(t *testing.T) {
	env := newTestEnv(t)
	dest := env.store.addSpace(store.Space{ID: 57, PublicID: "sp_archive", OrgID: 1, Type: "private"})
	seeded := seedConvo(t, env, internalConvoInput())

	if err := env.svc.MoveToSpace(context.Background(), env.org, env.actor, seeded.ConvoPublicID, dest.PublicID); err != nil {
		t.Fatalf("MoveToSpace: %v", err)
	}

	refs, err := env.store.GetConvoSpaces(context.Background(), env.store.convos[0].ID)
	if err != nil {
		t.Fatalf("GetConvoSpaces: %v", err)
	}
	if len(refs) != 1 || refs[0].SpacePublicID != "sp_archive" {
		t.Fatalf("spaces after move = %+v", refs)
	}

	if got := env.notifier.channelsFor("convo:new"); len(got) != 1 || got[0] != "private-space-sp_archive" {
		t.Errorf("convo:new channels = %v", got)
	}
	if got := env.notifier.channelsFor("convo:deleted"); len(got) != 1 || got[0] != "private-space-sp_main" {
		t.Errorf("convo:deleted channels = %v", got)
	}
}

func TestMoveToSpaceErrors(t *testing.T) {
	env := newTestEnv(t)
	env.store.addSpace(store.Space{ID: 57, PublicID: "sp_archive", OrgID: 1, Type: "private"})
	seeded := seedConvo(t, env, internalConvoInput())

	var domainErr *DomainError
	err := env.svc.MoveToSpace(context.Background(), env.org, env.actor, seeded.ConvoPublicID, "sp_missing")
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("unknown space err = %v", err)
	}
	err = env.svc.MoveToSpace(context.Background(), env.org, env.actor, "c_missing", "sp_archive")
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("unknown convo err = %v", err)
	}

	limited := fullPermissions()
	limited.CanMoveToAnotherSpace = false
	env.store.memberships[[2]int64{env.mainSpace.ID, env.actor.ID}] = store.SpaceMember{
		ID: 90, SpaceID: env.mainSpace.ID, Permissions: limited,
	}
	err = env.svc.MoveToSpace(context.Background(), env.org, env.actor, seeded.ConvoPublicID, "sp_archive")
	if !errors.As(err, &domainErr) || domainErr.Code != "UNAUTHORIZED" {
		t.Fatalf("permission err = %v, want UNAUTHORIZED", err)
	}
}
