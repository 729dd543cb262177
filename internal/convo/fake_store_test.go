package convo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parley/core/internal/store"
)

// fakeStore is an in-memory dataStore. Fixture maps are seeded by tests;
// write methods record what the service did.
type fakeStore struct {
	nextID int64

	orgMembersByPublicID map[string]store.OrgMember
	teamsByPublicID      map[string]store.Team
	teamMembers          map[int64][]store.OrgMember
	contactsByPublicID   map[string]store.Contact
	contactsByEmail      map[string]store.Contact
	reputations          map[string]store.ContactReputation
	spacesByPublicID     map[string]store.Space
	spacesByID           map[int64]store.Space
	memberships          map[[2]int64]store.SpaceMember
	teamSpaceMemberships map[[2]int64]bool
	spaceWorkflows       map[int64][]store.SpaceWorkflow
	identitiesByPublicID map[string]store.EmailIdentity
	authorizedSenders    map[int64][]store.AuthorizedSender
	pending              map[string]store.PendingAttachment

	convos          []store.Convo
	links           []store.ConvoToSpace
	subjects        []store.ConvoSubject
	participants    []store.ConvoParticipant
	teamMemberLinks [][2]int64
	entries         []store.ConvoEntry
	entryReplies    [][2]int64
	attachments     []store.ConvoAttachment
	workflowHistory []struct {
		ConvoID, SpaceID, ConvoToSpaceID, WorkflowID, ByOrgMemberID int64
	}
	convoSeen       int
	entrySeen       int
	lastRead        map[int64]time.Time
	lastUpdated     map[int64]time.Time
	deletedConvoIDs []int64
	promoted        []string
	ensuredContacts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:               100,
		orgMembersByPublicID: map[string]store.OrgMember{},
		teamsByPublicID:      map[string]store.Team{},
		teamMembers:          map[int64][]store.OrgMember{},
		contactsByPublicID:   map[string]store.Contact{},
		contactsByEmail:      map[string]store.Contact{},
		reputations:          map[string]store.ContactReputation{},
		spacesByPublicID:     map[string]store.Space{},
		spacesByID:           map[int64]store.Space{},
		memberships:          map[[2]int64]store.SpaceMember{},
		teamSpaceMemberships: map[[2]int64]bool{},
		spaceWorkflows:       map[int64][]store.SpaceWorkflow{},
		identitiesByPublicID: map[string]store.EmailIdentity{},
		authorizedSenders:    map[int64][]store.AuthorizedSender{},
		pending:              map[string]store.PendingAttachment{},
		lastRead:             map[int64]time.Time{},
		lastUpdated:          map[int64]time.Time{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

// contactKey scopes email lookups to an org, mirroring the unique index on
// (org_id, email_username, email_domain).
func contactKey(orgID int64, username, domain string) string {
	return fmt.Sprintf("%d/%s@%s", orgID, username, domain)
}

func (f *fakeStore) addSpace(sp store.Space) store.Space {
	if sp.ID == 0 {
		sp.ID = f.id()
	}
	f.spacesByPublicID[sp.PublicID] = sp
	f.spacesByID[sp.ID] = sp
	return sp
}

func (f *fakeStore) GetOrgMembersByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]store.OrgMember, error) {
	var members []store.OrgMember
	for _, id := range publicIDs {
		if m, ok := f.orgMembersByPublicID[id]; ok {
			members = append(members, m)
		}
	}
	return members, nil
}

func (f *fakeStore) GetTeamsByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]store.Team, error) {
	var teams []store.Team
	for _, id := range publicIDs {
		if t, ok := f.teamsByPublicID[id]; ok {
			teams = append(teams, t)
		}
	}
	return teams, nil
}

func (f *fakeStore) GetTeamMembers(ctx context.Context, teamID int64) ([]store.OrgMember, error) {
	return f.teamMembers[teamID], nil
}

func (f *fakeStore) IsTeamMember(ctx context.Context, teamID, orgMemberID int64) (bool, error) {
	for _, m := range f.teamMembers[teamID] {
		if m.ID == orgMemberID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetContactsByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]store.Contact, error) {
	var contacts []store.Contact
	for _, id := range publicIDs {
		if c, ok := f.contactsByPublicID[id]; ok && c.OrgID == orgID {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

func (f *fakeStore) FindContactByEmail(ctx context.Context, orgID int64, username, domain string) (store.Contact, error) {
	if c, ok := f.contactsByEmail[contactKey(orgID, username, domain)]; ok {
		return c, nil
	}
	return store.Contact{}, sql.ErrNoRows
}

func (f *fakeStore) FindReputationByEmail(ctx context.Context, emailAddress string) (store.ContactReputation, error) {
	if r, ok := f.reputations[emailAddress]; ok {
		return r, nil
	}
	return store.ContactReputation{}, sql.ErrNoRows
}

func (f *fakeStore) EnsureReputation(ctx context.Context, emailAddress string) (store.ContactReputation, error) {
	if r, ok := f.reputations[emailAddress]; ok {
		return r, nil
	}
	r := store.ContactReputation{ID: f.id(), EmailAddress: emailAddress}
	f.reputations[emailAddress] = r
	return r, nil
}

func (f *fakeStore) EnsureContact(ctx context.Context, candidate store.Contact) (store.Contact, error) {
	f.ensuredContacts++
	key := contactKey(candidate.OrgID, candidate.EmailUsername, candidate.EmailDomain)
	if c, ok := f.contactsByEmail[key]; ok {
		return c, nil
	}
	candidate.ID = f.id()
	f.contactsByEmail[key] = candidate
	f.contactsByPublicID[candidate.PublicID] = candidate
	return candidate, nil
}

func (f *fakeStore) GetSpaceByPublicID(ctx context.Context, orgID int64, publicID string) (store.Space, error) {
	if sp, ok := f.spacesByPublicID[publicID]; ok {
		return sp, nil
	}
	return store.Space{}, sql.ErrNoRows
}

func (f *fakeStore) GetSpaceByID(ctx context.Context, spaceID int64) (store.Space, error) {
	if sp, ok := f.spacesByID[spaceID]; ok {
		return sp, nil
	}
	return store.Space{}, sql.ErrNoRows
}

func (f *fakeStore) FindSpaceMembership(ctx context.Context, spaceID, orgMemberID int64) (store.SpaceMember, error) {
	if m, ok := f.memberships[[2]int64{spaceID, orgMemberID}]; ok {
		return m, nil
	}
	return store.SpaceMember{}, sql.ErrNoRows
}

func (f *fakeStore) HasSpaceMember(ctx context.Context, spaceID, orgMemberID int64) (bool, error) {
	_, ok := f.memberships[[2]int64{spaceID, orgMemberID}]
	return ok, nil
}

func (f *fakeStore) TeamHasSpaceMembership(ctx context.Context, spaceID, teamID int64) (bool, error) {
	return f.teamSpaceMemberships[[2]int64{spaceID, teamID}], nil
}

func (f *fakeStore) GetSpaceWorkflows(ctx context.Context, spaceID int64) ([]store.SpaceWorkflow, error) {
	return f.spaceWorkflows[spaceID], nil
}

func (f *fakeStore) GetSpaceWorkflowByPublicID(ctx context.Context, spaceID int64, publicID string) (store.SpaceWorkflow, error) {
	for _, w := range f.spaceWorkflows[spaceID] {
		if w.PublicID == publicID {
			return w, nil
		}
	}
	return store.SpaceWorkflow{}, sql.ErrNoRows
}

func (f *fakeStore) GetCurrentConvoWorkflow(ctx context.Context, convoID, spaceID int64) (store.SpaceWorkflow, error) {
	for i := len(f.workflowHistory) - 1; i >= 0; i-- {
		h := f.workflowHistory[i]
		if h.ConvoID == convoID && h.SpaceID == spaceID {
			for _, w := range f.spaceWorkflows[spaceID] {
				if w.ID == h.WorkflowID {
					return w, nil
				}
			}
		}
	}
	return store.SpaceWorkflow{}, sql.ErrNoRows
}

func (f *fakeStore) InsertConvoWorkflow(ctx context.Context, publicID string, convoID, spaceID, convoToSpaceID, workflowID, byOrgMemberID int64) error {
	f.workflowHistory = append(f.workflowHistory, struct {
		ConvoID, SpaceID, ConvoToSpaceID, WorkflowID, ByOrgMemberID int64
	}{convoID, spaceID, convoToSpaceID, workflowID, byOrgMemberID})
	return nil
}

func (f *fakeStore) InsertConvo(ctx context.Context, orgID int64, publicID string, now time.Time) (store.Convo, error) {
	c := store.Convo{ID: f.id(), PublicID: publicID, OrgID: orgID, LastUpdatedAt: now, CreatedAt: now}
	f.convos = append(f.convos, c)
	return c, nil
}

func (f *fakeStore) GetConvoByPublicID(ctx context.Context, orgID int64, publicID string) (store.Convo, error) {
	for _, c := range f.convos {
		if c.PublicID == publicID && c.OrgID == orgID {
			return c, nil
		}
	}
	return store.Convo{}, sql.ErrNoRows
}

func (f *fakeStore) GetConvoByID(ctx context.Context, convoID int64) (store.Convo, error) {
	for _, c := range f.convos {
		if c.ID == convoID {
			return c, nil
		}
	}
	return store.Convo{}, sql.ErrNoRows
}

func (f *fakeStore) GetConvosByPublicIDs(ctx context.Context, orgID int64, publicIDs []string) ([]store.Convo, error) {
	var convos []store.Convo
	for _, id := range publicIDs {
		if c, err := f.GetConvoByPublicID(ctx, orgID, id); err == nil {
			convos = append(convos, c)
		}
	}
	return convos, nil
}

func (f *fakeStore) UpdateConvoLastUpdated(ctx context.Context, convoID int64, at time.Time) error {
	f.lastUpdated[convoID] = at
	return nil
}

func (f *fakeStore) InsertConvoSubject(ctx context.Context, publicID string, convoID int64, subject string) (store.ConvoSubject, error) {
	cs := store.ConvoSubject{ID: f.id(), PublicID: publicID, ConvoID: convoID, Subject: subject}
	f.subjects = append(f.subjects, cs)
	return cs, nil
}

func (f *fakeStore) GetConvoSubjects(ctx context.Context, convoID int64) ([]store.ConvoSubject, error) {
	var subjects []store.ConvoSubject
	for _, s := range f.subjects {
		if s.ConvoID == convoID {
			subjects = append(subjects, s)
		}
	}
	return subjects, nil
}

func (f *fakeStore) AddConvoToSpace(ctx context.Context, publicID string, convoID, spaceID int64) (store.ConvoToSpace, error) {
	for _, l := range f.links {
		if l.ConvoID == convoID && l.SpaceID == spaceID {
			return l, nil
		}
	}
	l := store.ConvoToSpace{ID: f.id(), PublicID: publicID, ConvoID: convoID, SpaceID: spaceID}
	f.links = append(f.links, l)
	return l, nil
}

func (f *fakeStore) GetConvoToSpace(ctx context.Context, convoID, spaceID int64) (store.ConvoToSpace, error) {
	for _, l := range f.links {
		if l.ConvoID == convoID && l.SpaceID == spaceID {
			return l, nil
		}
	}
	return store.ConvoToSpace{}, sql.ErrNoRows
}

func (f *fakeStore) GetConvoSpaces(ctx context.Context, convoID int64) ([]store.ConvoSpaceRef, error) {
	var refs []store.ConvoSpaceRef
	for _, l := range f.links {
		if l.ConvoID != convoID {
			continue
		}
		sp := f.spacesByID[l.SpaceID]
		refs = append(refs, store.ConvoSpaceRef{
			SpaceID:       l.SpaceID,
			SpacePublicID: sp.PublicID,
			SpaceType:     sp.Type,
			ConvoToSpace:  l.ID,
		})
	}
	return refs, nil
}

func (f *fakeStore) RemoveConvoFromSpaces(ctx context.Context, convoID int64) error {
	var kept []store.ConvoToSpace
	for _, l := range f.links {
		if l.ConvoID != convoID {
			kept = append(kept, l)
		}
	}
	f.links = kept
	return nil
}

func (f *fakeStore) InsertParticipant(ctx context.Context, p store.ConvoParticipant) (store.ConvoParticipant, error) {
	p.ID = f.id()
	f.participants = append(f.participants, p)
	return p, nil
}

func (f *fakeStore) InsertMemberParticipant(ctx context.Context, p store.ConvoParticipant) (store.ConvoParticipant, bool, error) {
	for _, existing := range f.participants {
		if existing.ConvoID == p.ConvoID && existing.OrgMemberID.Valid &&
			existing.OrgMemberID.Int64 == p.OrgMemberID.Int64 {
			return existing, false, nil
		}
	}
	p.ID = f.id()
	f.participants = append(f.participants, p)
	return p, true, nil
}

func (f *fakeStore) FindParticipantForMember(ctx context.Context, convoID, orgMemberID int64) (store.ConvoParticipant, error) {
	for _, p := range f.participants {
		if p.ConvoID == convoID && p.OrgMemberID.Valid && p.OrgMemberID.Int64 == orgMemberID {
			return p, nil
		}
	}
	for _, p := range f.participants {
		if p.ConvoID != convoID || !p.TeamID.Valid {
			continue
		}
		for _, m := range f.teamMembers[p.TeamID.Int64] {
			if m.ID == orgMemberID {
				return p, nil
			}
		}
	}
	return store.ConvoParticipant{}, sql.ErrNoRows
}

func (f *fakeStore) InsertParticipantTeamMember(ctx context.Context, convoParticipantID, teamParticipantID int64) error {
	f.teamMemberLinks = append(f.teamMemberLinks, [2]int64{convoParticipantID, teamParticipantID})
	return nil
}

func (f *fakeStore) GetConvoParticipants(ctx context.Context, convoID int64) ([]store.ConvoParticipantDetail, error) {
	var details []store.ConvoParticipantDetail
	for _, p := range f.participants {
		if p.ConvoID == convoID {
			details = append(details, store.ConvoParticipantDetail{ConvoParticipant: p})
		}
	}
	return details, nil
}

func (f *fakeStore) UpdateParticipantEmailIdentity(ctx context.Context, participantID, emailIdentityID int64) error {
	for i, p := range f.participants {
		if p.ID == participantID {
			f.participants[i].EmailIdentityID = sql.NullInt64{Int64: emailIdentityID, Valid: true}
		}
	}
	return nil
}

func (f *fakeStore) TouchParticipantLastRead(ctx context.Context, participantID int64, at time.Time) error {
	f.lastRead[participantID] = at
	return nil
}

func (f *fakeStore) InsertEntry(ctx context.Context, e store.ConvoEntry) (store.ConvoEntry, error) {
	e.ID = f.id()
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeStore) GetEntryByPublicID(ctx context.Context, orgID int64, publicID string) (store.ConvoEntry, error) {
	for _, e := range f.entries {
		if e.PublicID == publicID && e.OrgID == orgID {
			return e, nil
		}
	}
	return store.ConvoEntry{}, sql.ErrNoRows
}

func (f *fakeStore) GetConvoEntries(ctx context.Context, convoID int64) ([]store.ConvoEntry, error) {
	var entries []store.ConvoEntry
	for _, e := range f.entries {
		if e.ConvoID == convoID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (f *fakeStore) GetLatestEntry(ctx context.Context, convoID int64) (store.EntryPreview, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.ConvoID == convoID {
			return store.EntryPreview{
				PublicID:      e.PublicID,
				Type:          e.Type,
				Visibility:    e.Visibility,
				BodyPlainText: e.BodyPlainText,
				CreatedAt:     e.CreatedAt,
			}, nil
		}
	}
	return store.EntryPreview{}, sql.ErrNoRows
}

func (f *fakeStore) InsertEntryReply(ctx context.Context, entrySourceID, entryReplyID int64) error {
	f.entryReplies = append(f.entryReplies, [2]int64{entrySourceID, entryReplyID})
	return nil
}

func (f *fakeStore) UpsertConvoSeen(ctx context.Context, convoID, participantID, orgMemberID int64, seenAt time.Time) error {
	f.convoSeen++
	return nil
}

func (f *fakeStore) UpsertEntrySeen(ctx context.Context, entryID, participantID, orgMemberID int64, seenAt time.Time) error {
	f.entrySeen++
	return nil
}

func (f *fakeStore) InsertAttachment(ctx context.Context, a store.ConvoAttachment) (store.ConvoAttachment, error) {
	a.ID = f.id()
	f.attachments = append(f.attachments, a)
	return a, nil
}

func (f *fakeStore) GetPendingAttachment(ctx context.Context, orgID int64, publicID string) (store.PendingAttachment, error) {
	if pa, ok := f.pending[publicID]; ok {
		return pa, nil
	}
	return store.PendingAttachment{}, sql.ErrNoRows
}

func (f *fakeStore) PromotePendingAttachment(ctx context.Context, orgID int64, publicID string) error {
	delete(f.pending, publicID)
	f.promoted = append(f.promoted, publicID)
	return nil
}

func (f *fakeStore) GetAttachmentsForConvos(ctx context.Context, convoIDs []int64) ([]store.ConvoAttachment, error) {
	var attachments []store.ConvoAttachment
	for _, a := range f.attachments {
		for _, id := range convoIDs {
			if a.ConvoID == id {
				attachments = append(attachments, a)
			}
		}
	}
	return attachments, nil
}

func (f *fakeStore) GetConvoAttachments(ctx context.Context, convoID int64) ([]store.ConvoAttachment, error) {
	return f.GetAttachmentsForConvos(ctx, []int64{convoID})
}

func (f *fakeStore) GetEmailIdentityByPublicID(ctx context.Context, orgID int64, publicID string) (store.EmailIdentity, error) {
	if ei, ok := f.identitiesByPublicID[publicID]; ok {
		return ei, nil
	}
	return store.EmailIdentity{}, sql.ErrNoRows
}

func (f *fakeStore) GetAuthorizedSenders(ctx context.Context, identityID int64) ([]store.AuthorizedSender, error) {
	return f.authorizedSenders[identityID], nil
}

func (f *fakeStore) DeleteConvos(ctx context.Context, convoIDs []int64) error {
	f.deletedConvoIDs = append(f.deletedConvoIDs, convoIDs...)
	return nil
}
