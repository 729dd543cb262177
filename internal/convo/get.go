package convo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parley/core/internal/store"
)

type SpaceView struct {
	PublicID string `json:"publicId"`
	Type     string `json:"type"`
}

type SubjectView struct {
	PublicID string `json:"publicId"`
	Subject  string `json:"subject"`
}

type ParticipantView struct {
	PublicID      string `json:"publicId"`
	Kind          string `json:"kind"` // member, team, contact
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	Notifications string `json:"notifications"`
	Hidden        bool   `json:"hidden"`
}

type EntryView struct {
	PublicID        string          `json:"publicId"`
	Type            string          `json:"type"`
	Visibility      string          `json:"visibility"`
	AuthorPublicID  string          `json:"authorPublicId"`
	ReplyToPublicID string          `json:"replyToPublicId,omitempty"`
	Body            json.RawMessage `json:"body"`
	BodyPlainText   string          `json:"bodyPlainText"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type AttachmentView struct {
	PublicID string `json:"publicId"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
	Inline   bool   `json:"inline"`
	URL      string `json:"url,omitempty"`
}

type ConvoDetail struct {
	PublicID               string            `json:"publicId"`
	CreatedAt              time.Time         `json:"createdAt"`
	LastUpdatedAt          time.Time         `json:"lastUpdatedAt"`
	Subjects               []SubjectView     `json:"subjects"`
	Spaces                 []SpaceView       `json:"spaces"`
	Participants           []ParticipantView `json:"participants"`
	Entries                []EntryView       `json:"entries"`
	Attachments            []AttachmentView  `json:"attachments"`
	OwnParticipantPublicID string            `json:"ownParticipantPublicId,omitempty"`
}

// GetConvo loads the full conversation for a member. A conversation the
// member cannot see reports as missing rather than as denied.
func (s *Service) GetConvo(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID string) (ConvoDetail, error) {
	convo, err := s.store.GetConvoByPublicID(ctx, org.ID, convoPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return ConvoDetail{}, notFoundError("Conversation not found")
	}
	if err != nil {
		return ConvoDetail{}, fmt.Errorf("lookup convo: %w", err)
	}
	spaceRefs, err := s.store.GetConvoSpaces(ctx, convo.ID)
	if err != nil {
		return ConvoDetail{}, err
	}

	own, ownErr := s.store.FindParticipantForMember(ctx, convo.ID, actor.ID)
	if ownErr != nil && !errors.Is(ownErr, sql.ErrNoRows) {
		return ConvoDetail{}, fmt.Errorf("lookup own participant: %w", ownErr)
	}
	hasOwn := ownErr == nil

	if !hasOwn {
		allowed, err := s.canSeeThroughSpaces(ctx, spaceRefs, actor.ID)
		if err != nil {
			return ConvoDetail{}, err
		}
		if !allowed {
			return ConvoDetail{}, notFoundError("Conversation not found")
		}
	}

	participants, err := s.store.GetConvoParticipants(ctx, convo.ID)
	if err != nil {
		return ConvoDetail{}, err
	}
	entries, err := s.store.GetConvoEntries(ctx, convo.ID)
	if err != nil {
		return ConvoDetail{}, err
	}
	subjects, err := s.store.GetConvoSubjects(ctx, convo.ID)
	if err != nil {
		return ConvoDetail{}, err
	}
	attachments, err := s.store.GetConvoAttachments(ctx, convo.ID)
	if err != nil {
		return ConvoDetail{}, err
	}

	detail := ConvoDetail{
		PublicID:      convo.PublicID,
		CreatedAt:     convo.CreatedAt,
		LastUpdatedAt: convo.LastUpdatedAt,
	}
	for _, subject := range subjects {
		detail.Subjects = append(detail.Subjects, SubjectView{PublicID: subject.PublicID, Subject: subject.Subject})
	}
	for _, ref := range spaceRefs {
		detail.Spaces = append(detail.Spaces, SpaceView{PublicID: ref.SpacePublicID, Type: ref.SpaceType})
	}
	for _, p := range participants {
		detail.Participants = append(detail.Participants, participantView(p))
	}

	entryPublicIDs := make(map[int64]string, len(entries))
	authorPublicIDs := make(map[int64]string, len(participants))
	for _, e := range entries {
		entryPublicIDs[e.ID] = e.PublicID
	}
	for _, p := range participants {
		authorPublicIDs[p.ID] = p.PublicID
	}
	var ownID int64
	if hasOwn {
		ownID = own.ID
		detail.OwnParticipantPublicID = own.PublicID
	}
	for _, e := range entries {
		if !entryVisibleTo(e, ownID) {
			continue
		}
		view := EntryView{
			PublicID:       e.PublicID,
			Type:           e.Type,
			Visibility:     e.Visibility,
			AuthorPublicID: authorPublicIDs[e.AuthorID],
			Body:           e.Body,
			BodyPlainText:  e.BodyPlainText,
			CreatedAt:      e.CreatedAt,
		}
		if e.ReplyToID.Valid {
			view.ReplyToPublicID = entryPublicIDs[e.ReplyToID.Int64]
		}
		detail.Entries = append(detail.Entries, view)
	}
	for _, a := range attachments {
		view := AttachmentView{
			PublicID: a.PublicID,
			FileName: a.FileName,
			FileType: a.FileType,
			Size:     a.Size,
			Inline:   a.Inline,
		}
		if s.blobs != nil {
			view.URL = s.blobs.AttachmentURL(org.Shortcode, a.PublicID, a.FileName)
		}
		detail.Attachments = append(detail.Attachments, view)
	}

	if hasOwn {
		if err := s.store.TouchParticipantLastRead(ctx, own.ID, s.now()); err != nil {
			return ConvoDetail{}, err
		}
	}
	return detail, nil
}

// ConvoSummary is the lightweight projection for list views.
type ConvoSummary struct {
	PublicID               string              `json:"publicId"`
	LastUpdatedAt          time.Time           `json:"lastUpdatedAt"`
	Subject                string              `json:"subject"`
	Spaces                 []SpaceView         `json:"spaces"`
	LatestEntry            *store.EntryPreview `json:"latestEntry,omitempty"`
	OwnParticipantPublicID string              `json:"ownParticipantPublicId,omitempty"`
}

// GetConvoForMember returns the trimmed view of one conversation with its
// latest entry preview.
func (s *Service) GetConvoForMember(ctx context.Context, org store.Org, actor store.OrgMember, convoPublicID string) (ConvoSummary, error) {
	convo, err := s.store.GetConvoByPublicID(ctx, org.ID, convoPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return ConvoSummary{}, notFoundError("Conversation not found")
	}
	if err != nil {
		return ConvoSummary{}, fmt.Errorf("lookup convo: %w", err)
	}
	spaceRefs, err := s.store.GetConvoSpaces(ctx, convo.ID)
	if err != nil {
		return ConvoSummary{}, err
	}

	own, ownErr := s.store.FindParticipantForMember(ctx, convo.ID, actor.ID)
	if ownErr != nil && !errors.Is(ownErr, sql.ErrNoRows) {
		return ConvoSummary{}, fmt.Errorf("lookup own participant: %w", ownErr)
	}
	hasOwn := ownErr == nil
	if !hasOwn {
		allowed, err := s.canSeeThroughSpaces(ctx, spaceRefs, actor.ID)
		if err != nil {
			return ConvoSummary{}, err
		}
		if !allowed {
			return ConvoSummary{}, notFoundError("Conversation not found")
		}
	}

	summary := ConvoSummary{PublicID: convo.PublicID, LastUpdatedAt: convo.LastUpdatedAt}
	for _, ref := range spaceRefs {
		summary.Spaces = append(summary.Spaces, SpaceView{PublicID: ref.SpacePublicID, Type: ref.SpaceType})
	}
	subjects, err := s.store.GetConvoSubjects(ctx, convo.ID)
	if err != nil {
		return ConvoSummary{}, err
	}
	if len(subjects) > 0 {
		summary.Subject = subjects[len(subjects)-1].Subject
	}
	preview, err := s.store.GetLatestEntry(ctx, convo.ID)
	if err == nil {
		summary.LatestEntry = &preview
	} else if !errors.Is(err, sql.ErrNoRows) {
		return ConvoSummary{}, fmt.Errorf("lookup latest entry: %w", err)
	}

	if hasOwn {
		summary.OwnParticipantPublicID = own.PublicID
		if err := s.store.TouchParticipantLastRead(ctx, own.ID, s.now()); err != nil {
			return ConvoSummary{}, err
		}
	}
	return summary, nil
}

// canSeeThroughSpaces reports whether a non-participant can see the
// conversation via one of the spaces it is filed in.
func (s *Service) canSeeThroughSpaces(ctx context.Context, refs []store.ConvoSpaceRef, orgMemberID int64) (bool, error) {
	for _, ref := range refs {
		if ref.SpaceType == "open" {
			return true, nil
		}
		ok, err := s.store.HasSpaceMember(ctx, ref.SpaceID, orgMemberID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func participantView(p store.ConvoParticipantDetail) ParticipantView {
	view := ParticipantView{
		PublicID:      p.PublicID,
		Role:          p.Role,
		Notifications: p.Notifications,
		Hidden:        p.Hidden,
	}
	switch {
	case p.OrgMemberID.Valid:
		view.Kind = "member"
		view.Name = p.OrgMemberName.String
	case p.TeamID.Valid:
		view.Kind = "team"
		view.Name = p.TeamName.String
	case p.ContactID.Valid:
		view.Kind = "contact"
		view.Name = p.ContactName.String
		if p.ContactUsername.Valid && p.ContactDomain.Valid {
			view.Email = p.ContactUsername.String + "@" + p.ContactDomain.String
		}
	}
	return view
}

// entryVisibleTo applies entry visibility for an internal viewer. Private
// entries show only to their author; every other level is visible to org
// members.
func entryVisibleTo(e store.ConvoEntry, viewerParticipantID int64) bool {
	if e.Visibility == "private" {
		return viewerParticipantID != 0 && e.AuthorID == viewerParticipantID
	}
	return true
}
