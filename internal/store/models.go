package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

type Org struct {
	ID        int64
	PublicID  string
	Shortcode string
	Name      string
}

type OrgMember struct {
	ID              int64
	PublicID        string
	OrgID           int64
	DisplayName     string
	PersonalSpaceID sql.NullInt64
}

type Team struct {
	ID                     int64
	PublicID               string
	OrgID                  int64
	Name                   string
	DefaultSpaceID         sql.NullInt64
	DefaultEmailIdentityID sql.NullInt64
}

type Contact struct {
	ID             int64
	PublicID       string
	OrgID          int64
	ReputationID   sql.NullInt64
	Name           string
	EmailUsername  string
	EmailDomain    string
	Type           string
	ScreenerStatus string
}

type ContactReputation struct {
	ID           int64
	EmailAddress string
}

type Space struct {
	ID            int64
	PublicID      string
	OrgID         int64
	Shortcode     string
	Name          string
	Type          string
	PersonalSpace bool
}

// SpacePermissions mirrors the per-member capability flags on a space
// membership row.
type SpacePermissions struct {
	CanCreate              bool
	CanRead                bool
	CanComment             bool
	CanReply               bool
	CanDelete              bool
	CanChangeWorkflow      bool
	CanSetWorkflowToClosed bool
	CanAddTags             bool
	CanMoveToAnotherSpace  bool
	CanAddToAnotherSpace   bool
	CanMergeConvos         bool
	CanAddParticipants     bool
}

type SpaceMember struct {
	ID          int64
	PublicID    string
	SpaceID     int64
	OrgMemberID sql.NullInt64
	TeamID      sql.NullInt64
	Role        string
	Permissions SpacePermissions
}

type SpaceWorkflow struct {
	ID          int64
	PublicID    string
	SpaceID     int64
	Name        string
	Color       string
	Icon        string
	Description string
	Type        string
	Order       int
	Disabled    bool
}

type Domain struct {
	ID          int64
	OrgID       int64
	Domain      string
	Status      string
	SendingMode string
}

type EmailIdentity struct {
	ID             int64
	PublicID       string
	OrgID          int64
	Username       string
	DomainName     string
	DisplayName    string
	SendingEnabled bool
	IsCatchAll     bool
	// Joined from the owning custom domain; both empty for identities on
	// provider-managed domains.
	DomainStatus      sql.NullString
	DomainSendingMode sql.NullString
}

// AuthorizedSender is one grant row on an email identity. Exactly one of the
// three references is set.
type AuthorizedSender struct {
	OrgMemberID sql.NullInt64
	TeamID      sql.NullInt64
	SpaceID     sql.NullInt64
}

type Convo struct {
	ID            int64
	PublicID      string
	OrgID         int64
	LastUpdatedAt time.Time
	CreatedAt     time.Time
}

type ConvoSubject struct {
	ID       int64
	PublicID string
	ConvoID  int64
	Subject  string
}

type ConvoToSpace struct {
	ID       int64
	PublicID string
	ConvoID  int64
	SpaceID  int64
}

type ConvoParticipant struct {
	ID              int64
	PublicID        string
	OrgID           int64
	ConvoID         int64
	OrgMemberID     sql.NullInt64
	TeamID          sql.NullInt64
	ContactID       sql.NullInt64
	EmailIdentityID sql.NullInt64
	Role            string
	Notifications   string
	Active          bool
	Hidden          bool
	LastReadAt      sql.NullTime
}

type ConvoEntry struct {
	ID            int64
	PublicID      string
	OrgID         int64
	ConvoID       int64
	AuthorID      int64
	SubjectID     sql.NullInt64
	ReplyToID     sql.NullInt64
	Type          string
	Visibility    string
	Body          json.RawMessage
	BodyPlainText string
	Metadata      json.RawMessage
	CreatedAt     time.Time
}

type ConvoAttachment struct {
	ID            int64
	PublicID      string
	OrgID         int64
	ConvoID       int64
	ConvoEntryID  sql.NullInt64
	ParticipantID int64
	FileName      string
	FileType      string
	Size          int64
	Inline        bool
	Public        bool
}

type PendingAttachment struct {
	ID          int64
	PublicID    string
	OrgID       int64
	OrgPublicID string
	FileName    string
}

// ConvoParticipantDetail is a participant row joined with the public identity
// of whichever principal it references.
type ConvoParticipantDetail struct {
	ConvoParticipant
	OrgMemberPublicID sql.NullString
	OrgMemberName     sql.NullString
	TeamPublicID      sql.NullString
	TeamName          sql.NullString
	ContactPublicID   sql.NullString
	ContactName       sql.NullString
	ContactUsername   sql.NullString
	ContactDomain     sql.NullString
}

// ConvoSpaceRef is the minimal space projection callers need when reasoning
// about where a conversation is filed.
type ConvoSpaceRef struct {
	SpaceID       int64
	SpacePublicID string
	SpaceType     string
	ConvoToSpace  int64
}

// EntryPreview is the trimmed latest-entry projection used by list views.
type EntryPreview struct {
	PublicID      string
	Type          string
	Visibility    string
	BodyPlainText string
	CreatedAt     time.Time
}
