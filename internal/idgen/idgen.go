// Package idgen issues and validates typed public identifiers. Every
// externally visible entity carries one, shaped "<prefix>_<ulid>", so an id
// can never be mistaken for one of a different entity category.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

type Kind string

const (
	KindOrg              Kind = "org"
	KindOrgMember        Kind = "om"
	KindTeam             Kind = "tm"
	KindContact          Kind = "k"
	KindSpace            Kind = "sp"
	KindSpaceMember      Kind = "spm"
	KindSpaceWorkflow    Kind = "sw"
	KindConvo            Kind = "c"
	KindConvoToSpace     Kind = "cts"
	KindConvoWorkflow    Kind = "cw"
	KindConvoSubject     Kind = "cs"
	KindConvoParticipant Kind = "cp"
	KindConvoEntry       Kind = "ce"
	KindConvoAttachment  Kind = "att"
	KindEmailIdentity    Kind = "ei"
)

const ulidLen = 26

// New returns a fresh public id for the given entity kind.
func New(kind Kind) string {
	id := ulid.MustNew(ulid.Now(), rand.Reader)
	return string(kind) + "_" + strings.ToLower(id.String())
}

// Validate reports whether raw is a well-formed public id of the given kind.
// Inputs arrive from callers and must never be trusted as the wrong category.
func Validate(kind Kind, raw string) error {
	prefix := string(kind) + "_"
	if !strings.HasPrefix(raw, prefix) {
		return fmt.Errorf("public id %q is not a %s id", raw, kind)
	}
	body := strings.TrimPrefix(raw, prefix)
	if len(body) != ulidLen {
		return fmt.Errorf("public id %q has malformed body", raw)
	}
	if _, err := ulid.ParseStrict(strings.ToUpper(body)); err != nil {
		return fmt.Errorf("public id %q has malformed body", raw)
	}
	return nil
}

// ValidateAll validates a batch of ids of one kind, failing on the first bad one.
func ValidateAll(kind Kind, raws []string) error {
	for _, raw := range raws {
		if err := Validate(kind, raw); err != nil {
			return err
		}
	}
	return nil
}
