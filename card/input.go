package card

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxDisplayNameLen = 50
	MaxBioLen         = 500
)

// Blob is a user-supplied binary payload such as an avatar image.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Input holds the fields of the mint form. It is discarded once publication
// succeeds or fails.
type Input struct {
	DisplayName string
	Bio         string
	Avatar      *Blob
}

// HasAvatar reports whether a non-empty avatar was supplied.
func (in Input) HasAvatar() bool {
	return in.Avatar != nil && len(in.Avatar.Data) > 0
}

// Validate checks required fields and length limits. Lengths are counted in runes.
func (in Input) Validate() error {
	name := strings.TrimSpace(in.DisplayName)
	bio := strings.TrimSpace(in.Bio)
	switch {
	case name == "":
		return NewError(KindValidation, "validate", "display name is required")
	case bio == "":
		return NewError(KindValidation, "validate", "bio is required")
	case utf8.RuneCountInString(in.DisplayName) > MaxDisplayNameLen:
		return NewError(KindValidation, "validate", fmt.Sprintf("display name exceeds %d characters", MaxDisplayNameLen))
	case utf8.RuneCountInString(in.Bio) > MaxBioLen:
		return NewError(KindValidation, "validate", fmt.Sprintf("bio exceeds %d characters", MaxBioLen))
	}
	return nil
}
