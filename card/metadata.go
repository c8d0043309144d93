package card

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Trait names written into every published card, in this order.
const (
	TraitCreator   = "creator"
	TraitCreatedAt = "created_at"
	TraitType      = "type"

	// TypeTag is the fixed value of the TraitType attribute.
	TypeTag = "NFT Business Card"

	// TimestampLayout is ISO-8601 in UTC with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Attribute is one ERC-721 style trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Metadata is the off-chain record referenced by a token URI.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
	ExternalURL string      `json:"external_url"`
	Creator     string      `json:"creator"`
}

// CardName is the metadata name derived from a display name.
func CardName(displayName string) string {
	return displayName + "'s card"
}

// StandardAttributes returns the three attributes of a freshly published card.
func StandardAttributes(displayName string, createdAt time.Time) []Attribute {
	return []Attribute{
		{TraitType: TraitCreator, Value: displayName},
		{TraitType: TraitCreatedAt, Value: createdAt.UTC().Format(TimestampLayout)},
		{TraitType: TraitType, Value: TypeTag},
	}
}

// Attribute returns the value of the named trait.
func (m Metadata) Attribute(traitType string) (string, bool) {
	for _, a := range m.Attributes {
		if a.TraitType == traitType {
			return a.Value, true
		}
	}
	return "", false
}

// CanonicalJSON encodes m deterministically: struct field order, compact,
// no HTML escaping and no trailing newline. Byte-identical metadata yields
// an identical CID.
func (m Metadata) CanonicalJSON() ([]byte, error) {
	if m.Attributes == nil {
		m.Attributes = []Attribute{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParseMetadata decodes metadata JSON. Unknown fields are ignored; a body
// that is not a JSON object is rejected.
func ParseMetadata(b []byte) (Metadata, error) {
	var m Metadata
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Metadata{}, errors.New("metadata is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}
