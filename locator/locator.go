// Package locator models the URIs that name card images and card metadata.
//
// A Locator is either content-addressed (a CID, optionally with a sub-path)
// or an inline, self-describing data payload. Callers branch on Kind rather
// than inspecting string prefixes.
package locator

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/nftcard/cidutil"
)

// DefaultGatewayBase is the public gateway used when none is configured.
const DefaultGatewayBase = "https://ipfs.io/ipfs"

// Scheme is the content-addressing URI scheme.
const Scheme = "ipfs"

type Kind uint8

const (
	KindInvalid Kind = iota
	KindContentAddressed
	KindInlineData
)

func (k Kind) String() string {
	switch k {
	case KindContentAddressed:
		return "content-addressed"
	case KindInlineData:
		return "inline-data"
	default:
		return "invalid"
	}
}

var (
	ErrEmpty       = errors.New("locator: empty")
	ErrUnsupported = errors.New("locator: unsupported form")
	ErrMalformed   = errors.New("locator: malformed")
)

// Locator is an immutable tagged union. The zero value is invalid.
type Locator struct {
	kind Kind

	id   cid.Cid
	path string

	data     []byte
	mimeType string
}

// ContentAddressed returns a locator for id. An optional sub-path (for
// directory CIDs) may be supplied without a leading slash.
func ContentAddressed(id cid.Cid, subpath ...string) Locator {
	p := strings.Trim(strings.Join(subpath, "/"), "/")
	return Locator{kind: KindContentAddressed, id: id, path: p}
}

// InlineData returns a self-contained locator carrying data.
func InlineData(data []byte, mimeType string) Locator {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return Locator{kind: KindInlineData, data: append([]byte(nil), data...), mimeType: mimeType}
}

func (l Locator) Kind() Kind    { return l.kind }
func (l Locator) IsValid() bool { return l.kind != KindInvalid }

// CID returns the content identifier, or cid.Undef for inline locators.
func (l Locator) CID() cid.Cid {
	if l.kind != KindContentAddressed {
		return cid.Undef
	}
	return l.id
}

// Path is the optional sub-path below the CID.
func (l Locator) Path() string { return l.path }

// Data returns a copy of the inline payload.
func (l Locator) Data() []byte {
	if l.kind != KindInlineData {
		return nil
	}
	return append([]byte(nil), l.data...)
}

func (l Locator) MIMEType() string { return l.mimeType }

// String renders the canonical form: ipfs://<cid>[/path] or a base64 data URI.
func (l Locator) String() string {
	switch l.kind {
	case KindContentAddressed:
		s := Scheme + "://" + l.id.String()
		if l.path != "" {
			s += "/" + l.path
		}
		return s
	case KindInlineData:
		return "data:" + l.mimeType + ";base64," + base64.StdEncoding.EncodeToString(l.data)
	default:
		return ""
	}
}

// GatewayURL renders a fetchable URL. Content-addressed locators become
// <base>/<cid>[/path]; inline locators render as their data URI.
func (l Locator) GatewayURL(base string) string {
	switch l.kind {
	case KindContentAddressed:
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base == "" {
			base = DefaultGatewayBase
		}
		s := base + "/" + l.id.String()
		if l.path != "" {
			s += "/" + l.path
		}
		return s
	case KindInlineData:
		return l.String()
	default:
		return ""
	}
}

// Equal reports whether two locators name the same content.
func (l Locator) Equal(o Locator) bool {
	if l.kind != o.kind {
		return false
	}
	switch l.kind {
	case KindContentAddressed:
		return l.id.Equals(o.id) && l.path == o.path
	case KindInlineData:
		return l.mimeType == o.mimeType && string(l.data) == string(o.data)
	default:
		return true
	}
}

// Parse accepts every locator form seen in card metadata and on-chain token URIs:
//
//	ipfs://<cid>[/path]
//	http(s)://<host>/ipfs/<cid>[/path]
//	http(s)://<host>/<cid>[/path]
//	<cid>
//	data:<mime>[;base64],<payload>
//
// URLs that do not carry a CID return ErrUnsupported.
func Parse(raw string) (Locator, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Locator{}, ErrEmpty
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return parseDataURI(s)
	case strings.HasPrefix(lower, Scheme+"://"):
		return parseCIDPath(s[len(Scheme)+3:])
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return parseGatewayURL(s)
	}
	if id, err := cidutil.Decode(s); err == nil {
		return ContentAddressed(id), nil
	}
	return Locator{}, fmt.Errorf("%w: %q", ErrUnsupported, truncate(s))
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(raw string) Locator {
	l, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return l
}

// Normalize rewrites raw into a fetchable URL: content-addressed forms are
// re-rooted on gatewayBase, inline data URIs pass through unchanged.
func Normalize(raw, gatewayBase string) (string, error) {
	l, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return l.GatewayURL(gatewayBase), nil
}

func parseCIDPath(rest string) (Locator, error) {
	rest = strings.TrimPrefix(rest, "ipfs/")
	head, tail, _ := strings.Cut(rest, "/")
	id, err := cidutil.Decode(head)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: bad cid: %v", ErrMalformed, err)
	}
	return ContentAddressed(id, tail), nil
}

func parseGatewayURL(s string) (Locator, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segs {
		if seg == "" || seg == "ipfs" {
			continue
		}
		id, err := cidutil.Decode(seg)
		if err != nil {
			continue
		}
		return ContentAddressed(id, segs[i+1:]...), nil
	}
	return Locator{}, fmt.Errorf("%w: no cid in %q", ErrUnsupported, truncate(s))
}

func parseDataURI(s string) (Locator, error) {
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return Locator{}, fmt.Errorf("%w: data uri without payload", ErrMalformed)
	}
	params := strings.Split(header, ";")
	mimeType := strings.TrimSpace(params[0])
	if mimeType == "" {
		mimeType = "text/plain;charset=US-ASCII"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Locator{}, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
		}
		return InlineData(data, mimeType), nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return InlineData([]byte(data), mimeType), nil
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
