// Package avatar synthesizes the SVG images used when a card has no uploaded
// avatar, and the neutral glyph shown when a card image fails to load.
package avatar

import (
	"bytes"
	"encoding/xml"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"xdao.co/nftcard/locator"
)

// Size is the edge length of generated avatars in pixels.
const Size = 200

const MIMEType = "image/svg+xml"

// Palette holds the default avatar background colors.
var Palette = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD"}

const (
	fallbackBackground = "#ddd"
	fallbackForeground = "#999"
)

var svgTemplate = template.Must(template.New("avatar").Funcs(template.FuncMap{"xml": escape}).Parse(
	`<svg width="{{.Size}}" height="{{.Size}}" xmlns="http://www.w3.org/2000/svg">` +
		`<rect width="{{.Size}}" height="{{.Size}}" fill="{{.Background}}"/>` +
		`<text x="{{.CenterX}}" y="{{.BaselineY}}" font-family="Arial, sans-serif" font-size="60"` +
		`{{if .Bold}} font-weight="bold"{{end}} text-anchor="middle" fill="{{.Foreground}}">{{xml .Text}}</text>` +
		`</svg>`))

type glyph struct {
	Size       int
	CenterX    int
	BaselineY  int
	Background string
	Foreground string
	Text       string
	Bold       bool
}

// Initials returns up to two uppercase initials, one per whitespace-separated token.
func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, tok := range strings.Fields(name) {
		if n == 2 {
			break
		}
		r, _ := utf8.DecodeRuneInString(tok)
		b.WriteString(strings.ToUpper(string(r)))
		n++
	}
	return b.String()
}

// Background picks the palette color for name: Palette[runeCount(name) mod len(Palette)].
func Background(name string) string {
	return Palette[utf8.RuneCountInString(name)%len(Palette)]
}

// SVG renders the default avatar for name.
func SVG(name string) []byte {
	return render(glyph{
		Background: Background(name),
		Foreground: "white",
		Text:       Initials(name),
		Bold:       true,
	})
}

// Default returns the default avatar for name as an inline locator. It never
// touches the network.
func Default(name string) locator.Locator {
	return locator.InlineData(SVG(name), MIMEType)
}

// FallbackSVG renders the glyph used when a card image cannot be displayed:
// the first character of name on a neutral background, or "?" when name is blank.
func FallbackSVG(name string) []byte {
	text := "?"
	if s := strings.TrimLeftFunc(name, unicode.IsSpace); s != "" {
		r, _ := utf8.DecodeRuneInString(s)
		text = string(r)
	}
	return render(glyph{
		Background: fallbackBackground,
		Foreground: fallbackForeground,
		Text:       text,
	})
}

// Fallback returns FallbackSVG(name) as an inline locator.
func Fallback(name string) locator.Locator {
	return locator.InlineData(FallbackSVG(name), MIMEType)
}

func render(g glyph) []byte {
	g.Size = Size
	g.CenterX = Size / 2
	g.BaselineY = Size * 3 / 5
	var buf bytes.Buffer
	// The template and its inputs are fixed; Execute cannot fail on a bytes.Buffer.
	_ = svgTemplate.Execute(&buf, g)
	return buf.Bytes()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
