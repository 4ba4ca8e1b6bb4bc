// Package sanitize turns arbitrary titles into names that are safe on disk
// and inside a Content-Disposition header.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxLen      = 140
	DefaultName = "download"
)

func hostile(r rune) bool {
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return unicode.IsControl(r)
}

// Sanitize never fails: empty or fully stripped input becomes DefaultName.
func Sanitize(name string) string {
	if name == "" {
		return DefaultName
	}
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "_")
	}

	var b strings.Builder
	b.Grow(len(name))
	space := false
	for _, r := range name {
		switch {
		case hostile(r):
			b.WriteRune('_')
			space = false
		case unicode.IsSpace(r):
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}

	s := strings.TrimSpace(b.String())
	if utf8.RuneCountInString(s) > MaxLen {
		s = strings.TrimSpace(string([]rune(s)[:MaxLen]))
	}
	if s == "" {
		return DefaultName
	}
	return s
}

// ASCII is Sanitize with every non-ASCII rune replaced by '_', for the plain
// filename attribute that older clients read.
func ASCII(name string) string {
	s := Sanitize(name)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > unicode.MaxASCII {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EncodeRFC5987 percent-encodes name for a filename* extended parameter.
// Only ALPHA, DIGIT and "-_.!~" pass through; hex digits are uppercase.
func EncodeRFC5987(name string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(name) * 3)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~':
		return true
	}
	return false
}

// ContentDisposition builds an attachment header value carrying both the
// ASCII fallback and the UTF-8 original.
func ContentDisposition(name string) string {
	return `attachment; filename="` + ASCII(name) + `"; filename*=UTF-8''` + EncodeRFC5987(name)
}
