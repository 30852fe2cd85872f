package export

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"marginalia/api/internal/logging"
)

const placeholder = '?'

// Sanitizer prepares user text for drawing with one face. It remembers which
// runes it already reported, so it belongs to a single render.
type Sanitizer struct {
	face     Face
	logger   *slog.Logger
	reported map[rune]bool
	count    int
}

func NewSanitizer(face Face, logger *slog.Logger) *Sanitizer {
	return &Sanitizer{face: face, logger: logging.OrDefault(logger), reported: map[rune]bool{}}
}

// Clean returns s in NFC with control characters other than newline and tab
// removed and every rune the face cannot draw replaced by '?'.
func (s *Sanitizer) Clean(text string) string {
	if text == "" {
		return ""
	}
	text = norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for i, r := range text {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == utf8.RuneError && isInvalidAt(text, i):
			s.substitute(r)
			b.WriteRune(placeholder)
		case unicode.IsControl(r):
		case s.face.Covers(r):
			b.WriteRune(r)
		default:
			s.substitute(r)
			b.WriteRune(placeholder)
		}
	}
	return b.String()
}

// Substitutions is the number of runes replaced so far.
func (s *Sanitizer) Substitutions() int {
	return s.count
}

func (s *Sanitizer) substitute(r rune) {
	s.count++
	if s.reported[r] {
		return
	}
	s.reported[r] = true
	s.logger.Warn("glyph not covered by export font, substituted",
		"rune", string(r),
		"codepoint", fmt.Sprintf("U+%04X", r),
		"font", s.face.Source,
	)
}

func isInvalidAt(s string, i int) bool {
	r, size := utf8.DecodeRuneInString(s[i:])
	return r == utf8.RuneError && size <= 1
}
