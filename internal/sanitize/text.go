package sanitize

import (
	"strings"
	"unicode"
)

const (
	// MaxLines is the number of lines kept in a sanitized string. Some
	// notification daemons spin at 100% CPU when asked to lay out
	// thousands of lines.
	MaxLines = 500

	// MaxLineRunes is the longest line Text will emit before forcing a
	// break.
	MaxLineRunes = 1000

	// MaxAppNameRunes caps a forwarded application name.
	MaxAppNameRunes = 128
)

// safeForDisplay reports whether a rune may be shown to the user verbatim.
// Graphic runes only: controls, format characters (including bidi
// overrides), surrogates, private use, and unassigned code points are all
// rejected. Tab is handled separately by Text.
func safeForDisplay(r rune) bool {
	return unicode.IsGraphic(r)
}

// Text scrubs an untrusted display string (summary, body, action label).
//
// Unsafe runes become U+FFFD. "\r\n" and a lone "\r" become "\n". Lines
// longer than MaxLineRunes are forcibly broken, and output stops after
// MaxLines lines.
func Text(untrusted string) string {
	var b strings.Builder
	b.Grow(len(untrusted))
	runes := []rune(untrusted)
	counter := 0
	lines := 0
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case safeForDisplay(c) || c == '\t':
			counter++
			b.WriteRune(c)
		case c == '\n':
			counter = 0
			lines++
			b.WriteRune('\n')
		case c == '\r':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				// Collapse CRLF: the LF is handled next iteration.
				continue
			}
			counter = 0
			lines++
			b.WriteRune('\n')
		default:
			counter++
			b.WriteRune(unicode.ReplacementChar)
		}
		if counter >= MaxLineRunes {
			b.WriteRune('\n')
			counter = 0
			lines++
		}
		if lines >= MaxLines {
			break
		}
	}
	return b.String()
}

// AppName scrubs an untrusted application name: sanitized like Text, then
// squashed to a single line and capped at MaxAppNameRunes.
func AppName(untrusted string) string {
	s := Text(untrusted)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > MaxAppNameRunes {
		return string(runes[:MaxAppNameRunes])
	}
	return s
}

var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// EscapeMarkup escapes XML entities so a body renders literally on daemons
// that advertise body-markup. Applied after Text.
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}
