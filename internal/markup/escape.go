// Package markup converts free-form answer text into Telegram MarkdownV2.
package markup

import "strings"

// Emphasis delimiters. They are reserved in the full set only.
const (
	boldMarker   = '*'
	italicMarker = '_'
	codeMarker   = '`'
)

const textReserved = "[]()~>#+-=|{}.!'\"?$&,:;\\"

const allReserved = "_*`" + textReserved

// Escape escapes every MarkdownV2 reserved character, emphasis delimiters
// included. Use it for text that must never produce structure.
func Escape(s string) string {
	return escapeSet(s, allReserved)
}

// EscapeText escapes reserved characters except the emphasis delimiters,
// whose role has already been decided by the caller.
func EscapeText(s string) string {
	return escapeSet(s, textReserved)
}

func escapeSet(s, reserved string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for _, r := range s {
		if strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
