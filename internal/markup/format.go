package markup

import "strings"

type format int

const (
	formatNone format = iota
	formatBold
	formatItalic
	formatCode
)

func formatOf(r rune) format {
	switch r {
	case boldMarker:
		return formatBold
	case italicMarker:
		return formatItalic
	case codeMarker:
		return formatCode
	}
	return formatNone
}

// FormatLine escapes s for MarkdownV2 while keeping balanced emphasis runs
// (*bold*, _italic_, `code`) as live markup. Only one span can be open at a
// time. A span closes only on a run of the same marker and length as the
// one that opened it; any other marker run inside an open span is escaped.
//
// A run that opens a span which is never closed is escaped at the end, so
// the result never carries a dangling entity.
func FormatLine(s string) string {
	var (
		out     strings.Builder
		pending strings.Builder
		open    = formatNone
		openAt  = -1 // output offset of the run that opened the current span
		openRun string
	)
	out.Grow(len(s) * 2)

	flush := func() {
		if pending.Len() > 0 {
			out.WriteString(EscapeText(pending.String()))
			pending.Reset()
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		kind := formatOf(r)
		if kind == formatNone {
			pending.WriteRune(r)
			continue
		}

		n := 1
		for i+1 < len(runes) && runes[i+1] == r {
			n++
			i++
		}
		run := strings.Repeat(string(r), n)
		flush()

		switch open {
		case formatNone:
			open = kind
			openAt = out.Len()
			openRun = run
			out.WriteString(run)
		case kind:
			if n != len([]rune(openRun)) {
				out.WriteString(escapeRun(r, n))
				continue
			}
			open = formatNone
			openAt = -1
			out.WriteString(run)
		default:
			out.WriteString(escapeRun(r, n))
		}
	}
	flush()

	if open == formatNone {
		return out.String()
	}
	// Unterminated span: rewrite the opening run as literal characters.
	res := out.String()
	r := []rune(openRun)[0]
	return res[:openAt] + escapeRun(r, len([]rune(openRun))) + res[openAt+len(openRun):]
}

func escapeRun(r rune, n int) string {
	return strings.Repeat("\\"+string(r), n)
}
