package markup

import "strings"

// Bullet replaces list markers in reflowed output.
const Bullet = "•"

// Reflow formats multi-paragraph text. Paragraphs are separated by a blank
// line. A paragraph with at least one line starting with '-' or '*' is a
// list: marked lines become bullets, other lines are kept as continuation
// lines. Any other paragraph is formatted as a single unit.
func Reflow(s string) string {
	paragraphs := strings.Split(s, "\n\n")
	for i, p := range paragraphs {
		paragraphs[i] = reflowParagraph(p)
	}
	return strings.Join(paragraphs, "\n\n")
}

func reflowParagraph(p string) string {
	ls := lines(p)
	list := false
	for _, l := range ls {
		if isListItem(l) {
			list = true
			break
		}
	}
	if !list {
		return FormatLine(p)
	}

	out := make([]string, 0, len(ls))
	for _, l := range ls {
		if !isListItem(l) {
			out = append(out, FormatLine(l))
			continue
		}
		item := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(l), "-*"))
		out = append(out, Bullet+" "+FormatLine(item))
	}
	return strings.Join(out, "\n")
}

func isListItem(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "-") || strings.HasPrefix(t, "*")
}

// lines splits on '\n', dropping a trailing '\r' per line and the empty
// element after a final newline.
func lines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}
