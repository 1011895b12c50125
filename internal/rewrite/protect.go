package rewrite

import (
	"strings"
	"unicode"
)

// Protect replaces every fragile span in text with a placeholder token,
// storing originals in store. Spans are protected in a fixed order: fenced
// code blocks, inline code spans, link destinations, then autolinks and bare
// URLs. Earlier passes hide their content from later ones.
func Protect(text string, store *TokenStore) string {
	text = protectFences(text, store)
	text = protectInlineCode(text, store)
	text = protectLinkDestinations(text, store)
	text = protectURLs(text, store)
	return text
}

// protectFences replaces whole fenced code blocks (``` or ~~~, any run
// length) including their fence lines.
func protectFences(text string, store *TokenStore) string {
	lines := strings.Split(text, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		marker := fenceMarker(lines[i])
		if marker == "" {
			out = append(out, lines[i])
			i++
			continue
		}
		j := i + 1
		for j < len(lines) && !fenceCloses(lines[j], marker) {
			j++
		}
		if j < len(lines) {
			j++ // include the closing fence
		}
		block := strings.Join(lines[i:j], "\n")
		out = append(out, store.Add(block))
		i = j
	}
	return strings.Join(out, "\n")
}

func fenceMarker(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	for _, c := range []byte{'`', '~'} {
		n := 0
		for n < len(trimmed) && trimmed[n] == c {
			n++
		}
		if n >= 3 {
			return trimmed[:n]
		}
	}
	return ""
}

func fenceCloses(line, marker string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), marker)
}

// protectInlineCode replaces inline code spans. A span opens with a backtick
// run and closes at the next run of the same length.
func protectInlineCode(text string, store *TokenStore) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		if text[i] != '`' {
			out.WriteByte(text[i])
			i++
			continue
		}
		n := 0
		for i+n < len(text) && text[i+n] == '`' {
			n++
		}
		open := text[i : i+n]
		close := strings.Index(text[i+n:], open)
		if close < 0 {
			out.WriteString(open)
			i += n
			continue
		}
		end := i + n + close + n
		out.WriteString(store.Add(text[i:end]))
		i = end
	}
	return out.String()
}

// protectLinkDestinations replaces the destination inside ](…) with a token,
// matching balanced parentheses.
func protectLinkDestinations(text string, store *TokenStore) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], "](")
		if idx < 0 {
			out.WriteString(text[i:])
			break
		}
		start := i + idx + 2
		out.WriteString(text[i : i+idx+2])

		depth := 1
		j := start
		for j < len(text) && depth > 0 {
			switch text[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth > 0 {
				j++
			}
		}
		if depth != 0 {
			// Unterminated destination; leave the rest untouched.
			out.WriteString(text[start:])
			return out.String()
		}
		if j > start {
			out.WriteString(store.Add(text[start:j]))
		}
		out.WriteByte(')')
		i = j + 1
	}
	return out.String()
}

// protectURLs replaces <http…> autolinks and bare http(s) URLs running to
// the next whitespace.
func protectURLs(text string, store *TokenStore) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		if text[i] == '<' && hasHTTPPrefix(text[i+1:]) {
			end := strings.IndexByte(text[i:], '>')
			if end > 0 {
				out.WriteString(store.Add(text[i : i+end+1]))
				i += end + 1
				continue
			}
		}
		if hasHTTPPrefix(text[i:]) {
			j := i
			for j < len(text) && !unicode.IsSpace(rune(text[j])) {
				j++
			}
			out.WriteString(store.Add(text[i:j]))
			i = j
			continue
		}
		out.WriteByte(text[i])
		i++
	}
	return out.String()
}

func hasHTTPPrefix(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// SplitSections splits a body at level-2 headings, ignoring heading lines
// inside fenced code blocks. Each section keeps its heading line.
func SplitSections(body string) []string {
	lines := strings.Split(body, "\n")
	var sections []string
	var current []string
	inFence := false
	marker := ""

	flush := func() {
		if len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range lines {
		if !inFence {
			if m := fenceMarker(line); m != "" {
				inFence = true
				marker = m
			} else if strings.HasPrefix(line, "## ") {
				flush()
			}
		} else if fenceCloses(line, marker) {
			inFence = false
		}
		current = append(current, line)
	}
	flush()

	if len(sections) == 0 {
		return []string{body}
	}
	return sections
}
