package extract

import (
	"strings"
)

// StripKnownBoilerplate removes navigation help blocks that documentation
// generators inject into every page, most notably the mdBook keyboard
// shortcuts overlay. Content inside fenced code blocks is never touched.
func StripKnownBoilerplate(markdown string) string {
	var out []string
	inFence := false
	fenceMarker := ""

	lines := strings.Split(markdown, "\n")
	i := 0
	for i < len(lines) {
		line := lines[i]

		if !inFence {
			if marker := fenceStartMarker(line); marker != "" {
				inFence = true
				fenceMarker = marker
				out = append(out, line)
				i++
				continue
			}
		} else {
			out = append(out, line)
			if strings.HasPrefix(strings.TrimLeft(line, " \t"), fenceMarker) {
				inFence = false
			}
			i++
			continue
		}

		if title, consumed, ok := headingAt(lines, i); ok {
			if isKeyboardShortcutsTitle(title) {
				start := i + consumed
				end := min(start+20, len(lines))
				if shortcutsScore(lines[start:end]) >= 2 {
					i = skipShortcutLines(lines, start)
					continue
				}
			}
			out = append(out, lines[i:i+consumed]...)
			i += consumed
			continue
		}

		trimmed := strings.TrimSpace(line)
		if isKeyboardShortcutsTitle(trimmed) {
			end := min(i+20, len(lines))
			if shortcutsScore(lines[i+1:end]) >= 2 {
				i = skipShortcutLines(lines, i+1)
				continue
			}
		}

		if strings.HasPrefix(strings.ToLower(trimmed), "press") {
			end := min(i+20, len(lines))
			if shortcutsScore(lines[i:end]) >= 3 {
				i = skipPressLines(lines, i)
				continue
			}
		}

		out = append(out, line)
		i++
	}

	return strings.Join(out, "\n")
}

// skipShortcutLines advances past blank lines and lines that still score as
// shortcut help, stopping at the next heading or ordinary prose.
func skipShortcutLines(lines []string, j int) int {
	for j < len(lines) {
		if _, _, ok := headingAt(lines, j); ok {
			break
		}
		t := strings.TrimSpace(lines[j])
		if t == "" || shortcutsScore(lines[j:j+1]) > 0 {
			j++
			continue
		}
		break
	}
	return j
}

func skipPressLines(lines []string, j int) int {
	for j < len(lines) {
		if _, _, ok := headingAt(lines, j); ok {
			break
		}
		t := strings.TrimSpace(lines[j])
		if t == "" || strings.HasPrefix(strings.ToLower(t), "press") || shortcutsScore(lines[j:j+1]) > 0 {
			j++
			continue
		}
		break
	}
	return j
}

func isKeyboardShortcutsTitle(title string) bool {
	t := strings.TrimSpace(title)
	return t == "キーボードショートカット" || strings.EqualFold(t, "keyboard shortcuts")
}

// shortcutsScore counts shortcut-help signals across lines. Both the
// Japanese and English mdBook overlays are recognized.
func shortcutsScore(lines []string) int {
	score := 0
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if strings.Contains(t, "章間の移動") {
			score++
		}
		if strings.Contains(t, "本の検索") {
			score++
		}
		if strings.Contains(t, "このヘルプ") {
			score++
		}
		if strings.Contains(t, "Esc") {
			score++
		}

		lower := strings.ToLower(t)
		if (strings.Contains(t, "←") || strings.Contains(t, "→")) && strings.Contains(lower, "chapter") {
			score++
		}
		if strings.Contains(lower, "navigate between chapters") {
			score++
		}
		if strings.Contains(lower, "search the book") {
			score++
		}
		if strings.Contains(lower, "search in the book") {
			score++
		}
		if strings.Contains(lower, "this help") && strings.Contains(lower, "press") {
			score++
		}
		if strings.Contains(lower, "hide") && strings.Contains(lower, "help") {
			score++
		}
		if strings.Contains(lower, "arrow") && strings.Contains(lower, "chapter") {
			score++
		}
	}
	return score
}

// headingAt recognizes both ATX headings and setext underlines, returning
// the title and the number of lines the heading occupies.
func headingAt(lines []string, i int) (string, int, bool) {
	if title, ok := atxHeading(lines[i]); ok {
		return title, 1, true
	}
	if i+1 < len(lines) {
		title := strings.TrimSpace(lines[i])
		if title != "" && setextUnderline(lines[i+1]) {
			return title, 2, true
		}
	}
	return "", 0, false
}

func atxHeading(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level > 6 {
		return "", false
	}
	rest := strings.TrimSpace(trimmed[level:])
	if rest == "" {
		return "", false
	}
	return rest, true
}

func setextUnderline(line string) bool {
	t := strings.TrimSpace(line)
	if len(t) < 3 {
		return false
	}
	for _, c := range t {
		if c != '=' && c != '-' {
			return false
		}
	}
	return strings.Count(t, "=") == len(t) || strings.Count(t, "-") == len(t)
}

func fenceStartMarker(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	for _, c := range []byte{'`', '~'} {
		if len(trimmed) >= 3 && trimmed[0] == c && trimmed[1] == c && trimmed[2] == c {
			n := 0
			for n < len(trimmed) && trimmed[n] == c {
				n++
			}
			return trimmed[:n]
		}
	}
	return ""
}
