package epub

import "strings"

// GuessLangTag maps a free-form language description to a BCP-47 tag.
// Strings that already look like a tag pass through with '_' normalized to
// '-'; unrecognized languages map to "und".
func GuessLangTag(language string) string {
	s := strings.TrimSpace(language)
	if s == "" {
		return "und"
	}

	norm := strings.ReplaceAll(s, "_", "-")
	if strings.Contains(norm, "-") && isTagLike(norm) {
		return norm
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(s, "日本語"), lower == "japanese", lower == "ja":
		return "ja"
	case strings.Contains(s, "英"), lower == "english", lower == "en":
		return "en"
	}
	return "und"
}

func isTagLike(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}
