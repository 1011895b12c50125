package rewrite

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one engine-call-sized slice of protected text. HardCut marks a
// chunk whose end falls mid-line; the next chunk continues the same line.
type Chunk struct {
	Text    string
	HardCut bool
}

// JoinChunks reassembles per-chunk texts, restoring a newline only after
// chunks that ended on a line boundary.
func JoinChunks(chunks []Chunk, texts []string) string {
	var b strings.Builder
	for i, text := range texts {
		b.WriteString(text)
		if i < len(texts)-1 && !chunks[i].HardCut {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ChunkByLines splits protected text into chunks of at most maxChars,
// breaking only at line boundaries. A single line longer than the budget is
// hard-split at rune boundaries; a placeholder token crossing the split
// point forces the split forward to the token's end so tokens never tear.
func ChunkByLines(text string, maxChars int) []Chunk {
	if maxChars <= 0 || len(text) <= maxChars {
		return []Chunk{{Text: text}}
	}

	var chunks []Chunk
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, Chunk{Text: strings.TrimSuffix(current.String(), "\n")})
			current.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if len(line) > maxChars {
			flush()
			pieces := hardSplit(line, maxChars)
			for i, piece := range pieces {
				chunks = append(chunks, Chunk{Text: piece, HardCut: i < len(pieces)-1})
			}
			continue
		}
		if current.Len() > 0 && current.Len()+len(line)+1 > maxChars {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	if len(chunks) == 0 {
		return []Chunk{{}}
	}
	return chunks
}

// hardSplit cuts an oversized line into pieces of roughly maxChars,
// respecting rune boundaries and never cutting through a token.
func hardSplit(line string, maxChars int) []string {
	var pieces []string
	for len(line) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if end, inside := tokenSpanAt(line, cut); inside {
			cut = end
		}
		if cut == 0 || cut >= len(line) {
			break
		}
		pieces = append(pieces, line[:cut])
		line = line[cut:]
	}
	if line != "" {
		pieces = append(pieces, line)
	}
	return pieces
}

// tokenSpanAt reports whether pos falls inside a placeholder token and, if
// so, returns the index just past that token.
func tokenSpanAt(line string, pos int) (int, bool) {
	for _, loc := range canonicalTokenRe.FindAllStringIndex(line, -1) {
		if pos > loc[0] && pos < loc[1] {
			return loc[1], true
		}
	}
	return pos, false
}
