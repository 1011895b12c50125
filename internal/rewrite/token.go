// Package rewrite implements the placeholder-preserving LLM rewrite
// protocol: fragile spans (code, link destinations, URLs) are swapped for
// tokens before the model sees the text and restored byte-for-byte after.
package rewrite

import (
	"fmt"
	"regexp"
	"strconv"
)

// TokenStore holds protected spans, indexed by token number. A flat slice
// keeps restoration deterministic.
type TokenStore struct {
	spans []string
}

// Add stores a span and returns its placeholder token.
func (s *TokenStore) Add(original string) string {
	token := fmt.Sprintf("{{SBY_TOKEN_%06d}}", len(s.spans))
	s.spans = append(s.spans, original)
	return token
}

// Get returns the span for a token number, or false when out of range.
func (s *TokenStore) Get(n int) (string, bool) {
	if n < 0 || n >= len(s.spans) {
		return "", false
	}
	return s.spans[n], true
}

// Len returns the number of stored spans.
func (s *TokenStore) Len() int {
	return len(s.spans)
}

var (
	canonicalTokenRe = regexp.MustCompile(`\{\{SBY_TOKEN_(\d{6})\}\}`)
	looseTokenRe     = regexp.MustCompile(`\{{0,3}\s*SBY_TOKEN_(\d{1,6})\s*\}{0,3}`)
)

// NormalizeTokens coerces mangled token spellings back to the canonical
// {{SBY_TOKEN_NNNNNN}} form: single or triple braces, missing braces, short
// digit runs, and whitespace padding inside the braces.
func NormalizeTokens(s string) string {
	return looseTokenRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := looseTokenRe.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			return m
		}
		return fmt.Sprintf("{{SBY_TOKEN_%06d}}", n)
	})
}

// TokensIn returns the token numbers present in s, in order of appearance.
func TokensIn(s string) []int {
	var out []int
	for _, m := range canonicalTokenRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// maxUnprotectPasses bounds restoration when protected spans themselves
// contain tokens.
const maxUnprotectPasses = 8

// Unprotect replaces every token with its stored span, repeating while the
// restored text still contains tokens.
func Unprotect(s string, store *TokenStore) string {
	for pass := 0; pass < maxUnprotectPasses; pass++ {
		replaced := false
		s = canonicalTokenRe.ReplaceAllStringFunc(s, func(m string) string {
			sub := canonicalTokenRe.FindStringSubmatch(m)
			n, _ := strconv.Atoi(sub[1])
			if span, ok := store.Get(n); ok {
				replaced = true
				return span
			}
			return m
		})
		if !replaced {
			break
		}
	}
	return s
}
