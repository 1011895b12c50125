package rewrite

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcEngine func(instructions, input string) (string, error)

func (f funcEngine) Rewrite(_ context.Context, instructions, input string) (string, error) {
	return f(instructions, input)
}

// identityEngine returns its input unchanged.
func identityEngine() funcEngine {
	return func(_, input string) (string, error) { return input, nil }
}

func TestProtectUnprotectRoundTrip(t *testing.T) {
	body := "Intro text with https://example.com/page?x=1 inline.\n\n" +
		"Use `GOOS=linux go build` to cross compile.\n\n" +
		"```toml\n[server]\nhost = \"0.0.0.0\"\n```\n\n" +
		"See [the guide](https://example.com/guide(v2)) and <https://example.com/raw>.\n"

	store := &TokenStore{}
	protected := Protect(body, store)

	assert.NotContains(t, protected, "https://example.com/page")
	assert.NotContains(t, protected, "GOOS=linux")
	assert.NotContains(t, protected, "[server]")
	assert.Greater(t, store.Len(), 0)

	assert.Equal(t, body, Unprotect(protected, store))
}

func TestRewritePreservesProtectedBytes(t *testing.T) {
	body := "Some prose to restate.\n\n" +
		"Run `sitebookify serve --home /tmp` first.\n\n" +
		"```toml\n[book]\ntitle = \"例\"\n```\n\n" +
		"More at [docs](https://example.com/docs) or https://example.com/x.\n"

	// Rewrites every non-token line but echoes tokens verbatim.
	engine := funcEngine(func(_, input string) (string, error) {
		var out []string
		for _, line := range strings.Split(input, "\n") {
			if canonicalTokenRe.MatchString(line) || strings.TrimSpace(line) == "" {
				out = append(out, line)
				continue
			}
			out = append(out, "書き直し: "+line)
		}
		return strings.Join(out, "\n"), nil
	})

	r := New(Config{Engine: engine})
	got, _, err := r.RewriteBody(context.Background(), "日本語", "丁寧", body)
	require.NoError(t, err)

	assert.Contains(t, got, "`sitebookify serve --home /tmp`")
	assert.Contains(t, got, "```toml\n[book]\ntitle = \"例\"\n```")
	assert.Contains(t, got, "(https://example.com/docs)")
	assert.Contains(t, got, "https://example.com/x")
	assert.Contains(t, got, "書き直し:")
	assert.NotContains(t, got, "SBY_TOKEN")
}

func TestRewriteSplitsAtHeadings(t *testing.T) {
	body := "Preamble.\n\n## First\n\ncontent one\n\n## Second\n\ncontent two\n"

	var calls int32
	engine := funcEngine(func(_, input string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return input, nil
	})

	r := New(Config{Engine: engine})
	got, _, err := r.RewriteBody(context.Background(), "english", "neutral", body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestRewriteHeadingInsideFenceNotASplit(t *testing.T) {
	body := "```\n## not a heading\n```\ntext\n"
	sections := SplitSections(body)
	assert.Len(t, sections, 1)
}

func TestMissingTokenStrictKeepsOriginal(t *testing.T) {
	body := "Link to [docs](https://example.com/docs) here.\n"

	engine := funcEngine(func(_, _ string) (string, error) {
		return "Rewritten without any placeholders.", nil
	})

	r := New(Config{Engine: engine, Policy: PolicyStrict})
	got, _, err := r.RewriteBody(context.Background(), "english", "neutral", body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestMissingTokenLenientKeepsRewrite(t *testing.T) {
	body := "Link to [docs](https://example.com/docs) here.\n"

	engine := funcEngine(func(_, _ string) (string, error) {
		return "Rewritten without any placeholders.", nil
	})

	r := New(Config{Engine: engine, Policy: PolicyLenient})
	got, _, err := r.RewriteBody(context.Background(), "english", "neutral", body)
	require.NoError(t, err)
	assert.Equal(t, "Rewritten without any placeholders.", got)
}

func TestMangledTokensNormalized(t *testing.T) {
	body := "Go to https://example.com/a now.\n"

	// Engine mangles the token spelling; normalization must recover it.
	engine := funcEngine(func(_, input string) (string, error) {
		return strings.ReplaceAll(input, "{{SBY_TOKEN_000000}}", "{ SBY_TOKEN_0 }"), nil
	})

	r := New(Config{Engine: engine})
	got, _, err := r.RewriteBody(context.Background(), "english", "neutral", body)
	require.NoError(t, err)
	assert.Contains(t, got, "https://example.com/a")
	assert.NotContains(t, got, "SBY_TOKEN")
}

func TestEngineFailureKeepsOriginalChunk(t *testing.T) {
	body := "Some text.\n"
	engine := funcEngine(func(_, _ string) (string, error) {
		return "", errors.New("backend down")
	})

	r := New(Config{Engine: engine})
	got, _, err := r.RewriteBody(context.Background(), "english", "neutral", body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestEmptyOutputKeepsOriginalChunk(t *testing.T) {
	body := "Some text.\n"
	engine := funcEngine(func(_, _ string) (string, error) {
		return "   \n", nil
	})

	r := New(Config{Engine: engine})
	got, _, err := r.RewriteBody(context.Background(), "english", "neutral", body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestLeadingHeadingAdoptedAsTitle(t *testing.T) {
	engine := funcEngine(func(_, _ string) (string, error) {
		return "# はじめに\n\n本文です。", nil
	})

	r := New(Config{Engine: engine, Policy: PolicyLenient})
	got, title, err := r.RewriteBody(context.Background(), "日本語", "丁寧", "original text\n")
	require.NoError(t, err)
	assert.Equal(t, "はじめに", title)
	assert.Equal(t, "本文です。", got)
}

func TestChunkByLinesRespectsBudget(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, strings.Repeat("a", 40))
	}
	text := strings.Join(lines, "\n")

	chunks := ChunkByLines(text, 100)
	require.Greater(t, len(chunks), 1)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 100)
		assert.False(t, c.HardCut)
		texts[i] = c.Text
	}
	assert.Equal(t, text, JoinChunks(chunks, texts))
}

func TestChunkByLinesNeverTearsTokens(t *testing.T) {
	line := strings.Repeat("x", 90) + "{{SBY_TOKEN_000001}}" + strings.Repeat("y", 90)
	chunks := ChunkByLines(line, 100)
	require.Greater(t, len(chunks), 1)

	whole := 0
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		assert.NotRegexp(t, `\{\{SBY_TOKEN_\d{0,5}$`, c.Text)
		whole += len(TokensIn(c.Text))
		texts[i] = c.Text
	}
	assert.Equal(t, 1, whole)

	// Every cut inside the line is a hard cut, so joining restores the
	// line without any newline injected.
	for i, c := range chunks {
		assert.Equal(t, i < len(chunks)-1, c.HardCut)
	}
	assert.Equal(t, line, JoinChunks(chunks, texts))
}

func TestOverlongLineRetainedWithoutInjectedNewlines(t *testing.T) {
	body := strings.Repeat("word ", 60) + "see https://example.com/long"
	engine := funcEngine(func(_, _ string) (string, error) {
		return "", errors.New("backend down")
	})

	r := New(Config{Engine: engine, MaxChars: 80, Retries: 1})
	got, _, err := r.RewriteBody(context.Background(), "english", "neutral", body)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.NotContains(t, got, "\n")
}

func TestIdentityEngineRoundTripsBody(t *testing.T) {
	body := "# Title\n\nProse with https://example.com and `code`.\n\n" +
		"```sh\nmake install\n```\n"
	r := New(Config{Engine: identityEngine()})
	got, title, err := r.RewriteBody(context.Background(), "english", "neutral", body)
	require.NoError(t, err)
	assert.Equal(t, "Title", title)
	assert.Contains(t, got, "```sh\nmake install\n```")
}
