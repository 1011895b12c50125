package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/sitebookify/internal/llm"
)

// Policy decides what happens when a rewritten chunk loses placeholder
// tokens: strict keeps the original chunk, lenient keeps the rewrite.
type Policy string

const (
	PolicyStrict  Policy = "strict"
	PolicyLenient Policy = "lenient"
)

// Config holds rewrite knobs.
type Config struct {
	Engine   llm.Engine
	MaxChars int    // chunk budget, default 6000
	Retries  int    // per-chunk retries, default 2
	Policy   Policy // default strict
	Logger   *slog.Logger
}

// Rewriter rewrites page bodies section by section while preserving
// protected spans byte-for-byte.
type Rewriter struct {
	cfg Config
}

// New creates a Rewriter with defaults applied.
func New(cfg Config) *Rewriter {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 6000
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyStrict
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Rewriter{cfg: cfg}
}

// Instructions builds the engine prompt for a language and tone.
func Instructions(language, tone string) string {
	return fmt.Sprintf(`You are rewriting documentation into book prose.
Rewrite the following Markdown in %s with a %s tone. Keep the Markdown
structure (headings, lists, tables). Placeholders of the exact form
{{SBY_TOKEN_000000}} stand for protected content: reproduce every
placeholder exactly as given, never invent or drop one. Use only facts
present in the input. Respond with the rewritten Markdown only.`, language, tone)
}

// RewriteBody rewrites a page body. It returns the rewritten body and, when
// the engine opened its output with a level-1 heading, the adopted title.
func (r *Rewriter) RewriteBody(ctx context.Context, language, tone, body string) (string, string, error) {
	instructions := Instructions(language, tone)

	sections := SplitSections(body)
	rewritten := make([]string, len(sections))
	for i, section := range sections {
		out, err := r.rewriteSection(ctx, instructions, section)
		if err != nil {
			return "", "", err
		}
		rewritten[i] = out
	}

	result := strings.Join(rewritten, "\n")
	result, title := adoptLeadingTitle(result)
	return result, title, nil
}

func (r *Rewriter) rewriteSection(ctx context.Context, instructions, section string) (string, error) {
	store := &TokenStore{}
	protected := Protect(section, store)
	chunks := ChunkByLines(protected, r.cfg.MaxChars)

	outputs := make([]string, len(chunks))
	for i, chunk := range chunks {
		outputs[i] = r.rewriteChunk(ctx, instructions, chunk.Text)
	}

	return Unprotect(JoinChunks(chunks, outputs), store), nil
}

var errEmptyOutput = errors.New("engine returned empty output")

// rewriteChunk calls the engine with retries. Transport failures and empty
// outputs retry; on exhaustion or missing tokens under the strict policy the
// original chunk is retained. The chunk text is never lost.
func (r *Rewriter) rewriteChunk(ctx context.Context, instructions, chunk string) string {
	if strings.TrimSpace(chunk) == "" {
		return chunk
	}

	out, err := retry.DoWithData(
		func() (string, error) {
			raw, err := r.cfg.Engine.Rewrite(ctx, instructions, chunk)
			if err != nil {
				return "", err
			}
			normalized := NormalizeTokens(raw)
			if strings.TrimSpace(normalized) == "" {
				return "", errEmptyOutput
			}
			return normalized, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.cfg.Retries)+1),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		r.cfg.Logger.Warn("chunk rewrite failed, keeping original", "error", err)
		return chunk
	}

	if missing := missingTokens(chunk, out); len(missing) > 0 {
		if r.cfg.Policy == PolicyStrict {
			r.cfg.Logger.Warn("rewrite dropped tokens, keeping original chunk", "missing", missing)
			return chunk
		}
		r.cfg.Logger.Warn("rewrite dropped tokens, keeping rewrite (lenient)", "missing", missing)
	}
	return out
}

func missingTokens(input, output string) []int {
	present := make(map[int]bool)
	for _, n := range TokensIn(output) {
		present[n] = true
	}
	var missing []int
	for _, n := range TokensIn(input) {
		if !present[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

// adoptLeadingTitle strips a leading level-1 heading from the body and
// returns it separately so callers may promote it to the page title.
func adoptLeadingTitle(body string) (string, string) {
	trimmed := strings.TrimLeft(body, "\n")
	if !strings.HasPrefix(trimmed, "# ") {
		return body, ""
	}
	line, rest, _ := strings.Cut(trimmed, "\n")
	title := strings.TrimSpace(strings.TrimPrefix(line, "# "))
	if title == "" {
		return body, ""
	}
	return strings.TrimLeft(rest, "\n"), title
}
