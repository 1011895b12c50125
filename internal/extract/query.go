package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/llm"
)

// Source is one result from a deep-crawl service: content arrives already in
// Markdown, no HTML stage involved.
type Source struct {
	URL       string `json:"url"`
	Content   string `json:"content"`
	TrustTier string `json:"trust_tier,omitempty"`
}

// DeepCrawler resolves a topical query to a set of Markdown sources.
type DeepCrawler interface {
	DeepCrawl(ctx context.Context, query string, maxPages int) ([]Source, error)
}

// QueryPageID derives the page id for a query-acquired source. Unlike the
// site-crawl id this uses a truncated digest, matching the deep-crawl
// service's id convention.
func QueryPageID(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return "p_" + hex.EncodeToString(sum[:])[:32]
}

// QueryStage acquires pages from a query instead of a site crawl. It writes
// the extracted pages directly; the caller builds the manifest from the
// output directory as usual.
type QueryStage struct {
	Crawler DeepCrawler
	Logger  *slog.Logger
}

// NewQueryStage creates a QueryStage.
func NewQueryStage(crawler DeepCrawler, logger *slog.Logger) *QueryStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryStage{Crawler: crawler, Logger: logger}
}

// Run writes one extracted page per deep-crawl source under outDir/pages.
func (s *QueryStage) Run(ctx context.Context, query string, maxPages int, outDir string) error {
	pagesDir := filepath.Join(outDir, "pages")
	if _, err := os.Stat(pagesDir); err == nil {
		return fmt.Errorf("output directory already exists: %s", pagesDir)
	}
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return fmt.Errorf("create pages dir: %w", err)
	}

	sources, err := s.Crawler.DeepCrawl(ctx, query, maxPages)
	if err != nil {
		return fmt.Errorf("deep crawl: %w", err)
	}
	if len(sources) == 0 {
		return fmt.Errorf("deep crawl returned no sources for query %q", query)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, src := range sources {
		if strings.TrimSpace(src.URL) == "" || strings.TrimSpace(src.Content) == "" {
			s.Logger.Warn("skipping empty deep-crawl source", "url", src.URL)
			continue
		}
		id := QueryPageID(src.URL)
		title := sourceTitle(src)
		body := strings.TrimSpace(src.Content)
		if !strings.HasPrefix(body, "# ") {
			body = "# " + title + "\n\n" + body
		}
		fm := formats.FrontMatter{
			ID:          id,
			URL:         src.URL,
			RetrievedAt: now,
			Title:       title,
			TrustTier:   src.TrustTier,
		}
		page, err := formats.ComposePage(fm, body+"\n")
		if err != nil {
			return fmt.Errorf("compose page %s: %w", id, err)
		}
		path := filepath.Join(pagesDir, id+".md")
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("create page %s: %w", id, err)
		}
		if _, err := f.WriteString(page); err != nil {
			f.Close()
			return fmt.Errorf("write page %s: %w", id, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close page %s: %w", id, err)
		}
		s.Logger.Info("wrote query page", "id", id, "url", src.URL, "trust_tier", src.TrustTier)
	}
	return nil
}

func sourceTitle(src Source) string {
	for _, line := range strings.Split(src.Content, "\n") {
		if t, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return src.URL
}

const deepCrawlInstructions = `You are a research assistant gathering sources
for a book on a topic. Return ONLY a JSON array. Each element must be an
object with keys "url" (a real, relevant page), "content" (the page's
substance restated as Markdown with a leading level-1 heading), and
"trust_tier" (one of "official", "community", "blog"). Return at most the
requested number of sources.`

// LLMDeepCrawler asks an LLM backend for sources. It stands in for an
// external deep-crawl service.
type LLMDeepCrawler struct {
	Engine llm.Engine
}

// DeepCrawl implements DeepCrawler.
func (c *LLMDeepCrawler) DeepCrawl(ctx context.Context, query string, maxPages int) ([]Source, error) {
	input := fmt.Sprintf("Topic: %s\nMaximum sources: %d", query, maxPages)
	raw, err := c.Engine.Rewrite(ctx, deepCrawlInstructions, input)
	if err != nil {
		return nil, err
	}
	return ParseSources(raw, maxPages)
}

// ParseSources extracts the outermost JSON array from raw engine output.
func ParseSources(raw string, maxPages int) ([]Source, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in deep-crawl output")
	}
	var sources []Source
	if err := json.Unmarshal([]byte(raw[start:end+1]), &sources); err != nil {
		return nil, fmt.Errorf("parse deep-crawl output: %w", err)
	}
	if maxPages > 0 && len(sources) > maxPages {
		sources = sources[:maxPages]
	}
	return sources, nil
}
