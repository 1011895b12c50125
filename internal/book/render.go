package book

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/rewrite"
)

// RenderConfig controls chapter rendering. A nil Rewriter inserts page
// bodies verbatim.
type RenderConfig struct {
	Rewriter    *rewrite.Rewriter
	Language    string
	Tone        string
	Concurrency int
	Logger      *slog.Logger
}

// Renderer assembles one chapter file per Toc chapter.
type Renderer struct {
	cfg RenderConfig
}

// NewRenderer creates a Renderer with defaults applied.
func NewRenderer(cfg RenderConfig) *Renderer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Renderer{cfg: cfg}
}

type renderedPage struct {
	title string
	body  string
	url   string
}

// RenderChapters writes src/chapters/chNN.md for every chapter in the Toc.
// Page bodies are stripped of front matter and their leading h1; when a
// rewriter is configured, bodies are rewritten before insertion.
func (r *Renderer) RenderChapters(ctx context.Context, toc *formats.Toc, manifest []formats.ManifestRecord, bookDir string) error {
	byID := make(map[string]formats.ManifestRecord, len(manifest))
	for _, rec := range manifest {
		byID[rec.ID] = rec
	}

	chaptersDir := filepath.Join(bookDir, "src", "chapters")
	for _, ch := range toc.Chapters() {
		pages, err := r.loadPages(ctx, ch, byID)
		if err != nil {
			return fmt.Errorf("chapter %s: %w", ch.ID, err)
		}
		content := assembleChapter(ch.Title, pages)
		path := filepath.Join(chaptersDir, ch.ID+".md")
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("create chapter %s: %w", ch.ID, err)
		}
		if _, err := f.WriteString(content); err != nil {
			f.Close()
			return fmt.Errorf("write chapter %s: %w", ch.ID, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close chapter %s: %w", ch.ID, err)
		}
		r.cfg.Logger.Info("rendered chapter", "id", ch.ID, "title", ch.Title, "pages", len(pages))
	}
	return nil
}

// loadPages reads and prepares a chapter's source pages in chapter order.
// Rewrites run concurrently, bounded by the configured concurrency.
func (r *Renderer) loadPages(ctx context.Context, ch formats.Chapter, byID map[string]formats.ManifestRecord) ([]renderedPage, error) {
	pages := make([]renderedPage, len(ch.Sources))
	for i, id := range ch.Sources {
		rec, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown page id %q", id)
		}
		raw, err := os.ReadFile(rec.ExtractedMD)
		if err != nil {
			return nil, fmt.Errorf("read page %s: %w", id, err)
		}
		fm, body, err := formats.SplitPage(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", id, err)
		}
		title := fm.Title
		body, h1 := stripLeadingH1(body)
		if title == "" {
			title = h1
		}
		pages[i] = renderedPage{title: title, body: body, url: rec.URL}
	}

	if r.cfg.Rewriter == nil {
		return pages, nil
	}

	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := range pages {
		wg.Add(1)
		go func(p *renderedPage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out, title, err := r.cfg.Rewriter.RewriteBody(ctx, r.cfg.Language, r.cfg.Tone, p.body)
			if err != nil {
				r.cfg.Logger.Warn("page rewrite failed, keeping original", "url", p.url, "error", err)
				return
			}
			p.body = out
			if title != "" {
				p.title = title
			}
		}(&pages[i])
	}
	wg.Wait()
	return pages, nil
}

// assembleChapter builds the fixed chapter skeleton.
func assembleChapter(title string, pages []renderedPage) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	b.WriteString("## Objectives\nTODO\n\n")
	b.WriteString("## Prerequisites\nTODO\n\n")
	b.WriteString("## Body\n\n")
	for _, p := range pages {
		b.WriteString("### " + p.title + "\n")
		body := strings.TrimRight(p.body, "\n")
		if body != "" {
			b.WriteString(body + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("## Summary\nTODO\n\n")
	b.WriteString("## Sources\n")
	for _, p := range pages {
		b.WriteString("- " + p.url + "\n")
	}
	return b.String()
}

// stripLeadingH1 removes a leading level-1 heading and returns it.
func stripLeadingH1(body string) (string, string) {
	trimmed := strings.TrimLeft(body, "\n")
	if !strings.HasPrefix(trimmed, "# ") {
		return body, ""
	}
	line, rest, _ := strings.Cut(trimmed, "\n")
	return strings.TrimLeft(rest, "\n"), strings.TrimSpace(strings.TrimPrefix(line, "# "))
}
