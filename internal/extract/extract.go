package extract

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

// Stage writes one extracted page per saved crawl record.
type Stage struct {
	Extractor Extractor
	Logger    *slog.Logger
}

// NewStage creates the extraction stage with the default extractor.
func NewStage(logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{Extractor: NewReadabilityExtractor(), Logger: logger}
}

// Run processes every crawl record that carries a raw HTML path and writes
// extracted pages under outDir/pages. A page whose extraction fails gets a
// placeholder body; the stage fails only on storage errors or if the output
// directory already exists.
func (s *Stage) Run(records []formats.CrawlRecord, outDir string) error {
	pagesDir := filepath.Join(outDir, "pages")
	if _, err := os.Stat(pagesDir); err == nil {
		return fmt.Errorf("output already exists: %s", pagesDir)
	}
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return fmt.Errorf("create pages dir: %w", err)
	}

	count := 0
	for _, rec := range records {
		if rec.RawHTMLPath == "" {
			continue
		}
		if err := s.extractOne(rec, pagesDir); err != nil {
			return err
		}
		count++
	}
	s.Logger.Info("extraction complete", "pages", count, "dir", pagesDir)
	return nil
}

func (s *Stage) extractOne(rec formats.CrawlRecord, pagesDir string) error {
	html, err := os.ReadFile(rec.RawHTMLPath)
	if err != nil {
		return fmt.Errorf("read raw html %s: %w", rec.RawHTMLPath, err)
	}

	title, body := s.extractContent(string(html), rec.NormalizedURL)

	fm := formats.FrontMatter{
		ID:          formats.PageID(rec.NormalizedURL),
		URL:         rec.NormalizedURL,
		RetrievedAt: rec.RetrievedAt,
		RawHTMLPath: rec.RawHTMLPath,
		Title:       title,
	}
	content, err := formats.ComposePage(fm, body)
	if err != nil {
		return err
	}

	path := filepath.Join(pagesDir, fm.ID+".md")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create page %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("write page %s: %w", path, err)
	}
	return nil
}

// extractContent runs the extractor and normalizes its output: boilerplate
// stripped, trimmed, and guaranteed to open with a level-1 heading equal to
// the title. Extraction failures yield a placeholder body.
func (s *Stage) extractContent(html, pageURL string) (string, string) {
	title, body, err := s.Extractor.Extract(html, pageURL)
	if err != nil {
		s.Logger.Warn("extraction failed", "url", pageURL, "error", err)
		return pageURL, fmt.Sprintf("TODO: extraction failed for %s", pageURL)
	}

	body = strings.TrimSpace(StripKnownBoilerplate(strings.TrimSpace(body)))
	if !strings.HasPrefix(body, "# ") {
		body = fmt.Sprintf("# %s\n\n%s", title, body)
	}
	return title, body
}
