// Package toc synthesizes the table of contents from the manifest via one of
// three engines (noop, command, llm), validates the resulting plan, and
// stamps chapter ids.
package toc

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

// MaxChapters bounds chapter ids to ch01..ch99.
const MaxChapters = 99

// FromPlan validates a plan against the manifest and produces the final Toc.
// Every source id must exist in the manifest, no id may appear in more than
// one chapter, and at least one chapter with at least one source is required.
// Pages the plan omits are logged, not an error.
func FromPlan(plan *formats.TocPlan, records []formats.ManifestRecord, requestTitle string, logger *slog.Logger) (*formats.Toc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(plan.Chapters) == 0 {
		return nil, fmt.Errorf("plan has no chapters")
	}
	if len(plan.Chapters) > MaxChapters {
		return nil, fmt.Errorf("plan has %d chapters, maximum is %d", len(plan.Chapters), MaxChapters)
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.ID] = true
	}

	seen := make(map[string]bool)
	chapters := make([]formats.Chapter, 0, len(plan.Chapters))
	for i, pc := range plan.Chapters {
		if strings.TrimSpace(pc.Title) == "" {
			return nil, fmt.Errorf("chapter %d has an empty title", i+1)
		}
		if len(pc.Sources) == 0 {
			return nil, fmt.Errorf("chapter %q has no sources", pc.Title)
		}
		for _, id := range pc.Sources {
			if !known[id] {
				return nil, fmt.Errorf("chapter %q references unknown page id %q", pc.Title, id)
			}
			if seen[id] {
				return nil, fmt.Errorf("page id %q appears in more than one chapter", id)
			}
			seen[id] = true
		}
		chapters = append(chapters, formats.Chapter{
			ID:      fmt.Sprintf("ch%02d", i+1),
			Title:   pc.Title,
			Sources: pc.Sources,
		})
	}

	if omitted := len(records) - len(seen); omitted > 0 {
		logger.Info("plan omitted pages", "omitted", omitted, "total", len(records))
	}

	title := strings.TrimSpace(plan.BookTitle)
	if title == "" {
		title = strings.TrimSpace(requestTitle)
	}
	if title == "" {
		title = DeriveBookTitle(records)
	}

	return &formats.Toc{
		BookTitle: title,
		Parts: []formats.Part{{
			Title:    title,
			Chapters: chapters,
		}},
	}, nil
}

// DeriveBookTitle title-cases the longest common leading URL-path segment of
// the manifest, falling back to the host, then to "Book".
func DeriveBookTitle(records []formats.ManifestRecord) string {
	if len(records) == 0 {
		return "Book"
	}

	common := pathSegments(records[0].Path)
	for _, rec := range records[1:] {
		segs := pathSegments(rec.Path)
		n := 0
		for n < len(common) && n < len(segs) && common[n] == segs[n] {
			n++
		}
		common = common[:n]
	}
	if len(common) > 0 {
		return titleCase(common[len(common)-1])
	}

	if u, err := url.Parse(records[0].URL); err == nil && u.Host != "" {
		return u.Host
	}
	return "Book"
}

func pathSegments(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// WriteYAML persists the Toc. It refuses to overwrite an existing file.
func WriteYAML(path string, t *formats.Toc) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal toc: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create toc: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write toc: %w", err)
	}
	return nil
}

// ReadYAML loads a Toc written by WriteYAML.
func ReadYAML(path string) (*formats.Toc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read toc: %w", err)
	}
	var t formats.Toc
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse toc: %w", err)
	}
	return &t, nil
}
