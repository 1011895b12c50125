// Package book renders the chaptered Markdown tree, bundles it into a
// single book.md, and localizes remote images under src/assets.
package book

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

type bookMeta struct {
	Title string `toml:"title"`
}

type bookToml struct {
	Book bookMeta `toml:"book"`
}

// Init lays down the book skeleton: book.toml, src/SUMMARY.md, and the
// chapters directory. It refuses to reuse an existing book directory.
func Init(bookDir string, toc *formats.Toc) error {
	if _, err := os.Stat(bookDir); err == nil {
		return fmt.Errorf("book directory already exists: %s", bookDir)
	}
	chaptersDir := filepath.Join(bookDir, "src", "chapters")
	if err := os.MkdirAll(chaptersDir, 0o755); err != nil {
		return fmt.Errorf("create book tree: %w", err)
	}

	cfg, err := toml.Marshal(bookToml{Book: bookMeta{Title: toc.BookTitle}})
	if err != nil {
		return fmt.Errorf("marshal book.toml: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bookDir, "book.toml"), cfg, 0o644); err != nil {
		return fmt.Errorf("write book.toml: %w", err)
	}

	summary := buildSummary(toc)
	if err := os.WriteFile(filepath.Join(bookDir, "src", "SUMMARY.md"), []byte(summary), 0o644); err != nil {
		return fmt.Errorf("write SUMMARY.md: %w", err)
	}
	return nil
}

func buildSummary(toc *formats.Toc) string {
	var b strings.Builder
	b.WriteString("# Summary\n")
	for _, part := range toc.Parts {
		b.WriteString("\n# " + part.Title + "\n\n")
		for _, ch := range part.Chapters {
			fmt.Fprintf(&b, "- [%s](chapters/%s.md)\n", ch.Title, ch.ID)
		}
	}
	return b.String()
}
