package book

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/rewrite"
)

func sampleToc() *formats.Toc {
	return &formats.Toc{
		BookTitle: "Example Docs",
		Parts: []formats.Part{{
			Title: "Example Docs",
			Chapters: []formats.Chapter{
				{ID: "ch01", Title: "Getting Started", Sources: []string{"p_a", "p_b"}},
				{ID: "ch02", Title: "Reference", Sources: []string{"p_c"}},
			},
		}},
	}
}

func writePage(t *testing.T, dir, id, url, title, body string) formats.ManifestRecord {
	t.Helper()
	content, err := formats.ComposePage(formats.FrontMatter{
		ID: id, URL: url, Title: title, RetrievedAt: "2026-08-26T00:00:00Z",
	}, body)
	require.NoError(t, err)
	path := filepath.Join(dir, id+".md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return formats.ManifestRecord{ID: id, URL: url, Title: title, ExtractedMD: path}
}

func sampleManifest(t *testing.T, dir string) []formats.ManifestRecord {
	return []formats.ManifestRecord{
		writePage(t, dir, "p_a", "https://example.com/docs", "Docs", "# Docs\n\nwelcome text\n"),
		writePage(t, dir, "p_b", "https://example.com/docs/intro", "Intro", "# Intro\n\nintro text\n"),
		writePage(t, dir, "p_c", "https://example.com/docs/usage", "Usage", "# Usage\n\nusage text\n"),
	}
}

func TestInitWritesSkeleton(t *testing.T) {
	bookDir := filepath.Join(t.TempDir(), "book")
	require.NoError(t, Init(bookDir, sampleToc()))

	cfg, err := os.ReadFile(filepath.Join(bookDir, "book.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "[book]")
	assert.Contains(t, string(cfg), "title = 'Example Docs'")

	summary, err := os.ReadFile(filepath.Join(bookDir, "src", "SUMMARY.md"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "- [Getting Started](chapters/ch01.md)")
	assert.Contains(t, string(summary), "- [Reference](chapters/ch02.md)")

	info, err := os.Stat(filepath.Join(bookDir, "src", "chapters"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestInitRefusesExistingDir(t *testing.T) {
	bookDir := t.TempDir()
	err := Init(bookDir, sampleToc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRenderChaptersSkeleton(t *testing.T) {
	pagesDir := t.TempDir()
	manifest := sampleManifest(t, pagesDir)
	toc := sampleToc()
	bookDir := filepath.Join(t.TempDir(), "book")
	require.NoError(t, Init(bookDir, toc))

	r := NewRenderer(RenderConfig{})
	require.NoError(t, r.RenderChapters(context.Background(), toc, manifest, bookDir))

	raw, err := os.ReadFile(filepath.Join(bookDir, "src", "chapters", "ch01.md"))
	require.NoError(t, err)
	content := string(raw)

	assert.True(t, strings.HasPrefix(content, "# Getting Started\n"))
	for _, section := range []string{"## Objectives", "## Prerequisites", "## Body", "## Summary", "## Sources"} {
		assert.Contains(t, content, section+"\n")
	}
	assert.Contains(t, content, "### Docs\nwelcome text\n")
	assert.Contains(t, content, "### Intro\nintro text\n")
	assert.NotContains(t, content, "# Docs\n\nwelcome")
	assert.NotContains(t, content, "---\nid:")

	idx := strings.Index(content, "## Sources")
	require.GreaterOrEqual(t, idx, 0)
	sources := content[idx:]
	assert.Contains(t, sources, "- https://example.com/docs\n")
	assert.Contains(t, sources, "- https://example.com/docs/intro\n")
	assert.NotContains(t, sources, "usage")
}

func TestRenderChaptersRefusesOverwrite(t *testing.T) {
	pagesDir := t.TempDir()
	manifest := sampleManifest(t, pagesDir)
	toc := sampleToc()
	bookDir := filepath.Join(t.TempDir(), "book")
	require.NoError(t, Init(bookDir, toc))

	r := NewRenderer(RenderConfig{})
	require.NoError(t, r.RenderChapters(context.Background(), toc, manifest, bookDir))
	err := r.RenderChapters(context.Background(), toc, manifest, bookDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create chapter")
}

func TestRenderChaptersUnknownSource(t *testing.T) {
	toc := &formats.Toc{
		BookTitle: "B",
		Parts: []formats.Part{{Title: "B", Chapters: []formats.Chapter{
			{ID: "ch01", Title: "T", Sources: []string{"p_missing"}},
		}}},
	}
	bookDir := filepath.Join(t.TempDir(), "book")
	require.NoError(t, Init(bookDir, toc))

	err := NewRenderer(RenderConfig{}).RenderChapters(context.Background(), toc, nil, bookDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown page id")
}

type echoEngine struct{ prefix string }

func (e echoEngine) Rewrite(_ context.Context, _, input string) (string, error) {
	return e.prefix + input, nil
}

func TestRenderChaptersWithRewriter(t *testing.T) {
	pagesDir := t.TempDir()
	manifest := []formats.ManifestRecord{
		writePage(t, pagesDir, "p_a", "https://example.com/a", "A", "# A\n\nplain text here\n"),
	}
	toc := &formats.Toc{
		BookTitle: "B",
		Parts: []formats.Part{{Title: "B", Chapters: []formats.Chapter{
			{ID: "ch01", Title: "T", Sources: []string{"p_a"}},
		}}},
	}
	bookDir := filepath.Join(t.TempDir(), "book")
	require.NoError(t, Init(bookDir, toc))

	r := NewRenderer(RenderConfig{
		Rewriter:    rewrite.New(rewrite.Config{Engine: echoEngine{prefix: "rewritten: "}}),
		Language:    "english",
		Tone:        "neutral",
		Concurrency: 2,
	})
	require.NoError(t, r.RenderChapters(context.Background(), toc, manifest, bookDir))

	raw, err := os.ReadFile(filepath.Join(bookDir, "src", "chapters", "ch01.md"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "rewritten: plain text here")
}

func TestBundle(t *testing.T) {
	toc := sampleToc()
	bookDir := filepath.Join(t.TempDir(), "book")
	chaptersDir := filepath.Join(bookDir, "src", "chapters")
	require.NoError(t, os.MkdirAll(chaptersDir, 0o755))

	ch01 := "# Getting Started\n\nSee [usage](chapters/ch02.md) and [detail](ch02.md#spot).\n\n![d](../assets/img_ab.png)\n"
	ch02 := "# Reference\n\nBack to [start](./chapters/ch01.md).\n"
	require.NoError(t, os.WriteFile(filepath.Join(chaptersDir, "ch01.md"), []byte(ch01), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(chaptersDir, "ch02.md"), []byte(ch02), 0o644))

	outPath := filepath.Join(t.TempDir(), "book.md")
	require.NoError(t, Bundle(toc, bookDir, outPath))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	content := string(raw)

	assert.True(t, strings.HasPrefix(content, "# Example Docs\n"))
	assert.Contains(t, content, `<a id="ch01"></a>`)
	assert.Contains(t, content, `<a id="ch02"></a>`)
	assert.Contains(t, content, "[usage](#ch02)")
	assert.Contains(t, content, "[detail](#spot)")
	assert.Contains(t, content, "[start](#ch01)")
	assert.Contains(t, content, "![d](assets/img_ab.png)")
	assert.NotContains(t, content, "chapters/ch")

	err = Bundle(toc, bookDir, outPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create bundle")
}

func TestAssetFetcherLocalize(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/diagram.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(png)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bookDir := filepath.Join(t.TempDir(), "book")
	chaptersDir := filepath.Join(bookDir, "src", "chapters")
	require.NoError(t, os.MkdirAll(chaptersDir, 0o755))

	good := srv.URL + "/diagram.png"
	bad := srv.URL + "/missing.png"
	chapter := "# T\n\n![d](" + good + ")\n\n<img src=\"" + good + "\" />\n\n![gone](" + bad + ")\n"
	chPath := filepath.Join(chaptersDir, "ch01.md")
	require.NoError(t, os.WriteFile(chPath, []byte(chapter), 0o644))

	f := NewAssetFetcher(srv.Client(), nil)
	require.NoError(t, f.Localize(context.Background(), bookDir))

	raw, err := os.ReadFile(chPath)
	require.NoError(t, err)
	content := string(raw)

	assert.NotContains(t, content, good)
	assert.Contains(t, content, bad) // failed fetch leaves the reference
	assert.Contains(t, content, "![d](../assets/img_")

	entries, err := os.ReadDir(filepath.Join(bookDir, "src", "assets"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "img_"))
	assert.True(t, strings.HasSuffix(name, ".png"))

	data, err := os.ReadFile(filepath.Join(bookDir, "src", "assets", name))
	require.NoError(t, err)
	assert.Equal(t, png, data)
}
