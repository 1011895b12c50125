package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

func TestReadabilityExtractor(t *testing.T) {
	html := `<!doctype html>
<html><head><title>Intro - Docs</title></head>
<body>
<nav><a href="/">home</a></nav>
<main>
<h1>Intro</h1>
<p>Welcome to the <strong>docs</strong>.</p>
</main>
<footer>copyright</footer>
</body></html>`

	e := NewReadabilityExtractor()
	title, body, err := e.Extract(html, "https://example.com/docs/intro")
	require.NoError(t, err)
	assert.Equal(t, "Intro - Docs", title)
	assert.Contains(t, body, "Welcome to the **docs**")
	assert.NotContains(t, body, "home")
	assert.NotContains(t, body, "copyright")
}

func TestReadabilityExtractorEmptyBody(t *testing.T) {
	e := NewReadabilityExtractor()
	_, _, err := e.Extract("<html><body></body></html>", "https://example.com/")
	assert.Error(t, err)
}

func TestStripKeyboardShortcutsJapanese(t *testing.T) {
	input := `# Title

## キーボードショートカット
章間の移動には ← または → を押します
本の検索には S または / を押します
? を押すとこのヘルプを表示します
Esc を押すとこのヘルプを非表示にします

## Next
Keep.
`
	out := StripKnownBoilerplate(input)
	assert.NotContains(t, out, "キーボードショートカット")
	assert.NotContains(t, out, "章間の移動には")
	assert.Contains(t, out, "## Next")
	assert.Contains(t, out, "Keep.")
}

func TestStripKeyboardShortcutsEnglish(t *testing.T) {
	input := `# Title

Keyboard shortcuts
Press ← or → to navigate between chapters
Press S or / to search in the book
Press ? to show this help
Press Esc to hide this help

Real content stays here.
`
	out := StripKnownBoilerplate(input)
	assert.NotContains(t, out, "navigate between chapters")
	assert.Contains(t, out, "Real content stays here.")
}

func TestStripLeavesCodeFencesAlone(t *testing.T) {
	input := "# Title\n\n```\nKeyboard shortcuts\nPress Esc to hide this help\n```\n"
	out := StripKnownBoilerplate(input)
	assert.Contains(t, out, "Keyboard shortcuts")
	assert.Contains(t, out, "Press Esc")
}

func TestStageRun(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "index.html")
	html := `<html><head><title>Docs</title></head><body><main><p>Hello.</p></main></body></html>`
	require.NoError(t, os.WriteFile(rawPath, []byte(html), 0o644))

	records := []formats.CrawlRecord{
		{
			URL:           "https://example.com/docs",
			NormalizedURL: "https://example.com/docs",
			Status:        200,
			RetrievedAt:   "2026-01-02T03:04:05Z",
			RawHTMLPath:   rawPath,
		},
		{
			URL:           "https://example.com/missing",
			NormalizedURL: "https://example.com/missing",
			Status:        404,
		},
	}

	outDir := filepath.Join(dir, "extracted")
	stage := NewStage(nil)
	require.NoError(t, stage.Run(records, outDir))

	id := formats.PageID("https://example.com/docs")
	content, err := os.ReadFile(filepath.Join(outDir, "pages", id+".md"))
	require.NoError(t, err)

	fm, body, err := formats.SplitPage(string(content))
	require.NoError(t, err)
	assert.Equal(t, id, fm.ID)
	assert.Equal(t, "Docs", fm.Title)
	assert.True(t, strings.HasPrefix(body, "# Docs\n"), "body must open with the title heading: %q", body)
	assert.Contains(t, body, "Hello.")

	// The 404 record has no raw html and produces no page.
	entries, err := os.ReadDir(filepath.Join(outDir, "pages"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStageRefusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "extracted")
	require.NoError(t, os.MkdirAll(filepath.Join(outDir, "pages"), 0o755))

	stage := NewStage(nil)
	err := stage.Run(nil, outDir)
	assert.Error(t, err)
}

type failingExtractor struct{}

func (failingExtractor) Extract(_, _ string) (string, string, error) {
	return "", "", assert.AnError
}

func TestStagePlaceholderOnFailure(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(rawPath, []byte("<html></html>"), 0o644))

	stage := NewStage(nil)
	stage.Extractor = failingExtractor{}

	records := []formats.CrawlRecord{{
		NormalizedURL: "https://example.com/broken",
		RawHTMLPath:   rawPath,
	}}
	outDir := filepath.Join(dir, "extracted")
	require.NoError(t, stage.Run(records, outDir))

	id := formats.PageID("https://example.com/broken")
	content, err := os.ReadFile(filepath.Join(outDir, "pages", id+".md"))
	require.NoError(t, err)
	fm, body, err := formats.SplitPage(string(content))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/broken", fm.Title)
	assert.Contains(t, body, "TODO: extraction failed for https://example.com/broken")
}
