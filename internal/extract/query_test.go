package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

type stubDeepCrawler struct {
	sources []Source
	err     error
}

func (s stubDeepCrawler) DeepCrawl(_ context.Context, _ string, _ int) ([]Source, error) {
	return s.sources, s.err
}

func TestQueryStageWritesPages(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "extracted")
	stage := NewQueryStage(stubDeepCrawler{sources: []Source{
		{URL: "https://example.com/guide", Content: "# Guide\n\ncontent", TrustTier: "official"},
		{URL: "https://blog.example.com/post", Content: "no heading body", TrustTier: "blog"},
	}}, nil)

	require.NoError(t, stage.Run(context.Background(), "example topic", 10, outDir))

	entries, err := os.ReadDir(filepath.Join(outDir, "pages"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	id := QueryPageID("https://example.com/guide")
	assert.Len(t, id, len("p_")+32)

	raw, err := os.ReadFile(filepath.Join(outDir, "pages", id+".md"))
	require.NoError(t, err)
	fm, body, err := formats.SplitPage(string(raw))
	require.NoError(t, err)
	assert.Equal(t, id, fm.ID)
	assert.Equal(t, "official", fm.TrustTier)
	assert.Equal(t, "Guide", fm.Title)
	assert.True(t, strings.HasPrefix(body, "# Guide\n"))

	// A source without a heading gets one synthesized from its title.
	id2 := QueryPageID("https://blog.example.com/post")
	raw2, err := os.ReadFile(filepath.Join(outDir, "pages", id2+".md"))
	require.NoError(t, err)
	fm2, body2, err := formats.SplitPage(string(raw2))
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example.com/post", fm2.Title)
	assert.True(t, strings.HasPrefix(body2, "# https://blog.example.com/post\n"))
}

func TestQueryStageRefusesExistingOutput(t *testing.T) {
	outDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(outDir, "pages"), 0o755))

	stage := NewQueryStage(stubDeepCrawler{sources: []Source{{URL: "u", Content: "c"}}}, nil)
	err := stage.Run(context.Background(), "q", 10, outDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestQueryStageErrors(t *testing.T) {
	stage := NewQueryStage(stubDeepCrawler{err: errors.New("service down")}, nil)
	err := stage.Run(context.Background(), "q", 10, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deep crawl")

	empty := NewQueryStage(stubDeepCrawler{}, nil)
	err = empty.Run(context.Background(), "q", 10, filepath.Join(t.TempDir(), "out2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources")
}

func TestParseSources(t *testing.T) {
	raw := "Here you go:\n```json\n[{\"url\":\"https://a\",\"content\":\"# A\",\"trust_tier\":\"official\"}]\n```"
	sources, err := ParseSources(raw, 10)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://a", sources[0].URL)

	_, err = ParseSources("no array here", 10)
	require.Error(t, err)

	capped, err := ParseSources(`[{"url":"a","content":"x"},{"url":"b","content":"y"}]`, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}
