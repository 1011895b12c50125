package jobs

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/sitebookify/internal/crawl"
	"github.com/jackzampolin/sitebookify/internal/extract"
	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/store"
)

func docsSiteFixture(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/docs/", page(`<html><head><title>Docs Home</title></head><body>
<main><h1>Docs Home</h1><p>welcome</p>
<a href="intro?ref=1#top">intro</a>
<a href="./advanced">advanced</a>
<a href="/outside">outside</a>
</main></body></html>`))
	mux.HandleFunc("/docs/intro", page(`<html><head><title>Intro</title></head><body>
<main><h1>Intro</h1><p>intro body</p></main></body></html>`))
	mux.HandleFunc("/docs/advanced", page(`<html><head><title>Advanced</title></head><body>
<main><h1>Advanced</h1><p>advanced body</p></main></body></html>`))
	mux.HandleFunc("/outside", page(`<html><body><h1>Outside</h1></body></html>`))
	return httptest.NewServer(mux)
}

// groupAllEngine answers a toc plan putting every page into one chapter, in
// input order.
type groupAllEngine struct{}

func (groupAllEngine) Rewrite(_ context.Context, _, input string) (string, error) {
	var parsed struct {
		Pages []struct {
			ID string `json:"id"`
		} `json:"pages"`
	}
	if err := json.Unmarshal([]byte(input), &parsed); err != nil {
		return "", err
	}
	ids := make([]string, len(parsed.Pages))
	for i, p := range parsed.Pages {
		ids[i] = p.ID
	}
	plan := map[string]any{
		"book_title": "Docs Book",
		"chapters": []map[string]any{
			{"title": "All Pages", "sources": ids},
		},
	}
	out, err := json.Marshal(plan)
	return string(out), err
}

func newTestJob(t *testing.T, js *store.LocalFSJobStore, req *formats.StartJobRequest) *formats.Job {
	t.Helper()
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		t.Fatal(err)
	}
	job := &formats.Job{
		JobID:     "job-pipeline-test",
		Status:    formats.StatusQueued,
		CreatedAt: time.Now().UTC(),
		WorkDir:   js.WorkDir("job-pipeline-test"),
	}
	if err := js.Create(job, req); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestPipelineDocsSite(t *testing.T) {
	srv := docsSiteFixture(t)
	defer srv.Close()

	base := t.TempDir()
	js := store.NewLocalFSJobStore(base)
	as := store.NewLocalFSArtifactStore(js)

	factory := NewPipelineFactory(PipelineConfig{
		HTTPClient: srv.Client(),
		Engine:     groupAllEngine{},
	})
	runner := NewRunner(RunnerConfig{Store: js, Artifacts: as, Factory: factory})

	job := newTestJob(t, js, &formats.StartJobRequest{
		URL:       srv.URL + "/docs/",
		TocEngine: formats.EngineLLM,
		DelayMS:   1,
	})

	if err := runner.Run(context.Background(), job.JobID); err != nil {
		t.Fatal(err)
	}

	got, err := js.Get(job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != formats.StatusDone {
		t.Fatalf("status = %s, message = %q", got.Status, got.Message)
	}
	if got.ProgressPercent != 100 {
		t.Errorf("progress = %d", got.ProgressPercent)
	}

	// Crawl log: exactly /docs, /docs/intro, /docs/advanced; no query or
	// fragment survives normalization.
	records, err := crawl.ReadCrawlLog(filepath.Join(got.WorkDir, "raw"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("crawl records = %d: %+v", len(records), records)
	}
	wantPaths := map[string]bool{"/docs": true, "/docs/intro": true, "/docs/advanced": true}
	for _, rec := range records {
		if strings.ContainsAny(rec.NormalizedURL, "?#") {
			t.Errorf("record %q carries query/fragment", rec.NormalizedURL)
		}
		path := strings.TrimPrefix(rec.NormalizedURL, srv.URL)
		if !wantPaths[strings.TrimRight(path, "/")] {
			t.Errorf("unexpected record path %q", path)
		}
	}

	// Chapter 1 sources list exactly the three page URLs in order.
	ch01, err := os.ReadFile(filepath.Join(got.WorkDir, "book", "src", "chapters", "ch01.md"))
	if err != nil {
		t.Fatal(err)
	}
	idx := strings.Index(string(ch01), "## Sources")
	if idx < 0 {
		t.Fatal("chapter has no Sources section")
	}
	var sources []string
	for _, line := range strings.Split(string(ch01)[idx:], "\n") {
		if s, ok := strings.CutPrefix(line, "- "); ok {
			sources = append(sources, s)
		}
	}
	want := []string{srv.URL + "/docs", srv.URL + "/docs/advanced", srv.URL + "/docs/intro"}
	if len(sources) != len(want) {
		t.Fatalf("sources = %v", sources)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Errorf("sources[%d] = %q, want %q", i, sources[i], want[i])
		}
	}

	// The artifact holds book.md at the root.
	zr, err := zip.OpenReader(got.ArtifactPath)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	if len(zr.File) == 0 || zr.File[0].Name != "book.md" {
		t.Errorf("artifact entries = %v", zr.File)
	}

	// The EPUB is written into the workspace.
	if _, err := os.Stat(filepath.Join(got.WorkDir, "book.epub")); err != nil {
		t.Error("book.epub missing from workspace")
	}
}

type fixedDeepCrawler struct{}

func (fixedDeepCrawler) DeepCrawl(_ context.Context, query string, _ int) ([]extract.Source, error) {
	return []extract.Source{
		{URL: "https://example.com/a", Content: "# First\n\nabout " + query, TrustTier: "official"},
		{URL: "https://example.com/b", Content: "# Second\n\nmore detail", TrustTier: "community"},
	}, nil
}

func TestPipelineQueryDriven(t *testing.T) {
	base := t.TempDir()
	js := store.NewLocalFSJobStore(base)
	as := store.NewLocalFSArtifactStore(js)

	factory := NewPipelineFactory(PipelineConfig{DeepCrawler: fixedDeepCrawler{}})
	runner := NewRunner(RunnerConfig{Store: js, Artifacts: as, Factory: factory})

	job := newTestJob(t, js, &formats.StartJobRequest{Query: "example topic"})
	if err := runner.Run(context.Background(), job.JobID); err != nil {
		t.Fatal(err)
	}

	got, err := js.Get(job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != formats.StatusDone {
		t.Fatalf("status = %s, message = %q", got.Status, got.Message)
	}

	bundle, err := os.ReadFile(filepath.Join(got.WorkDir, "book.md"))
	if err != nil {
		t.Fatal(err)
	}
	for _, wantStr := range []string{"First", "Second", "https://example.com/a"} {
		if !strings.Contains(string(bundle), wantStr) {
			t.Errorf("bundle missing %q", wantStr)
		}
	}
}

func TestPipelineQueryWithoutBackend(t *testing.T) {
	factory := NewPipelineFactory(PipelineConfig{})
	req := &formats.StartJobRequest{Query: "q"}
	req.ApplyDefaults()
	if _, err := factory.Stages(req, t.TempDir()); err == nil {
		t.Error("expected error for query request without deep-crawl backend")
	}
}

func TestPipelineLLMEngineRequired(t *testing.T) {
	factory := NewPipelineFactory(PipelineConfig{})
	req := &formats.StartJobRequest{URL: "http://example.com/", TocEngine: formats.EngineLLM}
	req.ApplyDefaults()
	if _, err := factory.Stages(req, t.TempDir()); err == nil {
		t.Error("expected error for llm toc engine without backend")
	}
}
