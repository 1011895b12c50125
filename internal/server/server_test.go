package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/sitebookify/internal/jobs"
	"github.com/jackzampolin/sitebookify/internal/preview"
	"github.com/jackzampolin/sitebookify/internal/store"
	"github.com/jackzampolin/sitebookify/internal/svcctx"
)

// testEnv wires a full in-process service against a fixture site.
type testEnv struct {
	server  *Server
	handler http.Handler
	queue   *jobs.InProcessQueue
	site    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/docs/", page(`<html><head><title>Home</title></head><body>
<main><h1>Home</h1><p>welcome</p><a href="guide">guide</a></main></body></html>`))
	mux.HandleFunc("/docs/guide", page(`<html><head><title>Guide</title></head><body>
<main><h1>Guide</h1><p>guide body</p></main></body></html>`))
	site := httptest.NewServer(mux)
	t.Cleanup(site.Close)

	base := t.TempDir()
	js := store.NewLocalFSJobStore(base)
	as := store.NewLocalFSArtifactStore(js)
	logger := slog.Default()

	factory := jobs.NewPipelineFactory(jobs.PipelineConfig{
		HTTPClient: site.Client(),
		Logger:     logger,
	})
	runner := jobs.NewRunner(jobs.RunnerConfig{Store: js, Artifacts: as, Factory: factory, Logger: logger})
	queue := jobs.NewInProcessQueue(1)
	dispatcher := jobs.NewInProcessDispatcher(queue, runner, logger)

	services := &svcctx.Services{
		Jobs:       js,
		Artifacts:  as,
		Dispatcher: dispatcher,
		Runner:     runner,
		Queue:      queue,
		Previewer:  preview.New(site.Client(), logger),
		Logger:     logger,
	}

	srv, err := New(Config{Services: services, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{server: srv, handler: srv.Handler(), queue: queue, site: site}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStartJobValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty request", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/jobs", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("both url and query", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/jobs", `{"url":"http://x.test/","query":"topic"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("bad scheme", func(t *testing.T) {
		rec := env.do(t, "POST", "/api/jobs", `{"url":"ftp://x.test/"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/api/jobs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJobLifecycle(t *testing.T) {
	env := newTestEnv(t)

	body := fmt.Sprintf(`{"url":%q,"delay_ms":1}`, env.site.URL+"/docs/")
	rec := env.do(t, "POST", "/api/jobs", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatal(err)
	}
	if started.JobID == "" || started.Status != "queued" {
		t.Fatalf("unexpected start response: %+v", started)
	}

	// Artifact is not ready while the job runs.
	rec = env.do(t, "GET", "/api/jobs/"+started.JobID+"/download", "")
	if rec.Code != http.StatusConflict && rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}

	env.queue.Wait()

	rec = env.do(t, "GET", "/api/jobs/"+started.JobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var job struct {
		Status          string `json:"status"`
		ProgressPercent int    `json:"progress_percent"`
		Message         string `json:"message"`
		ArtifactURL     string `json:"artifact_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	if job.Status != "done" {
		t.Fatalf("job status = %s, message = %q", job.Status, job.Message)
	}
	if job.ProgressPercent != 100 {
		t.Errorf("progress = %d", job.ProgressPercent)
	}
	if job.ArtifactURL != "/artifacts/"+started.JobID {
		t.Errorf("artifact_url = %s", job.ArtifactURL)
	}

	// Download URL is now available.
	rec = env.do(t, "GET", "/api/jobs/"+started.JobID+"/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", rec.Code, rec.Body.String())
	}
	var dl struct {
		URL        string `json:"url"`
		ExpiresSec int    `json:"expires_sec"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dl); err != nil {
		t.Fatal(err)
	}
	if dl.ExpiresSec != 3600 {
		t.Errorf("expires_sec = %d", dl.ExpiresSec)
	}
	if !strings.HasSuffix(dl.URL, "/artifacts/"+started.JobID) {
		t.Errorf("url = %s", dl.URL)
	}

	// The artifact streams as a ZIP attachment.
	rec = env.do(t, "GET", "/artifacts/"+started.JobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("artifact status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content-type = %s", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "sitebookify-"+started.JobID+".zip") {
		t.Errorf("content-disposition = %s", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("artifact body is not a zip")
	}
}

func TestArtifactNotReady(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/artifacts/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing url", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/preview", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("link walk fallback", func(t *testing.T) {
		rec := env.do(t, "GET", "/api/preview?url="+env.site.URL+"/docs/", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var res struct {
			Source         string `json:"source"`
			EstimatedPages int    `json:"estimated_pages"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if res.Source != "crawl" {
			t.Errorf("source = %s", res.Source)
		}
		if res.EstimatedPages != 2 {
			t.Errorf("estimated_pages = %d", res.EstimatedPages)
		}
	})
}

func TestInternalRunAcceptsWithoutTokenConfigured(t *testing.T) {
	env := newTestEnv(t)

	// Create a job record directly so the runner has something to load.
	rec := env.do(t, "POST", "/api/jobs", fmt.Sprintf(`{"url":%q,"delay_ms":1}`, env.site.URL+"/docs/"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d", rec.Code)
	}
	var started struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatal(err)
	}
	env.queue.Wait()

	// Re-running a finished id is accepted; the run itself fails because the
	// workspace already exists, leaving the job in error.
	rec = env.do(t, "POST", "/internal/jobs/"+started.JobID+"/run", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("run status = %d: %s", rec.Code, rec.Body.String())
	}
	env.queue.Wait()
}
