package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/sitebookify/internal/api"
	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/store"
	"github.com/jackzampolin/sitebookify/internal/svcctx"
)

// DownloadURLTTLSec is the advertised lifetime of a download URL.
const DownloadURLTTLSec = 3600

// StartJobResponse is the response for starting a job.
type StartJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobResponse is the job status view returned to clients.
type JobResponse struct {
	JobID           string `json:"job_id"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	Message         string `json:"message"`
	ArtifactURL     string `json:"artifact_url,omitempty"`
}

// DownloadURLResponse carries the artifact download location.
type DownloadURLResponse struct {
	URL        string `json:"url"`
	ExpiresSec int    `json:"expires_sec"`
}

// StartJobEndpoint handles POST /api/jobs. The request carries either a start
// URL or a topical query; a fresh job id is minted, the records are persisted,
// and the job is dispatched before the response is written. Dispatch failure
// is a job-creation failure.
type StartJobEndpoint struct{}

func (e *StartJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs", e.handler
}

func (e *StartJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start a book-building job
//	@Description	Crawl a site (url) or research a topic (query) into a book
//	@Accept			json
//	@Produce		json
//	@Param			request	body		formats.StartJobRequest	true	"Job request"
//	@Success		202		{object}	StartJobResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/jobs [post]
func (e *StartJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req formats.StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs := svcctx.JobStoreFrom(r.Context())
	dispatcher := svcctx.DispatcherFrom(r.Context())
	if jobs == nil || dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "job service not initialized")
		return
	}

	jobID := uuid.NewString()
	job := &formats.Job{
		JobID:     jobID,
		Status:    formats.StatusQueued,
		CreatedAt: time.Now().UTC(),
		WorkDir:   jobs.WorkDir(jobID),
	}
	if err := jobs.Create(job, &req); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create job: %v", err))
		return
	}

	if err := dispatcher.Dispatch(r.Context(), jobID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to dispatch job: %v", err))
		return
	}

	writeJSON(w, http.StatusAccepted, StartJobResponse{JobID: jobID, Status: string(formats.StatusQueued)})
}

func (e *StartJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req formats.StartJobRequest
	var query string
	cmd := &cobra.Command{
		Use:   "start [url]",
		Short: "Start a book-building job",
		Long: `Start a job that turns a website or a topical query into a book.

With a URL argument the site is crawled in scope; with --query the topic is
researched through the deep-crawl backend instead.

The command submits the job and returns immediately.
Use 'sitebookify api get <job-id>' to check progress.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.URL = args[0]
			}
			req.Query = query

			client := api.NewClient(getServerURL())
			var resp StartJobResponse
			if err := client.Post(cmd.Context(), "/api/jobs", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Topical query instead of a start URL")
	cmd.Flags().StringVar(&req.Title, "title", "", "Book title override")
	cmd.Flags().IntVar(&req.MaxPages, "max-pages", 0, "Page cap (default 200)")
	cmd.Flags().IntVar(&req.MaxDepth, "max-depth", 0, "Crawl depth cap (default 8)")
	cmd.Flags().IntVar(&req.Concurrency, "concurrency", 0, "Crawl concurrency (default 4)")
	cmd.Flags().IntVar(&req.DelayMS, "delay-ms", 0, "Per-fetch delay in milliseconds (default 200)")
	cmd.Flags().StringVar(&req.Language, "language", "", "Output language (default 日本語)")
	cmd.Flags().StringVar(&req.Tone, "tone", "", "Output tone (default 丁寧)")
	cmd.Flags().StringVar((*string)(&req.TocEngine), "toc-engine", "", "TOC engine: noop, command, llm")
	cmd.Flags().StringVar((*string)(&req.RenderEngine), "render-engine", "", "Render engine: noop, command, llm")
	return cmd
}

// GetJobEndpoint handles GET /api/jobs/{job_id}.
type GetJobEndpoint struct{}

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{job_id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get job status
//	@Produce		json
//	@Param			job_id	path		string	true	"Job ID"
//	@Success		200		{object}	JobResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/jobs/{job_id} [get]
func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	jobs := svcctx.JobStoreFrom(r.Context())
	if jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job service not initialized")
		return
	}

	job, err := jobs.Get(jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := JobResponse{
		JobID:           job.JobID,
		Status:          string(job.Status),
		ProgressPercent: job.ProgressPercent,
		Message:         job.Message,
	}
	if job.Status == formats.StatusDone {
		resp.ArtifactURL = "/artifacts/" + job.JobID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job_id>",
		Short: "Get job status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobResponse
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DownloadURLEndpoint handles GET /api/jobs/{job_id}/download. It fails
// precondition while the job is not done.
type DownloadURLEndpoint struct{}

func (e *DownloadURLEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{job_id}/download", e.handler
}

func (e *DownloadURLEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get the artifact download URL
//	@Produce		json
//	@Param			job_id	path		string	true	"Job ID"
//	@Success		200		{object}	DownloadURLResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/jobs/{job_id}/download [get]
func (e *DownloadURLEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	jobs := svcctx.JobStoreFrom(r.Context())
	if jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job service not initialized")
		return
	}

	job, err := jobs.Get(jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job.Status != formats.StatusDone {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, artifact not ready", job.Status))
		return
	}

	base := ""
	if cm := svcctx.ConfigFrom(r.Context()); cm != nil {
		base = cm.Get().BaseURL()
	}
	writeJSON(w, http.StatusOK, DownloadURLResponse{
		URL:        base + "/artifacts/" + job.JobID,
		ExpiresSec: DownloadURLTTLSec,
	})
}

func (e *DownloadURLEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "download <job_id>",
		Short: "Get the artifact download URL for a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp DownloadURLResponse
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0]+"/download", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
