package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sitebookify/internal/api"
	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/store"
	"github.com/jackzampolin/sitebookify/internal/svcctx"
)

// ArtifactEndpoint handles GET /artifacts/{job_id}, streaming the finished
// ZIP as an attachment.
type ArtifactEndpoint struct{}

func (e *ArtifactEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/artifacts/{job_id}", e.handler
}

func (e *ArtifactEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Download the job artifact
//	@Produce		application/zip
//	@Param			job_id	path	string	true	"Job ID"
//	@Success		200
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/artifacts/{job_id} [get]
func (e *ArtifactEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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
	if job.ArtifactPath == "" {
		writeError(w, http.StatusNotFound, "job has no artifact")
		return
	}
	if _, err := os.Stat(job.ArtifactPath); err != nil {
		writeError(w, http.StatusNotFound, "artifact file missing")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sitebookify-"+jobID+".zip"))
	http.ServeFile(w, r, job.ArtifactPath)
}

func (e *ArtifactEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "fetch <job_id>",
		Short: "Download the artifact ZIP for a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = "sitebookify-" + args[0] + ".zip"
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			client := api.NewClient(getServerURL())
			if err := client.Download(cmd.Context(), "/artifacts/"+args[0], f); err != nil {
				os.Remove(out)
				return err
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default sitebookify-<job_id>.zip)")
	return cmd
}
