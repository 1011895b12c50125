package endpoints

import (
	"context"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sitebookify/internal/api"
	"github.com/jackzampolin/sitebookify/internal/svcctx"
)

// RunJobEndpoint handles POST /internal/jobs/{job_id}/run. It is the worker
// half of worker-mode dispatch: the control plane forwards job ids here and
// this host executes them on its local queue. Requests must carry the shared
// bearer token when one is configured.
type RunJobEndpoint struct{}

func (e *RunJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/internal/jobs/{job_id}/run", e.handler
}

func (e *RunJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Run a dispatched job on this host
//	@Produce		json
//	@Param			job_id	path		string	true	"Job ID"
//	@Success		202		{object}	StartJobResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/internal/jobs/{job_id}/run [post]
func (e *RunJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cm := svcctx.ConfigFrom(r.Context()); cm != nil {
		token = cm.Get().ResolvedWorkerToken()
	}
	if token != "" {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got != token {
			writeError(w, http.StatusUnauthorized, "invalid worker token")
			return
		}
	}

	jobID := r.PathValue("job_id")
	runner := svcctx.RunnerFrom(r.Context())
	queue := svcctx.QueueFrom(r.Context())
	logger := svcctx.LoggerFrom(r.Context())
	if runner == nil || queue == nil {
		writeError(w, http.StatusServiceUnavailable, "runner not initialized")
		return
	}

	queue.Spawn(func() {
		// The run outlives the dispatch request.
		if err := runner.Run(context.Background(), jobID); err != nil && logger != nil {
			logger.Error("job run failed", "job_id", jobID, "error", err)
		}
	})

	writeJSON(w, http.StatusAccepted, StartJobResponse{JobID: jobID, Status: "running"})
}

func (e *RunJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:    "run <job_id>",
		Short:  "Run a job on this host (worker internal)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StartJobResponse
			if err := client.Post(cmd.Context(), "/internal/jobs/"+args[0]+"/run", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
