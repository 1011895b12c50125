package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ExecutionMode selects where dispatched jobs run.
type ExecutionMode string

const (
	// ModeInProcess runs jobs on the local queue.
	ModeInProcess ExecutionMode = "inprocess"
	// ModeWorker forwards jobs to a remote worker host over HTTP.
	ModeWorker ExecutionMode = "worker"
)

// ParseExecutionMode maps a config string to an ExecutionMode.
// The empty string means in-process.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeInProcess):
		return ModeInProcess, nil
	case string(ModeWorker):
		return ModeWorker, nil
	default:
		return "", fmt.Errorf("unknown execution mode: %q", s)
	}
}

// Dispatcher routes a freshly created job id to an executor. A dispatch
// failure is a job-creation failure; dispatchers never retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// InProcessDispatcher enqueues jobs onto the local queue.
type InProcessDispatcher struct {
	queue  *InProcessQueue
	runner *Runner
	logger *slog.Logger
}

// NewInProcessDispatcher creates a dispatcher backed by the local queue.
func NewInProcessDispatcher(queue *InProcessQueue, runner *Runner, logger *slog.Logger) *InProcessDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessDispatcher{queue: queue, runner: runner, logger: logger}
}

func (d *InProcessDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.logger.Info("dispatching job in-process", "job_id", jobID)
	d.queue.Spawn(func() {
		// The job outlives the originating request.
		if err := d.runner.Run(context.Background(), jobID); err != nil {
			d.logger.Error("job run failed", "job_id", jobID, "error", err)
		}
	})
	return nil
}

// WorkerDispatcher forwards jobs to a worker host via
// POST {base}/internal/jobs/{id}/run with bearer auth.
type WorkerDispatcher struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewWorkerDispatcher creates a dispatcher targeting the given worker base URL.
func NewWorkerDispatcher(baseURL, token string, logger *slog.Logger) *WorkerDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Dispatch issues the run request. Any status outside 2xx is a failure
// carrying the response status and body.
func (d *WorkerDispatcher) Dispatch(ctx context.Context, jobID string) error {
	url := fmt.Sprintf("%s/internal/jobs/%s/run", d.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build worker request: %w", err)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	d.logger.Info("dispatching job to worker", "job_id", jobID, "url", url)
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch to worker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("worker dispatch failed (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}
