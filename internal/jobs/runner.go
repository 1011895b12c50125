package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/store"
)

// Stage is one step of the job pipeline. Progress is the checkpoint persisted
// after the stage completes.
type Stage struct {
	Name     string
	Progress int
	Run      func(ctx context.Context) error
}

// StageFactory builds the ordered stage list for a request. The factory
// decides between the site-crawl and query-driven acquisition front-ends.
type StageFactory interface {
	Stages(req *formats.StartJobRequest, workDir string) ([]Stage, error)
}

// Runner drives one job through the pipeline, persisting every state
// transition. A job is terminal on its first stage failure; there is no
// automatic retry.
type Runner struct {
	store     store.JobStore
	artifacts store.ArtifactStore
	factory   StageFactory
	logger    *slog.Logger
}

// RunnerConfig holds Runner dependencies.
type RunnerConfig struct {
	Store     store.JobStore
	Artifacts store.ArtifactStore
	Factory   StageFactory
	Logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		store:     cfg.Store,
		artifacts: cfg.Artifacts,
		factory:   cfg.Factory,
		logger:    cfg.Logger,
	}
}

// Run executes the pipeline for one job id. Stage failures are captured into
// the job record and not returned; only failures to load or persist job
// state surface as errors.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.store.Get(jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	req, err := r.store.GetRequest(jobID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", jobID, err)
	}

	now := time.Now().UTC()
	job.Status = formats.StatusRunning
	job.StartedAt = &now
	job.ProgressPercent = 0
	job.Message = "starting"
	if err := r.store.Put(job); err != nil {
		return fmt.Errorf("persist running state: %w", err)
	}
	r.logger.Info("job started", "job_id", jobID)

	if err := r.runPipeline(ctx, job, req); err != nil {
		r.markError(job, err)
		return nil
	}

	artifactPath, err := r.artifacts.CreateZip(jobID, job.WorkDir)
	if err != nil {
		r.markError(job, fmt.Errorf("create artifact: %w", err))
		return nil
	}

	finished := time.Now().UTC()
	job.Status = formats.StatusDone
	job.ProgressPercent = 100
	job.Message = "done"
	job.ArtifactPath = artifactPath
	job.FinishedAt = &finished
	if err := r.store.Put(job); err != nil {
		return fmt.Errorf("persist done state: %w", err)
	}
	r.logger.Info("job done", "job_id", jobID, "artifact", artifactPath)
	return nil
}

func (r *Runner) runPipeline(ctx context.Context, job *formats.Job, req *formats.StartJobRequest) error {
	if job.WorkDir == "" {
		return fmt.Errorf("job has no work_dir")
	}
	// A pre-existing workspace means this id already ran.
	if _, err := os.Stat(job.WorkDir); err == nil {
		return fmt.Errorf("work dir already exists: %s", job.WorkDir)
	}
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	stages, err := r.factory.Stages(req, job.WorkDir)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	for _, stage := range stages {
		r.logger.Info("stage starting", "job_id", job.JobID, "stage", stage.Name)
		if err := stage.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", stage.Name, err)
		}
		job.ProgressPercent = stage.Progress
		job.Message = stage.Name
		if err := r.store.Put(job); err != nil {
			return fmt.Errorf("persist progress after %s: %w", stage.Name, err)
		}
	}
	return nil
}

func (r *Runner) markError(job *formats.Job, cause error) {
	finished := time.Now().UTC()
	job.Status = formats.StatusError
	job.Message = cause.Error()
	job.FinishedAt = &finished
	if err := r.store.Put(job); err != nil {
		r.logger.Error("failed to persist error state", "job_id", job.JobID, "error", err)
	}
	r.logger.Error("job failed", "job_id", job.JobID, "error", cause)
}
