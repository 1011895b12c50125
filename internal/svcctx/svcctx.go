// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/sitebookify/internal/config"
	"github.com/jackzampolin/sitebookify/internal/home"
	"github.com/jackzampolin/sitebookify/internal/jobs"
	"github.com/jackzampolin/sitebookify/internal/preview"
	"github.com/jackzampolin/sitebookify/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config     *config.Manager
	Home       *home.Dir
	Jobs       store.JobStore
	Artifacts  store.ArtifactStore
	Dispatcher jobs.Dispatcher
	Runner     *jobs.Runner
	Queue      *jobs.InProcessQueue
	Previewer  *preview.Previewer
	Logger     *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// JobStoreFrom extracts the job store from context.
func JobStoreFrom(ctx context.Context) store.JobStore {
	if s := ServicesFrom(ctx); s != nil {
		return s.Jobs
	}
	return nil
}

// ArtifactStoreFrom extracts the artifact store from context.
func ArtifactStoreFrom(ctx context.Context) store.ArtifactStore {
	if s := ServicesFrom(ctx); s != nil {
		return s.Artifacts
	}
	return nil
}

// DispatcherFrom extracts the job dispatcher from context.
func DispatcherFrom(ctx context.Context) jobs.Dispatcher {
	if s := ServicesFrom(ctx); s != nil {
		return s.Dispatcher
	}
	return nil
}

// RunnerFrom extracts the job runner from context.
func RunnerFrom(ctx context.Context) *jobs.Runner {
	if s := ServicesFrom(ctx); s != nil {
		return s.Runner
	}
	return nil
}

// QueueFrom extracts the in-process queue from context.
func QueueFrom(ctx context.Context) *jobs.InProcessQueue {
	if s := ServicesFrom(ctx); s != nil {
		return s.Queue
	}
	return nil
}

// PreviewerFrom extracts the crawl previewer from context.
func PreviewerFrom(ctx context.Context) *preview.Previewer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Previewer
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
