// Package store persists job records and produces the downloadable artifact.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

// ErrNotFound is returned when a job or request record does not exist.
var ErrNotFound = errors.New("job not found")

// JobStore is durable storage for job metadata keyed by job id.
type JobStore interface {
	// Create persists both the job and its originating request.
	// It fails if a record for the id already exists.
	Create(job *formats.Job, req *formats.StartJobRequest) error
	// Get returns the job record, or ErrNotFound.
	Get(id string) (*formats.Job, error)
	// GetRequest returns the start request, or ErrNotFound.
	GetRequest(id string) (*formats.StartJobRequest, error)
	// Put replaces the persisted job record.
	Put(job *formats.Job) error
	// WorkDir returns the workspace directory assigned to a job id.
	WorkDir(id string) string
}

// LocalFSJobStore stores jobs under <base>/jobs/<id>/ as JSON files.
// Writes go to a temp file then rename, so readers never observe a torn file.
type LocalFSJobStore struct {
	base string
}

// NewLocalFSJobStore creates a job store rooted at base.
func NewLocalFSJobStore(base string) *LocalFSJobStore {
	return &LocalFSJobStore{base: base}
}

// JobDir returns the directory holding a job's records and workspace.
func (s *LocalFSJobStore) JobDir(id string) string {
	return filepath.Join(s.base, "jobs", id)
}

func (s *LocalFSJobStore) jobPath(id string) string {
	return filepath.Join(s.JobDir(id), "job.json")
}

func (s *LocalFSJobStore) requestPath(id string) string {
	return filepath.Join(s.JobDir(id), "request.json")
}

// WorkDir returns the workspace directory for a job.
func (s *LocalFSJobStore) WorkDir(id string) string {
	return filepath.Join(s.JobDir(id), "work")
}

func (s *LocalFSJobStore) Create(job *formats.Job, req *formats.StartJobRequest) error {
	dir := s.JobDir(job.JobID)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	if err := writeJSONAtomic(s.jobPath(job.JobID), job); err != nil {
		return fmt.Errorf("write job record: %w", err)
	}
	if err := writeJSONAtomic(s.requestPath(job.JobID), req); err != nil {
		return fmt.Errorf("write request record: %w", err)
	}
	return nil
}

func (s *LocalFSJobStore) Get(id string) (*formats.Job, error) {
	var job formats.Job
	if err := readJSON(s.jobPath(id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *LocalFSJobStore) GetRequest(id string) (*formats.StartJobRequest, error) {
	var req formats.StartJobRequest
	if err := readJSON(s.requestPath(id), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *LocalFSJobStore) Put(job *formats.Job) error {
	if _, err := os.Stat(s.JobDir(job.JobID)); err != nil {
		return fmt.Errorf("job %s: %w", job.JobID, ErrNotFound)
	}
	if err := writeJSONAtomic(s.jobPath(job.JobID), job); err != nil {
		return fmt.Errorf("write job record: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSONAtomic writes v as indented JSON to a temp file in the target
// directory, then renames it into place. The temp name carries a random
// suffix so concurrent writers never collide.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
