// Package formats defines the records shared across pipeline stages:
// job metadata, crawl log lines, extracted page front matter, the manifest,
// and the table of contents.
package formats

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusError   JobStatus = "error"
)

// Job is the persisted job record. Progress is monotonic within a run and
// ArtifactPath is set only when the job is done.
type Job struct {
	JobID           string     `json:"job_id"`
	Status          JobStatus  `json:"status"`
	ProgressPercent int        `json:"progress_percent"`
	Message         string     `json:"message"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	WorkDir         string     `json:"work_dir"`
	ArtifactPath    string     `json:"artifact_path,omitempty"`
}

// EngineKind selects a TOC or render engine implementation.
type EngineKind string

const (
	EngineNoop    EngineKind = "noop"
	EngineCommand EngineKind = "command"
	EngineLLM     EngineKind = "llm"
)

// ParseEngine maps an engine selector string to an EngineKind.
// Unknown strings fall back to noop.
func ParseEngine(s string) EngineKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(EngineCommand):
		return EngineCommand
	case string(EngineLLM):
		return EngineLLM
	default:
		return EngineNoop
	}
}

// Request defaults applied by ApplyDefaults.
const (
	DefaultMaxPages    = 200
	DefaultMaxDepth    = 8
	DefaultConcurrency = 4
	DefaultDelayMS     = 200
	DefaultLanguage    = "日本語"
	DefaultTone        = "丁寧"
)

// StartJobRequest is the immutable request that created a job.
// Exactly one of URL or Query must be non-empty.
type StartJobRequest struct {
	URL          string     `json:"url,omitempty"`
	Query        string     `json:"query,omitempty"`
	Title        string     `json:"title,omitempty"`
	MaxPages     int        `json:"max_pages"`
	MaxDepth     int        `json:"max_depth"`
	Concurrency  int        `json:"concurrency"`
	DelayMS      int        `json:"delay_ms"`
	Language     string     `json:"language"`
	Tone         string     `json:"tone"`
	TocEngine    EngineKind `json:"toc_engine"`
	RenderEngine EngineKind `json:"render_engine"`
}

// ApplyDefaults fills zero-valued knobs with their documented defaults.
func (r *StartJobRequest) ApplyDefaults() {
	if r.MaxPages <= 0 {
		r.MaxPages = DefaultMaxPages
	}
	if r.MaxDepth <= 0 {
		r.MaxDepth = DefaultMaxDepth
	}
	if r.Concurrency <= 0 {
		r.Concurrency = DefaultConcurrency
	}
	if r.DelayMS <= 0 {
		r.DelayMS = DefaultDelayMS
	}
	if strings.TrimSpace(r.Language) == "" {
		r.Language = DefaultLanguage
	}
	if strings.TrimSpace(r.Tone) == "" {
		r.Tone = DefaultTone
	}
	r.TocEngine = ParseEngine(string(r.TocEngine))
	r.RenderEngine = ParseEngine(string(r.RenderEngine))
}

// Validate checks the request invariants. Requests carrying both a URL and a
// query are rejected as ambiguous.
func (r *StartJobRequest) Validate() error {
	hasURL := strings.TrimSpace(r.URL) != ""
	hasQuery := strings.TrimSpace(r.Query) != ""
	switch {
	case hasURL && hasQuery:
		return errors.New("request must carry either url or query, not both")
	case !hasURL && !hasQuery:
		return errors.New("request must carry a url or a query")
	}
	if hasURL {
		u, err := url.Parse(r.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("url has no host")
		}
	}
	return nil
}

// CrawlRecord is one line of crawl.jsonl, one per observed URL.
type CrawlRecord struct {
	URL           string `json:"url"`
	NormalizedURL string `json:"normalized_url"`
	Depth         int    `json:"depth"`
	Status        int    `json:"status"`
	RetrievedAt   string `json:"retrieved_at"`
	RawHTMLPath   string `json:"raw_html_path,omitempty"`
}

// FrontMatter is the YAML header of an extracted page file.
type FrontMatter struct {
	ID          string `yaml:"id"`
	URL         string `yaml:"url"`
	RetrievedAt string `yaml:"retrieved_at"`
	RawHTMLPath string `yaml:"raw_html_path,omitempty"`
	Title       string `yaml:"title"`
	TrustTier   string `yaml:"trust_tier,omitempty"`
}

// PageID derives the deterministic page id for a normalized URL.
func PageID(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return "p_" + hex.EncodeToString(sum[:])
}

// ComposePage renders an extracted page file: YAML front matter between
// --- fences followed by the Markdown body.
func ComposePage(fm FrontMatter, body string) (string, error) {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("marshal front matter: %w", err)
	}
	return "---\n" + string(data) + "---\n\n" + body, nil
}

// SplitPage separates a page file into its front matter and body.
func SplitPage(content string) (FrontMatter, string, error) {
	var fm FrontMatter
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return fm, "", errors.New("missing front matter opening fence")
	}
	idx := strings.Index(rest, "\n---\n")
	if idx < 0 {
		return fm, "", errors.New("missing front matter closing fence")
	}
	header := rest[:idx+1]
	body := strings.TrimPrefix(rest[idx+len("\n---\n"):], "\n")
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", fmt.Errorf("parse front matter: %w", err)
	}
	return fm, body, nil
}

// ManifestRecord is one line of manifest.jsonl. Path is the URL path
// component and is the manifest sort key.
type ManifestRecord struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Path        string `json:"path"`
	ExtractedMD string `json:"extracted_md"`
	TrustTier   string `json:"trust_tier,omitempty"`
}

// Toc is the validated table of contents written to toc.yaml.
type Toc struct {
	BookTitle string `yaml:"book_title"`
	Parts     []Part `yaml:"parts"`
}

// Part groups chapters under a title.
type Part struct {
	Title    string    `yaml:"title"`
	Chapters []Chapter `yaml:"chapters"`
}

// Chapter references manifest pages by id. ID is ch01..ch99, assigned when
// the plan is stamped.
type Chapter struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Sources []string `yaml:"sources"`
}

// Chapters returns all chapters across parts in order.
func (t *Toc) Chapters() []Chapter {
	var out []Chapter
	for _, p := range t.Parts {
		out = append(out, p.Chapters...)
	}
	return out
}

// TocPlan is the raw engine output before validation and id stamping.
type TocPlan struct {
	BookTitle string        `json:"book_title,omitempty"`
	Chapters  []PlanChapter `json:"chapters"`
}

// PlanChapter is a chapter proposal from a TOC engine.
type PlanChapter struct {
	Title   string   `json:"title"`
	Sources []string `json:"sources"`
}
