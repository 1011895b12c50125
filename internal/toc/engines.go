package toc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/llm"
)

// planInstructions is the prompt sent to command and llm engines.
const planInstructions = `You are organizing extracted web pages into a book.
Given a JSON list of pages (id, title, path, url), respond with a single JSON
object of the form {"book_title": "...", "chapters": [{"title": "...",
"sources": ["<page id>", ...]}]}. Group related pages into coherent chapters
ordered for reading. Use every id at most once. Respond with JSON only.`

// planSchema constrains engine output before it is trusted.
const planSchema = `{
  "type": "object",
  "required": ["chapters"],
  "properties": {
    "book_title": {"type": "string"},
    "chapters": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title", "sources"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "sources": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string"}
          }
        }
      }
    }
  }
}`

var compiledPlanSchema = jsonschema.MustCompileString("tocplan.json", planSchema)

// Planner produces a TocPlan from the manifest.
type Planner interface {
	Plan(ctx context.Context, records []formats.ManifestRecord) (*formats.TocPlan, error)
}

// NoopPlanner emits one chapter per manifest page in manifest order.
type NoopPlanner struct{}

func (NoopPlanner) Plan(_ context.Context, records []formats.ManifestRecord) (*formats.TocPlan, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}
	if len(records) > MaxChapters {
		return nil, fmt.Errorf("manifest has %d pages, noop engine supports at most %d", len(records), MaxChapters)
	}
	plan := &formats.TocPlan{}
	for _, rec := range records {
		title := rec.Title
		if strings.TrimSpace(title) == "" {
			title = rec.Path
		}
		plan.Chapters = append(plan.Chapters, formats.PlanChapter{
			Title:   title,
			Sources: []string{rec.ID},
		})
	}
	return plan, nil
}

// EnginePlanner drives an llm.Engine (OpenAI or external command) and parses
// the JSON object out of its response.
type EnginePlanner struct {
	Engine llm.Engine
}

func (p *EnginePlanner) Plan(ctx context.Context, records []formats.ManifestRecord) (*formats.TocPlan, error) {
	input, err := planInput(records)
	if err != nil {
		return nil, err
	}
	out, err := p.Engine.Rewrite(ctx, planInstructions, input)
	if err != nil {
		return nil, fmt.Errorf("toc engine: %w", err)
	}
	return ParsePlan(out)
}

type planPage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
	URL   string `json:"url"`
}

func planInput(records []formats.ManifestRecord) (string, error) {
	pages := make([]planPage, len(records))
	for i, rec := range records {
		pages[i] = planPage{ID: rec.ID, Title: rec.Title, Path: rec.Path, URL: rec.URL}
	}
	data, err := json.MarshalIndent(map[string]any{"pages": pages}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal plan input: %w", err)
	}
	return string(data), nil
}

// ParsePlan extracts the outermost JSON object from engine output, checks it
// against the plan schema, and decodes it.
func ParsePlan(raw string) (*formats.TocPlan, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var value any
	if err := json.Unmarshal([]byte(obj), &value); err != nil {
		return nil, fmt.Errorf("parse plan JSON: %w", err)
	}
	if err := compiledPlanSchema.Validate(value); err != nil {
		return nil, fmt.Errorf("plan does not match schema: %w", err)
	}

	var plan formats.TocPlan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &plan, nil
}

// extractJSONObject returns the substring between the first '{' and the last
// '}' so engines may surround the object with prose or code fences.
func extractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("engine output contains no JSON object")
	}
	return raw[start : end+1], nil
}
