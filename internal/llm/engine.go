// Package llm provides the text-in/text-out engines behind the TOC and
// render stages: an OpenAI-backed engine and an external command engine.
package llm

import "context"

// Engine is an opaque text service: instructions plus input in, text out.
// Both the TOC planner and the rewrite protocol speak through this interface.
type Engine interface {
	Rewrite(ctx context.Context, instructions, input string) (string, error)
}
