package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Environment variables passed to command engines. The prompt travels in
// SITEBOOKIFY_PROMPT; input and output travel both via stdio and the two
// path variables so shell-unfriendly programs can use files instead.
const (
	EnvPrompt     = "SITEBOOKIFY_PROMPT"
	EnvInputPath  = "SITEBOOKIFY_INPUT"
	EnvOutputPath = "SITEBOOKIFY_OUTPUT"
)

// CommandEngine implements Engine by running an external program. Input is
// piped to stdin; the response is read from the output file if the program
// wrote one, otherwise from stdout.
type CommandEngine struct {
	Bin  string
	Args []string
}

// NewCommandEngine creates a command-backed engine.
func NewCommandEngine(bin string, args ...string) *CommandEngine {
	return &CommandEngine{Bin: bin, Args: args}
}

// Rewrite implements Engine.
func (e *CommandEngine) Rewrite(ctx context.Context, instructions, input string) (string, error) {
	if e.Bin == "" {
		return "", fmt.Errorf("command engine has no binary configured")
	}

	tmpDir := os.TempDir()
	suffix := uuid.NewString()
	inPath := filepath.Join(tmpDir, "sitebookify-in-"+suffix)
	outPath := filepath.Join(tmpDir, "sitebookify-out-"+suffix)
	if err := os.WriteFile(inPath, []byte(input), 0o600); err != nil {
		return "", fmt.Errorf("write engine input: %w", err)
	}
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, e.Bin, e.Args...)
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		EnvPrompt+"="+instructions,
		EnvInputPath+"="+inPath,
		EnvOutputPath+"="+outPath,
	)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("engine command %s failed: %w (stderr: %s)",
			e.Bin, err, strings.TrimSpace(stderr.String()))
	}

	if data, err := os.ReadFile(outPath); err == nil && len(bytes.TrimSpace(data)) > 0 {
		return string(data), nil
	}
	return stdout.String(), nil
}
