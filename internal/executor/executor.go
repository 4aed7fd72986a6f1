// Package executor runs generated snippets in an isolated environment so a
// user can see what the code actually prints.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TimeoutExitCode is reported when a program is killed for running too long,
// matching the exit status of coreutils `timeout`.
const TimeoutExitCode = 124

// Program is a piece of source code and the language it is written in.
// An empty Language means python, which is what the generation prompt asks for.
type Program struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// Result is what a program printed and how it exited.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Runner executes a Program. Implementations must not return an error for a
// program that merely fails; that is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, p Program) (*Result, error)
}

// Command returns the argv that runs p inside a sandbox image.
func Command(p Program) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(p.Language)) {
	case "", "python", "py", "python3":
		return []string{"python", "-c", p.Code}, nil
	case "sh", "shell", "bash":
		return []string{"sh", "-c", p.Code}, nil
	default:
		return nil, fmt.Errorf("executor: unsupported language %q", p.Language)
	}
}
