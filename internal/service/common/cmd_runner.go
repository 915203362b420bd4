package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// stderrLimit bounds how much stderr is kept for error reporting
const stderrLimit = 64 * 1024

// CmdRunner is interface for executing external commands
type CmdRunner interface {
	// Run executes name and returns its stdout. Failures are *CmdError.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath resolves an executable in PATH
	LookPath(file string) (string, error)
}

// CmdError describes a failed command together with its captured stderr
type CmdError struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CmdError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Name, e.Err)
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

func (e *CmdError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the executable itself could not be found
func (e *CmdError) NotFound() bool {
	return errors.Is(e.Err, exec.ErrNotFound)
}

// realCmdRunner implements CmdRunner using os/exec
type realCmdRunner struct{}

// NewCmdRunner creates a new CmdRunner
func NewCmdRunner() CmdRunner {
	return &realCmdRunner{}
}

// Run executes external command with given arguments
func (r *realCmdRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	out, err := cmd.Output()
	if err != nil {
		cmdErr := &CmdError{Name: name, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		return out, cmdErr
	}
	return out, nil
}

func (r *realCmdRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// tailBuffer keeps only the last limit bytes written to it
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
