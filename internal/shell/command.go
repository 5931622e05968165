// -----------------------------------------------------------------------
// Shell Command Execution - Blocking subprocess invocation with line streaming
// -----------------------------------------------------------------------

package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrCommandFailed indicates an external command exited with a non-zero status.
var ErrCommandFailed = errors.New("command failed")

// LineFunc receives one line of combined stdout/stderr output, without the
// trailing newline. A nil LineFunc discards output.
type LineFunc func(line string)

// Command describes one external tool invocation. Dir is the working
// directory for the command; an empty Dir runs in the caller's directory.
// There is no process-wide chdir anywhere in this program.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// String renders the command the way it would be typed at a prompt.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Base returns the executable's base name, used as a prefix when echoing
// command output.
func (c Command) Base() string {
	return filepath.Base(c.Name)
}

// Runner executes external commands synchronously.
type Runner interface {
	// Run blocks until the command exits, feeding each output line to
	// onLine. It returns the command's exit status; the error is non-nil
	// only when the command could not be run at all.
	Run(ctx context.Context, cmd Command, onLine LineFunc) (int, error)
}

// Run executes cmd and treats any non-zero exit status as an error. This is
// the default discipline: a failing external command halts the build.
func Run(ctx context.Context, r Runner, cmd Command, onLine LineFunc) error {
	status, err := r.Run(ctx, cmd, onLine)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	if status != 0 {
		return fmt.Errorf("%w: %s exited with status %d", ErrCommandFailed, cmd, status)
	}
	return nil
}

// Output executes cmd, accumulates its combined output, and returns it with
// trailing whitespace removed. A non-zero exit status is an error.
func Output(ctx context.Context, r Runner, cmd Command) (string, error) {
	var b strings.Builder
	err := Run(ctx, r, cmd, func(line string) {
		b.WriteString(line)
		b.WriteString("\n")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), " \t\r\n"), nil
}

// execRunner runs commands through os/exec with stderr merged into stdout.
type execRunner struct{}

// NewRunner returns the Runner backed by the operating system.
func NewRunner() Runner {
	return &execRunner{}
}

func (r *execRunner) Run(ctx context.Context, cmd Command, onLine LineFunc) (int, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	w := newLineWriter(onLine)
	c.Stdout = w
	c.Stderr = w

	err := c.Run()
	w.Flush()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to start %s: %w", cmd.Base(), err)
	}
	return 0, nil
}
