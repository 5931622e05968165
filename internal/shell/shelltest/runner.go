// Package shelltest provides a scripted shell.Runner for tests. Commands are
// matched against registered handlers; unmatched commands succeed silently.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"github.com/FiftyThree/boost/internal/shell"
)

// Response scripts the outcome of a matched command. Effect, when set, runs
// before the response is returned and may create the files the real tool
// would have produced.
type Response struct {
	Status int
	Output string
	Err    error
	Effect func(cmd shell.Command) error
}

type handler struct {
	match func(cmd shell.Command) bool
	resp  Response
}

// Runner records every command it is asked to run and replies from its
// handler table. It is safe for concurrent use.
type Runner struct {
	mu       sync.Mutex
	calls    []shell.Command
	handlers []handler
}

func New() *Runner {
	return &Runner{}
}

// Handle registers a scripted response for commands accepted by match.
// The most recently registered matching handler wins, so a test can
// override a fixture's defaults.
func (r *Runner) Handle(match func(cmd shell.Command) bool, resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler{match: match, resp: resp})
}

// HandlePrefix registers a response for any command whose rendered form
// starts with prefix.
func (r *Runner) HandlePrefix(prefix string, resp Response) {
	r.Handle(func(cmd shell.Command) bool {
		return strings.HasPrefix(cmd.String(), prefix)
	}, resp)
}

// Calls returns a copy of every command run so far, in order.
func (r *Runner) Calls() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shell.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallStrings returns the rendered form of every command run so far.
func (r *Runner) CallStrings() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func (r *Runner) Run(ctx context.Context, cmd shell.Command, onLine shell.LineFunc) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	var resp Response
	for i := len(r.handlers) - 1; i >= 0; i-- {
		if r.handlers[i].match(cmd) {
			resp = r.handlers[i].resp
			break
		}
	}
	r.mu.Unlock()

	if resp.Effect != nil {
		if err := resp.Effect(cmd); err != nil {
			return -1, err
		}
	}
	if onLine != nil && resp.Output != "" {
		for _, line := range strings.Split(resp.Output, "\n") {
			if line != "" {
				onLine(line)
			}
		}
	}
	return resp.Status, resp.Err
}
