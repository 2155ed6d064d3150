// Package runnertest provides a scriptable runner.Runner for tests.
package runnertest

import (
	"context"
	"sync"

	"github.com/h3ow3d/loggy/internal/runner"
)

// Handler answers one invocation.
type Handler func(ctx context.Context, cmd runner.Command) (runner.Result, error)

// Fake dispatches commands to handlers keyed by binary name and records
// every call. Unknown binaries fail like a missing executable.
type Fake struct {
	Handlers map[string]Handler

	mu    sync.Mutex
	calls []runner.Command
}

// New returns a Fake with the given handlers.
func New(handlers map[string]Handler) *Fake {
	return &Fake{Handlers: handlers}
}

func (f *Fake) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	h := f.Handlers[cmd.Name]
	f.mu.Unlock()

	if h == nil {
		return runner.Result{}, &runner.ExitError{Command: cmd.String(), Code: 127, Stderr: cmd.Name + ": command not found"}
	}
	return h(ctx, cmd)
}

// Calls returns the commands run so far.
func (f *Fake) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

// CallsTo returns the commands run for binary name.
func (f *Fake) CallsTo(name string) []runner.Command {
	var out []runner.Command
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Exit returns a handler that fails with the given exit code.
func Exit(code int, stderr string) Handler {
	return func(_ context.Context, cmd runner.Command) (runner.Result, error) {
		return runner.Result{Stderr: []byte(stderr)}, &runner.ExitError{Command: cmd.String(), Code: code, Stderr: stderr}
	}
}

// Output returns a handler that succeeds with stdout.
func Output(stdout string) Handler {
	return func(context.Context, runner.Command) (runner.Result, error) {
		return runner.Result{Stdout: []byte(stdout)}, nil
	}
}
