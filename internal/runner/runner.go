// Package runner invokes external processes synchronously.
//
// Every invocation has a deadline. Expiry is reported as ErrTimeout; a
// process that ran to completion with a non-zero status is an *ExitError.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/log"
)

// DefaultTimeout applies when a Command has no Timeout.
const DefaultTimeout = 5 * time.Minute

// ErrTimeout marks a process killed because its deadline expired.
var ErrTimeout = errors.New("process timed out")

// Command describes one process invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
	// Stream, when set, also receives the process output as it is produced.
	Stream io.Writer
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured outcome of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// ExitError reports a process that exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

// Runner runs external processes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Exec is the os/exec backed Runner.
type Exec struct {
	Logger *zap.Logger
}

// Run starts cmd and waits for it. The process is killed when ctx is done or
// cmd's timeout expires.
func (r Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	logger := log.Or(r.Logger)
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	if cmd.Stream != nil {
		c.Stdout = io.MultiWriter(&stdout, cmd.Stream)
		c.Stderr = io.MultiWriter(&stderr, cmd.Stream)
	} else {
		c.Stdout = &stdout
		c.Stderr = &stderr
	}

	logger.Debug("starting process", zap.String("command", cmd.String()), zap.String("dir", cmd.Dir), zap.Duration("timeout", timeout))
	start := time.Now()
	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}

	if err == nil {
		logger.Debug("process finished", zap.String("command", cmd.String()), zap.Duration("took", res.Duration))
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Warn("process timed out", zap.String("command", cmd.String()), zap.Duration("timeout", timeout))
		return res, errors.Mark(errors.Newf("%s: no result after %s", cmd.String(), timeout), ErrTimeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ee := &ExitError{Command: cmd.String(), Code: exitErr.ExitCode(), Stderr: string(res.Stderr)}
		logger.Debug("process failed", zap.String("command", cmd.String()), zap.Int("code", ee.Code))
		return res, ee
	}
	return res, errors.Wrapf(err, "run %s", cmd.String())
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
