// Package log provides shared logging helpers for loggy.
//
// Console progress lines (Info/Ok/Skip/Error) follow the [+] / [✓] / [=] / [!]
// convention and are colorized when the stream is a TTY. Structured
// diagnostics go through a process-wide zap logger configured by Setup.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// ANSI escape codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	cyan   = "\033[36m"
	green  = "\033[32m"
	yellow = "\033[33m"
	red    = "\033[31m"
)

// colorize wraps msg in an ANSI color sequence only when stdout is a TTY.
func colorize(color, msg string) string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return color + bold + msg + reset
	}
	return msg
}

// colorizeStderr wraps msg in color when stderr is a TTY.
func colorizeStderr(color, msg string) string {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return color + bold + msg + reset
	}
	return msg
}

func Info(msg string)  { fmt.Printf("%s %s\n", colorize(cyan, "[+]"), msg) }
func Ok(msg string)    { fmt.Printf("%s %s\n", colorize(green, "[✓]"), msg) }
func Skip(msg string)  { fmt.Printf("%s %s\n", colorize(yellow, "[=]"), msg) }
func Error(msg string) { fmt.Fprintf(os.Stderr, "%s %s\n", colorizeStderr(red, "[!]"), msg) }

// Options controls the structured logger built by Setup.
type Options struct {
	// Verbose mirrors debug-level records to stderr.
	Verbose bool
	// File receives JSON records at debug level. Empty disables the file sink.
	File string
}

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// L returns the process-wide structured logger. It is a no-op logger until
// Setup has been called.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Or returns l when non-nil and the process-wide logger otherwise.
func Or(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return L()
}

// Setup builds the process-wide logger from opts and installs it. The
// returned function flushes buffered records and should be deferred by main.
func Setup(opts Options) (func(), error) {
	var cores []zapcore.Core

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	if opts.Verbose {
		enc := zap.NewDevelopmentEncoderConfig()
		if term.IsTerminal(int(os.Stderr.Fd())) {
			enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zapcore.DebugLevel))
	}

	l := zap.NewNop()
	if len(cores) > 0 {
		l = zap.New(zapcore.NewTee(cores...))
	}

	mu.Lock()
	logger = l
	mu.Unlock()

	return func() { _ = l.Sync() }, nil
}
