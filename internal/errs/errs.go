// Package errs defines the error kinds reported by the deployment pipeline.
//
// Each kind is a sentinel; stage failures are *StageError values marked with
// their kind, so callers use errors.Is to classify and errors.As to recover
// the failing stage and path.
package errs

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrConfigNotFound             = errors.New("config not found")
	ErrConfigInvalid              = errors.New("config invalid")
	ErrDestinationExists          = errors.New("destination exists")
	ErrTemplateMissing            = errors.New("template missing")
	ErrCopyFailed                 = errors.New("copy failed")
	ErrRenderFailed               = errors.New("render failed")
	ErrBootstrapFailed            = errors.New("trust bootstrap failed")
	ErrCertNotFound               = errors.New("certificate not found")
	ErrFingerprintToolFailed      = errors.New("fingerprint tool failed")
	ErrFingerprintInjectionFailed = errors.New("fingerprint injection failed")
)

// StageError records which pipeline stage failed and the path involved.
type StageError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage)
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

// New returns a *StageError for stage and path, marked with kind. When cause
// is nil the kind itself becomes the cause.
func New(stage, path string, kind, cause error) error {
	if cause == nil {
		cause = kind
	}
	return errors.Mark(&StageError{Stage: stage, Path: path, Err: cause}, kind)
}

// Newf is New with a formatted cause.
func Newf(stage, path string, kind error, format string, args ...any) error {
	return New(stage, path, kind, errors.Newf(format, args...))
}

// FieldProblem is one validation failure of a configuration field.
type FieldProblem struct {
	// Field is the dotted document path, e.g. "stack.kibana.port".
	Field  string
	Reason string
}

// InvalidConfigError lists every problem found in one configuration source.
type InvalidConfigError struct {
	Source   string
	Problems []FieldProblem
}

func (e *InvalidConfigError) Error() string {
	lines := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		lines = append(lines, fmt.Sprintf("%s: %s", p.Field, p.Reason))
	}
	return fmt.Sprintf("config %q is invalid:\n  - %s", e.Source, strings.Join(lines, "\n  - "))
}

// Fields returns the offending field paths in report order.
func (e *InvalidConfigError) Fields() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Field)
	}
	return out
}

// Invalid wraps problems found in source as an ErrConfigInvalid failure of
// the load stage.
func Invalid(source string, problems ...FieldProblem) error {
	return New("load config", source, ErrConfigInvalid, &InvalidConfigError{Source: source, Problems: problems})
}

// Kind reports which sentinel err is marked with, or nil.
func Kind(err error) error {
	for _, k := range []error{
		ErrConfigNotFound, ErrConfigInvalid, ErrDestinationExists, ErrTemplateMissing,
		ErrCopyFailed, ErrRenderFailed, ErrBootstrapFailed, ErrCertNotFound,
		ErrFingerprintToolFailed, ErrFingerprintInjectionFailed,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
