package main

import (
	"errors"
	"testing"

	"github.com/h3ow3d/loggy/internal/errs"
)

func TestFailureNamesKind(t *testing.T) {
	err := errs.New("prepare directory", "/out/loggy_test", errs.ErrDestinationExists, errors.New("use --force to replace it"))
	want := "prepare directory: /out/loggy_test: use --force to replace it (destination exists)"
	if got := failure(err); got != want {
		t.Errorf("failure = %q, want %q", got, want)
	}
}

func TestFailurePlainError(t *testing.T) {
	if got := failure(errors.New("2 of 5 checks failed")); got != "2 of 5 checks failed" {
		t.Errorf("failure = %q", got)
	}
}
