package runner_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h3ow3d/loggy/internal/runner"
)

func TestExecCapturesOutput(t *testing.T) {
	res, err := runner.Exec{}.Run(context.Background(), runner.Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
}

func TestExecStreams(t *testing.T) {
	var buf bytes.Buffer
	_, err := runner.Exec{}.Run(context.Background(), runner.Command{
		Name:   "sh",
		Args:   []string{"-c", "echo streamed"},
		Stream: &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed\n", buf.String())
}

func TestExecNonZeroExit(t *testing.T) {
	_, err := runner.Exec{}.Run(context.Background(), runner.Command{
		Name: "sh",
		Args: []string{"-c", "echo boom >&2; exit 3"},
	})
	require.Error(t, err)

	var ee *runner.ExitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 3, ee.Code)
	assert.Contains(t, ee.Error(), "boom")
	assert.False(t, errors.Is(err, runner.ErrTimeout))
}

func TestExecTimeout(t *testing.T) {
	start := time.Now()
	_, err := runner.Exec{}.Run(context.Background(), runner.Command{
		Name:    "sleep",
		Args:    []string{"10"},
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, runner.ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 8*time.Second)

	var ee *runner.ExitError
	assert.False(t, errors.As(err, &ee), "timeout must not be reported as an exit error")
}

func TestExecMissingBinary(t *testing.T) {
	_, err := runner.Exec{}.Run(context.Background(), runner.Command{Name: "loggy-no-such-binary"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, runner.ErrTimeout))
}

func TestCommandString(t *testing.T) {
	c := runner.Command{Name: "docker", Args: []string{"compose", "up", "tls"}}
	assert.Equal(t, "docker compose up tls", c.String())
}
