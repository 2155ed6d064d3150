// Package trust runs the CA bootstrap container of a deployment and reads
// the fingerprint of the certificate it produces.
package trust

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/errs"
	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
	"github.com/h3ow3d/loggy/internal/runner"
	"github.com/h3ow3d/loggy/internal/stack"
)

const (
	stageBootstrap = "bootstrap trust"

	// CAService is the compose service that generates the stack CA.
	CAService = "tls"

	ComposeFile = "docker-compose.yml"

	composeProbeTimeout = 10 * time.Second
)

// composeCandidates are tried in order by ComposeCommand.
var composeCandidates = [][]string{
	{"docker", "compose"},
	{"docker-compose"},
}

// ComposeCommand returns the argv prefix for Docker Compose: the docker CLI
// plugin when "docker compose version" succeeds, else the standalone
// docker-compose binary when it answers. With neither, the plugin form is
// returned so the eventual failure names it.
func ComposeCommand(ctx context.Context, r runner.Runner) []string {
	for _, argv := range composeCandidates {
		cmd := runner.Command{
			Name:    argv[0],
			Args:    append(append([]string{}, argv[1:]...), "version"),
			Timeout: composeProbeTimeout,
		}
		if _, err := r.Run(ctx, cmd); err == nil {
			return append([]string{}, argv...)
		}
	}
	return []string{"docker", "compose"}
}

// Bootstrapper triggers CA generation for a materialized deployment.
type Bootstrapper struct {
	Runner runner.Runner
	// Compose is the compose argv prefix; detected with ComposeCommand when
	// empty.
	Compose []string
	Service string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Bootstrap runs the CA service of destRoot's compose file to completion and
// checks that the trust anchor exists afterwards. A zero exit status without
// the certificate is a failure.
//
// The process only stops early when its own timeout expires; cancellation
// of ctx is honoured before it starts.
func (b Bootstrapper) Bootstrap(ctx context.Context, destRoot string) error {
	logger := log.Or(b.Logger)
	composeFile := filepath.Join(destRoot, ComposeFile)
	if !fsutil.IsFile(composeFile) {
		return errs.Newf(stageBootstrap, composeFile, errs.ErrBootstrapFailed, "compose file not found")
	}
	if err := ctx.Err(); err != nil {
		return errs.New(stageBootstrap, destRoot, errs.ErrBootstrapFailed, err)
	}

	compose := b.Compose
	if len(compose) == 0 {
		compose = ComposeCommand(ctx, b.Runner)
	}
	svc := b.Service
	if svc == "" {
		svc = CAService
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = stack.DefaultBootstrapTimeout
	}

	args := append(append([]string{}, compose[1:]...),
		"--file", composeFile,
		"--project-directory", destRoot,
		"up", "--exit-code-from", svc, svc,
	)
	cmd := runner.Command{
		Name:    compose[0],
		Args:    args,
		Dir:     destRoot,
		Timeout: timeout,
		Stream:  os.Stdout,
	}

	logger.Info("starting trust bootstrap", zap.String("command", cmd.String()), zap.Duration("timeout", timeout))
	if _, err := b.Runner.Run(context.WithoutCancel(ctx), cmd); err != nil {
		if errors.Is(err, runner.ErrTimeout) {
			return errs.New(stageBootstrap, composeFile, errs.ErrBootstrapFailed, errors.Wrapf(err, "CA service %q did not finish", svc))
		}
		return errs.New(stageBootstrap, composeFile, errs.ErrBootstrapFailed, err)
	}

	anchor := stack.TrustAnchor(destRoot)
	if !fsutil.IsFile(anchor) {
		return errs.Newf(stageBootstrap, anchor, errs.ErrBootstrapFailed, "CA service %q exited successfully but produced no certificate", svc)
	}
	logger.Info("trust anchor present", zap.String("path", anchor))
	return nil
}
