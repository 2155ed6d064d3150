package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/errs"
	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
	"github.com/h3ow3d/loggy/internal/manifest"
	"github.com/h3ow3d/loggy/internal/runner"
	"github.com/h3ow3d/loggy/internal/stack"
	"github.com/h3ow3d/loggy/internal/trust"
)

// State is a step of the deployment pipeline.
type State int

const (
	Idle State = iota
	ConfigLoaded
	DirectoryReady
	Materialized
	Rendered
	TrustBootstrapped
	FingerprintInjected
	Failed
)

var stateNames = [...]string{
	Idle:                "idle",
	ConfigLoaded:        "config loaded",
	DirectoryReady:      "directory ready",
	Materialized:        "materialized",
	Rendered:            "rendered",
	TrustBootstrapped:   "trust bootstrapped",
	FingerprintInjected: "fingerprint injected",
	Failed:              "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const stagePrepare = "prepare directory"

// Options configures one pipeline run.
type Options struct {
	ConfigPath   string
	OutputDir    string
	TemplateRoot string
	Force        bool

	// BootstrapTimeout overrides the descriptor's bootstrap timeout when > 0.
	BootstrapTimeout time.Duration
	// Compose overrides compose command detection.
	Compose []string
	// OpenSSL overrides the openssl binary.
	OpenSSL string

	Runner runner.Runner
	Logger *zap.Logger
	// Progress is called after every transition.
	Progress func(State)
}

// Pipeline deploys one stack. A Pipeline is single use.
type Pipeline struct {
	opts   Options
	logger *zap.Logger

	state State
	// failedIn is the last state reached before Failed.
	failedIn State
	desc     *stack.Descriptor
	dest     string
}

// New returns a pipeline in the Idle state.
func New(opts Options) *Pipeline {
	if opts.Runner == nil {
		opts.Runner = runner.Exec{Logger: opts.Logger}
	}
	return &Pipeline{opts: opts, logger: log.Or(opts.Logger)}
}

// State returns the current state.
func (p *Pipeline) State() State { return p.state }

// FailedAfter returns the last state reached before the pipeline failed.
func (p *Pipeline) FailedAfter() State { return p.failedIn }

// Descriptor returns the loaded descriptor, or nil before ConfigLoaded.
func (p *Pipeline) Descriptor() *stack.Descriptor { return p.desc }

// DeployDir returns the deployment directory, or "" before ConfigLoaded.
func (p *Pipeline) DeployDir() string { return p.dest }

// Run drives the pipeline from Idle to FingerprintInjected. Stages run
// strictly in order and none is retried; the first failure moves the
// pipeline to Failed and is returned with its stage and path. ctx is only
// consulted between stages.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.state != Idle {
		return errors.Newf("pipeline already ran (state %s)", p.state)
	}
	steps := []struct {
		next State
		run  func(context.Context) error
	}{
		{ConfigLoaded, p.load},
		{DirectoryReady, p.prepare},
		{Materialized, p.materialize},
		{Rendered, p.render},
		{TrustBootstrapped, p.bootstrap},
		{FingerprintInjected, p.inject},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return p.fail(errors.Wrapf(err, "cancelled before %s", s.next))
		}
		if err := s.run(ctx); err != nil {
			return p.fail(err)
		}
		p.advance(s.next)
	}
	return nil
}

func (p *Pipeline) advance(s State) {
	p.logger.Debug("pipeline transition", zap.Stringer("from", p.state), zap.Stringer("to", s))
	p.state = s
	if p.opts.Progress != nil {
		p.opts.Progress(s)
	}
}

func (p *Pipeline) fail(err error) error {
	p.failedIn = p.state
	p.logger.Error("pipeline failed", zap.Stringer("after", p.state), zap.Error(err))
	p.advance(Failed)
	return err
}

func (p *Pipeline) load(context.Context) error {
	d, err := stack.Load(p.opts.ConfigPath)
	if err != nil {
		return err
	}
	p.desc = d
	p.dest = d.DeployDir(p.opts.OutputDir)
	return nil
}

func (p *Pipeline) prepare(context.Context) error {
	if fsutil.Exists(p.dest) {
		if !p.opts.Force {
			return errs.Newf(stagePrepare, p.dest, errs.ErrDestinationExists, "deployment directory already exists (use --force to replace it)")
		}
		p.logger.Info("removing existing deployment", zap.String("dest", p.dest))
		if err := fsutil.ForceRemoveAll(p.dest); err != nil {
			return errs.New(stagePrepare, p.dest, errs.ErrCopyFailed, errors.Wrap(err, "remove existing deployment"))
		}
	}
	if err := fsutil.EnsureDir(p.dest); err != nil {
		return errs.New(stagePrepare, p.dest, errs.ErrCopyFailed, err)
	}
	return nil
}

func (p *Pipeline) materialize(context.Context) error {
	_, err := manifest.Materialize(p.opts.TemplateRoot, p.dest, p.logger)
	return err
}

func (p *Pipeline) render(context.Context) error {
	return Renderer{Logger: p.logger}.Render(p.desc, p.opts.TemplateRoot, p.dest)
}

func (p *Pipeline) bootstrap(ctx context.Context) error {
	timeout := p.desc.BootstrapTimeout
	if p.opts.BootstrapTimeout > 0 {
		timeout = p.opts.BootstrapTimeout
	}
	b := trust.Bootstrapper{
		Runner:  p.opts.Runner,
		Compose: p.opts.Compose,
		Timeout: timeout,
		Logger:  p.logger,
	}
	return b.Bootstrap(ctx, p.dest)
}

func (p *Pipeline) inject(ctx context.Context) error {
	x := trust.Extractor{Runner: p.opts.Runner, OpenSSL: p.opts.OpenSSL, Logger: p.logger}
	fp, err := x.Extract(context.WithoutCancel(ctx), stack.TrustAnchor(p.dest))
	if err != nil {
		return err
	}
	if err := p.desc.SetFingerprint(fp); err != nil {
		return errs.New(stageInject, p.dest, errs.ErrFingerprintInjectionFailed, err)
	}
	return Injector{Logger: p.logger}.Inject(p.desc, p.dest)
}
