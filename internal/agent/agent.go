// Package agent enrolls an Elastic Agent into the Fleet of a deployed stack
// by rendering a compose file that carries its enrollment token.
package agent

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/deploy"
	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
	"github.com/h3ow3d/loggy/internal/render"
	"github.com/h3ow3d/loggy/internal/stack"
)

const (
	Template = "agent/agent-compose.yml.j2"
	Output   = "agent/agent-compose-deploy.yml"

	// DefaultFleetServerURL is where agents reach Fleet Server on the stack
	// network.
	DefaultFleetServerURL = "http://fleet-server:8220"
	// DefaultStackNetwork is the default network of the stack compose project.
	DefaultStackNetwork = "loggy_default"

	passwordEnv     = "ELASTIC_PASSWORD"
	defaultPassword = "changeme"
)

// Fleet is the part of the Fleet API the enrollment needs.
type Fleet interface {
	CreateAgentPolicy(ctx context.Context, name, description string) (bool, error)
	AgentPolicyID(ctx context.Context, name string) (string, error)
	EnrollmentToken(ctx context.Context, policyID string) (string, error)
}

// Options configures Enroll.
type Options struct {
	// Policy overrides the descriptor's agent policy name.
	Policy         string
	FleetServerURL string
	StackNetwork   string
	// AgentName overrides the generated agent name.
	AgentName string
	Logger    *zap.Logger
}

// Result describes a rendered agent.
type Result struct {
	AgentName     string
	PolicyName    string
	PolicyID      string
	PolicyCreated bool
	ComposeFile   string
}

// Enroll makes sure the agent policy exists, resolves its enrollment token
// and renders the agent compose file into deployDir.
func Enroll(ctx context.Context, api Fleet, desc *stack.Descriptor, deployDir string, opts Options) (*Result, error) {
	logger := log.Or(opts.Logger)
	tmpl := filepath.Join(deployDir, Template)
	if !fsutil.IsFile(tmpl) {
		return nil, errors.Newf("agent template %s not found; run loggy make first", tmpl)
	}

	policy := opts.Policy
	if policy == "" {
		policy = desc.Fleet.AgentPolicy
	}
	created, err := api.CreateAgentPolicy(ctx, policy, desc.Fleet.Description)
	if err != nil {
		return nil, err
	}
	id, err := api.AgentPolicyID(ctx, policy)
	if err != nil {
		return nil, err
	}
	token, err := api.EnrollmentToken(ctx, id)
	if err != nil {
		return nil, err
	}

	name := opts.AgentName
	if name == "" {
		name = "loggy-agent-" + uuid.NewString()[:8]
	}
	out, err := render.File(tmpl, render.Context{
		"AgentName":            name,
		"ElasticVersion":       desc.EngineVersion,
		"FleetURL":             orDefault(opts.FleetServerURL, DefaultFleetServerURL),
		"FleetEnrollmentToken": token,
		"StackNetwork":         orDefault(opts.StackNetwork, DefaultStackNetwork),
	})
	if err != nil {
		return nil, errors.Wrap(err, "render agent compose file")
	}
	dst := filepath.Join(deployDir, Output)
	if err := fsutil.WriteFile(dst, []byte(out), 0o600); err != nil {
		return nil, errors.Wrapf(err, "write %s", dst)
	}

	logger.Info("agent compose file rendered",
		zap.String("agent", name),
		zap.String("policy", policy),
		zap.String("policy_id", id),
		zap.String("path", dst))
	return &Result{AgentName: name, PolicyName: policy, PolicyID: id, PolicyCreated: created, ComposeFile: dst}, nil
}

// Password returns the password for the Fleet API: the configured one, else
// $ELASTIC_PASSWORD, else ELASTIC_PASSWORD from the deployment's .env, else
// the stack default.
func Password(desc *stack.Descriptor, deployDir string) string {
	if desc.Fleet.Password != "" {
		return desc.Fleet.Password
	}
	if p := os.Getenv(passwordEnv); p != "" {
		return p
	}
	if env, err := godotenv.Read(filepath.Join(deployDir, deploy.EnvFile)); err == nil && env[passwordEnv] != "" {
		return env[passwordEnv]
	}
	return defaultPassword
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
