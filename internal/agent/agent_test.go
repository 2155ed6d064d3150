package agent_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h3ow3d/loggy/internal/agent"
	"github.com/h3ow3d/loggy/internal/fleet"
	"github.com/h3ow3d/loggy/internal/fleet/fleettest"
	"github.com/h3ow3d/loggy/internal/stack"
	"github.com/h3ow3d/loggy/internal/templates"
)

const config = `
stack:
  name: loggy_test
  version: 8.13.4
  kibana:
    port: 5601
    server_name: kibana
  fleet:
    agent_policy: ci agent policy
`

func setup(t *testing.T) (*stack.Descriptor, string, *fleettest.Server, *fleet.Client) {
	t.Helper()
	desc, err := stack.LoadBytes([]byte(config), "test.yaml")
	require.NoError(t, err)

	deployDir := filepath.Join(t.TempDir(), "loggy_test")
	require.NoError(t, templates.Install(deployDir, false))

	srv := fleettest.New(t)
	c, err := fleet.New(fleet.Config{
		URL:       srv.URL,
		Username:  fleettest.Username,
		Password:  fleettest.Password,
		RetryWait: time.Millisecond,
	})
	require.NoError(t, err)
	return desc, deployDir, srv, c
}

func TestEnroll(t *testing.T) {
	desc, deployDir, _, c := setup(t)

	res, err := agent.Enroll(context.Background(), c, desc, deployDir, agent.Options{})
	require.NoError(t, err)
	assert.True(t, res.PolicyCreated)
	assert.Equal(t, "ci agent policy", res.PolicyName)
	assert.Regexp(t, `^loggy-agent-[0-9a-f]{8}$`, res.AgentName)
	assert.Equal(t, filepath.Join(deployDir, agent.Output), res.ComposeFile)

	data, err := os.ReadFile(res.ComposeFile)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "FLEET_ENROLLMENT_TOKEN: token-"+res.PolicyID)
	assert.Contains(t, out, "FLEET_URL: "+agent.DefaultFleetServerURL)
	assert.Contains(t, out, "elastic-agent:8.13.4")
	assert.Contains(t, out, "container_name: "+res.AgentName)
	assert.Contains(t, out, "name: "+agent.DefaultStackNetwork)
}

func TestEnrollExistingPolicy(t *testing.T) {
	desc, deployDir, srv, c := setup(t)
	p := srv.AddPolicy("ci agent policy")
	srv.AddKey(fleettest.Key{ID: "k", APIKey: "existing-token", PolicyID: p.ID, Active: true})

	res, err := agent.Enroll(context.Background(), c, desc, deployDir, agent.Options{AgentName: "agent-1"})
	require.NoError(t, err, "a conflict on policy creation must not stop enrollment")
	assert.False(t, res.PolicyCreated)
	assert.Equal(t, p.ID, res.PolicyID)

	data, err := os.ReadFile(res.ComposeFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FLEET_ENROLLMENT_TOKEN: existing-token")
	assert.Contains(t, string(data), "agent-1:")
}

func TestEnrollPolicyOverride(t *testing.T) {
	desc, deployDir, srv, c := setup(t)

	res, err := agent.Enroll(context.Background(), c, desc, deployDir, agent.Options{Policy: "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", res.PolicyName)
	assert.Equal(t, 1, srv.Count("POST /api/fleet/agent_policies"))
}

func TestEnrollWithoutToken(t *testing.T) {
	desc, deployDir, srv, c := setup(t)
	srv.AddPolicy("ci agent policy")

	_, err := agent.Enroll(context.Background(), c, desc, deployDir, agent.Options{})
	assert.True(t, errors.Is(err, fleet.ErrTokenNotFound), "got %v", err)
	assert.NoFileExists(t, filepath.Join(deployDir, agent.Output))
}

func TestEnrollMissingTemplate(t *testing.T) {
	desc, _, srv, c := setup(t)

	_, err := agent.Enroll(context.Background(), c, desc, t.TempDir(), agent.Options{})
	assert.Error(t, err)
	assert.Empty(t, srv.Requests())
}

func TestPassword(t *testing.T) {
	desc, err := stack.LoadBytes([]byte(config), "test.yaml")
	require.NoError(t, err)
	dir := t.TempDir()

	t.Setenv("ELASTIC_PASSWORD", "")
	assert.Equal(t, "changeme", agent.Password(desc, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ELASTIC_PASSWORD='from-env-file'\n"), 0o644))
	assert.Equal(t, "from-env-file", agent.Password(desc, dir))

	t.Setenv("ELASTIC_PASSWORD", "from-environment")
	assert.Equal(t, "from-environment", agent.Password(desc, dir))

	desc.Fleet.Password = "from-config"
	assert.Equal(t, "from-config", agent.Password(desc, dir))
}
