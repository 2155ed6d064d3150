package fleet_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h3ow3d/loggy/internal/fleet"
	"github.com/h3ow3d/loggy/internal/fleet/fleettest"
	"github.com/h3ow3d/loggy/internal/trust/trusttest"
)

func client(t *testing.T, srv *fleettest.Server) *fleet.Client {
	t.Helper()
	c, err := fleet.New(fleet.Config{
		URL:       srv.URL,
		Username:  fleettest.Username,
		Password:  fleettest.Password,
		RetryWait: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestCreateAgentPolicy(t *testing.T) {
	srv := fleettest.New(t)
	c := client(t, srv)
	ctx := context.Background()

	created, err := c.CreateAgentPolicy(ctx, "loggy agent policy", "first policy")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.CreateAgentPolicy(ctx, "loggy agent policy", "first policy")
	require.NoError(t, err, "conflict must not be an error")
	assert.False(t, created)
}

func TestAgentPolicyID(t *testing.T) {
	srv := fleettest.New(t)
	srv.AddPolicy("other")
	want := srv.AddPolicy("loggy agent policy")
	c := client(t, srv)

	id, err := c.AgentPolicyID(context.Background(), "loggy agent policy")
	require.NoError(t, err)
	assert.Equal(t, want.ID, id)

	_, err = c.AgentPolicyID(context.Background(), "missing")
	assert.True(t, errors.Is(err, fleet.ErrPolicyNotFound), "got %v", err)
}

func TestEnrollmentToken(t *testing.T) {
	tests := []struct {
		name   string
		legacy bool
		keys   []fleettest.Key
		want   string
		err    error
	}{
		{
			name: "active key wins",
			keys: []fleettest.Key{
				{ID: "1", APIKey: "old", PolicyID: "p1", Active: false},
				{ID: "2", APIKey: "other-policy", PolicyID: "p2", Active: true},
				{ID: "3", APIKey: "current", PolicyID: "p1", Active: true},
			},
			want: "current",
		},
		{
			name:   "legacy list field",
			legacy: true,
			keys:   []fleettest.Key{{ID: "1", APIKey: "legacy", PolicyID: "p1", Active: true}},
			want:   "legacy",
		},
		{
			name: "inactive fallback",
			keys: []fleettest.Key{{ID: "1", APIKey: "revoked", PolicyID: "p1"}},
			want: "revoked",
		},
		{
			name: "no key for policy",
			keys: []fleettest.Key{{ID: "1", APIKey: "x", PolicyID: "p2", Active: true}},
			err:  fleet.ErrTokenNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := fleettest.New(t)
			srv.LegacyKeys = tc.legacy
			for _, k := range tc.keys {
				srv.AddKey(k)
			}
			got, err := client(t, srv).EnrollmentToken(context.Background(), "p1")
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	srv := fleettest.New(t)
	srv.AddPolicy("p")
	srv.FailNext(http.MethodGet, "/api/fleet/agent_policies", 2)

	_, err := client(t, srv).AgentPolicyID(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 3, srv.Count("GET /api/fleet/agent_policies"))
}

func TestRetriesAreBounded(t *testing.T) {
	srv := fleettest.New(t)
	srv.FailNext(http.MethodGet, "/api/fleet/agent_policies", 100)

	_, err := client(t, srv).AgentPolicies(context.Background())
	require.Error(t, err)
	assert.True(t, fleet.IsStatus(err, http.StatusServiceUnavailable), "got %v", err)
	assert.Equal(t, fleet.DefaultMaxAttempts, srv.Count("GET /api/fleet/agent_policies"))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	srv := fleettest.New(t)
	c, err := fleet.New(fleet.Config{URL: srv.URL, Username: "elastic", Password: "wrong", RetryWait: time.Millisecond})
	require.NoError(t, err)

	_, err = c.AgentPolicies(context.Background())
	var apiErr *fleet.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 1, srv.Count("GET /api/fleet/agent_policies"))
}

func TestCheckElasticsearch(t *testing.T) {
	srv := fleettest.New(t)
	info, err := client(t, srv).CheckElasticsearch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8.13.4", info.Version.Number)

	srv.Tagline = "something else"
	_, err = client(t, srv).CheckElasticsearch(context.Background())
	assert.Error(t, err)
}

func TestCAFile(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tagline":"You Know, for Search"}`))
	}))
	defer srv.Close()

	// A CA that did not sign the server certificate is rejected.
	other := filepath.Join(t.TempDir(), "ca.crt")
	trusttest.WriteCA(t, other)
	c, err := fleet.New(fleet.Config{URL: srv.URL, CAFile: other, MaxAttempts: 1})
	require.NoError(t, err)
	_, err = c.ClusterInfo(context.Background())
	assert.Error(t, err)

	_, err = fleet.New(fleet.Config{URL: srv.URL, CAFile: filepath.Join(t.TempDir(), "missing.crt")})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.crt")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o644))
	_, err = fleet.New(fleet.Config{URL: srv.URL, CAFile: bad})
	assert.Error(t, err)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := fleet.New(fleet.Config{})
	assert.Error(t, err)
}
