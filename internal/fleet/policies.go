package fleet

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	agentPoliciesPath = "/api/fleet/agent_policies"
	enrollmentKeyPath = "/api/fleet/enrollment_api_keys"

	listPageSize = 1000
)

var (
	ErrPolicyNotFound = errors.New("agent policy not found")
	ErrTokenNotFound  = errors.New("enrollment token not found")
)

// AgentPolicy is the subset of a Fleet agent policy loggy uses.
type AgentPolicy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Namespace   string `json:"namespace,omitempty"`
	Description string `json:"description,omitempty"`
}

type createPolicyRequest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Namespace         string   `json:"namespace"`
	MonitoringEnabled []string `json:"monitoring_enabled"`
}

// CreateAgentPolicy creates a policy called name. It reports false without
// error when Fleet answers 409 because the policy already exists.
func (c *Client) CreateAgentPolicy(ctx context.Context, name, description string) (bool, error) {
	req := createPolicyRequest{
		Name:              name,
		Description:       description,
		Namespace:         "default",
		MonitoringEnabled: []string{"logs", "metrics"},
	}
	var resp struct {
		Item AgentPolicy `json:"item"`
	}
	err := c.do(ctx, http.MethodPost, agentPoliciesPath, req, &resp)
	if IsStatus(err, http.StatusConflict) {
		c.logger.Info("agent policy already exists", zap.String("policy", name))
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "create agent policy %q", name)
	}
	c.logger.Info("agent policy created", zap.String("policy", name), zap.String("id", resp.Item.ID))
	return true, nil
}

// AgentPolicies lists the agent policies known to Fleet.
func (c *Client) AgentPolicies(ctx context.Context) ([]AgentPolicy, error) {
	q := url.Values{"perPage": {strconv.Itoa(listPageSize)}}
	var resp struct {
		Items []AgentPolicy `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, agentPoliciesPath+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, errors.Wrap(err, "list agent policies")
	}
	return resp.Items, nil
}

// AgentPolicyID resolves a policy name to its id.
func (c *Client) AgentPolicyID(ctx context.Context, name string) (string, error) {
	policies, err := c.AgentPolicies(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range policies {
		if p.Name == name {
			return p.ID, nil
		}
	}
	return "", errors.Mark(errors.Newf("no agent policy named %q", name), ErrPolicyNotFound)
}

// EnrollmentKey is a Fleet enrollment API key.
type EnrollmentKey struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	APIKey   string `json:"api_key"`
	PolicyID string `json:"policy_id"`
	Active   bool   `json:"active"`
}

// EnrollmentKeys lists enrollment API keys. Older Fleet versions return them
// under "list", newer ones under "items".
func (c *Client) EnrollmentKeys(ctx context.Context) ([]EnrollmentKey, error) {
	q := url.Values{"perPage": {strconv.Itoa(listPageSize)}}
	var resp struct {
		Items []EnrollmentKey `json:"items"`
		List  []EnrollmentKey `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, enrollmentKeyPath+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, errors.Wrap(err, "list enrollment keys")
	}
	if len(resp.Items) > 0 {
		return resp.Items, nil
	}
	return resp.List, nil
}

// EnrollmentToken returns the enrollment secret of policyID, preferring an
// active key.
func (c *Client) EnrollmentToken(ctx context.Context, policyID string) (string, error) {
	keys, err := c.EnrollmentKeys(ctx)
	if err != nil {
		return "", err
	}
	var fallback string
	for _, k := range keys {
		if k.PolicyID != policyID || k.APIKey == "" {
			continue
		}
		if k.Active {
			return k.APIKey, nil
		}
		if fallback == "" {
			fallback = k.APIKey
		}
	}
	if fallback != "" {
		c.logger.Warn("no active enrollment key, using inactive one", zap.String("policy_id", policyID))
		return fallback, nil
	}
	return "", errors.Mark(errors.Newf("no enrollment key for policy %s", policyID), ErrTokenNotFound)
}
