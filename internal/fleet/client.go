// Package fleet is a small client for the Kibana Fleet API and the
// Elasticsearch root endpoint of a deployed stack.
//
// Every request is authenticated with basic auth. Transport errors and
// 429/5xx responses are retried with exponential backoff for a bounded
// number of attempts; other failures are returned at once as *APIError.
package fleet

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/log"
)

const (
	DefaultMaxAttempts = 4
	DefaultRetryWait   = 500 * time.Millisecond
	defaultTimeout     = 30 * time.Second

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// Config configures a Client. There is no package-level configuration; each
// client carries its own endpoint and credentials.
type Config struct {
	// URL is the base URL of the API, e.g. http://localhost:5601 for Kibana.
	URL      string
	Username string
	Password string
	// CAFile, when set, is the only CA trusted for https endpoints.
	CAFile string
	// HTTPClient overrides the client built from CAFile.
	HTTPClient *http.Client

	MaxAttempts int
	RetryWait   time.Duration
	Logger      *zap.Logger
}

// Client talks to one API endpoint.
type Client struct {
	base   string
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New returns a Client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("fleet: empty API URL")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = DefaultRetryWait
	}
	hc := cfg.HTTPClient
	if hc == nil {
		var err error
		if hc, err = httpClient(cfg.CAFile); err != nil {
			return nil, err
		}
	}
	return &Client{
		base:   strings.TrimRight(cfg.URL, "/"),
		cfg:    cfg,
		http:   hc,
		logger: log.Or(cfg.Logger),
	}, nil
}

func httpClient(caFile string) (*http.Client, error) {
	if caFile == "" {
		return &http.Client{Timeout: defaultTimeout}, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, errors.Wrapf(err, "read CA %s", caFile)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Newf("no certificates found in %s", caFile)
	}
	return &http.Client{
		Timeout: defaultTimeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		},
	}, nil
}

// APIError is a non-success response.
type APIError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
	if b := strings.TrimSpace(e.Body); b != "" {
		msg += ": " + b
	}
	return msg
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do sends one request, retrying transient failures, and decodes a JSON
// response body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errors.Wrap(err, "encode request")
		}
	}
	url := c.base + path

	attempt := 0
	op := func() error {
		attempt++
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "build request"))
		}
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		req.Header.Set("kbn-xsrf", "true")
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return errors.Wrapf(err, "%s %s", method, url)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			apiErr := &APIError{Method: method, URL: url, Status: resp.StatusCode, Body: string(data)}
			if retryable(resp.StatusCode) {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(errors.Wrapf(err, "decode %s %s", method, url))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryWait
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		return err
	}
	c.logger.Debug("request ok", zap.String("method", method), zap.String("url", url), zap.Int("attempts", attempt))
	return nil
}
