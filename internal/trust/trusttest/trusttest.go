// Package trusttest generates CA material and stands in for the compose and
// openssl processes in tests.
package trusttest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/h3ow3d/loggy/internal/runner"
	"github.com/h3ow3d/loggy/internal/runner/runnertest"
	"github.com/h3ow3d/loggy/internal/stack"
)

// NewCA returns a PEM-encoded self-signed CA certificate and its SHA-256
// fingerprint as lowercase hex.
func NewCA(t testing.TB) ([]byte, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Elastic Certificate Tool Autogenerated CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(der)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), hex.EncodeToString(sum[:])
}

// WriteCA writes a fresh CA certificate to path and returns its fingerprint.
func WriteCA(t testing.TB, path string) string {
	t.Helper()
	pemBytes, fp := NewCA(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pemBytes, 0o644); err != nil {
		t.Fatal(err)
	}
	return fp
}

// OpenSSLOutput formats a fingerprint the way
// "openssl x509 -fingerprint -sha256 -noout" prints it.
func OpenSSLOutput(fp string) string {
	fp = strings.ToUpper(fp)
	pairs := make([]string, 0, len(fp)/2)
	for i := 0; i+1 < len(fp); i += 2 {
		pairs = append(pairs, fp[i:i+2])
	}
	return "sha256 Fingerprint=" + strings.Join(pairs, ":") + "\n"
}

// OpenSSL is a handler for the openssl binary that fingerprints the PEM
// certificate named by -in.
func OpenSSL(_ context.Context, cmd runner.Command) (runner.Result, error) {
	var in string
	for i, a := range cmd.Args {
		if a == "-in" && i+1 < len(cmd.Args) {
			in = cmd.Args[i+1]
		}
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return exit(cmd, "Could not open file or uri for loading certificate from "+in)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return exit(cmd, "Could not read certificate from "+in)
	}
	sum := sha256.Sum256(block.Bytes)
	return runner.Result{Stdout: []byte(OpenSSLOutput(hex.EncodeToString(sum[:])))}, nil
}

// ComposeUp returns a handler for the compose binary that writes a CA into
// the deployment directory (cmd.Dir) like the tls service does. The
// fingerprint of every CA it writes is kept by the returned Recorder.
func ComposeUp(t testing.TB) (runnertest.Handler, *Recorder) {
	rec := &Recorder{}
	return func(_ context.Context, cmd runner.Command) (runner.Result, error) {
		rec.Fingerprints = append(rec.Fingerprints, WriteCA(t, stack.TrustAnchor(cmd.Dir)))
		return runner.Result{Stdout: []byte("tls exited with code 0\n")}, nil
	}, rec
}

// Recorder collects the fingerprints of CAs written by ComposeUp.
type Recorder struct {
	Fingerprints []string
}

// Last returns the most recent fingerprint or "".
func (r *Recorder) Last() string {
	if len(r.Fingerprints) == 0 {
		return ""
	}
	return r.Fingerprints[len(r.Fingerprints)-1]
}

// Runner returns a Fake that handles docker compose and openssl.
func Runner(t testing.TB) (*runnertest.Fake, *Recorder) {
	up, rec := ComposeUp(t)
	return runnertest.New(map[string]runnertest.Handler{
		"docker":  up,
		"openssl": OpenSSL,
	}), rec
}

func exit(cmd runner.Command, stderr string) (runner.Result, error) {
	return runner.Result{Stderr: []byte(stderr)}, &runner.ExitError{Command: cmd.String(), Code: 1, Stderr: stderr}
}
