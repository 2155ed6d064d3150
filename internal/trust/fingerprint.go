package trust

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/errs"
	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
	"github.com/h3ow3d/loggy/internal/runner"
)

const (
	stageFingerprint = "extract fingerprint"

	// sha256HexLen is the length of a hex-encoded SHA-256 digest.
	sha256HexLen = 64

	fingerprintTimeout = 30 * time.Second
)

// Extractor reads certificate fingerprints with the openssl CLI.
type Extractor struct {
	Runner runner.Runner
	// OpenSSL is the binary name or path; defaults to "openssl".
	OpenSSL string
	Logger  *zap.Logger
}

// Extract returns the SHA-256 fingerprint of the certificate at certPath as
// 64 lowercase hex characters.
func (x Extractor) Extract(ctx context.Context, certPath string) (string, error) {
	if !fsutil.IsFile(certPath) {
		return "", errs.New(stageFingerprint, certPath, errs.ErrCertNotFound, nil)
	}
	bin := x.OpenSSL
	if bin == "" {
		bin = "openssl"
	}
	res, err := x.Runner.Run(ctx, runner.Command{
		Name:    bin,
		Args:    []string{"x509", "-fingerprint", "-sha256", "-noout", "-in", certPath},
		Timeout: fingerprintTimeout,
	})
	if err != nil {
		return "", errs.New(stageFingerprint, certPath, errs.ErrFingerprintToolFailed, err)
	}
	fp, err := ParseFingerprint(string(res.Stdout))
	if err != nil {
		return "", errs.New(stageFingerprint, certPath, errs.ErrFingerprintToolFailed, err)
	}
	log.Or(x.Logger).Info("CA fingerprint extracted", zap.String("cert", certPath), zap.String("sha256", fp))
	return fp, nil
}

// ParseFingerprint normalizes openssl output of the form
// "sha256 Fingerprint=96:89:57:...". It keeps what follows the first '=',
// trims it, drops the colons and lowercases it.
func ParseFingerprint(out string) (string, error) {
	_, value, ok := strings.Cut(out, "=")
	if !ok {
		return "", &FormatError{Output: out, Reason: "no '=' in output"}
	}
	fp := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), ":", ""))
	if len(fp) != sha256HexLen {
		return "", &FormatError{Output: out, Reason: "digest is not 32 bytes"}
	}
	if _, err := hex.DecodeString(fp); err != nil {
		return "", &FormatError{Output: out, Reason: "digest is not hexadecimal"}
	}
	return fp, nil
}

// FormatError reports fingerprint tool output that could not be parsed.
type FormatError struct {
	Output string
	Reason string
}

func (e *FormatError) Error() string {
	return "unexpected fingerprint output (" + e.Reason + "): " + strings.TrimSpace(e.Output)
}
