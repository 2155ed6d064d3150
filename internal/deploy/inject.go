package deploy

import (
	"bytes"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/errs"
	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
	"github.com/h3ow3d/loggy/internal/render"
	"github.com/h3ow3d/loggy/internal/stack"
)

const stageInject = "inject fingerprint"

// Injector fills the deferred CA fingerprint into a rendered Kibana config.
type Injector struct {
	Logger *zap.Logger
}

// Inject renders destRoot's Kibana config a second time with the
// descriptor's fingerprint and overwrites it. The rewritten file must contain
// the fingerprint verbatim.
func (in Injector) Inject(desc *stack.Descriptor, destRoot string) error {
	path := filepath.Join(destRoot, KibanaConfig)
	fp, ok := desc.Fingerprint()
	if !ok {
		return errs.Newf(stageInject, path, errs.ErrFingerprintInjectionFailed, "no fingerprint recorded for stack %s", desc.Name)
	}
	if !fsutil.IsFile(path) {
		return errs.Newf(stageInject, path, errs.ErrFingerprintInjectionFailed, "rendered config not found")
	}

	out, err := render.File(path, render.Context{string(CAFingerprint): fp})
	if err != nil {
		return errs.New(stageInject, path, errs.ErrFingerprintInjectionFailed, err)
	}
	if err := fsutil.WriteFile(path, []byte(out), 0o644); err != nil {
		return errs.New(stageInject, path, errs.ErrFingerprintInjectionFailed, err)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		return errs.New(stageInject, path, errs.ErrFingerprintInjectionFailed, err)
	}
	if !bytes.Contains(written, []byte(fp)) {
		return errs.Newf(stageInject, path, errs.ErrFingerprintInjectionFailed, "fingerprint %s not present after rewrite", fp)
	}
	log.Or(in.Logger).Info("fingerprint injected", zap.String("path", path), zap.String("sha256", fp))
	return nil
}
