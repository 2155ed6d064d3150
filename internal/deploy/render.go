// Package deploy turns a stack configuration into a ready deployment
// directory: it renders the per-stack files, injects the CA fingerprint and
// drives the whole pipeline.
package deploy

import (
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/errs"
	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
	"github.com/h3ow3d/loggy/internal/render"
	"github.com/h3ow3d/loggy/internal/stack"
)

const stageRender = "render"

// Paths of the rendered and copied files, relative to the template root and
// the deployment directory.
const (
	KibanaTemplate = "kibana/config/kibana.yml.j2"
	KibanaConfig   = "kibana/config/kibana.yml"
	EnvTemplate    = ".env.j2"
	EnvFile        = ".env"
	ComposeFile    = "docker-compose.yml"
)

// CAFingerprint is the Kibana config field that is only known once the trust
// bootstrap has produced the CA.
const CAFingerprint = render.Deferred("CAFingerprint")

// Scripts are made executable in the deployment directory after rendering.
var Scripts = []string{
	"tls/entrypoint.sh",
	"setup/entrypoint.sh",
	"setup/update_fingerprint.sh",
}

// Renderer writes the files of a deployment that depend on the descriptor.
type Renderer struct {
	Logger *zap.Logger
}

// Render renders the Kibana config (fingerprint deferred) and the .env file
// from templateRoot into destRoot, copies the compose file verbatim and marks
// the stack scripts executable at the destination. The template tree itself
// is never modified.
func (r Renderer) Render(desc *stack.Descriptor, templateRoot, destRoot string) error {
	logger := log.Or(r.Logger)

	kibanaCtx := render.Context{
		"KibanaServerName": desc.DashboardServerName,
		"KibanaURL":        desc.DashboardURL,
	}.Defer(CAFingerprint)
	if err := renderTo(filepath.Join(templateRoot, KibanaTemplate), filepath.Join(destRoot, KibanaConfig), kibanaCtx); err != nil {
		return err
	}

	envPath := filepath.Join(destRoot, EnvFile)
	err := renderTo(filepath.Join(templateRoot, EnvTemplate), envPath, render.Context{
		"ElasticVersion": desc.EngineVersion,
		"StackName":      desc.Name,
		"KibanaPort":     strconv.Itoa(desc.DashboardPort),
	})
	if err != nil {
		return err
	}
	if err := checkEnv(envPath); err != nil {
		return err
	}

	src, dst := filepath.Join(templateRoot, ComposeFile), filepath.Join(destRoot, ComposeFile)
	if !fsutil.IsFile(src) {
		return errs.Newf(stageRender, src, errs.ErrRenderFailed, "compose file not found in template root")
	}
	if err := fsutil.CopyFile(src, dst); err != nil {
		return errs.New(stageRender, dst, errs.ErrRenderFailed, err)
	}

	for _, rel := range Scripts {
		p := filepath.Join(destRoot, rel)
		if err := fsutil.MakeExecutable(p); err != nil {
			return errs.New(stageRender, p, errs.ErrRenderFailed, errors.Wrap(err, "mark executable"))
		}
	}

	logger.Info("stack rendered",
		zap.String("dest", destRoot),
		zap.String("kibana_config", filepath.Join(destRoot, KibanaConfig)),
		zap.String("env", envPath))
	return nil
}

func renderTo(tmplPath, outPath string, ctx render.Context) error {
	if !fsutil.IsFile(tmplPath) {
		return errs.Newf(stageRender, tmplPath, errs.ErrRenderFailed, "template not found")
	}
	out, err := render.File(tmplPath, ctx)
	if err != nil {
		return errs.New(stageRender, tmplPath, errs.ErrRenderFailed, err)
	}
	if err := fsutil.EnsureDir(filepath.Dir(outPath)); err != nil {
		return errs.New(stageRender, outPath, errs.ErrRenderFailed, err)
	}
	if err := fsutil.WriteFile(outPath, []byte(out), 0o644); err != nil {
		return errs.New(stageRender, outPath, errs.ErrRenderFailed, err)
	}
	return nil
}

// checkEnv parses the rendered .env so compose never sees a malformed one.
func checkEnv(path string) error {
	if _, err := godotenv.Read(path); err != nil {
		return errs.New(stageRender, path, errs.ErrRenderFailed, errors.Wrap(err, "rendered env file does not parse"))
	}
	return nil
}
