// Package manifest computes the copy plan that turns a template tree into a
// deployment directory, and applies it.
//
// The plan is built once from the template root and consumed both by the
// materializer (Apply) and by dry-run tooling (loggy plan).
package manifest

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/h3ow3d/loggy/internal/errs"
	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
)

const stageMaterialize = "materialize"

// Services lists the template subtrees that make up a stack. Other top-level
// entries in the template root are not copied.
var Services = []string{"agent", "kibana", "elasticsearch", "tls", "fleet", "setup"}

// Entry is one item of the copy plan. Paths are relative to the template
// root (Source) and the destination root (Target).
type Entry struct {
	Source string
	Target string
	Mode   fs.FileMode
	Dir    bool
}

// Manifest is the copy plan for one template root.
type Manifest struct {
	Root    string
	Entries []Entry
}

// Build walks each service subtree of templateRoot and returns the plan.
// Directories precede the files they contain.
func Build(templateRoot string, services []string) (*Manifest, error) {
	if !fsutil.IsDir(templateRoot) {
		return nil, errs.Newf(stageMaterialize, templateRoot, errs.ErrTemplateMissing, "template root does not exist")
	}

	m := &Manifest{Root: templateRoot}
	for _, svc := range services {
		svcRoot := filepath.Join(templateRoot, svc)
		if !fsutil.IsDir(svcRoot) {
			return nil, errs.Newf(stageMaterialize, svcRoot, errs.ErrTemplateMissing, "service template %q does not exist", svc)
		}
		files, dirs, err := fsutil.Tree(svcRoot)
		if err != nil {
			return nil, errs.New(stageMaterialize, svcRoot, errs.ErrTemplateMissing, errors.Wrap(err, "walk service template"))
		}
		for _, rel := range append([]string{"."}, dirs...) {
			e, err := entry(templateRoot, filepath.Join(svc, rel))
			if err != nil {
				return nil, err
			}
			m.Entries = append(m.Entries, e)
		}
		for _, rel := range files {
			e, err := entry(templateRoot, filepath.Join(svc, rel))
			if err != nil {
				return nil, err
			}
			m.Entries = append(m.Entries, e)
		}
	}
	return m, nil
}

func entry(root, rel string) (Entry, error) {
	info, err := os.Stat(filepath.Join(root, rel))
	if err != nil {
		return Entry{}, errs.New(stageMaterialize, filepath.Join(root, rel), errs.ErrTemplateMissing, err)
	}
	return Entry{Source: rel, Target: rel, Mode: info.Mode().Perm(), Dir: info.IsDir()}, nil
}

// Files returns the file entries of the plan.
func (m *Manifest) Files() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if !e.Dir {
			out = append(out, e)
		}
	}
	return out
}

// Dirs returns the directory entries of the plan.
func (m *Manifest) Dirs() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.Dir {
			out = append(out, e)
		}
	}
	return out
}

// Apply creates every directory and copies every file of the plan below
// destRoot, giving each file its planned mode. Existing directories are
// reused. Apply stops at the first failed copy and leaves what it already
// copied in place.
func (m *Manifest) Apply(destRoot string, logger *zap.Logger) error {
	logger = log.Or(logger)
	if err := fsutil.EnsureDir(destRoot); err != nil {
		return errs.New(stageMaterialize, destRoot, errs.ErrCopyFailed, err)
	}
	for _, e := range m.Entries {
		dst := filepath.Join(destRoot, e.Target)
		if e.Dir {
			if err := fsutil.EnsureDir(dst); err != nil {
				return errs.New(stageMaterialize, dst, errs.ErrCopyFailed, err)
			}
			continue
		}
		src := filepath.Join(m.Root, e.Source)
		if err := fsutil.CopyFileMode(src, dst, e.Mode); err != nil {
			logger.Error("copy failed", zap.String("src", src), zap.String("dst", dst), zap.Error(err))
			return errs.New(stageMaterialize, dst, errs.ErrCopyFailed, err)
		}
		logger.Debug("copied", zap.String("src", src), zap.String("dst", dst), zap.Stringer("mode", e.Mode))
	}
	return nil
}

// Materialize copies the service subtrees of templateRoot into destRoot.
func Materialize(templateRoot, destRoot string, logger *zap.Logger) (*Manifest, error) {
	m, err := Build(templateRoot, Services)
	if err != nil {
		return nil, err
	}
	if err := m.Apply(destRoot, logger); err != nil {
		return m, err
	}
	log.Or(logger).Info("stack materialized",
		zap.String("template_root", templateRoot),
		zap.String("dest", destRoot),
		zap.Int("files", len(m.Files())),
		zap.Int("dirs", len(m.Dirs())))
	return m, nil
}
