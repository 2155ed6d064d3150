// Package templates ships the default stack template tree inside the binary
// and installs it on disk, where the materializer reads it.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
)

//go:embed all:assets
var assets embed.FS

// FS returns the embedded template tree rooted at its top directory.
func FS() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err) // the embed pattern guarantees the directory
	}
	return sub
}

// Install writes the embedded template tree to dest. Shell scripts are
// installed executable. An existing dest is replaced only when force is set.
func Install(dest string, force bool) error {
	if fsutil.Exists(dest) {
		if !force {
			return fmt.Errorf("template directory %s already exists (use --force to replace it)", dest)
		}
		if err := fsutil.ForceRemoveAll(dest); err != nil {
			return err
		}
	}

	src := FS()
	err := fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(p))
		if d.IsDir() {
			return fsutil.EnsureDir(target)
		}
		data, err := fs.ReadFile(src, p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, fileMode(p)); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		return os.Chmod(target, fileMode(p))
	})
	if err != nil {
		return fmt.Errorf("install templates to %s: %w", dest, err)
	}
	log.Ok(fmt.Sprintf("Templates installed at %s", dest))
	return nil
}

func fileMode(p string) os.FileMode {
	if strings.HasSuffix(path.Base(p), ".sh") {
		return 0o755
	}
	return 0o644
}
