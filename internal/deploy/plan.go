package deploy

import (
	"path/filepath"

	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/manifest"
	"github.com/h3ow3d/loggy/internal/stack"
)

// Plan describes what a pipeline run would write, without writing anything.
type Plan struct {
	Descriptor *stack.Descriptor
	DeployDir  string
	// Exists reports whether DeployDir is already present; a run without
	// force would stop with a destination-exists error.
	Exists   bool
	Manifest *manifest.Manifest
	// Rendered lists the files written by the render stage, relative to
	// DeployDir.
	Rendered []string
	// Executables lists the scripts marked executable after rendering.
	Executables []string
	TrustAnchor string
}

// DryRun loads the configuration and computes the copy plan for it.
func DryRun(configPath, outputDir, templateRoot string) (*Plan, error) {
	d, err := stack.Load(configPath)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Build(templateRoot, manifest.Services)
	if err != nil {
		return nil, err
	}
	dest := d.DeployDir(outputDir)
	return &Plan{
		Descriptor:  d,
		DeployDir:   dest,
		Exists:      fsutil.Exists(dest),
		Manifest:    m,
		Rendered:    []string{filepath.FromSlash(KibanaConfig), EnvFile, ComposeFile},
		Executables: fromSlash(Scripts),
		TrustAnchor: stack.TrustAnchor(dest),
	}, nil
}

func fromSlash(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.FromSlash(p)
	}
	return out
}
