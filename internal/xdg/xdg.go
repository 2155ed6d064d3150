// Package xdg resolves the XDG base directories loggy reads and writes.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const app = "loggy"

// Dirs holds the resolved directory paths for loggy.
type Dirs struct {
	// Config is ~/.config/loggy  (XDG_CONFIG_HOME)
	Config string
	// Data is ~/.local/share/loggy  (XDG_DATA_HOME)
	Data string
	// State is ~/.local/state/loggy  (XDG_STATE_HOME)
	State string
}

// base returns the XDG base directory, falling back to $HOME/<fallback>
// when the environment variable is unset or empty.
func base(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}

// Default returns the directory set for the current environment.
func Default() Dirs {
	return Dirs{
		Config: filepath.Join(base("XDG_CONFIG_HOME", ".config"), app),
		Data:   filepath.Join(base("XDG_DATA_HOME", ".local/share"), app),
		State:  filepath.Join(base("XDG_STATE_HOME", ".local/state"), app),
	}
}

// DeploymentsDir is the default output directory of loggy make.
func (d Dirs) DeploymentsDir() string {
	return filepath.Join(d.Data, "deployments")
}

// TemplatesDir is where loggy templates install writes the template tree.
func (d Dirs) TemplatesDir() string {
	return filepath.Join(d.Data, "templates")
}

func (d Dirs) LogsDir() string {
	return filepath.Join(d.State, "logs")
}

// LogFile is the structured log written on every run.
func (d Dirs) LogFile() string {
	return filepath.Join(d.LogsDir(), app+".log")
}

// EnsureDirs creates the loggy directories that do not yet exist, private
// to the owning user.
func (d Dirs) EnsureDirs() error {
	for _, dir := range []string{d.Config, d.DeploymentsDir(), d.LogsDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
