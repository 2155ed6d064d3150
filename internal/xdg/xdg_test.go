package xdg_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/h3ow3d/loggy/internal/xdg"
)

func TestDefault_Structure(t *testing.T) {
	dirs := xdg.Default()

	if dirs.Config == "" || dirs.Data == "" || dirs.State == "" {
		t.Errorf("Default() has empty entries: %+v", dirs)
	}
}

func TestDirs_SubPaths(t *testing.T) {
	dirs := xdg.Dirs{
		Config: "/tmp/cfg/loggy",
		Data:   "/tmp/data/loggy",
		State:  "/tmp/state/loggy",
	}

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"DeploymentsDir", dirs.DeploymentsDir(), "/tmp/data/loggy/deployments"},
		{"TemplatesDir", dirs.TemplatesDir(), "/tmp/data/loggy/templates"},
		{"LogsDir", dirs.LogsDir(), "/tmp/state/loggy/logs"},
		{"LogFile", dirs.LogFile(), "/tmp/state/loggy/logs/loggy.log"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}

func TestDefault_EnvOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmp, "state"))

	dirs := xdg.Default()

	if dirs.Config != filepath.Join(tmp, "config", "loggy") {
		t.Errorf("Config = %q", dirs.Config)
	}
	if dirs.Data != filepath.Join(tmp, "data", "loggy") {
		t.Errorf("Data = %q", dirs.Data)
	}
	if dirs.State != filepath.Join(tmp, "state", "loggy") {
		t.Errorf("State = %q", dirs.State)
	}
}

func TestEnsureDirs(t *testing.T) {
	tmp := t.TempDir()
	dirs := xdg.Dirs{
		Config: filepath.Join(tmp, "config", "loggy"),
		Data:   filepath.Join(tmp, "data", "loggy"),
		State:  filepath.Join(tmp, "state", "loggy"),
	}

	for i := 0; i < 2; i++ {
		if err := dirs.EnsureDirs(); err != nil {
			t.Fatalf("EnsureDirs (run %d): %v", i+1, err)
		}
	}
	for _, d := range []string{dirs.Config, dirs.DeploymentsDir(), dirs.LogsDir()} {
		info, err := os.Stat(d)
		if err != nil {
			t.Errorf("expected directory %s to exist: %v", d, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}
