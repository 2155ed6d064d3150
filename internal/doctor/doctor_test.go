package doctor_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/h3ow3d/loggy/internal/doctor"
	"github.com/h3ow3d/loggy/internal/runner"
	"github.com/h3ow3d/loggy/internal/runner/runnertest"
	"github.com/h3ow3d/loggy/internal/xdg"
)

func tempDirs(t *testing.T) xdg.Dirs {
	t.Helper()
	tmp := t.TempDir()
	return xdg.Dirs{
		Config: filepath.Join(tmp, "config", "loggy"),
		Data:   filepath.Join(tmp, "data", "loggy"),
		State:  filepath.Join(tmp, "state", "loggy"),
	}
}

func healthy() doctor.Doctor {
	return doctor.Doctor{
		Runner: runnertest.New(map[string]runnertest.Handler{
			"docker":  runnertest.Output("Docker version 28.1.1, build 4eba377\n"),
			"openssl": runnertest.Output("OpenSSL 3.0.13 30 Jan 2024\n"),
		}),
		Compose: []string{"docker", "compose"},
		Ping:    func(context.Context) (string, error) { return "1.49", nil },
	}
}

func find(t *testing.T, results []doctor.CheckResult, name string) doctor.CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("check %q not found", name)
	return doctor.CheckResult{}
}

func TestRun_AllPass(t *testing.T) {
	results := healthy().Run(context.Background(), tempDirs(t))
	if len(results) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(results))
	}
	for _, r := range results {
		if !r.OK {
			t.Errorf("check %q failed: %s", r.Name, r.Message)
		}
	}
	if got := find(t, results, "openssl").Message; got != "OpenSSL 3.0.13 30 Jan 2024" {
		t.Errorf("openssl message = %q", got)
	}
	if doctor.Failed(results) != 0 {
		t.Errorf("Failed = %d, want 0", doctor.Failed(results))
	}
}

func TestRun_MissingTools(t *testing.T) {
	d := healthy()
	d.Runner = runnertest.New(nil)
	d.Ping = func(context.Context) (string, error) { return "", errors.New("connection refused") }

	results := d.Run(context.Background(), tempDirs(t))
	for _, name := range []string{"docker", "docker compose", "openssl", "docker daemon"} {
		r := find(t, results, name)
		if r.OK {
			t.Errorf("check %q passed without the tool", name)
		}
		if r.HowToFix == "" {
			t.Errorf("failed check %q is missing HowToFix hint", name)
		}
	}
	if doctor.Failed(results) != 4 {
		t.Errorf("Failed = %d, want 4", doctor.Failed(results))
	}
}

func TestRun_StandaloneCompose(t *testing.T) {
	d := healthy()
	fake := runnertest.New(map[string]runnertest.Handler{
		"docker":         runnertest.Output("Docker version 28.1.1\n"),
		"docker-compose": runnertest.Output("docker-compose version 1.29.2\n"),
		"openssl":        runnertest.Output("OpenSSL 3.0.13\n"),
	})
	d.Runner = fake
	d.Compose = []string{"docker-compose"}

	results := d.Run(context.Background(), tempDirs(t))
	if r := find(t, results, "docker compose"); !r.OK {
		t.Errorf("docker compose check failed: %s", r.Message)
	}
	calls := fake.CallsTo("docker-compose")
	if len(calls) != 1 || calls[0].Args[0] != "version" {
		t.Errorf("docker-compose calls = %+v", calls)
	}
}

func TestRun_DetectsStandaloneCompose(t *testing.T) {
	d := healthy()
	d.Compose = nil
	d.Runner = runnertest.New(map[string]runnertest.Handler{
		"docker": func(_ context.Context, cmd runner.Command) (runner.Result, error) {
			if len(cmd.Args) > 0 && cmd.Args[0] == "compose" {
				return runner.Result{}, &runner.ExitError{Command: cmd.String(), Code: 1, Stderr: "docker: 'compose' is not a docker command."}
			}
			return runner.Result{Stdout: []byte("Docker version 28.1.1\n")}, nil
		},
		"docker-compose": runnertest.Output("docker-compose version 1.29.2\n"),
		"openssl":        runnertest.Output("OpenSSL 3.0.13\n"),
	})

	results := d.Run(context.Background(), tempDirs(t))
	r := find(t, results, "docker compose")
	if !r.OK {
		t.Fatalf("docker compose check failed: %s", r.Message)
	}
	if !strings.Contains(r.Message, "1.29.2") {
		t.Errorf("message = %q, want the standalone version", r.Message)
	}
}

func TestRun_XDGCheckFailsOnReadOnly(t *testing.T) {
	dirs := xdg.Dirs{
		Config: "/proc/loggy/config",
		Data:   "/proc/loggy/data",
		State:  "/proc/loggy/state",
	}

	r := find(t, healthy().Run(context.Background(), dirs), "XDG directory access")
	if r.OK {
		t.Error("expected XDG directory access check to fail for unwritable path")
	}
	if r.HowToFix == "" {
		t.Error("failed XDG check must provide a HowToFix hint")
	}
}
