// Package doctor checks the host prerequisites of loggy.
package doctor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/client"

	"github.com/h3ow3d/loggy/internal/runner"
	"github.com/h3ow3d/loggy/internal/trust"
	"github.com/h3ow3d/loggy/internal/xdg"
)

const checkTimeout = 15 * time.Second

// CheckResult holds the outcome of a single doctor check.
type CheckResult struct {
	Name     string
	OK       bool
	Message  string
	HowToFix string
}

// Doctor runs the checks. Zero fields fall back to the real implementations.
type Doctor struct {
	Runner runner.Runner
	// Compose is the compose argv prefix; detected with trust.ComposeCommand
	// when empty.
	Compose []string
	// Ping reaches the Docker daemon and returns its API version.
	Ping func(ctx context.Context) (string, error)
}

// Run performs all prerequisite checks. It never returns an error itself;
// pass/fail is encoded in each CheckResult.
func (d Doctor) Run(ctx context.Context, dirs xdg.Dirs) []CheckResult {
	if d.Runner == nil {
		d.Runner = runner.Exec{}
	}
	if len(d.Compose) == 0 {
		d.Compose = trust.ComposeCommand(ctx, d.Runner)
	}
	if d.Ping == nil {
		d.Ping = PingDocker
	}
	return []CheckResult{
		d.checkCommand(ctx, "docker", "docker", "--version"),
		d.checkCommand(ctx, "docker compose", d.Compose[0], append(append([]string{}, d.Compose[1:]...), "version")...),
		d.checkCommand(ctx, "openssl", "openssl", "version"),
		d.checkDaemon(ctx),
		checkXDGWrite(dirs),
	}
}

// checkCommand verifies that an executable runs without error.
func (d Doctor) checkCommand(ctx context.Context, name, bin string, args ...string) CheckResult {
	cmd := runner.Command{Name: bin, Args: args, Timeout: checkTimeout}
	res, err := d.Runner.Run(ctx, cmd)
	if err != nil {
		return CheckResult{
			Name:     name,
			OK:       false,
			Message:  fmt.Sprintf("%s failed: %v", cmd.String(), err),
			HowToFix: installHint(name),
		}
	}
	return CheckResult{Name: name, OK: true, Message: firstLine(string(res.Stdout), cmd.String()+" ok")}
}

// checkDaemon verifies that the Docker daemon answers.
func (d Doctor) checkDaemon(ctx context.Context) CheckResult {
	const name = "docker daemon"
	version, err := d.Ping(ctx)
	if err != nil {
		return CheckResult{
			Name:    name,
			OK:      false,
			Message: fmt.Sprintf("cannot reach the Docker daemon: %v", err),
			HowToFix: "Start Docker and make sure your user may use it:\n" +
				"  sudo systemctl start docker\n" +
				"  sudo usermod -aG docker \"$USER\"   # then log out and back in",
		}
	}
	return CheckResult{Name: name, OK: true, Message: "reachable (API " + version + ")"}
}

// PingDocker pings the daemon named by the DOCKER_* environment.
func PingDocker(ctx context.Context) (string, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", err
	}
	defer cli.Close()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	p, err := cli.Ping(ctx)
	if err != nil {
		return "", err
	}
	return p.APIVersion, nil
}

// checkXDGWrite verifies that loggy can write to its XDG directories.
func checkXDGWrite(dirs xdg.Dirs) CheckResult {
	const name = "XDG directory access"
	if err := dirs.EnsureDirs(); err != nil {
		return CheckResult{
			Name:     name,
			OK:       false,
			Message:  fmt.Sprintf("cannot create loggy directories: %v", err),
			HowToFix: "Check that your home directory is writable and you have sufficient disk space.",
		}
	}
	return CheckResult{
		Name:    name,
		OK:      true,
		Message: fmt.Sprintf("XDG dirs ready (config=%s data=%s state=%s)", dirs.Config, dirs.Data, dirs.State),
	}
}

func installHint(name string) string {
	hints := map[string]string{
		"docker":         "Install Docker Engine: https://docs.docker.com/engine/install/",
		"docker compose": "sudo apt install docker-compose-plugin",
		"openssl":        "sudo apt install openssl",
	}
	if hint, ok := hints[name]; ok {
		return hint
	}
	return fmt.Sprintf("Install %q and ensure it is on your PATH.", name)
}

func firstLine(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// Failed returns how many results did not pass.
func Failed(results []CheckResult) int {
	n := 0
	for _, r := range results {
		if !r.OK {
			n++
		}
	}
	return n
}
