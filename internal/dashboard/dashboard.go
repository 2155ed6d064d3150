// Package dashboard renders the status report of a deployment directory.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h3ow3d/loggy/internal/agent"
	"github.com/h3ow3d/loggy/internal/deploy"
	"github.com/h3ow3d/loggy/internal/fleet"
	"github.com/h3ow3d/loggy/internal/stack"
)

const lineWidth = 70

// Artifacts are the files a complete deployment contains, relative to the
// deployment directory.
var Artifacts = []string{
	deploy.ComposeFile,
	deploy.EnvFile,
	deploy.KibanaConfig,
	"tls/certs/ca/ca.crt",
	agent.Output,
}

// Options configures a report.
type Options struct {
	// Fingerprint reads the CA fingerprint; nil skips the TRUST section body.
	Fingerprint func(ctx context.Context, certPath string) (string, error)
	// Elasticsearch queries the cluster; nil skips the ELASTICSEARCH section body.
	Elasticsearch func(ctx context.Context) (*fleet.ClusterInfo, error)
	// Now stamps the header; defaults to time.Now.
	Now func() time.Time
}

// Render builds all report lines for one deployment.
func Render(ctx context.Context, desc *stack.Descriptor, deployDir string, opts Options) []string {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	var out []string
	out = append(out, fmt.Sprintf("== loggy  stack=%-12s  %s ==", desc.Name, now().Format("15:04:05")))
	out = append(out, "")
	out = append(out, renderStack(desc, deployDir)...)
	out = append(out, renderArtifacts(deployDir)...)
	out = append(out, renderTrust(ctx, deployDir, opts.Fingerprint)...)
	out = append(out, renderElasticsearch(ctx, desc, opts.Elasticsearch)...)
	return out
}

// Print writes the report to w.
func Print(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func section(title string) string {
	prefix := "-- " + title + " "
	padLen := lineWidth - len(prefix)
	if padLen < 1 {
		padLen = 1
	}
	return prefix + strings.Repeat("-", padLen)
}

func renderStack(desc *stack.Descriptor, deployDir string) []string {
	var out []string
	out = append(out, section("STACK"))
	es := desc.SearchEngineURL
	if desc.DefaultedSearchEngine {
		es += "  (default)"
	}
	rows := [][2]string{
		{"config", desc.Source},
		{"directory", deployDir},
		{"version", desc.EngineVersion},
		{"kibana", fmt.Sprintf("%s  (server_name=%s)", desc.DashboardURL, desc.DashboardServerName)},
		{"elasticsearch", es},
		{"agent policy", desc.Fleet.AgentPolicy},
	}
	for _, r := range rows {
		out = append(out, fmt.Sprintf("  %-14s  %s", r[0], r[1]))
	}
	out = append(out, "")
	return out
}

func renderArtifacts(deployDir string) []string {
	var out []string
	out = append(out, section("ARTIFACTS"))
	out = append(out, fmt.Sprintf("  %-38s  %-8s  %s", "FILE", "STATUS", "MODIFIED"))

	for _, rel := range Artifacts {
		p := filepath.Join(deployDir, filepath.FromSlash(rel))
		info, err := os.Stat(p)
		if err != nil {
			out = append(out, fmt.Sprintf("  %-38s  %s", rel, "missing"))
			continue
		}
		out = append(out, fmt.Sprintf("  %-38s  %-8s  %s", rel, "exists", info.ModTime().Format("2006-01-02 15:04:05")))
	}
	out = append(out, "")
	return out
}

func renderTrust(ctx context.Context, deployDir string, fingerprint func(context.Context, string) (string, error)) []string {
	var out []string
	out = append(out, section("TRUST"))
	ca := stack.TrustAnchor(deployDir)

	switch {
	case !fileExists(ca):
		out = append(out, "  (no CA yet; run loggy make)")
	case fingerprint == nil:
		out = append(out, "  ca.crt present")
	default:
		fp, err := fingerprint(ctx, ca)
		if err != nil {
			out = append(out, fmt.Sprintf("  fingerprint  error: %v", err))
			break
		}
		out = append(out, fmt.Sprintf("  %-11s  %s", "sha256", fp))
		injected := "no"
		if data, err := os.ReadFile(filepath.Join(deployDir, deploy.KibanaConfig)); err == nil && strings.Contains(string(data), fp) {
			injected = "yes"
		}
		out = append(out, fmt.Sprintf("  %-11s  %s", "in kibana", injected))
	}
	out = append(out, "")
	return out
}

func renderElasticsearch(ctx context.Context, desc *stack.Descriptor, check func(context.Context) (*fleet.ClusterInfo, error)) []string {
	var out []string
	out = append(out, section("ELASTICSEARCH"))
	if check == nil {
		out = append(out, "  (not checked)")
		out = append(out, "")
		return out
	}
	info, err := check(ctx)
	if err != nil {
		out = append(out, fmt.Sprintf("  %-11s  down  (%v)", desc.SearchEngineURL, err))
	} else {
		out = append(out, fmt.Sprintf("  %-11s  up  cluster=%s version=%s", desc.SearchEngineURL, info.ClusterName, info.Version.Number))
	}
	out = append(out, "")
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
