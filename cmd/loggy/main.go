// loggy – Elastic stack deployment CLI
//
// Usage:
//
//	loggy make <config>            – materialize, render and bootstrap a stack
//	loggy plan <config>            – show what make would write
//	loggy add-agent <config>       – enroll an Elastic Agent into the stack's Fleet
//	loggy status <config>          – report on a deployment directory
//	loggy doctor                   – check host prerequisites
//	loggy templates install        – write the default template tree
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/h3ow3d/loggy/internal/agent"
	"github.com/h3ow3d/loggy/internal/dashboard"
	"github.com/h3ow3d/loggy/internal/deploy"
	"github.com/h3ow3d/loggy/internal/doctor"
	"github.com/h3ow3d/loggy/internal/errs"
	"github.com/h3ow3d/loggy/internal/fleet"
	"github.com/h3ow3d/loggy/internal/fsutil"
	"github.com/h3ow3d/loggy/internal/log"
	"github.com/h3ow3d/loggy/internal/runner"
	"github.com/h3ow3d/loggy/internal/stack"
	"github.com/h3ow3d/loggy/internal/templates"
	"github.com/h3ow3d/loggy/internal/trust"
	"github.com/h3ow3d/loggy/internal/xdg"
)

func main() {
	var verbose bool
	flush := func() {}

	root := &cobra.Command{
		Use:   "loggy",
		Short: "Elastic stack deployment tool",
		Long: `loggy – generate self-contained Elasticsearch, Kibana and Fleet deployments.

Each deployment is a directory with a docker compose project, a stack CA
produced by the tls service and a Kibana config that trusts it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			f, err := log.Setup(log.Options{Verbose: verbose, File: xdg.Default().LogFile()})
			if err != nil {
				return err
			}
			flush = f
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logs to stderr")

	root.AddCommand(makeCmd(), planCmd(), addAgentCmd(), statusCmd(), doctorCmd(), templatesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := root.ExecuteContext(ctx)
	stop()
	flush()
	if err != nil {
		log.Error(failure(err))
		os.Exit(1)
	}
}

// failure formats err for the console, naming its kind when it has one.
func failure(err error) string {
	if k := errs.Kind(err); k != nil {
		return fmt.Sprintf("%v (%v)", err, k)
	}
	return err.Error()
}

// ── make ──────────────────────────────────────────────────────────────────────

type makeFlags struct {
	out       string
	templates string
	force     bool
	timeout   time.Duration
}

func makeCmd() *cobra.Command {
	var f makeFlags
	cmd := &cobra.Command{
		Use:   "make <config>",
		Short: "Create a deployment from a stack config",
		Long: `Creates <out>/<stack.name> from the stack config:
  1. loads and validates the config
  2. creates the deployment directory (--force replaces an existing one)
  3. copies the agent, kibana, elasticsearch, tls, fleet and setup templates
  4. renders kibana.yml and .env, copies docker-compose.yml
  5. runs the tls service to generate the stack CA
  6. writes the CA fingerprint into kibana.yml

Interrupting stops the pipeline at the next stage boundary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMake(cmd.Context(), args[0], f)
		},
	}
	addOutFlag(cmd, &f.out)
	addTemplatesFlag(cmd, &f.templates)
	cmd.Flags().BoolVar(&f.force, "force", false, "replace the deployment directory if it exists")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "trust bootstrap timeout (default from config, else 10m)")
	return cmd
}

func runMake(ctx context.Context, configPath string, f makeFlags) error {
	templateRoot, err := resolveTemplates(f.templates)
	if err != nil {
		return err
	}
	log.Info(fmt.Sprintf("Creating deployment for %s", configPath))

	p := deploy.New(deploy.Options{
		ConfigPath:       configPath,
		OutputDir:        f.out,
		TemplateRoot:     templateRoot,
		Force:            f.force,
		BootstrapTimeout: f.timeout,
		Runner:           runner.Exec{Logger: log.L()},
		Logger:           log.L(),
		Progress: func(s deploy.State) {
			if s != deploy.Failed {
				log.Ok(s.String())
			}
		},
	})
	if err := p.Run(ctx); err != nil {
		return err
	}
	fp, _ := p.Descriptor().Fingerprint()
	log.Ok(fmt.Sprintf("Stack %s ready at %s (CA sha256 %s)", p.Descriptor().Name, p.DeployDir(), fp))
	log.Info(fmt.Sprintf("Start it with: docker compose --project-directory %s up -d", p.DeployDir()))
	return nil
}

// ── plan ──────────────────────────────────────────────────────────────────────

func planCmd() *cobra.Command {
	var out, tmpl string
	cmd := &cobra.Command{
		Use:   "plan <config>",
		Short: "Show what make would write",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runPlan(args[0], out, tmpl)
		},
	}
	addOutFlag(cmd, &out)
	addTemplatesFlag(cmd, &tmpl)
	return cmd
}

func runPlan(configPath, out, tmpl string) error {
	if tmpl == "" {
		tmpl = xdg.Default().TemplatesDir()
	}
	plan, err := deploy.DryRun(configPath, out, tmpl)
	if err != nil {
		return err
	}
	fmt.Printf("stack %s → %s\n", plan.Descriptor.Name, plan.DeployDir)
	if plan.Exists {
		log.Skip("deployment directory exists; make needs --force")
	}
	fmt.Printf("\ncopy from %s:\n", plan.Manifest.Root)
	for _, e := range plan.Manifest.Entries {
		if e.Dir {
			fmt.Printf("  mkdir %s/\n", e.Target)
			continue
		}
		fmt.Printf("  %s  %s\n", e.Mode, e.Target)
	}
	fmt.Println("\nrender:")
	for _, p := range plan.Rendered {
		fmt.Printf("  %s\n", p)
	}
	fmt.Println("\nmark executable:")
	for _, p := range plan.Executables {
		fmt.Printf("  %s\n", p)
	}
	fmt.Printf("\ntrust anchor: %s\n", plan.TrustAnchor)
	return nil
}

// ── add-agent ─────────────────────────────────────────────────────────────────

func addAgentCmd() *cobra.Command {
	var out, policy string
	cmd := &cobra.Command{
		Use:   "add-agent <config>",
		Short: "Enroll an Elastic Agent into the stack's Fleet",
		Long: `Creates the agent policy if needed, looks up its enrollment token and
renders agent/agent-compose-deploy.yml in the deployment directory.

The stack must be running. The Fleet password comes from stack.fleet.password,
then $ELASTIC_PASSWORD, then the deployment's .env.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddAgent(cmd.Context(), args[0], out, policy)
		},
	}
	addOutFlag(cmd, &out)
	cmd.Flags().StringVar(&policy, "policy", "", "agent policy name (default from config)")
	return cmd
}

func runAddAgent(ctx context.Context, configPath, out, policy string) error {
	desc, err := stack.Load(configPath)
	if err != nil {
		return err
	}
	deployDir := desc.DeployDir(out)
	client, err := fleet.New(fleet.Config{
		URL:      desc.DashboardURL,
		Username: desc.Fleet.Username,
		Password: agent.Password(desc, deployDir),
		Logger:   log.L(),
	})
	if err != nil {
		return err
	}
	res, err := agent.Enroll(ctx, client, desc, deployDir, agent.Options{Policy: policy, Logger: log.L()})
	if err != nil {
		return err
	}
	if res.PolicyCreated {
		log.Ok(fmt.Sprintf("Agent policy %q created", res.PolicyName))
	} else {
		log.Skip(fmt.Sprintf("Agent policy %q already exists", res.PolicyName))
	}
	log.Ok(fmt.Sprintf("Agent %s written to %s", res.AgentName, res.ComposeFile))
	log.Info(fmt.Sprintf("Start it with: docker compose --file %s up -d", res.ComposeFile))
	return nil
}

// ── status ────────────────────────────────────────────────────────────────────

func statusCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "status <config>",
		Short: "Report on a deployment directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), args[0], out)
		},
	}
	addOutFlag(cmd, &out)
	return cmd
}

func runStatus(ctx context.Context, configPath, out string) error {
	desc, err := stack.Load(configPath)
	if err != nil {
		return err
	}
	deployDir := desc.DeployDir(out)
	x := trust.Extractor{Runner: runner.Exec{Logger: log.L()}, Logger: log.L()}

	opts := dashboard.Options{Fingerprint: x.Extract}
	if ca := stack.TrustAnchor(deployDir); fsutil.IsFile(ca) {
		es, err := fleet.New(fleet.Config{
			URL:         desc.SearchEngineURL,
			Username:    desc.Fleet.Username,
			Password:    agent.Password(desc, deployDir),
			CAFile:      ca,
			MaxAttempts: 1,
			Logger:      log.L(),
		})
		if err != nil {
			return err
		}
		opts.Elasticsearch = es.CheckElasticsearch
	}
	dashboard.Print(os.Stdout, dashboard.Render(ctx, desc, deployDir, opts))
	return nil
}

// ── doctor ────────────────────────────────────────────────────────────────────

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check host prerequisites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := doctor.Doctor{Runner: runner.Exec{Logger: log.L()}}.Run(cmd.Context(), xdg.Default())
			for _, r := range results {
				if r.OK {
					log.Ok(fmt.Sprintf("%-22s %s", r.Name, r.Message))
					continue
				}
				log.Error(fmt.Sprintf("%-22s %s", r.Name, r.Message))
				fmt.Printf("    how to fix: %s\n", r.HowToFix)
			}
			if n := doctor.Failed(results); n > 0 {
				return fmt.Errorf("%d of %d checks failed", n, len(results))
			}
			return nil
		},
	}
}

// ── templates ─────────────────────────────────────────────────────────────────

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage the stack template tree",
	}
	var dest string
	var force bool
	install := &cobra.Command{
		Use:   "install",
		Short: "Write the built-in template tree to disk",
		RunE: func(_ *cobra.Command, _ []string) error {
			if dest == "" {
				dest = xdg.Default().TemplatesDir()
			}
			return templates.Install(dest, force)
		},
	}
	install.Flags().StringVar(&dest, "dest", "", "target directory (default $XDG_DATA_HOME/loggy/templates)")
	install.Flags().BoolVar(&force, "force", false, "replace an existing template directory")
	cmd.AddCommand(install)
	return cmd
}

// ── shared flags ──────────────────────────────────────────────────────────────

func addOutFlag(cmd *cobra.Command, out *string) {
	cmd.Flags().StringVar(out, "out", xdg.Default().DeploymentsDir(), "output folder for deployments")
}

func addTemplatesFlag(cmd *cobra.Command, tmpl *string) {
	cmd.Flags().StringVar(tmpl, "templates", "", "template root (default $XDG_DATA_HOME/loggy/templates)")
}

// resolveTemplates returns the template root to use. Without an explicit
// directory the XDG one is used, installing the built-in tree on first use.
func resolveTemplates(dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	dir = xdg.Default().TemplatesDir()
	if fsutil.IsDir(dir) {
		return dir, nil
	}
	log.Info(fmt.Sprintf("Installing built-in templates to %s", dir))
	if err := templates.Install(dir, false); err != nil {
		return "", err
	}
	return dir, nil
}
