// Package main provides the devassist CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/everydev1618/devassist"
	"github.com/everydev1618/devassist/container"
	"github.com/everydev1618/devassist/dsl"
	"github.com/everydev1618/devassist/internal/snippets"
	"github.com/everydev1618/devassist/store"
)

var version = "dev"

// cli holds the state shared by all subcommands.
type cli struct {
	configPath string
	verbose    bool

	cfg    devassist.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "devassist",
		Short: "Run developer assistants written in YAML",
		Long: `devassist runs assistants: YAML files whose run and dependencies
sections describe how to set up a project, step by step.

Examples:
  devassist run python.yaml --arg name=demo --arg flask
  devassist deps python.yaml --arg flask
  devassist eval 'defined $name and $(git --version)' --arg name=x
  devassist history`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", devassist.DefaultConfigPath(), "config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		c.runCmd(),
		c.validateCmd(),
		c.depsCmd(),
		c.evalCmd(),
		c.historyCmd(),
		c.initCmd(),
		c.resetCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "devassist %s\n", version)
			},
		},
	)
	return root
}

func (c *cli) setup(stderr io.Writer) error {
	cfg, err := devassist.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	c.cfg = cfg
	c.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(c.logger)
	return nil
}

type scopeFlags struct {
	args     []string
	envFiles []string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.args, "arg", "a", nil, "set an argument: name=value, or name for true")
	cmd.Flags().StringArrayVar(&f.envFiles, "env-file", nil, "read arguments from a .env file")
}

// values builds the argument map: .env files first, then --arg flags.
func (f *scopeFlags) values() (map[string]any, error) {
	out := make(map[string]any)
	if len(f.envFiles) > 0 {
		env, err := godotenv.Read(f.envFiles...)
		if err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		for k, v := range env {
			out[k] = v
		}
	}
	for _, a := range f.args {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid --arg %q", a)
		}
		if !ok {
			out[name] = true
			continue
		}
		out[name] = value
	}
	return out, nil
}

func (c *cli) runCmd() *cobra.Command {
	var (
		section string
		dryRun  bool
		yes     bool
		flags   scopeFlags
	)
	cmd := &cobra.Command{
		Use:   "run <assistant.yaml>",
		Short: "Install an assistant's dependencies and run one of its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := dsl.NewParser().ParseFile(args[0])
			if err != nil {
				return err
			}
			values, err := flags.values()
			if err != nil {
				return err
			}

			var ask func(string, []string) bool
			if !yes {
				in := bufio.NewReader(cmd.InOrStdin())
				ask = func(typ string, pkgs []string) bool {
					prompt := fmt.Sprintf("Install %s packages: %s?", typ, strings.Join(pkgs, " "))
					return confirm(in, cmd.ErrOrStderr(), prompt)
				}
			}

			runner, cleanup, err := c.newRunner(cmd.Context(), cmd.ErrOrStderr(), dryRun, ask)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := runner.Run(cmd.Context(), doc, section, values)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), resultOutput{OK: res.OK, Value: res.Value})
		},
	}
	cmd.Flags().StringVarP(&section, "section", "s", "", "section to run: run_<section> (default run)")
	cmd.Flags().BoolVar(&dryRun, "dry-run-deps", false, "log dependency installs instead of running them")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "install dependencies without asking")
	flags.register(cmd)
	return cmd
}

// newRunner wires the runner from configuration. ask, when set, confirms
// each dependency install. cleanup releases the history database and the
// Docker client.
func (c *cli) newRunner(ctx context.Context, stderr io.Writer, dryRun bool, ask func(string, []string) bool) (*devassist.Runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	loader := snippets.NewLoader(c.cfg.SnippetDirs...)
	if err := loader.Load(ctx); err != nil {
		return nil, nil, err
	}

	installer := devassist.NewInstaller()
	installer.DryRun = c.cfg.DryRunDeps || dryRun
	installer.Confirm = ask

	opts := []devassist.RunnerOption{
		devassist.WithLogger(c.logger),
		devassist.WithSnippets(loader),
		devassist.WithInstaller(installer),
		devassist.WithShellPath(c.cfg.Shell),
		devassist.WithDependencyTypes(c.cfg.DependencyTypes...),
	}

	if c.cfg.History {
		db, err := store.Open(c.cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { db.Close() })
		opts = append(opts, devassist.WithHistory(db))
	}

	if c.cfg.Docker {
		m := container.NewManager(container.WithBuildOutput(stderr))
		closers = append(closers, func() { m.Close() })
		if m.IsAvailable() {
			opts = append(opts, devassist.WithImageBuilder(m))
		} else {
			c.logger.Debug("docker not available, docker_b will be skipped")
		}
	}

	return devassist.NewRunner(opts...), cleanup, nil
}

type resultOutput struct {
	OK    bool `yaml:"ok"`
	Value any  `yaml:"value"`
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
