package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/everydev1618/devassist"
	"github.com/everydev1618/devassist/dsl"
	"github.com/everydev1618/devassist/store"
)

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <assistant.yaml>...",
		Short: "Check assistant files for errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				doc, err := dsl.NewParser().ParseFile(path)
				if err != nil {
					fmt.Fprintf(out, "✗ %v\n", err)
					failed++
					continue
				}
				fmt.Fprintf(out, "✓ %s (%s): %s\n", path, doc.Name, strings.Join(doc.SectionNames(), ", "))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	}
}

func (c *cli) depsCmd() *cobra.Command {
	var flags scopeFlags
	cmd := &cobra.Command{
		Use:   "deps <assistant.yaml>",
		Short: "Print the dependencies an assistant would install",
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

			runner, cleanup, err := c.newRunner(cmd.Context(), cmd.ErrOrStderr(), true, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			groups, err := runner.Dependencies(cmd.Context(), doc, values)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), groups)
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) evalCmd() *cobra.Command {
	var flags scopeFlags
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression and print its truth and value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := flags.values()
			if err != nil {
				return err
			}
			interp := dsl.NewInterpreter(
				dsl.WithShell(&dsl.ExecShell{Path: c.cfg.Shell}),
				dsl.WithLogger(c.logger),
			)
			res, err := interp.Evaluate(cmd.Context(), args[0], dsl.Scope(values))
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), resultOutput{OK: res.OK, Value: res.Value})
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs, or the commands of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(c.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 0 {
				runs, err := db.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tASSISTANT\tSECTION\tSTATUS\tSTARTED\tDURATION")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.Assistant, r.Section, r.Status,
						r.StartedAt.Local().Format(time.DateTime), r.Duration().Round(time.Millisecond))
				}
				return nil
			}

			run, err := db.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			events, err := db.ListEvents(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s %s/%s: %s\n", run.ID, run.Assistant, run.Section, run.Status)
			if run.Error != "" {
				fmt.Fprintf(w, "error: %s\n", run.Error)
			}
			fmt.Fprintln(w, "DIRECTIVE\tOK\tMS\tINPUT\tERROR")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%t\t%d\t%s\t%s\n", e.Directive, e.OK, e.DurationMS, oneLine(e.Input), e.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

func (c *cli) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the devassist home directory and a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := devassist.EnsureHome(); err != nil {
				return fmt.Errorf("create %s: %w", devassist.Home(), err)
			}
			fmt.Fprintf(out, "  snippets: %s\n", devassist.SnippetsPath())

			if _, err := os.Stat(c.configPath); err == nil && !force {
				fmt.Fprintf(out, "  config:   %s (kept)\n", c.configPath)
				return nil
			}
			if err := devassist.SaveConfig(c.configPath, devassist.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(out, "  config:   %s\n", c.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the run history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.DBPath
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to reset.")
				return nil
			}
			if !yes && !confirm(bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout(), fmt.Sprintf("Delete %s?", path)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			for _, p := range []string{path, path + "-wal", path + "-shm"} {
				if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History deleted.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

// confirm asks a yes/no question. Anything but y or yes, including end of
// input, is a no.
func confirm(in *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
