// Package devassist runs developer assistants: YAML files whose sections
// describe, step by step, how to set up or maintain a project.
//
// The dsl package parses assistant files and interprets their sections.
// This package supplies everything around the interpreter:
//
//   - Commands: the registry of directive handlers (cl, log_*, call, ...)
//   - Session: one assistant's dispatcher, with its SCL stack and snippets
//   - Installer: dependency groups turned into package manager invocations
//   - Runner: argument seeding, dependency installation and section runs
//   - Config: TOML configuration under ~/.devassist
//
// # Quick Start
//
//	doc, err := dsl.NewParser().ParseFile("python.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	runner := devassist.NewRunner(
//	    devassist.WithInstaller(devassist.NewInstaller()),
//	)
//	res, err := runner.Run(ctx, doc, "", map[string]any{"name": "demo"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Value)
//
// # Commands
//
// Every directive the interpreter does not handle itself goes through a
// Commands registry. Handlers are matched by exact name first and then by
// the longest registered prefix:
//
//	cmds := devassist.NewCommands()
//	cmds.RegisterBuiltins()
//	cmds.Register("notify", func(ctx context.Context, s *devassist.Session, cmd *dsl.Command) (dsl.Result, error) {
//	    return dsl.Result{OK: true, Value: dsl.Text(cmd.Input.Value)}, nil
//	})
//	cmds.Use(devassist.Logging())
//	runner := devassist.NewRunner(devassist.WithCommands(cmds))
//
// # Snippets
//
// call and use can reach sections in other assistant files. Snippets are
// looked up by name (their path below a snippets directory, without the
// extension) through a SnippetSource such as internal/snippets.Loader.
//
// # History
//
// With WithHistory, every run and every dispatched command is recorded,
// typically in the SQLite database provided by the store package.
package devassist
