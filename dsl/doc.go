// Package dsl parses and interprets assistant files: YAML documents whose
// sections are small shell-aware scripts.
//
// # Assistant Files
//
// An assistant file names the assistant, declares its arguments and files,
// and holds one or more sections:
//
//	name: flask
//	args:
//	  name:
//	    flags: [-n, --name]
//	    help: Project name
//	files:
//	  app: {source: app.py}
//	dependencies:
//	- rpm: [python3-flask]
//	run:
//	- cl: mkdir -p $name
//	- cl: cp *app $name/
//	- if $(git --version):
//	  - cl: git init $name
//	- else:
//	  - log_w: git is not installed
//
// # Sections
//
// A section is a list of single-key mappings, run in order against one
// shared Scope. Keys of these shapes are handled by the interpreter:
//
//	$var: text            - assign substituted text (always true)
//	$var~: expression     - assign the value of an expression
//	$ok, $var~: expr      - assign truth and value separately
//	if expression:        - run the body when the expression is true
//	else:                 - run the body when the preceding if was false
//	for $x in expression: - run the body once per word of the value
//	for $k, $v in $map:   - run the body once per mapping pair
//
// Everything else is handed to a Dispatcher as a Command.
//
// # Expressions
//
// Expressions evaluate to a (truth, value) Result:
//
//	$name, ${name}   - variable; undefined is (false, "")
//	"text $name"     - interpolated literal, true when non-empty
//	'text'           - literal without interpolation
//	$(command)       - shell substitution; true on exit status 0
//	defined $name    - whether name is bound
//	a in b           - whether the text of a occurs in b
//	not a, a and b, a or b
//
// # Usage
//
//	doc, err := dsl.NewParser().ParseFile("flask.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	interp := dsl.NewInterpreter(
//	    dsl.WithDispatcher(dispatcher),
//	    dsl.WithFiles(doc.Manifest()),
//	)
//	run, _ := doc.Section("run")
//	res, err := interp.Run(ctx, run, dsl.Scope{"name": "hello"})
package dsl
