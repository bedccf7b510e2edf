// Command sqlflow is the external CLI collaborator for the SQLFlow
// compiler and executor: it parses flags, loads a profile document, and
// calls straight into internal/driver's Compile/Run/Validate/DescribeConnector
// entry points.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
)

func main() {
	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	addCmd(parser, "compile", "Compile a pipeline to a plan", `
Parse and plan a .sf pipeline file, printing the resulting operation DAG
without executing it.
`, &cmdCompile{})

	addCmd(parser, "run", "Run a pipeline", `
Compile and execute a .sf pipeline file against the profile's configured
engine, reporting each operation's outcome.
`, &cmdRun{})

	addCmd(parser, "validate", "Explain a compiled plan", `
Compile a .sf pipeline file and print a human-readable explanation of its
operations and dependencies, without executing it. With --compare-var, also
prints a diff of the plan against a second variable overlay.
`, &cmdValidate{})

	addCmd(parser, "describe", "Describe a connector's schema", `
Report the column schema a named profile connector reports for an object,
without running a pipeline.
`, &cmdDescribe{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, name, short, long string, data interface{}) *flags.Command {
	cmd, err := to.AddCommand(name, short, long, data)
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "sqlflow: failed to register command:", err)
		os.Exit(1)
	}
	return cmd
}
