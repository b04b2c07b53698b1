// Moxie CLI - declares the classes of a moxie.toml project and works with
// their stored instances
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("moxie", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Verbose output")
	dir := fs.String("C", ".", "Project directory (searched upward for moxie.toml)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: moxie [options] <command> [args...]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nCommands:\n")
		fmt.Fprintf(stderr, "  types                         List type constraints\n")
		fmt.Fprintf(stderr, "  classes                       List classes and their attributes\n")
		fmt.Fprintf(stderr, "  check <type> <value>          Check a JSON value against a type\n")
		fmt.Fprintf(stderr, "  new <Class> [attr=value ...]  Construct (and store) an instance\n")
		fmt.Fprintf(stderr, "  show <id>                     Print a stored instance\n")
		fmt.Fprintf(stderr, "  get <id> <method>             Call a reader on a stored instance\n")
		fmt.Fprintf(stderr, "  set <id> <method> <value>     Call a writer and store the result\n")
		fmt.Fprintf(stderr, "  ls [Class]                    List stored instance IDs\n")
		fmt.Fprintf(stderr, "  rm <id>                       Delete a stored instance\n")
		fmt.Fprintf(stderr, "\nValues are JSON; bare words are strings and @<id> refers to a stored instance.\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	app, err := openApp(*dir, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer app.close()

	if err := app.dispatch(rest[0], rest[1:]); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		return 1
	}
	return 0
}
