// Command rekey derives canonical Event and Class identifiers, reconciles
// duplicate Event records, and validates the result.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/rekey/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		// Commands report their own failures; print only what cobra rejected.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "rekey:", err)
			os.Exit(cli.ExitCommandError)
		}
	}
	os.Exit(cli.GetExitCode(err))
}
