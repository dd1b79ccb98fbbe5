// Command casestore records, converts, validates, archives and queries
// optimization case files.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/casestore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
