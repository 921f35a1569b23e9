// cmd/main.go is the application entry point. It hands the command line to
// the cobra root command and maps errors to exit codes.
package main

import (
	"fmt"
	"os"

	"github.com/thehansentribe/honorsfest/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
