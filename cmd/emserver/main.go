// Command emserver serves a directory of web build output over HTTPS on
// port 4443, using localhost.pem and localhost-key.pem from the working
// directory.
//
// Usage:
//
//	emserver <dir>
package main

import (
	"io"
	"os"

	"github.com/gbforge/gbforge/internal/server"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "emserver <dir>",
		Short:         "Serve a web build over HTTPS on port 4443",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true, // logged by run
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid from here on; failures are not usage errors.
			cmd.SilenceUsage = true
			s, err := server.New(server.DefaultConfig(args[0]))
			if err != nil {
				return err
			}
			return s.ListenAndServe()
		},
	}
}

// run executes the command and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}
