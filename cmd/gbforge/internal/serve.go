package internal

import (
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/internal/server"
	"github.com/spf13/cobra"
)

var serveFlags = server.DefaultConfig("")

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Serve a web build over HTTPS",
	Long: `Serve exposes dir, by default the deploy directory of the web platform,
over HTTPS so the WebAssembly build can be tried in a browser.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.Addr, "addr", server.DefaultAddr, "listen address")
	f.StringVar(&serveFlags.CertFile, "cert", server.DefaultCertFile, "certificate file")
	f.StringVar(&serveFlags.KeyFile, "key", server.DefaultKeyFile, "private key file")
	f.BoolVar(&serveFlags.Isolation, "isolation", true, "send cross-origin isolation headers")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	conf := serveFlags
	if len(args) == 1 {
		conf.Root = args[0]
	} else {
		l, err := layout()
		if err != nil {
			return err
		}
		conf.Root = l.DeployDir(platform.Descriptor{OS: platform.Web, Arch: "wasm", Compiler: "emcc"})
	}
	s, err := server.New(conf)
	if err != nil {
		return err
	}
	return s.ListenAndServe()
}
