package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/gbforge/gbforge/internal/build"
	"github.com/gbforge/gbforge/internal/generate"
	"github.com/spf13/cobra"
)

var (
	buildVerbose   bool
	buildSource    string
	buildTarget    string
	buildArchive   bool
	buildGenerator string
	buildDefines   map[string]string
	buildSkipGen   bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build, package and deploy the application",
	Long: `Build generates the inputs of every requested configuration, builds each
one, installs them into the package prefix and deploys the runtime
artifacts into the target directory. The first failing stage aborts.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.BoolVarP(&buildVerbose, "verbose", "v", false, "Enable verbose build output")
	f.StringVarP(&buildSource, "source", "s", "", "source directory (default project directory)")
	f.StringVarP(&buildTarget, "target", "t", "", "deploy directory (default dist/<platform>)")
	f.BoolVar(&buildArchive, "archive", false, "also write a zip archive of the package")
	f.StringVarP(&buildGenerator, "generator", "G", "", "cmake generator")
	f.StringToStringVarP(&buildDefines, "define", "D", nil, "extra cache definitions, KEY=VALUE")
	f.BoolVar(&buildSkipGen, "no-generate", false, "use the inputs already present instead of generating them")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	d, err := descriptor()
	if err != nil {
		return err
	}
	l, err := layout()
	if err != nil {
		return err
	}

	var inputs *generate.InputSet
	if buildSkipGen {
		inputs, err = generate.Discover(l.InputsDir(d))
	} else {
		inputs, err = generateInputs(d, l.InputsDir(d))
	}
	if err != nil {
		return err
	}

	source := buildSource
	if source == "" {
		source = l.Root
	}
	target := buildTarget
	if target == "" {
		target = l.DeployDir(d)
	}

	driver := &build.CMakeDriver{Generator: buildGenerator}
	if buildVerbose {
		driver.Stdout, driver.Stderr = os.Stdout, os.Stderr
	} else {
		driver.Stdout = io.Discard
	}
	builder, err := build.NewBuilder(build.Options{
		Platform:   d,
		SourceDir:  source,
		BuildRoot:  l.BuildRoot(d),
		InstallDir: l.InstallDir(d),
		Executable: cfg.Executable,
		Archive:    buildArchive,
		Driver:     driver,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	artifacts, err := builder.Run(ctx, inputs, build.BuildOptions{
		ClangTidy:  cfg.ClangTidy,
		Sanitizers: cfg.Sanitizers,
		Defines:    buildDefines,
	}, target)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a.Category, a.DestPath)
	}
	return nil
}
