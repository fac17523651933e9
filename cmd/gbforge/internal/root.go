package internal

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/gbforge/gbforge/internal/config"
	"github.com/gbforge/gbforge/internal/env"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var (
	flagOS       string
	flagArch     string
	flagCompiler string
	flagConfigs  string
	flagEnvFiles []string
	flagProject  string
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gbforge",
	Short: "gbforge builds the emulator for a target platform",
	Long: `gbforge resolves the dependency set of a platform, generates the native
build inputs for each requested configuration, and drives the
build, package and deploy sequence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(flagEnvFiles...); err != nil {
			return err
		}
		cfg.ApplyLogLevel()
		return nil
	},
}

func init() {
	hostOS, hostArch, hostCompiler := hostPlatform()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagOS, "os", hostOS, "target os (desktop-linux, desktop-windows, desktop-macos, web)")
	pf.StringVar(&flagArch, "arch", hostArch, "target architecture")
	pf.StringVar(&flagCompiler, "compiler", hostCompiler, "compiler id (gcc, clang, apple-clang, msvc, emcc)")
	pf.StringVarP(&flagConfigs, "config", "c", "Release", "comma separated build configurations, in order")
	pf.StringSliceVar(&flagEnvFiles, "env-file", nil, "dotenv files to load (default .env)")
	pf.StringVarP(&flagProject, "project", "C", "", "project directory (default current directory)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// descriptor builds the platform descriptor from the flags.
func descriptor() (platform.Descriptor, error) {
	o, err := platform.ParseOS(flagOS)
	if err != nil {
		return platform.Descriptor{}, err
	}
	d := platform.Descriptor{OS: o, Arch: flagArch, Compiler: flagCompiler}
	for _, s := range strings.Split(flagConfigs, ",") {
		c, err := platform.ParseConfig(s)
		if err != nil {
			return platform.Descriptor{}, err
		}
		d.Configs = append(d.Configs, c)
	}
	if err := d.Validate(); err != nil {
		return platform.Descriptor{}, err
	}
	return d, nil
}

func layout() (env.Layout, error) {
	if flagProject != "" {
		return env.Layout{Root: flagProject}, nil
	}
	l, err := env.WorkDir()
	if err != nil {
		return env.Layout{}, fmt.Errorf("failed to get working directory: %w", err)
	}
	return l, nil
}

func hostPlatform() (o, arch, compiler string) {
	switch runtime.GOARCH {
	case "386":
		arch = "x86"
	case "arm":
		arch = "armv7"
	case "arm64":
		arch = "armv8"
	default:
		arch = "x86_64"
	}
	switch runtime.GOOS {
	case "windows":
		return string(platform.Windows), arch, "msvc"
	case "darwin":
		return string(platform.MacOS), arch, "apple-clang"
	}
	return string(platform.Linux), arch, "gcc"
}
