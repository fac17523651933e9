package internal

import (
	"fmt"

	"github.com/gbforge/gbforge/internal/generate"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var (
	generateOut   string
	packageRoots  map[string]string
	generateQuiet bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the native build inputs of each configuration",
	Long: `Generate resolves the platform and writes the toolchain file, the
descriptor manifest and the per-configuration package lookup files.
Inputs of configurations generated earlier are kept.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "output directory (default build/<platform>/generators)")
	generateCmd.Flags().StringToStringVar(&packageRoots, "package-root", nil, "installed package directory of a dependency, name=dir")
	generateCmd.Flags().BoolVarP(&generateQuiet, "quiet", "q", false, "do not list the generated configurations")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	d, err := descriptor()
	if err != nil {
		return err
	}
	inputs, err := generateInputs(d, generateOut)
	if err != nil {
		return err
	}
	if !generateQuiet {
		for _, c := range inputs.ConfigList() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c, inputs.Dir)
		}
	}
	return nil
}

// generateInputs resolves d and writes its build inputs to out, or to the
// project layout when out is empty.
func generateInputs(d platform.Descriptor, out string) (*generate.InputSet, error) {
	if out == "" {
		l, err := layout()
		if err != nil {
			return nil, err
		}
		out = l.InputsDir(d)
	}
	plan, err := resolvePlan(d)
	if err != nil {
		return nil, err
	}
	log.Debugf("resolved %s", plan)

	g := generate.New(out)
	g.PackageRoots = packageRoots
	return g.Generate(plan, d.Configs)
}
