package internal

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/internal/resolve"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

var resolveManifest string

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the resolved dependency set of the platform",
	Long:  `Resolve applies the rule table to the platform and prints the selected dependencies.`,
	Args:  cobra.NoArgs,
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveManifest, "manifest", "o", "", "also write the descriptor set to this file")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	d, err := descriptor()
	if err != nil {
		return err
	}
	plan, err := resolvePlan(d)
	if err != nil {
		return err
	}
	printPlan(cmd.OutOrStdout(), plan)
	if resolveManifest != "" {
		if err := plan.Manifest().Write(resolveManifest); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
	}
	return nil
}

// resolvePlan resolves d against the configured rule table.
func resolvePlan(d platform.Descriptor) (*resolve.Plan, error) {
	table, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	req, err := cfg.Request()
	if err != nil {
		return nil, err
	}
	return resolve.New(table).Resolve(d, req)
}

func printPlan(w io.Writer, plan *resolve.Plan) {
	if w != os.Stdout || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	headerFmt := color.New(color.FgGreen, color.Bold).SprintfFunc()
	columnFmt := color.New(color.FgYellow).SprintfFunc()

	fmt.Fprintf(w, "%s (revision %s)\n", plan.Platform().Key(), plan.Revision())
	tbl := table.New("Dependency", "Version", "Override", "Options")
	tbl.WithHeaderFormatter(headerFmt).WithFirstColumnFormatter(columnFmt).WithWriter(w)
	for _, dep := range plan.Dependencies() {
		override := ""
		if dep.Override {
			override = "yes"
		}
		tbl.AddRow(dep.Name, dep.Version, override, formatOptions(dep.Options))
	}
	tbl.Print()
}

func formatOptions(opts map[string]string) string {
	keys := slices.Sorted(maps.Keys(opts))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + opts[k]
	}
	return strings.Join(parts, " ")
}
