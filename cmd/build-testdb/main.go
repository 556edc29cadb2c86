// Command build-testdb writes a synthetic typed graph into a Badger
// database for profiling iterators.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-graphd/graphd/storage"
)

func main() {
	if err := newCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand(stdout io.Writer) *cobra.Command {
	var (
		configType string
		output     string
	)
	cmd := &cobra.Command{
		Use:           "build-testdb",
		Short:         "Build a synthetic typed graph for profiling.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var config storage.TestGraphConfig
			switch configType {
			case "default":
				config = storage.DefaultGraphConfig()
			case "medium":
				config = storage.MediumGraphConfig()
			case "large":
				config = storage.LargeGraphConfig()
			default:
				return fmt.Errorf("unknown config type: %s (use 'default', 'medium', or 'large')", configType)
			}
			if output != "" {
				config.OutputPath = output
			}
			return build(stdout, config)
		},
	}
	cmd.Flags().StringVar(&configType, "config", "default", "Config type: default, medium, or large")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (overrides the config's)")
	return cmd
}

func build(stdout io.Writer, config storage.TestGraphConfig) error {
	fmt.Fprintf(stdout, "Building test graph: %s\n", config.OutputPath)
	fmt.Fprintf(stdout, "  Types: %d\n", config.NumTypes)
	fmt.Fprintf(stdout, "  Targets: %d\n", config.NumTargets)
	fmt.Fprintf(stdout, "  Sources: %d\n\n", config.NumSources)

	store, err := storage.BuildTestGraph(config)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	defer store.Close()

	lines, err := storage.TestGraphStats(store, config)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	for _, line := range lines {
		fmt.Fprintf(stdout, "  %s\n", line)
	}

	fmt.Fprintln(stdout, "\nDone. Try it with:")
	fmt.Fprintf(stdout, "   graphd --db %s stats 'linksto:0:L->(fixed:0:(%d))'\n", config.OutputPath, config.NumTypes)
	return nil
}
