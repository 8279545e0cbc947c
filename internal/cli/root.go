package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the schema2cli CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "schema2cli",
		Short:         "Generate a cobra command tree from an Elasticsearch specification schema",
		Long:          "schema2cli turns the Elasticsearch specification schema into a deterministic Go source tree: one cobra command per endpoint, plus the request bindings that drive it.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Convert cobra flag errors (like unknown flags) into friendly usage errors
	// that also show the command's help text.
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usagef("%v\n\n%s", err, c.UsageString())
	})

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")

	g := newGenerateCmd()
	g.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usagef("%v\n\n%s", err, c.UsageString())
	})
	cmd.AddCommand(g)

	i := newInitCmd()
	i.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usagef("%v\n\n%s", err, c.UsageString())
	})
	cmd.AddCommand(i)

	return cmd
}
