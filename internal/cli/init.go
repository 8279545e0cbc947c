package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample schema2cli configuration file",
		Long:  "Scaffold a commented schema2cli configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", "schema2cli.yaml", "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = "schema2cli.yaml"
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return usagef("init: %q already exists (use --force to overwrite)", absPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return usagef("init: cannot create parent directory: %v", err)
	}

	content := strings.TrimSpace(sampleConfigYAML) + "\n"

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return usagef("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err)
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return usagef("init: cannot place file at %s: %v", absPath, err)
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# schema2cli configuration (YAML)
# All fields are optional. Command-line flags override config values.

# Path or URL to the specification schema.json (http/https or local file).
# Fetched from the elasticsearch-specification repository when omitted.
# input: ./schema.json

# Branch of the specification repository to fetch from. Defaults to main.
# branch: 8.17

# Output directory for the generated sources. Defaults to ./generated.
# out: ./commands

# Package name of the generated Go sources. Defaults to commands.
# package: escommands

# File whose contents are prepended to every generated file as a comment
# block, typically a license text.
# header: ./LICENSE

# Endpoint names to exclude, exact or with a trailing * wildcard.
# skip: [knn_search, _internal*]

# Preview planned outputs without writing files.
# dryRun: false

# Replace a non-empty output directory.
# force: false

# Enable verbose logging.
# verbose: false
`
