package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/searchkit/schema2cli/internal/binding"
	"github.com/searchkit/schema2cli/internal/catalog"
	"github.com/searchkit/schema2cli/internal/command"
	"github.com/searchkit/schema2cli/internal/schema"
	"github.com/searchkit/schema2cli/internal/writer"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input      string
	Branch     string
	Out        string
	Package    string
	Header     string
	Skip       []string
	ConfigPath string
	DryRun     bool
	Force      bool
	Verbose    bool

	skipSet bool
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{Branch: "main", Out: "generated"}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the command tree from a specification schema",
		Long: "Generate the cobra command tree and request bindings from an Elasticsearch " +
			"specification schema. Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  schema2cli generate --input schema.json --out ./commands
  schema2cli generate --branch 8.17 --package escommands
  schema2cli --config schema2cli.yaml generate --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to schema.json (fetched from the specification repository when omitted)")
	flags.String("branch", "", "Specification repository branch to fetch from; defaults to main")
	flags.String("out", "", "Output directory for the generated sources; defaults to ./generated")
	flags.String("package", "", "Package name of the generated sources; defaults to commands")
	flags.String("header", "", "File whose contents are prepended to every generated file as a comment block")
	flags.StringSlice("skip", nil, "Endpoint names to exclude, exact or with a trailing * wildcard")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Replace a non-empty output directory when set")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	if flags.Changed("input") {
		value, err := flags.GetString("input")
		if err != nil {
			return err
		}
		cfg.Input = strings.TrimSpace(value)
	}
	if flags.Changed("branch") {
		value, err := flags.GetString("branch")
		if err != nil {
			return err
		}
		cfg.Branch = strings.TrimSpace(value)
	}
	if flags.Changed("out") {
		value, err := flags.GetString("out")
		if err != nil {
			return err
		}
		cfg.Out = strings.TrimSpace(value)
	}
	if flags.Changed("package") {
		value, err := flags.GetString("package")
		if err != nil {
			return err
		}
		cfg.Package = strings.TrimSpace(value)
	}
	if flags.Changed("header") {
		value, err := flags.GetString("header")
		if err != nil {
			return err
		}
		cfg.Header = strings.TrimSpace(value)
	}
	if flags.Changed("skip") {
		value, err := flags.GetStringSlice("skip")
		if err != nil {
			return err
		}
		cfg.Skip = sanitizeList(value)
		cfg.skipSet = true
	}
	if flags.Changed("dry-run") {
		value, err := flags.GetBool("dry-run")
		if err != nil {
			return err
		}
		cfg.DryRun = value
	}
	if flags.Changed("force") {
		value, err := flags.GetBool("force")
		if err != nil {
			return err
		}
		cfg.Force = value
	}
	if flags.Changed("verbose") {
		value, err := flags.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Branch = strings.TrimSpace(c.Branch)
	c.Out = strings.TrimSpace(c.Out)
	c.Package = strings.TrimSpace(c.Package)
	c.Header = strings.TrimSpace(c.Header)
	c.Skip = sanitizeList(c.Skip)
}

func (c *GenerateConfig) validate() error {
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.Out == "" {
		c.Out = "generated"
	}
	if c.Package != "" && !validPackageName(c.Package) {
		return usagef("generate: %q is not a valid Go package name", c.Package)
	}
	return nil
}

func validPackageName(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return name != ""
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	logger := newLogger(cfg.Verbose)

	input := cfg.Input
	if input == "" {
		input = schema.DefaultSourceURL(cfg.Branch)
	}
	logger.Info().Str("input", input).Msg("loading specification schema")

	var loadOpts []schema.Option
	if cfg.skipSet {
		loadOpts = append(loadOpts, schema.WithSkipEndpoints(cfg.Skip))
	}
	doc, err := schema.Load(ctx, input, loadOpts...)
	if err != nil {
		return describeLoadError(err)
	}
	logger.Debug().Int("endpoints", len(doc.Endpoints)).Int("types", len(doc.Types)).Msg("schema loaded")

	res, err := schema.Resolve(doc)
	if err != nil {
		return fmt.Errorf("resolve types: %w", err)
	}

	cat, err := catalog.Build(res)
	if err != nil {
		return fmt.Errorf("catalog endpoints: %w", err)
	}
	logger.Debug().Int("namespaces", len(cat.Namespaces)).Int("endpoints", cat.EndpointCount()).Msg("catalog built")

	tree, err := command.Synthesize(cat)
	if err != nil {
		return fmt.Errorf("synthesize commands: %w", err)
	}

	set, err := binding.Emit(ctx, cat, tree, binding.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("emit bindings: %w", err)
	}

	header, err := loadHeader(cfg.Header)
	if err != nil {
		return err
	}

	result, err := writer.Write(ctx, cat, tree, set, res, writer.Options{
		OutDir:  cfg.Out,
		Package: cfg.Package,
		Header:  header,
		Force:   cfg.Force,
		DryRun:  cfg.DryRun,
		Logger:  logger,
	})
	if err != nil {
		return wrapOutputError(err, cfg.Out)
	}

	if cfg.DryRun {
		printPlan(absDisplayPath(cfg.Out), result.Planned)
		return nil
	}
	logger.Info().Int("endpoints", cat.EndpointCount()).Int("files", len(result.Planned)).Msg("generation complete")
	return nil
}

// loadHeader reads the license or notice text prepended to generated files.
func loadHeader(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", usagef("generate: read header file %q: %v", path, err)
	}
	return string(data), nil
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// describeLoadError maps structured loader errors into friendly messages.
func describeLoadError(err error) error {
	var se *schema.SpecError
	if !errors.As(err, &se) {
		return err
	}
	msg := fmt.Sprintf("schema: %s", se.Message)
	if se.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
	}
	if se.Entity != "" {
		msg = fmt.Sprintf("%s\nEntity: %s", msg, se.Entity)
	}
	if se.Code == schema.InputError {
		return usagef("%s", msg)
	}
	return errors.New(msg)
}

func printPlan(outDir string, planned []writer.PlannedFile) {
	fmt.Fprintf(os.Stdout, "Planned writes to %s (%d files):\n", outDir, len(planned))
	for _, p := range planned {
		fmt.Fprintf(os.Stdout, "- %s (%d bytes)\n", p.Path, p.Size)
	}
}

func absDisplayPath(path string) string {
	if ap, err := filepath.Abs(path); err == nil {
		return ap
	}
	return path
}

func wrapOutputError(err error, outDir string) error {
	var we *writer.WriteError
	if errors.As(err, &we) {
		return usagef("output error for %s: %v\nHint: choose a different --out or use --force when appropriate.", absDisplayPath(outDir), we)
	}
	return err
}

func sanitizeList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return usagef("read config file %q: %v", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return usagef("parse config file %q: %v", path, err)
	}

	for key, value := range raw {
		switch normalizeKey(key) {
		case "input":
			str, err := valueAsString(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.Input = str
		case "branch":
			str, err := valueAsString(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.Branch = str
		case "out":
			str, err := valueAsString(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.Out = str
		case "package":
			str, err := valueAsString(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.Package = str
		case "header":
			str, err := valueAsString(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.Header = str
		case "skip":
			list, err := valueAsStringSlice(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.Skip = sanitizeList(list)
			cfg.skipSet = true
		case "dryrun":
			val, err := valueAsBool(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.DryRun = val
		case "force":
			val, err := valueAsBool(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.Force = val
		case "verbose":
			val, err := valueAsBool(value)
			if err != nil {
				return usagef("config field %q: %v", key, err)
			}
			cfg.Verbose = val
		default:
			return usagef("config file %q: unknown field %q", path, key)
		}
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
