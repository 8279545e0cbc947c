// Package writer renders the generated command tree to disk. The whole output
// directory is staged and swapped in one move, so a failed run never leaves a
// half-written tree behind.
package writer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
	"golang.org/x/tools/imports"

	"github.com/searchkit/schema2cli/internal/binding"
	"github.com/searchkit/schema2cli/internal/catalog"
	"github.com/searchkit/schema2cli/internal/command"
	"github.com/searchkit/schema2cli/internal/schema"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// DefaultPackage is the package name of the generated sources when the caller
// does not choose one.
const DefaultPackage = "commands"

const generatedSuffix = ".gen.go"

// WriteError reports a failure while materializing the output tree.
type WriteError struct {
	Path  string
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// Options controls a single Write run.
type Options struct {
	// OutDir is the directory the generated tree is placed in.
	OutDir string
	// Package names the generated Go package. Empty means DefaultPackage.
	Package string
	// Header is prepended to every generated file as a comment block,
	// typically a license text. Empty means no header.
	Header string
	// Force allows replacing a non-empty OutDir.
	Force bool
	// DryRun plans the output without touching the filesystem.
	DryRun bool

	Logger zerolog.Logger
}

// PlannedFile describes one file of the output tree.
type PlannedFile struct {
	// Path is relative to OutDir.
	Path string
	Size int
}

// Result reports what a Write run produced, or would produce under DryRun.
type Result struct {
	OutDir  string
	Planned []PlannedFile
}

// Write renders every generated source file, formats it, and swaps the
// finished tree into place. Under DryRun nothing is written and the returned
// Result lists what would have been.
func Write(ctx context.Context, cat *catalog.Catalog, tree *command.Tree, set *binding.Set, res *schema.Resolution, opts Options) (*Result, error) {
	pkg := opts.Package
	if pkg == "" {
		pkg = DefaultPackage
	}
	if opts.OutDir == "" {
		return nil, &WriteError{Path: ".", Cause: fmt.Errorf("output directory not set")}
	}

	nsFiles, enums, registry, support, err := buildViews(pkg, cat, tree, set, res)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("writer").Funcs(template.FuncMap{
		"queryEncode": queryEncode,
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, &WriteError{Path: "templates", Cause: err}
	}

	header := commentBlock(opts.Header)

	rendered := make(map[string][]byte)
	var order []string
	add := func(name, tmplName string, data any) error {
		if err := ctx.Err(); err != nil {
			return &WriteError{Path: name, Cause: err}
		}
		if _, dup := rendered[name]; dup {
			return &catalog.NamingConflictError{
				Scope:     "output files",
				Name:      name,
				Conflicts: []string{"namespace file", "support file"},
			}
		}
		var buf bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buf, tmplName, data); err != nil {
			return &WriteError{Path: name, Cause: err}
		}
		raw := buf.Bytes()
		if len(header) > 0 {
			raw = append(append([]byte(nil), header...), raw...)
		}
		src, err := imports.Process(name, raw, nil)
		if err != nil {
			return &WriteError{Path: name, Cause: fmt.Errorf("format generated source: %w", err)}
		}
		rendered[name] = src
		order = append(order, name)
		opts.Logger.Debug().Str("file", name).Int("bytes", len(src)).Msg("rendered")
		return nil
	}

	if err := add("support"+generatedSuffix, "support.go.tmpl", support); err != nil {
		return nil, err
	}
	if len(enums.Enums) > 0 {
		if err := add("enums"+generatedSuffix, "enums.go.tmpl", enums); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, len(nsFiles))
	for name := range nsFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		file := strings.ReplaceAll(name, ".", "_") + generatedSuffix
		if err := add(file, "namespace.go.tmpl", nsFiles[name]); err != nil {
			return nil, err
		}
	}
	if err := add("registry"+generatedSuffix, "registry.go.tmpl", registry); err != nil {
		return nil, err
	}

	result := &Result{OutDir: opts.OutDir}
	for _, name := range order {
		result.Planned = append(result.Planned, PlannedFile{Path: name, Size: len(rendered[name])})
	}
	sort.Slice(result.Planned, func(i, j int) bool { return result.Planned[i].Path < result.Planned[j].Path })

	if opts.DryRun {
		opts.Logger.Info().Int("files", len(result.Planned)).Msg("dry run, nothing written")
		return result, nil
	}

	if err := checkTarget(opts.OutDir, opts.Force); err != nil {
		return nil, err
	}
	if err := swapIn(opts.OutDir, result.Planned, rendered); err != nil {
		return nil, err
	}
	opts.Logger.Info().Int("files", len(result.Planned)).Str("dir", opts.OutDir).Msg("generated command tree written")
	return result, nil
}

// checkTarget refuses to replace a non-empty directory unless forced.
func checkTarget(outDir string, force bool) error {
	entries, err := os.ReadDir(outDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &WriteError{Path: outDir, Cause: err}
	}
	if len(entries) > 0 && !force {
		return &WriteError{Path: outDir, Cause: fmt.Errorf("directory is not empty, pass --force to replace it")}
	}
	return nil
}

// swapIn stages the full tree next to the target and renames it into place,
// so the target is either the old tree or the complete new one.
func swapIn(outDir string, planned []PlannedFile, rendered map[string][]byte) error {
	parent := filepath.Dir(outDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return &WriteError{Path: parent, Cause: err}
	}
	stage, err := os.MkdirTemp(parent, ".schema2cli-stage-*")
	if err != nil {
		return &WriteError{Path: parent, Cause: err}
	}
	defer os.RemoveAll(stage)

	for _, pf := range planned {
		dst := filepath.Join(stage, pf.Path)
		if err := os.WriteFile(dst, rendered[pf.Path], 0o644); err != nil {
			return &WriteError{Path: pf.Path, Cause: err}
		}
	}

	if err := os.RemoveAll(outDir); err != nil {
		return &WriteError{Path: outDir, Cause: err}
	}
	if err := os.Rename(stage, outDir); err != nil {
		return &WriteError{Path: outDir, Cause: err}
	}
	return nil
}

// commentBlock turns raw header text into line comments followed by a blank
// line, so it sits above the generated-code marker of every file.
func commentBlock(text string) []byte {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			b.WriteString("//\n")
			continue
		}
		b.WriteString("// ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// queryEncode renders the expression turning a typed flag field into its
// query-string form.
func queryEncode(f flagView) string {
	field := "p." + f.GoField
	switch f.GoType {
	case "int64":
		return "strconv.FormatInt(" + field + ", 10)"
	case "float64":
		return "strconv.FormatFloat(" + field + ", 'f', -1, 64)"
	case "bool":
		return "strconv.FormatBool(" + field + ")"
	default:
		return field
	}
}
