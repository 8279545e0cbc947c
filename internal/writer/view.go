package writer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/searchkit/schema2cli/internal/binding"
	"github.com/searchkit/schema2cli/internal/catalog"
	"github.com/searchkit/schema2cli/internal/command"
	"github.com/searchkit/schema2cli/internal/schema"
)

// View models handed to the templates. They carry only render-ready strings;
// all naming and expression building happens here so templates stay dumb.

type supportView struct {
	Package string
}

type enumMemberView struct {
	Const string
	Value string
}

type enumView struct {
	GoName  string
	Members []enumMemberView
	Values  string // comma-joined member list for error messages
}

type enumFileView struct {
	Package string
	Enums   []enumView
}

type argView struct {
	GoField  string
	Wire     string
	Name     string // command-line name, used in usage and errors
	Usage    string
	Validate string // statement validating the value, empty when none
}

type flagView struct {
	GoField   string
	GoType    string // string, int64, float64, bool, []string
	FlagFunc  string // StringVar, Int64Var, Float64Var, BoolVar, StringSliceVar
	Name      string
	Wire      string
	Default   string // Go literal for the registered default
	Usage     string
	Tracked   bool   // numeric/bool flags carry a <Field>Set presence field
	EnumParse string // Parse<Enum> func name when the flag is enum-restricted
	IsList    bool
	IsPath    bool // optional path parameter, excluded from the query string
}

type variantView struct {
	Method   string
	PathExpr string
	Cond     string // empty for the fallback variant
}

type endpointView struct {
	Ident        string // exported identifier stem, e.g. IndicesCreate
	Use          string // cobra use line
	CommandName  string
	Key          string
	Endpoint     string
	Short        string
	Long         string
	Deprecated   bool
	Args         []argView
	Flags        []flagView
	Variants     []variantView
	SingleMethod bool // one variant only, no selection switch
	HasBody      bool
}

type namespaceFileView struct {
	Package   string
	Namespace string
	Endpoints []endpointView
}

type registryEntry struct {
	Key         string
	Constructor string
}

type groupDecl struct {
	Var    string
	Parent string // empty means the root
	Use    string
	Short  string
	Leaves []string // constructor names
}

type registryView struct {
	Package    string
	Entries    []registryEntry
	RootLeaves []string
	Groups     []groupDecl
}

// buildViews assembles every template input from the pipeline outputs.
func buildViews(pkg string, cat *catalog.Catalog, tree *command.Tree, set *binding.Set, res *schema.Resolution) (map[string]namespaceFileView, enumFileView, registryView, supportView, error) {
	idents := make(map[string]string) // ident -> endpoint, collision guard

	files := make(map[string]namespaceFileView, len(cat.Namespaces))
	for _, ns := range cat.Namespaces {
		fv := namespaceFileView{Package: pkg, Namespace: ns.Name}
		for i := range ns.Endpoints {
			ep := &ns.Endpoints[i]
			b := set.ByKey[ep.Namespace+":"+ep.Leaf]
			leaf := tree.Leaves[b.Key]
			ev, err := buildEndpointView(b, leaf)
			if err != nil {
				return nil, enumFileView{}, registryView{}, supportView{}, err
			}
			if prev, taken := idents[ev.Ident]; taken {
				return nil, enumFileView{}, registryView{}, supportView{}, &catalog.NamingConflictError{
					Scope:     "generated identifiers",
					Name:      ev.Ident,
					Conflicts: []string{prev, ep.Name},
				}
			}
			idents[ev.Ident] = ep.Name
			fv.Endpoints = append(fv.Endpoints, ev)
		}
		files[ns.Name] = fv
	}

	enums := enumFileView{Package: pkg}
	for _, e := range res.Enums {
		ev := enumView{GoName: e.GoName, Values: strings.Join(e.Members, ", ")}
		seen := make(map[string]bool, len(e.Members))
		for _, m := range e.Members {
			constName := e.GoName + identifier(m)
			for seen[constName] {
				constName += "_"
			}
			seen[constName] = true
			ev.Members = append(ev.Members, enumMemberView{Const: constName, Value: m})
		}
		enums.Enums = append(enums.Enums, ev)
	}

	registry := buildRegistryView(pkg, tree, set)
	return files, enums, registry, supportView{Package: pkg}, nil
}

func buildEndpointView(b *binding.Binding, leaf *command.Command) (endpointView, error) {
	ev := endpointView{
		Ident:       endpointIdent(b),
		CommandName: leaf.Name,
		Key:         b.Key,
		Endpoint:    b.Endpoint,
		Short:       leaf.Short,
		Long:        leaf.Long,
		Deprecated:  leaf.Deprecated,
		HasBody:     b.HasBody,
	}

	use := leaf.Name
	fieldsByWire := make(map[string]*binding.PathField, len(b.Path))
	for i := range b.Path {
		fieldsByWire[b.Path[i].Wire] = &b.Path[i]
	}

	for _, pos := range leaf.Positionals {
		pf := fieldsByWire[pos.Original]
		ev.Args = append(ev.Args, argView{
			GoField:  pf.GoName,
			Wire:     pf.Wire,
			Name:     pos.Name,
			Usage:    pos.Usage,
			Validate: scalarValidation("p."+pf.GoName, pos.Name, pos.Param),
		})
		use += " <" + pos.Name + ">"
	}
	ev.Use = use

	for _, f := range leaf.Flags {
		if pf, isPath := fieldsByWire[f.Original]; isPath {
			ev.Flags = append(ev.Flags, flagView{
				GoField:   pf.GoName,
				GoType:    "string",
				FlagFunc:  "StringVar",
				Name:      f.Name,
				Wire:      f.Original,
				Default:   `""`,
				Usage:     f.Usage,
				EnumParse: enumParseFunc(f.Param),
				IsPath:    true,
			})
			continue
		}
		ev.Flags = append(ev.Flags, queryFlagView(f))
	}

	for i, v := range b.Variants {
		vv := variantView{
			Method:   v.Method,
			PathExpr: pathExpr(v.Segments, fieldsByWire, leaf),
		}
		if i < len(b.Variants)-1 {
			vv.Cond = variantCond(v, fieldsByWire)
			if vv.Cond == "" {
				vv.Cond = "true"
			}
		}
		ev.Variants = append(ev.Variants, vv)
	}
	ev.SingleMethod = len(ev.Variants) == 1
	return ev, nil
}

func queryFlagView(f command.Flag) flagView {
	fv := flagView{
		GoField:   schema.PascalCase(f.Original),
		Name:      f.Name,
		Wire:      f.Original,
		Usage:     f.Usage,
		EnumParse: enumParseFunc(f.Param),
	}
	switch f.Param.Kind {
	case schema.ParamInt:
		fv.GoType, fv.FlagFunc, fv.Tracked = "int64", "Int64Var", true
		fv.Default = defaultLiteral(f.Param.Default, "0")
	case schema.ParamFloat:
		fv.GoType, fv.FlagFunc, fv.Tracked = "float64", "Float64Var", true
		fv.Default = defaultLiteral(f.Param.Default, "0")
	case schema.ParamBool:
		fv.GoType, fv.FlagFunc, fv.Tracked = "bool", "BoolVar", true
		fv.Default = defaultLiteral(f.Param.Default, "false")
	case schema.ParamList:
		fv.GoType, fv.FlagFunc, fv.IsList = "[]string", "StringSliceVar", false
		fv.Default = "nil"
	default:
		fv.GoType, fv.FlagFunc = "string", "StringVar"
		fv.Default = quote(f.Param.Default)
	}
	return fv
}

// pathExpr renders the Go expression producing a variant's concrete path,
// escaping every substituted parameter.
func pathExpr(segs []catalog.Segment, fields map[string]*binding.PathField, leaf *command.Command) string {
	var parts []string
	literal := ""
	flush := func() {
		if literal != "" {
			parts = append(parts, quote(literal))
			literal = ""
		}
	}
	for _, seg := range segs {
		literal += "/"
		if !seg.IsParam() {
			literal += seg.Literal
			continue
		}
		flush()
		parts = append(parts, "url.PathEscape(p."+fields[seg.Param].GoName+")")
	}
	flush()
	if len(parts) == 0 {
		return quote("/")
	}
	return strings.Join(parts, " + ")
}

// variantCond renders the selection condition: every optional parameter the
// variant requires must have been supplied.
func variantCond(v binding.Variant, fields map[string]*binding.PathField) string {
	var conds []string
	for _, wire := range v.Requires {
		conds = append(conds, "p."+fields[wire].GoName+` != ""`)
	}
	if len(conds) == 0 {
		return ""
	}
	return strings.Join(conds, " && ")
}

// scalarValidation returns the statement checking a positional argument
// against its declared type before any request is built.
func scalarValidation(expr, name string, p schema.Parameter) string {
	switch p.Kind {
	case schema.ParamEnum:
		if p.Enum == nil {
			return ""
		}
		return fmt.Sprintf("if _, err := Parse%s(%s); err != nil { return nil, err }", p.Enum.GoName, expr)
	case schema.ParamInt:
		return fmt.Sprintf("if _, err := strconv.ParseInt(%s, 10, 64); err != nil { return nil, fmt.Errorf(\"argument %s: %%v\", err) }", expr, name)
	case schema.ParamFloat:
		return fmt.Sprintf("if _, err := strconv.ParseFloat(%s, 64); err != nil { return nil, fmt.Errorf(\"argument %s: %%v\", err) }", expr, name)
	case schema.ParamBool:
		return fmt.Sprintf("if _, err := strconv.ParseBool(%s); err != nil { return nil, fmt.Errorf(\"argument %s: %%v\", err) }", expr, name)
	default:
		return ""
	}
}

func enumParseFunc(p schema.Parameter) string {
	if p.Kind == schema.ParamEnum && p.Enum != nil {
		return "Parse" + p.Enum.GoName
	}
	return ""
}

func endpointIdent(b *binding.Binding) string {
	if b.Namespace == catalog.CoreNamespace {
		return b.GoName
	}
	return schema.PascalCase(b.Namespace) + b.GoName
}

func buildRegistryView(pkg string, tree *command.Tree, set *binding.Set) registryView {
	rv := registryView{Package: pkg}

	keys := make([]string, 0, len(set.ByKey))
	for key := range set.ByKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		rv.Entries = append(rv.Entries, registryEntry{
			Key:         key,
			Constructor: "New" + endpointIdent(set.ByKey[key]) + "Command",
		})
	}

	// Flatten the namespace hierarchy parent-first so the template can emit
	// straight-line attachment code.
	groupIndex := make(map[string]int)
	var walk func(n *command.Node, parentVar string, path []string)
	walk = func(n *command.Node, parentVar string, path []string) {
		for _, c := range n.Children {
			if c.IsLeaf() {
				constructor := "New" + endpointIdent(set.ByKey[c.Command.Key]) + "Command"
				if parentVar == "" {
					rv.RootLeaves = append(rv.RootLeaves, constructor)
				} else {
					g := &rv.Groups[groupIndex[parentVar]]
					g.Leaves = append(g.Leaves, constructor)
				}
				continue
			}
			full := append(append([]string(nil), path...), c.Name)
			varName := "grp" + identifier(strings.Join(full, " "))
			groupIndex[varName] = len(rv.Groups)
			rv.Groups = append(rv.Groups, groupDecl{
				Var:    varName,
				Parent: parentVar,
				Use:    c.Name,
				Short:  "Commands in the " + strings.Join(full, " ") + " namespace",
			})
			walk(c, varName, full)
		}
	}
	walk(tree.Root, "", nil)
	return rv
}

func defaultLiteral(rendered, zero string) string {
	if rendered == "" {
		return zero
	}
	return rendered
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

// identifier converts an arbitrary specification string into an exported Go
// identifier fragment, splitting on any non-alphanumeric rune.
func identifier(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return "X"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "V" + out
	}
	return out
}
