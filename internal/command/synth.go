// Package command synthesizes the hierarchical command tree from a cataloged
// specification: one namespace node per distinct namespace prefix, one leaf
// per endpoint.
package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/searchkit/schema2cli/internal/catalog"
	"github.com/searchkit/schema2cli/internal/schema"
)

// Flag is one named or positional input of a leaf command.
type Flag struct {
	Name     string // converted command-line name
	Original string // identifier as declared by the specification
	Param    schema.Parameter
	Usage    string
}

// Command is a leaf node's payload: the full input surface of one endpoint.
type Command struct {
	Name         string // converted leaf name
	Endpoint     string // dotted endpoint name
	Key          string // namespace:leaf, the binding key
	Short        string
	Long         string
	Deprecated   bool
	Stability    string
	Positionals  []Flag // required path parameters, declaration order
	Flags        []Flag // optional path parameters, then query parameters
	AcceptsInput bool   // endpoint declares a request body
}

// Node is one node of the command tree: namespace nodes carry children, leaf
// nodes carry a command. Never both.
type Node struct {
	Name     string
	Children []*Node
	Command  *Command
}

// IsLeaf reports whether the node is a leaf command node.
func (n *Node) IsLeaf() bool { return n.Command != nil }

// Tree is the synthesized command hierarchy. Leaves indexes every leaf by its
// binding key, guaranteeing each maps back to exactly one endpoint.
type Tree struct {
	Root   *Node
	Leaves map[string]*Command
}

// Depth returns the maximum node depth of the tree, which equals the maximum
// dot-depth of any endpoint name.
func (t *Tree) Depth() int {
	var walk func(n *Node) int
	walk = func(n *Node) int {
		max := 0
		for _, c := range n.Children {
			if d := walk(c) + 1; d > max {
				max = d
			}
		}
		return max
	}
	return walk(t.Root)
}

// Synthesize builds the command tree. Identifier conversions that collide
// (two distinct specification names mapping to the same command-line name)
// are fatal.
func Synthesize(cat *catalog.Catalog) (*Tree, error) {
	tree := &Tree{Root: &Node{}, Leaves: make(map[string]*Command)}

	for _, ns := range cat.Namespaces {
		parent := tree.Root
		if ns.Name != catalog.CoreNamespace {
			// Namespace prefixes may themselves be dotted; each dot level
			// becomes one tree level.
			for _, segment := range strings.Split(ns.Name, ".") {
				child, err := childNamespace(parent, KebabCase(segment), segment)
				if err != nil {
					return nil, err
				}
				parent = child
			}
		}
		for i := range ns.Endpoints {
			cmd, err := synthesizeLeaf(&ns.Endpoints[i])
			if err != nil {
				return nil, err
			}
			if err := attachLeaf(parent, ns.Name, cmd); err != nil {
				return nil, err
			}
			tree.Leaves[cmd.Key] = cmd
		}
	}

	sortTree(tree.Root)
	return tree, nil
}

func childNamespace(parent *Node, name, original string) (*Node, error) {
	for _, c := range parent.Children {
		if c.Name != name {
			continue
		}
		if c.IsLeaf() {
			return nil, &catalog.NamingConflictError{
				Scope:     "command tree",
				Name:      name,
				Conflicts: []string{c.Command.Endpoint, "namespace " + original},
			}
		}
		return c, nil
	}
	child := &Node{Name: name}
	parent.Children = append(parent.Children, child)
	return child, nil
}

func attachLeaf(parent *Node, namespace string, cmd *Command) error {
	for _, c := range parent.Children {
		if c.Name == cmd.Name {
			other := "namespace node " + c.Name
			if c.IsLeaf() {
				other = c.Command.Endpoint
			}
			return &catalog.NamingConflictError{
				Scope:     "namespace " + namespace,
				Name:      cmd.Name,
				Conflicts: []string{other, cmd.Endpoint},
			}
		}
	}
	parent.Children = append(parent.Children, &Node{Name: cmd.Name, Command: cmd})
	return nil
}

func synthesizeLeaf(ep *catalog.Endpoint) (*Command, error) {
	def := ep.Shape.Endpoint
	cmd := &Command{
		Name:         KebabCase(ep.Leaf),
		Endpoint:     ep.Name,
		Key:          ep.Namespace + ":" + ep.Leaf,
		Short:        firstLine(def.Description),
		Long:         longHelp(def),
		Deprecated:   def.Deprecated(),
		Stability:    def.Stability(),
		AcceptsInput: ep.Shape.HasBody,
	}

	converted := make(map[string]string) // command-line name -> original
	claim := func(name, original string) error {
		if prev, ok := converted[name]; ok {
			return &catalog.NamingConflictError{
				Scope:     "command " + ep.Name,
				Name:      name,
				Conflicts: []string{prev, original},
			}
		}
		converted[name] = original
		return nil
	}

	for _, p := range ep.Shape.Path {
		f := makeFlag(p)
		if err := claim(f.Name, p.Name); err != nil {
			return nil, err
		}
		if p.Required {
			cmd.Positionals = append(cmd.Positionals, f)
		} else {
			cmd.Flags = append(cmd.Flags, f)
		}
	}
	for _, p := range ep.Shape.Query {
		f := makeFlag(p)
		if err := claim(f.Name, p.Name); err != nil {
			return nil, err
		}
		cmd.Flags = append(cmd.Flags, f)
	}
	return cmd, nil
}

func makeFlag(p schema.Parameter) Flag {
	usage := firstLine(p.Description)
	if p.Kind == schema.ParamEnum && p.Enum != nil {
		usage = appendSentence(usage, fmt.Sprintf("One of: %s.", strings.Join(p.Enum.Members, ", ")))
	}
	if p.Deprecated {
		usage = "[deprecated] " + usage
	}
	return Flag{
		Name:     FlagName(p.Name),
		Original: p.Name,
		Param:    p,
		Usage:    strings.TrimSpace(usage),
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func longHelp(def *schema.EndpointDefinition) string {
	long := strings.TrimSpace(def.Description)
	if def.Deprecation != nil {
		note := "Deprecated"
		if def.Deprecation.Version != "" {
			note += " since " + def.Deprecation.Version
		}
		if def.Deprecation.Description != "" {
			note += ": " + def.Deprecation.Description
		}
		long = appendParagraph(long, note)
	}
	if st := def.Stability(); st != "stable" {
		long = appendParagraph(long, "Stability: "+st)
	}
	return long
}

func appendSentence(base, extra string) string {
	if base == "" {
		return extra
	}
	if !strings.HasSuffix(base, ".") {
		base += "."
	}
	return base + " " + extra
}

func appendParagraph(base, extra string) string {
	if base == "" {
		return extra
	}
	return base + "\n\n" + extra
}

func sortTree(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Name < n.Children[j].Name })
	for _, c := range n.Children {
		sortTree(c)
	}
}

// reservedFlagNames are claimed by the command-line framework itself.
var reservedFlagNames = map[string]string{
	"help": "help-arg",
	"h":    "h-arg",
}

// FlagName converts a specification identifier into its command-line flag
// name: the single deterministic conversion rule, applied uniformly.
func FlagName(name string) string {
	converted := KebabCase(name)
	if remapped, ok := reservedFlagNames[converted]; ok {
		return remapped
	}
	return converted
}

// KebabCase lower-cases an identifier and folds '_', '.' and spaces into
// single dashes.
func KebabCase(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r == '_' || r == '.' || r == ' ' || r == '-' {
			dash = true
			continue
		}
		if dash && b.Len() > 0 {
			b.WriteByte('-')
		}
		dash = false
		b.WriteRune(r)
	}
	return b.String()
}
