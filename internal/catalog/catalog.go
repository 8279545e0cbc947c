// Package catalog resolves endpoint URL templates and partitions endpoints
// into namespaces derived from their dotted names.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/searchkit/schema2cli/internal/schema"
)

// CoreNamespace groups endpoints whose name carries no namespace prefix.
const CoreNamespace = "core"

// Error reports an endpoint whose declaration is internally inconsistent.
type Error struct {
	Endpoint string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("endpoint %s: %s", e.Endpoint, e.Message)
}

// NamingConflictError reports two specification identifiers claiming the same
// generated name. Generation never picks a winner silently.
type NamingConflictError struct {
	Scope     string
	Name      string
	Conflicts []string
}

func (e *NamingConflictError) Error() string {
	return fmt.Sprintf("naming conflict in %s: %s claimed by %s", e.Scope, e.Name, strings.Join(e.Conflicts, " and "))
}

// Segment is one element of a resolved URL template: a literal or a parameter.
type Segment struct {
	Literal string
	Param   string
}

// IsParam reports whether the segment is parameterized.
func (s Segment) IsParam() bool { return s.Param != "" }

// Variant is one method/template pair of an endpoint with its template
// resolved to ordered segments.
type Variant struct {
	Template   string
	Method     string
	Segments   []Segment
	Params     []string // template parameters in appearance order
	Required   []string
	Optional   []string
	Deprecated bool
}

// Endpoint is a cataloged endpoint: namespace split applied, templates
// resolved, variants ordered most-specific first.
type Endpoint struct {
	Name      string // full dotted name
	Namespace string
	Leaf      string // name after the last dot
	Shape     schema.EndpointShape
	Variants  []Variant
}

// Namespace is one group of endpoints sharing a dotted-name prefix.
type Namespace struct {
	Name      string
	Endpoints []Endpoint
}

// Catalog is the namespace-partitioned view of a resolved specification.
type Catalog struct {
	Namespaces []Namespace
}

// EndpointCount returns the total number of cataloged endpoints.
func (c *Catalog) EndpointCount() int {
	n := 0
	for _, ns := range c.Namespaces {
		n += len(ns.Endpoints)
	}
	return n
}

// Build catalogs every endpoint of a resolution. Template/parameter mismatches
// and leaf-name collisions inside a namespace are fatal.
func Build(res *schema.Resolution) (*Catalog, error) {
	byNamespace := make(map[string][]Endpoint)
	claimed := make(map[string]string) // "namespace/leaf" -> full endpoint name

	for _, shape := range res.Endpoints {
		ep, err := catalogEndpoint(shape)
		if err != nil {
			return nil, err
		}
		key := ep.Namespace + "/" + ep.Leaf
		if prev, ok := claimed[key]; ok {
			return nil, &NamingConflictError{
				Scope:     "namespace " + ep.Namespace,
				Name:      ep.Leaf,
				Conflicts: []string{prev, ep.Name},
			}
		}
		claimed[key] = ep.Name
		byNamespace[ep.Namespace] = append(byNamespace[ep.Namespace], ep)
	}

	names := make([]string, 0, len(byNamespace))
	for name := range byNamespace {
		names = append(names, name)
	}
	sort.Strings(names)

	cat := &Catalog{}
	for _, name := range names {
		eps := byNamespace[name]
		sort.Slice(eps, func(i, j int) bool { return eps[i].Name < eps[j].Name })
		cat.Namespaces = append(cat.Namespaces, Namespace{Name: name, Endpoints: eps})
	}
	return cat, nil
}

// SplitName returns the namespace and leaf of a dotted endpoint name. Names
// without a dot fall into the core namespace.
func SplitName(name string) (namespace, leaf string) {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return CoreNamespace, name
}

func catalogEndpoint(shape schema.EndpointShape) (Endpoint, error) {
	def := shape.Endpoint
	namespace, leaf := SplitName(def.Name)
	ep := Endpoint{Name: def.Name, Namespace: namespace, Leaf: leaf, Shape: shape}

	declared := make(map[string]schema.Parameter, len(shape.Path))
	used := make(map[string]bool, len(shape.Path))
	for _, p := range shape.Path {
		if _, dup := declared[p.Name]; dup {
			return ep, &Error{Endpoint: def.Name, Message: fmt.Sprintf("path parameter %q declared twice", p.Name)}
		}
		declared[p.Name] = p
	}

	for _, u := range def.URLs {
		variant, err := resolveTemplate(def.Name, u, declared)
		if err != nil {
			return ep, err
		}
		for _, param := range variant.Params {
			used[param] = true
		}
		variant.Method = resolveMethod(u.Methods, shape.HasBody)
		ep.Variants = append(ep.Variants, variant)
	}

	for _, p := range shape.Path {
		if !used[p.Name] {
			return ep, &Error{Endpoint: def.Name, Message: fmt.Sprintf("declared path parameter %q is unused in every URL template", p.Name)}
		}
	}

	// Most-specific variant first, so runtime selection matches the largest
	// set of supplied parameters. Ties break on the template for determinism.
	sort.SliceStable(ep.Variants, func(i, j int) bool {
		if len(ep.Variants[i].Params) != len(ep.Variants[j].Params) {
			return len(ep.Variants[i].Params) > len(ep.Variants[j].Params)
		}
		return ep.Variants[i].Template < ep.Variants[j].Template
	})
	return ep, nil
}

func resolveTemplate(endpoint string, u schema.URLTemplate, declared map[string]schema.Parameter) (Variant, error) {
	v := Variant{Template: u.Path, Deprecated: u.Deprecation != nil}
	seen := make(map[string]bool)

	for _, raw := range strings.Split(strings.TrimPrefix(u.Path, "/"), "/") {
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
			name := raw[1 : len(raw)-1]
			if name == "" {
				return v, &Error{Endpoint: endpoint, Message: fmt.Sprintf("template %s has an empty parameter segment", u.Path)}
			}
			param, ok := declared[name]
			if !ok {
				return v, &Error{Endpoint: endpoint, Message: fmt.Sprintf("template %s references undeclared parameter %q", u.Path, name)}
			}
			if seen[name] {
				return v, &Error{Endpoint: endpoint, Message: fmt.Sprintf("template %s references parameter %q twice", u.Path, name)}
			}
			seen[name] = true
			v.Segments = append(v.Segments, Segment{Param: name})
			v.Params = append(v.Params, name)
			if param.Required {
				v.Required = append(v.Required, name)
			} else {
				v.Optional = append(v.Optional, name)
			}
			continue
		}
		if strings.ContainsAny(raw, "{}") {
			return v, &Error{Endpoint: endpoint, Message: fmt.Sprintf("template %s has a malformed segment %q", u.Path, raw)}
		}
		v.Segments = append(v.Segments, Segment{Literal: raw})
	}
	return v, nil
}

// resolveMethod picks the HTTP method for a variant. A single declared method
// wins outright; with several, a body-carrying endpoint posts and a bodyless
// one gets, falling back to the lexicographically first method.
func resolveMethod(methods []string, hasBody bool) string {
	if len(methods) == 1 {
		return strings.ToUpper(methods[0])
	}
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = true
	}
	if hasBody && set["POST"] {
		return "POST"
	}
	if set["GET"] {
		return "GET"
	}
	if set["POST"] {
		return "POST"
	}
	sorted := make([]string, 0, len(methods))
	for _, m := range methods {
		sorted = append(sorted, strings.ToUpper(m))
	}
	sort.Strings(sorted)
	if len(sorted) == 0 {
		return "GET"
	}
	return sorted[0]
}
