// Package binding emits per-endpoint request-builder definitions: pure
// descriptors of how resolved command-line input becomes an HTTP request.
// No transport concerns live here or in the code generated from them.
package binding

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/searchkit/schema2cli/internal/catalog"
	"github.com/searchkit/schema2cli/internal/command"
	"github.com/searchkit/schema2cli/internal/schema"
)

// PathField is one path parameter of a binding.
type PathField struct {
	Flag     string // command-line name
	Wire     string // specification name, substituted into the template
	GoName   string // generated struct field
	Required bool
	Param    schema.Parameter
}

// QueryField is one query parameter of a binding.
type QueryField struct {
	Flag   string
	Wire   string // key on the encoded query string
	GoName string
	Param  schema.Parameter
}

// Variant is one selectable method/path pair. Requires lists the optional
// path parameters that must be supplied for this variant to apply.
type Variant struct {
	Method   string
	Template string
	Segments []catalog.Segment
	Params   []string
	Requires []string
}

// Binding is the request-construction definition for one endpoint.
type Binding struct {
	Key       string // namespace:leaf
	Endpoint  string // dotted endpoint name
	Namespace string
	GoName    string // exported identifier for generated code
	Path      []PathField
	Query     []QueryField
	Variants  []Variant // most-specific first
	HasBody   bool
}

// Set holds every emitted binding, ordered by namespace then endpoint name.
type Set struct {
	Bindings []Binding
	ByKey    map[string]*Binding
}

// Options configures emission.
type Options struct {
	Logger zerolog.Logger
}

// Emit builds one binding per cataloged endpoint. Namespaces are emitted
// concurrently; the merged result is ordered by the catalog, not by
// completion, so output is deterministic. Emission fails if any synthesized
// leaf would be left without a binding.
func Emit(ctx context.Context, cat *catalog.Catalog, tree *command.Tree, opts Options) (*Set, error) {
	perNamespace := make([][]Binding, len(cat.Namespaces))

	g, _ := errgroup.WithContext(ctx)
	for i := range cat.Namespaces {
		g.Go(func() error {
			ns := &cat.Namespaces[i]
			out := make([]Binding, 0, len(ns.Endpoints))
			for j := range ns.Endpoints {
				b, err := emitEndpoint(&ns.Endpoints[j])
				if err != nil {
					return err
				}
				out = append(out, b)
			}
			perNamespace[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &Set{ByKey: make(map[string]*Binding, cat.EndpointCount())}
	for _, bindings := range perNamespace {
		set.Bindings = append(set.Bindings, bindings...)
	}
	for i := range set.Bindings {
		b := &set.Bindings[i]
		if _, dup := set.ByKey[b.Key]; dup {
			return nil, fmt.Errorf("binding: duplicate key %s", b.Key)
		}
		set.ByKey[b.Key] = b
	}

	// Invocation targets must always resolve, in both directions.
	for key, leaf := range tree.Leaves {
		if _, ok := set.ByKey[key]; !ok {
			return nil, fmt.Errorf("binding: command %s has no binding for key %s", leaf.Endpoint, key)
		}
	}
	for key := range set.ByKey {
		if _, ok := tree.Leaves[key]; !ok {
			return nil, fmt.Errorf("binding: key %s has no command leaf", key)
		}
	}

	opts.Logger.Debug().
		Int("bindings", len(set.Bindings)).
		Int("namespaces", len(cat.Namespaces)).
		Msg("bindings emitted")
	return set, nil
}

func emitEndpoint(ep *catalog.Endpoint) (Binding, error) {
	b := Binding{
		Key:       ep.Namespace + ":" + ep.Leaf,
		Endpoint:  ep.Name,
		Namespace: ep.Namespace,
		GoName:    schema.PascalCase(ep.Leaf),
		HasBody:   ep.Shape.HasBody,
	}

	for _, p := range ep.Shape.Path {
		b.Path = append(b.Path, PathField{
			Flag:     command.FlagName(p.Name),
			Wire:     p.Name,
			GoName:   schema.PascalCase(p.Name),
			Required: p.Required,
			Param:    p,
		})
	}
	for _, p := range ep.Shape.Query {
		b.Query = append(b.Query, QueryField{
			Flag:   command.FlagName(p.Name),
			Wire:   p.Name,
			GoName: schema.PascalCase(p.Name),
			Param:  p,
		})
	}

	optional := make(map[string]bool)
	for _, p := range ep.Shape.Path {
		if !p.Required {
			optional[p.Name] = true
		}
	}
	for _, v := range ep.Variants {
		requires := make([]string, 0, len(v.Params))
		for _, name := range v.Params {
			if optional[name] {
				requires = append(requires, name)
			}
		}
		sort.Strings(requires)
		b.Variants = append(b.Variants, Variant{
			Method:   v.Method,
			Template: v.Template,
			Segments: v.Segments,
			Params:   v.Params,
			Requires: requires,
		})
	}
	if len(b.Variants) == 0 {
		return b, fmt.Errorf("binding: endpoint %s has no URL variants", ep.Name)
	}
	return b, nil
}

// SelectVariant returns the first variant whose required optional parameters
// are all present in supplied. Variants are ordered most-specific first, so
// the match honors the largest supplied parameter set. The last variant acts
// as the fallback, mirroring the generated selection code.
func (b *Binding) SelectVariant(supplied map[string]string) Variant {
	for _, v := range b.Variants {
		ok := true
		for _, name := range v.Requires {
			if _, present := supplied[name]; !present {
				ok = false
				break
			}
		}
		if ok {
			return v
		}
	}
	return b.Variants[len(b.Variants)-1]
}

// ResolvePath substitutes parameter values into a variant's segments using
// the target language's own path escaping. It mirrors the emitted code and
// backs the round-trip tests.
func ResolvePath(v Variant, values map[string]string) string {
	var b strings.Builder
	for _, seg := range v.Segments {
		b.WriteByte('/')
		if seg.IsParam() {
			b.WriteString(url.PathEscape(values[seg.Param]))
		} else {
			b.WriteString(seg.Literal)
		}
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}
