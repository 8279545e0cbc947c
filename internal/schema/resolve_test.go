package schema

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw string) *Document {
	t.Helper()
	doc, err := Parse([]byte(raw), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestResolve_AliasChain(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "get",
	    "urls": [{"path": "/{id}", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "GetRequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "GetRequest"},
	     "path": [{"name": "id", "required": true, "type": {"kind": "instance_of", "type": {"namespace": "_types", "name": "Id"}}}],
	     "body": {"kind": "no_body"}},
	    {"kind": "type_alias", "name": {"namespace": "_types", "name": "Id"},
	     "type": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "string"}}}
	  ]
	}`)
	res, err := Resolve(doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Endpoints) != 1 || len(res.Endpoints[0].Path) != 1 {
		t.Fatalf("unexpected shape: %+v", res.Endpoints)
	}
	p := res.Endpoints[0].Path[0]
	if p.Kind != ParamString || p.GoType != "string" || !p.Required {
		t.Fatalf("alias should flatten to a required string, got %+v", p)
	}
}

func TestResolve_AliasCycle(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "get",
	    "urls": [{"path": "/{id}", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "GetRequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "GetRequest"},
	     "path": [{"name": "id", "required": true, "type": {"kind": "instance_of", "type": {"namespace": "_types", "name": "A"}}}]},
	    {"kind": "type_alias", "name": {"namespace": "_types", "name": "A"},
	     "type": {"kind": "instance_of", "type": {"namespace": "_types", "name": "B"}}},
	    {"kind": "type_alias", "name": {"namespace": "_types", "name": "B"},
	     "type": {"kind": "instance_of", "type": {"namespace": "_types", "name": "A"}}}
	  ]
	}`)
	_, err := Resolve(doc)
	var re *ResolveError
	if !errors.As(err, &re) || re.Kind != AliasCycle {
		t.Fatalf("expected AliasCycle, got %v (%T)", err, err)
	}
	if !strings.Contains(re.Message, "_types:A -> _types:B -> _types:A") {
		t.Fatalf("cycle path not reported: %s", re.Message)
	}
	if re.Entity != "get" {
		t.Fatalf("offending endpoint not reported: %q", re.Entity)
	}
}

func TestResolve_DanglingRequest(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "get",
	    "urls": [{"path": "/", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "Ghost"}
	  }],
	  "types": []
	}`)
	_, err := Resolve(doc)
	var re *ResolveError
	if !errors.As(err, &re) || re.Kind != DanglingRef {
		t.Fatalf("expected DanglingRef, got %v (%T)", err, err)
	}
}

func TestResolve_EnumParameter(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "index",
	    "urls": [{"path": "/", "methods": ["POST"]}],
	    "request": {"namespace": "core", "name": "IndexRequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "IndexRequest"},
	     "query": [{"name": "refresh", "type": {"kind": "instance_of", "type": {"namespace": "_types", "name": "Refresh"}}}],
	     "body": {"kind": "properties"}},
	    {"kind": "enum", "name": {"namespace": "_types", "name": "Refresh"},
	     "members": [{"name": "true"}, {"name": "false"}, {"name": "wait_for"}]}
	  ]
	}`)
	res, err := Resolve(doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	shape := res.Endpoints[0]
	if !shape.HasBody {
		t.Fatal("properties body should mark HasBody")
	}
	p := shape.Query[0]
	if p.Kind != ParamEnum || p.Enum == nil {
		t.Fatalf("expected enum projection, got %+v", p)
	}
	if got := p.Enum.Members; len(got) != 3 || got[2] != "wait_for" {
		t.Fatalf("member order lost: %v", got)
	}
	if len(res.Enums) != 1 || res.Enums[0].GoName != "Refresh" {
		t.Fatalf("enum not interned: %+v", res.Enums)
	}
}

func TestResolve_EnumNameCollision(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "a",
	    "urls": [{"path": "/", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "ARequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "ARequest"},
	     "query": [
	       {"name": "first", "type": {"kind": "instance_of", "type": {"namespace": "alpha", "name": "Mode"}}},
	       {"name": "second", "type": {"kind": "instance_of", "type": {"namespace": "beta", "name": "Mode"}}}
	     ]},
	    {"kind": "enum", "name": {"namespace": "alpha", "name": "Mode"}, "members": [{"name": "on"}, {"name": "off"}]},
	    {"kind": "enum", "name": {"namespace": "beta", "name": "Mode"}, "members": [{"name": "fast"}, {"name": "slow"}]}
	  ]
	}`)
	res, err := Resolve(doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Enums) != 2 {
		t.Fatalf("expected both enums interned, got %d", len(res.Enums))
	}
	names := []string{res.Enums[0].GoName, res.Enums[1].GoName}
	if names[0] == names[1] {
		t.Fatalf("colliding enums must not share a generated name: %v", names)
	}
	if names[0] != "BetaMode" && names[1] != "BetaMode" {
		t.Fatalf("expected the second enum to be namespace-qualified, got %v", names)
	}
}

func TestResolve_EnumQualifiedNameCollision(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "a",
	    "urls": [{"path": "/", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "ARequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "ARequest"},
	     "query": [
	       {"name": "first", "type": {"kind": "instance_of", "type": {"namespace": "alpha", "name": "Mode"}}},
	       {"name": "second", "type": {"kind": "instance_of", "type": {"namespace": "beta", "name": "mode"}}},
	       {"name": "third", "type": {"kind": "instance_of", "type": {"namespace": "beta", "name": "Mode"}}}
	     ]},
	    {"kind": "enum", "name": {"namespace": "alpha", "name": "Mode"}, "members": [{"name": "a"}]},
	    {"kind": "enum", "name": {"namespace": "beta", "name": "mode"}, "members": [{"name": "x"}]},
	    {"kind": "enum", "name": {"namespace": "beta", "name": "Mode"}, "members": [{"name": "y"}]}
	  ]
	}`)
	_, err := Resolve(doc)
	var re *ResolveError
	if !errors.As(err, &re) {
		t.Fatalf("expected a resolve error, got %v", err)
	}
	if re.Kind != NameCollision {
		t.Fatalf("expected NameCollision, got %s: %s", re.Kind, re.Message)
	}
	if !strings.Contains(re.Message, "BetaMode") || !strings.Contains(re.Message, "beta:mode") || !strings.Contains(re.Message, "beta:Mode") {
		t.Fatalf("message should name both enums and the claimed identifier: %s", re.Message)
	}
}

func TestResolve_EnumDedupe(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "a",
	    "urls": [{"path": "/", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "ARequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "ARequest"},
	     "query": [
	       {"name": "first", "type": {"kind": "instance_of", "type": {"namespace": "_types", "name": "Level"}}},
	       {"name": "second", "type": {"kind": "instance_of", "type": {"namespace": "_types", "name": "Level"}}}
	     ]},
	    {"kind": "enum", "name": {"namespace": "_types", "name": "Level"}, "members": [{"name": "debug"}, {"name": "info"}]}
	  ]
	}`)
	res, err := Resolve(doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Enums) != 1 {
		t.Fatalf("same enum reached twice must intern once, got %d", len(res.Enums))
	}
}

func TestResolve_ListAndScalarUnion(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "search",
	    "urls": [{"path": "/", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "SearchRequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "SearchRequest"},
	     "query": [
	       {"name": "routing", "type": {"kind": "array_of", "value": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "string"}}}},
	       {"name": "expand", "type": {"kind": "union_of", "items": [
	         {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "string"}},
	         {"kind": "array_of", "value": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "string"}}}
	       ]}},
	       {"name": "size", "type": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "long"}}}
	     ]}
	  ]
	}`)
	res, err := Resolve(doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	q := res.Endpoints[0].Query
	if q[0].Kind != ParamList {
		t.Fatalf("array of strings should project as a list, got %v", q[0].Kind)
	}
	if q[1].Kind != ParamString {
		t.Fatalf("scalar union should collapse to string, got %v", q[1].Kind)
	}
	if q[2].Kind != ParamInt || q[2].GoType != "int64" {
		t.Fatalf("long should project as int64, got %+v", q[2])
	}
}

func TestResolve_NonScalarUnionFails(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "search",
	    "urls": [{"path": "/", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "SearchRequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "SearchRequest"},
	     "query": [{"name": "sort", "type": {"kind": "union_of", "items": [
	       {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "string"}},
	       {"kind": "instance_of", "type": {"namespace": "_types", "name": "SortOptions"}}
	     ]}}]},
	    {"kind": "interface", "name": {"namespace": "_types", "name": "SortOptions"}, "properties": []}
	  ]
	}`)
	_, err := Resolve(doc)
	var re *ResolveError
	if !errors.As(err, &re) || re.Kind != UnsupportedShape {
		t.Fatalf("expected UnsupportedShape, got %v (%T)", err, err)
	}
}

func TestResolve_PathShadowsQuery(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "get",
	    "urls": [{"path": "/{routing}", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "GetRequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "GetRequest"},
	     "path": [{"name": "routing", "required": true, "type": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "string"}}}],
	     "query": [{"name": "routing", "type": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "string"}}}]}
	  ]
	}`)
	res, err := Resolve(doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	shape := res.Endpoints[0]
	if len(shape.Path) != 1 || len(shape.Query) != 0 {
		t.Fatalf("path must shadow the query parameter of the same name: %+v", shape)
	}
}

func TestResolve_AttachedBehaviors(t *testing.T) {
	t.Parallel()
	doc := mustParse(t, `{
	  "endpoints": [{
	    "name": "get",
	    "urls": [{"path": "/", "methods": ["GET"]}],
	    "request": {"namespace": "core", "name": "GetRequest"}
	  }],
	  "types": [
	    {"kind": "request", "name": {"namespace": "core", "name": "GetRequest"},
	     "query": [{"name": "pretty", "type": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "boolean"}}}],
	     "attachedBehaviors": ["CommonQueryParameters"]},
	    {"kind": "interface", "name": {"namespace": "_spec_utils", "name": "CommonQueryParameters"},
	     "properties": [
	       {"name": "pretty", "type": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "boolean"}}},
	       {"name": "error_trace", "type": {"kind": "instance_of", "type": {"namespace": "_builtins", "name": "boolean"}}}
	     ]}
	  ]
	}`)
	res, err := Resolve(doc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	q := res.Endpoints[0].Query
	if len(q) != 2 {
		t.Fatalf("behavior parameters should merge without duplicating pretty: %+v", q)
	}
	if q[1].Name != "error_trace" {
		t.Fatalf("behavior parameter missing: %+v", q)
	}
}

func TestPascalCase(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"wait_for_active_shards": "WaitForActiveShards",
		"indices.create":         "IndicesCreate",
		"cat-count":              "CatCount",
		"search":                 "Search",
	}
	for in, want := range cases {
		if got := PascalCase(in); got != want {
			t.Errorf("PascalCase(%q) = %q, want %q", in, got, want)
		}
	}
}
