package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ResolveErrorKind categorizes type resolution failures.
type ResolveErrorKind string

const (
	AliasCycle       ResolveErrorKind = "AliasCycle"
	DanglingRef      ResolveErrorKind = "DanglingRef"
	UnsupportedShape ResolveErrorKind = "UnsupportedShape"
	NameCollision    ResolveErrorKind = "NameCollision"
)

// ResolveError identifies the offending type and, when known, the endpoint that
// reached it.
type ResolveError struct {
	Kind    ResolveErrorKind
	Type    string
	Entity  string
	Message string
}

func (e *ResolveError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s (reached from %s)", e.Kind, e.Message, e.Entity)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ShapeKind classifies a resolved type for the generated command surface.
type ShapeKind int

const (
	ShapePrimitive ShapeKind = iota
	ShapeEnum
	ShapeStruct
	ShapeUnion
	ShapeCollection
)

func (k ShapeKind) String() string {
	switch k {
	case ShapePrimitive:
		return "primitive"
	case ShapeEnum:
		return "enum"
	case ShapeStruct:
		return "struct"
	case ShapeUnion:
		return "union"
	case ShapeCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// ResolvedType is one entry of the resolution arena. Composite types reference
// other entries by pointer (indirection) so recursive structures stay bounded.
type ResolvedType struct {
	Name      TypeName
	Kind      ShapeKind
	GoType    string   // primitives: string|int64|float64|bool
	Members   []string // enum variants, declaration order
	GoName    string   // enum: generated type name
	Elem      *ResolvedType
	UnionOf   []*ResolvedType
	// Scalar reports whether the shape can be carried by a single CLI value
	// (primitives, enums, and unions collapsing to them).
	Scalar bool
}

// ParamKind classifies a projected command-line parameter.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamInt
	ParamFloat
	ParamBool
	ParamEnum
	ParamList
)

// Parameter is the CLI projection of one path or query parameter.
type Parameter struct {
	Name        string
	Description string
	Required    bool
	Deprecated  bool
	Default     string // rendered default literal, empty when none declared
	Kind        ParamKind
	GoType      string // string|int64|float64|bool, or the enum type name
	Enum        *ResolvedType
}

// EndpointShape pairs an endpoint with its resolved parameter projections.
type EndpointShape struct {
	Endpoint *EndpointDefinition
	Path     []Parameter // declaration order
	Query    []Parameter
	HasBody  bool
}

// Resolution is the output of the resolver: the type arena plus per-endpoint
// parameter projections. It shares the Document read-only.
type Resolution struct {
	Doc       *Document
	Types     map[TypeName]*ResolvedType
	Enums     []*ResolvedType // deduped, sorted by generated name
	Endpoints []EndpointShape
}

type resolver struct {
	doc   *Document
	types map[TypeName]*ResolvedType
	enums map[string]*ResolvedType // by generated Go name
}

// Resolve walks every type reference reachable from every endpoint, flattening
// aliases and classifying shapes. Alias cycles and dangling references are
// fatal; shapes that cannot be expressed as a command-line flag fail when they
// appear in a flag position.
func Resolve(doc *Document) (*Resolution, error) {
	r := &resolver{
		doc:   doc,
		types: make(map[TypeName]*ResolvedType),
		enums: make(map[string]*ResolvedType),
	}

	res := &Resolution{Doc: doc, Types: r.types}
	for i := range doc.Endpoints {
		ep := &doc.Endpoints[i]
		shape, err := r.endpointShape(ep)
		if err != nil {
			return nil, err
		}
		res.Endpoints = append(res.Endpoints, shape)
	}

	names := make([]string, 0, len(r.enums))
	for name := range r.enums {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res.Enums = append(res.Enums, r.enums[name])
	}
	return res, nil
}

func (r *resolver) endpointShape(ep *EndpointDefinition) (EndpointShape, error) {
	shape := EndpointShape{Endpoint: ep}
	if ep.Request == nil {
		return shape, nil
	}

	req, ok := r.doc.TypeFor(*ep.Request)
	if !ok {
		return shape, &ResolveError{Kind: DanglingRef, Type: ep.Request.String(), Entity: ep.Name,
			Message: fmt.Sprintf("request type %s is not defined", ep.Request)}
	}
	if req.Kind != KindRequest {
		return shape, &ResolveError{Kind: UnsupportedShape, Type: req.Name.String(), Entity: ep.Name,
			Message: fmt.Sprintf("endpoint request reference %s has kind %q, want request", req.Name, req.Kind)}
	}

	for _, prop := range req.Path {
		p, err := r.projectParameter(prop, ep.Name)
		if err != nil {
			return shape, err
		}
		shape.Path = append(shape.Path, p)
	}

	taken := make(map[string]bool, len(shape.Path))
	for _, p := range shape.Path {
		taken[p.Name] = true
	}
	for _, prop := range req.Query {
		if taken[prop.Name] {
			// Path parameters shadow query parameters of the same name.
			continue
		}
		p, err := r.projectParameter(prop, ep.Name)
		if err != nil {
			return shape, err
		}
		shape.Query = append(shape.Query, p)
		taken[p.Name] = true
	}

	// Behaviors contribute common query parameters (error traces, filtering,
	// pretty-printing) shared across many requests.
	for _, behavior := range req.Behaviors {
		bt, ok := r.doc.TypeFor(TypeName{Namespace: "_spec_utils", Name: behavior})
		if !ok {
			return shape, &ResolveError{Kind: DanglingRef, Type: "_spec_utils:" + behavior, Entity: ep.Name,
				Message: fmt.Sprintf("attached behavior %q is not defined", behavior)}
		}
		for _, prop := range bt.Properties {
			if taken[prop.Name] {
				continue
			}
			p, err := r.projectParameter(prop, ep.Name)
			if err != nil {
				return shape, err
			}
			shape.Query = append(shape.Query, p)
			taken[p.Name] = true
		}
	}

	if req.Body != nil && req.Body.Kind != NoBody {
		shape.HasBody = true
	}

	// Response types participate in the reachability contract even though the
	// command surface never projects them.
	if ep.Response != nil {
		if _, ok := r.doc.TypeFor(*ep.Response); !ok {
			return shape, &ResolveError{Kind: DanglingRef, Type: ep.Response.String(), Entity: ep.Name,
				Message: fmt.Sprintf("response type %s is not defined", ep.Response)}
		}
	}
	return shape, nil
}

func (r *resolver) projectParameter(prop Property, entity string) (Parameter, error) {
	p := Parameter{
		Name:        prop.Name,
		Description: prop.Description,
		Required:    prop.Required,
		Deprecated:  prop.Deprecated(),
		Default:     renderDefault(prop.ServerDefault),
	}
	if prop.Type == nil {
		return p, &ResolveError{Kind: UnsupportedShape, Type: prop.Name, Entity: entity,
			Message: fmt.Sprintf("parameter %q has no type reference", prop.Name)}
	}

	rt, err := r.resolveValue(prop.Type, entity, nil)
	if err != nil {
		return p, err
	}
	switch rt.Kind {
	case ShapePrimitive:
		p.Kind = primitiveParamKind(rt.GoType)
		p.GoType = rt.GoType
	case ShapeEnum:
		p.Kind = ParamEnum
		p.GoType = rt.GoName
		p.Enum = rt
	case ShapeCollection:
		if rt.Elem == nil || !rt.Elem.Scalar {
			return p, &ResolveError{Kind: UnsupportedShape, Type: rt.Name.String(), Entity: entity,
				Message: fmt.Sprintf("parameter %q is a collection of non-scalar values and cannot become a flag", prop.Name)}
		}
		p.Kind = ParamList
		p.GoType = "[]string"
	case ShapeUnion:
		if !rt.Scalar {
			return p, &ResolveError{Kind: UnsupportedShape, Type: rt.Name.String(), Entity: entity,
				Message: fmt.Sprintf("parameter %q is a union with no expressible discriminant", prop.Name)}
		}
		p.Kind = ParamString
		p.GoType = "string"
	default:
		return p, &ResolveError{Kind: UnsupportedShape, Type: rt.Name.String(), Entity: entity,
			Message: fmt.Sprintf("parameter %q has %s shape %s, which has no flag representation", prop.Name, rt.Kind, rt.Name)}
	}
	return p, nil
}

// resolveValue maps a value reference to its resolved shape, flattening aliases.
// visiting tracks the alias chain so cycles fail instead of looping.
func (r *resolver) resolveValue(v *ValueOf, entity string, visiting []TypeName) (*ResolvedType, error) {
	switch v.Kind {
	case InstanceOf:
		return r.resolveName(*v.Type, entity, visiting)
	case ArrayOf:
		elem, err := r.resolveValue(v.Value, entity, visiting)
		if err != nil {
			return nil, err
		}
		return &ResolvedType{Kind: ShapeCollection, Elem: elem}, nil
	case DictionaryOf:
		elem, err := r.resolveValue(v.Value, entity, visiting)
		if err != nil {
			return nil, err
		}
		return &ResolvedType{Kind: ShapeCollection, Elem: elem}, nil
	case UnionOf:
		u := &ResolvedType{Kind: ShapeUnion, Scalar: true}
		for _, item := range v.Items {
			member, err := r.resolveValue(item, entity, visiting)
			if err != nil {
				return nil, err
			}
			u.UnionOf = append(u.UnionOf, member)
			if !memberScalar(member) {
				u.Scalar = false
			}
		}
		return u, nil
	case UserDefinedValue, LiteralValue:
		return &ResolvedType{Kind: ShapePrimitive, GoType: "string", Scalar: true}, nil
	default:
		return nil, &ResolveError{Kind: UnsupportedShape, Entity: entity,
			Message: fmt.Sprintf("value reference of kind %q is not resolvable", v.Kind)}
	}
}

func (r *resolver) resolveName(name TypeName, entity string, visiting []TypeName) (*ResolvedType, error) {
	if name.IsBuiltin() {
		return builtinType(name), nil
	}
	if rt, ok := r.types[name]; ok {
		return rt, nil
	}

	td, ok := r.doc.TypeFor(name)
	if !ok {
		return nil, &ResolveError{Kind: DanglingRef, Type: name.String(), Entity: entity,
			Message: fmt.Sprintf("type %s is not defined", name)}
	}

	switch td.Kind {
	case KindAlias:
		for _, seen := range visiting {
			if seen == name {
				return nil, &ResolveError{Kind: AliasCycle, Type: name.String(), Entity: entity,
					Message: fmt.Sprintf("alias cycle through %s", formatCycle(visiting, name))}
			}
		}
		rt, err := r.resolveValue(td.Aliased, entity, append(visiting, name))
		if err != nil {
			return nil, err
		}
		r.types[name] = rt
		return rt, nil
	case KindEnum:
		rt := &ResolvedType{Name: name, Kind: ShapeEnum, Scalar: true}
		for _, m := range td.Members {
			rt.Members = append(rt.Members, m.Name)
		}
		r.types[name] = rt
		if err := r.internEnum(rt, entity); err != nil {
			return nil, err
		}
		return rt, nil
	case KindInterface, KindRequest, KindResponse:
		rt := &ResolvedType{Name: name, Kind: ShapeStruct}
		r.types[name] = rt
		return rt, nil
	default:
		return nil, &ResolveError{Kind: UnsupportedShape, Type: name.String(), Entity: entity,
			Message: fmt.Sprintf("type %s has unsupported kind %q", name, td.Kind)}
	}
}

// internEnum registers an enum under a unique generated type name. Two enums
// sharing a leaf name with identical members collapse to one; differing member
// sets get namespace-qualified names. If even the qualified name is already
// claimed by an enum with a different member set, resolution fails rather
// than letting one definition shadow the other.
func (r *resolver) internEnum(rt *ResolvedType, entity string) error {
	base := PascalCase(rt.Name.Name)
	if existing, ok := r.enums[base]; ok {
		if existing.Name == rt.Name || sameMembers(existing.Members, rt.Members) {
			rt.GoName = base
			return nil
		}
		qualified := PascalCase(rt.Name.Namespace) + base
		if prior, ok := r.enums[qualified]; ok {
			if prior.Name == rt.Name || sameMembers(prior.Members, rt.Members) {
				rt.GoName = qualified
				return nil
			}
			return &ResolveError{Kind: NameCollision, Type: rt.Name.String(), Entity: entity,
				Message: fmt.Sprintf("enums %s and %s both map to generated name %s", prior.Name, rt.Name, qualified)}
		}
		rt.GoName = qualified
		r.enums[qualified] = rt
		return nil
	}
	rt.GoName = base
	r.enums[base] = rt
	return nil
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func memberScalar(rt *ResolvedType) bool {
	if rt.Scalar {
		return true
	}
	if rt.Kind == ShapeCollection && rt.Elem != nil {
		return rt.Elem.Scalar
	}
	return false
}

func builtinType(name TypeName) *ResolvedType {
	goType := "string"
	switch name.Name {
	case "int", "long":
		goType = "int64"
	case "float", "double":
		goType = "float64"
	case "boolean":
		goType = "bool"
	}
	return &ResolvedType{Name: name, Kind: ShapePrimitive, GoType: goType, Scalar: true}
}

func primitiveParamKind(goType string) ParamKind {
	switch goType {
	case "int64":
		return ParamInt
	case "float64":
		return ParamFloat
	case "bool":
		return ParamBool
	default:
		return ParamString
	}
}

func renderDefault(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}

func formatCycle(visiting []TypeName, repeat TypeName) string {
	parts := make([]string, 0, len(visiting)+1)
	for _, n := range visiting {
		parts = append(parts, n.String())
	}
	parts = append(parts, repeat.String())
	return strings.Join(parts, " -> ")
}

// PascalCase converts a snake_case or dotted specification identifier into an
// exported Go identifier.
func PascalCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r == '_' || r == '.' || r == '-' || r == ' ':
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
