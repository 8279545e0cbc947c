package schema

// Document model for the clients-schema dialect: a flat arena of named type
// definitions plus an ordered endpoint list. The set of definition kinds and
// value-reference kinds is finite and known ahead of time, so both are modeled
// as closed tagged variants rather than generic maps.

import (
	"encoding/json"
	"fmt"
)

// TypeName identifies a type definition inside the schema document.
type TypeName struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (t TypeName) String() string { return t.Namespace + ":" + t.Name }

// IsBuiltin reports whether the name refers to the dialect's primitive namespace.
func (t TypeName) IsBuiltin() bool { return t.Namespace == "_builtins" }

// ValueKind enumerates the value-reference kinds of the dialect.
type ValueKind string

const (
	InstanceOf       ValueKind = "instance_of"
	ArrayOf          ValueKind = "array_of"
	DictionaryOf     ValueKind = "dictionary_of"
	UnionOf          ValueKind = "union_of"
	UserDefinedValue ValueKind = "user_defined_value"
	LiteralValue     ValueKind = "literal_value"
)

// ValueOf is a reference to a type: either a named instance or a structural
// composite (array, dictionary, union). Exactly the fields matching Kind are set.
type ValueOf struct {
	Kind  ValueKind
	Type  *TypeName  // instance_of
	Value *ValueOf   // array_of element, dictionary_of value
	Key   *ValueOf   // dictionary_of key
	Items []*ValueOf // union_of members
}

func (v *ValueOf) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind  ValueKind  `json:"kind"`
		Type  *TypeName  `json:"type"`
		Value *ValueOf   `json:"value"`
		Key   *ValueOf   `json:"key"`
		Items []*ValueOf `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case InstanceOf:
		if raw.Type == nil {
			return fmt.Errorf("instance_of value without a type name")
		}
	case ArrayOf:
		if raw.Value == nil {
			return fmt.Errorf("array_of value without an element type")
		}
	case DictionaryOf, UnionOf, UserDefinedValue, LiteralValue:
	default:
		return fmt.Errorf("unknown value kind %q", raw.Kind)
	}
	v.Kind = raw.Kind
	v.Type = raw.Type
	v.Value = raw.Value
	v.Key = raw.Key
	v.Items = raw.Items
	return nil
}

// Deprecation carries the version and reason a construct was deprecated in.
type Deprecation struct {
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Property is one field of a struct-like type or request parameter list.
type Property struct {
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Required      bool         `json:"required"`
	Deprecation   *Deprecation `json:"deprecation"`
	ServerDefault any          `json:"serverDefault"`
	Type          *ValueOf     `json:"type"`
}

// Deprecated reports whether the property carries a deprecation notice.
func (p Property) Deprecated() bool { return p.Deprecation != nil }

// TypeKind enumerates the definition kinds of the dialect.
type TypeKind string

const (
	KindInterface TypeKind = "interface"
	KindEnum      TypeKind = "enum"
	KindAlias     TypeKind = "type_alias"
	KindRequest   TypeKind = "request"
	KindResponse  TypeKind = "response"
)

// EnumMember is one labeled variant of an enum definition.
type EnumMember struct {
	Name string `json:"name"`
}

// BodyKind enumerates how a request declares its body.
type BodyKind string

const (
	NoBody         BodyKind = "no_body"
	PropertiesBody BodyKind = "properties"
	ValueBody      BodyKind = "value"
)

// Body describes a request body declaration.
type Body struct {
	Kind BodyKind `json:"kind"`
}

// TypeDefinition is a tagged variant over the definition kinds. Exactly the
// fields matching Kind are populated.
type TypeDefinition struct {
	Kind        TypeKind
	Name        TypeName
	Description string

	Properties []Property   // interface
	Members    []EnumMember // enum
	Aliased    *ValueOf     // type_alias

	// request only
	Path      []Property
	Query     []Property
	Body      *Body
	Behaviors []string
}

func (t *TypeDefinition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind        TypeKind     `json:"kind"`
		Name        TypeName     `json:"name"`
		Description string       `json:"description"`
		Properties  []Property   `json:"properties"`
		Members     []EnumMember `json:"members"`
		Aliased     *ValueOf     `json:"type"`
		Path        []Property   `json:"path"`
		Query       []Property   `json:"query"`
		Body        *Body        `json:"body"`
		Behaviors   []string     `json:"attachedBehaviors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case KindInterface, KindEnum, KindRequest, KindResponse:
	case KindAlias:
		if raw.Aliased == nil {
			return fmt.Errorf("type alias %s without an aliased type", raw.Name)
		}
	default:
		return fmt.Errorf("unknown type definition kind %q for %s", raw.Kind, raw.Name)
	}
	t.Kind = raw.Kind
	t.Name = raw.Name
	t.Description = raw.Description
	t.Properties = raw.Properties
	t.Members = raw.Members
	t.Aliased = raw.Aliased
	t.Path = raw.Path
	t.Query = raw.Query
	t.Body = raw.Body
	t.Behaviors = raw.Behaviors
	return nil
}

// URLTemplate is one HTTP method/path pair declared by an endpoint.
type URLTemplate struct {
	Path        string       `json:"path"`
	Methods     []string     `json:"methods"`
	Deprecation *Deprecation `json:"deprecation"`
}

// Availability carries per-flavor stability metadata.
type Availability struct {
	Stability string `json:"stability"`
	Since     string `json:"since"`
}

// EndpointDefinition is one named API operation.
type EndpointDefinition struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	DocURL       string                  `json:"docUrl"`
	Deprecation  *Deprecation            `json:"deprecation"`
	Availability map[string]Availability `json:"availability"`
	URLs         []URLTemplate           `json:"urls"`
	Request      *TypeName               `json:"request"`
	Response     *TypeName               `json:"response"`
}

// Deprecated reports whether the endpoint carries a deprecation notice.
func (e *EndpointDefinition) Deprecated() bool { return e.Deprecation != nil }

// Stability returns the declared stack stability, or "stable" when absent.
func (e *EndpointDefinition) Stability() string {
	if a, ok := e.Availability["stack"]; ok && a.Stability != "" {
		return a.Stability
	}
	return "stable"
}

// Info is the informational preamble of a specification document.
type Info struct {
	Title   string `json:"title"`
	License any    `json:"license"`
}

// Document is the fully parsed specification. It is immutable once loaded;
// downstream stages share it read-only.
type Document struct {
	Info      *Info
	Endpoints []EndpointDefinition
	Types     []TypeDefinition

	index map[TypeName]*TypeDefinition
}

// TypeFor looks up a definition by name in the arena.
func (d *Document) TypeFor(n TypeName) (*TypeDefinition, bool) {
	td, ok := d.index[n]
	return td, ok
}

func (d *Document) buildIndex() {
	d.index = make(map[TypeName]*TypeDefinition, len(d.Types))
	for i := range d.Types {
		d.index[d.Types[i].Name] = &d.Types[i]
	}
}
