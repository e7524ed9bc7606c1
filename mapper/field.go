package mapper

import (
	"fmt"
	"time"
)

// Type tags the Go type a field's value is coerced to.
type Type uint8

const (
	Any          Type = iota // no coercion
	String                   // string
	Int                      // int64
	Float                    // float64
	Bool                     // bool
	Time                     // time.Time
	List                     // []any
	Map                      // map[string]any
	DocumentType             // *Document
)

var typeNames = [...]string{"any", "string", "int", "float", "bool", "time", "list", "map", "document"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// matches reports whether v already has the Go type t coerces to.
func (t Type) matches(v any) bool {
	switch t {
	case Any:
		return true
	case String:
		_, ok := v.(string)
		return ok
	case Int:
		_, ok := v.(int64)
		return ok
	case Float:
		_, ok := v.(float64)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	case Time:
		_, ok := v.(time.Time)
		return ok
	case List:
		_, ok := v.([]any)
		return ok
	case Map:
		_, ok := v.(map[string]any)
		return ok
	case DocumentType:
		_, ok := v.(*Document)
		return ok
	}
	return false
}

// Variant distinguishes the specialised field kinds.
type Variant uint8

const (
	PlainField Variant = iota
	ListVariant
	ListOfDocumentsVariant
	NestedVariant
	AutoIncrementVariant
	ReferenceVariant
)

// Validator checks a field value and returns a non-empty message when it is invalid.
type Validator func(f FieldSpec, value any) string

// FieldSpec describes one named, typed slot on a document. Specs are values
// and are never mutated once a Kind holds them.
type FieldSpec struct {
	Type           Type
	Name           string
	Required       bool
	Default        any
	Validator      Validator
	InvalidMessage string

	Variant Variant

	// Elem is the member type of a ListField.
	Elem Type

	// Kind is the document kind of nested, list-of-documents and reference fields.
	Kind *Kind

	// Sequence names the allocator sequence of an auto-increment field.
	Sequence string

	// IDType coerces the stored identifier of a reference field.
	IDType Type

	// Lazy marks a reference as not resolved eagerly.
	Lazy bool
}

// FieldOption configures a FieldSpec.
type FieldOption func(*FieldSpec)

// Required marks the field as mandatory.
func Required() FieldOption {
	return func(f *FieldSpec) { f.Required = true }
}

// Default sets the value applied when a document has none for the field.
func Default(v any) FieldOption {
	return func(f *FieldSpec) { f.Default = v }
}

// WithValidator attaches a validator.
func WithValidator(fn Validator) FieldOption {
	return func(f *FieldSpec) { f.Validator = fn }
}

// InvalidMessage replaces the "<name> is required" message.
func InvalidMessage(msg string) FieldOption {
	return func(f *FieldSpec) { f.InvalidMessage = msg }
}

func newField(t Type, name string, v Variant, opts []FieldOption) FieldSpec {
	f := FieldSpec{Type: t, Name: name, Variant: v}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Field declares a plain field.
func Field(t Type, name string, opts ...FieldOption) FieldSpec {
	return newField(t, name, PlainField, opts)
}

// ListField declares a list whose members are coerced to elem.
func ListField(elem Type, name string, opts ...FieldOption) FieldSpec {
	f := newField(List, name, ListVariant, opts)
	f.Elem = elem
	return f
}

// ListOfDocumentsField declares a list whose members are documents of kind.
func ListOfDocumentsField(kind *Kind, name string, opts ...FieldOption) FieldSpec {
	if kind == nil {
		panic(fmt.Sprintf("docmap: list-of-documents field %q has nil kind", name))
	}
	f := newField(List, name, ListOfDocumentsVariant, opts)
	f.Elem = DocumentType
	f.Kind = kind
	return f
}

// NestedField declares a field holding a single document of kind.
func NestedField(kind *Kind, name string, opts ...FieldOption) FieldSpec {
	if kind == nil {
		panic(fmt.Sprintf("docmap: nested field %q has nil kind", name))
	}
	f := newField(DocumentType, name, NestedVariant, opts)
	f.Kind = kind
	return f
}

// AutoIncrementField declares an int field filled from the named sequence at
// save time. Any Default option is ignored.
func AutoIncrementField(name, sequence string, opts ...FieldOption) FieldSpec {
	f := newField(Int, name, AutoIncrementVariant, opts)
	f.Default = nil
	f.Sequence = sequence
	return f
}

// ReferenceField declares a field holding the identity of a document of kind.
// Only the declaration exists; references are never resolved.
func ReferenceField(kind *Kind, name string, idType Type, lazy bool, opts ...FieldOption) FieldSpec {
	f := newField(idType, name, ReferenceVariant, opts)
	f.Kind = kind
	f.IDType = idType
	f.Lazy = lazy
	return f
}

// Check validates value and returns the accumulated message, or "" when valid.
// A required-field failure and a validator failure are concatenated.
// No type checking happens here.
func (f FieldSpec) Check(value any) string {
	var msg string
	if absent(value) && f.Required {
		if f.InvalidMessage != "" {
			msg = f.InvalidMessage
		} else {
			msg = f.Name + " is required"
		}
	}
	if f.Validator != nil {
		msg += f.Validator(f, value)
	}
	return msg
}

// IsValid reports whether Check returns no message.
func (f FieldSpec) IsValid(value any) bool {
	return f.Check(value) == ""
}

// unset marks an auto-increment field awaiting allocation.
type unset struct{}

func (unset) String() string { return "<unset>" }

// Unset is the value of an auto-increment field that has not been allocated yet.
var Unset any = unset{}

// absent reports whether v counts as "no value".
func absent(v any) bool {
	switch x := v.(type) {
	case nil, unset:
		return true
	case *Document:
		return x == nil
	}
	return false
}
