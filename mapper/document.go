package mapper

import (
	"iter"
	"slices"
	"time"

	"github.com/jacentio/docmap/store"
)

// Document is an instance of a Kind: an ordered value map checked against the
// kind's field registry.
//
// A Document is not safe for concurrent mutation.
type Document struct {
	kind   *Kind
	values map[string]any
	order  []string
	errors map[string]string

	mgr   *Manager
	hooks hooks // per-instance overrides
}

// New constructs a document of kind k from raw. Every raw key is kept;
// declared fields get defaults and coercion, auto-increment fields without a
// value are marked Unset. The document is validated but construction never
// fails on validation errors; inspect IsValid or Errors.
func (k *Kind) New(raw map[string]any) (*Document, error) {
	if len(k.fields) == 0 {
		return nil, ErrInvalidDocumentKind
	}

	d := &Document{
		kind:   k,
		values: make(map[string]any, len(raw)+len(k.fields)),
		order:  make([]string, 0, len(raw)+len(k.fields)),
	}

	// Declared raw keys in declaration order, then undeclared ones sorted.
	for _, f := range k.fields {
		if v, ok := raw[f.Name]; ok {
			d.put(f.Name, v)
		}
	}
	rest := make([]string, 0, len(raw))
	for key := range raw {
		if !k.Declares(key) {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	for _, key := range rest {
		d.put(key, raw[key])
	}

	for _, f := range k.fields {
		v, has := d.values[f.Name]

		if f.Variant == AutoIncrementVariant && !has {
			d.put(f.Name, Unset)
			continue
		}
		if !has && f.Default != nil {
			d.put(f.Name, copyValue(f.Default))
			v, has = d.values[f.Name], true
		}
		if has && v != nil {
			c, err := coerceField(f, v)
			if err != nil {
				return nil, err
			}
			d.values[f.Name] = c
		}
	}

	d.Validate()
	return d, nil
}

// Kind returns the document's kind.
func (d *Document) Kind() *Kind {
	return d.kind
}

// Collection returns the kind's collection.
func (d *Document) Collection() string {
	return d.kind.collection
}

// ID returns the store identity, or "" before the first save.
func (d *Document) ID() string {
	return store.Record{store.IDField: d.values[store.IDField]}.Identity()
}

// Get returns the value stored under name. A declared field without a value
// returns nil; any other unknown name returns ErrMissingField.
func (d *Document) Get(name string) (any, error) {
	if v, ok := d.values[name]; ok {
		return v, nil
	}
	if d.kind.Declares(name) {
		return nil, nil
	}
	return nil, missingField(name)
}

// Set assigns a declared field (or the identity) after coercing the value.
func (d *Document) Set(name string, v any) error {
	if name == store.IDField {
		d.put(name, v)
		return nil
	}
	f, ok := d.kind.Field(name)
	if !ok {
		return missingField(name)
	}
	c, err := coerceField(f, v)
	if err != nil {
		return err
	}
	d.put(name, c)
	return nil
}

// Clear removes the value stored under name.
func (d *Document) Clear(name string) {
	if _, ok := d.values[name]; !ok {
		return
	}
	delete(d.values, name)
	if i := slices.Index(d.order, name); i >= 0 {
		d.order = slices.Delete(d.order, i, i+1)
	}
}

func (d *Document) put(name string, v any) {
	if _, ok := d.values[name]; !ok {
		d.order = append(d.order, name)
	}
	d.values[name] = v
}

// Has reports whether a value (including Unset) is stored under name.
func (d *Document) Has(name string) bool {
	_, ok := d.values[name]
	return ok
}

// Keys returns the stored keys in insertion order.
func (d *Document) Keys() []string {
	return slices.Clone(d.order)
}

// Len returns the number of stored keys.
func (d *Document) Len() int {
	return len(d.order)
}

// All iterates the stored key/value pairs in insertion order.
func (d *Document) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range d.order {
			if !yield(k, d.values[k]) {
				return
			}
		}
	}
}

// String returns the string value of name.
func (d *Document) String(name string) (string, bool) {
	v, ok := d.values[name].(string)
	return v, ok
}

// Int returns the int64 value of name.
func (d *Document) Int(name string) (int64, bool) {
	v, ok := d.values[name].(int64)
	return v, ok
}

// Float returns the float64 value of name.
func (d *Document) Float(name string) (float64, bool) {
	v, ok := d.values[name].(float64)
	return v, ok
}

// Bool returns the bool value of name.
func (d *Document) Bool(name string) (bool, bool) {
	v, ok := d.values[name].(bool)
	return v, ok
}

// Time returns the time value of name.
func (d *Document) Time(name string) (time.Time, bool) {
	v, ok := d.values[name].(time.Time)
	return v, ok
}

// List returns the list value of name.
func (d *Document) List(name string) ([]any, bool) {
	v, ok := d.values[name].([]any)
	return v, ok
}

// Doc returns the nested document stored under name.
func (d *Document) Doc(name string) (*Document, bool) {
	v, ok := d.values[name].(*Document)
	return v, ok && v != nil
}

// Docs returns the documents of a list-of-documents field.
func (d *Document) Docs(name string) ([]*Document, bool) {
	v, ok := d.values[name].([]*Document)
	return v, ok
}

// Record returns a deep plain copy of the document: nested documents become
// maps and Unset values are dropped.
func (d *Document) Record() store.Record {
	out := make(store.Record, len(d.values))
	for _, k := range d.order {
		v := d.values[k]
		if _, ok := v.(unset); ok {
			continue
		}
		out[k] = plainValue(v)
	}
	return out
}

// Equal reports whether two documents hold the same plain values.
func (d *Document) Equal(o *Document) bool {
	if d == nil || o == nil {
		return d == o
	}
	return store.Equal(map[string]any(d.Record()), map[string]any(o.Record()))
}

// Bind attaches the document (and its nested documents) to m.
func (d *Document) Bind(m *Manager) *Document {
	d.mgr = m
	for _, v := range d.values {
		switch x := v.(type) {
		case *Document:
			if x != nil {
				x.Bind(m)
			}
		case []*Document:
			for _, n := range x {
				if n != nil {
					n.Bind(m)
				}
			}
		}
	}
	return d
}

// Manager returns the bound manager, or nil.
func (d *Document) Manager() *Manager {
	return d.mgr
}

// plainValue flattens documents and copies containers.
func plainValue(v any) any {
	switch x := v.(type) {
	case *Document:
		if x == nil {
			return nil
		}
		return map[string]any(x.Record())
	case []*Document:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plainValue(e)
		}
		return out
	case store.Record:
		return plainValue(map[string]any(x))
	}
	return v
}

// copyValue keeps mutable defaults from being shared between documents.
func copyValue(v any) any {
	switch x := v.(type) {
	case []any, map[string]any, store.Record:
		return plainValue(x)
	}
	return v
}
