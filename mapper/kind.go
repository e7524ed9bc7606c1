package mapper

import (
	"context"
	"fmt"
)

// ValidationError is one entry produced by a document-level validate hook.
type ValidationError struct {
	Key     string
	Message string
}

// ValidateFunc is a document-level validation hook. Returned pairs are merged
// into the document's errors in order; later duplicates win.
type ValidateFunc func(d *Document) []ValidationError

// BeforeFunc runs before a save or delete. Returning false vetoes the operation.
type BeforeFunc func(ctx context.Context, d *Document) bool

// AfterFunc runs after a successful save or delete.
type AfterFunc func(ctx context.Context, d *Document)

type hooks struct {
	validate     ValidateFunc
	beforeSave   BeforeFunc
	afterSave    AfterFunc
	beforeDelete BeforeFunc
	afterDelete  AfterFunc
}

// Kind is an immutable document type: a collection name, an ordered field
// registry and the lifecycle hooks shared by every document of the kind.
type Kind struct {
	collection string
	fields     []FieldSpec
	index      map[string]int
	hooks      hooks
}

// KindOption configures a Kind.
type KindOption func(*Kind)

// WithValidate sets the document-level validation hook.
func WithValidate(fn ValidateFunc) KindOption {
	return func(k *Kind) { k.hooks.validate = fn }
}

// WithBeforeSave sets the pre-save hook.
func WithBeforeSave(fn BeforeFunc) KindOption {
	return func(k *Kind) { k.hooks.beforeSave = fn }
}

// WithAfterSave sets the post-save hook.
func WithAfterSave(fn AfterFunc) KindOption {
	return func(k *Kind) { k.hooks.afterSave = fn }
}

// WithBeforeDelete sets the pre-delete hook.
func WithBeforeDelete(fn BeforeFunc) KindOption {
	return func(k *Kind) { k.hooks.beforeDelete = fn }
}

// WithAfterDelete sets the post-delete hook.
func WithAfterDelete(fn AfterFunc) KindOption {
	return func(k *Kind) { k.hooks.afterDelete = fn }
}

// NewKind declares a document kind stored in collection.
// It panics on duplicate field names.
func NewKind(collection string, fields []FieldSpec, opts ...KindOption) *Kind {
	k := &Kind{
		collection: collection,
		fields:     make([]FieldSpec, 0, len(fields)),
		index:      make(map[string]int, len(fields)),
	}
	k.add(fields)
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kind) add(fields []FieldSpec) {
	for _, f := range fields {
		if _, dup := k.index[f.Name]; dup {
			panic(fmt.Sprintf("docmap: duplicate field %q in kind %q", f.Name, k.collection))
		}
		k.index[f.Name] = len(k.fields)
		k.fields = append(k.fields, f)
	}
}

// Collection returns the store collection for documents of this kind.
func (k *Kind) Collection() string {
	return k.collection
}

// Fields returns a copy of the declared fields in order.
func (k *Kind) Fields() []FieldSpec {
	out := make([]FieldSpec, len(k.fields))
	copy(out, k.fields)
	return out
}

// Field looks up a declared field by name.
func (k *Kind) Field(name string) (FieldSpec, bool) {
	i, ok := k.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return k.fields[i], true
}

// Declares reports whether name is a declared field.
func (k *Kind) Declares(name string) bool {
	_, ok := k.index[name]
	return ok
}

// Extend returns a new kind with the receiver's collection, fields and hooks
// plus the extra fields and options. The receiver is not modified.
func (k *Kind) Extend(fields []FieldSpec, opts ...KindOption) *Kind {
	n := &Kind{
		collection: k.collection,
		fields:     make([]FieldSpec, 0, len(k.fields)+len(fields)),
		index:      make(map[string]int, len(k.fields)+len(fields)),
		hooks:      k.hooks,
	}
	n.add(k.fields)
	n.add(fields)
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (k *Kind) String() string {
	return fmt.Sprintf("Kind(%s, %d fields)", k.collection, len(k.fields))
}
