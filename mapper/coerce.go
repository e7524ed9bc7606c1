package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/jacentio/docmap/store"
)

// coerceField converts a present, non-nil value to what f declares.
func coerceField(f FieldSpec, v any) (any, error) {
	if absent(v) {
		return v, nil
	}

	switch f.Variant {
	case ListOfDocumentsVariant:
		if out, ok := v.([]*Document); ok && allOfKind(out, f.Kind) {
			return out, nil
		}
		items, err := toList(v)
		if err != nil {
			return nil, fieldError(f, v, err)
		}
		docs := make([]*Document, len(items))
		for i, item := range items {
			d, err := toDocument(f.Kind, item)
			if err != nil {
				return nil, fieldError(f, v, fmt.Errorf("element %d: %w", i, err))
			}
			docs[i] = d
		}
		return docs, nil

	case NestedVariant:
		d, err := toDocument(f.Kind, v)
		if err != nil {
			return nil, fieldError(f, v, err)
		}
		return d, nil

	case ListVariant:
		items, err := toList(v)
		if err != nil {
			return nil, fieldError(f, v, err)
		}
		out := make([]any, len(items))
		for i, item := range items {
			c, err := coerceType(f.Elem, item)
			if err != nil {
				return nil, fieldError(f, v, fmt.Errorf("element %d: %w", i, err))
			}
			out[i] = c
		}
		return out, nil

	case ReferenceVariant:
		c, err := coerceType(f.IDType, v)
		if err != nil {
			return nil, fieldError(f, v, err)
		}
		return c, nil
	}

	c, err := coerceType(f.Type, v)
	if err != nil {
		return nil, fieldError(f, v, err)
	}
	return c, nil
}

func fieldError(f FieldSpec, v any, err error) error {
	return &CoercionError{Field: f.Name, Type: f.Type, Value: v, Err: err}
}

// coerceType applies the plain conversion for t. Values that already have the
// target Go type are returned unchanged.
func coerceType(t Type, v any) (any, error) {
	if v == nil || t.matches(v) {
		return v, nil
	}

	switch t {
	case Int:
		return toInt(v)
	case Float:
		return cast.ToFloat64E(v)
	case String:
		if s, err := cast.ToStringE(v); err == nil {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case Bool:
		return cast.ToBoolE(v)
	case Time:
		return toTime(v)
	case List:
		return toList(v)
	case Map:
		return toMap(v)
	case DocumentType:
		return nil, fmt.Errorf("document value requires a nested field")
	}
	return v, nil
}

// toInt converts through float64 so "3.7" and 3.7 both become 3.
// Integer inputs skip the float step to keep full int64 precision.
func toInt(v any) (int64, error) {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cast.ToInt64E(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := reflect.ValueOf(v).Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", u)
		}
		return int64(u), nil
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return int64(math.Trunc(f)), nil
}

// toTime accepts RFC 3339 (and other cast-supported layouts) or unix seconds.
// Unix seconds of any numeric type yield UTC times.
func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case float64:
		sec, frac := math.Modf(x)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case float32:
		return toTime(float64(x))
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t, nil
		}
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, err
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		t = t.UTC()
	}
	return t, nil
}

// toList converts any slice or array to []any.
func toList(v any) ([]any, error) {
	if l, ok := v.([]any); ok {
		return l, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%T is not a list", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func toMap(v any) (map[string]any, error) {
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case store.Record:
		return map[string]any(x), nil
	case *Document:
		return map[string]any(x.Record()), nil
	}
	return cast.ToStringMapE(v)
}

// toDocument builds a document of kind from v, keeping v when it already is one.
func toDocument(kind *Kind, v any) (*Document, error) {
	if d, ok := v.(*Document); ok && d != nil && d.kind == kind {
		return d, nil
	}
	raw, err := toMap(v)
	if err != nil {
		return nil, err
	}
	return kind.New(raw)
}

func allOfKind(docs []*Document, kind *Kind) bool {
	for _, d := range docs {
		if d == nil || d.kind != kind {
			return false
		}
	}
	return true
}
