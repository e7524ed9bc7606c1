package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// IDField is the record key holding the store-assigned identity.
const IDField = "_id"

// Record is a raw stored document: the document's value map plus its identity.
type Record map[string]any

// Criteria selects records by equality on top-level keys.
type Criteria map[string]any

// Store is the persistence backend consumed by the mapper.
// Every method operates on a single collection and is atomic per record.
type Store interface {
	// FindOne returns the first record matching criteria, or ErrNotFound.
	FindOne(ctx context.Context, collection string, criteria Criteria) (Record, error)

	// Find returns every record matching criteria. Ordering is unspecified.
	Find(ctx context.Context, collection string, criteria Criteria) ([]Record, error)

	// Upsert inserts the record when it has no identity (assigning one), or
	// replaces the stored record with the same identity. Returns the identity.
	Upsert(ctx context.Context, collection string, record Record) (string, error)

	// Insert creates the record, failing with ErrAlreadyExists if its identity
	// is already stored. A record without identity is assigned one.
	Insert(ctx context.Context, collection string, record Record) (string, error)

	// RemoveByIdentity deletes the record with the given identity. Removing a
	// missing record is not an error.
	RemoveByIdentity(ctx context.Context, collection string, id string) error

	// RemoveMatching deletes every record matching criteria and returns how many were removed.
	RemoveMatching(ctx context.Context, collection string, criteria Criteria) (int64, error)

	// ConditionalUpdate sets the given keys on every record matching match and
	// returns the number of records updated. The match is evaluated atomically
	// with the write for each record.
	ConditionalUpdate(ctx context.Context, collection string, match Criteria, set Record) (int64, error)

	// Count returns the number of records matching criteria.
	Count(ctx context.Context, collection string, criteria Criteria) (int64, error)
}

// Identity returns the record's identity, or "" when it has none.
func (r Record) Identity() string {
	v, ok := r[IDField]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a deep copy of the record with values normalized (see Normalize).
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = Normalize(v)
	}
	return out
}

// Identity returns the identity named by the criteria, if it selects on IDField.
func (c Criteria) Identity() (string, bool) {
	v, ok := c[IDField]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Keys returns the criteria keys in sorted order.
func (c Criteria) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether the record satisfies every criteria entry.
// A missing key only matches a nil criteria value.
func Matches(record Record, criteria Criteria) bool {
	for k, want := range criteria {
		got, ok := record[k]
		if !ok {
			if want != nil {
				return false
			}
			continue
		}
		if !Equal(got, want) {
			return false
		}
	}
	return true
}

// Equal compares two stored values, treating all numeric types as float64.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// Normalize converts a value into the canonical shape a JSON-like store
// returns: numbers become float64, slices become []any and string-keyed maps
// become map[string]any, recursively. Other values are returned unchanged.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, float64:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case Record:
		return map[string]any(x.Clone())
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any(nil)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}
