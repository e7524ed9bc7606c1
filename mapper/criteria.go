package mapper

import (
	"github.com/jacentio/docmap/store"
)

// Criteria coerces criteria values with the matching field's rules so that
// callers may pass e.g. "42" for an Int field. The identity and undeclared
// keys pass through unchanged; nested documents are flattened to plain maps.
func (k *Kind) Criteria(criteria store.Criteria) (store.Criteria, error) {
	out := make(store.Criteria, len(criteria))
	for key, v := range criteria {
		f, ok := k.Field(key)
		if key == store.IDField || !ok || v == nil {
			out[key] = v
			continue
		}
		c, err := coerceField(f, v)
		if err != nil {
			return nil, err
		}
		out[key] = plainValue(c)
	}
	return out, nil
}
