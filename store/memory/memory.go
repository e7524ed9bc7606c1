// Package memory provides an in-process implementation of store.Store.
//
// Records are deep-copied and normalized on the way in and out, so callers see
// the same value shapes a JSON-backed store would return (numbers as float64).
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jacentio/docmap/store"
)

type collection struct {
	records map[string]store.Record
	order   []string // insertion order of identities
}

// Store is an in-memory store.Store. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
	}
}

var _ store.Store = (*Store)(nil)

// coll returns the named collection, creating it when create is set.
// Callers must hold s.mu (write lock when create is true).
func (s *Store) coll(name string, create bool) *collection {
	c, ok := s.collections[name]
	if !ok && create {
		c = &collection{records: make(map[string]store.Record)}
		s.collections[name] = c
	}
	return c
}

// FindOne returns the first matching record in insertion order.
func (s *Store) FindOne(ctx context.Context, name string, criteria store.Criteria) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.coll(name, false)
	if c == nil {
		return nil, store.ErrNotFound
	}
	for _, id := range c.order {
		if r := c.records[id]; store.Matches(r, criteria) {
			return r.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// Find returns every matching record in insertion order.
func (s *Store) Find(ctx context.Context, name string, criteria store.Criteria) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.coll(name, false)
	if c == nil {
		return nil, nil
	}
	var out []store.Record
	for _, id := range c.order {
		if r := c.records[id]; store.Matches(r, criteria) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Upsert stores the record, replacing any record with the same identity.
func (s *Store) Upsert(ctx context.Context, name string, record store.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := record.Clone()
	id := r.Identity()
	if id == "" {
		id = uuid.NewString()
	}
	r[store.IDField] = id

	c := s.coll(name, true)
	if _, exists := c.records[id]; !exists {
		c.order = append(c.order, id)
	}
	c.records[id] = r
	return id, nil
}

// Insert stores a new record, failing if its identity is taken.
func (s *Store) Insert(ctx context.Context, name string, record store.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := record.Clone()
	id := r.Identity()
	if id == "" {
		id = uuid.NewString()
	}
	r[store.IDField] = id

	c := s.coll(name, true)
	if _, exists := c.records[id]; exists {
		return "", store.ErrAlreadyExists
	}
	c.order = append(c.order, id)
	c.records[id] = r
	return id, nil
}

// RemoveByIdentity deletes one record by identity.
func (s *Store) RemoveByIdentity(ctx context.Context, name string, id string) error {
	if id == "" {
		return store.ErrMissingIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.coll(name, false); c != nil {
		c.remove(id)
	}
	return nil
}

// RemoveMatching deletes every matching record.
func (s *Store) RemoveMatching(ctx context.Context, name string, criteria store.Criteria) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(name, false)
	if c == nil {
		return 0, nil
	}
	var doomed []string
	for _, id := range c.order {
		if store.Matches(c.records[id], criteria) {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		c.remove(id)
	}
	return int64(len(doomed)), nil
}

// ConditionalUpdate sets keys on every record matching match, under the write lock.
func (s *Store) ConditionalUpdate(ctx context.Context, name string, match store.Criteria, set store.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(name, false)
	if c == nil {
		return 0, nil
	}
	var n int64
	for _, id := range c.order {
		r := c.records[id]
		if !store.Matches(r, match) {
			continue
		}
		for k, v := range set {
			if k == store.IDField {
				continue
			}
			r[k] = store.Normalize(v)
		}
		n++
	}
	return n, nil
}

// Count returns the number of matching records.
func (s *Store) Count(ctx context.Context, name string, criteria store.Criteria) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.coll(name, false)
	if c == nil {
		return 0, nil
	}
	var n int64
	for _, id := range c.order {
		if store.Matches(c.records[id], criteria) {
			n++
		}
	}
	return n, nil
}

func (c *collection) remove(id string) {
	if _, ok := c.records[id]; !ok {
		return
	}
	delete(c.records, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}
