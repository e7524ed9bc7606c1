package mapper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacentio/docmap/metrics"
	"github.com/jacentio/docmap/sequence"
	"github.com/jacentio/docmap/store"
)

// Manager translates document operations into store calls. It is safe for
// concurrent use; the documents it returns are not.
type Manager struct {
	store     store.Store
	allocator *sequence.Allocator
	registry  *Registry
	logger    zerolog.Logger
	metrics   *metrics.Collector
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) ManagerOption {
	return func(m *Manager) { m.metrics = c }
}

// WithAllocator replaces the default sequence allocator.
func WithAllocator(a *sequence.Allocator) ManagerOption {
	return func(m *Manager) { m.allocator = a }
}

// WithRegistry shares a kind registry with other components.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) { m.registry = r }
}

// NewManager creates a manager over s. Without WithAllocator, sequences are
// kept in s under sequence.DefaultCollection.
func NewManager(s store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  s,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.allocator == nil {
		m.allocator = sequence.New(s,
			sequence.WithLogger(m.logger),
			sequence.WithMetrics(m.metrics),
		)
	}
	if m.registry == nil {
		m.registry = NewRegistry()
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() store.Store {
	return m.store
}

// Registry returns the manager's kind registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Register adds kinds to the manager's registry.
func (m *Manager) Register(kinds ...*Kind) error {
	for _, k := range kinds {
		if err := m.registry.Register(k); err != nil {
			return err
		}
	}
	return nil
}

// New constructs a document of kind bound to this manager.
func (m *Manager) New(kind *Kind, raw map[string]any) (*Document, error) {
	d, err := kind.New(raw)
	if err != nil {
		return nil, err
	}
	return d.Bind(m), nil
}

// Save binds d to this manager and runs the save lifecycle.
func (m *Manager) Save(ctx context.Context, d *Document) (bool, error) {
	d.Bind(m)
	return d.save(ctx)
}

// Delete binds d to this manager and runs the delete lifecycle.
func (m *Manager) Delete(ctx context.Context, d *Document) (bool, error) {
	d.Bind(m)
	return d.delete(ctx)
}

// Get returns every document of kind matching criteria.
func (m *Manager) Get(ctx context.Context, kind *Kind, criteria store.Criteria) ([]*Document, error) {
	crit, err := kind.Criteria(criteria)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	recs, err := m.store.Find(ctx, kind.collection, crit)
	m.observe("find", start)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", kind.collection, err)
	}

	docs := make([]*Document, 0, len(recs))
	for _, rec := range recs {
		d, err := m.New(kind, rec)
		if err != nil {
			return nil, fmt.Errorf("load %s %s: %w", kind.collection, rec.Identity(), err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Retrieve returns the first document of kind matching criteria, or
// store.ErrNotFound.
func (m *Manager) Retrieve(ctx context.Context, kind *Kind, criteria store.Criteria) (*Document, error) {
	crit, err := kind.Criteria(criteria)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rec, err := m.store.FindOne(ctx, kind.collection, crit)
	m.observe("find_one", start)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", kind.collection, err)
	}

	d, err := m.New(kind, rec)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", kind.collection, rec.Identity(), err)
	}
	return d, nil
}

// Count returns the number of records in collection matching criteria.
// Criteria are passed to the store unchanged.
func (m *Manager) Count(ctx context.Context, collection string, criteria store.Criteria) (int64, error) {
	start := time.Now()
	n, err := m.store.Count(ctx, collection, criteria)
	m.observe("count", start)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// CountOf counts documents of kind, coercing criteria with the kind's fields.
func (m *Manager) CountOf(ctx context.Context, kind *Kind, criteria store.Criteria) (int64, error) {
	crit, err := kind.Criteria(criteria)
	if err != nil {
		return 0, err
	}
	return m.Count(ctx, kind.collection, crit)
}

// Remove deletes every document of kind matching criteria. Empty criteria
// return ErrNotAllowed; hooks do not run.
func (m *Manager) Remove(ctx context.Context, kind *Kind, criteria store.Criteria) (int64, error) {
	if len(criteria) == 0 {
		return 0, ErrNotAllowed
	}
	crit, err := kind.Criteria(criteria)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	n, err := m.store.RemoveMatching(ctx, kind.collection, crit)
	m.observe("remove_matching", start)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", kind.collection, err)
	}
	m.logger.Info().Str("collection", kind.collection).Int64("removed", n).Msg("bulk remove")
	return n, nil
}

// NextSequenceValue allocates the next value of the named sequence.
func (m *Manager) NextSequenceValue(ctx context.Context, name string) (int64, error) {
	return m.allocator.Next(ctx, name)
}

func (m *Manager) upsert(ctx context.Context, collection string, rec store.Record) (string, error) {
	start := time.Now()
	defer m.observe("upsert", start)
	return m.store.Upsert(ctx, collection, rec)
}

// remove deletes d by identity, or by matching its full value map when it has
// none. A document with neither returns ErrNotAllowed.
func (m *Manager) remove(ctx context.Context, d *Document) error {
	coll := d.kind.collection
	start := time.Now()

	if id := d.ID(); id != "" {
		defer m.observe("remove", start)
		if err := m.store.RemoveByIdentity(ctx, coll, id); err != nil {
			return fmt.Errorf("delete %s %s: %w", coll, id, err)
		}
		m.logger.Debug().Str("collection", coll).Str("id", id).Msg("document deleted")
		return nil
	}

	rec := d.Record()
	if len(rec) == 0 {
		return ErrNotAllowed
	}

	defer m.observe("remove_matching", start)
	n, err := m.store.RemoveMatching(ctx, coll, store.Criteria(rec))
	if err != nil {
		return fmt.Errorf("delete %s: %w", coll, err)
	}
	m.logger.Debug().Str("collection", coll).Int64("removed", n).Msg("document deleted by value")
	return nil
}

func (m *Manager) observe(op string, start time.Time) {
	m.metrics.ObserveStore(op, time.Since(start).Seconds())
}
