// Package sequence issues monotonically increasing integers per named
// sequence using optimistic concurrency against a store.Store.
//
// Each sequence is one record in the sequence collection:
//
//	{"_id": name, "seqname": name, "lastval": N}
//
// The first allocation creates the record with lastval 1. Later allocations
// compare-and-swap lastval from its current value to the next one, re-reading
// the record after every lost race.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/jacentio/docmap/metrics"
	"github.com/jacentio/docmap/store"
)

const (
	// DefaultCollection holds the sequence records.
	DefaultCollection = "sequences"

	// DefaultMaxRetries bounds the compare-and-swap loop.
	DefaultMaxRetries = 100

	nameField    = "seqname"
	lastValField = "lastval"
)

// Allocator hands out sequence values. It holds no per-sequence state and is
// safe for concurrent use.
type Allocator struct {
	store      store.Store
	collection string
	maxRetries int
	logger     zerolog.Logger
	metrics    *metrics.Collector
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithCollection overrides the collection holding sequence records.
func WithCollection(name string) Option {
	return func(a *Allocator) {
		if name != "" {
			a.collection = name
		}
	}
}

// WithMaxRetries overrides the default retry budget. Values below 1 are ignored.
func WithMaxRetries(n int) Option {
	return func(a *Allocator) {
		if n >= 1 {
			a.maxRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Allocator) { a.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Allocator) { a.metrics = m }
}

// New creates an allocator over s.
func New(s store.Store, opts ...Option) *Allocator {
	a := &Allocator{
		store:      s,
		collection: DefaultCollection,
		maxRetries: DefaultMaxRetries,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Collection returns the collection holding sequence records.
func (a *Allocator) Collection() string {
	return a.collection
}

// Next returns the next value of the named sequence.
func (a *Allocator) Next(ctx context.Context, name string) (int64, error) {
	return a.NextWithRetries(ctx, name, a.maxRetries)
}

// NextWithRetries is Next with an explicit retry budget.
func (a *Allocator) NextWithRetries(ctx context.Context, name string, maxRetries int) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("docmap: empty sequence name")
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	log := a.logger.With().Str("sequence", name).Logger()

	current, found, err := a.read(ctx, name)
	if err != nil {
		return 0, err
	}

	if !found {
		_, err := a.store.Insert(ctx, a.collection, store.Record{
			store.IDField: name,
			nameField:     name,
			lastValField:  int64(1),
		})
		switch {
		case err == nil:
			log.Debug().Int64("value", 1).Msg("sequence created")
			a.metrics.Allocation(name)
			return 1, nil
		case errors.Is(err, store.ErrAlreadyExists):
			// Another writer created it first; compete for the next value.
			log.Debug().Msg("sequence created concurrently")
			if current, _, err = a.read(ctx, name); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("create sequence %s: %w", name, err)
		}
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		next := current + 1
		n, err := a.store.ConditionalUpdate(ctx, a.collection,
			store.Criteria{store.IDField: name, lastValField: current},
			store.Record{lastValField: next},
		)
		if err != nil {
			return 0, fmt.Errorf("advance sequence %s: %w", name, err)
		}
		if n == 1 {
			log.Debug().Int64("value", next).Int("attempt", attempt).Msg("sequence advanced")
			a.metrics.Allocation(name)
			return next, nil
		}

		a.metrics.Retry(name)
		log.Debug().Int64("expected", current).Int("attempt", attempt).Msg("lost sequence race, re-reading")

		if attempt == maxRetries {
			break
		}
		if current, _, err = a.read(ctx, name); err != nil {
			return 0, err
		}
	}

	a.metrics.Exhaust(name)
	log.Warn().Int("attempts", maxRetries).Msg("sequence exhausted")
	return 0, &ExhaustedError{Sequence: name, Attempts: maxRetries, LastSeen: current}
}

// read returns the sequence's last value. found is false when the record
// does not exist yet.
func (a *Allocator) read(ctx context.Context, name string) (int64, bool, error) {
	rec, err := a.store.FindOne(ctx, a.collection, store.Criteria{store.IDField: name})
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read sequence %s: %w", name, err)
	}

	v, err := cast.ToInt64E(rec[lastValField])
	if err != nil {
		return 0, false, fmt.Errorf("read sequence %s: bad %s %v: %w", name, lastValField, rec[lastValField], err)
	}
	return v, true, nil
}
