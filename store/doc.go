// Package store defines the persistence boundary of docmap.
//
// A [Store] executes single-record operations atomically: lookups by equality
// criteria, upserts keyed by the record identity ([IDField]), removals and the
// conditional update used for optimistic concurrency. The mapper layer never
// talks to a database directly; it only sees this interface.
//
// # Backends
//
//   - store/dynamo: Amazon DynamoDB, one table per collection
//   - store/sqlite: SQLite, one table per collection with JSON bodies
//   - store/memory: in-process maps, for tests and embedding
//
// # Criteria
//
// [Criteria] is an equality match on top-level record keys. An empty criteria
// matches every record in the collection. Numbers compare by value, so an
// int64 criteria value matches a float64 stored value.
//
// # Errors
//
//   - [ErrNotFound] - FindOne matched nothing
//   - [ErrAlreadyExists] - Insert hit an existing identity
//   - [ErrInvalidCollection] - collection name rejected by the backend
//   - [ErrMissingIdentity] - identity required but empty
package store
