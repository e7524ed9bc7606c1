// Package stream turns DynamoDB Streams events from docmap tables into typed
// document changes and dispatches them to listeners.
package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jacentio/docmap/mapper"
	"github.com/jacentio/docmap/store"
	"github.com/jacentio/docmap/store/dynamo"
)

// Operation is the kind of change carried by a stream record.
type Operation string

// Stream operations.
const (
	Insert Operation = "INSERT"
	Modify Operation = "MODIFY"
	Remove Operation = "REMOVE"
)

// Change is a single decoded stream record.
//
// Old and New are typed documents built from the images when the collection
// has a registered kind and the image coerces cleanly. OldRecord and
// NewRecord always carry the raw images.
type Change struct {
	EventID    string
	Operation  Operation
	Collection string
	ID         string

	OldRecord store.Record
	NewRecord store.Record

	Old *mapper.Document
	New *mapper.Document
}

// Listener receives changes. A returned error fails the stream record.
type Listener func(ctx context.Context, c Change) error

// Handler dispatches DynamoDB stream records to listeners by collection.
type Handler struct {
	registry    *mapper.Registry
	tablePrefix string
	logger      zerolog.Logger

	mu        sync.RWMutex
	listeners map[string][]Listener
	catchAll  []Listener
}

// Option configures a Handler.
type Option func(*Handler)

// WithTablePrefix strips prefix from table names to recover collection names.
// It should match the DynamoDB store's TablePrefix.
func WithTablePrefix(prefix string) Option {
	return func(h *Handler) { h.tablePrefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a handler. A nil registry means no typed documents are
// built and listeners only see raw records.
func NewHandler(reg *mapper.Registry, opts ...Option) *Handler {
	if reg == nil {
		reg = mapper.NewRegistry()
	}
	h := &Handler{
		registry:  reg,
		logger:    zerolog.Nop(),
		listeners: make(map[string][]Listener),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// On registers a listener for a collection.
func (h *Handler) On(collection string, l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[collection] = append(h.listeners[collection], l)
}

// OnAny registers a listener for every collection.
func (h *Handler) OnAny(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.catchAll = append(h.catchAll, l)
}

// Handle processes a stream batch. The first failing record aborts the batch
// and its error is returned so Lambda retries it.
func (h *Handler) Handle(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error().
				Err(err).
				Str("event_id", record.EventID).
				Msg("failed to process stream record")
			return err
		}
	}
	return nil
}

// HandleBatch processes a stream batch and reports partial failures. Records
// after the first failure are reported too, since Lambda resumes from the
// earliest failed sequence number.
func (h *Handler) HandleBatch(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for i, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Warn().
				Err(err).
				Str("event_id", record.EventID).
				Str("sequence_number", record.Change.SequenceNumber).
				Msg("stream record failed, reporting batch item failure")
			for _, rest := range event.Records[i:] {
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
					ItemIdentifier: rest.Change.SequenceNumber,
				})
			}
			break
		}
	}
	return resp, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	op := Operation(record.EventName)
	switch op {
	case Insert, Modify, Remove:
	default:
		return nil
	}

	collection := h.collection(record.EventSourceArn)
	listeners := h.listenersFor(collection)
	if len(listeners) == 0 {
		return nil
	}

	change, err := h.decode(op, collection, record)
	if err != nil {
		return err
	}

	h.logger.Debug().
		Str("collection", collection).
		Str("operation", string(op)).
		Str("id", change.ID).
		Int("listeners", len(listeners)).
		Msg("dispatching change")

	for _, l := range listeners {
		if err := l(ctx, change); err != nil {
			return fmt.Errorf("%s %s/%s: %w", op, collection, change.ID, err)
		}
	}
	return nil
}

func (h *Handler) decode(op Operation, collection string, record events.DynamoDBEventRecord) (Change, error) {
	c := Change{
		EventID:    record.EventID,
		Operation:  op,
		Collection: collection,
	}

	var err error
	if c.OldRecord, err = ImageRecord(record.Change.OldImage); err != nil {
		return c, fmt.Errorf("old image: %w", err)
	}
	if c.NewRecord, err = ImageRecord(record.Change.NewImage); err != nil {
		return c, fmt.Errorf("new image: %w", err)
	}

	c.ID = c.NewRecord.Identity()
	if c.ID == "" {
		c.ID = c.OldRecord.Identity()
	}
	if c.ID == "" {
		c.ID = dynamo.IdentityOf(ConvertImage(record.Change.Keys))
	}

	kind, ok := h.registry.Lookup(collection)
	if !ok {
		return c, nil
	}
	c.Old = h.document(kind, c.OldRecord)
	c.New = h.document(kind, c.NewRecord)
	return c, nil
}

// document builds a typed document, or nil when rec is empty or does not
// coerce. Listeners still see the raw record in that case.
func (h *Handler) document(kind *mapper.Kind, rec store.Record) *mapper.Document {
	if rec == nil {
		return nil
	}
	d, err := kind.New(map[string]any(rec))
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("collection", kind.Collection()).
			Str("id", rec.Identity()).
			Msg("stream image does not match kind")
		return nil
	}
	return d
}

func (h *Handler) listenersFor(collection string) []Listener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Listener, 0, len(h.listeners[collection])+len(h.catchAll))
	out = append(out, h.listeners[collection]...)
	return append(out, h.catchAll...)
}

// collection recovers the collection name from a stream ARN of the form
// arn:aws:dynamodb:region:account:table/<name>/stream/<label>.
func (h *Handler) collection(arn string) string {
	return strings.TrimPrefix(TableName(arn), h.tablePrefix)
}

// TableName extracts the table name from a stream or table ARN.
func TableName(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}
