package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/docmap/store"
)

// Client is the subset of the DynamoDB API used by Store.
// *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements store.Store on DynamoDB. Each collection is a table with a
// string hash key named "_id".
type Store struct {
	client Client
	config Config
}

var _ store.Store = (*Store)(nil)

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.config
}

// FindOne returns the first record matching criteria.
// Criteria naming an identity are served by GetItem; anything else scans.
func (s *Store) FindOne(ctx context.Context, collection string, criteria store.Criteria) (store.Record, error) {
	if id, ok := criteria.Identity(); ok {
		rec, err := s.get(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		if !store.Matches(rec, criteria) {
			return nil, store.ErrNotFound
		}
		return rec, nil
	}

	recs, err := s.scan(ctx, collection, criteria, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

// Find returns every record matching criteria.
func (s *Store) Find(ctx context.Context, collection string, criteria store.Criteria) ([]store.Record, error) {
	if _, ok := criteria.Identity(); ok {
		rec, err := s.FindOne(ctx, collection, criteria)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []store.Record{rec}, nil
	}
	return s.scan(ctx, collection, criteria, 0)
}

// Upsert writes the full record, assigning an identity if it has none.
func (s *Store) Upsert(ctx context.Context, collection string, record store.Record) (string, error) {
	id, item, err := s.marshalRecord(record)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.tableName(collection)),
		Item:      item,
	})
	if err != nil {
		return "", fmt.Errorf("put item: %w", err)
	}
	return id, nil
}

// Insert writes the record only if its identity is not stored yet.
func (s *Store) Insert(ctx context.Context, collection string, record store.Record) (string, error) {
	id, item, err := s.marshalRecord(record)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.config.tableName(collection)),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": store.IDField},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return "", store.ErrAlreadyExists
		}
		return "", fmt.Errorf("put item: %w", err)
	}
	return id, nil
}

// RemoveByIdentity deletes the record with the given identity.
func (s *Store) RemoveByIdentity(ctx context.Context, collection string, id string) error {
	if id == "" {
		return store.ErrMissingIdentity
	}
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.tableName(collection)),
		Key:       KeyFor(id),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// RemoveMatching deletes every record matching criteria. Each delete is
// conditioned on the criteria so records changed since the scan survive.
func (s *Store) RemoveMatching(ctx context.Context, collection string, criteria store.Criteria) (int64, error) {
	ids, err := s.targets(ctx, collection, criteria)
	if err != nil {
		return 0, err
	}

	cond, err := buildCondition(criteria, "c")
	if err != nil {
		return 0, err
	}
	cond = existsCondition(cond)

	var removed int64
	for _, id := range ids {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String(s.config.tableName(collection)),
			Key:                       KeyFor(id),
			ConditionExpression:       aws.String(cond.Expr),
			ExpressionAttributeNames:  cond.Names,
			ExpressionAttributeValues: nilIfEmpty(cond.Values),
		})
		if err != nil {
			// Record changed or vanished since it was selected
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue
			}
			return removed, fmt.Errorf("delete item %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

// ConditionalUpdate applies set to every record matching match. The match is
// re-evaluated by DynamoDB as a ConditionExpression on each UpdateItem, so a
// record modified concurrently is not counted.
func (s *Store) ConditionalUpdate(ctx context.Context, collection string, match store.Criteria, set store.Record) (int64, error) {
	update, err := buildSet(set, "s")
	if err != nil {
		return 0, err
	}
	if update.empty() {
		return 0, nil
	}

	cond, err := buildCondition(match, "c")
	if err != nil {
		return 0, err
	}
	cond = existsCondition(cond)

	ids, err := s.targets(ctx, collection, match)
	if err != nil {
		return 0, err
	}

	var updated int64
	for _, id := range ids {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.config.tableName(collection)),
			Key:                       KeyFor(id),
			UpdateExpression:          aws.String(update.Expr),
			ConditionExpression:       aws.String(cond.Expr),
			ExpressionAttributeNames:  mergeExprNames(update.Names, cond.Names),
			ExpressionAttributeValues: mergeExprValues(update.Values, cond.Values),
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue
			}
			return updated, fmt.Errorf("update item %s: %w", id, err)
		}
		updated++
	}
	return updated, nil
}

// Count returns the number of records matching criteria using a COUNT scan.
func (s *Store) Count(ctx context.Context, collection string, criteria store.Criteria) (int64, error) {
	if _, ok := criteria.Identity(); ok {
		recs, err := s.Find(ctx, collection, criteria)
		return int64(len(recs)), err
	}

	var mu sync.Mutex
	var total int64
	err := s.scanPages(ctx, collection, criteria, true, func(page *dynamodb.ScanOutput) bool {
		mu.Lock()
		total += int64(page.Count)
		mu.Unlock()
		return true
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// targets resolves the identities selected by criteria.
func (s *Store) targets(ctx context.Context, collection string, criteria store.Criteria) ([]string, error) {
	if id, ok := criteria.Identity(); ok {
		return []string{id}, nil
	}
	recs, err := s.scan(ctx, collection, criteria, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		if id := r.Identity(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// get fetches one record by identity.
func (s *Store) get(ctx context.Context, collection, id string) (store.Record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.tableName(collection)),
		Key:            KeyFor(id),
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if result.Item == nil {
		return nil, store.ErrNotFound
	}
	return unmarshalRecord(result.Item)
}

// scan collects matching records. limit > 0 stops after that many records.
func (s *Store) scan(ctx context.Context, collection string, criteria store.Criteria, limit int) ([]store.Record, error) {
	var mu sync.Mutex
	var recs []store.Record
	var decodeErr error

	err := s.scanPages(ctx, collection, criteria, false, func(page *dynamodb.ScanOutput) bool {
		mu.Lock()
		defer mu.Unlock()
		for _, item := range page.Items {
			rec, err := unmarshalRecord(item)
			if err != nil {
				decodeErr = err
				return false
			}
			recs = append(recs, rec)
			if limit > 0 && len(recs) >= limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return recs, nil
}

// scanPages paginates a filtered scan, fanning out over ScanSegments parallel
// segments. fn is called for every page and may return false to stop early.
func (s *Store) scanPages(ctx context.Context, collection string, criteria store.Criteria, countOnly bool, fn func(*dynamodb.ScanOutput) bool) error {
	filter, err := buildCondition(criteria, "f")
	if err != nil {
		return err
	}

	input := func() *dynamodb.ScanInput {
		in := &dynamodb.ScanInput{
			TableName:      aws.String(s.config.tableName(collection)),
			ConsistentRead: aws.Bool(s.config.ConsistentRead),
		}
		if !filter.empty() {
			in.FilterExpression = aws.String(filter.Expr)
			in.ExpressionAttributeNames = filter.Names
			in.ExpressionAttributeValues = nilIfEmpty(filter.Values)
		}
		if countOnly {
			in.Select = types.SelectCount
		}
		return in
	}

	segments := s.config.ScanSegments
	if segments < 1 {
		segments = 1
	}

	// Fast path for a single segment (default)
	if segments == 1 {
		return scanSegment(ctx, s.client, input(), fn)
	}

	// Multi-segment fan-out with early cancellation
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stopOnce sync.Once
	stop := func(page *dynamodb.ScanOutput) bool {
		if fn(page) {
			return true
		}
		stopOnce.Do(cancel)
		return false
	}

	var wg sync.WaitGroup
	errs := make(chan error, segments)

	for segment := 0; segment < segments; segment++ {
		wg.Add(1)
		go func(segment int) {
			defer wg.Done()

			in := input()
			in.Segment = aws.Int32(int32(segment))
			in.TotalSegments = aws.Int32(int32(segments))

			if err := scanSegment(ctx, s.client, in, stop); err != nil {
				errs <- fmt.Errorf("segment %d: %w", segment, err)
			}
		}(segment)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	var firstErr error
	for err := range errs {
		if err != nil && firstErr == nil && !errors.Is(err, context.Canceled) {
			firstErr = err
		}
	}
	if firstErr == nil {
		// Our own early-stop cancellation is not an error, the caller's is.
		firstErr = parent.Err()
	}
	return firstErr
}

// scanSegment paginates a single scan input.
func scanSegment(ctx context.Context, client Client, in *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput) bool) error {
	paginator := dynamodb.NewScanPaginator(client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		if !fn(page) {
			return nil
		}
	}
	return nil
}

// marshalRecord assigns an identity if needed and converts the record to an item.
func (s *Store) marshalRecord(record store.Record) (string, map[string]types.AttributeValue, error) {
	id := record.Identity()
	if id == "" {
		id = uuid.NewString()
	}

	rec := make(map[string]any, len(record)+1)
	for k, v := range record {
		rec[k] = v
	}
	rec[store.IDField] = id

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return "", nil, fmt.Errorf("marshal record: %w", err)
	}
	return id, item, nil
}

// unmarshalRecord converts a DynamoDB item to a Record. Numbers decode as float64.
func unmarshalRecord(item map[string]types.AttributeValue) (store.Record, error) {
	var rec map[string]any
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return store.Record(rec), nil
}
