//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
//
// Credentials come from the default AWS chain. Set DOCMAP_E2E_PROFILE to use a
// shared config profile and DOCMAP_E2E_ENDPOINT to target DynamoDB Local.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/docmap/mapper"
	"github.com/jacentio/docmap/sequence"
	"github.com/jacentio/docmap/store"
	"github.com/jacentio/docmap/store/dynamo"
)

var (
	testID      string
	tablePrefix string
	collections = []string{"customers", "invoices", sequence.DefaultCollection}

	ddbClient *dynamodb.Client
	testStore *dynamo.Store
	manager   *mapper.Manager
)

var (
	customers = mapper.NewKind("customers", []mapper.FieldSpec{
		mapper.Field(mapper.String, "name", mapper.Required()),
		mapper.Field(mapper.String, "email"),
		mapper.Field(mapper.Bool, "active", mapper.Default(true)),
	})

	lines = mapper.NewKind("lines", []mapper.FieldSpec{
		mapper.Field(mapper.String, "sku", mapper.Required()),
		mapper.Field(mapper.Int, "qty"),
	})

	invoices = mapper.NewKind("invoices", []mapper.FieldSpec{
		mapper.AutoIncrementField("number", "invoices"),
		mapper.Field(mapper.String, "customer", mapper.Required()),
		mapper.Field(mapper.Float, "total"),
		mapper.Field(mapper.Time, "issued"),
		mapper.ListOfDocumentsField(lines, "lines"),
	})
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	tablePrefix = fmt.Sprintf("docmap-e2e-%s-", testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Table prefix: %s\n", tablePrefix)

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if profile := os.Getenv("DOCMAP_E2E_PROFILE"); profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	endpoint := os.Getenv("DOCMAP_E2E_ENDPOINT")
	ddbClient = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	if err := createTables(ctx); err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		os.Exit(1)
	}

	testStore = dynamo.New(ddbClient, dynamo.Config{
		TablePrefix:    tablePrefix,
		ScanSegments:   2,
		ConsistentRead: true,
	})
	manager = mapper.NewManager(testStore)
	if err := manager.Register(customers, invoices); err != nil {
		fmt.Printf("Failed to register kinds: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := deleteTables(ctx); err != nil {
		fmt.Printf("Failed to delete tables: %v\n", err)
	}

	os.Exit(code)
}

func createTables(ctx context.Context) error {
	fmt.Println("Creating test tables...")

	for _, c := range collections {
		_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(tablePrefix + c),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(store.IDField), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(store.IDField), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("create table %s: %w", c, err)
		}
	}

	for _, c := range collections {
		waiter := dynamodb.NewTableExistsWaiter(ddbClient)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tablePrefix + c),
		}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", c, err)
		}
	}

	fmt.Println("All tables created and active")
	return nil
}

func deleteTables(ctx context.Context) error {
	fmt.Println("Deleting test tables...")

	for _, c := range collections {
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(tablePrefix + c),
		})
		if err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", c, err)
		}
	}

	fmt.Println("Tables deleted")
	return nil
}

// --- Document Tests ---

func TestSave_AssignsIdentity(t *testing.T) {
	ctx := context.Background()

	d, err := manager.New(customers, map[string]any{"name": "Ada", "email": "ada@example.com"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if ok, err := d.Save(ctx); !ok || err != nil {
		t.Fatalf("Save = %v, %v", ok, err)
	}
	if d.ID() == "" {
		t.Fatal("expected identity after save")
	}

	got, err := manager.Retrieve(ctx, customers, store.Criteria{store.IDField: d.ID()})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if name, _ := got.String("name"); name != "Ada" {
		t.Errorf("expected name Ada, got %q", name)
	}
	if active, _ := got.Bool("active"); !active {
		t.Error("expected default active=true to be persisted")
	}
}

func TestSave_UpdateInPlace(t *testing.T) {
	ctx := context.Background()

	d, _ := manager.New(customers, map[string]any{"name": "Bob"})
	if _, err := d.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	id := d.ID()

	if err := d.Set("email", "bob@example.com"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := d.Save(ctx); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if d.ID() != id {
		t.Errorf("identity changed: %q -> %q", id, d.ID())
	}

	n, err := manager.CountOf(ctx, customers, store.Criteria{"name": "Bob"})
	if err != nil {
		t.Fatalf("CountOf failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestSave_InvalidNeverWritten(t *testing.T) {
	ctx := context.Background()

	d, _ := manager.New(customers, map[string]any{"email": "nobody@example.com"})
	_, err := d.Save(ctx)

	var invalid *mapper.InvalidDocumentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDocumentError, got %v", err)
	}
	n, _ := manager.Count(ctx, "customers", store.Criteria{"email": "nobody@example.com"})
	if n != 0 {
		t.Errorf("invalid document was written, count = %d", n)
	}
}

func TestInvoice_RoundTrip(t *testing.T) {
	ctx := context.Background()
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	d, err := manager.New(invoices, map[string]any{
		"customer": "ada",
		"total":    99.5,
		"issued":   issued,
		"lines": []any{
			map[string]any{"sku": "A1", "qty": 2},
			map[string]any{"sku": "B2", "qty": 1},
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := d.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := manager.Retrieve(ctx, invoices, store.Criteria{store.IDField: d.ID()})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if n, _ := got.Int("number"); n < 1 {
		t.Errorf("expected allocated invoice number, got %d", n)
	}
	if ts, _ := got.Time("issued"); !ts.Equal(issued) {
		t.Errorf("issued = %v, want %v", ts, issued)
	}
	docs, _ := got.Docs("lines")
	if len(docs) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(docs))
	}
	if qty, _ := docs[0].Int("qty"); qty != 2 {
		t.Errorf("lines[0].qty = %d, want 2", qty)
	}
}

func TestDelete_ByIdentity(t *testing.T) {
	ctx := context.Background()

	d, _ := manager.New(customers, map[string]any{"name": "Temp"})
	if _, err := d.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ok, err := d.Delete(ctx); !ok || err != nil {
		t.Fatalf("Delete = %v, %v", ok, err)
	}

	_, err := manager.Retrieve(ctx, customers, store.Criteria{store.IDField: d.ID()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRemove_ByCriteria(t *testing.T) {
	ctx := context.Background()
	tag := "remove-" + uuid.New().String()[:6]

	for i := 0; i < 3; i++ {
		d, _ := manager.New(customers, map[string]any{"name": tag})
		if _, err := d.Save(ctx); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if _, err := manager.Remove(ctx, customers, nil); !errors.Is(err, mapper.ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed for empty criteria, got %v", err)
	}

	n, err := manager.Remove(ctx, customers, store.Criteria{"name": tag})
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 removed, got %d", n)
	}
}

// --- Sequence Tests ---

func TestSequence_Sequential(t *testing.T) {
	ctx := context.Background()
	name := "seq-" + uuid.New().String()[:8]

	for want := int64(1); want <= 3; want++ {
		got, err := manager.NextSequenceValue(ctx, name)
		if err != nil {
			t.Fatalf("NextSequenceValue failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
}

func TestSequence_ConcurrentUnique(t *testing.T) {
	ctx := context.Background()
	name := "race-" + uuid.New().String()[:8]
	alloc := sequence.New(testStore)

	const workers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := alloc.Next(ctx, name)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Next failed: %v", err)
	}
	if len(seen) != workers {
		t.Errorf("expected %d unique values, got %d", workers, len(seen))
	}
	for v := int64(1); v <= workers; v++ {
		if !seen[v] {
			t.Errorf("missing value %d", v)
		}
	}
}
