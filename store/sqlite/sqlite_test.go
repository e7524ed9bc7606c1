package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/docmap/store"
	"github.com/jacentio/docmap/store/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "docmap.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsert_AssignsAndReplaces(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, err := s.Upsert(ctx, "widgets", store.Record{"name": "bolt", "size": 4})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if id == "" {
		t.Fatal("Upsert() returned empty identity")
	}

	got, err := s.FindOne(ctx, "widgets", store.Criteria{store.IDField: id})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	want := store.Record{store.IDField: id, "name": "bolt", "size": float64(4)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindOne() mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Upsert(ctx, "widgets", store.Record{store.IDField: id, "name": "nut"}); err != nil {
		t.Fatalf("Upsert() replace error = %v", err)
	}
	got, err = s.FindOne(ctx, "widgets", store.Criteria{store.IDField: id})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	want = store.Record{store.IDField: id, "name": "nut"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindOne() after replace mismatch (-want +got):\n%s", diff)
	}

	n, err := s.Count(ctx, "widgets", nil)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestInsert_Conflict(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	if _, err := s.Insert(ctx, "sequences", store.Record{store.IDField: "orders", "lastval": 1}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	_, err := s.Insert(ctx, "sequences", store.Record{store.IDField: "orders", "lastval": 1})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("Insert() duplicate error = %v, want ErrAlreadyExists", err)
	}
}

func TestFind_Criteria(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	seed := []store.Record{
		{"name": "a", "n": 1, "active": true, "tags": []string{"x", "y"}},
		{"name": "b", "n": 2, "active": false, "tags": []string{"x"}},
		{"name": "c", "n": 2, "active": true, "opt": nil},
	}
	for _, r := range seed {
		if _, err := s.Upsert(ctx, "items", r); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	tests := []struct {
		name     string
		criteria store.Criteria
		want     []string
	}{
		{name: "all", criteria: nil, want: []string{"a", "b", "c"}},
		{name: "string", criteria: store.Criteria{"name": "b"}, want: []string{"b"}},
		{name: "int matches float", criteria: store.Criteria{"n": 2}, want: []string{"b", "c"}},
		{name: "bool", criteria: store.Criteria{"active": true}, want: []string{"a", "c"}},
		{name: "list", criteria: store.Criteria{"tags": []any{"x", "y"}}, want: []string{"a"}},
		{name: "nil matches missing and null", criteria: store.Criteria{"opt": nil}, want: []string{"a", "b", "c"}},
		{name: "conjunction", criteria: store.Criteria{"n": 2, "active": true}, want: []string{"c"}},
		{name: "no match", criteria: store.Criteria{"name": "z"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.Find(ctx, "items", tt.criteria)
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			var names []string
			for _, r := range recs {
				names = append(names, r["name"].(string))
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("Find() names mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindOne_NotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.FindOne(context.Background(), "empty", store.Criteria{"x": 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindOne() error = %v, want ErrNotFound", err)
	}
}

func TestInvalidCollection(t *testing.T) {
	s := openStore(t)
	_, err := s.Upsert(context.Background(), `bad"; DROP TABLE x; --`, store.Record{"a": 1})
	if !errors.Is(err, store.ErrInvalidCollection) {
		t.Errorf("Upsert() error = %v, want ErrInvalidCollection", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, _ := s.Upsert(ctx, "items", store.Record{"k": "a"})
	s.Upsert(ctx, "items", store.Record{"k": "b"})
	s.Upsert(ctx, "items", store.Record{"k": "b"})

	if err := s.RemoveByIdentity(ctx, "items", id); err != nil {
		t.Fatalf("RemoveByIdentity() error = %v", err)
	}
	if err := s.RemoveByIdentity(ctx, "items", ""); !errors.Is(err, store.ErrMissingIdentity) {
		t.Errorf("RemoveByIdentity(\"\") error = %v, want ErrMissingIdentity", err)
	}

	n, err := s.RemoveMatching(ctx, "items", store.Criteria{"k": "b"})
	if err != nil {
		t.Fatalf("RemoveMatching() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RemoveMatching() = %d, want 2", n)
	}

	left, _ := s.Count(ctx, "items", nil)
	if left != 0 {
		t.Errorf("Count() after removal = %d, want 0", left)
	}
}

func TestConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	if _, err := s.Insert(ctx, "sequences", store.Record{store.IDField: "orders", "seqname": "orders", "lastval": 1}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	n, err := s.ConditionalUpdate(ctx, "sequences",
		store.Criteria{store.IDField: "orders", "lastval": 1},
		store.Record{"lastval": 2})
	if err != nil {
		t.Fatalf("ConditionalUpdate() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ConditionalUpdate() = %d, want 1", n)
	}

	// Stale expected value no longer matches.
	n, err = s.ConditionalUpdate(ctx, "sequences",
		store.Criteria{store.IDField: "orders", "lastval": 1},
		store.Record{"lastval": 2})
	if err != nil {
		t.Fatalf("ConditionalUpdate() stale error = %v", err)
	}
	if n != 0 {
		t.Errorf("ConditionalUpdate() stale = %d, want 0", n)
	}

	got, err := s.FindOne(ctx, "sequences", store.Criteria{store.IDField: "orders"})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	want := store.Record{store.IDField: "orders", "seqname": "orders", "lastval": float64(2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestConditionalUpdate_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	if _, err := s.Insert(ctx, "sequences", store.Record{store.IDField: "c", "lastval": 5}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.ConditionalUpdate(ctx, "sequences",
				store.Criteria{store.IDField: "c", "lastval": 5},
				store.Record{"lastval": 6})
			if err != nil {
				t.Errorf("ConditionalUpdate() error = %v", err)
				return
			}
			mu.Lock()
			wins += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners = %d, want 1", wins)
	}
}

func TestConditionalUpdate_EmptySet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	s.Upsert(ctx, "items", store.Record{"k": "a"})

	n, err := s.ConditionalUpdate(ctx, "items", store.Criteria{"k": "a"}, store.Record{store.IDField: "ignored"})
	if err != nil {
		t.Fatalf("ConditionalUpdate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("ConditionalUpdate() = %d, want 0", n)
	}
}

func TestStoreInterface(t *testing.T) {
	var _ store.Store = (*sqlite.Store)(nil)
}
