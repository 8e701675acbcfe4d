package query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/secrepo/secrepo/convert"
	"github.com/secrepo/secrepo/kvstore"
	"github.com/secrepo/secrepo/parser"
	"github.com/secrepo/secrepo/query"
	"github.com/secrepo/secrepo/testutil"
	"github.com/secrepo/secrepo/types"
)

func newExecutor(t *testing.T, u *testutil.Universe, store kvstore.Store) *query.Executor {
	t.Helper()
	if store == nil {
		store = u.Store
	}
	return query.NewExecutor(store, convert.New(u.Registry), u.Meta)
}

func parse(t *testing.T, method string) *types.QueryDescriptor {
	t.Helper()
	qd, err := parser.Parse(method, "Id")
	if err != nil {
		t.Fatalf("parsing %q: %v", method, err)
	}
	return qd
}

func resultIDs(t *testing.T, entities []any) []string {
	t.Helper()
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		c, ok := e.(*testutil.Credentials)
		if !ok {
			t.Fatalf("result has type %T", e)
		}
		out = append(out, c.ID)
	}
	return out
}

func TestFindInListingOrder(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2", "a3", "b1")
	exec := newExecutor(t, u, nil)

	entities, err := exec.Find(context.Background(), parse(t, "findByIdStartsWith"), []any{"a"}, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "a3"}, resultIDs(t, entities)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestResultsIndependentOfListingOrder(t *testing.T) {
	orders := map[string]func([]string) []string{
		"reversed": func(keys []string) []string {
			out := make([]string, len(keys))
			for i, k := range keys {
				out[len(keys)-1-i] = k
			}
			return out
		},
		"rotated": func(keys []string) []string {
			if len(keys) < 2 {
				return keys
			}
			return append(keys[1:], keys[0])
		},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			u := testutil.NewUniverse(t)
			u.Seed(t, "a1", "a2", "a3", "b1")
			u.Store.SetListOrder(order)
			exec := newExecutor(t, u, nil)

			qd := parse(t, "findTop2ByIdStartsWithOrderByIdDesc")
			entities, err := exec.Find(context.Background(), qd, []any{"a"}, nil)
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if diff := cmp.Diff([]string{"a3", "a2"}, resultIDs(t, entities)); diff != "" {
				t.Errorf("listing order leaked into the result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortFetchesAllBeforeLimit(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2", "a3", "b1")
	counting := testutil.NewCountingStore(u.Store)
	exec := newExecutor(t, u, counting)

	qd := parse(t, "findTop2ByIdStartsWithOrderByRankDesc")
	entities, err := exec.Find(context.Background(), qd, []any{"a"}, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{"a3", "a2"}, resultIDs(t, entities)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	// The limit applies to post-sort order, so every match is fetched.
	if counting.Reads != 3 {
		t.Errorf("Reads = %d, want 3 (all matches before truncation)", counting.Reads)
	}
}

func TestLimitWithoutSortFetchesOnlyWindow(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2", "a3", "b1")
	counting := testutil.NewCountingStore(u.Store)
	exec := newExecutor(t, u, counting)

	entities, err := exec.Find(context.Background(), parse(t, "findTop2ByIdStartsWith"), []any{"a"}, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "a2"}, resultIDs(t, entities)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if counting.Reads != 2 {
		t.Errorf("Reads = %d, want 2 (only the window)", counting.Reads)
	}
}

func TestCountAndExistsNeverFetch(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2", "a3", "b1")
	counting := testutil.NewCountingStore(u.Store)
	exec := newExecutor(t, u, counting)

	n, err := exec.Count(context.Background(), parse(t, "countByIdStartsWith"), []any{"a"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	ok, err := exec.Exists(context.Background(), parse(t, "existsById"), []any{"b1"})
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists = false, want true")
	}

	if counting.Reads != 0 {
		t.Errorf("Reads = %d, count and exists must not fetch", counting.Reads)
	}
}

func TestMissingKeyspaceIsEmptyResult(t *testing.T) {
	u := testutil.NewUniverse(t)
	exec := newExecutor(t, u, nil)

	entities, err := exec.Find(context.Background(), parse(t, "findByIdStartsWith"), []any{"a"}, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("got %d entities from an absent keyspace", len(entities))
	}

	n, err := exec.Count(context.Background(), parse(t, "countByIdStartsWith"), []any{"a"})
	if err != nil || n != 0 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

// vanishStore simulates entries deleted between listing and fetch.
type vanishStore struct {
	kvstore.Store
	gone map[string]bool
}

func (v *vanishStore) Read(ctx context.Context, path string) (types.Document, error) {
	if v.gone[path] {
		return nil, types.ErrNotFound
	}
	return v.Store.Read(ctx, path)
}

func TestVanishedEntryExcluded(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2", "a3")
	store := &vanishStore{Store: u.Store, gone: map[string]bool{"credentials/a2": true}}
	exec := newExecutor(t, u, store)

	entities, err := exec.Find(context.Background(), parse(t, "findByIdStartsWith"), []any{"a"}, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "a3"}, resultIDs(t, entities)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreFailureAbortsQuery(t *testing.T) {
	t.Run("read failure", func(t *testing.T) {
		u := testutil.NewUniverse(t)
		u.Seed(t, "a1", "a2", "a3")
		store := &testutil.FailingStore{Store: u.Store, ReadErr: errors.New("sealed"), ReadErrAfter: 1}
		exec := newExecutor(t, u, store)

		entities, err := exec.Find(context.Background(), parse(t, "findByIdStartsWith"), []any{"a"}, nil)
		if !errors.Is(err, types.ErrStoreUnavailable) {
			t.Fatalf("error = %v, want ErrStoreUnavailable", err)
		}
		if entities != nil {
			t.Errorf("got partial results alongside the error: %v", resultIDs(t, entities))
		}
	})

	t.Run("list failure", func(t *testing.T) {
		u := testutil.NewUniverse(t)
		u.Seed(t, "a1")
		store := &testutil.FailingStore{Store: u.Store, ListErr: errors.New("sealed")}
		exec := newExecutor(t, u, store)

		_, err := exec.Find(context.Background(), parse(t, "findByIdStartsWith"), []any{"a"}, nil)
		if !errors.Is(err, types.ErrStoreUnavailable) {
			t.Errorf("error = %v, want ErrStoreUnavailable", err)
		}
	})
}

func TestCancellation(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2")
	exec := newExecutor(t, u, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Find(ctx, parse(t, "findByIdStartsWith"), []any{"a"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDeleteByPredicate(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2", "a3", "b1")
	exec := newExecutor(t, u, nil)

	n, err := exec.Delete(context.Background(), parse(t, "deleteByIdStartsWith"), []any{"a"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 3 {
		t.Errorf("Delete = %d, want 3", n)
	}
	if u.Store.Len() != 1 {
		t.Errorf("store has %d entries left, want 1", u.Store.Len())
	}
}

func TestFindPagedWindow(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2", "a3", "b1")
	exec := newExecutor(t, u, nil)

	page := &types.PageRequest{Offset: 1, Limit: 2, Sort: &types.Sort{Field: "Rank"}}
	entities, total, err := exec.FindPaged(context.Background(), parse(t, "findByIdStartsWith"), []any{"a"}, page)
	if err != nil {
		t.Fatalf("FindPaged: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 (the complete filtered set)", total)
	}
	if diff := cmp.Diff([]string{"a2", "a3"}, resultIDs(t, entities)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestCallerSortOverridesStaticOrderBy(t *testing.T) {
	u := testutil.NewUniverse(t)
	u.Seed(t, "a1", "a2", "a3")
	exec := newExecutor(t, u, nil)

	qd := parse(t, "findByIdStartsWithOrderByIdDesc")
	page := &types.PageRequest{Sort: &types.Sort{Field: "Rank"}}
	entities, err := exec.Find(context.Background(), qd, []any{"a"}, page)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "a3"}, resultIDs(t, entities)); diff != "" {
		t.Errorf("caller sort did not win (-want +got):\n%s", diff)
	}
}

func TestSortTieBreaksOnID(t *testing.T) {
	u := testutil.NewUniverse(t)
	for _, id := range []string{"c3", "c1", "c2"} {
		doc := types.Document{"id": id, "username": "u", "password": "p", "rank": int64(9)}
		if err := u.Store.Write(context.Background(), "credentials/"+id, doc); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	u.Store.SetListOrder(func(keys []string) []string { return keys })
	exec := newExecutor(t, u, nil)

	qd := parse(t, "findByIdStartsWithOrderByRankAsc")
	entities, err := exec.Find(context.Background(), qd, []any{"c"}, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	// Equal sort keys fall back to identifier order.
	if diff := cmp.Diff([]string{"c1", "c2", "c3"}, resultIDs(t, entities)); diff != "" {
		t.Errorf("tie-break mismatch (-want +got):\n%s", diff)
	}
}
