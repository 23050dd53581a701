package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andreyvit/doctable"
)

var (
	shopOrders = doctable.CollectionID{Database: "shop", Collection: "orders"}
	shopItems  = doctable.CollectionID{Database: "shop", Collection: "items"}
	blogPosts  = doctable.CollectionID{Database: "blog", Collection: "posts"}
)

func TestStore_replaceAndLoad(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		docs := []doctable.Document{
			{"name": "Ann", "age": int64(30)},
			{"name": "Bo", "tags": []any{"x", "y"}},
			{},
		}
		ensure(s.ReplaceAll(ctx, shopOrders, docs))

		loaded := must(s.LoadAll(ctx, shopOrders))
		deepEqual(t, len(loaded), 3)
		ids := make(map[any]bool)
		for i, doc := range loaded {
			id, ok := doc[doctable.IDField].(string)
			if !ok || id == "" {
				t.Errorf("doc %d: %s = %v, wanted a non-empty string", i, doctable.IDField, doc[doctable.IDField])
			}
			ids[id] = true
			delete(doc, doctable.IDField)
		}
		deepEqual(t, len(ids), 3)
		deepEqual(t, loaded, docs)

		if _, found := docs[0][doctable.IDField]; found {
			t.Errorf("ReplaceAll modified its input")
		}
	})
}

func TestStore_replaceDiscardsOldDocumentsAndIDs(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		ensure(s.ReplaceAll(ctx, shopOrders, []doctable.Document{{"n": int64(1)}, {"n": int64(2)}, {"n": int64(3)}}))
		first := must(s.LoadAll(ctx, shopOrders))

		ensure(s.ReplaceAll(ctx, shopOrders, []doctable.Document{{"n": int64(9), doctable.IDField: first[0][doctable.IDField]}}))
		second := must(s.LoadAll(ctx, shopOrders))
		deepEqual(t, len(second), 1)
		deepEqual(t, second[0]["n"], any(int64(9)))
		if second[0][doctable.IDField] == first[0][doctable.IDField] {
			t.Errorf("incoming %s was kept", doctable.IDField)
		}

		ensure(s.ReplaceAll(ctx, shopOrders, nil))
		isempty(t, must(s.LoadAll(ctx, shopOrders)))
		deepEqual(t, must(s.Collections(ctx, "shop")), []string{"orders"})
	})
}

func TestStore_keepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		var docs []doctable.Document
		for i := range 300 {
			docs = append(docs, doctable.Document{"i": int64(i)})
		}
		ensure(s.ReplaceAll(ctx, shopOrders, docs))
		for i, doc := range must(s.LoadAll(ctx, shopOrders)) {
			if doc["i"] != int64(i) {
				t.Fatalf("doc %d has i = %v", i, doc["i"])
			}
		}
	})
}

func TestStore_listing(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		isempty(t, must(s.Databases(ctx)))
		isempty(t, must(s.Collections(ctx, "shop")))
		isempty(t, must(s.LoadAll(ctx, shopOrders)))

		ensure(s.ReplaceAll(ctx, shopOrders, []doctable.Document{{"a": "b"}}))
		ensure(s.ReplaceAll(ctx, shopItems, nil))
		ensure(s.ReplaceAll(ctx, blogPosts, nil))

		deepEqual(t, must(s.Databases(ctx)), []string{"blog", "shop"})
		deepEqual(t, must(s.Collections(ctx, "shop")), []string{"items", "orders"})
		deepEqual(t, must(s.Collections(ctx, "blog")), []string{"posts"})
	})
}

func TestStore_valueTypes(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 2, 3, 4, 5, 6, 7000, time.FixedZone("X", 3600))
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		ensure(s.ReplaceAll(ctx, shopOrders, []doctable.Document{{
			"s":     "str",
			"b":     true,
			"small": 5,
			"big":   int64(1) << 40,
			"neg":   int32(-7),
			"u":     uint8(200),
			"f":     2.5,
			"whole": 3.0,
			"at":    at,
			"null":  nil,
			"list":  []any{int64(1), "two", []any{false}},
			"obj":   map[string]any{"k": "v", "n": int64(2)},
			"doc":   doctable.Document{"inner": at},
		}}))
		doc := must(s.LoadAll(ctx, shopOrders))[0]
		delete(doc, doctable.IDField)
		deepEqual(t, doc, doctable.Document{
			"s":     "str",
			"b":     true,
			"small": int64(5),
			"big":   int64(1) << 40,
			"neg":   int64(-7),
			"u":     int64(200),
			"f":     2.5,
			"whole": 3.0,
			"at":    at.UTC(),
			"null":  nil,
			"list":  []any{int64(1), "two", []any{false}},
			"obj":   map[string]any{"k": "v", "n": int64(2)},
			"doc":   map[string]any{"inner": at.UTC()},
		})
	})
}

func TestStore_errors(t *testing.T) {
	ctx := context.Background()
	eachBackend(t, Options{}, func(t *testing.T, s *Store) {
		for _, id := range []doctable.CollectionID{{}, {Database: "db"}, {Collection: "c"}, {Database: "a\x00b", Collection: "c"}} {
			err := s.ReplaceAll(ctx, id, nil)
			if !errors.Is(err, doctable.ErrStore) {
				t.Errorf("ReplaceAll(%q) = %v, wanted ErrStore", id, err)
			}
			_, err = s.LoadAll(ctx, id)
			if !errors.Is(err, doctable.ErrStore) {
				t.Errorf("LoadAll(%q) = %v, wanted ErrStore", id, err)
			}
		}

		err := s.ReplaceAll(ctx, shopOrders, []doctable.Document{{"ch": make(chan int)}})
		var serr *doctable.StoreError
		if !errors.As(err, &serr) {
			t.Fatalf("ReplaceAll(unencodable) = %v, wanted *StoreError", err)
		}
		deepEqual(t, serr.Op, "replace_all")
		deepEqual(t, serr.Collection, shopOrders)
		isempty(t, must(s.Collections(ctx, "shop")))

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err = s.ReplaceAll(canceled, shopOrders, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ReplaceAll(canceled) = %v, wanted context.Canceled", err)
		}
		_, err = s.LoadAll(canceled, shopOrders)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("LoadAll(canceled) = %v, wanted context.Canceled", err)
		}
	})
}

func TestStore_counters(t *testing.T) {
	ctx := context.Background()
	s := setupMem(t, Options{})
	ensure(s.ReplaceAll(ctx, shopOrders, []doctable.Document{{"a": "b"}}))
	must(s.LoadAll(ctx, shopOrders))
	deepEqual(t, s.WriteCount.Load(), uint64(1))
	deepEqual(t, s.ReadCount.Load(), uint64(1))
	if s.Size() <= 0 {
		t.Errorf("Size() = %d, wanted > 0", s.Size())
	}
}

func TestStore_persistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	fn := t.TempDir() + "/reopen.db"
	s := must(Open(fn, Options{IsTesting: true, Logger: testLogger(t)}))
	ensure(s.ReplaceAll(ctx, shopOrders, []doctable.Document{{"a": "b"}}))
	ensure(s.Close())

	s = must(Open(fn, Options{Logger: testLogger(t)}))
	defer s.Close()
	docs := must(s.LoadAll(ctx, shopOrders))
	deepEqual(t, len(docs), 1)
	deepEqual(t, docs[0]["a"], any("b"))
}
