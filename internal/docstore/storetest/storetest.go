// Package storetest holds behaviour checks shared by every docstore backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

type item struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

var scope = docstore.Scope{AppID: "test-app", UserID: "u1"}

// Run exercises the docstore.Store contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Run("InsertGetReplaceDelete", func(t *testing.T) { testCRUD(t, newStore(t)) })
	t.Run("ListKeepsInsertionOrder", func(t *testing.T) { testListOrder(t, newStore(t)) })
	t.Run("UsersAreIsolated", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("TransactionAbortLeavesNoWrites", func(t *testing.T) { testAbort(t, newStore(t)) })
	t.Run("TransactionSeesOwnWrites", func(t *testing.T) { testReadYourWrites(t, newStore(t)) })
	t.Run("BatchIsAtomic", func(t *testing.T) { testBatch(t, newStore(t)) })
	t.Run("SubscribeDeliversSnapshots", func(t *testing.T) { testSubscribe(t, newStore(t)) })
}

func testCRUD(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	c := scope.Collection("items")

	id, err := s.Insert(ctx, c, item{Name: "first", Count: 1})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id == "" {
		t.Fatalf("Insert returned empty id")
	}

	doc, err := s.Get(ctx, c.Doc(id))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := docstore.Decode[item](doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != id || got.Name != "first" || got.Count != 1 {
		t.Fatalf("unexpected document %+v", got)
	}

	if err := s.Replace(ctx, c.Doc(id), map[string]any{"count": 5}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	doc, _ = s.Get(ctx, c.Doc(id))
	got, _ = docstore.Decode[item](doc)
	if got.Count != 5 || got.Name != "first" {
		t.Fatalf("Replace should merge fields, got %+v", got)
	}

	if err := s.Replace(ctx, c.Doc("missing"), map[string]any{"count": 1}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Replace on missing doc: expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, c.Doc(id)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, c.Doc(id)); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, c.Doc(id)); err != nil {
		t.Fatalf("Delete of missing doc should succeed, got %v", err)
	}
}

func testListOrder(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	c := scope.Collection("items")
	names := []string{"a", "b", "c"}
	for _, n := range names {
		if _, err := s.Insert(ctx, c, item{Name: n}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	docs, err := s.List(ctx, c)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	items, err := docstore.DecodeAll[item](docs)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(items) != len(names) {
		t.Fatalf("expected %d items, got %d", len(names), len(items))
	}
	for i, n := range names {
		if items[i].Name != n {
			t.Fatalf("position %d: expected %q, got %q", i, n, items[i].Name)
		}
	}
}

func testIsolation(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	mine := scope.Collection("items")
	theirs := docstore.Scope{AppID: scope.AppID, UserID: "u2"}.Collection("items")
	if _, err := s.Insert(ctx, mine, item{Name: "mine"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	docs, err := s.List(ctx, theirs)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected other user's collection to be empty, got %d docs", len(docs))
	}
}

func testAbort(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	c := scope.Collection("items")
	id, _ := s.Insert(ctx, c, item{Name: "keep", Count: 1})

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Update(c.Doc(id), map[string]any{"count": 99}); err != nil {
			return err
		}
		if err := tx.Set(c.Doc("new"), item{Name: "new"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	doc, _ := s.Get(ctx, c.Doc(id))
	got, _ := docstore.Decode[item](doc)
	if got.Count != 1 {
		t.Fatalf("aborted update leaked: count=%d", got.Count)
	}
	if _, err := s.Get(ctx, c.Doc("new")); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("aborted insert leaked: %v", err)
	}
}

func testReadYourWrites(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	c := scope.Collection("items")
	keep, _ := s.Insert(ctx, c, item{Name: "keep"})
	gone, _ := s.Insert(ctx, c, item{Name: "gone"})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Set(c.Doc("added"), item{Name: "added"}); err != nil {
			return err
		}
		if err := tx.Update(c.Doc(keep), map[string]any{"count": 7}); err != nil {
			return err
		}
		if err := tx.Delete(c.Doc(gone)); err != nil {
			return err
		}
		got, err := docstore.GetAs[item](tx, c.Doc(keep))
		if err != nil {
			return err
		}
		if got.Count != 7 {
			t.Errorf("expected staged count 7, got %d", got.Count)
		}
		items, err := docstore.ListAs[item](tx, c)
		if err != nil {
			return err
		}
		if len(items) != 2 {
			t.Errorf("expected 2 visible items in tx, got %d", len(items))
		}
		if _, err := tx.Get(c.Doc(gone)); !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("deleted doc still visible in tx: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	docs, _ := s.List(ctx, c)
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs after commit, got %d", len(docs))
	}
}

func testBatch(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	c := scope.Collection("items")
	id, _ := s.Insert(ctx, c, item{Name: "x"})

	b := docstore.NewBatch().
		Set(c.Doc("b1"), item{Name: "b1"}).
		Update(c.Doc("missing"), map[string]any{"count": 1})
	if err := s.Commit(ctx, b); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected failing batch to report ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, c.Doc("b1")); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("failed batch must not apply earlier ops")
	}

	b = docstore.NewBatch().
		Set(c.Doc("b1"), item{Name: "b1"}).
		Delete(c.Doc(id))
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	docs, _ := s.List(ctx, c)
	if len(docs) != 1 || docs[0].ID != "b1" {
		t.Fatalf("unexpected state after batch: %+v", docs)
	}
}

func testSubscribe(t *testing.T, s docstore.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := scope.Collection("items")
	if _, err := s.Insert(ctx, c, item{Name: "before"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ch, err := s.Subscribe(ctx, c)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	first := receive(t, ch)
	if len(first.Documents) != 1 {
		t.Fatalf("initial snapshot: expected 1 doc, got %d", len(first.Documents))
	}

	if _, err := s.Insert(ctx, c, item{Name: "after"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed early")
			}
			if len(snap.Documents) == 2 {
				cancel()
				drainUntilClosed(t, ch)
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for post-commit snapshot")
		}
	}
}

func receive(t *testing.T, ch <-chan docstore.Snapshot) docstore.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return docstore.Snapshot{}
}

func drainUntilClosed(t *testing.T, ch <-chan docstore.Snapshot) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("subscription not closed after cancel")
		}
	}
}
