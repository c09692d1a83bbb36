// Package docstore defines a small document database abstraction: per-user
// collections of JSON documents with single-document writes, atomic
// multi-document transactions and collection subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// ErrNotFound is returned when a document does not exist. It matches core.ErrNotFound.
var ErrNotFound = fmt.Errorf("document %w", core.ErrNotFound)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("document store closed")

// Scope identifies the namespace all collections of one user live under.
type Scope struct {
	AppID  string
	UserID string
}

func (s Scope) Collection(name string) Collection {
	return Collection{AppID: s.AppID, UserID: s.UserID, Name: name}
}

// Collection is one logical collection inside a user's namespace.
type Collection struct {
	AppID  string
	UserID string
	Name   string
}

// Path returns the namespaced collection path, artifacts/{app}/users/{uid}/{name}.
func (c Collection) Path() string {
	return "artifacts/" + c.AppID + "/users/" + c.UserID + "/" + c.Name
}

func (c Collection) Scope() Scope {
	return Scope{AppID: c.AppID, UserID: c.UserID}
}

// Doc returns a reference to the document id inside the collection.
func (c Collection) Doc(id string) Ref {
	return Ref{Collection: c, ID: id}
}

// Ref addresses a single document.
type Ref struct {
	Collection Collection
	ID         string
}

func (r Ref) String() string {
	return r.Collection.Path() + "/" + r.ID
}

// Document is a stored JSON object. Data always carries an "id" member equal to ID.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the full current content of a collection.
type Snapshot struct {
	Collection Collection
	Documents  []Document
}

// Tx is a read-modify-write unit. Reads observe the transaction's own staged
// writes. Nothing is visible to other readers until the transaction commits.
type Tx interface {
	Get(ref Ref) (Document, error)
	List(c Collection) ([]Document, error)
	// Set creates or overwrites a document.
	Set(ref Ref, data any) error
	// Update merges fields into an existing document.
	Update(ref Ref, fields map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ref Ref) error
}

// TxFunc is run by RunTransaction. Returning an error aborts with no writes applied.
type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	Get(ctx context.Context, ref Ref) (Document, error)
	List(ctx context.Context, c Collection) ([]Document, error)
	// Insert stores data under a freshly generated id and returns it.
	Insert(ctx context.Context, c Collection, data any) (string, error)
	// Replace merges fields into an existing document.
	Replace(ctx context.Context, ref Ref, fields map[string]any) error
	Delete(ctx context.Context, ref Ref) error
	// Commit applies every operation of the batch or none of them.
	Commit(ctx context.Context, b *Batch) error
	RunTransaction(ctx context.Context, fn TxFunc) error
	// Subscribe streams the current snapshot of c, then a fresh snapshot after
	// every commit that touches c. Slow readers only see the latest snapshot.
	// The channel is closed when ctx ends or the store is closed.
	Subscribe(ctx context.Context, c Collection) (<-chan Snapshot, error)
	// NewID returns a fresh document id.
	NewID() string
	Close() error
}
