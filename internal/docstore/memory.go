package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memDoc struct {
	data      json.RawMessage
	seq       uint64
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore keeps documents in process memory. Transactions run under a
// store-wide lock, so they are serializable.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]map[string]*memDoc // collection path -> id -> doc
	seq    uint64
	closed bool
	broker *Broker
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]*memDoc),
		broker: NewBroker(),
		now:    time.Now,
	}
}

func (s *MemoryStore) NewID() string {
	return uuid.NewString()
}

func (s *MemoryStore) Get(ctx context.Context, ref Ref) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Document{}, ErrClosed
	}
	d, ok := s.docs[ref.Collection.Path()][ref.ID]
	if !ok {
		return Document{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return d.document(ref.ID), nil
}

func (s *MemoryStore) List(ctx context.Context, c Collection) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.listLocked(c.Path()), nil
}

func (s *MemoryStore) listLocked(path string) []Document {
	coll := s.docs[path]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return coll[ids[i]].seq < coll[ids[j]].seq })
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, coll[id].document(id))
	}
	return out
}

func (s *MemoryStore) Insert(ctx context.Context, c Collection, data any) (string, error) {
	id := s.NewID()
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(c.Doc(id), data)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Replace(ctx context.Context, ref Ref, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(ref, fields)
	})
}

func (s *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(ref)
	})
}

func (s *MemoryStore) Commit(ctx context.Context, b *Batch) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return b.Apply(tx)
	})
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	tx := &memTx{store: s, staged: make(map[string]map[string]*json.RawMessage)}
	if err := fn(ctx, tx); err != nil {
		s.mu.Unlock()
		return err
	}
	paths := tx.apply()
	s.mu.Unlock()

	s.broker.Notify(paths...)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, c Collection) (<-chan Snapshot, error) {
	return s.broker.Subscribe(ctx, c, s.List)
}

func (s *MemoryStore) Close() error {
	s.broker.Close()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (d *memDoc) document(id string) Document {
	data := make(json.RawMessage, len(d.data))
	copy(data, d.data)
	return Document{ID: id, Data: data, CreatedAt: d.createdAt, UpdatedAt: d.updatedAt}
}

// memTx stages writes; a nil entry marks a deletion.
type memTx struct {
	store  *MemoryStore
	staged map[string]map[string]*json.RawMessage
}

func (tx *memTx) lookup(ref Ref) (json.RawMessage, bool) {
	path := ref.Collection.Path()
	if w, ok := tx.staged[path][ref.ID]; ok {
		if w == nil {
			return nil, false
		}
		return *w, true
	}
	if d, ok := tx.store.docs[path][ref.ID]; ok {
		return d.data, true
	}
	return nil, false
}

func (tx *memTx) stage(ref Ref, data *json.RawMessage) {
	path := ref.Collection.Path()
	if tx.staged[path] == nil {
		tx.staged[path] = make(map[string]*json.RawMessage)
	}
	tx.staged[path][ref.ID] = data
}

func (tx *memTx) Get(ref Ref) (Document, error) {
	data, ok := tx.lookup(ref)
	if !ok {
		return Document{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return Document{ID: ref.ID, Data: append(json.RawMessage(nil), data...)}, nil
}

func (tx *memTx) List(c Collection) ([]Document, error) {
	path := c.Path()
	base := tx.store.listLocked(path)
	staged := tx.staged[path]
	out := make([]Document, 0, len(base)+len(staged))
	seen := make(map[string]bool, len(base))
	for _, d := range base {
		seen[d.ID] = true
		if w, ok := staged[d.ID]; ok {
			if w == nil {
				continue
			}
			d.Data = append(json.RawMessage(nil), (*w)...)
		}
		out = append(out, d)
	}
	newIDs := make([]string, 0)
	for id, w := range staged {
		if !seen[id] && w != nil {
			newIDs = append(newIDs, id)
		}
	}
	sort.Strings(newIDs)
	for _, id := range newIDs {
		out = append(out, Document{ID: id, Data: append(json.RawMessage(nil), (*staged[id])...)})
	}
	return out, nil
}

func (tx *memTx) Set(ref Ref, data any) error {
	raw, err := Encode(ref.ID, data)
	if err != nil {
		return err
	}
	tx.stage(ref, &raw)
	return nil
}

func (tx *memTx) Update(ref Ref, fields map[string]any) error {
	existing, ok := tx.lookup(ref)
	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	merged, err := Merge(existing, fields)
	if err != nil {
		return err
	}
	raw := json.RawMessage(merged)
	tx.stage(ref, &raw)
	return nil
}

func (tx *memTx) Delete(ref Ref) error {
	tx.stage(ref, nil)
	return nil
}

// apply publishes staged writes into the store and returns touched paths.
func (tx *memTx) apply() []string {
	s := tx.store
	now := s.now()
	paths := make([]string, 0, len(tx.staged))
	for path, writes := range tx.staged {
		paths = append(paths, path)
		for id, w := range writes {
			if w == nil {
				delete(s.docs[path], id)
				continue
			}
			if s.docs[path] == nil {
				s.docs[path] = make(map[string]*memDoc)
			}
			if d, ok := s.docs[path][id]; ok {
				d.data = *w
				d.updatedAt = now
				continue
			}
			s.seq++
			s.docs[path][id] = &memDoc{data: *w, seq: s.seq, createdAt: now, updatedAt: now}
		}
	}
	sort.Strings(paths)
	return paths
}
