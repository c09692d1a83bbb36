package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"fintrack/internal/docstore"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a docstore.Store persisting documents as JSON rows.
type SQLiteStore struct {
	db     *sql.DB
	broker *docstore.Broker
}

var _ docstore.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes write transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite document store ready", "path", dbPath)

	return &SQLiteStore{db: db, broker: docstore.NewBroker()}, nil
}

func (s *SQLiteStore) Close() error {
	s.broker.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) NewID() string {
	return uuid.NewString()
}

func (s *SQLiteStore) Get(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	return getDocument(ctx, s.db, ref)
}

func (s *SQLiteStore) List(ctx context.Context, c docstore.Collection) ([]docstore.Document, error) {
	return listDocuments(ctx, s.db, c)
}

func (s *SQLiteStore) Insert(ctx context.Context, c docstore.Collection, data any) (string, error) {
	id := s.NewID()
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(c.Doc(id), data)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) Replace(ctx context.Context, ref docstore.Ref, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Update(ref, fields)
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, ref docstore.Ref) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Delete(ref)
	})
}

func (s *SQLiteStore) Commit(ctx context.Context, b *docstore.Batch) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return b.Apply(tx)
	})
}

func (s *SQLiteStore) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &sqliteTx{ctx: ctx, tx: sqlTx, touched: make(map[string]struct{})}

	if err := fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	paths := make([]string, 0, len(tx.touched))
	for p := range tx.touched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	s.broker.Notify(paths...)
	return nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, c docstore.Collection) (<-chan docstore.Snapshot, error) {
	return s.broker.Subscribe(ctx, c, s.List)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const timeLayout = "2006-01-02 15:04:05.000000000"

func getDocument(ctx context.Context, q queryer, ref docstore.Ref) (docstore.Document, error) {
	var data, created, updated string
	err := q.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`,
		ref.Collection.Path(), ref.ID,
	).Scan(&data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s: %w", ref, err)
	}
	return docstore.Document{
		ID:        ref.ID,
		Data:      json.RawMessage(data),
		CreatedAt: parseTime(created),
		UpdatedAt: parseTime(updated),
	}, nil
}

func listDocuments(ctx context.Context, q queryer, c docstore.Collection) ([]docstore.Document, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? ORDER BY rowid`,
		c.Path(),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.Path(), err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var id, data, created, updated string
		if err := rows.Scan(&id, &data, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.Path(), err)
		}
		out = append(out, docstore.Document{
			ID:        id,
			Data:      json.RawMessage(data),
			CreatedAt: parseTime(created),
			UpdatedAt: parseTime(updated),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c.Path(), err)
	}
	return out, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type sqliteTx struct {
	ctx     context.Context
	tx      *sql.Tx
	touched map[string]struct{}
}

func (t *sqliteTx) Get(ref docstore.Ref) (docstore.Document, error) {
	return getDocument(t.ctx, t.tx, ref)
}

func (t *sqliteTx) List(c docstore.Collection) ([]docstore.Document, error) {
	return listDocuments(t.ctx, t.tx, c)
}

func (t *sqliteTx) Set(ref docstore.Ref, data any) error {
	raw, err := docstore.Encode(ref.ID, data)
	if err != nil {
		return err
	}
	return t.upsert(ref, raw)
}

func (t *sqliteTx) Update(ref docstore.Ref, fields map[string]any) error {
	doc, err := t.Get(ref)
	if err != nil {
		return err
	}
	merged, err := docstore.Merge(doc.Data, fields)
	if err != nil {
		return err
	}
	return t.upsert(ref, merged)
}

func (t *sqliteTx) Delete(ref docstore.Ref) error {
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		ref.Collection.Path(), ref.ID,
	); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	t.touched[ref.Collection.Path()] = struct{}{}
	return nil
}

func (t *sqliteTx) upsert(ref docstore.Ref, data json.RawMessage) error {
	now := time.Now().UTC().Format(timeLayout)
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		ref.Collection.Path(), ref.ID, string(data), now, now,
	); err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	t.touched[ref.Collection.Path()] = struct{}{}
	return nil
}
