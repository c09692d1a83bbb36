package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fintrack/internal/sheets"
)

var _ sheets.TransactionExporter = (*Store)(nil)

// Store keeps exported rows in memory. It stands in for the spreadsheet
// when none is configured.
type Store struct {
	mu     sync.Mutex
	rows   []sheets.Row
	writes int
}

func New() *Store {
	return &Store{}
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, r sheets.Row) (string, error) {
	if r.TransactionID == "" {
		return "", errors.New("row has no transaction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	s.writes++
	return fmt.Sprintf("mem:%d", s.writes), nil
}

func (s *Store) Delete(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.rows[:0]
	for _, r := range s.rows {
		if r.TransactionID != transactionID {
			out = append(out, r)
		}
	}
	s.rows = out
	return nil
}

// Rows returns a copy of the stored rows in insertion order.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}
