package memory

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/sheets"

	"github.com/shopspring/decimal"
)

func TestMemoryStoreAppendAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx := core.Transaction{
		ID:       "t1",
		Type:     core.Expense,
		Amount:   decimal.RequireFromString("12.5"),
		Category: "Groceries",
		Date:     time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	ref, err := s.Append(ctx, sheets.RowFromTransaction(tx, "Wallet"))
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if _, err := s.Append(ctx, sheets.Row{TransactionID: "t2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows := s.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Amount != "-12.50" || rows[0].Date != "2025-03-10" || rows[0].Account != "Wallet" {
		t.Fatalf("unexpected row %+v", rows[0])
	}

	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete of a missing row: %v", err)
	}
	rows = s.Rows()
	if len(rows) != 1 || rows[0].TransactionID != "t2" {
		t.Fatalf("unexpected rows after delete: %+v", rows)
	}
}

func TestMemoryStoreRejectsRowWithoutID(t *testing.T) {
	if _, err := New().Append(context.Background(), sheets.Row{}); err == nil {
		t.Fatal("expected error for row without id")
	}
}
