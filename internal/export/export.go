// Package export writes a point-in-time JSON snapshot of one user's data
// to a local file or a Cloud Storage object.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

// Snapshot is every collection of one user, read consistently.
type Snapshot struct {
	AppID        string             `json:"appId"`
	UserID       string             `json:"userId"`
	ExportedAt   time.Time          `json:"exportedAt"`
	Accounts     []core.Account     `json:"accounts"`
	Transactions []core.Transaction `json:"transactions"`
	Bills        []core.Bill        `json:"bills"`
	Budgets      []core.Budget      `json:"budgets"`
	Goals        []core.Goal        `json:"goals"`
	Savings      []core.Savings     `json:"savings"`
}

// Writer stores an encoded snapshot somewhere.
type Writer interface {
	Write(ctx context.Context, s Snapshot) error
}

// Build reads all collections of scope inside one transaction.
func Build(ctx context.Context, store docstore.Store, scope docstore.Scope, now time.Time) (Snapshot, error) {
	s := Snapshot{AppID: scope.AppID, UserID: scope.UserID, ExportedAt: now}
	err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		if s.Accounts, err = docstore.ListAs[core.Account](tx, scope.Collection(core.AccountsCollection)); err != nil {
			return err
		}
		if s.Transactions, err = docstore.ListAs[core.Transaction](tx, scope.Collection(core.TransactionsCollection)); err != nil {
			return err
		}
		if s.Bills, err = docstore.ListAs[core.Bill](tx, scope.Collection(core.BillsCollection)); err != nil {
			return err
		}
		if s.Budgets, err = docstore.ListAs[core.Budget](tx, scope.Collection(core.BudgetsCollection)); err != nil {
			return err
		}
		if s.Goals, err = docstore.ListAs[core.Goal](tx, scope.Collection(core.GoalsCollection)); err != nil {
			return err
		}
		s.Savings, err = docstore.ListAs[core.Savings](tx, scope.Collection(core.SavingsCollection))
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("build snapshot for %s: %w", scope.UserID, err)
	}
	return s, nil
}

// Encode writes s as indented JSON.
func Encode(w io.Writer, s Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// NewWriter picks a writer for dest: gs://bucket/object targets Cloud
// Storage, anything else is a local path.
func NewWriter(dest string) (Writer, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return nil, fmt.Errorf("export destination is required")
	}
	if strings.HasPrefix(dest, "gs://") {
		bucket, object, err := ParseGCSURI(dest)
		if err != nil {
			return nil, err
		}
		return &GCSWriter{Bucket: bucket, Object: object}, nil
	}
	return &FileWriter{Path: dest}, nil
}
