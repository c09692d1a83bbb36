package sheets

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionExporter mirrors ledger transactions into a spreadsheet,
	// one row per transaction keyed by the transaction id in the first column.
	TransactionExporter interface {
		Append(ctx context.Context, r Row) (rowRef string, err error)
		// Delete removes the row of a transaction. A missing row is not an error.
		Delete(ctx context.Context, transactionID string) error
	}
)

// Row is one exported transaction.
type Row struct {
	TransactionID string
	Date          string
	Type          string
	Category      string
	Description   string
	Amount        string
	Account       string
}

// Header is the column layout of an export sheet.
var Header = []string{"ID", "Date", "Type", "Category", "Description", "Amount", "Account"}

func RowFromTransaction(t core.Transaction, accountName string) Row {
	return Row{
		TransactionID: t.ID,
		Date:          t.Date.Format(time.DateOnly),
		Type:          string(t.Type),
		Category:      t.Category,
		Description:   t.Description,
		Amount:        t.Signed().StringFixed(2),
		Account:       accountName,
	}
}

// Values returns the row in column order.
func (r Row) Values() []any {
	return []any{r.TransactionID, r.Date, r.Type, r.Category, r.Description, r.Amount, r.Account}
}
