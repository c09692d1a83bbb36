package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names, one per entity type, under the per-user namespace.
const (
	AccountsCollection     = "accounts"
	TransactionsCollection = "transactions"
	BillsCollection        = "bills"
	BudgetsCollection      = "budgets"
	GoalsCollection        = "goals"
	SavingsCollection      = "savings"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const maxDescriptionLen = 200

type (
	TransactionType string

	Account struct {
		ID             string          `json:"id"`
		Name           string          `json:"name"`
		Balance        decimal.Decimal `json:"balance"`
		OpeningBalance decimal.Decimal `json:"openingBalance"`
		CreatedAt      time.Time       `json:"createdAt"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Date        time.Time       `json:"date"`
		Description string          `json:"description"`
		AccountID   string          `json:"accountId"`
		BillID      string          `json:"billId,omitempty"` // set when created by paying a bill
		CreatedAt   time.Time       `json:"createdAt"`
	}

	// TransactionInput carries the user-editable fields of a Transaction.
	TransactionInput struct {
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Date        time.Time       `json:"date"`
		Description string          `json:"description"`
		AccountID   string          `json:"accountId"`
	}

	Bill struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		Amount        decimal.Decimal `json:"amount"`
		Category      string          `json:"category"`
		DueDate       time.Time       `json:"dueDate"`
		IsRecurring   bool            `json:"isRecurring"`
		AccountID     string          `json:"accountId"`
		IsPaid        bool            `json:"isPaid"`
		TransactionID string          `json:"transactionId,omitempty"`
	}

	Budget struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Limit    decimal.Decimal `json:"limit"`
		Category string          `json:"category"`
		ResetAt  *time.Time      `json:"resetAt,omitempty"`
	}

	Goal struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
	}

	Savings struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		Institution   string          `json:"institution"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
	}
)

// Default category suggestions offered to clients. Any non-empty category is accepted.
var (
	ExpenseCategories = []string{"Groceries", "Rent", "Utilities", "Transport", "Entertainment", "Health", "Other"}
	IncomeCategories  = []string{"Salary", "Bonus", "Freelance", "Investment", "Other"}
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Signed returns amount with the sign implied by the transaction type:
// positive for income, negative for expense.
func Signed(t TransactionType, amount decimal.Decimal) decimal.Decimal {
	if t == Expense {
		return amount.Neg()
	}
	return amount
}

// Signed returns the transaction's effect on its account balance.
func (t Transaction) Signed() decimal.Decimal {
	return Signed(t.Type, t.Amount)
}

func (in TransactionInput) Validate() error {
	if !in.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be income or expense"}
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := CheckRange("amount", in.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(in.AccountID) == "" {
		return &ValidationError{Field: "accountId", Reason: "is required"}
	}
	if strings.TrimSpace(in.Category) == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if len(in.Description) > maxDescriptionLen {
		return &ValidationError{Field: "description", Reason: "too long (max 200 characters)"}
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	return CheckRange("openingBalance", a.OpeningBalance)
}

// HasTransaction reports whether the bill points at a payment transaction.
func (b Bill) HasTransaction() bool {
	return b.TransactionID != ""
}

func (b Bill) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := CheckRange("amount", b.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(b.Category) == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}
	if strings.TrimSpace(b.AccountID) == "" {
		return &ValidationError{Field: "accountId", Reason: "is required"}
	}
	if b.DueDate.IsZero() {
		return &ValidationError{Field: "dueDate", Reason: "is required"}
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if !b.Limit.IsPositive() {
		return &ValidationError{Field: "limit", Reason: "must be greater than zero"}
	}
	if err := CheckRange("limit", b.Limit); err != nil {
		return err
	}
	if strings.TrimSpace(b.Category) == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if !g.TargetAmount.IsPositive() {
		return &ValidationError{Field: "targetAmount", Reason: "must be greater than zero"}
	}
	if g.CurrentAmount.IsNegative() {
		return &ValidationError{Field: "currentAmount", Reason: "cannot be negative"}
	}
	if err := CheckRange("targetAmount", g.TargetAmount); err != nil {
		return err
	}
	return CheckRange("currentAmount", g.CurrentAmount)
}

func (s Savings) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if s.CurrentAmount.IsNegative() {
		return &ValidationError{Field: "currentAmount", Reason: "cannot be negative"}
	}
	if s.TargetAmount.IsNegative() {
		return &ValidationError{Field: "targetAmount", Reason: "cannot be negative"}
	}
	if err := CheckRange("targetAmount", s.TargetAmount); err != nil {
		return err
	}
	return CheckRange("currentAmount", s.CurrentAmount)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfMonth returns midnight of the first day of t's calendar month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// AddMonthClamped advances t by one calendar month. When the day does not
// exist in the target month it lands on that month's last day.
func AddMonthClamped(t time.Time) time.Time {
	y, m, d := t.Date()
	lastDay := time.Date(y, m+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}
	hh, mm, ss := t.Clock()
	return time.Date(y, m+1, d, hh, mm, ss, t.Nanosecond(), t.Location())
}
