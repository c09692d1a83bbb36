// Package http provides the JSON API server and its handlers.
//
// This file implements decoding and validation of request bodies and
// query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// decodeJSON reads one JSON object from the body into dst. Unknown fields
// and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &core.ValidationError{Field: "body", Reason: "is empty"}
		case errors.As(err, &maxErr):
			return &core.ValidationError{Field: "body", Reason: "is too large"}
		default:
			return &core.ValidationError{Field: "body", Reason: sanitizeInput(err.Error())}
		}
	}
	if dec.More() {
		return &core.ValidationError{Field: "body", Reason: "must contain a single JSON object"}
	}
	return nil
}

// Amount accepts a JSON string ("12.50", "12,50") or number (12.5).
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*a = Amount(n.String())
	return nil
}

// parseDecimal converts a request amount for field. Empty means zero; sign
// checks belong to the domain validation.
func parseDecimal(field string, a Amount) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(string(a)), ",", ".")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: "must be a number"}
	}
	if err := core.CheckRange(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty input yields the zero
// time, which domain validation rejects where a date is required.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: field, Reason: "must be YYYY-MM-DD or RFC 3339"}
	}
	return t, nil
}

// ParseYear reads an optional ?year= filter; 0 means no filter.
func ParseYear(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("year"))
	if v == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(v)
	if err != nil || y < 1900 || y > 9999 {
		return 0, &core.ValidationError{Field: "year", Reason: "must be a four digit year"}
	}
	return y, nil
}

// ParseLimit reads an optional ?limit= between 1 and max, defaulting to def.
func ParseLimit(query url.Values, def, max int) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, &core.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", max)}
	}
	return n, nil
}

type accountRequest struct {
	Name           string `json:"name"`
	OpeningBalance Amount `json:"openingBalance"`
}

type transactionRequest struct {
	Type        core.TransactionType `json:"type"`
	Amount      Amount               `json:"amount"`
	Category    string               `json:"category"`
	Date        string               `json:"date"`
	Description string               `json:"description"`
	AccountID   string               `json:"accountId"`
}

func (req transactionRequest) input() (core.TransactionInput, error) {
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.TransactionInput{}, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return core.TransactionInput{}, err
	}
	return core.TransactionInput{
		Type:        req.Type,
		Amount:      amount,
		Category:    sanitizeInput(req.Category),
		Date:        date,
		Description: sanitizeInput(req.Description),
		AccountID:   strings.TrimSpace(req.AccountID),
	}, nil
}

type billRequest struct {
	Name        string `json:"name"`
	Amount      Amount `json:"amount"`
	Category    string `json:"category"`
	DueDate     string `json:"dueDate"`
	IsRecurring bool   `json:"isRecurring"`
	AccountID   string `json:"accountId"`
}

func (req billRequest) bill() (core.Bill, error) {
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.Bill{}, err
	}
	due, err := parseDate("dueDate", req.DueDate)
	if err != nil {
		return core.Bill{}, err
	}
	return core.Bill{
		Name:        sanitizeInput(req.Name),
		Amount:      amount,
		Category:    sanitizeInput(req.Category),
		DueDate:     due,
		IsRecurring: req.IsRecurring,
		AccountID:   strings.TrimSpace(req.AccountID),
	}, nil
}

type budgetRequest struct {
	Name     string `json:"name"`
	Limit    Amount `json:"limit"`
	Category string `json:"category"`
}

func (req budgetRequest) budget() (core.Budget, error) {
	limit, err := parseDecimal("limit", req.Limit)
	if err != nil {
		return core.Budget{}, err
	}
	return core.Budget{Name: sanitizeInput(req.Name), Limit: limit, Category: sanitizeInput(req.Category)}, nil
}

type goalRequest struct {
	Name          string `json:"name"`
	TargetAmount  Amount `json:"targetAmount"`
	CurrentAmount Amount `json:"currentAmount"`
}

func (req goalRequest) goal() (core.Goal, error) {
	target, err := parseDecimal("targetAmount", req.TargetAmount)
	if err != nil {
		return core.Goal{}, err
	}
	current, err := parseDecimal("currentAmount", req.CurrentAmount)
	if err != nil {
		return core.Goal{}, err
	}
	return core.Goal{Name: sanitizeInput(req.Name), TargetAmount: target, CurrentAmount: current}, nil
}

type fundsRequest struct {
	Amount Amount `json:"amount"`
}

type savingsRequest struct {
	Name          string `json:"name"`
	Institution   string `json:"institution"`
	CurrentAmount Amount `json:"currentAmount"`
	TargetAmount  Amount `json:"targetAmount"`
}

func (req savingsRequest) savings() (core.Savings, error) {
	current, err := parseDecimal("currentAmount", req.CurrentAmount)
	if err != nil {
		return core.Savings{}, err
	}
	target, err := parseDecimal("targetAmount", req.TargetAmount)
	if err != nil {
		return core.Savings{}, err
	}
	return core.Savings{
		Name:          sanitizeInput(req.Name),
		Institution:   sanitizeInput(req.Institution),
		CurrentAmount: current,
		TargetAmount:  target,
	}, nil
}
