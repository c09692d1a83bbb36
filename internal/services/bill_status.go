package services

import (
	"time"

	"fintrack/internal/core"
)

type BillStatus string

const (
	BillPaid     BillStatus = "paid"
	BillOverdue  BillStatus = "overdue"
	BillDueSoon  BillStatus = "due_soon"
	BillUpcoming BillStatus = "upcoming"
)

// DueSoonWindow is how far ahead an unpaid bill counts as due soon.
const DueSoonWindow = 7 * 24 * time.Hour

// ClassifyBill places a bill on the paid/overdue/due-soon/upcoming scale
// relative to the start of now's day.
func ClassifyBill(b core.Bill, now time.Time) BillStatus {
	if b.IsPaid {
		return BillPaid
	}
	today := core.StartOfDay(now)
	due := core.StartOfDay(b.DueDate.In(now.Location()))
	switch {
	case due.Before(today):
		return BillOverdue
	case due.Sub(today) <= DueSoonWindow:
		return BillDueSoon
	default:
		return BillUpcoming
	}
}
