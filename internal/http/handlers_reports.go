package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/state"
)

type dashboardResponse struct {
	core.DashboardSummary
	Formatted map[string]string `json:"formatted"`
}

type monthlyReportResponse struct {
	Year   int                `json:"year,omitempty"`
	Months []core.MonthTotals `json:"months"`
}

// ledgerData is the collection contents a derived view is computed from.
type ledgerData struct {
	generation   uint64
	accounts     []core.Account
	transactions []core.Transaction
	bills        []core.Bill
	goals        []core.Goal
}

// readLedger reads from the user's live view when a registry is configured,
// and straight from the store otherwise. Generation 0 disables caching.
func (s *Server) readLedger(ctx context.Context, userID string, svc *services.Services) (ledgerData, error) {
	if s.registry != nil {
		v, err := s.registry.View(ctx, userID)
		if err != nil {
			return ledgerData{}, err
		}
		return fromView(v), nil
	}

	var d ledgerData
	var err error
	if d.accounts, err = svc.Ledger.ListAccounts(ctx); err != nil {
		return ledgerData{}, err
	}
	if d.transactions, err = svc.Ledger.ListTransactions(ctx); err != nil {
		return ledgerData{}, err
	}
	if d.bills, err = svc.Bills.List(ctx); err != nil {
		return ledgerData{}, err
	}
	if d.goals, err = svc.Goals.List(ctx); err != nil {
		return ledgerData{}, err
	}
	return d, nil
}

func fromView(v *state.View) ledgerData {
	// Generation first: a change landing between the reads only leaves an
	// entry under a key that is never asked for again.
	gen := v.Generation()
	return ledgerData{
		generation:   gen,
		accounts:     v.Accounts(),
		transactions: v.Transactions(),
		bills:        v.Bills(),
		goals:        v.Goals(),
	}
}

func cacheKey(userID string, generation uint64, parts ...string) string {
	return userID + "|" + strconv.FormatUint(generation, 10) + "|" + strings.Join(parts, "|")
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)
	data, err := s.readLedger(ctx, userID, s.svc(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := s.deps.Now()
	// Upcoming bills depend on the current day.
	key := cacheKey(userID, data.generation, "dashboard", now.Format("2006-01-02"))
	summary, ok := s.dashboardCache.Get(key)
	if !ok || data.generation == 0 {
		summary = services.Summarize(data.accounts, data.transactions, data.bills, data.goals, now)
		if data.generation > 0 {
			s.dashboardCache.Set(key, summary)
		}
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		DashboardSummary: summary,
		Formatted: map[string]string{
			"totalIncome":  s.currency.Format(summary.TotalIncome),
			"totalExpense": s.currency.Format(summary.TotalExpense),
			"net":          s.currency.Format(summary.Net),
			"totalBalance": s.currency.Format(summary.TotalBalance),
		},
	})
}

// handleMonthlyReport returns income and expense per month, optionally
// restricted to ?year=.
func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYear(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	userID := userIDFrom(ctx)
	data, err := s.readLedger(ctx, userID, s.svc(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := cacheKey(userID, data.generation, "monthly", strconv.Itoa(year))
	months, ok := s.reportCache.Get(key)
	if !ok || data.generation == 0 {
		months = filterYear(services.MonthlyReport(data.transactions, s.deps.Now().Location()), year)
		if data.generation > 0 {
			s.reportCache.Set(key, months)
		}
	}
	writeJSON(w, http.StatusOK, monthlyReportResponse{Year: year, Months: months})
}

func filterYear(months []core.MonthTotals, year int) []core.MonthTotals {
	if year == 0 {
		return months
	}
	prefix := fmt.Sprintf("%04d-", year)
	out := make([]core.MonthTotals, 0, 12)
	for _, m := range months {
		if strings.HasPrefix(m.Month, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"expense": core.ExpenseCategories,
		"income":  core.IncomeCategories,
	})
}
