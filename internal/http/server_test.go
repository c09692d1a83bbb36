package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
	"fintrack/internal/state"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, mutate func(*Options)) *Server {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	opts := Options{
		Store:          store,
		AppID:          "test",
		DefaultUserID:  "default",
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Now:            func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	s := NewServer(opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, s *Server, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get: %w", core.ErrNotFound), http.StatusNotFound},
		{"store not found", docstore.ErrNotFound, http.StatusNotFound},
		{"reference", &core.ReferenceError{Collection: "accounts", ID: "x"}, http.StatusUnprocessableEntity},
		{"wrapped reference", fmt.Errorf("create: %w", &core.ReferenceError{Collection: "accounts", ID: "x"}), http.StatusUnprocessableEntity},
		{"validation", &core.ValidationError{Field: "name", Reason: "is required"}, http.StatusBadRequest},
		{"invalid amount", core.ErrInvalidAmount, http.StatusBadRequest},
		{"linked", fmt.Errorf("delete: %w", core.ErrLinkedToBill), http.StatusConflict},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestUserResolution(t *testing.T) {
	tests := []struct {
		name         string
		authRequired bool
		userID       string
		want         int
	}{
		{"header", true, "alice", http.StatusOK},
		{"missing header required", true, "", http.StatusUnauthorized},
		{"missing header falls back", false, "", http.StatusOK},
		{"invalid id", false, "bad/id", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(o *Options) { o.AuthRequired = tt.authRequired })
			rec := do(t, s, http.MethodGet, "/api/accounts", "", tt.userID)
			expectStatus(t, rec, tt.want)
		})
	}

	t.Run("users are isolated", func(t *testing.T) {
		s := newTestServer(t, nil)
		expectStatus(t, do(t, s, http.MethodPost, "/api/accounts", `{"name":"Wallet","openingBalance":"10"}`, "alice"), http.StatusCreated)

		bob := decode[[]accountResponse](t, do(t, s, http.MethodGet, "/api/accounts", "", "bob"))
		if len(bob) != 0 {
			t.Fatalf("bob sees alice's accounts: %+v", bob)
		}
		fallback := decode[[]accountResponse](t, do(t, s, http.MethodGet, "/api/accounts", "", ""))
		if len(fallback) != 0 {
			t.Fatalf("default user sees alice's accounts: %+v", fallback)
		}
	})
}

func TestLedgerEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	const user = "alice"

	rec := do(t, s, http.MethodPost, "/api/accounts", `{"name":"Wallet","openingBalance":1000}`, user)
	expectStatus(t, rec, http.StatusCreated)
	acc := decode[accountResponse](t, rec)
	if !acc.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected opening balance 1000, got %s", acc.Balance)
	}

	rec = do(t, s, http.MethodPost, "/api/transactions",
		fmt.Sprintf(`{"type":"expense","amount":"200","category":"Groceries","date":"2024-03-05","accountId":%q}`, acc.ID), user)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[transactionResponse](t, rec)
	if created.ID == "" || created.AccountID != acc.ID || !created.Amount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected transaction %+v", created)
	}

	accounts := decode[[]accountResponse](t, do(t, s, http.MethodGet, "/api/accounts", "", user))
	if len(accounts) != 1 || !accounts[0].Balance.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("expected balance 800, got %+v", accounts)
	}

	rec = do(t, s, http.MethodPut, "/api/transactions/"+created.ID,
		fmt.Sprintf(`{"type":"expense","amount":"350","category":"Groceries","date":"2024-03-05","accountId":%q}`, acc.ID), user)
	expectStatus(t, rec, http.StatusOK)
	accounts = decode[[]accountResponse](t, do(t, s, http.MethodGet, "/api/accounts", "", user))
	if !accounts[0].Balance.Equal(decimal.NewFromInt(650)) {
		t.Fatalf("expected balance 650 after update, got %s", accounts[0].Balance)
	}

	expectStatus(t, do(t, s, http.MethodDelete, "/api/transactions/"+created.ID, "", user), http.StatusNoContent)
	accounts = decode[[]accountResponse](t, do(t, s, http.MethodGet, "/api/accounts", "", user))
	if !accounts[0].Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected balance restored to 1000, got %s", accounts[0].Balance)
	}

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			method string
			path   string
			body   string
			want   int
		}{
			{"unknown field", http.MethodPost, "/api/accounts", `{"name":"x","colour":"red"}`, http.StatusBadRequest},
			{"malformed json", http.MethodPost, "/api/accounts", `{"name":`, http.StatusBadRequest},
			{"missing name", http.MethodPost, "/api/accounts", `{"openingBalance":"5"}`, http.StatusBadRequest},
			{"huge opening balance", http.MethodPost, "/api/accounts", `{"name":"x","openingBalance":1e25}`, http.StatusBadRequest},
			{"huge amount", http.MethodPost, "/api/transactions", fmt.Sprintf(`{"type":"income","amount":"99999999999999999999","category":"x","date":"2024-03-05","accountId":%q}`, acc.ID), http.StatusBadRequest},
			{"bad amount", http.MethodPost, "/api/transactions", `{"type":"expense","amount":"abc","category":"x","date":"2024-03-05","accountId":"a"}`, http.StatusBadRequest},
			{"negative amount", http.MethodPost, "/api/transactions", fmt.Sprintf(`{"type":"expense","amount":"-5","category":"x","date":"2024-03-05","accountId":%q}`, acc.ID), http.StatusBadRequest},
			{"unknown account", http.MethodPost, "/api/transactions", `{"type":"expense","amount":"5","category":"x","date":"2024-03-05","accountId":"nope"}`, http.StatusUnprocessableEntity},
			{"missing transaction", http.MethodDelete, "/api/transactions/nope", "", http.StatusNotFound},
			{"missing account", http.MethodPut, "/api/accounts/nope", `{"name":"x"}`, http.StatusNotFound},
			{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				expectStatus(t, do(t, s, tt.method, tt.path, tt.body, user), tt.want)
			})
		}
	})
}

func TestBillEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	const user = "alice"

	acc := decode[accountResponse](t, do(t, s, http.MethodPost, "/api/accounts", `{"name":"Bank","openingBalance":"500"}`, user))
	rec := do(t, s, http.MethodPost, "/api/bills",
		fmt.Sprintf(`{"name":"Power","amount":"120","category":"Utilities","dueDate":"2024-03-12","accountId":%q}`, acc.ID), user)
	expectStatus(t, rec, http.StatusCreated)
	bill := decode[billResponse](t, rec)
	if bill.Status != "due_soon" {
		t.Errorf("expected due_soon, got %s", bill.Status)
	}

	rec = do(t, s, http.MethodPost, "/api/bills/"+bill.ID+"/pay", "", user)
	expectStatus(t, rec, http.StatusOK)
	paid := decode[billResponse](t, rec)
	if !paid.IsPaid || paid.TransactionID == "" || paid.Status != "paid" {
		t.Fatalf("unexpected paid bill %+v", paid)
	}

	// The payment transaction belongs to the bill.
	expectStatus(t, do(t, s, http.MethodDelete, "/api/transactions/"+paid.TransactionID, "", user), http.StatusConflict)

	accounts := decode[[]accountResponse](t, do(t, s, http.MethodGet, "/api/accounts", "", user))
	if !accounts[0].Balance.Equal(decimal.NewFromInt(380)) {
		t.Fatalf("expected balance 380, got %s", accounts[0].Balance)
	}

	rec = do(t, s, http.MethodPost, "/api/bills/"+bill.ID+"/toggle", "", user)
	expectStatus(t, rec, http.StatusOK)
	if decode[billResponse](t, rec).IsPaid {
		t.Fatal("toggle should have marked the bill unpaid")
	}

	upcoming := decode[[]billResponse](t, do(t, s, http.MethodGet, "/api/bills/upcoming?limit=5", "", user))
	if len(upcoming) != 1 || upcoming[0].ID != bill.ID {
		t.Fatalf("unexpected upcoming bills %+v", upcoming)
	}

	expectStatus(t, do(t, s, http.MethodPost, "/api/bills/nope/pay", "", user), http.StatusNotFound)
}

func TestPlanningEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	const user = "alice"

	acc := decode[accountResponse](t, do(t, s, http.MethodPost, "/api/accounts", `{"name":"Bank"}`, user))
	expectStatus(t, do(t, s, http.MethodPost, "/api/budgets", `{"name":"Food","limit":"100","category":"Groceries"}`, user), http.StatusCreated)
	expectStatus(t, do(t, s, http.MethodPost, "/api/transactions",
		fmt.Sprintf(`{"type":"expense","amount":"30","category":"Groceries","date":"2024-03-02","accountId":%q}`, acc.ID), user), http.StatusCreated)

	statuses := decode[[]budgetStatusResponse](t, do(t, s, http.MethodGet, "/api/budgets/status", "", user))
	if len(statuses) != 1 || !statuses[0].Spent.Equal(decimal.NewFromInt(30)) || statuses[0].Percent != 30 {
		t.Fatalf("unexpected budget status %+v", statuses)
	}

	rec := do(t, s, http.MethodPost, "/api/budgets/reset", "", user)
	expectStatus(t, rec, http.StatusOK)
	if n := decode[map[string]int](t, rec)["reset"]; n != 1 {
		t.Fatalf("expected 1 budget reset, got %d", n)
	}

	goal := decode[core.Goal](t, do(t, s, http.MethodPost, "/api/goals", `{"name":"Bike","targetAmount":"400"}`, user))
	rec = do(t, s, http.MethodPost, "/api/goals/"+goal.ID+"/funds", `{"amount":"100"}`, user)
	expectStatus(t, rec, http.StatusOK)
	if p := decode[core.GoalProgress](t, rec); p.Percent != 25 {
		t.Fatalf("expected 25%%, got %v", p.Percent)
	}
	expectStatus(t, do(t, s, http.MethodPost, "/api/goals/"+goal.ID+"/funds", `{"amount":"0"}`, user), http.StatusBadRequest)

	expectStatus(t, do(t, s, http.MethodPost, "/api/savings", `{"name":"Rainy day","institution":"Bank","currentAmount":"50"}`, user), http.StatusCreated)
	if savings := decode[[]core.Savings](t, do(t, s, http.MethodGet, "/api/savings", "", user)); len(savings) != 1 {
		t.Fatalf("expected one savings entry, got %+v", savings)
	}

	cats := decode[map[string][]string](t, do(t, s, http.MethodGet, "/api/categories", "", user))
	if len(cats["expense"]) == 0 || len(cats["income"]) == 0 {
		t.Fatalf("unexpected categories %+v", cats)
	}
}

func TestDashboardFollowsLedger(t *testing.T) {
	var registry *state.Registry
	s := newTestServer(t, func(o *Options) {
		registry = state.NewRegistry(o.Store, o.AppID)
		o.Registry = registry
	})
	t.Cleanup(func() { _ = registry.Close() })
	const user = "alice"

	acc := decode[accountResponse](t, do(t, s, http.MethodPost, "/api/accounts", `{"name":"Bank","openingBalance":"100"}`, user))

	dash := decode[dashboardResponse](t, do(t, s, http.MethodGet, "/api/dashboard", "", user))
	if !dash.TotalBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected total balance 100, got %s", dash.TotalBalance)
	}
	if dash.Formatted["totalBalance"] == "" {
		t.Error("expected a formatted total balance")
	}

	expectStatus(t, do(t, s, http.MethodPost, "/api/transactions",
		fmt.Sprintf(`{"type":"income","amount":"50","category":"Salary","date":"2024-02-28","accountId":%q}`, acc.ID), user), http.StatusCreated)

	deadline := time.Now().Add(2 * time.Second)
	for {
		dash = decode[dashboardResponse](t, do(t, s, http.MethodGet, "/api/dashboard", "", user))
		if dash.TotalIncome.Equal(decimal.NewFromInt(50)) && dash.TotalBalance.Equal(decimal.NewFromInt(150)) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dashboard never caught up: %+v", dash.DashboardSummary)
		}
		time.Sleep(10 * time.Millisecond)
	}

	report := decode[monthlyReportResponse](t, do(t, s, http.MethodGet, "/api/reports/monthly?year=2024", "", user))
	if len(report.Months) != 1 || report.Months[0].Month != "2024-02" {
		t.Fatalf("unexpected monthly report %+v", report)
	}
	empty := decode[monthlyReportResponse](t, do(t, s, http.MethodGet, "/api/reports/monthly?year=2023", "", user))
	if len(empty.Months) != 0 {
		t.Fatalf("expected no months for 2023, got %+v", empty.Months)
	}
	expectStatus(t, do(t, s, http.MethodGet, "/api/reports/monthly?year=abc", "", user), http.StatusBadRequest)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.RateLimitRPS = 0.001
		o.RateLimitBurst = 2
	})

	for i := 0; i < 2; i++ {
		expectStatus(t, do(t, s, http.MethodGet, "/api/accounts", "", "alice"), http.StatusOK)
	}
	rec := do(t, s, http.MethodGet, "/api/accounts", "", "alice")
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}
	// Limits are per user.
	expectStatus(t, do(t, s, http.MethodGet, "/api/accounts", "", "bob"), http.StatusOK)
}

func TestProbes(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/healthz", "", "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id on every response")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}
	expectStatus(t, do(t, s, http.MethodGet, "/readyz", "", ""), http.StatusOK)

	closed := docstore.NewMemoryStore()
	closed.Close()
	s = newTestServer(t, func(o *Options) { o.Store = closed })
	expectStatus(t, do(t, s, http.MethodGet, "/readyz", "", ""), http.StatusServiceUnavailable)
}
