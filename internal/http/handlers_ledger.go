package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

type accountResponse struct {
	core.Account
	BalanceFormatted string `json:"balanceFormatted"`
}

type transactionResponse struct {
	core.Transaction
	AmountFormatted string `json:"amountFormatted"`
}

func (s *Server) account(a core.Account) accountResponse {
	return accountResponse{Account: a, BalanceFormatted: s.currency.Format(a.Balance)}
}

func (s *Server) transaction(t core.Transaction) transactionResponse {
	return transactionResponse{Transaction: t, AmountFormatted: s.currency.Format(t.Signed())}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc(r).Ledger.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, s.account(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	opening, err := parseDecimal("openingBalance", req.OpeningBalance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.svc(r).Ledger.CreateAccount(r.Context(), sanitizeInput(req.Name), opening)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.account(acc))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	opening, err := parseDecimal("openingBalance", req.OpeningBalance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.svc(r).Ledger.UpdateAccount(r.Context(), r.PathValue("id"), sanitizeInput(req.Name), opening)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.account(acc))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc(r).Ledger.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTransactions returns transactions newest first. An optional
// ?limit caps the result.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r.URL.Query(), 0, 1000)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.svc(r).Ledger.ListTransactions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	services.SortTransactionsNewestFirst(txs)
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, s.transaction(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}

	ledger := s.svc(r).Ledger
	id, err := ledger.CreateTransaction(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).LogTransactionCreated(
		r.Context(), userIDFrom(r.Context()), id, in.AccountID, in.Amount.String())

	t, err := ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.transaction(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	ledger := s.svc(r).Ledger
	if err := ledger.UpdateTransaction(r.Context(), id, in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.transaction(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc(r).Ledger.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
