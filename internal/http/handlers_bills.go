package http

import (
	"context"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type billResponse struct {
	core.Bill
	Status          services.BillStatus `json:"status"`
	AmountFormatted string              `json:"amountFormatted"`
}

func (s *Server) bill(b core.Bill) billResponse {
	return billResponse{
		Bill:            b,
		Status:          services.ClassifyBill(b, s.deps.Now()),
		AmountFormatted: s.currency.Format(b.Amount),
	}
}

func (s *Server) bills(bills []core.Bill) []billResponse {
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, s.bill(b))
	}
	return out
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.svc(r).Bills.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bills(bills))
}

// handleUpcomingBills returns the unpaid bills nearest their due date.
func (s *Server) handleUpcomingBills(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r.URL.Query(), 3, 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bills, err := s.svc(r).Bills.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bills(services.UpcomingBills(bills, s.deps.Now(), limit)))
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.bill()
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc(r).Bills.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.bill(b))
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.bill()
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc(r).Bills.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bill(b))
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.svc(r).Bills.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type billAction func(b *services.Bills, ctx context.Context, id string) (core.Bill, error)

var (
	billPay    billAction = (*services.Bills).MarkPaid
	billUnpay  billAction = (*services.Bills).MarkUnpaid
	billToggle billAction = (*services.Bills).Toggle
)

func (s *Server) handleBillAction(action billAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := action(s.svc(r).Bills, r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.bill(b))
	}
}
