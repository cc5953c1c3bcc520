package rest

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listDebts(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	debts, err := h.debts.ListDebts(r.Context(), requester)
	if err != nil {
		writeServiceError(w, "listDebts", err)
		return
	}
	Success(w, "", debts)
}

func (h *Handler) getDebt(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	debt, err := h.debts.GetDebt(r.Context(), chi.URLParam(r, "id"), requester)
	if err != nil {
		writeServiceError(w, "getDebt", err)
		return
	}
	Success(w, "", debt)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	payments, err := h.debts.ListPayments(r.Context(), chi.URLParam(r, "id"), requester)
	if err != nil {
		writeServiceError(w, "listPayments", err)
		return
	}
	Success(w, "", payments)
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	req, err := ValidatePaymentRequest(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	res, err := h.debts.ApplyPayment(r.Context(), req.ToInput(chi.URLParam(r, "id")), requester)
	if err != nil {
		writeServiceError(w, "applyPayment", err)
		return
	}
	SuccessCreated(w, "payment applied", res)
}

func (h *Handler) exportPayments(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	exportID, err := h.debts.StartLedgerExport(r.Context(), chi.URLParam(r, "id"), requester)
	if err != nil {
		writeServiceError(w, "exportPayments", err)
		return
	}

	log.Printf("[EXPORT] %s queued by user=%d", exportID, requester.ID)
	SuccessAccepted(w, "export queued", map[string]interface{}{"export_id": exportID})
}
