package rest

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// evaluatePromo answers 200 for every business outcome; the body says whether the code applies.
func (h *Handler) evaluatePromo(w http.ResponseWriter, r *http.Request) {
	if _, ok := requesterFrom(w, r); !ok {
		return
	}

	req, err := ValidateEvaluateRequest(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	res, err := h.promos.Evaluate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		log.Printf("[PROMO] evaluate %q error: %v", req.Code, err)
		ErrorInternal(w, "failed to evaluate promo")
		return
	}

	Success(w, "", res)
}

func (h *Handler) listPromos(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	f, err := PromosFilterFromQuery(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	promos, err := h.promos.List(r.Context(), f, requester)
	if err != nil {
		writeServiceError(w, "listPromos", err)
		return
	}
	Success(w, "", promos)
}

func (h *Handler) getPromo(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	promo, err := h.promos.Get(r.Context(), chi.URLParam(r, "id"), requester)
	if err != nil {
		writeServiceError(w, "getPromo", err)
		return
	}
	Success(w, "", promo)
}

func (h *Handler) createPromo(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	in, err := ValidatePromoRequest(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	promo, err := h.promos.Create(r.Context(), *in, requester)
	if err != nil {
		writeServiceError(w, "createPromo", err)
		return
	}
	SuccessCreated(w, "promo created", promo)
}

func (h *Handler) updatePromo(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	in, err := ValidatePromoRequest(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	promo, err := h.promos.Update(r.Context(), chi.URLParam(r, "id"), *in, requester)
	if err != nil {
		writeServiceError(w, "updatePromo", err)
		return
	}
	Success(w, "promo updated", promo)
}

func (h *Handler) deletePromo(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	if err := h.promos.Delete(r.Context(), chi.URLParam(r, "id"), requester); err != nil {
		writeServiceError(w, "deletePromo", err)
		return
	}
	Success(w, "promo deleted", nil)
}

func (h *Handler) redeemPromo(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	promo, err := h.promos.Redeem(r.Context(), chi.URLParam(r, "id"), requester)
	if err != nil {
		writeServiceError(w, "redeemPromo", err)
		return
	}
	Success(w, "promo redeemed", promo)
}

// writeRequestError handles failures from the Validate* parsers.
func writeRequestError(w http.ResponseWriter, err error) {
	if errors.Is(err, errInvalidJSON) {
		ErrorBadRequest(w, "invalid JSON")
		return
	}
	writeServiceError(w, "request", err)
}
