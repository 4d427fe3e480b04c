package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rxchange/internal/wallet"
	"rxchange/pkg/platform/clock"
	"rxchange/pkg/platform/httputil"
)

func (h *Handler) handleListWallet(w http.ResponseWriter, r *http.Request) {
	entries, err := h.wallet.Entries(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleGetWalletEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.wallet.Entry(r.Context(), chi.URLParam(r, "credentialID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleRepeatEligibility(w http.ResponseWriter, r *http.Request) {
	status, err := h.wallet.RepeatEligibility(r.Context(), chi.URLParam(r, "credentialID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleRecordDispense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[DispenseRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	credentialID := chi.URLParam(r, "credentialID")
	record := wallet.DispenseRecord{
		DispensedAt:   clock.Now(ctx),
		DaysSupply:    req.DaysSupply,
		PharmacistRef: req.PharmacistRef,
		Override:      req.Override,
		Note:          req.Note,
	}
	if err := h.wallet.RecordDispense(ctx, credentialID, record); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"credentialId": credentialID,
		"status":       "dispensed",
	})
}
