package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rxchange/internal/credential"
	"rxchange/internal/exchange"
	id "rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
	"rxchange/pkg/platform/httputil"
)

func (h *Handler) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[CreateOfferRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	cred, err := credential.New(req.CredentialID, req.IssuerDID, req.PatientRef,
		req.Medications, req.IssuedAt, req.ExpiresAt, req.RepeatsAllowed, req.Controlled,
		credential.WithMinRepeatInterval(req.MinRepeatIntervalDays))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid credential"))
		return
	}

	offer, err := h.issuer.CreateDraft(ctx, cred)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, offer)
}

func (h *Handler) handleListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.issuer.Offers(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (h *Handler) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	offerID, ok := h.offerID(w, r)
	if !ok {
		return
	}
	offer, err := h.issuer.Offer(r.Context(), offerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offer)
}

func (h *Handler) handleSignOffer(w http.ResponseWriter, r *http.Request) {
	h.offerTransition(w, r, h.issuer.SignOffer)
}

func (h *Handler) handleGenerateQR(w http.ResponseWriter, r *http.Request) {
	h.offerTransition(w, r, h.issuer.GenerateQR)
}

func (h *Handler) handleMarkGiven(w http.ResponseWriter, r *http.Request) {
	h.offerTransition(w, r, h.issuer.MarkGiven)
}

func (h *Handler) offerTransition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, offerID id.OfferID) (*exchange.Offer, error)) {
	offerID, ok := h.offerID(w, r)
	if !ok {
		return
	}
	offer, err := fn(r.Context(), offerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, offer)
}

func (h *Handler) offerID(w http.ResponseWriter, r *http.Request) (id.OfferID, bool) {
	offerID, err := id.ParseOfferID(chi.URLParam(r, "offerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return offerID, false
	}
	return offerID, true
}
