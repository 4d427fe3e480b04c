package httptransport

import (
	"net/http"

	dErrors "rxchange/pkg/domain-errors"
	"rxchange/pkg/platform/httputil"
)

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[ScanRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	result, err := h.holder.Scan(ctx, req.QRToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !result.AlreadyAccepted {
		h.storePending(result.Report)
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[VerifyRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	report, err := h.holder.VerifyPayload(ctx, req.Payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.storePending(report)
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndValidate[DecisionRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	report, found := h.takePending(req.CredentialID)
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound,
			"no pending verification for this credential, scan it first"))
		return
	}

	entry, ack, err := h.holder.Decide(ctx, report, req.Accept, req.Override, req.Reason)
	if err != nil {
		// The report stays pending so the pharmacist can retry with an
		// override instead of re-scanning.
		h.storePending(report)
		httputil.WriteError(w, err)
		return
	}
	if entry != nil {
		httputil.WriteJSON(w, http.StatusCreated, entry)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ack)
}
