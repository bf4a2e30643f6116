package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"membershare/src/apperr"
	"membershare/src/models"
	"membershare/src/services"
	"membershare/src/storage"
)

// verifiedBody reads the request body and checks its signature.
func (a *API) verifiedBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalid, "unreadable body", err)
	}
	if err := a.Verifier.Verify(r.Header.Get(services.SignatureHeader), body, time.Now()); err != nil {
		a.Metrics.Inc("webhooks_rejected_total")
		return nil, err
	}
	return body, nil
}

func decodeWebhook(body []byte, dst any) error {
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(dst); err != nil {
		return apperr.Wrap(apperr.CodeInvalid, "invalid JSON body", err)
	}
	return nil
}

func (a *API) writeWebhookError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrDuplicateEvent) {
		writeJSON(w, http.StatusOK, map[string]any{"duplicate": true})
		return
	}
	writeError(w, a.Logger, err)
}

func (a *API) handlePurchaseWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := a.verifiedBody(w, r)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	var purchase models.PurchaseCompleted
	if err := decodeWebhook(body, &purchase); err != nil {
		writeError(w, a.Logger, err)
		return
	}
	groups, err := a.Webhooks.IngestPurchase(r.Context(), purchase)
	if err != nil {
		a.writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (a *API) handleMembershipWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := a.verifiedBody(w, r)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	var event models.MembershipEvent
	if err := decodeWebhook(body, &event); err != nil {
		writeError(w, a.Logger, err)
		return
	}
	result, err := a.Webhooks.IngestMembership(r.Context(), event)
	if err != nil {
		a.writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
