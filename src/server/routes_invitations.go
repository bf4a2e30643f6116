package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleLookupInvitation(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.Groups.LookupInvitation(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *API) handleAccept(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.Groups.Accept(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *API) handleDecline(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.Groups.Decline(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *API) handleRemind(w http.ResponseWriter, r *http.Request) {
	invitationID, err := idParam(r, "ref")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	invitation, err := a.Groups.Remind(r.Context(), principalFrom(r.Context()), invitationID)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invitation)
}
