package server

import (
	"net/http"

	"membershare/src/models"
)

func (a *API) handleAdminListGroups(w http.ResponseWriter, r *http.Request) {
	status := models.GroupStatus(r.URL.Query().Get("status"))
	groups, err := a.Groups.ListAll(r.Context(), principalFrom(r.Context()), status)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) handleAdminSetStatus(w http.ResponseWriter, r *http.Request) {
	groupID, err := idParam(r, "groupID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	var body struct {
		Status models.GroupStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, a.Logger, err)
		return
	}
	group, err := a.Groups.SetStatus(r.Context(), principalFrom(r.Context()), groupID, body.Status)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (a *API) handleAdminDeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := idParam(r, "groupID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	if err := a.Groups.Delete(r.Context(), principalFrom(r.Context()), groupID); err != nil {
		writeError(w, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdminRevoke(w http.ResponseWriter, r *http.Request) {
	invitationID, err := idParam(r, "invitationID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	invitation, err := a.Groups.RevokeInvitation(r.Context(), principalFrom(r.Context()), invitationID)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, invitation)
}

func (a *API) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Groups.Stats(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAdminSync(w http.ResponseWriter, r *http.Request) {
	result, err := a.Sync.ResyncAll(r.Context())
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	n, err := a.Invitations.Sweep(r.Context())
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
}
