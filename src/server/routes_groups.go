package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"membershare/src/apperr"
	"membershare/src/models"
)

func (a *API) handleListOwned(w http.ResponseWriter, r *http.Request) {
	groups, err := a.Groups.ListOwned(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) handleListShared(w http.ResponseWriter, r *http.Request) {
	groups, err := a.Groups.ListShared(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) handleViewGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := idParam(r, "groupID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	view, err := a.Groups.View(r.Context(), principalFrom(r.Context()), groupID)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := idParam(r, "groupID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, a.Logger, err)
		return
	}
	group, err := a.Groups.Rename(r.Context(), principalFrom(r.Context()), groupID, body.Name)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (a *API) handleInvite(w http.ResponseWriter, r *http.Request) {
	groupID, err := idParam(r, "groupID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, a.Logger, err)
		return
	}
	result, err := a.Groups.Invite(r.Context(), principalFrom(r.Context()), groupID, body.Email)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	status := http.StatusCreated
	if !result.Delivered {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	groupID, err := idParam(r, "groupID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	member, err := a.Groups.Join(r.Context(), principalFrom(r.Context()), groupID)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (a *API) handleLeave(w http.ResponseWriter, r *http.Request) {
	groupID, err := idParam(r, "groupID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	if err := a.Groups.Leave(r.Context(), principalFrom(r.Context()), groupID); err != nil {
		writeError(w, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := idParam(r, "groupID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	memberID, err := idParam(r, "memberID")
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	if err := a.Groups.RemoveMember(r.Context(), principalFrom(r.Context()), groupID, memberID); err != nil {
		writeError(w, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSharedAccess answers the shared-access predicate for the caller or,
// for admins, any user.
func (a *API) handleSharedAccess(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	userID, err := a.accessSubject(p, r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	plan := r.URL.Query().Get("plan")
	ok, err := a.Sync.UserHasSharedAccess(r.Context(), userID, plan)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "plan": plan, "shared_access": ok})
}

func (a *API) handleAccessSummary(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	userID, err := a.accessSubject(p, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	summary, err := a.Sync.AccessSummary(r.Context(), userID)
	if err != nil {
		writeError(w, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// accessSubject resolves whose access is being asked about. Empty means the
// caller; another user's id requires admin.
func (a *API) accessSubject(p models.Principal, raw string) (int64, error) {
	if p.Anonymous() {
		return 0, apperr.New(apperr.CodeUnauthenticated, "sign in required")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return p.UserID, nil
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperr.Invalid("invalid user_id")
	}
	if userID != p.UserID && !p.Admin {
		return 0, apperr.Forbidden("cannot query another user's access")
	}
	return userID, nil
}
