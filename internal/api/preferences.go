package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/preference"
)

type PreferenceHandler struct {
	Repo preference.Repo
	Log  *zap.Logger
}

func NewPreferenceHandler(repo preference.Repo, log *zap.Logger) *PreferenceHandler {
	return &PreferenceHandler{Repo: repo, Log: log}
}

// GET /v1/preferences
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return
	}
	p, err := h.Repo.GetOrCreate(r.Context(), userID)
	if err != nil {
		writeRepoError(w, h.Log, "get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PATCH /v1/preferences merges only the fields present in the body.
func (h *PreferenceHandler) Patch(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return
	}
	var patch preference.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	p, err := h.Repo.Update(r.Context(), userID, patch)
	if err != nil {
		writeRepoError(w, h.Log, "update preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
