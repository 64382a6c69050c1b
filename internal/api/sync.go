package api

import (
	"net/http"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/cloudsync"
)

// SyncStatus handles GET /sync.
func (h *Handler) SyncStatus(w http.ResponseWriter, _ *http.Request) {
	if h.sync == nil {
		writeJSON(w, http.StatusOK, SyncStatusResponse{Status: cloudsync.StatusOffline})
		return
	}
	writeJSON(w, http.StatusOK, SyncStatusResponse{
		Status:    h.sync.Status(),
		Backend:   h.sync.ServiceName(),
		Available: h.sync.IsAvailable(),
	})
}

// PairingCode handles POST /sync/code, issuing a code another device can use
// to join this identity.
//
//	@Summary	Issue a pairing code
//	@Tags		sync
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	502	{object}	errResponse
//	@Failure	503	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/sync/code [post]
func (h *Handler) PairingCode(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil || !h.sync.IsAvailable() {
		h.writeError(w, "pairing code", apperr.ErrNotInitialized)
		return
	}
	code := h.sync.PairingCode(r.Context())
	if code == "" {
		writeJSON(w, http.StatusBadGateway, errorBody("could not create pairing code"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// Pair handles POST /sync/pair. The paired identity's snapshot replaces local
// state.
//
//	@Summary	Join the identity behind a pairing code
//	@Tags		sync
//	@Accept		json
//	@Produce	json
//	@Param		body	body		PairRequest	true	"Pairing code"
//	@Success	200		{object}	models.Snapshot
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/sync/pair [post]
func (h *Handler) Pair(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if h.sync == nil {
		h.writeError(w, "pair", apperr.ErrNotInitialized)
		return
	}
	snap, err := h.sync.UseSyncCode(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, "pair", err)
		return
	}
	if err := h.store.ReplaceAll(snap, false); err != nil {
		h.writeError(w, "pair", err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}
