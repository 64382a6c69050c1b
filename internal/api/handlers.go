package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/assistant"
	"github.com/starford/pantry/internal/cloudsync"
	"github.com/starford/pantry/internal/inventory"
	"github.com/starford/pantry/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	store     *inventory.Store
	sync      *cloudsync.Coordinator
	assistant *assistant.Client
	logger    *slog.Logger
}

// NewHandler creates a new Handler. sync and assistant may be nil.
func NewHandler(store *inventory.Store, sync *cloudsync.Coordinator, ai *assistant.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, sync: sync, assistant: ai, logger: logger}
}

// pathParam returns a decoded URL parameter. chi matches against RawPath
// when the request carries one (an escaped "/" in a name), and only then are
// the params still percent-encoded.
func pathParam(r *http.Request, name string) string {
	param := chi.URLParam(r, name)
	if r.URL.RawPath != "" {
		if decoded, err := url.PathUnescape(param); err == nil {
			param = decoded
		}
	}
	return strings.TrimSpace(param)
}

// confirmed reads the confirm query flag used by DELETE routes.
func confirmed(r *http.Request) inventory.Confirm {
	yes := r.URL.Query().Get("confirm") == "true"
	return func(string) bool { return yes }
}

func answer(yes bool) inventory.Confirm {
	return func(string) bool { return yes }
}

// ListIngredients handles GET /ingredients.
//
//	@Summary	List stock records
//	@Tags		ingredients
//	@Produce	json
//	@Success	200	{array}	models.Ingredient
//	@Security	BearerAuth
//	@Router		/ingredients [get]
func (h *Handler) ListIngredients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Ingredients())
}

// AddIngredient handles POST /ingredients.
//
//	@Summary	Add a stock record
//	@Tags		ingredients
//	@Accept		json
//	@Produce	json
//	@Param		body	body		inventory.IngredientInput	true	"Ingredient"
//	@Success	201		{object}	models.Ingredient
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/ingredients [post]
func (h *Handler) AddIngredient(w http.ResponseWriter, r *http.Request) {
	var in inventory.IngredientInput
	if !decodeJSON(w, r, &in) {
		return
	}
	ing, err := h.store.AddIngredient(in)
	if err != nil {
		h.writeError(w, "add ingredient", err)
		return
	}
	writeJSON(w, http.StatusCreated, ing)
}

// RenameIngredient handles PATCH /ingredients/{id}.
func (h *Handler) RenameIngredient(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ing, err := h.store.UpdateIngredientName(models.ID(pathParam(r, "id")), req.Name)
	if err != nil {
		h.writeError(w, "rename ingredient", err)
		return
	}
	writeJSON(w, http.StatusOK, ing)
}

// AdjustIngredient handles POST /ingredients/{id}/adjust.
//
//	@Summary	Change the quantity of a stock record
//	@Tags		ingredients
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Ingredient id"
//	@Param		body	body		AdjustRequest	true	"Delta"
//	@Success	200		{object}	AdjustResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/ingredients/{id}/adjust [post]
func (h *Handler) AdjustIngredient(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ing, removed, err := h.store.AdjustQuantity(models.ID(pathParam(r, "id")), req.Delta, answer(req.Confirm))
	if err != nil {
		h.writeError(w, "adjust ingredient", err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustResponse{Ingredient: ing, Removed: removed})
}

// RemoveIngredient handles DELETE /ingredients/{id}?confirm=true.
func (h *Handler) RemoveIngredient(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveIngredient(models.ID(pathParam(r, "id")), confirmed(r)); err != nil {
		h.writeError(w, "remove ingredient", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearIngredients handles DELETE /ingredients?confirm=true.
func (h *Handler) ClearIngredients(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearIngredients(confirmed(r)); err != nil {
		h.writeError(w, "clear ingredients", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats())
}

// Snapshot handles GET /snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// ReplaceSnapshot handles PUT /snapshot?confirm=true, importing a full
// snapshot. The import is pushed to the sync backend like a local edit.
func (h *Handler) ReplaceSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap models.Snapshot
	if !decodeJSON(w, r, &snap) {
		return
	}
	if !confirmed(r)("replace all local data?") {
		h.writeError(w, "replace snapshot", apperr.ErrAborted)
		return
	}
	if err := h.store.ReplaceAll(snap.Normalize(), true); err != nil {
		h.writeError(w, "replace snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}
