package api

import (
	"net/http"

	"github.com/starford/pantry/internal/inventory"
	"github.com/starford/pantry/internal/models"
)

func (h *Handler) dishView(stock []models.Ingredient, d models.Dish) DishView {
	return DishView{
		Dish:    d,
		Builtin: h.store.IsBuiltin(d.ID),
		CanMake: inventory.CanMakeDish(stock, d),
		Missing: inventory.MissingIngredients(stock, d),
	}
}

// ListDishes handles GET /dishes. With ?feasible=true only dishes that can be
// cooked from current stock are returned.
//
//	@Summary	List built-in and custom dishes with feasibility
//	@Tags		dishes
//	@Produce	json
//	@Param		feasible	query	bool	false	"Only cookable dishes"
//	@Success	200			{array}	DishView
//	@Security	BearerAuth
//	@Router		/dishes [get]
func (h *Handler) ListDishes(w http.ResponseWriter, r *http.Request) {
	onlyFeasible := r.URL.Query().Get("feasible") == "true"
	stock := h.store.Ingredients()
	out := []DishView{}
	for _, d := range h.store.Dishes() {
		v := h.dishView(stock, d)
		if onlyFeasible && !v.CanMake {
			continue
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetDish handles GET /dishes/{name}.
func (h *Handler) GetDish(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.FindDish(pathParam(r, "name"))
	if err != nil {
		h.writeError(w, "get dish", err)
		return
	}
	writeJSON(w, http.StatusOK, h.dishView(h.store.Ingredients(), d))
}

// SaveDish handles POST /dishes.
//
//	@Summary	Save a custom dish
//	@Tags		dishes
//	@Accept		json
//	@Produce	json
//	@Param		body	body		inventory.DishInput	true	"Dish"
//	@Success	201		{object}	models.Dish
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/dishes [post]
func (h *Handler) SaveDish(w http.ResponseWriter, r *http.Request) {
	var in inventory.DishInput
	if !decodeJSON(w, r, &in) {
		return
	}
	d, err := h.store.SaveDish(in)
	if err != nil {
		h.writeError(w, "save dish", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// DeleteDish handles DELETE /dishes/{name}?confirm=true. Built-in dishes are
// read-only.
func (h *Handler) DeleteDish(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.FindDish(pathParam(r, "name"))
	if err != nil {
		h.writeError(w, "delete dish", err)
		return
	}
	if err := h.store.DeleteDish(d.ID, confirmed(r)); err != nil {
		h.writeError(w, "delete dish", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CookDish handles POST /dishes/{name}/cook.
//
//	@Summary	Cook a dish, consuming its ingredients
//	@Tags		dishes
//	@Accept		json
//	@Produce	json
//	@Param		name	path		string			true	"Dish name"
//	@Param		body	body		ConfirmRequest	true	"Confirmation"
//	@Success	200		{array}		models.Ingredient
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Failure	422		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/dishes/{name}/cook [post]
func (h *Handler) CookDish(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.CookDish(pathParam(r, "name"), answer(req.Confirm)); err != nil {
		h.writeError(w, "cook dish", err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Ingredients())
}

// UncookDish handles POST /dishes/{name}/uncook.
func (h *Handler) UncookDish(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.UnmarkDishAsCooked(pathParam(r, "name"), answer(req.Confirm)); err != nil {
		h.writeError(w, "uncook dish", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
