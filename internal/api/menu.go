package api

import (
	"net/http"
	"strconv"
)

// resolveDate turns the {date} parameter (a day key or a phrase such as
// "tomorrow") into a day key.
func (h *Handler) resolveDate(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := h.store.ResolveDate(pathParam(r, "date"))
	if err != nil {
		h.writeError(w, "resolve date", err)
		return "", false
	}
	return key, true
}

// Week handles GET /menu?offset=N.
//
//	@Summary	Seven days of plans and cooked dishes starting on Monday
//	@Tags		menu
//	@Produce	json
//	@Param		offset	query	int	false	"Weeks relative to the current one"
//	@Success	200		{array}	inventory.WeekDay
//	@Security	BearerAuth
//	@Router		/menu [get]
func (h *Handler) Week(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("offset must be an integer"))
			return
		}
		offset = n
	}
	writeJSON(w, http.StatusOK, h.store.Week(offset))
}

// DayPlan handles GET /menu/{date}.
func (h *Handler) DayPlan(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolveDate(w, r)
	if !ok {
		return
	}
	plan, err := h.store.DayPlan(key)
	if err != nil {
		h.writeError(w, "day plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// PlanDish handles POST /menu/{date}.
//
//	@Summary	Add a dish to a day's menu
//	@Tags		menu
//	@Accept		json
//	@Produce	json
//	@Param		date	path		string		true	"Day key or phrase like tomorrow"
//	@Param		body	body		PlanRequest	true	"Dish"
//	@Success	201		{object}	inventory.DayPlan
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/menu/{date} [post]
func (h *Handler) PlanDish(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	key, ok := h.resolveDate(w, r)
	if !ok {
		return
	}
	if err := h.store.QuickAddDish(key, req.Name); err != nil {
		h.writeError(w, "plan dish", err)
		return
	}
	plan, err := h.store.DayPlan(key)
	if err != nil {
		h.writeError(w, "day plan", err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// UnplanDish handles DELETE /menu/{date}/{name}.
func (h *Handler) UnplanDish(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolveDate(w, r)
	if !ok {
		return
	}
	if err := h.store.RemoveDishFromMenu(key, pathParam(r, "name")); err != nil {
		h.writeError(w, "unplan dish", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
