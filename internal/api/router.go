package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pantry/internal/assistant"
	"github.com/starford/pantry/internal/cloudsync"
	"github.com/starford/pantry/internal/inventory"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Store     *inventory.Store
	Sync      *cloudsync.Coordinator
	Assistant *assistant.Client
	Logger    *slog.Logger

	// Events, if non-nil, is mounted at GET /events (SSE).
	Events http.Handler
	// WebSocket, if non-nil, is mounted at GET /ws.
	WebSocket http.HandlerFunc
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(d Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(d.Store, d.Sync, d.Assistant, d.Logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Stock.
	r.Get("/ingredients", h.ListIngredients)
	r.Post("/ingredients", h.AddIngredient)
	r.Delete("/ingredients", h.ClearIngredients)
	r.Post("/ingredients/recognize", h.Recognize)
	r.Patch("/ingredients/{id}", h.RenameIngredient)
	r.Post("/ingredients/{id}/adjust", h.AdjustIngredient)
	r.Delete("/ingredients/{id}", h.RemoveIngredient)

	// Dishes.
	r.Get("/dishes", h.ListDishes)
	r.Post("/dishes", h.SaveDish)
	r.Get("/dishes/{name}", h.GetDish)
	r.Delete("/dishes/{name}", h.DeleteDish)
	r.Post("/dishes/{name}/cook", h.CookDish)
	r.Post("/dishes/{name}/uncook", h.UncookDish)

	// Weekly menu.
	r.Get("/menu", h.Week)
	r.Get("/menu/{date}", h.DayPlan)
	r.Post("/menu/{date}", h.PlanDish)
	r.Delete("/menu/{date}/{name}", h.UnplanDish)

	r.Get("/stats", h.Stats)
	r.Get("/snapshot", h.Snapshot)
	r.Put("/snapshot", h.ReplaceSnapshot)

	// Sync.
	r.Get("/sync", h.SyncStatus)
	r.Post("/sync/code", h.PairingCode)
	r.Post("/sync/pair", h.Pair)

	r.Post("/assistant/chat", h.Chat)

	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}
	if d.WebSocket != nil {
		r.Get("/ws", d.WebSocket)
	}
	return r
}
