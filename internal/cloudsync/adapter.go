// Package cloudsync keeps the local snapshot in step with a remote backend.
//
// Two structurally different backends sit behind the Adapter interface: a
// document store that pushes change notifications (Firebase) and an object
// store that has to be polled (LeanCloud). The Coordinator selects one of
// them at startup and is the only thing the rest of the program talks to.
package cloudsync

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/starford/pantry/internal/models"
)

// Backend names.
const (
	BackendFirebase  = "firebase"
	BackendLeanCloud = "leancloud"
	BackendAuto      = "auto"
	BackendOffline   = "offline"
)

// ChangeFunc receives a remote snapshot after the backend reports a change.
type ChangeFunc func(snap models.Snapshot)

// Adapter normalises one backend's identity, pairing and change model.
// Methods report failures as errors; the Coordinator turns them into the
// neutral results callers see.
type Adapter interface {
	// Name returns the backend name shown to users.
	Name() string
	// Initialize checks configuration and connectivity. It is idempotent.
	Initialize(ctx context.Context) error
	// Authenticate establishes the device identity.
	Authenticate(ctx context.Context) error
	// PairingCode returns the identity's 6-digit code, registering a new
	// one on first use.
	PairingCode(ctx context.Context) (string, error)
	// UseSyncCode resolves code to its owner, returns the owner's snapshot
	// and adopts the owner's identity as this device's own. Fails with
	// apperr.ErrCodeNotFound or apperr.ErrNoData.
	UseSyncCode(ctx context.Context, code string) (models.Snapshot, error)
	// SaveSnapshot merges the four collections into the identity's remote
	// record and stamps it with the server time.
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
	// LoadSnapshot fetches the identity's remote snapshot. It returns
	// apperr.ErrNoData when nothing was saved yet.
	LoadSnapshot(ctx context.Context) (models.Snapshot, error)
	// ListenToChanges starts delivering remote changes to fn until ctx is
	// cancelled. A second call while a subscription is active is a no-op.
	ListenToChanges(ctx context.Context, fn ChangeFunc) error
	// UserID returns the current identity, empty before Authenticate.
	UserID() string
}

// CodeLength is the number of digits in a pairing code.
const CodeLength = 6

// newPairingCode draws a code uniformly from [100000, 999999]. Collisions
// with existing codes are not checked.
func newPairingCode() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

// remoteRecord is the per-identity data document shared by both backends.
type remoteRecord struct {
	Ingredients  []models.Ingredient `json:"ingredients"`
	CustomDishes []models.Dish       `json:"customDishes"`
	WeeklyMenu   models.WeeklyMenu   `json:"weeklyMenu"`
	CookedDishes models.CookedLog    `json:"cookedDishes"`
}

func (r remoteRecord) snapshot() models.Snapshot {
	return models.Snapshot{
		Ingredients:  r.Ingredients,
		CustomDishes: r.CustomDishes,
		WeeklyMenu:   r.WeeklyMenu,
		CookedDishes: r.CookedDishes,
	}.Normalize()
}

func recordOf(snap models.Snapshot) remoteRecord {
	snap = snap.Normalize()
	return remoteRecord{
		Ingredients:  snap.Ingredients,
		CustomDishes: snap.CustomDishes,
		WeeklyMenu:   snap.WeeklyMenu,
		CookedDishes: snap.CookedDishes,
	}
}
