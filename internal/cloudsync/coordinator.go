package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/checksum"
	"github.com/starford/pantry/internal/models"
)

// Status is the sync indicator state.
type Status string

// Sync indicator states.
const (
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// DefaultSettleDelay is how long the save guard stays closed after a push
// completes, so the backend's echo of that push is not applied as a remote
// change.
const DefaultSettleDelay = 500 * time.Millisecond

// Candidate is one backend the Coordinator may select.
type Candidate struct {
	Backend string
	Enabled bool
	// Push marks backends with native change notifications; auto mode
	// prefers them.
	Push bool
	New  func() (Adapter, error)
}

// Coordinator owns at most one adapter. It serialises outbound saves and
// filters inbound notifications so a device never re-applies its own write.
type Coordinator struct {
	logger   *slog.Logger
	settle   time.Duration
	onStatus func(Status)

	mu         sync.Mutex
	adapter    Adapter
	syncing    bool
	lastPushed string // checksum of the last snapshot pushed; cleared once a remote change is applied
	status     Status
	pending    int // saves not yet past their settle delay
	settled    *sync.Cond
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.settle = d }
}

// WithStatusHook registers a callback for indicator transitions.
func WithStatusHook(fn func(Status)) CoordinatorOption {
	return func(c *Coordinator) { c.onStatus = fn }
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator returns an offline coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		logger: slog.Default(),
		settle: DefaultSettleDelay,
		status: StatusOffline,
	}
	c.settled = sync.NewCond(&c.mu)
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	hook := c.onStatus
	c.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

// Status returns the current indicator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// order returns the candidates to try for mode.
func order(mode string, candidates []Candidate) []Candidate {
	var out []Candidate
	switch mode {
	case BackendAuto:
		for _, push := range []bool{true, false} {
			for _, cand := range candidates {
				if cand.Enabled && cand.Push == push {
					out = append(out, cand)
				}
			}
		}
	default:
		for _, cand := range candidates {
			if cand.Enabled && cand.Backend == mode {
				out = append(out, cand)
			}
		}
	}
	return out
}

// Select instantiates the backend chosen by mode and runs Initialize then
// Authenticate. Both must succeed for the adapter to be adopted; in auto mode
// the next enabled backend is tried after a failure. It reports whether a
// backend is now active; false leaves the coordinator offline.
func (c *Coordinator) Select(ctx context.Context, mode string, candidates []Candidate) bool {
	for _, cand := range order(mode, candidates) {
		a, err := c.activate(ctx, cand)
		if err != nil {
			c.logger.Warn("sync: backend unavailable",
				slog.String("backend", cand.Backend),
				slog.String("error", err.Error()))
			continue
		}
		c.mu.Lock()
		c.adapter = a
		c.mu.Unlock()
		c.logger.Info("sync: backend selected", slog.String("backend", a.Name()), slog.String("user", a.UserID()))
		c.setStatus(StatusSynced)
		return true
	}
	c.logger.Info("sync: offline mode", slog.String("mode", mode))
	c.setStatus(StatusOffline)
	return false
}

func (c *Coordinator) activate(ctx context.Context, cand Candidate) (Adapter, error) {
	a, err := cand.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrBackendUnavailable, err)
	}
	if err := a.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("%w: initialize: %v", apperr.ErrBackendUnavailable, err)
	}
	if err := a.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("%w: authenticate: %v", apperr.ErrBackendUnavailable, err)
	}
	return a, nil
}

func (c *Coordinator) active() Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adapter
}

// IsAvailable reports whether a backend is selected.
func (c *Coordinator) IsAvailable() bool {
	return c.active() != nil
}

// ServiceName returns the active backend name, or "offline".
func (c *Coordinator) ServiceName() string {
	if a := c.active(); a != nil {
		return a.Name()
	}
	return BackendOffline
}

// SaveSnapshot pushes snap. A call made while another save is outstanding,
// or within the settle delay after one, is dropped and returns false.
func (c *Coordinator) SaveSnapshot(ctx context.Context, snap models.Snapshot) bool {
	c.mu.Lock()
	a := c.adapter
	if a == nil || c.syncing {
		c.mu.Unlock()
		return false
	}
	c.syncing = true
	c.pending++
	c.mu.Unlock()

	c.setStatus(StatusSyncing)
	err := a.SaveSnapshot(ctx, snap)
	if err != nil {
		c.logger.Error("sync: save failed", slog.String("backend", a.Name()), slog.String("error", err.Error()))
		c.setStatus(StatusError)
	} else {
		if sum, sumErr := checksum.JSON(snap.Normalize()); sumErr == nil {
			c.mu.Lock()
			c.lastPushed = sum
			c.mu.Unlock()
		}
		c.setStatus(StatusSynced)
	}

	time.AfterFunc(c.settle, func() {
		c.mu.Lock()
		c.syncing = false
		c.pending--
		c.settled.Broadcast()
		c.mu.Unlock()
	})
	return err == nil
}

// Stage pushes snap in the background. Local mutations never wait on sync.
func (c *Coordinator) Stage(snap models.Snapshot) {
	if !c.IsAvailable() {
		return
	}
	go c.SaveSnapshot(context.Background(), snap)
}

// WaitSettled blocks until every save has completed and its settle delay
// elapsed.
func (c *Coordinator) WaitSettled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending > 0 {
		c.settled.Wait()
	}
}

// ListenToChanges subscribes fn to remote changes. Notifications that arrive
// while a save is outstanding or settling, or that carry exactly the snapshot
// this device last pushed with no remote change applied since, are dropped.
func (c *Coordinator) ListenToChanges(ctx context.Context, fn ChangeFunc) {
	a := c.active()
	if a == nil {
		return
	}
	err := a.ListenToChanges(ctx, func(snap models.Snapshot) {
		sum, sumErr := checksum.JSON(snap.Normalize())
		c.mu.Lock()
		if c.syncing {
			c.mu.Unlock()
			c.logger.Debug("sync: inbound change suppressed during save")
			return
		}
		if sumErr == nil && sum == c.lastPushed {
			c.mu.Unlock()
			c.logger.Debug("sync: inbound echo of own push ignored")
			return
		}
		// From here on a copy of our push is someone else's write.
		c.lastPushed = ""
		c.mu.Unlock()
		fn(snap)
	})
	if err != nil {
		c.logger.Error("sync: listen failed", slog.String("backend", a.Name()), slog.String("error", err.Error()))
		c.setStatus(StatusError)
	}
}

// LoadSnapshot fetches the remote snapshot, or nil when offline, when nothing
// is stored remotely, or on failure.
func (c *Coordinator) LoadSnapshot(ctx context.Context) *models.Snapshot {
	a := c.active()
	if a == nil {
		return nil
	}
	snap, err := a.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, apperr.ErrNoData) {
			c.logger.Error("sync: load failed", slog.String("backend", a.Name()), slog.String("error", err.Error()))
		}
		return nil
	}
	return &snap
}

// PairingCode returns this device's code, or "" when offline or on failure.
func (c *Coordinator) PairingCode(ctx context.Context) string {
	a := c.active()
	if a == nil {
		return ""
	}
	code, err := a.PairingCode(ctx)
	if err != nil {
		c.logger.Error("sync: pairing code failed", slog.String("backend", a.Name()), slog.String("error", err.Error()))
		return ""
	}
	return code
}

// UseSyncCode pairs this device onto the identity behind code and returns
// that identity's snapshot.
func (c *Coordinator) UseSyncCode(ctx context.Context, code string) (models.Snapshot, error) {
	a := c.active()
	if a == nil {
		return models.Snapshot{}, apperr.ErrNotInitialized
	}
	if utf8.RuneCountInString(code) != CodeLength {
		return models.Snapshot{}, fmt.Errorf("%w: sync code must be %d characters", apperr.ErrValidation, CodeLength)
	}
	snap, err := a.UseSyncCode(ctx, code)
	if err != nil {
		c.logger.Warn("sync: use code failed", slog.String("backend", a.Name()), slog.String("error", err.Error()))
		return models.Snapshot{}, err
	}
	c.logger.Info("sync: paired", slog.String("backend", a.Name()), slog.String("user", a.UserID()))
	return snap, nil
}
