package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
	"github.com/starford/pantry/internal/storage"
)

// LeanCloud classes.
const (
	classUserCodes = "UserCodes"
	classSyncCodes = "SyncCodes"
	classUserData  = "UserData"
)

// IdentityKey is the local storage key holding the polling identity.
const IdentityKey = "lc_userId"

// DefaultPollInterval is how often the polling adapter checks for changes.
const DefaultPollInterval = 5 * time.Second

// lcTimeLayout is the ISO form LeanCloud uses for dates.
const lcTimeLayout = "2006-01-02T15:04:05.000Z"

// LeanCloudConfig locates a LeanCloud application.
type LeanCloudConfig struct {
	AppID     string
	AppKey    string
	ServerURL string
}

// LeanCloud is the polling adapter. The object store has no push channel, so
// changes are detected by comparing the record's server-stamped updatedAt
// with the last value observed. The identity is generated locally and kept
// in device storage across sessions.
type LeanCloud struct {
	cfg      LeanCloudConfig
	http     *http.Client
	logger   *slog.Logger
	store    storage.Provider
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	initialized bool
	uid         string
	syncCode    string
	observed    time.Time
	listening   bool
	saving      int    // saves in flight
	saveGen     uint64 // bumped at every save start and end
}

// Compile-time interface check.
var _ Adapter = (*LeanCloud)(nil)

// LeanCloudOption configures a LeanCloud adapter.
type LeanCloudOption func(*LeanCloud)

// WithPollInterval sets how often the remote record is checked.
func WithPollInterval(d time.Duration) LeanCloudOption {
	return func(l *LeanCloud) { l.interval = d }
}

// WithLeanCloudHTTPClient sets the HTTP client.
func WithLeanCloudHTTPClient(c *http.Client) LeanCloudOption {
	return func(l *LeanCloud) { l.http = c }
}

// WithLeanCloudLogger sets the logger.
func WithLeanCloudLogger(lg *slog.Logger) LeanCloudOption {
	return func(l *LeanCloud) { l.logger = lg }
}

// NewLeanCloud creates an adapter that keeps its identity in store.
func NewLeanCloud(cfg LeanCloudConfig, store storage.Provider, opts ...LeanCloudOption) *LeanCloud {
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	l := &LeanCloud{
		cfg:      cfg,
		http:     http.DefaultClient,
		logger:   slog.Default(),
		store:    store,
		interval: DefaultPollInterval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Name implements Adapter.
func (l *LeanCloud) Name() string { return "LeanCloud" }

// UserID implements Adapter.
func (l *LeanCloud) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.uid
}

// Initialize validates the application settings.
func (l *LeanCloud) Initialize(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return nil
	}
	if l.cfg.AppID == "" || l.cfg.AppKey == "" {
		return fmt.Errorf("leancloud: app id and key are required")
	}
	u, err := url.Parse(l.cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("leancloud: invalid server url %q", l.cfg.ServerURL)
	}
	l.initialized = true
	return nil
}

// Authenticate reuses the stored identity or creates and stores a new one.
func (l *LeanCloud) Authenticate(_ context.Context) error {
	data, err := l.store.Get(IdentityKey)
	switch {
	case err == nil:
		var uid string
		if jsonErr := json.Unmarshal(data, &uid); jsonErr != nil || uid == "" {
			return fmt.Errorf("leancloud: stored identity is malformed")
		}
		l.mu.Lock()
		l.uid = uid
		l.mu.Unlock()
	case errors.Is(err, apperr.ErrNotFound):
		uid := "user_" + uuid.NewString()
		if err := l.persistIdentity(uid); err != nil {
			return err
		}
		l.mu.Lock()
		l.uid = uid
		l.mu.Unlock()
	default:
		return fmt.Errorf("leancloud: read identity: %w", err)
	}
	l.logger.Info("leancloud: identity ready", slog.String("user", l.UserID()))
	return nil
}

func (l *LeanCloud) persistIdentity(uid string) error {
	data, _ := json.Marshal(uid)
	if err := l.store.Put(IdentityKey, data); err != nil {
		return fmt.Errorf("leancloud: store identity: %w", err)
	}
	return nil
}

// PairingCode implements Adapter.
func (l *LeanCloud) PairingCode(ctx context.Context) (string, error) {
	uid := l.UserID()
	if uid == "" {
		return "", apperr.ErrNotAuthenticated
	}
	existing, found, err := l.first(ctx, classUserCodes, map[string]any{"userId": uid}, "syncCode")
	if err != nil {
		return "", err
	}
	if found && existing.Get("syncCode").String() != "" {
		code := existing.Get("syncCode").String()
		l.mu.Lock()
		l.syncCode = code
		l.mu.Unlock()
		return code, nil
	}

	code := newPairingCode()
	if _, err := l.create(ctx, classUserCodes, map[string]any{"userId": uid, "syncCode": code}); err != nil {
		return "", err
	}
	if _, err := l.create(ctx, classSyncCodes, map[string]any{"code": code, "userId": uid}); err != nil {
		return "", err
	}
	l.mu.Lock()
	l.syncCode = code
	l.mu.Unlock()
	return code, nil
}

// UseSyncCode adopts the identity behind code and persists it locally, so
// this device stays paired across restarts. There is no way back to the
// previous identity.
func (l *LeanCloud) UseSyncCode(ctx context.Context, code string) (models.Snapshot, error) {
	owner, found, err := l.first(ctx, classSyncCodes, map[string]any{"code": code}, "userId")
	if err != nil {
		return models.Snapshot{}, err
	}
	target := owner.Get("userId").String()
	if !found || target == "" {
		return models.Snapshot{}, apperr.ErrCodeNotFound
	}
	rec, found, err := l.first(ctx, classUserData, map[string]any{"userId": target}, "")
	if err != nil {
		return models.Snapshot{}, err
	}
	if !found {
		return models.Snapshot{}, apperr.ErrNoData
	}
	snap, err := decodeRecord(rec)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := l.persistIdentity(target); err != nil {
		return models.Snapshot{}, err
	}

	l.mu.Lock()
	l.uid = target
	l.syncCode = code
	l.observed = parseLCTime(rec.Get("updatedAt").String())
	l.mu.Unlock()
	return snap, nil
}

// SaveSnapshot updates the identity's record, creating it on first save.
// The returned server stamp becomes the observed value so the poll loop
// does not report this device's own write.
func (l *LeanCloud) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	uid := l.UserID()
	if uid == "" {
		return apperr.ErrNotAuthenticated
	}
	rec := recordOf(snap)
	body := map[string]any{
		"ingredients":  rec.Ingredients,
		"customDishes": rec.CustomDishes,
		"weeklyMenu":   rec.WeeklyMenu,
		"cookedDishes": rec.CookedDishes,
		"lastSync":     map[string]string{"__type": "Date", "iso": l.now().UTC().Format(lcTimeLayout)},
	}

	l.mu.Lock()
	l.saving++
	l.saveGen++
	l.mu.Unlock()
	var stamp time.Time
	defer func() {
		l.mu.Lock()
		l.saving--
		l.saveGen++
		if stamp.After(l.observed) {
			l.observed = stamp
		}
		l.mu.Unlock()
	}()

	existing, found, err := l.first(ctx, classUserData, map[string]any{"userId": uid}, "objectId")
	if err != nil {
		return err
	}
	if found {
		resp, err := l.request(ctx, http.MethodPut, "/1.1/classes/"+classUserData+"/"+existing.Get("objectId").String()+"?fetchWhenSave=true", body)
		if err != nil {
			return err
		}
		stamp = parseLCTime(gjson.GetBytes(resp, "updatedAt").String())
	} else {
		body["userId"] = uid
		resp, err := l.create(ctx, classUserData, body)
		if err != nil {
			return err
		}
		stamp = parseLCTime(gjson.GetBytes(resp, "createdAt").String())
	}
	return nil
}

// LoadSnapshot implements Adapter.
func (l *LeanCloud) LoadSnapshot(ctx context.Context) (models.Snapshot, error) {
	uid := l.UserID()
	if uid == "" {
		return models.Snapshot{}, apperr.ErrNotAuthenticated
	}
	rec, found, err := l.first(ctx, classUserData, map[string]any{"userId": uid}, "")
	if err != nil {
		return models.Snapshot{}, err
	}
	if !found {
		return models.Snapshot{}, apperr.ErrNoData
	}
	return decodeRecord(rec)
}

// ListenToChanges records the current server stamp and then polls every
// interval, calling fn only when the stamp is strictly newer than the last
// one observed.
func (l *LeanCloud) ListenToChanges(ctx context.Context, fn ChangeFunc) error {
	l.mu.Lock()
	if l.uid == "" {
		l.mu.Unlock()
		return apperr.ErrNotAuthenticated
	}
	if l.listening {
		l.mu.Unlock()
		return nil
	}
	l.listening = true
	uid := l.uid
	l.mu.Unlock()

	if rec, found, err := l.first(ctx, classUserData, map[string]any{"userId": uid}, "updatedAt"); err != nil {
		l.logger.Warn("leancloud: initial stamp unavailable", slog.String("error", err.Error()))
	} else if found {
		l.advance(parseLCTime(rec.Get("updatedAt").String()), l.generation())
	}

	go l.pollLoop(ctx, fn)
	return nil
}

func (l *LeanCloud) generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveGen
}

// advance moves the observed stamp forward and reports whether it moved. A
// stamp read while one of this device's saves was in flight (gen differs) is
// discarded; the save records its own stamp when it completes.
func (l *LeanCloud) advance(stamp time.Time, gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saving > 0 || l.saveGen != gen {
		return false
	}
	if !stamp.After(l.observed) {
		return false
	}
	l.observed = stamp
	return true
}

func (l *LeanCloud) pollLoop(ctx context.Context, fn ChangeFunc) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	defer func() {
		l.mu.Lock()
		l.listening = false
		l.mu.Unlock()
	}()

	l.logger.Info("leancloud: polling started", slog.Duration("interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("leancloud: polling stopped")
			return
		case <-ticker.C:
			l.poll(ctx, fn)
		}
	}
}

// poll runs one check. Errors are logged and the next tick tries again.
func (l *LeanCloud) poll(ctx context.Context, fn ChangeFunc) {
	uid := l.UserID()
	gen := l.generation()
	head, found, err := l.first(ctx, classUserData, map[string]any{"userId": uid}, "updatedAt")
	if err != nil {
		l.logger.Warn("leancloud: poll failed", slog.String("error", err.Error()))
		return
	}
	if !found || !l.advance(parseLCTime(head.Get("updatedAt").String()), gen) {
		return
	}
	snap, err := l.LoadSnapshot(ctx)
	if err != nil {
		l.logger.Warn("leancloud: fetch after change failed", slog.String("error", err.Error()))
		return
	}
	fn(snap)
}

// first runs a where query and returns the first result. keys limits the
// returned fields; empty means all.
func (l *LeanCloud) first(ctx context.Context, class string, where map[string]any, keys string) (gjson.Result, bool, error) {
	w, err := json.Marshal(where)
	if err != nil {
		return gjson.Result{}, false, err
	}
	q := url.Values{"where": {string(w)}, "limit": {"1"}}
	if keys != "" {
		q.Set("keys", keys)
	}
	body, err := l.request(ctx, http.MethodGet, "/1.1/classes/"+class+"?"+q.Encode(), nil)
	if err != nil {
		return gjson.Result{}, false, err
	}
	res := gjson.GetBytes(body, "results.0")
	return res, res.Exists(), nil
}

func (l *LeanCloud) create(ctx context.Context, class string, body any) ([]byte, error) {
	return l.request(ctx, http.MethodPost, "/1.1/classes/"+class+"?fetchWhenSave=true", body)
}

func (l *LeanCloud) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("leancloud: encode: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.cfg.ServerURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-LC-Id", l.cfg.AppID)
	req.Header.Set("X-LC-Key", l.cfg.AppKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("leancloud: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("leancloud: %s %s: %w", method, path, httpError(resp))
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("leancloud: read response: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(res gjson.Result) (models.Snapshot, error) {
	var rec remoteRecord
	if err := json.Unmarshal([]byte(res.Raw), &rec); err != nil {
		return models.Snapshot{}, fmt.Errorf("leancloud: decode record: %w", err)
	}
	return rec.snapshot(), nil
}

func parseLCTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
