package cloudsync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
	"github.com/starford/pantry/internal/storage"
)

// Default Google endpoints for anonymous sign-in and token refresh.
const (
	DefaultFirebaseAuthURL  = "https://identitytoolkit.googleapis.com/v1"
	DefaultFirebaseTokenURL = "https://securetoken.googleapis.com/v1"
)

// SessionKey is the storage key of the persisted Firebase session.
const SessionKey = "fb_session"

// FirebaseConfig locates a Firebase project.
type FirebaseConfig struct {
	APIKey      string
	DatabaseURL string // e.g. https://<project>-default-rtdb.firebaseio.com
	AuthURL     string
	TokenURL    string
}

// Firebase is the push-capable adapter. Identity comes from anonymous
// sign-up, so every install starts with a fresh account unless it pairs.
// With a session store the account and any adopted identity survive
// restarts. Documents live in the Realtime Database and changes arrive over
// its event-stream endpoint.
type Firebase struct {
	cfg     FirebaseConfig
	http    *http.Client
	logger  *slog.Logger
	retry   time.Duration
	session storage.Provider

	mu           sync.Mutex
	initialized  bool
	uid          string
	idToken      string
	refreshToken string
	expiresAt    time.Time
	syncCode     string
	listening    bool
	restart      context.CancelFunc // reconnects the stream after re-homing
}

// Compile-time interface check.
var _ Adapter = (*Firebase)(nil)

// FirebaseOption configures a Firebase adapter.
type FirebaseOption func(*Firebase)

// WithFirebaseHTTPClient sets the HTTP client.
func WithFirebaseHTTPClient(c *http.Client) FirebaseOption {
	return func(f *Firebase) { f.http = c }
}

// WithFirebaseLogger sets the logger.
func WithFirebaseLogger(l *slog.Logger) FirebaseOption {
	return func(f *Firebase) { f.logger = l }
}

// WithStreamRetry sets the pause before the change stream reconnects.
func WithStreamRetry(d time.Duration) FirebaseOption {
	return func(f *Firebase) { f.retry = d }
}

// WithSessionStore persists the identity and refresh token in p.
func WithSessionStore(p storage.Provider) FirebaseOption {
	return func(f *Firebase) { f.session = p }
}

// NewFirebase creates an adapter. Nothing is contacted until Initialize.
func NewFirebase(cfg FirebaseConfig, opts ...FirebaseOption) *Firebase {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultFirebaseAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultFirebaseTokenURL
	}
	cfg.DatabaseURL = strings.TrimRight(cfg.DatabaseURL, "/")
	f := &Firebase{
		cfg:    cfg,
		http:   http.DefaultClient,
		logger: slog.Default(),
		retry:  3 * time.Second,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Name implements Adapter.
func (f *Firebase) Name() string { return "Firebase" }

// UserID implements Adapter.
func (f *Firebase) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uid
}

// Initialize validates the project settings.
func (f *Firebase) Initialize(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initialized {
		return nil
	}
	if f.cfg.APIKey == "" {
		return fmt.Errorf("firebase: api key is empty")
	}
	u, err := url.Parse(f.cfg.DatabaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("firebase: invalid database url %q", f.cfg.DatabaseURL)
	}
	f.initialized = true
	return nil
}

type signUpResponse struct {
	LocalID      string `json:"localId"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type firebaseSession struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

// Authenticate resumes the stored session or creates an anonymous account.
func (f *Firebase) Authenticate(ctx context.Context) error {
	if f.resume(ctx) {
		return nil
	}
	endpoint := f.cfg.AuthURL + "/accounts:signUp?key=" + url.QueryEscape(f.cfg.APIKey)
	var resp signUpResponse
	if err := f.postJSON(ctx, endpoint, map[string]any{"returnSecureToken": true}, &resp); err != nil {
		return fmt.Errorf("firebase: sign up: %w", err)
	}
	if resp.LocalID == "" || resp.IDToken == "" {
		return fmt.Errorf("firebase: sign up: empty identity")
	}
	f.mu.Lock()
	f.uid = resp.LocalID
	f.setTokenLocked(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	f.mu.Unlock()
	f.saveSession()
	f.logger.Info("firebase: signed in", slog.String("user", resp.LocalID))
	return nil
}

// resume restores a stored session and proves it by refreshing the token.
func (f *Firebase) resume(ctx context.Context) bool {
	if f.session == nil {
		return false
	}
	data, err := f.session.Get(SessionKey)
	if err != nil {
		return false
	}
	var sess firebaseSession
	if err := json.Unmarshal(data, &sess); err != nil || sess.UserID == "" || sess.RefreshToken == "" {
		f.logger.Warn("firebase: stored session is malformed")
		return false
	}
	f.mu.Lock()
	f.uid, f.idToken, f.refreshToken = sess.UserID, "", sess.RefreshToken
	f.mu.Unlock()
	if _, err := f.token(ctx); err != nil {
		f.logger.Warn("firebase: stored session rejected", slog.String("error", err.Error()))
		f.mu.Lock()
		f.uid, f.refreshToken = "", ""
		f.mu.Unlock()
		return false
	}
	f.logger.Info("firebase: session resumed", slog.String("user", sess.UserID))
	return true
}

func (f *Firebase) saveSession() {
	if f.session == nil {
		return
	}
	f.mu.Lock()
	sess := firebaseSession{UserID: f.uid, RefreshToken: f.refreshToken}
	f.mu.Unlock()
	data, _ := json.Marshal(sess)
	if err := f.session.Put(SessionKey, data); err != nil {
		f.logger.Warn("firebase: store session failed", slog.String("error", err.Error()))
	}
}

func (f *Firebase) setTokenLocked(idToken, refresh, expiresIn string) {
	f.idToken = idToken
	if refresh != "" {
		f.refreshToken = refresh
	}
	secs, err := strconv.Atoi(expiresIn)
	if err != nil || secs <= 0 {
		secs = 3600
	}
	// Refresh a minute early.
	f.expiresAt = time.Now().Add(time.Duration(secs)*time.Second - time.Minute)
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

// token returns a valid ID token, refreshing it when it is about to expire.
func (f *Firebase) token(ctx context.Context) (string, error) {
	f.mu.Lock()
	tok, refresh, exp := f.idToken, f.refreshToken, f.expiresAt
	f.mu.Unlock()
	if tok == "" && refresh == "" {
		return "", apperr.ErrNotAuthenticated
	}
	if tok != "" && (time.Now().Before(exp) || refresh == "") {
		return tok, nil
	}

	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {refresh}}
	endpoint := f.cfg.TokenURL + "/token?key=" + url.QueryEscape(f.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var resp refreshResponse
	if err := f.do(req, &resp); err != nil {
		return "", fmt.Errorf("firebase: refresh token: %w", err)
	}
	f.mu.Lock()
	f.setTokenLocked(resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	f.mu.Unlock()
	return resp.IDToken, nil
}

func (f *Firebase) docURL(ctx context.Context, path string) (string, error) {
	tok, err := f.token(ctx)
	if err != nil {
		return "", err
	}
	return f.cfg.DatabaseURL + "/" + path + ".json?auth=" + url.QueryEscape(tok), nil
}

// getDoc fetches path into out. found is false when the document is absent.
func (f *Firebase) getDoc(ctx context.Context, path string, out any) (found bool, err error) {
	u, err := f.docURL(ctx, path)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	var raw json.RawMessage
	if err := f.do(req, &raw); err != nil {
		return false, fmt.Errorf("firebase: get %s: %w", path, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("firebase: decode %s: %w", path, err)
	}
	return true, nil
}

func (f *Firebase) writeDoc(ctx context.Context, method, path string, body any) error {
	u, err := f.docURL(ctx, path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("firebase: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := f.do(req, nil); err != nil {
		return fmt.Errorf("firebase: %s %s: %w", strings.ToLower(method), path, err)
	}
	return nil
}

var serverTimestamp = map[string]string{".sv": "timestamp"}

type firebaseUser struct {
	SyncCode string `json:"syncCode"`
}

type firebaseCode struct {
	UserID string `json:"userId"`
}

// PairingCode implements Adapter.
func (f *Firebase) PairingCode(ctx context.Context) (string, error) {
	uid := f.UserID()
	if uid == "" {
		return "", apperr.ErrNotAuthenticated
	}
	var user firebaseUser
	found, err := f.getDoc(ctx, "users/"+uid, &user)
	if err != nil {
		return "", err
	}
	if found && user.SyncCode != "" {
		f.mu.Lock()
		f.syncCode = user.SyncCode
		f.mu.Unlock()
		return user.SyncCode, nil
	}

	code := newPairingCode()
	if err := f.writeDoc(ctx, http.MethodPut, "users/"+uid, map[string]any{
		"syncCode":  code,
		"createdAt": serverTimestamp,
	}); err != nil {
		return "", err
	}
	if err := f.writeDoc(ctx, http.MethodPut, "syncCodes/"+code, firebaseCode{UserID: uid}); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.syncCode = code
	f.mu.Unlock()
	return code, nil
}

// UseSyncCode implements Adapter.
func (f *Firebase) UseSyncCode(ctx context.Context, code string) (models.Snapshot, error) {
	var owner firebaseCode
	found, err := f.getDoc(ctx, "syncCodes/"+code, &owner)
	if err != nil {
		return models.Snapshot{}, err
	}
	if !found || owner.UserID == "" {
		return models.Snapshot{}, apperr.ErrCodeNotFound
	}
	var rec remoteRecord
	found, err = f.getDoc(ctx, "userData/"+owner.UserID, &rec)
	if err != nil {
		return models.Snapshot{}, err
	}
	if !found {
		return models.Snapshot{}, apperr.ErrNoData
	}

	f.mu.Lock()
	f.uid = owner.UserID
	f.syncCode = code
	restart := f.restart
	f.mu.Unlock()
	f.saveSession()
	if restart != nil {
		restart()
	}
	return rec.snapshot(), nil
}

// SaveSnapshot patches the four collections and the server timestamp, leaving
// any other fields of the record in place.
func (f *Firebase) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	uid := f.UserID()
	if uid == "" {
		return apperr.ErrNotAuthenticated
	}
	rec := recordOf(snap)
	return f.writeDoc(ctx, http.MethodPatch, "userData/"+uid, map[string]any{
		"ingredients":  rec.Ingredients,
		"customDishes": rec.CustomDishes,
		"weeklyMenu":   rec.WeeklyMenu,
		"cookedDishes": rec.CookedDishes,
		"lastSync":     serverTimestamp,
	})
}

// LoadSnapshot implements Adapter.
func (f *Firebase) LoadSnapshot(ctx context.Context) (models.Snapshot, error) {
	uid := f.UserID()
	if uid == "" {
		return models.Snapshot{}, apperr.ErrNotAuthenticated
	}
	var rec remoteRecord
	found, err := f.getDoc(ctx, "userData/"+uid, &rec)
	if err != nil {
		return models.Snapshot{}, err
	}
	if !found {
		return models.Snapshot{}, apperr.ErrNoData
	}
	return rec.snapshot(), nil
}

// ListenToChanges opens the event stream on the identity's data record and
// calls fn with the fresh document after every put or patch. The stream
// reconnects after errors and after the identity changes.
func (f *Firebase) ListenToChanges(ctx context.Context, fn ChangeFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uid == "" {
		return apperr.ErrNotAuthenticated
	}
	if f.listening {
		return nil
	}
	f.listening = true
	go f.streamLoop(ctx, fn)
	return nil
}

func (f *Firebase) streamLoop(ctx context.Context, fn ChangeFunc) {
	defer func() {
		f.mu.Lock()
		f.listening = false
		f.restart = nil
		f.mu.Unlock()
	}()

	for ctx.Err() == nil {
		sctx, cancel := context.WithCancel(ctx)
		f.mu.Lock()
		f.restart = cancel
		uid := f.uid
		f.mu.Unlock()

		err := f.stream(sctx, uid, fn)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			f.logger.Warn("firebase: stream interrupted", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.retry):
			}
		}
	}
}

// stream reads one event-stream connection until it ends.
func (f *Firebase) stream(ctx context.Context, uid string, fn ChangeFunc) error {
	u, err := f.docURL(ctx, "userData/"+uid)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := f.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}

	f.logger.Debug("firebase: stream open", slog.String("user", uid))
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	var event string
	var data []byte
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		case line == "":
			if err := f.dispatch(ctx, event, data, fn); err != nil {
				return err
			}
			event, data = "", nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func (f *Firebase) dispatch(ctx context.Context, event string, data []byte, fn ChangeFunc) error {
	switch event {
	case "put", "patch":
		// A put of null at the root means the record was removed.
		if event == "put" && gjson.GetBytes(data, "path").String() == "/" && gjson.GetBytes(data, "data").Type == gjson.Null {
			return nil
		}
		snap, err := f.LoadSnapshot(ctx)
		if err != nil {
			f.logger.Warn("firebase: refetch after change failed", slog.String("error", err.Error()))
			return nil
		}
		fn(snap)
	case "auth_revoked":
		f.mu.Lock()
		f.expiresAt = time.Time{}
		f.mu.Unlock()
		return fmt.Errorf("firebase: stream auth revoked")
	case "cancel":
		return fmt.Errorf("firebase: stream cancelled: %s", data)
	}
	return nil
}

func (f *Firebase) postJSON(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, out)
}

func (f *Firebase) do(req *http.Request, out any) error {
	resp, err := f.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*raw = b
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// httpError reads a short excerpt of a failed response.
func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
