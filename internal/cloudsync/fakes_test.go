package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func sampleSnapshot(name string) models.Snapshot {
	return models.Snapshot{
		Ingredients: []models.Ingredient{{ID: "a1", Name: name, Type: models.TypeMeat, Quantity: 2, Unit: "份"}},
		CustomDishes: []models.Dish{{ID: "custom_1", Name: "白切鸡", Ingredients: []models.RequiredIngredient{
			{Name: name, Quantity: 1, Unit: "份"},
		}}},
		WeeklyMenu:   models.WeeklyMenu{"2024-01-10": {"白切鸡"}},
		CookedDishes: models.CookedLog{"2024-01-09": {{Name: "白切鸡", Timestamp: 1704790000000}}},
	}.Normalize()
}

// ---- Firebase ----

// fakeFirebase emulates anonymous sign-up and the Realtime Database REST
// surface, including the event stream.
type fakeFirebase struct {
	mu      sync.Mutex
	docs    map[string]json.RawMessage
	nextUID int
	subs    map[string][]chan string
	srv     *httptest.Server
}

func newFakeFirebase(t *testing.T) *fakeFirebase {
	t.Helper()
	f := &fakeFirebase{docs: map[string]json.RawMessage{}, subs: map[string][]chan string{}}

	r := chi.NewRouter()
	r.Post("/v1/accounts:signUp", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			http.Error(w, `{"error":"API key missing"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.nextUID++
		uid := fmt.Sprintf("uid-%d", f.nextUID)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"localId": uid, "idToken": "tok-" + uid, "refreshToken": "r-" + uid, "expiresIn": "3600",
		})
	})
	r.Post("/v1/token", func(w http.ResponseWriter, r *http.Request) {
		refresh := r.FormValue("refresh_token")
		if !strings.HasPrefix(refresh, "r-") {
			http.Error(w, `{"error":"INVALID_REFRESH_TOKEN"}`, http.StatusBadRequest)
			return
		}
		uid := strings.TrimPrefix(refresh, "r-")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id_token": "tok-" + uid, "refresh_token": refresh, "expires_in": "3600",
		})
	})
	r.HandleFunc("/db/*", f.handleDoc)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeFirebase) config() FirebaseConfig {
	return FirebaseConfig{APIKey: "key", DatabaseURL: f.srv.URL + "/db", AuthURL: f.srv.URL + "/v1", TokenURL: f.srv.URL + "/v1"}
}

func (f *fakeFirebase) adapter(t *testing.T) *Firebase {
	t.Helper()
	a := NewFirebase(f.config(), WithFirebaseLogger(quietLogger()), WithStreamRetry(50*time.Millisecond))
	if err := a.Initialize(t.Context()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := a.Authenticate(t.Context()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return a
}

func (f *fakeFirebase) doc(path string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[path]
}

func resolveServerValues(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 && x[".sv"] == "timestamp" {
			return float64(time.Now().UnixMilli())
		}
		for k, vv := range x {
			x[k] = resolveServerValues(vv)
		}
	case []any:
		for i, vv := range x {
			x[i] = resolveServerValues(vv)
		}
	}
	return v
}

func (f *fakeFirebase) handleDoc(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("auth") == "" {
		http.Error(w, `{"error":"Permission denied"}`, http.StatusUnauthorized)
		return
	}
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/db/"), ".json")

	switch r.Method {
	case http.MethodGet:
		if r.Header.Get("Accept") == "text/event-stream" {
			f.serveStream(w, r, path)
			return
		}
		doc := f.doc(path)
		if doc == nil {
			doc = json.RawMessage("null")
		}
		_, _ = w.Write(doc)

	case http.MethodPut, http.MethodPatch:
		body, _ := io.ReadAll(r.Body)
		var incoming map[string]any
		if err := json.Unmarshal(body, &incoming); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resolveServerValues(incoming)

		f.mu.Lock()
		merged := map[string]any{}
		if r.Method == http.MethodPatch && f.docs[path] != nil {
			_ = json.Unmarshal(f.docs[path], &merged)
		}
		for k, v := range incoming {
			merged[k] = v
		}
		data, _ := json.Marshal(merged)
		f.docs[path] = data
		event := "put"
		if r.Method == http.MethodPatch {
			event = "patch"
		}
		for _, ch := range f.subs[path] {
			select {
			case ch <- fmt.Sprintf("event: %s\ndata: {\"path\":\"/\",\"data\":%s}\n\n", event, body):
			default:
			}
		}
		f.mu.Unlock()
		_, _ = w.Write(data)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeFirebase) serveStream(w http.ResponseWriter, r *http.Request, path string) {
	flusher := w.(http.Flusher)
	ch := make(chan string, 16)

	f.mu.Lock()
	f.subs[path] = append(f.subs[path], ch)
	initial := f.docs[path]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		subs := f.subs[path]
		for i, c := range subs {
			if c == ch {
				f.subs[path] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
	}()

	if initial == nil {
		initial = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprintf(w, "event: put\ndata: {\"path\":\"/\",\"data\":%s}\n\n", initial)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-ch:
			fmt.Fprint(w, msg)
			flusher.Flush()
		}
	}
}

// ---- LeanCloud ----

// fakeLeanCloud emulates the class query/create/update REST surface.
type fakeLeanCloud struct {
	mu      sync.Mutex
	objects map[string][]map[string]any
	nextID  int
	clock   time.Time
	srv     *httptest.Server
}

func newFakeLeanCloud(t *testing.T) *fakeLeanCloud {
	t.Helper()
	l := &fakeLeanCloud{
		objects: map[string][]map[string]any{},
		clock:   time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC),
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-LC-Id") == "" || r.Header.Get("X-LC-Key") == "" {
				http.Error(w, `{"code":401,"error":"Unauthorized."}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/1.1/classes/{class}", l.query)
	r.Post("/1.1/classes/{class}", l.create)
	r.Put("/1.1/classes/{class}/{id}", l.update)
	l.srv = httptest.NewServer(r)
	t.Cleanup(l.srv.Close)
	return l
}

func (l *fakeLeanCloud) config() LeanCloudConfig {
	return LeanCloudConfig{AppID: "app", AppKey: "key", ServerURL: l.srv.URL}
}

// tick advances the server clock and returns it in LeanCloud's layout.
func (l *fakeLeanCloud) tick() string {
	l.clock = l.clock.Add(time.Second)
	return l.clock.Format(lcTimeLayout)
}

func (l *fakeLeanCloud) query(w http.ResponseWriter, r *http.Request) {
	var where map[string]any
	_ = json.Unmarshal([]byte(r.URL.Query().Get("where")), &where)

	l.mu.Lock()
	defer l.mu.Unlock()
	results := []map[string]any{}
	for _, obj := range l.objects[chi.URLParam(r, "class")] {
		match := true
		for k, v := range where {
			if obj[k] != v {
				match = false
				break
			}
		}
		if match {
			results = append(results, obj)
		}
	}
	if len(results) > 1 {
		results = results[:1]
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func (l *fakeLeanCloud) create(w http.ResponseWriter, r *http.Request) {
	var obj map[string]any
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	now := l.tick()
	obj["objectId"] = fmt.Sprintf("obj%d", l.nextID)
	obj["createdAt"] = now
	obj["updatedAt"] = now
	class := chi.URLParam(r, "class")
	l.objects[class] = append(l.objects[class], obj)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"objectId": obj["objectId"], "createdAt": now})
}

func (l *fakeLeanCloud) update(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, obj := range l.objects[chi.URLParam(r, "class")] {
		if obj["objectId"] != chi.URLParam(r, "id") {
			continue
		}
		for k, v := range patch {
			obj[k] = v
		}
		obj["updatedAt"] = l.tick()
		_ = json.NewEncoder(w).Encode(obj)
		return
	}
	http.Error(w, `{"code":101,"error":"Object not found."}`, http.StatusNotFound)
}

// ---- fake adapter ----

type fakeAdapter struct {
	name     string
	initErr  error
	authErr  error
	saveErr  error
	saveWait chan struct{}

	mu     sync.Mutex
	saved  []models.Snapshot
	listen ChangeFunc
	uid    string
}

var _ Adapter = (*fakeAdapter)(nil)

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Initialize(context.Context) error { return a.initErr }

func (a *fakeAdapter) PairingCode(context.Context) (string, error) { return "123456", nil }

func (a *fakeAdapter) Authenticate(context.Context) error {
	a.mu.Lock()
	a.uid = "me"
	a.mu.Unlock()
	return a.authErr
}

func (a *fakeAdapter) UserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uid
}

func (a *fakeAdapter) LoadSnapshot(context.Context) (models.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.saved) == 0 {
		return models.Snapshot{}, apperr.ErrNoData
	}
	return a.saved[len(a.saved)-1], nil
}

func (a *fakeAdapter) UseSyncCode(_ context.Context, code string) (models.Snapshot, error) {
	if code != "654321" {
		return models.Snapshot{}, apperr.ErrCodeNotFound
	}
	a.mu.Lock()
	a.uid = "other"
	a.mu.Unlock()
	return sampleSnapshot("remote"), nil
}

func (a *fakeAdapter) SaveSnapshot(_ context.Context, snap models.Snapshot) error {
	if a.saveWait != nil {
		<-a.saveWait
	}
	a.mu.Lock()
	a.saved = append(a.saved, snap)
	a.mu.Unlock()
	return a.saveErr
}

func (a *fakeAdapter) ListenToChanges(_ context.Context, fn ChangeFunc) error {
	a.mu.Lock()
	a.listen = fn
	a.mu.Unlock()
	return nil
}

// emit delivers a remote change as the backend would.
func (a *fakeAdapter) emit(snap models.Snapshot) {
	a.mu.Lock()
	fn := a.listen
	a.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (a *fakeAdapter) savedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}
