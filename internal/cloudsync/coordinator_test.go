package cloudsync

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/models"
)

func candidateFor(a *fakeAdapter, backend string, push bool) Candidate {
	return Candidate{Backend: backend, Enabled: true, Push: push, New: func() (Adapter, error) { return a, nil }}
}

func selected(t *testing.T, a *fakeAdapter, settle time.Duration) *Coordinator {
	t.Helper()
	c := NewCoordinator(WithSettleDelay(settle), WithCoordinatorLogger(quietLogger()))
	if !c.Select(t.Context(), BackendFirebase, []Candidate{candidateFor(a, BackendFirebase, true)}) {
		t.Fatal("Select failed")
	}
	return c
}

func TestOfflineCoordinatorIsNeutral(t *testing.T) {
	c := NewCoordinator(WithCoordinatorLogger(quietLogger()))
	if c.Select(t.Context(), BackendAuto, nil) {
		t.Fatal("Select with no candidates should fail")
	}
	if c.IsAvailable() || c.ServiceName() != BackendOffline || c.Status() != StatusOffline {
		t.Errorf("offline state wrong: available=%v name=%s status=%s", c.IsAvailable(), c.ServiceName(), c.Status())
	}
	if c.SaveSnapshot(t.Context(), sampleSnapshot("x")) {
		t.Error("offline save should return false")
	}
	if c.LoadSnapshot(t.Context()) != nil || c.PairingCode(t.Context()) != "" {
		t.Error("offline load/code should be empty")
	}
	if _, err := c.UseSyncCode(t.Context(), "123456"); !errors.Is(err, apperr.ErrNotInitialized) {
		t.Errorf("offline UseSyncCode err = %v", err)
	}
	c.Stage(sampleSnapshot("x")) // no-op, must not panic
}

func TestSelectModes(t *testing.T) {
	push := &fakeAdapter{name: "Firebase"}
	poll := &fakeAdapter{name: "LeanCloud"}
	candidates := []Candidate{candidateFor(poll, BackendLeanCloud, false), candidateFor(push, BackendFirebase, true)}

	c := NewCoordinator(WithCoordinatorLogger(quietLogger()))
	if !c.Select(t.Context(), BackendAuto, candidates) || c.ServiceName() != "Firebase" {
		t.Errorf("auto should prefer the push backend, got %s", c.ServiceName())
	}

	c = NewCoordinator(WithCoordinatorLogger(quietLogger()))
	if !c.Select(t.Context(), BackendLeanCloud, candidates) || c.ServiceName() != "LeanCloud" {
		t.Errorf("explicit mode got %s", c.ServiceName())
	}

	broken := &fakeAdapter{name: "Firebase", authErr: errors.New("denied")}
	c = NewCoordinator(WithCoordinatorLogger(quietLogger()))
	ok := c.Select(t.Context(), BackendAuto, []Candidate{candidateFor(broken, BackendFirebase, true), candidateFor(poll, BackendLeanCloud, false)})
	if !ok || c.ServiceName() != "LeanCloud" {
		t.Errorf("auto should fall back after auth failure, got %s", c.ServiceName())
	}

	c = NewCoordinator(WithCoordinatorLogger(quietLogger()))
	if c.Select(t.Context(), BackendFirebase, []Candidate{candidateFor(broken, BackendFirebase, true)}) {
		t.Error("explicit mode with failing auth should stay offline")
	}

	disabled := candidateFor(push, BackendFirebase, true)
	disabled.Enabled = false
	c = NewCoordinator(WithCoordinatorLogger(quietLogger()))
	if c.Select(t.Context(), BackendFirebase, []Candidate{disabled}) {
		t.Error("disabled backend must not be selected")
	}
}

func TestSecondSaveWithinSettleIsDropped(t *testing.T) {
	a := &fakeAdapter{name: "Firebase"}
	c := selected(t, a, 200*time.Millisecond)

	if !c.SaveSnapshot(t.Context(), sampleSnapshot("one")) {
		t.Fatal("first save should succeed")
	}
	if c.SaveSnapshot(t.Context(), sampleSnapshot("two")) {
		t.Error("second save inside the settle window should be dropped")
	}
	if a.savedCount() != 1 {
		t.Errorf("adapter saw %d saves, want 1", a.savedCount())
	}

	c.WaitSettled()
	if !c.SaveSnapshot(t.Context(), sampleSnapshot("three")) {
		t.Error("save after settle should succeed")
	}
	c.WaitSettled()
}

func TestConcurrentSaveWhileOutstandingIsDropped(t *testing.T) {
	a := &fakeAdapter{name: "Firebase", saveWait: make(chan struct{})}
	c := selected(t, a, 10*time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.SaveSnapshot(t.Context(), sampleSnapshot("slow"))
	}()
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return c.Status() == StatusSyncing }, "first save never started")

	if c.SaveSnapshot(t.Context(), sampleSnapshot("overlap")) {
		t.Error("overlapping save should be dropped")
	}
	close(a.saveWait)
	wg.Wait()
	c.WaitSettled()
	if a.savedCount() != 1 {
		t.Errorf("saves = %d", a.savedCount())
	}
}

func TestSaveFailureReportsErrorStatus(t *testing.T) {
	a := &fakeAdapter{name: "Firebase", saveErr: errors.New("boom")}
	var mu sync.Mutex
	var statuses []Status
	c := NewCoordinator(WithSettleDelay(time.Millisecond), WithCoordinatorLogger(quietLogger()), WithStatusHook(func(s Status) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	}))
	c.Select(t.Context(), BackendFirebase, []Candidate{candidateFor(a, BackendFirebase, true)})

	if c.SaveSnapshot(t.Context(), sampleSnapshot("x")) {
		t.Error("failed save should return false")
	}
	c.WaitSettled()
	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusSynced, StatusSyncing, StatusError}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses = %v, want %v", statuses, want)
			break
		}
	}
}

func TestInboundChangesAreFiltered(t *testing.T) {
	a := &fakeAdapter{name: "Firebase", saveWait: make(chan struct{})}
	c := selected(t, a, 100*time.Millisecond)

	var mu sync.Mutex
	var applied []models.Snapshot
	c.ListenToChanges(t.Context(), func(s models.Snapshot) {
		mu.Lock()
		applied = append(applied, s)
		mu.Unlock()
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(applied)
	}

	mine := sampleSnapshot("mine")
	done := make(chan struct{})
	go func() {
		c.SaveSnapshot(t.Context(), mine)
		close(done)
	}()
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return c.Status() == StatusSyncing }, "save never started")

	a.emit(sampleSnapshot("during save"))
	close(a.saveWait)
	<-done
	a.emit(mine) // echo inside the settle window
	if count() != 0 {
		t.Fatalf("changes applied while syncing: %d", count())
	}

	c.WaitSettled()
	a.emit(mine) // late echo of our own push
	if count() != 0 {
		t.Error("echo of own push should be ignored after settle")
	}
	a.emit(sampleSnapshot("someone else"))
	if count() != 1 {
		t.Errorf("remote change not applied, count = %d", count())
	}
}

func TestRemoteRevertToOwnPushIsApplied(t *testing.T) {
	a := &fakeAdapter{name: "Firebase"}
	c := selected(t, a, time.Millisecond)

	var mu sync.Mutex
	var applied []models.Snapshot
	c.ListenToChanges(t.Context(), func(s models.Snapshot) {
		mu.Lock()
		applied = append(applied, s)
		mu.Unlock()
	})

	mine := sampleSnapshot("mine")
	if !c.SaveSnapshot(t.Context(), mine) {
		t.Fatal("save failed")
	}
	c.WaitSettled()

	// Another device adds an item, then removes it again.
	added := mine.Clone()
	added.Ingredients = append(added.Ingredients, models.Ingredient{ID: "b1", Name: "豆腐", Type: models.TypeOther, Quantity: 1, Unit: "块"})
	a.emit(added)
	a.emit(mine)

	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 2 {
		t.Fatalf("applied %d remote changes, want 2", len(applied))
	}
	if got := len(applied[1].Ingredients); got != 1 {
		t.Errorf("last applied snapshot has %d ingredients, want 1", got)
	}
}

func TestWaitSettledCoversSavesStartedWhileWaiting(t *testing.T) {
	a := &fakeAdapter{name: "Firebase", saveWait: make(chan struct{})}
	c := selected(t, a, 20*time.Millisecond)

	c.WaitSettled() // nothing pending

	go c.SaveSnapshot(t.Context(), sampleSnapshot("x"))
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return c.Status() == StatusSyncing }, "save never started")

	waited := make(chan struct{})
	go func() {
		c.WaitSettled()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("WaitSettled returned while a save was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	close(a.saveWait)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("WaitSettled never returned")
	}
	if !c.SaveSnapshot(t.Context(), sampleSnapshot("y")) {
		t.Error("save after settling should be accepted")
	}
}

func TestUseSyncCodeValidatesLength(t *testing.T) {
	a := &fakeAdapter{name: "LeanCloud"}
	c := selected(t, a, time.Millisecond)

	if _, err := c.UseSyncCode(t.Context(), "12345"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("short code err = %v", err)
	}
	// Two CJK characters are six bytes.
	if _, err := c.UseSyncCode(t.Context(), "豆腐"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("multibyte code err = %v", err)
	}
	if _, err := c.UseSyncCode(t.Context(), "111111"); !errors.Is(err, apperr.ErrCodeNotFound) {
		t.Errorf("unknown code err = %v", err)
	}
	if a.UserID() != "me" {
		t.Error("failed pairing changed identity")
	}
	snap, err := c.UseSyncCode(t.Context(), "654321")
	if err != nil || snap.Ingredients[0].Name != "remote" {
		t.Errorf("UseSyncCode = %+v, %v", snap, err)
	}
	if c.PairingCode(t.Context()) != "123456" {
		t.Error("pairing code not passed through")
	}
}

func TestNewPairingCodeRange(t *testing.T) {
	for range 1000 {
		if code := newPairingCode(); !codePattern.MatchString(code) {
			t.Fatalf("code %q out of range", code)
		}
	}
}
