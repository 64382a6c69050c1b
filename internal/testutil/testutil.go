// Package testutil provides shared test helpers for setting up stores.
package testutil

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/pantry/internal/inventory"
	"github.com/starford/pantry/internal/models"
	"github.com/starford/pantry/internal/storage"
)

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestFS creates a temporary data directory with an FS provider.
func TestFS(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

// TestStore creates a loaded store on a temporary FS with a fixed clock and
// sequential ingredient ids ing-1, ing-2, ...
func TestStore(t *testing.T, now time.Time, opts ...inventory.Option) (*inventory.Store, *storage.FS) {
	t.Helper()
	fs := TestFS(t)
	seq := 0
	base := []inventory.Option{
		inventory.WithClock(func() time.Time { return now }),
		inventory.WithIDGenerator(func() models.ID { seq++; return models.ID(fmt.Sprintf("ing-%d", seq)) }),
		inventory.WithLogger(Logger()),
	}
	store := inventory.New(fs, append(base, opts...)...)
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	return store, fs
}
