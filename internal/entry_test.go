package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/pantry/internal/assistant"
	"github.com/starford/pantry/internal/cloudsync"
	"github.com/starford/pantry/internal/storage"
	"github.com/starford/pantry/internal/testutil"
)

func TestOpenStorage(t *testing.T) {
	for _, driver := range []string{StorageFS, StorageSQLite} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "data")
			if driver == StorageSQLite {
				path += ".db"
			}
			local, err := openStorage(StorageConfig{Driver: driver, Path: path})
			if err != nil {
				t.Fatalf("openStorage: %v", err)
			}
			defer local.close()

			if (local.fs != nil) != (driver == StorageFS) {
				t.Errorf("fs set = %v for driver %s", local.fs != nil, driver)
			}
			if err := local.provider.Put("fridgeIngredients", []byte(`[]`)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := local.provider.Get("fridgeIngredients")
			if err != nil || string(got) != "[]" {
				t.Errorf("Get = %q, %v", got, err)
			}
		})
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	var console bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "pantry.log")

	logger, closer := newLogger(ApplicationConfig{
		LogFile: LogFileConfig{Path: logPath, MaxSizeMB: 1},
	}, &console)
	logger.Info("hello", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %s", data)
	}
	if console.String() != string(data) {
		t.Errorf("console and file differ:\n%s\n%s", console.String(), data)
	}
}

func TestNewProvider(t *testing.T) {
	if p := newProvider(ProviderOpenAI, time.Second, ModelConfig{Model: "m"}); p != nil {
		t.Error("model without api key should be disabled")
	}
	if _, ok := newProvider(ProviderOpenAI, time.Second, ModelConfig{APIKey: "k", Model: "m", Endpoint: "http://x"}).(*assistant.OpenAI); !ok {
		t.Error("expected OpenAI provider")
	}
	if _, ok := newProvider(ProviderAnthropic, time.Second, ModelConfig{APIKey: "k", Model: "m"}).(*assistant.Anthropic); !ok {
		t.Error("expected Anthropic provider")
	}
}

func TestSyncCandidates(t *testing.T) {
	local, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig().Sync
	cfg.LeanCloud.Enabled = true

	cands := syncCandidates(cfg, local, testutil.Logger())
	if len(cands) != 2 {
		t.Fatalf("got %d candidates", len(cands))
	}
	if cands[0].Backend != cloudsync.BackendFirebase || !cands[0].Push || cands[0].Enabled {
		t.Errorf("firebase candidate = %+v", cands[0])
	}
	if cands[1].Backend != cloudsync.BackendLeanCloud || cands[1].Push || !cands[1].Enabled {
		t.Errorf("leancloud candidate = %+v", cands[1])
	}
	a, err := cands[1].New()
	if err != nil || a.Name() != "LeanCloud" {
		t.Errorf("New = %v, %v", a, err)
	}
}
