package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/pantry/internal/cloudsync"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage drivers.
const (
	StorageFS     = "fs"
	StorageSQLite = "sqlite"
)

// Assistant providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app" toml:"app"`
	Storage   StorageConfig     `yaml:"storage" toml:"storage"`
	Sync      SyncConfig        `yaml:"sync" toml:"sync"`
	Assistant AssistantConfig   `yaml:"assistant" toml:"assistant"`
	Auth      AuthConfig        `yaml:"auth" toml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Assistant.Validate(); err != nil {
		return fmt.Errorf("assistant: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level    `yaml:"log_level" toml:"log_level"`
	LogFile  LogFileConfig `yaml:"log_file" toml:"log_file"`
	HTTP     HTTPConfig    `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig enables a rotating JSON log file next to stdout. An empty
// Path disables it.
type LogFileConfig struct {
	Path       string `yaml:"path" toml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects where the local snapshot lives. For the fs driver
// Path is a directory; for sqlite it is the database file.
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
	// Watch reloads the snapshot when its files are edited externally
	// (fs driver only).
	Watch bool `yaml:"watch" toml:"watch"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StorageFS, StorageSQLite)),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Watch, validation.When(c.Driver == StorageSQLite, validation.Empty.Error("is only supported by the fs driver"))),
	)
}

// SyncConfig selects and configures the remote backend.
type SyncConfig struct {
	// Default is firebase, leancloud, auto or offline.
	Default     string          `yaml:"default" toml:"default"`
	SettleDelay time.Duration   `yaml:"settle_delay" toml:"settle_delay"`
	Firebase    FirebaseConfig  `yaml:"firebase" toml:"firebase"`
	LeanCloud   LeanCloudConfig `yaml:"leancloud" toml:"leancloud"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Default, validation.Required, validation.In(
			cloudsync.BackendFirebase, cloudsync.BackendLeanCloud, cloudsync.BackendAuto, cloudsync.BackendOffline,
		)),
		validation.Field(&c.SettleDelay, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if err := c.Firebase.Validate(); err != nil {
		return fmt.Errorf("firebase: %w", err)
	}
	if err := c.LeanCloud.Validate(); err != nil {
		return fmt.Errorf("leancloud: %w", err)
	}
	return nil
}

// FirebaseConfig holds the Firebase project settings.
type FirebaseConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	DatabaseURL string `yaml:"database_url" toml:"database_url"`
}

// Validate validates the Firebase configuration.
func (c *FirebaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIKey, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.DatabaseURL, validation.When(c.Enabled, validation.Required, is.URL)),
	)
}

// LeanCloudConfig holds the LeanCloud application settings.
type LeanCloudConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled"`
	AppID        string        `yaml:"app_id" toml:"app_id"`
	AppKey       string        `yaml:"app_key" toml:"app_key"`
	ServerURL    string        `yaml:"server_url" toml:"server_url"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
}

// Validate validates the LeanCloud configuration.
func (c *LeanCloudConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AppID, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.AppKey, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.ServerURL, validation.When(c.Enabled, validation.Required, is.URL)),
		validation.Field(&c.PollInterval, validation.Min(time.Duration(0))),
	)
}

// AssistantConfig configures the recipe chat and photo recognition models.
// A model with an empty APIKey is disabled.
type AssistantConfig struct {
	Provider string        `yaml:"provider" toml:"provider"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
	Chat     ModelConfig   `yaml:"chat" toml:"chat"`
	Vision   ModelConfig   `yaml:"vision" toml:"vision"`
}

// ModelConfig locates one model. For the openai provider Endpoint is the full
// chat-completions URL; for anthropic it optionally overrides the base URL.
type ModelConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	Model    string `yaml:"model" toml:"model"`
}

// Enabled reports whether the model has credentials.
func (c *ModelConfig) Enabled() bool {
	return c.APIKey != ""
}

// Validate validates the assistant configuration.
func (c *AssistantConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In(ProviderOpenAI, ProviderAnthropic)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	needEndpoint := c.Provider == ProviderOpenAI
	for name, m := range map[string]*ModelConfig{"chat": &c.Chat, "vision": &c.Vision} {
		if err := validation.ValidateStruct(m,
			validation.Field(&m.Model, validation.When(m.Enabled(), validation.Required)),
			validation.Field(&m.Endpoint, validation.When(m.Enabled() && needEndpoint, validation.Required), is.URL),
		); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Driver: StorageFS,
			Path:   "./data",
		},
		Sync: SyncConfig{
			Default:     cloudsync.BackendAuto,
			SettleDelay: cloudsync.DefaultSettleDelay,
			LeanCloud: LeanCloudConfig{
				PollInterval: cloudsync.DefaultPollInterval,
			},
		},
		Assistant: AssistantConfig{
			Provider: ProviderOpenAI,
			Timeout:  60 * time.Second,
			Chat: ModelConfig{
				Endpoint: "https://api.deepseek.com/v1/chat/completions",
				Model:    "deepseek-chat",
			},
			Vision: ModelConfig{
				Endpoint: "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
				Model:    "qwen3-vl-plus",
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
