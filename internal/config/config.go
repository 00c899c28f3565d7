package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath overrides the settings file location
const EnvConfigPath = "FAUXPOST_CONFIG"

// Providers understood by the classification client
const (
	ProviderRemote    = "remote"
	ProviderAnthropic = "anthropic"
)

// Settings holds all application configuration. The classifier table is the
// durable record owned by the broker; the other tables are read at startup.
type Settings struct {
	Version    int            `toml:"version"`
	Classifier Patch          `toml:"classifier"`
	Scanner    ScannerConfig  `toml:"scanner"`
	Storage    StorageConfig  `toml:"storage"`
	Bridge     BridgeConfig   `toml:"bridge"`
	Schedule   ScheduleConfig `toml:"schedule"`
	Log        LogConfig      `toml:"log"`
}

type ScannerConfig struct {
	FeedURL            string `toml:"feed_url"`
	Headless           bool   `toml:"headless"`
	ScrollIntervalMs   int    `toml:"scroll_interval_ms"`
	MaxScrolls         int    `toml:"max_scrolls"`
	MaxConcurrentScans int    `toml:"max_concurrent_scans"`
	PaintLiveChips     bool   `toml:"paint_live_chips"`
}

type StorageConfig struct {
	DBPath         string `toml:"db_path"`
	CacheTTLHours  int    `toml:"cache_ttl_hours"`
	DumpExchanges  bool   `toml:"dump_exchanges"`
	DedupeInflight bool   `toml:"dedupe_inflight"`
}

type BridgeConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// ScheduleConfig holds cron specs for the daemon's housekeeping. An empty
// spec disables the job.
type ScheduleConfig struct {
	FeedbackFlush string `toml:"feedback_flush"`
	CachePurge    string `toml:"cache_purge"`
	Timezone      string `toml:"timezone"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns Settings with sensible defaults
func Default() *Settings {
	return &Settings{
		Version: 1,
		Scanner: ScannerConfig{
			FeedURL:            "https://www.linkedin.com/feed/",
			Headless:           true,
			ScrollIntervalMs:   1500,
			MaxScrolls:         20,
			MaxConcurrentScans: 4,
			PaintLiveChips:     true,
		},
		Storage: StorageConfig{
			CacheTTLHours: 24,
		},
		Bridge: BridgeConfig{
			ListenAddr:     "127.0.0.1:8787",
			AllowedOrigins: []string{"chrome-extension://*"},
			TimeoutSeconds: 30,
		},
		Schedule: ScheduleConfig{
			FeedbackFlush: "@every 15m",
			CachePurge:    "0 4 * * *",
			Timezone:      "Local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// CacheTTL returns the configured cache time-to-live
func (s *Settings) CacheTTL() time.Duration {
	if s.Storage.CacheTTLHours <= 0 {
		return DefaultCacheTTL
	}
	return time.Duration(s.Storage.CacheTTLHours) * time.Hour
}

// DefaultCacheTTL is how long a classification stays valid in the cache
const DefaultCacheTTL = 24 * time.Hour

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "fauxpost"), nil
}

// ConfigPath returns the full path to the settings file
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "fauxpost"), nil
}

// DBPath returns the sqlite database path, defaulting into the cache dir
func (s *Settings) DBPath() (string, error) {
	if s.Storage.DBPath != "" {
		return s.Storage.DBPath, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fauxpost.db"), nil
}

// Load reads settings from the default path
func Load() (*Settings, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads settings from path. Tables missing from the file keep their defaults.
func LoadFile(path string) (*Settings, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes settings to the default path
func (s *Settings) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return s.SaveFile(path)
}

// SaveFile writes settings to path
func (s *Settings) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(s)
}
