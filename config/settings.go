package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Database DatabaseSettings `json:"database"`
	Cache    CacheSettings    `json:"cache"`
	Fetch    FetchSettings    `json:"fetch"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseSettings locates the addon registration database.
type DatabaseSettings struct {
	Path string `json:"path"`
}

// CacheSettings controls the addon response cache. Manifests change rarely and
// keep a long freshness window; stream availability changes quickly and keeps
// a short one.
type CacheSettings struct {
	Directory        string `json:"directory"`
	ManifestTTLHours int    `json:"manifestTtlHours"`
	StreamTTLMinutes int    `json:"streamTtlMinutes"`
}

// FetchSettings controls outbound addon requests.
type FetchSettings struct {
	TimeoutSeconds int `json:"timeoutSeconds"`
	// RetryDelayMillis is the fixed delay before the single retry of a
	// transient failure.
	RetryDelayMillis int `json:"retryDelayMillis"`
	// AddonRequestsPerSecond caps outbound calls per addon; 0 disables.
	AddonRequestsPerSecond float64 `json:"addonRequestsPerSecond"`
}

// LogConfig represents file logging with rotation.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 8480,
		},
		Database: DatabaseSettings{
			Path: filepath.Join("cache", "addons.db"),
		},
		Cache: CacheSettings{
			Directory:        "cache",
			ManifestTTLHours: 24,
			StreamTTLMinutes: 5,
		},
		Fetch: FetchSettings{
			TimeoutSeconds:         180,
			RetryDelayMillis:       500,
			AddonRequestsPerSecond: 0,
		},
		Log: LogConfig{
			File:       "",
			MaxSize:    50,  // MB per file
			MaxBackups: 3,
			MaxAge:     7,   // days
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures the parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file from disk or creates defaults if missing.
// Missing fields keep their defaults so old files survive upgrades.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", m.path, err)
	}

	defaults := DefaultSettings()
	if settings.Fetch.TimeoutSeconds <= 0 {
		settings.Fetch.TimeoutSeconds = defaults.Fetch.TimeoutSeconds
	}
	if settings.Cache.ManifestTTLHours <= 0 {
		settings.Cache.ManifestTTLHours = defaults.Cache.ManifestTTLHours
	}
	if settings.Cache.StreamTTLMinutes <= 0 {
		settings.Cache.StreamTTLMinutes = defaults.Cache.StreamTTLMinutes
	}
	return settings, nil
}

// Save writes the settings file atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
