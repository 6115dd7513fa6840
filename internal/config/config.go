// ABOUTME: Offroute configuration management with backend selection
// ABOUTME: Handles tracking defaults, sound assets, and the journal storage factory

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/storage"
)

// Journal backends.
const (
	BackendSQLite = "sqlite"
	BackendCharm  = "charm"
	BackendBadger = "badger"
)

// defaultDBFilename is the SQLite database filename inside the data directory.
const defaultDBFilename = "offroute.db"

// Config stores offroute configuration.
type Config struct {
	// Backend selects the journal backend: "sqlite" (default), "charm", or "badger".
	Backend string `json:"backend,omitempty" validate:"omitempty,oneof=sqlite charm badger"`

	// DataDir is the root directory for the journal. Supports ~ expansion.
	// Defaults to ~/.local/share/offroute.
	DataDir string `json:"data_dir,omitempty"`

	// Threshold is the default deviation threshold in meters.
	Threshold float64 `json:"threshold_m,omitempty" validate:"gte=0"`

	// SoundAsset is the default alert sound, relative to AssetDir.
	SoundAsset string `json:"sound_asset,omitempty"`

	// AssetDir holds alert sounds. Defaults to <data_dir>/sounds.
	AssetDir string `json:"asset_dir,omitempty"`

	// PlayerCommand plays an asset; "{}" is replaced by its path. Empty rings the
	// terminal bell.
	PlayerCommand string `json:"player_command,omitempty"`

	AllowStale         bool    `json:"allow_stale,omitempty"`
	DistanceFilter     float64 `json:"distance_filter_m,omitempty" validate:"gte=0"`
	RequestPermissions *bool   `json:"request_permissions,omitempty"`
	Background         bool    `json:"background,omitempty"`

	NotificationTitle   string `json:"notification_title,omitempty" validate:"max=120"`
	NotificationMessage string `json:"notification_message,omitempty" validate:"max=240"`

	LogLevel string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return BackendSQLite
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetAssetDir returns the sound asset directory.
func (c *Config) GetAssetDir() string {
	if c.AssetDir == "" {
		return filepath.Join(c.GetDataDir(), "sounds")
	}
	return ExpandPath(c.AssetDir)
}

// GetThreshold returns the deviation threshold, defaulting to models.DefaultThreshold.
func (c *Config) GetThreshold() float64 {
	if c.Threshold <= 0 {
		return models.DefaultThreshold
	}
	return c.Threshold
}

// GetLogLevel returns the log level, defaulting to "info".
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// SessionConfig builds the session configuration from the saved defaults.
func (c *Config) SessionConfig() models.SessionConfig {
	cfg := models.DefaultSessionConfig()
	cfg.Background = c.Background
	cfg.AllowStale = c.AllowStale
	cfg.DistanceFilter = c.DistanceFilter
	cfg.NotificationTitle = c.NotificationTitle
	cfg.NotificationMessage = c.NotificationMessage
	if c.RequestPermissions != nil {
		cfg.RequestPermissions = *c.RequestPermissions
	}
	return cfg
}

// defaultDataDir returns the default XDG data directory for offroute.
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "offroute")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage creates a Repository implementation based on the configured backend.
func (c *Config) OpenStorage() (storage.Repository, error) {
	return OpenBackend(c.GetBackend(), c.GetDataDir())
}

// OpenBackend opens the named journal backend rooted at dataDir. The charm backend
// keeps its data under CHARM_DATA_DIR and ignores dataDir.
func OpenBackend(backend, dataDir string) (storage.Repository, error) {
	switch backend {
	case BackendSQLite:
		return storage.NewSQLiteDB(BackendPath(backend, dataDir))
	case BackendBadger:
		return storage.NewBadgerDB(BackendPath(backend, dataDir))
	case BackendCharm:
		return storage.NewCharmStore(storage.DefaultCharmDB), nil
	default:
		return nil, fmt.Errorf("unknown backend: %q", backend)
	}
}

// BackendPath returns where a backend keeps its files under dataDir, or "" for charm.
func BackendPath(backend, dataDir string) string {
	switch backend {
	case BackendSQLite:
		return filepath.Join(dataDir, defaultDBFilename)
	case BackendBadger:
		return filepath.Join(dataDir, "journal")
	}
	return ""
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "offroute", "config.json")
}

// Load reads config from disk, creating a default one on first run.
func Load() (*Config, error) {
	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{Backend: BackendSQLite}
			if saveErr := cfg.Save(); saveErr != nil {
				fmt.Fprintf(os.Stderr, "warning: could not save default config: %v\n", saveErr)
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(GetConfigPath(), data)
}

// atomicWrite replaces path with data through a temp file in the same directory.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}
