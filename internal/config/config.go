package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Bitable BitableConfig
	Sync    SyncConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

// BitableConfig identifies the remote Bitable app/table and the credentials
// used to obtain a tenant access token.
type BitableConfig struct {
	BaseURL         string
	AppID           string
	AppSecret       string
	AppToken        string
	TableID         string
	TokenTTLMinutes int
}

type SyncConfig struct {
	MaxRecords           int
	WarnRecords          int
	PageSize             int
	PageDelayMs          int
	CacheTTLSeconds      int
	SweepIntervalSeconds int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Bitable: BitableConfig{
			BaseURL:         "https://open.feishu.cn",
			TokenTTLMinutes: 100,
		},
		Sync: SyncConfig{
			MaxRecords:           20000,
			WarnRecords:          10000,
			PageSize:             500,
			PageDelayMs:          100,
			CacheTTLSeconds:      300,
			SweepIntervalSeconds: 60,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "pdeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "pdeck-data"
	}
	return filepath.Join(home, ".local", "share", "pdeck")
}

// Load reads configuration from the JSON config file backend
// ($XDG_CONFIG_HOME/pdeck/config.json) and applies PDECK_* environment
// overrides on top. Secrets (bitable.app_secret) are environment-only.
//
// Load does not require remote credentials to be present; commands that
// talk to the remote call ValidateRemote first.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// ValidateRemote checks that everything needed to reach the remote table is
// configured. Returns a user-actionable error listing the missing keys.
func ValidateRemote(cfg Config) error {
	var missing []string
	if cfg.Bitable.AppID == "" {
		missing = append(missing, "PDECK_BITABLE_APP_ID")
	}
	if cfg.Bitable.AppSecret == "" {
		missing = append(missing, "PDECK_BITABLE_APP_SECRET")
	}
	if cfg.Bitable.AppToken == "" {
		missing = append(missing, "bitable.app_token")
	}
	if cfg.Bitable.TableID == "" {
		missing = append(missing, "bitable.table_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s (set via `pdeck config set` or environment)", strings.Join(missing, ", "))
	}
	return nil
}
