package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PDECK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "PDECK_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "bitable.base_url", typ: kString, env: "PDECK_BITABLE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Bitable.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Bitable.BaseURL },
	},
	{
		key: "bitable.app_id", typ: kString, env: "PDECK_BITABLE_APP_ID",
		apply:   func(cfg *Config, v any) { cfg.Bitable.AppID = v.(string) },
		extract: func(cfg Config) any { return cfg.Bitable.AppID },
	},
	{
		key: "bitable.app_secret", typ: kString, env: "PDECK_BITABLE_APP_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Bitable.AppSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Bitable.AppSecret },
	},
	{
		key: "bitable.app_token", typ: kString, env: "PDECK_BITABLE_APP_TOKEN",
		apply:   func(cfg *Config, v any) { cfg.Bitable.AppToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Bitable.AppToken },
	},
	{
		key: "bitable.table_id", typ: kString, env: "PDECK_BITABLE_TABLE_ID",
		apply:   func(cfg *Config, v any) { cfg.Bitable.TableID = v.(string) },
		extract: func(cfg Config) any { return cfg.Bitable.TableID },
	},
	{
		key: "bitable.token_ttl_minutes", typ: kInt, env: "PDECK_BITABLE_TOKEN_TTL_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Bitable.TokenTTLMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Bitable.TokenTTLMinutes },
	},
	{
		key: "sync.max_records", typ: kInt, env: "PDECK_SYNC_MAX_RECORDS",
		apply:   func(cfg *Config, v any) { cfg.Sync.MaxRecords = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.MaxRecords },
	},
	{
		key: "sync.warn_records", typ: kInt, env: "PDECK_SYNC_WARN_RECORDS",
		apply:   func(cfg *Config, v any) { cfg.Sync.WarnRecords = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.WarnRecords },
	},
	{
		key: "sync.page_size", typ: kInt, env: "PDECK_SYNC_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Sync.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.PageSize },
	},
	{
		key: "sync.page_delay_ms", typ: kInt, env: "PDECK_SYNC_PAGE_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Sync.PageDelayMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.PageDelayMs },
	},
	{
		key: "sync.cache_ttl_seconds", typ: kInt, env: "PDECK_SYNC_CACHE_TTL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Sync.CacheTTLSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.CacheTTLSeconds },
	},
	{
		key: "sync.sweep_interval_seconds", typ: kInt, env: "PDECK_SYNC_SWEEP_INTERVAL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Sync.SweepIntervalSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.SweepIntervalSeconds },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PDECK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PDECK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			// Secrets never live in the config file.
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
