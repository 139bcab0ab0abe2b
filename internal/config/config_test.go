package config

import (
	"os"
	"path/filepath"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: map[string]string{}, ints: map[string]int{}}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error { m.strings[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *memBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("default port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Sync.MaxRecords != 20000 {
		t.Errorf("default max_records = %d, want 20000", cfg.Sync.MaxRecords)
	}
	if cfg.Sync.PageDelayMs != 100 {
		t.Errorf("default page_delay_ms = %d, want 100", cfg.Sync.PageDelayMs)
	}
	if cfg.Bitable.BaseURL == "" {
		t.Error("default bitable base URL is empty")
	}
}

func TestBackendOverridesDefaults(t *testing.T) {
	b := newMemBackend()
	b.ints["server.port"] = 9999
	b.strings["bitable.app_token"] = "bascXYZ"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Bitable.AppToken != "bascXYZ" {
		t.Errorf("app_token = %q, want bascXYZ", cfg.Bitable.AppToken)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	b := newMemBackend()
	b.ints["server.port"] = 9999
	t.Setenv("PDECK_SERVER_PORT", "5000")
	t.Setenv("PDECK_BITABLE_APP_SECRET", "shh")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("port = %d, want env override 5000", cfg.Server.Port)
	}
	if cfg.Bitable.AppSecret != "shh" {
		t.Errorf("app_secret not taken from environment")
	}
}

func TestInvalidEnvIntFallsBackToDefault(t *testing.T) {
	t.Setenv("PDECK_SYNC_MAX_RECORDS", "not-a-number")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Sync.MaxRecords != 20000 {
		t.Errorf("max_records = %d, want default 20000", cfg.Sync.MaxRecords)
	}
}

func TestValidateRemote(t *testing.T) {
	cfg := defaults()
	if err := ValidateRemote(cfg); err == nil {
		t.Fatal("expected error for missing credentials")
	}

	cfg.Bitable.AppID = "cli_x"
	cfg.Bitable.AppSecret = "s"
	cfg.Bitable.AppToken = "basc"
	cfg.Bitable.TableID = "tbl"
	if err := ValidateRemote(cfg); err != nil {
		t.Fatalf("ValidateRemote with full config: %v", err)
	}
}

func TestSetKeyRejectsSecret(t *testing.T) {
	b := newMemBackend()
	if err := setKeyWith(b, "bitable.app_secret", "x"); err == nil {
		t.Fatal("expected error setting secret key")
	}
}

func TestSetKeyUnknown(t *testing.T) {
	if err := setKeyWith(newMemBackend(), "nope.nope", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := &fileBackend{path: filepath.Join(dir, "config.json")}

	if err := b.SetString("bitable.table_id", "tblABC"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 4700); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	s, ok, err := b.GetString("bitable.table_id")
	if err != nil || !ok || s != "tblABC" {
		t.Fatalf("GetString = %q, %v, %v", s, ok, err)
	}
	i, ok, err := b.GetInt("server.port")
	if err != nil || !ok || i != 4700 {
		t.Fatalf("GetInt = %d, %v, %v", i, ok, err)
	}

	if err := b.Delete("server.port"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, _ = b.GetInt("server.port")
	if ok {
		t.Error("key still present after Delete")
	}
}

func TestGetAPITokenStable(t *testing.T) {
	dir := t.TempDir()

	tok1, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	tok2, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken (second): %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("token changed between calls: %q vs %q", tok1, tok2)
	}

	info, err := os.Stat(filepath.Join(dir, "api_token"))
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}
}
