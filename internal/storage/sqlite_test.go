package storage

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := openTestStore(t)

	obtained := time.Now().Truncate(time.Millisecond)
	if err := s.SaveToken("tenant", "tok-abc", obtained); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	token, at, ok, err := s.LoadToken("tenant")
	if err != nil || !ok {
		t.Fatalf("LoadToken: ok=%v err=%v", ok, err)
	}
	if token != "tok-abc" {
		t.Errorf("token = %q", token)
	}
	if !at.Equal(obtained) {
		t.Errorf("obtainedAt = %v, want %v", at, obtained)
	}

	if err := s.DeleteToken("tenant"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if err := s.DeleteToken("tenant"); err != nil {
		t.Fatalf("DeleteToken (repeat): %v", err)
	}
	_, _, ok, _ = s.LoadToken("tenant")
	if ok {
		t.Error("token still present after delete")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, ok, _ := s.GetSetting("auto_refresh.enabled"); ok {
		t.Fatal("unexpected setting before write")
	}

	if err := s.SetSetting("auto_refresh.enabled", "true"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting("auto_refresh.enabled", "false"); err != nil {
		t.Fatalf("SetSetting (overwrite): %v", err)
	}

	v, ok, err := s.GetSetting("auto_refresh.enabled")
	if err != nil || !ok {
		t.Fatalf("GetSetting: ok=%v err=%v", ok, err)
	}
	if v != "false" {
		t.Errorf("value = %q, want last write", v)
	}
}
