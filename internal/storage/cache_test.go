package storage

import (
	"testing"
	"time"
)

func cacheRowCount(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM kv_cache`).Scan(&n); err != nil {
		t.Fatalf("counting kv_cache rows: %v", err)
	}
	return n
}

func TestCacheSetGet(t *testing.T) {
	s := openTestStore(t)

	if err := s.CacheSet("k1", map[string]int{"a": 1}, time.Minute); err != nil {
		t.Fatalf("CacheSet: %v", err)
	}

	var got map[string]int
	ok, err := s.CacheGet("k1", &got)
	if err != nil || !ok {
		t.Fatalf("CacheGet: ok=%v err=%v", ok, err)
	}
	if got["a"] != 1 {
		t.Errorf("value = %v", got)
	}
}

func TestCacheGetMissing(t *testing.T) {
	s := openTestStore(t)

	var got string
	ok, err := s.CacheGet("nope", &got)
	if err != nil {
		t.Fatalf("CacheGet: %v", err)
	}
	if ok {
		t.Error("hit on missing key")
	}
}

// TestCacheExpiryLazyEviction verifies that reading an expired entry both
// returns a miss and removes the row from storage.
func TestCacheExpiryLazyEviction(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	if err := s.CacheSet("short", "v", time.Second); err != nil {
		t.Fatalf("CacheSet: %v", err)
	}

	// Advance past the TTL.
	s.now = func() time.Time { return base.Add(1100 * time.Millisecond) }

	var got string
	ok, err := s.CacheGet("short", &got)
	if err != nil {
		t.Fatalf("CacheGet: %v", err)
	}
	if ok {
		t.Error("expired entry served")
	}
	if n := cacheRowCount(t, s); n != 0 {
		t.Errorf("expired row still in storage (%d rows)", n)
	}
}

func TestCacheOverwriteRefreshesTTL(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.CacheSet("k", "old", time.Second)
	s.now = func() time.Time { return base.Add(900 * time.Millisecond) }
	s.CacheSet("k", "new", time.Second)

	// Past the first TTL but within the second.
	s.now = func() time.Time { return base.Add(1500 * time.Millisecond) }

	var got string
	ok, err := s.CacheGet("k", &got)
	if err != nil || !ok {
		t.Fatalf("CacheGet: ok=%v err=%v", ok, err)
	}
	if got != "new" {
		t.Errorf("value = %q, want last write", got)
	}
}

func TestCacheRemoveAndClear(t *testing.T) {
	s := openTestStore(t)

	s.CacheSet("a", 1, time.Minute)
	s.CacheSet("b", 2, time.Minute)

	if err := s.CacheRemove("a"); err != nil {
		t.Fatalf("CacheRemove: %v", err)
	}
	if err := s.CacheRemove("a"); err != nil {
		t.Fatalf("CacheRemove (repeat): %v", err)
	}
	if n := cacheRowCount(t, s); n != 1 {
		t.Errorf("rows = %d after remove, want 1", n)
	}

	if err := s.CacheClear(); err != nil {
		t.Fatalf("CacheClear: %v", err)
	}
	if n := cacheRowCount(t, s); n != 0 {
		t.Errorf("rows = %d after clear, want 0", n)
	}
}

// TestCacheSweep verifies the proactive sweep removes only expired rows.
func TestCacheSweep(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.CacheSet("stale1", 1, time.Second)
	s.CacheSet("stale2", 2, 2*time.Second)
	s.CacheSet("fresh", 3, time.Hour)

	s.now = func() time.Time { return base.Add(5 * time.Second) }

	n, err := s.CacheSweep()
	if err != nil {
		t.Fatalf("CacheSweep: %v", err)
	}
	if n != 2 {
		t.Errorf("swept %d entries, want 2", n)
	}

	var got int
	ok, _ := s.CacheGet("fresh", &got)
	if !ok || got != 3 {
		t.Errorf("fresh entry lost by sweep: ok=%v got=%d", ok, got)
	}
}
