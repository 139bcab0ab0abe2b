package storage

import (
	"reflect"
	"testing"
	"time"

	"github.com/ostanin/pdeck/internal/prompt"
)

func snapshotRecords() []prompt.Record {
	return []prompt.Record{
		{
			ID: "rec1", Title: "first", Content: "body {{x}}",
			Tags:      []string{"a", "b"},
			Variables: []prompt.Variable{{Name: "x", Required: true}},
			CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-02T00:00:00Z",
			UsageCount: 3,
		},
		{ID: "rec2", Title: "second", Content: "other", IsPublic: true},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	before := time.Now().Add(-time.Millisecond)

	if err := s.SaveSnapshot(snapshotRecords()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, lastUpdated, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if !reflect.DeepEqual(got, snapshotRecords()) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, snapshotRecords())
	}
	if lastUpdated.Before(before) {
		t.Errorf("lastUpdated = %v, want >= call time %v", lastUpdated, before)
	}
}

func TestSnapshotReplacedWholesale(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSnapshot(snapshotRecords()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	replacement := []prompt.Record{{ID: "rec9", Title: "only", Content: "new"}}
	if err := s.SaveSnapshot(replacement); err != nil {
		t.Fatalf("SaveSnapshot (replace): %v", err)
	}

	got, _, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(got) != 1 || got[0].ID != "rec9" {
		t.Errorf("old records leaked into new snapshot: %+v", got)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	s := openTestStore(t)

	records, lastUpdated, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want empty", records)
	}
	if !lastUpdated.IsZero() {
		t.Errorf("lastUpdated = %v, want zero", lastUpdated)
	}

	has, err := s.HasSnapshot()
	if err != nil {
		t.Fatalf("HasSnapshot: %v", err)
	}
	if has {
		t.Error("HasSnapshot = true on empty store")
	}
}

func TestSnapshotClear(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSnapshot(snapshotRecords()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.ClearSnapshot(); err != nil {
		t.Fatalf("ClearSnapshot: %v", err)
	}

	count, lastUpdated, err := s.SnapshotInfo()
	if err != nil {
		t.Fatalf("SnapshotInfo: %v", err)
	}
	if count != 0 || !lastUpdated.IsZero() {
		t.Errorf("after clear: count=%d lastUpdated=%v", count, lastUpdated)
	}
}

func TestSnapshotInfo(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSnapshot(snapshotRecords()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	count, lastUpdated, err := s.SnapshotInfo()
	if err != nil {
		t.Fatalf("SnapshotInfo: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if lastUpdated.IsZero() {
		t.Error("lastUpdated is zero")
	}
}
