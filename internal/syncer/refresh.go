package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ostanin/pdeck/internal/prompt"
)

// RefreshResult summarizes one completed refresh.
type RefreshResult struct {
	Count       int       `json:"count"`
	Truncated   bool      `json:"truncated"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

type refreshOutcome struct {
	records []prompt.Record
	result  RefreshResult
}

// Refresh fetches all remote records and rebuilds the snapshot. Concurrent
// calls share a single remote fetch.
func (s *Service) Refresh(ctx context.Context) (*RefreshResult, error) {
	outcome, err := s.refreshShared(ctx)
	if err != nil {
		return nil, err
	}
	result := outcome.result
	return &result, nil
}

func (s *Service) refreshShared(ctx context.Context) (*refreshOutcome, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*refreshOutcome), nil
}

// doRefresh performs the actual fetch-normalize-persist cycle. An empty
// remote result leaves any existing snapshot in place.
func (s *Service) doRefresh(ctx context.Context) (*refreshOutcome, error) {
	fetched, err := s.fetcher.FetchAllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching records: %w", err)
	}

	now := s.now()
	records := prompt.NormalizeAll(fetched.Records, now)

	outcome := &refreshOutcome{
		records: records,
		result: RefreshResult{
			Count:       len(records),
			Truncated:   fetched.Truncated,
			RefreshedAt: now,
		},
	}

	if len(records) == 0 {
		slog.Warn("remote returned no usable records, keeping existing snapshot",
			"fetched", len(fetched.Records))
		return outcome, nil
	}

	if err := s.store.SaveSnapshot(records); err != nil {
		return nil, fmt.Errorf("persisting snapshot: %w", err)
	}
	if err := s.store.CacheClear(); err != nil {
		slog.Warn("cache invalidation after refresh failed", "error", err)
	}
	if err := s.store.SetSetting(settingLastRefreshAt, now.UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("recording refresh time failed", "error", err)
	}
	if fetched.Truncated {
		slog.Warn("record fetch hit the hard cap, snapshot may be incomplete",
			"count", len(records), "remote_total", fetched.Total)
	}
	slog.Info("snapshot refreshed", "count", len(records), "truncated", fetched.Truncated)
	return outcome, nil
}
