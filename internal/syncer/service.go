// Package syncer decides, per request, whether prompts are served from the
// ephemeral cache, the permanent snapshot, or a fresh remote fetch, and
// owns the full-refresh and auto-refresh machinery.
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ostanin/pdeck/internal/bitable"
	"github.com/ostanin/pdeck/internal/prompt"
)

// ErrNotFound is returned when a requested prompt does not exist.
var ErrNotFound = errors.New("prompt not found")

const (
	settingAutoRefreshEnabled = "auto_refresh.enabled"
	settingAutoRefreshMinutes = "auto_refresh.interval_minutes"
	settingLastRefreshAt      = "last_refresh_at"
)

// Fetcher is the remote side: full paginated fetch plus record creation.
// Implemented by bitable.Client.
type Fetcher interface {
	FetchAllRecords(ctx context.Context) (*bitable.FetchResult, error)
	CreateRecord(ctx context.Context, fields map[string]any) (*bitable.Record, error)
}

// Store is the durable local side. Implemented by storage.Store.
type Store interface {
	CacheSet(key string, value any, ttl time.Duration) error
	CacheGet(key string, dest any) (bool, error)
	CacheClear() error

	SaveSnapshot(records []prompt.Record) error
	LoadSnapshot() ([]prompt.Record, time.Time, error)
	ClearSnapshot() error
	SnapshotInfo() (int, time.Time, error)

	SetSetting(key, value string) error
	GetSetting(key string) (string, bool, error)
}

// Source tells a caller where query results came from.
type Source string

const (
	// SourceCache: the ephemeral per-query cache.
	SourceCache Source = "cache"
	// SourcePermanent: the durable full snapshot.
	SourcePermanent Source = "permanent"
	// SourceRemote: a fresh remote fetch performed for this request.
	SourceRemote Source = "remote"
)

// Service owns all sync state (token-backed fetcher, caches, timer).
// Construct one per process; Close cancels the auto-refresh timer.
type Service struct {
	fetcher   Fetcher
	store     Store
	searchTTL time.Duration
	now       func() time.Time

	// group collapses concurrent refreshes (periodic timer vs. a user
	// action) into a single remote fetch.
	group singleflight.Group

	mu        sync.Mutex
	stopTimer context.CancelFunc
}

// New creates a Service. searchTTL bounds how long per-query results stay
// in the ephemeral cache.
func New(fetcher Fetcher, store Store, searchTTL time.Duration) *Service {
	return &Service{
		fetcher:   fetcher,
		store:     store,
		searchTTL: searchTTL,
		now:       time.Now,
	}
}

// Close stops the auto-refresh timer if one is running.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
}

// QueryRequest selects, orders, and pages the prompt set.
type QueryRequest struct {
	Filter    prompt.Filter `json:"filter"`
	SortBy    string        `json:"sort_by"`
	SortOrder string        `json:"sort_order"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
	All       bool          `json:"all"`

	// ForceRefresh bypasses both cache tiers and fetches from the remote.
	ForceRefresh bool `json:"force_refresh"`
}

// QueryResponse is one page of results plus provenance.
type QueryResponse struct {
	Items      []prompt.Record   `json:"items"`
	Pagination prompt.Pagination `json:"pagination"`
	ServedFrom Source            `json:"served_from"`
}

// QueryPrompts serves a query, preferring the ephemeral cache, then the
// permanent snapshot, and fetching from the remote only when forced or
// when no snapshot exists. A failed or empty refresh falls back to the
// stale snapshot when one exists: availability wins over freshness.
func (s *Service) QueryPrompts(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	key := queryCacheKey(req)

	if !req.ForceRefresh {
		var cached QueryResponse
		ok, err := s.store.CacheGet(key, &cached)
		if err != nil {
			slog.Warn("query cache read failed", "error", err)
		} else if ok {
			cached.ServedFrom = SourceCache
			return &cached, nil
		}
	}

	working, served, err := s.workingSet(ctx, req.ForceRefresh)
	if err != nil {
		return nil, err
	}

	filtered := prompt.Apply(working, req.Filter, req.SortBy, req.SortOrder)
	items, pagination := prompt.Paginate(filtered, req.Page, req.PageSize, req.All)

	resp := &QueryResponse{Items: items, Pagination: pagination, ServedFrom: served}
	if err := s.store.CacheSet(key, resp, s.searchTTL); err != nil {
		slog.Warn("query cache write failed", "error", err)
	}
	return resp, nil
}

// workingSet picks the record set a query operates on.
func (s *Service) workingSet(ctx context.Context, force bool) ([]prompt.Record, Source, error) {
	if !force {
		records, _, err := s.store.LoadSnapshot()
		if err != nil {
			return nil, "", fmt.Errorf("loading snapshot: %w", err)
		}
		if len(records) > 0 {
			return records, SourcePermanent, nil
		}
	}

	outcome, err := s.refreshShared(ctx)
	if err != nil || len(outcome.records) == 0 {
		// Stale-serve: a failed or empty fetch must not blank out data we
		// already have.
		records, _, loadErr := s.store.LoadSnapshot()
		if loadErr == nil && len(records) > 0 {
			if err != nil {
				slog.Warn("refresh failed, serving stale snapshot", "error", err)
			}
			return records, SourcePermanent, nil
		}
		if err != nil {
			return nil, "", err
		}
		return nil, SourceRemote, nil
	}
	return outcome.records, SourceRemote, nil
}

// SearchPrompts is the keyword entry point used by consumer surfaces.
func (s *Service) SearchPrompts(ctx context.Context, keyword string, filter prompt.Filter) (*QueryResponse, error) {
	filter.Keyword = keyword
	return s.QueryPrompts(ctx, QueryRequest{Filter: filter, All: true})
}

// GetPromptByID returns one prompt from the working set.
func (s *Service) GetPromptByID(ctx context.Context, id string) (*prompt.Record, error) {
	working, _, err := s.workingSet(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range working {
		if working[i].ID == id {
			return &working[i], nil
		}
	}
	return nil, ErrNotFound
}

// PromptInput is the caller-provided shape for creating a prompt.
type PromptInput struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Alias       string   `json:"alias"`
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"is_public"`
}

// CreatePrompt creates the record remotely, then invalidates the ephemeral
// tier and refreshes the snapshot so local reads see it. A failed
// follow-up refresh is logged, not fatal: the record exists remotely and
// the snapshot catches up on the next refresh.
func (s *Service) CreatePrompt(ctx context.Context, in PromptInput) (*prompt.Record, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, errors.New("content is required")
	}

	fields := prompt.BuildFields(prompt.Record{
		Title:       in.Title,
		Content:     in.Content,
		Description: in.Description,
		Category:    in.Category,
		Alias:       in.Alias,
		Tags:        in.Tags,
		IsPublic:    in.IsPublic,
	})

	raw, err := s.fetcher.CreateRecord(ctx, fields)
	if err != nil {
		return nil, err
	}

	created := prompt.Normalize(*raw, s.now())
	if created == nil {
		return nil, fmt.Errorf("remote returned unusable record %s", raw.RecordID)
	}

	if err := s.store.CacheClear(); err != nil {
		slog.Warn("cache invalidation after create failed", "error", err)
	}
	if _, err := s.refreshShared(ctx); err != nil {
		slog.Warn("refresh after create failed", "error", err)
	}
	return created, nil
}

// Info describes the local snapshot state.
type Info struct {
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
	LastRefresh time.Time `json:"last_refresh"`
}

// SnapshotInfo reports the snapshot size and timestamps.
func (s *Service) SnapshotInfo() (*Info, error) {
	count, lastUpdated, err := s.store.SnapshotInfo()
	if err != nil {
		return nil, err
	}

	info := &Info{Count: count, LastUpdated: lastUpdated}
	if v, ok, err := s.store.GetSetting(settingLastRefreshAt); err != nil {
		return nil, err
	} else if ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			info.LastRefresh = t
		}
	}
	return info, nil
}

// ClearSnapshot deletes the local snapshot and the ephemeral cache. The
// remote is untouched.
func (s *Service) ClearSnapshot() error {
	if err := s.store.ClearSnapshot(); err != nil {
		return err
	}
	return s.store.CacheClear()
}

// ClearCache empties the ephemeral tier only.
func (s *Service) ClearCache() error {
	return s.store.CacheClear()
}

// queryCacheKey derives a stable ephemeral-cache key from the request.
func queryCacheKey(req QueryRequest) string {
	// ForceRefresh is not part of identity: a forced query writes the same
	// key a later normal query reads.
	req.ForceRefresh = false
	data, _ := json.Marshal(req)
	sum := sha256.Sum256(data)
	return "query:" + hex.EncodeToString(sum[:16])
}
