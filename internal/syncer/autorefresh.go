package syncer

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Auto-refresh interval bounds. Values outside are clamped, not rejected.
const (
	MinRefreshInterval     = 5 * time.Minute
	MaxRefreshInterval     = 24 * time.Hour
	DefaultRefreshInterval = time.Hour
)

// ClampInterval bounds an auto-refresh interval; non-positive values get
// the default.
func ClampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultRefreshInterval
	}
	if d < MinRefreshInterval {
		return MinRefreshInterval
	}
	if d > MaxRefreshInterval {
		return MaxRefreshInterval
	}
	return d
}

// SetAutoRefresh enables or disables periodic refreshing, persists the
// choice, and (re)starts the timer. Any previously running timer is
// cancelled first so only one can be live. Returns the effective interval.
func (s *Service) SetAutoRefresh(enabled bool, interval time.Duration) (time.Duration, error) {
	interval = ClampInterval(interval)

	if err := s.store.SetSetting(settingAutoRefreshEnabled, strconv.FormatBool(enabled)); err != nil {
		return 0, err
	}
	if err := s.store.SetSetting(settingAutoRefreshMinutes, strconv.Itoa(int(interval.Minutes()))); err != nil {
		return 0, err
	}

	s.startTimer(enabled, interval)
	return interval, nil
}

// AutoRefreshSettings reads the persisted auto-refresh configuration.
func (s *Service) AutoRefreshSettings() (bool, time.Duration, error) {
	enabled := false
	if v, ok, err := s.store.GetSetting(settingAutoRefreshEnabled); err != nil {
		return false, 0, err
	} else if ok {
		enabled = v == "true"
	}

	interval := DefaultRefreshInterval
	if v, ok, err := s.store.GetSetting(settingAutoRefreshMinutes); err != nil {
		return false, 0, err
	} else if ok {
		if minutes, err := strconv.Atoi(v); err == nil {
			interval = ClampInterval(time.Duration(minutes) * time.Minute)
		}
	}
	return enabled, interval, nil
}

// ResumeAutoRefresh starts the timer from persisted settings. Called once
// at daemon startup.
func (s *Service) ResumeAutoRefresh() error {
	enabled, interval, err := s.AutoRefreshSettings()
	if err != nil {
		return err
	}
	s.startTimer(enabled, interval)
	return nil
}

func (s *Service) startTimer(enabled bool, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	if !enabled {
		slog.Info("auto refresh disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopTimer = cancel
	go s.runAutoRefresh(ctx, interval)
	slog.Info("auto refresh enabled", "interval", interval)
}

// runAutoRefresh refreshes on every tick until its context is cancelled.
// Cancellation stops future ticks; a refresh already in flight completes
// on its own.
func (s *Service) runAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(context.Background()); err != nil {
				slog.Error("scheduled refresh failed", "error", err)
			}
		}
	}
}
