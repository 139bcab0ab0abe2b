package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	authPath      = "/open-apis/auth/v3/tenant_access_token/internal"
	authTimeout   = 15 * time.Second
	tokenStoreKey = "tenant_access_token"

	// expireMargin is subtracted from the remote-declared expiry so we never
	// hand out a token that dies mid-request.
	expireMargin = 5 * time.Minute
)

// TokenStore persists the access token across process restarts.
// Implemented by storage.Store.
type TokenStore interface {
	SaveToken(name, token string, obtainedAt time.Time) error
	LoadToken(name string) (token string, obtainedAt time.Time, ok bool, err error)
	DeleteToken(name string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// TokenManager owns the tenant access token: it authenticates lazily,
// caches the token in memory and in the TokenStore, and re-authenticates
// after the configured lifetime or an explicit Invalidate.
type TokenManager struct {
	baseURL    string
	appID      string
	appSecret  string
	ttl        time.Duration
	store      TokenStore // optional
	httpClient *http.Client
	clock      Clock

	mu         sync.Mutex
	token      string
	obtainedAt time.Time
	lifetime   time.Duration
}

// NewTokenManager creates a TokenManager. ttl bounds how long a token is
// trusted locally; the effective lifetime is further capped by the
// remote-declared expiry minus a safety margin. store may be nil.
func NewTokenManager(baseURL, appID, appSecret string, ttl time.Duration, store TokenStore) *TokenManager {
	return &TokenManager{
		baseURL:    baseURL,
		appID:      appID,
		appSecret:  appSecret,
		ttl:        ttl,
		store:      store,
		httpClient: &http.Client{Timeout: authTimeout},
		clock:      realClock{},
	}
}

// Token returns a valid access token, authenticating against the remote
// only when the cached one is missing or expired.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if m.appID == "" || m.appSecret == "" {
		return "", &ConfigError{Msg: "app id and app secret are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.token != "" && now.Sub(m.obtainedAt) <= m.lifetime {
		return m.token, nil
	}

	// Not in memory (or stale): a persisted token may still be usable.
	if m.token == "" && m.store != nil {
		token, obtainedAt, ok, err := m.store.LoadToken(tokenStoreKey)
		if err != nil {
			slog.Warn("loading persisted token failed", "error", err)
		} else if ok && now.Sub(obtainedAt) <= m.ttl {
			m.token = token
			m.obtainedAt = obtainedAt
			m.lifetime = m.ttl
			return m.token, nil
		}
	}

	token, lifetime, err := m.authenticate(ctx)
	if err != nil {
		return "", err
	}

	m.token = token
	m.obtainedAt = now
	m.lifetime = lifetime

	if m.store != nil {
		if err := m.store.SaveToken(tokenStoreKey, token, now); err != nil {
			slog.Warn("persisting token failed", "error", err)
		}
	}
	return token, nil
}

// Invalidate drops the cached token unconditionally; the next Token call
// re-authenticates. Safe to call repeatedly.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	m.obtainedAt = time.Time{}
	if m.store != nil {
		if err := m.store.DeleteToken(tokenStoreKey); err != nil {
			slog.Warn("deleting persisted token failed", "error", err)
		}
	}
}

func (m *TokenManager) authenticate(ctx context.Context) (string, time.Duration, error) {
	body, err := json.Marshal(tokenRequest{AppID: m.appID, AppSecret: m.appSecret})
	if err != nil {
		return "", 0, fmt.Errorf("marshalling token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+authPath, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", 0, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, &NetworkError{Err: fmt.Errorf("decoding token response: %w", err)}
	}
	if tr.Code != codeOK {
		return "", 0, &AuthError{Code: tr.Code, Msg: tr.Msg}
	}

	lifetime := m.ttl
	if tr.Expire > 0 {
		if remote := time.Duration(tr.Expire)*time.Second - expireMargin; remote > 0 && remote < lifetime {
			lifetime = remote
		}
	}
	return tr.TenantAccessToken, lifetime, nil
}
