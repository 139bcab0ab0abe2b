// Package api exposes the prompt service over a local HTTP API and an MCP
// server. All responses use a {success, data|error} envelope.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ostanin/pdeck/internal/bitable"
	"github.com/ostanin/pdeck/internal/syncer"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the HTTP layer needs.
type Deps struct {
	Service *syncer.Service
	Token   string
	Version string
}

// NewHandler returns the local REST API. Everything except /health requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/prompts/search", handleSearch(deps))
		r.Get("/prompts/{id}", handleGetPrompt(deps))
		r.Post("/prompts", handleCreatePrompt(deps))
		r.Post("/refresh", handleRefresh(deps))
		r.Get("/snapshot", handleSnapshotInfo(deps))
		r.Delete("/snapshot", handleClearSnapshot(deps))
		r.Delete("/cache", handleClearCache(deps))
		r.Put("/settings/auto-refresh", handleSetAutoRefresh(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]string{"status": "ok", "version": deps.Version})
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req syncer.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		resp, err := deps.Service.QueryPrompts(r.Context(), req)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeData(w, resp)
	}
}

func handleGetPrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt id is required")
			return
		}

		rec, err := deps.Service.GetPromptByID(r.Context(), id)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeData(w, rec)
	}
}

func handleCreatePrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var in syncer.PromptInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(in.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		rec, err := deps.Service.CreatePrompt(r.Context(), in)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeData(w, rec)
	}
}

func handleRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := deps.Service.Refresh(r.Context())
		if err != nil {
			serviceError(w, err)
			return
		}
		writeData(w, result)
	}
}

func handleSnapshotInfo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Service.SnapshotInfo()
		if err != nil {
			serviceError(w, err)
			return
		}

		enabled, interval, err := deps.Service.AutoRefreshSettings()
		if err != nil {
			serviceError(w, err)
			return
		}
		writeData(w, map[string]any{
			"snapshot": info,
			"auto_refresh": map[string]any{
				"enabled":          enabled,
				"interval_minutes": int(interval.Minutes()),
			},
		})
	}
}

func handleClearSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Service.ClearSnapshot(); err != nil {
			serviceError(w, err)
			return
		}
		writeData(w, map[string]string{"status": "cleared"})
	}
}

func handleClearCache(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Service.ClearCache(); err != nil {
			serviceError(w, err)
			return
		}
		writeData(w, map[string]string{"status": "cleared"})
	}
}

type autoRefreshRequest struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

func handleSetAutoRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req autoRefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		interval, err := deps.Service.SetAutoRefresh(req.Enabled, minutes(req.IntervalMinutes))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeData(w, map[string]any{
			"enabled":          req.Enabled,
			"interval_minutes": int(interval.Minutes()),
		})
	}
}

// serviceError maps the remote error taxonomy onto HTTP statuses and stable
// error codes.
func serviceError(w http.ResponseWriter, err error) {
	var (
		configErr    *bitable.ConfigError
		authErr      *bitable.AuthError
		rateLimitErr *bitable.RateLimitError
		networkErr   *bitable.NetworkError
		apiErr       *bitable.APIError
	)
	switch {
	case errors.Is(err, syncer.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "prompt not found")
	case errors.As(err, &configErr):
		httpError(w, http.StatusBadRequest, "config_error", "%v", err)
	case errors.As(err, &authErr):
		httpError(w, http.StatusBadGateway, "auth_error", "%v", err)
	case errors.As(err, &rateLimitErr):
		httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
	case errors.As(err, &networkErr):
		httpError(w, http.StatusBadGateway, "network_error", "%v", err)
	case errors.As(err, &apiErr):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "internal_error", "%v", err)
	}
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func httpError(w http.ResponseWriter, status int, code string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": fmt.Sprintf(format, args...),
		},
	})
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
