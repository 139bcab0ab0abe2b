package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ostanin/pdeck/internal/bitable"
	"github.com/ostanin/pdeck/internal/storage"
	"github.com/ostanin/pdeck/internal/syncer"
)

const testToken = "test-token"

type stubFetcher struct {
	records  []bitable.Record
	fetchErr error
}

func (f *stubFetcher) FetchAllRecords(ctx context.Context) (*bitable.FetchResult, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &bitable.FetchResult{Records: f.records, Total: len(f.records)}, nil
}

func (f *stubFetcher) CreateRecord(ctx context.Context, fields map[string]any) (*bitable.Record, error) {
	rec := bitable.Record{RecordID: "recNew", Fields: fields}
	f.records = append(f.records, rec)
	return &rec, nil
}

func newTestServer(t *testing.T, f *stubFetcher) *httptest.Server {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := syncer.New(f, st, time.Minute)
	t.Cleanup(svc.Close)

	srv := httptest.NewServer(NewHandler(Deps{Service: svc, Token: testToken, Version: "test"}))
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, method, url string, body any, token string) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, env
}

func TestHealthNoAuth(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})

	status, env := doRequest(t, http.MethodGet, srv.URL+"/health", nil, "")
	if status != http.StatusOK || !env.Success {
		t.Fatalf("health: status=%d success=%v", status, env.Success)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})

	status, env := doRequest(t, http.MethodPost, srv.URL+"/prompts/search", syncer.QueryRequest{}, "")
	if status != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", status)
	}
	if env.Success {
		t.Error("no token: success = true")
	}

	status, _ = doRequest(t, http.MethodPost, srv.URL+"/prompts/search", syncer.QueryRequest{}, "wrong")
	if status != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", status)
	}
}

func TestSearchPrompts(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{records: []bitable.Record{
		{RecordID: "rec1", Fields: map[string]any{"标题": "Reviewer", "内容": "Review code"}},
		{RecordID: "rec2", Fields: map[string]any{"标题": "Writer", "内容": "Write docs"}},
	}})

	status, env := doRequest(t, http.MethodPost, srv.URL+"/prompts/search",
		syncer.QueryRequest{All: true}, testToken)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("search: status=%d success=%v error=%+v", status, env.Success, env.Error)
	}

	var resp syncer.QueryResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Errorf("items = %d, want 2", len(resp.Items))
	}
	if resp.ServedFrom != syncer.SourceRemote {
		t.Errorf("served_from = %q, want remote", resp.ServedFrom)
	}
}

func TestGetPrompt(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{records: []bitable.Record{
		{RecordID: "rec1", Fields: map[string]any{"标题": "Reviewer", "内容": "Review {{language}} code"}},
	}})

	status, env := doRequest(t, http.MethodGet, srv.URL+"/prompts/rec1", nil, testToken)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("get: status=%d error=%+v", status, env.Error)
	}

	var rec struct {
		ID        string `json:"id"`
		Variables []struct {
			Name string `json:"name"`
		} `json:"variables"`
	}
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if rec.ID != "rec1" {
		t.Errorf("id = %q", rec.ID)
	}
	if len(rec.Variables) != 1 || rec.Variables[0].Name != "language" {
		t.Errorf("variables = %+v", rec.Variables)
	}
}

func TestGetPromptNotFound(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{records: []bitable.Record{
		{RecordID: "rec1", Fields: map[string]any{"内容": "x"}},
	}})

	status, env := doRequest(t, http.MethodGet, srv.URL+"/prompts/recX", nil, testToken)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if env.Error.Code != "not_found" {
		t.Errorf("error code = %q, want not_found", env.Error.Code)
	}
}

func TestCreatePrompt(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})

	status, env := doRequest(t, http.MethodPost, srv.URL+"/prompts",
		syncer.PromptInput{Title: "New", Content: "Do the thing"}, testToken)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("create: status=%d error=%+v", status, env.Error)
	}

	status, env = doRequest(t, http.MethodPost, srv.URL+"/prompts",
		syncer.PromptInput{Title: "Empty"}, testToken)
	if status != http.StatusBadRequest || env.Error.Code != "invalid_request_error" {
		t.Errorf("blank content: status=%d code=%q", status, env.Error.Code)
	}
}

func TestRefreshErrorMapping(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{
		fetchErr: &bitable.NetworkError{Err: errors.New("connection refused")},
	})

	status, env := doRequest(t, http.MethodPost, srv.URL+"/refresh", nil, testToken)
	if status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", status)
	}
	if env.Error.Code != "network_error" {
		t.Errorf("error code = %q, want network_error", env.Error.Code)
	}
}

func TestSetAutoRefreshClamped(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})

	status, env := doRequest(t, http.MethodPut, srv.URL+"/settings/auto-refresh",
		map[string]any{"enabled": true, "interval_minutes": 1}, testToken)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("set auto-refresh: status=%d error=%+v", status, env.Error)
	}

	var resp struct {
		Enabled         bool `json:"enabled"`
		IntervalMinutes int  `json:"interval_minutes"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if !resp.Enabled || resp.IntervalMinutes != 5 {
		t.Errorf("resp = %+v, want enabled with clamped 5 minute interval", resp)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{records: []bitable.Record{
		{RecordID: "rec1", Fields: map[string]any{"内容": "x"}},
	}})

	if status, env := doRequest(t, http.MethodPost, srv.URL+"/refresh", nil, testToken); status != http.StatusOK {
		t.Fatalf("refresh: status=%d error=%+v", status, env.Error)
	}

	status, env := doRequest(t, http.MethodGet, srv.URL+"/snapshot", nil, testToken)
	if status != http.StatusOK {
		t.Fatalf("snapshot info: status=%d", status)
	}
	var info struct {
		Snapshot struct {
			Count int `json:"count"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if info.Snapshot.Count != 1 {
		t.Errorf("count = %d, want 1", info.Snapshot.Count)
	}

	if status, _ := doRequest(t, http.MethodDelete, srv.URL+"/snapshot", nil, testToken); status != http.StatusOK {
		t.Errorf("clear snapshot: status=%d", status)
	}
	if status, _ := doRequest(t, http.MethodDelete, srv.URL+"/cache", nil, testToken); status != http.StatusOK {
		t.Errorf("clear cache: status=%d", status)
	}
}
