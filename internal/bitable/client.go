package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 500
	maxPageSize     = 500
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	AppToken string
	TableID  string
	Tokens   *TokenManager

	// PageSize is clamped to the remote's maximum of 500.
	PageSize int
	// PageDelay is the pause between consecutive page requests.
	PageDelay time.Duration
	// MaxRecords is the hard cap; a full fetch stops there and reports
	// truncation. 0 disables the cap.
	MaxRecords int
	// WarnRecords is the soft threshold that triggers a warning log. 0
	// disables the warning.
	WarnRecords int
}

// Client talks to the remote Bitable records API for a single table.
type Client struct {
	baseURL     string
	appToken    string
	tableID     string
	tokens      *TokenManager
	httpClient  *http.Client
	pageSize    int
	pageDelay   time.Duration
	maxRecords  int
	warnRecords int
}

// NewClient creates a Client for the table identified by opts.
func NewClient(opts Options) *Client {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	delay := opts.PageDelay
	if delay < 0 {
		delay = 0
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		appToken:    opts.AppToken,
		tableID:     opts.TableID,
		tokens:      opts.Tokens,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		pageSize:    pageSize,
		pageDelay:   delay,
		maxRecords:  opts.MaxRecords,
		warnRecords: opts.WarnRecords,
	}
}

func (c *Client) checkConfig() error {
	if c.appToken == "" || c.tableID == "" {
		return &ConfigError{Msg: "app token and table id are required"}
	}
	return nil
}

func (c *Client) recordsURL(suffix string) string {
	return fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records%s",
		c.baseURL, c.appToken, c.tableID, suffix)
}

// doJSON performs one authenticated request and decodes the response into
// out. Transport and decode failures surface as NetworkError.
func (c *Client) doJSON(ctx context.Context, method, rawURL, token string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// withAuthRetry runs fn with a fresh token, invalidating and retrying
// exactly once if the remote reports the token as invalid. A second
// consecutive auth failure propagates.
func (c *Client) withAuthRetry(ctx context.Context, fn func(token string) error) error {
	retried := false
	for {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		err = fn(token)
		var authErr *AuthError
		if errors.As(err, &authErr) && !retried {
			c.tokens.Invalidate()
			retried = true
			continue
		}
		return err
	}
}

func (c *Client) searchPage(ctx context.Context, token, pageToken string) (*searchData, error) {
	u := c.recordsURL("/search") + fmt.Sprintf("?page_size=%d", c.pageSize)
	if pageToken != "" {
		u += "&page_token=" + url.QueryEscape(pageToken)
	}

	var sr searchResponse
	if err := c.doJSON(ctx, http.MethodPost, u, token, map[string]any{}, &sr); err != nil {
		return nil, err
	}
	if err := classifyCode(sr.Code, sr.Msg); err != nil {
		return nil, err
	}
	return &sr.Data, nil
}

// CreateRecord creates one row in the remote table and returns it as the
// remote stored it (including the assigned record id).
func (c *Client) CreateRecord(ctx context.Context, fields map[string]any) (*Record, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	var created Record
	err := c.withAuthRetry(ctx, func(token string) error {
		var cr createResponse
		if err := c.doJSON(ctx, http.MethodPost, c.recordsURL(""), token, createRequest{Fields: fields}, &cr); err != nil {
			return err
		}
		if err := classifyCode(cr.Code, cr.Msg); err != nil {
			return err
		}
		created = cr.Data.Record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}
