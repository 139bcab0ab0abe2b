package bitable

import (
	"context"
	"log/slog"
	"time"
)

// FetchResult is the outcome of a full paginated fetch.
type FetchResult struct {
	// Records in the order the remote returned them; no re-sorting.
	Records []Record
	// Total as reported by the remote, which may exceed len(Records) when
	// the result was truncated.
	Total int
	// Truncated is set when the hard record cap stopped pagination early.
	// The result is usable but possibly incomplete.
	Truncated bool
}

// FetchAllRecords walks the list endpoint page by page until the remote
// reports no more pages, the hard cap is reached, or an error occurs.
// Hitting the cap is not an error; the caller sees Truncated instead.
func (c *Client) FetchAllRecords(ctx context.Context) (*FetchResult, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	var (
		out       FetchResult
		pageToken string
		warned    bool
	)
	for {
		var data searchData
		err := c.withAuthRetry(ctx, func(token string) error {
			page, err := c.searchPage(ctx, token, pageToken)
			if err != nil {
				return err
			}
			data = *page
			return nil
		})
		if err != nil {
			return nil, err
		}

		out.Records = append(out.Records, data.Items...)
		out.Total = data.Total

		if !warned && c.warnRecords > 0 && len(out.Records) >= c.warnRecords {
			slog.Warn("record count crossed warning threshold",
				"count", len(out.Records), "threshold", c.warnRecords)
			warned = true
		}

		if c.maxRecords > 0 && len(out.Records) >= c.maxRecords {
			out.Records = out.Records[:c.maxRecords]
			out.Truncated = true
			slog.Warn("record cap reached, result truncated",
				"cap", c.maxRecords, "remote_total", data.Total)
			return &out, nil
		}

		if !data.HasMore || data.PageToken == "" {
			return &out, nil
		}
		pageToken = data.PageToken

		// Rate shaping: pause between consecutive page requests.
		if c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}
	}
}
