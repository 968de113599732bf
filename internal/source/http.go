// Package source implements the upstream producers of record batches: paged
// HTTP/JSON platform APIs, the legacy relational database, and flat files.
// Every source normalizes its rows to the same RecordBatch shape.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"
)

// HTTPConfig holds the connection settings for a platform REST API.
type HTTPConfig struct {
	Endpoint string
	Token    string
	PageSize int
	Timeout  time.Duration
}

// Validate ensures all required fields are present.
func (c *HTTPConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", common.ErrMissingConfig)
	}
	if c.Token == "" {
		return fmt.Errorf("%w: API token is required", common.ErrMissingConfig)
	}
	return nil
}

// HTTPSource fetches paged JSON record batches from a platform API.
type HTTPSource struct {
	client    *http.Client
	logger    *slog.Logger
	desc      model.SourceDescriptor
	cfg       HTTPConfig
	retryOpts service.RetryOptions
}

// NewHTTPSource creates a source for one platform entity endpoint.
func NewHTTPSource(cfg HTTPConfig, desc model.SourceDescriptor) (*HTTPSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPSource{
		client:    &http.Client{Timeout: cfg.Timeout},
		cfg:       cfg,
		desc:      desc,
		logger:    slog.Default().With("component", "source.http", "platform", desc.Platform),
		retryOpts: service.DefaultRetryOptions(),
	}, nil
}

// Describe returns the source descriptor used for raw-zone tagging.
func (s *HTTPSource) Describe() model.SourceDescriptor {
	return s.desc
}

// page is the wire envelope every platform endpoint returns.
type page struct {
	NextPage *int             `json:"next_page"`
	Data     []map[string]any `json:"data"`
}

// Fetch pulls every page of the endpoint and flattens them into one batch.
// Column order is first-seen order across all records.
func (s *HTTPSource) Fetch(ctx context.Context) (model.RecordBatch, error) {
	var (
		records []map[string]any
		pageNum = 1
	)

	for {
		var p page
		err := common.WithRetry(ctx, func() error {
			var fetchErr error
			p, fetchErr = s.fetchPage(ctx, pageNum)
			return fetchErr
		}, s.retryOpts)
		if err != nil {
			return model.RecordBatch{}, fmt.Errorf("failed to fetch page %d: %w", pageNum, err)
		}

		records = append(records, p.Data...)
		if p.NextPage == nil {
			break
		}
		pageNum = *p.NextPage
	}

	s.logger.Info("Fetched records from upstream",
		"entity", s.desc.Entity,
		"records", len(records))

	return flattenRecords(records), nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, pageNum int) (page, error) {
	url := fmt.Sprintf("%s?page=%d&per_page=%d", s.cfg.Endpoint, pageNum, s.cfg.PageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return page{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return page{}, fmt.Errorf("%w: %v", common.ErrUpstreamGone, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return page{}, fmt.Errorf("%w: status %d", common.ErrUpstreamAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return page{}, common.ErrRateLimit
	case resp.StatusCode >= 500:
		return page{}, &common.RetryableError{
			Err:       fmt.Errorf("upstream returned status %d", resp.StatusCode),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return page{}, fmt.Errorf("%w: unexpected status %d", common.ErrUpstreamPayload, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return page{}, fmt.Errorf("%w: %v", common.ErrUpstreamGone, err)
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return page{}, fmt.Errorf("%w: %v", common.ErrUpstreamPayload, err)
	}
	return p, nil
}

// flattenRecords turns loosely-keyed JSON records into a batch with a fixed
// column set. Columns are sorted for a deterministic schema across runs;
// missing keys become nulls.
func flattenRecords(records []map[string]any) model.RecordBatch {
	seen := make(map[string]bool)
	var columns []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	batch := model.RecordBatch{Columns: columns}
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch
}
