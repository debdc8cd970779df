// Package eso reads market data from the National Grid ESO open-data portal.
package eso

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PowerDesk/internal/domain/models"
	drepo "PowerDesk/internal/domain/repository"
	domsvc "PowerDesk/internal/domain/service"
	"PowerDesk/internal/services/analysis"
	pkghttp "PowerDesk/pkg/http"
	"PowerDesk/pkg/logger"
	"PowerDesk/pkg/tabular"
)

const defaultAttempts = 3

// Client calls the CKAN datastore_search action for one resource.
type Client struct {
	http       *pkghttp.Client
	url        string
	resourceID string
	limit      int
	attempts   int
}

func New(url, resourceID string, limit int, opts ...pkghttp.ClientOption) *Client {
	if limit <= 0 {
		limit = 10
	}
	opts = append([]pkghttp.ClientOption{pkghttp.WithTimeout(15 * time.Second), pkghttp.WithUserAgent("powerdesk/1.0")}, opts...)
	return &Client{
		http:       pkghttp.NewClient(opts...),
		url:        url,
		resourceID: resourceID,
		limit:      limit,
		attempts:   defaultAttempts,
	}
}

type searchResponse struct {
	Success bool `json:"success"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
	Result struct {
		Fields []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"fields"`
		Records []map[string]json.RawMessage `json:"records"`
	} `json:"result"`
}

// FetchTable returns the latest records as a table, columns in field order.
func (c *Client) FetchTable(ctx context.Context) (*tabular.Table, error) {
	var resp searchResponse
	err := c.http.SendAndParseWithRetry(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    c.url,
		QueryParams: map[string][]string{
			"resource_id": {c.resourceID},
			"limit":       {strconv.Itoa(c.limit)},
		},
	}, &resp, c.attempts)
	if err != nil {
		return nil, fmt.Errorf("eso datastore_search: %w", err)
	}
	if !resp.Success {
		msg := "unknown error"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return nil, fmt.Errorf("eso datastore_search: %s", msg)
	}
	if len(resp.Result.Records) == 0 {
		return nil, fmt.Errorf("eso datastore_search: %w", tabular.ErrEmptyFile)
	}

	var headers []string
	for _, f := range resp.Result.Fields {
		if f.ID == "_id" || f.ID == "_full_text" {
			continue
		}
		headers = append(headers, f.ID)
	}
	rows := make([][]string, 0, len(resp.Result.Records))
	for _, rec := range resp.Result.Records {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = rawString(rec[h])
		}
		rows = append(rows, row)
	}
	return tabular.New(headers, rows), nil
}

// FetchPrices converts the latest records into price ticks.
func (c *Client) FetchPrices(ctx context.Context) ([]*models.MarketPrice, error) {
	t, err := c.FetchTable(ctx)
	if err != nil {
		return nil, err
	}
	prices, _, err := analysis.ExtractMarketPrices(t, models.SourceESO, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("eso records: %w", err)
	}
	return prices, nil
}

func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return s
}

// Source serves live ESO rows and falls back to the simulated market table
// when the portal is unavailable.
type Source struct {
	client  *Client
	log     *logger.Logger
	metrics drepo.Metrics
}

func NewSource(client *Client, log *logger.Logger, metrics drepo.Metrics) *Source {
	return &Source{client: client, log: log, metrics: metrics}
}

func (s *Source) FetchTable(ctx context.Context) (*tabular.Table, bool, error) {
	start := time.Now()
	t, err := s.client.FetchTable(ctx)
	if s.metrics != nil {
		s.metrics.RecordLatency("eso_fetch", time.Since(start).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		s.log.Warn("live market data unavailable, using simulated table", logger.Error(err))
		if s.metrics != nil {
			s.metrics.RecordError("eso_fetch")
		}
		return analysis.FallbackMarketTable(), false, nil
	}
	return t, true, nil
}

var _ domsvc.MarketSource = (*Source)(nil)
