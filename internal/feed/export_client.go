package feed

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements ExportClient over the feed's HTTP export endpoints.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new export HTTP client.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a GET with retries and exponential backoff.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func rangeQuery(from, to int64) url.Values {
	q := url.Values{}
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))
	return q
}

// FetchSpend retrieves spend events within time range [from, to] (inclusive, ms).
func (c *HTTPClient) FetchSpend(ctx context.Context, from, to int64) ([]SpendEvent, error) {
	body, err := c.get(ctx, "/export/spend", rangeQuery(from, to))
	if err != nil {
		return nil, err
	}
	return ParseSpendCSV(body)
}

// FetchOutcome retrieves outcome events within time range [from, to] (inclusive, ms).
func (c *HTTPClient) FetchOutcome(ctx context.Context, from, to int64) ([]OutcomeEvent, error) {
	body, err := c.get(ctx, "/export/outcome", rangeQuery(from, to))
	if err != nil {
		return nil, err
	}
	return ParseOutcomeCSV(body)
}

// FetchStatus retrieves the export availability window and stream head.
func (c *HTTPClient) FetchStatus(ctx context.Context) (*ExportStatus, error) {
	body, err := c.get(ctx, "/export/status", nil)
	if err != nil {
		return nil, err
	}

	var status ExportStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &status, nil
}

// spendHeader is the expected header of the spend export CSV.
var spendHeader = []string{"channel", "medium", "period_start", "spend", "impressions"}

// outcomeHeader is the expected header of the outcome export CSV.
var outcomeHeader = []string{"metric", "period_start", "value"}

// ParseSpendCSV parses a spend export body.
// Expected columns: channel,medium,period_start,spend,impressions.
func ParseSpendCSV(data []byte) ([]SpendEvent, error) {
	rows, err := readCSV(data, spendHeader)
	if err != nil {
		return nil, err
	}

	events := make([]SpendEvent, 0, len(rows))
	for i, row := range rows {
		periodStart, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse period_start %q: %w", i+1, row[2], err)
		}
		spend, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse spend %q: %w", i+1, row[3], err)
		}
		impressions, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse impressions %q: %w", i+1, row[4], err)
		}

		events = append(events, SpendEvent{
			Channel:     row[0],
			Medium:      row[1],
			PeriodStart: periodStart,
			Spend:       spend,
			Impressions: impressions,
		})
	}
	return events, nil
}

// ParseOutcomeCSV parses an outcome export body.
// Expected columns: metric,period_start,value.
func ParseOutcomeCSV(data []byte) ([]OutcomeEvent, error) {
	rows, err := readCSV(data, outcomeHeader)
	if err != nil {
		return nil, err
	}

	events := make([]OutcomeEvent, 0, len(rows))
	for i, row := range rows {
		periodStart, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse period_start %q: %w", i+1, row[1], err)
		}
		value, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse value %q: %w", i+1, row[2], err)
		}

		events = append(events, OutcomeEvent{
			Metric:      row[0],
			PeriodStart: periodStart,
			Value:       value,
		})
	}
	return events, nil
}

// readCSV reads all records and validates the header row.
func readCSV(data []byte, header []string) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(header)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv: missing header")
	}

	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(records[0][i]), col) {
			return nil, fmt.Errorf("unexpected header %v, want %v", records[0], header)
		}
	}

	return records[1:], nil
}
