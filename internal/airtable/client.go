package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/queryir"
	"github.com/roach88/rekey/internal/recordstore"
)

// DefaultBaseURL is the hosted API endpoint.
const DefaultBaseURL = "https://api.airtable.com"

// ErrUnauthorized is returned when the API key is rejected.
var ErrUnauthorized = errors.New("unauthorized")

// Config holds connection settings. APIKey and BaseID are required.
type Config struct {
	BaseURL   string
	BaseID    string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	PageSize  int
	BatchSize int // records per mutation call, at most recordstore.MaxBatch
	Retries   int
	RetryMin  time.Duration
	RetryMax  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.BatchSize <= 0 || c.BatchSize > recordstore.MaxBatch {
		c.BatchSize = recordstore.MaxBatch
	}
	if c.Retries <= 0 {
		c.Retries = 4
	}
	if c.RetryMin <= 0 {
		c.RetryMin = 500 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 8 * time.Second
	}
	return c
}

// Client talks to one base of the hosted store.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ recordstore.Client = (*Client)(nil)

// New validates cfg and returns a client. Missing credentials are a setup error.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("airtable: API key is empty")
	}
	if strings.TrimSpace(cfg.BaseID) == "" {
		return nil, errors.New("airtable: base id is empty")
	}
	cfg = cfg.withDefaults()
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("airtable: base url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		http:    newHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:  logger,
	}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d %s", e.Status, e.Type)
	}
	return fmt.Sprintf("status %d %s: %s", e.Status, e.Type, e.Message)
}

// Unwrap maps status codes onto the recordstore sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusForbidden:
		return recordstore.ErrPermissionDenied
	case http.StatusNotFound:
		return recordstore.ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	if e.Type == "INVALID_PERMISSIONS" || e.Type == "INVALID_PERMISSIONS_OR_MODEL_NOT_FOUND" {
		return recordstore.ErrPermissionDenied
	}
	return nil
}

// retryable reports whether method may be re-sent after e. A POST that
// failed with a server error may have committed, so it is retried only
// when rate limited.
func (e *APIError) retryable(method string) bool {
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	return method != http.MethodPost && e.Status >= 500
}

type wireRecord struct {
	ID     string       `json:"id,omitempty"`
	Fields model.Fields `json:"fields"`
}

type listResponse struct {
	Records []wireRecord `json:"records"`
	Offset  string       `json:"offset"`
}

type mutateRequest struct {
	Records []wireRecord `json:"records"`
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

// Select pages through a table. The cursor is the API's offset token.
func (c *Client) Select(ctx context.Context, q queryir.Select) *recordstore.Iterator {
	if errs := queryir.Validate(q); len(errs) > 0 {
		return recordstore.ErrIterator(fmt.Errorf("select %s: %w", q.From, errs[0]))
	}
	formula, err := Formula(q.Filter)
	if err != nil {
		return recordstore.ErrIterator(fmt.Errorf("select %s: %w", q.From, err))
	}

	return recordstore.NewIterator(func(ctx context.Context, cursor string) ([]model.Record, string, error) {
		params := url.Values{}
		params.Set("pageSize", fmt.Sprint(c.cfg.PageSize))
		if cursor != "" {
			params.Set("offset", cursor)
		}
		if formula != "" && formula != matchAll {
			params.Set("filterByFormula", formula)
		}
		for _, f := range q.Fields {
			params.Add("fields[]", f)
		}

		var resp listResponse
		if err := c.do(ctx, http.MethodGet, q.From, params, nil, &resp); err != nil {
			return nil, "", &recordstore.TableError{Table: q.From, Op: "select", Err: err}
		}

		page := make([]model.Record, len(resp.Records))
		for i, r := range resp.Records {
			page[i] = model.Record{ID: r.ID, Fields: r.Fields}
		}
		return page, resp.Offset, nil
	})
}

// Create posts records BatchSize per call.
func (c *Client) Create(ctx context.Context, table string, fields []model.Fields) ([]model.Record, error) {
	created := make([]model.Record, 0, len(fields))
	for _, chunk := range recordstore.Chunk(fields, c.cfg.BatchSize) {
		req := mutateRequest{Records: make([]wireRecord, len(chunk))}
		for i, f := range chunk {
			req.Records[i] = wireRecord{Fields: f}
		}

		var resp listResponse
		if err := c.do(ctx, http.MethodPost, table, nil, req, &resp); err != nil {
			return created, &recordstore.TableError{Table: table, Op: "create", Err: err}
		}
		for _, r := range resp.Records {
			created = append(created, model.Record{ID: r.ID, Fields: r.Fields})
		}
	}
	return created, nil
}

// Update patches records BatchSize per call. PATCH merges fields server-side.
func (c *Client) Update(ctx context.Context, table string, records []model.Record) error {
	for _, chunk := range recordstore.Chunk(records, c.cfg.BatchSize) {
		req := mutateRequest{Records: make([]wireRecord, len(chunk))}
		for i, r := range chunk {
			req.Records[i] = wireRecord{ID: r.ID, Fields: r.Fields}
		}
		if err := c.do(ctx, http.MethodPatch, table, nil, req, nil); err != nil {
			return &recordstore.TableError{Table: table, Op: "update", Err: err}
		}
	}
	return nil
}

// Delete removes records BatchSize per call.
func (c *Client) Delete(ctx context.Context, table string, ids []string) error {
	for _, chunk := range recordstore.Chunk(ids, c.cfg.BatchSize) {
		params := url.Values{}
		for _, id := range chunk {
			params.Add("records[]", id)
		}
		if err := c.do(ctx, http.MethodDelete, table, params, nil, nil); err != nil {
			return &recordstore.TableError{Table: table, Op: "delete", Err: err}
		}
	}
	return nil
}

// Ping reads one record of table to confirm the credentials and base.
func (c *Client) Ping(ctx context.Context, table string) error {
	params := url.Values{"pageSize": {"1"}}
	if err := c.do(ctx, http.MethodGet, table, params, nil, &listResponse{}); err != nil {
		return fmt.Errorf("ping %s: %w", table, err)
	}
	return nil
}

// do sends one request with rate limiting and retry, decoding into out.
func (c *Client) do(ctx context.Context, method, table string, params url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v0/" + url.PathEscape(c.cfg.BaseID) + "/" + url.PathEscape(table)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	attempt := 0
	return retry(ctx, c.cfg.Retries, c.cfg.RetryMin, c.cfg.RetryMax, func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return stop(err)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return stop(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return stop(ctx.Err())
			}
			if method == http.MethodPost {
				return stop(err)
			}
			c.logger.Debug("request failed, retrying", "method", method, "table", table, "attempt", attempt, "error", err)
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode/100 != 2 {
			apiErr := decodeError(resp.StatusCode, data)
			if apiErr.retryable(method) {
				c.logger.Debug("retryable response", "method", method, "table", table, "attempt", attempt, "status", resp.StatusCode)
				return apiErr
			}
			return stop(apiErr)
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return stop(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	})
}

// decodeError reads either {"error": "TYPE"} or {"error": {"type", "message"}}.
func decodeError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var env errorResponse
	if err := json.Unmarshal(data, &env); err != nil || len(env.Error) == 0 {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}

	var typ string
	if err := json.Unmarshal(env.Error, &typ); err == nil {
		apiErr.Type = typ
		return apiErr
	}
	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &detail); err == nil {
		apiErr.Type = detail.Type
		apiErr.Message = detail.Message
	}
	return apiErr
}
