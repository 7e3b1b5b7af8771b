// Package postgrest talks to a hosted PostgREST endpoint (the REST layer in
// front of a managed Postgres database) using its table query dialect.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"compteur/internal/core"
)

const (
	DefaultCountersTable = "anecdote_counters"
	DefaultHistoryTable  = "anecdote_history"
	defaultRESTPath      = "/rest/v1"
	defaultTimeout       = 10 * time.Second
)

var (
	ErrMissingCredentials = errors.New("postgrest: base URL and key are required")
	ErrNotFound           = errors.New("counter not found")
)

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("postgrest: HTTP %d", e.Status)
	}
	return fmt.Sprintf("postgrest: HTTP %d: %s", e.Status, e.Message)
}

type Options struct {
	BaseURL       string
	Key           string
	CountersTable string
	HistoryTable  string
	HTTPClient    *http.Client
}

type Client struct {
	base     string
	key      string
	counters string
	history  string
	http     *http.Client
}

// New builds a client. BaseURL and Key have no defaults.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	key := strings.TrimSpace(opts.Key)
	if base == "" || key == "" {
		return nil, ErrMissingCredentials
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("postgrest: invalid base URL: %w", err)
	}
	if !strings.HasSuffix(base, defaultRESTPath) {
		base += defaultRESTPath
	}

	c := &Client{
		base:     base,
		key:      key,
		counters: opts.CountersTable,
		history:  opts.HistoryTable,
		http:     opts.HTTPClient,
	}
	if c.counters == "" {
		c.counters = DefaultCountersTable
	}
	if c.history == "" {
		c.history = DefaultHistoryTable
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	return c, nil
}

// ListCounters implements store.CounterReader
func (c *Client) ListCounters(ctx context.Context) ([]core.Counter, error) {
	q := url.Values{"select": {"*"}, "order": {"created_at.asc"}}
	var out []core.Counter
	if err := c.do(ctx, http.MethodGet, c.counters, q, nil, &out); err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	return out, nil
}

type counterInsert struct {
	Name      string    `json:"person_name"`
	Count     int64     `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateCounter implements store.CounterWriter
func (c *Client) CreateCounter(ctx context.Context, name string, at time.Time) (core.Counter, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Counter{}, err
	}
	body := []counterInsert{{Name: name, Count: 0, CreatedAt: at, UpdatedAt: at}}
	var rows []core.Counter
	if err := c.do(ctx, http.MethodPost, c.counters, url.Values{"select": {"*"}}, body, &rows); err != nil {
		return core.Counter{}, fmt.Errorf("create counter: %w", err)
	}
	if len(rows) == 0 {
		return core.Counter{}, errors.New("create counter: empty response")
	}
	return rows[0], nil
}

type countPatch struct {
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateCount implements store.CounterWriter
func (c *Client) UpdateCount(ctx context.Context, id string, count int64, at time.Time) error {
	if count < 0 {
		return fmt.Errorf("count cannot be negative: %d", count)
	}
	var rows []core.Counter
	if err := c.do(ctx, http.MethodPatch, c.counters, idFilter(id), countPatch{Count: count, UpdatedAt: at}, &rows); err != nil {
		return fmt.Errorf("update count: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteCounter implements store.CounterWriter. History rows are kept.
func (c *Client) DeleteCounter(ctx context.Context, id string) error {
	var rows []core.Counter
	if err := c.do(ctx, http.MethodDelete, c.counters, idFilter(id), nil, &rows); err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type historyInsert struct {
	CounterID string    `json:"counter_id"`
	Name      string    `json:"person_name"`
	Count     int64     `json:"count"`
	WeekStart core.Date `json:"week_start"`
}

// AppendHistory implements store.HistoryWriter
func (c *Client) AppendHistory(ctx context.Context, rec core.HistoryRecord) (core.HistoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.HistoryRecord{}, err
	}
	body := []historyInsert{{CounterID: rec.CounterID, Name: rec.Name, Count: rec.Count, WeekStart: rec.WeekStart}}
	var rows []core.HistoryRecord
	if err := c.do(ctx, http.MethodPost, c.history, url.Values{"select": {"*"}}, body, &rows); err != nil {
		return core.HistoryRecord{}, fmt.Errorf("append history: %w", err)
	}
	if len(rows) > 0 {
		rec.ID = rows[0].ID
		if !rows[0].CreatedAt.IsZero() {
			rec.CreatedAt = rows[0].CreatedAt
		}
	}
	return rec, nil
}

// ListHistory implements store.HistoryReader
func (c *Client) ListHistory(ctx context.Context) ([]core.HistoryRecord, error) {
	q := url.Values{"select": {"*"}, "order": {"week_start.asc"}}
	var out []core.HistoryRecord
	if err := c.do(ctx, http.MethodGet, c.history, q, nil, &out); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// Ping issues a one-row read against the counters table.
func (c *Client) Ping(ctx context.Context) error {
	var out []json.RawMessage
	return c.do(ctx, http.MethodGet, c.counters, url.Values{"select": {"id"}, "limit": {"1"}}, nil, &out)
}

func idFilter(id string) url.Values {
	return url.Values{"id": {"eq." + id}, "select": {"*"}}
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body, out any) error {
	endpoint := c.base + "/" + url.PathEscape(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(payload, apiErr)
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
