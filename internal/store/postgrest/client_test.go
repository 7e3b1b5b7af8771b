package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"compteur/internal/core"
	"compteur/internal/store"
)

var (
	_ store.Backend = (*Client)(nil)
	_ store.Pinger  = (*Client)(nil)
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, Key: "test-key", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	cases := []Options{
		{},
		{BaseURL: "https://example.test"},
		{Key: "k"},
		{BaseURL: "   ", Key: "k"},
	}
	for i, opts := range cases {
		if _, err := New(opts); !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("case %d: expected ErrMissingCredentials, got %v", i, err)
		}
	}
	if _, err := New(Options{BaseURL: "not a url", Key: "k"}); err == nil {
		t.Fatalf("expected error for invalid base URL")
	}
}

func TestListCountersSendsAuthAndOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/rest/v1/anecdote_counters" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "test-key" || r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if got := r.URL.Query().Get("order"); got != "created_at.asc" {
			t.Errorf("order = %q", got)
		}
		_, _ = io.WriteString(w, `[
			{"id":"c1","person_name":"Alice","count":2,"created_at":"2025-10-27T09:00:00.123456+00:00","updated_at":"2025-10-28T09:00:00+00:00"},
			{"id":"c2","person_name":"Bob","count":0,"created_at":"2025-10-27T10:00:00+00:00","updated_at":"2025-10-27T10:00:00+00:00"}
		]`)
	})

	got, err := c.ListCounters(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Alice" || got[0].Count != 2 || got[1].ID != "c2" {
		t.Fatalf("unexpected counters: %+v", got)
	}
}

func TestCreateCounterPostsTrimmedName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("missing Prefer header")
		}
		var body []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body) != 1 || body[0]["person_name"] != "Alice" || body[0]["count"] != float64(0) {
			t.Errorf("unexpected body: %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"c1","person_name":"Alice","count":0,"created_at":"2025-10-27T09:00:00+00:00","updated_at":"2025-10-27T09:00:00+00:00"}]`)
	})

	got, err := c.CreateCounter(context.Background(), " Alice ", time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ID != "c1" || got.Name != "Alice" {
		t.Fatalf("unexpected counter: %+v", got)
	}
}

func TestUpdateCountFiltersByID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("id"); got != "eq.c1" {
			t.Errorf("id filter = %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["count"] != float64(3) || body["updated_at"] == nil {
			t.Errorf("unexpected body: %v", body)
		}
		_, _ = io.WriteString(w, `[{"id":"c1","person_name":"Alice","count":3}]`)
	})

	if err := c.UpdateCount(context.Background(), "c1", 3, time.Now()); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestUpdateCountNoRowsIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	if err := c.UpdateCount(context.Background(), "ghost", 1, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCounter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Query().Get("id") != "eq.c1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"id":"c1"}]`)
	})
	if err := c.DeleteCounter(context.Background(), "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestAppendHistorySendsWeekStartAsDate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/anecdote_history" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body) != 1 || body[0]["week_start"] != "2025-10-27" || body[0]["counter_id"] != "c1" {
			t.Errorf("unexpected body: %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"h1","counter_id":"c1","person_name":"Alice","count":1,"week_start":"2025-10-27","created_at":"2025-10-30T12:00:00+00:00"}]`)
	})

	rec := core.NewIncrementRecord(core.Counter{ID: "c1", Name: "Alice"}, time.Date(2025, 10, 30, 12, 0, 0, 0, time.UTC))
	saved, err := c.AppendHistory(context.Background(), rec)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if saved.ID != "h1" {
		t.Fatalf("id = %q", saved.ID)
	}
}

func TestListHistoryDecodesDates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("order"); got != "week_start.asc" {
			t.Errorf("order = %q", got)
		}
		_, _ = io.WriteString(w, `[{"id":"h1","counter_id":"c1","person_name":"Alice","count":1,"week_start":"2025-10-27","created_at":"2025-10-30T12:00:00+00:00"}]`)
	})
	got, err := c.ListHistory(context.Background())
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(got) != 1 || !got[0].WeekStart.Equal(core.NewDate(2025, 10, 27)) {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func TestAPIErrorIsReturned(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"PGRST301","message":"JWT expired"}`)
	})
	_, err := c.ListCounters(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "JWT expired" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestBaseURLWithRESTPathIsKept(t *testing.T) {
	c, err := New(Options{BaseURL: "https://example.test/rest/v1/", Key: "k"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.base != "https://example.test/rest/v1" {
		t.Fatalf("base = %q", c.base)
	}
}
