package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"compteur/internal/core"
	"compteur/internal/store"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var (
	_ store.Backend = (*Client)(nil)
	_ store.Pinger  = (*Client)(nil)
)

func TestParseCountersSkipsClearedRows(t *testing.T) {
	values := [][]interface{}{
		{"c1", "Alice", "3", "2025-10-27T09:00:00Z", "2025-10-28T09:00:00Z"},
		{},
		{"", "", "", "", ""},
		{"c2", "Bob", "not-a-number"},
		{"c3", "", "1"},
	}
	got := parseCounters(values)
	if len(got) != 2 {
		t.Fatalf("expected 2 counters, got %+v", got)
	}
	if got[0].Count != 3 || got[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected first counter: %+v", got[0])
	}
	if got[1].Name != "Bob" || got[1].Count != 0 {
		t.Fatalf("unreadable count should fall back to zero: %+v", got[1])
	}
}

func TestParseHistoryOrdersByWeek(t *testing.T) {
	values := [][]interface{}{
		{"h1", "c1", "Alice", "1", "2025-11-03", "2025-11-04T09:00:00Z"},
		{"h2", "c1", "Alice", "1", "bad-date"},
		{"h3", "c2", "Bob", "1", "2025-10-27"},
		{"h4", "c2", "", "1", "2025-10-27"},
	}
	got := parseHistory(values)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %+v", got)
	}
	if got[0].ID != "h3" || got[1].ID != "h1" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRowOf(t *testing.T) {
	values := [][]interface{}{{"id"}, {"c1"}, {}, {"c2"}}
	if got := rowOf(values, "c2"); got != 4 {
		t.Fatalf("rowOf(c2) = %d, want 4", got)
	}
	if got := rowOf(values, "missing"); got != -1 {
		t.Fatalf("rowOf(missing) = %d", got)
	}
}

func TestRowFormattingRoundTrips(t *testing.T) {
	at := time.Date(2025, 10, 27, 9, 30, 0, 0, time.UTC)
	rec := core.HistoryRecord{ID: "h1", CounterID: "c1", Name: "Alice", Count: 1, WeekStart: core.NewDate(2025, 10, 27), CreatedAt: at}
	row := historyRow(rec)
	got := parseHistory([][]interface{}{row})
	if len(got) != 1 || !got[0].CreatedAt.Equal(at) || got[0].WeekStart.String() != "2025-10-27" {
		t.Fatalf("unexpected parse: %+v", got)
	}
}

func TestClientWithoutServiceFails(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.ListCounters(context.Background()); err == nil {
		t.Fatal("expected error without service")
	}
	if _, err := c.CreateCounter(context.Background(), "  ", time.Now()); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("name validation should run first, got %v", err)
	}
}

// fakeSheets answers the handful of Sheets API calls the client makes.
type fakeSheets struct {
	mu       sync.Mutex
	counters [][]interface{}
	appended [][]interface{}
	cleared  []string
	updated  []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		_, _ = io.WriteString(w, `{}`)
	case strings.HasSuffix(path, ":clear"):
		f.cleared = append(f.cleared, path)
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPut:
		f.updated = append(f.updated, path)
		_, _ = io.WriteString(w, `{}`)
	case strings.Contains(path, "A:A"):
		col := [][]interface{}{{"id"}}
		for _, row := range f.counters {
			col = append(col, []interface{}{row[0]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": col})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.counters})
	}
}

func newFakeClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	c := NewWithService(svc, Options{SpreadsheetID: "sheet-1"})
	c.newID = func() string { return "fixed-id" }
	return c
}

func TestClientListAndCreate(t *testing.T) {
	fake := &fakeSheets{counters: [][]interface{}{{"c1", "Alice", "2", "", ""}}}
	c := newFakeClient(t, fake)

	list, err := c.ListCounters(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Alice" || list[0].Count != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}

	created, err := c.CreateCounter(context.Background(), " Bob ", time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "fixed-id" || created.Name != "Bob" {
		t.Fatalf("unexpected counter: %+v", created)
	}
	if len(fake.appended) != 1 || fake.appended[0][1] != "Bob" {
		t.Fatalf("unexpected appended rows: %v", fake.appended)
	}
}

func TestClientUpdateAndDeleteFindRow(t *testing.T) {
	fake := &fakeSheets{counters: [][]interface{}{{"c1", "Alice", "2"}, {"c2", "Bob", "0"}}}
	c := newFakeClient(t, fake)

	if err := c.UpdateCount(context.Background(), "c2", 1, time.Now()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(fake.updated) != 2 || !strings.Contains(fake.updated[0], "C3") {
		t.Fatalf("expected updates on row 3, got %v", fake.updated)
	}
	if err := c.DeleteCounter(context.Background(), "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.cleared) != 1 || !strings.Contains(fake.cleared[0], "A2:E2") {
		t.Fatalf("expected row 2 cleared, got %v", fake.cleared)
	}
	if err := c.DeleteCounter(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
