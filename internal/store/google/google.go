package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"compteur/internal/core"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultCountersSheet = "Counters"
	DefaultHistorySheet  = "History"
)

// ErrNotFound is returned when no row carries the requested counter id.
var ErrNotFound = errors.New("counter not found")

type Options struct {
	SpreadsheetID string
	CountersSheet string
	HistorySheet  string

	// Service account credentials. When both are empty the
	// GOOGLE_SERVICE_ACCOUNT_* variables are consulted.
	CredentialsJSON string
	CredentialsFile string
}

// Client stores counters and history in two tabs of one spreadsheet.
//
// Counters tab columns: A id, B person_name, C count, D created_at, E updated_at.
// History tab columns:  A id, B counter_id, C person_name, D count, E week_start, F created_at.
// Row 1 of each tab is a header.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	countersSheet string
	historySheet  string
	newID         func() string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, opts Options) *Client {
	c := &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		countersSheet: strings.TrimSpace(opts.CountersSheet),
		historySheet:  strings.TrimSpace(opts.HistorySheet),
		newID:         uuid.NewString,
	}
	if c.countersSheet == "" {
		c.countersSheet = DefaultCountersSheet
	}
	if c.historySheet == "" {
		c.historySheet = DefaultHistorySheet
	}
	return c
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*gsheet.Service, error) {
	serviceAccountJSON = strings.TrimSpace(serviceAccountJSON)
	serviceAccountFile = strings.TrimSpace(serviceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountJSON = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	}
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) ready() error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	_, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	return err
}

// ListCounters implements store.CounterReader. Rows keep sheet order, which is
// creation order since new counters are always appended.
func (c *Client) ListCounters(ctx context.Context) ([]core.Counter, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	rng := fmt.Sprintf("%s!A2:E", c.countersSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseCounters(resp.Values), nil
}

// CreateCounter implements store.CounterWriter
func (c *Client) CreateCounter(ctx context.Context, name string, at time.Time) (core.Counter, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Counter{}, err
	}
	if err := c.ready(); err != nil {
		return core.Counter{}, err
	}
	counter := core.Counter{ID: c.newID(), Name: name, CreatedAt: at, UpdatedAt: at}
	rng := fmt.Sprintf("%s!A:E", c.countersSheet)
	vr := &gsheet.ValueRange{Values: [][]any{counterRow(counter)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return core.Counter{}, fmt.Errorf("append to %s: %w", c.countersSheet, err)
	}
	return counter, nil
}

// UpdateCount implements store.CounterWriter
func (c *Client) UpdateCount(ctx context.Context, id string, count int64, at time.Time) error {
	if count < 0 {
		return fmt.Errorf("count cannot be negative: %d", count)
	}
	row, err := c.findCounterRow(ctx, id)
	if err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!C%d", c.countersSheet, row)
	vr := &gsheet.ValueRange{Values: [][]any{{count}}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	rng = fmt.Sprintf("%s!E%d", c.countersSheet, row)
	vr = &gsheet.ValueRange{Values: [][]any{{formatTime(at)}}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// DeleteCounter clears the counter's row. Blank rows are skipped on read and
// the history tab is left untouched.
func (c *Client) DeleteCounter(ctx context.Context, id string) error {
	row, err := c.findCounterRow(ctx, id)
	if err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!A%d:E%d", c.countersSheet, row, row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

// AppendHistory implements store.HistoryWriter
func (c *Client) AppendHistory(ctx context.Context, rec core.HistoryRecord) (core.HistoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.HistoryRecord{}, fmt.Errorf("validation failed: %w", err)
	}
	if err := c.ready(); err != nil {
		return core.HistoryRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = c.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rng := fmt.Sprintf("%s!A:F", c.historySheet)
	vr := &gsheet.ValueRange{Values: [][]any{historyRow(rec)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return core.HistoryRecord{}, fmt.Errorf("append to %s: %w", c.historySheet, err)
	}
	return rec, nil
}

// ListHistory implements store.HistoryReader
func (c *Client) ListHistory(ctx context.Context) ([]core.HistoryRecord, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	rng := fmt.Sprintf("%s!A2:F", c.historySheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseHistory(resp.Values), nil
}

// findCounterRow returns the 1-based sheet row holding id.
func (c *Client) findCounterRow(ctx context.Context, id string) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	rng := fmt.Sprintf("%s!A:A", c.countersSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	row := rowOf(resp.Values, id)
	if row < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return row, nil
}
