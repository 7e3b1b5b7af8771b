package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"compteur/internal/core"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when an update or delete matches no counter.
var ErrNotFound = errors.New("counter not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

// sqlitePragmas run on every pooled connection. WAL lets the web process
// and the sync processor share the file.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

func dataSourceName(dbPath string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return "file:" + dbPath + "?" + q.Encode()
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListCounters implements store.CounterReader
func (r *SQLiteRepository) ListCounters(ctx context.Context) ([]core.Counter, error) {
	rows, err := r.queries.ListCounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	out := make([]core.Counter, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCoreCounter(row))
	}
	return out, nil
}

// CreateCounter implements store.CounterWriter
func (r *SQLiteRepository) CreateCounter(ctx context.Context, name string, at time.Time) (core.Counter, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Counter{}, err
	}
	row, err := r.queries.CreateCounter(ctx, CreateCounterParams{
		ID:         uuid.NewString(),
		PersonName: name,
		CreatedAt:  formatTime(at),
	})
	if err != nil {
		return core.Counter{}, fmt.Errorf("create counter: %w", err)
	}

	slog.InfoContext(ctx, "Counter saved to SQLite", "id", row.ID, "person_name", row.PersonName)
	return toCoreCounter(row), nil
}

// UpdateCount implements store.CounterWriter
func (r *SQLiteRepository) UpdateCount(ctx context.Context, id string, count int64, at time.Time) error {
	return writeCount(ctx, r.queries, id, count, at)
}

// DeleteCounter implements store.CounterWriter. History rows are kept.
func (r *SQLiteRepository) DeleteCounter(ctx context.Context, id string) error {
	n, err := r.queries.DeleteCounter(ctx, id)
	if err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// AppendHistory implements store.HistoryWriter
func (r *SQLiteRepository) AppendHistory(ctx context.Context, rec core.HistoryRecord) (core.HistoryRecord, error) {
	return writeHistory(ctx, r.queries, rec)
}

// IncrementWithHistory implements store.AtomicIncrementer
func (r *SQLiteRepository) IncrementWithHistory(ctx context.Context, id string, count int64, at time.Time, rec core.HistoryRecord) (core.HistoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.HistoryRecord{}, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.HistoryRecord{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := writeCount(ctx, q, id, count, at); err != nil {
		return core.HistoryRecord{}, err
	}
	saved, err := writeHistory(ctx, q, rec)
	if err != nil {
		return core.HistoryRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.HistoryRecord{}, fmt.Errorf("commit increment: %w", err)
	}
	return saved, nil
}

// ListHistory implements store.HistoryReader
func (r *SQLiteRepository) ListHistory(ctx context.Context) ([]core.HistoryRecord, error) {
	rows, err := r.queries.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]core.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toCoreHistory(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable history row", "id", row.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// PendingSyncHistory represents minimal data needed for sync queue messages
type PendingSyncHistory struct {
	ID        string
	Attempts  int64
	CreatedAt time.Time
}

// GetPendingSyncHistory returns history rows not yet mirrored to Google Sheets
func (r *SQLiteRepository) GetPendingSyncHistory(ctx context.Context, limit int) ([]PendingSyncHistory, error) {
	rows, err := r.queries.GetPendingSyncHistory(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync history: %w", err)
	}
	out := make([]PendingSyncHistory, len(rows))
	for i, row := range rows {
		created, _ := time.Parse(timeLayout, row.CreatedAt)
		out[i] = PendingSyncHistory{ID: row.ID, Attempts: row.SyncAttempts, CreatedAt: created}
	}
	return out, nil
}

// GetHistory retrieves a single history row by ID
func (r *SQLiteRepository) GetHistory(ctx context.Context, id string) (core.HistoryRecord, error) {
	row, err := r.queries.GetHistory(ctx, id)
	if err != nil {
		return core.HistoryRecord{}, fmt.Errorf("get history by id: %w", err)
	}
	return toCoreHistory(row)
}

// IsSynced reports whether a history row already reached the mirror.
func (r *SQLiteRepository) IsSynced(ctx context.Context, id string) (bool, error) {
	row, err := r.queries.GetHistory(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get history by id: %w", err)
	}
	return row.SyncedAt.Valid, nil
}

// MarkSynced marks a history row as mirrored
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if err := r.queries.MarkHistorySynced(ctx, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("mark history synced: %w", err)
	}
	slog.DebugContext(ctx, "History marked as synced", "id", id)
	return nil
}

// MarkSyncError records a failed mirror attempt
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.queries.MarkHistorySyncError(ctx, id); err != nil {
		return fmt.Errorf("mark history sync error: %w", err)
	}
	slog.WarnContext(ctx, "History marked with sync error", "id", id)
	return nil
}

func writeCount(ctx context.Context, q *Queries, id string, count int64, at time.Time) error {
	if count < 0 {
		return fmt.Errorf("count cannot be negative: %d", count)
	}
	n, err := q.UpdateCount(ctx, UpdateCountParams{Count: count, UpdatedAt: formatTime(at), ID: id})
	if err != nil {
		return fmt.Errorf("update count: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func writeHistory(ctx context.Context, q *Queries, rec core.HistoryRecord) (core.HistoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.HistoryRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	err := q.InsertHistory(ctx, InsertHistoryParams{
		ID:         rec.ID,
		CounterID:  rec.CounterID,
		PersonName: rec.Name,
		Count:      rec.Count,
		WeekStart:  rec.WeekStart.String(),
		CreatedAt:  formatTime(rec.CreatedAt),
	})
	if err != nil {
		return core.HistoryRecord{}, fmt.Errorf("insert history: %w", err)
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func toCoreCounter(row Counter) core.Counter {
	created, _ := time.Parse(timeLayout, row.CreatedAt)
	updated, _ := time.Parse(timeLayout, row.UpdatedAt)
	return core.Counter{
		ID:        row.ID,
		Name:      row.PersonName,
		Count:     row.Count,
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func toCoreHistory(row History) (core.HistoryRecord, error) {
	week, err := core.ParseDate(row.WeekStart)
	if err != nil {
		return core.HistoryRecord{}, err
	}
	created, _ := time.Parse(timeLayout, row.CreatedAt)
	return core.HistoryRecord{
		ID:        row.ID,
		CounterID: row.CounterID,
		Name:      row.PersonName,
		Count:     row.Count,
		WeekStart: week,
		CreatedAt: created,
	}, nil
}
