package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"compteur/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Default table names used by the hosted schema.
const (
	DefaultCountersTable = "anecdote_counters"
	DefaultHistoryTable  = "anecdote_history"
)

// ErrNotFound is returned when an update or delete matches no counter.
var ErrNotFound = errors.New("counter not found")

// PgxIface is the subset of *pgxpool.Pool the repository uses.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type Tables struct {
	Counters string
	History  string
}

func (t Tables) withDefaults() Tables {
	if t.Counters == "" {
		t.Counters = DefaultCountersTable
	}
	if t.History == "" {
		t.History = DefaultHistoryTable
	}
	return t
}

type Repository struct {
	pool     PgxIface
	counters string
	history  string
}

// Connect opens a pgx pool against dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, tables Tables) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.InfoContext(ctx, "Connected to postgres", "counters_table", tables.withDefaults().Counters)
	return NewRepository(pool, tables), nil
}

func NewRepository(pool PgxIface, tables Tables) *Repository {
	tables = tables.withDefaults()
	return &Repository{
		pool:     pool,
		counters: pgx.Identifier{tables.Counters}.Sanitize(),
		history:  pgx.Identifier{tables.History}.Sanitize(),
	}
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ListCounters implements store.CounterReader
func (r *Repository) ListCounters(ctx context.Context) ([]core.Counter, error) {
	query := `SELECT id::text, person_name, count, created_at, updated_at FROM ` + r.counters +
		` ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	var out []core.Counter
	for rows.Next() {
		var c core.Counter
		if err := rows.Scan(&c.ID, &c.Name, &c.Count, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", err)
	}
	return out, nil
}

// CreateCounter implements store.CounterWriter
func (r *Repository) CreateCounter(ctx context.Context, name string, at time.Time) (core.Counter, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Counter{}, err
	}
	query := `INSERT INTO ` + r.counters + ` (person_name, count, created_at, updated_at)
VALUES ($1, 0, $2, $2)
RETURNING id::text, person_name, count, created_at, updated_at`

	var c core.Counter
	err = r.pool.QueryRow(ctx, query, name, at).Scan(&c.ID, &c.Name, &c.Count, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return core.Counter{}, fmt.Errorf("create counter: %w", err)
	}
	return c, nil
}

// UpdateCount implements store.CounterWriter
func (r *Repository) UpdateCount(ctx context.Context, id string, count int64, at time.Time) error {
	return r.updateCount(ctx, r.pool, id, count, at)
}

// DeleteCounter implements store.CounterWriter. History rows are kept.
func (r *Repository) DeleteCounter(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+r.counters+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// AppendHistory implements store.HistoryWriter
func (r *Repository) AppendHistory(ctx context.Context, rec core.HistoryRecord) (core.HistoryRecord, error) {
	return r.insertHistory(ctx, r.pool, rec)
}

// IncrementWithHistory implements store.AtomicIncrementer
func (r *Repository) IncrementWithHistory(ctx context.Context, id string, count int64, at time.Time, rec core.HistoryRecord) (core.HistoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.HistoryRecord{}, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return core.HistoryRecord{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := r.updateCount(ctx, tx, id, count, at); err != nil {
		return core.HistoryRecord{}, err
	}
	saved, err := r.insertHistory(ctx, tx, rec)
	if err != nil {
		return core.HistoryRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.HistoryRecord{}, fmt.Errorf("commit increment: %w", err)
	}
	return saved, nil
}

// ListHistory implements store.HistoryReader
func (r *Repository) ListHistory(ctx context.Context) ([]core.HistoryRecord, error) {
	query := `SELECT id::text, counter_id::text, person_name, count, week_start, created_at FROM ` + r.history +
		` ORDER BY week_start ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []core.HistoryRecord
	for rows.Next() {
		var (
			rec  core.HistoryRecord
			week time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.CounterID, &rec.Name, &rec.Count, &week, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.WeekStart = core.DateOf(week)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) updateCount(ctx context.Context, db execer, id string, count int64, at time.Time) error {
	if count < 0 {
		return fmt.Errorf("count cannot be negative: %d", count)
	}
	tag, err := db.Exec(ctx, `UPDATE `+r.counters+` SET count = $1, updated_at = $2 WHERE id = $3`, count, at, id)
	if err != nil {
		return fmt.Errorf("update count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *Repository) insertHistory(ctx context.Context, db execer, rec core.HistoryRecord) (core.HistoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.HistoryRecord{}, err
	}
	query := `INSERT INTO ` + r.history + ` (counter_id, person_name, count, week_start)
VALUES ($1, $2, $3, $4)
RETURNING id::text, created_at`
	err := db.QueryRow(ctx, query, rec.CounterID, rec.Name, rec.Count, rec.WeekStart.Time).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return core.HistoryRecord{}, fmt.Errorf("insert history: %w", err)
	}
	return rec, nil
}
