package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Counter is a row of the counters table.
type Counter struct {
	ID         string
	PersonName string
	Count      int64
	CreatedAt  string
	UpdatedAt  string
}

// History is a row of the history table.
type History struct {
	ID           string
	CounterID    string
	PersonName   string
	Count        int64
	WeekStart    string
	CreatedAt    string
	SyncedAt     sql.NullString
	SyncAttempts int64
}

const listCounters = `SELECT id, person_name, count, created_at, updated_at
FROM counters
ORDER BY created_at ASC, rowid ASC`

func (q *Queries) ListCounters(ctx context.Context) ([]Counter, error) {
	rows, err := q.db.QueryContext(ctx, listCounters)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Counter
	for rows.Next() {
		var i Counter
		if err := rows.Scan(&i.ID, &i.PersonName, &i.Count, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createCounter = `INSERT INTO counters (id, person_name, count, created_at, updated_at)
VALUES (?, ?, 0, ?, ?)
RETURNING id, person_name, count, created_at, updated_at`

type CreateCounterParams struct {
	ID         string
	PersonName string
	CreatedAt  string
}

func (q *Queries) CreateCounter(ctx context.Context, arg CreateCounterParams) (Counter, error) {
	row := q.db.QueryRowContext(ctx, createCounter, arg.ID, arg.PersonName, arg.CreatedAt, arg.CreatedAt)
	var i Counter
	err := row.Scan(&i.ID, &i.PersonName, &i.Count, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const updateCount = `UPDATE counters SET count = ?, updated_at = ? WHERE id = ?`

type UpdateCountParams struct {
	Count     int64
	UpdatedAt string
	ID        string
}

func (q *Queries) UpdateCount(ctx context.Context, arg UpdateCountParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCount, arg.Count, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteCounter = `DELETE FROM counters WHERE id = ?`

func (q *Queries) DeleteCounter(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCounter, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertHistory = `INSERT INTO history (id, counter_id, person_name, count, week_start, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

type InsertHistoryParams struct {
	ID         string
	CounterID  string
	PersonName string
	Count      int64
	WeekStart  string
	CreatedAt  string
}

func (q *Queries) InsertHistory(ctx context.Context, arg InsertHistoryParams) error {
	_, err := q.db.ExecContext(ctx, insertHistory,
		arg.ID, arg.CounterID, arg.PersonName, arg.Count, arg.WeekStart, arg.CreatedAt)
	return err
}

const historyColumns = `id, counter_id, person_name, count, week_start, created_at, synced_at, sync_attempts`

const listHistory = `SELECT ` + historyColumns + `
FROM history
ORDER BY week_start ASC, created_at ASC`

func (q *Queries) ListHistory(ctx context.Context) ([]History, error) {
	return q.queryHistory(ctx, listHistory)
}

const getPendingSyncHistory = `SELECT ` + historyColumns + `
FROM history
WHERE synced_at IS NULL
ORDER BY sync_attempts ASC, created_at ASC
LIMIT ?`

func (q *Queries) GetPendingSyncHistory(ctx context.Context, limit int64) ([]History, error) {
	return q.queryHistory(ctx, getPendingSyncHistory, limit)
}

const getHistory = `SELECT ` + historyColumns + ` FROM history WHERE id = ?`

func (q *Queries) GetHistory(ctx context.Context, id string) (History, error) {
	row := q.db.QueryRowContext(ctx, getHistory, id)
	var i History
	err := row.Scan(&i.ID, &i.CounterID, &i.PersonName, &i.Count, &i.WeekStart, &i.CreatedAt, &i.SyncedAt, &i.SyncAttempts)
	return i, err
}

const markHistorySynced = `UPDATE history SET synced_at = ? WHERE id = ?`

func (q *Queries) MarkHistorySynced(ctx context.Context, syncedAt, id string) error {
	_, err := q.db.ExecContext(ctx, markHistorySynced, syncedAt, id)
	return err
}

const markHistorySyncError = `UPDATE history SET sync_attempts = sync_attempts + 1 WHERE id = ?`

func (q *Queries) MarkHistorySyncError(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markHistorySyncError, id)
	return err
}

func (q *Queries) queryHistory(ctx context.Context, query string, args ...interface{}) ([]History, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []History
	for rows.Next() {
		var i History
		if err := rows.Scan(&i.ID, &i.CounterID, &i.PersonName, &i.Count, &i.WeekStart, &i.CreatedAt, &i.SyncedAt, &i.SyncAttempts); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
