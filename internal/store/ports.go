package store

import (
	"context"
	"time"

	"compteur/internal/core"
)

// Ports for outbound adapters.
type (
	CounterReader interface {
		// ListCounters returns every counter ordered by creation time, oldest first.
		ListCounters(ctx context.Context) ([]core.Counter, error)
	}

	CounterWriter interface {
		// CreateCounter inserts a counter with count 0 and returns the stored row.
		CreateCounter(ctx context.Context, name string, at time.Time) (core.Counter, error)
		// UpdateCount overwrites the count and update timestamp of a counter.
		UpdateCount(ctx context.Context, id string, count int64, at time.Time) error
		DeleteCounter(ctx context.Context, id string) error
	}

	HistoryWriter interface {
		AppendHistory(ctx context.Context, rec core.HistoryRecord) (core.HistoryRecord, error)
	}

	// HistoryReader returns the full history log ordered by week start ascending.
	HistoryReader interface {
		ListHistory(ctx context.Context) ([]core.HistoryRecord, error)
	}

	// AtomicIncrementer is implemented by backends that can update a counter
	// and append its history row in a single transaction.
	AtomicIncrementer interface {
		IncrementWithHistory(ctx context.Context, id string, count int64, at time.Time, rec core.HistoryRecord) (core.HistoryRecord, error)
	}

	// Pinger is an optional readiness probe.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Backend is everything the counter service needs from a store.
	Backend interface {
		CounterReader
		CounterWriter
		HistoryWriter
		HistoryReader
	}
)
