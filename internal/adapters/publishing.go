package adapters

import (
	"context"
	"log/slog"
	"time"

	"compteur/internal/core"
	"compteur/internal/store"
)

// HistoryPublisher announces stored history rows to the mirror worker.
type HistoryPublisher interface {
	PublishHistoryAppended(ctx context.Context, rec core.HistoryRecord) error
}

// PublishingBackend adapts a store backend so every history row it stores is
// also published. Publish failures are logged only: the row is already
// persisted and the sync processor picks up anything left unsynced.
type PublishingBackend struct {
	store.Backend
	publisher HistoryPublisher
}

type publishingAtomicBackend struct {
	*PublishingBackend
	atomic store.AtomicIncrementer
}

// WithPublisher wraps inner. When inner supports atomic increments the
// returned backend does too. A nil publisher returns inner unchanged.
func WithPublisher(inner store.Backend, publisher HistoryPublisher) store.Backend {
	if publisher == nil {
		return inner
	}
	p := &PublishingBackend{Backend: inner, publisher: publisher}
	if a, ok := inner.(store.AtomicIncrementer); ok {
		return &publishingAtomicBackend{PublishingBackend: p, atomic: a}
	}
	return p
}

// AppendHistory implements store.HistoryWriter
func (p *PublishingBackend) AppendHistory(ctx context.Context, rec core.HistoryRecord) (core.HistoryRecord, error) {
	saved, err := p.Backend.AppendHistory(ctx, rec)
	if err != nil {
		return saved, err
	}
	p.publish(ctx, saved)
	return saved, nil
}

// Ping forwards to the wrapped backend when it supports readiness checks.
func (p *PublishingBackend) Ping(ctx context.Context) error {
	if pinger, ok := p.Backend.(store.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (p *PublishingBackend) publish(ctx context.Context, rec core.HistoryRecord) {
	if err := p.publisher.PublishHistoryAppended(ctx, rec); err != nil {
		slog.WarnContext(ctx, "Failed to publish history message, leaving it to the sync processor",
			"id", rec.ID, "error", err)
	}
}

// IncrementWithHistory implements store.AtomicIncrementer
func (p *publishingAtomicBackend) IncrementWithHistory(ctx context.Context, id string, count int64, at time.Time, rec core.HistoryRecord) (core.HistoryRecord, error) {
	saved, err := p.atomic.IncrementWithHistory(ctx, id, count, at, rec)
	if err != nil {
		return saved, err
	}
	p.publish(ctx, saved)
	return saved, nil
}
