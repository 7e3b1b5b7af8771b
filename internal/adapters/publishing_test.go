package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"compteur/internal/core"
	"compteur/internal/store"
	"compteur/internal/store/memory"
)

type recordingPublisher struct {
	published []core.HistoryRecord
	err       error
}

func (r *recordingPublisher) PublishHistoryAppended(_ context.Context, rec core.HistoryRecord) error {
	r.published = append(r.published, rec)
	return r.err
}

// plainBackend hides the memory store's optional capabilities.
type plainBackend struct{ store.Backend }

func TestWithPublisherNilReturnsInner(t *testing.T) {
	inner := memory.New()
	if got := WithPublisher(inner, nil); got != store.Backend(inner) {
		t.Fatalf("expected inner backend back")
	}
}

func TestWithPublisherKeepsAtomicCapability(t *testing.T) {
	pub := &recordingPublisher{}
	wrapped := WithPublisher(memory.New(), pub)
	if _, ok := wrapped.(store.AtomicIncrementer); !ok {
		t.Fatalf("atomic capability lost")
	}
	plain := WithPublisher(plainBackend{memory.New()}, pub)
	if _, ok := plain.(store.AtomicIncrementer); ok {
		t.Fatalf("atomic capability invented")
	}
}

func TestPublishesAfterStoring(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	inner := memory.New()
	wrapped := WithPublisher(inner, pub)

	c, _ := wrapped.CreateCounter(ctx, "Alice", time.Now())
	now := time.Date(2025, 10, 30, 12, 0, 0, 0, time.UTC)
	rec := core.NewIncrementRecord(c, now)

	if _, err := wrapped.(store.AtomicIncrementer).IncrementWithHistory(ctx, c.ID, 1, now, rec); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := wrapped.AppendHistory(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(pub.published) != 2 || pub.published[0].ID == "" {
		t.Fatalf("expected two published rows with ids, got %+v", pub.published)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	wrapped := WithPublisher(memory.New(), pub)
	rec := core.HistoryRecord{CounterID: "c1", Name: "A", Count: 1, WeekStart: core.NewDate(2025, 10, 27)}
	if _, err := wrapped.AppendHistory(ctx, rec); err != nil {
		t.Fatalf("write should succeed despite publish failure: %v", err)
	}
}

func TestNothingPublishedWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	wrapped := WithPublisher(memory.New(), pub)
	rec := core.HistoryRecord{CounterID: "ghost", Name: "G", Count: 1, WeekStart: core.NewDate(2025, 10, 27)}
	if _, err := wrapped.(store.AtomicIncrementer).IncrementWithHistory(ctx, "ghost", 1, time.Now(), rec); err == nil {
		t.Fatalf("expected error for unknown counter")
	}
	if len(pub.published) != 0 {
		t.Fatalf("nothing should be published: %+v", pub.published)
	}
}
