package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"compteur/internal/core"
	"compteur/internal/storage"
	"compteur/internal/store"
)

// HistoryOutbox is the part of the sqlite repository that tracks which
// history rows reached the mirror.
type HistoryOutbox interface {
	GetPendingSyncHistory(ctx context.Context, limit int) ([]storage.PendingSyncHistory, error)
	GetHistory(ctx context.Context, id string) (core.HistoryRecord, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending rows (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of rows to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of failed attempts after which a row is left alone (default: 5)
	MaxRetries int

	// MinAge leaves rows younger than this to the message consumer (default: 0)
	MinAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
		MaxRetries:   5,
	}
}

// SyncProcessor copies history rows that never reached the mirror, for
// instance because the broker was down when they were written.
type SyncProcessor struct {
	outbox HistoryOutbox
	mirror store.HistoryWriter
	config SyncProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(outbox HistoryOutbox, mirror store.HistoryWriter, config SyncProcessorConfig) *SyncProcessor {
	if config.BatchSize < 1 {
		config.BatchSize = DefaultSyncProcessorConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSyncProcessorConfig().PollInterval
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = DefaultSyncProcessorConfig().MaxRetries
	}
	return &SyncProcessor{
		outbox: outbox,
		mirror: mirror,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch mirrors one batch of pending rows and returns how many were synced.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) int {
	items, err := p.outbox.GetPendingSyncHistory(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read pending history", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	synced := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return synced
		}
		if item.Attempts >= int64(p.config.MaxRetries) {
			continue
		}
		if p.config.MinAge > 0 && time.Since(item.CreatedAt) < p.config.MinAge {
			continue
		}
		if err := p.syncItem(ctx, item.ID); err != nil {
			p.handleFailure(ctx, item, err)
			continue
		}
		synced++
	}
	return synced
}

func (p *SyncProcessor) syncItem(ctx context.Context, id string) error {
	rec, err := p.outbox.GetHistory(ctx, id)
	if err != nil {
		return fmt.Errorf("get history %s: %w", id, err)
	}
	if _, err := p.mirror.AppendHistory(ctx, rec); err != nil {
		return fmt.Errorf("append to mirror: %w", err)
	}
	if err := p.outbox.MarkSynced(ctx, id); err != nil {
		// The row is mirrored; a duplicate on the next pass is the worst case.
		slog.WarnContext(ctx, "Failed to mark history as synced", "id", id, "error", err)
	}
	slog.InfoContext(ctx, "Mirrored history row", "id", id, "counter_id", rec.CounterID)
	return nil
}

func (p *SyncProcessor) handleFailure(ctx context.Context, item storage.PendingSyncHistory, processErr error) {
	attempt := item.Attempts + 1
	slog.WarnContext(ctx, "Sync processing failed",
		"id", item.ID,
		"attempt", attempt,
		"error", processErr)

	if err := p.outbox.MarkSyncError(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to record sync attempt", "id", item.ID, "error", err)
	}
	if attempt >= int64(p.config.MaxRetries) {
		slog.ErrorContext(ctx, "History row failed permanently after max retries",
			"id", item.ID,
			"attempts", attempt)
	}
}
