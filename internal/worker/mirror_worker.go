package worker

import (
	"context"
	"fmt"
	"log/slog"

	"compteur/internal/amqp"
	"compteur/internal/log"
	"compteur/internal/metrics"
	"compteur/internal/store"
)

// SyncTracker records which history rows reached the mirror. The sqlite
// repository implements it; other backends run without one.
type SyncTracker interface {
	IsSynced(ctx context.Context, id string) (bool, error)
	MarkSynced(ctx context.Context, id string) error
}

// MirrorWorker copies announced history rows into the mirror store, usually
// the history tab of a spreadsheet.
type MirrorWorker struct {
	mirror  store.HistoryWriter
	tracker SyncTracker
	metrics *metrics.Metrics
}

func NewMirrorWorker(mirror store.HistoryWriter, tracker SyncTracker, m *metrics.Metrics) *MirrorWorker {
	return &MirrorWorker{
		mirror:  mirror,
		tracker: tracker,
		metrics: m,
	}
}

// HandleHistoryMessage mirrors one history row. Returning an error requeues
// the message.
func (w *MirrorWorker) HandleHistoryMessage(ctx context.Context, msg *amqp.HistoryAppendedMessage) error {
	slog.InfoContext(ctx, "Processing history message",
		"id", msg.ID,
		"counter_id", msg.CounterID,
		"week_start", msg.WeekStart.String())

	if w.tracker != nil {
		synced, err := w.tracker.IsSynced(ctx, msg.ID)
		if err != nil {
			slog.WarnContext(ctx, "Could not read sync state, mirroring anyway", "id", msg.ID, "error", err)
		} else if synced {
			w.metrics.RecordMirrored(metrics.StatusSkipped)
			slog.DebugContext(ctx, "History row already mirrored", "id", msg.ID)
			return nil
		}
	}

	rec := msg.Record()
	if err := rec.Validate(); err != nil {
		// Not retryable: drop it rather than requeue forever.
		w.metrics.RecordMirrored(metrics.StatusSkipped)
		slog.ErrorContext(ctx, "Dropping invalid history message", "id", msg.ID, "error", err)
		return nil
	}

	if _, err := w.mirror.AppendHistory(ctx, rec); err != nil {
		w.metrics.RecordMirrored(metrics.StatusError)
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Mirror append failed", err,
			log.ComponentWorker, log.OpSync, log.NewFields().WithCounter(msg.CounterID, msg.Name, msg.Count))
		return fmt.Errorf("append history to mirror: %w", err)
	}
	w.metrics.RecordMirrored(metrics.StatusOK)

	if w.tracker != nil {
		if err := w.tracker.MarkSynced(ctx, msg.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark as synced", "id", msg.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Successfully mirrored history row", "id", msg.ID)
	return nil
}
