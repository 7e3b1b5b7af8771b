package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"compteur/internal/core"
	"compteur/internal/log"
	"compteur/internal/metrics"
	"compteur/internal/store"

	"golang.org/x/sync/errgroup"
)

// CounterService owns the board shown to users and applies every change to
// the store first. The board only moves after the store acknowledged a write.
type CounterService struct {
	store   store.Backend
	atomic  store.AtomicIncrementer
	metrics *metrics.Metrics
	labeler core.WeekLabeler
	now     func() time.Time
	logger  *log.Logger
	events  *log.StructuredLogger

	// mu also serializes writes, so an increment always starts from the
	// last acknowledged count.
	mu    sync.Mutex
	board core.BoardState
}

type Option func(*CounterService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *CounterService) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CounterService) { s.metrics = m }
}

func WithLabeler(l core.WeekLabeler) Option {
	return func(s *CounterService) { s.labeler = l }
}

func WithLogger(l *log.Logger) Option {
	return func(s *CounterService) { s.logger = l }
}

func NewCounterService(backend store.Backend, opts ...Option) *CounterService {
	s := &CounterService{
		store:   backend,
		labeler: core.FrenchLabeler{},
		now:     time.Now,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if a, ok := backend.(store.AtomicIncrementer); ok {
		s.atomic = a
	}
	s.logger = s.logger.WithComponent(log.ComponentCounter)
	s.events = log.NewStructuredLogger(s.logger)
	return s
}

// Board returns the current view state. Readiness reports it.
func (s *CounterService) Board() core.BoardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

// Counters returns a copy of the counters on the board.
func (s *CounterService) Counters() []core.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Counter(nil), s.board.Counters...)
}

// Load replaces the board with the store's listing. On failure the board is
// marked loaded and empty, and the error wraps core.ErrStoreUnavailable.
func (s *CounterService) Load(ctx context.Context) ([]core.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters, err := s.store.ListCounters(ctx)
	if err != nil {
		s.board = core.Reduce(s.board, core.Loaded(nil))
		return nil, s.storeFailure(ctx, log.OpList, "list counters", err)
	}
	s.board = core.Reduce(s.board, core.Loaded(counters))
	s.metrics.RecordOperation(log.OpList, metrics.StatusOK)
	return append([]core.Counter(nil), s.board.Counters...), nil
}

// Add creates a counter at zero. Blank names never reach the store.
func (s *CounterService) Add(ctx context.Context, name string) (core.Counter, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		s.skip(ctx, log.OpCreate, "", err)
		return core.Counter{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.CreateCounter(ctx, name, s.now())
	if err != nil {
		return core.Counter{}, s.storeFailure(ctx, log.OpCreate, "create counter", err)
	}
	s.board = core.Reduce(s.board, core.Added(c))
	s.record(ctx, log.OpCreate, c)
	return c, nil
}

// Increment raises the count by one and appends a history row for the
// current week.
func (s *CounterService) Increment(ctx context.Context, id string) (core.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.board.Find(id)
	if !ok {
		s.skip(ctx, log.OpIncrement, id, core.ErrCounterNotLoaded)
		return core.Counter{}, core.ErrCounterNotLoaded
	}

	now := s.now()
	next := c.Count + 1
	rec := core.NewIncrementRecord(c, now)

	if s.atomic != nil {
		if _, err := s.atomic.IncrementWithHistory(ctx, id, next, now, rec); err != nil {
			return core.Counter{}, s.storeFailure(ctx, log.OpIncrement, "increment counter", err)
		}
	} else {
		if err := s.store.UpdateCount(ctx, id, next, now); err != nil {
			return core.Counter{}, s.storeFailure(ctx, log.OpIncrement, "increment counter", err)
		}
		if _, err := s.store.AppendHistory(ctx, rec); err != nil {
			// The count change stands even when the history row is lost.
			s.metrics.RecordStoreError(log.OpAppend)
			s.logger.WithCounter(c.ID, c.Name).WarnContext(ctx, "Failed to append history row",
				log.FieldWeekStart, rec.WeekStart.String(),
				log.FieldError, err)
		}
	}

	c.Count, c.UpdatedAt = next, now
	s.board = core.Reduce(s.board, core.CountChanged(c))
	s.record(ctx, log.OpIncrement, c)
	return c, nil
}

// Decrement lowers the count by one. A counter at zero is left untouched and
// no history is written.
func (s *CounterService) Decrement(ctx context.Context, id string) (core.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.board.Find(id)
	if !ok {
		s.skip(ctx, log.OpDecrement, id, core.ErrCounterNotLoaded)
		return core.Counter{}, core.ErrCounterNotLoaded
	}
	if c.Count <= 0 {
		s.skip(ctx, log.OpDecrement, id, core.ErrCountAtZero)
		return c, core.ErrCountAtZero
	}

	now := s.now()
	if err := s.store.UpdateCount(ctx, id, c.Count-1, now); err != nil {
		return core.Counter{}, s.storeFailure(ctx, log.OpDecrement, "decrement counter", err)
	}

	c.Count, c.UpdatedAt = c.Count-1, now
	s.board = core.Reduce(s.board, core.CountChanged(c))
	s.record(ctx, log.OpDecrement, c)
	return c, nil
}

// Delete removes a counter. Its history rows are kept.
func (s *CounterService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteCounter(ctx, id); err != nil {
		return s.storeFailure(ctx, log.OpDelete, "delete counter", err)
	}
	c, _ := s.board.Find(id)
	s.board = core.Reduce(s.board, core.Deleted(id))
	s.record(ctx, log.OpDelete, c)
	return nil
}

// Weekly reads the whole history and aggregates it per week.
func (s *CounterService) Weekly(ctx context.Context) (core.WeeklySeries, error) {
	records, err := s.store.ListHistory(ctx)
	if err != nil {
		return core.WeeklySeries{}, s.storeFailure(ctx, log.OpAggregate, "list history", err)
	}
	s.metrics.RecordOperation(log.OpAggregate, metrics.StatusOK)
	return core.Aggregate(records, s.labeler), nil
}

// Snapshot loads counters and history concurrently and refreshes the board.
// The board lock is held across both reads so a mutation cannot land between
// the listing and the board replacement. On failure the board is loaded and
// empty, as with Load.
func (s *CounterService) Snapshot(ctx context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		counters []core.Counter
		records  []core.HistoryRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if counters, err = s.store.ListCounters(gctx); err != nil {
			return fmt.Errorf("list counters: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if records, err = s.store.ListHistory(gctx); err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.board = core.Reduce(s.board, core.Loaded(nil))
		return core.Snapshot{}, s.storeFailure(ctx, log.OpSnapshot, "load snapshot", err)
	}

	s.board = core.Reduce(s.board, core.Loaded(counters))
	s.metrics.RecordOperation(log.OpSnapshot, metrics.StatusOK)
	return core.Snapshot{
		Counters: append([]core.Counter(nil), s.board.Counters...),
		Weekly:   core.Aggregate(records, s.labeler),
	}, nil
}

// Ping reports whether the backing store is reachable.
func (s *CounterService) Ping(ctx context.Context) error {
	if p, ok := s.store.(store.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *CounterService) storeFailure(ctx context.Context, op, what string, err error) error {
	if errors.Is(err, core.ErrEmptyName) || errors.Is(err, core.ErrNameTooLong) {
		return err
	}
	s.metrics.RecordOperation(op, metrics.StatusError)
	s.metrics.RecordStoreError(op)
	s.events.LogError(ctx, "Store operation failed", err, log.ComponentCounter, op, nil)
	return core.StoreError(what, err)
}

func (s *CounterService) skip(ctx context.Context, op, id string, reason error) {
	s.metrics.RecordOperation(op, metrics.StatusSkipped)
	s.events.LogCounterSkipped(ctx, op, id, reason)
}

func (s *CounterService) record(ctx context.Context, op string, c core.Counter) {
	s.metrics.RecordOperation(op, metrics.StatusOK)
	s.events.LogCounterChanged(ctx, op, c.ID, c.Name, c.Count)
}
