package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"compteur/internal/core"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an operation targets an unknown counter id.
var ErrNotFound = errors.New("counter not found")

type Store struct {
	mu       sync.Mutex
	counters []core.Counter
	history  []core.HistoryRecord
	newID    func() string
}

func New() *Store {
	return &Store{newID: func() string { return uuid.NewString() }}
}

// NewFromFiles seeds one zeroed counter per name listed in base/seed_people.txt.
// A missing file yields an empty store.
func NewFromFiles(base string, now time.Time) *Store {
	s := New()
	for _, name := range readLines(filepath.Join(base, "seed_people.txt")) {
		if _, err := s.CreateCounter(context.Background(), name, now); err != nil {
			continue
		}
	}
	return s
}

func (s *Store) ListCounters(_ context.Context) ([]core.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Counter(nil), s.counters...), nil
}

func (s *Store) CreateCounter(_ context.Context, name string, at time.Time) (core.Counter, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Counter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := core.Counter{ID: s.newID(), Name: name, CreatedAt: at, UpdatedAt: at}
	s.counters = append(s.counters, c)
	return c, nil
}

func (s *Store) UpdateCount(_ context.Context, id string, count int64, at time.Time) error {
	if count < 0 {
		return fmt.Errorf("count cannot be negative: %d", count)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.counters[i].Count = count
	s.counters[i].UpdatedAt = at
	return nil
}

// DeleteCounter removes the counter. History rows are left in place.
func (s *Store) DeleteCounter(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.counters = append(s.counters[:i], s.counters[i+1:]...)
	return nil
}

func (s *Store) AppendHistory(_ context.Context, rec core.HistoryRecord) (core.HistoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.HistoryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(rec), nil
}

// IncrementWithHistory applies both writes under one lock so readers never
// observe one without the other.
func (s *Store) IncrementWithHistory(_ context.Context, id string, count int64, at time.Time, rec core.HistoryRecord) (core.HistoryRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.HistoryRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.counters[i].Count = count
	s.counters[i].UpdatedAt = at
	return s.appendLocked(rec), nil
}

func (s *Store) ListHistory(_ context.Context) ([]core.HistoryRecord, error) {
	s.mu.Lock()
	out := append([]core.HistoryRecord(nil), s.history...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WeekStart.Key() < out[j].WeekStart.Key()
	})
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) appendLocked(rec core.HistoryRecord) core.HistoryRecord {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	s.history = append(s.history, rec)
	return rec
}

func (s *Store) indexOf(id string) int {
	for i, c := range s.counters {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
