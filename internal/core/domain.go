package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the wire and storage format for date-only values.
const DateLayout = "2006-01-02"

// MaxNameLength bounds a counter display name, in runes.
const MaxNameLength = 100

type (
	// Date is a calendar date without a time-of-day component.
	Date struct {
		time.Time
	}

	// Counter is a named, persistent, non-negative tally.
	Counter struct {
		ID        string    `json:"id"`
		Name      string    `json:"person_name"`
		Count     int64     `json:"count"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// HistoryRecord is one increment event, bucketed by the Monday of its week.
	// Name is copied from the counter at write time.
	HistoryRecord struct {
		ID        string    `json:"id"`
		CounterID string    `json:"counter_id"`
		Name      string    `json:"person_name"`
		Count     int64     `json:"count"`
		WeekStart Date      `json:"week_start"`
		CreatedAt time.Time `json:"created_at"`
	}
)

var (
	// ErrStoreUnavailable wraps any failure reported by the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrEmptyName        = errors.New("empty name")
	ErrNameTooLong      = fmt.Errorf("name too long (max %d characters)", MaxNameLength)
	ErrCountAtZero      = errors.New("count is already zero")
	ErrCounterNotLoaded = errors.New("counter not loaded")
	ErrInvalidDate      = errors.New("invalid date")
)

// StoreError marks err as a store failure while keeping the cause inspectable.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsValidationSkip reports whether err is one of the guard errors that never
// reach the store.
func IsValidationSkip(err error) bool {
	return errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrNameTooLong) ||
		errors.Is(err, ErrCountAtZero)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// ParseDate parses a YYYY-MM-DD string. Longer ISO timestamps are accepted and
// truncated to their date part.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// Equal compares calendar dates, ignoring location.
func (d Date) Equal(o Date) bool {
	y1, m1, d1 := d.Date()
	y2, m2, d2 := o.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Key is a location-independent map key for the date.
func (d Date) Key() string {
	return d.String()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ValidateName trims name and checks it can label a counter.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

func (c Counter) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("counter id cannot be empty")
	}
	if _, err := ValidateName(c.Name); err != nil {
		return err
	}
	if c.Count < 0 {
		return errors.New("count cannot be negative")
	}
	return nil
}

func (h HistoryRecord) Validate() error {
	if strings.TrimSpace(h.CounterID) == "" {
		return errors.New("history counter id cannot be empty")
	}
	if strings.TrimSpace(h.Name) == "" {
		return ErrEmptyName
	}
	if h.Count <= 0 {
		return errors.New("history count must be positive")
	}
	if err := h.WeekStart.Validate(); err != nil {
		return fmt.Errorf("invalid week start: %w", err)
	}
	if h.WeekStart.Weekday() != time.Monday {
		return fmt.Errorf("week start %s is not a Monday", h.WeekStart)
	}
	return nil
}

// NewIncrementRecord builds the history row written for one increment of c at now.
func NewIncrementRecord(c Counter, now time.Time) HistoryRecord {
	return HistoryRecord{
		CounterID: c.ID,
		Name:      c.Name,
		Count:     1,
		WeekStart: WeekStart(now),
		CreatedAt: now,
	}
}
