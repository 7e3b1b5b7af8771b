package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"compteur/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{15, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other error", errors.New("some other error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	t.Run("initial state is closed", func(t *testing.T) {
		if client.isCircuitOpen() {
			t.Error("circuit breaker should be closed initially")
		}
	})

	t.Run("record success resets state", func(t *testing.T) {
		atomic.StoreInt64(&client.failureCount, 3)
		atomic.StoreInt32(&client.state, StateOpen)
		client.recordSuccess()
		if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
			t.Error("success should close the circuit and reset failures")
		}
	})

	t.Run("multiple failures open circuit", func(t *testing.T) {
		client.recordSuccess()
		for i := 0; i < maxFailures; i++ {
			client.recordFailure()
		}
		if !client.isCircuitOpen() {
			t.Error("circuit breaker should be open after max failures")
		}
	})

	t.Run("half-open after timeout", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)
		if client.isCircuitOpen() {
			t.Error("circuit should be half-open after timeout")
		}
		if atomic.LoadInt32(&client.state) != StateHalfOpen {
			t.Error("state should be StateHalfOpen")
		}
	})

	t.Run("failure while half-open reopens", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateHalfOpen)
		atomic.StoreInt64(&client.failureCount, 0)
		client.recordFailure()
		if atomic.LoadInt32(&client.state) != StateOpen {
			t.Error("a half-open failure should reopen the circuit")
		}
	})
}

func TestPublishHistoryAppendedGuards(t *testing.T) {
	rec := core.HistoryRecord{ID: "h1", CounterID: "c1", Name: "Alice", Count: 1, WeekStart: core.NewDate(2025, 10, 27)}

	t.Run("fails fast when circuit is open", func(t *testing.T) {
		client := &Client{exchangeName: "x", queueName: "q"}
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishHistoryAppended(context.Background(), rec)
		if !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("expected ErrCircuitOpen, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		client := &Client{exchangeName: "x", queueName: "q"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := client.PublishHistoryAppended(ctx, rec); err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func TestProcessDelivery(t *testing.T) {
	valid := []byte(`{"id":"h1","counter_id":"c1","person_name":"Alice","count":1,"week_start":"2025-10-27"}`)

	t.Run("bad json is dropped", func(t *testing.T) {
		ack := &fakeAck{}
		called := false
		process(context.Background(), []byte(`{nope`), ack, func(context.Context, *HistoryAppendedMessage) error {
			called = true
			return nil
		})
		if called || !ack.nacked || ack.requeued {
			t.Fatalf("expected drop without requeue: %+v called=%v", ack, called)
		}
	})

	t.Run("handler failure requeues", func(t *testing.T) {
		ack := &fakeAck{}
		process(context.Background(), valid, ack, func(context.Context, *HistoryAppendedMessage) error {
			return errors.New("sheets down")
		})
		if !ack.nacked || !ack.requeued {
			t.Fatalf("expected requeue: %+v", ack)
		}
	})

	t.Run("success acks", func(t *testing.T) {
		ack := &fakeAck{}
		var got *HistoryAppendedMessage
		process(context.Background(), valid, ack, func(_ context.Context, m *HistoryAppendedMessage) error {
			got = m
			return nil
		})
		if !ack.acked || got == nil || got.Record().WeekStart.String() != "2025-10-27" {
			t.Fatalf("expected ack with decoded record: %+v %+v", ack, got)
		}
	})
}

func TestHistoryAppendedMessage(t *testing.T) {
	rec := core.HistoryRecord{ID: "h1", CounterID: "c1", Name: "Alice", Count: 1, WeekStart: core.NewDate(2025, 10, 27)}
	b, err := NewHistoryAppendedMessage(rec).ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if !strings.Contains(string(b), `"week_start":"2025-10-27"`) {
		t.Fatalf("week start not encoded as date: %s", b)
	}
	if _, err := HistoryAppendedMessageFromJSON([]byte(`{"counter_id":"c1"}`)); err == nil {
		t.Fatal("message without id should be rejected")
	}
}
