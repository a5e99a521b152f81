package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
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
		{12, 30 * time.Second},
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
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"closed", errors.New("connection closed"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other", errors.New("PRECONDITION_FAILED"), false},
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
	client := &Client{exchangeName: "milk", queueName: "month_saved"}

	t.Run("initial state is closed", func(t *testing.T) {
		if client.isCircuitOpen() {
			t.Error("circuit should be closed initially")
		}
	})

	t.Run("failures below threshold keep it closed", func(t *testing.T) {
		for i := 0; i < maxFailures-1; i++ {
			client.recordFailure()
		}
		if client.isCircuitOpen() {
			t.Error("circuit opened before reaching the failure threshold")
		}
	})

	t.Run("threshold opens circuit", func(t *testing.T) {
		client.recordFailure()
		if !client.isCircuitOpen() {
			t.Error("circuit should be open after max failures")
		}
	})

	t.Run("half-open after timeout", func(t *testing.T) {
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)
		if client.isCircuitOpen() {
			t.Error("circuit should let a trial request through after the timeout")
		}
		if atomic.LoadInt32(&client.state) != StateHalfOpen {
			t.Errorf("state = %d, want half-open", atomic.LoadInt32(&client.state))
		}
	})

	t.Run("failed trial reopens", func(t *testing.T) {
		client.recordFailure()
		if atomic.LoadInt32(&client.state) != StateOpen {
			t.Error("a failure while half-open should reopen the circuit")
		}
	})

	t.Run("success resets", func(t *testing.T) {
		client.recordSuccess()
		if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
			t.Error("success should close the circuit and reset the count")
		}
	})
}

func TestClient_PublishMonthSaved_Guards(t *testing.T) {
	client := &Client{exchangeName: "milk", queueName: "month_saved"}
	msg := NewMonthSavedMessage(2025, 3, 1, 2, "")

	t.Run("fails fast when circuit is open", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishMonthSaved(context.Background(), msg)
		if !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("expected ErrCircuitOpen, got %v", err)
		}
		if !strings.Contains(err.Error(), "2025-03") {
			t.Errorf("error should name the month, got %q", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		client.recordSuccess()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := client.PublishMonthSaved(ctx, msg); err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
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

func TestSettle(t *testing.T) {
	body, err := NewMonthSavedMessage(2024, 2, 0, 29, "s1").ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	t.Run("ack on success", func(t *testing.T) {
		var got *MonthSavedMessage
		ack := &fakeAck{}
		settle(context.Background(), body, ack, func(_ context.Context, m *MonthSavedMessage) error {
			got = m
			return nil
		})
		if !ack.acked || ack.nacked {
			t.Errorf("expected ack, got %+v", ack)
		}
		if got == nil || got.Month != 2 || got.Appended != 29 || got.SessionID != "s1" {
			t.Errorf("handler got %+v", got)
		}
	})

	t.Run("requeue on handler error", func(t *testing.T) {
		ack := &fakeAck{}
		settle(context.Background(), body, ack, func(context.Context, *MonthSavedMessage) error {
			return errors.New("sheets down")
		})
		if !ack.nacked || !ack.requeued {
			t.Errorf("expected nack with requeue, got %+v", ack)
		}
	})

	t.Run("drop undecodable body", func(t *testing.T) {
		ack := &fakeAck{}
		called := false
		settle(context.Background(), []byte("{"), ack, func(context.Context, *MonthSavedMessage) error {
			called = true
			return nil
		})
		if called || !ack.nacked || ack.requeued {
			t.Errorf("expected nack without requeue, got %+v called=%v", ack, called)
		}
	})
}

func TestMonthSavedMessage_JSON(t *testing.T) {
	ts := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	msg := &MonthSavedMessage{Year: 2025, Month: 1, Updated: 3, Appended: 28, SessionID: "abc", Timestamp: ts}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	for _, key := range []string{`"year":2025`, `"month":1`, `"updated":3`, `"appended":28`, `"session_id":"abc"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("encoded message %s lacks %s", data, key)
		}
	}

	parsed, err := MonthSavedMessageFromJSON(data)
	if err != nil {
		t.Fatalf("MonthSavedMessageFromJSON() error = %v", err)
	}
	if !parsed.Timestamp.Equal(ts) || parsed.Updated != 3 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestMonthSavedMessage_InvalidJSON(t *testing.T) {
	if _, err := MonthSavedMessageFromJSON([]byte(`{"year":"soon"}`)); err == nil {
		t.Error("expected an error for a non-numeric year")
	}
}
