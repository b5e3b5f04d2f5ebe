package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestEventEmission(t *testing.T) {
	c := &collector{}
	logger := New(10, WithHandler(c.handle))

	logger.Log(Event{
		Action: ActionLogin,
		Result: ResultSuccess,
		UserID: "user123",
		Email:  "ana@example.com",
	})
	// Close drains the queue.
	logger.Close()

	events := c.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].UserID != "user123" {
		t.Errorf("UserID = %q, want %q", events[0].UserID, "user123")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestMultipleHandlers(t *testing.T) {
	c1, c2 := &collector{}, &collector{}
	logger := New(10, WithHandler(c1.handle), WithHandler(c2.handle))

	logger.Log(Event{Action: ActionLogout, Result: ResultSuccess})
	logger.Close()

	if got := len(c1.snapshot()); got != 1 {
		t.Errorf("handler1: expected 1 event, got %d", got)
	}
	if got := len(c2.snapshot()); got != 1 {
		t.Errorf("handler2: expected 1 event, got %d", got)
	}
}

func TestLogContextRequestID(t *testing.T) {
	c := &collector{}
	logger := New(10, WithHandler(c.handle))

	ctx := contaconmigo.WithRequestID(context.Background(), "req-12345")
	logger.LogContext(ctx, Event{Action: ActionTerminated, Result: ResultSuccess, Reason: "unauthorized"})
	logger.LogContext(ctx, Event{Action: ActionRestore, Result: ResultSuccess, RequestID: "explicit"})
	logger.Close()

	events := c.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].RequestID != "req-12345" {
		t.Errorf("RequestID = %q, want %q", events[0].RequestID, "req-12345")
	}
	if events[1].RequestID != "explicit" {
		t.Errorf("RequestID = %q, want %q", events[1].RequestID, "explicit")
	}
}

func TestQueueBuffer(t *testing.T) {
	var mu sync.Mutex
	var count int

	logger := New(5, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
		time.Sleep(10 * time.Millisecond) // Simulate slow handler
	}))

	for i := 0; i < 5; i++ {
		logger.Log(Event{Action: ActionLogin, Result: ResultSuccess})
	}
	logger.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("expected 5 events processed, got %d", count)
	}
}

func TestWriterHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(10, WithWriterHandler(&buf))

	logger.Log(Event{Action: ActionLogin, Result: ResultFailure, Error: "invalid credentials"})
	logger.Close()

	var got Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if got.Error != "invalid credentials" {
		t.Errorf("Error = %q, want %q", got.Error, "invalid credentials")
	}
	if got.Result != ResultFailure {
		t.Errorf("Result = %q, want %q", got.Result, ResultFailure)
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	sl := slog.New(slog.NewTextHandler(&buf, nil))
	logger := New(10, WithSlogHandler(sl))

	logger.Log(Event{Action: ActionTerminated, Result: ResultSuccess, Reason: "expired", UserID: "u1"})
	logger.Close()

	out := buf.String()
	for _, want := range []string{"msg=audit", "action=session_terminated", "reason=expired", "user_id=u1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLogAfterClose(t *testing.T) {
	c := &collector{}
	logger := New(10, WithHandler(c.handle))
	logger.Close()

	// Dropped, must not block or panic.
	logger.Log(Event{Action: ActionLogin, Result: ResultSuccess})

	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if got := len(c.snapshot()); got != 0 {
		t.Errorf("expected 0 events, got %d", got)
	}
}

func TestNilLogger(t *testing.T) {
	var logger *Logger
	logger.Log(Event{Action: ActionLogin})
	logger.LogContext(context.Background(), Event{Action: ActionLogin})
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
