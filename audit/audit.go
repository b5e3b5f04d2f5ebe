// Package audit provides structured audit logging for session lifecycle
// events: sign-in, sign-out, restore and forced termination.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// Actions recorded by the client.
const (
	ActionLogin      = "login"
	ActionLogout     = "logout"
	ActionRestore    = "restore"
	ActionTerminated = "session_terminated"
	ActionSignUp     = "signup"
	ActionPassword   = "password_reset"
)

// Results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event represents a session audit event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Result    string    `json:"result"`
	Details   string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Handler processes audit events. Implementations should not block.
type Handler func(event Event)

// Logger emits audit events to configured handlers.
type Logger struct {
	handlers []Handler
	queue    chan Event
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// Option configures Logger behavior.
type Option func(*Logger)

// WithWriterHandler adds a handler that writes one JSON event per line to w.
func WithWriterHandler(w io.Writer) Option {
	return func(l *Logger) {
		l.AddHandler(func(e Event) {
			data, _ := json.Marshal(e)
			_, _ = fmt.Fprintf(w, "%s\n", data)
		})
	}
}

// WithSlogHandler adds a handler that forwards events to logger at info level.
func WithSlogHandler(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.AddHandler(func(e Event) {
			attrs := []any{
				"action", e.Action,
				"result", e.Result,
				"timestamp", e.Timestamp,
			}
			if e.RequestID != "" {
				attrs = append(attrs, "request_id", e.RequestID)
			}
			if e.UserID != "" {
				attrs = append(attrs, "user_id", e.UserID)
			}
			if e.Reason != "" {
				attrs = append(attrs, "reason", e.Reason)
			}
			if e.Error != "" {
				attrs = append(attrs, "error", e.Error)
			}
			logger.Info("audit", attrs...)
		})
	}
}

// WithHandler adds a custom event handler.
func WithHandler(h Handler) Option {
	return func(l *Logger) {
		l.AddHandler(h)
	}
}

// New creates a new audit logger with buffered async emission.
// bufferSize: event queue buffer size (default: 1000).
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	logger := &Logger{
		handlers: make([]Handler, 0),
		queue:    make(chan Event, bufferSize),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(logger)
	}

	logger.wg.Add(1)
	go logger.process()

	return logger
}

// AddHandler adds a handler to receive audit events. It must be called
// before the first Log.
func (l *Logger) AddHandler(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Log emits an audit event asynchronously. A nil Logger drops the event.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-l.done:
		return
	default:
	}

	select {
	case l.queue <- event:
	case <-l.done:
		// Logger is shutting down, event is dropped
	}
}

// LogContext is Log with the request ID taken from ctx when the event has none.
func (l *Logger) LogContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = contaconmigo.RequestIDFromContext(ctx)
	}
	l.Log(event)
}

func (l *Logger) process() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.queue:
			l.emit(event)
		case <-l.done:
			// Drain remaining events
			for {
				select {
				case event := <-l.queue:
					l.emit(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) emit(event Event) {
	for _, h := range l.handlers {
		h(event)
	}
}

// Close flushes pending events and stops the logger. It is safe to call
// more than once.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}
