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
)

type countingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *countingSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *countingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	// Nil dispatcher must be safe.
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected zero drops on nil dispatcher")
	}
}

func TestDispatcherDeliversAllOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success", Username: "alice", Success: true})
	}
	d.Close()

	if got := sink.len(); got != 50 {
		t.Fatalf("expected 50 events delivered, got %d", got)
	}

	// Emit after close is dropped silently.
	d.Emit(context.Background(), Event{EventType: "late"})
	if got := sink.len(); got != 50 {
		t.Fatalf("expected no delivery after close, got %d", got)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, Event) { <-s.release }

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherBlockingHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Emit(ctx, Event{EventType: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking emit did not honour context cancellation")
	}

	close(sink.release)
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{EventType: "password_reset_request", Username: "alice", Success: true})

	line := strings.TrimSpace(buf.String())
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("invalid JSON line %q: %v", line, err)
	}
	if got.EventType != "password_reset_request" || got.Username != "alice" || !got.Success {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_failure", Username: "alice", Error: "invalid_credentials"})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid log record: %v", err)
	}
	if rec["level"] != "WARN" {
		t.Fatalf("expected WARN for failed event, got %v", rec["level"])
	}
	if rec["event_type"] != "login_failure" || rec["component"] != "audit" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestDispatcherRedactsSensitiveMetadata(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	meta := map[string]string{"reset_token": "abc", "Email": "a@b.c", "mode": "session"}
	d.Emit(context.Background(), Event{EventType: "password_reset_request", Metadata: meta})
	d.Close()

	if sink.len() != 1 {
		t.Fatalf("expected one event, got %d", sink.len())
	}
	got := sink.events[0].Metadata
	if got["reset_token"] != "[redacted]" || got["Email"] != "[redacted]" {
		t.Fatalf("sensitive values leaked: %v", got)
	}
	if got["mode"] != "session" {
		t.Fatalf("unexpected redaction of %v", got)
	}
	if meta["reset_token"] != "abc" {
		t.Fatal("caller metadata must not be modified")
	}
}
