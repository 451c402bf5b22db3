package tokenauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// countingSink records every event it receives, optionally blocking until
// released to simulate a slow consumer.
type countingSink struct {
	mu     sync.Mutex
	events []AuditEvent
	block  chan struct{}
}

func (s *countingSink) Emit(_ context.Context, event AuditEvent) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 32}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: AuditTokenIssued})
	}
	d.Close()

	if got := sink.count(); got != 10 {
		t.Fatalf("delivered %d events, want 10", got)
	}
	if d.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", d.Dropped())
	}
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	sink := &countingSink{block: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 2, DropIfFull: true}, sink)

	// One event is stuck inside the sink, two fill the buffer; everything
	// past that is shed.
	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("dispatcher never dropped under saturation")
		}
		d.Emit(context.Background(), AuditEvent{EventType: AuditTokenIssued})
	}

	close(sink.block)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("dropped counter reset unexpectedly")
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, nil)
	if d != nil {
		t.Fatal("disabled config must produce a nil dispatcher")
	}
	// Emitting on nil is a no-op, not a panic.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)
	d.Close()
	d.Emit(context.Background(), AuditEvent{EventType: AuditTokenRevoked})
	d.Close()

	if got := sink.count(); got != 0 {
		t.Fatalf("events after close = %d, want 0", got)
	}
}

func TestJSONWriterSinkEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventType: AuditReuseDetected,
		UserID:    "u7",
		Error:     "refresh window elapsed",
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: AuditTokenIssued,
		UserID:    "u7",
		Success:   true,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2", len(lines))
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	if first.EventType != AuditReuseDetected || first.UserID != "u7" {
		t.Fatalf("unexpected event decoded: %+v", first)
	}
}

func TestChannelSinkRespectsContext(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(context.Background(), AuditEvent{EventType: AuditTokenIssued})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		sink.Emit(ctx, AuditEvent{EventType: AuditTokenRotated})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked despite cancelled context")
	}
}
