package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// mockMarker records calls and fails for configured message ids.
type mockMarker struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	seen  chan string
}

func newMockMarker() *mockMarker {
	return &mockMarker{fail: map[string]error{}, seen: make(chan string, 16)}
}

func (m *mockMarker) MarkSeen(_ context.Context, id string) error {
	m.mu.Lock()
	m.calls = append(m.calls, id)
	err := m.fail[id]
	m.mu.Unlock()
	m.seen <- id
	return err
}

func waitCall(t *testing.T, m *mockMarker, want string) {
	t.Helper()
	select {
	case got := <-m.seen:
		if got != want {
			t.Fatalf("MarkSeen(%q), want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for MarkSeen(%q)", want)
	}
}

func TestAckerMarksInOrder(t *testing.T) {
	m := newMockMarker()
	a := NewAcker(m, Options{}, nil)
	a.Start(context.Background())
	defer a.Stop()

	for _, id := range []string{"m1", "m2", "m3"} {
		if !a.Enqueue(id) {
			t.Fatalf("Enqueue(%s) dropped", id)
		}
	}
	for _, id := range []string{"m1", "m2", "m3"} {
		waitCall(t, m, id)
	}
}

func TestAckerSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := newMockMarker()
	m.fail["bad"] = errors.New("connection refused")

	a := NewAcker(m, Options{}, zap.New(core))
	a.Start(context.Background())
	defer a.Stop()

	a.Enqueue("bad")
	a.Enqueue("good")
	waitCall(t, m, "bad")
	waitCall(t, m, "good")

	a.Stop()
	entries := logs.FilterMessage("mark seen failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d failure logs, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["msg_id"]; got != "bad" {
		t.Errorf("logged msg_id = %v, want bad", got)
	}
}

func TestAckerDropsWhenFull(t *testing.T) {
	m := newMockMarker()
	a := NewAcker(m, Options{QueueSize: 1}, nil)

	// Not started: the queue only drains once Start runs.
	if !a.Enqueue("m1") {
		t.Fatal("first Enqueue dropped")
	}
	if a.Enqueue("m2") {
		t.Error("second Enqueue accepted, want drop")
	}

	a.Start(context.Background())
	defer a.Stop()
	waitCall(t, m, "m1")
}

func TestAckerPacesCalls(t *testing.T) {
	m := newMockMarker()
	a := NewAcker(m, Options{RatePerSecond: 20, Burst: 1}, nil)
	a.Start(context.Background())
	defer a.Stop()

	start := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		a.Enqueue(id)
	}
	for _, id := range []string{"a", "b", "c"} {
		waitCall(t, m, id)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 acks at 20/s took %v, want >= ~100ms", elapsed)
	}
}

func TestAckerStopIdempotent(t *testing.T) {
	a := NewAcker(newMockMarker(), Options{}, nil)
	a.Stop()
	a.Start(context.Background())
	a.Start(context.Background())
	a.Stop()
	a.Stop()
}
