package connpool

import (
	"context"
	"net"
	"testing"
	"time"
)

// listenOnce accepts exactly one connection per Accept call and otherwise
// keeps the listener open so a Manager can dial it repeatedly across
// invalidate/rebuild cycles.
func listenOnce(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 4096)
				for {
					if _, err := c.Read(buf); err != nil {
						c.Close()
						return
					}
				}
			}(conn)
		}
	}()
	return ln
}

func TestNewBuildsConnectionSynchronouslyWithIDOne(t *testing.T) {
	ln := listenOnce(t)
	defer ln.Close()

	m, err := New(ln.Addr().String(), Options{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := m.Get().ID(); got != 1 {
		t.Fatalf("initial connection id = %d, want 1", got)
	}
	if m.State() != Healthy {
		t.Fatalf("initial state = %v, want Healthy", m.State())
	}
}

func TestGetNeverBlocksAndReturnsCurrentRegardlessOfStaleness(t *testing.T) {
	ln := listenOnce(t)
	defer ln.Close()

	m, err := New(ln.Addr().String(), Options{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stale := m.Get()
	m.Invalidate(stale)

	done := make(chan *Connection, 1)
	go func() { done <- m.Get() }()
	select {
	case got := <-done:
		if got == nil {
			t.Fatal("Get() returned nil")
		}
	case <-time.After(time.Second):
		t.Fatal("Get() blocked")
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	ln := listenOnce(t)
	defer ln.Close()

	m, err := New(ln.Addr().String(), Options{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	conn := m.Get()
	m.Invalidate(conn)
	firstWatermark := m.firstGoodID
	m.Invalidate(conn)
	if m.firstGoodID != firstWatermark {
		t.Fatalf("second Invalidate() moved watermark from %d to %d", firstWatermark, m.firstGoodID)
	}
}

func TestReconcilerRebuildsAboveWatermark(t *testing.T) {
	ln := listenOnce(t)
	defer ln.Close()

	m, err := New(ln.Addr().String(), Options{ReconnectInitial: time.Millisecond, ReconnectMax: 10 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	first := m.Get()
	m.Invalidate(first)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Get().ID() >= m.firstGoodIDSnapshot() && m.State() == Healthy && m.Get().ID() != first.ID() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("reconciler did not rebuild above the watermark in time")
}

func (m *Manager) firstGoodIDSnapshot() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstGoodID
}

func TestCurrentIDNeverFallsBelowWatermark(t *testing.T) {
	ln := listenOnce(t)
	defer ln.Close()

	m, err := New(ln.Addr().String(), Options{ReconnectInitial: time.Millisecond, ReconnectMax: 5 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	for i := 0; i < 5; i++ {
		conn := m.Get()
		m.Invalidate(conn)
		time.Sleep(20 * time.Millisecond)
		if m.Get().ID() < m.firstGoodIDSnapshot() {
			t.Fatalf("iteration %d: current id %d fell below watermark %d", i, m.Get().ID(), m.firstGoodIDSnapshot())
		}
	}
}

func TestBuildErrorReportsEndpoint(t *testing.T) {
	_, err := New("127.0.0.1:0", Options{DialTimeout: 50 * time.Millisecond}, nil)
	if err == nil {
		t.Fatal("expected New() against a closed port to fail")
	}
	be, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("error type = %T, want *BuildError", err)
	}
	if be.Endpoint != "127.0.0.1:0" {
		t.Fatalf("BuildError.Endpoint = %q, want %q", be.Endpoint, "127.0.0.1:0")
	}
}
