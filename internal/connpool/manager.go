package connpool

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/wavefronthq/loadsynth/internal/logging"
)

// State is the coarse health of a Manager's endpoint.
type State int

const (
	Healthy State = iota
	Reconnecting
)

func (s State) String() string {
	if s == Healthy {
		return "healthy"
	}
	return "reconnecting"
}

// Options configure dialing and backoff for a Manager.
type Options struct {
	DialTimeout      time.Duration
	BufferBytes      int
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	// Credential, if non-empty, is written as an initial handshake line
	// on every freshly dialed Connection, applying the assignment's
	// supplied credential token to a transport with no header concept of
	// its own.
	Credential string
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.BufferBytes <= 0 {
		o.BufferBytes = defaultBufferBytes
	}
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 60 * time.Second
	}
	return o
}

// Manager owns one endpoint's currently-handed-out Connection and the
// first_good_id watermark below which any Connection is considered stale.
// Handout never blocks; invalidation and rebuild are decoupled from it via
// a dedicated reconciler goroutine.
type Manager struct {
	endpoint string
	opts     Options
	log      logging.Logger

	mu                sync.Mutex
	current           *Connection
	firstGoodID       int64
	state             State
	reconnectingSince time.Time
	rebuildCond       *sync.Cond
	rebuildDirty      bool
}

// New builds a Manager for endpoint and synchronously establishes the
// first Connection with id=1, per spec: Build happens at construction, not
// lazily on first Get.
func New(endpoint string, opts Options, log logging.Logger) (*Manager, error) {
	opts = opts.withDefaults()
	m := &Manager{
		endpoint:    endpoint,
		opts:        opts,
		log:         log,
		firstGoodID: 1,
		state:       Healthy,
	}
	m.rebuildCond = sync.NewCond(&m.mu)

	conn, err := m.build(1)
	if err != nil {
		return nil, err
	}
	m.current = conn
	return m, nil
}

func (m *Manager) build(id int64) (*Connection, error) {
	conn, writer, err := dial(m.endpoint, m.opts.DialTimeout, m.opts.BufferBytes)
	if err != nil {
		return nil, err
	}
	if m.opts.Credential != "" {
		if _, err := fmt.Fprintf(writer, "AUTH %s\n", m.opts.Credential); err != nil {
			conn.Close()
			return nil, &BuildError{Endpoint: m.endpoint, Reason: "handshake: " + err.Error()}
		}
		if err := writer.Flush(); err != nil {
			conn.Close()
			return nil, &BuildError{Endpoint: m.endpoint, Reason: "handshake flush: " + err.Error()}
		}
	}
	return &Connection{id: id, conn: conn, writer: writer}, nil
}

// Get returns the currently-handed-out Connection regardless of whether
// its id has fallen behind the watermark. Get never blocks; a caller
// detects staleness only when a write on the returned Connection fails,
// at which point it calls Invalidate.
func (m *Manager) Get() *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State reports the Manager's current health classification.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectingSince reports how long the Manager has continuously been in
// the Reconnecting state, or 0 if it is currently Healthy.
func (m *Manager) ReconnectingSince() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Reconnecting || m.reconnectingSince.IsZero() {
		return 0
	}
	return time.Since(m.reconnectingSince)
}

// Invalidate marks conn unusable if it is still current. It is idempotent:
// calling it twice on the same (or an already-stale) Connection has the
// same effect as calling it once.
func (m *Manager) Invalidate(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.id < m.firstGoodID {
		return
	}
	m.firstGoodID = conn.id + 1
	if m.state != Reconnecting {
		m.reconnectingSince = time.Now()
	}
	m.state = Reconnecting
	m.rebuildDirty = true
	m.rebuildCond.Signal()
}

// Run starts the reconciler loop that rebuilds the connection whenever
// Invalidate advances the watermark. It blocks until ctx is cancelled, so
// callers run it in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.rebuildDirty = true
		m.rebuildCond.Signal()
		m.mu.Unlock()
		close(done)
	}()

	for {
		m.mu.Lock()
		for !m.rebuildDirty {
			m.rebuildCond.Wait()
		}
		m.rebuildDirty = false
		targetID := m.firstGoodID
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}

		m.reconnect(ctx, targetID)
	}
}

// reconnect retries building a Connection with the given id using
// exponential backoff (starting at ReconnectInitial with jitter in
// [0, 1s), doubling up to ReconnectMax) until it succeeds or ctx is
// cancelled.
func (m *Manager) reconnect(ctx context.Context, id int64) {
	backoff := m.opts.ReconnectInitial
	for {
		conn, err := m.build(id)
		if err == nil {
			m.mu.Lock()
			if id >= m.firstGoodID {
				m.current = conn
				m.state = Healthy
				m.reconnectingSince = time.Time{}
				m.mu.Unlock()
				return
			}
			// A newer invalidate arrived while we were dialing; this
			// connection is already stale. Drop it and let the pending
			// rebuildDirty signal drive another attempt.
			m.mu.Unlock()
			conn.close()
			return
		}

		if m.log != nil {
			m.log.Warn("connpool: reconnect to %s failed: %v", m.endpoint, err)
		}

		jitter := time.Duration(rand.Int63n(int64(time.Second)))
		wait := backoff + jitter
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > m.opts.ReconnectMax {
			backoff = m.opts.ReconnectMax
		}
	}
}
