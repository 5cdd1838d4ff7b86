// Package emitter drains a Batch Buffer through a Connection Manager,
// retrying failed writes a bounded number of times before dropping the
// batch.
package emitter

import (
	"context"
	"time"

	"github.com/wavefronthq/loadsynth/internal/batch"
	"github.com/wavefronthq/loadsynth/internal/connpool"
	"github.com/wavefronthq/loadsynth/internal/logging"
)

const defaultMaxAttempts = 3
const minWriteDeadline = 200 * time.Millisecond

// Counters receives the error observations an Emitter produces. Line and
// byte counts are attributed at the point a family goroutine emits a line,
// not here, since one Emitter serves one endpoint shared by many families
// and only the family goroutine knows which family a line belongs to.
type Counters interface {
	IncHTTPErrors(endpoint string)
}

// pendingBatch is a batch that failed to write and is queued for retry
// ahead of anything still sitting in the Buffer, standing in for "the
// batch head re-enqueued at the front of the buffer."
type pendingBatch struct {
	lines    []string
	attempts int
}

// Options configure retry and flush cadence.
type Options struct {
	MaxAttempts   int
	FlushInterval time.Duration
	BatchInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	return o
}

// Emitter drains one endpoint's Buffer through its Manager.
type Emitter struct {
	endpoint string
	manager  *connpool.Manager
	buffer   *batch.Buffer
	counters Counters
	log      logging.Logger
	opts     Options

	pending   *pendingBatch
	triggerCh chan struct{}
	flushCh   chan chan struct{}
}

// New builds an Emitter for one endpoint's Buffer and Manager.
func New(endpoint string, manager *connpool.Manager, buffer *batch.Buffer, counters Counters, log logging.Logger, opts Options) *Emitter {
	return &Emitter{
		endpoint:  endpoint,
		manager:   manager,
		buffer:    buffer,
		counters:  counters,
		log:       log,
		opts:      opts.withDefaults(),
		triggerCh: make(chan struct{}, 1),
		flushCh:   make(chan chan struct{}),
	}
}

// TriggerFlush requests an out-of-cadence flush, used when Add reports the
// buffer full so the drain doesn't wait for the next timer tick. It does
// not wait for the flush to complete; see FlushSync for that.
func (e *Emitter) TriggerFlush() {
	select {
	case e.triggerCh <- struct{}{}:
	default:
	}
}

// FlushSync requests an out-of-cadence flush and blocks, up to timeout,
// until Run's goroutine has actually drained the Buffer, giving a BufferFull
// caller a bounded wait before its retry rather than racing a flush that
// hasn't happened yet. It returns false if the request could not be
// delivered or acknowledged within timeout, in which case the caller should
// treat the retry as a second refusal rather than block indefinitely.
func (e *Emitter) FlushSync(timeout time.Duration) bool {
	done := make(chan struct{})
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case e.flushCh <- done:
	case <-deadline.C:
		return false
	}

	select {
	case <-done:
		return true
	case <-deadline.C:
		return false
	}
}

// Run drains the buffer on FlushInterval, on TriggerFlush, or on FlushSync
// until ctx is cancelled, performing one final flush before returning.
func (e *Emitter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.FlushOnce()
			return
		case <-ticker.C:
			e.FlushOnce()
		case <-e.triggerCh:
			e.FlushOnce()
		case done := <-e.flushCh:
			e.FlushOnce()
			close(done)
		}
	}
}

// FlushOnce drains one batch (the pending retry, if any, otherwise the
// Buffer) and attempts to write it. When there is nothing to send it still
// flushes the current connection's buffered writer so a partial write from
// an earlier successful batch reaches the socket.
func (e *Emitter) FlushOnce() {
	lines := e.pending
	if lines == nil {
		drained := e.buffer.Flush()
		if drained == nil {
			if conn := e.manager.Get(); conn != nil {
				conn.Flush()
			}
			return
		}
		lines = &pendingBatch{lines: drained}
	}

	conn := e.manager.Get()
	if conn == nil {
		e.requeueOrDrop(lines)
		return
	}

	deadline := e.opts.BatchInterval
	if deadline < minWriteDeadline {
		deadline = minWriteDeadline
	}
	conn.SetWriteDeadline(deadline)

	_, err := writeLines(conn, lines.lines)
	if err != nil {
		e.manager.Invalidate(conn)
		if e.counters != nil {
			e.counters.IncHTTPErrors(e.endpoint)
		}
		lines.attempts++
		e.requeueOrDrop(lines)
		return
	}

	if err := conn.Flush(); err != nil {
		e.manager.Invalidate(conn)
		if e.counters != nil {
			e.counters.IncHTTPErrors(e.endpoint)
		}
		lines.attempts++
		e.requeueOrDrop(lines)
		return
	}

	e.pending = nil
}

func (e *Emitter) requeueOrDrop(b *pendingBatch) {
	if b.attempts >= e.opts.MaxAttempts {
		if e.log != nil {
			e.log.Warn("emitter %s: dropping batch of %d lines after %d attempts", e.endpoint, len(b.lines), b.attempts)
		}
		e.pending = nil
		return
	}
	e.pending = b
}

// writeLines writes each line terminated by a newline through conn's
// buffered writer, returning the exact number of bytes written.
func writeLines(conn *connpool.Connection, lines []string) (int, error) {
	total := 0
	for _, line := range lines {
		n, err := conn.Write([]byte(line))
		total += n
		if err != nil {
			return total, err
		}
		n, err = conn.Write([]byte("\n"))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
