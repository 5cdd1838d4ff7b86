// Package connpool implements the Connection Manager: one long-lived,
// buffered-writer connection per endpoint, replaced under a monotonic-id
// watermark rather than tracked through exception-driven invalidation.
package connpool

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

const defaultBufferBytes = 8192

// Connection is one handed-out byte-stream connection. Its id is
// monotonically increasing within a Manager; a Connection whose id falls
// below the Manager's watermark is stale and must be replaced.
type Connection struct {
	id     int64
	conn   net.Conn
	writer *bufio.Writer
}

// ID returns the connection's monotonic identifier.
func (c *Connection) ID() int64 { return c.id }

// Write sends data through the connection's buffered writer without
// flushing. Callers batch several writes and flush once per batch.
func (c *Connection) Write(data []byte) (int, error) {
	return c.writer.Write(data)
}

// Flush pushes any buffered bytes onto the socket.
func (c *Connection) Flush() error {
	return c.writer.Flush()
}

// SetWriteDeadline bounds the next socket write, per the send-deadline
// policy of max(200ms, inter-batch interval).
func (c *Connection) SetWriteDeadline(d time.Duration) error {
	return c.conn.SetWriteDeadline(time.Now().Add(d))
}

func (c *Connection) close() {
	c.conn.Close()
}

// dial opens a TCP connection to endpoint with the same keepalive tuning
// as a persistent long-lived sender: keepalive on, 30s period, Nagle's
// algorithm disabled so small batches aren't held back waiting to coalesce.
func dial(endpoint string, dialTimeout time.Duration, bufferBytes int) (net.Conn, *bufio.Writer, error) {
	conn, err := net.DialTimeout("tcp", endpoint, dialTimeout)
	if err != nil {
		return nil, nil, &BuildError{Endpoint: endpoint, Reason: err.Error()}
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
		tcpConn.SetNoDelay(true)
	}
	if bufferBytes <= 0 {
		bufferBytes = defaultBufferBytes
	}
	return conn, bufio.NewWriterSize(conn, bufferBytes), nil
}

// BuildError reports a failed connection attempt.
type BuildError struct {
	Endpoint string
	Reason   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("connpool: build %s: %s", e.Endpoint, e.Reason)
}
