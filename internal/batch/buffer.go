// Package batch implements the Batch Buffer: a fixed-capacity line
// accumulator, safe for many producers and one consumer, that refuses
// further adds once either bound would be exceeded.
package batch

import "sync"

// Buffer accumulates encoded lines up to maxLines and maxBytes before a
// consumer drains them with Flush.
type Buffer struct {
	mu        sync.Mutex
	lines     []string
	totalSize int
	maxLines  int
	maxBytes  int
}

// New builds a Buffer bounded by maxLines entries and maxBytes total bytes
// (including one newline per line).
func New(maxLines, maxBytes int) *Buffer {
	return &Buffer{
		lines:    make([]string, 0, maxLines),
		maxLines: maxLines,
		maxBytes: maxBytes,
	}
}

// Add appends line to the buffer, returning false without storing it when
// doing so would exceed either bound. The caller is then expected to force
// a Flush and retry.
func (b *Buffer) Add(line string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) >= b.maxLines || b.totalSize+len(line)+1 > b.maxBytes {
		return false
	}
	b.lines = append(b.lines, line)
	b.totalSize += len(line) + 1
	return true
}

// Flush atomically returns and clears every accumulated line. It returns
// nil, not an empty slice, when the buffer is empty, so a caller can treat
// nil as "nothing to send."
func (b *Buffer) Flush() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == 0 {
		return nil
	}
	result := make([]string, len(b.lines))
	copy(result, b.lines)
	b.lines = b.lines[:0]
	b.totalSize = 0
	return result
}

// Len reports the number of lines currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
