package batch

import (
	"strings"
	"sync"
	"testing"
)

func TestAddRefusesPastMaxLines(t *testing.T) {
	b := New(2, 1024)
	if !b.Add("a") || !b.Add("b") {
		t.Fatal("Add() expected first two adds to succeed")
	}
	if b.Add("c") {
		t.Fatal("Add() expected third add to be refused past maxLines")
	}
}

func TestAddRefusesPastMaxBytes(t *testing.T) {
	b := New(100, 5)
	if !b.Add("ab") {
		t.Fatal("Add() expected first add (2 bytes + newline) to succeed")
	}
	if b.Add("abcd") {
		t.Fatal("Add() expected add to be refused once total would exceed maxBytes")
	}
}

func TestFlushClearsAndReturnsCopy(t *testing.T) {
	b := New(10, 1024)
	b.Add("a")
	b.Add("b")
	lines := b.Flush()
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("Flush() = %v, want [a b]", lines)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() after Flush() = %d, want 0", b.Len())
	}
	if !b.Add(strings.Repeat("x", 500)) {
		t.Fatal("Add() expected buffer to accept new lines after Flush()")
	}
}

func TestFlushEmptyReturnsNil(t *testing.T) {
	b := New(10, 1024)
	if lines := b.Flush(); lines != nil {
		t.Fatalf("Flush() = %v, want nil for empty buffer", lines)
	}
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	b := New(50, 100*1024*1024)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var drainedTotal int
	const producers = 20
	const perProducer = 200

	stop := make(chan struct{})
	var consumerWg sync.WaitGroup
	consumerWg.Add(1)
	go func() {
		defer consumerWg.Done()
		for {
			select {
			case <-stop:
				mu.Lock()
				drainedTotal += len(b.Flush())
				mu.Unlock()
				return
			default:
				mu.Lock()
				drainedTotal += len(b.Flush())
				mu.Unlock()
			}
		}
	}()

	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				for !b.Add("line") {
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	consumerWg.Wait()

	if drainedTotal != producers*perProducer {
		t.Fatalf("drained %d lines, want %d", drainedTotal, producers*perProducer)
	}
}
