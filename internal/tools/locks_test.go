package tools

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPathLocker_BasicLockUnlock(t *testing.T) {
	l := NewPathLocker()

	l.Lock("notes.txt")
	l.Unlock("notes.txt")

	l.Lock("notes.txt")
	l.Unlock("notes.txt")
}

// TestPathLocker_SamePathBlocks verifies that locking the same path serialises writers.
func TestPathLocker_SamePathBlocks(t *testing.T) {
	l := NewPathLocker()
	order := make(chan int, 2)

	go func() {
		l.Lock("notes.txt")
		order <- 1
		time.Sleep(50 * time.Millisecond)
		l.Unlock("notes.txt")
	}()

	time.Sleep(10 * time.Millisecond)

	go func() {
		l.Lock("notes.txt")
		order <- 2
		l.Unlock("notes.txt")
	}()

	first, second := <-order, <-order
	if first != 1 || second != 2 {
		t.Errorf("Expected order [1, 2], got [%d, %d]", first, second)
	}
}

// TestPathLocker_DifferentPathsConcurrent verifies that different paths do not block each other.
func TestPathLocker_DifferentPathsConcurrent(t *testing.T) {
	l := NewPathLocker()
	var wg sync.WaitGroup
	var held atomic.Int32
	var overlapped atomic.Bool

	for _, p := range []string{"a.txt", "b.txt"} {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			l.Lock(path)
			if held.Add(1) == 2 {
				overlapped.Store(true)
			}
			time.Sleep(30 * time.Millisecond)
			held.Add(-1)
			l.Unlock(path)
		}(p)
	}
	wg.Wait()

	if !overlapped.Load() {
		t.Error("Expected both paths to be held concurrently")
	}
}
