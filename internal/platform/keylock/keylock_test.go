package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	m := New()
	release, err := m.Acquire(context.Background(), "doc1|2025-03-10", time.Second)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	release()

	release, err = m.Acquire(context.Background(), "doc1|2025-03-10", time.Second)
	if err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
	release()

	if m.Len() != 0 {
		t.Errorf("lock map should be empty after release, has %d entries", m.Len())
	}
}

func TestContendedAcquireTimesOut(t *testing.T) {
	m := New()
	release, err := m.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	_, err = m.Acquire(context.Background(), "k", 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	m := New()
	rel1, err := m.Acquire(context.Background(), "doc1|2025-03-10", time.Second)
	if err != nil {
		t.Fatalf("acquire doc1: %v", err)
	}
	defer rel1()

	rel2, err := m.Acquire(context.Background(), "doc2|2025-03-10", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("distinct key should not block: %v", err)
	}
	rel2()
}

func TestContextCancellation(t *testing.T) {
	m := New()
	release, err := m.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = m.Acquire(ctx, "k", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHandoffUnderContention(t *testing.T) {
	m := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxHeld int
		total   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background(), "k", 5*time.Second)
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxHeld {
				maxHeld = holders
			}
			total++
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxHeld != 1 {
		t.Errorf("lock held by %d goroutines at once", maxHeld)
	}
	if total != 20 {
		t.Errorf("only %d of 20 goroutines entered the critical section", total)
	}
	if m.Len() != 0 {
		t.Errorf("lock map should be empty, has %d entries", m.Len())
	}
}
