package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"hybrid-workforce/agent/internal/activity"
)

func event(i int) activity.Event {
	return activity.Event{
		Timestamp:       time.Date(2026, 8, 1, 9, 0, i, 0, time.UTC),
		AppName:         fmt.Sprintf("app-%d", i),
		ActivityType:    activity.TypeActive,
		DurationSeconds: 10,
		DeviceID:        "dev-1",
	}
}

func newQueue(t *testing.T) *Queue {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "queue.json"))
}

func TestEnqueueDequeuePreservesOrder(t *testing.T) {
	q := newQueue(t)
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(event(i)); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	batch, err := q.DequeueBatch(3)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("batch len = %d, want 3", len(batch))
	}
	for i, ev := range batch {
		if ev.AppName != fmt.Sprintf("app-%d", i) {
			t.Errorf("batch[%d].AppName = %q", i, ev.AppName)
		}
	}

	n, err := q.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestPutBackRestoresFront(t *testing.T) {
	q := newQueue(t)
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(event(i)); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := q.DequeueBatch(2)
	if err != nil {
		t.Fatal(err)
	}

	// Sampling continues while the batch is in flight.
	if err := q.Enqueue(event(3)); err != nil {
		t.Fatal(err)
	}

	if err := q.PutBack(batch); err != nil {
		t.Fatalf("PutBack: %v", err)
	}

	again, err := q.DequeueBatch(len(batch))
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(batch) {
		t.Fatalf("re-dequeued %d events, want %d", len(again), len(batch))
	}
	for i := range batch {
		if again[i].AppName != batch[i].AppName {
			t.Errorf("again[%d].AppName = %q, want %q", i, again[i].AppName, batch[i].AppName)
		}
	}

	rest, err := q.DequeueBatch(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 || rest[0].AppName != "app-2" || rest[1].AppName != "app-3" {
		t.Errorf("remaining queue out of order: %+v", rest)
	}
}

func TestEventConservation(t *testing.T) {
	q := newQueue(t)
	const total = 20
	for i := 0; i < total; i++ {
		if err := q.Enqueue(event(i)); err != nil {
			t.Fatal(err)
		}
	}

	var inFlight []activity.Event
	for i := 0; i < 4; i++ {
		batch, err := q.DequeueBatch(3)
		if err != nil {
			t.Fatal(err)
		}
		inFlight = append(inFlight, batch...)
	}
	if err := q.PutBack(inFlight); err != nil {
		t.Fatal(err)
	}

	n, err := q.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != total {
		t.Errorf("events not conserved: Len = %d, want %d", n, total)
	}
}

func TestDequeueEmptyQueue(t *testing.T) {
	q := newQueue(t)
	batch, err := q.DequeueBatch(100)
	if err != nil {
		t.Fatalf("DequeueBatch on empty queue: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("batch = %v, want empty", batch)
	}
}

func TestCorruptFileSurfacesErrStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	q := New(path)
	if err := q.Enqueue(event(0)); !errors.Is(err, ErrStore) {
		t.Fatalf("Enqueue on corrupt file: err = %v, want ErrStore", err)
	}
}

func TestHeldFileLockSurfacesErrStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	q := New(path)
	q.lockWait = 200 * time.Millisecond

	// Simulate a wedged second agent process holding the advisory lock.
	other := flock.New(path + ".lock")
	if err := other.Lock(); err != nil {
		t.Fatalf("acquire competing lock: %v", err)
	}

	if err := q.Enqueue(event(0)); !errors.Is(err, ErrStore) {
		t.Fatalf("Enqueue under held lock: err = %v, want ErrStore", err)
	}

	if err := other.Unlock(); err != nil {
		t.Fatalf("release competing lock: %v", err)
	}
	if err := q.Enqueue(event(0)); err != nil {
		t.Fatalf("Enqueue after release: %v", err)
	}
}

func TestConcurrentEnqueueAndFlush(t *testing.T) {
	q := newQueue(t)
	const writers = 4
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := q.Enqueue(event(w*perWriter + i)); err != nil {
					t.Errorf("Enqueue: %v", err)
					return
				}
			}
		}(w)
	}

	drained := 0
	var mu sync.Mutex
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			batch, err := q.DequeueBatch(7)
			if err != nil {
				t.Errorf("DequeueBatch: %v", err)
				return
			}
			mu.Lock()
			drained += len(batch)
			mu.Unlock()
		}
	}()
	wg.Wait()

	n, err := q.Len()
	if err != nil {
		t.Fatal(err)
	}
	if drained+n != writers*perWriter {
		t.Errorf("lost events: drained %d + queued %d != %d", drained, n, writers*perWriter)
	}
}
