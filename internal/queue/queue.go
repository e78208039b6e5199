// Package queue is the durable on-disk queue of not-yet-acknowledged activity events.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"hybrid-workforce/agent/internal/activity"
)

// Bounds on acquiring the advisory file lock. A second agent process that
// wedges while holding the lock must surface ErrStore instead of stalling
// every sampler tick.
const (
	lockWait  = 5 * time.Second
	lockRetry = 100 * time.Millisecond
)

// ErrStore wraps local I/O failures. Callers keep sampling in a degraded,
// non-durable mode rather than crashing the agent.
var ErrStore = errors.New("queue: store failure")

// Queue persists events as a single JSON record. Every operation is a
// serialized read-modify-write: an in-process mutex orders the sampler and
// flush timers, and an advisory file lock guards against a second agent
// process on the same data dir. Writes go through a temp file and rename so
// a crash mid-write never corrupts the queue.
type Queue struct {
	path     string
	lock     *flock.Flock
	lockWait time.Duration
	mu       sync.Mutex
}

// New returns a queue backed by the JSON file at path. The file and its
// parent directory are created on first use.
func New(path string) *Queue {
	return &Queue{path: path, lock: flock.New(path + ".lock"), lockWait: lockWait}
}

type record struct {
	Events []activity.Event `json:"events"`
}

// Enqueue appends the event to the end of the persisted sequence.
func (q *Queue) Enqueue(ev activity.Event) error {
	return q.update(func(r *record) {
		r.Events = append(r.Events, ev)
	})
}

// DequeueBatch removes and returns up to limit events from the front of the
// queue; the remainder stays queued. The removal is optimistic: a shipment
// failure must be followed by PutBack.
func (q *Queue) DequeueBatch(limit int) ([]activity.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	var batch []activity.Event
	err := q.update(func(r *record) {
		n := min(limit, len(r.Events))
		batch = r.Events[:n:n]
		r.Events = r.Events[n:]
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// PutBack re-inserts events at the front of the queue, ahead of anything
// enqueued since, so eventual delivery stays in chronological order.
func (q *Queue) PutBack(events []activity.Event) error {
	if len(events) == 0 {
		return nil
	}
	return q.update(func(r *record) {
		r.Events = append(append([]activity.Event{}, events...), r.Events...)
	})
}

// Len reports the number of queued events.
func (q *Queue) Len() (int, error) {
	n := 0
	err := q.update(func(r *record) {
		n = len(r.Events)
	})
	return n, err
}

// update runs fn on the decoded queue record under both locks and writes the
// result back atomically.
func (q *Queue) update(fn func(*record)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(q.path), 0o700); err != nil {
		return fmt.Errorf("%w: create dir: %v", ErrStore, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.lockWait)
	defer cancel()
	locked, err := q.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("%w: lock: %v", ErrStore, err)
	}
	if !locked {
		return fmt.Errorf("%w: lock held by another process", ErrStore)
	}
	defer q.lock.Unlock()

	r, err := q.read()
	if err != nil {
		return err
	}
	fn(r)
	return q.write(r)
}

func (q *Queue) read() (*record, error) {
	raw, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return &record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStore, q.path, err)
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStore, q.path, err)
	}
	return &r, nil
}

func (q *Queue) write(r *record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStore, err)
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStore, tmp, err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrStore, q.path, err)
	}
	return nil
}
