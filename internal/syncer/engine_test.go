package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hybrid-workforce/agent/internal/activity"
	"hybrid-workforce/agent/internal/api"
	"hybrid-workforce/agent/internal/session"
)

type fakeQueue struct {
	mu      sync.Mutex
	events  []activity.Event
	deqErr  error
	dequeue int
}

func (q *fakeQueue) DequeueBatch(limit int) ([]activity.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dequeue++
	if q.deqErr != nil {
		return nil, q.deqErr
	}
	n := limit
	if n > len(q.events) {
		n = len(q.events)
	}
	batch := q.events[:n:n]
	q.events = q.events[n:]
	return batch, nil
}

func (q *fakeQueue) PutBack(events []activity.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(append([]activity.Event{}, events...), q.events...)
	return nil
}

type fakeSessions struct {
	sess *session.Session
}

func (s *fakeSessions) Get() (*session.Session, error) { return s.sess, nil }

type fakeAPI struct {
	mu        sync.Mutex
	pushed    [][]activity.Event
	pushErr   error
	accepted  int
	alerts    []api.PolicyAlert
	alertDone chan struct{}
	beats     int
	shots     int
}

func (f *fakeAPI) PushActivityBatch(ctx context.Context, events []activity.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return 0, f.pushErr
	}
	f.pushed = append(f.pushed, events)
	if f.accepted == 0 {
		return len(events), nil
	}
	return f.accepted, nil
}

func (f *fakeAPI) Heartbeat(ctx context.Context, deviceID string, cpuPct, memPct float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return nil
}

func (f *fakeAPI) UploadScreenshot(ctx context.Context, deviceID string, jpegData []byte, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shots++
	return nil
}

func (f *fakeAPI) SendPolicyAlert(ctx context.Context, alert api.PolicyAlert) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, alert)
	f.mu.Unlock()
	if f.alertDone != nil {
		close(f.alertDone)
	}
	return nil
}

func loggedIn() *fakeSessions {
	return &fakeSessions{sess: &session.Session{
		AccessToken: "at",
		DeviceID:    "dev-1",
	}}
}

func events(n int) []activity.Event {
	out := make([]activity.Event, n)
	for i := range out {
		out[i] = activity.Event{AppName: "code", ActivityType: activity.TypeActive, DurationSeconds: 10}
	}
	return out
}

func TestFlushSkipsWhenLoggedOut(t *testing.T) {
	q := &fakeQueue{events: events(3)}
	backend := &fakeAPI{}
	e := New(Options{API: backend, Queue: q, Sessions: &fakeSessions{}})

	if err := e.FlushActivity(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if q.dequeue != 0 {
		t.Fatal("queue touched while logged out")
	}
	if len(backend.pushed) != 0 {
		t.Fatal("batch pushed while logged out")
	}
}

func TestFlushPushesAndDrains(t *testing.T) {
	q := &fakeQueue{events: events(3)}
	backend := &fakeAPI{}
	e := New(Options{API: backend, Queue: q, Sessions: loggedIn()})

	if err := e.FlushActivity(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(backend.pushed) != 1 || len(backend.pushed[0]) != 3 {
		t.Fatalf("pushed = %v, want one batch of 3", backend.pushed)
	}
	if len(q.events) != 0 {
		t.Fatalf("queue holds %d events after flush", len(q.events))
	}
}

func TestFlushRespectsBatchLimit(t *testing.T) {
	q := &fakeQueue{events: events(7)}
	backend := &fakeAPI{}
	e := New(Options{API: backend, Queue: q, Sessions: loggedIn(), BatchLimit: 5})

	if err := e.FlushActivity(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(backend.pushed[0]) != 5 {
		t.Fatalf("batch size = %d, want 5", len(backend.pushed[0]))
	}
	if len(q.events) != 2 {
		t.Fatalf("queue holds %d events, want 2", len(q.events))
	}
}

func TestFlushTransientFailurePutsBatchBack(t *testing.T) {
	q := &fakeQueue{events: events(3)}
	backend := &fakeAPI{pushErr: api.ErrTransient}
	e := New(Options{API: backend, Queue: q, Sessions: loggedIn()})

	if err := e.FlushActivity(context.Background()); !errors.Is(err, api.ErrTransient) {
		t.Fatalf("flush err = %v, want transient", err)
	}
	if len(q.events) != 3 {
		t.Fatalf("queue holds %d events after failed flush, want 3", len(q.events))
	}

	backend.pushErr = nil
	if err := e.FlushActivity(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if len(backend.pushed) != 1 || len(backend.pushed[0]) != 3 {
		t.Fatalf("retry pushed %v, want the original batch of 3", backend.pushed)
	}
}

func TestFlushAuthFailurePutsBatchBack(t *testing.T) {
	q := &fakeQueue{events: events(2)}
	backend := &fakeAPI{pushErr: api.ErrNotAuthenticated}
	e := New(Options{API: backend, Queue: q, Sessions: loggedIn()})

	if err := e.FlushActivity(context.Background()); !errors.Is(err, api.ErrNotAuthenticated) {
		t.Fatalf("flush err = %v, want auth failure", err)
	}
	if len(q.events) != 2 {
		t.Fatal("events lost on auth failure")
	}
}

func TestFlushRejectedBatchDropped(t *testing.T) {
	q := &fakeQueue{events: events(2)}
	backend := &fakeAPI{pushErr: api.ErrRejected}
	e := New(Options{API: backend, Queue: q, Sessions: loggedIn()})

	if err := e.FlushActivity(context.Background()); err != nil {
		t.Fatalf("flush err = %v, want nil for rejected batch", err)
	}
	if len(q.events) != 0 {
		t.Fatal("rejected batch put back; would retry forever")
	}
}

func TestUploadScreenshotRequiresSession(t *testing.T) {
	e := New(Options{API: &fakeAPI{}, Queue: &fakeQueue{}, Sessions: &fakeSessions{}})
	err := e.UploadScreenshot(context.Background(), []byte{0xFF, 0xD8}, time.Now())
	if !errors.Is(err, api.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want not authenticated", err)
	}
}

func TestUploadScreenshotUsesSessionDevice(t *testing.T) {
	backend := &fakeAPI{}
	e := New(Options{API: backend, Queue: &fakeQueue{}, Sessions: loggedIn()})
	if err := e.UploadScreenshot(context.Background(), []byte{0xFF, 0xD8}, time.Now()); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if backend.shots != 1 {
		t.Fatalf("shots = %d, want 1", backend.shots)
	}
}

func TestSendPolicyAlertDetached(t *testing.T) {
	backend := &fakeAPI{alertDone: make(chan struct{})}
	e := New(Options{API: backend, Queue: &fakeQueue{}, Sessions: loggedIn()})

	e.SendPolicyAlert(api.PolicyAlert{DeviceID: "dev-1", AppName: "slack"})

	select {
	case <-backend.alertDone:
	case <-time.After(2 * time.Second):
		t.Fatal("alert never submitted")
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.alerts) != 1 || backend.alerts[0].AppName != "slack" {
		t.Fatalf("alerts = %v", backend.alerts)
	}
}

func TestHeartbeatSkipsWhenLoggedOut(t *testing.T) {
	backend := &fakeAPI{}
	e := New(Options{API: backend, Queue: &fakeQueue{}, Sessions: &fakeSessions{}})
	e.SendHeartbeat(context.Background())
	if backend.beats != 0 {
		t.Fatal("heartbeat sent while logged out")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	e := New(Options{API: &fakeAPI{}, Queue: &fakeQueue{}, Sessions: &fakeSessions{}, FlushEvery: time.Hour, HeartbeatEvery: time.Hour})
	e.Start()
	e.Start()
	e.Stop()
	e.Stop()
}
