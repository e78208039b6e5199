// Package syncer drains the durable event queue and ships agent traffic to
// the backend on its own timers.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"hybrid-workforce/agent/internal/activity"
	"hybrid-workforce/agent/internal/api"
	"hybrid-workforce/agent/internal/session"
	"hybrid-workforce/agent/internal/telemetry"
)

// alertTimeout bounds a detached policy-alert submission.
const alertTimeout = 10 * time.Second

// API is the backend surface the sync engine needs.
type API interface {
	PushActivityBatch(ctx context.Context, events []activity.Event) (int, error)
	Heartbeat(ctx context.Context, deviceID string, cpuPct, memPct float64) error
	UploadScreenshot(ctx context.Context, deviceID string, jpegData []byte, capturedAt time.Time) error
	SendPolicyAlert(ctx context.Context, alert api.PolicyAlert) error
}

// Sessions reads the current session; the engine never mutates it.
type Sessions interface {
	Get() (*session.Session, error)
}

// Queue is the durable batch source the engine drains.
type Queue interface {
	DequeueBatch(limit int) ([]activity.Event, error)
	PutBack(events []activity.Event) error
}

// Options wires an Engine.
type Options struct {
	API            API
	Queue          Queue
	Sessions       Sessions
	Metrics        *telemetry.Metrics // may be nil
	BatchLimit     int                // defaults to 500
	FlushEvery     time.Duration      // defaults to 60s
	HeartbeatEvery time.Duration      // defaults to 5m
}

// Engine flushes queued activity on a fixed interval and carries the
// screenshot, policy-alert, and heartbeat traffic. Activity loss is not
// acceptable, so failed batches go back to the queue front; screenshot and
// alert loss is.
type Engine struct {
	api            API
	queue          Queue
	sessions       Sessions
	metrics        *telemetry.Metrics
	batchLimit     int
	flushEvery     time.Duration
	heartbeatEvery time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an Engine; Start arms its timers.
func New(opts Options) *Engine {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 500
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = time.Minute
	}
	if opts.HeartbeatEvery <= 0 {
		opts.HeartbeatEvery = 5 * time.Minute
	}
	return &Engine{
		api:            opts.API,
		queue:          opts.Queue,
		sessions:       opts.Sessions,
		metrics:        opts.Metrics,
		batchLimit:     opts.BatchLimit,
		flushEvery:     opts.FlushEvery,
		heartbeatEvery: opts.HeartbeatEvery,
	}
}

// Start arms the flush and heartbeat timers. Idempotent while running.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop cancels the timers and waits for the loop to exit. Idempotent. An
// in-flight flush completes or fails on its own; its batch follows normal
// put-back semantics.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	flush := time.NewTicker(e.flushEvery)
	defer flush.Stop()
	heartbeat := time.NewTicker(e.heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flush.C:
			if err := e.FlushActivity(ctx); err != nil {
				log.Printf("syncer: flush: %v", err)
			}
		case <-heartbeat.C:
			e.SendHeartbeat(ctx)
		}
	}
}

// FlushActivity drains one batch. No-op when logged out or the queue is
// empty. The batch is atomic at the transport layer: any transient or auth
// failure puts every dequeued event back at the queue front so the next
// flush re-sends the identical batch. A non-401 4xx means the batch will
// never be accepted; it is dropped with a logged error instead of being
// retried forever.
func (e *Engine) FlushActivity(ctx context.Context) error {
	sess, err := e.sessions.Get()
	if err != nil {
		log.Printf("syncer: load session: %v", err)
		return nil
	}
	if sess == nil {
		return nil
	}

	batch, err := e.queue.DequeueBatch(e.batchLimit)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	accepted, err := e.api.PushActivityBatch(ctx, batch)
	if err != nil {
		e.metrics.AddFlushFailure(ctx)
		if errors.Is(err, api.ErrRejected) {
			log.Printf("syncer: dropping rejected batch of %d events: %v", len(batch), err)
			return nil
		}
		if putErr := e.queue.PutBack(batch); putErr != nil {
			return fmt.Errorf("put back %d events after failed flush: %w", len(batch), putErr)
		}
		return err
	}

	e.metrics.AddFlushedEvents(ctx, len(batch))
	if accepted < len(batch) {
		log.Printf("syncer: backend accepted %d of %d events", accepted, len(batch))
	}
	return nil
}

// UploadScreenshot ships one compressed screenshot. Failures surface to the
// caller and the image is not queued for retry: a stale screenshot is
// useless, unlike activity events.
func (e *Engine) UploadScreenshot(ctx context.Context, jpegData []byte, capturedAt time.Time) error {
	sess, err := e.sessions.Get()
	if err != nil {
		return err
	}
	if sess == nil {
		return api.ErrNotAuthenticated
	}
	return e.api.UploadScreenshot(ctx, sess.DeviceID, jpegData, capturedAt)
}

// SendPolicyAlert submits the alert in a detached goroutine so the sampling
// tick never blocks on it. The caller observes no result; failures are
// logged and the alert is dropped for this cycle.
func (e *Engine) SendPolicyAlert(alert api.PolicyAlert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := e.api.SendPolicyAlert(ctx, alert); err != nil {
			log.Printf("syncer: policy alert: %v", err)
		}
	}()
}

// SendHeartbeat posts device liveness with current cpu/mem utilization,
// best-effort.
func (e *Engine) SendHeartbeat(ctx context.Context) {
	sess, err := e.sessions.Get()
	if err != nil || sess == nil {
		return
	}
	cpuPct, memPct := systemUtilization()
	if err := e.api.Heartbeat(ctx, sess.DeviceID, cpuPct, memPct); err != nil {
		log.Printf("syncer: heartbeat: %v", err)
	}
}
