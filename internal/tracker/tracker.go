// Package tracker runs the sampling loop: foreground window, idle
// classification, policy enforcement, and screenshot scheduling.
package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"hybrid-workforce/agent/internal/activity"
	"hybrid-workforce/agent/internal/api"
	"hybrid-workforce/agent/internal/capture"
	"hybrid-workforce/agent/internal/policy/engine"
	"hybrid-workforce/agent/internal/probe"
	"hybrid-workforce/agent/internal/session"
	"hybrid-workforce/agent/internal/telemetry"
)

// idleThresholdSeconds separates active from idle samples. A tick whose
// idle reading reaches the threshold counts as idle.
const idleThresholdSeconds = 60

// Status is the tracker's externally visible state, published on every tick
// and on every screenshot outcome.
type Status struct {
	Tracking          bool
	AppName           string
	IdleSeconds       int
	LastScreenshotAt  time.Time
	LastScreenshotErr string
	QueueDegraded     bool
}

// Queue persists sampled events; the tracker only appends.
type Queue interface {
	Enqueue(ev activity.Event) error
}

// Syncer is the transport the tracker drives alongside its own timers.
type Syncer interface {
	Start()
	Stop()
	SendPolicyAlert(alert api.PolicyAlert)
}

// Sessions reads the current session.
type Sessions interface {
	Get() (*session.Session, error)
}

// Capturer triggers a screenshot cycle; the call blocks for the cycle's
// duration, so the tracker always invokes it on its own goroutine.
type Capturer interface {
	Capture(ctx context.Context)
}

// Options wires a Tracker.
type Options struct {
	Probe           probe.Probe
	Queue           Queue
	Syncer          Syncer
	Sessions        Sessions
	Capturer        Capturer
	Evaluator       engine.Evaluator
	Cooldowns       *engine.Cooldowns
	Metrics         *telemetry.Metrics // may be nil
	SampleEvery     time.Duration      // defaults to 10s
	ScreenshotEvery time.Duration      // defaults to 15m
	Now             func() time.Time   // defaults to time.Now
}

// Tracker samples the desktop on a fixed interval while a session exists.
// Sampling, enforcement, and screenshots all run off the same loop; anything
// slow (uploads, alerts) is pushed onto other goroutines so a tick is never
// delayed.
type Tracker struct {
	probe     probe.Probe
	queue     Queue
	syncer    Syncer
	sessions  Sessions
	capturer  Capturer
	evaluator engine.Evaluator
	cooldowns *engine.Cooldowns
	metrics   *telemetry.Metrics

	sampleEvery     time.Duration
	screenshotEvery time.Duration
	now             func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastTick time.Time
	status   Status

	updates chan Status
}

// New returns a stopped Tracker.
func New(opts Options) *Tracker {
	if opts.SampleEvery <= 0 {
		opts.SampleEvery = 10 * time.Second
	}
	if opts.ScreenshotEvery <= 0 {
		opts.ScreenshotEvery = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		probe:           opts.Probe,
		queue:           opts.Queue,
		syncer:          opts.Syncer,
		sessions:        opts.Sessions,
		capturer:        opts.Capturer,
		evaluator:       opts.Evaluator,
		cooldowns:       opts.Cooldowns,
		metrics:         opts.Metrics,
		sampleEvery:     opts.SampleEvery,
		screenshotEvery: opts.ScreenshotEvery,
		now:             opts.Now,
		updates:         make(chan Status, 16),
	}
}

// Updates exposes the status stream. Slow consumers lose intermediate
// statuses, never ticks.
func (t *Tracker) Updates() <-chan Status {
	return t.updates
}

// Status returns the current status snapshot.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Start begins sampling, takes an immediate screenshot, and starts the sync
// engine. Idempotent while running.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.lastTick = t.now()
	t.status.Tracking = true
	t.mu.Unlock()

	t.syncer.Start()
	// Captures run detached from the loop context so Stop never aborts an
	// in-flight upload.
	go t.capturer.Capture(context.Background())

	t.wg.Add(1)
	go t.run(ctx)
	t.publish()
}

// Stop halts sampling and the sync engine. Idempotent. Queued events stay on
// disk for the next session.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.status.Tracking = false
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	t.wg.Wait()
	t.syncer.Stop()
	t.publish()
}

func (t *Tracker) run(ctx context.Context) {
	defer t.wg.Done()
	sample := time.NewTicker(t.sampleEvery)
	defer sample.Stop()
	screenshot := time.NewTicker(t.screenshotEvery)
	defer screenshot.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sample.C:
			t.collect(ctx)
		case <-screenshot.C:
			go t.capturer.Capture(context.Background())
		}
	}
}

// collect samples one tick: read the probe, classify, persist, enforce.
func (t *Tracker) collect(ctx context.Context) {
	sess, err := t.sessions.Get()
	if err != nil {
		log.Printf("tracker: load session: %v", err)
		return
	}
	if sess == nil {
		return
	}

	now := t.now()
	t.mu.Lock()
	elapsed := int(now.Sub(t.lastTick).Seconds())
	t.lastTick = now
	t.mu.Unlock()
	if elapsed < 1 {
		elapsed = 1
	}

	appName, title, err := t.probe.ForegroundWindow()
	var windowTitle *string
	if err != nil {
		// A failed read degrades the sample, never the loop.
		appName = "unknown"
	} else if title != "" {
		windowTitle = &title
	}

	idle, err := t.probe.IdleSeconds()
	if err != nil {
		idle = 0
	}
	activityType := activity.TypeActive
	if idle >= idleThresholdSeconds {
		activityType = activity.TypeIdle
	}

	ev := activity.Event{
		Timestamp:       now.UTC(),
		AppName:         appName,
		WindowTitle:     windowTitle,
		ActivityType:    activityType,
		IdleSeconds:     idle,
		DurationSeconds: elapsed,
		DeviceID:        sess.DeviceID,
	}

	degraded := false
	if err := t.queue.Enqueue(ev); err != nil {
		degraded = true
		log.Printf("tracker: enqueue: %v", err)
	}
	t.metrics.AddTick(ctx)

	if activityType == activity.TypeActive {
		t.enforcePolicy(ctx, sess.DeviceID, appName, windowTitle, now)
	}

	t.mu.Lock()
	t.status.AppName = appName
	t.status.IdleSeconds = idle
	t.status.QueueDegraded = degraded
	t.mu.Unlock()
	t.publish()
}

// enforcePolicy checks the focused window against the rules and, per
// violation key, raises a rate-limited alert and screenshot.
func (t *Tracker) enforcePolicy(ctx context.Context, deviceID, appName string, windowTitle *string, now time.Time) {
	v := t.evaluator.Evaluate(appName, deref(windowTitle))
	if v == nil {
		return
	}
	t.metrics.AddViolation(ctx)

	if t.cooldowns.AlertDue(v.Key) {
		title := v.Reason
		if windowTitle != nil {
			title = *windowTitle + " [" + v.Reason + "]"
		}
		t.syncer.SendPolicyAlert(api.PolicyAlert{
			DeviceID:    deviceID,
			AppName:     appName,
			WindowTitle: &title,
			DetectedAt:  now.UTC(),
		})
	}
	if t.cooldowns.ScreenshotDue(v.Key) {
		go t.capturer.Capture(context.Background())
	}
}

// NoteCapture folds a screenshot outcome into the published status. It is
// the capturer's result callback.
func (t *Tracker) NoteCapture(res capture.Result) {
	t.mu.Lock()
	t.status.LastScreenshotAt = res.CapturedAt
	if res.Err != nil {
		t.status.LastScreenshotErr = res.Err.Error()
		t.mu.Unlock()
		t.metrics.AddCaptureFailure(context.Background())
		t.publish()
		return
	}
	t.status.LastScreenshotErr = ""
	t.mu.Unlock()
	t.publish()
}

// publish pushes the current status without ever blocking the loop.
func (t *Tracker) publish() {
	t.mu.Lock()
	s := t.status
	t.mu.Unlock()
	select {
	case t.updates <- s:
	default:
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
