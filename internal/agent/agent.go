// Package agent wires the full desktop agent: session store, API client,
// durable queue, sync engine, policy engine, and sampling tracker.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/host"

	"hybrid-workforce/agent/internal/api"
	"hybrid-workforce/agent/internal/capture"
	"hybrid-workforce/agent/internal/config"
	"hybrid-workforce/agent/internal/device"
	"hybrid-workforce/agent/internal/policy/engine"
	"hybrid-workforce/agent/internal/probe"
	"hybrid-workforce/agent/internal/queue"
	"hybrid-workforce/agent/internal/session"
	"hybrid-workforce/agent/internal/syncer"
	"hybrid-workforce/agent/internal/telemetry"
	"hybrid-workforce/agent/internal/tracker"
)

// roleEmployee is the only role whose login starts tracking and attendance.
const roleEmployee = "employee"

// queueFile is the durable event queue inside the data dir.
const queueFile = "events.json"

// Agent owns the tracking pipeline for one logged-in user on one device.
type Agent struct {
	cfg     *config.Config
	store   session.Store
	client  *api.Client
	queue   *queue.Queue
	syncer  *syncer.Engine
	tracker *tracker.Tracker

	mu           sync.Mutex
	attendanceID string
}

// New builds the agent from config. It creates the data dir, resolves the
// device identifier, and wires every component; nothing starts until Login
// or RestoreSession.
func New(cfg *config.Config, metrics *telemetry.Metrics) (*Agent, error) {
	deviceIdentifier, err := device.LoadOrCreateIdentifier(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("agent: device identity: %w", err)
	}

	store, err := session.NewStore(cfg.KeyringService, cfg.DataDir, deviceIdentifier)
	if err != nil {
		return nil, fmt.Errorf("agent: session store: %w", err)
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.Timeout(), store)
	q := queue.New(filepath.Join(cfg.DataDir, queueFile))

	eng := syncer.New(syncer.Options{
		API:            client,
		Queue:          q,
		Sessions:       store,
		Metrics:        metrics,
		BatchLimit:     cfg.BatchLimit,
		FlushEvery:     cfg.FlushEvery(),
		HeartbeatEvery: cfg.HeartbeatEvery(),
	})

	// The capturer reports into the tracker, which does not exist yet; the
	// callback binds late through the agent.
	a := &Agent{cfg: cfg, store: store, client: client, queue: q, syncer: eng}
	capturer := capture.New(capture.DisplaySource{}, eng, func(res capture.Result) {
		a.tracker.NoteCapture(res)
	})

	a.tracker = tracker.New(tracker.Options{
		Probe:           probe.New(),
		Queue:           q,
		Syncer:          eng,
		Sessions:        store,
		Capturer:        capturer,
		Evaluator:       engine.NewRuleEvaluator(cfg.AllowedAppsList(), cfg.BlockedWindowKeywordsList()),
		Cooldowns:       engine.NewCooldowns(cfg.AlertCooldown(), cfg.ScreenshotCooldown(), nil),
		Metrics:         metrics,
		SampleEvery:     cfg.SampleEvery(),
		ScreenshotEvery: cfg.ScreenshotEvery(),
	})
	return a, nil
}

// Login authenticates, persists the session, and for employees starts
// tracking and marks attendance.
func (a *Agent) Login(ctx context.Context, email, password string) (*session.Session, error) {
	deviceIdentifier, err := device.LoadOrCreateIdentifier(a.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("agent: device identity: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	sess, err := a.client.Login(ctx, api.LoginParams{
		Email:            email,
		Password:         password,
		DeviceIdentifier: deviceIdentifier,
		DeviceName:       hostname,
		OSVersion:        osVersion(),
	})
	if err != nil {
		return nil, err
	}
	if sess.User.Role == roleEmployee {
		a.tracker.Start()
		a.markAttendance(ctx, sess.DeviceID)
	}
	return sess, nil
}

// RestoreSession resumes tracking from a persisted session. It returns nil
// without error when no session exists.
func (a *Agent) RestoreSession(ctx context.Context) (*session.Session, error) {
	sess, err := a.store.Get()
	if err != nil || sess == nil {
		return nil, err
	}
	if sess.User.Role == roleEmployee {
		a.tracker.Start()
		a.markAttendance(ctx, sess.DeviceID)
	}
	return sess, nil
}

// osVersion reports the kernel release for the login device metadata,
// falling back to the platform name when the host cannot be queried.
func osVersion() string {
	if v, err := host.KernelVersion(); err == nil && v != "" {
		return v
	}
	return runtime.GOOS + "/" + runtime.GOARCH
}

// markAttendance records presence, tolerating an already-open attendance
// record on the backend.
func (a *Agent) markAttendance(ctx context.Context, deviceID string) {
	id, err := a.client.AttendanceLogin(ctx, deviceID)
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.Status == http.StatusConflict {
			return
		}
		log.Printf("agent: attendance login: %v", err)
		return
	}
	a.mu.Lock()
	a.attendanceID = id
	a.mu.Unlock()
}

// Logout stops tracking, closes attendance, and clears the stored session.
// Queued events survive for the next login.
func (a *Agent) Logout(ctx context.Context) error {
	a.tracker.Stop()

	a.mu.Lock()
	attendanceID := a.attendanceID
	a.attendanceID = ""
	a.mu.Unlock()
	if attendanceID != "" {
		if err := a.client.AttendanceLogout(ctx, attendanceID); err != nil {
			log.Printf("agent: attendance logout: %v", err)
		}
	}
	return a.store.Clear()
}

// StartTracking begins sampling manually. Safe to call when already running.
func (a *Agent) StartTracking() { a.tracker.Start() }

// StopTracking pauses sampling without touching the session.
func (a *Agent) StopTracking() { a.tracker.Stop() }

// Updates exposes the tracker status stream.
func (a *Agent) Updates() <-chan tracker.Status { return a.tracker.Updates() }

// Status returns the current tracker status snapshot.
func (a *Agent) Status() tracker.Status { return a.tracker.Status() }

// Tasks lists the user's assigned tasks.
func (a *Agent) Tasks(ctx context.Context) ([]api.Task, error) {
	return a.client.ListTasks(ctx)
}

// UpdateTask moves a task to a new status.
func (a *Agent) UpdateTask(ctx context.Context, taskID, status string) error {
	return a.client.UpdateTaskStatus(ctx, taskID, status)
}

// Close stops all background work but keeps the session so the next start
// can resume it.
func (a *Agent) Close() {
	a.tracker.Stop()
}
