package engine

import (
	"sync"
	"time"
)

// Floor clamps so a misconfigured cooldown cannot flood the backend.
const (
	minAlertCooldown      = 30 * time.Second
	minScreenshotCooldown = 10 * time.Second

	defaultAlertCooldown      = 5 * time.Minute
	defaultScreenshotCooldown = time.Minute
)

// Cooldowns tracks, per violation key, when an alert and a screenshot each
// last fired. The two windows are independent: one violation can trigger
// only the alert, only the screenshot, both, or neither. The key space is
// bounded by the configured rule count, so entries are never evicted.
type Cooldowns struct {
	alertEvery      time.Duration
	screenshotEvery time.Duration
	now             func() time.Time

	mu             sync.Mutex
	lastAlert      map[string]time.Time
	lastScreenshot map[string]time.Time
}

// NewCooldowns builds the gate with the configured windows. Non-positive
// values fall back to the defaults (5m alert, 60s screenshot); values below
// the floors are clamped up (30s, 10s). now may be nil for the wall clock.
func NewCooldowns(alertEvery, screenshotEvery time.Duration, now func() time.Time) *Cooldowns {
	if now == nil {
		now = time.Now
	}
	return &Cooldowns{
		alertEvery:      clamp(alertEvery, defaultAlertCooldown, minAlertCooldown),
		screenshotEvery: clamp(screenshotEvery, defaultScreenshotCooldown, minScreenshotCooldown),
		now:             now,
		lastAlert:       make(map[string]time.Time),
		lastScreenshot:  make(map[string]time.Time),
	}
}

func clamp(d, def, floor time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	if d < floor {
		return floor
	}
	return d
}

// AlertDue reports whether an alert may fire for key and, if so, marks it
// fired immediately so overlapping samples cannot double-fire while the
// alert is still in flight.
func (c *Cooldowns) AlertDue(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return due(c.lastAlert, key, c.alertEvery, c.now())
}

// ScreenshotDue is AlertDue for the violation-screenshot action.
func (c *Cooldowns) ScreenshotDue(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return due(c.lastScreenshot, key, c.screenshotEvery, c.now())
}

func due(last map[string]time.Time, key string, every time.Duration, now time.Time) bool {
	if key == "" {
		return false
	}
	if at, ok := last[key]; ok && now.Sub(at) < every {
		return false
	}
	last[key] = now
	return true
}
