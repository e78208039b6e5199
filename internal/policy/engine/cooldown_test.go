package engine

import (
	"testing"
	"time"
)

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time          { return c.at }
func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func TestCooldownsSuppressRepeatWithinWindow(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	c := NewCooldowns(5*time.Minute, time.Minute, clock.now)

	if !c.AlertDue("keyword:youtube") {
		t.Fatal("first alert suppressed")
	}
	if !c.ScreenshotDue("keyword:youtube") {
		t.Fatal("first screenshot suppressed")
	}

	clock.advance(10 * time.Second)
	if c.AlertDue("keyword:youtube") {
		t.Error("alert fired again 10s into a 5m window")
	}
	if c.ScreenshotDue("keyword:youtube") {
		t.Error("screenshot fired again 10s into a 60s window")
	}

	clock.advance(55 * time.Second) // 65s total
	if c.AlertDue("keyword:youtube") {
		t.Error("alert fired before 5m elapsed")
	}
	if !c.ScreenshotDue("keyword:youtube") {
		t.Error("screenshot suppressed after its 60s window elapsed")
	}

	clock.advance(5 * time.Minute)
	if !c.AlertDue("keyword:youtube") {
		t.Error("alert suppressed after 5m elapsed")
	}
}

func TestCooldownsIndependentPerKey(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	c := NewCooldowns(5*time.Minute, time.Minute, clock.now)

	if !c.AlertDue("keyword:youtube") {
		t.Fatal("first alert suppressed")
	}
	if !c.AlertDue("app:slack") {
		t.Error("different key suppressed by unrelated cooldown")
	}
}

func TestCooldownsMarkAtDecisionTime(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	c := NewCooldowns(5*time.Minute, time.Minute, clock.now)

	// Two rapid samples: the second must see the timestamp the first wrote,
	// even though no alert has actually been delivered yet.
	if !c.AlertDue("app:slack") {
		t.Fatal("first alert suppressed")
	}
	if c.AlertDue("app:slack") {
		t.Error("second sample double-fired while first alert was in flight")
	}
}

func TestCooldownsFloorsAndDefaults(t *testing.T) {
	c := NewCooldowns(time.Second, time.Second, nil)
	if c.alertEvery != minAlertCooldown {
		t.Errorf("alertEvery = %v, want %v floor", c.alertEvery, minAlertCooldown)
	}
	if c.screenshotEvery != minScreenshotCooldown {
		t.Errorf("screenshotEvery = %v, want %v floor", c.screenshotEvery, minScreenshotCooldown)
	}

	d := NewCooldowns(0, -time.Minute, nil)
	if d.alertEvery != defaultAlertCooldown {
		t.Errorf("alertEvery = %v, want default", d.alertEvery)
	}
	if d.screenshotEvery != defaultScreenshotCooldown {
		t.Errorf("screenshotEvery = %v, want default", d.screenshotEvery)
	}
}

func TestCooldownsEmptyKeyNeverFires(t *testing.T) {
	c := NewCooldowns(0, 0, nil)
	if c.AlertDue("") || c.ScreenshotDue("") {
		t.Error("empty key fired")
	}
}
