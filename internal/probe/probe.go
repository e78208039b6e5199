// Package probe reads the foreground window and system idle time.
package probe

// Probe samples the local desktop. Implementations are platform-specific;
// callers must tolerate errors and degrade to an "unknown" sample rather
// than fail the tick.
type Probe interface {
	// ForegroundWindow returns the focused application name and window title.
	ForegroundWindow() (appName, title string, err error)
	// IdleSeconds returns seconds since the last user input.
	IdleSeconds() (int, error)
}

// New returns the probe for the current platform.
func New() Probe {
	return newPlatformProbe()
}
