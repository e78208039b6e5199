//go:build !windows

package probe

import "errors"

// errUnsupported makes the tracker degrade to an "unknown" active sample on
// platforms without a desktop probe.
var errUnsupported = errors.New("probe: not supported on this platform")

type stubProbe struct{}

func newPlatformProbe() Probe { return stubProbe{} }

func (stubProbe) ForegroundWindow() (string, string, error) { return "", "", errUnsupported }

func (stubProbe) IdleSeconds() (int, error) { return 0, errUnsupported }
