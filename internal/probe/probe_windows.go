//go:build windows

package probe

import (
	"errors"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetLastInputInfo         = user32.NewProc("GetLastInputInfo")

	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	procGetTickCount = kernel32.NewProc("GetTickCount")
)

type windowsProbe struct{}

func newPlatformProbe() Probe { return windowsProbe{} }

// ForegroundWindow reads the focused window's title and the executable name
// of its owning process. A window without a resolvable process still yields
// the title with an "unknown" app name.
func (windowsProbe) ForegroundWindow() (string, string, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return "", "", errors.New("probe: no foreground window")
	}

	var buf [512]uint16
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	title := windows.UTF16ToString(buf[:n])

	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	app, err := processImageName(pid)
	if err != nil {
		return "unknown", title, nil
	}
	return app, title, nil
}

func processImageName(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	var buf [windows.MAX_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return filepath.Base(windows.UTF16ToString(buf[:size])), nil
}

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

// IdleSeconds derives idle time from the last input tick and the current
// tick count. Both are 32-bit ticks; the subtraction is wraparound-safe.
func (windowsProbe) IdleSeconds() (int, error) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	ok, _, callErr := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if ok == 0 {
		return 0, errors.New("probe: GetLastInputInfo failed: " + callErr.Error())
	}
	tick, _, _ := procGetTickCount.Call()
	elapsed := uint32(tick) - info.dwTime
	return int(elapsed / 1000), nil
}
