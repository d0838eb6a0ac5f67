//go:build windows

package guard

import (
	"fmt"
	"syscall"
)

// SetThreadExecutionState flags
const (
	ES_CONTINUOUS       = 0x80000000
	ES_SYSTEM_REQUIRED  = 0x00000001
	ES_DISPLAY_REQUIRED = 0x00000002
)

var (
	kernel32                    = syscall.NewLazyDLL("kernel32.dll")
	procSetThreadExecutionState = kernel32.NewProc("SetThreadExecutionState")
)

type windowsGuard struct{}

func newGuard() Guard { return windowsGuard{} }

func (windowsGuard) PreventSleep() error {
	if err := procSetThreadExecutionState.Find(); err != nil {
		return fmt.Errorf("SetThreadExecutionState unavailable: %w", err)
	}
	r, _, err := procSetThreadExecutionState.Call(uintptr(ES_CONTINUOUS | ES_SYSTEM_REQUIRED | ES_DISPLAY_REQUIRED))
	if r == 0 {
		return fmt.Errorf("SetThreadExecutionState: %w", err)
	}
	return nil
}
