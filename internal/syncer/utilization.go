package syncer

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// systemUtilization reads instantaneous cpu and memory load for the
// heartbeat payload. Either reading may fail on constrained platforms;
// a zero is reported rather than skipping the heartbeat.
func systemUtilization() (cpuPct, memPct float64) {
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPct = vm.UsedPercent
	}
	return cpuPct, memPct
}
