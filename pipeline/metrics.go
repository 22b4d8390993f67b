package pipeline

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/logger"
)

// memoryStats returns total and available system memory in bytes.
func memoryStats() (total, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "read memory stats")
	}
	return v.Total, v.Available, nil
}

// logMemoryPressure reports memory headroom at daemon start and warns
// when the system is already tight for the configured worker count.
func (o *Orchestrator) logMemoryPressure() {
	total, available, err := memoryStats()
	if err != nil {
		o.log.Debugw("Memory stats unavailable", logger.FieldError, err.Error())
		return
	}
	if total == 0 {
		return
	}

	totalGB := float64(total) / 1024 / 1024 / 1024
	usedGB := float64(total-available) / 1024 / 1024 / 1024
	percent := usedGB / totalGB * 100
	summary := fmt.Sprintf("%.1f/%.1fGB (%.0f%%)", usedGB, totalGB, percent)

	if percent >= 90 {
		o.pulseLog.Warnw("Memory pressure high at startup",
			"memory", summary,
			"workers", o.workers,
		)
		return
	}
	o.pulseLog.Debugw("Memory at startup", "memory", summary)
}
