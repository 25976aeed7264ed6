package util

import (
	"github.com/shirou/gopsutil/v3/process"
)

// IsProcessAlive reports whether a process with the given pid exists
// and has not yet been reaped as a zombie.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		// NewProcess fails with ErrorProcessNotRunning for unknown pids
		return false
	}

	statuses, err := p.Status()
	if err != nil {
		// the process vanished between lookup and status read
		return false
	}

	for _, status := range statuses {
		if status == process.Zombie {
			return false
		}
	}

	return true
}
