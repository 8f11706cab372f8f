//go:build unix

package session

import "golang.org/x/sys/unix"

// processAlive probes PID liveness via signal 0, the standard Unix
// idiom for "does this process exist" without actually signaling it
// (spec §4.6's process_died reap reason).
func processAlive(pid int) bool {
	if pid <= 0 {
		return true
	}
	return unix.Kill(pid, 0) == nil
}
