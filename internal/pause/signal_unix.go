//go:build unix

package pause

import "golang.org/x/sys/unix"

// unixSignaler delivers SIGURG via unix.Kill, mirroring the debug target
// runtime's own out-of-band pause primitive (spec §4.4).
type unixSignaler struct{}

// NewSignaler returns the platform's SIGURG delivery mechanism.
func NewSignaler() Signaler { return unixSignaler{} }

func (unixSignaler) SendPauseSignal(pid int) error {
	return unix.Kill(pid, unix.SIGURG)
}
