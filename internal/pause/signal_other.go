//go:build !unix

package pause

// noopSignaler is the non-Unix fallback (spec §9): SIGURG has no
// equivalent, so repause relies solely on the textual "pause PID"
// command, accepting higher latency and losing the stale-pause risk
// entirely (there is nothing queued to go stale).
type noopSignaler struct{}

// NewSignaler returns the platform's SIGURG delivery mechanism.
func NewSignaler() Signaler { return noopSignaler{} }

func (noopSignaler) SendPauseSignal(int) error { return nil }
