package pause

import (
	"strconv"
	"time"

	"github.com/brennhill/rdbgbridge/internal/rerr"
	"github.com/brennhill/rdbgbridge/internal/rlog"
	"github.com/brennhill/rdbgbridge/internal/wire"
)

// channel is the subset of *wire.Channel the controller drives. Narrowed
// to an interface so tests can substitute a fake reader without opening
// a real socket.
type channel interface {
	WaitPaused(timeout time.Duration) (string, error)
	SendCommandNoWait(text string, force bool) error
	SendContinue(timeout time.Duration, interruptCheck func() bool) (wire.ContinueResult, error)
	Tracker() *wire.StateTracker
}

// TrapEscapeStrategy supplies the session-level collaboration
// attempt_trap_escape needs: setting a one-shot breakpoint in the web
// framework's dispatch path and triggering it with a local request
// (spec §4.5).
type TrapEscapeStrategy interface {
	SetOneShotBreakpoint() error
	Trigger() error
}

// Controller is PauseController (spec §4.4).
type Controller struct {
	ch       channel
	pid      int
	signaler Signaler
	log      rlog.Logger
}

// New builds a Controller for a connected session's PID.
func New(ch *wire.Channel, pid int, signaler Signaler, log rlog.Logger) *Controller {
	if log == nil {
		log = rlog.Default()
	}
	if signaler == nil {
		signaler = NewSignaler()
	}
	return &Controller{ch: ch, pid: pid, signaler: signaler, log: log}
}

// EnsurePaused returns immediately with empty output and zero pause
// messages sent if the session is already paused; otherwise it passively
// waits for a stop notification without sending anything.
func (c *Controller) EnsurePaused(timeout time.Duration) (string, error) {
	return c.ch.WaitPaused(timeout)
}

// Repause actively forces a pause: sends exactly one "pause PID" text
// command plus the SIGURG signal, then waits for the stop notification.
func (c *Controller) Repause(timeout time.Duration) (string, error) {
	if err := c.ch.SendCommandNoWait("pause "+strconv.Itoa(c.pid), true); err != nil {
		return "", err
	}
	if err := c.signaler.SendPauseSignal(c.pid); err != nil {
		c.log.Warn("SIGURG delivery failed, relying on text command", "pid", c.pid, "err", err)
	}
	return c.ch.WaitPaused(timeout)
}

// CheckPaused waits for paused state without sending another pause
// message — the only form retries may use once a repause cycle has
// already emitted its one "pause PID" (spec §4.4's stale-pause defense).
func (c *Controller) CheckPaused(timeout time.Duration) (string, error) {
	return c.ch.WaitPaused(timeout)
}

// AutoRepause implements the full stale-pause-safe reconnection path: try
// passively first, then at most one active repause, then any number of
// check_paused retries — never more than one "pause PID" write for the
// whole call.
func (c *Controller) AutoRepause(timeout time.Duration, checkRetries int) (string, error) {
	if out, err := c.EnsurePaused(timeout); err == nil {
		return out, nil
	}
	out, err := c.Repause(timeout)
	if err == nil {
		return out, nil
	}
	for i := 0; i < checkRetries; i++ {
		out, err = c.CheckPaused(timeout)
		if err == nil {
			return out, nil
		}
	}
	return out, err
}

// ContinueAndWait resumes execution and waits for the next stop, an
// interrupt, or process exit.
func (c *Controller) ContinueAndWait(timeout time.Duration, interruptCheck func() bool) (Outcome, error) {
	res, err := c.ch.SendContinue(timeout, interruptCheck)
	if err != nil {
		if kind, ok := rerr.KindOf(err); ok && kind == rerr.KindTimeout {
			return Outcome{Kind: OutcomeTimeout, Text: res.Output}, err
		}
		return Outcome{}, err
	}
	switch {
	case res.Exited:
		return Outcome{Kind: OutcomeExited, Text: res.Output}, nil
	case res.Interrupted:
		return Outcome{Kind: OutcomeInterrupted, Text: res.Output}, nil
	default:
		return Outcome{Kind: OutcomeBreakpoint, Text: res.Output}, nil
	}
}

// InterruptAndWait yanks a running target back into a paused state
// during disconnect so cleanup commands can be issued, reusing the same
// single-pause-message discipline as Repause.
func (c *Controller) InterruptAndWait(timeout time.Duration) (string, error) {
	return c.Repause(timeout)
}

// AttemptTrapEscape tries to get the session out of a signal-trap
// context by setting a one-shot breakpoint in the framework dispatch
// path and triggering it, then waiting for that breakpoint to fire. It
// reports whether the session ended up paused — never an unconditional
// true (spec §4.4).
func (c *Controller) AttemptTrapEscape(strategy TrapEscapeStrategy, timeout time.Duration) (bool, error) {
	if err := strategy.SetOneShotBreakpoint(); err != nil {
		return false, err
	}
	if err := strategy.Trigger(); err != nil {
		return false, err
	}
	res, err := c.ch.SendContinue(timeout, nil)
	if err != nil {
		return false, err
	}
	if res.Exited {
		return false, nil
	}
	c.ch.Tracker().ClearTrapContext()
	return true, nil
}

// AttemptRepauseAfterNoHit is the fallback after a failed trap escape:
// spec §4.4 requires transitioning to an active repause (not a passive
// ensure_paused) and returning the actual paused flag, never assuming
// success.
func (c *Controller) AttemptRepauseAfterNoHit(timeout time.Duration) (bool, error) {
	_, err := c.Repause(timeout)
	paused := c.ch.Tracker().Snapshot().Paused
	if err != nil && !paused {
		return false, err
	}
	return paused, nil
}
