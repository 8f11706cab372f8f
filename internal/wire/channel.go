package wire

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brennhill/rdbgbridge/internal/rerr"
	"github.com/brennhill/rdbgbridge/internal/rlog"
	"github.com/brennhill/rdbgbridge/internal/transport"
)

// Default timeouts, spec §4.2.
const (
	DefaultTimeout  = 15 * time.Second
	ContinueTimeout = 30 * time.Second

	// MinOutputWidth is the minimum terminal width the channel requests
	// at connect so long inspect/backtrace output is not hard-wrapped by
	// the target process (spec §4.2, Open Question resolved: send a
	// "set width N" style command before any user command is issued).
	MinOutputWidth = 500

	readSliceTimeout = 2 * time.Second
	interruptPoll    = 50 * time.Millisecond
)

// sink is a single collector registered by an in-flight wait; Channel's
// reader goroutine feeds it every observed line while it is active.
type sink struct {
	ch chan string
}

func newSink() *sink {
	return &sink{ch: make(chan string, 256)}
}

// Channel is the CommandChannel of spec §4.2: it drives transport.Conn
// with a send/collect discipline qualified by a prompt-sentinel pattern,
// and feeds every line to a StateTracker along the way.
type Channel struct {
	conn     *transport.Conn
	tracker  *StateTracker
	sentinel *regexp.Regexp
	log      rlog.Logger

	// ioMu enforces spec §4.2's single-threaded discipline: "at most one
	// send_command or send_continue may be in flight per session."
	ioMu sync.Mutex

	active        atomic.Pointer[sink]
	handshakeDone atomic.Bool

	doneOnce sync.Once
	done     chan struct{}
	doneErr  error
}

// NewChannel starts the reader goroutine against conn and returns a ready
// Channel. sentinel overrides the prompt-detection pattern; pass nil for
// DefaultPromptSentinel.
func NewChannel(conn *transport.Conn, tracker *StateTracker, sentinel *regexp.Regexp, log rlog.Logger) *Channel {
	if log == nil {
		log = rlog.Default()
	}
	if sentinel == nil {
		sentinel = DefaultPromptSentinel
	}
	c := &Channel{
		conn:     conn,
		tracker:  tracker,
		sentinel: sentinel,
		log:      log,
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	for {
		line, err := c.conn.ReadLine(time.Now().Add(readSliceTimeout))
		if err != nil {
			if kind, ok := rerr.KindOf(err); ok && kind == rerr.KindTimeout {
				continue
			}
			c.tracker.MarkClosed()
			c.finish(err)
			return
		}
		c.tracker.Observe(line)
		if s := c.active.Load(); s != nil {
			select {
			case s.ch <- line:
			default:
				c.log.Warn("command channel sink full, dropping line", "line", line)
			}
		} else if !c.handshakeDone.Load() {
			// Unsolicited line with no command in flight yet: this is
			// handshake banner text (spec §4.1) — buffer it on the
			// transport so the first real operation can surface it.
			c.conn.PushBanner(line)
		}
	}
}

func (c *Channel) finish(err error) {
	c.doneOnce.Do(func() {
		c.doneErr = err
		close(c.done)
	})
}

// Closed reports whether the underlying reader has observed a fatal
// transport error.
func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// SendCommand writes text (a "\n" is appended) and collects lines until a
// prompt sentinel is observed, per spec §4.2. The sentinel is never
// accepted as the terminator on the very first line received after the
// write — that line is the command's own echo or first output line, and
// a sentinel-shaped echo must not be mistaken for the real prompt.
func (c *Channel) SendCommand(text string, timeout time.Duration) (string, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	c.handshakeDone.Store(true)

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s := newSink()
	c.active.Store(s)
	defer c.active.Store(nil)

	if err := c.conn.Write([]byte(text + "\n")); err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	var lines []string
	sawFirst := false
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return strings.Join(lines, "\n"), rerr.Newf(rerr.KindTimeout, "send_command", "no response within %s", timeout)
		}
		select {
		case line := <-s.ch:
			if sawFirst && MatchesSentinel(c.sentinel, line) {
				return strings.Join(lines, "\n"), nil
			}
			sawFirst = true
			lines = append(lines, line)
		case <-time.After(remaining):
			return strings.Join(lines, "\n"), rerr.Newf(rerr.KindTimeout, "send_command", "no response within %s", timeout)
		case <-c.done:
			return strings.Join(lines, "\n"), rerr.Wrap(rerr.KindConnection, "send_command", c.doneErr)
		}
	}
}

// SendCommandNoWait writes text without waiting for a response. force
// exists to let callers document that they know the target is believed
// to be running (not paused) and are sending anyway — e.g. an
// out-of-band "pause PID" — it does not change behavior here.
func (c *Channel) SendCommandNoWait(text string, force bool) error {
	_ = force
	c.handshakeDone.Store(true)
	return c.conn.Write([]byte(text + "\n"))
}

// WaitPaused blocks, without writing anything, until the StateTracker
// reports Paused, the timeout elapses, or the channel closes. If the
// tracker already reports Paused when called, it returns immediately
// with no lines collected — this is what makes ensure_paused and
// check_paused (spec §4.4) the same primitive under the hood.
func (c *Channel) WaitPaused(timeout time.Duration) (string, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	c.handshakeDone.Store(true)

	if c.tracker.Snapshot().Paused {
		return "", nil
	}

	s := newSink()
	c.active.Store(s)
	defer c.active.Store(nil)

	deadline := time.Now().Add(timeout)
	var lines []string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return strings.Join(lines, "\n"), rerr.Newf(rerr.KindTimeout, "wait_paused", "not paused within %s", timeout)
		}
		select {
		case line := <-s.ch:
			lines = append(lines, line)
			if c.tracker.Snapshot().Paused {
				return strings.Join(lines, "\n"), nil
			}
		case <-time.After(remaining):
			return strings.Join(lines, "\n"), rerr.Newf(rerr.KindTimeout, "wait_paused", "not paused within %s", timeout)
		case <-c.done:
			return strings.Join(lines, "\n"), rerr.Wrap(rerr.KindConnection, "wait_paused", c.doneErr)
		}
	}
}

// ContinueResult is the mechanical outcome SendContinue observed; pause.Controller
// layers the Outcome semantics of spec §4.4 on top of this.
type ContinueResult struct {
	Output      string
	Exited      bool
	Interrupted bool
}

// SendContinue writes "c" and waits for either a new stop notification,
// process exit, or (if interruptCheck is non-nil) interruptCheck
// returning true, polled every interruptPoll. Spec §4.4: continue_and_wait
// "accepts an optional interrupt_check callback ... and returns early when
// it evaluates true," used to unblock a continue once a pending HTTP
// request against the debugged app has completed.
func (c *Channel) SendContinue(timeout time.Duration, interruptCheck func() bool) (ContinueResult, error) {
	return c.SendResumeCommand("c", timeout, interruptCheck)
}

// SendResumeCommand is the general form behind SendContinue: it writes
// any command that resumes execution (c, s, n, finish) and waits for the
// next stop notification, process exit, or interrupt. step/next/finish
// share send_continue's wait discipline even though spec §4.2 names only
// "c" explicitly — they are resume commands in exactly the same sense.
func (c *Channel) SendResumeCommand(cmdText string, timeout time.Duration, interruptCheck func() bool) (ContinueResult, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	c.handshakeDone.Store(true)

	if timeout <= 0 {
		timeout = ContinueTimeout
	}

	c.tracker.ClearPaused()

	s := newSink()
	c.active.Store(s)
	defer c.active.Store(nil)

	if err := c.conn.Write([]byte(cmdText + "\n")); err != nil {
		return ContinueResult{}, err
	}

	var ticker *time.Ticker
	var tickCh <-chan time.Time
	if interruptCheck != nil {
		ticker = time.NewTicker(interruptPoll)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	deadline := time.Now().Add(timeout)
	var lines []string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ContinueResult{Output: strings.Join(lines, "\n")}, rerr.Newf(rerr.KindTimeout, "send_continue", "no stop within %s", timeout)
		}
		select {
		case line := <-s.ch:
			lines = append(lines, line)
			snap := c.tracker.Snapshot()
			if snap.ProcessExited {
				return ContinueResult{Output: strings.Join(lines, "\n"), Exited: true}, nil
			}
			if snap.Paused {
				return ContinueResult{Output: strings.Join(lines, "\n")}, nil
			}
		case <-tickCh:
			if interruptCheck() {
				return ContinueResult{Output: strings.Join(lines, "\n"), Interrupted: true}, nil
			}
		case <-time.After(remaining):
			return ContinueResult{Output: strings.Join(lines, "\n")}, rerr.Newf(rerr.KindTimeout, "send_continue", "no stop within %s", timeout)
		case <-c.done:
			return ContinueResult{Output: strings.Join(lines, "\n")}, rerr.Wrap(rerr.KindConnection, "send_continue", c.doneErr)
		}
	}
}

// ConfigureWidth sends the wide-output setup command expected at connect
// (spec §4.2). It uses SendCommand like any other request so its own
// sentinel-terminated response is consumed rather than leaking into the
// next caller's collection window.
func (c *Channel) ConfigureWidth(width int, timeout time.Duration) (string, error) {
	if width < MinOutputWidth {
		width = MinOutputWidth
	}
	return c.SendCommand("config set width "+strconv.Itoa(width), timeout)
}

// Tracker returns the StateTracker this channel feeds.
func (c *Channel) Tracker() *StateTracker { return c.tracker }

// Close closes the underlying transport. Safe to call more than once.
func (c *Channel) Close() error {
	return c.conn.Close()
}
