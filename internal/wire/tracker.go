// Package wire implements the CommandChannel and StateTracker from spec
// §4.2–§4.3: the synchronous request/response discipline and the
// line-inspection state machine layered on top of internal/transport's
// raw byte stream.
package wire

import (
	"regexp"
	"strconv"
	"sync"
)

// StopEvent is one of the event kinds a stop notification can carry
// (spec §3, §4.3, GLOSSARY).
type StopEvent string

const (
	StopLine     StopEvent = "line"
	StopCall     StopEvent = "call"
	StopReturn   StopEvent = "return"
	StopBCall    StopEvent = "b_call"
	StopBReturn  StopEvent = "b_return"
	StopCReturn  StopEvent = "c_return"
)

// line inspection patterns, matched in the order spec §4.3 lists them.
var (
	bannerListenPattern = regexp.MustCompile(`DEBUGGER: wait for client connection at`)
	bannerAcceptPattern = regexp.MustCompile(`\(ruby:(\d+)\)`)
	stopByPattern       = regexp.MustCompile(`Stop by #(\d+)\s+BP\s*-\s*\S+.*\(([a-z_]+)\)`)
	catchPattern        = regexp.MustCompile(`Catch\s+"([^"]+)"`)
	trapPattern         = regexp.MustCompile(`signal:SIG\w+|trap_handler`)
	exitedPattern       = regexp.MustCompile(`^exited\??\b|^exit\b`)
	byePattern          = regexp.MustCompile(`^Bye\b`)
)

// DefaultPromptSentinel matches the "(rdbg)" prompt line and tolerated
// variants. Spec §9 (Open Question): "the exact prompt sentinel pattern
// depends on the debugger version ... A reimplementation should accept a
// configurable regex" — callers may override it by passing their own
// pattern as NewChannel's sentinel argument.
var DefaultPromptSentinel = regexp.MustCompile(`^\(rdbg(?::[^)]*)?\)\s*$`)

// Snapshot is an immutable copy of StateTracker's fields at one instant.
type Snapshot struct {
	PID                int
	Paused             bool
	LastStopEvent       StopEvent
	HasStopEvent        bool
	LastBreakpointNum   int
	HasBreakpointNum    bool
	TrapContext         bool
	LastException       string
	Closed              bool
	ProcessExited       bool
}

// StateTracker interprets incoming lines to maintain the fields of spec
// §4.3. It is driven exclusively by Channel's reader goroutine; all
// public accessors take a lock so other goroutines may read a consistent
// Snapshot concurrently.
type StateTracker struct {
	mu       sync.Mutex
	snapshot Snapshot
}

// NewStateTracker returns a tracker with all fields zeroed.
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// Observe inspects one line from the wire and updates tracked state.
// Returns true if the line was a recognized event (for logging/tests);
// unrecognized lines still pass through to the caller unchanged.
func (t *StateTracker) Observe(line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	matched := false

	if bannerListenPattern.MatchString(line) {
		matched = true
	}
	if m := bannerAcceptPattern.FindStringSubmatch(line); m != nil {
		if pid, err := strconv.Atoi(m[1]); err == nil {
			t.snapshot.PID = pid
		}
		matched = true
	}
	if m := stopByPattern.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			t.snapshot.LastBreakpointNum = n
			t.snapshot.HasBreakpointNum = true
		}
		t.snapshot.Paused = true
		t.snapshot.LastStopEvent = StopEvent(m[2])
		t.snapshot.HasStopEvent = true
		matched = true
	}
	if m := catchPattern.FindStringSubmatch(line); m != nil {
		t.snapshot.Paused = true
		t.snapshot.LastException = m[1]
		matched = true
	}
	if trapPattern.MatchString(line) {
		t.snapshot.TrapContext = true
		matched = true
	}
	if byePattern.MatchString(line) {
		t.snapshot.Closed = true
		matched = true
	}
	if exitedPattern.MatchString(line) {
		t.snapshot.ProcessExited = true
		matched = true
	}

	return matched
}

// IsCatchStop reports whether line is a catch-breakpoint stop
// notification, returning the caught exception's class name as parsed
// from the notification text itself. Callers that need the live
// exception object (message, backtrace) still have to query $! over
// the wire — this only tells them when that query is worth making.
func IsCatchStop(line string) (class string, ok bool) {
	m := catchPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MarkClosed is called by Channel's reader loop when the transport
// observes a fatal read error (EOF / socket closed).
func (t *StateTracker) MarkClosed() {
	t.mu.Lock()
	t.snapshot.Closed = true
	t.mu.Unlock()
}

// Snapshot returns a consistent copy of current state.
func (t *StateTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// ClearTrapContext resets the trap-context flag, called once a successful
// escape is observed (spec §4.4 attempt_trap_escape).
func (t *StateTracker) ClearTrapContext() {
	t.mu.Lock()
	t.snapshot.TrapContext = false
	t.mu.Unlock()
}

// ClearPaused is used by the resume path (continue/step) to locally
// reflect that the target is running again before the next stop
// notification arrives, avoiding a window where a stale Paused=true
// would let a subsequent WaitPaused return instantly.
func (t *StateTracker) ClearPaused() {
	t.mu.Lock()
	t.snapshot.Paused = false
	t.snapshot.HasStopEvent = false
	t.mu.Unlock()
}

// MatchesSentinel reports whether line is a prompt sentinel under re
// (DefaultPromptSentinel if re is nil). Only re is consulted: a custom
// pattern that does not match "(rdbg)" makes "(rdbg)" a non-sentinel.
func MatchesSentinel(re *regexp.Regexp, line string) bool {
	if re == nil {
		re = DefaultPromptSentinel
	}
	return re.MatchString(line)
}
