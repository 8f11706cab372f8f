// Package session implements DebugSession (spec §4.5): the typed
// operation surface tool handlers drive, bundling WireTransport,
// CommandChannel/StateTracker, and PauseController for one target
// process.
package session

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brennhill/rdbgbridge/internal/breakpoint"
	"github.com/brennhill/rdbgbridge/internal/pause"
	"github.com/brennhill/rdbgbridge/internal/rerr"
	"github.com/brennhill/rdbgbridge/internal/rlog"
	"github.com/brennhill/rdbgbridge/internal/transport"
	"github.com/brennhill/rdbgbridge/internal/wire"
)

// HTTPTrigger is the external HTTP client collaborator (spec §1:
// "HTTP client used to trigger requests against a debugged web app" is
// out of scope for the core; only its interface is specified here).
type HTTPTrigger interface {
	Do(ctx context.Context, method, url string) (status int, body string, err error)
}

// PendingHTTP describes an in-flight HTTP request the agent issued
// against the debugged app (spec §3's DebugSession state).
type PendingHTTP struct {
	Method string
	URL    string

	done     atomic.Bool
	status   int
	body     string
	err      error
}

// Done reports whether the request has completed; used as the
// interrupt_check predicate continue_and_wait polls (spec §5).
func (p *PendingHTTP) Done() bool { return p.done.Load() }

// Result returns the completed request's outcome. Call only after Done.
func (p *PendingHTTP) Result() (status int, body string, err error) {
	return p.status, p.body, p.err
}

// ConnectOptions configures Connect (spec §4.5).
type ConnectOptions struct {
	Target         transport.Target
	PromptSentinel *regexp.Regexp

	// ClearExistingBreakpoints removes any breakpoints already set on
	// the target before the bridge starts tracking them.
	ClearExistingBreakpoints bool

	// RestoreFrom, if non-nil, is replayed against the new session once
	// connected (spec §4.6's restore_breakpoints).
	RestoreFrom *breakpoint.Ledger

	// PreConnectWake, if set, is invoked before the handshake completes
	// when the process is believed to be IO-blocked on a known
	// listening port, to nudge it toward an observable state.
	PreConnectWake func(ctx context.Context) error

	// AutoEscapeTrap enables the connect-time trap-escape attempt: set a
	// one-shot breakpoint in the web framework's dispatch path and issue
	// a local request against DispatchListenPort.
	AutoEscapeTrap         bool
	DispatchListenPort     int
	DispatchBreakpointSpec string

	// ScriptFile/ScriptArgs populate the session's spawn-style metadata
	// (spec §3) when the target was launched by a `run_script`-style
	// caller rather than attached to; the bridge core only records this,
	// it does not itself spawn the process (spec §6's core/helper split).
	ScriptFile string
	ScriptArgs []string

	HTTPClient HTTPTrigger
	Log        rlog.Logger
}

// Session is DebugSession: one target process's debugger connection,
// its pause/running state machine, and the typed operation surface.
type Session struct {
	mu sync.Mutex // serializes all operations against this session

	target  transport.Target
	conn    *transport.Conn
	channel *wire.Channel
	tracker *wire.StateTracker
	pauseCt *pause.Controller
	ledger  *breakpoint.Ledger
	http    HTTPTrigger
	log     rlog.Logger

	pid           int
	oneShotBPs    map[int]bool
	listenPorts   []int
	escapeSpec    string
	pendingHTTP   *PendingHTTP
	lastException string // live "p $!" text from the most recent catch-breakpoint stop

	scriptFile string
	scriptArgs []string

	connectedAt time.Time
}

// Connect opens the transport, performs the handshake, and returns a
// ready Session (spec §4.5's connect operation).
func Connect(ctx context.Context, opts ConnectOptions) (*Session, error) {
	log := opts.Log
	if log == nil {
		log = rlog.Default()
	}

	conn, err := transport.Open(ctx, opts.Target, log)
	if err != nil {
		return nil, err
	}

	tracker := wire.NewStateTracker()
	ch := wire.NewChannel(conn, tracker, opts.PromptSentinel, log)

	s := &Session{
		target:      opts.Target,
		conn:        conn,
		channel:     ch,
		tracker:     tracker,
		ledger:      breakpoint.New(),
		http:        opts.HTTPClient,
		log:         log,
		oneShotBPs:  make(map[int]bool),
		scriptFile:  opts.ScriptFile,
		scriptArgs:  opts.ScriptArgs,
		connectedAt: time.Now(),
	}
	s.pauseCt = pause.New(ch, 0, nil, log)

	if opts.PreConnectWake != nil {
		if err := opts.PreConnectWake(ctx); err != nil {
			log.Warn("pre-connect wake failed", "err", err)
		}
	}

	// A command round trip observes the handshake banner and, via
	// StateTracker, the PID announced in it.
	if _, err := ch.ConfigureWidth(wire.MinOutputWidth, wire.DefaultTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	snap := tracker.Snapshot()
	s.pid = snap.PID
	s.pauseCt = pause.New(ch, s.pid, nil, log)

	s.installSigintForceQuit(wire.DefaultTimeout)

	if opts.ClearExistingBreakpoints {
		if _, err := ch.SendCommand("delete!", wire.DefaultTimeout); err != nil {
			log.Warn("clear existing breakpoints failed", "err", err)
		}
	}

	if opts.RestoreFrom != nil {
		for _, spec := range opts.RestoreFrom.Specs() {
			s.ledger.Record(spec)
		}
		results := s.ledger.Restore(s)
		for _, r := range results {
			if r.Err != nil {
				log.Warn("breakpoint restore failed", "spec", r.Spec, "err", r.Err)
			}
		}
	}

	if opts.AutoEscapeTrap && tracker.Snapshot().TrapContext {
		s.escapeSpec = opts.DispatchBreakpointSpec
		s.listenPorts = []int{opts.DispatchListenPort}
		strategy := dispatchEscapeStrategy{session: s, port: opts.DispatchListenPort}
		if _, err := s.pauseCt.AttemptTrapEscape(strategy, wire.ContinueTimeout); err != nil {
			log.Warn("auto trap escape failed at connect", "err", err)
		}
	}

	return s, nil
}

// dispatchEscapeStrategy adapts Session's SetBreakpoint/HTTP-trigger
// primitives to pause.TrapEscapeStrategy.
type dispatchEscapeStrategy struct {
	session *Session
	port    int
}

func (d dispatchEscapeStrategy) SetOneShotBreakpoint() error {
	_, err := d.session.SetBreakpoint(BreakpointRequest{
		Kind:    SpecMethod,
		Method:  d.session.escapeSpec,
		OneShot: true,
	}, wire.DefaultTimeout)
	return err
}

func (d dispatchEscapeStrategy) Trigger() error {
	if d.session.http == nil {
		return rerr.New(rerr.KindProtocol, "attempt_trap_escape", "no HTTP client configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := d.session.http.Do(ctx, "GET", fmt.Sprintf("http://127.0.0.1:%d/", d.port))
	return err
}

// PID returns the target process id, 0 if not yet learned.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Paused reports the last-known pause state.
func (s *Session) Paused() bool {
	return s.tracker.Snapshot().Paused
}

// Closed reports whether the underlying connection has failed.
func (s *Session) Closed() bool {
	return s.channel.Closed() || s.conn.Closed()
}

// ProcessAlive reports whether the target PID still exists, independent
// of the debugger socket's own state (spec §4.6's process_died reap
// reason). A PID of 0 (not yet learned) is treated as alive since
// there is nothing to probe.
func (s *Session) ProcessAlive() bool {
	s.mu.Lock()
	pid := s.pid
	s.mu.Unlock()
	return processAlive(pid)
}

// Target returns the connection endpoint.
func (s *Session) Target() transport.Target { return s.target }

// ScriptInfo returns the spawn-style script metadata recorded at connect,
// empty for an attach-style session (spec §3's script_file/script_args).
func (s *Session) ScriptInfo() (file string, args []string) {
	return s.scriptFile, s.scriptArgs
}

// Ledger exposes the session's breakpoint ledger for registry bookkeeping.
func (s *Session) Ledger() *breakpoint.Ledger { return s.ledger }

// Disconnect tears down the session (spec §4.5). When force is true, the
// socket is dropped without cleanup; otherwise every live breakpoint is
// deleted, the target is resumed, and the transport is closed.
func (s *Session) Disconnect(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if force {
		return s.conn.Close()
	}

	if !s.tracker.Snapshot().Paused {
		if _, err := s.pauseCt.InterruptAndWait(wire.DefaultTimeout); err != nil {
			s.log.Warn("disconnect: interrupt_and_wait failed, forcing", "err", err)
			return s.conn.Close()
		}
	}

	if _, err := s.channel.SendCommand("delete!", wire.DefaultTimeout); err != nil {
		s.log.Warn("disconnect: delete all breakpoints failed", "err", err)
	}
	s.restoreSigintHandler(wire.DefaultTimeout)
	if _, err := s.channel.SendCommand("continue", wire.DefaultTimeout); err != nil {
		s.log.Warn("disconnect: resume failed", "err", err)
	}
	return s.conn.Close()
}

// installSigintForceQuit installs a handler on the target that turns a
// SIGINT into an immediate force-quit, so a runaway target can be killed
// without going through the debugger's own interactive quit prompt (spec
// §4.5's connect operation).
func (s *Session) installSigintForceQuit(timeout time.Duration) {
	wrapped := buildEvalWrapper(`Signal.trap("INT"){ Kernel.exit!(1) }`)
	if _, err := s.channel.SendCommand(wrapPayloadCommand(wrapped), timeout); err != nil {
		s.log.Warn("install sigint force-quit handler failed", "err", err)
	}
}

// restoreSigintHandler reverts the target's SIGINT disposition to its
// default, undoing installSigintForceQuit (spec §4.5's disconnect
// operation).
func (s *Session) restoreSigintHandler(timeout time.Duration) {
	wrapped := buildEvalWrapper(`Signal.trap("INT", "DEFAULT")`)
	if _, err := s.channel.SendCommand(wrapPayloadCommand(wrapped), timeout); err != nil {
		s.log.Warn("restore sigint handler failed", "err", err)
	}
}

// Evaluate executes code in the stopped binding (spec §4.5).
func (s *Session) Evaluate(code string, timeout time.Duration) (EvalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wrapped := buildEvalWrapper(code)
	cmd := wrapPayloadCommand(wrapped)

	value, err := s.channel.SendCommand(cmd, timeout)
	if err != nil {
		return EvalResult{}, err
	}
	stdout, err := s.channel.SendCommand("p "+evalStdoutVar, timeout)
	if err != nil {
		return EvalResult{Value: value}, err
	}
	capturedStdout := dedupeCapturedStdout(value, unquoteRubyString(stdout))
	errText, err := s.channel.SendCommand("p "+evalErrVar+"&.message", timeout)
	if err != nil {
		return EvalResult{Value: value, CapturedStdout: capturedStdout}, err
	}
	return EvalResult{Value: value, CapturedStdout: capturedStdout, Error: unquoteRubyString(errText)}, nil
}

// unquoteRubyString strips the surrounding quotes pp/p print around a
// Ruby String inspect, e.g. `"hi\n"` -> `hi`. A best-effort cosmetic
// cleanup; malformed input is returned unchanged.
func unquoteRubyString(s string) string {
	s = strings.TrimSpace(s)
	if s == "nil" || s == "" {
		return ""
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `\n`, "\n")
		inner = strings.ReplaceAll(inner, `\"`, `"`)
		return inner
	}
	return s
}

// setBreakpointAckPattern matches the debugger's acknowledgement line
// for a newly set breakpoint, e.g. "#3  BP - Line  /app.rb:15 (line)".
var setBreakpointAckPattern = regexp.MustCompile(`#(\d+)\s+BP\s*-\s*\S+.*\(([a-z_]+)\)`)

// BreakpointSpecKind is one of the three spec forms spec §4.5 lists.
type BreakpointSpecKind int

const (
	SpecLine BreakpointSpecKind = iota
	SpecMethod
	SpecCatch
)

// BreakpointRequest is the input to SetBreakpoint.
type BreakpointRequest struct {
	Kind      BreakpointSpecKind
	FileLine  string // "file.rb:10"
	Method    string // "Class#inst" or "Class.class"
	Exception string // exception class for SpecCatch
	Condition string
	OneShot   bool
}

// BreakpointResult is the output of SetBreakpoint (spec §4.5).
type BreakpointResult struct {
	Number        int
	StopEventHint wire.StopEvent
	Warnings      []string
}

func (r BreakpointRequest) specString() breakpoint.Spec {
	var base string
	switch r.Kind {
	case SpecLine:
		base = "break " + r.FileLine
	case SpecMethod:
		base = "break " + r.Method
	case SpecCatch:
		base = "catch " + r.Exception
	}
	if r.Condition != "" {
		base += " if: " + r.Condition
	}
	return breakpoint.Spec(base)
}

// SetBreakpoint sets a breakpoint per spec §4.5's three forms.
func (s *Session) SetBreakpoint(req BreakpointRequest, timeout time.Duration) (BreakpointResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBreakpointLocked(req, timeout)
}

func (s *Session) setBreakpointLocked(req BreakpointRequest, timeout time.Duration) (BreakpointResult, error) {
	var cmd string
	switch req.Kind {
	case SpecLine:
		cmd = "break " + req.FileLine
	case SpecMethod:
		cmd = "break " + req.Method
	case SpecCatch:
		cmd = "catch " + req.Exception
	default:
		return BreakpointResult{}, rerr.New(rerr.KindProtocol, "set_breakpoint", "unknown breakpoint kind")
	}

	var warnings []string
	if req.Condition != "" {
		if !s.probeConditionSyntaxLocked(req.Condition, timeout) {
			warnings = append(warnings, "condition_syntax_invalid")
		}
		cmd += " if: " + req.Condition
	}

	out, err := s.channel.SendCommand(cmd, timeout)
	if err != nil {
		return BreakpointResult{}, err
	}

	number, hint := parseBreakpointAck(out)
	if req.OneShot {
		s.oneShotBPs[number] = true
	} else {
		s.ledger.Record(req.specString())
	}
	return BreakpointResult{Number: number, StopEventHint: hint, Warnings: warnings}, nil
}

// SetBreakpointFromSpec satisfies breakpoint.Setter for ledger restore.
func (s *Session) SetBreakpointFromSpec(spec breakpoint.Spec) error {
	req, err := parseSpecString(spec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.setBreakpointLocked(req, wire.DefaultTimeout)
	return err
}

func parseSpecString(spec breakpoint.Spec) (BreakpointRequest, error) {
	text := string(spec)
	condition := ""
	if idx := strings.Index(text, " if: "); idx >= 0 {
		condition = text[idx+len(" if: "):]
		text = text[:idx]
	}
	switch {
	case strings.HasPrefix(text, "break "):
		target := strings.TrimPrefix(text, "break ")
		if strings.Contains(target, ":") && !strings.Contains(target, "#") {
			return BreakpointRequest{Kind: SpecLine, FileLine: target, Condition: condition}, nil
		}
		return BreakpointRequest{Kind: SpecMethod, Method: target, Condition: condition}, nil
	case strings.HasPrefix(text, "catch "):
		return BreakpointRequest{Kind: SpecCatch, Exception: strings.TrimPrefix(text, "catch "), Condition: condition}, nil
	default:
		return BreakpointRequest{}, rerr.Newf(rerr.KindProtocol, "restore_breakpoints", "unrecognized spec %q", text)
	}
}

func parseBreakpointAck(out string) (int, wire.StopEvent) {
	m := setBreakpointAckPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, ""
	}
	n, _ := strconv.Atoi(m[1])
	return n, wire.StopEvent(m[2])
}

// probeConditionSyntaxLocked validates a condition expression via a
// compile-only probe before the breakpoint commits, per spec §4.5.
func (s *Session) probeConditionSyntaxLocked(condition string, timeout time.Duration) bool {
	probe := fmt.Sprintf(
		"begin; RubyVM::InstructionSequence.compile(%s); true; rescue SyntaxError; false; end",
		strconv.Quote(condition))
	out, err := s.channel.SendCommand("p "+probe, timeout)
	if err != nil {
		return false
	}
	return strings.Contains(out, "true")
}

// RemoveBreakpoint deletes breakpoint number n and removes its spec from
// the ledger.
func (s *Session) RemoveBreakpoint(number int, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.channel.SendCommand("delete "+strconv.Itoa(number), timeout); err != nil {
		return err
	}
	delete(s.oneShotBPs, number)
	// The ledger is keyed by spec string, not breakpoint number; callers
	// that know the originating spec use RemoveBreakpointSpec instead.
	return nil
}

// RemoveBreakpointSpec deletes every breakpoint matching spec and drops
// it from the ledger.
func (s *Session) RemoveBreakpointSpec(spec breakpoint.Spec, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.channel.SendCommand("info breakpoints", timeout)
	if err != nil {
		return err
	}
	for _, number := range findBreakpointNumbersForSpec(out, spec) {
		if _, err := s.channel.SendCommand("delete "+strconv.Itoa(number), timeout); err != nil {
			return err
		}
	}
	s.ledger.Remove(spec)
	return nil
}

var infoBreakpointLinePattern = regexp.MustCompile(`#(\d+)\s+(.+)`)

func findBreakpointNumbersForSpec(infoOutput string, spec breakpoint.Spec) []int {
	var nums []int
	target := strings.TrimPrefix(strings.TrimPrefix(string(spec), "break "), "catch ")
	for _, line := range strings.Split(infoOutput, "\n") {
		m := infoBreakpointLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if strings.Contains(m[2], target) {
			n, _ := strconv.Atoi(m[1])
			nums = append(nums, n)
		}
	}
	return nums
}

// cleanupOneShot deletes a one-shot breakpoint after it fires.
func (s *Session) cleanupOneShot(number int) {
	if !s.oneShotBPs[number] {
		return
	}
	delete(s.oneShotBPs, number)
	if _, err := s.channel.SendCommand("delete "+strconv.Itoa(number), wire.DefaultTimeout); err != nil {
		s.log.Warn("one-shot breakpoint cleanup failed", "number", number, "err", err)
	}
}

// resumeOutcome runs a resume command (continue/step/next/finish),
// applies one-shot cleanup on a breakpoint hit, and translates the
// result to a pause.Outcome.
func (s *Session) resumeOutcome(cmdText string, timeout time.Duration) (pause.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var interruptCheck func() bool
	if s.pendingHTTP != nil {
		interruptCheck = s.pendingHTTP.Done
	}

	res, err := s.channel.SendResumeCommand(cmdText, timeout, interruptCheck)
	if err != nil {
		if kind, ok := rerr.KindOf(err); ok && kind == rerr.KindTimeout {
			return pause.Outcome{Kind: pause.OutcomeTimeout, Text: res.Output}, err
		}
		return pause.Outcome{}, err
	}
	switch {
	case res.Exited:
		return pause.Outcome{Kind: pause.OutcomeExited, Text: res.Output}, nil
	case res.Interrupted:
		return pause.Outcome{Kind: pause.OutcomeInterrupted, Text: res.Output}, nil
	default:
		if n, _ := parseBreakpointAck(res.Output); n != 0 {
			s.cleanupOneShot(n)
		}
		if _, isCatch := wire.IsCatchStop(res.Output); isCatch {
			// The stop line's own text only carries the exception's class
			// name; $! holds the live object, with its message and
			// backtrace, so get_context can surface more than a bare
			// class name (spec §4.3's catch-stop contract).
			if exc, err := s.channel.SendCommand("p $!", timeout); err == nil {
				s.lastException = exc
			}
		} else {
			s.lastException = ""
		}
		return pause.Outcome{Kind: pause.OutcomeBreakpoint, Text: res.Output}, nil
	}
}

// ContinueExecution resumes and waits for the next stop outcome.
func (s *Session) ContinueExecution(timeout time.Duration) (pause.Outcome, error) {
	return s.resumeOutcome("c", timeout)
}

// Step steps into the next line.
func (s *Session) Step(timeout time.Duration) (pause.Outcome, error) {
	return s.resumeOutcome("s", timeout)
}

// NextLine steps over the next line.
func (s *Session) NextLine(timeout time.Duration) (pause.Outcome, error) {
	return s.resumeOutcome("n", timeout)
}

// Finish runs until the current frame returns.
func (s *Session) Finish(timeout time.Duration) (pause.Outcome, error) {
	return s.resumeOutcome("finish", timeout)
}

// InspectResult is the output of Inspect (spec §4.5).
type InspectResult struct {
	Value string
	Class string
	IVars string
	CVars string
}

// Inspect runs the structured queries spec §4.5 names: value, class,
// ivars, and — only when expr itself is a Module or Class — cvars.
func (s *Session) Inspect(expr string, timeout time.Duration) (InspectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := s.channel.SendCommand("p "+expr, timeout)
	if err != nil {
		return InspectResult{}, err
	}
	class, err := s.channel.SendCommand("p ("+expr+").class", timeout)
	if err != nil {
		return InspectResult{Value: value}, err
	}
	ivarsExpr := fmt.Sprintf("p (%s).instance_variables.map{|v|[v,(%s).instance_variable_get(v)]}.to_h", expr, expr)
	ivars, err := s.channel.SendCommand(ivarsExpr, timeout)
	if err != nil {
		return InspectResult{Value: value, Class: class}, err
	}

	result := InspectResult{Value: value, Class: class, IVars: ivars}
	if isModuleOrClass(class) {
		cvarsExpr := fmt.Sprintf("p (%s).class_variables.map{|v|[v,(%s).class_variable_get(v)]}.to_h", expr, expr)
		cvars, err := s.channel.SendCommand(cvarsExpr, timeout)
		if err != nil {
			return result, err
		}
		result.CVars = cvars
	}
	return result, nil
}

// isModuleOrClass reports whether a "p x.class" result names Module or
// Class itself, rather than merely an instance of one — cvars_if_module
// (spec §4.5) only makes sense for the former.
func isModuleOrClass(classOutput string) bool {
	trimmed := strings.TrimSpace(classOutput)
	return trimmed == "Module" || trimmed == "Class"
}

// ListBreakpoints returns the raw "info breakpoints" text.
func (s *Session) ListBreakpoints(timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.SendCommand("info breakpoints", timeout)
}

// GetContext returns locals, a backtrace, and — when paused at a
// catch breakpoint — the live $! exception for the current frame.
func (s *Session) GetContext(timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locals, err := s.channel.SendCommand("info locals", timeout)
	if err != nil {
		return "", err
	}
	bt, err := s.channel.SendCommand("bt", timeout)
	if err != nil {
		return locals, err
	}
	out := locals + "\n" + bt
	if s.lastException != "" {
		out += "\n$!: " + s.lastException
	}
	return out, nil
}

// GetSource returns the source listing around target ("file:line" or
// blank for the current frame).
func (s *Session) GetSource(target string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := "list"
	if target != "" {
		cmd = "list " + target
	}
	return s.channel.SendCommand(cmd, timeout)
}

// ReadFile reads path over the wire via an evaluate-style helper so
// remote/TCP sessions can see files that only exist inside the target's
// container (spec §4.5).
func (s *Session) ReadFile(path string, startLine, endLine int, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expr := fmt.Sprintf("File.readlines(%s)", strconv.Quote(path))
	if startLine > 0 || endLine > 0 {
		lo := startLine - 1
		if lo < 0 {
			lo = 0
		}
		if endLine > 0 {
			expr = fmt.Sprintf("%s[%d...%d]", expr, lo, endLine)
		} else {
			expr = fmt.Sprintf("%s[%d..]", expr, lo)
		}
	}
	wrapped := buildEvalWrapper(expr + ".join")
	return s.channel.SendCommand(wrapPayloadCommand(wrapped), timeout)
}

// ListFiles lists entries under dir matching glob (empty glob ≡ "*"),
// executed over the wire for the same reason as ReadFile.
func (s *Session) ListFiles(dir, glob string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if glob == "" {
		glob = "*"
	}
	expr := fmt.Sprintf("Dir.glob(File.join(%s, %s)).join(\"\\n\")", strconv.Quote(dir), strconv.Quote(glob))
	wrapped := buildEvalWrapper(expr)
	return s.channel.SendCommand(wrapPayloadCommand(wrapped), timeout)
}

// TriggerRequest issues an HTTP request against the debugged app and
// tracks it as pending_http so a blocked continue_and_wait can be
// interrupted once it completes (spec §3, §5).
func (s *Session) TriggerRequest(method, url string) *PendingHTTP {
	s.mu.Lock()
	p := &PendingHTTP{Method: method, URL: url}
	s.pendingHTTP = p
	s.mu.Unlock()

	go func() {
		status, body, err := s.http.Do(context.Background(), method, url)
		p.status, p.body, p.err = status, body, err
		p.done.Store(true)
	}()
	return p
}

// RunDebugCommand sends an arbitrary raw debugger command, for the
// run_debug_command escape-hatch tool (spec §6).
func (s *Session) RunDebugCommand(cmd string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.SendCommand(cmd, timeout)
}
