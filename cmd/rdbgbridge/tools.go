package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brennhill/rdbgbridge/internal/breakpoint"
	"github.com/brennhill/rdbgbridge/internal/registry"
	"github.com/brennhill/rdbgbridge/internal/rerr"
	"github.com/brennhill/rdbgbridge/internal/session"
	"github.com/brennhill/rdbgbridge/internal/transport"
	"github.com/brennhill/rdbgbridge/internal/wire"
)

// defaultOpTimeout bounds every tool-level debugger round trip that has
// no caller-supplied deadline.
const defaultOpTimeout = wire.DefaultTimeout

// registerTools wires every tool from spec §6's exhaustive list to the
// MCP server, each handler resolving a session through SessionRegistry
// and translating errors to "Error: MESSAGE" text rather than a thrown
// RPC error (spec §7's propagation policy).
func registerTools(server *mcp.Server, s *bridgeServer) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_debug_sessions",
		Description: "List every active debugging session with PID, target, and pause state.",
	}, s.listDebugSessions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "connect",
		Description: "Connect to an rdbg debugger endpoint (TCP host:port or a Unix-domain socket path).",
	}, s.connect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_paused_sessions",
		Description: "List sessions currently paused at a breakpoint or trap.",
	}, s.listPausedSessions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_code",
		Description: "Evaluate Ruby code in a paused session's binding; returns the value, captured stdout, and any raised error.",
	}, s.evaluateCode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "inspect_object",
		Description: "Inspect a Ruby expression's value, class, and instance variables.",
	}, s.inspectObject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_context",
		Description: "Get local variables and a backtrace for the current paused frame.",
	}, s.getContext)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_source",
		Description: "Get a source listing around the current frame or a given file:line.",
	}, s.getSource)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_file",
		Description: "Read a range of lines from a file as seen by the target process.",
	}, s.readFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_files",
		Description: "List files under a directory (glob) as seen by the target process.",
	}, s.listFiles)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_breakpoint",
		Description: "Set a line, method, or exception-catch breakpoint, optionally conditional and one-shot.",
	}, s.setBreakpoint)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_breakpoint",
		Description: "Remove a breakpoint by number or by its original spec string.",
	}, s.removeBreakpoint)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "continue_execution",
		Description: "Resume execution until the next breakpoint, exit, or interrupt.",
	}, s.continueExecution)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "step",
		Description: "Step into the next line.",
	}, s.step)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "next",
		Description: "Step over the next line.",
	}, s.next)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "finish",
		Description: "Run until the current frame returns.",
	}, s.finish)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_debug_command",
		Description: "Send a raw rdbg debugger command and return its text output verbatim. Escape hatch for anything the typed tools don't cover.",
	}, s.runDebugCommand)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "disconnect",
		Description: "Disconnect a session, optionally forcing the socket closed without cleanup.",
	}, s.disconnect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trigger_request",
		Description: "Issue an HTTP request against the debugged app and track it so a blocked continue can be unblocked by its completion.",
	}, s.triggerRequest)
}

// sessionParams is embedded by tools that operate against a specific
// session; SessionID may be empty when exactly one session is active.
type sessionParams struct {
	SessionID string `json:"session_id,omitempty" mcp:"session id; omit when exactly one session is active"`
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errResult(err error) *mcp.CallToolResultFor[any] {
	return textResult("Error: " + err.Error())
}

// resolve looks up the session named by id, touching its last-activity
// timestamp on success (spec §4.5/§4.6: every operation bumps activity).
func (s *bridgeServer) resolve(id string) (*registry.SessionInfo, error) {
	info, err := s.registry.Client(id)
	if err != nil {
		return nil, err
	}
	s.registry.Touch(info.ID)
	return info, nil
}

type emptyParams struct{}

func (s *bridgeServer) listDebugSessions(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[emptyParams]) (*mcp.CallToolResultFor[any], error) {
	sessions := s.registry.ActiveSessions()
	if len(sessions) == 0 {
		return textResult("No active debugging sessions."), nil
	}
	var b strings.Builder
	for _, info := range sessions {
		fmt.Fprintf(&b, "%s: pid=%d target=%s paused=%v",
			info.ID, info.Session.PID(), info.Session.Target(), info.Session.Paused())
		if file, args := info.Session.ScriptInfo(); file != "" {
			fmt.Fprintf(&b, " script=%s args=%v", file, args)
		}
		b.WriteByte('\n')
	}
	return textResult(b.String()), nil
}

func (s *bridgeServer) listPausedSessions(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[emptyParams]) (*mcp.CallToolResultFor[any], error) {
	sessions := s.registry.ActiveSessions()
	var b strings.Builder
	count := 0
	for _, info := range sessions {
		if !info.Session.Paused() {
			continue
		}
		count++
		fmt.Fprintf(&b, "%s: pid=%d target=%s\n", info.ID, info.Session.PID(), info.Session.Target())
	}
	if count == 0 {
		return textResult("No paused sessions."), nil
	}
	return textResult(b.String()), nil
}

type connectParams struct {
	SessionID          string `json:"session_id,omitempty" mcp:"id to register this session under; synthesized from the PID if omitted"`
	Host               string `json:"host,omitempty" mcp:"TCP host; omit for a Unix-domain socket connection"`
	Port               int    `json:"port,omitempty" mcp:"TCP port; omit for a Unix-domain socket connection"`
	Path               string `json:"path,omitempty" mcp:"Unix-domain socket path; omit for a TCP connection"`
	ClearBreakpoints   bool   `json:"clear_breakpoints,omitempty" mcp:"delete any breakpoints already set on the target before tracking begins"`
	RestoreBreakpoints bool   `json:"restore_breakpoints,omitempty" mcp:"replay this session id's previously recorded breakpoint ledger"`
	PreCleanupPID      int    `json:"pre_cleanup_pid,omitempty" mcp:"disconnect any existing session for this PID before connecting"`
	PreCleanupPort     int    `json:"pre_cleanup_port,omitempty" mcp:"disconnect any existing session for this TCP port before connecting"`
	AutoEscapeTrap     bool     `json:"auto_escape_trap,omitempty" mcp:"attempt a trap-context escape at connect if the target reports one"`
	DispatchListenPort int      `json:"dispatch_listen_port,omitempty" mcp:"local port to hit for the trap-escape HTTP trigger"`
	DispatchBreakpoint string   `json:"dispatch_breakpoint,omitempty" mcp:"one-shot breakpoint spec (e.g. a dispatch method) used for the trap-escape"`
	ScriptFile         string   `json:"script_file,omitempty" mcp:"path of the script this session was spawned to run, for spawn-style sessions (run_script); blank for attach-style sessions"`
	ScriptArgs         []string `json:"script_args,omitempty" mcp:"arguments the spawned script was launched with"`
}

func (s *bridgeServer) connect(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[connectParams]) (*mcp.CallToolResultFor[any], error) {
	a := params.Arguments
	var target transport.Target
	if a.Path != "" {
		target = transport.Target{Path: a.Path}
	} else {
		target = transport.Target{Host: a.Host, Port: a.Port}
	}

	req := registry.ConnectRequest{
		SessionID:          a.SessionID,
		PreCleanupPID:      a.PreCleanupPID,
		PreCleanupPort:     a.PreCleanupPort,
		RestoreBreakpoints: a.RestoreBreakpoints,
		Timeout:            s.cfg.SessionTimeout,
		Options: session.ConnectOptions{
			Target:                   target,
			ClearExistingBreakpoints: a.ClearBreakpoints,
			AutoEscapeTrap:           a.AutoEscapeTrap,
			DispatchListenPort:       a.DispatchListenPort,
			DispatchBreakpointSpec:   a.DispatchBreakpoint,
			ScriptFile:               a.ScriptFile,
			ScriptArgs:               a.ScriptArgs,
			HTTPClient:               s.http,
			Log:                      s.log,
		},
	}

	info, err := s.registry.Connect(ctx, req)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(fmt.Sprintf("Connected: id=%s pid=%d target=%s", info.ID, info.Session.PID(), info.Session.Target())), nil
}

type evaluateParams struct {
	sessionParams
	Code string `json:"code" mcp:"Ruby code to evaluate in the paused binding"`
}

func (s *bridgeServer) evaluateCode(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[evaluateParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	res, err := info.Session.Evaluate(params.Arguments.Code, defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "=> %s\n", res.Value)
	if res.CapturedStdout != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", res.CapturedStdout)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "raised: %s\n", res.Error)
	}
	return textResult(b.String()), nil
}

type inspectParams struct {
	sessionParams
	Expression string `json:"expression" mcp:"Ruby expression to inspect"`
}

func (s *bridgeServer) inspectObject(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[inspectParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	res, err := info.Session.Inspect(params.Arguments.Expression, defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	text := fmt.Sprintf("value: %s\nclass: %s\nivars: %s", res.Value, res.Class, res.IVars)
	if res.CVars != "" {
		text += fmt.Sprintf("\ncvars: %s", res.CVars)
	}
	return textResult(text), nil
}

func (s *bridgeServer) getContext(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[sessionParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	out, err := info.Session.GetContext(defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(out), nil
}

type sourceParams struct {
	sessionParams
	Target string `json:"target,omitempty" mcp:"file:line to list; omit for the current frame"`
}

func (s *bridgeServer) getSource(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[sourceParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	out, err := info.Session.GetSource(params.Arguments.Target, defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(out), nil
}

type readFileParams struct {
	sessionParams
	Path      string `json:"path" mcp:"file path, resolved against the target process"`
	StartLine int    `json:"start_line,omitempty" mcp:"1-based first line, inclusive; 0 means from the start"`
	EndLine   int    `json:"end_line,omitempty" mcp:"1-based last line, inclusive; 0 means to the end"`
}

func (s *bridgeServer) readFile(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[readFileParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	out, err := info.Session.ReadFile(params.Arguments.Path, params.Arguments.StartLine, params.Arguments.EndLine, defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(out), nil
}

type listFilesParams struct {
	sessionParams
	Dir  string `json:"dir" mcp:"directory, resolved against the target process"`
	Glob string `json:"glob,omitempty" mcp:"glob pattern; defaults to *"`
}

func (s *bridgeServer) listFiles(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[listFilesParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	out, err := info.Session.ListFiles(params.Arguments.Dir, params.Arguments.Glob, defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(out), nil
}

type setBreakpointParams struct {
	sessionParams
	FileLine  string `json:"file_line,omitempty" mcp:"line breakpoint, e.g. app.rb:10"`
	Method    string `json:"method,omitempty" mcp:"method breakpoint, e.g. Class#method"`
	Exception string `json:"exception,omitempty" mcp:"exception class to catch"`
	Condition string `json:"condition,omitempty" mcp:"Ruby boolean expression guarding the breakpoint"`
	OneShot   bool   `json:"one_shot,omitempty" mcp:"delete automatically after the first hit"`
}

func (s *bridgeServer) setBreakpoint(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[setBreakpointParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}

	a := params.Arguments
	req := session.BreakpointRequest{Condition: a.Condition, OneShot: a.OneShot}
	switch {
	case a.FileLine != "":
		req.Kind, req.FileLine = session.SpecLine, a.FileLine
	case a.Method != "":
		req.Kind, req.Method = session.SpecMethod, a.Method
	case a.Exception != "":
		req.Kind, req.Exception = session.SpecCatch, a.Exception
	default:
		return errResult(rerr.New(rerr.KindProtocol, "set_breakpoint", "one of file_line, method, or exception is required")), nil
	}

	res, err := info.Session.SetBreakpoint(req, defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}

	text := fmt.Sprintf("Breakpoint #%d set", res.Number)
	if len(res.Warnings) > 0 {
		text += " (warnings: " + strings.Join(res.Warnings, ", ") + ")"
	}
	return textResult(text), nil
}

type removeBreakpointParams struct {
	sessionParams
	Number int    `json:"number,omitempty" mcp:"breakpoint number, as returned by set_breakpoint"`
	Spec   string `json:"spec,omitempty" mcp:"original spec string, e.g. \"break app.rb:10\""`
}

func (s *bridgeServer) removeBreakpoint(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[removeBreakpointParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}

	a := params.Arguments
	switch {
	case a.Spec != "":
		if err := info.Session.RemoveBreakpointSpec(breakpoint.Spec(a.Spec), defaultOpTimeout); err != nil {
			return errResult(err), nil
		}
	case a.Number != 0:
		if err := info.Session.RemoveBreakpoint(a.Number, defaultOpTimeout); err != nil {
			return errResult(err), nil
		}
	default:
		return errResult(rerr.New(rerr.KindProtocol, "remove_breakpoint", "either number or spec is required")), nil
	}
	return textResult("Breakpoint removed."), nil
}

func outcomeText(outcome interface {
	String() string
}, text string) string {
	return fmt.Sprintf("%s\n%s", outcome.String(), text)
}

func (s *bridgeServer) continueExecution(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[sessionParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	outcome, err := info.Session.ContinueExecution(wire.ContinueTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(outcomeText(outcome.Kind, outcome.Text)), nil
}

func (s *bridgeServer) step(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[sessionParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	outcome, err := info.Session.Step(defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(outcomeText(outcome.Kind, outcome.Text)), nil
}

func (s *bridgeServer) next(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[sessionParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	outcome, err := info.Session.NextLine(defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(outcomeText(outcome.Kind, outcome.Text)), nil
}

func (s *bridgeServer) finish(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[sessionParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	outcome, err := info.Session.Finish(wire.ContinueTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(outcomeText(outcome.Kind, outcome.Text)), nil
}

type runDebugCommandParams struct {
	sessionParams
	Command string `json:"command" mcp:"raw rdbg command text"`
}

func (s *bridgeServer) runDebugCommand(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[runDebugCommandParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	out, err := info.Session.RunDebugCommand(params.Arguments.Command, defaultOpTimeout)
	if err != nil {
		return errResult(err), nil
	}
	return textResult(out), nil
}

type disconnectParams struct {
	sessionParams
	Force bool `json:"force,omitempty" mcp:"drop the socket immediately without cleanup"`
}

func (s *bridgeServer) disconnect(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[disconnectParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	if err := s.registry.Disconnect(info.ID, params.Arguments.Force); err != nil {
		return errResult(err), nil
	}
	return textResult("Disconnected " + info.ID), nil
}

type triggerRequestParams struct {
	sessionParams
	Method string `json:"method" mcp:"HTTP method, e.g. GET"`
	URL    string `json:"url" mcp:"request URL against the debugged app"`
}

func (s *bridgeServer) triggerRequest(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[triggerRequestParams]) (*mcp.CallToolResultFor[any], error) {
	info, err := s.resolve(params.Arguments.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	pending := info.Session.TriggerRequest(params.Arguments.Method, params.Arguments.URL)
	// Give the request a moment to land before reporting "pending" — most
	// callers immediately follow up with continue_execution, which polls
	// pending.Done() itself, so this is advisory only.
	time.Sleep(10 * time.Millisecond)
	if pending.Done() {
		status, body, err := pending.Result()
		if err != nil {
			return textResult(fmt.Sprintf("Request failed: %v", err)), nil
		}
		return textResult(fmt.Sprintf("status=%d\n%s", status, body)), nil
	}
	return textResult("Request in flight; call continue_execution to resume the target and wait for it."), nil
}
