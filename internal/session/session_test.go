package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brennhill/rdbgbridge/internal/breakpoint"
	"github.com/brennhill/rdbgbridge/internal/transport"
)

// scriptedServer accepts one connection and, for each line it reads,
// writes back the corresponding scripted response (each response
// terminated with the prompt sentinel).
func scriptedServer(t *testing.T, responses map[string]string) transport.Target {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := line[:len(line)-1]
			resp, ok := responses[cmd]
			if !ok {
				resp = "nil"
			}
			fmt.Fprintf(conn, "%s\n(rdbg)\n", resp)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return transport.Target{Host: "127.0.0.1", Port: addr.Port}
}

func TestSession_ConnectConfiguresWidth(t *testing.T) {
	t.Parallel()
	target := scriptedServer(t, map[string]string{
		"config set width 500": "",
	})
	s, err := Connect(context.Background(), ConnectOptions{Target: target})
	require.NoError(t, err)
	defer s.conn.Close()
}

func TestSession_Evaluate(t *testing.T) {
	t.Parallel()
	target := scriptedServer(t, map[string]string{
		"config set width 500": "",
	})
	s, err := Connect(context.Background(), ConnectOptions{Target: target})
	require.NoError(t, err)
	defer s.conn.Close()

	// Any eval/p command gets the generic fallback "nil" from the
	// scripted server; exercise the shape of the calls rather than
	// exact Ruby output.
	res, err := s.Evaluate("1+1", time.Second)
	require.NoError(t, err)
	require.Equal(t, "nil", res.Value)
}

func TestSession_Evaluate_DedupesPPOutputAgainstValue(t *testing.T) {
	t.Parallel()
	evalCmd := wrapPayloadCommand(buildEvalWrapper("pp(5)"))
	target := scriptedServer(t, map[string]string{
		"config set width 500":         "",
		evalCmd:                        "5",
		"p " + evalStdoutVar:           `"5\n"`,
		"p " + evalErrVar + "&.message": "nil",
	})
	s, err := Connect(context.Background(), ConnectOptions{Target: target})
	require.NoError(t, err)
	defer s.conn.Close()

	// pp(5) both writes "5\n" to the captured stdout buffer and returns
	// 5, which the outer wrapper's own pp prints again as Value — the
	// captured stdout must be suppressed rather than shown twice.
	res, err := s.Evaluate("pp(5)", time.Second)
	require.NoError(t, err)
	require.Equal(t, "5", res.Value)
	require.Empty(t, res.CapturedStdout)
}

func TestSession_SetBreakpoint_Line(t *testing.T) {
	t.Parallel()
	target := scriptedServer(t, map[string]string{
		"config set width 500": "",
		"break app.rb:10":       "#3  BP - Line  app.rb:10 (line)",
	})
	s, err := Connect(context.Background(), ConnectOptions{Target: target})
	require.NoError(t, err)
	defer s.conn.Close()

	res, err := s.SetBreakpoint(BreakpointRequest{Kind: SpecLine, FileLine: "app.rb:10"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 3, res.Number)
	require.Contains(t, s.Ledger().Specs(), breakpoint.Spec("break app.rb:10"))
}

func TestSession_SetBreakpoint_OneShotNotRecordedInLedger(t *testing.T) {
	t.Parallel()
	target := scriptedServer(t, map[string]string{
		"config set width 500": "",
		"break app.rb:20":       "#4  BP - Line  app.rb:20 (line)",
	})
	s, err := Connect(context.Background(), ConnectOptions{Target: target})
	require.NoError(t, err)
	defer s.conn.Close()

	_, err = s.SetBreakpoint(BreakpointRequest{Kind: SpecLine, FileLine: "app.rb:20", OneShot: true}, time.Second)
	require.NoError(t, err)
	require.Empty(t, s.Ledger().Specs())
}

func TestSession_ContinueExecution_Exited(t *testing.T) {
	t.Parallel()
	target := scriptedServer(t, map[string]string{
		"config set width 500": "",
		"c":                    "exited? bye",
	})
	s, err := Connect(context.Background(), ConnectOptions{Target: target})
	require.NoError(t, err)
	defer s.conn.Close()

	outcome, err := s.ContinueExecution(time.Second)
	require.NoError(t, err)
	require.Equal(t, "exited", outcome.Kind.String())
}

func TestSession_RemoveBreakpointSpec(t *testing.T) {
	t.Parallel()
	target := scriptedServer(t, map[string]string{
		"config set width 500": "",
		"break app.rb:10":       "#1  BP - Line  app.rb:10 (line)",
		"info breakpoints":      "#1  BP - Line  app.rb:10 (line)",
		"delete 1":              "",
	})
	s, err := Connect(context.Background(), ConnectOptions{Target: target})
	require.NoError(t, err)
	defer s.conn.Close()

	_, err = s.SetBreakpoint(BreakpointRequest{Kind: SpecLine, FileLine: "app.rb:10"}, time.Second)
	require.NoError(t, err)

	err = s.RemoveBreakpointSpec(breakpoint.Spec("break app.rb:10"), time.Second)
	require.NoError(t, err)
	require.Empty(t, s.Ledger().Specs())
}
