package registry

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brennhill/rdbgbridge/internal/session"
	"github.com/brennhill/rdbgbridge/internal/transport"
)

// scriptedServer accepts any number of connections and, on each, echoes a canned response per
// line, terminated with the prompt sentinel, mirroring the technique used
// in internal/session's tests.
func scriptedServer(t *testing.T, responses map[string]string) transport.Target {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
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
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return transport.Target{Host: "127.0.0.1", Port: addr.Port}
}

func connectOpts(t *testing.T) session.ConnectOptions {
	target := scriptedServer(t, map[string]string{
		"config set width 500": "",
	})
	return session.ConnectOptions{Target: target}
}

func TestRegistry_ConnectAndClient(t *testing.T) {
	r := New(time.Hour, nil)
	defer r.Stop()

	info, err := r.Connect(context.Background(), ConnectRequest{
		SessionID: "s1",
		Options:   connectOpts(t),
	})
	require.NoError(t, err)
	require.Equal(t, "s1", info.ID)

	got, err := r.Client("s1")
	require.NoError(t, err)
	require.Same(t, info.Session, got.Session)
}

func TestRegistry_ClientSingleSessionImplicit(t *testing.T) {
	r := New(time.Hour, nil)
	defer r.Stop()

	_, err := r.Connect(context.Background(), ConnectRequest{SessionID: "only", Options: connectOpts(t)})
	require.NoError(t, err)

	got, err := r.Client("")
	require.NoError(t, err)
	require.Equal(t, "only", got.ID)
}

func TestRegistry_ClientUnknownReturnsSessionError(t *testing.T) {
	r := New(time.Hour, nil)
	defer r.Stop()

	_, err := r.Client("nope")
	require.Error(t, err)
}

func TestRegistry_PreConnectCleanupBySessionID(t *testing.T) {
	r := New(time.Hour, nil)
	defer r.Stop()

	first, err := r.Connect(context.Background(), ConnectRequest{SessionID: "dup", Options: connectOpts(t)})
	require.NoError(t, err)

	second, err := r.Connect(context.Background(), ConnectRequest{SessionID: "dup", Options: connectOpts(t)})
	require.NoError(t, err)

	require.NotSame(t, first.Session, second.Session)
	got, err := r.Client("dup")
	require.NoError(t, err)
	require.Same(t, second.Session, got.Session)
}

func TestRegistry_DisconnectRemovesSession(t *testing.T) {
	r := New(time.Hour, nil)
	defer r.Stop()

	_, err := r.Connect(context.Background(), ConnectRequest{SessionID: "s1", Options: connectOpts(t)})
	require.NoError(t, err)

	require.NoError(t, r.Disconnect("s1", true))
	_, err = r.Client("s1")
	require.Error(t, err)
}

func TestRegistry_RecordAndRestoreBreakpoints(t *testing.T) {
	target := scriptedServer(t, map[string]string{
		"config set width 500": "",
		"break app.rb:10":       "#1  BP - Line  app.rb:10 (line)",
	})
	r := New(time.Hour, nil)
	defer r.Stop()

	_, err := r.Connect(context.Background(), ConnectRequest{
		SessionID: "s1",
		Options:   session.ConnectOptions{Target: target},
	})
	require.NoError(t, err)

	r.RecordBreakpoint("s1", "break app.rb:10")
	results, err := r.RestoreBreakpoints("s1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
}

func TestRegistry_AcknowledgeWarning(t *testing.T) {
	r := New(time.Hour, nil)
	defer r.Stop()

	_, err := r.Connect(context.Background(), ConnectRequest{SessionID: "s1", Options: connectOpts(t)})
	require.NoError(t, err)

	require.Empty(t, r.AcknowledgedWarnings("s1"))
	r.AcknowledgeWarning("s1", "condition_syntax_invalid")
	require.True(t, r.AcknowledgedWarnings("s1")["condition_syntax_invalid"])
}

func TestRegistry_ReapIdleSession(t *testing.T) {
	r := New(5*time.Millisecond, nil)
	defer r.Stop()

	_, err := r.Connect(context.Background(), ConnectRequest{SessionID: "s1", Options: connectOpts(t)})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	r.reapPass()
	_, err = r.Client("s1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "reaped")
}

func TestRegistry_ReapProcessDied(t *testing.T) {
	// A process that has already run to completion gives us a PID the
	// kernel has freed, so session.Session.ProcessAlive reports false
	// without needing to kill anything ourselves.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	deadPID := cmd.Process.Pid

	target := scriptedServer(t, map[string]string{
		"config set width 500": fmt.Sprintf("(ruby:%d)", deadPID),
	})
	r := New(time.Hour, nil)
	defer r.Stop()

	_, err := r.Connect(context.Background(), ConnectRequest{
		SessionID: "s1",
		Options:   session.ConnectOptions{Target: target},
	})
	require.NoError(t, err)

	r.reapPass()
	_, err = r.Client("s1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "process_died")
}
