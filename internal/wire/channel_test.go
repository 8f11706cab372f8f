package wire

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brennhill/rdbgbridge/internal/transport"
)

func listenLoopback(t *testing.T) (net.Listener, transport.Target) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	return ln, transport.Target{Host: "127.0.0.1", Port: addr.Port}
}

func TestChannel_SendCommand(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		require.Equal(t, "p 1+1\n", line)
		_, _ = conn.Write([]byte("2\n(rdbg)\n"))
	}()

	conn, err := transport.Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer conn.Close()

	ch := NewChannel(conn, NewStateTracker(), nil, nil)
	out, err := ch.SendCommand("p 1+1", time.Second)
	require.NoError(t, err)
	require.Equal(t, "2", out)
}

func TestChannel_SendCommand_SentinelNotMistakenForEcho(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		_, _ = r.ReadString('\n')
		// First line back happens to match the sentinel pattern itself
		// (as an echoed prompt from the previous command); it must not
		// terminate the wait.
		_, _ = conn.Write([]byte("(rdbg)\nok\n(rdbg)\n"))
	}()

	conn, err := transport.Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer conn.Close()

	ch := NewChannel(conn, NewStateTracker(), nil, nil)
	out, err := ch.SendCommand("step", time.Second)
	require.NoError(t, err)
	require.Equal(t, "(rdbg)\nok", out)
}

func TestChannel_SendCommand_Timeout(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(500 * time.Millisecond)
	}()

	conn, err := transport.Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer conn.Close()

	ch := NewChannel(conn, NewStateTracker(), nil, nil)
	_, err = ch.SendCommand("p 1", 50*time.Millisecond)
	require.Error(t, err)
}

func TestChannel_WaitPaused_AlreadyPaused(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(200 * time.Millisecond)
		}
	}()

	conn, err := transport.Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer conn.Close()

	tracker := NewStateTracker()
	tracker.Observe(`Stop by #1  BP - Line  /app.rb:3 (line)`)
	require.True(t, tracker.Snapshot().Paused)

	ch := NewChannel(conn, tracker, nil, nil)
	out, err := ch.WaitPaused(time.Second)
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestChannel_SendContinue_StopsOnBreakpoint(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		require.Equal(t, "c\n", line)
		_, _ = conn.Write([]byte("Stop by #2  BP - Line  /app.rb:7 (line)\n"))
	}()

	conn, err := transport.Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer conn.Close()

	ch := NewChannel(conn, NewStateTracker(), nil, nil)
	res, err := ch.SendContinue(time.Second, nil)
	require.NoError(t, err)
	require.False(t, res.Exited)
	require.False(t, res.Interrupted)
}

func TestChannel_SendContinue_Interrupted(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	conn, err := transport.Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer conn.Close()

	ch := NewChannel(conn, NewStateTracker(), nil, nil)
	var calls int
	res, err := ch.SendContinue(2*time.Second, func() bool {
		calls++
		return calls > 2
	})
	require.NoError(t, err)
	require.True(t, res.Interrupted)
}

func TestStateTracker_ProcessExited(t *testing.T) {
	t.Parallel()
	tr := NewStateTracker()
	tr.Observe("exited? [Y/n]")
	require.True(t, tr.Snapshot().ProcessExited)
}

func TestStateTracker_TrapContext(t *testing.T) {
	t.Parallel()
	tr := NewStateTracker()
	tr.Observe("stopped by signal:SIGURG")
	require.True(t, tr.Snapshot().TrapContext)
	tr.ClearTrapContext()
	require.False(t, tr.Snapshot().TrapContext)
}
