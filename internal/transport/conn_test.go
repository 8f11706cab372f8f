package transport

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) (net.Listener, Target) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	return ln, Target{Host: "127.0.0.1", Port: addr.Port}
}

func TestConn_WriteReadLine(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		require.NoError(t, err)
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "p 1+1\n", line)
		_, _ = conn.Write([]byte("\x1b[32m2\x1b[0m\n(rdbg)\n"))
	}()

	c, err := Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Write([]byte("p 1+1\n")))

	line, err := c.ReadLine(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	require.Equal(t, "2", line, "ANSI CSI sequences must be stripped")

	line, err = c.ReadLine(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	require.Equal(t, "(rdbg)", line)

	<-serverDone
}

func TestConn_ReadLineDeadline(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(time.Second)
	}()

	c, err := Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ReadLine(time.Now().Add(20 * time.Millisecond))
	require.Error(t, err)
}

func TestConn_CloseIdempotent(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c, err := Open(context.Background(), target, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestConn_BannerBuffer(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
		}
	}()

	c, err := Open(context.Background(), target, nil)
	require.NoError(t, err)
	defer c.Close()

	c.PushBanner("DEBUGGER: wait for client connection at ...")
	c.PushBanner("(ruby:12345)")
	banner := c.DrainBanner()
	require.Equal(t, []string{"DEBUGGER: wait for client connection at ...", "(ruby:12345)"}, banner)
	require.Nil(t, c.DrainBanner())
}

func TestOpen_Refused(t *testing.T) {
	t.Parallel()
	ln, target := listenLoopback(t)
	ln.Close() // nothing listening now

	_, err := Open(context.Background(), target, nil)
	require.Error(t, err)
}
