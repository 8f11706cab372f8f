package rerr

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyNetErr_Nil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, ClassifyNetErr("read_line", nil))
}

func TestClassifyNetErr_OpErrorRefused(t *testing.T) {
	t.Parallel()
	opErr := &net.OpError{Op: "dial", Net: "unix", Err: syscall.ECONNREFUSED}
	got := ClassifyNetErr("open", opErr)
	assert.Equal(t, KindConnection, got.Kind)
}

func TestClassifyNetErr_DNSError(t *testing.T) {
	t.Parallel()
	dnsErr := &net.DNSError{Err: "no such host", Name: "target"}
	got := ClassifyNetErr("open", dnsErr)
	assert.Equal(t, KindConnection, got.Kind)
}

func TestClassifyNetErr_DeadlineExceeded(t *testing.T) {
	t.Parallel()
	got := ClassifyNetErr("read_line", context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, got.Kind)
}

func TestClassifyNetErr_ConnectionRefusedString(t *testing.T) {
	t.Parallel()
	got := ClassifyNetErr("open", errors.New("dial unix /tmp/rdbg.sock: connect: connection refused"))
	assert.Equal(t, KindConnection, got.Kind)
}

func TestClassifyNetErr_Unrelated(t *testing.T) {
	t.Parallel()
	got := ClassifyNetErr("send_command", errors.New("unexpected token"))
	assert.Equal(t, KindProtocol, got.Kind)
}

func TestError_IsSentinel(t *testing.T) {
	t.Parallel()
	err := New(KindTimeout, "send_command", "deadline exceeded")
	assert.ErrorIs(t, err, Timeout)
	assert.False(t, errors.Is(err, Connection))
}
