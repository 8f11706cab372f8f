package rerr

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// ClassifyNetErr maps a raw network/syscall error into a Kind: KindTimeout
// for an elapsed deadline; KindConnection for EOF, refused, reset, broken
// pipe, unreachable host/network, DNS failure, or a closed connection; and
// KindProtocol for anything else. Refused, unreachable, broken and closed
// are not distinguished from each other — all are KindConnection, with the
// original error kept as the wrapped cause. Unlike the teacher's
// IsConnectionError (a yes/no check), this separates timeouts from
// connection failures.
//
// Modeled on the teacher's net.OpError/net.DNSError type-switch in
// internal/bridge (conn.go's IsConnectionError) and on the errno-family
// classification in bassosimone-nop/errclass, but expressed as syscall.Errno
// comparisons (portable across the unix build) instead of a separate
// per-OS constant table, since the bridge only needs to distinguish a
// handful of outcomes rather than label every errno.
func ClassifyNetErr(op string, err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, io.EOF) {
		return New(KindConnection, op, "connection closed").WithFinalOutput("")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return New(KindTimeout, op, "deadline exceeded")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(KindTimeout, op, "operation timed out")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return Wrap(KindConnection, op, err)
		}
		if errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.EPIPE) {
			return Wrap(KindConnection, op, err)
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) || errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return Wrap(KindConnection, op, err)
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Wrap(KindConnection, op, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "use of closed network connection") {
		return Wrap(KindConnection, op, err)
	}

	return Wrap(KindProtocol, op, err)
}
