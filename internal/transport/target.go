// Package transport implements WireTransport (spec §4.1): byte-level
// framing over a TCP or Unix-domain socket to a debugger endpoint, with
// line-oriented reads, ANSI stripping, and a handshake-banner buffer.
package transport

import "fmt"

// Target names a debugger endpoint: either a Unix-domain socket path or a
// TCP host+port. Exactly one of Path or (Host, Port) should be set; Remote
// reports which.
type Target struct {
	Path string // Unix-domain socket path, e.g. "/run/rdbg-12345"
	Host string // TCP host, e.g. "127.0.0.1"
	Port int    // TCP port
}

// Remote reports whether this target is a TCP endpoint (spec §3: "remote
// ≡ TCP").
func (t Target) Remote() bool { return t.Path == "" }

func (t Target) String() string {
	if t.Remote() {
		return fmt.Sprintf("%s:%d", t.Host, t.Port)
	}
	return t.Path
}

func (t Target) network() string {
	if t.Remote() {
		return "tcp"
	}
	return "unix"
}

func (t Target) address() string {
	if t.Remote() {
		return fmt.Sprintf("%s:%d", t.Host, t.Port)
	}
	return t.Path
}
