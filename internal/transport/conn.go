package transport

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/brennhill/rdbgbridge/internal/rerr"
	"github.com/brennhill/rdbgbridge/internal/rlog"
)

// Conn is one open WireTransport connection. It is safe for concurrent
// Write and ReadLine calls from different goroutines (the typical shape is
// one writer — CommandChannel — and one reader — the StateTracker's
// dedicated reader goroutine — sharing a Conn), but only one goroutine may
// call ReadLine at a time; the bridge never needs two.
type Conn struct {
	target Target
	log    rlog.Logger

	nc net.Conn
	br *bufio.Reader

	mu     sync.Mutex
	closed bool

	// Banner holds unsolicited lines observed before the first command's
	// response — the handshake banner of spec §4.1 ("the transport
	// performs a handshake exchange ... these are buffered and surfaced
	// via the first operation that observes them"). ReadLine never
	// returns these automatically; DrainBanner pops them.
	bannerMu sync.Mutex
	banner   []string
}

// Open dials the target and returns a Conn, or a *rerr.Error classified by
// rerr.ClassifyNetErr (KindConnection for refused/unreachable targets,
// KindTimeout for an elapsed deadline).
func Open(ctx context.Context, target Target, log rlog.Logger) (*Conn, error) {
	if log == nil {
		log = rlog.Default()
	}
	d := net.Dialer{}
	nc, err := d.DialContext(ctx, target.network(), target.address())
	if err != nil {
		log.Debug("transport open failed", "target", target.String(), "err", err)
		return nil, rerr.ClassifyNetErr("open", err)
	}
	log.Info("transport opened", "target", target.String())
	return &Conn{
		target: target,
		log:    log,
		nc:     nc,
		br:     bufio.NewReader(nc),
	}, nil
}

// Write sends a single command. Spec §4.1: "write never buffers partial
// commands: each command is a single write ending in \n." The caller is
// responsible for appending "\n"; Write does not add it, so control
// commands that must NOT be newline-terminated (there are none in this
// protocol) stay representable.
func (c *Conn) Write(b []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return rerr.New(rerr.KindConnection, "write", "transport is closed")
	}
	if _, err := c.nc.Write(b); err != nil {
		c.log.Debug("transport write failed", "err", err)
		return rerr.ClassifyNetErr("write", err)
	}
	return nil
}

// ReadLine blocks until a line is available or the deadline passes,
// stripping ANSI CSI sequences before returning it (spec §4.1). The
// trailing newline is not included.
func (c *Conn) ReadLine(deadline time.Time) (string, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return "", rerr.New(rerr.KindConnection, "read_line", "transport is closed")
	}
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return "", rerr.Wrap(rerr.KindConnection, "read_line", err)
	}
	line, err := c.br.ReadString('\n')
	if err != nil {
		if line == "" {
			classified := rerr.ClassifyNetErr("read_line", err)
			if classified.Kind == rerr.KindConnection {
				c.markClosed()
			}
			return "", classified
		}
		// Partial line before EOF/deadline: still useful to the caller
		// as buffered diagnostic text, but report the error.
		return stripANSI(strings.TrimRight(line, "\r\n")), rerr.ClassifyNetErr("read_line", err)
	}
	return stripANSI(strings.TrimRight(line, "\r\n")), nil
}

// PushBanner records an unsolicited line observed before any command was
// sent, for later retrieval by DrainBanner.
func (c *Conn) PushBanner(line string) {
	c.bannerMu.Lock()
	c.banner = append(c.banner, line)
	c.bannerMu.Unlock()
}

// DrainBanner returns and clears any buffered handshake banner lines.
func (c *Conn) DrainBanner() []string {
	c.bannerMu.Lock()
	defer c.bannerMu.Unlock()
	if len(c.banner) == 0 {
		return nil
	}
	out := c.banner
	c.banner = nil
	return out
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Close is idempotent, per spec §4.1.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.log.Info("transport closed", "target", c.target.String())
	return c.nc.Close()
}

// Closed reports whether the transport has transitioned to its terminal
// closed state (spec §4.1: "unrecoverable connection errors set the
// transport into a closed state").
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Target returns the endpoint this connection was opened against.
func (c *Conn) Target() Target { return c.target }
