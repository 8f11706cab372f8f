// Package registry implements SessionRegistry (spec §4.6): many-session
// lifecycle management with pre-connect cleanup, an idle reaper, and a
// bounded recently-reaped diagnostic memory.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brennhill/rdbgbridge/internal/breakpoint"
	"github.com/brennhill/rdbgbridge/internal/rerr"
	"github.com/brennhill/rdbgbridge/internal/rlog"
	"github.com/brennhill/rdbgbridge/internal/session"
)

// Defaults, spec §4.6.
const (
	ReaperInterval    = 60 * time.Second
	RecentlyReapedTTL = 10 * time.Minute
)

// SessionInfo is the registry's record for one live session (spec §3).
type SessionInfo struct {
	ID               string
	Session          *session.Session
	ConnectedAt      time.Time
	LastActivityAt   time.Time
	Timeout          time.Duration
	AcknowledgedWarn map[string]bool
}

// reapedEntry is a bounded diagnostic memory entry (spec §3's
// recently-reaped map).
type reapedEntry struct {
	reason   string
	pid      int
	reapedAt time.Time
}

// ConnectRequest carries the options a tool's "connect" call supplies.
type ConnectRequest struct {
	SessionID          string // explicit id hint, optional
	PreCleanupPID      int    // 0 ≡ not supplied
	PreCleanupPort     int    // 0 ≡ not supplied
	Options            session.ConnectOptions
	Timeout            time.Duration
	RestoreBreakpoints bool
}

// Registry is SessionRegistry.
type Registry struct {
	mu             sync.Mutex
	sessions       map[string]*SessionInfo
	recentlyReaped map[string]reapedEntry
	ledgers        map[string]*breakpoint.Ledger // persists across a session's lifetime, keyed by id
	defaultTimeout time.Duration
	log            rlog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
	clock      func() time.Time
}

// New builds a Registry and starts its idle-reaper goroutine.
func New(defaultTimeout time.Duration, log rlog.Logger) *Registry {
	if log == nil {
		log = rlog.Default()
	}
	r := &Registry{
		sessions:       make(map[string]*SessionInfo),
		recentlyReaped: make(map[string]reapedEntry),
		ledgers:        make(map[string]*breakpoint.Ledger),
		defaultTimeout: defaultTimeout,
		log:            log,
		reaperStop:     make(chan struct{}),
		reaperDone:     make(chan struct{}),
		clock:          time.Now,
	}
	go r.reapLoop()
	return r
}

// Stop halts the reaper goroutine. Safe to call once.
func (r *Registry) Stop() {
	close(r.reaperStop)
	<-r.reaperDone
}

// sessionIDForPID derives a stable session id from a known PID. When the
// PID is unknown (a local Unix-domain target may not report one) a random
// id is synthesized instead, per spec §3's "otherwise assigned by the
// caller or synthesized".
func sessionIDForPID(pid int) string {
	if pid == 0 {
		return uuid.NewString()
	}
	return fmt.Sprintf("pid-%d", pid)
}

// Connect performs pre-connect cleanup, drives session.Connect, and
// inserts the resulting SessionInfo (spec §4.6).
func (r *Registry) Connect(ctx context.Context, req ConnectRequest) (*SessionInfo, error) {
	r.preConnectCleanup(req)

	opts := req.Options
	if req.RestoreBreakpoints && req.SessionID != "" {
		r.mu.Lock()
		if l, ok := r.ledgers[req.SessionID]; ok {
			opts.RestoreFrom = l
		}
		r.mu.Unlock()
	}

	sess, err := session.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Rule 4: a reconnect with no hints can still collide once the new
	// PID is known — the debugged process restarted under the same PID
	// while its prior SessionInfo was never explicitly disconnected.
	r.closeByPID(sess.PID(), req.SessionID)

	id := req.SessionID
	if id == "" {
		id = sessionIDForPID(sess.PID())
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	now := r.clock()
	info := &SessionInfo{
		ID:               id,
		Session:          sess,
		ConnectedAt:      now,
		LastActivityAt:   now,
		Timeout:          timeout,
		AcknowledgedWarn: make(map[string]bool),
	}

	r.mu.Lock()
	if _, ok := r.ledgers[id]; !ok {
		r.ledgers[id] = sess.Ledger()
	}
	r.sessions[id] = info
	delete(r.recentlyReaped, id)
	r.mu.Unlock()

	return info, nil
}

// preConnectCleanup applies the ordered match rules of spec §4.6,
// disconnecting any SessionInfo that matches.
func (r *Registry) preConnectCleanup(req ConnectRequest) {
	r.mu.Lock()
	var toRemove []string
	for id, info := range r.sessions {
		match := false
		if req.PreCleanupPID != 0 && info.Session.PID() == req.PreCleanupPID {
			match = true
		}
		if req.PreCleanupPort != 0 && info.Session.Target().Remote() && info.Session.Target().Port == req.PreCleanupPort {
			match = true
		}
		if req.SessionID != "" && id == req.SessionID {
			match = true
		}
		if match {
			toRemove = append(toRemove, id)
		}
	}
	var toClose []*session.Session
	for _, id := range toRemove {
		toClose = append(toClose, r.sessions[id].Session)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range toClose {
		_ = s.Disconnect(true)
	}
}

// closeByPID disconnects and removes any existing session whose target
// PID matches newPID, other than keepID itself (rule 4 of §4.6's
// pre-connect cleanup, applied once the new session's PID is known).
func (r *Registry) closeByPID(newPID int, keepID string) {
	if newPID == 0 {
		return // PID not learned; nothing to collide on
	}
	r.mu.Lock()
	var toClose []*session.Session
	for id, info := range r.sessions {
		if id == keepID {
			continue
		}
		if info.Session.PID() == newPID {
			toClose = append(toClose, info.Session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range toClose {
		_ = s.Disconnect(true)
	}
}

// Client resolves a session by id (spec §4.6's client operation). If id
// is empty and exactly one session exists, that session is returned.
func (r *Registry) Client(id string) (*SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		if len(r.sessions) == 1 {
			for _, info := range r.sessions {
				return info, nil
			}
		}
		return nil, rerr.New(rerr.KindSession, "client", "no session id given and not exactly one session is active")
	}

	if info, ok := r.sessions[id]; ok {
		return info, nil
	}
	if reaped, ok := r.recentlyReaped[id]; ok {
		ago := r.clock().Sub(reaped.reapedAt).Round(time.Second)
		return nil, rerr.Newf(rerr.KindSession, "client", "Session %s was reaped %s ago due to %s", id, ago, reaped.reason)
	}
	return nil, rerr.Newf(rerr.KindSession, "client", "session %s not found", id)
}

// Touch bumps last_activity_at for id. The tool handlers call this when
// they resolve a session, before the operation itself runs (spec §4.5).
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.sessions[id]; ok {
		now := r.clock()
		if now.After(info.LastActivityAt) {
			info.LastActivityAt = now
		}
	}
}

// Disconnect removes and disconnects the named session.
func (r *Registry) Disconnect(id string, force bool) error {
	r.mu.Lock()
	info, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return rerr.Newf(rerr.KindSession, "disconnect", "session %s not found", id)
	}
	return info.Session.Disconnect(force)
}

// DisconnectAll disconnects every live session.
func (r *Registry) DisconnectAll(force bool) {
	r.mu.Lock()
	infos := make([]*SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		infos = append(infos, info)
	}
	r.sessions = make(map[string]*SessionInfo)
	r.mu.Unlock()

	for _, info := range infos {
		_ = info.Session.Disconnect(force)
	}
}

// ActiveSessions returns snapshots of every live session.
func (r *Registry) ActiveSessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, *info)
	}
	return out
}

// CleanupDeadSessions probes each session for socket-closed / process
// died and reaps matches (spec §4.6).
func (r *Registry) CleanupDeadSessions() {
	r.mu.Lock()
	type pending struct {
		info   *SessionInfo
		reason string
	}
	var toReap []pending
	for _, info := range r.sessions {
		switch {
		case info.Session.Closed():
			toReap = append(toReap, pending{info, "socket_closed"})
		case !info.Session.ProcessAlive():
			toReap = append(toReap, pending{info, "process_died"})
		}
	}
	r.mu.Unlock()

	for _, p := range toReap {
		r.reap(p.info.ID, p.reason)
	}
}

// RecordBreakpoint adds spec to id's ledger.
func (r *Registry) RecordBreakpoint(id string, spec breakpoint.Spec) {
	r.mu.Lock()
	l, ok := r.ledgers[id]
	r.mu.Unlock()
	if ok {
		l.Record(spec)
	}
}

// ClearBreakpointSpecs empties id's ledger.
func (r *Registry) ClearBreakpointSpecs(id string) {
	r.mu.Lock()
	l, ok := r.ledgers[id]
	r.mu.Unlock()
	if ok {
		l.Clear()
	}
}

// RemoveBreakpointSpecsMatching removes every ledger entry for id that
// match matches.
func (r *Registry) RemoveBreakpointSpecsMatching(id string, match func(breakpoint.Spec) bool) {
	r.mu.Lock()
	l, ok := r.ledgers[id]
	r.mu.Unlock()
	if ok {
		l.RemoveMatching(match)
	}
}

// RestoreBreakpoints replays id's ledger against its live session.
func (r *Registry) RestoreBreakpoints(id string) ([]breakpoint.RestoreResult, error) {
	r.mu.Lock()
	info, ok := r.sessions[id]
	l := r.ledgers[id]
	r.mu.Unlock()
	if !ok {
		return nil, rerr.Newf(rerr.KindSession, "restore_breakpoints", "session %s not found", id)
	}
	if l == nil {
		return nil, nil
	}
	return l.Restore(info.Session), nil
}

// AcknowledgeWarning records that the agent has dismissed category for id.
func (r *Registry) AcknowledgeWarning(id, category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.sessions[id]; ok {
		info.AcknowledgedWarn[category] = true
	}
}

// AcknowledgedWarnings returns the set of categories the agent has
// dismissed for id.
func (r *Registry) AcknowledgedWarnings(id string) map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool)
	if info, ok := r.sessions[id]; ok {
		for k := range info.AcknowledgedWarn {
			out[k] = true
		}
	}
	return out
}

func (r *Registry) reapLoop() {
	defer close(r.reaperDone)
	ticker := time.NewTicker(ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.reaperStop:
			return
		case <-ticker.C:
			r.reapPass()
		}
	}
}

// reapPass snapshots the session list under the registry lock, probes
// each holder WITHOUT the lock, then re-acquires only to mutate (spec
// §5's reaper concurrency contract).
func (r *Registry) reapPass() {
	r.mu.Lock()
	snapshot := make([]*SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		snapshot = append(snapshot, info)
	}
	r.mu.Unlock()

	now := r.clock()
	for _, info := range snapshot {
		idle := now.Sub(info.LastActivityAt)
		reason := ""
		switch {
		case idle >= info.Timeout:
			reason = "idle_timeout"
		case info.Session.Closed():
			reason = "socket_closed"
		case !info.Session.ProcessAlive():
			reason = "process_died"
		}
		if reason != "" {
			r.reap(info.ID, reason)
		}
	}
	r.expireRecentlyReaped(now)
}

// reap removes id from the live set and records a recently-reaped
// diagnostic entry. It does not disconnect cleanly — a dead session is
// dead regardless of how (spec §7).
func (r *Registry) reap(id, reason string) {
	r.mu.Lock()
	info, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	r.recentlyReaped[id] = reapedEntry{reason: reason, pid: info.Session.PID(), reapedAt: r.clock()}
	r.mu.Unlock()

	_ = info.Session.Disconnect(true)
	r.log.Info("session reaped", "id", id, "reason", reason)
}

func (r *Registry) expireRecentlyReaped(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.recentlyReaped {
		if now.Sub(entry.reapedAt) >= RecentlyReapedTTL {
			delete(r.recentlyReaped, id)
		}
	}
}
