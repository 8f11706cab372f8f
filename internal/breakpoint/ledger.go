// Package breakpoint implements BreakpointLedger (spec §4.7): a
// deduplicated bag of breakpoint specs used to restore breakpoints after
// a reconnect.
package breakpoint

import "sync"

// Spec is the agent-level string the bridge replays to recreate a
// breakpoint, e.g. "break app/users_controller.rb:15" or
// "catch ArgumentError", with an optional trailing condition clause
// (spec §3: BreakpointSpec).
type Spec string

// Setter is the collaborator a Ledger replays specs through; DebugSession
// satisfies it.
type Setter interface {
	SetBreakpointFromSpec(spec Spec) error
}

// RestoreResult is the per-spec outcome of a restore pass.
type RestoreResult struct {
	Spec Spec
	Err  error
}

// Ledger is a deduplicated, insertion-ordered bag of Specs.
type Ledger struct {
	mu    sync.Mutex
	order []Spec
	set   map[Spec]bool
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{set: make(map[Spec]bool)}
}

// Record inserts spec if not already present.
func (l *Ledger) Record(spec Spec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set[spec] {
		return
	}
	l.set[spec] = true
	l.order = append(l.order, spec)
}

// Remove deletes spec from the ledger, if present.
func (l *Ledger) Remove(spec Spec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set[spec] {
		return
	}
	delete(l.set, spec)
	for i, s := range l.order {
		if s == spec {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// RemoveMatching removes every recorded spec for which match returns true.
func (l *Ledger) RemoveMatching(match func(Spec) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.order[:0]
	for _, s := range l.order {
		if match(s) {
			delete(l.set, s)
			continue
		}
		kept = append(kept, s)
	}
	l.order = kept
}

// Clear empties the ledger. A subsequent Restore is a no-op.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = nil
	l.set = make(map[Spec]bool)
}

// Specs returns a snapshot of the recorded specs, in insertion order.
func (l *Ledger) Specs() []Spec {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Spec, len(l.order))
	copy(out, l.order)
	return out
}

// Restore replays every recorded spec against setter, collecting
// per-spec success/error — one failing spec (e.g. its file no longer
// exists) never aborts the rest (spec §4.7).
func (l *Ledger) Restore(setter Setter) []RestoreResult {
	specs := l.Specs()
	results := make([]RestoreResult, 0, len(specs))
	for _, spec := range specs {
		err := setter.SetBreakpointFromSpec(spec)
		results = append(results, RestoreResult{Spec: spec, Err: err})
	}
	return results
}
