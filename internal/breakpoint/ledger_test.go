package breakpoint

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSetter struct {
	applied []Spec
	failOn  Spec
}

func (r *recordingSetter) SetBreakpointFromSpec(spec Spec) error {
	if r.failOn != "" && spec == r.failOn {
		return errors.New("file no longer exists")
	}
	r.applied = append(r.applied, spec)
	return nil
}

func TestLedger_DedupOnInsert(t *testing.T) {
	l := New()
	l.Record("break a.rb:1")
	l.Record("break a.rb:1")
	l.Record("break b.rb:2")
	require.Equal(t, []Spec{"break a.rb:1", "break b.rb:2"}, l.Specs())
}

func TestLedger_RemoveAndRestore(t *testing.T) {
	l := New()
	l.Record("break a.rb:1")
	l.Record("break b.rb:2")
	l.Remove("break a.rb:1")
	require.Equal(t, []Spec{"break b.rb:2"}, l.Specs())

	setter := &recordingSetter{}
	l.Restore(setter)
	require.Equal(t, []Spec{"break b.rb:2"}, setter.applied)
}

func TestLedger_ClearThenRestoreIsNoop(t *testing.T) {
	l := New()
	l.Record("break a.rb:1")
	l.Clear()

	setter := &recordingSetter{}
	results := l.Restore(setter)
	require.Empty(t, results)
	require.Empty(t, setter.applied)
}

func TestLedger_RestoreCollectsPerSpecErrors(t *testing.T) {
	l := New()
	l.Record("break a.rb:1")
	l.Record("break gone.rb:9")
	l.Record("break b.rb:2")

	setter := &recordingSetter{failOn: "break gone.rb:9"}
	results := l.Restore(setter)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)
	require.Equal(t, []Spec{"break a.rb:1", "break b.rb:2"}, setter.applied)
}

func TestLedger_RemoveMatching(t *testing.T) {
	l := New()
	l.Record("break a.rb:1")
	l.Record("break a.rb:2")
	l.Record("catch RuntimeError")
	l.RemoveMatching(func(s Spec) bool { return strings.HasPrefix(string(s), "break a.rb") })
	require.Equal(t, []Spec{"catch RuntimeError"}, l.Specs())
}
