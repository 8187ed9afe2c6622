package liveupdate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDuplicateRegistrations(t *testing.T) {
	r := NewRegistry()
	var calls []string
	a := ListenerFunc(func(Event) { calls = append(calls, "a") })
	b := ListenerFunc(func(Event) { calls = append(calls, "b") })

	r.On("file.deleted", a)
	r.On("file.deleted", b)
	r.On("file.deleted", a)

	r.Dispatch(Event{Type: "file.deleted"})
	if diff := cmp.Diff([]string{"a", "b", "a"}, calls); diff != "" {
		t.Fatalf("dispatch order mismatch (-want +got):\n%s", diff)
	}

	calls = nil
	require.True(t, r.Off("file.deleted", a))
	r.Dispatch(Event{Type: "file.deleted"})
	if diff := cmp.Diff([]string{"b", "a"}, calls); diff != "" {
		t.Fatalf("off must remove only the first registration (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, r.Count("file.deleted"))
}

func TestRegistryOffUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Off("x", ListenerFunc(func(Event) {})))
}

func TestRegistryExactTypeOnly(t *testing.T) {
	r := NewRegistry()
	called := false
	r.On("import.progress", ListenerFunc(func(Event) { called = true }))

	r.Dispatch(Event{Type: "import.complete"})
	assert.False(t, called)
}

func TestRegistryCollectsFailures(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	var reached bool
	failing := NewListener(func(Event) error { return boom })
	panicking := ListenerFunc(func(Event) { panic("bad listener") })
	last := ListenerFunc(func(Event) { reached = true })
	r.On("x", failing)
	r.On("x", panicking)
	r.On("x", last)

	results := r.Dispatch(Event{Type: "x"})
	require.Len(t, results, 3)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.ErrorContains(t, results[1].Err, "bad listener")
	assert.NoError(t, results[2].Err)
	assert.Same(t, last, results[2].Listener)
	assert.True(t, reached)
}
