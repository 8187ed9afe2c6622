package liveupdate

import (
	"fmt"
	"sync"
)

// Listener wraps a callback so registrations can be compared by identity.
type Listener struct {
	fn func(Event) error
}

func NewListener(fn func(Event) error) *Listener {
	return &Listener{fn: fn}
}

// ListenerFunc adapts a callback that cannot fail.
func ListenerFunc(fn func(Event)) *Listener {
	return &Listener{fn: func(e Event) error {
		fn(e)
		return nil
	}}
}

type ListenerResult struct {
	Listener *Listener
	Err      error
}

// Registry maps event type names to listeners in registration order.
// Duplicate registrations are kept and each one is invoked.
type Registry struct {
	mu        sync.Mutex
	listeners map[string][]*Listener
}

func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string][]*Listener)}
}

func (r *Registry) On(typ string, l *Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.listeners[typ] = append(r.listeners[typ], l)
	r.mu.Unlock()
}

// Off removes the first registration of l for typ.
func (r *Registry) Off(typ string, l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.listeners[typ]
	for i, cur := range list {
		if cur == l {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(r.listeners, typ)
			} else {
				r.listeners[typ] = list
			}
			return true
		}
	}
	return false
}

func (r *Registry) Count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[typ])
}

func (r *Registry) Clear() {
	r.mu.Lock()
	r.listeners = make(map[string][]*Listener)
	r.mu.Unlock()
}

// Dispatch invokes every listener registered for the event's exact type and
// reports each outcome. A failing or panicking listener does not stop the
// ones after it.
func (r *Registry) Dispatch(evt Event) []ListenerResult {
	r.mu.Lock()
	list := append([]*Listener(nil), r.listeners[evt.Type]...)
	r.mu.Unlock()

	results := make([]ListenerResult, 0, len(list))
	for _, l := range list {
		results = append(results, ListenerResult{Listener: l, Err: invoke(l, evt)})
	}
	return results
}

func invoke(l *Listener, evt Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panic: %v", p)
		}
	}()
	if l.fn == nil {
		return nil
	}
	return l.fn(evt)
}
