package linesdk

import "sync"

// TokenUpdated is published after a new token has been stored. Old is nil
// when there was no previous token.
type TokenUpdated struct {
	New *AccessToken
	Old *AccessToken
}

// TokenRemoved is published after the current token has been deleted.
type TokenRemoved struct {
	Token *AccessToken
}

type handler[T any] struct {
	id int
	fn func(T)
}

// Events is a registry of token change observers. Handlers run
// synchronously on the goroutine that changed the store, in registration
// order, and must not block.
type Events struct {
	mu      sync.RWMutex
	nextID  int
	updated []handler[TokenUpdated]
	removed []handler[TokenRemoved]
}

// NewEvents returns an empty registry.
func NewEvents() *Events {
	return &Events{}
}

// OnTokenUpdated registers fn and returns a function that unregisters it.
func (e *Events) OnTokenUpdated(fn func(TokenUpdated)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.updated = append(e.updated, handler[TokenUpdated]{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.updated = without(e.updated, id)
	}
}

// OnTokenRemoved registers fn and returns a function that unregisters it.
func (e *Events) OnTokenRemoved(fn func(TokenRemoved)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.removed = append(e.removed, handler[TokenRemoved]{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.removed = without(e.removed, id)
	}
}

func (e *Events) publishUpdated(ev TokenUpdated) {
	e.mu.RLock()
	hs := append([]handler[TokenUpdated](nil), e.updated...)
	e.mu.RUnlock()

	for _, h := range hs {
		h.fn(ev)
	}
}

func (e *Events) publishRemoved(ev TokenRemoved) {
	e.mu.RLock()
	hs := append([]handler[TokenRemoved](nil), e.removed...)
	e.mu.RUnlock()

	for _, h := range hs {
		h.fn(ev)
	}
}

func without[T any](hs []handler[T], id int) []handler[T] {
	out := hs[:0:0]
	for _, h := range hs {
		if h.id != id {
			out = append(out, h)
		}
	}

	return out
}
