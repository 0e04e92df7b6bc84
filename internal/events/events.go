// Package events implements the small synchronous pub/sub bus the download
// coordinator uses to report its progress. It has no buffering and no
// delivery guarantees beyond "called synchronously, in subscription order,
// on whichever coordinator goroutine emits the event" (the probe, a part
// worker, or the in-order writer) — callers that need concurrency
// safety around their own state must provide it themselves, same as the
// coordinator does for everything else.
package events

import (
	"reflect"
	"sync"
)

// Name identifies one of the events the coordinator emits.
type Name string

const (
	// ObjectDownloading fires once, after the probe resolves the object's
	// size (and, in native-part mode, its part count).
	ObjectDownloading Name = "object:downloading"
	// PartDownloading fires each time a part's GET is issued.
	PartDownloading Name = "part:downloading"
	// PartDownloaded fires each time a part's GET succeeds and its bytes
	// are resident in memory.
	PartDownloaded Name = "part:downloaded"
	// PartWriting fires immediately before a part's bytes are handed to
	// the sink.
	PartWriting Name = "part:writing"
	// PartDone fires once a part's write has been accepted (possibly
	// buffered) by the sink.
	PartDone Name = "part:done"
)

// ObjectPayload is delivered with ObjectDownloading.
type ObjectPayload struct {
	ObjectSize int64
	PartsCount int // number of parts the download is split into; at least 1
}

// PartPayload is delivered with every part:* event.
type PartPayload struct {
	PartNo int
}

// Listener receives an event payload. The payload is one of ObjectPayload
// or PartPayload depending on Name; listeners for part:* events can assume
// PartPayload without a type switch.
type Listener func(payload any)

// Emitter is an embeddable, mutex-protected on/once/off/emit bus.
type Emitter struct {
	mu   sync.Mutex
	subs map[Name][]*subscription
}

type subscription struct {
	fn   Listener
	once bool
	off  bool
}

// On registers fn to be called every time name fires.
func (e *Emitter) On(name Name, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[Name][]*subscription)
	}
	e.subs[name] = append(e.subs[name], &subscription{fn: fn})
}

// Once registers fn to be called the next time name fires, then removed.
func (e *Emitter) Once(name Name, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[Name][]*subscription)
	}
	e.subs[name] = append(e.subs[name], &subscription{fn: fn, once: true})
}

// Off removes every listener registered for name equal to fn. Listener
// is a function value, so this only works reliably for listeners that were
// saved by the caller and passed back verbatim; Off is mostly useful for
// Once-style cleanup callers want to cancel early.
func (e *Emitter) Off(name Name, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.subs[name]
	for _, s := range subs {
		if sameFunc(s.fn, fn) {
			s.off = true
		}
	}
}

// Emit calls every live listener registered for name, in registration
// order, synchronously on the calling goroutine.
func (e *Emitter) Emit(name Name, payload any) {
	e.mu.Lock()
	subs := append([]*subscription(nil), e.subs[name]...)
	e.mu.Unlock()

	var fired []*subscription
	for _, s := range subs {
		if s.off {
			continue
		}
		s.fn(payload)
		if s.once {
			fired = append(fired, s)
		}
	}
	if len(fired) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	remaining := e.subs[name][:0]
	for _, s := range e.subs[name] {
		keep := true
		for _, f := range fired {
			if f == s {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, s)
		}
	}
	e.subs[name] = remaining
}

// sameFunc compares two Listener values by the address of their underlying
// code, since Go forbids == on func values directly. Closures created from
// the same function literal share that code address and so compare equal,
// even when they capture different variables; closures from different
// literals never compare equal even if they do the same thing.
func sameFunc(a, b Listener) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
