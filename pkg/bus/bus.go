// Package bus implements the synchronous Signal fan-out described in
// spec.md §4.5: listeners are invoked inline on the emitting goroutine, a
// panicking listener never takes down the event loop, and a listener must
// never re-enter the reducer synchronously (it may only enqueue a new Event
// if it wants to influence future behavior).
package bus

import (
	"sync"

	"github.com/turnkit/voicecore/pkg/core"
	"github.com/turnkit/voicecore/pkg/orchestrator"
)

// Listener receives a fanned-out Signal. It must not block for long; the Bus
// calls listeners synchronously and in registration order.
type Listener func(core.Signal)

// Bus is a synchronous, panic-isolated Signal fan-out point. The zero value
// is not usable; construct with New.
type Bus struct {
	mu        sync.RWMutex
	named     map[string][]Listener
	universal []Listener
	logger    orchestrator.Logger
}

// New builds an empty Bus. A nil logger is replaced with a no-op logger.
func New(logger orchestrator.Logger) *Bus {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Bus{
		named:  make(map[string][]Listener),
		logger: logger,
	}
}

// Subscribe registers a Listener for one Signal name.
func (b *Bus) Subscribe(name string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.named[name] = append(b.named[name], l)
}

// SubscribeAll registers a Listener invoked for every Signal regardless of
// name, after the name-specific listeners for that Signal have run.
func (b *Bus) SubscribeAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.universal = append(b.universal, l)
}

// Publish fans a Signal out to every matching listener. A Signal with zero
// registered listeners is a complete no-op: per spec.md §6 "the system is
// functionally complete with zero listeners registered."
func (b *Bus) Publish(sig core.Signal) {
	b.mu.RLock()
	named := append([]Listener(nil), b.named[sig.Name]...)
	universal := append([]Listener(nil), b.universal...)
	b.mu.RUnlock()

	for _, l := range named {
		b.invoke(l, sig)
	}
	for _, l := range universal {
		b.invoke(l, sig)
	}
}

// PublishAll fans out a batch of Signals in order.
func (b *Bus) PublishAll(signals []core.Signal) {
	for _, sig := range signals {
		b.Publish(sig)
	}
}

func (b *Bus) invoke(l Listener, sig core.Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("signal listener panicked", "signal", sig.Name, "recover", r)
		}
	}()
	l(sig)
}
