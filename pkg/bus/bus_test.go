package bus

import (
	"testing"

	"github.com/turnkit/voicecore/pkg/core"
)

func TestBus_NamedListenerReceivesMatchingSignal(t *testing.T) {
	b := New(nil)
	got := 0
	b.Subscribe("conversation.interrupted", func(s core.Signal) { got++ })
	b.Subscribe("other.signal", func(s core.Signal) { t.Fatalf("unexpected invocation") })

	b.Publish(core.Signal{Name: "conversation.interrupted"})
	if got != 1 {
		t.Fatalf("expected listener invoked once, got %d", got)
	}
}

func TestBus_UniversalListenerSeesEverySignal(t *testing.T) {
	b := New(nil)
	seen := []string{}
	b.SubscribeAll(func(s core.Signal) { seen = append(seen, s.Name) })

	b.Publish(core.Signal{Name: "a"})
	b.Publish(core.Signal{Name: "b"})

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("unexpected universal listener trace: %v", seen)
	}
}

func TestBus_PanicIsolatedPerListener(t *testing.T) {
	b := New(nil)
	secondRan := false
	b.Subscribe("x", func(s core.Signal) { panic("boom") })
	b.Subscribe("x", func(s core.Signal) { secondRan = true })

	b.Publish(core.Signal{Name: "x"})

	if !secondRan {
		t.Fatalf("expected second listener to still run after first panicked")
	}
}

func TestBus_ZeroListenersIsNoOp(t *testing.T) {
	b := New(nil)
	b.Publish(core.Signal{Name: "nobody.listens"})
}
