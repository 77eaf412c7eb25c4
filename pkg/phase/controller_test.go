package phase

import (
	"testing"

	"github.com/turnkit/voicecore/pkg/config"
)

func TestController_RequireAllNeedsEverySignal(t *testing.T) {
	pp := config.PhaseProfile{
		Transitions: []config.PhaseTransition{
			{From: "greeting", To: "part1", TriggerSignals: []string{"a", "b"}, RequireAll: true},
		},
	}
	c := New(pp)

	if _, ok := c.Evaluate("greeting", map[string]bool{"a": true}); ok {
		t.Fatalf("expected no transition with only one of two required signals")
	}
	tr, ok := c.Evaluate("greeting", map[string]bool{"a": true, "b": true})
	if !ok || tr.To != "part1" {
		t.Fatalf("expected transition to part1 once both signals present")
	}
}

func TestController_AnyOfFiresOnFirstMatch(t *testing.T) {
	pp := config.PhaseProfile{
		Transitions: []config.PhaseTransition{
			{From: "greeting", To: "part1", TriggerSignals: []string{"a", "b"}, RequireAll: false},
		},
	}
	c := New(pp)

	tr, ok := c.Evaluate("greeting", map[string]bool{"b": true})
	if !ok || tr.To != "part1" {
		t.Fatalf("expected transition on any-of match")
	}
}

func TestController_FirstDeclaredWinsOnTie(t *testing.T) {
	pp := config.PhaseProfile{
		Transitions: []config.PhaseTransition{
			{From: "greeting", To: "part1", TriggerSignals: []string{"a"}},
			{From: "greeting", To: "part2", TriggerSignals: []string{"a"}},
		},
	}
	c := New(pp)

	tr, ok := c.Evaluate("greeting", map[string]bool{"a": true})
	if !ok || tr.To != "part1" {
		t.Fatalf("expected first-declared transition to win, got %+v", tr)
	}
}
