package phase

import (
	"github.com/turnkit/voicecore/pkg/config"
	"github.com/turnkit/voicecore/pkg/core"
)

// Controller evaluates PhaseTransition rules against a phase's accumulated
// phase_emitted_signals. It holds no State itself; the event loop owns that
// and calls Evaluate after merging each round of extracted signals in.
type Controller struct {
	pp config.PhaseProfile
}

// New builds a Controller for the given PhaseProfile.
func New(pp config.PhaseProfile) *Controller {
	return &Controller{pp: pp}
}

// Evaluate returns the first PhaseTransition rule (in declaration order) out
// of currentPhaseID whose trigger condition is satisfied by emitted, or
// false if none fire yet. "First declared wins" resolves ties when more than
// one rule could match.
func (c *Controller) Evaluate(currentPhaseID string, emitted map[string]bool) (config.PhaseTransition, bool) {
	for _, t := range c.pp.TransitionsFrom(currentPhaseID) {
		if satisfied(t, emitted) {
			return t, true
		}
	}
	return config.PhaseTransition{}, false
}

func satisfied(t config.PhaseTransition, emitted map[string]bool) bool {
	if len(t.TriggerSignals) == 0 {
		return false
	}
	if t.RequireAll {
		for _, name := range t.TriggerSignals {
			if !emitted[name] {
				return false
			}
		}
		return true
	}
	for _, name := range t.TriggerSignals {
		if emitted[name] {
			return true
		}
	}
	return false
}

// SignalsToEvent builds the PhaseTransition core.Event for targetPhaseID
// that drives reduce(), once the Controller has determined a transition
// fires. Callers are responsible for merging the raw extracted
// signal payloads into the loop's phase_emitted_signals set before calling
// Evaluate; this helper only builds the resulting Event.
func SignalsToEvent(targetPhaseID string) core.Event {
	return core.Event{Kind: core.EventPhaseTransition, TargetPhaseID: targetPhaseID}
}
