// Package config defines the declarative Profile and PhaseProfile documents
// that parameterize a conversation's timing and interruption behavior, plus
// a yaml.v3-backed loader for both.
package config

// Authority governs who may interrupt an in-progress AI utterance.
type Authority string

const (
	AuthorityHuman   Authority = "human"
	AuthorityAi      Authority = "ai"
	AuthorityDefault Authority = "default"
)

// InitialSpeaker names which party opens a Profile's turn.
type InitialSpeaker string

const (
	SpeakerHuman InitialSpeaker = "human"
	SpeakerAi    InitialSpeaker = "ai"
)

// Profile is the immutable, declarative per-role timing and behavior
// configuration described by spec.md §3. Once loaded it is never mutated in
// place; a phase transition swaps in a different Profile value wholesale.
type Profile struct {
	ID              string         `yaml:"id"`
	DisplayName     string         `yaml:"display_name"`
	InitialSpeaker  InitialSpeaker `yaml:"initial_speaker"`
	VoiceID         string         `yaml:"voice_id"`
	MaxTokens       int            `yaml:"max_tokens"`
	Temperature     float64        `yaml:"temperature"`
	PauseMs         int64          `yaml:"pause_ms"`
	EndMs           int64          `yaml:"end_ms"`
	SafetyTimeoutMs int64          `yaml:"safety_timeout_ms"`

	InterruptionSensitivity float64   `yaml:"interruption_sensitivity"`
	Authority               Authority `yaml:"authority"`

	// HumanSpeakingLimitSec is a pointer so "unset" (nil) is distinguishable
	// from "0 seconds", per spec.md testable property 11.
	HumanSpeakingLimitSec *int64 `yaml:"human_speaking_limit_sec,omitempty"`

	Acknowledgments []string `yaml:"acknowledgments"`
	Instructions    string   `yaml:"instructions"`

	// Signals maps an advertised signal name to the description shown to the
	// LLM in its system prompt, per spec.md §4.2 step 4.
	Signals map[string]string `yaml:"signals"`
}

// Phase is one PhaseProfile phase: its embedded Profile plus the optional
// per-phase context text.
type Phase struct {
	Profile Profile `yaml:"profile"`
	Context string  `yaml:"context,omitempty"`
}

// PhaseTransition is a rule evaluated by the phase controller: a transition
// from `From` to `To` fires once the trigger_signals condition is satisfied
// against the active phase's accumulated phase_emitted_signals.
type PhaseTransition struct {
	From           string   `yaml:"from"`
	To             string   `yaml:"to"`
	TriggerSignals []string `yaml:"trigger_signals"`
	RequireAll     bool     `yaml:"require_all"`
}

// PhaseProfile is an ordered, named collection of Phases plus the
// transition rules between them.
type PhaseProfile struct {
	Phases        map[string]Phase  `yaml:"phases"`
	PhaseOrder    []string          `yaml:"phase_order"`
	Transitions   []PhaseTransition `yaml:"transitions"`
	InitialPhase  string            `yaml:"initial_phase"`
	GlobalContext string            `yaml:"global_context,omitempty"`
}

// InitialPhaseProfile returns the Profile of the PhaseProfile's initial
// phase, or the zero Profile plus false if the id is unknown.
func (pp PhaseProfile) InitialPhaseProfile() (Profile, bool) {
	ph, ok := pp.Phases[pp.InitialPhase]
	return ph.Profile, ok
}

// TransitionsFrom returns the PhaseTransition rules whose From matches the
// given phase id, in declaration order (the phase controller relies on
// "first declared wins" when more than one matches).
func (pp PhaseProfile) TransitionsFrom(phaseID string) []PhaseTransition {
	var out []PhaseTransition
	for _, t := range pp.Transitions {
		if t.From == phaseID {
			out = append(out, t)
		}
	}
	return out
}

// DefaultProfile is a standalone Profile usable without a PhaseProfile, for
// tests and simple single-phase deployments.
func DefaultProfile() Profile {
	return Profile{
		ID:                      "default",
		DisplayName:             "Default",
		InitialSpeaker:          SpeakerHuman,
		VoiceID:                "F1",
		MaxTokens:               512,
		Temperature:             0.7,
		PauseMs:                 600,
		EndMs:                   1200,
		SafetyTimeoutMs:         2500,
		InterruptionSensitivity: 0.5,
		Authority:               AuthorityDefault,
		HumanSpeakingLimitSec:   nil,
		Acknowledgments:         []string{"Got it.", "I see."},
		Instructions:            "You are a helpful and concise voice assistant. Use short sentences suitable for speech.",
		Signals:                 map[string]string{},
	}
}

// DefaultPhaseProfile wraps DefaultProfile in a single-phase PhaseProfile,
// useful as a fallback when no phases.yaml is configured.
func DefaultPhaseProfile() PhaseProfile {
	p := DefaultProfile()
	return PhaseProfile{
		Phases:       map[string]Phase{p.ID: {Profile: p}},
		PhaseOrder:   []string{p.ID},
		InitialPhase: p.ID,
	}
}
