package core

import (
	"time"

	"github.com/turnkit/voicecore/pkg/config"
)

// StateMachine is the reducer's top-level conversation state.
type StateMachine string

const (
	StateIdle     StateMachine = "Idle"
	StateSpeaking StateMachine = "Speaking"
	StatePausing  StateMachine = "Pausing"
)

// TurnEndReason records why a turn was ended, surfaced on the analytics
// record.
type TurnEndReason string

const (
	EndReasonNone          TurnEndReason = ""
	EndReasonSilence       TurnEndReason = "silence"
	EndReasonSafetyTimeout TurnEndReason = "safety_timeout"
	EndReasonLimitExceeded TurnEndReason = "limit_exceeded"
	EndReasonInterrupted   TurnEndReason = "interrupted"
)

// Authority is re-exported from pkg/config so reducer code and its callers
// share one vocabulary without every caller importing both packages.
type Authority = config.Authority

const (
	AuthorityHuman   = config.AuthorityHuman
	AuthorityAi      = config.AuthorityAi
	AuthorityDefault = config.AuthorityDefault
)

// State is the single-writer, mutable turn-taking state the reducer
// advances. It is owned exclusively by the event loop; producers and action
// handlers never hold a reference to it (see spec DESIGN NOTES).
type State struct {
	StateMachine StateMachine

	IsHumanSpeaking bool
	IsAiSpeaking    bool
	IsPaused        bool

	LastVoiceTime time.Time
	TurnStartTime time.Time
	AiTurnStart   time.Time

	TurnAudioBuffer []float32
	AiSpeechQueue   []string
	PartialTranscripts []string

	TurnEndReason TurnEndReason

	InterruptAttempts  int
	InterruptsAccepted int

	TranscriptionMs float64
	LLMMs           float64
	TotalMs         float64

	HumanSpeakingLimitAckSent bool
	LastInterruptTime         time.Time

	// AiInterruptedThisTurn is set when an in-flight AI utterance is
	// interrupted and cleared only on ResetTurn, so any AiSentenceReady
	// Events still draining from an already-cancelled generation pipeline
	// are discarded rather than re-queued, per spec.md §4.1.
	AiInterruptedThisTurn bool

	ActiveProfile  config.Profile
	CurrentPhaseID string

	PhaseProfile        config.PhaseProfile
	HasPhaseProfile      bool
	PhaseEmittedSignals map[string]bool

	TurnID uint64

	// HumanTranscript/AiTranscript accumulate for the in-flight turn so a
	// LogTurn snapshot can carry them; they are populated by the turn
	// executor via AsrFinalTranscript/AiSentenceReady-derived events rather
	// than read back out of conversation memory (which the reducer never
	// consults).
	HumanTranscript    string
	AiTranscript       string
	ConfidenceAtCutoff float64
}

// NewState builds the initial State for a standalone Profile (no phases).
func NewState(p config.Profile) State {
	s := State{
		StateMachine:        StateIdle,
		ActiveProfile:       p,
		HasPhaseProfile:     false,
		PhaseEmittedSignals: map[string]bool{},
	}
	return s
}

// NewStateFromPhaseProfile builds the initial State for a PhaseProfile,
// starting at its initial_phase.
func NewStateFromPhaseProfile(pp config.PhaseProfile) (State, bool) {
	initial, ok := pp.InitialPhaseProfile()
	if !ok {
		return State{}, false
	}
	s := State{
		StateMachine:        StateIdle,
		ActiveProfile:       initial,
		CurrentPhaseID:      pp.InitialPhase,
		PhaseProfile:        pp,
		HasPhaseProfile:     true,
		PhaseEmittedSignals: map[string]bool{},
	}
	return s, true
}

// humanSpeakingLimitMs resolves the active profile's optional
// human_speaking_limit_sec into milliseconds, returning ok=false when unset.
func (s State) humanSpeakingLimitMs() (int64, bool) {
	if s.ActiveProfile.HumanSpeakingLimitSec == nil {
		return 0, false
	}
	return *s.ActiveProfile.HumanSpeakingLimitSec * 1000, true
}
