package core

import (
	"math"
	"time"
)

// interruptDebounce is the minimum interval between accepted interrupt
// evaluations, per spec.md §5 "Interruption actions are debounced by 250 ms."
const interruptDebounce = 250 * time.Millisecond

// energyFloor is the RMS-above-which-we-count-it-as-"speech-like-energy"
// term of the interruption predicate. The spec leaves the exact floor to the
// implementation (see DESIGN.md Open Question 2); this mirrors the order of
// magnitude the teacher's RMSVAD default threshold uses.
const energyFloor = 0.015

// Reduce is the pure, synchronous reducer: given a State and an Event it
// returns the next State plus the Actions and Signals produced. It performs
// no I/O and never fails — malformed input is discarded with a Log Action
// and a reducer.invalid_event Signal, per spec.md §4.1's failure semantics.
func Reduce(s State, e Event) (State, []Action, []Signal) {
	switch e.Kind {
	case EventAudioFrame:
		return reduceAudioFrame(s, e)
	case EventVadSpeechStart:
		return reduceVadSpeechStart(s, e)
	case EventVadSpeechStop:
		return reduceVadSpeechStop(s, e)
	case EventTick:
		return reduceTick(s, e)
	case EventAsrPartialTranscript:
		return reduceAsrPartial(s, e)
	case EventAsrFinalTranscript:
		return reduceAsrFinal(s, e)
	case EventAiSentenceReady:
		return reduceAiSentenceReady(s, e)
	case EventAiStreamComplete:
		return s, nil, nil
	case EventTtsSentenceStarted:
		return reduceTtsSentenceStarted(s, e)
	case EventTtsSentenceFinished:
		return s, nil, nil
	case EventTtsQueueEmpty:
		return reduceTtsQueueEmpty(s, e)
	case EventPhaseTransition:
		return reducePhaseTransition(s, e)
	case EventProcessTurn:
		return s, []Action{{Kind: ActionProcessTurn, Text: s.HumanTranscript}}, nil
	case EventResetTurn:
		return reduceResetTurn(s, e)
	case EventExternalText:
		return reduceExternalText(s, e)
	case EventCommand:
		return reduceCommand(s, e)
	default:
		return s, []Action{{Kind: ActionLog, Message: "discarded unknown event kind"}},
			[]Signal{newSignal(SignalReducerInvalidEvent, map[string]interface{}{"kind": string(e.Kind)})}
	}
}

func reduceVadSpeechStart(s State, e Event) (State, []Action, []Signal) {
	// Treat a VadSpeechStart that arrives while the AI is speaking as a
	// potential interruption rather than a state-machine transition,
	// regardless of the configured authority (the AudioFrame precedence
	// chain already encodes the per-authority behavior, including the
	// authority=ai mute case).
	if s.IsAiSpeaking {
		return reduceAudioFrame(s, Event{Kind: EventAudioFrame, Timestamp: e.Timestamp, IsSpeech: true})
	}

	switch s.StateMachine {
	case StateIdle:
		s.StateMachine = StateSpeaking
		s.TurnStartTime = e.Timestamp
		s.IsHumanSpeaking = true
		s.InterruptAttempts = 0
		s.InterruptsAccepted = 0
		return s, nil, nil
	case StatePausing:
		s.StateMachine = StateSpeaking
		s.IsHumanSpeaking = true
		return s, nil, nil
	default:
		return s, nil, nil
	}
}

func reduceVadSpeechStop(s State, e Event) (State, []Action, []Signal) {
	if s.StateMachine == StateSpeaking {
		s.StateMachine = StatePausing
		s.IsHumanSpeaking = false
		s.LastVoiceTime = e.Timestamp
	}
	return s, nil, nil
}

func reduceTick(s State, e Event) (State, []Action, []Signal) {
	now := e.Timestamp

	// Safety timeout dominates tie-breaks only when end_ms has not also
	// elapsed; per spec.md §4.1 "concurrent satisfaction of end_ms and
	// safety_timeout_ms resolves to silence", so the silence check below
	// runs first and, if it fires, the safety-timeout branch is skipped.
	if s.StateMachine == StatePausing && !s.LastVoiceTime.IsZero() {
		if now.Sub(s.LastVoiceTime) >= time.Duration(s.ActiveProfile.EndMs)*time.Millisecond {
			return endTurn(s, EndReasonSilence)
		}
	}

	if !s.TurnStartTime.IsZero() && turnNonEmpty(s) {
		if now.Sub(s.TurnStartTime) >= time.Duration(s.ActiveProfile.SafetyTimeoutMs)*time.Millisecond {
			return endTurn(s, EndReasonSafetyTimeout)
		}
	}

	if s.StateMachine == StateSpeaking && !s.HumanSpeakingLimitAckSent {
		if limitMs, ok := s.humanSpeakingLimitMs(); ok && !s.TurnStartTime.IsZero() {
			actualMs := now.Sub(s.TurnStartTime).Milliseconds()
			if actualMs >= limitMs {
				s.HumanSpeakingLimitAckSent = true
				text := chooseAcknowledgment(s.ActiveProfile.Acknowledgments)
				actions := []Action{{Kind: ActionPlayAcknowledgment, Text: text}}
				signals := []Signal{newSignal(SignalConversationSpeakingLimit, map[string]interface{}{
					"limit_sec":          limitMs / 1000,
					"actual_duration_sec": float64(actualMs) / 1000.0,
				})}
				return s, actions, signals
			}
		}
	}

	return s, nil, nil
}

func turnNonEmpty(s State) bool {
	return len(s.TurnAudioBuffer) > 0 || s.IsHumanSpeaking || s.StateMachine != StateIdle
}

// chooseAcknowledgment deterministically picks the first acknowledgment.
// Determinism keeps the reducer pure and testable; true randomization, if
// desired for production variety, belongs in the turn executor which may
// wrap this choice with its own RNG before relaying PlayAcknowledgment to
// TTS (the observable contract only requires membership in the set).
func chooseAcknowledgment(acks []string) string {
	if len(acks) == 0 {
		return ""
	}
	return acks[0]
}

func endTurn(s State, reason TurnEndReason) (State, []Action, []Signal) {
	s.StateMachine = StateIdle
	s.IsHumanSpeaking = false
	s.TurnEndReason = reason

	if len(s.TurnAudioBuffer) == 0 && s.HumanTranscript == "" {
		// Nothing was ever said; suppress ProcessTurn per spec.md §4.1.
		return s, nil, nil
	}

	return s, []Action{{Kind: ActionProcessTurn, Text: s.HumanTranscript}}, nil
}

func reduceAudioFrame(s State, e Event) (State, []Action, []Signal) {
	// 1. Paused or non-speech: accumulate only while a turn is in progress.
	if s.IsPaused || !e.IsSpeech {
		if s.StateMachine != StateIdle {
			s.TurnAudioBuffer = append(s.TurnAudioBuffer, e.Samples...)
		}
		return s, nil, nil
	}

	// 2. AI not speaking: this is ordinary human speech, just accumulate.
	if !s.IsAiSpeaking {
		s.TurnAudioBuffer = append(s.TurnAudioBuffer, e.Samples...)
		return s, nil, nil
	}

	// 3. AI is speaking: this frame is a candidate interruption.
	authority := s.ActiveProfile.Authority
	if authority == AuthorityAi {
		// Mic is muted while the AI speaks under this authority; discard.
		return s, nil, nil
	}

	// 4. Debounce.
	s.InterruptAttempts++
	if !s.LastInterruptTime.IsZero() && e.Timestamp.Sub(s.LastInterruptTime) < interruptDebounce {
		return s, nil, nil
	}

	// 5. Weighted interruption predicate.
	sensitivity := s.ActiveProfile.InterruptionSensitivity
	if sensitivity <= 0 {
		return s, nil, nil
	}
	threshold := 1.0 - sensitivity

	speechTerm := 0.0
	if e.IsSpeech {
		speechTerm = 1.0
	}
	partialTerm := 0.0
	if hasPartialSincePointer(s) {
		partialTerm = 1.0
	}
	energyTerm := 0.0
	if rmsOf(e.Samples) > energyFloor {
		energyTerm = 1.0
	}

	score := 0.5*speechTerm + 0.3*partialTerm + 0.2*energyTerm
	if score < threshold {
		return s, nil, nil
	}

	// 6. Accept the interruption.
	s.InterruptsAccepted++
	s.IsAiSpeaking = false
	s.AiSpeechQueue = nil
	s.LastInterruptTime = e.Timestamp
	s.AiInterruptedThisTurn = true

	actions := []Action{
		{Kind: ActionInterruptAi, Reason: "barge_in"},
		{Kind: ActionClearSpeechQueue},
	}
	signals := []Signal{newSignal(SignalConversationInterrupted, map[string]interface{}{
		"reason":    "barge_in",
		"turn_id":   s.TurnID,
		"authority": string(authority),
	})}
	return s, actions, signals
}

func hasPartialSincePointer(s State) bool {
	return len(s.PartialTranscripts) > 0
}

func rmsOf(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func reduceAsrPartial(s State, e Event) (State, []Action, []Signal) {
	s.PartialTranscripts = append(s.PartialTranscripts, e.Text)
	return s, nil, nil
}

func reduceAsrFinal(s State, e Event) (State, []Action, []Signal) {
	s.HumanTranscript = e.Text
	s.ConfidenceAtCutoff = e.Confidence
	s.TranscriptionMs = e.DurationMs
	return s, nil, nil
}

func reduceAiSentenceReady(s State, e Event) (State, []Action, []Signal) {
	if s.AiInterruptedThisTurn {
		return s, nil, nil
	}
	if !isSpeakable(e.Text) {
		return s, nil, nil
	}
	s.AiSpeechQueue = append(s.AiSpeechQueue, e.Text)
	s.AiTranscript += e.Text
	return s, []Action{{Kind: ActionSpeakSentence, Text: e.Text}}, nil
}

func isSpeakable(text string) bool {
	hasAlnum := false
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			hasAlnum = true
			break
		}
	}
	return hasAlnum
}

func reduceTtsSentenceStarted(s State, e Event) (State, []Action, []Signal) {
	s.IsAiSpeaking = true
	if s.AiTurnStart.IsZero() {
		s.AiTurnStart = e.Timestamp
	}
	return s, nil, nil
}

func reduceTtsQueueEmpty(s State, e Event) (State, []Action, []Signal) {
	s.IsAiSpeaking = false
	s.AiTurnStart = time.Time{}
	if len(s.AiSpeechQueue) == 0 {
		// Fixed point per spec.md testable property 12: no Actions.
		return s, nil, nil
	}
	s.AiSpeechQueue = nil
	return s, nil, nil
}

func reducePhaseTransition(s State, e Event) (State, []Action, []Signal) {
	if !s.HasPhaseProfile {
		return s, nil, nil
	}
	phase, ok := s.PhaseProfile.Phases[e.TargetPhaseID]
	if !ok {
		return s, []Action{{Kind: ActionLog, Message: "unknown phase transition target"}},
			[]Signal{newSignal(SignalReducerInvalidEvent, map[string]interface{}{"target": e.TargetPhaseID})}
	}

	s.ActiveProfile = phase.Profile
	s.CurrentPhaseID = e.TargetPhaseID
	s.PhaseEmittedSignals = map[string]bool{}

	if phase.Profile.InitialSpeaker == "ai" {
		return s, []Action{{Kind: ActionProcessTurn}}, nil
	}
	return s, nil, nil
}

func reduceResetTurn(s State, e Event) (State, []Action, []Signal) {
	// ActionResetTurn always instructs the turn executor to clear
	// conversation memory and per-turn state; only the PhaseProfile reload
	// below is conditioned on keep_profile, per spec.md §6 reset(keep_profile).
	resetAction := Action{Kind: ActionResetTurn}

	metrics := Action{
		Kind: ActionLogTurn,
		Metrics: TurnMetrics{
			TurnID:             s.TurnID,
			ProfileName:        s.ActiveProfile.ID,
			PhaseID:            s.CurrentPhaseID,
			HumanTranscript:    s.HumanTranscript,
			AiTranscript:       s.AiTranscript,
			InterruptAttempts:  s.InterruptAttempts,
			InterruptsAccepted: s.InterruptsAccepted,
			EndReason:          s.TurnEndReason,
			AuthorityMode:      s.ActiveProfile.Authority,
			SensitivityValue:   s.ActiveProfile.InterruptionSensitivity,
			TranscriptionMs:    s.TranscriptionMs,
			LLMGenerationMs:    s.LLMMs,
			TotalLatencyMs:     s.TotalMs,
			ConfidenceAtCutoff: s.ConfidenceAtCutoff,
		},
	}

	activeProfile := s.ActiveProfile
	phaseProfile := s.PhaseProfile
	hasPhaseProfile := s.HasPhaseProfile
	currentPhaseID := s.CurrentPhaseID
	turnID := s.TurnID

	// reset(¬keep_profile) reloads the configured PhaseProfile from its
	// initial_phase, discarding any phase drift accumulated during the run.
	if !e.KeepProfile && hasPhaseProfile {
		if initial, ok := phaseProfile.InitialPhaseProfile(); ok {
			activeProfile = initial
			currentPhaseID = phaseProfile.InitialPhase
		}
	}

	s = State{
		StateMachine:        StateIdle,
		ActiveProfile:       activeProfile,
		PhaseProfile:        phaseProfile,
		HasPhaseProfile:     hasPhaseProfile,
		CurrentPhaseID:      currentPhaseID,
		PhaseEmittedSignals: map[string]bool{},
		TurnID:              turnID + 1,
	}

	return s, []Action{resetAction, metrics}, nil
}

func reduceExternalText(s State, e Event) (State, []Action, []Signal) {
	s.HumanTranscript = e.Text
	s.ConfidenceAtCutoff = 1.0
	return s, []Action{{Kind: ActionProcessTurn, Text: e.Text}}, nil
}

func reduceCommand(s State, e Event) (State, []Action, []Signal) {
	switch e.Command {
	case CommandPause:
		s.IsPaused = true
	case CommandResume, CommandStart:
		s.IsPaused = false
	case CommandStop:
		// Graceful shutdown is orchestrated by the event loop, which drains
		// the queue and issues a final LogTurn itself; the reducer has
		// nothing further to do here.
	}
	return s, nil, nil
}
