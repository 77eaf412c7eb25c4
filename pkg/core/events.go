// Package core holds the immutable Event/Action/Signal value types and the
// pure reducer that advances turn-taking State from one Event at a time.
package core

import "time"

// EventKind identifies the variant of an Event. Payloads are carried on the
// Event struct itself rather than through a type hierarchy, matching the
// closed set of kinds the reducer switches over.
type EventKind string

const (
	EventAudioFrame          EventKind = "audio_frame"
	EventVadSpeechStart      EventKind = "vad_speech_start"
	EventVadSpeechStop       EventKind = "vad_speech_stop"
	EventAsrPartialTranscript EventKind = "asr_partial_transcript"
	EventAsrFinalTranscript  EventKind = "asr_final_transcript"
	EventAiSentenceReady     EventKind = "ai_sentence_ready"
	EventAiStreamComplete    EventKind = "ai_stream_complete"
	EventTtsSentenceStarted  EventKind = "tts_sentence_started"
	EventTtsSentenceFinished EventKind = "tts_sentence_finished"
	EventTtsQueueEmpty       EventKind = "tts_queue_empty"
	EventTick                EventKind = "tick"
	EventPhaseTransition     EventKind = "phase_transition"
	EventProcessTurn         EventKind = "process_turn"
	EventResetTurn           EventKind = "reset_turn"
	EventExternalText        EventKind = "external_text"
	EventCommand             EventKind = "command"
)

// CommandKind enumerates the external driver commands carried by
// EventCommand.
type CommandKind string

const (
	CommandStart  CommandKind = "start"
	CommandPause  CommandKind = "pause"
	CommandResume CommandKind = "resume"
	CommandStop   CommandKind = "stop"
)

// Event is the immutable unit of work the event loop delivers to the
// reducer. Only the payload fields relevant to a given Kind are meaningful;
// which Kinds use which fields is noted on the fields below.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	// AudioFrame payload.
	Samples  []float32
	IsSpeech bool

	// Text-carrying payloads: AsrPartialTranscript, AsrFinalTranscript,
	// AiSentenceReady, ExternalText.
	Text       string
	Confidence float64

	// AsrFinalTranscript payload: wall-clock duration of the STT call that
	// produced Text, milliseconds. Zero when the driver doesn't measure it.
	DurationMs float64

	// PhaseTransition payload.
	TargetPhaseID string

	// Command payload.
	Command CommandKind

	// ResetTurn(keep_profile) payload, used by the reset(keep_profile) driver
	// command when it is translated into a ResetTurn Event.
	KeepProfile bool
}

// NewAudioFrame constructs an AudioFrame Event.
func NewAudioFrame(now time.Time, samples []float32, isSpeech bool) Event {
	return Event{Kind: EventAudioFrame, Timestamp: now, Samples: samples, IsSpeech: isSpeech}
}

// NewTick constructs a Tick Event.
func NewTick(now time.Time) Event {
	return Event{Kind: EventTick, Timestamp: now}
}
