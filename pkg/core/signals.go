package core

// Signal is a named observation fanned out to optional listeners. Signals
// never mutate State and are never substituted for Actions; the reducer's
// only obligation toward a Signal is to emit it after the State update and
// Actions for the same reduce call have been produced.
type Signal struct {
	Name    string
	Payload map[string]interface{}
	Context map[string]interface{}
}

// Well-known dotted Signal names emitted by the core itself. Profiles may
// additionally advertise custom.* names that the phase controller emits on
// their behalf.
const (
	SignalConversationInterrupted       = "conversation.interrupted"
	SignalConversationSpeakingLimit     = "conversation.speaking_limit_exceeded"
	SignalLLMGenerationStart            = "llm.generation_start"
	SignalLLMGenerationComplete         = "llm.generation_complete"
	SignalLLMGenerationError            = "llm.generation_error"
	SignalAnalyticsTurnMetricsUpdated   = "analytics.turn_metrics_updated"
	SignalAudioFrameDropped             = "audio.frame_dropped"
	SignalReducerInvalidEvent           = "reducer.invalid_event"
	SignalReducerInvariantViolation     = "reducer.invariant_violation"
)

func newSignal(name string, payload map[string]interface{}) Signal {
	return Signal{Name: name, Payload: payload}
}
