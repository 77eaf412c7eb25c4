package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// Orchestrator bundles the four capability-set providers (STT/LLM/TTS/VAD)
// plus Config behind one dependency-injection point. It performs no
// turn-taking logic itself — that now lives in pkg/core's reducer and
// pkg/executor's turn executor; the executor takes an Orchestrator as its
// provider source, while the reducer works on events alone.
type Orchestrator struct {
	stt    STTProvider
	llm    LLMProvider
	tts    TTSProvider
	vad    VADProvider
	config Config
	logger Logger
	mu     sync.RWMutex
}

func New(stt STTProvider, llm LLMProvider, tts TTSProvider, config Config) *Orchestrator {
	return NewWithLogger(stt, llm, tts, nil, config, &NoOpLogger{})
}

func NewWithVAD(stt STTProvider, llm LLMProvider, tts TTSProvider, vad VADProvider, config Config) *Orchestrator {
	return NewWithLogger(stt, llm, tts, vad, config, &NoOpLogger{})
}

func NewWithLogger(stt STTProvider, llm LLMProvider, tts TTSProvider, vad VADProvider, config Config, logger Logger) *Orchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Orchestrator{
		stt:    stt,
		llm:    llm,
		tts:    tts,
		vad:    vad,
		config: config,
		logger: logger,
	}
}

// PushAudio runs the configured VAD over one chunk. The audio producer (see
// pkg/audio) does not call it: it runs its own VADProvider directly. The
// reducer never touches raw audio bytes.
func (o *Orchestrator) PushAudio(sessionID string, chunk []byte) (*VADEvent, error) {
	if o.vad == nil {
		return nil, fmt.Errorf("VAD provider not configured")
	}
	return o.vad.Process(chunk)
}

func (o *Orchestrator) Transcribe(ctx context.Context, audioData []byte, lang Language) (string, error) {
	return o.stt.Transcribe(ctx, audioData, lang)
}

// StreamingSTT returns the configured STT provider's streaming capability,
// if it implements one.
func (o *Orchestrator) StreamingSTT() (StreamingSTTProvider, bool) {
	s, ok := o.stt.(StreamingSTTProvider)
	return s, ok
}

func (o *Orchestrator) GenerateResponse(ctx context.Context, messages []Message) (string, error) {
	return o.llm.Complete(ctx, messages)
}

// StreamingLLM returns the configured LLM provider's streaming capability,
// if it implements one.
func (o *Orchestrator) StreamingLLM() (StreamingLLMProvider, bool) {
	s, ok := o.llm.(StreamingLLMProvider)
	return s, ok
}

func (o *Orchestrator) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	return o.tts.Synthesize(ctx, text, voice, lang)
}

func (o *Orchestrator) SynthesizeStream(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	return o.tts.StreamSynthesize(ctx, text, voice, lang, onChunk)
}

func (o *Orchestrator) AbortTTS() error {
	return o.tts.Abort()
}

func (o *Orchestrator) UpdateConfig(cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.config = cfg
}

func (o *Orchestrator) GetConfig() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config
}

func (o *Orchestrator) GetProviders() map[string]string {
	return map[string]string{
		"stt": o.stt.Name(),
		"llm": o.llm.Name(),
		"tts": o.tts.Name(),
	}
}

func (o *Orchestrator) NewSessionWithDefaults(userID string) *ConversationSession {
	session := NewConversationSession(userID)
	session.MaxMessages = o.config.MaxContextMessages
	session.CurrentVoice = o.config.VoiceStyle
	session.CurrentLanguage = o.config.Language
	return session
}

func (o *Orchestrator) SetSystemPrompt(session *ConversationSession, prompt string) {
	session.AddMessage("system", prompt)
}

func (o *Orchestrator) SetVoice(session *ConversationSession, voice Voice) {
	session.CurrentVoice = voice
}

func (o *Orchestrator) SetLanguage(session *ConversationSession, lang Language) {
	session.CurrentLanguage = lang
}

func (o *Orchestrator) ResetSession(session *ConversationSession) {
	session.ClearContext()
}
