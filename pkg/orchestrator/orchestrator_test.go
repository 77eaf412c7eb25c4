package orchestrator

import (
	"context"
	"testing"
)

type MockSTTProvider struct {
	transcribeResult string
	transcribeErr    error
}

func (m *MockSTTProvider) Transcribe(ctx context.Context, audio []byte, lang Language) (string, error) {
	return m.transcribeResult, m.transcribeErr
}

func (m *MockSTTProvider) Name() string {
	return "MockSTT"
}

type MockLLMProvider struct {
	completeResult string
	completeErr    error
}

func (m *MockLLMProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	return m.completeResult, m.completeErr
}

func (m *MockLLMProvider) Name() string {
	return "MockLLM"
}

type MockTTSProvider struct {
	synthesizeResult []byte
	synthesizeErr    error
	streamErr        error
	aborted          bool
}

func (m *MockTTSProvider) Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error) {
	return m.synthesizeResult, m.synthesizeErr
}

func (m *MockTTSProvider) StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error {
	if m.streamErr != nil {
		return m.streamErr
	}
	return onChunk(m.synthesizeResult)
}

func (m *MockTTSProvider) Abort() error {
	m.aborted = true
	return nil
}

func (m *MockTTSProvider) Name() string {
	return "MockTTS"
}

func TestOrchestratorCreation(t *testing.T) {
	stt := &MockSTTProvider{}
	llm := &MockLLMProvider{}
	tts := &MockTTSProvider{}
	config := DefaultConfig()

	orch := New(stt, llm, tts, config)

	if orch == nil {
		t.Fatal("Expected orchestrator to be created")
	}

	providers := orch.GetProviders()
	if providers["stt"] != "MockSTT" {
		t.Errorf("Expected STT provider name to be 'MockSTT', got %s", providers["stt"])
	}
	if providers["llm"] != "MockLLM" {
		t.Errorf("Expected LLM provider name to be 'MockLLM', got %s", providers["llm"])
	}
	if providers["tts"] != "MockTTS" {
		t.Errorf("Expected TTS provider name to be 'MockTTS', got %s", providers["tts"])
	}
}

func TestTranscribeAndGenerateAndSynthesize(t *testing.T) {
	stt := &MockSTTProvider{transcribeResult: "Hello, how are you?"}
	llm := &MockLLMProvider{completeResult: "I'm doing great, thanks for asking!"}
	tts := &MockTTSProvider{synthesizeResult: []byte{0x01, 0x02, 0x03, 0x04}}

	orch := New(stt, llm, tts, DefaultConfig())

	transcript, err := orch.Transcribe(context.Background(), []byte{0xFF, 0xFE}, LanguageEn)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if transcript != "Hello, how are you?" {
		t.Errorf("Expected transcript 'Hello, how are you?', got '%s'", transcript)
	}

	response, err := orch.GenerateResponse(context.Background(), []Message{{Role: "user", Content: transcript}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if response != "I'm doing great, thanks for asking!" {
		t.Errorf("unexpected response %q", response)
	}

	audioBytes, err := orch.Synthesize(context.Background(), response, VoiceF1, LanguageEn)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(audioBytes) != 4 {
		t.Errorf("Expected 4 audio bytes, got %d", len(audioBytes))
	}
}

func TestSynthesizeStream(t *testing.T) {
	tts := &MockTTSProvider{synthesizeResult: []byte{0x01, 0x02}}
	orch := New(&MockSTTProvider{}, &MockLLMProvider{}, tts, DefaultConfig())

	chunks := [][]byte{}
	err := orch.SynthesizeStream(context.Background(), "hi", VoiceF1, LanguageEn, func(chunk []byte) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("Expected at least one audio chunk")
	}
}

func TestAbortTTS(t *testing.T) {
	tts := &MockTTSProvider{}
	orch := New(&MockSTTProvider{}, &MockLLMProvider{}, tts, DefaultConfig())

	if err := orch.AbortTTS(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tts.aborted {
		t.Fatal("expected TTS.Abort() to have been called")
	}
}

func TestConfigManagement(t *testing.T) {
	stt := &MockSTTProvider{}
	llm := &MockLLMProvider{}
	tts := &MockTTSProvider{}

	originalConfig := DefaultConfig()
	orch := New(stt, llm, tts, originalConfig)

	cfg := orch.GetConfig()
	if cfg.SampleRate != originalConfig.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", originalConfig.SampleRate, cfg.SampleRate)
	}

	newConfig := Config{
		SampleRate:         8000,
		Channels:           1,
		BytesPerSamp:       2,
		MaxContextMessages: 50,
		VoiceStyle:         VoiceM1,
		Language:           LanguageEs,
	}
	orch.UpdateConfig(newConfig)

	updatedCfg := orch.GetConfig()
	if updatedCfg.SampleRate != 8000 {
		t.Errorf("Expected updated sample rate 8000, got %d", updatedCfg.SampleRate)
	}
	if updatedCfg.VoiceStyle != VoiceM1 {
		t.Errorf("Expected voice M1, got %s", updatedCfg.VoiceStyle)
	}
}

func TestConfigThreadSafety(t *testing.T) {
	stt := &MockSTTProvider{}
	llm := &MockLLMProvider{}
	tts := &MockTTSProvider{}

	config := DefaultConfig()
	orch := New(stt, llm, tts, config)

	done := make(chan bool, 20)

	for i := 0; i < 10; i++ {
		go func(val int) {
			cfg := orch.GetConfig()
			cfg.MaxContextMessages = val
			orch.UpdateConfig(cfg)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		go func() {
			_ = orch.GetConfig()
			done <- true
		}()
	}

	for i := 0; i < 20; i++ {
		<-done
	}

	cfg := orch.GetConfig()
	if cfg.SampleRate == 0 {
		t.Fatal("config was corrupted")
	}
}

func TestContextCancellation(t *testing.T) {
	stt := &MockSTTProvider{transcribeResult: "Hello", transcribeErr: context.Canceled}
	llm := &MockLLMProvider{}
	tts := &MockTTSProvider{}

	orch := New(stt, llm, tts, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Transcribe(ctx, []byte("audio"), LanguageEn)
	if err == nil {
		t.Fatal("Transcribe should return error when context is cancelled")
	}
}
