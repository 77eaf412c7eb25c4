package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/turnkit/voicecore/pkg/analytics"
	"github.com/turnkit/voicecore/pkg/audio"
	"github.com/turnkit/voicecore/pkg/bus"
	"github.com/turnkit/voicecore/pkg/config"
	"github.com/turnkit/voicecore/pkg/core"
	"github.com/turnkit/voicecore/pkg/executor"
	"github.com/turnkit/voicecore/pkg/logging"
	"github.com/turnkit/voicecore/pkg/loop"
	"github.com/turnkit/voicecore/pkg/memory"
	"github.com/turnkit/voicecore/pkg/orchestrator"
	llmProvider "github.com/turnkit/voicecore/pkg/providers/llm"
	sttProvider "github.com/turnkit/voicecore/pkg/providers/stt"
	ttsProvider "github.com/turnkit/voicecore/pkg/providers/tts"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	logger, err := logging.NewDevelopment()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	googleKey := os.Getenv("GOOGLE_API_KEY")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	assemblyKey := os.Getenv("ASSEMBLYAI_API_KEY")
	lokutorKey := os.Getenv("LOKUTOR_API_KEY")

	sttProviderName := os.Getenv("STT_PROVIDER")
	if sttProviderName == "" {
		sttProviderName = "groq"
	}
	llmProviderName := os.Getenv("LLM_PROVIDER")
	if llmProviderName == "" {
		llmProviderName = "groq"
	}

	lang := orchestrator.Language(os.Getenv("AGENT_LANGUAGE"))
	if lang == "" {
		lang = orchestrator.LanguageEn
	}

	if lokutorKey == "" {
		log.Fatal("Error: LOKUTOR_API_KEY must be set.")
	}

	var stt orchestrator.STTProvider
	switch sttProviderName {
	case "openai":
		if openaiKey == "" {
			log.Fatal("Error: OPENAI_API_KEY must be set for openai STT")
		}
		stt = sttProvider.NewOpenAISTT(openaiKey, "whisper-1")
	case "deepgram":
		if deepgramKey == "" {
			log.Fatal("Error: DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		stt = sttProvider.NewDeepgramSTT(deepgramKey)
	case "assemblyai":
		if assemblyKey == "" {
			log.Fatal("Error: ASSEMBLYAI_API_KEY must be set for assemblyai STT")
		}
		stt = sttProvider.NewAssemblyAISTT(assemblyKey)
	case "groq":
		fallthrough
	default:
		if groqKey == "" {
			log.Fatal("Error: GROQ_API_KEY must be set for groq STT")
		}
		groqModel := os.Getenv("GROQ_STT_MODEL")
		if groqModel == "" {
			groqModel = "whisper-large-v3-turbo"
		}
		stt = sttProvider.NewGroqSTT(groqKey, groqModel)
	}

	if s, ok := stt.(interface{ SetSampleRate(int) }); ok {
		s.SetSampleRate(audio.SampleRate)
	}

	var llm orchestrator.LLMProvider
	switch llmProviderName {
	case "openai":
		if openaiKey == "" {
			log.Fatal("Error: OPENAI_API_KEY must be set for openai LLM")
		}
		llm = llmProvider.NewOpenAILLM(openaiKey, "gpt-4o")
	case "anthropic":
		if anthropicKey == "" {
			log.Fatal("Error: ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		llm = llmProvider.NewAnthropicLLM(anthropicKey, "claude-3-5-sonnet-20241022")
	case "google":
		if googleKey == "" {
			log.Fatal("Error: GOOGLE_API_KEY must be set for google LLM")
		}
		llm = llmProvider.NewGoogleLLM(googleKey, "gemini-1.5-flash")
	case "groq":
		fallthrough
	default:
		if groqKey == "" {
			log.Fatal("Error: GROQ_API_KEY must be set for groq LLM")
		}
		llm = llmProvider.NewGroqLLM(groqKey, "llama-3.3-70b-versatile")
	}

	fmt.Printf("Configured: STT=%s | LLM=%s | TTS=Lokutor\n", sttProviderName, llmProviderName)
	fmt.Printf("Sample Rate: %dHz | Language: %s\n", audio.SampleRate, lang)
	fmt.Println("Voice Agent Started! Listening to microphone...")
	fmt.Println("Press Ctrl+C to exit")

	tts := ttsProvider.NewLokutorTTS(lokutorKey)
	vad := orchestrator.NewRMSVAD(0.02, 500*time.Millisecond)
	echo := orchestrator.NewEchoSuppressor()

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Language = lang
	orch := orchestrator.NewWithVAD(stt, llm, tts, vad, orchCfg)

	profile := config.DefaultProfile()
	if profilePath := os.Getenv("PROFILE_PATH"); profilePath != "" {
		p, err := config.LoadProfile(profilePath)
		if err != nil {
			log.Fatalf("loading profile %s: %v", profilePath, err)
		}
		profile = p
	}
	state := core.NewState(profile)
	if phaseProfilePath := os.Getenv("PHASE_PROFILE_PATH"); phaseProfilePath != "" {
		pp, err := config.LoadPhaseProfile(phaseProfilePath)
		if err != nil {
			log.Fatalf("loading phase profile %s: %v", phaseProfilePath, err)
		}
		if s, ok := core.NewStateFromPhaseProfile(pp); ok {
			state = s
		}
	}

	analyticsFile, err := os.OpenFile("turns.jsonl", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("opening analytics file: %v", err)
	}
	defer analyticsFile.Close()
	sink := analytics.NewSink(analyticsFile, prometheus.DefaultRegisterer)

	signalBus := bus.New(logger)
	signalBus.SubscribeAll(func(sig core.Signal) {
		fmt.Printf("\r\033[K[signal] %s %v\n", sig.Name, sig.Payload)
	})

	conversationLoop := loop.New(state, 256, nil, signalBus, sink, logger)

	var playbackMu sync.Mutex
	var playbackBytes []byte

	producer := audio.NewProducer(vad.Clone(), echo, 256, func() {
		logger.Warn("audio: frame dropped, queue full")
	})

	audioOut := func(chunk []byte) {
		producer.RecordPlayback(chunk)
		playbackMu.Lock()
		playbackBytes = append(playbackBytes, chunk...)
		playbackMu.Unlock()
	}

	mem := memory.New(20)
	turnExecutor := executor.New(orch, mem, logger, conversationLoop.Events(), audioOut, conversationLoop.OnExtractedSignals)
	conversationLoop.SetExecutor(turnExecutor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go conversationLoop.Run(ctx)

	// Bridge producer-generated Events (AudioFrame/VadSpeechStart/Stop/Tick)
	// into the loop's single-consumer channel.
	go func() {
		for e := range producer.Events() {
			select {
			case conversationLoop.Events() <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(audio.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				producer.PushTick(now)
			}
		}
	}()

	// Batch STT: accumulate raw capture PCM while the VAD reports speech,
	// flushing a single Transcribe call (and an AsrFinalTranscript Event)
	// the moment it reports silence. Every STT provider, Deepgram included,
	// goes through this batch path; no streaming STT path is wired here.
	var humanAudioMu sync.Mutex
	var humanAudioBuf []byte
	wasSpeaking := false

	flushHumanAudio := func() {
		humanAudioMu.Lock()
		buf := humanAudioBuf
		humanAudioBuf = nil
		humanAudioMu.Unlock()
		if len(buf) == 0 {
			return
		}
		go func() {
			sttStart := time.Now()
			transcript, err := stt.Transcribe(ctx, buf, lang)
			durationMs := float64(time.Since(sttStart).Milliseconds())
			if err != nil {
				logger.Warn("transcription failed", "error", err)
				return
			}
			if transcript == "" {
				return
			}
			conversationLoop.Events() <- core.Event{Kind: core.EventAsrFinalTranscript, Text: transcript, Confidence: 1.0, Timestamp: time.Now(), DurationMs: durationMs}
		}()
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			now := time.Now()
			producer.PushPCM(now, pInput)

			speaking := producer.IsSpeaking()
			humanAudioMu.Lock()
			if speaking {
				humanAudioBuf = append(humanAudioBuf, pInput...)
			}
			humanAudioMu.Unlock()
			if wasSpeaking && !speaking {
				flushHumanAudio()
			}
			wasSpeaking = speaking
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			if n < len(pOutput) {
				for i := n; i < len(pOutput); i++ {
					pOutput[i] = 0
				}
			}
			playbackMu.Unlock()
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = audio.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			level := producer.LastRMS()
			meter := ""
			dots := int(level * 500)
			if dots > 40 {
				dots = 40
			}
			for i := 0; i < dots; i++ {
				meter += "|"
			}
			fmt.Printf("\r[MIC ENERGY: %-40s] RMS: %.5f", meter, level)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Printf("\nShutting down...\n")
}
