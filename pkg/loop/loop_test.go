package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/turnkit/voicecore/pkg/analytics"
	"github.com/turnkit/voicecore/pkg/bus"
	"github.com/turnkit/voicecore/pkg/config"
	"github.com/turnkit/voicecore/pkg/core"
	"github.com/turnkit/voicecore/pkg/executor"
	"github.com/turnkit/voicecore/pkg/memory"
	"github.com/turnkit/voicecore/pkg/orchestrator"
)

type fakeSTT struct{}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, lang orchestrator.Language) (string, error) {
	return "hi", nil
}
func (f *fakeSTT) Name() string { return "fake-stt" }

type fakeLLM struct {
	response string
}

func (f *fakeLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	if f.response != "" {
		return f.response, nil
	}
	return "Hello.", nil
}
func (f *fakeLLM) Name() string { return "fake-llm" }

type fakeTTS struct{}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	return []byte(text), nil
}
func (f *fakeTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	return onChunk([]byte(text))
}
func (f *fakeTTS) Abort() error { return nil }
func (f *fakeTTS) Name() string { return "fake-tts" }

func newTestLoop(t *testing.T) (*Loop, *sync.WaitGroup) {
	t.Helper()
	orch := orchestrator.New(&fakeSTT{}, &fakeLLM{}, &fakeTTS{}, orchestrator.DefaultConfig())
	mem := memory.New(10)
	b := bus.New(&orchestrator.NoOpLogger{})
	sink := analytics.NewSink(&discardWriter{}, nil)

	profile := config.DefaultProfile()
	state := core.NewState(profile)

	l := New(state, 64, nil, b, sink, nil)

	x := executor.New(orch, mem, nil, l.events, func([]byte) {}, l.OnExtractedSignals)
	l.SetExecutor(x)

	var wg sync.WaitGroup
	return l, &wg
}

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLoop_ProcessTurnReachesIdleWithTranscripts(t *testing.T) {
	l, _ := newTestLoop(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go l.Run(ctx)

	var signalsSeen []string
	var mu sync.Mutex
	l.bus.SubscribeAll(func(sig core.Signal) {
		mu.Lock()
		signalsSeen = append(signalsSeen, sig.Name)
		mu.Unlock()
	})

	l.events <- core.Event{Kind: core.EventExternalText, Text: "hello there", Timestamp: time.Now()}

	deadline := time.After(1500 * time.Millisecond)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for turn to reach idle; state=%+v", l.state.StateMachine)
		default:
		}
		if l.state.AiTranscript != "" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// S6 through the real pipeline: the LLM emits an unprefixed <signals> key,
// OnExtractedSignals must prefix it, publish it on the bus, and the phase
// controller must see it and fire the configured transition.
func TestLoop_ExtractedSignalDrivesPhaseTransitionEndToEnd(t *testing.T) {
	greeting := config.Profile{ID: "greeting", InitialSpeaker: config.SpeakerHuman,
		Signals: map[string]string{"exam.greeting_complete": "the candidate finished introducing themselves"}}
	part1 := config.Profile{ID: "part1", InitialSpeaker: config.SpeakerAi}

	pp := config.PhaseProfile{
		Phases: map[string]config.Phase{
			"greeting": {Profile: greeting},
			"part1":    {Profile: part1},
		},
		PhaseOrder:   []string{"greeting", "part1"},
		InitialPhase: "greeting",
		Transitions: []config.PhaseTransition{
			{From: "greeting", To: "part1", TriggerSignals: []string{"custom.exam.greeting_complete"}, RequireAll: true},
		},
	}

	state, ok := core.NewStateFromPhaseProfile(pp)
	if !ok {
		t.Fatalf("expected valid initial state from phase profile")
	}

	orch := orchestrator.New(&fakeSTT{}, &fakeLLM{response: `Nice to meet you. <signals>{"exam.greeting_complete": {"turn": 1}}</signals>`}, &fakeTTS{}, orchestrator.DefaultConfig())
	mem := memory.New(10)
	b := bus.New(&orchestrator.NoOpLogger{})
	sink := analytics.NewSink(&discardWriter{}, nil)

	l := New(state, 64, nil, b, sink, nil)
	x := executor.New(orch, mem, nil, l.events, func([]byte) {}, l.OnExtractedSignals)
	l.SetExecutor(x)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go l.Run(ctx)

	var signalsSeen []string
	var mu sync.Mutex
	l.bus.SubscribeAll(func(sig core.Signal) {
		mu.Lock()
		signalsSeen = append(signalsSeen, sig.Name)
		mu.Unlock()
	})

	l.events <- core.Event{Kind: core.EventExternalText, Text: "hi, I'm ready", Timestamp: time.Now()}

	deadline := time.After(1500 * time.Millisecond)
	for {
		select {
		case <-deadline:
			mu.Lock()
			seen := append([]string(nil), signalsSeen...)
			mu.Unlock()
			t.Fatalf("timed out waiting for phase transition to part1; current phase=%s signals seen=%v", l.state.CurrentPhaseID, seen)
		default:
		}
		if l.state.CurrentPhaseID == "part1" {
			mu.Lock()
			seen := append([]string(nil), signalsSeen...)
			mu.Unlock()
			found := false
			for _, name := range seen {
				if name == "custom.exam.greeting_complete" {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected custom.exam.greeting_complete to be published on the bus, got %v", seen)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoop_TickDrivenSilenceEndsTurn(t *testing.T) {
	l, _ := newTestLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Run(ctx)

	now := time.Now()
	l.events <- core.Event{Kind: core.EventVadSpeechStart, Timestamp: now}
	time.Sleep(20 * time.Millisecond)
	l.events <- core.Event{Kind: core.EventVadSpeechStop, Timestamp: now.Add(10 * time.Millisecond)}
	time.Sleep(20 * time.Millisecond)

	l.events <- core.NewTick(now.Add(5 * time.Second))

	deadline := time.After(1 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("expected StateIdle after silence tick, got %v", l.state.StateMachine)
		default:
		}
		if l.state.StateMachine == core.StateIdle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
