// Package executor implements the turn executor (spec.md §4.2): it consumes
// core.Action values emitted by the reducer and drives the STT/LLM/TTS
// capability-set providers to perform their side effects, translating their
// results back into core.Event values fed to the event loop's queue.
//
// It is the generalization of pkg/orchestrator's former ManagedStream: the
// interruption bookkeeping and state-machine transitions that file used to
// own now live in the reducer; this package keeps only the I/O-facing
// pipeline (generate → segment → synthesize) and its cancellation
// plumbing. Transcription is done by the caller (cmd/agent), which feeds
// AsrFinalTranscript Events to the loop itself.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/turnkit/voicecore/pkg/config"
	"github.com/turnkit/voicecore/pkg/core"
	"github.com/turnkit/voicecore/pkg/memory"
	"github.com/turnkit/voicecore/pkg/orchestrator"
	"github.com/turnkit/voicecore/pkg/phase"
)

var tracer = otel.Tracer("github.com/turnkit/voicecore/pkg/executor")

// Clock lets tests substitute a deterministic notion of "now"; production
// code uses time.Now.
type Clock func() time.Time

// Executor drives provider I/O for Actions the reducer emits. One Executor
// serves one conversation; it is not safe to share across concurrent
// conversations.
type Executor struct {
	orch   *orchestrator.Orchestrator
	mem    *memory.Memory
	logger orchestrator.Logger
	clock  Clock

	// events receives Events this Executor synthesizes from provider output
	// (AiSentenceReady, AiStreamComplete,
	// TtsSentenceStarted/Finished, TtsQueueEmpty) for the event loop to feed
	// back into Reduce.
	events chan<- core.Event

	// audioOut receives synthesized PCM as it streams from the TTS provider.
	audioOut func([]byte)

	// onSignals receives the per-sentence <signals> blocks extracted from
	// LLM output, keyed by signal name, for the event loop's phase
	// controller to merge into phase_emitted_signals.
	onSignals func(map[string]map[string]interface{})

	mu         sync.Mutex
	turnCancel context.CancelFunc
	speakCancel context.CancelFunc

	// genLimiter bounds the rate of outbound LLM generation calls this
	// Executor issues, independent of the per-call retry/backoff policy: it
	// protects the upstream provider from a pathological sequence of rapid
	// interrupt-then-reprocess turns, not from ordinary conversation pacing.
	genLimiter *rate.Limiter
}

// New builds an Executor. events, audioOut, and onSignals must be non-nil;
// they are the Executor's only channel back to the event loop.
func New(orch *orchestrator.Orchestrator, mem *memory.Memory, logger orchestrator.Logger, events chan<- core.Event, audioOut func([]byte), onSignals func(map[string]map[string]interface{})) *Executor {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Executor{
		orch:       orch,
		mem:        mem,
		logger:     logger,
		clock:      time.Now,
		events:     events,
		audioOut:   audioOut,
		onSignals:  onSignals,
		genLimiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// SetClock overrides the Executor's notion of "now", for deterministic
// tests.
func (x *Executor) SetClock(c Clock) { x.clock = c }

// Execute dispatches one Action. It never blocks the caller beyond starting
// background work: ProcessTurn and SpeakSentence launch goroutines so the
// event loop's single consumer thread is never stalled on provider I/O.
func (x *Executor) Execute(ctx context.Context, profile config.Profile, phaseContext string, action core.Action) {
	switch action.Kind {
	case core.ActionLog:
		x.logger.Debug(action.Message)

	case core.ActionProcessTurn:
		go x.processTurn(ctx, profile, phaseContext, action.Text)

	case core.ActionSpeakSentence:
		go x.speakSentence(ctx, profile, action.Text)

	case core.ActionPlayAcknowledgment:
		go x.speakSentence(ctx, profile, action.Text)

	case core.ActionInterruptAi:
		x.interrupt()

	case core.ActionClearSpeechQueue:
		// The TTS provider's queue is cleared by Abort() within interrupt();
		// nothing further to do here.

	case core.ActionResetTurn:
		x.mem.Clear()

	case core.ActionLogTurn:
		// The event loop's analytics sink consumes LogTurn directly; the
		// executor has no side effect to perform here.

	case core.ActionTransitionPhase:
		// Reserved for a future executor-initiated phase change; today every
		// transition originates from an extracted <signals> block the event
		// loop evaluates itself, so this Action kind is not yet emitted.

	default:
		x.logger.Warn("executor: unhandled action kind", "kind", string(action.Kind))
	}
}

func (x *Executor) interrupt() {
	x.mu.Lock()
	if x.turnCancel != nil {
		x.turnCancel()
	}
	if x.speakCancel != nil {
		x.speakCancel()
	}
	x.mu.Unlock()

	if err := x.orch.AbortTTS(); err != nil {
		x.logger.Warn("tts abort failed", "error", err)
	}
}

func (x *Executor) processTurn(ctx context.Context, profile config.Profile, phaseContext, humanTranscript string) {
	ctx, span := tracer.Start(ctx, "executor.process_turn", trace.WithAttributes(
		attribute.String("profile", profile.ID),
	))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	x.mu.Lock()
	if x.turnCancel != nil {
		x.turnCancel()
	}
	x.turnCancel = cancel
	x.mu.Unlock()
	defer cancel()

	started := x.clock()

	// Per spec.md §4.2 step 3: the human transcript joins conversation
	// memory before the prompt is built. AI-initiated turns (a phase
	// transition whose phase starts speaking first) carry no transcript.
	if humanTranscript != "" {
		x.mem.Append("user", humanTranscript)
	}

	llm, hasStreaming := x.orch.StreamingLLM()
	system := buildSystemPrompt(profile, phaseContext)
	messages := append([]orchestrator.Message{{Role: "system", Content: system}}, x.mem.Snapshot()...)

	var response strings.Builder
	sentence := &strings.Builder{}

	flushSentence := func() {
		text := sentence.String()
		sentence.Reset()
		if strings.TrimSpace(text) == "" {
			return
		}
		cleaned, signals := phase.ExtractSignals(text)
		if len(signals) > 0 && x.onSignals != nil {
			x.onSignals(signals)
		}
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == "" {
			return
		}
		response.WriteString(cleaned)
		x.emit(core.Event{Kind: core.EventAiSentenceReady, Text: cleaned, Timestamp: x.clock()})
	}

	onToken := func(token string) error {
		sentence.WriteString(token)
		if endsSentence(token) {
			flushSentence()
		}
		return nil
	}

	if err := x.genLimiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			x.logger.Warn("generation rate limiter wait failed", "error", err)
		}
		return
	}

	var err error
	if hasStreaming {
		err = x.withRetry(ctx, func() error {
			return llm.Stream(ctx, messages, profile.MaxTokens, profile.Temperature, onToken)
		})
	} else {
		var full string
		err = x.withRetry(ctx, func() error {
			var genErr error
			full, genErr = x.orch.GenerateResponse(ctx, messages)
			return genErr
		})
		if err == nil {
			sentence.WriteString(full)
		}
	}

	if err != nil {
		if ctx.Err() == nil {
			x.logger.Error("llm generation failed", "error", err)
		}
		return
	}

	flushSentence()
	x.mem.Append("assistant", response.String())
	x.emit(core.Event{Kind: core.EventAiStreamComplete, Timestamp: x.clock()})

	elapsed := x.clock().Sub(started)
	span.SetAttributes(attribute.Int64("llm_ms", elapsed.Milliseconds()))
}

// endsSentence reports whether token completes a sentence worth flushing
// early, so TTS can start speaking the first sentence while the LLM is
// still generating the rest.
func endsSentence(token string) bool {
	t := strings.TrimSpace(token)
	if t == "" {
		return false
	}
	last := t[len(t)-1]
	return last == '.' || last == '!' || last == '?' || last == '\n'
}

func buildSystemPrompt(profile config.Profile, phaseContext string) string {
	var b strings.Builder
	b.WriteString(profile.Instructions)
	if phaseContext != "" {
		b.WriteString("\n\n")
		b.WriteString(phaseContext)
	}
	if len(profile.Signals) > 0 {
		b.WriteString("\n\nYou may emit structured observations using this wire format:\n<signals>\n{ \"domain.event_name\": { ... } }\n</signals>\n\nAvailable signals:\n")
		for name, desc := range profile.Signals {
			fmt.Fprintf(&b, "- %s: %s\n", name, desc)
		}
	}
	return b.String()
}

func (x *Executor) speakSentence(ctx context.Context, profile config.Profile, text string) {
	ctx, cancel := context.WithCancel(ctx)
	x.mu.Lock()
	x.speakCancel = cancel
	x.mu.Unlock()
	defer cancel()

	x.emit(core.Event{Kind: core.EventTtsSentenceStarted, Timestamp: x.clock()})

	err := x.withRetry(ctx, func() error {
		return x.orch.SynthesizeStream(ctx, text, orchestrator.Voice(profile.VoiceID), orchestrator.LanguageEn, func(chunk []byte) error {
			x.audioOut(chunk)
			return nil
		})
	})
	if err != nil && ctx.Err() == nil {
		x.logger.Error("tts synthesis failed", "error", err)
	}

	x.emit(core.Event{Kind: core.EventTtsSentenceFinished, Timestamp: x.clock()})
	x.emit(core.Event{Kind: core.EventTtsQueueEmpty, Timestamp: x.clock()})
}

// withRetry wraps a provider call with the teacher stack's exponential
// backoff, per spec.md §7's "transient I/O failure" handling: a handful of
// quick retries before surfacing the error as a generation failure.
func (x *Executor) withRetry(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	return err
}

func (x *Executor) emit(e core.Event) {
	select {
	case x.events <- e:
	default:
		x.logger.Warn("executor: event queue full, dropping event", "kind", string(e.Kind))
	}
}

// RunPipelineStages is a thin errgroup-based helper the event loop can use
// to run independent startup probes (e.g. warming STT/TTS connections)
// concurrently before accepting audio, mirroring the teacher's use of
// errgroup for supervised background work.
func RunPipelineStages(ctx context.Context, stages ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, stage := range stages {
		stage := stage
		g.Go(func() error { return stage(ctx) })
	}
	return g.Wait()
}
