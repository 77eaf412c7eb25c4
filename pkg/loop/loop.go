// Package loop wires the pure reducer (pkg/core) to the turn executor
// (pkg/executor), the signal bus (pkg/bus), the phase controller
// (pkg/phase), and the analytics sink (pkg/analytics) behind a single
// consumer goroutine, per spec.md §5's "single-threaded event loop, no
// concurrent Reduce calls" requirement.
//
// Loop owns the one core.State value for a conversation. Everything else
// (audio producer, provider callbacks, executor-synthesized events) only
// ever reaches State by sending a core.Event down the loop's channel.
package loop

import (
	"context"
	"strings"
	"time"

	"github.com/turnkit/voicecore/pkg/analytics"
	"github.com/turnkit/voicecore/pkg/bus"
	"github.com/turnkit/voicecore/pkg/core"
	"github.com/turnkit/voicecore/pkg/executor"
	"github.com/turnkit/voicecore/pkg/orchestrator"
	"github.com/turnkit/voicecore/pkg/phase"
)

// Loop is the single-consumer event loop. It is not safe for concurrent use
// by more than the one goroutine running Run; all other interaction happens
// through the Events channel or the Executor's callbacks.
type Loop struct {
	state State0
	events chan core.Event
	exec   *executor.Executor
	bus    *bus.Bus
	sink   *analytics.Sink
	logger orchestrator.Logger

	phaseController     *phase.Controller
	phaseEmittedSignals map[string]bool

	clock func() time.Time
}

// State0 is an alias kept local so this file reads naturally; it is simply
// core.State.
type State0 = core.State

// New builds a Loop seeded with the given initial State. queueSize bounds
// the Events channel the loop drains; producers (audio, executor) should
// treat a full channel as backpressure and drop rather than block, mirroring
// pkg/audio.Producer's own drop-oldest queue.
func New(initial core.State, queueSize int, exec *executor.Executor, b *bus.Bus, sink *analytics.Sink, logger orchestrator.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	l := &Loop{
		state:               initial,
		events:               make(chan core.Event, queueSize),
		exec:                 exec,
		bus:                  b,
		sink:                 sink,
		logger:               logger,
		phaseEmittedSignals: map[string]bool{},
		clock:                time.Now,
	}
	if initial.HasPhaseProfile {
		l.phaseController = phase.New(initial.PhaseProfile)
	}
	return l
}

// Events returns the channel external producers (the audio package, a text
// driver, a websocket handler) send Events into.
func (l *Loop) Events() chan<- core.Event {
	return l.events
}

// SetClock overrides the loop's notion of "now", for deterministic tests.
func (l *Loop) SetClock(c func() time.Time) { l.clock = c }

// SetExecutor attaches the Executor that will carry out Actions this Loop's
// Reduce calls produce. Callers build the Executor after the Loop (so it can
// be wired to l.Events() and l.OnExtractedSignals), then call this before
// Run.
func (l *Loop) SetExecutor(x *executor.Executor) { l.exec = x }

// State returns a copy of the current turn-taking State, for callers (a
// terminal UI, a debug endpoint) that want to observe it without risking a
// write.
func (l *Loop) State() core.State { return l.state }

// Bus returns the signal bus this Loop publishes to, so callers can
// subscribe before calling Run.
func (l *Loop) Bus() *bus.Bus { return l.bus }

// Run drains Events until ctx is cancelled, calling core.Reduce for each one
// and dispatching the resulting Actions/Signals. It always emits its own
// Tick every 80ms as well, alongside any Ticks an external producer
// sends, so a bare Loop is usable without pkg/audio wired in (e.g. a
// text-only driver).
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-l.events:
			l.handle(ctx, e)
		case now := <-ticker.C:
			l.handle(ctx, core.NewTick(now))
		}
	}
}

func (l *Loop) handle(ctx context.Context, e core.Event) {
	newState, actions, signals := core.Reduce(l.state, e)
	l.state = newState

	phaseContext := ""
	if l.state.HasPhaseProfile {
		if ph, ok := l.state.PhaseProfile.Phases[l.state.CurrentPhaseID]; ok {
			phaseContext = ph.Context
		}
	}

	for _, a := range actions {
		if a.Kind == core.ActionLogTurn {
			l.writeTurnMetrics(a.Metrics)
			continue
		}
		l.exec.Execute(ctx, l.state.ActiveProfile, phaseContext, a)
	}

	if len(signals) > 0 {
		l.bus.PublishAll(signals)
	}

	l.evaluatePhaseTransition(ctx)
}

// OnExtractedSignals merges one round of <signals> blocks the executor
// extracted from LLM output into this conversation's phase_emitted_signals
// and fans each one out on the signal bus, per spec.md §4.3 step 2: "For
// each extracted key, emit signal name.suffix with its payload" and "Add the
// key (prefixed with custom. if the profile's advertised set uses unprefixed
// names) to phase_emitted_signals." Pass this as the onSignals callback to
// executor.New.
func (l *Loop) OnExtractedSignals(signals map[string]map[string]interface{}) {
	for name, payload := range signals {
		published := customSignalName(name)
		l.bus.Publish(core.Signal{Name: published, Payload: payload})
		l.phaseEmittedSignals[published] = true
	}
}

// customSignalName applies the custom. prefix LLM-advertised signal names
// carry in PhaseTransition.TriggerSignals and the bus, since
// buildSystemPrompt shows the LLM its profile.Signals keys unprefixed.
func customSignalName(name string) string {
	if strings.HasPrefix(name, "custom.") {
		return name
	}
	return "custom." + name
}

func (l *Loop) evaluatePhaseTransition(ctx context.Context) {
	if l.phaseController == nil || !l.state.HasPhaseProfile {
		return
	}
	t, ok := l.phaseController.Evaluate(l.state.CurrentPhaseID, l.phaseEmittedSignals)
	if !ok {
		return
	}
	l.phaseEmittedSignals = map[string]bool{}
	l.handle(ctx, phase.SignalsToEvent(t.To))
}

func (l *Loop) writeTurnMetrics(m core.TurnMetrics) {
	if l.sink == nil {
		return
	}
	record := analytics.NewRecord(m, float64(l.clock().UnixMilli())/1000.0)
	if err := l.sink.Write(record); err != nil {
		l.logger.Warn("analytics write failed", "error", err)
	}
}
