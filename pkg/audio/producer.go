// Package audio provides the real-time capture producer (spec.md §4.4),
// which takes raw int16 PCM from any capture source (cmd/agent feeds it
// from a github.com/gen2brain/malgo device), plus the WAV container helper
// used by the batch STT providers.
//
// The producer is the sole writer of AudioFrame Events: it owns the VAD,
// the echo suppressor, and the bounded single-producer/single-consumer
// queue the event loop drains from. Tick Events also come from the event
// loop's own ticker, not only from PushTick.
package audio

import (
	"math"
	"sync"
	"time"

	"github.com/turnkit/voicecore/pkg/core"
	"github.com/turnkit/voicecore/pkg/orchestrator"
)

// FrameSamples is the spec's fixed frame size: 512 samples at 16kHz mono
// (~32ms per frame).
const FrameSamples = 512

// SampleRate is the spec's fixed capture rate.
const SampleRate = 16000

// TickInterval drives Tick emission at >=10Hz, per spec.md §5.
const TickInterval = 80 * time.Millisecond

// Producer converts raw int16 PCM from a capture device into core.Events
// (AudioFrame, VadSpeechStart/Stop, Tick), applying VAD and echo
// suppression before any frame reaches the queue.
type Producer struct {
	vad  orchestrator.VADProvider
	echo *orchestrator.EchoSuppressor

	out     chan core.Event
	dropped func()

	mu            sync.Mutex
	lastWasSpeech bool
	lastRMS       float64
}

// NewProducer builds a Producer. vad and echo may not be nil; queueSize
// bounds the AudioFrame/VadEvent channel with drop-oldest backpressure
// semantics (see PushPCM).
func NewProducer(vad orchestrator.VADProvider, echo *orchestrator.EchoSuppressor, queueSize int, onDropped func()) *Producer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if onDropped == nil {
		onDropped = func() {}
	}
	return &Producer{
		vad:     vad,
		echo:    echo,
		out:     make(chan core.Event, queueSize),
		dropped: onDropped,
	}
}

// Events returns the channel the event loop drains.
func (p *Producer) Events() <-chan core.Event {
	return p.out
}

// RecordPlayback feeds TTS-originated PCM into the echo suppressor's
// reference buffer before it reaches the speaker, so the next captured
// frame can be checked against it.
func (p *Producer) RecordPlayback(pcm []byte) {
	p.echo.RecordPlayedAudio(pcm)
}

// PushPCM converts one int16-encoded capture buffer into float32 samples,
// runs echo suppression and VAD over it, and enqueues the resulting Events.
// It never blocks: a full queue drops the oldest pending frame rather than
// stalling the capture callback, per spec.md §5's single-producer/
// single-consumer queue with drop-oldest backpressure.
func (p *Producer) PushPCM(now time.Time, pcm []byte) {
	cleaned := p.echo.RemoveEchoRealtime(pcm)

	samples := pcmToFloat32(cleaned)

	p.mu.Lock()
	p.lastRMS = RMS(samples)
	isSpeech := p.lastWasSpeech
	p.mu.Unlock()

	vadEvent, err := p.vad.Process(cleaned)
	if err == nil && vadEvent != nil {
		switch vadEvent.Type {
		case orchestrator.VADSpeechStart:
			isSpeech = true
			p.enqueue(core.Event{Kind: core.EventVadSpeechStart, Timestamp: now})
		case orchestrator.VADSpeechEnd:
			isSpeech = false
			p.enqueue(core.Event{Kind: core.EventVadSpeechStop, Timestamp: now})
		}
	}

	p.mu.Lock()
	p.lastWasSpeech = isSpeech
	p.mu.Unlock()

	p.enqueue(core.NewAudioFrame(now, samples, isSpeech))
}

// IsSpeaking reports the VAD's most recent speech/silence verdict. Callers
// that need to accumulate raw PCM for an STT provider lacking a streaming
// API (see cmd/agent) use this to know when to flush.
func (p *Producer) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWasSpeech
}

// LastRMS returns the energy of the most recently pushed frame, for a
// terminal VU meter or similar diagnostic display.
func (p *Producer) LastRMS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRMS
}

// PushTick enqueues a Tick Event; callers drive this at TickInterval.
func (p *Producer) PushTick(now time.Time) {
	p.enqueue(core.NewTick(now))
}

func (p *Producer) enqueue(e core.Event) {
	select {
	case p.out <- e:
	default:
		// Drop-oldest: make room by discarding the head, then retry once.
		select {
		case <-p.out:
			p.dropped()
		default:
		}
		select {
		case p.out <- e:
		default:
			p.dropped()
		}
	}
}

func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(sample) / 32768.0
	}
	return out
}

// RMS computes the root-mean-square energy of a float32 frame, exposed for
// the VU-meter display cmd/agent renders.
func RMS(samples []float32) float64 {
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
