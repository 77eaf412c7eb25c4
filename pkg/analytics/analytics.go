// Package analytics renders a completed turn's core.TurnMetrics into the
// JSONL analytics record described by spec.md §6, and mirrors the same
// fields onto Prometheus metrics for live observability.
package analytics

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/turnkit/voicecore/pkg/core"
)

// Record is the on-disk/on-wire analytics record for one completed turn.
// Field names and types mirror spec.md §6 exactly so serializing and
// reparsing round-trips (testable property 8).
type Record struct {
	TurnID                  uint64  `json:"turn_id"`
	Timestamp               float64 `json:"timestamp"`
	ProfileName             string  `json:"profile_name"`
	PhaseID                 *string `json:"phase_id"`
	HumanTranscript         string  `json:"human_transcript"`
	AiTranscript            string  `json:"ai_transcript"`
	InterruptAttempts       int     `json:"interrupt_attempts"`
	InterruptsAccepted      int     `json:"interrupts_accepted"`
	EndReason               string  `json:"end_reason"`
	AuthorityMode           string  `json:"authority_mode"`
	SensitivityValue        float64 `json:"sensitivity_value"`
	TranscriptionMs         float64 `json:"transcription_ms"`
	LLMGenerationMs         float64 `json:"llm_generation_ms"`
	TotalLatencyMs          float64 `json:"total_latency_ms"`
	ConfidenceScoreAtCutoff float64 `json:"confidence_score_at_cutoff"`
}

// NewRecord builds a Record from a TurnMetrics snapshot and an explicit
// epoch-seconds timestamp (timestamps are supplied by the caller, not
// computed here, since core code and its dependents never call time.Now
// themselves outside the event loop).
func NewRecord(m core.TurnMetrics, timestamp float64) Record {
	var phaseID *string
	if m.PhaseID != "" {
		p := m.PhaseID
		phaseID = &p
	}
	return Record{
		TurnID:                  m.TurnID,
		Timestamp:               timestamp,
		ProfileName:             m.ProfileName,
		PhaseID:                 phaseID,
		HumanTranscript:         m.HumanTranscript,
		AiTranscript:            m.AiTranscript,
		InterruptAttempts:       m.InterruptAttempts,
		InterruptsAccepted:      m.InterruptsAccepted,
		EndReason:               string(m.EndReason),
		AuthorityMode:           string(m.AuthorityMode),
		SensitivityValue:        m.SensitivityValue,
		TranscriptionMs:         m.TranscriptionMs,
		LLMGenerationMs:         m.LLMGenerationMs,
		TotalLatencyMs:          m.TotalLatencyMs,
		ConfidenceScoreAtCutoff: m.ConfidenceAtCutoff,
	}
}

// Sink writes one JSON-encoded Record per line to an io.Writer and updates
// Prometheus counters/histograms describing turn outcomes.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
	enc *json.Encoder

	turnsTotal      *prometheus.CounterVec
	interruptsTotal prometheus.Counter
	latencyHist     *prometheus.HistogramVec
}

// NewSink wraps w (typically an append-mode *os.File) and registers its
// metrics against reg. Pass prometheus.DefaultRegisterer for the global
// registry.
func NewSink(w io.Writer, reg prometheus.Registerer) *Sink {
	s := &Sink{
		w:   w,
		enc: json.NewEncoder(w),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicecore",
			Name:      "turns_total",
			Help:      "Completed turns by end reason.",
		}, []string{"end_reason", "profile"}),
		interruptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicecore",
			Name:      "interrupts_accepted_total",
			Help:      "Accepted AI interruptions across all turns.",
		}),
		latencyHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voicecore",
			Name:      "turn_total_latency_ms",
			Help:      "End-to-end turn latency in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(50, 2, 10),
		}, []string{"profile"}),
	}
	if reg != nil {
		reg.MustRegister(s.turnsTotal, s.interruptsTotal, s.latencyHist)
	}
	return s
}

// Write appends one Record as a JSONL line and updates metrics.
func (s *Sink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(r); err != nil {
		return fmt.Errorf("analytics: encode record: %w", err)
	}

	s.turnsTotal.WithLabelValues(r.EndReason, r.ProfileName).Inc()
	s.interruptsTotal.Add(float64(r.InterruptsAccepted))
	s.latencyHist.WithLabelValues(r.ProfileName).Observe(r.TotalLatencyMs)
	return nil
}
