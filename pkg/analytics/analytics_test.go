package analytics

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/turnkit/voicecore/pkg/core"
)

// Testable property 8: serializing the analytics record and reparsing
// yields the same record.
func TestRecord_RoundTrips(t *testing.T) {
	m := core.TurnMetrics{
		TurnID:             7,
		ProfileName:        "default",
		PhaseID:            "part1",
		HumanTranscript:    "hello",
		AiTranscript:       "hi there",
		InterruptAttempts:  2,
		InterruptsAccepted: 1,
		EndReason:          core.EndReasonSilence,
		AuthorityMode:      core.AuthorityDefault,
		SensitivityValue:   0.5,
		TranscriptionMs:    120.5,
		LLMGenerationMs:    430.2,
		TotalLatencyMs:     900.1,
		ConfidenceAtCutoff: 0.93,
	}
	rec := NewRecord(m, 1700000000.0)

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTripped Record
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if roundTripped != rec {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", roundTripped, rec)
	}
}

func TestRecord_NilPhaseIDWhenUnset(t *testing.T) {
	rec := NewRecord(core.TurnMetrics{}, 0)
	if rec.PhaseID != nil {
		t.Fatalf("expected nil phase_id for empty PhaseID, got %v", *rec.PhaseID)
	}
}

func TestSink_WritesJSONLAndUpdatesMetrics(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	sink := NewSink(&buf, reg)

	rec := NewRecord(core.TurnMetrics{
		TurnID:             1,
		ProfileName:        "default",
		EndReason:          core.EndReasonSilence,
		InterruptsAccepted: 1,
		TotalLatencyMs:     500,
	}, 1700000000.0)

	if err := sink.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var decoded Record
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode written line: %v", err)
	}
	if decoded.TurnID != 1 {
		t.Fatalf("unexpected turn id %d", decoded.TurnID)
	}

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(metrics) == 0 {
		t.Fatalf("expected registered metrics to be gathered")
	}
}
