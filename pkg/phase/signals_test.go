package phase

import "testing"

func TestExtractSignals_StripsBlockFromText(t *testing.T) {
	text := `Welcome. <signals>{"exam.greeting_complete":{}}</signals>`
	cleaned, signals := ExtractSignals(text)

	if cleaned != "Welcome. " {
		t.Fatalf("expected signal block stripped, got %q", cleaned)
	}
	if _, ok := signals["exam.greeting_complete"]; !ok {
		t.Fatalf("expected exam.greeting_complete signal extracted")
	}
}

// Testable property 9.
func TestExtractSignals_MultipleBlocksMergeLastWriteWins(t *testing.T) {
	text := `<signals>{"a.b":{}}</signals><signals>{"a.b":{"c":1}}</signals>`
	_, signals := ExtractSignals(text)

	if len(signals) != 1 {
		t.Fatalf("expected exactly one merged signal, got %d", len(signals))
	}
	got, ok := signals["a.b"]
	if !ok {
		t.Fatalf("expected a.b present")
	}
	if v, ok := got["c"]; !ok || v != float64(1) {
		t.Fatalf("expected last-write-wins payload {c:1}, got %v", got)
	}
}

func TestExtractSignals_MalformedBlockDroppedSilently(t *testing.T) {
	text := `Hi <signals>{not valid json}</signals> there`
	cleaned, signals := ExtractSignals(text)

	if len(signals) != 0 {
		t.Fatalf("expected malformed block to yield no signals, got %v", signals)
	}
	if cleaned != "Hi  there" {
		t.Fatalf("expected block still stripped even though payload was invalid, got %q", cleaned)
	}
}

func TestExtractSignals_NestedObjectPayload(t *testing.T) {
	text := `<signals>{"domain.event":{"confidence":0.88,"nested":{"k":"v"}}}</signals>`
	_, signals := ExtractSignals(text)

	entry, ok := signals["domain.event"]
	if !ok {
		t.Fatalf("expected domain.event extracted")
	}
	if entry["confidence"] != 0.88 {
		t.Fatalf("expected confidence 0.88, got %v", entry["confidence"])
	}
}

func TestExtractSignals_NoBlocksReturnsTextUnchanged(t *testing.T) {
	cleaned, signals := ExtractSignals("just plain text")
	if cleaned != "just plain text" {
		t.Fatalf("expected unchanged text, got %q", cleaned)
	}
	if len(signals) != 0 {
		t.Fatalf("expected no signals")
	}
}
