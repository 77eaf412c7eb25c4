// Package phase implements the LLM signal-block parser and the
// PhaseTransition evaluator described in spec.md §4.3 / §6 / §9.
package phase

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	openTag  = "<signals>"
	closeTag = "</signals>"
)

// ExtractSignals strips every <signals>{...}</signals> block from text and
// returns the cleaned text plus the merged signal payloads. A block runs
// from <signals> to the first following </signals>; no brace matching is
// done. The whole trimmed content between the tags must be one valid JSON
// object: a block with any other text around the object inside the tags,
// or with invalid JSON, is stripped from the text and its payload silently
// dropped rather than failing the whole parse. Multiple blocks merge by
// last-write-wins on the signal name.
func ExtractSignals(text string) (string, map[string]map[string]interface{}) {
	signals := make(map[string]map[string]interface{})
	var cleaned strings.Builder

	rest := text
	for {
		start := strings.Index(rest, openTag)
		if start == -1 {
			cleaned.WriteString(rest)
			break
		}
		cleaned.WriteString(rest[:start])

		afterOpen := rest[start+len(openTag):]
		end := strings.Index(afterOpen, closeTag)
		if end == -1 {
			// Unterminated block: treat the rest as plain text rather than
			// silently eating it.
			cleaned.WriteString(rest[start:])
			break
		}

		payload := strings.TrimSpace(afterOpen[:end])
		mergeSignalBlock(signals, payload)

		rest = afterOpen[end+len(closeTag):]
	}

	return cleaned.String(), signals
}

// mergeSignalBlock parses one {"name": {...}, ...} object and merges its
// entries into signals, ignoring the whole block if it is not valid JSON.
func mergeSignalBlock(signals map[string]map[string]interface{}, payload string) {
	if !gjson.Valid(payload) {
		return
	}
	parsed := gjson.Parse(payload)
	if !parsed.IsObject() {
		return
	}

	parsed.ForEach(func(key, value gjson.Result) bool {
		var entry map[string]interface{}
		if value.IsObject() {
			entry = map[string]interface{}{}
			value.ForEach(func(k, v gjson.Result) bool {
				entry[k.String()] = v.Value()
				return true
			})
		} else {
			entry = map[string]interface{}{"value": value.Value()}
		}
		signals[key.String()] = entry
		return true
	})
}
