// Package parse recovers structured data from completion-service output.
// The upstream model is asked for a single JSON object but frequently returns
// near-JSON: fenced blocks, trailing commas, missing commas, unbalanced
// braces, prose trailers. Parsing runs strict first and only escalates
// through the cleaning and repair passes when the previous pass failed.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseableResponse means every pass failed. This is a data-integrity
// failure; the orchestrator may retry the whole stage once but the error is
// never swallowed.
var ErrUnparseableResponse = errors.New("unparseable completion response")

// Pass identifies which pass produced a successful parse.
type Pass int

const (
	PassStrict Pass = iota
	PassClean
	PassRepair
)

const diagnosticLimit = 500

// Parse extracts and parses one JSON object from raw completion text.
func Parse(raw string) (map[string]any, error) {
	obj, _, err := ParseWithPass(raw)
	return obj, err
}

// ParseWithPass is Parse plus the pass that succeeded; tests use it to assert
// that the escalation short-circuits.
func ParseWithPass(raw string) (map[string]any, Pass, error) {
	candidate := Extract(raw)
	if strings.TrimSpace(candidate) == "" {
		return nil, PassStrict, unparseable(raw, fmt.Errorf("no JSON object found"))
	}

	if obj, err := strictParse(candidate); err == nil {
		return obj, PassStrict, nil
	}

	cleaned := Clean(candidate)
	if obj, err := strictParse(cleaned); err == nil {
		return obj, PassClean, nil
	}

	// Repair works from the extracted candidate, not the cleaned text: the
	// cleaning pass is not string-literal-aware and its brace counting can
	// mangle input that the escape-aware scan handles correctly.
	repaired := Repair(candidate)
	obj, err := strictParse(repaired)
	if err != nil {
		return nil, PassRepair, unparseable(raw, err)
	}
	return obj, PassRepair, nil
}

func unparseable(raw string, cause error) error {
	snippet := strings.TrimSpace(raw)
	if len(snippet) > diagnosticLimit {
		snippet = snippet[:diagnosticLimit] + "…"
	}
	return fmt.Errorf("%w: %v; text=%q", ErrUnparseableResponse, cause, snippet)
}

func strictParse(text string) (map[string]any, error) {
	var obj map[string]any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Extract locates the JSON candidate inside raw text: a fenced code block if
// present, else the substring between the first '{' and the last '}', else
// the whole trimmed text when it starts with '{'.
func Extract(raw string) string {
	if block, ok := fencedBlock(raw); ok {
		return strings.TrimSpace(block)
	}

	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first >= 0 && last > first {
		return raw[first : last+1]
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	return ""
}

func fencedBlock(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return "", false
	}
	rest := raw[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || isLanguageTag(firstLine) {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		// Unterminated fence: take everything after the opening fence.
		return rest, true
	}
	return rest[:end], true
}

func isLanguageTag(s string) bool {
	if len(s) > 16 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
