package parse

import (
	"regexp"
	"strings"
)

var (
	trailingCommaRe  = regexp.MustCompile(`,\s*([}\]])`)
	adjacentValuesRe = regexp.MustCompile(`(["}\]])[ \t]*\n[ \t]*(["{\[])`)
	adjacentBracesRe = regexp.MustCompile(`}\s*{`)
	adjacentArraysRe = regexp.MustCompile(`]\s*\[`)
)

// Clean is the cheap pass: regex-level fixes for the most common formatting
// drift. It is not string-literal-aware; anything it can't fix falls through
// to Repair, which is.
func Clean(text string) string {
	text = strings.TrimSpace(text)

	// Drop any prose trailer after the last closing brace.
	if last := strings.LastIndex(text, "}"); last >= 0 && last < len(text)-1 {
		text = text[:last+1]
	}

	// Trailing commas before a closing bracket.
	text = trailingCommaRe.ReplaceAllString(text, "$1")

	// Adjacent values separated only by a newline are missing a comma.
	text = adjacentValuesRe.ReplaceAllString(text, "$1,\n$2")
	text = adjacentBracesRe.ReplaceAllString(text, "},{")
	text = adjacentArraysRe.ReplaceAllString(text, "],[")

	// Balance unclosed braces by raw count. Repair does this properly with a
	// bracket stack; the count heuristic covers the truncated-tail case.
	opens := strings.Count(text, "{")
	closes := strings.Count(text, "}")
	for i := 0; i < opens-closes; i++ {
		text += "}"
	}

	return text
}
