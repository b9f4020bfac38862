package parse

import "strings"

// Repair is the aggressive pass. Unlike Clean it scans character by
// character with escape-awareness, so brackets and literal-looking words
// inside string values never affect it.
func Repair(text string) string {
	text = closeBrackets(text)
	text = insertMissingCommas(text)
	text = normalizeLiterals(text)
	return text
}

// closeBrackets tracks an explicit bracket stack and appends whatever closers
// are missing at end-of-input. A brace inside a quoted string must not touch
// the stack; that invariant is the whole point of this function.
func closeBrackets(text string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if n := len(stack); n > 0 && stack[n-1] == '{' {
				stack = stack[:n-1]
			}
		case ']':
			if n := len(stack); n > 0 && stack[n-1] == '[' {
				stack = stack[:n-1]
			}
		}
	}

	if !inString && len(stack) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + len(stack) + 1)
	b.WriteString(text)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// insertMissingCommas adds a comma wherever a value ends and the next
// significant character starts another value with no separator between them.
func insertMissingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	var lastSig byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				inString = false
				lastSig = '"'
			}
			continue
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			b.WriteByte(c)
			continue
		}
		if startsValue(c) && endsValue(lastSig) {
			b.WriteByte(',')
		}
		b.WriteByte(c)
		if c == '"' {
			inString = true
		}
		lastSig = c
	}
	return b.String()
}

func startsValue(c byte) bool {
	return c == '"' || c == '{' || c == '['
}

func endsValue(c byte) bool {
	switch c {
	case '"', '}', ']':
		return true
	// 'e' and 'l' close true/false and null.
	case 'e', 'l':
		return true
	}
	return c >= '0' && c <= '9'
}

var literalFixes = map[string]string{
	"True":      "true",
	"TRUE":      "true",
	"False":     "false",
	"FALSE":     "false",
	"None":      "null",
	"Null":      "null",
	"NULL":      "null",
	"NaN":       "null",
	"undefined": "null",
}

// normalizeLiterals rewrites non-standard literal spellings to canonical
// JSON, skipping anything inside string values.
func normalizeLiterals(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); {
		c := text[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			i++
			continue
		}
		if isAlpha(c) {
			j := i
			for j < len(text) && isAlpha(text[j]) {
				j++
			}
			word := text[i:j]
			if rep, ok := literalFixes[word]; ok {
				b.WriteString(rep)
			} else {
				b.WriteString(word)
			}
			i = j
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
