// Package jsonx extracts and repairs JSON embedded in raw model output.
// Model responses routinely wrap the payload in markdown fences, prepend
// prose, or truncate mid-object; this package recovers a parseable document
// from that text without any model round-trip.
package jsonx

import (
	"errors"
	"strings"
)

// ErrNoJSONFound is returned when the input contains no balanced top-level
// JSON object.
var ErrNoJSONFound = errors.New("jsonx: no JSON object found in text")

// Sanitize strips wrapping that commonly surrounds model JSON output:
// a UTF-8 BOM, markdown code fences, and control characters other than
// tab, newline and carriage return.
func Sanitize(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "\uFEFF")

	// Unwrap ```json ... ``` / ``` ... ``` fences. The closing fence may be
	// missing when the response was truncated.
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			continue
		}
		if c == 0x7f {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Extract returns the first balanced top-level JSON object in text.
// It walks the input with a byte-level state machine that tracks string
// literals and escape sequences, so braces inside string values never
// confuse the depth count. Iterating bytes is safe for the ASCII
// delimiters involved: UTF-8 guarantees they never occur inside a
// multi-byte sequence.
//
// Returns ErrNoJSONFound when no balanced object exists; in that case the
// longest unterminated candidate (from the first unmatched '{' to
// end-of-input) is returned alongside the error so callers can attempt
// repair.
func Extract(text string) (string, error) {
	var (
		depth    int
		start    = -1
		inString bool
		escape   bool
	)

	for i := 0; i < len(text); i++ {
		b := text[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}
		if b == '"' {
			inString = true
			continue
		}

		switch b {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}

	if start != -1 {
		// Truncated object: hand back the fragment for repair.
		return text[start:], ErrNoJSONFound
	}
	return "", ErrNoJSONFound
}
