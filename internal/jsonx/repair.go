package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// UnrepairableError reports that no repair strategy produced parseable JSON.
// Offset is the byte offset of the last parser failure, kept for diagnostics.
type UnrepairableError struct {
	Offset int64
	Err    error
}

func (e *UnrepairableError) Error() string {
	return fmt.Sprintf("jsonx: unrepairable JSON (last parse error at offset %d): %v", e.Offset, e.Err)
}

func (e *UnrepairableError) Unwrap() error { return e.Err }

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

	// keyAfterCommaRe matches ', "key":', the start of the next member.
	// Seeing it while still inside a string means the string's closing
	// quote was dropped.
	keyAfterCommaRe = regexp.MustCompile(`^,\s*"[^"\n]*"\s*:`)
)

// Repair attempts structural repair of text that failed strict JSON parsing.
// Repairs are applied cumulatively in a fixed order, each idempotent, and a
// parse is re-attempted after every step:
//
//  1. close an unterminated string literal at end-of-input
//  2. balance unmatched '{'/'[' by closing open delimiters in LIFO order
//  3. strip trailing commas before a closing delimiter
//
// Already-valid JSON is returned unchanged. If nothing parses, Repair
// returns an *UnrepairableError carrying the last parser error offset.
func Repair(text string) (string, error) {
	lastErr := checkParse(text)
	if lastErr == nil {
		return text, nil
	}

	candidate := text
	for _, step := range []func(string) string{
		closeUnterminatedString,
		balanceDelimiters,
		stripTrailingCommas,
	} {
		candidate = step(candidate)
		if err := checkParse(candidate); err == nil {
			return candidate, nil
		} else {
			lastErr = err
		}
	}

	var offset int64
	var synErr *json.SyntaxError
	if errors.As(lastErr, &synErr) {
		offset = synErr.Offset
	}
	return "", &UnrepairableError{Offset: offset, Err: lastErr}
}

// checkParse runs a strict parse, accepting any top-level JSON value.
func checkParse(text string) error {
	var v any
	return json.Unmarshal([]byte(text), &v)
}

// closeUnterminatedString closes string literals that lost their terminating
// quote. Two cases: a string still open at end-of-input gets a quote
// appended, and a string that runs into the next object member
// (', "key":' seen while in-string) gets closed just before the comma.
// An open string swallows every delimiter after it, so this must run
// before bracket balancing.
func closeUnterminatedString(text string) string {
	var out strings.Builder
	out.Grow(len(text) + 1)
	inString, escape := false, false
	for i := 0; i < len(text); i++ {
		b := text[i]
		if escape {
			escape = false
			out.WriteByte(b)
			continue
		}
		if inString {
			switch {
			case b == '\\':
				escape = true
			case b == '"':
				inString = false
			case b == ',' && keyAfterCommaRe.MatchString(text[i:]):
				out.WriteByte('"')
				inString = false
			}
			out.WriteByte(b)
			continue
		}
		if b == '"' {
			inString = true
		}
		out.WriteByte(b)
	}
	if inString {
		out.WriteByte('"')
	}
	return out.String()
}

// balanceDelimiters appends the closing tokens for any unmatched '{' or '[',
// in reverse-open order. Delimiters inside string literals are ignored.
func balanceDelimiters(text string) string {
	var stack []byte
	inString, escape := false, false
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
		switch b {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, b)
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
	if len(stack) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// stripTrailingCommas removes a comma that directly precedes a closing
// delimiter, a construct several models emit but strict JSON rejects.
func stripTrailingCommas(text string) string {
	return trailingCommaRe.ReplaceAllString(text, "$1")
}

// ExtractAndRepair is the full recovery path for raw model output:
// sanitize, locate the object, then repair if the strict parse fails.
func ExtractAndRepair(raw string) (string, error) {
	text := Sanitize(raw)

	obj, err := Extract(text)
	if err != nil && obj == "" {
		return "", err
	}

	return Repair(obj)
}
