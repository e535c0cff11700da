// Package jsonparse is the one tolerant parser for JSON embedded in model
// output. Every stage that expects structured output goes through it.
package jsonparse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

// excerptLen bounds the raw output carried in parse errors.
const excerptLen = 200

var (
	fencePattern  = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n?(.*?)\\s*```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// Locate returns the text between the first '{' and the last '}' of s, after
// unwrapping a Markdown code fence when one is present.
func Locate(s string) (string, error) {
	s = strings.TrimPrefix(s, "\ufeff")
	if m := fencePattern.FindStringSubmatch(s); len(m) > 1 && strings.Contains(m[1], "{") {
		s = m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", &llmerrors.ResponseError{
			Op:      "locate JSON object",
			Excerpt: llmerrors.Excerpt(s, excerptLen),
			Err:     llmerrors.ErrMalformedResponse,
		}
	}
	return s[start : end+1], nil
}

// Unmarshal locates the JSON object in s and decodes it into v. When the
// located span does not parse, a repaired copy and then the first balanced
// object are tried before giving up with ErrMalformedResponse.
func Unmarshal(s string, v any) error {
	span, err := Locate(s)
	if err != nil {
		return err
	}

	candidates := []string{span, repair(span)}
	if balanced, ok := firstBalanced(span); ok && balanced != span {
		candidates = append(candidates, balanced, repair(balanced))
	}

	var lastErr error
	for _, c := range candidates {
		if lastErr = json.Unmarshal([]byte(c), v); lastErr == nil {
			return nil
		}
	}
	return &llmerrors.ResponseError{
		Op:      "decode JSON object",
		Excerpt: llmerrors.Excerpt(span, excerptLen),
		Err:     fmt.Errorf("%w: %w", llmerrors.ErrMalformedResponse, lastErr),
	}
}

// Object is Unmarshal into a generic map.
func Object(s string) (map[string]any, error) {
	var m map[string]any
	if err := Unmarshal(s, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &llmerrors.ResponseError{Op: "decode JSON object", Err: llmerrors.ErrMalformedResponse}
	}
	return m, nil
}

// Decode converts a generic value into out using json tags, accepting
// numbers and booleans encoded as strings.
func Decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %w", llmerrors.ErrMalformedResponse, err)
	}
	return nil
}

// repair fixes the syntax slips models make most often. String literals are
// left untouched.
func repair(s string) string {
	if !strings.Contains(s, `"`) && strings.Contains(s, `'`) {
		s = strings.ReplaceAll(s, `'`, `"`)
	}
	s = outsideStrings(s, func(code string) string {
		code = trailingComma.ReplaceAllString(code, "$1")
		return unquotedKey.ReplaceAllString(code, `$1"$2":`)
	})
	return strings.TrimSpace(s)
}

// outsideStrings applies fix to every run of s that is not inside a
// double-quoted string literal.
func outsideStrings(s string, fix func(string) string) string {
	var b strings.Builder
	b.Grow(len(s))
	runStart := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				b.WriteString(s[runStart : i+1])
				runStart = i + 1
			}
			continue
		}
		if c == '"' {
			b.WriteString(fix(s[runStart:i]))
			runStart = i
			inString = true
		}
	}
	if inString {
		b.WriteString(s[runStart:])
	} else {
		b.WriteString(fix(s[runStart:]))
	}
	return b.String()
}

// firstBalanced returns the first complete object in s, skipping braces that
// appear inside string literals.
func firstBalanced(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
