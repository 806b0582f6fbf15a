package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ExtractJSON decodes the first JSON value in a model reply into v. Markdown
// fences and trailing commas are tolerated. A reply that still fails to
// decode is reported as ErrService so callers take their fallback.
func ExtractJSON(text string, v any) error {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return fmt.Errorf("%w: no JSON in model reply", ErrService)
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return fmt.Errorf("%w: unterminated JSON in model reply", ErrService)
	}

	body := trailingComma.ReplaceAllString(s[start:end+1], "$1")
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %w", ErrService, err)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence from prose replies.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
