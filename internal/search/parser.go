package search

import (
	"fmt"
	"strings"
)

// ParseTerm parses a single "field:value" or "field=value" term into a
// Request. The "=" form requests an exact match. Values may be wrapped in
// double quotes to keep surrounding whitespace.
//
// Examples:
//
//	chat_name:crypto
//	username="alice"
//	text:"hello world"
func ParseTerm(term string) (Request, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Request{}, fmt.Errorf("%w: empty query", ErrMissingParameter)
	}

	idx := strings.IndexAny(term, ":=")
	if idx <= 0 {
		return Request{}, fmt.Errorf("%w: expected field:value, got %q", ErrMissingParameter, term)
	}

	req := Request{Field: strings.ToLower(strings.TrimSpace(term[:idx]))}
	if term[idx] == '=' {
		req.Mode = string(ModeExact)
	}

	value := unquote(term[idx+1:])
	req.Value = &value
	return req, nil
}

// unquote strips one pair of surrounding double quotes, if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
