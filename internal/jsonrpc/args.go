package jsonrpc

import (
	"fmt"
	"time"

	"github.com/agent-mail/mailserver/internal/core"
)

// Args is the decoded "arguments" object of a tools/call request.
type Args map[string]any

func (a Args) str(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (a Args) require(key string) (string, error) {
	s := a.str(key)
	if s == "" {
		return "", core.Validation(key, "", "required", "")
	}
	return s, nil
}

func (a Args) intOr(key string, def int) int {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func (a Args) boolOr(key string, def bool) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (a Args) boolPtr(key string) *bool {
	v, ok := a[key]
	if !ok || v == nil {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func (a Args) strSlice(key string) []string {
	v, ok := a[key]
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a Args) intSlice(key string) []int {
	v, ok := a[key]
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, e := range raw {
		if n, ok := e.(float64); ok {
			out = append(out, int(n))
		}
	}
	return out
}

// timePtr parses an RFC3339 timestamp string under key, returning nil if
// absent or unparseable rather than erroring: every tool that accepts a
// since/as_of cursor treats a bad cursor as "no cursor" instead of failing
// the whole call.
func (a Args) timePtr(key string) *time.Time {
	s := a.str(key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func asArgs(v any) (Args, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be an object")
	}
	return Args(m), nil
}
