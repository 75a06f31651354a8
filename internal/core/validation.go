package core

import (
	"regexp"
	"strings"
)

// agentNameRe and humanKeyRe mirror the original Rust model's validation
// patterns (crates/libs/lib-core/src/utils/validation.rs).
var (
	agentNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{1,64}$`)
	humanKeyRe  = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

const (
	minTTLSeconds = 60
	maxTTLSeconds = 604_800 // 7 days
)

// ValidateAgentName checks an agent name against the allowed charset and
// returns a *Error with a sanitized suggestion when it doesn't match.
func ValidateAgentName(name string) *Error {
	if agentNameRe.MatchString(name) {
		return nil
	}
	return Validation("agent_name", name, "must match ^[a-zA-Z0-9_]{1,64}$", SanitizeAgentName(name))
}

// SanitizeAgentName strips name down to the allowed charset, lowercases it,
// and truncates to 64 characters.
func SanitizeAgentName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
		if b.Len() >= 64 {
			break
		}
	}
	return strings.ToLower(b.String())
}

// ValidateProjectKey accepts any absolute path unconditionally (it need not
// exist yet) and otherwise requires the human-key charset.
func ValidateProjectKey(key string) *Error {
	if strings.HasPrefix(key, "/") {
		return nil
	}
	if humanKeyRe.MatchString(key) {
		return nil
	}
	suggestion := key
	if strings.Contains(key, "/") {
		suggestion = "/" + key
	} else {
		suggestion = sanitizeHumanKey(key)
	}
	return Validation("project_key", key, "must be an absolute path or match ^[a-zA-Z0-9_-]{1,64}$", suggestion)
}

func sanitizeHumanKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}

// ValidateReservationPath rejects absolute paths: reservations are always
// relative to the project root.
func ValidateReservationPath(path string) *Error {
	if !strings.HasPrefix(path, "/") {
		return nil
	}
	return Validation("path_pattern", path, "must be relative to the project root", strings.TrimPrefix(path, "/"))
}

var validContactPolicies = map[string]bool{"manual": true, "auto_accept": true, "blocked": true}

// ValidateContactPolicy checks policy against the three recognized values.
func ValidateContactPolicy(policy string) *Error {
	if validContactPolicies[policy] {
		return nil
	}
	return Validation("contact_policy", policy, "must be one of manual, auto_accept, blocked", "manual")
}

// ValidateTTL clamps a requested TTL into [60s, 7d], returning a validation
// error with the clamped suggestion when out of range.
func ValidateTTL(seconds int) *Error {
	if seconds >= minTTLSeconds && seconds <= maxTTLSeconds {
		return nil
	}
	suggestion := seconds
	if suggestion < minTTLSeconds {
		suggestion = minTTLSeconds
	}
	if suggestion > maxTTLSeconds {
		suggestion = maxTTLSeconds
	}
	return &Error{
		Kind:       KindValidation,
		Field:      "ttl_seconds",
		Provided:   itoa(seconds),
		Reason:     "must be between 60 and 604800 seconds",
		Suggestion: itoa(suggestion),
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
