package facade

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// usageLimitClockPattern matches the reset-time fragment the Supervisor
// extracts from stderr/result text (see internal/supervisor's
// detectPrimaryUsageLimit), e.g. "3:00pm" or "3". "later" never matches
// and ParseUsageLimitReset reports ok=false for it.
var usageLimitClockPattern = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*([ap]m)?$`)

// ParseUsageLimitReset resolves a reset-time fragment into an absolute
// time.Time relative to now, rolling over to tomorrow when the named
// clock time has already passed today. ok is false when the fragment
// carries no parseable clock time (e.g. the "later" fallback).
func ParseUsageLimitReset(fragment string, now time.Time) (resetAt time.Time, ok bool) {
	m := usageLimitClockPattern.FindStringSubmatch(strings.TrimSpace(fragment))
	if m == nil {
		return time.Time{}, false
	}

	hour := atoiDefault(m[1], 0)
	minute := atoiDefault(m[2], 0)
	meridiem := strings.ToLower(m[3])

	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	default:
		// No am/pm marker: assume the next occurrence of this hour
		// on a 12-hour clock, consistent with how reset messages are
		// normally phrased ("resets at 3").
		if hour > 23 {
			return time.Time{}, false
		}
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if meridiem == "" && hour >= 1 && hour <= 12 {
		for !candidate.After(now) {
			candidate = candidate.Add(12 * time.Hour)
		}
		return candidate, true
	}
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, true
}

// FormatUsageLimitMessage renders the user-facing usage-limit message,
// including an absolute reset time when the fragment parses.
func FormatUsageLimitMessage(fragment string, now time.Time) string {
	resetAt, ok := ParseUsageLimitReset(fragment, now)
	if !ok {
		return "⏳ **Usage limit reached.** Try again later."
	}
	return fmt.Sprintf("⏳ **Usage limit reached.** Resets at %s.", resetAt.Format("3:04pm"))
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	return n
}
