// Package rules holds the notification rules shared by the API, the
// dispatcher and the command-line client. Everything here is pure.
package rules

import (
	"fmt"
	"time"
)

// Severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event categories
const (
	CategoryBackup    = "backup"
	CategoryContainer = "container"
	CategorySystem    = "system"
	CategorySecurity  = "security"
	CategorySSL       = "ssl"
)

// Categories lists event categories in display order.
var Categories = []string{CategoryBackup, CategoryContainer, CategorySystem, CategorySecurity, CategorySSL}

// Escalation levels
const (
	LevelImmediate = 1
	LevelEscalated = 2
)

// DefaultEscalationTimeout applies to level 2 targets created without a timeout.
const DefaultEscalationTimeout = 30

// EscalationTimeoutPresets are the accepted level 2 delays in minutes.
var EscalationTimeoutPresets = []int{15, 30, 45, 60, 90, 120}

// MaxCooldownMinutes bounds cooldown_minutes.
const MaxCooldownMinutes = 120

// Frequency values
const (
	FrequencyEveryTime   = "every_time"
	FrequencyOncePer15m  = "once_per_15m"
	FrequencyOncePer30m  = "once_per_30m"
	FrequencyOncePerHour = "once_per_hour"
	FrequencyOncePer4h   = "once_per_4h"
	FrequencyOncePer12h  = "once_per_12h"
	FrequencyOncePerDay  = "once_per_day"
	FrequencyOncePerWeek = "once_per_week"
)

var frequencyWindows = map[string]time.Duration{
	FrequencyEveryTime:   0,
	FrequencyOncePer15m:  15 * time.Minute,
	FrequencyOncePer30m:  30 * time.Minute,
	FrequencyOncePerHour: time.Hour,
	FrequencyOncePer4h:   4 * time.Hour,
	FrequencyOncePer12h:  12 * time.Hour,
	FrequencyOncePerDay:  24 * time.Hour,
	FrequencyOncePerWeek: 7 * 24 * time.Hour,
}

// ValidFrequency reports whether f is a known rate window.
func ValidFrequency(f string) bool {
	_, ok := frequencyWindows[f]
	return ok
}

// FrequencyWindow returns the minimum gap between two notifications of the
// same event type. every_time (and unknown values) return 0.
func FrequencyWindow(f string) time.Duration {
	return frequencyWindows[f]
}

// SuppressionWindow is the effective gap for an event: the frequency window,
// or the cooldown when the frequency is every_time.
func SuppressionWindow(frequency string, cooldownMinutes int) time.Duration {
	if frequency == FrequencyEveryTime || frequency == "" {
		if cooldownMinutes <= 0 {
			return 0
		}
		return time.Duration(cooldownMinutes) * time.Minute
	}
	return FrequencyWindow(frequency)
}

// ValidSeverity reports whether s is info, warning or critical.
func ValidSeverity(s string) bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// ValidCategory reports whether c is a known event category.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// ValidEscalationTimeout reports whether minutes is one of the presets.
func ValidEscalationTimeout(minutes int) bool {
	for _, p := range EscalationTimeoutPresets {
		if p == minutes {
			return true
		}
	}
	return false
}

// EffectivelyEnabled is the only definition of "this event will notify":
// it must be switched on and have somewhere to go.
func EffectivelyEnabled(enabled bool, targetCount int) bool {
	return enabled && targetCount > 0
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsInQuietHours reports whether now falls inside [start, end). When start is
// after end the window wraps past midnight. An empty window (start == end)
// never matches.
func IsInQuietHours(now time.Time, start, end string) (bool, error) {
	startMin, err := ParseClock(start)
	if err != nil {
		return false, err
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return false, err
	}
	current := now.Hour()*60 + now.Minute()

	switch {
	case startMin == endMin:
		return false, nil
	case startMin < endMin:
		return current >= startMin && current < endMin, nil
	default:
		return current >= startMin || current < endMin, nil
	}
}
