// Package timeofday converts the heterogeneous time-of-day and weekday
// representations used on the wire into the canonical forms the matcher
// works with: seconds from midnight and Monday-based weekday indexes.
package timeofday

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidTimeFormat is returned when a time-of-day string matches none
	// of the accepted layouts and is not a bare integer-second value.
	ErrInvalidTimeFormat = errors.New("timeofday: invalid time format")
	// ErrUnknownWeekday is returned for weekday names outside Monday..Sunday.
	ErrUnknownWeekday = errors.New("timeofday: unknown weekday")
)

// SecondsPerDay is the exclusive upper bound for a seconds-from-midnight value.
const SecondsPerDay = 24 * 60 * 60

// matchWindowRadius is the half-width of the schedule matching window.
const matchWindowRadius = 600

// Layouts are tried in priority order; the first that parses wins. The
// 12-hour forms appear twice because time.Parse matches the meridiem marker
// case-sensitively and clients send both "8:30 PM" and "8:30pm".
var layouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3:04 pm", "3:04pm"}

// ParseSeconds converts a time-of-day string into seconds from midnight.
// Accepted forms: "HH:MM", "HH:MM:SS", "H:MM AM/PM", "H:MMAM/PM", and bare
// integer-second strings.
func ParseSeconds(text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		return parsed.Hour()*3600 + parsed.Minute()*60 + parsed.Second(), nil
	}

	if seconds, err := strconv.Atoi(trimmed); err == nil {
		return seconds, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, text)
}

var weekdayIndexes = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

// WeekdayIndex maps an English weekday name, case-insensitively, to its
// Monday-based index 0..6.
func WeekdayIndex(name string) (int, error) {
	index, ok := weekdayIndexes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, name)
	}
	return index, nil
}

// WeekdayOf converts a calendar date to the Monday-based index used
// throughout the ride tables (time.Weekday is Sunday-based).
func WeekdayOf(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// MatchWindow returns the inclusive [lower, upper] bounds of the ±10 minute
// schedule matching window around target, clamped to a valid day.
func MatchWindow(target int) (lower, upper int) {
	lower = target - matchWindowRadius
	if lower < 0 {
		lower = 0
	}
	upper = target + matchWindowRadius
	if upper > SecondsPerDay-1 {
		upper = SecondsPerDay - 1
	}
	return lower, upper
}
