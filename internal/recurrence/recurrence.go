// Package recurrence projects the next occurrence of a repeating task rule.
// All functions are pure; occurrence counting and instance creation live in
// the scheduler.
package recurrence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEnded reports that a computed occurrence falls past the rule's end date.
var ErrEnded = errors.New("recurrence series ended")

// Rule is the recurrence descriptor stored on a task's recurring_rule field.
// The stored JSON is copied verbatim onto each generated instance so a series
// stays linked by its exact rule string.
type Rule struct {
	Frequency      string `json:"frequency"`
	Interval       int    `json:"interval,omitempty"`
	EndDate        string `json:"endDate,omitempty"`
	MaxOccurrences int    `json:"maxOccurrences,omitempty"`
}

func ParseRule(raw string) (Rule, error) {
	var r Rule
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Rule{}, fmt.Errorf("parse recurring rule: %w", err)
	}
	if r.Frequency == "" {
		return Rule{}, errors.New("recurring rule missing frequency")
	}
	return r, nil
}

// Next advances last by one period of the rule. Month and year arithmetic use
// naive calendar-field increments, so Jan 31 plus one month normalizes into
// early March rather than clamping to Feb's end. Returns ErrEnded when the
// computed date is strictly after the rule's end date.
func Next(last time.Time, rule Rule) (time.Time, error) {
	if last.IsZero() {
		return time.Time{}, errors.New("last occurrence date is zero")
	}
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	var next time.Time
	switch rule.Frequency {
	case "daily":
		next = last.AddDate(0, 0, interval)
	case "weekly":
		next = last.AddDate(0, 0, interval*7)
	case "monthly":
		next = last.AddDate(0, interval, 0)
	case "yearly":
		next = last.AddDate(interval, 0, 0)
	default:
		return time.Time{}, fmt.Errorf("unknown recurrence frequency %q", rule.Frequency)
	}

	if rule.EndDate != "" {
		end, err := parseDate(rule.EndDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse recurrence end date: %w", err)
		}
		if next.After(end) {
			return time.Time{}, ErrEnded
		}
	}
	return next, nil
}

// ShouldGenerateOn reports whether the occurrence following last lands on
// day (date component only). An ended series generates nothing.
func ShouldGenerateOn(last time.Time, rule Rule, day time.Time) (bool, error) {
	next, err := Next(last, rule)
	if errors.Is(err, ErrEnded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ny, nm, nd := next.UTC().Date()
	dy, dm, dd := day.UTC().Date()
	return ny == dy && nm == dm && nd == dd, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
