package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDaily(t *testing.T) {
	next, err := Next(date(2024, 6, 1), Rule{Frequency: "daily", Interval: 3})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 6, 4), next)
}

func TestNextWeeklyIntervalTwo(t *testing.T) {
	d := date(2024, 6, 3)
	next, err := Next(d, Rule{Frequency: "weekly", Interval: 2})
	require.NoError(t, err)
	assert.Equal(t, d.AddDate(0, 0, 14), next)
}

func TestNextMonthlyRollsOverShortMonths(t *testing.T) {
	next, err := Next(date(2024, 1, 31), Rule{Frequency: "monthly", Interval: 1})
	require.NoError(t, err)
	// 2024 is a leap year, so Jan 31 + 1 month normalizes to Mar 2.
	assert.Equal(t, date(2024, 3, 2), next)
}

func TestNextYearly(t *testing.T) {
	next, err := Next(date(2024, 2, 29), Rule{Frequency: "yearly", Interval: 1})
	require.NoError(t, err)
	assert.Equal(t, date(2025, 3, 1), next)
}

func TestNextIntervalDefaultsToOne(t *testing.T) {
	next, err := Next(date(2024, 6, 1), Rule{Frequency: "daily"})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 6, 2), next)

	next, err = Next(date(2024, 6, 1), Rule{Frequency: "daily", Interval: -2})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 6, 2), next)
}

func TestNextUnknownFrequency(t *testing.T) {
	_, err := Next(date(2024, 6, 1), Rule{Frequency: "hourly"})
	assert.Error(t, err)
}

func TestNextZeroDateIsAnError(t *testing.T) {
	_, err := Next(time.Time{}, Rule{Frequency: "daily"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero")
}

func TestNextEndsAfterEndDate(t *testing.T) {
	d := date(2024, 6, 1)
	_, err := Next(d, Rule{Frequency: "daily", Interval: 1, EndDate: "2024-06-01"})
	assert.ErrorIs(t, err, ErrEnded)

	next, err := Next(d, Rule{Frequency: "daily", Interval: 1, EndDate: "2024-06-02"})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 6, 2), next)
}

func TestShouldGenerateOn(t *testing.T) {
	last := date(2024, 6, 1)
	rule := Rule{Frequency: "daily", Interval: 1}

	ok, err := ShouldGenerateOn(last, rule, date(2024, 6, 2))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ShouldGenerateOn(last, rule, date(2024, 6, 3))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldGenerateOnEndedSeries(t *testing.T) {
	last := date(2024, 6, 1)
	rule := Rule{Frequency: "daily", Interval: 1, EndDate: "2024-06-01"}

	ok, err := ShouldGenerateOn(last, rule, date(2024, 6, 2))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseRule(t *testing.T) {
	rule, err := ParseRule(`{"frequency":"weekly","interval":2,"maxOccurrences":5}`)
	require.NoError(t, err)
	assert.Equal(t, Rule{Frequency: "weekly", Interval: 2, MaxOccurrences: 5}, rule)

	_, err = ParseRule(`{"interval":2}`)
	assert.Error(t, err)

	_, err = ParseRule(`not json`)
	assert.Error(t, err)
}
