package service

import (
	"errors"
	"fmt"
	"time"

	"task-reminder/internal/model"
)

var errNoRepeatPattern = errors.New("task has no repeat pattern")

// NextOccurrence computes the occurrence following anchor under the given
// pattern. Pure and deterministic; calendar math happens in the anchor's
// location.
func NextOccurrence(anchor time.Time, pattern *model.RepeatPattern) (time.Time, error) {
	if pattern == nil {
		return time.Time{}, errNoRepeatPattern
	}

	switch pattern.Type {
	case model.RepeatDaily:
		return anchor.AddDate(0, 0, 1), nil
	case model.RepeatWeekly:
		return anchor.AddDate(0, 0, 7), nil
	case model.RepeatMonthly:
		return anchor.AddDate(0, 1, 0), nil
	case model.RepeatYearly:
		return anchor.AddDate(1, 0, 0), nil
	case model.RepeatEveryNHours:
		if pattern.HourInterval <= 0 {
			return time.Time{}, fmt.Errorf("everyNHours pattern with interval %d", pattern.HourInterval)
		}
		return anchor.Add(time.Duration(pattern.HourInterval) * time.Hour), nil
	case model.RepeatEveryNDays:
		if pattern.DayInterval <= 0 {
			return time.Time{}, fmt.Errorf("everyNDays pattern with interval %d", pattern.DayInterval)
		}
		return anchor.AddDate(0, 0, pattern.DayInterval), nil
	case model.RepeatNthWeekdayOfMonth:
		return nthWeekdayOfNextMonth(anchor, pattern.Weekday, pattern.Week)
	case model.RepeatCustom:
		return nextCustomDay(anchor, pattern.CustomDays)
	default:
		return time.Time{}, fmt.Errorf("unknown repeat pattern %q", pattern.Type)
	}
}

// nthWeekdayOfNextMonth finds the week-th occurrence of weekday in the
// month after anchor's month. It always advances to the next month, even
// when the nth weekday of the current month is still upcoming; that keeps
// "first Monday of the month" tasks from firing twice in one month.
func nthWeekdayOfNextMonth(anchor time.Time, weekday time.Weekday, week int) (time.Time, error) {
	if week < 1 || week > 5 {
		return time.Time{}, fmt.Errorf("nthWeekdayOfMonth pattern with week %d", week)
	}

	year, month, _ := anchor.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, anchor.Location())

	daysAhead := (int(weekday) - int(firstOfNext.Weekday()) + 7) % 7
	daysAhead += (week - 1) * 7
	return firstOfNext.AddDate(0, 0, daysAhead), nil
}

// nextCustomDay scans forward day by day for the first weekday in the
// set. Any non-empty set matches within a week; an empty or bogus set is
// a configuration error, not a silent fallback.
func nextCustomDay(anchor time.Time, days []time.Weekday) (time.Time, error) {
	if len(days) == 0 {
		return time.Time{}, errors.New("custom pattern with no weekdays")
	}

	allowed := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		allowed[d] = true
	}

	current := anchor
	for i := 0; i < 14; i++ {
		current = current.AddDate(0, 0, 1)
		if allowed[current.Weekday()] {
			return current, nil
		}
	}
	return time.Time{}, fmt.Errorf("no matching weekday within 14 days of %s", anchor.Format(time.RFC3339))
}
