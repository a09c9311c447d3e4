package model

import "time"

// RepeatType enumerates the supported recurrence rules.
type RepeatType string

const (
	RepeatDaily             RepeatType = "daily"
	RepeatWeekly            RepeatType = "weekly"
	RepeatMonthly           RepeatType = "monthly"
	RepeatYearly            RepeatType = "yearly"
	RepeatEveryNHours       RepeatType = "everyNHours"
	RepeatEveryNDays        RepeatType = "everyNDays"
	RepeatNthWeekdayOfMonth RepeatType = "nthWeekdayOfMonth"
	RepeatCustom            RepeatType = "custom"
)

// RepeatPattern is an immutable recurrence rule, serialized as JSON inside
// the owning task row. Only the fields relevant to Type are set.
type RepeatPattern struct {
	Type         RepeatType     `json:"type"`
	DayInterval  int            `json:"interval,omitempty"`     // everyNDays
	HourInterval int            `json:"hourInterval,omitempty"` // everyNHours
	Weekday      time.Weekday   `json:"weekday,omitempty"`      // nthWeekdayOfMonth
	Week         int            `json:"week,omitempty"`         // nthWeekdayOfMonth, 1 = first
	CustomDays   []time.Weekday `json:"customDays,omitempty"`   // custom
}

func Daily() *RepeatPattern   { return &RepeatPattern{Type: RepeatDaily} }
func Weekly() *RepeatPattern  { return &RepeatPattern{Type: RepeatWeekly} }
func Monthly() *RepeatPattern { return &RepeatPattern{Type: RepeatMonthly} }
func Yearly() *RepeatPattern  { return &RepeatPattern{Type: RepeatYearly} }

func EveryNHours(n int) *RepeatPattern {
	return &RepeatPattern{Type: RepeatEveryNHours, HourInterval: n}
}

func EveryNDays(n int) *RepeatPattern {
	return &RepeatPattern{Type: RepeatEveryNDays, DayInterval: n}
}

func NthWeekdayOfMonth(weekday time.Weekday, week int) *RepeatPattern {
	return &RepeatPattern{Type: RepeatNthWeekdayOfMonth, Weekday: weekday, Week: week}
}

func Custom(days ...time.Weekday) *RepeatPattern {
	return &RepeatPattern{Type: RepeatCustom, CustomDays: days}
}
