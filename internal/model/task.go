package model

import (
	"encoding/json"
	"time"
)

// Priority levels for tasks. Higher priorities get first claim on the
// shared notification budget when it runs tight.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank maps a priority to a comparable number (high > medium > low).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// NotifyKind selects how a time point signals: not at all, a single
// notification at the instant itself, or a repeating reminder stream.
type NotifyKind string

const (
	NotifyNone   NotifyKind = "none"
	NotifyOnce   NotifyKind = "once"
	NotifyRemind NotifyKind = "remind"
)

// TimePoint identifies one of a task's two reminder anchors. The raw
// values are part of the persisted notification id format and must not
// change.
type TimePoint string

const (
	TimePointStart    TimePoint = "starttime"
	TimePointDeadline TimePoint = "deadline"
)

// TimePoints lists both anchors in scheduling order.
var TimePoints = []TimePoint{TimePointStart, TimePointDeadline}

// Label is the human-readable name used in notification text.
func (tp TimePoint) Label() string {
	if tp == TimePointStart {
		return "Start time"
	}
	return "Deadline"
}

// Task is the unit of reminding. A task with IsRepeating set and no
// ParentTaskID is a template: it is never materialized into notifications
// itself, only its generated instances are.
type Task struct {
	ID         string `gorm:"primaryKey"`
	Title      string
	CategoryID *uint    `gorm:"index"`
	Priority   Priority `gorm:"default:medium"`

	StartTime *time.Time
	Deadline  *time.Time

	StartNotify      NotifyKind `gorm:"default:none"`
	StartOffsetMin   uint
	StartIntervalMin uint

	DeadlineNotify      NotifyKind `gorm:"default:none"`
	DeadlineOffsetMin   uint
	DeadlineIntervalMin uint

	IsCompleted bool `gorm:"default:false;index"`
	CompletedAt *time.Time
	IsArchived  bool `gorm:"default:false;index"`

	IsRepeating bool `gorm:"default:false"`
	// RepeatPatternRaw holds the JSON-encoded RepeatPattern; empty means
	// none. Use Pattern and SetPattern.
	RepeatPatternRaw []byte `gorm:"column:repeat_pattern"`
	RepeatEndDate    *time.Time
	ParentTaskID     *string `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotifySpec bundles the notification configuration of one time point.
type NotifySpec struct {
	Kind     NotifyKind
	Target   *time.Time
	Offset   time.Duration
	Interval time.Duration
}

// Notify returns the notification spec for the given time point.
func (t *Task) Notify(tp TimePoint) NotifySpec {
	if tp == TimePointStart {
		return NotifySpec{
			Kind:     t.StartNotify,
			Target:   t.StartTime,
			Offset:   time.Duration(t.StartOffsetMin) * time.Minute,
			Interval: time.Duration(t.StartIntervalMin) * time.Minute,
		}
	}
	return NotifySpec{
		Kind:     t.DeadlineNotify,
		Target:   t.Deadline,
		Offset:   time.Duration(t.DeadlineOffsetMin) * time.Minute,
		Interval: time.Duration(t.DeadlineIntervalMin) * time.Minute,
	}
}

// HasReminder reports whether the time point has an active reminder
// stream: remind kind with the anchor instant actually set.
func (t *Task) HasReminder(tp TimePoint) bool {
	spec := t.Notify(tp)
	return spec.Kind == NotifyRemind && spec.Target != nil
}

// HasAnyNotification reports whether any time point is configured to
// notify at all.
func (t *Task) HasAnyNotification() bool {
	return (t.StartNotify != NotifyNone && t.StartTime != nil) ||
		(t.DeadlineNotify != NotifyNone && t.Deadline != nil)
}

// ReminderEnd returns the instant at which the time point's reminder
// stream stops, or nil for "runs until the task completes".
//
// The deadline stream never ends on its own. The start-time stream ends at
// the start instant itself when a deadline is also set (the deadline
// stream takes over from there); with no deadline it runs until
// completion.
func (t *Task) ReminderEnd(tp TimePoint) *time.Time {
	if tp == TimePointDeadline {
		return nil
	}
	if t.StartTime != nil && t.Deadline != nil {
		return t.StartTime
	}
	return nil
}

// Pattern decodes the task's repeat pattern, or nil when it has none or
// the stored value is unreadable.
func (t *Task) Pattern() *RepeatPattern {
	if len(t.RepeatPatternRaw) == 0 {
		return nil
	}
	var p RepeatPattern
	if err := json.Unmarshal(t.RepeatPatternRaw, &p); err != nil {
		return nil
	}
	return &p
}

// SetPattern stores the repeat pattern, or clears it with nil.
func (t *Task) SetPattern(p *RepeatPattern) {
	if p == nil {
		t.RepeatPatternRaw = nil
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.RepeatPatternRaw = nil
		return
	}
	t.RepeatPatternRaw = data
}

// IsTemplate reports whether the task is a repeating template rather than
// a generated instance or a plain task.
func (t *Task) IsTemplate() bool {
	return t.IsRepeating && t.ParentTaskID == nil
}

// RootParentID returns the id generated instances should point at. An
// instance always references the original template, never another
// instance.
func (t *Task) RootParentID() string {
	if t.ParentTaskID != nil {
		return *t.ParentTaskID
	}
	return t.ID
}
