package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"task-reminder/internal/model"
)

// Request ids follow "<timepoint>_<mode>_<taskID>[_<epochSeconds>]" with
// mode "once" or "reminder". The format is a persistence contract: prefix
// matching against it is how previously scheduled requests get cancelled,
// and the epoch suffix is what makes re-scheduling the same instant an
// overwrite instead of a duplicate.

const (
	modeOnce     = "once"
	modeReminder = "reminder"
)

// OnceID is the id of the single notification at a time point's instant.
func OnceID(tp model.TimePoint, taskID string) string {
	return fmt.Sprintf("%s_%s_%s", tp, modeOnce, taskID)
}

// ReminderID is the id of one reminder-stream notification.
func ReminderID(tp model.TimePoint, taskID string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%d", tp, modeReminder, taskID, at.Unix())
}

// ReminderPrefix matches every reminder-stream request of one
// (task, time point).
func ReminderPrefix(tp model.TimePoint, taskID string) string {
	return fmt.Sprintf("%s_%s_%s", tp, modeReminder, taskID)
}

// TaskPrefixes matches every request belonging to the task, across both
// time points and both modes.
func TaskPrefixes(taskID string) []string {
	prefixes := make([]string, 0, 4)
	for _, tp := range model.TimePoints {
		prefixes = append(prefixes, OnceID(tp, taskID), ReminderPrefix(tp, taskID))
	}
	return prefixes
}

// TimePointPrefixes matches every request of one (task, time point).
func TimePointPrefixes(tp model.TimePoint, taskID string) []string {
	return []string{OnceID(tp, taskID), ReminderPrefix(tp, taskID)}
}

// MatchIDs filters the pending set down to ids starting with any of the
// given prefixes. One list-and-filter pass is all cancellation ever needs.
func MatchIDs(requests []Request, prefixes []string) []string {
	var ids []string
	for _, req := range requests {
		for _, prefix := range prefixes {
			if strings.HasPrefix(req.ID, prefix) {
				ids = append(ids, req.ID)
				break
			}
		}
	}
	return ids
}

// ParsedID is a request id split back into its parts.
type ParsedID struct {
	TimePoint model.TimePoint
	TaskID    string
	Reminder  bool
	At        time.Time // scheduled instant, reminder mode only
}

// ParseID decodes a request id produced by OnceID or ReminderID.
func ParseID(id string) (ParsedID, bool) {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return ParsedID{}, false
	}

	tp := model.TimePoint(parts[0])
	if tp != model.TimePointStart && tp != model.TimePointDeadline {
		return ParsedID{}, false
	}

	parsed := ParsedID{TimePoint: tp, TaskID: parts[2]}
	switch parts[1] {
	case modeOnce:
		return parsed, len(parts) == 3
	case modeReminder:
		if len(parts) != 4 {
			return ParsedID{}, false
		}
		epoch, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return ParsedID{}, false
		}
		parsed.Reminder = true
		parsed.At = time.Unix(epoch, 0)
		return parsed, true
	default:
		return ParsedID{}, false
	}
}
