package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"task-reminder/internal/model"
	"task-reminder/internal/notify"
)

// ReminderBufferSize is how many future instants of a reminder stream are
// kept materialized per (task, time point). The delivery service caps the
// whole app at notify.MaxPending slots, so a potentially unbounded stream
// is never scheduled in full; a small window is kept live and refilled.
const ReminderBufferSize = 5

// ReminderService materializes notification requests from a task's time
// point configuration.
type ReminderService struct {
	center notify.Service
}

func NewReminderService(center notify.Service) *ReminderService {
	return &ReminderService{center: center}
}

// ScheduleAll schedules whatever both time points call for. Repeating
// templates are skipped; only their generated instances notify.
func (s *ReminderService) ScheduleAll(ctx context.Context, task *model.Task, now time.Time) error {
	if task.IsTemplate() {
		return nil
	}

	for _, tp := range model.TimePoints {
		spec := task.Notify(tp)
		if spec.Target == nil {
			continue
		}
		switch spec.Kind {
		case model.NotifyNone:
		case model.NotifyOnce:
			if err := s.ScheduleOnce(ctx, task, tp, now); err != nil {
				return err
			}
		case model.NotifyRemind:
			if _, err := s.Materialize(ctx, task, tp, now); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unhandled notification kind %q", spec.Kind)
		}
	}
	return nil
}

// ScheduleOnce schedules the single notification at the time point's
// instant. An instant already in the past is skipped silently: a moment
// that has passed is not an error, merely gone.
func (s *ReminderService) ScheduleOnce(ctx context.Context, task *model.Task, tp model.TimePoint, now time.Time) error {
	spec := task.Notify(tp)
	if spec.Target == nil {
		return nil
	}
	if !spec.Target.After(now) {
		logrus.WithFields(logrus.Fields{"task": task.ID, "timepoint": tp}).
			Debug("once notification in the past, skipped")
		return nil
	}

	id := notify.OnceID(tp, task.ID)
	return s.center.Schedule(ctx, id, *spec.Target, notificationContent(task, tp, *spec.Target, true))
}

// Materialize schedules up to ReminderBufferSize requests of the time
// point's reminder stream, starting from now. Returns how many were
// scheduled; on capacity or authorization failure it stops early and
// keeps the partial progress.
func (s *ReminderService) Materialize(ctx context.Context, task *model.Task, tp model.TimePoint, now time.Time) (int, error) {
	if !task.HasReminder(tp) || task.IsCompleted {
		return 0, nil
	}

	spec := task.Notify(tp)
	stream := NewReminderStream(*spec.Target, spec.Offset, spec.Interval, task.ReminderEnd(tp), now)
	return s.fill(ctx, task, tp, stream, ReminderBufferSize, now)
}

// TopUp continues the stream past the latest pending instant and fills
// the buffer back up to its target size.
func (s *ReminderService) TopUp(ctx context.Context, task *model.Task, tp model.TimePoint, lastPending *time.Time, needed int, now time.Time) (int, error) {
	if !task.HasReminder(tp) || task.IsCompleted {
		return 0, nil
	}

	spec := task.Notify(tp)
	var stream *ReminderStream
	if lastPending != nil {
		stream = ResumeReminderStream(*lastPending, spec.Interval, *spec.Target, task.ReminderEnd(tp))
	} else {
		stream = NewReminderStream(*spec.Target, spec.Offset, spec.Interval, task.ReminderEnd(tp), now)
	}
	return s.fill(ctx, task, tp, stream, needed, now)
}

// ScheduleNextAfter schedules the single next candidate once a reminder
// has been delivered, keeping the stream alive between refresh passes.
func (s *ReminderService) ScheduleNextAfter(ctx context.Context, task *model.Task, tp model.TimePoint, deliveredAt, now time.Time) error {
	if !task.HasReminder(tp) || task.IsCompleted {
		return nil
	}

	spec := task.Notify(tp)
	stream := ResumeReminderStream(deliveredAt, spec.Interval, *spec.Target, task.ReminderEnd(tp))
	for {
		c, ok := stream.Next()
		if !ok {
			return nil
		}
		if !c.At.After(now) {
			continue
		}
		id := notify.ReminderID(tp, task.ID, c.At)
		return s.center.Schedule(ctx, id, c.At, notificationContent(task, tp, c.At, c.Final))
	}
}

// fill drains the stream into the delivery service until count requests
// are scheduled or the stream ends. Candidates not strictly in the future
// are skipped without consuming budget.
func (s *ReminderService) fill(ctx context.Context, task *model.Task, tp model.TimePoint, stream *ReminderStream, count int, now time.Time) (int, error) {
	scheduled := 0
	for scheduled < count {
		c, ok := stream.Next()
		if !ok {
			break
		}
		if !c.At.After(now) {
			continue
		}

		id := notify.ReminderID(tp, task.ID, c.At)
		err := s.center.Schedule(ctx, id, c.At, notificationContent(task, tp, c.At, c.Final))
		switch {
		case err == nil:
			scheduled++
		case errors.Is(err, notify.ErrCapacityExceeded), errors.Is(err, notify.ErrAuthorizationDenied):
			return scheduled, err
		default:
			logrus.WithError(err).WithFields(logrus.Fields{"task": task.ID, "timepoint": tp}).
				Warn("reminder schedule failed")
		}
	}
	return scheduled, nil
}

// Cancel removes every outstanding request of the task, both time points
// and both modes, by deterministic id prefix.
func (s *ReminderService) Cancel(ctx context.Context, task *model.Task) error {
	return s.cancelPrefixes(ctx, notify.TaskPrefixes(task.ID))
}

// CancelTimePoint removes the outstanding requests of one time point.
func (s *ReminderService) CancelTimePoint(ctx context.Context, task *model.Task, tp model.TimePoint) error {
	return s.cancelPrefixes(ctx, notify.TimePointPrefixes(tp, task.ID))
}

func (s *ReminderService) cancelPrefixes(ctx context.Context, prefixes []string) error {
	pending, err := s.center.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending for cancel: %w", err)
	}
	ids := notify.MatchIDs(pending, prefixes)
	if len(ids) == 0 {
		return nil
	}
	return s.center.Cancel(ctx, ids)
}

// notificationContent builds the title and body for a request fired at
// the given instant.
func notificationContent(task *model.Task, tp model.TimePoint, at time.Time, final bool) notify.Content {
	spec := task.Notify(tp)
	label := tp.Label()

	title := task.Title
	if spec.Target != nil {
		title = fmt.Sprintf("%s (%s)", task.Title, spec.Target.Format("Jan 2 15:04"))
	}

	body := label + " reached"
	if !final && spec.Target != nil {
		minutes := int(spec.Target.Sub(at).Minutes())
		switch {
		case minutes >= 60:
			if m := minutes % 60; m > 0 {
				body = fmt.Sprintf("%s in %dh %dm", label, minutes/60, m)
			} else {
				body = fmt.Sprintf("%s in %dh", label, minutes/60)
			}
		case minutes > 0:
			body = fmt.Sprintf("%s in %dm", label, minutes)
		case minutes < 0:
			body = fmt.Sprintf("%s passed %dm ago", label, -minutes)
		}
	}

	return notify.Content{Title: title, Body: body}
}
