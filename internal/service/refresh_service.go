package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"task-reminder/internal/model"
	"task-reminder/internal/notify"
	"task-reminder/internal/repository"
)

const (
	// pendingSoftLimit leaves headroom under the hard cap; past this the
	// refresh pass prunes pending requests whose instant already passed.
	pendingSoftLimit = 50

	// deliveredRetention is how long delivered notifications stay in the
	// delivered log before housekeeping removes them.
	deliveredRetention = 24 * time.Hour
)

// RefreshService reconciles what the delivery service holds against what
// active tasks need. It runs on app start, after a notification delivery,
// and on the periodic background wake; gaps between runs only thin the
// buffer, never corrupt state.
type RefreshService struct {
	tasks     *repository.TaskRepository
	center    notify.Service
	reminders *ReminderService

	mu    sync.Mutex
	locks map[string]*taskLock
}

func NewRefreshService(tasks *repository.TaskRepository, center notify.Service, reminders *ReminderService) *RefreshService {
	return &RefreshService{
		tasks:     tasks,
		center:    center,
		reminders: reminders,
		locks:     map[string]*taskLock{},
	}
}

// taskLock serializes work on one task; refs counts holders and waiters
// so the entry can be dropped once nobody wants it.
type taskLock struct {
	sync.Mutex
	refs int
}

// withTaskLock runs fn holding the task's lock, so two racing refresh
// passes cannot push one buffer past its target. Lock entries live only
// while in use: the last holder removes the entry, and completed or
// deleted tasks leave nothing behind.
func (s *RefreshService) withTaskLock(taskID string, fn func() error) error {
	s.mu.Lock()
	lock, ok := s.locks[taskID]
	if !ok {
		lock = &taskLock{}
		s.locks[taskID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.Lock()
	err := fn()
	lock.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, taskID)
	}
	s.mu.Unlock()
	return err
}

// Refresh prunes stale delivery records and tops every active task's
// reminder buffer back up to target size. Returns the number of newly
// scheduled requests. A notify.ErrCapacityExceeded result is
// informational: everything scheduled before the budget ran out stays.
func (s *RefreshService) Refresh(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.center.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	delivered, err := s.center.ListDelivered(ctx)
	if err != nil {
		return 0, fmt.Errorf("list delivered: %w", err)
	}

	s.pruneDelivered(ctx, delivered, now)
	pending = s.prunePending(ctx, pending, now)

	tasks, err := s.tasks.ListActiveReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active tasks: %w", err)
	}

	added := 0
	for _, task := range tasks {
		n, err := s.topUpTask(ctx, &task, pending, now)
		added += n
		if errors.Is(err, notify.ErrCapacityExceeded) {
			// The shared budget is gone; lower-priority tasks cannot do
			// better than this pass already did.
			logrus.WithField("added", added).Warn("notification capacity exhausted during refresh")
			return added, err
		}
		if err != nil {
			logrus.WithError(err).WithField("task", task.ID).Warn("refresh top-up failed")
		}
	}

	logrus.WithFields(logrus.Fields{"tasks": len(tasks), "added": added}).Debug("notification refresh done")
	return added, nil
}

// pruneDelivered drops delivered-log entries older than the retention
// window. Housekeeping only; failures are logged and ignored.
func (s *RefreshService) pruneDelivered(ctx context.Context, delivered []notify.Delivered, now time.Time) {
	cutoff := now.Add(-deliveredRetention)
	var stale []string
	for _, d := range delivered {
		if d.DeliveredAt.Before(cutoff) {
			stale = append(stale, d.ID)
		}
	}
	if len(stale) == 0 {
		return
	}
	if err := s.center.RemoveDelivered(ctx, stale); err != nil {
		logrus.WithError(err).Warn("prune delivered failed")
		return
	}
	logrus.WithField("count", len(stale)).Debug("pruned old delivered notifications")
}

// prunePending removes pending requests whose instant already passed,
// but only when the pending set crowds the cap. The platform is expected
// to have fired these; the app just must not count on it.
func (s *RefreshService) prunePending(ctx context.Context, pending []notify.Request, now time.Time) []notify.Request {
	if len(pending) <= pendingSoftLimit {
		return pending
	}

	var outdated []string
	kept := make([]notify.Request, 0, len(pending))
	for _, req := range pending {
		if req.When.Before(now) {
			outdated = append(outdated, req.ID)
		} else {
			kept = append(kept, req)
		}
	}
	if len(outdated) == 0 {
		return pending
	}
	if err := s.center.Cancel(ctx, outdated); err != nil {
		logrus.WithError(err).Warn("prune pending failed")
		return pending
	}
	logrus.WithField("count", len(outdated)).Debug("pruned outdated pending notifications")
	return kept
}

// topUpTask refills both reminder buffers of one task under its lock.
func (s *RefreshService) topUpTask(ctx context.Context, task *model.Task, pending []notify.Request, now time.Time) (int, error) {
	added := 0
	err := s.withTaskLock(task.ID, func() error {
		for _, tp := range model.TimePoints {
			if !task.HasReminder(tp) {
				continue
			}

			prefix := notify.ReminderPrefix(tp, task.ID)
			count := 0
			var last *time.Time
			for _, req := range pending {
				if !strings.HasPrefix(req.ID, prefix) {
					continue
				}
				count++
				when := req.When
				if last == nil || when.After(*last) {
					last = &when
				}
			}

			if count >= ReminderBufferSize {
				continue
			}

			n, err := s.reminders.TopUp(ctx, task, tp, last, ReminderBufferSize-count, now)
			added += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	return added, err
}

// HandleDelivered reacts to fired notifications: each delivered reminder
// schedules its stream's next candidate, then one refresh pass runs to
// settle everything else. Delivery handling must never fail the caller.
func (s *RefreshService) HandleDelivered(ctx context.Context, deliveries []notify.Delivered, now time.Time) {
	for _, d := range deliveries {
		parsed, ok := notify.ParseID(d.ID)
		if !ok || !parsed.Reminder {
			continue
		}

		task, err := s.tasks.FindByID(ctx, parsed.TaskID)
		if err != nil {
			logrus.WithError(err).WithField("task", parsed.TaskID).Debug("delivered notification for unknown task")
			continue
		}
		if task.IsCompleted || task.IsArchived {
			continue
		}

		err = s.withTaskLock(task.ID, func() error {
			return s.reminders.ScheduleNextAfter(ctx, task, parsed.TimePoint, parsed.At, now)
		})
		if err != nil {
			logrus.WithError(err).WithField("task", task.ID).Warn("schedule next reminder failed")
		}
	}

	if _, err := s.Refresh(ctx, now); err != nil && !errors.Is(err, notify.ErrCapacityExceeded) {
		logrus.WithError(err).Warn("post-delivery refresh failed")
	}
}
