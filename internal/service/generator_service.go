package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"task-reminder/internal/model"
	"task-reminder/internal/repository"
)

const (
	// initialInstances is the rolling look-ahead window: how many future
	// occurrences of a repeating template exist at any time.
	initialInstances = 3

	// minPendingInstances is the low-water mark; completing an instance
	// below it generates one more.
	minPendingInstances = 2
)

// GeneratorService materializes concrete task occurrences from repeating
// templates. The template itself never carries reminders; its generated
// instances do, and they never recurse into further generation.
type GeneratorService struct {
	tasks     *repository.TaskRepository
	reminders *ReminderService
}

func NewGeneratorService(tasks *repository.TaskRepository, reminders *ReminderService) *GeneratorService {
	return &GeneratorService{tasks: tasks, reminders: reminders}
}

// Initialize generates the first look-ahead window of instances for a
// freshly created template, stopping early at the repeat end date.
func (s *GeneratorService) Initialize(ctx context.Context, parent *model.Task, now time.Time) error {
	pattern := parent.Pattern()
	if !parent.IsRepeating || pattern == nil {
		return nil
	}

	current := now
	if parent.Deadline != nil {
		current = *parent.Deadline
	} else if parent.StartTime != nil {
		current = *parent.StartTime
	}

	for i := 0; i < initialInstances; i++ {
		next, err := NextOccurrence(current, pattern)
		if err != nil {
			return fmt.Errorf("compute occurrence: %w", err)
		}
		if parent.RepeatEndDate != nil && next.After(*parent.RepeatEndDate) {
			break
		}

		if err := s.createInstance(ctx, parent, next, now); err != nil {
			return err
		}
		current = next
	}
	return nil
}

// OnCompleted keeps the rolling window full: when completing an instance
// leaves fewer than minPendingInstances siblings, exactly one more is
// generated, continuing from the latest known instance date.
func (s *GeneratorService) OnCompleted(ctx context.Context, task *model.Task, now time.Time) error {
	pattern := task.Pattern()
	if !task.IsRepeating || pattern == nil {
		return nil
	}

	parentID := task.RootParentID()
	pending, err := s.tasks.ListPendingInstances(ctx, parentID)
	if err != nil {
		return err
	}
	if len(pending) >= minPendingInstances {
		return nil
	}

	anchor := now
	switch {
	case len(pending) > 0:
		last := pending[len(pending)-1]
		if last.Deadline != nil {
			anchor = *last.Deadline
		} else if last.StartTime != nil {
			anchor = *last.StartTime
		}
	case task.Deadline != nil:
		anchor = *task.Deadline
	case task.StartTime != nil:
		anchor = *task.StartTime
	}

	next, err := NextOccurrence(anchor, pattern)
	if err != nil {
		return fmt.Errorf("compute occurrence: %w", err)
	}
	if task.RepeatEndDate != nil && next.After(*task.RepeatEndDate) {
		return nil // recurrence has run out
	}

	return s.createInstance(ctx, task, next, now)
}

// OnParentEdited rebuilds the look-ahead window from scratch: every
// incomplete sibling is deleted (notifications cancelled first) and the
// window is regenerated from the template's new configuration. Completed
// instances are untouched.
func (s *GeneratorService) OnParentEdited(ctx context.Context, parent *model.Task, now time.Time) error {
	if !parent.IsRepeating {
		return nil
	}

	pending, err := s.tasks.ListPendingInstances(ctx, parent.ID)
	if err != nil {
		return err
	}
	for i := range pending {
		instance := &pending[i]
		if err := s.reminders.Cancel(ctx, instance); err != nil {
			logrus.WithError(err).WithField("task", instance.ID).Warn("cancel instance notifications failed")
		}
		if err := s.tasks.Delete(ctx, instance); err != nil {
			return fmt.Errorf("delete stale instance: %w", err)
		}
	}
	if len(pending) > 0 {
		logrus.WithFields(logrus.Fields{"parent": parent.ID, "removed": len(pending)}).
			Debug("regenerating repeating instances")
	}

	return s.Initialize(ctx, parent, now)
}

// createInstance persists one occurrence and schedules its notifications.
// Scheduling failures never undo the stored instance.
func (s *GeneratorService) createInstance(ctx context.Context, source *model.Task, occurs time.Time, now time.Time) error {
	instance := instanceFrom(source, occurs)
	if err := s.tasks.Create(ctx, instance); err != nil {
		return err
	}

	if err := s.reminders.ScheduleAll(ctx, instance, now); err != nil {
		logrus.WithError(err).WithField("task", instance.ID).Warn("instance notification scheduling failed")
	}
	return nil
}

// instanceFrom copies the template's display and notification settings
// onto a new occurrence. The instance keeps the repeat metadata for
// display but always points at the root template, so instances never
// chain through other instances.
func instanceFrom(source *model.Task, occurs time.Time) *model.Task {
	parentID := source.RootParentID()
	instance := &model.Task{
		ID:         uuid.NewString(),
		Title:      source.Title,
		CategoryID: source.CategoryID,
		Priority:   source.Priority,

		StartNotify:      source.StartNotify,
		StartOffsetMin:   source.StartOffsetMin,
		StartIntervalMin: source.StartIntervalMin,

		DeadlineNotify:      source.DeadlineNotify,
		DeadlineOffsetMin:   source.DeadlineOffsetMin,
		DeadlineIntervalMin: source.DeadlineIntervalMin,

		IsRepeating:      true,
		RepeatPatternRaw: source.RepeatPatternRaw,
		RepeatEndDate:    source.RepeatEndDate,
		ParentTaskID:     &parentID,
	}

	// The occurrence lands on whichever time point the template uses,
	// deadline preferred.
	at := occurs
	if source.Deadline != nil || source.StartTime == nil {
		instance.Deadline = &at
	} else {
		instance.StartTime = &at
	}
	return instance
}
