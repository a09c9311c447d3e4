package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"task-reminder/internal/model"
	"task-reminder/internal/repository"
)

// ErrConflictingDates is returned when a task's deadline precedes its
// start time.
var ErrConflictingDates = errors.New("deadline must not precede start time")

// TaskInput carries everything needed to create or edit a task.
type TaskInput struct {
	Title    string         `validate:"required,min=1,max=255"`
	Category string         `validate:"max=64"`
	Priority model.Priority `validate:"required,oneof=low medium high"`

	StartTime *time.Time
	Deadline  *time.Time

	StartNotify      model.NotifyKind `validate:"oneof=none once remind"`
	StartOffsetMin   uint
	StartIntervalMin uint

	DeadlineNotify      model.NotifyKind `validate:"oneof=none once remind"`
	DeadlineOffsetMin   uint
	DeadlineIntervalMin uint

	IsRepeating   bool
	RepeatPattern *model.RepeatPattern
	RepeatEndDate *time.Time
}

// TaskService owns the save/complete/delete paths and keeps the
// notification and recurrence subsystems in step with the store. A store
// write failure always blocks the triggering action; notification
// failures never do — a saved task without active reminders beats a lost
// task.
type TaskService struct {
	tasks      *repository.TaskRepository
	categories *CategoryService
	reminders  *ReminderService
	generator  *GeneratorService
	validate   *validator.Validate
}

func NewTaskService(tasks *repository.TaskRepository, categories *CategoryService, reminders *ReminderService, generator *GeneratorService) *TaskService {
	return &TaskService{
		tasks:      tasks,
		categories: categories,
		reminders:  reminders,
		generator:  generator,
		validate:   validator.New(),
	}
}

// Create validates, persists, then schedules. If the task is a repeating
// template its first look-ahead window of instances is generated too.
func (s *TaskService) Create(ctx context.Context, input TaskInput, now time.Time) (*model.Task, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	var categoryID *uint
	if input.Category != "" {
		category, err := s.categories.GetOrCreate(ctx, input.Category)
		if err != nil {
			return nil, err
		}
		if category != nil {
			categoryID = &category.ID
		}
	}

	task := &model.Task{
		ID:         uuid.NewString(),
		Title:      input.Title,
		CategoryID: categoryID,
		Priority:   input.Priority,

		StartTime: input.StartTime,
		Deadline:  input.Deadline,

		StartNotify:      input.StartNotify,
		StartOffsetMin:   input.StartOffsetMin,
		StartIntervalMin: input.StartIntervalMin,

		DeadlineNotify:      input.DeadlineNotify,
		DeadlineOffsetMin:   input.DeadlineOffsetMin,
		DeadlineIntervalMin: input.DeadlineIntervalMin,

		IsRepeating:   input.IsRepeating,
		RepeatEndDate: input.RepeatEndDate,
	}
	task.SetPattern(input.RepeatPattern)

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := s.reminders.ScheduleAll(ctx, task, now); err != nil {
		logrus.WithError(err).WithField("task", task.ID).Warn("notification scheduling failed")
	}

	if task.IsTemplate() {
		if err := s.generator.Initialize(ctx, task, now); err != nil {
			logrus.WithError(err).WithField("task", task.ID).Warn("repeating instance generation failed")
		}
	}
	return task, nil
}

// Update persists an edited task, then cancels its outstanding requests
// before re-materializing so stale and fresh reminders never stack. An
// edited template gets its incomplete instances rebuilt.
func (s *TaskService) Update(ctx context.Context, task *model.Task, now time.Time) error {
	if task.StartTime != nil && task.Deadline != nil && task.Deadline.Before(*task.StartTime) {
		return ErrConflictingDates
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return err
	}

	if err := s.reminders.Cancel(ctx, task); err != nil {
		logrus.WithError(err).WithField("task", task.ID).Warn("notification cancel failed")
	}
	if err := s.reminders.ScheduleAll(ctx, task, now); err != nil {
		logrus.WithError(err).WithField("task", task.ID).Warn("notification scheduling failed")
	}

	if task.IsTemplate() {
		if err := s.generator.OnParentEdited(ctx, task, now); err != nil {
			logrus.WithError(err).WithField("task", task.ID).Warn("repeating instance rebuild failed")
		}
	}
	return nil
}

// Complete marks the task done, cancels its notifications and, for
// repeating instances, lets the generator keep the rolling window full.
func (s *TaskService) Complete(ctx context.Context, id string, now time.Time) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}

	task.IsCompleted = true
	completedAt := now
	task.CompletedAt = &completedAt

	if err := s.reminders.Cancel(ctx, task); err != nil {
		logrus.WithError(err).WithField("task", task.ID).Warn("notification cancel failed")
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, err
	}

	if task.IsRepeating {
		if err := s.generator.OnCompleted(ctx, task, now); err != nil {
			logrus.WithError(err).WithField("task", task.ID).Warn("next instance generation failed")
		}
	}
	return task, nil
}

// Delete cancels the task's notifications and removes it.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find task: %w", err)
	}

	if err := s.reminders.Cancel(ctx, task); err != nil {
		logrus.WithError(err).WithField("task", task.ID).Warn("notification cancel failed")
	}
	return s.tasks.Delete(ctx, task)
}

// Get fetches one task by id.
func (s *TaskService) Get(ctx context.Context, id string) (*model.Task, error) {
	return s.tasks.FindByID(ctx, id)
}

// List returns displayable tasks; templates stay hidden.
func (s *TaskService) List(ctx context.Context, includeArchived bool) ([]model.Task, error) {
	return s.tasks.ListVisible(ctx, includeArchived)
}

func (s *TaskService) validateInput(input TaskInput) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if input.StartTime != nil && input.Deadline != nil && input.Deadline.Before(*input.StartTime) {
		return ErrConflictingDates
	}
	if input.IsRepeating && input.RepeatPattern == nil {
		return errors.New("repeating task needs a repeat pattern")
	}
	return nil
}
