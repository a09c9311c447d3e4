package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"task-reminder/internal/model"
	"task-reminder/internal/repository"
)

// DefaultArchiveAfterDays is the grace period between completing a task
// and sweeping it into the archive.
const DefaultArchiveAfterDays = 7

// ErrNotCompleted is returned when archiving a task that is still open;
// an archived task is always a completed one.
var ErrNotCompleted = errors.New("cannot archive an incomplete task")

// ArchiveService moves long-completed tasks out of sight. The sweep is a
// stateless batch predicate: running it twice in a row archives nothing
// the second time.
type ArchiveService struct {
	tasks *repository.TaskRepository
}

func NewArchiveService(tasks *repository.TaskRepository) *ArchiveService {
	return &ArchiveService{tasks: tasks}
}

// Sweep archives every task completed more than graceDays ago. The grace
// period is measured from completion, not from any earlier archival, so
// unarchiving does not restart a timer.
func (s *ArchiveService) Sweep(ctx context.Context, now time.Time, graceDays int) (int64, error) {
	if graceDays <= 0 {
		graceDays = DefaultArchiveAfterDays
	}

	threshold := now.AddDate(0, 0, -graceDays)
	count, err := s.tasks.ArchiveCompletedBefore(ctx, threshold)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logrus.WithField("count", count).Info("archived completed tasks")
	}
	return count, nil
}

// Archive marks one task archived immediately.
func (s *ArchiveService) Archive(ctx context.Context, task *model.Task) error {
	if !task.IsCompleted {
		return ErrNotCompleted
	}
	task.IsArchived = true
	return s.tasks.Save(ctx, task)
}

// Unarchive restores an archived task to the completed list.
func (s *ArchiveService) Unarchive(ctx context.Context, task *model.Task) error {
	task.IsArchived = false
	return s.tasks.Save(ctx, task)
}

// Stats reports archive counters for diagnostics.
type ArchiveStats struct {
	Archived            int64
	CompletedUnarchived int64
}

func (s *ArchiveService) Stats(ctx context.Context) (ArchiveStats, error) {
	archived, err := s.tasks.CountArchived(ctx)
	if err != nil {
		return ArchiveStats{}, err
	}
	completed, err := s.tasks.CountCompletedUnarchived(ctx)
	if err != nil {
		return ArchiveStats{}, err
	}
	return ArchiveStats{Archived: archived, CompletedUnarchived: completed}, nil
}
