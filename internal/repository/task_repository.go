package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-reminder/internal/model"
)

// priorityRank orders the priority column high > medium > low in SQL.
const priorityRank = "CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END"

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Where("id = ?", task.ID).
		Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListActiveReminders returns tasks that still want reminder notifications:
// not completed, not archived, remind kind on at least one time point, and
// never a repeating template. Ordered priority-descending then
// creation-ascending so higher priorities get first claim on the shared
// notification budget.
func (r *TaskRepository) ListActiveReminders(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("is_completed = ? AND is_archived = ?", false, false).
		Where("start_notify = ? OR deadline_notify = ?", model.NotifyRemind, model.NotifyRemind).
		Where("is_repeating = ? OR parent_task_id IS NOT NULL", false).
		Order(priorityRank + " DESC, created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list active reminders: %w", err)
	}
	return tasks, nil
}

// ListPendingInstances returns the incomplete generated instances of a
// repeating template, earliest scheduled first.
func (r *TaskRepository) ListPendingInstances(ctx context.Context, parentID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("parent_task_id = ? AND is_completed = ?", parentID, false).
		Order("deadline ASC, start_time ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list pending instances: %w", err)
	}
	return tasks, nil
}

// ListVisible returns tasks for display. Repeating templates are always
// hidden; only their generated instances appear.
func (r *TaskRepository) ListVisible(ctx context.Context, includeArchived bool) ([]model.Task, error) {
	query := r.db.WithContext(ctx).
		Where("is_repeating = ? OR parent_task_id IS NOT NULL", false)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}

	var tasks []model.Task
	if err := query.Order("deadline ASC, created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ArchiveCompletedBefore flips is_archived on every completed, unarchived
// task whose completion instant predates the threshold. One batch write;
// running it again without new completions matches zero rows.
func (r *TaskRepository) ArchiveCompletedBefore(ctx context.Context, threshold time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("is_completed = ? AND is_archived = ?", true, false).
		Where("completed_at IS NOT NULL AND completed_at < ?", threshold).
		Update("is_archived", true)
	if result.Error != nil {
		return 0, fmt.Errorf("archive completed tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *TaskRepository) CountArchived(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("is_archived = ?", true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count archived: %w", err)
	}
	return count, nil
}

func (r *TaskRepository) CountCompletedUnarchived(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("is_completed = ? AND is_archived = ?", true, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count completed unarchived: %w", err)
	}
	return count, nil
}
