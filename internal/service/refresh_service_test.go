package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"task-reminder/internal/model"
	"task-reminder/internal/notify"
	"task-reminder/internal/repository"
)

func newRefreshFixture(t *testing.T) (*RefreshService, *repository.TaskRepository, *fakeCenter) {
	t.Helper()
	db := newTestDB(t)
	tasks := repository.NewTaskRepository(db)
	center := newFakeCenter()
	reminders := NewReminderService(center)
	return NewRefreshService(tasks, center, reminders), tasks, center
}

func TestRefreshTopsUpEmptyCenter(t *testing.T) {
	ctx := context.Background()
	svc, tasks, center := newRefreshFixture(t)

	now := streamBase
	task := deadlineReminderTask("t1", now.Add(10*time.Hour), 300, 60)
	require.NoError(t, tasks.Create(ctx, task))

	added, err := svc.Refresh(ctx, now)
	require.NoError(t, err)
	require.Equal(t, ReminderBufferSize, added)
	require.Equal(t, ReminderBufferSize, center.pendingCount())
}

func TestRefreshResumesFromLatestPending(t *testing.T) {
	ctx := context.Background()
	svc, tasks, center := newRefreshFixture(t)

	now := streamBase
	deadline := now.Add(10 * time.Hour)
	// Stream candidates are hourly from now+5h; the initial buffer covers
	// now+5h through now+9h.
	task := deadlineReminderTask("t1", deadline, 300, 60)
	require.NoError(t, tasks.Create(ctx, task))

	_, err := svc.Refresh(ctx, now)
	require.NoError(t, err)

	// Two earliest fire; the top-up resumes past the latest pending, and
	// only one candidate is left before the stream's final.
	for _, at := range []time.Time{now.Add(5 * time.Hour), now.Add(6 * time.Hour)} {
		center.deliver(notify.ReminderID(model.TimePointDeadline, task.ID, at), at)
	}

	added, err := svc.Refresh(ctx, now.Add(6*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.True(t, center.hasPending(notify.ReminderID(model.TimePointDeadline, task.ID, deadline)),
		"final candidate should be scheduled")

	// Nothing exists past the final candidate, so another pass adds zero.
	added, err = svc.Refresh(ctx, now.Add(6*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, added)
}

func TestRefreshHigherPriorityClaimsBudgetFirst(t *testing.T) {
	ctx := context.Background()
	svc, tasks, center := newRefreshFixture(t)
	center.capacity = 7

	now := streamBase
	low := deadlineReminderTask("low", now.Add(20*time.Hour), 600, 60)
	low.Priority = model.PriorityLow
	high := deadlineReminderTask("high", now.Add(20*time.Hour), 600, 60)
	high.Priority = model.PriorityHigh

	// Insertion order must not matter; priority decides.
	require.NoError(t, tasks.Create(ctx, low))
	require.NoError(t, tasks.Create(ctx, high))

	added, err := svc.Refresh(ctx, now)
	require.ErrorIs(t, err, notify.ErrCapacityExceeded)
	require.Equal(t, 7, added)

	pending, err := center.ListPending(ctx)
	require.NoError(t, err)
	highCount, lowCount := 0, 0
	for _, req := range pending {
		parsed, ok := notify.ParseID(req.ID)
		require.True(t, ok)
		switch parsed.TaskID {
		case "high":
			highCount++
		case "low":
			lowCount++
		}
	}
	require.Equal(t, ReminderBufferSize, highCount, "high priority should get a full buffer")
	require.Equal(t, 2, lowCount, "low priority gets the leftovers")
}

func TestRefreshPrunesOldDelivered(t *testing.T) {
	ctx := context.Background()
	svc, _, center := newRefreshFixture(t)

	now := streamBase
	center.deliver("deadline_reminder_old_1", now.Add(-25*time.Hour))
	center.deliver("deadline_reminder_recent_1", now.Add(-time.Hour))

	_, err := svc.Refresh(ctx, now)
	require.NoError(t, err)

	delivered, err := center.ListDelivered(ctx)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	require.Equal(t, "deadline_reminder_recent_1", delivered[0].ID)
}

func TestRefreshPrunesOutdatedPendingOverSoftLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, center := newRefreshFixture(t)

	now := streamBase
	for i := 0; i < 55; i++ {
		center.put(fmt.Sprintf("deadline_reminder_future_%d", i), now.Add(time.Duration(i+1)*time.Minute))
	}
	for i := 0; i < 5; i++ {
		center.put(fmt.Sprintf("deadline_reminder_past_%d", i), now.Add(-time.Duration(i+1)*time.Minute))
	}

	_, err := svc.Refresh(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 55, center.pendingCount())
	require.False(t, center.hasPending("deadline_reminder_past_0"))
}

func TestRefreshKeepsOutdatedPendingUnderSoftLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, center := newRefreshFixture(t)

	now := streamBase
	center.put("deadline_reminder_past_0", now.Add(-time.Minute))
	center.put("deadline_reminder_future_0", now.Add(time.Minute))

	_, err := svc.Refresh(ctx, now)
	require.NoError(t, err)
	require.True(t, center.hasPending("deadline_reminder_past_0"),
		"under the soft limit the platform is left to fire past requests")
}

func TestHandleDeliveredSchedulesNextAndSettles(t *testing.T) {
	ctx := context.Background()
	svc, tasks, center := newRefreshFixture(t)

	now := streamBase
	deadline := now.Add(10 * time.Hour)
	task := deadlineReminderTask("t1", deadline, 300, 60)
	require.NoError(t, tasks.Create(ctx, task))

	_, err := svc.Refresh(ctx, now)
	require.NoError(t, err)

	firedAt := now.Add(5 * time.Hour)
	id := notify.ReminderID(model.TimePointDeadline, task.ID, firedAt)
	center.deliver(id, firedAt)

	svc.HandleDelivered(ctx, []notify.Delivered{{ID: id, DeliveredAt: firedAt}}, firedAt.Add(time.Minute))

	// Buffer is whole again and extends one step closer to the deadline.
	require.Equal(t, ReminderBufferSize, center.pendingCount())
	require.True(t, center.hasPending(notify.ReminderID(model.TimePointDeadline, task.ID, deadline)))
}

func TestHandleDeliveredIgnoresCompletedTask(t *testing.T) {
	ctx := context.Background()
	svc, tasks, center := newRefreshFixture(t)

	now := streamBase
	task := deadlineReminderTask("t1", now.Add(10*time.Hour), 300, 60)
	task.IsCompleted = true
	completedAt := now
	task.CompletedAt = &completedAt
	require.NoError(t, tasks.Create(ctx, task))

	firedAt := now.Add(5 * time.Hour)
	id := notify.ReminderID(model.TimePointDeadline, task.ID, firedAt)
	svc.HandleDelivered(ctx, []notify.Delivered{{ID: id, DeliveredAt: firedAt}}, firedAt)

	require.Equal(t, 0, center.pendingCount(), "completed tasks never reschedule")
}

func TestHandleDeliveredIgnoresUnparseableIDs(t *testing.T) {
	ctx := context.Background()
	svc, _, center := newRefreshFixture(t)

	svc.HandleDelivered(ctx, []notify.Delivered{{ID: "garbage", DeliveredAt: streamBase}}, streamBase)
	require.Equal(t, 0, center.pendingCount())
}

func TestTaskLocksAreReleasedAndDropped(t *testing.T) {
	ctx := context.Background()
	svc, tasks, center := newRefreshFixture(t)

	now := streamBase
	task := deadlineReminderTask("t1", now.Add(10*time.Hour), 300, 60)
	require.NoError(t, tasks.Create(ctx, task))

	_, err := svc.Refresh(ctx, now)
	require.NoError(t, err)

	firedAt := now.Add(5 * time.Hour)
	id := notify.ReminderID(model.TimePointDeadline, task.ID, firedAt)
	center.deliver(id, firedAt)
	svc.HandleDelivered(ctx, []notify.Delivered{{ID: id, DeliveredAt: firedAt}}, firedAt.Add(time.Minute))

	// Lock entries exist only while held; long-running processes must not
	// accumulate one per task ever touched.
	svc.mu.Lock()
	remaining := len(svc.locks)
	svc.mu.Unlock()
	require.Equal(t, 0, remaining)
}

func TestWithTaskLockSerializes(t *testing.T) {
	svc, _, _ := newRefreshFixture(t)

	inside := 0
	maxInside := 0
	var observed sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.withTaskLock("t1", func() error {
				observed.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				observed.Unlock()

				time.Sleep(time.Millisecond)

				observed.Lock()
				inside--
				observed.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxInside, "critical sections for one task must not overlap")

	svc.mu.Lock()
	remaining := len(svc.locks)
	svc.mu.Unlock()
	require.Equal(t, 0, remaining)
}

func TestRefreshCapacityErrorIsNonFatal(t *testing.T) {
	ctx := context.Background()
	svc, tasks, center := newRefreshFixture(t)
	center.capacity = 2

	now := streamBase
	task := deadlineReminderTask("t1", now.Add(10*time.Hour), 300, 60)
	require.NoError(t, tasks.Create(ctx, task))

	added, err := svc.Refresh(ctx, now)
	if !errors.Is(err, notify.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	require.Equal(t, 2, added, "partial progress under capacity pressure stays")
	require.Equal(t, 2, center.pendingCount())
}
