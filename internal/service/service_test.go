package service

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"task-reminder/internal/model"
	"task-reminder/internal/notify"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&model.Category{}, &model.Task{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// fakeCenter is an in-memory notify.Service with a configurable capacity,
// so capacity and authorization failures can be provoked without filling
// a real store.
type fakeCenter struct {
	mu         sync.Mutex
	capacity   int
	authorized bool
	pending    map[string]notify.Request
	delivered  map[string]notify.Delivered
}

func newFakeCenter() *fakeCenter {
	return &fakeCenter{
		capacity:   notify.MaxPending,
		authorized: true,
		pending:    map[string]notify.Request{},
		delivered:  map[string]notify.Delivered{},
	}
}

func (f *fakeCenter) Schedule(_ context.Context, id string, when time.Time, _ notify.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorized {
		return notify.ErrAuthorizationDenied
	}
	if _, exists := f.pending[id]; !exists && len(f.pending) >= f.capacity {
		return notify.ErrCapacityExceeded
	}
	f.pending[id] = notify.Request{ID: id, When: when}
	return nil
}

func (f *fakeCenter) Cancel(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.pending, id)
	}
	return nil
}

func (f *fakeCenter) ListPending(_ context.Context) ([]notify.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	requests := make([]notify.Request, 0, len(f.pending))
	for _, req := range f.pending {
		requests = append(requests, req)
	}
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].When.Equal(requests[j].When) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].When.Before(requests[j].When)
	})
	return requests, nil
}

func (f *fakeCenter) ListDelivered(_ context.Context) ([]notify.Delivered, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delivered := make([]notify.Delivered, 0, len(f.delivered))
	for _, d := range f.delivered {
		delivered = append(delivered, d)
	}
	sort.Slice(delivered, func(i, j int) bool {
		return delivered[i].DeliveredAt.Before(delivered[j].DeliveredAt)
	})
	return delivered, nil
}

func (f *fakeCenter) RemoveDelivered(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.delivered, id)
	}
	return nil
}

// put injects a pending request directly, bypassing capacity checks.
func (f *fakeCenter) put(id string, when time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[id] = notify.Request{ID: id, When: when}
}

// deliver moves a pending request into the delivered log at the given
// instant, the way a dispatch run would.
func (f *fakeCenter) deliver(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, id)
	f.delivered[id] = notify.Delivered{ID: id, DeliveredAt: at}
}

func (f *fakeCenter) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeCenter) hasPending(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[id]
	return ok
}

// deadlineReminderTask builds a task with a reminder stream on its
// deadline.
func deadlineReminderTask(id string, deadline time.Time, offsetMin, intervalMin uint) *model.Task {
	return &model.Task{
		ID:                  id,
		Title:               "task " + id,
		Priority:            model.PriorityMedium,
		Deadline:            &deadline,
		DeadlineNotify:      model.NotifyRemind,
		DeadlineOffsetMin:   offsetMin,
		DeadlineIntervalMin: intervalMin,
	}
}
