package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRecord is one scheduled or delivered request in the local
// center's log.
type NotificationRecord struct {
	ID          string    `gorm:"primaryKey"`
	ScheduledAt time.Time `gorm:"index"`
	Title       string
	Body        string
	Delivered   bool `gorm:"default:false;index"`
	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// LocalCenter is a Service backed by the task database. It enforces the
// MaxPending cap and keeps a delivered log, the way a platform
// notification center would. Delivery happens when DispatchDue runs and
// pushes due requests through the configured Sender.
type LocalCenter struct {
	db         *gorm.DB
	sender     Sender
	authorized bool
}

// NewLocalCenter migrates the request table and returns a ready center.
// With authorized false every Schedule call fails with
// ErrAuthorizationDenied, mirroring a revoked notification permission.
func NewLocalCenter(db *gorm.DB, sender Sender, authorized bool) (*LocalCenter, error) {
	if err := db.AutoMigrate(&NotificationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate notification records: %w", err)
	}
	return &LocalCenter{db: db, sender: sender, authorized: authorized}, nil
}

func (c *LocalCenter) Schedule(ctx context.Context, id string, when time.Time, content Content) error {
	if !c.authorized {
		return ErrAuthorizationDenied
	}

	db := c.db.WithContext(ctx)

	// Re-scheduling an existing id is an overwrite and never consumes a
	// new slot.
	var pending int64
	if err := db.Model(&NotificationRecord{}).
		Where("delivered = ? AND id <> ?", false, id).
		Count(&pending).Error; err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if pending >= MaxPending {
		return ErrCapacityExceeded
	}

	record := NotificationRecord{
		ID:          id,
		ScheduledAt: when,
		Title:       content.Title,
		Body:        content.Body,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&record).Error; err != nil {
		return fmt.Errorf("schedule notification %s: %w", id, err)
	}
	return nil
}

func (c *LocalCenter) Cancel(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.db.WithContext(ctx).
		Where("id IN ? AND delivered = ?", ids, false).
		Delete(&NotificationRecord{}).Error; err != nil {
		return fmt.Errorf("cancel notifications: %w", err)
	}
	return nil
}

func (c *LocalCenter) ListPending(ctx context.Context) ([]Request, error) {
	var records []NotificationRecord
	if err := c.db.WithContext(ctx).
		Where("delivered = ?", false).
		Order("scheduled_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	requests := make([]Request, len(records))
	for i, rec := range records {
		requests[i] = Request{ID: rec.ID, When: rec.ScheduledAt}
	}
	return requests, nil
}

func (c *LocalCenter) ListDelivered(ctx context.Context) ([]Delivered, error) {
	var records []NotificationRecord
	if err := c.db.WithContext(ctx).
		Where("delivered = ?", true).
		Order("delivered_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list delivered: %w", err)
	}

	delivered := make([]Delivered, 0, len(records))
	for _, rec := range records {
		at := rec.ScheduledAt
		if rec.DeliveredAt != nil {
			at = *rec.DeliveredAt
		}
		delivered = append(delivered, Delivered{ID: rec.ID, DeliveredAt: at})
	}
	return delivered, nil
}

func (c *LocalCenter) RemoveDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.db.WithContext(ctx).
		Where("id IN ? AND delivered = ?", ids, true).
		Delete(&NotificationRecord{}).Error; err != nil {
		return fmt.Errorf("remove delivered: %w", err)
	}
	return nil
}

// DispatchDue fires every pending request whose instant has passed and
// moves it to the delivered log. A failed send is logged but the request
// is still marked delivered: the center promises at-most-once, not
// retries.
func (c *LocalCenter) DispatchDue(ctx context.Context, now time.Time) ([]Delivered, error) {
	db := c.db.WithContext(ctx)

	var due []NotificationRecord
	if err := db.Where("delivered = ? AND scheduled_at <= ?", false, now).
		Order("scheduled_at ASC").
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("list due: %w", err)
	}

	var delivered []Delivered
	for _, rec := range due {
		if err := c.sender.Send(ctx, rec.Title, rec.Body); err != nil {
			logrus.WithError(err).WithField("id", rec.ID).Warn("notification send failed")
		}

		deliveredAt := now
		if err := db.Model(&NotificationRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{"delivered": true, "delivered_at": deliveredAt}).Error; err != nil {
			return delivered, fmt.Errorf("mark delivered %s: %w", rec.ID, err)
		}
		delivered = append(delivered, Delivered{ID: rec.ID, DeliveredAt: deliveredAt})
	}
	return delivered, nil
}
