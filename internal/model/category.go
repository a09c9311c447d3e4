package model

import "time"

// Category groups tasks by area (work, health, study, etc.). Tasks hold a
// weak reference: deleting a category clears the reference instead of
// cascading.
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
