package notify

import (
	"context"
	"errors"
	"time"
)

// MaxPending is the hard ceiling on concurrently scheduled requests,
// shared across every task in the app.
const MaxPending = 64

var (
	// ErrCapacityExceeded is returned by Schedule when the pending set is
	// already at MaxPending. Non-fatal: callers keep whatever they managed
	// to schedule before hitting it.
	ErrCapacityExceeded = errors.New("notification capacity exceeded")

	// ErrAuthorizationDenied is returned when notifications are disabled
	// for the whole app.
	ErrAuthorizationDenied = errors.New("notification authorization denied")
)

// Content is what a request shows when it fires.
type Content struct {
	Title string
	Body  string
}

// Request is a scheduled, not yet delivered notification.
type Request struct {
	ID   string
	When time.Time
}

// Delivered is an entry in the delivered log.
type Delivered struct {
	ID          string
	DeliveredAt time.Time
}

// Service is the notification delivery collaborator. Scheduling the same
// id twice overwrites rather than duplicates; Cancel and RemoveDelivered
// are idempotent even for unknown ids.
type Service interface {
	Schedule(ctx context.Context, id string, when time.Time, content Content) error
	Cancel(ctx context.Context, ids []string) error
	ListPending(ctx context.Context) ([]Request, error)
	ListDelivered(ctx context.Context) ([]Delivered, error)
	RemoveDelivered(ctx context.Context, ids []string) error
}
