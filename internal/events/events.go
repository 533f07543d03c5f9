// Package events fans photo activity out to live subscribers.
//
// The service layer publishes after a mutation has been committed. Publishing
// is fire-and-forget: a slow or broken subscriber never fails the request
// that produced the event.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	PhotoCreated   = "photo.created"
	PhotoReacted   = "photo.reacted"
	PhotoCommented = "photo.commented"
	PhotoShared    = "photo.shared"
)

// Event describes one committed change to the feed.
type Event struct {
	Type      string    `json:"type"`
	PhotoID   string    `json:"photoId"`
	Actor     string    `json:"actor,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events. Implementations must be safe for concurrent use
// and must not block the caller for long.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Multi publishes to each publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}
