// Package notify delivers lifecycle notifications without blocking the
// operation that raised them.
package notify

import (
	"context"
	"errors"
	"time"
)

// Event names the lifecycle step a notification reports.
type Event string

const (
	EventCreated       Event = "request.created"
	EventAssigned      Event = "request.assigned"
	EventStatusChanged Event = "request.status_changed"
	EventClosed        Event = "request.closed"
	EventDeleted       Event = "request.deleted"
)

// Notification is one rendered message.
type Notification struct {
	ID         string    `json:"id"`
	Event      Event     `json:"event"`
	RequestID  string    `json:"request_id"`
	TicketCode string    `json:"ticket_code"`
	To         string    `json:"to,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Link       string    `json:"link"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ErrSkipped tells the dispatcher a sink had nothing to do with a message.
var ErrSkipped = errors.New("notification skipped")

// Sink delivers notifications to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Dispatch(n Notification)
}

// Nop discards everything.
type Nop struct{}

// Dispatch implements Notifier.
func (Nop) Dispatch(Notification) {}
