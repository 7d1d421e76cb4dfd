// Package events publishes expense change notifications.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Type identifies the kind of change.
type Type string

const (
	ExpenseCreated Type = "expense.created"
	ExpenseUpdated Type = "expense.updated"
	ExpenseDeleted Type = "expense.deleted"
)

// Event describes a change to one expense.
type Event struct {
	Type       Type      `json:"type"`
	ExpenseID  string    `json:"expense_id"`
	ReceiptRef string    `json:"receipt_ref,omitempty"`
	At         time.Time `json:"at"`
}

// New creates an event stamped with at in UTC.
func New(t Type, expenseID, receiptRef string, at time.Time) Event {
	return Event{Type: t, ExpenseID: expenseID, ReceiptRef: receiptRef, At: at.UTC()}
}

// ToJSON encodes the event as a message body.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes a message body.
func FromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
