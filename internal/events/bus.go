// Package events is the in-process change signal. The ledger publishes an
// event after every mutation; views subscribe and re-read full state.
// Events carry no payload beyond the collection name.
package events

import (
	"sort"
	"sync"
	"time"
)

// Collection names used in events.
const (
	CollectionTransactions  = "transactions"
	CollectionCreditCards   = "credit_cards"
	CollectionGoals         = "financial_goals"
	CollectionDebts         = "debts"
	CollectionEmergencyFund = "emergency_fund"
	CollectionBudgets       = "budgets"
	CollectionCategories    = "categories"
	CollectionNotifications = "notifications"
)

// Event signals that a collection changed.
type Event struct {
	Collection string    `json:"collection"`
	At         time.Time `json:"at"`
}

// Handler receives published events.
type Handler func(Event)

// Bus is a typed publish/subscribe fan-out. It is safe for concurrent use.
// Publish is synchronous: handlers run on the publisher's goroutine, in
// subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]Handler
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers the event to every current subscriber. The subscriber
// snapshot is taken under the lock so handlers may subscribe or unsubscribe
// without deadlocking.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// SubscriberCount reports how many handlers are registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
