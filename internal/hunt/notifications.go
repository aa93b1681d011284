package hunt

import (
	"slices"
	"sync"
	"time"
)

type Kind string

const (
	KindError    Kind = "error"
	KindSuccess  Kind = "success"
	KindInfo     Kind = "info"
	KindLifeline Kind = "lifeline"
)

const (
	notificationTTL   = 3 * time.Second
	notificationLimit = 5
)

type Notification struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Notifications is a bounded FIFO of transient messages for the player.
// Oldest entries fall off when the queue is full.
type Notifications struct {
	mu    sync.Mutex
	next  int64
	items []Notification
}

func NewNotifications() *Notifications {
	return &Notifications{}
}

func (q *Notifications) Push(kind Kind, msg string, now time.Time) Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.next++
	n := Notification{
		ID:        q.next,
		Kind:      kind,
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(notificationTTL),
	}
	q.items = append(q.items, n)
	if len(q.items) > notificationLimit {
		q.items = slices.Clone(q.items[len(q.items)-notificationLimit:])
	}
	return n
}

// Dismiss removes a notification and reports whether it was present.
func (q *Notifications) Dismiss(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := slices.IndexFunc(q.items, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// Active drops expired entries and returns the rest, oldest first.
func (q *Notifications) Active(now time.Time) []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = slices.DeleteFunc(q.items, func(n Notification) bool { return !now.Before(n.ExpiresAt) })
	return slices.Clone(q.items)
}
