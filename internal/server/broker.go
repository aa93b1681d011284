package server

import (
	"encoding/json"
	"sync"

	"github.com/playperu/agenthunt/internal/game"
)

const subscriptionBuffer = 16

// Subscription is one open event stream. A reset moves it to the session
// that replaces the one it was opened on, so a client keeps receiving events
// without reconnecting.
type Subscription struct {
	C <-chan []byte

	ch        chan []byte
	sessionID string // guarded by Broker.mu
}

// Broker is an in-process pub/sub for session events, keyed by session ID.
// It implements game.Publisher and feeds both the SSE and websocket streams.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe opens a stream of JSON-encoded events for the session.
func (b *Broker) Subscribe(sessionID string) *Subscription {
	ch := make(chan []byte, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID}
	b.mu.Lock()
	b.add(sub)
	b.mu.Unlock()
	return sub
}

func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	b.remove(sub)
	b.mu.Unlock()
}

// Publish sends an event to every subscriber of the session. A reset event
// is delivered to the old session's subscribers, which then follow
// NewSessionID.
func (b *Broker) Publish(sessionID string, ev game.Event) {
	data, _ := json.Marshal(ev)

	if ev.Type != game.EventReset || ev.NewSessionID == "" || ev.NewSessionID == sessionID {
		b.mu.RLock()
		b.deliver(sessionID, data)
		b.mu.RUnlock()
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver(sessionID, data)
	for sub := range b.subs[sessionID] {
		b.remove(sub)
		sub.sessionID = ev.NewSessionID
		b.add(sub)
	}
}

// Subscribers reports how many streams are open for a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

func (b *Broker) deliver(sessionID string, data []byte) {
	for sub := range b.subs[sessionID] {
		select {
		case sub.ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
}

func (b *Broker) add(sub *Subscription) {
	if b.subs[sub.sessionID] == nil {
		b.subs[sub.sessionID] = make(map[*Subscription]struct{})
	}
	b.subs[sub.sessionID][sub] = struct{}{}
}

func (b *Broker) remove(sub *Subscription) {
	delete(b.subs[sub.sessionID], sub)
	if len(b.subs[sub.sessionID]) == 0 {
		delete(b.subs, sub.sessionID)
	}
}
