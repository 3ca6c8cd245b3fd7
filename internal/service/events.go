package service

import (
	"log"
	"sync"
	"time"

	"beeper/backend/internal/model"
)

type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventBeepScheduled EventType = "beep_scheduled"
	EventBeepFired     EventType = "beep_fired"
	EventBeepUpdated   EventType = "beep_updated"
)

// Event is delivered to subscribers after the transition that caused it
// has been committed.
type Event struct {
	Type   EventType             `json:"type"`
	Status model.SchedulerStatus `json:"status"`
	Beep   *model.Beep           `json:"beep,omitempty"`
	At     time.Time             `json:"at"`
}

type listenerSet struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(Event)
}

func newListenerSet() *listenerSet {
	return &listenerSet{fns: make(map[int]func(Event))}
}

func (l *listenerSet) add(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listenerSet) publish(events []Event) {
	if len(events) == 0 {
		return
	}

	l.mu.Lock()
	fns := make([]func(Event), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, event := range events {
		for _, fn := range fns {
			deliver(fn, event)
		}
	}
}

func deliver(fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] listener panicked on %s: %v", event.Type, r)
		}
	}()
	fn(event)
}

// Subscribe registers fn for controller events. Listeners run on the
// goroutine that caused the event and must not block. Call the returned
// function to unsubscribe.
func (s *SchedulerService) Subscribe(fn func(Event)) func() {
	return s.listeners.add(fn)
}
