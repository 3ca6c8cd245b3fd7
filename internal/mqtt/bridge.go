package mqtt

import (
	"context"
	"log"

	"beeper/backend/internal/service"
)

// Bridge forwards controller events to a Publisher on its own goroutine so
// a slow broker never holds up a scheduler transition.
type Bridge struct {
	pub    Publisher
	events chan service.Event
}

func NewBridge(pub Publisher, capacity int) *Bridge {
	if capacity <= 0 {
		capacity = 64
	}
	return &Bridge{pub: pub, events: make(chan service.Event, capacity)}
}

// Handle queues an event. It never blocks; when the queue is full the
// event is dropped and logged.
func (b *Bridge) Handle(event service.Event) {
	select {
	case b.events <- event:
	default:
		log.Printf("[mqtt] event queue full, dropping %s", event.Type)
	}
}

// Run publishes queued events until ctx is done, then drains what is left.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case event := <-b.events:
			b.publish(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-b.events:
					b.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) publish(event service.Event) {
	if err := b.pub.PublishEvent(event); err != nil {
		log.Printf("[mqtt] publish %s: %v", event.Type, err)
	}
	if event.Type == service.EventStatusChanged {
		if err := b.pub.PublishStatus(event.Status, event.At); err != nil {
			log.Printf("[mqtt] publish status: %v", err)
		}
	}
}
