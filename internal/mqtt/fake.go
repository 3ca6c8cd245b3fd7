package mqtt

import (
	"sync"
	"time"

	"beeper/backend/internal/model"
	"beeper/backend/internal/service"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	Events    []service.Event
	Statuses  []model.SchedulerStatus
	Summaries []Summary
	// Payloads maps topic to the JSON payloads published on it.
	Payloads map[string][][]byte

	// PublishError, if set, is returned by every publish call.
	PublishError error
	Closed       bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Payloads: make(map[string][][]byte)}
}

func (f *FakePublisher) PublishEvent(event service.Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Events = append(f.Events, event)
	f.Payloads[TopicEvents] = append(f.Payloads[TopicEvents], payload)
	return nil
}

func (f *FakePublisher) PublishStatus(status model.SchedulerStatus, at time.Time) error {
	payload, err := FormatStatusPayload(status, at)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, status)
	f.Payloads[TopicStatus] = append(f.Payloads[TopicStatus], payload)
	return nil
}

func (f *FakePublisher) PublishSummary(summary Summary) error {
	payload, err := FormatSummaryPayload(summary)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Summaries = append(f.Summaries, summary)
	f.Payloads[TopicSummary] = append(f.Payloads[TopicSummary], payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Snapshot returns copies of the recorded events and statuses.
func (f *FakePublisher) Snapshot() ([]service.Event, []model.SchedulerStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := append([]service.Event(nil), f.Events...)
	statuses := append([]model.SchedulerStatus(nil), f.Statuses...)
	return events, statuses
}
