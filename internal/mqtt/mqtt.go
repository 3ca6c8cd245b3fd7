// Package mqtt bridges the scheduler to an MQTT broker: controller events go
// out, telephony state comes in.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"beeper/backend/internal/model"
	"beeper/backend/internal/service"
)

const (
	// TopicEvents carries every controller event.
	TopicEvents = "beeper/events"
	// TopicStatus carries the scheduler status, retained.
	TopicStatus = "beeper/status"
	// TopicSummary carries the daily statistics digest.
	TopicSummary = "beeper/summary"
	// TopicTelephony is subscribed to for IDLE, RINGING and OFFHOOK updates.
	TopicTelephony = "beeper/telephony"
)

// Publisher publishes scheduler data to MQTT.
type Publisher interface {
	PublishEvent(event service.Event) error
	// PublishStatus sends the retained scheduler status.
	PublishStatus(status model.SchedulerStatus, at time.Time) error
	PublishSummary(summary Summary) error
	Close() error
}

// Summary is one day's statistics.
type Summary struct {
	Date  time.Time
	Stats service.SchedulerStats
}

type EventPayload struct {
	Timestamp string       `json:"timestamp"`
	Event     string       `json:"event"`
	Status    string       `json:"status"`
	Beep      *BeepPayload `json:"beep,omitempty"`
}

type BeepPayload struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type StatusPayload struct {
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type SummaryPayload struct {
	Date  string                 `json:"date"`
	Stats service.SchedulerStats `json:"stats"`
}

func FormatEventPayload(event service.Event) ([]byte, error) {
	payload := EventPayload{
		Timestamp: event.At.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Status:    string(event.Status),
	}
	if event.Beep != nil {
		payload.Beep = &BeepPayload{
			ID:        event.Beep.ID,
			Timestamp: event.Beep.Timestamp.UTC().Format(time.RFC3339),
			Status:    string(event.Beep.Status),
		}
	}
	return json.Marshal(payload)
}

func FormatStatusPayload(status model.SchedulerStatus, at time.Time) ([]byte, error) {
	return json.Marshal(StatusPayload{
		Timestamp: at.UTC().Format(time.RFC3339),
		Status:    string(status),
	})
}

func FormatSummaryPayload(summary Summary) ([]byte, error) {
	return json.Marshal(SummaryPayload{
		Date:  summary.Date.Format("2006-01-02"),
		Stats: summary.Stats,
	})
}

// ParseCallPayload accepts either a bare state ("RINGING") or a JSON object
// such as {"state":"RINGING"}.
func ParseCallPayload(payload []byte) (model.CallState, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var msg struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return "", fmt.Errorf("decode telephony payload: %w", err)
		}
		return model.ParseCallState(msg.State)
	}
	return model.ParseCallState(string(trimmed))
}

// CallHandler receives telephony state from the broker.
type CallHandler func(ctx context.Context, state model.CallState) error

// DispatchCall parses a telephony payload and hands the state to onCall.
func DispatchCall(ctx context.Context, onCall CallHandler, payload []byte) error {
	state, err := ParseCallPayload(payload)
	if err != nil {
		return err
	}
	if err := onCall(ctx, state); err != nil {
		return fmt.Errorf("handle call state %s: %w", state, err)
	}
	return nil
}
