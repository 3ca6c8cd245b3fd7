package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"beeper/backend/internal/model"
	"beeper/backend/internal/service"
)

var at = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestFormatEventPayload(t *testing.T) {
	event := service.Event{
		Type:   service.EventBeepScheduled,
		Status: model.SchedulerActive,
		At:     at,
		Beep: &model.Beep{
			ID:        7,
			Timestamp: at.Add(10 * time.Minute),
			Status:    model.BeepStatusActive,
		},
	}

	raw, err := FormatEventPayload(event)
	if err != nil {
		t.Fatalf("format: %v", err)
	}

	var got EventPayload
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Event != "beep_scheduled" || got.Status != "active" {
		t.Errorf("unexpected payload: %s", raw)
	}
	if got.Timestamp != "2026-03-10T12:00:00Z" {
		t.Errorf("timestamp = %q", got.Timestamp)
	}
	if got.Beep == nil || got.Beep.ID != 7 || got.Beep.Timestamp != "2026-03-10T12:10:00Z" {
		t.Errorf("unexpected beep payload: %s", raw)
	}
}

func TestFormatEventPayloadWithoutBeep(t *testing.T) {
	raw, err := FormatEventPayload(service.Event{Type: service.EventStatusChanged, Status: model.SchedulerInactive, At: at})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["beep"]; ok {
		t.Errorf("expected no beep field, got %s", raw)
	}
}

func TestFormatSummaryPayload(t *testing.T) {
	raw, err := FormatSummaryPayload(Summary{
		Date:  at,
		Stats: service.SchedulerStats{AcceptedToday: 3, DeclinedToday: 1, TotalToday: 4},
	})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	var got struct {
		Date  string `json:"date"`
		Stats struct {
			AcceptedToday int `json:"acceptedToday"`
			TotalToday    int `json:"totalToday"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Date != "2026-03-10" || got.Stats.AcceptedToday != 3 || got.Stats.TotalToday != 4 {
		t.Errorf("unexpected summary: %s", raw)
	}
}

func TestParseCallPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    model.CallState
		wantErr bool
	}{
		{"RINGING", model.CallRinging, false},
		{" offhook\n", model.CallOffhook, false},
		{`{"state":"IDLE"}`, model.CallIdle, false},
		{"BUSY", "", true},
		{`{"state":`, "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCallPayload([]byte(tt.payload))
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCallPayload(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCallPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestDispatchCall(t *testing.T) {
	var got []model.CallState
	onCall := func(_ context.Context, state model.CallState) error {
		got = append(got, state)
		return nil
	}

	if err := DispatchCall(context.Background(), onCall, []byte("RINGING")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := DispatchCall(context.Background(), onCall, []byte("nonsense")); err == nil {
		t.Fatal("expected parse error")
	}
	if len(got) != 1 || got[0] != model.CallRinging {
		t.Fatalf("unexpected calls: %v", got)
	}

	failing := func(context.Context, model.CallState) error { return errors.New("db down") }
	if err := DispatchCall(context.Background(), failing, []byte("IDLE")); err == nil {
		t.Fatal("expected handler error")
	}
}

func TestBridgePublishesEventsAndStatus(t *testing.T) {
	pub := NewFakePublisher()
	bridge := NewBridge(pub, 8)

	bridge.Handle(service.Event{Type: service.EventStatusChanged, Status: model.SchedulerActive, At: at})
	bridge.Handle(service.Event{Type: service.EventBeepScheduled, Status: model.SchedulerActive, At: at})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bridge.Run(ctx)

	events, statuses := pub.Snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if len(statuses) != 1 || statuses[0] != model.SchedulerActive {
		t.Fatalf("expected one active status, got %v", statuses)
	}
	if len(pub.Payloads[TopicEvents]) != 2 || len(pub.Payloads[TopicStatus]) != 1 {
		t.Fatalf("unexpected payload counts: %d events, %d status", len(pub.Payloads[TopicEvents]), len(pub.Payloads[TopicStatus]))
	}
}

func TestBridgeDropsWhenFull(t *testing.T) {
	pub := NewFakePublisher()
	bridge := NewBridge(pub, 1)

	bridge.Handle(service.Event{Type: service.EventBeepFired, At: at})
	bridge.Handle(service.Event{Type: service.EventBeepUpdated, At: at})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bridge.Run(ctx)

	events, _ := pub.Snapshot()
	if len(events) != 1 || events[0].Type != service.EventBeepFired {
		t.Fatalf("expected only the first event, got %v", events)
	}
}

func TestBridgeSurvivesPublishErrors(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker gone")
	bridge := NewBridge(pub, 4)

	bridge.Handle(service.Event{Type: service.EventStatusChanged, Status: model.SchedulerInactive, At: at})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bridge.Run(ctx)

	events, statuses := pub.Snapshot()
	if len(events) != 0 || len(statuses) != 0 {
		t.Fatalf("expected nothing recorded, got %v %v", events, statuses)
	}
}
