package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"beeper/backend/internal/mqtt"
	"beeper/backend/internal/service"
)

type stubSource struct {
	stats *service.SchedulerStats
	err   error
}

func (s stubSource) Stats(context.Context) (*service.SchedulerStats, error) {
	return s.stats, s.err
}

func TestNextCronDuration(t *testing.T) {
	sched, err := parseCron("55 23 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.Local)
	if d := nextCronDuration(sched, now); d != 11*time.Hour+55*time.Minute {
		t.Fatalf("expected 11h55m, got %v", d)
	}

	every, _ := parseCron("* * * * *")
	if d := nextCronDuration(every, now.Add(30*time.Second)); d != 30*time.Second {
		t.Fatalf("expected 30s, got %v", d)
	}
}

func TestNewRejectsBadCron(t *testing.T) {
	if _, err := New("not a cron expr", stubSource{}, nil); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if _, err := New("0 0 * * * *", stubSource{}, nil); err == nil {
		t.Fatal("expected error for six fields")
	}
}

func TestPublish(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	stats := &service.SchedulerStats{AcceptedToday: 2, DeclinedToday: 1, TotalToday: 3}
	r, err := New("0 22 * * *", stubSource{stats: stats}, pub)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r.now = func() time.Time { return time.Date(2026, time.March, 10, 22, 0, 0, 0, time.Local) }

	if err := r.Publish(context.Background()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(pub.Summaries) != 1 || pub.Summaries[0].Stats.AcceptedToday != 2 {
		t.Fatalf("unexpected summaries: %+v", pub.Summaries)
	}
	if len(pub.Payloads[mqtt.TopicSummary]) != 1 {
		t.Fatalf("expected one summary payload, got %d", len(pub.Payloads[mqtt.TopicSummary]))
	}
}

func TestPublishErrors(t *testing.T) {
	r, _ := New("0 22 * * *", stubSource{err: errors.New("db closed")}, nil)
	if err := r.Publish(context.Background()); err == nil {
		t.Fatal("expected stats error")
	}

	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker gone")
	r, _ = New("0 22 * * *", stubSource{stats: &service.SchedulerStats{}}, pub)
	if err := r.Publish(context.Background()); err == nil {
		t.Fatal("expected publish error")
	}

	// Without a publisher the summary is only logged.
	r, _ = New("0 22 * * *", stubSource{stats: &service.SchedulerStats{}}, nil)
	if err := r.Publish(context.Background()); err != nil {
		t.Fatalf("expected log-only publish to succeed: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r, _ := New("* * * * *", stubSource{stats: &service.SchedulerStats{}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
