// Package summary publishes a digest of the day's beeps on a cron schedule.
package summary

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"beeper/backend/internal/mqtt"
	"beeper/backend/internal/service"
)

type StatsSource interface {
	Stats(ctx context.Context) (*service.SchedulerStats, error)
}

type Publisher interface {
	PublishSummary(summary mqtt.Summary) error
}

type Reporter struct {
	sched  cron.Schedule
	source StatsSource
	pub    Publisher
	now    func() time.Time
}

// New builds a reporter for the cron expression. pub may be nil, in which
// case summaries are only logged.
func New(expr string, source StatsSource, pub Publisher) (*Reporter, error) {
	sched, err := parseCron(expr)
	if err != nil {
		return nil, err
	}
	return &Reporter{sched: sched, source: source, pub: pub, now: time.Now}, nil
}

// Run publishes a summary every time the schedule fires until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(nextCronDuration(r.sched, r.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := r.Publish(ctx); err != nil {
				log.Printf("[summary] %v", err)
			}
		}
	}
}

// Publish reads today's statistics and sends them once.
func (r *Reporter) Publish(ctx context.Context) error {
	stats, err := r.source.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	summary := mqtt.Summary{Date: r.now(), Stats: *stats}
	log.Printf("[summary] %s: %d accepted, %d declined, %ds active in %d sessions",
		summary.Date.Format("2006-01-02"),
		stats.AcceptedToday, stats.DeclinedToday, stats.UptimeTodaySeconds, stats.UptimeCountToday)

	if r.pub == nil {
		return nil
	}
	if err := r.pub.PublishSummary(summary); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	return nil
}
