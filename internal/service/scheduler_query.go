package service

import (
	"context"
	"errors"

	"beeper/backend/internal/model"
	"beeper/backend/internal/repository"
)

type SchedulerView struct {
	model.SchedulerState
	ScheduledBeep *model.Beep          `json:"scheduledBeep,omitempty"`
	Uptime        *model.UptimeSession `json:"uptime,omitempty"`
}

type SchedulerStats struct {
	AcceptedToday        int   `json:"acceptedToday"`
	DeclinedToday        int   `json:"declinedToday"`
	TotalToday           int   `json:"totalToday"`
	UptimeTodaySeconds   int64 `json:"uptimeTodaySeconds"`
	UptimeCountToday     int   `json:"uptimeCountToday"`
	UptimeAverageSeconds int64 `json:"uptimeAverageSeconds"`
}

// State returns the persisted scheduler state with the scheduled beep and
// the open uptime session resolved.
func (s *SchedulerService) State(ctx context.Context) (*SchedulerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.states.Load(ctx)
	if err != nil {
		return nil, err
	}
	view := &SchedulerView{SchedulerState: state}

	if state.ScheduledBeepID != 0 {
		beep, err := s.beeps.Get(ctx, state.ScheduledBeepID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		view.ScheduledBeep = beep
	}

	session, err := s.uptimes.GetCurrent(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	view.Uptime = session
	return view, nil
}

// Stats summarises today's beeps and uptime.
func (s *SchedulerService) Stats(ctx context.Context) (*SchedulerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.beeps.CountToday(ctx)
	if err != nil {
		return nil, err
	}
	accepted, err := s.beeps.CountAcceptedToday(ctx)
	if err != nil {
		return nil, err
	}
	uptime, err := s.uptimes.Today(ctx)
	if err != nil {
		return nil, err
	}

	return &SchedulerStats{
		AcceptedToday:        accepted,
		DeclinedToday:        total - accepted,
		TotalToday:           total,
		UptimeTodaySeconds:   uptime.TotalSeconds,
		UptimeCountToday:     uptime.Count,
		UptimeAverageSeconds: uptime.AvgSeconds,
	}, nil
}
