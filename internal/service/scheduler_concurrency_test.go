package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"beeper/backend/internal/alarm"
	apperrors "beeper/backend/internal/errors"
	"beeper/backend/internal/model"
	"beeper/backend/internal/notify"
	"beeper/backend/internal/repository"
	"beeper/backend/internal/service"
	"beeper/backend/internal/testutil"
	"beeper/backend/internal/timer"
)

// Alarm fires, call-state changes, user responses and reconciliation all
// race against each other here. Run with -race.
func TestConcurrentTriggersKeepOneActiveBeep(t *testing.T) {
	database := testutil.OpenDB(t)
	beeps := repository.NewBeepRepository(database, time.Now)
	uptimes := repository.NewUptimeRepository(database, time.Now, time.Minute, 0)
	states := repository.NewStateRepository(database, time.Now)

	strategy, err := timer.New(timer.Config{Strategy: timer.Fixed, AvgDelay: 2 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("new timer: %v", err)
	}
	beepAlarm := alarm.New("beep", time.Now)
	responseAlarm := alarm.New("response", time.Now)

	svc := service.NewSchedulerService(beeps, uptimes, states, service.SchedulerOptions{
		Timer:           strategy,
		Notifier:        notify.NewRecorder(),
		BeepAlarm:       beepAlarm,
		ResponseAlarm:   responseAlarm,
		ResponseTimeout: 2 * time.Millisecond,
	})

	ctx := context.Background()
	if err := svc.SetStatus(ctx, model.SchedulerActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	ops := []func(context.Context) error{
		func(ctx context.Context) error { return svc.HandleCallState(ctx, model.CallRinging) },
		func(ctx context.Context) error { return svc.HandleCallState(ctx, model.CallIdle) },
		svc.Reconcile,
		svc.AcceptBeep,
		svc.DeclineBeep,
	}

	const workers, rounds = 4, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				op := ops[(w+i)%len(ops)]
				if err := op(ctx); err != nil {
					var apiErr *apperrors.APIError
					if !errors.As(err, &apiErr) || apiErr.Status >= 500 {
						t.Errorf("worker %d round %d: %v", w, i, err)
						return
					}
				}
				active, err := beeps.CountActive(ctx)
				if err != nil {
					t.Errorf("count active beeps: %v", err)
					return
				}
				if active > 1 {
					t.Errorf("worker %d round %d: %d active beeps", w, i, active)
					return
				}
				if i%10 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}(w)
	}
	wg.Wait()

	if err := svc.HandleCallState(ctx, model.CallIdle); err != nil {
		t.Fatalf("final idle: %v", err)
	}
	if open, err := uptimes.CountOpen(ctx); err != nil || open > 1 {
		t.Fatalf("expected at most one open session, got %d (%v)", open, err)
	}
	if active, err := beeps.CountActive(ctx); err != nil || active > 1 {
		t.Fatalf("expected at most one active beep, got %d (%v)", active, err)
	}

	if err := svc.SetStatus(ctx, model.SchedulerInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, armed := beepAlarm.Armed(); armed {
		t.Fatal("beep alarm still armed after deactivation")
	}
	if _, armed := responseAlarm.Armed(); armed {
		t.Fatal("response alarm still armed after deactivation")
	}
}
