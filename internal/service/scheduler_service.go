package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	apperrors "beeper/backend/internal/errors"
	"beeper/backend/internal/model"
	"beeper/backend/internal/notify"
	"beeper/backend/internal/repository"
	"beeper/backend/internal/timer"
)

// maxDelayDraws bounds the reject-and-retry loop around the timer.
const maxDelayDraws = 100

// Alarm is a one-shot wake-up slot. Arm replaces any earlier arm.
type Alarm interface {
	Arm(at time.Time, fire func())
	Cancel()
}

type SchedulerOptions struct {
	Timer    timer.Timer
	Notifier notify.Notifier
	// BeepAlarm fires when the scheduled beep is due.
	BeepAlarm Alarm
	// ResponseAlarm expires a fired beep nobody answered. Optional.
	ResponseAlarm   Alarm
	ResponseTimeout time.Duration
	Now             func() time.Time
}

// SchedulerService owns the scheduler status, the scheduled beep and the
// open uptime session. Every mutating operation holds mu and runs its
// read-decide-write sequence in one database transaction.
type SchedulerService struct {
	mu sync.Mutex

	beeps   *repository.BeepRepository
	uptimes *repository.UptimeRepository
	states  *repository.StateRepository

	timer           timer.Timer
	notifier        notify.Notifier
	beepAlarm       Alarm
	responseAlarm   Alarm
	responseTimeout time.Duration
	now             func() time.Time

	listeners *listenerSet
}

func NewSchedulerService(
	beeps *repository.BeepRepository,
	uptimes *repository.UptimeRepository,
	states *repository.StateRepository,
	opts SchedulerOptions,
) *SchedulerService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &SchedulerService{
		beeps:           beeps,
		uptimes:         uptimes,
		states:          states,
		timer:           opts.Timer,
		notifier:        notifier,
		beepAlarm:       opts.BeepAlarm,
		responseAlarm:   opts.ResponseAlarm,
		responseTimeout: opts.ResponseTimeout,
		now:             now,
		listeners:       newListenerSet(),
	}
}

// transition is the working set of one serialized operation. Effects touch
// the alarm and the notifier and only run once the transaction committed.
type transition struct {
	ctx     context.Context
	tx      *sql.Tx
	now     time.Time
	state   model.SchedulerState
	effects []func(ctx context.Context)
	events  []Event
}

func (t *transition) effect(fn func(ctx context.Context)) {
	t.effects = append(t.effects, fn)
}

func (t *transition) emit(typ EventType, beep *model.Beep) {
	t.events = append(t.events, Event{Type: typ, Status: t.state.Status, Beep: beep, At: t.now})
}

func (s *SchedulerService) transact(ctx context.Context, fn func(t *transition) error) error {
	s.mu.Lock()
	events, err := s.transactLocked(ctx, fn)
	s.mu.Unlock()

	s.listeners.publish(events)
	return err
}

func (s *SchedulerService) transactLocked(ctx context.Context, fn func(t *transition) error) ([]Event, error) {
	tx, err := s.states.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	state, err := s.states.LoadTx(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("load scheduler state: %w", err)
	}

	t := &transition{ctx: ctx, tx: tx, now: s.now(), state: state}
	before := state.Status
	if err := fn(t); err != nil {
		return nil, err
	}
	if t.state.Status != before {
		t.emit(EventStatusChanged, nil)
	}

	if err := s.states.SaveTx(ctx, tx, t.state); err != nil {
		return nil, fmt.Errorf("save scheduler state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit scheduler transition: %w", err)
	}

	for _, effect := range t.effects {
		effect(ctx)
	}
	return t.events, nil
}

// SetStatus turns the scheduler on or off.
func (s *SchedulerService) SetStatus(ctx context.Context, status model.SchedulerStatus) error {
	if !status.Valid() {
		return apperrors.BadRequest("invalid_status", "status must be one of active, inactive, inactive_after_call")
	}
	return s.transact(ctx, func(t *transition) error {
		return s.setStatus(t, status)
	})
}

func (s *SchedulerService) setStatus(t *transition, status model.SchedulerStatus) error {
	// Turning on during a call waits for the call to end.
	if status == model.SchedulerActive && t.state.InCall {
		status = model.SchedulerInactiveAfterCall
	}

	if status == model.SchedulerActive {
		if t.state.Status == model.SchedulerActive {
			return nil
		}
		t.state.Status = model.SchedulerActive
		if err := s.ensureUptime(t); err != nil {
			return err
		}
		s.postActiveNotification(t)
		s.scheduleSoft(t)
		return nil
	}

	t.state.Status = status
	return s.deactivate(t)
}

// deactivate cancels the scheduled beep and closes the open uptime session.
func (s *SchedulerService) deactivate(t *transition) error {
	session, err := s.uptimes.GetCurrentTx(t.ctx, t.tx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	t.effect(func(ctx context.Context) {
		if s.beepAlarm != nil {
			s.beepAlarm.Cancel()
		}
		if s.responseAlarm != nil {
			s.responseAlarm.Cancel()
		}
		s.cancelNotification(ctx, notify.IDSchedulerActive)
	})
	if t.state.ScheduledBeepID != 0 {
		if err := s.updateBeep(t, model.BeepStatusCancelled); err != nil {
			return err
		}
	}
	if session != nil {
		ok, err := s.uptimes.EndTx(t.ctx, t.tx, session.ID, t.now)
		if err != nil {
			return err
		}
		if !ok {
			log.Printf("[scheduler] uptime session %d was not closed", session.ID)
		}
	}
	t.state.UptimeID = 0
	return nil
}

func (s *SchedulerService) ensureUptime(t *transition) error {
	session, err := s.uptimes.GetCurrentTx(t.ctx, t.tx)
	if err == nil {
		t.state.UptimeID = session.ID
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	id, err := s.uptimes.StartTx(t.ctx, t.tx, t.now)
	if err != nil {
		return err
	}
	if id == 0 {
		log.Printf("[scheduler] uptime session was not started")
	}
	t.state.UptimeID = id
	return nil
}

// ScheduleBeep schedules the next beep if the scheduler is active and
// returns its id, or 0 when nothing was scheduled.
func (s *SchedulerService) ScheduleBeep(ctx context.Context) (int64, error) {
	var id int64
	err := s.transact(ctx, func(t *transition) error {
		var err error
		id, err = s.scheduleBeep(t)
		return err
	})
	return id, err
}

func (s *SchedulerService) scheduleBeep(t *transition) (int64, error) {
	if t.state.Status != model.SchedulerActive {
		return 0, nil
	}
	if err := s.ensureUptime(t); err != nil {
		return 0, err
	}

	// Keep at most one active beep.
	if t.state.ScheduledBeepID != 0 {
		if err := s.updateBeep(t, model.BeepStatusCancelled); err != nil {
			return 0, err
		}
	}

	stats, err := s.timerStats(t)
	if err != nil {
		return 0, err
	}
	delay, err := timer.Next(s.timer, stats, maxDelayDraws)
	if err != nil {
		return 0, err
	}
	at := t.now.Add(delay)

	id, err := s.beeps.AddTx(t.ctx, t.tx, at, t.state.UptimeID)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("beep for uptime session %d was not stored", t.state.UptimeID)
	}
	t.state.ScheduledBeepID = id

	beep := &model.Beep{ID: id, Timestamp: at, Created: t.now, Status: model.BeepStatusActive, UptimeID: t.state.UptimeID}
	s.armBeep(t, beep)
	t.emit(EventBeepScheduled, beep)
	return id, nil
}

// scheduleSoft schedules the next beep. A failure leaves the scheduler
// without a beep until the next reconciliation.
func (s *SchedulerService) scheduleSoft(t *transition) {
	if _, err := s.scheduleBeep(t); err != nil {
		log.Printf("[scheduler] schedule beep: %v (retrying on next reconciliation)", err)
	}
}

func (s *SchedulerService) armBeep(t *transition, beep *model.Beep) {
	if s.beepAlarm == nil {
		return
	}
	id, at := beep.ID, beep.Timestamp
	t.effect(func(context.Context) {
		s.beepAlarm.Arm(at, func() { s.handleBeepAlarm(id) })
	})
}

func (s *SchedulerService) timerStats(t *transition) (timer.Stats, error) {
	accepted, err := s.beeps.CountAcceptedTodayTx(t.ctx, t.tx)
	if err != nil {
		return timer.Stats{}, err
	}
	cancelled, err := s.beeps.CountConsecutiveCancelledTodayTx(t.ctx, t.tx)
	if err != nil {
		return timer.Stats{}, err
	}
	uptime, err := s.uptimes.TodayTx(t.ctx, t.tx)
	if err != nil {
		return timer.Stats{}, err
	}
	return timer.Stats{
		AcceptedToday:        accepted,
		UptimeTotal:          uptime.Total(),
		UptimeCount:          uptime.Count,
		UptimeAverage:        uptime.Average(),
		ConsecutiveCancelled: cancelled,
	}, nil
}

// UpdateBeep moves the scheduled beep to status. Any status other than
// active disarms the alarm and clears the scheduled beep.
func (s *SchedulerService) UpdateBeep(ctx context.Context, status model.BeepStatus) error {
	if !status.Valid() {
		return apperrors.BadRequest("invalid_beep_status", "status must be one of active, received, cancelled, expired")
	}
	return s.transact(ctx, func(t *transition) error {
		return s.updateBeep(t, status)
	})
}

func (s *SchedulerService) updateBeep(t *transition, status model.BeepStatus) error {
	id := t.state.ScheduledBeepID

	if status != model.BeepStatusActive {
		t.effect(func(ctx context.Context) {
			if s.beepAlarm != nil {
				s.beepAlarm.Cancel()
			}
			if s.responseAlarm != nil {
				s.responseAlarm.Cancel()
			}
			s.cancelNotification(ctx, notify.IDBeep)
		})
	}

	if id != 0 {
		ok, err := s.beeps.UpdateStatusTx(t.ctx, t.tx, id, status)
		if err != nil {
			return err
		}
		if !ok {
			log.Printf("[scheduler] beep %d not found while setting %s", id, status)
		}
		if status == model.BeepStatusReceived {
			if _, err := s.beeps.MarkReceivedTx(t.ctx, t.tx, id, t.now); err != nil {
				return err
			}
		}
		if ok {
			beep, err := s.beeps.GetTx(t.ctx, t.tx, id)
			if err != nil {
				return err
			}
			t.emit(EventBeepUpdated, beep)
		}
	}

	if status != model.BeepStatusActive {
		t.state.ScheduledBeepID = 0
	}
	return nil
}

// Reconcile repairs the scheduler after the process (re)starts. Running it
// twice in a row has the same effect as running it once.
func (s *SchedulerService) Reconcile(ctx context.Context) error {
	return s.transact(ctx, func(t *transition) error {
		if t.state.Status == model.SchedulerActive {
			return s.reconcileActive(t)
		}
		return s.reconcileInactive(t)
	})
}

func (s *SchedulerService) reconcileActive(t *transition) error {
	if err := s.ensureUptime(t); err != nil {
		return err
	}

	if id := t.state.ScheduledBeepID; id != 0 {
		beep, err := s.beeps.GetTx(t.ctx, t.tx, id)
		switch {
		case errors.Is(err, repository.ErrNotFound) || (err == nil && beep.Status != model.BeepStatusActive):
			log.Printf("[scheduler] scheduled beep %d is no longer active, scheduling a new one", id)
			t.state.ScheduledBeepID = 0
			s.scheduleSoft(t)
		case err != nil:
			return err
		case beep.Overdue(t.now):
			log.Printf("[scheduler] beep %d is overdue, expiring", id)
			if err := s.updateBeep(t, model.BeepStatusExpired); err != nil {
				return err
			}
			s.scheduleSoft(t)
		default:
			s.armBeep(t, beep)
		}
	} else {
		s.scheduleSoft(t)
	}

	s.postActiveNotification(t)
	return nil
}

func (s *SchedulerService) reconcileInactive(t *transition) error {
	if t.state.ScheduledBeepID != 0 {
		if err := s.updateBeep(t, model.BeepStatusCancelled); err != nil {
			return err
		}
	}
	t.effect(func(ctx context.Context) {
		s.cancelNotification(ctx, notify.IDSchedulerActive)
		s.cancelNotification(ctx, notify.IDBeep)
	})

	session, err := s.uptimes.GetCurrentTx(t.ctx, t.tx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if session != nil {
		if _, err := s.uptimes.EndTx(t.ctx, t.tx, session.ID, t.now); err != nil {
			return err
		}
	}
	t.state.UptimeID = 0
	return nil
}

// HandleCallState pauses the scheduler while the phone is in use and
// resumes it once the call is over.
func (s *SchedulerService) HandleCallState(ctx context.Context, state model.CallState) error {
	state, err := model.ParseCallState(string(state))
	if err != nil {
		return apperrors.BadRequest("invalid_call_state", "call state must be one of IDLE, RINGING, OFFHOOK")
	}
	return s.transact(ctx, func(t *transition) error {
		t.state.InCall = state.InCall()
		switch {
		case state.InCall() && t.state.Status == model.SchedulerActive:
			return s.setStatus(t, model.SchedulerInactiveAfterCall)
		case !state.InCall() && t.state.Status == model.SchedulerInactiveAfterCall:
			return s.setStatus(t, model.SchedulerActive)
		}
		return nil
	})
}

// AcceptBeep records that the user answered the beep and schedules the next.
func (s *SchedulerService) AcceptBeep(ctx context.Context) error {
	return s.respond(ctx, func(t *transition) error {
		if err := s.updateBeep(t, model.BeepStatusReceived); err != nil {
			return err
		}
		s.scheduleSoft(t)
		return nil
	})
}

// DeclineBeep cancels the beep and schedules the next.
func (s *SchedulerService) DeclineBeep(ctx context.Context) error {
	return s.respond(ctx, func(t *transition) error {
		if err := s.updateBeep(t, model.BeepStatusCancelled); err != nil {
			return err
		}
		s.scheduleSoft(t)
		return nil
	})
}

// DeclineAndPause cancels the beep and turns the scheduler off.
func (s *SchedulerService) DeclineAndPause(ctx context.Context) error {
	return s.respond(ctx, func(t *transition) error {
		if err := s.updateBeep(t, model.BeepStatusCancelled); err != nil {
			return err
		}
		return s.setStatus(t, model.SchedulerInactive)
	})
}

// ExpireBeep marks a fired but unanswered beep as expired and schedules
// the next.
func (s *SchedulerService) ExpireBeep(ctx context.Context) error {
	return s.respond(ctx, func(t *transition) error {
		if err := s.updateBeep(t, model.BeepStatusExpired); err != nil {
			return err
		}
		s.scheduleSoft(t)
		return nil
	})
}

// respond runs fn only when a beep has fired and is waiting for an answer.
func (s *SchedulerService) respond(ctx context.Context, fn func(t *transition) error) error {
	return s.transact(ctx, func(t *transition) error {
		if t.state.ScheduledBeepID == 0 {
			return apperrors.NotFound("no_pending_beep", "no beep is waiting for an answer")
		}
		beep, err := s.beeps.GetTx(t.ctx, t.tx, t.state.ScheduledBeepID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("no_pending_beep", "no beep is waiting for an answer")
		}
		if err != nil {
			return err
		}
		if beep.Timestamp.After(t.now) {
			return apperrors.Conflict("beep_not_due", "the scheduled beep has not fired yet", map[string]interface{}{
				"timestamp": beep.Timestamp,
			})
		}
		return fn(t)
	})
}

// handleBeepAlarm runs on the alarm goroutine when a beep is due.
func (s *SchedulerService) handleBeepAlarm(id int64) {
	ctx := context.Background()
	err := s.transact(ctx, func(t *transition) error {
		if t.state.Status != model.SchedulerActive || t.state.ScheduledBeepID != id {
			log.Printf("[scheduler] ignoring stale alarm for beep %d", id)
			return nil
		}
		beep, err := s.beeps.GetTx(t.ctx, t.tx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if beep.Status != model.BeepStatusActive {
			return nil
		}

		t.effect(func(ctx context.Context) {
			s.postNotification(ctx, notify.Notification{
				ID:    notify.IDBeep,
				Title: "Beep!",
				Text:  "What are you doing right now?",
			})
			if s.responseAlarm != nil && s.responseTimeout > 0 {
				s.responseAlarm.Arm(t.now.Add(s.responseTimeout), func() { s.handleResponseTimeout(id) })
			}
		})
		t.emit(EventBeepFired, beep)
		return nil
	})
	if err != nil {
		log.Printf("[scheduler] handle alarm for beep %d: %v", id, err)
	}
}

func (s *SchedulerService) handleResponseTimeout(id int64) {
	ctx := context.Background()
	err := s.transact(ctx, func(t *transition) error {
		if t.state.ScheduledBeepID != id {
			return nil
		}
		status, err := s.beeps.GetStatusTx(t.ctx, t.tx, id)
		if err != nil {
			return err
		}
		if status != model.BeepStatusActive {
			return nil
		}
		log.Printf("[scheduler] beep %d was not answered, expiring", id)
		if err := s.updateBeep(t, model.BeepStatusExpired); err != nil {
			return err
		}
		s.scheduleSoft(t)
		return nil
	})
	if err != nil {
		log.Printf("[scheduler] expire beep %d: %v", id, err)
	}
}

func (s *SchedulerService) postActiveNotification(t *transition) {
	t.effect(func(ctx context.Context) {
		s.postNotification(ctx, notify.Notification{
			ID:      notify.IDSchedulerActive,
			Title:   "Beeper is active",
			Text:    "You will be beeped at random moments.",
			Ongoing: true,
		})
	})
}

func (s *SchedulerService) postNotification(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Post(ctx, n); err != nil {
		log.Printf("[scheduler] post notification %d: %v", n.ID, err)
	}
}

func (s *SchedulerService) cancelNotification(ctx context.Context, id int) {
	if err := s.notifier.Cancel(ctx, id); err != nil {
		log.Printf("[scheduler] cancel notification %d: %v", id, err)
	}
}
