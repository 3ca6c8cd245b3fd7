// Package alarm provides a one-shot wake-up slot.
package alarm

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Alarm is a single logical slot. Arming it again replaces the previous arm,
// and each arm fires at most once. The slot lives in memory; the scheduler
// re-arms it from persisted state after a restart.
type Alarm struct {
	mu    sync.Mutex
	name  string
	now   func() time.Time
	timer *time.Timer
	token string
	at    time.Time
}

func New(name string, now func() time.Time) *Alarm {
	if now == nil {
		now = time.Now
	}
	return &Alarm{name: name, now: now}
}

func (a *Alarm) Name() string {
	return a.name
}

// Arm schedules fire to run at the given time. A time in the past fires
// immediately.
func (a *Alarm) Arm(at time.Time, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()
	token := uuid.NewString()
	a.token = token
	a.at = at

	delay := at.Sub(a.now())
	if delay < 0 {
		delay = 0
	}
	a.timer = time.AfterFunc(delay, func() {
		a.mu.Lock()
		if a.token != token {
			a.mu.Unlock()
			return
		}
		a.token = ""
		a.timer = nil
		a.at = time.Time{}
		a.mu.Unlock()

		fire()
	})
}

// Cancel disarms the slot. It is safe to call on an idle alarm.
func (a *Alarm) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

// Armed returns the pending fire time, if any.
func (a *Alarm) Armed() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.at, a.token != ""
}

func (a *Alarm) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = nil
	a.token = ""
	a.at = time.Time{}
}
