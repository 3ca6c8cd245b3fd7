package model

import (
	"fmt"
	"time"
)

type BeepStatus string

const (
	BeepStatusNone      BeepStatus = ""
	BeepStatusActive    BeepStatus = "active"
	BeepStatusReceived  BeepStatus = "received"
	BeepStatusCancelled BeepStatus = "cancelled"
	BeepStatusExpired   BeepStatus = "expired"
)

// Persisted codes for BeepStatus. These values are stored in the beep table
// and must never be renumbered.
var beepStatusCodes = map[BeepStatus]int{
	BeepStatusActive:    0,
	BeepStatusReceived:  1,
	BeepStatusCancelled: 2,
	BeepStatusExpired:   3,
}

// Code returns the stable integer stored for s.
func (s BeepStatus) Code() (int, error) {
	code, ok := beepStatusCodes[s]
	if !ok {
		return 0, fmt.Errorf("beep status %q has no persisted code", s)
	}
	return code, nil
}

// Terminal reports whether no further transition is possible from s.
func (s BeepStatus) Terminal() bool {
	return s == BeepStatusReceived || s == BeepStatusCancelled || s == BeepStatusExpired
}

func (s BeepStatus) Valid() bool {
	_, ok := beepStatusCodes[s]
	return ok
}

func BeepStatusFromCode(code int) (BeepStatus, error) {
	for status, c := range beepStatusCodes {
		if c == code {
			return status, nil
		}
	}
	return BeepStatusNone, fmt.Errorf("unknown beep status code %d", code)
}

func ParseBeepStatus(raw string) (BeepStatus, error) {
	status := BeepStatus(raw)
	if !status.Valid() {
		return BeepStatusNone, fmt.Errorf("unknown beep status %q", raw)
	}
	return status, nil
}

// OverdueAfter is the grace window after a beep's fire time. A beep older
// than this that was never received is expired instead of shown.
const OverdueAfter = time.Minute

type Beep struct {
	ID        int64      `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Created   time.Time  `json:"created"`
	Received  *time.Time `json:"received,omitempty"`
	Updated   *time.Time `json:"updated,omitempty"`
	Status    BeepStatus `json:"status"`
	UptimeID  int64      `json:"uptimeId"`
}

// Overdue reports whether the beep's fire time lies at least OverdueAfter
// before now.
func (b *Beep) Overdue(now time.Time) bool {
	return now.Sub(b.Timestamp) >= OverdueAfter
}
