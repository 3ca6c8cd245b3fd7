package model

import (
	"testing"
	"time"
)

func TestBeepStatusCodesAreStable(t *testing.T) {
	want := map[BeepStatus]int{
		BeepStatusActive:    0,
		BeepStatusReceived:  1,
		BeepStatusCancelled: 2,
		BeepStatusExpired:   3,
	}
	for status, code := range want {
		got, err := status.Code()
		if err != nil || got != code {
			t.Errorf("%s.Code() = %d, %v; want %d", status, got, err, code)
		}
		back, err := BeepStatusFromCode(code)
		if err != nil || back != status {
			t.Errorf("BeepStatusFromCode(%d) = %s, %v; want %s", code, back, err, status)
		}
	}

	if _, err := BeepStatusNone.Code(); err == nil {
		t.Error("none must not be persisted")
	}
	if _, err := BeepStatusFromCode(9); err == nil {
		t.Error("expected error for unknown code")
	}
	if _, err := ParseBeepStatus("lost"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestSchedulerStatusCodesAreStable(t *testing.T) {
	want := map[SchedulerStatus]int{
		SchedulerInactive:          0,
		SchedulerActive:            1,
		SchedulerInactiveAfterCall: 2,
	}
	for status, code := range want {
		got, err := status.Code()
		if err != nil || got != code {
			t.Errorf("%s.Code() = %d, %v; want %d", status, got, err, code)
		}
		back, err := SchedulerStatusFromCode(code)
		if err != nil || back != status {
			t.Errorf("SchedulerStatusFromCode(%d) = %s, %v; want %s", code, back, err, status)
		}
	}

	if _, err := SchedulerStatusFromCode(-1); err == nil {
		t.Error("expected error for unknown code")
	}
	if got, err := ParseSchedulerStatus(" Active "); err != nil || got != SchedulerActive {
		t.Errorf("ParseSchedulerStatus = %s, %v", got, err)
	}
}

func TestTerminal(t *testing.T) {
	if BeepStatusActive.Terminal() || BeepStatusNone.Terminal() {
		t.Error("active and none are not terminal")
	}
	for _, s := range []BeepStatus{BeepStatusReceived, BeepStatusCancelled, BeepStatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestCallState(t *testing.T) {
	for raw, want := range map[string]CallState{"idle": CallIdle, "RINGING": CallRinging, " OffHook ": CallOffhook} {
		got, err := ParseCallState(raw)
		if err != nil || got != want {
			t.Errorf("ParseCallState(%q) = %s, %v; want %s", raw, got, err, want)
		}
	}
	if _, err := ParseCallState("busy"); err == nil {
		t.Error("expected error for unknown call state")
	}
	if CallIdle.InCall() || !CallRinging.InCall() || !CallOffhook.InCall() {
		t.Error("unexpected InCall result")
	}
}

func TestOverdue(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	beep := &Beep{Timestamp: now.Add(-59 * time.Second)}
	if beep.Overdue(now) {
		t.Error("59s late is within the grace window")
	}
	beep.Timestamp = now.Add(-OverdueAfter)
	if !beep.Overdue(now) {
		t.Error("exactly one minute late is overdue")
	}
}
