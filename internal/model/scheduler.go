package model

import (
	"fmt"
	"strings"
)

type SchedulerStatus string

const (
	SchedulerInactive          SchedulerStatus = "inactive"
	SchedulerActive            SchedulerStatus = "active"
	SchedulerInactiveAfterCall SchedulerStatus = "inactive_after_call"
)

var schedulerStatusCodes = map[SchedulerStatus]int{
	SchedulerInactive:          0,
	SchedulerActive:            1,
	SchedulerInactiveAfterCall: 2,
}

func (s SchedulerStatus) Code() (int, error) {
	code, ok := schedulerStatusCodes[s]
	if !ok {
		return 0, fmt.Errorf("scheduler status %q has no persisted code", s)
	}
	return code, nil
}

func (s SchedulerStatus) Valid() bool {
	_, ok := schedulerStatusCodes[s]
	return ok
}

func SchedulerStatusFromCode(code int) (SchedulerStatus, error) {
	for status, c := range schedulerStatusCodes {
		if c == code {
			return status, nil
		}
	}
	return SchedulerInactive, fmt.Errorf("unknown scheduler status code %d", code)
}

func ParseSchedulerStatus(raw string) (SchedulerStatus, error) {
	status := SchedulerStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return SchedulerInactive, fmt.Errorf("unknown scheduler status %q", raw)
	}
	return status, nil
}

type CallState string

const (
	CallIdle    CallState = "IDLE"
	CallRinging CallState = "RINGING"
	CallOffhook CallState = "OFFHOOK"
)

func ParseCallState(raw string) (CallState, error) {
	state := CallState(strings.ToUpper(strings.TrimSpace(raw)))
	switch state {
	case CallIdle, CallRinging, CallOffhook:
		return state, nil
	}
	return "", fmt.Errorf("unknown call state %q", raw)
}

// InCall reports whether the line is busy.
func (c CallState) InCall() bool {
	return c == CallRinging || c == CallOffhook
}

// SchedulerState is the process-wide state persisted between runs.
// Zero ids mean "none".
type SchedulerState struct {
	Status          SchedulerStatus `json:"status"`
	ScheduledBeepID int64           `json:"scheduledBeepId"`
	UptimeID        int64           `json:"uptimeId"`
	InCall          bool            `json:"inCall"`
}

func DefaultSchedulerState() SchedulerState {
	return SchedulerState{Status: SchedulerInactive}
}
