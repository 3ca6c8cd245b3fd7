package model

import "time"

type UptimeSession struct {
	ID        int64      `json:"id"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end,omitempty"`
	ProjectID int64      `json:"projectId"`
}

func (u *UptimeSession) Open() bool {
	return u.End == nil
}

// UptimeStats aggregates today's active time.
type UptimeStats struct {
	TotalSeconds int64 `json:"totalSeconds"`
	Count        int   `json:"count"`
	AvgSeconds   int64 `json:"avgSeconds"`
}

func (s UptimeStats) Total() time.Duration {
	return time.Duration(s.TotalSeconds) * time.Second
}

func (s UptimeStats) Average() time.Duration {
	return time.Duration(s.AvgSeconds) * time.Second
}
