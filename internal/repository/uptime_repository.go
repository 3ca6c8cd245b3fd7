package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"beeper/backend/internal/model"
)

type UptimeRepository struct {
	db          *sql.DB
	clock       Clock
	minDuration time.Duration
	projectID   int64
}

// NewUptimeRepository returns a store whose sessions shorter than or equal
// to minDuration are discarded when they end.
func NewUptimeRepository(db *sql.DB, clock Clock, minDuration time.Duration, projectID int64) *UptimeRepository {
	return &UptimeRepository{db: db, clock: clock, minDuration: minDuration, projectID: projectID}
}

// Start opens a session. Callers make sure no other session is open.
func (r *UptimeRepository) Start(ctx context.Context, start time.Time) (int64, error) {
	return r.start(ctx, r.db, start)
}

func (r *UptimeRepository) StartTx(ctx context.Context, tx *sql.Tx, start time.Time) (int64, error) {
	return r.start(ctx, tx, start)
}

func (r *UptimeRepository) start(ctx context.Context, q querier, start time.Time) (int64, error) {
	if start.IsZero() {
		return 0, nil
	}
	res, err := q.ExecContext(
		ctx,
		`INSERT INTO uptime (start_time, project_id) VALUES (?, ?)`,
		toMillis(start),
		r.projectID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert uptime: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert uptime id: %w", err)
	}
	return id, nil
}

// End closes the session at end. A session no longer than the minimum
// duration is deleted together with its beeps instead. It reports whether
// exactly one session row was affected.
func (r *UptimeRepository) End(ctx context.Context, id int64, end time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ok, err := r.end(ctx, tx, id, end)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit uptime end: %w", err)
	}
	return ok, nil
}

// EndTx is End within the caller's transaction.
func (r *UptimeRepository) EndTx(ctx context.Context, tx *sql.Tx, id int64, end time.Time) (bool, error) {
	return r.end(ctx, tx, id, end)
}

func (r *UptimeRepository) end(ctx context.Context, q querier, id int64, end time.Time) (bool, error) {
	if id == 0 || end.IsZero() {
		return false, nil
	}

	var start int64
	err := q.QueryRowContext(ctx, `SELECT start_time FROM uptime WHERE id = ?`, id).Scan(&start)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read uptime start: %w", err)
	}

	if end.Sub(fromMillis(start)) <= r.minDuration {
		if _, err := q.ExecContext(ctx, `DELETE FROM beep WHERE uptime_id = ?`, id); err != nil {
			return false, fmt.Errorf("delete uptime beeps: %w", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM uptime WHERE id = ?`, id)
		if err != nil {
			return false, fmt.Errorf("delete uptime: %w", err)
		}
		return exactlyOne(res)
	}

	res, err := q.ExecContext(ctx, `UPDATE uptime SET end_time = ? WHERE id = ?`, toMillis(end), id)
	if err != nil {
		return false, fmt.Errorf("close uptime: %w", err)
	}
	return exactlyOne(res)
}

func (r *UptimeRepository) Get(ctx context.Context, id int64) (*model.UptimeSession, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, start_time, end_time, project_id FROM uptime WHERE id = ?`,
		id,
	)
	return scanUptime(row)
}

// GetCurrent returns the open session, or ErrNotFound.
func (r *UptimeRepository) GetCurrent(ctx context.Context) (*model.UptimeSession, error) {
	return r.getCurrent(ctx, r.db)
}

func (r *UptimeRepository) GetCurrentTx(ctx context.Context, tx *sql.Tx) (*model.UptimeSession, error) {
	return r.getCurrent(ctx, tx)
}

func (r *UptimeRepository) getCurrent(ctx context.Context, q querier) (*model.UptimeSession, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT id, start_time, end_time, project_id
		 FROM uptime
		 WHERE end_time IS NULL
		 ORDER BY start_time DESC, id DESC
		 LIMIT 1`,
	)
	return scanUptime(row)
}

func (r *UptimeRepository) GetMostRecent(ctx context.Context) (*model.UptimeSession, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, start_time, end_time, project_id
		 FROM uptime
		 ORDER BY start_time DESC, id DESC
		 LIMIT 1`,
	)
	return scanUptime(row)
}

// CountOpen returns the number of sessions without an end.
func (r *UptimeRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM uptime WHERE end_time IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count open uptime: %w", err)
	}
	return count, nil
}

// Today sums the sessions started today. A still-open last session counts
// up to now once it has outlived the minimum duration.
func (r *UptimeRepository) Today(ctx context.Context) (model.UptimeStats, error) {
	return r.today(ctx, r.db)
}

func (r *UptimeRepository) TodayTx(ctx context.Context, tx *sql.Tx) (model.UptimeStats, error) {
	return r.today(ctx, tx)
}

func (r *UptimeRepository) today(ctx context.Context, q querier) (model.UptimeStats, error) {
	now := r.clock.now()
	dayStart, dayEnd := dayBounds(now)
	rows, err := q.QueryContext(
		ctx,
		`SELECT id, start_time, end_time, project_id
		 FROM uptime
		 WHERE start_time >= ? AND start_time < ?
		 ORDER BY start_time ASC, id ASC`,
		toMillis(dayStart),
		toMillis(dayEnd),
	)
	if err != nil {
		return model.UptimeStats{}, fmt.Errorf("query today's uptime: %w", err)
	}
	defer rows.Close()

	var sessions []*model.UptimeSession
	for rows.Next() {
		session, scanErr := scanUptime(rows)
		if scanErr != nil {
			return model.UptimeStats{}, scanErr
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return model.UptimeStats{}, fmt.Errorf("iterate today's uptime: %w", err)
	}

	var (
		total time.Duration
		count int
	)
	for i, session := range sessions {
		if session.End != nil {
			total += session.End.Sub(session.Start)
			count++
			continue
		}
		if i == len(sessions)-1 {
			if elapsed := now.Sub(session.Start); elapsed > r.minDuration {
				total += elapsed
				count++
			}
		}
	}

	stats := model.UptimeStats{TotalSeconds: int64(total / time.Second), Count: count}
	if count > 0 {
		stats.AvgSeconds = stats.TotalSeconds / int64(count)
	}
	return stats, nil
}

func scanUptime(s scanner) (*model.UptimeSession, error) {
	var (
		session model.UptimeSession
		start   int64
		end     sql.NullInt64
	)
	if err := s.Scan(&session.ID, &start, &end, &session.ProjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan uptime: %w", err)
	}
	session.Start = fromMillis(start)
	session.End = nullMillis(end)
	return &session, nil
}
