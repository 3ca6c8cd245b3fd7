package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"beeper/backend/internal/model"
)

type BeepRepository struct {
	db    *sql.DB
	clock Clock
}

func NewBeepRepository(db *sql.DB, clock Clock) *BeepRepository {
	return &BeepRepository{db: db, clock: clock}
}

func (r *BeepRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// Add inserts an active beep firing at timestamp. A zero timestamp or
// uptime id is a no-op and returns id 0.
func (r *BeepRepository) Add(ctx context.Context, timestamp time.Time, uptimeID int64) (int64, error) {
	return r.add(ctx, r.db, timestamp, uptimeID)
}

func (r *BeepRepository) AddTx(ctx context.Context, tx *sql.Tx, timestamp time.Time, uptimeID int64) (int64, error) {
	return r.add(ctx, tx, timestamp, uptimeID)
}

func (r *BeepRepository) add(ctx context.Context, q querier, timestamp time.Time, uptimeID int64) (int64, error) {
	if timestamp.IsZero() || toMillis(timestamp) == 0 || uptimeID == 0 {
		return 0, nil
	}
	code, err := model.BeepStatusActive.Code()
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(
		ctx,
		`INSERT INTO beep (timestamp, created, status, uptime_id) VALUES (?, ?, ?, ?)`,
		toMillis(timestamp),
		toMillis(r.clock.now()),
		code,
		uptimeID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert beep: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert beep id: %w", err)
	}
	return id, nil
}

// UpdateStatus sets the status and the updated time. It reports whether a
// row was changed; id 0 is a no-op.
func (r *BeepRepository) UpdateStatus(ctx context.Context, id int64, status model.BeepStatus) (bool, error) {
	return r.updateStatus(ctx, r.db, id, status)
}

func (r *BeepRepository) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id int64, status model.BeepStatus) (bool, error) {
	return r.updateStatus(ctx, tx, id, status)
}

func (r *BeepRepository) updateStatus(ctx context.Context, q querier, id int64, status model.BeepStatus) (bool, error) {
	if id == 0 {
		return false, nil
	}
	code, err := status.Code()
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(
		ctx,
		`UPDATE beep SET status = ?, updated = ? WHERE id = ?`,
		code,
		toMillis(r.clock.now()),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("update beep status: %w", err)
	}
	return exactlyOne(res)
}

// MarkReceived records when the user responded. The status is left alone.
func (r *BeepRepository) MarkReceived(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.markReceived(ctx, r.db, id, at)
}

func (r *BeepRepository) MarkReceivedTx(ctx context.Context, tx *sql.Tx, id int64, at time.Time) (bool, error) {
	return r.markReceived(ctx, tx, id, at)
}

func (r *BeepRepository) markReceived(ctx context.Context, q querier, id int64, at time.Time) (bool, error) {
	if id == 0 || at.IsZero() {
		return false, nil
	}
	res, err := q.ExecContext(ctx, `UPDATE beep SET received = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("mark beep received: %w", err)
	}
	return exactlyOne(res)
}

func (r *BeepRepository) Get(ctx context.Context, id int64) (*model.Beep, error) {
	return r.get(ctx, r.db, id)
}

func (r *BeepRepository) GetTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Beep, error) {
	return r.get(ctx, tx, id)
}

func (r *BeepRepository) get(ctx context.Context, q querier, id int64) (*model.Beep, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT id, timestamp, created, received, updated, status, uptime_id
		 FROM beep WHERE id = ?`,
		id,
	)
	return scanBeep(row)
}

// GetStatus returns BeepStatusNone when the beep does not exist.
func (r *BeepRepository) GetStatus(ctx context.Context, id int64) (model.BeepStatus, error) {
	return r.getStatus(ctx, r.db, id)
}

func (r *BeepRepository) GetStatusTx(ctx context.Context, tx *sql.Tx, id int64) (model.BeepStatus, error) {
	return r.getStatus(ctx, tx, id)
}

func (r *BeepRepository) getStatus(ctx context.Context, q querier, id int64) (model.BeepStatus, error) {
	var code int
	err := q.QueryRowContext(ctx, `SELECT status FROM beep WHERE id = ?`, id).Scan(&code)
	if err == sql.ErrNoRows {
		return model.BeepStatusNone, nil
	}
	if err != nil {
		return model.BeepStatusNone, fmt.Errorf("get beep status: %w", err)
	}
	return model.BeepStatusFromCode(code)
}

// IsOverdue reports whether the beep's fire time is at least one minute in
// the past. Missing beeps are not overdue.
func (r *BeepRepository) IsOverdue(ctx context.Context, id int64) (bool, error) {
	beep, err := r.Get(ctx, id)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return beep.Overdue(r.clock.now()), nil
}

// CountConsecutiveCancelledToday walks today's beeps from the most recent
// backwards and counts until it meets one that is active or received.
// Cancelled and expired beeps both extend the run. A received beep ends it
// just like an active one.
func (r *BeepRepository) CountConsecutiveCancelledToday(ctx context.Context) (int, error) {
	return r.countConsecutiveCancelledToday(ctx, r.db)
}

func (r *BeepRepository) CountConsecutiveCancelledTodayTx(ctx context.Context, tx *sql.Tx) (int, error) {
	return r.countConsecutiveCancelledToday(ctx, tx)
}

func (r *BeepRepository) countConsecutiveCancelledToday(ctx context.Context, q querier) (int, error) {
	start, end := dayBounds(r.clock.now())
	rows, err := q.QueryContext(
		ctx,
		`SELECT status FROM beep
		 WHERE timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp DESC, id DESC`,
		toMillis(start),
		toMillis(end),
	)
	if err != nil {
		return 0, fmt.Errorf("scan today's beeps: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var code int
		if err := rows.Scan(&code); err != nil {
			return 0, fmt.Errorf("scan beep status: %w", err)
		}
		status, err := model.BeepStatusFromCode(code)
		if err != nil {
			return 0, err
		}
		if status == model.BeepStatusActive || status == model.BeepStatusReceived {
			break
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate today's beeps: %w", err)
	}
	return count, nil
}

// CountToday returns the number of today's beeps that reached a terminal
// status. The pending beep is not counted.
func (r *BeepRepository) CountToday(ctx context.Context) (int, error) {
	active, err := model.BeepStatusActive.Code()
	if err != nil {
		return 0, err
	}
	return r.countToday(ctx, r.db, `status != ?`, active)
}

func (r *BeepRepository) CountAcceptedToday(ctx context.Context) (int, error) {
	return r.countAcceptedToday(ctx, r.db)
}

func (r *BeepRepository) CountAcceptedTodayTx(ctx context.Context, tx *sql.Tx) (int, error) {
	return r.countAcceptedToday(ctx, tx)
}

func (r *BeepRepository) countAcceptedToday(ctx context.Context, q querier) (int, error) {
	received, err := model.BeepStatusReceived.Code()
	if err != nil {
		return 0, err
	}
	return r.countToday(ctx, q, `status = ?`, received)
}

func (r *BeepRepository) countToday(ctx context.Context, q querier, cond string, code int) (int, error) {
	start, end := dayBounds(r.clock.now())
	var count int
	err := q.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM beep WHERE timestamp >= ? AND timestamp < ? AND `+cond,
		toMillis(start),
		toMillis(end),
		code,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count today's beeps: %w", err)
	}
	return count, nil
}

// CountActive returns how many beeps are currently in the active state.
func (r *BeepRepository) CountActive(ctx context.Context) (int, error) {
	code, err := model.BeepStatusActive.Code()
	if err != nil {
		return 0, err
	}
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM beep WHERE status = ?`, code).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active beeps: %w", err)
	}
	return count, nil
}

func (r *BeepRepository) ListRecent(ctx context.Context, limit int) ([]model.Beep, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, timestamp, created, received, updated, status, uptime_id
		 FROM beep
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list beeps: %w", err)
	}
	defer rows.Close()

	beeps := make([]model.Beep, 0, limit)
	for rows.Next() {
		beep, scanErr := scanBeep(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		beeps = append(beeps, *beep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate beeps: %w", err)
	}
	return beeps, nil
}

func scanBeep(s scanner) (*model.Beep, error) {
	var (
		beep      model.Beep
		timestamp int64
		created   int64
		received  sql.NullInt64
		updated   sql.NullInt64
		code      int
	)
	err := s.Scan(&beep.ID, &timestamp, &created, &received, &updated, &code, &beep.UptimeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan beep: %w", err)
	}

	status, err := model.BeepStatusFromCode(code)
	if err != nil {
		return nil, fmt.Errorf("scan beep %d: %w", beep.ID, err)
	}
	beep.Status = status
	beep.Timestamp = fromMillis(timestamp)
	beep.Created = fromMillis(created)
	beep.Received = nullMillis(received)
	beep.Updated = nullMillis(updated)
	return &beep, nil
}
