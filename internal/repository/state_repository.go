package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"beeper/backend/internal/model"
)

// Setting names for the persisted scheduler state.
const (
	KeySchedulerStatus = "scheduler_status"
	KeyScheduledBeepID = "scheduled_beep_id"
	KeyUptimeID        = "uptime_id"
	KeyInCall          = "in_call"
)

// StateRepository is a small key-value store over the settings table.
type StateRepository struct {
	db    *sql.DB
	clock Clock
}

func NewStateRepository(db *sql.DB, clock Clock) *StateRepository {
	return &StateRepository{db: db, clock: clock}
}

func (r *StateRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// Get returns the stored value and whether it exists.
func (r *StateRepository) Get(ctx context.Context, name string) (string, bool, error) {
	return r.get(ctx, r.db, name)
}

func (r *StateRepository) get(ctx context.Context, q querier, name string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", name, err)
	}
	return value, true, nil
}

func (r *StateRepository) Set(ctx context.Context, name, value string) error {
	return r.set(ctx, r.db, name, value)
}

func (r *StateRepository) set(ctx context.Context, q querier, name, value string) error {
	_, err := q.ExecContext(
		ctx,
		`INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name,
		value,
		toMillis(r.clock.now()),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", name, err)
	}
	return nil
}

func (r *StateRepository) Load(ctx context.Context) (model.SchedulerState, error) {
	return r.load(ctx, r.db)
}

func (r *StateRepository) LoadTx(ctx context.Context, tx *sql.Tx) (model.SchedulerState, error) {
	return r.load(ctx, tx)
}

func (r *StateRepository) load(ctx context.Context, q querier) (model.SchedulerState, error) {
	state := model.DefaultSchedulerState()

	raw, ok, err := r.get(ctx, q, KeySchedulerStatus)
	if err != nil {
		return state, err
	}
	if ok {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return state, fmt.Errorf("parse %s: %w", KeySchedulerStatus, err)
		}
		status, err := model.SchedulerStatusFromCode(code)
		if err != nil {
			return state, err
		}
		state.Status = status
	}

	if state.ScheduledBeepID, err = r.getInt(ctx, q, KeyScheduledBeepID); err != nil {
		return state, err
	}
	if state.UptimeID, err = r.getInt(ctx, q, KeyUptimeID); err != nil {
		return state, err
	}

	raw, ok, err = r.get(ctx, q, KeyInCall)
	if err != nil {
		return state, err
	}
	if ok {
		inCall, err := strconv.ParseBool(raw)
		if err != nil {
			return state, fmt.Errorf("parse %s: %w", KeyInCall, err)
		}
		state.InCall = inCall
	}
	return state, nil
}

func (r *StateRepository) Save(ctx context.Context, state model.SchedulerState) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.save(ctx, tx, state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (r *StateRepository) SaveTx(ctx context.Context, tx *sql.Tx, state model.SchedulerState) error {
	return r.save(ctx, tx, state)
}

func (r *StateRepository) save(ctx context.Context, q querier, state model.SchedulerState) error {
	code, err := state.Status.Code()
	if err != nil {
		return err
	}
	values := [][2]string{
		{KeySchedulerStatus, strconv.Itoa(code)},
		{KeyScheduledBeepID, strconv.FormatInt(state.ScheduledBeepID, 10)},
		{KeyUptimeID, strconv.FormatInt(state.UptimeID, 10)},
		{KeyInCall, strconv.FormatBool(state.InCall)},
	}
	for _, kv := range values {
		if err := r.set(ctx, q, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func (r *StateRepository) getInt(ctx context.Context, q querier, name string) (int64, error) {
	raw, ok, err := r.get(ctx, q, name)
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}
