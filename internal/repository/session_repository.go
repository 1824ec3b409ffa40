package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pomodoro/sessions/internal/clock"
	"pomodoro/sessions/internal/model"
)

const sessionColumns = `s.id, s.activity_id, a.user_id, s.session_type, s.status, s.current_phase,
		s.focus_duration_seconds, s.break_duration_seconds, s.long_break_duration_seconds,
		s.long_break_interval, s.total_cycles, s.cycles_completed, s.focused_ms,
		s.phase_duration_ms, s.phase_ends_at, s.paused_remaining_ms, s.phase_notified,
		s.started_at, s.completed_at, s.note, s.version, s.created_at, s.updated_at`

const sessionFrom = `FROM pomodoro_sessions s JOIN activities a ON a.id = s.activity_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *model.PomodoroSession) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO pomodoro_sessions (
			id, activity_id, session_type, status, current_phase,
			focus_duration_seconds, break_duration_seconds, long_break_duration_seconds,
			long_break_interval, total_cycles, cycles_completed, focused_ms,
			phase_duration_ms, phase_ends_at, paused_remaining_ms, phase_notified,
			started_at, completed_at, note, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.ActivityID,
		s.Type,
		s.Status,
		s.CurrentPhase,
		int64(s.Timing.Focus/time.Second),
		int64(s.Timing.Break/time.Second),
		int64(s.Timing.LongBreak/time.Second),
		s.Timing.LongBreakInterval,
		s.TotalCycles,
		s.CyclesCompleted,
		clock.Millis(s.FocusedTime),
		clock.Millis(s.PhaseDuration),
		formatNullTime(s.PhaseEndsAt),
		nullMillis(s.PausedRemaining),
		boolToInt(s.PhaseNotified),
		formatNullTime(s.StartedAt),
		formatNullTime(s.CompletedAt),
		s.Note,
		s.Version,
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*model.PomodoroSession, error) {
	return getSession(ctx, r.db, id)
}

func (r *SessionRepository) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.PomodoroSession, error) {
	return getSession(ctx, tx, id)
}

func getSession(ctx context.Context, q queryer, id string) (*model.PomodoroSession, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` `+sessionFrom+` WHERE s.id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// UpdateTx writes s if the stored version still equals expectedVersion.
// s.Version must already hold the new version.
func (r *SessionRepository) UpdateTx(ctx context.Context, tx *sql.Tx, s *model.PomodoroSession, expectedVersion int) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE pomodoro_sessions
		 SET status = ?,
		     current_phase = ?,
		     focus_duration_seconds = ?,
		     break_duration_seconds = ?,
		     long_break_duration_seconds = ?,
		     long_break_interval = ?,
		     cycles_completed = ?,
		     focused_ms = ?,
		     phase_duration_ms = ?,
		     phase_ends_at = ?,
		     paused_remaining_ms = ?,
		     phase_notified = ?,
		     started_at = ?,
		     completed_at = ?,
		     note = ?,
		     version = ?,
		     updated_at = ?
		 WHERE id = ? AND version = ?`,
		s.Status,
		s.CurrentPhase,
		int64(s.Timing.Focus/time.Second),
		int64(s.Timing.Break/time.Second),
		int64(s.Timing.LongBreak/time.Second),
		s.Timing.LongBreakInterval,
		s.CyclesCompleted,
		clock.Millis(s.FocusedTime),
		clock.Millis(s.PhaseDuration),
		formatNullTime(s.PhaseEndsAt),
		nullMillis(s.PausedRemaining),
		boolToInt(s.PhaseNotified),
		formatNullTime(s.StartedAt),
		formatNullTime(s.CompletedAt),
		s.Note,
		s.Version,
		formatTime(s.UpdatedAt),
		s.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *SessionRepository) ListByActivity(ctx context.Context, activityID string, status *model.SessionStatus) ([]model.PomodoroSession, error) {
	query := `SELECT ` + sessionColumns + ` ` + sessionFrom + ` WHERE s.activity_id = ?`
	args := []interface{}{activityID}
	if status != nil {
		query += ` AND s.status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY s.created_at DESC, s.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.PomodoroSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ListOverdue returns running sessions whose phase boundary has passed without a
// notification, skipping sessions that still own a pending scheduled row: those
// are delivered through the row.
func (r *SessionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.PomodoroSession, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+` `+sessionFrom+`
		 WHERE s.status = ?
		   AND s.phase_notified = 0
		   AND s.phase_ends_at IS NOT NULL
		   AND s.phase_ends_at <= ?
		   AND NOT EXISTS (
		       SELECT 1 FROM scheduled_notifications n
		       WHERE n.session_id = s.id AND n.sent = 0 AND n.cancelled = 0
		   )
		 ORDER BY s.phase_ends_at
		 LIMIT ?`,
		model.StatusInProgress,
		formatTime(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.PomodoroSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overdue session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overdue sessions: %w", err)
	}
	return sessions, nil
}

// MarkPhaseNotified flags the boundary ending at phaseEndsAt as delivered. It reports
// false when the session has since moved to another boundary or was already flagged.
func (r *SessionRepository) MarkPhaseNotified(ctx context.Context, sessionID string, phaseEndsAt time.Time, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, markPhaseNotifiedSQL, formatTime(now), sessionID, formatTime(phaseEndsAt), model.StatusInProgress)
	if err != nil {
		return false, fmt.Errorf("mark phase notified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark phase notified rows: %w", err)
	}
	return affected > 0, nil
}

const markPhaseNotifiedSQL = `UPDATE pomodoro_sessions
	 SET phase_notified = 1, updated_at = ?
	 WHERE id = ? AND phase_ends_at = ? AND status = ? AND phase_notified = 0`

func scanSession(row rowScanner) (*model.PomodoroSession, error) {
	var (
		s                model.PomodoroSession
		focusSeconds     int64
		breakSeconds     int64
		longBreakSeconds int64
		focusedMillis    int64
		phaseMillis      int64
		phaseEndsAt      sql.NullString
		pausedRemaining  sql.NullInt64
		phaseNotified    int
		startedAt        sql.NullString
		completedAt      sql.NullString
		createdAt        string
		updatedAt        string
	)
	if err := row.Scan(
		&s.ID,
		&s.ActivityID,
		&s.UserID,
		&s.Type,
		&s.Status,
		&s.CurrentPhase,
		&focusSeconds,
		&breakSeconds,
		&longBreakSeconds,
		&s.Timing.LongBreakInterval,
		&s.TotalCycles,
		&s.CyclesCompleted,
		&focusedMillis,
		&phaseMillis,
		&phaseEndsAt,
		&pausedRemaining,
		&phaseNotified,
		&startedAt,
		&completedAt,
		&s.Note,
		&s.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	s.Timing.Focus = clock.Seconds(focusSeconds)
	s.Timing.Break = clock.Seconds(breakSeconds)
	s.Timing.LongBreak = clock.Seconds(longBreakSeconds)
	s.FocusedTime = clock.FromMillis(focusedMillis)
	s.PhaseDuration = clock.FromMillis(phaseMillis)
	s.PhaseNotified = phaseNotified != 0
	if pausedRemaining.Valid {
		remaining := clock.FromMillis(pausedRemaining.Int64)
		s.PausedRemaining = &remaining
	}

	var err error
	if s.PhaseEndsAt, err = parseNullTime(phaseEndsAt); err != nil {
		return nil, fmt.Errorf("parse phase_ends_at: %w", err)
	}
	if s.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if s.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &s, nil
}

func nullMillis(d *time.Duration) interface{} {
	if d == nil {
		return nil
	}
	return clock.Millis(*d)
}
