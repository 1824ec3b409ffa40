package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pomodoro/sessions/internal/model"
)

const notificationColumns = `id, session_id, user_id, activity_id, title, body, notification_type,
		phase_at_schedule, scheduled_at, sent, cancelled, attempts, last_error, sent_at,
		created_at, updated_at`

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// UpsertPendingTx cancels any pending row for the session and inserts n as the new
// pending row. The partial unique index rejects a second concurrent pending insert.
func (r *NotificationRepository) UpsertPendingTx(ctx context.Context, tx *sql.Tx, n *model.ScheduledNotification) error {
	if _, err := cancelPending(ctx, tx, n.SessionID, n.CreatedAt); err != nil {
		return err
	}

	var activityID interface{}
	if n.ActivityID != nil {
		activityID = *n.ActivityID
	}
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO scheduled_notifications (
			id, session_id, user_id, activity_id, title, body, notification_type,
			phase_at_schedule, scheduled_at, sent, cancelled, attempts, last_error,
			sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, '', NULL, ?, ?)`,
		n.ID,
		n.SessionID,
		n.UserID,
		activityID,
		n.Title,
		n.Body,
		n.Type,
		n.Phase,
		formatTime(n.ScheduledAt),
		formatTime(n.CreatedAt),
		formatTime(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// CancelForSessionTx cancels every pending row of the session. Sent and already
// cancelled rows are left untouched.
func (r *NotificationRepository) CancelForSessionTx(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) (int64, error) {
	return cancelPending(ctx, tx, sessionID, now)
}

func cancelPending(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) (int64, error) {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE scheduled_notifications
		 SET cancelled = 1, updated_at = ?
		 WHERE session_id = ? AND sent = 0 AND cancelled = 0`,
		formatTime(now),
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel notifications: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel notifications rows: %w", err)
	}
	return affected, nil
}

// FindDue returns pending rows scheduled at or before now, oldest first.
func (r *NotificationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledNotification, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+notificationColumns+`
		 FROM scheduled_notifications
		 WHERE sent = 0 AND cancelled = 0 AND scheduled_at <= ?
		 ORDER BY scheduled_at, id
		 LIMIT ?`,
		formatTime(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find due notifications: %w", err)
	}
	return collectNotifications(rows)
}

func (r *NotificationRepository) ListForSession(ctx context.Context, sessionID string) ([]model.ScheduledNotification, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+notificationColumns+`
		 FROM scheduled_notifications
		 WHERE session_id = ?
		 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return collectNotifications(rows)
}

// MarkSent records a confirmed delivery and flags the matching session boundary as
// notified in the same transaction. It reports false if the row was no longer pending.
func (r *NotificationRepository) MarkSent(ctx context.Context, n *model.ScheduledNotification, now time.Time) (bool, error) {
	return r.closeOut(ctx, n, now, `UPDATE scheduled_notifications
		 SET sent = 1, sent_at = ?, updated_at = ?
		 WHERE id = ? AND sent = 0 AND cancelled = 0`,
		formatTime(now), formatTime(now), n.ID)
}

// MarkUndeliverable cancels a row that exhausted its attempts. The boundary is still
// flagged so the overdue-session scan does not pick it up again.
func (r *NotificationRepository) MarkUndeliverable(ctx context.Context, n *model.ScheduledNotification, now time.Time) (bool, error) {
	return r.closeOut(ctx, n, now, `UPDATE scheduled_notifications
		 SET cancelled = 1, updated_at = ?
		 WHERE id = ? AND sent = 0 AND cancelled = 0`,
		formatTime(now), n.ID)
}

func (r *NotificationRepository) closeOut(ctx context.Context, n *model.ScheduledNotification, now time.Time, query string, args ...interface{}) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update notification rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(
		ctx,
		markPhaseNotifiedSQL,
		formatTime(now),
		n.SessionID,
		formatTime(n.ScheduledAt),
		model.StatusInProgress,
	); err != nil {
		return false, fmt.Errorf("mark phase notified: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// RecordFailure bumps the attempt counter of a pending row and returns the new count.
func (r *NotificationRepository) RecordFailure(ctx context.Context, id string, reason string, now time.Time) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(
		ctx,
		`UPDATE scheduled_notifications
		 SET attempts = attempts + 1, last_error = ?, updated_at = ?
		 WHERE id = ? AND sent = 0 AND cancelled = 0
		 RETURNING attempts`,
		reason,
		formatTime(now),
		id,
	).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record notification failure: %w", err)
	}
	return attempts, nil
}

// PurgeOlderThan deletes sent or cancelled rows created before cutoff.
func (r *NotificationRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(
		ctx,
		`DELETE FROM scheduled_notifications
		 WHERE (sent = 1 OR cancelled = 1) AND created_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge notifications rows: %w", err)
	}
	return affected, nil
}

func collectNotifications(rows *sql.Rows) ([]model.ScheduledNotification, error) {
	defer rows.Close()

	items := make([]model.ScheduledNotification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func scanNotification(row rowScanner) (*model.ScheduledNotification, error) {
	var (
		n           model.ScheduledNotification
		activityID  sql.NullString
		scheduledAt string
		sent        int
		cancelled   int
		sentAt      sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(
		&n.ID,
		&n.SessionID,
		&n.UserID,
		&activityID,
		&n.Title,
		&n.Body,
		&n.Type,
		&n.Phase,
		&scheduledAt,
		&sent,
		&cancelled,
		&n.Attempts,
		&n.LastError,
		&sentAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if activityID.Valid {
		id := activityID.String
		n.ActivityID = &id
	}
	n.Sent = sent != 0
	n.Cancelled = cancelled != 0

	var err error
	if n.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, fmt.Errorf("parse scheduled_at: %w", err)
	}
	if n.SentAt, err = parseNullTime(sentAt); err != nil {
		return nil, fmt.Errorf("parse sent_at: %w", err)
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &n, nil
}
