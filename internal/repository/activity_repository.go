package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pomodoro/sessions/internal/model"
)

type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Create(ctx context.Context, activity *model.Activity) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO activities (id, user_id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		activity.ID,
		activity.UserID,
		activity.Name,
		formatTime(activity.CreatedAt),
		formatTime(activity.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	var (
		activity  model.Activity
		createdAt string
		updatedAt string
	)
	err := r.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM activities WHERE id = ?`,
		id,
	).Scan(&activity.ID, &activity.UserID, &activity.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}

	if activity.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse activity created_at: %w", err)
	}
	if activity.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse activity updated_at: %w", err)
	}
	return &activity, nil
}

func (r *ActivityRepository) UserOwnsActivity(ctx context.Context, activityID, userID string) (bool, error) {
	return r.exists(ctx, `SELECT COUNT(1) FROM activities WHERE id = ? AND user_id = ?`, activityID, userID)
}

// UserOwnsSession resolves session ownership through the session's activity.
func (r *ActivityRepository) UserOwnsSession(ctx context.Context, sessionID, userID string) (bool, error) {
	return r.exists(
		ctx,
		`SELECT COUNT(1)
		 FROM pomodoro_sessions s JOIN activities a ON a.id = s.activity_id
		 WHERE s.id = ? AND a.user_id = ?`,
		sessionID,
		userID,
	)
}

func (r *ActivityRepository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check ownership: %w", err)
	}
	return count > 0, nil
}
