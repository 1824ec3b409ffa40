package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "pomodoro/sessions/internal/errors"
	"pomodoro/sessions/internal/model"
	"pomodoro/sessions/internal/repository"
)

const maxActivityNameLength = 120

type ActivityService struct {
	activities *repository.ActivityRepository
}

func NewActivityService(activities *repository.ActivityRepository) *ActivityService {
	return &ActivityService{activities: activities}
}

func (s *ActivityService) Create(ctx context.Context, userID, name string) (*model.Activity, *apperrors.APIError) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	if len(trimmed) > maxActivityNameLength {
		return nil, apperrors.Validation("name", "name is too long")
	}

	now := time.Now().UTC()
	activity := model.Activity{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.activities.Create(ctx, &activity); err != nil {
		return nil, apperrors.Internal("failed to create activity")
	}
	return &activity, nil
}

// Get returns the caller's activity. Activities of other users read as missing.
func (s *ActivityService) Get(ctx context.Context, activityID, userID string) (*model.Activity, *apperrors.APIError) {
	activity, err := s.activities.GetByID(ctx, activityID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, activityNotFound()
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get activity")
	}
	if activity.UserID != userID {
		return nil, activityNotFound()
	}
	return activity, nil
}
