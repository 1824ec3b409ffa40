package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pomodoro/sessions/internal/clock"
	apperrors "pomodoro/sessions/internal/errors"
	"pomodoro/sessions/internal/events"
	"pomodoro/sessions/internal/model"
	"pomodoro/sessions/internal/repository"
)

// OwnershipChecker resolves whether a user may act on a session or activity.
type OwnershipChecker interface {
	UserOwnsSession(ctx context.Context, sessionID, userID string) (bool, error)
	UserOwnsActivity(ctx context.Context, activityID, userID string) (bool, error)
}

type SessionService struct {
	sessions      *repository.SessionRepository
	notifications *repository.NotificationRepository
	owners        OwnershipChecker
	clock         clock.Clock
	publisher     events.Publisher
	newID         func() string
}

type SessionView struct {
	ID                       string     `json:"id"`
	ActivityID               string     `json:"activityId"`
	SessionType              string     `json:"sessionType"`
	Status                   string     `json:"status"`
	CurrentPhase             string     `json:"currentPhase"`
	IsLongBreak              bool       `json:"isLongBreak"`
	TotalCycles              int        `json:"totalCycles"`
	CyclesCompleted          int        `json:"cyclesCompleted"`
	FocusDurationMinutes     int        `json:"focusDuration"`
	BreakDurationMinutes     int        `json:"breakDuration"`
	LongBreakDurationMinutes int        `json:"longBreakDuration"`
	LongBreakIntervalCycles  int        `json:"longBreakIntervalCycles"`
	PhaseDurationSeconds     int        `json:"phaseDurationSeconds"`
	RemainingSeconds         int        `json:"remainingSeconds"`
	ElapsedSeconds           int        `json:"elapsedSeconds"`
	FocusedSeconds           int        `json:"focusedSeconds"`
	PhaseEndsAt              *time.Time `json:"phaseEndsAt,omitempty"`
	PhaseNotified            bool       `json:"phaseNotified"`
	StartedAt                *time.Time `json:"startedAt,omitempty"`
	CompletedAt              *time.Time `json:"completedAt,omitempty"`
	CountsTowardCompletion   bool       `json:"countsTowardCompletion"`
	Terminal                 bool       `json:"terminal"`
	Note                     string     `json:"note"`
	Version                  int        `json:"version"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
	ServerTime               time.Time  `json:"serverTime"`
}

// CommandInput is shared by the lifecycle commands. BaseVersion 0 skips the
// optimistic check; Note nil leaves the note unchanged.
type CommandInput struct {
	BaseVersion int
	Note        *string
}

// TimingInput sets the timing of a new session in whole minutes. Zero fields take
// the defaults.
type TimingInput struct {
	FocusMinutes      int
	BreakMinutes      int
	LongBreakMinutes  int
	LongBreakInterval int
}

// TimingPatch is a partial timing edit in whole minutes. Nil fields are left as they are.
type TimingPatch struct {
	FocusMinutes      *int
	BreakMinutes      *int
	LongBreakMinutes  *int
	LongBreakInterval *int
}

type CreateSessionInput struct {
	ActivityID  string
	SessionType string
	TotalCycles int
	Timing      *TimingInput
	Note        string
}

func NewSessionService(
	sessions *repository.SessionRepository,
	notifications *repository.NotificationRepository,
	owners OwnershipChecker,
	clk clock.Clock,
	publisher events.Publisher,
) *SessionService {
	return &SessionService{
		sessions:      sessions,
		notifications: notifications,
		owners:        owners,
		clock:         clk,
		publisher:     publisher,
		newID:         uuid.NewString,
	}
}

func (s *SessionService) Create(ctx context.Context, userID string, input CreateSessionInput) (*SessionView, *apperrors.APIError) {
	owns, err := s.owners.UserOwnsActivity(ctx, input.ActivityID, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to check activity")
	}
	if !owns {
		return nil, activityNotFound()
	}

	sessionType, ok := model.ParseSessionType(input.SessionType)
	if !ok {
		return nil, apperrors.Validation("sessionType", "sessionType must be CLASSIC or FREESTYLE")
	}

	now := s.clock.Now()
	session, err := model.NewSession(s.newID(), input.ActivityID, sessionType, input.TotalCycles, input.Timing.toTiming(), input.Note, now)
	if err != nil {
		return nil, domainError(err)
	}
	session.UserID = userID

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.Internal("failed to create session")
	}

	view := toSessionView(session, now)
	return &view, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID, userID string) (*SessionView, *apperrors.APIError) {
	if apiErr := s.ensureSessionOwner(ctx, sessionID, userID); apiErr != nil {
		return nil, apiErr
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, sessionNotFound()
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get session")
	}

	view := toSessionView(session, s.clock.Now())
	return &view, nil
}

// DeliveryView is one scheduled push as shown in a session's delivery log.
type DeliveryView struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Phase       string     `json:"phase"`
	Title       string     `json:"title"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"lastError,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
}

// Deliveries lists the session's scheduled pushes, oldest first. Rows already
// purged by retention are gone.
func (s *SessionService) Deliveries(ctx context.Context, sessionID, userID string) ([]DeliveryView, *apperrors.APIError) {
	if apiErr := s.ensureSessionOwner(ctx, sessionID, userID); apiErr != nil {
		return nil, apiErr
	}

	items, err := s.notifications.ListForSession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Internal("failed to list notifications")
	}
	views := make([]DeliveryView, 0, len(items))
	for _, n := range items {
		status := "PENDING"
		switch {
		case n.Sent:
			status = "SENT"
		case n.Cancelled:
			status = "CANCELLED"
		}
		views = append(views, DeliveryView{
			ID:          n.ID,
			Type:        string(n.Type),
			Phase:       string(n.Phase),
			Title:       n.Title,
			ScheduledAt: n.ScheduledAt,
			Status:      status,
			Attempts:    n.Attempts,
			LastError:   n.LastError,
			SentAt:      n.SentAt,
		})
	}
	return views, nil
}

func (s *SessionService) ListForActivity(ctx context.Context, activityID, userID, statusFilter string) ([]SessionView, *apperrors.APIError) {
	owns, err := s.owners.UserOwnsActivity(ctx, activityID, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to check activity")
	}
	if !owns {
		return nil, activityNotFound()
	}

	var status *model.SessionStatus
	if statusFilter != "" {
		parsed, ok := model.ParseSessionStatus(statusFilter)
		if !ok {
			return nil, apperrors.Validation("status", "unknown session status "+statusFilter)
		}
		status = &parsed
	}

	sessions, err := s.sessions.ListByActivity(ctx, activityID, status)
	if err != nil {
		return nil, apperrors.Internal("failed to list sessions")
	}

	now := s.clock.Now()
	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, toSessionView(&sessions[i], now))
	}
	return views, nil
}

func (s *SessionService) Start(ctx context.Context, sessionID, userID string, input CommandInput) (*SessionView, *apperrors.APIError) {
	return s.command(ctx, sessionID, userID, input.BaseVersion, true, func(session *model.PomodoroSession, now time.Time) error {
		return session.Start(now)
	})
}

func (s *SessionService) Pause(ctx context.Context, sessionID, userID string, input CommandInput) (*SessionView, *apperrors.APIError) {
	return s.command(ctx, sessionID, userID, input.BaseVersion, true, func(session *model.PomodoroSession, now time.Time) error {
		return session.Pause(now, input.Note)
	})
}

func (s *SessionService) Resume(ctx context.Context, sessionID, userID string, input CommandInput) (*SessionView, *apperrors.APIError) {
	return s.command(ctx, sessionID, userID, input.BaseVersion, true, func(session *model.PomodoroSession, now time.Time) error {
		return session.Resume(now)
	})
}

func (s *SessionService) Stop(ctx context.Context, sessionID, userID string, input CommandInput) (*SessionView, *apperrors.APIError) {
	return s.command(ctx, sessionID, userID, input.BaseVersion, true, func(session *model.PomodoroSession, now time.Time) error {
		return session.Stop(now, input.Note)
	})
}

func (s *SessionService) Cancel(ctx context.Context, sessionID, userID string, input CommandInput) (*SessionView, *apperrors.APIError) {
	return s.command(ctx, sessionID, userID, input.BaseVersion, true, func(session *model.PomodoroSession, now time.Time) error {
		return session.Cancel(now)
	})
}

// CompletePhase advances the session and emits a phase_completed event carrying
// the same projection the caller receives.
func (s *SessionService) CompletePhase(ctx context.Context, sessionID, userID string, input CommandInput) (*SessionView, *apperrors.APIError) {
	view, apiErr := s.command(ctx, sessionID, userID, input.BaseVersion, true, func(session *model.PomodoroSession, now time.Time) error {
		return session.CompletePhase(now, input.Note)
	})
	if apiErr != nil {
		return nil, apiErr
	}
	s.publish(ctx, events.TypePhaseCompleted, userID, view)
	return view, nil
}

func (s *SessionService) Finish(ctx context.Context, sessionID, userID string, input CommandInput) (*SessionView, *apperrors.APIError) {
	return s.command(ctx, sessionID, userID, input.BaseVersion, true, func(session *model.PomodoroSession, now time.Time) error {
		return session.Finish(now, input.Note)
	})
}

// UpdateTiming merges the fields present in patch onto the session's current timing.
// Present fields are validated as sent; absent fields keep their value.
func (s *SessionService) UpdateTiming(ctx context.Context, sessionID, userID string, baseVersion int, patch TimingPatch) (*SessionView, *apperrors.APIError) {
	if patch.empty() {
		return nil, apperrors.Validation("timing", "at least one timing field is required")
	}
	return s.command(ctx, sessionID, userID, baseVersion, false, func(session *model.PomodoroSession, _ time.Time) error {
		return session.UpdateTiming(patch.applyTo(session.Timing))
	})
}

func (s *SessionService) SetNote(ctx context.Context, sessionID, userID string, baseVersion int, note string) (*SessionView, *apperrors.APIError) {
	return s.command(ctx, sessionID, userID, baseVersion, false, func(session *model.PomodoroSession, _ time.Time) error {
		session.SetNote(note)
		return nil
	})
}

// command runs one aggregate transition in a single transaction together with the
// matching scheduler update. Ownership is checked before the transaction opens
// because the store runs on one connection.
func (s *SessionService) command(
	ctx context.Context,
	sessionID, userID string,
	baseVersion int,
	reschedule bool,
	apply func(*model.PomodoroSession, time.Time) error,
) (*SessionView, *apperrors.APIError) {
	if apiErr := s.ensureSessionOwner(ctx, sessionID, userID); apiErr != nil {
		return nil, apiErr
	}

	now := s.clock.Now()
	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, err := s.sessions.GetTx(ctx, tx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, sessionNotFound()
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get session")
	}

	if apiErr := ensureVersion(baseVersion, session, now); apiErr != nil {
		return nil, apiErr
	}

	if err := apply(session, now); err != nil {
		return nil, domainError(err)
	}

	expected := session.Version
	session.Version++
	session.UpdatedAt = now
	if err := s.sessions.UpdateTx(ctx, tx, session, expected); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.Conflict(apperrors.CodeConcurrentModification, "session was modified concurrently, retry", nil)
		}
		return nil, apperrors.Internal("failed to update session")
	}

	if reschedule {
		if err := s.syncNotificationTx(ctx, tx, session, now); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("sync scheduled notification")
			return nil, apperrors.Internal("failed to schedule notification")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	view := toSessionView(session, now)
	return &view, nil
}

// syncNotificationTx keeps exactly one pending row per live phase boundary and none
// otherwise.
func (s *SessionService) syncNotificationTx(ctx context.Context, tx *sql.Tx, session *model.PomodoroSession, now time.Time) error {
	if session.AwaitingNotification() {
		n := model.NewPhaseNotification(s.newID(), session, now)
		return s.notifications.UpsertPendingTx(ctx, tx, &n)
	}
	cancelled, err := s.notifications.CancelForSessionTx(ctx, tx, session.ID, now)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		log.Debug().Str("sessionId", session.ID).Int64("cancelled", cancelled).Str("status", string(session.Status)).Msg("pending notification cancelled")
	}
	return nil
}

func (s *SessionService) publish(ctx context.Context, eventType, userID string, view *SessionView) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", view.ID).Msg("encode session event")
		return
	}
	s.publisher.Publish(ctx, events.Event{
		Type:      eventType,
		UserID:    userID,
		SessionID: view.ID,
		Payload:   payload,
		At:        view.ServerTime,
	})
}

func (s *SessionService) ensureSessionOwner(ctx context.Context, sessionID, userID string) *apperrors.APIError {
	owns, err := s.owners.UserOwnsSession(ctx, sessionID, userID)
	if err != nil {
		return apperrors.Internal("failed to check session")
	}
	if !owns {
		return sessionNotFound()
	}
	return nil
}

func ensureVersion(baseVersion int, session *model.PomodoroSession, now time.Time) *apperrors.APIError {
	if baseVersion <= 0 || baseVersion == session.Version {
		return nil
	}
	view := toSessionView(session, now)
	return apperrors.Conflict(apperrors.CodeConcurrentModification, "session changed since version was read", map[string]interface{}{
		"state": view,
	})
}

func domainError(err error) *apperrors.APIError {
	var transitionErr *model.TransitionError
	if errors.As(err, &transitionErr) {
		return apperrors.InvalidTransition(transitionErr.Error())
	}
	var validationErr *model.ValidationError
	if errors.As(err, &validationErr) {
		return apperrors.Validation(validationErr.Field, validationErr.Message)
	}
	return apperrors.Internal("")
}

func sessionNotFound() *apperrors.APIError {
	return apperrors.NotFound(apperrors.CodeSessionNotFound, "session not found")
}

func activityNotFound() *apperrors.APIError {
	return apperrors.NotFound(apperrors.CodeActivityNotFound, "activity not found")
}

func (t *TimingInput) toTiming() model.Timing {
	timing := model.DefaultTiming()
	if t == nil {
		return timing
	}
	if t.FocusMinutes != 0 {
		timing.Focus = clock.Minutes(t.FocusMinutes)
	}
	if t.BreakMinutes != 0 {
		timing.Break = clock.Minutes(t.BreakMinutes)
	}
	if t.LongBreakMinutes != 0 {
		timing.LongBreak = clock.Minutes(t.LongBreakMinutes)
	}
	if t.LongBreakInterval != 0 {
		timing.LongBreakInterval = t.LongBreakInterval
	}
	return timing
}

func (p TimingPatch) empty() bool {
	return p.FocusMinutes == nil && p.BreakMinutes == nil && p.LongBreakMinutes == nil && p.LongBreakInterval == nil
}

func (p TimingPatch) applyTo(current model.Timing) model.Timing {
	timing := current
	if p.FocusMinutes != nil {
		timing.Focus = clock.Minutes(*p.FocusMinutes)
	}
	if p.BreakMinutes != nil {
		timing.Break = clock.Minutes(*p.BreakMinutes)
	}
	if p.LongBreakMinutes != nil {
		timing.LongBreak = clock.Minutes(*p.LongBreakMinutes)
	}
	if p.LongBreakInterval != nil {
		timing.LongBreakInterval = *p.LongBreakInterval
	}
	return timing
}

func toSessionView(session *model.PomodoroSession, now time.Time) SessionView {
	return SessionView{
		ID:                       session.ID,
		ActivityID:               session.ActivityID,
		SessionType:              string(session.Type),
		Status:                   string(session.Status),
		CurrentPhase:             string(session.CurrentPhase),
		IsLongBreak:              session.IsLongBreak(),
		TotalCycles:              session.TotalCycles,
		CyclesCompleted:          session.CyclesCompleted,
		FocusDurationMinutes:     clock.WholeMinutes(session.Timing.Focus),
		BreakDurationMinutes:     clock.WholeMinutes(session.Timing.Break),
		LongBreakDurationMinutes: clock.WholeMinutes(session.Timing.LongBreak),
		LongBreakIntervalCycles:  session.Timing.LongBreakInterval,
		PhaseDurationSeconds:     clock.CeilSeconds(session.PhaseDuration),
		RemainingSeconds:         clock.CeilSeconds(session.Remaining(now)),
		ElapsedSeconds:           clock.FloorSeconds(session.Elapsed(now)),
		FocusedSeconds:           clock.FloorSeconds(session.FocusedTime),
		PhaseEndsAt:              session.PhaseEndsAt,
		PhaseNotified:            session.PhaseNotified,
		StartedAt:                session.StartedAt,
		CompletedAt:              session.CompletedAt,
		CountsTowardCompletion:   session.CountsTowardCompletion(),
		Terminal:                 session.IsTerminal(),
		Note:                     session.Note,
		Version:                  session.Version,
		CreatedAt:                session.CreatedAt,
		UpdatedAt:                session.UpdatedAt,
		ServerTime:               now,
	}
}
