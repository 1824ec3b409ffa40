package model

import (
	"fmt"
	"strings"
	"time"

	"pomodoro/sessions/internal/clock"
)

type SessionType string

const (
	SessionTypeClassic   SessionType = "CLASSIC"
	SessionTypeFreestyle SessionType = "FREESTYLE"
)

type SessionStatus string

const (
	StatusNotStarted SessionStatus = "NOT_STARTED"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusPaused     SessionStatus = "PAUSED"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusAbandoned  SessionStatus = "ABANDONED"
)

type Phase string

const (
	PhaseFocus Phase = "FOCUS"
	PhaseBreak Phase = "BREAK"
)

const (
	DefaultFocusMinutes      = 25
	DefaultBreakMinutes      = 5
	DefaultLongBreakMinutes  = 15
	DefaultLongBreakInterval = 4
	DefaultTotalCycles       = 4

	MinFocusMinutes     = 5
	MaxFocusMinutes     = 90
	MinBreakMinutes     = 2
	MaxBreakMinutes     = 10
	MinLongBreakMinutes = 15
	MaxLongBreakMinutes = 30
	MinLongBreakCycles  = 2
	MaxLongBreakCycles  = 10
	MinTotalCycles      = 1
	MaxTotalCycles      = 12
)

func ParseSessionType(raw string) (SessionType, bool) {
	switch SessionType(strings.ToUpper(strings.TrimSpace(raw))) {
	case SessionTypeClassic:
		return SessionTypeClassic, true
	case SessionTypeFreestyle:
		return SessionTypeFreestyle, true
	}
	return "", false
}

func ParseSessionStatus(raw string) (SessionStatus, bool) {
	status := SessionStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusNotStarted, StatusInProgress, StatusPaused, StatusCompleted, StatusAbandoned:
		return status, true
	}
	return "", false
}

// Timing holds the per-session phase lengths. Frozen once the session leaves NOT_STARTED.
type Timing struct {
	Focus             time.Duration
	Break             time.Duration
	LongBreak         time.Duration
	LongBreakInterval int
}

func DefaultTiming() Timing {
	return Timing{
		Focus:             clock.Minutes(DefaultFocusMinutes),
		Break:             clock.Minutes(DefaultBreakMinutes),
		LongBreak:         clock.Minutes(DefaultLongBreakMinutes),
		LongBreakInterval: DefaultLongBreakInterval,
	}
}

func TimingFromMinutes(focus, brk, longBreak, interval int) Timing {
	return Timing{
		Focus:             clock.Minutes(focus),
		Break:             clock.Minutes(brk),
		LongBreak:         clock.Minutes(longBreak),
		LongBreakInterval: interval,
	}
}

func (t Timing) Validate() error {
	if err := checkMinutes("focusDuration", t.Focus, MinFocusMinutes, MaxFocusMinutes); err != nil {
		return err
	}
	if err := checkMinutes("breakDuration", t.Break, MinBreakMinutes, MaxBreakMinutes); err != nil {
		return err
	}
	if err := checkMinutes("longBreakDuration", t.LongBreak, MinLongBreakMinutes, MaxLongBreakMinutes); err != nil {
		return err
	}
	if t.LongBreakInterval < MinLongBreakCycles || t.LongBreakInterval > MaxLongBreakCycles {
		return &ValidationError{
			Field:   "longBreakIntervalCycles",
			Message: fmt.Sprintf("longBreakIntervalCycles must be between %d and %d", MinLongBreakCycles, MaxLongBreakCycles),
		}
	}
	return nil
}

// BreakAfter returns the break length that follows a focus phase when
// completedCycles full rounds are already done.
func (t Timing) BreakAfter(completedCycles int) time.Duration {
	if t.LongBreakDue(completedCycles) {
		return t.LongBreak
	}
	return t.Break
}

// LongBreakDue reports whether the break after the next focus phase is a long one.
func (t Timing) LongBreakDue(completedCycles int) bool {
	return t.LongBreakInterval > 0 && (completedCycles+1)%t.LongBreakInterval == 0
}

func checkMinutes(field string, d time.Duration, low, high int) error {
	if d < clock.Minutes(low) || d > clock.Minutes(high) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be between %d and %d minutes", field, low, high),
		}
	}
	return nil
}

// PomodoroSession is the session aggregate. UserID is resolved through the owning
// activity when the session is loaded and is never written back.
type PomodoroSession struct {
	ID         string
	ActivityID string
	UserID     string

	Type        SessionType
	Status      SessionStatus
	TotalCycles int
	Timing      Timing

	CurrentPhase    Phase
	PhaseDuration   time.Duration
	PhaseEndsAt     *time.Time
	PausedRemaining *time.Duration
	PhaseNotified   bool

	CyclesCompleted int
	FocusedTime     time.Duration
	StartedAt       *time.Time
	CompletedAt     *time.Time

	Note      string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewSession(id, activityID string, sessionType SessionType, totalCycles int, timing Timing, note string, now time.Time) (*PomodoroSession, error) {
	switch sessionType {
	case SessionTypeClassic:
		if totalCycles == 0 {
			totalCycles = DefaultTotalCycles
		}
		if totalCycles < MinTotalCycles || totalCycles > MaxTotalCycles {
			return nil, &ValidationError{
				Field:   "totalCycles",
				Message: fmt.Sprintf("totalCycles must be between %d and %d", MinTotalCycles, MaxTotalCycles),
			}
		}
	case SessionTypeFreestyle:
		totalCycles = 0
	default:
		return nil, &ValidationError{Field: "sessionType", Message: "sessionType must be CLASSIC or FREESTYLE"}
	}
	if err := timing.Validate(); err != nil {
		return nil, err
	}

	return &PomodoroSession{
		ID:            id,
		ActivityID:    activityID,
		Type:          sessionType,
		Status:        StatusNotStarted,
		TotalCycles:   totalCycles,
		Timing:        timing,
		CurrentPhase:  PhaseFocus,
		PhaseDuration: timing.Focus,
		Note:          note,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *PomodoroSession) Start(now time.Time) error {
	if s.Status != StatusNotStarted {
		return s.transitionError("start")
	}
	started := now
	s.Status = StatusInProgress
	s.StartedAt = &started
	s.beginPhase(PhaseFocus, s.Timing.Focus, now)
	return nil
}

// Pause freezes the time left in the current phase; Resume restores exactly that amount.
func (s *PomodoroSession) Pause(now time.Time, note *string) error {
	if s.Status != StatusInProgress {
		return s.transitionError("pause")
	}
	remaining := s.Remaining(now)
	s.Status = StatusPaused
	s.PausedRemaining = &remaining
	s.PhaseEndsAt = nil
	s.applyNote(note)
	return nil
}

func (s *PomodoroSession) Resume(now time.Time) error {
	if s.Status != StatusPaused {
		return s.transitionError("resume")
	}
	var remaining time.Duration
	if s.PausedRemaining != nil {
		remaining = *s.PausedRemaining
	}
	endsAt := now.Add(remaining)
	s.Status = StatusInProgress
	s.PhaseEndsAt = &endsAt
	s.PausedRemaining = nil
	// A phase paused after its boundary keeps its notified flag: the boundary itself is unchanged.
	if remaining > 0 {
		s.PhaseNotified = false
	}
	return nil
}

// Stop discards the in-flight cycle and rewinds the session to NOT_STARTED so it
// can be restarted cleanly. Completed cycles are kept, so a stopped session is the
// one NOT_STARTED session with cyclesCompleted above zero.
func (s *PomodoroSession) Stop(now time.Time, note *string) error {
	if s.Status != StatusInProgress && s.Status != StatusPaused {
		return s.transitionError("stop")
	}
	s.Status = StatusNotStarted
	s.StartedAt = nil
	s.CurrentPhase = PhaseFocus
	s.PhaseDuration = s.Timing.Focus
	s.PhaseEndsAt = nil
	s.PausedRemaining = nil
	s.PhaseNotified = false
	s.applyNote(note)
	return nil
}

func (s *PomodoroSession) Cancel(now time.Time) error {
	if s.Status != StatusInProgress && s.Status != StatusPaused {
		return s.transitionError("cancel")
	}
	s.Status = StatusAbandoned
	s.PhaseEndsAt = nil
	s.PausedRemaining = nil
	return nil
}

func (s *PomodoroSession) CompletePhase(now time.Time, note *string) error {
	if s.Status != StatusInProgress {
		return s.transitionError("advance")
	}
	s.applyNote(note)

	if s.CurrentPhase == PhaseFocus {
		s.FocusedTime += s.Elapsed(now)
		s.beginPhase(PhaseBreak, s.Timing.BreakAfter(s.CyclesCompleted), now)
		return nil
	}

	s.CyclesCompleted++
	if s.Type == SessionTypeClassic && s.CyclesCompleted >= s.TotalCycles {
		s.complete(now)
		return nil
	}
	s.beginPhase(PhaseFocus, s.Timing.Focus, now)
	return nil
}

// Finish ends an in-progress session early. A freestyle session finishing during its
// break counts that round; partial focus time is never credited.
func (s *PomodoroSession) Finish(now time.Time, note *string) error {
	if s.Status != StatusInProgress {
		return s.transitionError("finish")
	}
	if s.Type == SessionTypeFreestyle && s.CurrentPhase == PhaseBreak {
		s.CyclesCompleted++
	}
	s.applyNote(note)
	s.complete(now)
	return nil
}

func (s *PomodoroSession) UpdateTiming(timing Timing) error {
	if s.Status != StatusNotStarted {
		return s.transitionError("edit")
	}
	if err := timing.Validate(); err != nil {
		return err
	}
	s.Timing = timing
	s.CurrentPhase = PhaseFocus
	s.PhaseDuration = timing.Focus
	return nil
}

func (s *PomodoroSession) SetNote(note string) {
	s.Note = note
}

// Remaining is the time left in the current phase as of now.
func (s *PomodoroSession) Remaining(now time.Time) time.Duration {
	switch s.Status {
	case StatusInProgress:
		if s.PhaseEndsAt == nil {
			return 0
		}
		return clock.Until(*s.PhaseEndsAt, now)
	case StatusPaused:
		if s.PausedRemaining == nil {
			return 0
		}
		return *s.PausedRemaining
	case StatusNotStarted:
		return s.PhaseDuration
	}
	return 0
}

// Elapsed is how much of the current phase has run, excluding paused time.
func (s *PomodoroSession) Elapsed(now time.Time) time.Duration {
	if s.Status != StatusInProgress && s.Status != StatusPaused {
		return 0
	}
	elapsed := s.PhaseDuration - s.Remaining(now)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (s *PomodoroSession) IsLongBreak() bool {
	return s.CurrentPhase == PhaseBreak && s.Timing.LongBreakDue(s.CyclesCompleted)
}

// IsFinalBreak reports whether completing the current phase ends a classic session.
func (s *PomodoroSession) IsFinalBreak() bool {
	return s.Type == SessionTypeClassic && s.CurrentPhase == PhaseBreak && s.CyclesCompleted+1 >= s.TotalCycles
}

// AwaitingNotification reports whether the current phase boundary still needs a push.
func (s *PomodoroSession) AwaitingNotification() bool {
	return s.Status == StatusInProgress && s.PhaseEndsAt != nil && !s.PhaseNotified
}

// CountsTowardCompletion is false for abandoned sessions, whose cycles are void for reporting.
func (s *PomodoroSession) CountsTowardCompletion() bool {
	return s.Status != StatusAbandoned
}

func (s *PomodoroSession) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusAbandoned
}

func (s *PomodoroSession) beginPhase(phase Phase, length time.Duration, now time.Time) {
	endsAt := now.Add(length)
	s.CurrentPhase = phase
	s.PhaseDuration = length
	s.PhaseEndsAt = &endsAt
	s.PausedRemaining = nil
	s.PhaseNotified = false
}

func (s *PomodoroSession) complete(now time.Time) {
	completed := now
	s.Status = StatusCompleted
	s.CompletedAt = &completed
	s.PhaseEndsAt = nil
	s.PausedRemaining = nil
}

func (s *PomodoroSession) applyNote(note *string) {
	if note != nil {
		s.Note = *note
	}
}

func (s *PomodoroSession) transitionError(op string) error {
	return &TransitionError{Op: op, Status: s.Status}
}
