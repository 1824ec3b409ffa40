package model

import (
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationPhaseComplete   NotificationType = "PHASE_COMPLETE"
	NotificationSessionComplete NotificationType = "SESSION_COMPLETE"
)

// ScheduledNotification is one push due at a session's phase boundary. At most one
// row per session is pending (neither sent nor cancelled) at any time.
type ScheduledNotification struct {
	ID          string
	SessionID   string
	UserID      string
	ActivityID  *string
	Title       string
	Body        string
	Type        NotificationType
	Phase       Phase
	ScheduledAt time.Time
	Sent        bool
	Cancelled   bool
	Attempts    int
	LastError   string
	SentAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (n ScheduledNotification) Pending() bool {
	return !n.Sent && !n.Cancelled
}

type PhaseMessage struct {
	Title string
	Body  string
	Type  NotificationType
}

// PhaseMessage describes the push sent when the current phase reaches its boundary.
func (s *PomodoroSession) PhaseMessage() PhaseMessage {
	if s.CurrentPhase == PhaseFocus {
		upcoming := s.Timing.BreakAfter(s.CyclesCompleted)
		kind := "short"
		if s.Timing.LongBreakDue(s.CyclesCompleted) {
			kind = "long"
		}
		return PhaseMessage{
			Title: "Focus complete",
			Body:  fmt.Sprintf("Nice work! Time for a %s break (%d min).", kind, int(upcoming/time.Minute)),
			Type:  NotificationPhaseComplete,
		}
	}

	if s.IsFinalBreak() {
		return PhaseMessage{
			Title: "Session complete",
			Body:  fmt.Sprintf("All %d cycles done. Great focus today!", s.TotalCycles),
			Type:  NotificationSessionComplete,
		}
	}
	return PhaseMessage{
		Title: "Break is over",
		Body:  fmt.Sprintf("Ready for the next %d-minute focus round?", int(s.Timing.Focus/time.Minute)),
		Type:  NotificationPhaseComplete,
	}
}

// NewPhaseNotification builds the pending row for the session's current boundary.
// The session must be awaiting a notification.
func NewPhaseNotification(id string, s *PomodoroSession, now time.Time) ScheduledNotification {
	msg := s.PhaseMessage()
	activityID := s.ActivityID
	n := ScheduledNotification{
		ID:        id,
		SessionID: s.ID,
		UserID:    s.UserID,
		Title:     msg.Title,
		Body:      msg.Body,
		Type:      msg.Type,
		Phase:     s.CurrentPhase,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if activityID != "" {
		n.ActivityID = &activityID
	}
	if s.PhaseEndsAt != nil {
		n.ScheduledAt = *s.PhaseEndsAt
	}
	return n
}
