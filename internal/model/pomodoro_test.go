package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

func newClassic(t *testing.T, totalCycles int) *PomodoroSession {
	t.Helper()
	s, err := NewSession("s-1", "a-1", SessionTypeClassic, totalCycles, DefaultTiming(), "", t0)
	require.NoError(t, err)
	return s
}

func newFreestyle(t *testing.T) *PomodoroSession {
	t.Helper()
	s, err := NewSession("s-2", "a-1", SessionTypeFreestyle, 0, DefaultTiming(), "", t0)
	require.NoError(t, err)
	return s
}

func strPtr(v string) *string { return &v }

func TestNewSessionDefaults(t *testing.T) {
	s := newClassic(t, 0)

	assert.Equal(t, StatusNotStarted, s.Status)
	assert.Equal(t, DefaultTotalCycles, s.TotalCycles)
	assert.Equal(t, PhaseFocus, s.CurrentPhase)
	assert.Nil(t, s.StartedAt)
	assert.Zero(t, s.CyclesCompleted)
	assert.Equal(t, 25*time.Minute, s.Remaining(t0))
	assert.Equal(t, 1, s.Version)

	free := newFreestyle(t)
	assert.Zero(t, free.TotalCycles)
}

func TestNewSessionValidation(t *testing.T) {
	_, err := NewSession("s", "a", SessionType("POMO"), 0, DefaultTiming(), "", t0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewSession("s", "a", SessionTypeClassic, 13, DefaultTiming(), "", t0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewSession("s", "a", SessionTypeClassic, 4, TimingFromMinutes(4, 5, 15, 4), "", t0)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "focusDuration", vErr.Field)
}

func TestTimingValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		timing Timing
		field  string
	}{
		{"focus low", TimingFromMinutes(4, 5, 15, 4), "focusDuration"},
		{"focus high", TimingFromMinutes(91, 5, 15, 4), "focusDuration"},
		{"break low", TimingFromMinutes(25, 1, 15, 4), "breakDuration"},
		{"break high", TimingFromMinutes(25, 11, 15, 4), "breakDuration"},
		{"long low", TimingFromMinutes(25, 5, 14, 4), "longBreakDuration"},
		{"long high", TimingFromMinutes(25, 5, 31, 4), "longBreakDuration"},
		{"interval low", TimingFromMinutes(25, 5, 15, 1), "longBreakIntervalCycles"},
		{"interval high", TimingFromMinutes(25, 5, 15, 11), "longBreakIntervalCycles"},
		{"bounds ok", TimingFromMinutes(90, 10, 30, 10), ""},
		{"lower bounds ok", TimingFromMinutes(5, 2, 15, 2), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.timing.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestStart(t *testing.T) {
	s := newClassic(t, 4)
	require.NoError(t, s.Start(t0))

	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, PhaseFocus, s.CurrentPhase)
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, t0, *s.StartedAt)
	require.NotNil(t, s.PhaseEndsAt)
	assert.Equal(t, t0.Add(25*time.Minute), *s.PhaseEndsAt)
	assert.False(t, s.PhaseNotified)
	assert.True(t, s.AwaitingNotification())

	err := s.Start(t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualError(t, err, "Cannot start session in state IN_PROGRESS")
}

func TestUpdateTimingEditLock(t *testing.T) {
	timing := TimingFromMinutes(50, 10, 30, 3)

	type setup func(t *testing.T) *PomodoroSession
	cases := map[SessionStatus]setup{
		StatusNotStarted: func(t *testing.T) *PomodoroSession { return newClassic(t, 4) },
		StatusInProgress: func(t *testing.T) *PomodoroSession {
			s := newClassic(t, 4)
			require.NoError(t, s.Start(t0))
			return s
		},
		StatusPaused: func(t *testing.T) *PomodoroSession {
			s := newClassic(t, 4)
			require.NoError(t, s.Start(t0))
			require.NoError(t, s.Pause(t0.Add(time.Minute), nil))
			return s
		},
		StatusCompleted: func(t *testing.T) *PomodoroSession {
			s := newClassic(t, 4)
			require.NoError(t, s.Start(t0))
			require.NoError(t, s.Finish(t0.Add(time.Minute), nil))
			return s
		},
		StatusAbandoned: func(t *testing.T) *PomodoroSession {
			s := newClassic(t, 4)
			require.NoError(t, s.Start(t0))
			require.NoError(t, s.Cancel(t0.Add(time.Minute)))
			return s
		},
	}

	for status, build := range cases {
		t.Run(string(status), func(t *testing.T) {
			s := build(t)
			require.Equal(t, status, s.Status)

			err := s.UpdateTiming(timing)
			if status == StatusNotStarted {
				require.NoError(t, err)
				assert.Equal(t, timing, s.Timing)
				assert.Equal(t, 50*time.Minute, s.Remaining(t0))
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Contains(t, err.Error(), "Cannot edit session")
			assert.Contains(t, err.Error(), string(status))
			assert.Equal(t, DefaultTiming(), s.Timing)
		})
	}
}

func TestUpdateTimingRejectsOutOfRange(t *testing.T) {
	s := newClassic(t, 4)
	err := s.UpdateTiming(TimingFromMinutes(25, 5, 15, 12))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, DefaultTiming(), s.Timing)
}

func TestPauseResumePreservesRemaining(t *testing.T) {
	focus := 25 * time.Minute
	offsets := []time.Duration{0, time.Second, 7*time.Minute + 300*time.Millisecond, focus - time.Nanosecond}
	pauses := []time.Duration{0, time.Millisecond, 3 * time.Minute, 26 * time.Hour}

	for _, d := range offsets {
		for _, p := range pauses {
			t.Run(fmt.Sprintf("d=%s/p=%s", d, p), func(t *testing.T) {
				s := newClassic(t, 4)
				require.NoError(t, s.Start(t0))

				require.NoError(t, s.Pause(t0.Add(d), nil))
				assert.Equal(t, StatusPaused, s.Status)
				assert.Nil(t, s.PhaseEndsAt)
				assert.Equal(t, focus-d, s.Remaining(t0.Add(d+p)))

				resumedAt := t0.Add(d + p)
				require.NoError(t, s.Resume(resumedAt))
				require.NotNil(t, s.PhaseEndsAt)
				assert.Equal(t, focus-d, s.PhaseEndsAt.Sub(resumedAt))
				assert.Equal(t, StatusInProgress, s.Status)
				assert.False(t, s.PhaseNotified)
			})
		}
	}
}

func TestPausePastBoundaryKeepsNotifiedFlag(t *testing.T) {
	s := newClassic(t, 4)
	require.NoError(t, s.Start(t0))
	s.PhaseNotified = true

	require.NoError(t, s.Pause(t0.Add(30*time.Minute), nil))
	assert.Equal(t, time.Duration(0), *s.PausedRemaining)

	resumedAt := t0.Add(40 * time.Minute)
	require.NoError(t, s.Resume(resumedAt))
	assert.Equal(t, resumedAt, *s.PhaseEndsAt)
	assert.True(t, s.PhaseNotified)
	assert.False(t, s.AwaitingNotification())
}

func TestPauseResumePreconditions(t *testing.T) {
	s := newClassic(t, 4)
	assert.EqualError(t, s.Pause(t0, nil), "Cannot pause session in state NOT_STARTED")
	assert.EqualError(t, s.Resume(t0), "Cannot resume session in state NOT_STARTED")

	require.NoError(t, s.Start(t0))
	assert.EqualError(t, s.Resume(t0), "Cannot resume session in state IN_PROGRESS")

	require.NoError(t, s.Pause(t0, strPtr("phone call")))
	assert.Equal(t, "phone call", s.Note)
	assert.EqualError(t, s.Pause(t0, nil), "Cannot pause session in state PAUSED")
	assert.EqualError(t, s.CompletePhase(t0, nil), "Cannot advance session in state PAUSED")
	assert.EqualError(t, s.Finish(t0, nil), "Cannot finish session in state PAUSED")
}

func TestClassicCycleCounting(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("total=%d", n), func(t *testing.T) {
			s := newClassic(t, n)
			now := t0
			require.NoError(t, s.Start(now))

			for round := 1; round <= n; round++ {
				now = now.Add(s.PhaseDuration)
				require.NoError(t, s.CompletePhase(now, nil))
				assert.Equal(t, PhaseBreak, s.CurrentPhase)
				assert.Equal(t, round-1, s.CyclesCompleted)

				now = now.Add(s.PhaseDuration)
				require.NoError(t, s.CompletePhase(now, nil))
				assert.Equal(t, round, s.CyclesCompleted)

				if round < n {
					assert.Equal(t, StatusInProgress, s.Status)
					assert.Equal(t, PhaseFocus, s.CurrentPhase)
					continue
				}
				assert.Equal(t, StatusCompleted, s.Status)
				require.NotNil(t, s.CompletedAt)
				assert.Equal(t, now, *s.CompletedAt)
				assert.Nil(t, s.PhaseEndsAt)
			}

			assert.ErrorIs(t, s.CompletePhase(now, nil), ErrInvalidTransition)
			assert.Equal(t, n, s.CyclesCompleted)
		})
	}
}

func TestLongBreakCadence(t *testing.T) {
	for k := 2; k <= 10; k++ {
		for completed := 0; completed <= 50; completed++ {
			timing := TimingFromMinutes(25, 5, 15, k)
			s, err := NewSession("s", "a", SessionTypeFreestyle, 0, timing, "", t0)
			require.NoError(t, err)
			require.NoError(t, s.Start(t0))
			s.CyclesCompleted = completed

			require.NoError(t, s.CompletePhase(t0.Add(time.Minute), nil))

			want := timing.Break
			if (completed+1)%k == 0 {
				want = timing.LongBreak
			}
			require.Equal(t, want, s.PhaseDuration, "k=%d completed=%d", k, completed)
			require.Equal(t, t0.Add(time.Minute).Add(want), *s.PhaseEndsAt)
			require.Equal(t, want == timing.LongBreak, s.IsLongBreak())
		}
	}
}

func TestExampleScenario(t *testing.T) {
	s, err := NewSession("s", "a", SessionTypeClassic, 8, TimingFromMinutes(25, 5, 15, 4), "", t0)
	require.NoError(t, err)

	require.NoError(t, s.Start(t0))
	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, PhaseFocus, s.CurrentPhase)
	assert.Equal(t, t0.Add(25*time.Minute), *s.PhaseEndsAt)

	now := t0.Add(25 * time.Minute)
	require.NoError(t, s.CompletePhase(now, nil))
	assert.Equal(t, PhaseBreak, s.CurrentPhase)
	assert.Equal(t, 5*time.Minute, s.PhaseDuration)

	now = t0.Add(30 * time.Minute)
	require.NoError(t, s.CompletePhase(now, nil))
	assert.Equal(t, 1, s.CyclesCompleted)
	assert.Equal(t, PhaseFocus, s.CurrentPhase)
	assert.Equal(t, now.Add(25*time.Minute), *s.PhaseEndsAt)

	for round := 0; round < 2; round++ {
		now = now.Add(25 * time.Minute)
		require.NoError(t, s.CompletePhase(now, nil))
		assert.Equal(t, 5*time.Minute, s.PhaseDuration)
		now = now.Add(5 * time.Minute)
		require.NoError(t, s.CompletePhase(now, nil))
	}
	require.Equal(t, 3, s.CyclesCompleted)

	now = now.Add(25 * time.Minute)
	require.NoError(t, s.CompletePhase(now, nil))
	assert.Equal(t, PhaseBreak, s.CurrentPhase)
	assert.Equal(t, 15*time.Minute, s.PhaseDuration)
	assert.True(t, s.IsLongBreak())
	assert.Equal(t, 100*time.Minute, s.FocusedTime)
}

func TestFinishFreestyle(t *testing.T) {
	t.Run("during break counts the round", func(t *testing.T) {
		s := newFreestyle(t)
		require.NoError(t, s.Start(t0))
		require.NoError(t, s.CompletePhase(t0.Add(25*time.Minute), nil))

		require.NoError(t, s.Finish(t0.Add(27*time.Minute), strPtr("done")))
		assert.Equal(t, StatusCompleted, s.Status)
		assert.Equal(t, 1, s.CyclesCompleted)
		assert.Equal(t, "done", s.Note)
		assert.Equal(t, t0.Add(27*time.Minute), *s.CompletedAt)
	})

	t.Run("during focus discards partial cycle", func(t *testing.T) {
		s := newFreestyle(t)
		require.NoError(t, s.Start(t0))
		require.NoError(t, s.CompletePhase(t0.Add(25*time.Minute), nil))
		require.NoError(t, s.CompletePhase(t0.Add(30*time.Minute), nil))

		require.NoError(t, s.Finish(t0.Add(40*time.Minute), nil))
		assert.Equal(t, 1, s.CyclesCompleted)
		assert.Equal(t, 25*time.Minute, s.FocusedTime)
		assert.Nil(t, s.PhaseEndsAt)
	})

	t.Run("classic during break does not count", func(t *testing.T) {
		s := newClassic(t, 4)
		require.NoError(t, s.Start(t0))
		require.NoError(t, s.CompletePhase(t0.Add(25*time.Minute), nil))
		require.NoError(t, s.Finish(t0.Add(26*time.Minute), nil))
		assert.Zero(t, s.CyclesCompleted)
	})
}

func TestStop(t *testing.T) {
	s := newClassic(t, 4)
	require.NoError(t, s.Start(t0))
	require.NoError(t, s.CompletePhase(t0.Add(25*time.Minute), nil))
	require.NoError(t, s.CompletePhase(t0.Add(30*time.Minute), nil))
	require.NoError(t, s.CompletePhase(t0.Add(55*time.Minute), nil))

	require.NoError(t, s.Stop(t0.Add(56*time.Minute), strPtr("interrupted")))
	assert.Equal(t, StatusNotStarted, s.Status)
	assert.Equal(t, 1, s.CyclesCompleted)
	assert.Equal(t, PhaseFocus, s.CurrentPhase)
	assert.Nil(t, s.StartedAt)
	assert.Nil(t, s.PhaseEndsAt)
	assert.Equal(t, "interrupted", s.Note)
	assert.Equal(t, 25*time.Minute, s.Remaining(t0))

	require.NoError(t, s.UpdateTiming(TimingFromMinutes(30, 5, 15, 4)))
	require.NoError(t, s.Start(t0.Add(time.Hour)))
	assert.Equal(t, t0.Add(90*time.Minute), *s.PhaseEndsAt)

	fresh := newClassic(t, 4)
	assert.EqualError(t, fresh.Stop(t0, nil), "Cannot stop session in state NOT_STARTED")
}

func TestCancel(t *testing.T) {
	s := newClassic(t, 4)
	require.NoError(t, s.Start(t0))
	require.NoError(t, s.Pause(t0.Add(time.Minute), nil))

	require.NoError(t, s.Cancel(t0.Add(2*time.Minute)))
	assert.Equal(t, StatusAbandoned, s.Status)
	assert.True(t, s.IsTerminal())
	assert.False(t, s.CountsTowardCompletion())
	assert.False(t, s.AwaitingNotification())

	assert.EqualError(t, s.Cancel(t0), "Cannot cancel session in state ABANDONED")
	assert.EqualError(t, s.Start(t0), "Cannot start session in state ABANDONED")
}

func TestSetNoteAnyStatus(t *testing.T) {
	s := newClassic(t, 4)
	s.SetNote("plan")
	require.NoError(t, s.Start(t0))
	require.NoError(t, s.Finish(t0.Add(time.Minute), nil))
	s.SetNote("retro")
	assert.Equal(t, "retro", s.Note)
}

func TestElapsedAndRemaining(t *testing.T) {
	s := newClassic(t, 4)
	require.NoError(t, s.Start(t0))

	now := t0.Add(10 * time.Minute)
	assert.Equal(t, 15*time.Minute, s.Remaining(now))
	assert.Equal(t, 10*time.Minute, s.Elapsed(now))

	assert.Equal(t, time.Duration(0), s.Remaining(t0.Add(time.Hour)))
	assert.Equal(t, 25*time.Minute, s.Elapsed(t0.Add(time.Hour)))
}

func TestTransitionErrorUnwrap(t *testing.T) {
	err := error(&TransitionError{Op: "edit", Status: StatusPaused})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "Cannot edit session in state PAUSED", err.Error())
}
