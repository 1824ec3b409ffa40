package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pomodoro/sessions/internal/clock"
	"pomodoro/sessions/internal/model"
	"pomodoro/sessions/internal/repository"
)

type NotificationStore interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledNotification, error)
	MarkSent(ctx context.Context, n *model.ScheduledNotification, now time.Time) (bool, error)
	MarkUndeliverable(ctx context.Context, n *model.ScheduledNotification, now time.Time) (bool, error)
	RecordFailure(ctx context.Context, id string, reason string, now time.Time) (int, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type SessionStore interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.PomodoroSession, error)
	MarkPhaseNotified(ctx context.Context, sessionID string, phaseEndsAt time.Time, now time.Time) (bool, error)
}

type Config struct {
	Interval        time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
	MaxAttempts     int
	SendTimeout     time.Duration
	BatchSize       int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 24 * time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// DispatchStats summarizes one dispatch tick.
type DispatchStats struct {
	Sent          int
	Failed        int
	Undeliverable int
}

// Poller drains due notifications on a fixed interval. Scheduled rows are delivered
// first; sessions whose boundary passed with no pending row are picked up by the
// overdue path. Both paths flag the boundary as notified so each boundary is pushed
// at most once.
type Poller struct {
	notifications NotificationStore
	sessions      SessionStore
	sender        Sender
	clock         clock.Clock
	cfg           Config
	metrics       *Metrics
}

func NewPoller(notifications NotificationStore, sessions SessionStore, sender Sender, clk clock.Clock, cfg Config, metrics *Metrics) *Poller {
	return &Poller{
		notifications: notifications,
		sessions:      sessions,
		sender:        sender,
		clock:         clk,
		cfg:           cfg.withDefaults(),
		metrics:       metrics,
	}
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	dispatch := time.NewTicker(p.cfg.Interval)
	defer dispatch.Stop()
	cleanup := time.NewTicker(p.cfg.CleanupInterval)
	defer cleanup.Stop()

	log.Info().
		Dur("interval", p.cfg.Interval).
		Dur("cleanupInterval", p.cfg.CleanupInterval).
		Int("maxAttempts", p.cfg.MaxAttempts).
		Msg("notification poller started")

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("notification poller stopped")
			return nil
		case <-dispatch.C:
			p.tick(ctx)
		case <-cleanup.C:
			if _, err := p.PurgeOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("purge notifications")
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	stats, err := p.DispatchOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("dispatch notifications")
		}
		return
	}
	if stats.Sent+stats.Failed+stats.Undeliverable > 0 {
		log.Debug().
			Int("sent", stats.Sent).
			Int("failed", stats.Failed).
			Int("undeliverable", stats.Undeliverable).
			Msg("dispatch tick")
	}
}

// DispatchOnce runs a single dispatch pass. A failing item never stops the batch;
// only a failed query is returned as an error.
func (p *Poller) DispatchOnce(ctx context.Context) (DispatchStats, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "notify.dispatch")
	defer span.End()

	var stats DispatchStats
	now := p.clock.Now()

	due, err := p.notifications.FindDue(ctx, now, p.cfg.BatchSize)
	if err != nil {
		span.SetStatus(codes.Error, "find due")
		return stats, fmt.Errorf("find due notifications: %w", err)
	}
	for i := range due {
		p.deliverScheduled(ctx, &due[i], &stats)
	}

	overdue, err := p.sessions.ListOverdue(ctx, p.clock.Now(), p.cfg.BatchSize)
	if err != nil {
		span.SetStatus(codes.Error, "list overdue")
		return stats, fmt.Errorf("list overdue sessions: %w", err)
	}
	for i := range overdue {
		p.deliverOverdue(ctx, &overdue[i], &stats)
	}

	span.SetAttributes(
		attribute.Int("notify.due", len(due)),
		attribute.Int("notify.overdue", len(overdue)),
		attribute.Int("notify.sent", stats.Sent),
	)
	return stats, nil
}

func (p *Poller) deliverScheduled(ctx context.Context, n *model.ScheduledNotification, stats *DispatchStats) {
	logger := log.With().Str("notificationId", n.ID).Str("sessionId", n.SessionID).Logger()

	sendErr := p.send(ctx, n.UserID, n.Title, n.Body)
	if sendErr == nil {
		stats.Sent++
		p.metrics.recordSent(ctx, pathScheduled)
		marked, err := p.notifications.MarkSent(ctx, n, p.clock.Now())
		if err != nil {
			logger.Error().Err(err).Msg("mark notification sent")
			return
		}
		if !marked {
			logger.Debug().Msg("notification closed before it could be marked sent")
		}
		return
	}

	permanent := IsPermanent(sendErr)
	stats.Failed++
	p.metrics.recordFailed(ctx, pathScheduled, permanent)

	attempts, err := p.notifications.RecordFailure(ctx, n.ID, sendErr.Error(), p.clock.Now())
	if errors.Is(err, repository.ErrNotFound) {
		logger.Debug().Msg("notification closed during delivery")
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("record notification failure")
		return
	}

	logger.Warn().Err(sendErr).Bool("permanent", permanent).Int("attempts", attempts).Msg("notification delivery failed")
	if !permanent || attempts < p.cfg.MaxAttempts {
		return
	}

	n.Attempts = attempts
	if _, err := p.notifications.MarkUndeliverable(ctx, n, p.clock.Now()); err != nil {
		logger.Error().Err(err).Msg("mark notification undeliverable")
		return
	}
	stats.Undeliverable++
	p.metrics.recordUndeliverable(ctx, pathScheduled)
	logger.Warn().Int("attempts", attempts).Msg("notification given up")
}

func (p *Poller) deliverOverdue(ctx context.Context, s *model.PomodoroSession, stats *DispatchStats) {
	if s.PhaseEndsAt == nil {
		return
	}
	logger := log.With().Str("sessionId", s.ID).Time("phaseEndsAt", *s.PhaseEndsAt).Logger()

	msg := s.PhaseMessage()
	sendErr := p.send(ctx, s.UserID, msg.Title, msg.Body)
	switch {
	case sendErr == nil:
		stats.Sent++
		p.metrics.recordSent(ctx, pathOverdue)
	case IsPermanent(sendErr):
		stats.Failed++
		stats.Undeliverable++
		p.metrics.recordFailed(ctx, pathOverdue, true)
		p.metrics.recordUndeliverable(ctx, pathOverdue)
		logger.Warn().Err(sendErr).Msg("overdue notification undeliverable")
	default:
		stats.Failed++
		p.metrics.recordFailed(ctx, pathOverdue, false)
		logger.Warn().Err(sendErr).Msg("overdue notification failed, retrying next tick")
		return
	}

	if _, err := p.sessions.MarkPhaseNotified(ctx, s.ID, *s.PhaseEndsAt, p.clock.Now()); err != nil {
		logger.Error().Err(err).Msg("mark phase notified")
	}
}

func (p *Poller) send(ctx context.Context, userID, title, body string) (err error) {
	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = Transient(fmt.Errorf("sender panic: %v", r))
		}
	}()
	return p.sender.Send(sendCtx, userID, title, body)
}

// PurgeOnce removes sent and cancelled rows older than the retention window.
func (p *Poller) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.cfg.Retention)
	purged, err := p.notifications.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	if purged > 0 {
		p.metrics.recordPurged(ctx, purged)
		log.Info().Int64("purged", purged).Time("cutoff", cutoff).Msg("purged closed notifications")
	}
	return purged, nil
}
