package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lalalland/topcoder-x-processor/internal/challenge"
)

// CancelScheduler owns the deferred challenge cancellations the closed-issue
// path arms. Each scheduled cancellation is held as a handle so it can be
// revoked (e.g. when the issue is reopened and closed again properly) and so
// shutdown can drain the timers instead of leaking them.
type CancelScheduler struct {
	platform challenge.Client
	delay    time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCancelScheduler(platform challenge.Client, delay time.Duration) *CancelScheduler {
	return &CancelScheduler{
		platform: platform,
		delay:    delay,
		timers:   make(map[string]*time.Timer),
	}
}

// ScheduleCancel arms a delayed cancellation for the challenge. Re-arming an
// already scheduled challenge resets the timer.
func (s *CancelScheduler) ScheduleCancel(challengeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[challengeID]; ok {
		t.Stop()
	}
	s.timers[challengeID] = time.AfterFunc(s.delay, func() {
		s.fire(challengeID)
	})

	slog.Info("scheduled challenge cancellation",
		slog.String("challenge_id", challengeID),
		slog.Duration("delay", s.delay))
}

// Revoke stops a pending cancellation. Returns false when nothing was armed.
func (s *CancelScheduler) Revoke(challengeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[challengeID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, challengeID)
	return true
}

// Stop drops every pending cancellation without firing it.
func (s *CancelScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *CancelScheduler) fire(challengeID string) {
	s.mu.Lock()
	delete(s.timers, challengeID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.platform.CancelChallenge(ctx, challengeID); err != nil {
		slog.Error("cancelling challenge failed",
			slog.String("challenge_id", challengeID),
			slog.Any("error", err))
		return
	}
	slog.Info("challenge cancelled", slog.String("challenge_id", challengeID))
}
