// Package supervisor restarts tasks whose workers stopped renewing their leases.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/controlnode/internal/config"
	"github.com/me/controlnode/pkg/model"
)

// Scheduler is the part of the control node API the supervisor needs.
type Scheduler interface {
	CurrentTasks(ctx context.Context) ([]model.LeaseRef, error)
	RestartTasks(ctx context.Context, refs []model.LeaseRef) (int, error)
}

// Supervisor periodically checks outstanding leases and restarts stale ones.
type Supervisor struct {
	sched         Scheduler
	checkInterval time.Duration
	restartAfter  time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures optional Supervisor dependencies.
type Option func(*Supervisor)

// WithClock overrides the time source used to compute the staleness deadline.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// New creates a Supervisor.
func New(sched Scheduler, cfg config.SupervisorConfig, logger *slog.Logger, opts ...Option) *Supervisor {
	def := config.DefaultSupervisorConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.RestartAfter <= 0 {
		cfg.RestartAfter = def.RestartAfter
	}
	s := &Supervisor{
		sched:         sched,
		checkInterval: cfg.CheckInterval,
		restartAfter:  cfg.RestartAfter,
		logger:        logger.With("component", "supervisor"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run checks leases every check interval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started",
		"check_interval", s.checkInterval.String(),
		"restart_after", s.restartAfter.String(),
	)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Check(ctx); err != nil {
				s.logger.Error("lease check failed", "error", err)
			}
		}
	}
}

// Check restarts every lease not renewed within the restart threshold and
// returns how many the control node restarted.
func (s *Supervisor) Check(ctx context.Context) (int, error) {
	s.logger.Debug("checking for stale leases")

	refs, err := s.sched.CurrentTasks(ctx)
	if err != nil {
		return 0, err
	}

	stale := Stale(refs, s.now().Add(-s.restartAfter))
	if len(stale) == 0 {
		return 0, nil
	}

	restarted, err := s.sched.RestartTasks(ctx, stale)
	if err != nil {
		return 0, err
	}
	if restarted == len(stale) {
		s.logger.Info("stale tasks restarted", "count", restarted)
	} else {
		// The worker finished or another caller restarted it between the two calls.
		s.logger.Warn("not all stale tasks restarted", "stale", len(stale), "restarted", restarted)
	}
	return restarted, nil
}

// Stale returns the leases last renewed before deadline. Leases without a
// timestamp are never considered stale.
func Stale(refs []model.LeaseRef, deadline time.Time) []model.LeaseRef {
	var out []model.LeaseRef
	for _, ref := range refs {
		if ref.LastUpdate.IsZero() {
			continue
		}
		if ref.LastUpdate.Before(deadline) {
			out = append(out, model.LeaseRef{WorkerID: ref.WorkerID, Signature: ref.Signature})
		}
	}
	return out
}
