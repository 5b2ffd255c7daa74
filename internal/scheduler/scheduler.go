package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/controlnode/pkg/model"
)

// ProgressSource reads job progress from the external job store.
// It returns (nil, nil) or an error matching ErrJobNotFound when the job does not exist.
type ProgressSource interface {
	JobProgress(ctx context.Context, project, job string) (*model.JobProgress, error)
}

// Recorder receives scheduler events for metrics. All methods are called
// with the scheduler lock held and must not call back into the Scheduler.
type Recorder interface {
	Transition(op string, t model.TaskType)
	QueueSizes(waiting, offered, running int)
}

type nopRecorder struct{}

func (nopRecorder) Transition(string, model.TaskType) {}
func (nopRecorder) QueueSizes(int, int, int)          {}

// Config holds scheduler configuration.
type Config struct {
	// Databases is handed to workers with every offer so they can reach the job store.
	Databases []model.DatabaseLocation
	// NotificationInterval tells workers how often to renew a running lease.
	NotificationInterval time.Duration
	// FollowUpTimeout bounds the resolver call scheduled after a simulation finishes.
	FollowUpTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		NotificationInterval: 10 * time.Second,
		FollowUpTimeout:      30 * time.Second,
	}
}

// Scheduler is the in-memory task queue and lease state machine.
//
// A task lives in exactly one of three containers: waiting (queued, no lease),
// offered (handed to a worker, not yet accepted) or running. All container
// access goes through mu, so every operation is indivisible.
type Scheduler struct {
	source   ProgressSource
	config   Config
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	newSig   func() string

	mu      sync.Mutex
	waiting []*model.Task
	offered map[string]*model.Task
	running map[string]*model.Task

	followUps sync.WaitGroup
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithClock overrides the time source used for lease timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithSignatureFunc overrides the lease signature generator.
func WithSignatureFunc(fn func() string) Option {
	return func(s *Scheduler) {
		s.newSig = fn
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// New creates an empty Scheduler reading job progress from src.
func New(src ProgressSource, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.FollowUpTimeout <= 0 {
		cfg.FollowUpTimeout = DefaultConfig().FollowUpTimeout
	}
	s := &Scheduler{
		source:   src,
		config:   cfg,
		logger:   logger.With("component", "scheduler"),
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
		newSig:   uuid.NewString,
		offered:  make(map[string]*model.Task),
		running:  make(map[string]*model.Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until every asynchronous follow-up resolution has returned.
func (s *Scheduler) Wait() {
	s.followUps.Wait()
}

// grantLease attaches a fresh lease for workerID. Caller holds mu.
func (s *Scheduler) grantLease(t *model.Task, workerID string) {
	t.Lease = &model.Lease{
		Signature:  s.newSig(),
		LastUpdate: s.now(),
		WorkerID:   workerID,
	}
}

// rotateLease renews the lease timestamp and issues a new signature. Caller holds mu.
func (s *Scheduler) rotateLease(t *model.Task) string {
	t.Lease.LastUpdate = s.now()
	t.Lease.Signature = s.newSig()
	return t.Lease.Signature
}

// move places t, already removed from its from container, into the to
// container. Entering the queue strips the lease and appends t to the tail.
// An illegal move or a lease that does not match the target container is a
// scheduler bug and panics. Caller holds mu.
func (s *Scheduler) move(t *model.Task, from, to model.TaskState) {
	if !from.CanTransitionTo(to) {
		panic(fmt.Sprintf("scheduler: invalid task transition %s -> %s", from, to))
	}
	if to == model.TaskStateQueued {
		t.Lease = nil
	}
	if to.HasLease() != (t.Lease != nil) {
		panic(fmt.Sprintf("scheduler: task entering %s with lease %v", to, t.Lease))
	}
	switch to {
	case model.TaskStateQueued:
		s.waiting = append(s.waiting, t)
	case model.TaskStateOffered:
		s.offered[t.Lease.WorkerID] = t
	case model.TaskStateRunning:
		s.running[t.Lease.WorkerID] = t
	}
}

// reportSizes publishes container sizes. Caller holds mu.
func (s *Scheduler) reportSizes() {
	s.recorder.QueueSizes(len(s.waiting), len(s.offered), len(s.running))
}
