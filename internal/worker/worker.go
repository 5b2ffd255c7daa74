// Package worker is the agent that polls a control node for tasks, holds
// their leases while running them and reports the results.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/controlnode/internal/config"
	"github.com/me/controlnode/pkg/model"
)

// Scheduler is the part of the control node API a worker uses.
type Scheduler interface {
	GetTask(ctx context.Context, workerID string, types []model.TaskType) (*model.Offer, error)
	AcceptTask(ctx context.Context, workerID, sig string) (string, error)
	RejectTask(ctx context.Context, workerID, sig string) error
	TaskInProgress(ctx context.Context, workerID, sig string) (string, error)
	TaskFinished(ctx context.Context, workerID, sig string, stats *model.WorkerStatistics) error
	ReportProgress(ctx context.Context, project, job string, done int64) (*model.JobProgress, error)
	ReportStatistics(ctx context.Context, project, job string, t model.TaskType) (*model.JobProgress, error)
}

// ErrLeaseLost is returned when the control node stops recognising the
// worker's lease while the task runs, typically after a supervisor restart.
var ErrLeaseLost = errors.New("lease lost")

// defaultNotificationInterval is used when an offer carries no interval.
const defaultNotificationInterval = 10 * time.Second

// Worker is the core work loop that polls the control node for tasks,
// runs them and reports results back.
type Worker struct {
	id     string
	sched  Scheduler
	runner Runner
	types  []model.TaskType
	poll   time.Duration
	stats  func(ctx context.Context) *model.WorkerStatistics
	logger *slog.Logger
}

// Option configures optional Worker dependencies.
type Option func(*Worker)

// WithStatistics overrides how resource statistics are collected for taskFinished.
func WithStatistics(fn func(ctx context.Context) *model.WorkerStatistics) Option {
	return func(w *Worker) {
		w.stats = fn
	}
}

// New creates a Worker. It asks for the cfg.TaskTypes the runner supports; a
// worker id is generated when cfg.WorkerID is empty.
func New(sched Scheduler, runner Runner, cfg config.WorkerConfig, logger *slog.Logger, opts ...Option) (*Worker, error) {
	types := make([]model.TaskType, 0, len(cfg.TaskTypes))
	for _, name := range cfg.TaskTypes {
		t, err := model.ParseTaskType(name)
		if err != nil {
			return nil, fmt.Errorf("task types: %w", err)
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil, errors.New("task types: none configured")
	}
	if ts, ok := runner.(typeSupporter); ok {
		types = slices.DeleteFunc(types, func(t model.TaskType) bool { return !ts.Supports(t) })
		if len(types) == 0 {
			return nil, fmt.Errorf("task types: runner supports none of %v", cfg.TaskTypes)
		}
	}

	id := cfg.WorkerID
	if id == "" {
		id = uuid.NewString()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = config.DefaultWorkerConfig().PollInterval
	}

	w := &Worker{
		id:     id,
		sched:  sched,
		runner: runner,
		types:  types,
		poll:   poll,
		stats:  collectStatistics,
		logger: logger.With("component", "worker", "worker_id", id),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ID returns the worker id presented to the control node.
func (w *Worker) ID() string {
	return w.id
}

// Run polls for tasks until ctx is cancelled. After a task the next poll
// happens immediately; an idle or failed poll waits one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "task_types", w.types, "poll", w.poll.String())
	for {
		worked, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("poll error", "error", err)
		}
		if worked && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-time.After(w.poll):
		}
	}
}

// RunOnce asks for one task and, if there is one, runs it to completion.
// It reports whether a task was received.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	offer, err := w.sched.GetTask(ctx, w.id, w.types)
	if err != nil {
		return false, fmt.Errorf("get task: %w", err)
	}
	if offer == nil {
		w.logger.Debug("nothing to do")
		return false, nil
	}
	if !w.supports(offer.Task.Type) {
		// Not counted as work, so Run waits a poll interval before asking again.
		return false, w.reject(ctx, offer)
	}
	return true, w.execute(ctx, offer)
}

// typeSupporter is implemented by runners that handle only some task types.
type typeSupporter interface {
	Supports(model.TaskType) bool
}

func (w *Worker) supports(t model.TaskType) bool {
	ts, ok := w.runner.(typeSupporter)
	return !ok || ts.Supports(t)
}

// reject hands an offer the runner cannot perform back to the queue.
func (w *Worker) reject(ctx context.Context, offer *model.Offer) error {
	task := offer.Task
	w.logger.Warn("no command for task type, rejecting", "project", task.Project, "job", task.Job, "type", task.Type)
	if err := w.sched.RejectTask(ctx, w.id, offer.Signature()); err != nil {
		return fmt.Errorf("reject task: %w", err)
	}
	return nil
}

// execute accepts the offer, runs it under a renewed lease and finishes it.
func (w *Worker) execute(ctx context.Context, offer *model.Offer) error {
	task := offer.Task
	log := w.logger.With("project", task.Project, "job", task.Job, "type", task.Type)

	sig, err := w.sched.AcceptTask(ctx, w.id, offer.Signature())
	if err != nil {
		return fmt.Errorf("accept task: %w", err)
	}
	if task.Simulation != nil {
		log.Info("starting task", "start_step", task.Simulation.StartStep, "batch_length", task.Simulation.BatchLength)
	} else {
		log.Info("starting task")
	}

	interval := offer.NotificationInterval
	if interval <= 0 {
		interval = defaultNotificationInterval
	}
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	hb := newHeartbeat(w.sched, w.id, sig, log)
	hb.start(runCtx, interval, cancelRun)

	runErr := w.runner.Run(runCtx, offer)
	sig, lost := hb.stop()
	if lost {
		return fmt.Errorf("%s/%s %s: %w", task.Project, task.Job, task.Type, ErrLeaseLost)
	}

	// Shutdown kills the command but the lease is still released.
	finishCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if runErr != nil {
		log.Error("task failed", "error", runErr)
	} else if err := w.report(finishCtx, task); err != nil {
		log.Error("report progress", "error", err)
	}

	if err := w.finish(finishCtx, sig); err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	log.Info("task finished", "ok", runErr == nil)
	return nil
}

// report records the task's result in the job store so the follow-up
// resolution sees it.
func (w *Worker) report(ctx context.Context, task *model.Task) error {
	if task.Type == model.TaskTypeSimulation {
		done := task.Simulation.StartStep + task.Simulation.BatchLength
		_, err := w.sched.ReportProgress(ctx, task.Project, task.Job, done)
		return err
	}
	_, err := w.sched.ReportStatistics(ctx, task.Project, task.Job, task.Type)
	return err
}

// finish sends taskFinished, retrying transport failures every poll
// interval. A scheduler error is final.
func (w *Worker) finish(ctx context.Context, sig string) error {
	stats := w.stats(ctx)
	for {
		err := w.sched.TaskFinished(ctx, w.id, sig, stats)
		var se *model.SchedulerError
		if err == nil || errors.As(err, &se) {
			return err
		}
		w.logger.Warn("taskFinished failed, retrying", "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(w.poll):
		}
	}
}

// heartbeat renews a running lease until stopped. It owns the current
// signature while running.
type heartbeat struct {
	sched    Scheduler
	workerID string
	logger   *slog.Logger

	mu   sync.Mutex
	sig  string
	lost bool

	quit chan struct{}
	wg   sync.WaitGroup
}

func newHeartbeat(sched Scheduler, workerID, sig string, logger *slog.Logger) *heartbeat {
	return &heartbeat{
		sched:    sched,
		workerID: workerID,
		sig:      sig,
		logger:   logger,
		quit:     make(chan struct{}),
	}
}

// start renews the lease every interval. When the control node rejects the
// lease, onLost is called and renewal stops.
func (h *heartbeat) start(ctx context.Context, interval time.Duration, onLost func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !h.renew(ctx) {
					onLost()
					return
				}
			}
		}
	}()
}

// renew sends one taskInProgress. It returns false if the lease is gone.
func (h *heartbeat) renew(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Debug("renewing lease")
	sig, err := h.sched.TaskInProgress(ctx, h.workerID, h.sig)
	var se *model.SchedulerError
	switch {
	case err == nil:
		h.sig = sig
		return true
	case errors.As(err, &se):
		h.logger.Warn("lease rejected by control node", "error", err)
		h.lost = true
		return false
	default:
		// Keep working; the next renewal may get through.
		h.logger.Warn("lease renewal failed", "error", err)
		return true
	}
}

// stop ends renewal and returns the latest signature and whether the lease was lost.
func (h *heartbeat) stop() (string, bool) {
	close(h.quit)
	h.wg.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sig, h.lost
}
