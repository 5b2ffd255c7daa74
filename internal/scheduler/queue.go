package scheduler

import (
	"context"
	"slices"

	"github.com/me/controlnode/pkg/model"
)

// RequestTask hands the first waiting task whose type is in types to workerID.
// It returns (nil, nil) when nothing matches; that is the normal idle outcome
// for a polling worker, not an error.
func (s *Scheduler) RequestTask(ctx context.Context, workerID string, types []model.TaskType) (*model.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holdsTask(workerID) {
		return nil, model.ErrWorkerHasTask
	}

	idx := slices.IndexFunc(s.waiting, func(t *model.Task) bool {
		return slices.Contains(types, t.Type)
	})
	if idx < 0 {
		return nil, nil
	}

	task := s.waiting[idx]
	s.waiting = slices.Delete(s.waiting, idx, idx+1)
	s.grantLease(task, workerID)
	s.move(task, model.TaskStateQueued, model.TaskStateOffered)

	s.recorder.Transition("offer", task.Type)
	s.reportSizes()
	s.logger.Debug("task offered",
		"worker_id", workerID,
		"project", task.Project,
		"job", task.Job,
		"type", task.Type,
	)

	return &model.Offer{
		Task:                 task.Clone(),
		Databases:            slices.Clone(s.config.Databases),
		NotificationInterval: s.config.NotificationInterval,
	}, nil
}

// AcceptTask moves workerID's offered task to running and returns the rotated signature.
func (s *Scheduler) AcceptTask(ctx context.Context, workerID, sig string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := leaseHolder(s.offered, workerID, sig)
	if err != nil {
		return "", err
	}

	delete(s.offered, workerID)
	newSig := s.rotateLease(task)
	s.move(task, model.TaskStateOffered, model.TaskStateRunning)

	s.recorder.Transition("accept", task.Type)
	s.reportSizes()
	s.logger.Debug("task accepted", "worker_id", workerID, "project", task.Project, "job", task.Job, "type", task.Type)
	return newSig, nil
}

// RejectTask returns workerID's offered task to the tail of the waiting queue.
func (s *Scheduler) RejectTask(ctx context.Context, workerID, sig string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := leaseHolder(s.offered, workerID, sig)
	if err != nil {
		return err
	}

	delete(s.offered, workerID)
	s.move(task, model.TaskStateOffered, model.TaskStateQueued)

	s.recorder.Transition("reject", task.Type)
	s.reportSizes()
	s.logger.Info("task rejected", "worker_id", workerID, "project", task.Project, "job", task.Job, "type", task.Type)
	return nil
}

// TaskInProgress renews workerID's running lease and returns the rotated signature.
func (s *Scheduler) TaskInProgress(ctx context.Context, workerID, sig string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := leaseHolder(s.running, workerID, sig)
	if err != nil {
		return "", err
	}

	newSig := s.rotateLease(task)
	s.recorder.Transition("renew", task.Type)
	return newSig, nil
}

// TaskFinished removes workerID's running task. When a simulation batch
// finishes, the resolver is re-run for the job in the background so the
// pipeline advances without external polling.
func (s *Scheduler) TaskFinished(ctx context.Context, workerID, sig string) error {
	s.mu.Lock()
	task, err := leaseHolder(s.running, workerID, sig)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.running, workerID)
	s.recorder.Transition("finish", task.Type)
	s.reportSizes()
	s.mu.Unlock()

	s.logger.Info("task finished", "worker_id", workerID, "project", task.Project, "job", task.Job, "type", task.Type)

	if task.Type == model.TaskTypeSimulation {
		s.followUp(task.Project, task.Job)
	}
	return nil
}

// followUp runs Enqueue for the job asynchronously. Failures are not
// observable by the taskFinished caller and are only logged.
func (s *Scheduler) followUp(project, job string) {
	s.followUps.Add(1)
	go func() {
		defer s.followUps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.config.FollowUpTimeout)
		defer cancel()

		if err := s.Enqueue(ctx, project, job); err != nil {
			s.logger.Warn("follow-up enqueue", "project", project, "job", job, "error", err)
			return
		}
		s.logger.Debug("follow-up enqueue", "project", project, "job", job)
	}()
}

// holdsTask reports whether workerID has an offered or running task. Caller holds mu.
func (s *Scheduler) holdsTask(workerID string) bool {
	_, offered := s.offered[workerID]
	_, running := s.running[workerID]
	return offered || running
}

// leaseHolder validates a lease transition against one container.
func leaseHolder(container map[string]*model.Task, workerID, sig string) (*model.Task, error) {
	task, ok := container[workerID]
	if !ok {
		return nil, model.ErrInvalidWorkerID
	}
	if task.Lease == nil || task.Lease.Signature != sig {
		return nil, model.ErrInvalidSignature
	}
	return task, nil
}
