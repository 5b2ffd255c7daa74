package scheduler

import (
	"context"
	"slices"
	"strings"

	"github.com/me/controlnode/pkg/model"
)

// Abort removes every task of (project, job) from all three containers,
// whichever worker holds it, and returns how many were removed.
func (s *Scheduler) Abort(ctx context.Context, project, job string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.waiting[:0]
	for _, t := range s.waiting {
		if t.BelongsTo(project, job) {
			s.recorder.Transition("abort", t.Type)
			removed++
			continue
		}
		kept = append(kept, t)
	}
	clear(s.waiting[len(kept):])
	s.waiting = kept

	for _, container := range []map[string]*model.Task{s.offered, s.running} {
		for wid, t := range container {
			if t.BelongsTo(project, job) {
				delete(container, wid)
				s.recorder.Transition("abort", t.Type)
				removed++
			}
		}
	}

	if removed > 0 {
		s.reportSizes()
		s.logger.Info("tasks aborted", "project", project, "job", job, "count", removed)
	}
	return removed
}

// Outstanding lists one LeaseRef per offered or running task, sorted by worker id.
func (s *Scheduler) Outstanding(ctx context.Context) []model.LeaseRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaseRefs()
}

// Restart moves the tasks of the listed workers back to the waiting queue,
// checking running before offered, and returns how many were moved. Unknown
// worker ids are skipped.
//
// The signature in each ref is not compared with the current lease: this is
// an administrative override used by the lease monitor.
func (s *Scheduler) Restart(ctx context.Context, refs []model.LeaseRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restarted := 0
	for _, ref := range refs {
		var task *model.Task
		var from model.TaskState
		if t, ok := s.running[ref.WorkerID]; ok {
			delete(s.running, ref.WorkerID)
			task, from = t, model.TaskStateRunning
		} else if t, ok := s.offered[ref.WorkerID]; ok {
			delete(s.offered, ref.WorkerID)
			task, from = t, model.TaskStateOffered
		} else {
			continue
		}
		if task.Lease != nil && task.Lease.Signature != ref.Signature {
			s.logger.Warn("restarting lease with stale signature", "worker_id", ref.WorkerID)
		}
		s.move(task, from, model.TaskStateQueued)
		s.recorder.Transition("restart", task.Type)
		restarted++
		s.logger.Info("task restarted", "worker_id", ref.WorkerID, "project", task.Project, "job", task.Job, "type", task.Type)
	}

	if restarted > 0 {
		s.reportSizes()
	}
	return restarted
}

// Snapshot returns container sizes, the waiting queue and the outstanding leases.
func (s *Scheduler) Snapshot(ctx context.Context) model.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := make([]*model.Task, len(s.waiting))
	for i, t := range s.waiting {
		queue[i] = t.Clone()
	}
	return model.SchedulerStatus{
		Waiting: len(s.waiting),
		Offered: len(s.offered),
		Running: len(s.running),
		Queue:   queue,
		Leases:  s.leaseRefs(),
	}
}

// leaseRefs builds the sorted lease list. Caller holds mu.
func (s *Scheduler) leaseRefs() []model.LeaseRef {
	refs := make([]model.LeaseRef, 0, len(s.offered)+len(s.running))
	for _, container := range []map[string]*model.Task{s.offered, s.running} {
		for wid, t := range container {
			refs = append(refs, model.LeaseRef{
				WorkerID:   wid,
				Signature:  t.Lease.Signature,
				LastUpdate: t.Lease.LastUpdate,
			})
		}
	}
	slices.SortFunc(refs, func(a, b model.LeaseRef) int {
		return strings.Compare(a.WorkerID, b.WorkerID)
	})
	return refs
}
