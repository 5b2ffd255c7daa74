package server

import (
	"context"
	"fmt"

	"github.com/me/controlnode/pkg/model"
)

func (s *Server) rpcMethods() map[string]rpcMethod {
	return map[string]rpcMethod{
		"hello":           s.rpcHello,
		"addTask":         s.rpcAddTask,
		"abortTask":       s.rpcAbortTask,
		"getTask":         s.rpcGetTask,
		"acceptTask":      s.rpcAcceptTask,
		"rejectTask":      s.rpcRejectTask,
		"taskInProgress":  s.rpcTaskInProgress,
		"taskFinished":    s.rpcTaskFinished,
		"getCurrentTasks": s.rpcGetCurrentTasks,
		"restartTasks":    s.rpcRestartTasks,

		// Job store access for workers and operators.
		"createJob":        s.rpcCreateJob,
		"jobStatus":        s.rpcJobStatus,
		"listJobs":         s.rpcListJobs,
		"reportProgress":   s.rpcReportProgress,
		"reportStatistics": s.rpcReportStatistics,
	}
}

const success = "success"

func (s *Server) rpcHello(ctx context.Context, p params) (any, error) {
	return fmt.Sprintf("Hello! I am controlnode %s", model.Version), nil
}

// jobArgs decodes the (projectName, jobName) pair at positions 0 and 1.
func jobArgs(p params) (string, string, error) {
	project, err := p.str(0, "projectName")
	if err != nil {
		return "", "", err
	}
	job, err := p.str(1, "jobName")
	if err != nil {
		return "", "", err
	}
	return project, job, nil
}

// leaseArgs decodes the (workerId, sig) pair at positions 0 and 1.
func leaseArgs(p params) (string, string, error) {
	workerID, err := p.str(0, "workerId")
	if err != nil {
		return "", "", err
	}
	sig, err := p.str(1, "sig")
	if err != nil {
		return "", "", err
	}
	return workerID, sig, nil
}

// rpcAddTask queues the next work for a job. The optional taskTypes list is
// validated but the job's progress alone decides what gets queued.
func (s *Server) rpcAddTask(ctx context.Context, p params) (any, error) {
	project, job, err := jobArgs(p)
	if err != nil {
		return nil, err
	}
	if _, err := p.taskTypes(2); err != nil {
		return nil, err
	}
	if err := s.scheduler.Enqueue(ctx, project, job); err != nil {
		return nil, err
	}
	return success, nil
}

func (s *Server) rpcAbortTask(ctx context.Context, p params) (any, error) {
	project, job, err := jobArgs(p)
	if err != nil {
		return nil, err
	}
	return s.scheduler.Abort(ctx, project, job), nil
}

func (s *Server) rpcGetTask(ctx context.Context, p params) (any, error) {
	workerID, err := p.str(0, "workerId")
	if err != nil {
		return nil, err
	}
	types, err := p.taskTypes(1)
	if err != nil {
		return nil, err
	}
	offer, err := s.scheduler.RequestTask(ctx, workerID, types)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return &model.Offer{}, nil
	}
	return offer, nil
}

func (s *Server) rpcAcceptTask(ctx context.Context, p params) (any, error) {
	workerID, sig, err := leaseArgs(p)
	if err != nil {
		return nil, err
	}
	next, err := s.scheduler.AcceptTask(ctx, workerID, sig)
	if err != nil {
		return nil, err
	}
	return model.SignatureResult{Signature: next}, nil
}

func (s *Server) rpcRejectTask(ctx context.Context, p params) (any, error) {
	workerID, sig, err := leaseArgs(p)
	if err != nil {
		return nil, err
	}
	if err := s.scheduler.RejectTask(ctx, workerID, sig); err != nil {
		return nil, err
	}
	return success, nil
}

func (s *Server) rpcTaskInProgress(ctx context.Context, p params) (any, error) {
	workerID, sig, err := leaseArgs(p)
	if err != nil {
		return nil, err
	}
	next, err := s.scheduler.TaskInProgress(ctx, workerID, sig)
	if err != nil {
		return nil, err
	}
	return model.SignatureResult{Signature: next}, nil
}

// rpcTaskFinished accepts an optional third argument with the worker's
// resource statistics, which is logged.
func (s *Server) rpcTaskFinished(ctx context.Context, p params) (any, error) {
	workerID, sig, err := leaseArgs(p)
	if err != nil {
		return nil, err
	}
	var stats model.WorkerStatistics
	hasStats, err := p.object(2, "statistics", true, &stats)
	if err != nil {
		return nil, err
	}
	if err := s.scheduler.TaskFinished(ctx, workerID, sig); err != nil {
		return nil, err
	}
	if hasStats {
		s.logger.Info("worker statistics",
			"worker_id", workerID,
			"host", stats.HostName,
			"version", stats.Version,
			"memory_used", stats.MemoryUsed,
			"memory_total", stats.MemoryTotal,
		)
	}
	return success, nil
}

func (s *Server) rpcGetCurrentTasks(ctx context.Context, p params) (any, error) {
	return s.scheduler.Outstanding(ctx), nil
}

func (s *Server) rpcRestartTasks(ctx context.Context, p params) (any, error) {
	refs, err := p.leaseRefs(0)
	if err != nil {
		return nil, err
	}
	return model.RestartResult{Restarted: s.scheduler.Restart(ctx, refs)}, nil
}

func (s *Server) rpcCreateJob(ctx context.Context, p params) (any, error) {
	project, job, err := jobArgs(p)
	if err != nil {
		return nil, err
	}
	var sim model.SimulationParams
	if _, err := p.object(2, "params", false, &sim); err != nil {
		return nil, err
	}
	if sim.StepDuration <= 0 || sim.Duration < 0 || sim.BatchLength <= 0 {
		return nil, model.NewInvalidArgumentError("params")
	}
	progress, err := s.store.CreateJob(ctx, project, job, sim)
	if err != nil {
		return nil, storageError(err)
	}
	s.logger.Info("job created", "project", project, "job", job, "total_steps", progress.TotalSteps, "batches", progress.Batches)
	return progress, nil
}

func (s *Server) rpcJobStatus(ctx context.Context, p params) (any, error) {
	project, job, err := jobArgs(p)
	if err != nil {
		return nil, err
	}
	progress, err := s.store.JobProgress(ctx, project, job)
	if err != nil {
		return nil, storageError(err)
	}
	if progress == nil {
		return nil, model.ErrJobNotFound
	}
	return progress, nil
}

func (s *Server) rpcListJobs(ctx context.Context, p params) (any, error) {
	list, err := s.store.ListProgress(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	if list == nil {
		list = []*model.JobProgress{}
	}
	return list, nil
}

func (s *Server) rpcReportProgress(ctx context.Context, p params) (any, error) {
	project, job, err := jobArgs(p)
	if err != nil {
		return nil, err
	}
	done, err := p.integer(2, "done")
	if err != nil {
		return nil, err
	}
	progress, err := s.store.RecordProgress(ctx, project, job, done)
	if err != nil {
		return nil, storageError(err)
	}
	return progress, nil
}

func (s *Server) rpcReportStatistics(ctx context.Context, p params) (any, error) {
	project, job, err := jobArgs(p)
	if err != nil {
		return nil, err
	}
	name, err := p.str(2, "taskType")
	if err != nil {
		return nil, err
	}
	t, err := model.ParseTaskType(name)
	if err != nil || !t.IsStatistics() {
		return nil, model.NewUnknownTaskTypeError(name, "taskType")
	}
	progress, err := s.store.RecordStatistic(ctx, project, job, t)
	if err != nil {
		return nil, storageError(err)
	}
	return progress, nil
}
