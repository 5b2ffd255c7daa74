package rpcclient

import (
	"context"

	"github.com/me/controlnode/pkg/model"
)

// Hello returns the control node's greeting.
func (c *Client) Hello(ctx context.Context) (string, error) {
	var msg string
	err := c.Call(ctx, "hello", &msg)
	return msg, err
}

// AddTask asks the control node to queue the next work for a job.
func (c *Client) AddTask(ctx context.Context, project, job string, types ...model.TaskType) error {
	args := []any{project, job}
	if len(types) > 0 {
		args = append(args, types)
	}
	return c.Call(ctx, "addTask", nil, args...)
}

// AbortTask drops every task of a job and returns how many were removed.
func (c *Client) AbortTask(ctx context.Context, project, job string) (int, error) {
	var n int
	err := c.Call(ctx, "abortTask", &n, project, job)
	return n, err
}

// GetTask polls for work. It returns (nil, nil) when nothing matches types.
func (c *Client) GetTask(ctx context.Context, workerID string, types []model.TaskType) (*model.Offer, error) {
	if types == nil {
		types = []model.TaskType{}
	}
	var offer model.Offer
	if err := c.Call(ctx, "getTask", &offer, workerID, types); err != nil {
		return nil, err
	}
	if offer.Task == nil {
		return nil, nil
	}
	return &offer, nil
}

// AcceptTask accepts an offer and returns the signature for the next call.
func (c *Client) AcceptTask(ctx context.Context, workerID, sig string) (string, error) {
	var res model.SignatureResult
	err := c.Call(ctx, "acceptTask", &res, workerID, sig)
	return res.Signature, err
}

// RejectTask hands an offer back to the queue.
func (c *Client) RejectTask(ctx context.Context, workerID, sig string) error {
	return c.Call(ctx, "rejectTask", nil, workerID, sig)
}

// TaskInProgress renews a running lease and returns the next signature.
func (c *Client) TaskInProgress(ctx context.Context, workerID, sig string) (string, error) {
	var res model.SignatureResult
	err := c.Call(ctx, "taskInProgress", &res, workerID, sig)
	return res.Signature, err
}

// TaskFinished releases a running lease. stats may be nil.
func (c *Client) TaskFinished(ctx context.Context, workerID, sig string, stats *model.WorkerStatistics) error {
	args := []any{workerID, sig}
	if stats != nil {
		args = append(args, stats)
	}
	return c.Call(ctx, "taskFinished", nil, args...)
}

// CurrentTasks lists the outstanding leases.
func (c *Client) CurrentTasks(ctx context.Context) ([]model.LeaseRef, error) {
	var refs []model.LeaseRef
	err := c.Call(ctx, "getCurrentTasks", &refs)
	return refs, err
}

// RestartTasks returns the listed leases' tasks to the queue.
func (c *Client) RestartTasks(ctx context.Context, refs []model.LeaseRef) (int, error) {
	if refs == nil {
		refs = []model.LeaseRef{}
	}
	var res model.RestartResult
	err := c.Call(ctx, "restartTasks", &res, refs)
	return res.Restarted, err
}

// CreateJob registers a job in the control node's store.
func (c *Client) CreateJob(ctx context.Context, project, job string, params model.SimulationParams) (*model.JobProgress, error) {
	var p model.JobProgress
	if err := c.Call(ctx, "createJob", &p, project, job, params); err != nil {
		return nil, err
	}
	return &p, nil
}

// JobStatus returns a job's progress.
func (c *Client) JobStatus(ctx context.Context, project, job string) (*model.JobProgress, error) {
	var p model.JobProgress
	if err := c.Call(ctx, "jobStatus", &p, project, job); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListJobs returns the progress of every job.
func (c *Client) ListJobs(ctx context.Context) ([]*model.JobProgress, error) {
	var list []*model.JobProgress
	err := c.Call(ctx, "listJobs", &list)
	return list, err
}

// ReportProgress records how many simulation steps of a job are done.
func (c *Client) ReportProgress(ctx context.Context, project, job string, done int64) (*model.JobProgress, error) {
	var p model.JobProgress
	if err := c.Call(ctx, "reportProgress", &p, project, job, done); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReportStatistics marks one statistics task type of a job complete.
func (c *Client) ReportStatistics(ctx context.Context, project, job string, t model.TaskType) (*model.JobProgress, error) {
	var p model.JobProgress
	if err := c.Call(ctx, "reportStatistics", &p, project, job, t); err != nil {
		return nil, err
	}
	return &p, nil
}
