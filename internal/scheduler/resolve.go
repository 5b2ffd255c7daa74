package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/me/controlnode/pkg/model"
)

var tracer = otel.Tracer("github.com/me/controlnode/internal/scheduler")

// Enqueue reads the job's progress and queues whatever work it needs next:
//
//   - a simulation batch starting at done, while done < totalSteps;
//   - otherwise one task per statistics flag still false, all or nothing;
//   - otherwise ErrAlreadyDone.
//
// Only the progress read happens outside the lock. The duplicate check and
// the append share one critical section, so concurrent calls never queue the
// same (project, job, type) twice, but a call may act on stale progress.
func (s *Scheduler) Enqueue(ctx context.Context, project, job string) error {
	progress, err := s.lookup(ctx, project, job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*model.Task
	switch {
	case progress.Done < progress.TotalSteps:
		if s.exists(project, job, model.TaskTypeSimulation) {
			return model.NewDuplicateTaskError(model.TaskTypeSimulation)
		}
		tasks = append(tasks, &model.Task{
			Project: project,
			Job:     job,
			Type:    model.TaskTypeSimulation,
			Simulation: &model.SimulationBatch{
				StartStep:    progress.Done,
				Duration:     progress.Duration,
				BatchLength:  progress.BatchLength,
				StepDuration: progress.StepDuration,
			},
		})

	case !progress.FullStatistics:
		for _, t := range model.StatisticsTypes() {
			if s.exists(project, job, t) {
				return model.NewDuplicateTaskError(t)
			}
		}
		for _, t := range progress.Pending() {
			tasks = append(tasks, &model.Task{Project: project, Job: job, Type: t})
		}

	default:
		return model.ErrAlreadyDone
	}

	for _, t := range tasks {
		s.waiting = append(s.waiting, t)
		s.recorder.Transition("enqueue", t.Type)
		s.logger.Info("task queued", "project", project, "job", job, "type", t.Type)
	}
	s.reportSizes()
	return nil
}

// lookup fetches progress and maps store failures onto the scheduler taxonomy.
func (s *Scheduler) lookup(ctx context.Context, project, job string) (*model.JobProgress, error) {
	ctx, span := tracer.Start(ctx, "scheduler.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("project", project), attribute.String("job", job))

	progress, err := s.source.JobProgress(ctx, project, job)
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		span.SetStatus(codes.Error, "job not found")
		return nil, model.ErrJobNotFound
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("job progress lookup", "project", project, "job", job, "error", err)
		return nil, fmt.Errorf("job progress %s/%s: %w", project, job, model.NewStorageError(err))
	case progress == nil:
		span.SetStatus(codes.Error, "job not found")
		return nil, model.ErrJobNotFound
	}

	span.SetAttributes(
		attribute.Int64("done", progress.Done),
		attribute.Int64("total_steps", progress.TotalSteps),
		attribute.Bool("full_statistics", progress.FullStatistics),
	)
	return progress, nil
}

// exists reports whether a task for (project, job, type) is queued, offered
// or running. Caller holds mu.
func (s *Scheduler) exists(project, job string, t model.TaskType) bool {
	key := model.Key{Project: project, Job: job, Type: t}
	for _, task := range s.waiting {
		if task.Key() == key {
			return true
		}
	}
	for _, task := range s.offered {
		if task.Key() == key {
			return true
		}
	}
	for _, task := range s.running {
		if task.Key() == key {
			return true
		}
	}
	return false
}
