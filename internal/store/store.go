package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/me/controlnode/pkg/model"
)

// Store defines the persistence layer for job progress.
type Store interface {
	// JobProgress returns (nil, nil) when the job does not exist.
	JobProgress(ctx context.Context, project, job string) (*model.JobProgress, error)
	ListProgress(ctx context.Context) ([]*model.JobProgress, error)

	// CreateJob registers a job and its zeroed progress record. It returns
	// model.ErrJobExists when (project, job) is already registered.
	CreateJob(ctx context.Context, project, job string, params model.SimulationParams) (*model.JobProgress, error)
	// RecordProgress raises the number of simulated steps to done, capped at
	// totalSteps. Progress never moves backwards.
	RecordProgress(ctx context.Context, project, job string, done int64) (*model.JobProgress, error)
	// RecordStatistic marks one statistics task type complete.
	RecordStatistic(ctx context.Context, project, job string, t model.TaskType) (*model.JobProgress, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Open picks a backend from the DSN: postgres:// and postgresql:// URLs use
// PostgresStore, anything else is treated as a SQLite path.
func Open(dsn string, logger *slog.Logger) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(dsn, logger)
	}
	return NewSQLiteStore(dsn, logger)
}
