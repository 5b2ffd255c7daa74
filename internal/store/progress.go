package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/me/controlnode/pkg/model"
)

// progressDB holds the queries shared by the SQLite and Postgres backends.
// Queries are written with ? placeholders and passed through bind.
type progressDB struct {
	db     *sql.DB
	logger *slog.Logger
	bind   func(query string) string
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectProgress = `SELECT j.project, j.name, j.duration, j.step_duration, j.batch_length,
	p.done, p.total_steps, p.batches, p.basic_statistics, p.idle_times, p.throughput, p.full_statistics, p.updated_at
	FROM jobs j JOIN progresses p ON p.project = j.project AND p.job = j.name`

// Close closes the underlying database connection.
func (s *progressDB) Close() error {
	return s.db.Close()
}

func (s *progressDB) JobProgress(ctx context.Context, project, job string) (*model.JobProgress, error) {
	s.logger.Debug("sql", "op", "select", "table", "progresses", "project", project, "job", job)
	return s.get(ctx, s.db, project, job)
}

func (s *progressDB) ListProgress(ctx context.Context) ([]*model.JobProgress, error) {
	s.logger.Debug("sql", "op", "list", "table", "progresses")

	rows, err := s.db.QueryContext(ctx, s.bind(selectProgress+" ORDER BY j.project, j.name"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.JobProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *progressDB) CreateJob(ctx context.Context, project, job string, params model.SimulationParams) (*model.JobProgress, error) {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "project", project, "job", job)

	if params.StepDuration <= 0 || params.Duration < 0 || params.BatchLength <= 0 {
		return nil, fmt.Errorf("create job %s/%s: invalid simulation parameters %+v", project, job, params)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, s.bind(`SELECT 1 FROM jobs WHERE project = ? AND name = ?`), project, job).Scan(&one)
		if err == nil {
			return model.ErrJobExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := tx.ExecContext(ctx, s.bind(
			`INSERT INTO jobs (project, name, duration, step_duration, batch_length, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`),
			project, job, params.Duration, params.StepDuration, params.BatchLength, now,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.bind(
			`INSERT INTO progresses (project, job, done, total_steps, batches, basic_statistics, idle_times, throughput, full_statistics, updated_at)
			 VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`),
			project, job, params.TotalSteps(), params.Batches(), false, false, false, false, now,
		); err != nil {
			return fmt.Errorf("insert progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.get(ctx, s.db, project, job)
}

func (s *progressDB) RecordProgress(ctx context.Context, project, job string, done int64) (*model.JobProgress, error) {
	s.logger.Debug("sql", "op", "update", "table", "progresses", "project", project, "job", job, "done", done)
	return s.update(ctx, project, job, func(p *model.JobProgress) error {
		// A late report from a restarted lease must not move progress back.
		p.Done = max(p.Done, min(done, p.TotalSteps))
		return nil
	})
}

func (s *progressDB) RecordStatistic(ctx context.Context, project, job string, t model.TaskType) (*model.JobProgress, error) {
	s.logger.Debug("sql", "op", "update", "table", "progresses", "project", project, "job", job, "statistic", t)
	if !t.IsStatistics() {
		return nil, model.NewUnknownTaskTypeError(string(t), "taskType")
	}
	return s.update(ctx, project, job, func(p *model.JobProgress) error {
		p.SetStatistic(t)
		return nil
	})
}

// update applies fn to the stored progress inside a transaction and writes it back.
func (s *progressDB) update(ctx context.Context, project, job string, fn func(*model.JobProgress) error) (*model.JobProgress, error) {
	var result *model.JobProgress
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.get(ctx, tx, project, job)
		if err != nil {
			return err
		}
		if p == nil {
			return model.ErrJobNotFound
		}
		if err := fn(p); err != nil {
			return err
		}
		p.Normalize()
		p.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx, s.bind(
			`UPDATE progresses SET done = ?, basic_statistics = ?, idle_times = ?, throughput = ?, full_statistics = ?, updated_at = ?
			 WHERE project = ? AND job = ?`),
			p.Done, p.BasicStatistics, p.IdleTimes, p.Throughput, p.FullStatistics,
			p.UpdatedAt.Format(time.RFC3339Nano), project, job,
		)
		if err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		result = p
		return nil
	})
	return result, err
}

func (s *progressDB) get(ctx context.Context, q queryer, project, job string) (*model.JobProgress, error) {
	row := q.QueryRowContext(ctx, s.bind(selectProgress+" WHERE j.project = ? AND j.name = ?"), project, job)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *progressDB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(sc scanner) (*model.JobProgress, error) {
	var p model.JobProgress
	var updatedAt string
	err := sc.Scan(&p.Project, &p.Job, &p.Duration, &p.StepDuration, &p.BatchLength,
		&p.Done, &p.TotalSteps, &p.Batches, &p.BasicStatistics, &p.IdleTimes, &p.Throughput, &p.FullStatistics, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

// bindQuestion leaves ? placeholders untouched.
func bindQuestion(query string) string {
	return query
}

// bindDollar rewrites ? placeholders to $1, $2, ... for Postgres.
func bindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
