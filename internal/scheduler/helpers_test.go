package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/me/controlnode/pkg/model"
)

// fakeSource is an in-memory ProgressSource.
type fakeSource struct {
	mu    sync.Mutex
	jobs  map[string]model.JobProgress
	err   error
	calls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{jobs: make(map[string]model.JobProgress)}
}

func (f *fakeSource) JobProgress(ctx context.Context, project, job string) (*model.JobProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.jobs[project+"/"+job]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeSource) set(p model.JobProgress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Normalize()
	f.jobs[p.Project+"/"+p.Job] = p
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// counterSigs returns a deterministic signature generator: sig-1, sig-2, ...
func counterSigs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("sig-%d", n.Add(1))
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testScheduler returns a Scheduler with deterministic signatures and clock.
func testScheduler(t *testing.T) (*Scheduler, *fakeSource, *fakeClock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := newFakeSource()
	clock := &fakeClock{now: time.Date(2011, 5, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.Databases = []model.DatabaseLocation{{Host: "192.168.1.5", Port: 27017}}
	s := New(src, cfg, logger, WithClock(clock.Now), WithSignatureFunc(counterSigs()))
	t.Cleanup(s.Wait)
	return s, src, clock
}

// undoneJob is a job with simulation steps remaining.
func undoneJob(project, job string, done, total int64) model.JobProgress {
	return model.JobProgress{
		Project:      project,
		Job:          job,
		Done:         done,
		TotalSteps:   total,
		Duration:     float64(total),
		BatchLength:  50,
		StepDuration: 1,
	}
}

// simulatedJob is a job whose simulation is complete with the given statistics flags.
func simulatedJob(project, job string, basic, idle, throughput bool) model.JobProgress {
	p := undoneJob(project, job, 100, 100)
	p.BasicStatistics = basic
	p.IdleTimes = idle
	p.Throughput = throughput
	return p
}

// mustEnqueue fails the test if Enqueue returns an error.
func mustEnqueue(t *testing.T, s *Scheduler, project, job string) {
	t.Helper()
	if err := s.Enqueue(context.Background(), project, job); err != nil {
		t.Fatalf("Enqueue(%s, %s): %v", project, job, err)
	}
}

// mustRequest fails the test unless RequestTask returns an offer.
func mustRequest(t *testing.T, s *Scheduler, workerID string, types ...model.TaskType) *model.Offer {
	t.Helper()
	offer, err := s.RequestTask(context.Background(), workerID, types)
	if err != nil {
		t.Fatalf("RequestTask(%s): %v", workerID, err)
	}
	if offer == nil {
		t.Fatalf("RequestTask(%s): got empty, want a task", workerID)
	}
	return offer
}

// waitingTypes lists the types in the waiting queue in order.
func waitingTypes(s *Scheduler) []model.TaskType {
	st := s.Snapshot(context.Background())
	out := make([]model.TaskType, len(st.Queue))
	for i, t := range st.Queue {
		out[i] = t.Type
	}
	return out
}
