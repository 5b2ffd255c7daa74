package scheduler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/me/controlnode/pkg/model"
)

func TestEnqueue_SimulationBatch(t *testing.T) {
	s, src, _ := testScheduler(t)
	p := undoneJob("proj", "job", 0, 100)
	p.Duration = 100
	p.StepDuration = 1
	p.BatchLength = 50
	src.set(p)

	mustEnqueue(t, s, "proj", "job")

	st := s.Snapshot(context.Background())
	if st.Waiting != 1 {
		t.Fatalf("waiting = %d, want 1", st.Waiting)
	}
	task := st.Queue[0]
	if task.Type != model.TaskTypeSimulation {
		t.Errorf("type = %s, want simulation", task.Type)
	}
	if task.Lease != nil {
		t.Errorf("queued task has lease %+v", task.Lease)
	}
	sim := task.Simulation
	if sim == nil {
		t.Fatal("simulation parameters missing")
	}
	if sim.StartStep != 0 || sim.Duration != 100 || sim.BatchLength != 50 || sim.StepDuration != 1 {
		t.Errorf("simulation = %+v", sim)
	}
}

func TestEnqueue_StartStepIsDone(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(undoneJob("p", "j", 37, 100))

	mustEnqueue(t, s, "p", "j")

	st := s.Snapshot(context.Background())
	if got := st.Queue[0].Simulation.StartStep; got != 37 {
		t.Errorf("StartStep = %d, want 37", got)
	}
}

func TestEnqueue_PendingStatistics(t *testing.T) {
	tests := []struct {
		name              string
		basic, idle, thru bool
		want              []model.TaskType
	}{
		{"none done", false, false, false, []model.TaskType{model.TaskTypeBasicStatistics, model.TaskTypeIdleTimes, model.TaskTypeThroughput}},
		{"basic done", true, false, false, []model.TaskType{model.TaskTypeIdleTimes, model.TaskTypeThroughput}},
		{"only throughput left", true, true, false, []model.TaskType{model.TaskTypeThroughput}},
		{"only basic left", false, true, true, []model.TaskType{model.TaskTypeBasicStatistics}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, src, _ := testScheduler(t)
			src.set(simulatedJob("p", "j", tt.basic, tt.idle, tt.thru))

			mustEnqueue(t, s, "p", "j")

			got := waitingTypes(s)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("queued = %v, want %v", got, tt.want)
			}
			for _, task := range s.Snapshot(context.Background()).Queue {
				if task.Simulation != nil {
					t.Errorf("%s task carries simulation parameters", task.Type)
				}
			}
		})
	}
}

func TestEnqueue_AlreadyDone(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(simulatedJob("p", "j", true, true, true))

	err := s.Enqueue(context.Background(), "p", "j")
	if !errors.Is(err, model.ErrAlreadyDone) {
		t.Fatalf("err = %v, want AlreadyDone", err)
	}
	if got := len(waitingTypes(s)); got != 0 {
		t.Errorf("waiting = %d, want 0", got)
	}
}

func TestEnqueue_JobNotFound(t *testing.T) {
	s, src, _ := testScheduler(t)

	if err := s.Enqueue(context.Background(), "p", "missing"); !errors.Is(err, model.ErrJobNotFound) {
		t.Errorf("nil progress: err = %v, want JobNotFound", err)
	}

	src.setErr(fmt.Errorf("row lookup: %w", model.ErrJobNotFound))
	if err := s.Enqueue(context.Background(), "p", "missing"); !errors.Is(err, model.ErrJobNotFound) {
		t.Errorf("wrapped not-found: err = %v, want JobNotFound", err)
	}
}

func TestEnqueue_StorageError(t *testing.T) {
	s, src, _ := testScheduler(t)
	ctx := context.Background()

	// Another job's work is queued and leased before the store goes away.
	src.set(undoneJob("other", "a", 0, 100))
	src.set(undoneJob("other", "b", 0, 100))
	mustEnqueue(t, s, "other", "a")
	mustEnqueue(t, s, "other", "b")
	mustRequest(t, s, "w1", model.TaskTypeSimulation)
	before := s.Snapshot(ctx)

	src.setErr(errors.New("connection refused"))
	err := s.Enqueue(ctx, "p", "j")
	if !errors.Is(err, model.ErrStorage) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	var se *model.SchedulerError
	if !errors.As(err, &se) || se.Type != model.ErrTypeStorageError {
		t.Errorf("errors.As = %+v, want StorageError", se)
	}
	if after := s.Snapshot(ctx); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed by failed Enqueue:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestEnqueue_DuplicateSimulation(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(undoneJob("p", "j", 0, 100))
	ctx := context.Background()

	mustEnqueue(t, s, "p", "j")
	assertDuplicate(t, s.Enqueue(ctx, "p", "j"), model.TaskTypeSimulation)

	// Still a duplicate while offered and while running.
	offer := mustRequest(t, s, "w1", model.TaskTypeSimulation)
	assertDuplicate(t, s.Enqueue(ctx, "p", "j"), model.TaskTypeSimulation)

	if _, err := s.AcceptTask(ctx, "w1", offer.Signature()); err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}
	assertDuplicate(t, s.Enqueue(ctx, "p", "j"), model.TaskTypeSimulation)

	st := s.Snapshot(ctx)
	if st.Waiting+st.Offered+st.Running != 1 {
		t.Errorf("tasks = %d, want exactly 1", st.Waiting+st.Offered+st.Running)
	}
}

func TestEnqueue_DuplicateStatisticsIsAllOrNothing(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(simulatedJob("p", "j", false, false, false))
	ctx := context.Background()

	mustEnqueue(t, s, "p", "j")

	// Finish basicStatistics without updating the store; idleTimes and
	// throughput are still queued so the whole request is rejected.
	offer := mustRequest(t, s, "w1", model.TaskTypeBasicStatistics)
	sig, err := s.AcceptTask(ctx, "w1", offer.Signature())
	if err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}
	if err := s.TaskFinished(ctx, "w1", sig); err != nil {
		t.Fatalf("TaskFinished: %v", err)
	}

	assertDuplicate(t, s.Enqueue(ctx, "p", "j"), model.TaskTypeIdleTimes)

	want := []model.TaskType{model.TaskTypeIdleTimes, model.TaskTypeThroughput}
	if got := waitingTypes(s); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("waiting = %v, want %v (nothing added)", got, want)
	}
}

func TestEnqueue_DifferentJobsAreIndependent(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(undoneJob("p", "a", 0, 100))
	src.set(undoneJob("p", "b", 0, 100))
	src.set(undoneJob("q", "a", 0, 100))

	mustEnqueue(t, s, "p", "a")
	mustEnqueue(t, s, "p", "b")
	mustEnqueue(t, s, "q", "a")

	if got := len(waitingTypes(s)); got != 3 {
		t.Errorf("waiting = %d, want 3", got)
	}
}

func assertDuplicate(t *testing.T, err error, want model.TaskType) {
	t.Helper()
	if !errors.Is(err, model.ErrDuplicateTask) {
		t.Fatalf("err = %v, want DuplicateTask", err)
	}
	var se *model.SchedulerError
	if !errors.As(err, &se) {
		t.Fatalf("err %T is not a SchedulerError", err)
	}
	if se.TaskType != want {
		t.Errorf("TaskType = %q, want %q", se.TaskType, want)
	}
}

func TestEnqueue_ConcurrentSameJob(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(undoneJob("p", "j", 0, 100))

	const callers = 20
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok, dupes  int
		unexpected []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Enqueue(context.Background(), "p", "j")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrDuplicateTask):
				dupes++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || dupes != callers-1 || len(unexpected) > 0 {
		t.Errorf("ok = %d, duplicates = %d, other = %v; want 1, %d, none", ok, dupes, unexpected, callers-1)
	}
	if st := s.Snapshot(context.Background()); st.Waiting != 1 {
		t.Errorf("waiting = %d, want 1", st.Waiting)
	}
}
