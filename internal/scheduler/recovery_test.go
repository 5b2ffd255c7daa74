package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/me/controlnode/pkg/model"
)

func TestAbort_RemovesFromAllContainers(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(simulatedJob("p", "j", false, false, false))
	src.set(undoneJob("p", "other", 0, 100))
	mustEnqueue(t, s, "p", "j")
	mustEnqueue(t, s, "p", "other")
	ctx := context.Background()

	// basicStatistics offered to w1, idleTimes running on w2, throughput waiting.
	mustRequest(t, s, "w1", model.TaskTypeBasicStatistics)
	offer := mustRequest(t, s, "w2", model.TaskTypeIdleTimes)
	sig, err := s.AcceptTask(ctx, "w2", offer.Signature())
	if err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}

	if n := s.Abort(ctx, "p", "j"); n != 3 {
		t.Errorf("Abort = %d, want 3", n)
	}

	st := s.Snapshot(ctx)
	if st.Waiting != 1 || st.Offered != 0 || st.Running != 0 {
		t.Fatalf("after abort: waiting=%d offered=%d running=%d, want 1/0/0", st.Waiting, st.Offered, st.Running)
	}
	if st.Queue[0].Job != "other" {
		t.Errorf("surviving job = %q, want other", st.Queue[0].Job)
	}

	// The worker's old lease is now unknown.
	if _, err := s.TaskInProgress(ctx, "w2", sig); !errors.Is(err, model.ErrInvalidWorkerID) {
		t.Errorf("TaskInProgress after abort err = %v, want InvalidWorkerId", err)
	}
	// Both workers are free to request again.
	mustRequest(t, s, "w1", model.TaskTypeSimulation)
}

func TestAbort_UnknownJob(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(undoneJob("p", "j", 0, 100))
	mustEnqueue(t, s, "p", "j")

	if n := s.Abort(context.Background(), "p", "nope"); n != 0 {
		t.Errorf("Abort = %d, want 0", n)
	}
	// Project and job must both match.
	if n := s.Abort(context.Background(), "q", "j"); n != 0 {
		t.Errorf("Abort(other project) = %d, want 0", n)
	}
	if got := len(waitingTypes(s)); got != 1 {
		t.Errorf("waiting = %d, want 1", got)
	}
}

func TestAbort_AllowsReenqueue(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(undoneJob("p", "j", 0, 100))
	mustEnqueue(t, s, "p", "j")

	s.Abort(context.Background(), "p", "j")
	mustEnqueue(t, s, "p", "j")
}

func TestOutstanding(t *testing.T) {
	s, src, clock := testScheduler(t)
	src.set(simulatedJob("p", "j", false, false, false))
	mustEnqueue(t, s, "p", "j")
	ctx := context.Background()

	if refs := s.Outstanding(ctx); len(refs) != 0 {
		t.Fatalf("Outstanding on idle scheduler = %+v, want empty", refs)
	}

	offerB := mustRequest(t, s, "wb", model.TaskTypeBasicStatistics)
	clock.Advance(time.Minute)
	offerA := mustRequest(t, s, "wa", model.TaskTypeIdleTimes)
	sigA, err := s.AcceptTask(ctx, "wa", offerA.Signature())
	if err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}

	refs := s.Outstanding(ctx)
	if len(refs) != 2 {
		t.Fatalf("Outstanding = %d refs, want 2", len(refs))
	}
	if refs[0].WorkerID != "wa" || refs[0].Signature != sigA {
		t.Errorf("refs[0] = %+v, want wa/%s", refs[0], sigA)
	}
	if refs[1].WorkerID != "wb" || refs[1].Signature != offerB.Signature() {
		t.Errorf("refs[1] = %+v, want wb/%s", refs[1], offerB.Signature())
	}
	if !refs[1].LastUpdate.Before(refs[0].LastUpdate) {
		t.Errorf("wb lease (%v) should be older than wa lease (%v)", refs[1].LastUpdate, refs[0].LastUpdate)
	}
}

func TestRestart_RequeuesRunningAndOffered(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(simulatedJob("p", "j", false, false, false))
	mustEnqueue(t, s, "p", "j")
	ctx := context.Background()

	offer1 := mustRequest(t, s, "w1", model.TaskTypeBasicStatistics)
	sig1, err := s.AcceptTask(ctx, "w1", offer1.Signature())
	if err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}
	offer2 := mustRequest(t, s, "w2", model.TaskTypeIdleTimes)

	n := s.Restart(ctx, []model.LeaseRef{
		{WorkerID: "w1", Signature: sig1},
		{WorkerID: "w2", Signature: offer2.Signature()},
		{WorkerID: "ghost", Signature: "x"},
	})
	if n != 2 {
		t.Errorf("Restart = %d, want 2", n)
	}

	st := s.Snapshot(ctx)
	if st.Offered != 0 || st.Running != 0 || st.Waiting != 3 {
		t.Fatalf("after restart: waiting=%d offered=%d running=%d, want 3/0/0", st.Waiting, st.Offered, st.Running)
	}
	// Restarted tasks go to the tail, without a lease, in ref order.
	want := []model.TaskType{model.TaskTypeThroughput, model.TaskTypeBasicStatistics, model.TaskTypeIdleTimes}
	for i, task := range st.Queue {
		if task.Type != want[i] {
			t.Errorf("queue[%d] = %s, want %s", i, task.Type, want[i])
		}
		if task.Lease != nil {
			t.Errorf("queue[%d] still has a lease", i)
		}
	}

	// The restarted worker's lease is gone.
	if err := s.TaskFinished(ctx, "w1", sig1); !errors.Is(err, model.ErrInvalidWorkerID) {
		t.Errorf("TaskFinished after restart err = %v, want InvalidWorkerId", err)
	}
}

func TestRestart_IgnoresSignature(t *testing.T) {
	s, src, _ := testScheduler(t)
	src.set(undoneJob("p", "j", 0, 100))
	mustEnqueue(t, s, "p", "j")

	mustRequest(t, s, "w1", model.TaskTypeSimulation)

	if n := s.Restart(context.Background(), []model.LeaseRef{{WorkerID: "w1", Signature: "stale"}}); n != 1 {
		t.Errorf("Restart with stale sig = %d, want 1", n)
	}
}

func TestRestart_Empty(t *testing.T) {
	s, _, _ := testScheduler(t)
	if n := s.Restart(context.Background(), nil); n != 0 {
		t.Errorf("Restart(nil) = %d, want 0", n)
	}
}

// recordingRecorder captures Recorder calls.
type recordingRecorder struct {
	mu    sync.Mutex
	ops   []string
	sizes [3]int
}

func (r *recordingRecorder) Transition(op string, t model.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op+":"+string(t))
}

func (r *recordingRecorder) QueueSizes(waiting, offered, running int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = [3]int{waiting, offered, running}
}

func TestRecorder(t *testing.T) {
	s, src, _ := testScheduler(t)
	rec := &recordingRecorder{}
	WithRecorder(rec)(s)
	src.set(simulatedJob("p", "j", true, true, false))
	ctx := context.Background()

	mustEnqueue(t, s, "p", "j")
	offer := mustRequest(t, s, "w1", model.TaskTypeThroughput)
	sig, err := s.AcceptTask(ctx, "w1", offer.Signature())
	if err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}
	sig, err = s.TaskInProgress(ctx, "w1", sig)
	if err != nil {
		t.Fatalf("TaskInProgress: %v", err)
	}
	if err := s.TaskFinished(ctx, "w1", sig); err != nil {
		t.Fatalf("TaskFinished: %v", err)
	}

	want := []string{"enqueue:throughput", "offer:throughput", "accept:throughput", "renew:throughput", "finish:throughput"}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", rec.ops, want)
	}
	for i := range want {
		if rec.ops[i] != want[i] {
			t.Errorf("ops[%d] = %q, want %q", i, rec.ops[i], want[i])
		}
	}
	if rec.sizes != [3]int{0, 0, 0} {
		t.Errorf("sizes = %v, want all zero", rec.sizes)
	}
}
