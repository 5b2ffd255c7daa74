package model

import "testing"

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		in      string
		want    TaskType
		wantErr bool
	}{
		{"simulation", TaskTypeSimulation, false},
		{"basicStatistics", TaskTypeBasicStatistics, false},
		{"idleTimes", TaskTypeIdleTimes, false},
		{"throughput", TaskTypeThroughput, false},
		{"fullStatistics", "", true},
		{"Simulation", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTaskType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTaskType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTaskType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTaskType_IsStatistics(t *testing.T) {
	if TaskTypeSimulation.IsStatistics() {
		t.Error("simulation should not be a statistics type")
	}
	for _, st := range StatisticsTypes() {
		if !st.IsStatistics() {
			t.Errorf("%s should be a statistics type", st)
		}
	}
}

func TestTaskState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  TaskState
		to    TaskState
		valid bool
	}{
		{TaskStateQueued, TaskStateOffered, true},
		{TaskStateOffered, TaskStateRunning, true},
		{TaskStateOffered, TaskStateQueued, true},
		{TaskStateRunning, TaskStateQueued, true},

		{TaskStateQueued, TaskStateRunning, false},
		{TaskStateRunning, TaskStateOffered, false},
		{TaskStateQueued, TaskStateQueued, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestTaskState_HasLease(t *testing.T) {
	if TaskStateQueued.HasLease() {
		t.Error("queued tasks must not carry a lease")
	}
	if !TaskStateOffered.HasLease() || !TaskStateRunning.HasLease() {
		t.Error("offered and running tasks carry a lease")
	}
}
