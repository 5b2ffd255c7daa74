package model

import (
	"encoding/json"
	"time"
)

// Task is one dispatchable unit of work belonging to a (project, job, type) triple.
//
// Simulation is non-nil only for simulation tasks. Lease is non-nil only while
// the task is offered to or running on a worker.
type Task struct {
	Project    string
	Job        string
	Type       TaskType
	Simulation *SimulationBatch
	Lease      *Lease
}

// SimulationBatch is the payload of a simulation task, copied from job
// progress when the task is enqueued.
type SimulationBatch struct {
	StartStep    int64   `json:"startStep"`
	Duration     float64 `json:"duration"`
	BatchLength  int64   `json:"batchLength"`
	StepDuration float64 `json:"stepDuration"`
}

// Lease binds a Task to a worker while it is offered or running.
type Lease struct {
	Signature  string    `json:"sig"`
	LastUpdate time.Time `json:"lastUpdate"`
	WorkerID   string    `json:"workerId"`
}

// Key identifies the duplicate-suppression slot of a task.
type Key struct {
	Project string
	Job     string
	Type    TaskType
}

// Key returns the (project, job, type) triple of the task.
func (t *Task) Key() Key {
	return Key{Project: t.Project, Job: t.Job, Type: t.Type}
}

// BelongsTo returns true if the task is part of the given job.
func (t *Task) BelongsTo(project, job string) bool {
	return t.Project == project && t.Job == job
}

// Clone returns a deep copy so callers never alias scheduler-owned state.
func (t *Task) Clone() *Task {
	c := *t
	if t.Simulation != nil {
		sim := *t.Simulation
		c.Simulation = &sim
	}
	if t.Lease != nil {
		l := *t.Lease
		c.Lease = &l
	}
	return &c
}

// taskJSON is the flat wire form of a Task.
type taskJSON struct {
	Project string   `json:"project"`
	Job     string   `json:"job"`
	Type    TaskType `json:"type"`
	*SimulationBatch
	Signature  string     `json:"sig,omitempty"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

// MarshalJSON flattens the simulation payload and lease into one object,
// the shape workers and operators see on the wire.
func (t Task) MarshalJSON() ([]byte, error) {
	w := taskJSON{
		Project:         t.Project,
		Job:             t.Job,
		Type:            t.Type,
		SimulationBatch: t.Simulation,
	}
	if t.Lease != nil {
		w.Signature = t.Lease.Signature
		lu := t.Lease.LastUpdate
		w.LastUpdate = &lu
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON. The worker id is not part of
// the wire form and stays empty.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskJSON
	w.SimulationBatch = &SimulationBatch{}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Project, t.Job, t.Type = w.Project, w.Job, w.Type
	t.Simulation = nil
	if t.Type == TaskTypeSimulation {
		t.Simulation = w.SimulationBatch
	}
	t.Lease = nil
	if w.Signature != "" {
		t.Lease = &Lease{Signature: w.Signature}
		if w.LastUpdate != nil {
			t.Lease.LastUpdate = *w.LastUpdate
		}
	}
	return nil
}

// DatabaseLocation tells a worker where the job store can be reached.
type DatabaseLocation struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Offer is a task handed to a worker by getTask.
type Offer struct {
	Task                 *Task
	Databases            []DatabaseLocation
	NotificationInterval time.Duration
}

// Signature returns the lease signature the worker must present next.
func (o *Offer) Signature() string {
	if o == nil || o.Task == nil || o.Task.Lease == nil {
		return ""
	}
	return o.Task.Lease.Signature
}

// MarshalJSON renders the offer as the task object extended with the
// worker-facing metadata. A nil offer is the empty sentinel.
func (o *Offer) MarshalJSON() ([]byte, error) {
	if o == nil || o.Task == nil {
		return []byte(`{"empty":true}`), nil
	}
	raw, err := json.Marshal(o.Task)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["empty"] = json.RawMessage("false")
	dbs := o.Databases
	if dbs == nil {
		dbs = []DatabaseLocation{}
	}
	if fields["databases"], err = json.Marshal(dbs); err != nil {
		return nil, err
	}
	if fields["notificationInterval"], err = json.Marshal(o.NotificationInterval.Milliseconds()); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes an offer or the empty sentinel. For the sentinel the
// offer's Task is left nil.
func (o *Offer) UnmarshalJSON(data []byte) error {
	var head struct {
		Empty                bool               `json:"empty"`
		Databases            []DatabaseLocation `json:"databases"`
		NotificationInterval int64              `json:"notificationInterval"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*o = Offer{}
	if head.Empty {
		return nil
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	o.Task = &t
	o.Databases = head.Databases
	o.NotificationInterval = time.Duration(head.NotificationInterval) * time.Millisecond
	return nil
}

// LeaseRef is the lightweight liveness record of an outstanding lease.
type LeaseRef struct {
	WorkerID   string    `json:"id"`
	Signature  string    `json:"sig"`
	LastUpdate time.Time `json:"lastUpdate,omitzero"`
}

// SchedulerStatus is a point-in-time view of the scheduler containers.
type SchedulerStatus struct {
	Waiting int        `json:"waiting"`
	Offered int        `json:"offered"`
	Running int        `json:"running"`
	Queue   []*Task    `json:"queue"`
	Leases  []LeaseRef `json:"leases"`
}
