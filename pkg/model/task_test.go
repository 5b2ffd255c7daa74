package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTask_MarshalJSON_Simulation(t *testing.T) {
	ts := time.Date(2011, 3, 4, 5, 6, 7, 0, time.UTC)
	task := &Task{
		Project:    "p",
		Job:        "j",
		Type:       TaskTypeSimulation,
		Simulation: &SimulationBatch{StartStep: 50, Duration: 100, BatchLength: 50, StepDuration: 0.5},
		Lease:      &Lease{Signature: "abc", LastUpdate: ts, WorkerID: "w1"},
	}
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["startStep"] != float64(50) {
		t.Errorf("startStep = %v, want 50", m["startStep"])
	}
	if m["sig"] != "abc" {
		t.Errorf("sig = %v, want abc", m["sig"])
	}
	if _, ok := m["workerId"]; ok {
		t.Error("workerId must not be serialized")
	}
}

func TestTask_MarshalJSON_StatisticsHasNoPayload(t *testing.T) {
	data, err := json.Marshal(&Task{Project: "p", Job: "j", Type: TaskTypeThroughput})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, field := range []string{"startStep", "sig", "lastUpdate"} {
		if strings.Contains(string(data), field) {
			t.Errorf("json %s should not contain %q", data, field)
		}
	}
}

func TestOffer_EmptySentinel(t *testing.T) {
	data, err := json.Marshal(&Offer{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"empty":true}` {
		t.Errorf("json = %s, want {\"empty\":true}", data)
	}

	var o Offer
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if o.Task != nil {
		t.Errorf("Task = %+v, want nil", o.Task)
	}
}

func TestOffer_RoundTrip(t *testing.T) {
	offer := &Offer{
		Task: &Task{
			Project:    "p",
			Job:        "j",
			Type:       TaskTypeSimulation,
			Simulation: &SimulationBatch{StartStep: 0, Duration: 100, BatchLength: 50, StepDuration: 1},
			Lease:      &Lease{Signature: "sig-1", LastUpdate: time.Now().UTC()},
		},
		Databases:            []DatabaseLocation{{Host: "db.local", Port: 27017}},
		NotificationInterval: 10 * time.Second,
	}
	data, err := json.Marshal(offer)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"empty":false`) {
		t.Errorf("json %s should contain empty:false", data)
	}
	if !strings.Contains(string(data), `"notificationInterval":10000`) {
		t.Errorf("json %s should carry notificationInterval in ms", data)
	}

	var got Offer
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Signature() != "sig-1" {
		t.Errorf("Signature() = %q, want sig-1", got.Signature())
	}
	if got.Task.Simulation == nil || got.Task.Simulation.BatchLength != 50 {
		t.Errorf("Simulation = %+v, want batchLength 50", got.Task.Simulation)
	}
	if got.NotificationInterval != 10*time.Second {
		t.Errorf("NotificationInterval = %v, want 10s", got.NotificationInterval)
	}
	if len(got.Databases) != 1 || got.Databases[0].Port != 27017 {
		t.Errorf("Databases = %+v", got.Databases)
	}
}

func TestTask_CloneDoesNotAlias(t *testing.T) {
	orig := &Task{
		Type:       TaskTypeSimulation,
		Simulation: &SimulationBatch{StartStep: 1},
		Lease:      &Lease{Signature: "a"},
	}
	c := orig.Clone()
	c.Simulation.StartStep = 2
	c.Lease.Signature = "b"
	if orig.Simulation.StartStep != 1 || orig.Lease.Signature != "a" {
		t.Error("Clone shares payload or lease with the original")
	}
}
