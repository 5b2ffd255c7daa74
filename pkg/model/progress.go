package model

import (
	"math"
	"time"
)

// JobProgress is the progress record of one simulation job, owned by the job store.
type JobProgress struct {
	Project         string    `json:"project"`
	Job             string    `json:"name"`
	Done            int64     `json:"done"`
	TotalSteps      int64     `json:"totalSteps"`
	Batches         int64     `json:"batches"`
	Duration        float64   `json:"duration"`
	BatchLength     int64     `json:"batchLength"`
	StepDuration    float64   `json:"stepDuration"`
	BasicStatistics bool      `json:"basicStatistics"`
	IdleTimes       bool      `json:"idleTimes"`
	Throughput      bool      `json:"throughput"`
	FullStatistics  bool      `json:"fullStatistics"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
}

// SimulationParams are the parameters a job is created with.
type SimulationParams struct {
	Duration     float64 `json:"duration" yaml:"duration"`
	StepDuration float64 `json:"stepDuration" yaml:"stepDuration"`
	BatchLength  int64   `json:"batchLength" yaml:"batchLength"`
}

// TotalSteps is ceil(duration / stepDuration).
func (p SimulationParams) TotalSteps() int64 {
	if p.StepDuration <= 0 {
		return 0
	}
	return int64(math.Ceil(p.Duration / p.StepDuration))
}

// Batches is the number of simulation tasks needed to cover TotalSteps.
func (p SimulationParams) Batches() int64 {
	if p.BatchLength <= 0 {
		return 0
	}
	total := p.TotalSteps()
	return (total + p.BatchLength - 1) / p.BatchLength
}

// Normalize recomputes FullStatistics from the three statistics flags.
func (p *JobProgress) Normalize() {
	p.FullStatistics = p.BasicStatistics && p.IdleTimes && p.Throughput
}

// SimulationDone returns true when no simulation steps remain.
func (p *JobProgress) SimulationDone() bool {
	return p.Done >= p.TotalSteps
}

// StatisticDone returns the completion flag for a statistics task type.
func (p *JobProgress) StatisticDone(t TaskType) bool {
	switch t {
	case TaskTypeBasicStatistics:
		return p.BasicStatistics
	case TaskTypeIdleTimes:
		return p.IdleTimes
	case TaskTypeThroughput:
		return p.Throughput
	}
	return false
}

// SetStatistic marks a statistics task type complete and refreshes FullStatistics.
func (p *JobProgress) SetStatistic(t TaskType) {
	switch t {
	case TaskTypeBasicStatistics:
		p.BasicStatistics = true
	case TaskTypeIdleTimes:
		p.IdleTimes = true
	case TaskTypeThroughput:
		p.Throughput = true
	}
	p.Normalize()
}

// Pending returns the statistics task types whose flag is still false,
// in StatisticsTypes order.
func (p *JobProgress) Pending() []TaskType {
	var out []TaskType
	for _, t := range StatisticsTypes() {
		if !p.StatisticDone(t) {
			out = append(out, t)
		}
	}
	return out
}
