package results

import (
	"time"

	"github.com/ii/api-test-harness/internal/types"
)

// StepStats counts step outcomes.
type StepStats struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	Other       int     `json:"other"`
	SuccessRate float64 `json:"successRate"`
}

func (s *StepStats) add(status types.ResultStatus) {
	s.Total++
	switch status {
	case types.StatusPassed:
		s.Passed++
	case types.StatusFailed:
		s.Failed++
	case types.StatusSkipped:
		s.Skipped++
	default:
		s.Other++
	}
}

func rate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) * 100 / float64(total)
}

// Stats summarises one execution. All counts hook steps, Actual does not.
type Stats struct {
	Scenarios types.Results `json:"scenarios"`
	All       StepStats     `json:"all"`
	Actual    StepStats     `json:"actual"`
	Hooks     int           `json:"hooks"`
}

func ExecutionStats(results []types.TestResult) Stats {
	var st Stats
	st.Scenarios = Count(results)
	var ms float64
	for _, r := range results {
		ms += r.Duration
		for _, s := range r.Steps {
			st.All.add(s.Status)
			if s.IsHook {
				st.Hooks++
				continue
			}
			st.Actual.add(s.Status)
		}
	}
	st.Scenarios.TimeMs = int64(ms)
	st.All.SuccessRate = rate(st.All.Passed, st.All.Total)
	st.Actual.SuccessRate = rate(st.Actual.Passed, st.Actual.Total)
	return st
}

// History summarises the runs of one test case.
type History struct {
	TestCaseID    string             `json:"testCaseId"`
	Runs          int                `json:"runs"`
	Passed        int                `json:"passed"`
	Failed        int                `json:"failed"`
	Skipped       int                `json:"skipped"`
	SuccessRate   float64            `json:"successRate"`
	AvgDurationMs float64            `json:"avgDurationMs"`
	LastStatus    types.ResultStatus `json:"lastStatus,omitempty"`
	LastRun       *time.Time         `json:"lastRun,omitempty"`
}

// CaseHistory expects results in chronological order.
func CaseHistory(testCaseID string, results []types.TestResult) History {
	h := History{TestCaseID: testCaseID}
	var total float64
	for _, r := range results {
		h.Runs++
		total += r.Duration
		switch r.Status {
		case types.StatusFailed:
			h.Failed++
		case types.StatusSkipped:
			h.Skipped++
		default:
			h.Passed++
		}
		at := r.CreatedAt
		h.LastRun = &at
		h.LastStatus = r.Status
	}
	if h.Runs > 0 {
		h.AvgDurationMs = total / float64(h.Runs)
	}
	h.SuccessRate = rate(h.Passed, h.Runs)
	return h
}

// EntitySummary rolls executions of one entity up.
type EntitySummary struct {
	Entity      string                `json:"entity"`
	Executions  int                   `json:"executions"`
	Completed   int                   `json:"completed"`
	Failed      int                   `json:"failed"`
	Scenarios   types.Results         `json:"scenarios"`
	SuccessRate float64               `json:"successRate"`
	LastStatus  types.ExecutionStatus `json:"lastStatus,omitempty"`
}

// EntityRollup ignores executions that have not finished.
func EntityRollup(entity string, executions []types.TestExecution) EntitySummary {
	sum := EntitySummary{Entity: entity}
	for i := range executions {
		e := &executions[i]
		if !e.Status.Final() {
			continue
		}
		sum.Executions++
		switch e.Status {
		case types.ExecutionCompleted:
			sum.Completed++
		case types.ExecutionFailed:
			sum.Failed++
		}
		sum.Scenarios = sum.Scenarios.Add(e.Rollup())
		sum.LastStatus = e.Status
	}
	sum.SuccessRate = rate(sum.Scenarios.Passed, sum.Scenarios.Total)
	return sum
}
