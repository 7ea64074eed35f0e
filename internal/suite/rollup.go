// Package suite runs test sets and test plans and rolls their results up.
package suite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/runner"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog/log"
)

type Store interface {
	GetSuite(ctx context.Context, suiteID string) (*types.TestSuite, error)
	UpdateSuite(ctx context.Context, s *types.TestSuite) error
}

// Handle is a started execution. *runner.Run implements it.
type Handle interface {
	ID() string
	Wait(ctx context.Context) (*types.TestExecution, error)
}

type ExecuteFunc func(ctx context.Context, p *types.Project, req runner.Request) (Handle, error)

// Orchestrated adapts an orchestrator to an ExecuteFunc.
func Orchestrated(o *runner.Orchestrator) ExecuteFunc {
	return func(ctx context.Context, p *types.Project, req runner.Request) (Handle, error) {
		run, err := o.Start(ctx, p, req)
		if err != nil {
			return nil, err
		}
		return run, nil
	}
}

type Rollup struct {
	Store    Store
	Projects project.Lookup
	Execute  ExecuteFunc
	Now      func() time.Time
}

func (r *Rollup) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// SetLog is the per-set record kept in a suite's execution logs.
type SetLog struct {
	SuiteID     string                `json:"suiteId"`
	Name        string                `json:"name"`
	ExecutionID string                `json:"executionId,omitempty"`
	Status      types.ExecutionStatus `json:"status,omitempty"`
	Results     types.Results         `json:"results"`
	Error       string                `json:"error,omitempty"`
}

// Load fetches a suite of the given kind and its project, rejecting
// suites that have nothing to run.
func (r *Rollup) Load(ctx context.Context, suiteID string, kind types.SuiteKind) (*types.TestSuite, *types.Project, error) {
	s, err := r.Store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading suite %s: %w", suiteID, err)
	}
	if s.Kind != kind {
		return nil, nil, &types.ValidationError{Msg: fmt.Sprintf("suite %s is a test %s, not a test %s", suiteID, s.Kind, kind)}
	}
	switch {
	case kind == types.TestSet && len(s.TestCases) == 0:
		return nil, nil, &types.ValidationError{Msg: fmt.Sprintf("test set %s (%s) has no test cases", suiteID, s.Name)}
	case kind == types.TestPlan && len(s.TestSets) == 0:
		return nil, nil, &types.ValidationError{Msg: fmt.Sprintf("test plan %s (%s) has no test sets", suiteID, s.Name)}
	}
	p, err := r.Projects.Project(ctx, s.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return s, p, nil
}

// Request returns the runner request that executes a test set.
func Request(s *types.TestSuite) runner.Request {
	names := make([]string, 0, len(s.TestCases))
	for _, tc := range s.TestCases {
		if n := strings.TrimSpace(tc.Name); n != "" {
			names = append(names, n)
		}
	}
	return runner.Request{
		Entity:  s.EntityName,
		Filters: types.Filters{SpecificScenario: strings.Join(names, ",")},
	}
}

// RunSet executes a test set and blocks until its execution is final.
func (r *Rollup) RunSet(ctx context.Context, p *types.Project, s *types.TestSuite) (types.Results, error) {
	entry := r.runSet(ctx, p, s)
	s.ExecutionLogs = encodeLogs([]SetLog{entry})
	r.save(ctx, s)
	if entry.Error != "" {
		return entry.Results, fmt.Errorf("test set %s: %s", s.SuiteID, entry.Error)
	}
	return entry.Results, nil
}

func (r *Rollup) runSet(ctx context.Context, p *types.Project, s *types.TestSuite) SetLog {
	entry := SetLog{SuiteID: s.SuiteID, Name: s.Name}
	s.Status = types.SuiteRunning
	r.save(ctx, s)

	h, err := r.Execute(ctx, p, Request(s))
	if err != nil {
		return r.finishSet(ctx, s, entry, types.Results{}, err)
	}
	entry.ExecutionID = h.ID()
	log.Info().Str("execution", h.ID()).Msgf("test set %s (%s) started", s.SuiteID, s.Name)
	exec, err := h.Wait(ctx)
	if err != nil {
		return r.finishSet(ctx, s, entry, types.Results{}, err)
	}
	entry.Status = exec.Status
	res := exec.Rollup()
	if exec.Status == types.ExecutionFailed && res.Failed == 0 {
		return r.finishSet(ctx, s, entry, res, fmt.Errorf("execution %s failed: %s", exec.ExecutionID, exec.ErrorMessage))
	}
	return r.finishSet(ctx, s, entry, res, nil)
}

func (r *Rollup) finishSet(ctx context.Context, s *types.TestSuite, entry SetLog, res types.Results, err error) SetLog {
	now := r.now()
	s.LastRun = &now
	s.Apply(res)
	entry.Results = res
	if err != nil {
		s.Status = types.SuiteFailed
		entry.Error = err.Error()
		log.Warn().Err(err).Msgf("test set %s (%s) failed", s.SuiteID, s.Name)
	} else {
		log.Info().Msgf("test set %s (%s) %s: %d/%d passed", s.SuiteID, s.Name, s.Status, res.Passed, res.Total)
	}
	return entry
}

// RunPlan executes the plan's sets one after another and accumulates
// their results on the plan.
func (r *Rollup) RunPlan(ctx context.Context, p *types.Project, plan *types.TestSuite) (types.Results, error) {
	plan.Status = types.SuiteRunning
	r.save(ctx, plan)

	var (
		total   types.Results
		entries []SetLog
		errored int
	)
	for _, item := range plan.TestSets {
		set, setProject, err := r.Load(ctx, item.ID, types.TestSet)
		if err != nil {
			errored++
			entries = append(entries, SetLog{SuiteID: item.ID, Name: item.Name, Error: err.Error()})
			log.Warn().Err(err).Msgf("test plan %s: skipping set %s", plan.SuiteID, item.ID)
			continue
		}
		if setProject.ID != p.ID {
			log.Warn().Msgf("test plan %s: set %s belongs to project %s", plan.SuiteID, set.SuiteID, setProject.ID)
		}
		entry := r.runSet(ctx, setProject, set)
		set.ExecutionLogs = encodeLogs([]SetLog{entry})
		r.save(ctx, set)
		if entry.Error != "" {
			errored++
		}
		entries = append(entries, entry)
		total = total.Add(entry.Results)
	}

	now := r.now()
	plan.LastRun = &now
	plan.Apply(total)
	if errored > 0 && total.Failed == 0 {
		plan.Status = types.SuiteFailed
	}
	plan.ExecutionLogs = encodeLogs(entries)
	r.save(ctx, plan)
	log.Info().Msgf("test plan %s (%s) %s: %d sets, %d/%d scenarios passed",
		plan.SuiteID, plan.Name, plan.Status, len(entries), total.Passed, total.Total)
	if errored > 0 {
		return total, fmt.Errorf("test plan %s: %d of %d sets did not run cleanly", plan.SuiteID, errored, len(plan.TestSets))
	}
	return total, nil
}

func (r *Rollup) save(ctx context.Context, s *types.TestSuite) {
	if err := r.Store.UpdateSuite(ctx, s); err != nil {
		log.Error().Err(err).Msgf("saving suite %s", s.SuiteID)
	}
}

func encodeLogs(entries []SetLog) string {
	b, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	return string(b)
}
