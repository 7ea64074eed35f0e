// Package results turns a cucumber JSON report into per-scenario results
// and keeps test-case execution history current.
package results

import (
	"context"
	"strings"
	"time"

	"github.com/ii/api-test-harness/internal/parser"
	"github.com/ii/api-test-harness/internal/runner"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog/log"
)

const nanosPerMilli = 1e6

var hookKeywords = map[string]bool{
	"before":     true,
	"after":      true,
	"beforestep": true,
	"afterstep":  true,
}

// Store is what the aggregator persists to.
type Store interface {
	SaveResults(ctx context.Context, executionID string, results []types.TestResult) error
	ListTestCases(ctx context.Context, projectID, entity string) ([]types.TestCase, error)
	UpdateLastRun(ctx context.Context, projectID, testCaseID string, at time.Time, status types.ResultStatus) error
}

// Aggregator is a runner.ReportHandler that records results and
// execution counters.
type Aggregator struct {
	Store Store
	Now   func() time.Time
}

var _ runner.ReportHandler = (*Aggregator)(nil)

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{Store: store}
}

// Build converts report features into results. Background elements are
// folded into the scenarios by the runner already and are skipped.
func Build(executionID string, features []types.CukeFeatureJSON, at time.Time) []types.TestResult {
	var out []types.TestResult
	for _, f := range features {
		for _, el := range f.Elements {
			if el.Type == "background" {
				continue
			}
			r := types.TestResult{
				ExecutionID:  executionID,
				ScenarioName: el.Name,
				FeatureURI:   f.URI,
				Line:         el.Line,
				CreatedAt:    at,
			}
			for _, t := range el.Tags {
				r.Tags = append(r.Tags, t.Name)
			}
			for _, st := range el.Steps {
				o := Outcome(st)
				r.Duration += o.Duration
				if o.ErrorMessage != "" && r.ErrorMessage == "" {
					r.ErrorMessage = o.ErrorMessage
				}
				r.Steps = append(r.Steps, o)
			}
			r.Status = ScenarioStatus(r.Steps)
			r.TestCaseID = MarkerID(r.Tags)
			out = append(out, r)
		}
	}
	return out
}

// Outcome converts one report step. Durations go from nanoseconds to
// milliseconds.
func Outcome(st types.CukeStep) types.StepOutcome {
	o := types.StepOutcome{
		StepName:     st.Name,
		Keyword:      strings.TrimSpace(st.Keyword),
		Status:       types.ResultStatus(strings.ToLower(st.Result.Status)),
		ErrorMessage: st.Result.Error,
	}
	if st.Result.Duration != nil {
		o.Duration = float64(*st.Result.Duration) / nanosPerMilli
	}
	if hookKeywords[strings.ToLower(o.Keyword)] {
		o.IsHook = true
		o.HookType = o.Keyword
	}
	return o
}

// ScenarioStatus derives a scenario status from its steps. Any failure
// wins; the scenario is skipped only when every step was.
func ScenarioStatus(steps []types.StepOutcome) types.ResultStatus {
	if len(steps) == 0 {
		return types.StatusSkipped
	}
	allSkipped := true
	for _, s := range steps {
		if s.Status == types.StatusFailed {
			return types.StatusFailed
		}
		if s.Status != types.StatusSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		return types.StatusSkipped
	}
	return types.StatusPassed
}

// MarkerID returns the resolved test case id carried by a tag list.
func MarkerID(tags []string) string {
	for _, t := range tags {
		if section, entity, n, ok := parser.ParseMarkerTag(t); ok && n > 0 {
			return parser.FormatTestCaseID(section, entity, n)
		}
	}
	return ""
}

// Count tallies scenario outcomes.
func Count(results []types.TestResult) types.Results {
	var r types.Results
	for _, res := range results {
		r.Total++
		switch res.Status {
		case types.StatusFailed:
			r.Failed++
		case types.StatusSkipped:
			r.Skipped++
		default:
			r.Passed++
		}
	}
	return r
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Aggregator) HandleReport(ctx context.Context, ec *runner.ExecutionContext, exec *types.TestExecution, features []types.CukeFeatureJSON) error {
	at := a.now()
	if exec.CompletedAt != nil {
		at = *exec.CompletedAt
	}
	results := Build(exec.ExecutionID, features, at)
	a.resolveByName(ctx, exec, results)

	counts := Count(results)
	exec.TotalScenarios = counts.Total
	exec.PassedScenarios = counts.Passed
	exec.FailedScenarios = counts.Failed
	exec.SkippedScenarios = counts.Skipped
	exec.Results = results

	if err := a.Store.SaveResults(ctx, exec.ExecutionID, results); err != nil {
		return &types.PersistenceError{Op: "save results of " + exec.ExecutionID, Err: err}
	}
	for _, r := range results {
		if r.TestCaseID == "" {
			log.Debug().Str("execution", exec.ExecutionID).Msgf("scenario %q has no test case", r.ScenarioName)
			continue
		}
		if err := a.Store.UpdateLastRun(ctx, exec.ProjectID, r.TestCaseID, at, r.Status); err != nil {
			log.Warn().Err(err).Str("execution", exec.ExecutionID).Str("testCase", r.TestCaseID).
				Msgf("updating last run of %s", r.TestCaseID)
		}
	}
	log.Info().Str("execution", exec.ExecutionID).
		Msgf("%s: %d scenarios, %d passed, %d failed, %d skipped", ec, counts.Total, counts.Passed, counts.Failed, counts.Skipped)
	return nil
}

// resolveByName links untagged scenarios to the test case of the same
// name. Ambiguous names stay unlinked.
func (a *Aggregator) resolveByName(ctx context.Context, exec *types.TestExecution, results []types.TestResult) {
	var byName map[string][]string
	for i := range results {
		if results[i].TestCaseID != "" {
			continue
		}
		if byName == nil {
			cases, err := a.Store.ListTestCases(ctx, exec.ProjectID, exec.EntityName)
			if err != nil {
				log.Warn().Err(err).Str("execution", exec.ExecutionID).Msg("listing test cases for name matching")
				return
			}
			byName = map[string][]string{}
			for _, tc := range cases {
				if tc.Status == types.CaseDeprecated {
					continue
				}
				key := strings.ToLower(strings.TrimSpace(tc.Name))
				byName[key] = append(byName[key], tc.TestCaseID)
			}
		}
		ids := byName[strings.ToLower(strings.TrimSpace(results[i].ScenarioName))]
		switch len(ids) {
		case 1:
			results[i].TestCaseID = ids[0]
		case 0:
		default:
			log.Warn().Str("execution", exec.ExecutionID).
				Msgf("scenario %q matches %d test cases, not linking", results[i].ScenarioName, len(ids))
		}
	}
}
