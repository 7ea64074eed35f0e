// Package bugs files a defect for every failed scenario of an execution.
package bugs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ii/api-test-harness/internal/parser"
	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/registry"
	"github.com/ii/api-test-harness/internal/results"
	"github.com/ii/api-test-harness/internal/runner"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog/log"
)

type Store interface {
	BugIDs(ctx context.Context, projectID, prefix string) ([]string, error)
	InsertBug(ctx context.Context, b *types.Bug) error
	GetBug(ctx context.Context, projectID, bugID string) (*types.Bug, error)
	UpdateBugStatus(ctx context.Context, b *types.Bug) error
}

// Synthesizer is a runner.ReportHandler. It must run after the results
// aggregator so that exec.Results is populated.
type Synthesizer struct {
	Store Store
	Now   func() time.Time
}

var _ runner.ReportHandler = (*Synthesizer)(nil)

func NewSynthesizer(store Store) *Synthesizer {
	return &Synthesizer{Store: store}
}

func (s *Synthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Prefix returns the identifier prefix of bugs filed against entity.
// Section and entity collapse into one token when they are equal.
func Prefix(section, entity string) string {
	section, entity = strings.ToUpper(section), strings.ToUpper(entity)
	if entity == "" || entity == section {
		return fmt.Sprintf("BUG-%s-", section)
	}
	return fmt.Sprintf("BUG-%s-%s-", section, entity)
}

func (s *Synthesizer) HandleReport(ctx context.Context, ec *runner.ExecutionContext, exec *types.TestExecution, features []types.CukeFeatureJSON) error {
	rs := exec.Results
	if rs == nil && len(features) > 0 {
		rs = results.Build(exec.ExecutionID, features, s.now())
	}
	seq := registry.NewSequence(s.Store.BugIDs, ec.Project.ID)
	var filed, failed int
	for i := range rs {
		if rs[i].Status != types.StatusFailed {
			continue
		}
		b := FromResult(ec.Project, exec, &rs[i])
		if err := s.file(ctx, seq, b); err != nil {
			failed++
			log.Error().Err(err).Str("execution", exec.ExecutionID).Str("testCase", b.TestCaseID).
				Msgf("filing bug for %q", rs[i].ScenarioName)
			continue
		}
		filed++
		log.Info().Str("execution", exec.ExecutionID).Str("testCase", b.TestCaseID).
			Msgf("filed %s (%s) for %q", b.BugID, b.Severity, b.TestCaseName)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d bugs could not be filed", failed, failed+filed)
	}
	return nil
}

// Create files a bug raised by hand. Missing classification fields are
// derived from the error message.
func (s *Synthesizer) Create(ctx context.Context, p *types.Project, b *types.Bug) error {
	if b.Title == "" {
		return &types.ValidationError{Msg: "bug title is required"}
	}
	b.ProjectID = p.ID
	if b.Section == "" {
		b.Section = project.Section(p)
	}
	b.EntityName = strings.ToUpper(b.EntityName)
	classify(b, "")
	return s.file(ctx, registry.NewSequence(s.Store.BugIDs, p.ID), b)
}

// Transition moves a stored bug to next.
func (s *Synthesizer) Transition(ctx context.Context, projectID, bugID string, next types.BugStatus) (*types.Bug, error) {
	b, err := s.Store.GetBug(ctx, projectID, bugID)
	if err != nil {
		return nil, err
	}
	if err := b.Transition(next); err != nil {
		return nil, &types.ValidationError{Msg: err.Error()}
	}
	if err := s.Store.UpdateBugStatus(ctx, b); err != nil {
		return nil, &types.PersistenceError{Op: "update bug " + bugID, Err: err}
	}
	return b, nil
}

func (s *Synthesizer) file(ctx context.Context, seq *registry.Sequence, b *types.Bug) error {
	n, err := seq.Next(ctx, Prefix(b.Section, b.EntityName))
	if err != nil {
		return err
	}
	now := s.now()
	b.BugID = fmt.Sprintf("%s%d", Prefix(b.Section, b.EntityName), n)
	if b.Status == "" {
		b.Status = types.BugOpen
	}
	b.CreatedAt, b.UpdatedAt = now, now
	if err := s.Store.InsertBug(ctx, b); err != nil {
		return &types.PersistenceError{Op: "insert bug " + b.BugID, Err: err}
	}
	return nil
}

// FromResult builds an unnumbered bug for a failed scenario.
func FromResult(p *types.Project, exec *types.TestExecution, r *types.TestResult) *types.Bug {
	b := &types.Bug{
		ProjectID:    p.ID,
		Section:      project.Section(p),
		EntityName:   strings.ToUpper(exec.EntityName),
		TestCaseID:   r.TestCaseID,
		TestCaseName: r.ScenarioName,
		ExecutionID:  exec.ExecutionID,
		ErrorMessage: firstLine(r.ErrorMessage),
		ErrorStack:   r.ErrorMessage,
	}
	if section, entity, _, ok := parser.ParseMarkerTag("@" + r.TestCaseID); ok {
		b.Section, b.EntityName = section, entity
	}
	classify(b, r.ScenarioName)
	b.Title = fmt.Sprintf("%s in %q", b.ErrorType, r.ScenarioName)
	b.Description = describe(exec, r)
	return b
}

func classify(b *types.Bug, scenario string) {
	msg := b.ErrorStack
	if msg == "" {
		msg = b.ErrorMessage
	}
	if b.ErrorType == "" {
		b.ErrorType = ErrorType(msg)
	}
	if b.ErrorCode == "" {
		b.ErrorCode = ErrorCode(msg)
	}
	if scenario == "" {
		scenario = b.TestCaseName
	}
	if b.Severity == "" {
		b.Severity = Severity(b.ErrorType, scenario, msg)
	}
	if b.Priority == "" {
		b.Priority = Priority(b.Severity)
	}
	if b.Type == "" {
		b.Type = BugType(b.ErrorType)
	}
}

func describe(exec *types.TestExecution, r *types.TestResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scenario %q failed in execution %s", r.ScenarioName, exec.ExecutionID)
	if r.FeatureURI != "" {
		fmt.Fprintf(&sb, " (%s:%d)", r.FeatureURI, r.Line)
	}
	sb.WriteString(".\n")
	for _, st := range r.Steps {
		if st.Status == types.StatusFailed {
			fmt.Fprintf(&sb, "Failing step: %s %s\n", st.Keyword, st.StepName)
			break
		}
	}
	if exec.Environment != "" {
		fmt.Fprintf(&sb, "Environment: %s\n", exec.Environment)
	}
	return strings.TrimSpace(sb.String())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
