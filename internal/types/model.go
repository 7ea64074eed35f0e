package types

import (
	"fmt"
	"strings"
	"time"
)

type TestType string

const (
	Positive TestType = "positive"
	Negative TestType = "negative"
	EdgeCase TestType = "edge-case"
)

type CaseStatus string

const (
	CaseDraft      CaseStatus = "draft"
	CaseActive     CaseStatus = "active"
	CaseDeprecated CaseStatus = "deprecated"
)

// ResultStatus is the outcome of a scenario or a step.
type ResultStatus string

const (
	StatusPassed    ResultStatus = "passed"
	StatusFailed    ResultStatus = "failed"
	StatusSkipped   ResultStatus = "skipped"
	StatusUndefined ResultStatus = "undefined"
	StatusPending   ResultStatus = "pending"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Final reports whether no further transition is possible.
func (s ExecutionStatus) Final() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

type SuiteKind string

const (
	TestSet  SuiteKind = "set"
	TestPlan SuiteKind = "plan"
)

type SuiteStatus string

const (
	SuiteIdle    SuiteStatus = "idle"
	SuiteRunning SuiteStatus = "running"
	SuitePassed  SuiteStatus = "passed"
	SuiteFailed  SuiteStatus = "failed"
	SuiteSkipped SuiteStatus = "skipped"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type BugStatus string

const (
	BugOpen       BugStatus = "open"
	BugInProgress BugStatus = "in-progress"
	BugResolved   BugStatus = "resolved"
	BugClosed     BugStatus = "closed"
	BugReopened   BugStatus = "reopened"
)

var bugTransitions = map[BugStatus][]BugStatus{
	BugOpen:       {BugInProgress, BugResolved, BugClosed},
	BugInProgress: {BugResolved, BugOpen},
	BugResolved:   {BugClosed, BugReopened},
	BugClosed:     {BugReopened},
	BugReopened:   {BugInProgress, BugResolved, BugClosed},
}

// Project is the slice of a workspace the engine needs.
type Project struct {
	ID       string
	Name     string
	Path     string
	BaseURL  string
	Section  string
	Entities []Entity
}

// Entity looks up a declared entity by name, case-insensitively.
func (p *Project) Entity(name string) (Entity, bool) {
	for _, e := range p.Entities {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entity{}, false
}

type Entity struct {
	Name    string
	Methods []string
}

type TestCase struct {
	TestCaseID    string
	ProjectID     string
	Section       string
	EntityName    string
	Name          string
	Tags          []string
	Method        string
	TestType      TestType
	Scenario      string
	Status        CaseStatus
	LastRun       *time.Time
	LastRunStatus ResultStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SameContent reports whether two cases describe the same scenario,
// ignoring execution history and timestamps.
func (tc *TestCase) SameContent(o *TestCase) bool {
	return tc.Name == o.Name &&
		strings.Join(tc.Tags, " ") == strings.Join(o.Tags, " ") &&
		tc.Method == o.Method &&
		tc.TestType == o.TestType &&
		tc.Scenario == o.Scenario &&
		tc.Status == o.Status
}

type StepParameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TestStep struct {
	StepID         string
	ProjectID      string
	Section        string
	EntityName     string
	Name           string
	Type           string
	Definition     string
	Implementation string
	Parameters     []StepParameter
	Status         CaseStatus
	CreatedAt      time.Time
}

// Filters narrows a runner invocation.
type Filters struct {
	Method           string   `json:"method,omitempty"`
	TestType         string   `json:"testType,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	SpecificScenario string   `json:"specificScenario,omitempty"`
}

// Scenarios splits SpecificScenario into the individual names a test set
// passes comma-joined.
func (f Filters) Scenarios() []string {
	var names []string
	for _, n := range strings.Split(f.SpecificScenario, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

type TestExecution struct {
	ExecutionID      string
	ProjectID        string
	EntityName       string
	Filters          Filters
	Environment      string
	Status           ExecutionStatus
	StartedAt        *time.Time
	CompletedAt      *time.Time
	TotalScenarios   int
	PassedScenarios  int
	FailedScenarios  int
	SkippedScenarios int
	ExecutionTime    int64
	ErrorMessage     string
	Results          []TestResult
}

// Rollup returns the execution counters as a Results value.
func (e *TestExecution) Rollup() Results {
	return Results{
		Total:   e.TotalScenarios,
		Passed:  e.PassedScenarios,
		Failed:  e.FailedScenarios,
		Skipped: e.SkippedScenarios,
		TimeMs:  e.ExecutionTime,
	}
}

type StepOutcome struct {
	StepName     string       `json:"stepName"`
	Keyword      string       `json:"keyword"`
	Status       ResultStatus `json:"status"`
	Duration     float64      `json:"duration"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	IsHook       bool         `json:"isHook"`
	HookType     string       `json:"hookType,omitempty"`
}

type TestResult struct {
	ID           int64
	ExecutionID  string
	TestCaseID   string
	ScenarioName string
	FeatureURI   string
	Line         int
	Tags         []string
	Status       ResultStatus
	Duration     float64
	Steps        []StepOutcome
	ErrorMessage string
	CreatedAt    time.Time
}

// SuiteItem is a denormalized reference to a test case or a test set.
type SuiteItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TestSuite struct {
	SuiteID       string
	ProjectID     string
	Kind          SuiteKind
	Name          string
	EntityName    string
	TestCases     []SuiteItem
	TestSets      []SuiteItem
	Status        SuiteStatus
	Total         int
	Passed        int
	Failed        int
	Skipped       int
	ExecutionTime int64
	ExecutionLogs string
	LastRun       *time.Time
}

// Apply stores a rollup on the suite counters.
func (s *TestSuite) Apply(r Results) {
	s.Total = r.Total
	s.Passed = r.Passed
	s.Failed = r.Failed
	s.Skipped = r.Skipped
	s.ExecutionTime = r.TimeMs
	s.Status = r.Status()
}

type Bug struct {
	BugID        string
	ProjectID    string
	Section      string
	EntityName   string
	Title        string
	Description  string
	Severity     Severity
	Type         string
	Priority     string
	Status       BugStatus
	ErrorMessage string
	ErrorType    string
	ErrorCode    string
	ErrorStack   string
	TestCaseID   string
	TestCaseName string
	ExecutionID  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transition moves the bug to next, rejecting moves the workflow does
// not allow.
func (b *Bug) Transition(next BugStatus) error {
	for _, allowed := range bugTransitions[b.Status] {
		if allowed == next {
			b.Status = next
			b.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("bug %s cannot move from %s to %s", b.BugID, b.Status, next)
}
