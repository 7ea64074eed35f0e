// Package runner drives the external BDD runner: it validates a request,
// builds the command line, runs it as a subprocess and hands the
// structured report to the registered handlers.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ii/api-test-harness/internal/events"
	"github.com/ii/api-test-harness/internal/types"
)

// Request is what a caller asks to run. Zero values fall back to the
// orchestrator configuration.
type Request struct {
	Entity      string
	Filters     types.Filters
	Environment string
	Retries     *int
	Workers     int
	Parallel    bool
}

// ExecutionContext travels with one execution through every callback.
// Nothing about a running execution lives in package state.
type ExecutionContext struct {
	ExecutionID string
	Project     *types.Project
	Request     Request
	ReportPath  string
	Args        []string
	Env         []string
	StartedAt   time.Time
}

func (ec *ExecutionContext) String() string {
	entity := ec.Request.Entity
	if entity == "" {
		entity = "*"
	}
	return fmt.Sprintf("%s[%s/%s]", ec.ExecutionID, ec.Project.ID, entity)
}

// Listener observes the lifecycle of executions.
type Listener interface {
	Started(ec *ExecutionContext)
	Progress(ec *ExecutionContext, line string)
	Finished(ec *ExecutionContext, exec *types.TestExecution)
}

// ReportHandler consumes the parsed report once the runner exited.
// features is nil when the report could not be read.
type ReportHandler interface {
	HandleReport(ctx context.Context, ec *ExecutionContext, exec *types.TestExecution, features []types.CukeFeatureJSON) error
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, e *types.TestExecution) error
	UpdateExecution(ctx context.Context, e *types.TestExecution) error
}

// EventListener turns lifecycle callbacks into events.
type EventListener struct {
	Emitter events.Emitter
}

func (l EventListener) event(ec *ExecutionContext, t events.Type, msg string) events.Event {
	return events.Event{
		Type:        t,
		ExecutionID: ec.ExecutionID,
		ProjectID:   ec.Project.ID,
		Entity:      ec.Request.Entity,
		Message:     msg,
		Time:        time.Now(),
	}
}

func (l EventListener) Started(ec *ExecutionContext) {
	l.Emitter.Emit(l.event(ec, events.Started, fmt.Sprintf("execution %s started", ec)))
}

func (l EventListener) Progress(ec *ExecutionContext, line string) {
	l.Emitter.Emit(l.event(ec, events.Progress, line))
}

func (l EventListener) Finished(ec *ExecutionContext, exec *types.TestExecution) {
	t := events.Completed
	if exec.Status != types.ExecutionCompleted {
		t = events.Failed
	}
	e := l.event(ec, t, fmt.Sprintf("execution %s %s: %d scenarios, %d passed, %d failed",
		ec, exec.Status, exec.TotalScenarios, exec.PassedScenarios, exec.FailedScenarios))
	e.Status = string(exec.Status)
	l.Emitter.Emit(e)
}
