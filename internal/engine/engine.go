// Package engine is the asynchronous surface of the harness. Requests are
// validated synchronously and the work itself runs in the background.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ii/api-test-harness/internal/bugs"
	"github.com/ii/api-test-harness/internal/events"
	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/registry"
	"github.com/ii/api-test-harness/internal/results"
	"github.com/ii/api-test-harness/internal/runner"
	"github.com/ii/api-test-harness/internal/suite"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/ii/api-test-harness/internal/utils"
	"github.com/rs/zerolog/log"
)

// Store is everything the engine keeps in the index.
type Store interface {
	registry.CaseStore
	registry.StepStore
	runner.ExecutionStore
	results.Store
	bugs.Store
	suite.Store
}

type SyncMode string

const (
	// SyncAuto resolves placeholders when the file has any, then
	// reconciles.
	SyncAuto      SyncMode = "auto"
	SyncResolve   SyncMode = "resolve"
	SyncReconcile SyncMode = "reconcile"
	SyncRebuild   SyncMode = "rebuild"
)

var syncModes = []SyncMode{SyncAuto, SyncResolve, SyncReconcile, SyncRebuild}

type Options struct {
	Runner  runner.Config
	Layout  project.Layout
	Files   project.FileStore
	Spawner runner.Spawner
	Emitter events.Emitter
}

type Service struct {
	Projects     project.Lookup
	Cases        *registry.CaseSync
	Steps        *registry.StepSync
	Orchestrator *runner.Orchestrator
	Suites       *suite.Rollup
	Bugs         *bugs.Synthesizer
	Aggregator   *results.Aggregator

	wg sync.WaitGroup
}

func New(store Store, projects project.Lookup, opts Options) *Service {
	if opts.Files == nil {
		opts.Files = project.OSFiles{}
	}
	if opts.Emitter == nil {
		opts.Emitter = events.LogEmitter{}
	}
	s := &Service{
		Projects:   projects,
		Cases:      &registry.CaseSync{Store: store, Steps: store, Files: opts.Files, Layout: opts.Layout},
		Steps:      &registry.StepSync{Store: store, Files: opts.Files, Layout: opts.Layout},
		Aggregator: results.NewAggregator(store),
		Bugs:       bugs.NewSynthesizer(store),
	}
	// aggregation fills exec.Results, which bug synthesis reads
	s.Orchestrator = runner.NewOrchestrator(store, opts.Runner, runner.EventListener{Emitter: opts.Emitter}, s.Aggregator, s.Bugs)
	s.Orchestrator.Files = opts.Files
	s.Orchestrator.Layout = opts.Layout
	if opts.Spawner != nil {
		s.Orchestrator.Spawner = opts.Spawner
	}
	s.Suites = &suite.Rollup{Store: store, Projects: projects, Execute: suite.Orchestrated(s.Orchestrator)}
	return s
}

// Wait blocks until every background task has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) goTask(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// entity resolves a declared entity. Projects that declare no entities
// accept any name.
func (s *Service) entity(ctx context.Context, projectID, name string) (*types.Project, types.Entity, error) {
	p, err := s.Projects.Project(ctx, projectID)
	if err != nil {
		return nil, types.Entity{}, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, types.Entity{}, &types.ValidationError{Msg: "entity is required"}
	}
	if e, ok := p.Entity(name); ok {
		return p, e, nil
	}
	if len(p.Entities) > 0 {
		return nil, types.Entity{}, &types.ValidationError{Msg: fmt.Sprintf("project %s has no entity %q", p.ID, name)}
	}
	return p, types.Entity{Name: name}, nil
}

func ParseSyncMode(s string) (SyncMode, error) {
	m := SyncMode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return SyncAuto, nil
	}
	if ok, _ := utils.ItemInSlice(m, syncModes); !ok {
		return "", &types.ValidationError{Msg: fmt.Sprintf("unknown sync mode %q", s)}
	}
	return m, nil
}

// SyncFeatures registers the test cases of one entity in the background.
func (s *Service) SyncFeatures(ctx context.Context, projectID, entityName string, mode SyncMode) (*Task[*registry.SyncReport], error) {
	p, e, err := s.entity(ctx, projectID, entityName)
	if err != nil {
		return nil, err
	}
	if ok, _ := utils.ItemInSlice(mode, syncModes); !ok {
		return nil, &types.ValidationError{Msg: fmt.Sprintf("unknown sync mode %q", mode)}
	}
	t := newTask[*registry.SyncReport]("sync-features")
	bg := context.WithoutCancel(ctx)
	s.goTask(func() {
		report, err := s.syncFeatures(bg, p, e, mode)
		if err != nil {
			log.Error().Err(err).Str("entity", e.Name).Msgf("feature sync (%s) failed", mode)
		} else {
			log.Info().Str("entity", e.Name).Msgf("feature sync (%s): %s", mode, report)
		}
		t.finish(report, err)
	})
	return t, nil
}

func (s *Service) syncFeatures(ctx context.Context, p *types.Project, e types.Entity, mode SyncMode) (*registry.SyncReport, error) {
	switch mode {
	case SyncResolve:
		return s.Cases.ResolveAndRegister(ctx, p, e)
	case SyncReconcile:
		return s.Cases.Resync(ctx, p, e, registry.ResyncOptions{})
	case SyncRebuild:
		return s.Cases.Resync(ctx, p, e, registry.ResyncOptions{Rebuild: true})
	}
	if s.Cases.HasPlaceholders(p, e.Name) {
		resolved, err := s.Cases.ResolveAndRegister(ctx, p, e)
		if err != nil {
			return resolved, err
		}
		report, err := s.Cases.Resync(ctx, p, e, registry.ResyncOptions{})
		if report != nil {
			report.Created = append(resolved.Created, report.Created...)
			report.Failed += resolved.Failed
		}
		return report, err
	}
	return s.Cases.Resync(ctx, p, e, registry.ResyncOptions{})
}

// SyncSteps registers the step definitions of one entity in the
// background.
func (s *Service) SyncSteps(ctx context.Context, projectID, entityName string) (*Task[*registry.StepReport], error) {
	p, e, err := s.entity(ctx, projectID, entityName)
	if err != nil {
		return nil, err
	}
	t := newTask[*registry.StepReport]("sync-steps")
	bg := context.WithoutCancel(ctx)
	s.goTask(func() {
		report, err := s.Steps.Sync(bg, p, e)
		if err != nil {
			log.Error().Err(err).Str("entity", e.Name).Msg("step sync failed")
		} else {
			log.Info().Str("entity", e.Name).Msgf("step sync: %d created, %d existed, %d failed",
				len(report.Created), report.Existed, report.Failed)
		}
		t.finish(report, err)
	})
	return t, nil
}

// Execute starts a run. Validation errors are returned before anything is
// recorded.
func (s *Service) Execute(ctx context.Context, projectID string, req runner.Request) (*runner.Run, error) {
	p, err := s.Projects.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if req.Entity != "" {
		_, e, err := s.entity(ctx, projectID, req.Entity)
		if err != nil {
			return nil, err
		}
		req.Entity = e.Name
	}
	run, err := s.Orchestrator.Start(ctx, p, req)
	if err != nil {
		return nil, err
	}
	s.goTask(func() { <-run.Done() })
	return run, nil
}

// ExecuteTestSet runs a stored test set in the background.
func (s *Service) ExecuteTestSet(ctx context.Context, suiteID string) (*Task[types.Results], error) {
	set, p, err := s.Suites.Load(ctx, suiteID, types.TestSet)
	if err != nil {
		return nil, err
	}
	t := newTask[types.Results]("test-set")
	bg := context.WithoutCancel(ctx)
	s.goTask(func() {
		t.finish(s.Suites.RunSet(bg, p, set))
	})
	return t, nil
}

// ExecuteTestPlan runs the sets of a stored test plan one after another
// in the background.
func (s *Service) ExecuteTestPlan(ctx context.Context, suiteID string) (*Task[types.Results], error) {
	plan, p, err := s.Suites.Load(ctx, suiteID, types.TestPlan)
	if err != nil {
		return nil, err
	}
	t := newTask[types.Results]("test-plan")
	bg := context.WithoutCancel(ctx)
	s.goTask(func() {
		t.finish(s.Suites.RunPlan(bg, p, plan))
	})
	return t, nil
}
