package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/ii/api-test-harness/internal/parser"
	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog/log"
)

// Config holds the defaults every execution starts from.
type Config struct {
	Command     string
	Environment string
	Timeout     time.Duration
	Retries     int
	Workers     int
	Parallel    bool
	// Settle is how long to wait for the report file after the runner
	// exited.
	Settle time.Duration
}

func DefaultConfig() Config {
	return Config{
		Command:     "npx cucumber-js",
		Environment: "development",
		Timeout:     30 * time.Second,
		Retries:     0,
		Workers:     1,
		Settle:      2 * time.Second,
	}
}

var progressLine = regexp.MustCompile(`^(\d+ (scenarios?|steps?) \(|[.FUSP?*\-]+$)`)

// Orchestrator launches executions and tracks them to a final status.
type Orchestrator struct {
	Store    ExecutionStore
	Spawner  Spawner
	Files    project.FileStore
	Layout   project.Layout
	Config   Config
	Listener Listener
	Handlers []ReportHandler
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewOrchestrator(store ExecutionStore, cfg Config, listener Listener, handlers ...ReportHandler) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Spawner:  ExecSpawner{},
		Files:    project.OSFiles{},
		Layout:   project.DefaultLayout(),
		Config:   cfg,
		Listener: listener,
		Handlers: handlers,
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Run is the handle of one background execution.
type Run struct {
	Context *ExecutionContext
	exec    *types.TestExecution
	done    chan struct{}
}

func (r *Run) ID() string { return r.Context.ExecutionID }

// Done is closed once the execution reached a final status.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the execution finished or ctx is done. Cancelling ctx
// does not stop the execution.
func (r *Run) Wait(ctx context.Context) (*types.TestExecution, error) {
	select {
	case <-r.done:
		return r.exec, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start validates req, records a pending execution and launches the runner
// in the background. Validation failures are returned before anything is
// persisted.
func (o *Orchestrator) Start(ctx context.Context, p *types.Project, req Request) (*Run, error) {
	req = o.withDefaults(req)
	targets, err := o.Validate(p, req)
	if err != nil {
		return nil, err
	}
	base, err := shlex.Split(o.Config.Command)
	if err != nil || len(base) == 0 {
		return nil, &types.ValidationError{Msg: fmt.Sprintf("invalid runner command %q", o.Config.Command)}
	}

	id := uuid.NewString()
	ec := &ExecutionContext{
		ExecutionID: id,
		Project:     p,
		Request:     req,
		ReportPath:  o.Layout.ExecutionReportPath(p, id),
	}
	ec.Args = Invocation{
		Base:       base,
		Targets:    targets,
		ReportPath: ec.ReportPath,
		Tags:       req.Filters.Tags,
		Scenarios:  req.Filters.Scenarios(),
		Retries:    *req.Retries,
		Parallel:   req.Parallel,
		Workers:    req.Workers,
	}.Args()
	ec.Env = Environment(os.Environ(), ec, o.Config.Timeout.Milliseconds(), *req.Retries)

	exec := &types.TestExecution{
		ExecutionID: ec.ExecutionID,
		ProjectID:   p.ID,
		EntityName:  req.Entity,
		Filters:     req.Filters,
		Environment: req.Environment,
		Status:      types.ExecutionPending,
	}
	if err := o.Store.CreateExecution(ctx, exec); err != nil {
		return nil, &types.PersistenceError{Op: "create execution", Err: err}
	}

	run := &Run{Context: ec, exec: exec, done: make(chan struct{})}
	go o.execute(context.WithoutCancel(ctx), run)
	return run, nil
}

func (o *Orchestrator) withDefaults(req Request) Request {
	if req.Environment == "" {
		req.Environment = o.Config.Environment
	}
	if req.Retries == nil {
		r := o.Config.Retries
		req.Retries = &r
	}
	if req.Workers <= 0 {
		req.Workers = o.Config.Workers
	}
	if !req.Parallel {
		req.Parallel = o.Config.Parallel
	}
	return req
}

// Validate checks that the request can run and returns the runner targets,
// relative to the project directory.
func (o *Orchestrator) Validate(p *types.Project, req Request) ([]string, error) {
	var paths []string
	if req.Entity != "" {
		path := o.Layout.FeaturePath(p, req.Entity)
		if !o.Files.Exists(path) {
			return nil, &types.AssetMissingError{Entity: req.Entity, Path: path}
		}
		paths = []string{path}
	} else {
		matches, err := o.Files.Glob(o.Layout.FeatureGlob(p))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, &types.AssetMissingError{Entity: "*", Path: o.Layout.FeaturesDir(p)}
		}
		paths = matches
	}

	tags := simpleTags(req.Filters.Tags)
	names := req.Filters.Scenarios()
	if len(tags) > 0 || len(names) > 0 {
		if err := o.checkFilters(paths, tags, names); err != nil {
			return nil, err
		}
	}

	if req.Entity == "" {
		return []string{o.Layout.Features}, nil
	}
	rel, err := filepath.Rel(p.Path, paths[0])
	if err != nil {
		rel = paths[0]
	}
	return []string{rel}, nil
}

func (o *Orchestrator) checkFilters(paths []string, tags, names []string) error {
	inv := &types.Inventory{}
	seenTag := map[string]bool{}
	for _, path := range paths {
		b, err := o.Files.ReadFile(path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFeature(path, string(b))
		if err != nil {
			return err
		}
		if len(f.Match(tags, names)) > 0 {
			return nil
		}
		fi := f.Inventory()
		inv.Scenarios = append(inv.Scenarios, fi.Scenarios...)
		for _, t := range fi.Tags {
			if !seenTag[t] {
				seenTag[t] = true
				inv.Tags = append(inv.Tags, t)
			}
		}
	}
	var crit []string
	if len(tags) > 0 {
		crit = append(crit, "tags "+strings.Join(tags, ","))
	}
	if len(names) > 0 {
		crit = append(crit, "scenario "+strings.Join(names, ","))
	}
	return &types.ValidationError{
		Msg:       fmt.Sprintf("no scenario matches %s", strings.Join(crit, " and ")),
		Inventory: inv,
	}
}

// simpleTags drops tag expressions; only the runner can evaluate those.
func simpleTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" && !isTagExpression(t) {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	ec, exec := run.Context, run.exec
	defer close(run.done)

	started := o.now()
	ec.StartedAt = started
	exec.Status = types.ExecutionRunning
	exec.StartedAt = &started
	o.persist(ctx, exec)
	if o.Listener != nil {
		o.Listener.Started(ec)
	}

	if err := o.Files.MkdirAll(filepath.Dir(ec.ReportPath)); err != nil {
		log.Warn().Err(err).Msgf("creating report directory for %s", ec)
	}

	log.Info().Msgf("execution %s: %s", ec, strings.Join(ec.Args, " "))
	_, runErr := o.Spawner.Run(ProcessSpec{Args: ec.Args, Dir: ec.Project.Path, Env: ec.Env}, func(stream, line string) {
		log.Debug().Str("execution", ec.ExecutionID).Str("stream", stream).Msg(line)
		if o.Listener != nil && progressLine.MatchString(strings.TrimSpace(line)) {
			o.Listener.Progress(ec, strings.TrimSpace(line))
		}
	})

	features, reportErr := o.readReport(ec.ReportPath)
	if reportErr != nil {
		log.Warn().Err(reportErr).Msgf("execution %s has no usable report", ec)
	}

	completed := o.now()
	exec.CompletedAt = &completed
	exec.ExecutionTime = completed.Sub(started).Milliseconds()
	switch {
	case runErr != nil:
		exec.Status = types.ExecutionFailed
		exec.ErrorMessage = runErr.Error()
	case reportErr != nil:
		exec.Status = types.ExecutionFailed
		exec.ErrorMessage = reportErr.Error()
	default:
		exec.Status = types.ExecutionCompleted
	}

	for _, h := range o.Handlers {
		if err := h.HandleReport(ctx, ec, exec, features); err != nil {
			log.Error().Err(err).Msgf("execution %s: report handler failed", ec)
		}
	}
	o.persist(ctx, exec)
	if o.Listener != nil {
		o.Listener.Finished(ec, exec)
	}
}

func (o *Orchestrator) persist(ctx context.Context, exec *types.TestExecution) {
	if err := o.Store.UpdateExecution(ctx, exec); err != nil {
		log.Error().Err(err).Msgf("saving execution %s (%s)", exec.ExecutionID, exec.Status)
	}
}

// readReport waits up to Config.Settle for the report to appear.
func (o *Orchestrator) readReport(path string) ([]types.CukeFeatureJSON, error) {
	deadline := time.Now().Add(o.Config.Settle)
	for !o.Files.Exists(path) && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	b, err := o.Files.ReadFile(path)
	if err != nil {
		return nil, &types.ReportParseError{Path: path, Err: err}
	}
	return parser.DecodeReport(path, b)
}
