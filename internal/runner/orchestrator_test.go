package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ii/api-test-harness/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productFeature = `Feature: Product

  @TC-ECOM-PRODUCT-1 @smoke
  Scenario: Create a product
    Given the API is up
    When I POST a product
    Then the response status is 201

  @TC-ECOM-PRODUCT-2
  Scenario: Get a missing product
    When I GET product 999
    Then the response status is 404
`

const passedReport = `[{"uri":"features/product.feature","name":"Product","elements":[
 {"name":"Create a product","type":"scenario","line":4,"tags":[{"name":"@TC-ECOM-PRODUCT-1"}],
  "steps":[{"keyword":"Given ","name":"the API is up","result":{"status":"passed","duration":1000000}}]}]}]`

type execRecord struct {
	mu       sync.Mutex
	created  []string
	statuses []types.ExecutionStatus
}

func (s *execRecord) CreateExecution(_ context.Context, e *types.TestExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, e.ExecutionID)
	s.statuses = append(s.statuses, e.Status)
	return nil
}

func (s *execRecord) UpdateExecution(_ context.Context, e *types.TestExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, e.Status)
	return nil
}

type fakeSpawner struct {
	report string
	err    error
	spec   ProcessSpec
	lines  []string
}

func (f *fakeSpawner) Run(spec ProcessSpec, onLine LineFunc) (int, error) {
	f.spec = spec
	for _, l := range f.lines {
		onLine("stdout", l)
	}
	if f.report != "" {
		for _, kv := range spec.Env {
			if path := strings.TrimPrefix(kv, "REPORT_PATH="); path != kv {
				if err := os.WriteFile(path, []byte(f.report), 0o644); err != nil {
					return -1, err
				}
			}
		}
	}
	if f.err != nil {
		return 1, f.err
	}
	return 0, nil
}

// formatSpawner writes its report where a cucumber runner would: to the
// json: target of --format, resolved against the working directory. The
// scenario is named after the execution so reports can be told apart.
type formatSpawner struct {
	// gate, when set, holds every run until all of them have started.
	gate *sync.WaitGroup
}

func (f formatSpawner) Run(spec ProcessSpec, _ LineFunc) (int, error) {
	var target, id string
	for i, a := range spec.Args {
		if a == "--format" && i+1 < len(spec.Args) {
			target = strings.TrimPrefix(spec.Args[i+1], "json:")
		}
	}
	for _, kv := range spec.Env {
		if v, ok := strings.CutPrefix(kv, "EXECUTION_ID="); ok {
			id = v
		}
	}
	if f.gate != nil {
		f.gate.Done()
		f.gate.Wait()
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(spec.Dir, target)
	}
	report := `[{"uri":"features/product.feature","name":"Product","elements":[{"name":"` + id +
		`","type":"scenario","line":4,"steps":[{"keyword":"Given ","name":"x","result":{"status":"passed","duration":1}}]}]}]`
	if err := os.WriteFile(target, []byte(report), 0o644); err != nil {
		return -1, err
	}
	return 0, nil
}

type handlerFunc func(ctx context.Context, ec *ExecutionContext, exec *types.TestExecution, features []types.CukeFeatureJSON) error

func (f handlerFunc) HandleReport(ctx context.Context, ec *ExecutionContext, exec *types.TestExecution, features []types.CukeFeatureJSON) error {
	return f(ctx, ec, exec, features)
}

type recordingListener struct {
	mu       sync.Mutex
	started  int
	progress []string
	finished []types.ExecutionStatus
}

func (l *recordingListener) Started(*ExecutionContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
}

func (l *recordingListener) Progress(_ *ExecutionContext, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, line)
}

func (l *recordingListener) Finished(_ *ExecutionContext, e *types.TestExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, e.Status)
}

func newTestOrchestrator(t *testing.T, sp Spawner, handlers ...ReportHandler) (*Orchestrator, *types.Project, *execRecord, *recordingListener) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "features"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "features", "product.feature"), []byte(productFeature), 0o644))

	store := &execRecord{}
	listener := &recordingListener{}
	cfg := DefaultConfig()
	cfg.Settle = 10 * time.Millisecond
	o := NewOrchestrator(store, cfg, listener, handlers...)
	o.Spawner = sp
	p := &types.Project{ID: "p1", Path: dir, Section: "ecom"}
	return o, p, store, listener
}

func waitRun(t *testing.T, run *Run) *types.TestExecution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := run.Wait(ctx)
	require.NoError(t, err)
	return exec
}

func TestStartCompletes(t *testing.T) {
	var got []types.CukeFeatureJSON
	sp := &fakeSpawner{report: passedReport, lines: []string{"noise", ".", "1 scenario (1 passed)"}}
	o, p, store, listener := newTestOrchestrator(t, sp, handlerFunc(func(_ context.Context, ec *ExecutionContext, exec *types.TestExecution, features []types.CukeFeatureJSON) error {
		got = features
		assert.Equal(t, types.ExecutionCompleted, exec.Status)
		return errors.New("handler errors are only logged")
	}))

	run, err := o.Start(context.Background(), p, Request{Entity: "Product"})
	require.NoError(t, err)
	exec := waitRun(t, run)

	assert.Equal(t, types.ExecutionCompleted, exec.Status)
	assert.NotNil(t, exec.CompletedAt)
	require.Len(t, got, 1)
	assert.Equal(t, "Create a product", got[0].Elements[0].Name)

	assert.Equal(t, []string{run.ID()}, store.created)
	assert.Equal(t, []types.ExecutionStatus{types.ExecutionPending, types.ExecutionRunning, types.ExecutionCompleted}, store.statuses)
	assert.Equal(t, 1, listener.started)
	assert.Equal(t, []string{".", "1 scenario (1 passed)"}, listener.progress)
	assert.Equal(t, []types.ExecutionStatus{types.ExecutionCompleted}, listener.finished)

	assert.Equal(t, "npx", sp.spec.Args[0])
	assert.Contains(t, sp.spec.Args, filepath.Join("features", "product.feature"))
	assert.Equal(t, p.Path, sp.spec.Dir)
	assert.Contains(t, sp.spec.Env, "EXECUTION_ID="+run.ID())
}

func TestStartRunnerFailureKeepsResults(t *testing.T) {
	calls := 0
	sp := &fakeSpawner{report: passedReport, err: &types.RunnerProcessError{ExitCode: 1, Err: errors.New("1 failed")}}
	o, p, _, _ := newTestOrchestrator(t, sp, handlerFunc(func(_ context.Context, _ *ExecutionContext, _ *types.TestExecution, features []types.CukeFeatureJSON) error {
		calls++
		assert.Len(t, features, 1)
		return nil
	}))

	run, err := o.Start(context.Background(), p, Request{Entity: "product"})
	require.NoError(t, err)
	exec := waitRun(t, run)
	assert.Equal(t, types.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "1 failed")
	assert.Equal(t, 1, calls)
}

func TestStartMissingReport(t *testing.T) {
	var got []types.CukeFeatureJSON
	called := false
	o, p, _, _ := newTestOrchestrator(t, &fakeSpawner{}, handlerFunc(func(_ context.Context, _ *ExecutionContext, _ *types.TestExecution, features []types.CukeFeatureJSON) error {
		called, got = true, features
		return nil
	}))

	run, err := o.Start(context.Background(), p, Request{})
	require.NoError(t, err)
	exec := waitRun(t, run)
	assert.Equal(t, types.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "report")
	assert.True(t, called)
	assert.Nil(t, got)
}

func TestStartIgnoresSharedReport(t *testing.T) {
	o, p, _, _ := newTestOrchestrator(t, &fakeSpawner{})
	stale := o.Layout.ReportPath(p)
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte(passedReport), 0o644))

	run, err := o.Start(context.Background(), p, Request{Entity: "product"})
	require.NoError(t, err)
	exec := waitRun(t, run)
	assert.Equal(t, types.ExecutionFailed, exec.Status)
}

func TestStartMissingAsset(t *testing.T) {
	o, p, store, _ := newTestOrchestrator(t, &fakeSpawner{})
	_, err := o.Start(context.Background(), p, Request{Entity: "order"})
	var missing *types.AssetMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "order", missing.Entity)
	assert.Empty(t, store.created)
}

func TestStartUnmatchedFilters(t *testing.T) {
	o, p, store, _ := newTestOrchestrator(t, &fakeSpawner{})
	_, err := o.Start(context.Background(), p, Request{
		Entity:  "product",
		Filters: types.Filters{Tags: []string{"@nope"}},
	})
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	require.NotNil(t, verr.Inventory)
	assert.Equal(t, []string{"Create a product", "Get a missing product"}, verr.Inventory.Scenarios)
	assert.Contains(t, verr.Inventory.Tags, "@smoke")
	assert.Empty(t, store.created)
}

func TestStartMatchingFilters(t *testing.T) {
	sp := &fakeSpawner{report: passedReport}
	o, p, _, _ := newTestOrchestrator(t, sp)
	run, err := o.Start(context.Background(), p, Request{
		Entity:  "product",
		Filters: types.Filters{Tags: []string{"smoke", "@x or @y"}, SpecificScenario: "create a product"},
	})
	require.NoError(t, err)
	waitRun(t, run)
	assert.Contains(t, sp.spec.Args, "@smoke")
	assert.Contains(t, sp.spec.Args, "@x or @y")
	assert.Contains(t, sp.spec.Args, "--name")
}

func TestRunWaitHonoursContext(t *testing.T) {
	run := &Run{Context: &ExecutionContext{ExecutionID: "x"}, done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := run.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartRelativeProjectPath(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Join("proj", "features"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("proj", "features", "product.feature"), []byte(productFeature), 0o644))

	var got []types.CukeFeatureJSON
	o := NewOrchestrator(&execRecord{}, DefaultConfig(), nil, handlerFunc(func(_ context.Context, _ *ExecutionContext, _ *types.TestExecution, features []types.CukeFeatureJSON) error {
		got = features
		return nil
	}))
	o.Config.Settle = 10 * time.Millisecond
	o.Spawner = formatSpawner{}
	p := &types.Project{ID: "p1", Path: "./proj", Section: "ecom"}

	run, err := o.Start(context.Background(), p, Request{Entity: "product"})
	require.NoError(t, err)
	exec := waitRun(t, run)

	assert.Equal(t, types.ExecutionCompleted, exec.Status, exec.ErrorMessage)
	require.Len(t, got, 1)
	assert.Equal(t, run.ID(), got[0].Elements[0].Name)
	assert.True(t, filepath.IsAbs(run.Context.ReportPath))
	assert.NoDirExists(t, filepath.Join("proj", "proj"))
}

func TestOverlappingRunsReadOwnReports(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	gate := &sync.WaitGroup{}
	gate.Add(2)
	o, p, _, _ := newTestOrchestrator(t, formatSpawner{gate: gate}, handlerFunc(func(_ context.Context, ec *ExecutionContext, _ *types.TestExecution, features []types.CukeFeatureJSON) error {
		mu.Lock()
		defer mu.Unlock()
		if len(features) == 1 {
			seen[ec.ExecutionID] = features[0].Elements[0].Name
		}
		return nil
	}))

	a, err := o.Start(context.Background(), p, Request{Entity: "product"})
	require.NoError(t, err)
	b, err := o.Start(context.Background(), p, Request{Entity: "product"})
	require.NoError(t, err)
	waitRun(t, a)
	waitRun(t, b)

	assert.NotEqual(t, a.Context.ReportPath, b.Context.ReportPath)
	assert.Equal(t, map[string]string{a.ID(): a.ID(), b.ID(): b.ID()}, seen)
}
