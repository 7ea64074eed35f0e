package suite

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/runner"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string]*types.TestSuite

func (m memStore) GetSuite(_ context.Context, id string) (*types.TestSuite, error) {
	s, ok := m[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *s
	return &cp, nil
}

func (m memStore) UpdateSuite(_ context.Context, s *types.TestSuite) error {
	cp := *s
	m[s.SuiteID] = &cp
	return nil
}

type doneHandle struct {
	id   string
	exec *types.TestExecution
}

func (h doneHandle) ID() string { return h.id }

func (h doneHandle) Wait(context.Context) (*types.TestExecution, error) { return h.exec, nil }

type fakeExecutor struct {
	requests []runner.Request
	outcomes map[string]*types.TestExecution
}

func (f *fakeExecutor) execute(_ context.Context, _ *types.Project, req runner.Request) (Handle, error) {
	f.requests = append(f.requests, req)
	exec, ok := f.outcomes[req.Entity]
	if !ok {
		return nil, &types.AssetMissingError{Entity: req.Entity, Path: "features/" + req.Entity + ".feature"}
	}
	return doneHandle{id: "exec-" + req.Entity, exec: exec}, nil
}

func newRollup() (*Rollup, memStore, *fakeExecutor) {
	store := memStore{
		"set-product": {SuiteID: "set-product", ProjectID: "p1", Kind: types.TestSet, Name: "Products",
			EntityName: "product", TestCases: []types.SuiteItem{{ID: "TC-E-P-1", Name: "Create product"}, {ID: "TC-E-P-2", Name: "Get product"}}},
		"set-order": {SuiteID: "set-order", ProjectID: "p1", Kind: types.TestSet, Name: "Orders",
			EntityName: "order", TestCases: []types.SuiteItem{{ID: "TC-E-O-1", Name: "Place order"}}},
		"set-empty": {SuiteID: "set-empty", ProjectID: "p1", Kind: types.TestSet, Name: "Empty"},
		"plan": {SuiteID: "plan", ProjectID: "p1", Kind: types.TestPlan, Name: "Release",
			TestSets: []types.SuiteItem{{ID: "set-product"}, {ID: "set-order"}}},
		"plan-empty": {SuiteID: "plan-empty", ProjectID: "p1", Kind: types.TestPlan, Name: "Nothing"},
	}
	ex := &fakeExecutor{outcomes: map[string]*types.TestExecution{
		"product": {ExecutionID: "exec-product", Status: types.ExecutionCompleted, TotalScenarios: 2, PassedScenarios: 2, ExecutionTime: 40},
		"order":   {ExecutionID: "exec-order", Status: types.ExecutionFailed, TotalScenarios: 1, FailedScenarios: 1, ExecutionTime: 10},
	}}
	r := &Rollup{
		Store:    store,
		Projects: project.NewStatic([]*types.Project{{ID: "p1"}}),
		Execute:  ex.execute,
	}
	return r, store, ex
}

func TestLoadRejectsEmptySuites(t *testing.T) {
	r, _, _ := newRollup()
	var verr *types.ValidationError

	_, _, err := r.Load(context.Background(), "set-empty", types.TestSet)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "no test cases")

	_, _, err = r.Load(context.Background(), "plan-empty", types.TestPlan)
	require.True(t, errors.As(err, &verr))

	_, _, err = r.Load(context.Background(), "plan", types.TestSet)
	require.True(t, errors.As(err, &verr))

	_, _, err = r.Load(context.Background(), "missing", types.TestSet)
	assert.Error(t, err)
}

func TestRunSet(t *testing.T) {
	r, store, ex := newRollup()
	s, p, err := r.Load(context.Background(), "set-product", types.TestSet)
	require.NoError(t, err)

	res, err := r.RunSet(context.Background(), p, s)
	require.NoError(t, err)
	assert.Equal(t, types.Results{Total: 2, Passed: 2, TimeMs: 40}, res)

	require.Len(t, ex.requests, 1)
	assert.Equal(t, "product", ex.requests[0].Entity)
	assert.Equal(t, "Create product,Get product", ex.requests[0].Filters.SpecificScenario)

	saved := store["set-product"]
	assert.Equal(t, types.SuitePassed, saved.Status)
	assert.Equal(t, 2, saved.Passed)
	assert.NotNil(t, saved.LastRun)
	var logs []SetLog
	require.NoError(t, json.Unmarshal([]byte(saved.ExecutionLogs), &logs))
	assert.Equal(t, "exec-product", logs[0].ExecutionID)
}

func TestRunPlanSequentialRollup(t *testing.T) {
	r, store, ex := newRollup()
	plan, p, err := r.Load(context.Background(), "plan", types.TestPlan)
	require.NoError(t, err)

	res, err := r.RunPlan(context.Background(), p, plan)
	require.NoError(t, err)
	assert.Equal(t, types.Results{Total: 3, Passed: 2, Failed: 1, TimeMs: 50}, res)
	assert.Equal(t, []string{"product", "order"}, []string{ex.requests[0].Entity, ex.requests[1].Entity})

	saved := store["plan"]
	assert.Equal(t, types.SuiteFailed, saved.Status)
	assert.Equal(t, 3, saved.Total)
	assert.Equal(t, types.SuiteFailed, store["set-order"].Status)
	assert.Equal(t, types.SuitePassed, store["set-product"].Status)

	var logs []SetLog
	require.NoError(t, json.Unmarshal([]byte(saved.ExecutionLogs), &logs))
	require.Len(t, logs, 2)
	assert.Equal(t, "set-order", logs[1].SuiteID)
}

func TestRunPlanRecordsSetErrors(t *testing.T) {
	r, store, ex := newRollup()
	delete(ex.outcomes, "order")
	store["plan"].TestSets = append(store["plan"].TestSets, types.SuiteItem{ID: "set-gone"})
	plan, p, err := r.Load(context.Background(), "plan", types.TestPlan)
	require.NoError(t, err)

	res, err := r.RunPlan(context.Background(), p, plan)
	assert.Error(t, err)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, types.SuiteFailed, store["plan"].Status)
	assert.Equal(t, types.SuiteFailed, store["set-order"].Status)
}

type importStore struct{ memStore }

func (m importStore) InsertSuite(_ context.Context, s *types.TestSuite) error {
	cp := *s
	m.memStore[s.SuiteID] = &cp
	return nil
}

func TestImportDefinitions(t *testing.T) {
	defs, err := ParseDefinitions(strings.NewReader(`
suites:
  - id: set-create
    project: ecom
    kind: set
    entity: product
    scenarios: [Create product, " Get product "]
  - id: release
    project: ecom
    kind: plan
    name: Release
    sets: [set-create]
`))
	require.NoError(t, err)
	require.Len(t, defs.Suites, 2)

	store := importStore{memStore{
		"release": {SuiteID: "release", Kind: types.TestPlan, Status: types.SuitePassed, Total: 4},
	}}
	created, updated, err := Import(context.Background(), store, defs)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)

	set := store.memStore["set-create"]
	assert.Equal(t, types.SuiteIdle, set.Status)
	assert.Equal(t, []types.SuiteItem{{ID: "Create product", Name: "Create product"}, {ID: "Get product", Name: "Get product"}}, set.TestCases)

	plan := store.memStore["release"]
	assert.Equal(t, "Release", plan.Name)
	assert.Equal(t, 4, plan.Total)
	assert.Len(t, plan.TestSets, 1)
}

func TestParseDefinitionsRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"no entity":   "suites:\n  - {id: s, project: p, kind: set}\n",
		"bad kind":    "suites:\n  - {id: s, project: p, kind: batch}\n",
		"no project":  "suites:\n  - {id: s, kind: plan}\n",
		"unknown key": "suites:\n  - {id: s, project: p, kind: plan, owner: me}\n",
	} {
		_, err := ParseDefinitions(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}
