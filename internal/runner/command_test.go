package runner

import (
	"testing"

	"github.com/ii/api-test-harness/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestInvocationArgs(t *testing.T) {
	inv := Invocation{
		Base:       []string{"npx", "cucumber-js"},
		Targets:    []string{"features/product.feature"},
		ReportPath: "/tmp/r.json",
		Tags:       []string{"smoke", "@TC-ECOM-PRODUCT-1", "@a or @b"},
		Scenarios:  []string{"Create a product"},
		Retries:    2,
		Parallel:   true,
		Workers:    4,
	}
	assert.Equal(t, []string{
		"npx", "cucumber-js", "features/product.feature",
		"--format", "json:/tmp/r.json",
		"--tags", "@smoke",
		"--tags", "@TC-ECOM-PRODUCT-1",
		"--tags", "@a or @b",
		"--name", "Create a product",
		"--retry", "2",
		"--parallel", "4",
	}, inv.Args())
}

func TestInvocationArgsSequential(t *testing.T) {
	args := Invocation{Base: []string{"cucumber-js"}, Parallel: true, Workers: 1}.Args()
	assert.Equal(t, []string{"cucumber-js", "--retry", "0"}, args)
}

func TestNamePattern(t *testing.T) {
	assert.Equal(t, "", namePattern(nil))
	assert.Equal(t, `Get \(by id\)`, namePattern([]string{"Get (by id)"}))
	assert.Equal(t, `^(?:A|B\.c)$`, namePattern([]string{"A", "B.c"}))
}

func TestEnvironment(t *testing.T) {
	ec := &ExecutionContext{
		ExecutionID: "e-1",
		Project:     &types.Project{ID: "p1", BaseURL: "http://api"},
		Request: Request{
			Entity:      "product",
			Environment: "staging",
			Workers:     3,
			Filters: types.Filters{
				Method:           "POST",
				TestType:         "negative",
				Tags:             []string{"@a", "@b"},
				SpecificScenario: "x",
			},
		},
		ReportPath: "/r.json",
	}
	env := Environment([]string{"PATH=/bin"}, ec, 30000, 1)
	assert.Equal(t, "PATH=/bin", env[0])
	for _, kv := range []string{
		"EXECUTION_ID=e-1", "PROJECT_ID=p1", "BASE_URL=http://api", "ENTITY=product",
		"METHOD=POST", "TEST_TYPE=negative", "TAGS=@a,@b", "SCENARIO=x",
		"TEST_ENV=staging", "TIMEOUT=30000", "RETRIES=1", "WORKERS=3",
		"PARALLEL=false", "REPORT_PATH=/r.json",
	} {
		assert.Contains(t, env, kv)
	}
}
