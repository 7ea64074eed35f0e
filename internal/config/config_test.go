package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
database: /var/lib/harness/index.db
suites: suites.yaml
runner:
  command: npx cucumber-js --profile ci
  features: specs
  report: out/report.json
  environment: staging
  timeout: 45000
  retries: 2
  workers: 4
  parallel: true
  settle: 500ms
projects:
  - id: ecom
    name: E-Commerce
    path: ./projects/ecom
    baseUrl: http://localhost:8080
    section: ECOM
    entities:
      - name: product
        methods: [POST, get, PATCH]
      - name: order
  - id: crm
    path: ./projects/crm
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/harness/index.db", c.Database)
	assert.Equal(t, "suites.yaml", c.Suites)
	assert.Equal(t, "npx cucumber-js --profile ci", c.Runner.Command)
	assert.Equal(t, "staging", c.Runner.Environment)
	assert.Equal(t, 45*time.Second, c.Runner.Timeout)
	assert.Equal(t, 2, c.Runner.Retries)
	assert.Equal(t, 4, c.Runner.Workers)
	assert.True(t, c.Runner.Parallel)
	assert.Equal(t, 500*time.Millisecond, c.Runner.Settle)

	assert.Equal(t, "specs", c.Layout.Features)
	assert.Equal(t, "out/report.json", c.Layout.Report)
	assert.Equal(t, "features/step_definitions", c.Layout.Steps)

	require.Len(t, c.Projects, 2)
	p := c.Projects[0]
	assert.Equal(t, "ecom", p.ID)
	assert.Equal(t, "E-Commerce", p.Name)
	assert.Equal(t, "http://localhost:8080", p.BaseURL)
	assert.Equal(t, "ECOM", p.Section)
	require.Len(t, p.Entities, 2)
	assert.Equal(t, []string{"POST", "GET", "PATCH"}, p.Entities[0].Methods)
	assert.Equal(t, "order", p.Entities[1].Name)
	assert.Empty(t, p.Entities[1].Methods)
	assert.Equal(t, "crm", c.Projects[1].ID)
	assert.Empty(t, c.Projects[1].Entities)
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse(strings.NewReader("database: x.db\n"))
	require.NoError(t, err)
	d := Default()
	assert.Equal(t, "x.db", c.Database)
	assert.Equal(t, d.Runner, c.Runner)
	assert.Equal(t, d.Layout, c.Layout)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse(strings.NewReader("runner:\n  retries: many\n"))
	assert.ErrorContains(t, err, "runner.retries")

	_, err = Parse(strings.NewReader("runner:\n  parallel: perhaps\n"))
	assert.ErrorContains(t, err, "runner.parallel")

	_, err = Parse(strings.NewReader("projects:\n  - name: nameless\n"))
	assert.ErrorContains(t, err, "id is required")
}

func TestParseRejectsUnmarkableNames(t *testing.T) {
	_, err := Parse(strings.NewReader("projects:\n  - id: ecom\n    entities:\n      - name: user-profile\n"))
	assert.ErrorContains(t, err, `entity "user-profile"`)

	_, err = Parse(strings.NewReader("projects:\n  - id: ecom\n    section: E.COM\n"))
	assert.ErrorContains(t, err, `section "E.COM"`)

	c, err := Parse(strings.NewReader("projects:\n  - id: ecom\n    entities:\n      - name: user_profile\n"))
	require.NoError(t, err)
	assert.Equal(t, "user_profile", c.Projects[0].Entities[0].Name)
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	c, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Projects, 2)
	assert.True(t, Exists(path))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--db", "other.db", "--retries", "3", "--parallel"}))

	c, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	o.Apply(c)
	assert.Equal(t, "other.db", c.Database)
	assert.Equal(t, 3, c.Runner.Retries)
	assert.True(t, c.Runner.Parallel)
	assert.Equal(t, 4, c.Runner.Workers)
	assert.Equal(t, "staging", c.Runner.Environment)
}
