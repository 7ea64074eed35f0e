// Package config reads the harness configuration file. Command line
// flags override file values.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/runner"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/kylelemons/go-gypsy/yaml"
	"github.com/spf13/pflag"
)

// identToken is what a section or entity may contain to appear in a
// TC-{SECTION}-{ENTITY}-{N} marker.
var identToken = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type Config struct {
	Database string
	Suites   string
	Runner   runner.Config
	Layout   project.Layout
	Projects []*types.Project
}

func Default() *Config {
	return &Config{
		Database: "harness.db",
		Runner:   runner.DefaultConfig(),
		Layout:   project.DefaultLayout(),
	}
}

// Load reads path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := yaml.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return fromFile(f)
}

func Parse(r io.Reader) (*Config, error) {
	node, err := yaml.Parse(r)
	if err != nil {
		return nil, err
	}
	return fromFile(&yaml.File{Root: node})
}

type reader struct {
	f   *yaml.File
	err error
}

func missing(err error) bool {
	var nf *yaml.NodeNotFound
	var tm *yaml.NodeTypeMismatch
	return errors.As(err, &nf) || errors.As(err, &tm)
}

func (r *reader) str(spec string, dst *string) {
	v, err := r.f.Get(spec)
	if err != nil {
		if !missing(err) && r.err == nil {
			r.err = fmt.Errorf("%s: %w", spec, err)
		}
		return
	}
	*dst = strings.TrimSpace(v)
}

func (r *reader) int(spec string, dst *int) {
	var s string
	r.str(spec, &s)
	if s == "" {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%s: %q is not an integer", spec, s)
		}
		return
	}
	*dst = n
}

func (r *reader) bool(spec string, dst *bool) {
	var s string
	r.str(spec, &s)
	if s == "" {
		return
	}
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		*dst = true
	case "false", "no", "off", "0":
		*dst = false
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%s: %q is not a boolean", spec, s)
		}
	}
}

func (r *reader) duration(spec string, dst *time.Duration) {
	var s string
	r.str(spec, &s)
	if s == "" {
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%s: %w", spec, err)
		}
		return
	}
	*dst = d
}

func (r *reader) count(spec string) int {
	n, err := r.f.Count(spec)
	if err != nil {
		return 0
	}
	return n
}

func fromFile(f *yaml.File) (*Config, error) {
	c := Default()
	r := &reader{f: f}
	r.str("database", &c.Database)
	r.str("suites", &c.Suites)

	r.str("runner.command", &c.Runner.Command)
	r.str("runner.environment", &c.Runner.Environment)
	timeoutMs := int(c.Runner.Timeout.Milliseconds())
	r.int("runner.timeout", &timeoutMs)
	c.Runner.Timeout = time.Duration(timeoutMs) * time.Millisecond
	r.int("runner.retries", &c.Runner.Retries)
	r.int("runner.workers", &c.Runner.Workers)
	r.bool("runner.parallel", &c.Runner.Parallel)
	r.duration("runner.settle", &c.Runner.Settle)

	r.str("runner.features", &c.Layout.Features)
	r.str("runner.steps", &c.Layout.Steps)
	r.str("runner.stepsSuffix", &c.Layout.StepsSuffix)
	r.str("runner.report", &c.Layout.Report)

	for i := 0; i < r.count("projects"); i++ {
		key := fmt.Sprintf("projects[%d]", i)
		p := &types.Project{}
		r.str(key+".id", &p.ID)
		r.str(key+".name", &p.Name)
		r.str(key+".path", &p.Path)
		r.str(key+".baseUrl", &p.BaseURL)
		r.str(key+".section", &p.Section)
		if p.ID == "" {
			return nil, fmt.Errorf("%s: id is required", key)
		}
		if p.Section != "" && !identToken.MatchString(p.Section) {
			return nil, fmt.Errorf("%s: section %q can only hold letters, digits and underscores", key, p.Section)
		}
		for j := 0; j < r.count(key+".entities"); j++ {
			ekey := fmt.Sprintf("%s.entities[%d]", key, j)
			var e types.Entity
			var methods string
			r.str(ekey+".name", &e.Name)
			r.str(ekey+".methods", &methods)
			e.Methods = splitList(methods)
			if e.Name == "" {
				return nil, fmt.Errorf("%s: name is required", ekey)
			}
			if !identToken.MatchString(e.Name) {
				return nil, fmt.Errorf("%s: entity %q can only hold letters, digits and underscores", ekey, e.Name)
			}
			p.Entities = append(p.Entities, e)
		}
		c.Projects = append(c.Projects, p)
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func splitList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Overrides holds the flags that can replace file values.
type Overrides struct {
	fs       *pflag.FlagSet
	database *string
	command  *string
	env      *string
	timeout  *time.Duration
	retries  *int
	workers  *int
	parallel *bool
}

func BindFlags(fs *pflag.FlagSet) *Overrides {
	d := Default()
	return &Overrides{
		fs:       fs,
		database: fs.String("db", d.Database, "path of the sqlite index"),
		command:  fs.String("runner", d.Runner.Command, "base command that runs the feature files"),
		env:      fs.StringP("env", "e", d.Runner.Environment, "test environment exported as TEST_ENV"),
		timeout:  fs.Duration("timeout", d.Runner.Timeout, "step timeout exported as TIMEOUT"),
		retries:  fs.Int("retries", d.Runner.Retries, "retries passed to the runner"),
		workers:  fs.Int("workers", d.Runner.Workers, "parallel workers passed to the runner"),
		parallel: fs.Bool("parallel", d.Runner.Parallel, "run scenarios in parallel"),
	}
}

// Apply copies every flag the user set onto c.
func (o *Overrides) Apply(c *Config) {
	if o.fs.Changed("db") {
		c.Database = *o.database
	}
	if o.fs.Changed("runner") {
		c.Runner.Command = *o.command
	}
	if o.fs.Changed("env") {
		c.Runner.Environment = *o.env
	}
	if o.fs.Changed("timeout") {
		c.Runner.Timeout = *o.timeout
	}
	if o.fs.Changed("retries") {
		c.Runner.Retries = *o.retries
	}
	if o.fs.Changed("workers") {
		c.Runner.Workers = *o.workers
	}
	if o.fs.Changed("parallel") {
		c.Runner.Parallel = *o.parallel
	}
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
