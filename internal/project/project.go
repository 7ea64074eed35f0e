// Package project resolves projects and the files an entity owns.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ii/api-test-harness/internal/types"
)

var ErrNotFound = errors.New("project not found")

// Lookup resolves a project id to its workspace.
type Lookup interface {
	Project(ctx context.Context, id string) (*types.Project, error)
}

// Static is a Lookup backed by the configuration file.
type Static map[string]*types.Project

func NewStatic(projects []*types.Project) Static {
	s := Static{}
	for _, p := range projects {
		s[p.ID] = p
	}
	return s
}

func (s Static) Project(_ context.Context, id string) (*types.Project, error) {
	p, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// FileStore reads and writes project files.
type FileStore interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Exists(path string) bool
	Glob(pattern string) ([]string, error)
	MkdirAll(dir string) error
}

// OSFiles is the FileStore on the local disk.
type OSFiles struct{}

func (OSFiles) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile replaces path atomically, keeping the original mode.
func (OSFiles) WriteFile(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (OSFiles) Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func (OSFiles) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func (OSFiles) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	sort.Strings(matches)
	return matches, err
}

// Layout says where an entity's files live inside a project.
type Layout struct {
	Features    string
	Steps       string
	StepsSuffix string
	Report      string
}

func DefaultLayout() Layout {
	return Layout{
		Features:    "features",
		Steps:       "features/step_definitions",
		StepsSuffix: ".steps.js",
		Report:      "reports/cucumber-report.json",
	}
}

func (l Layout) FeaturesDir(p *types.Project) string {
	return filepath.Join(p.Path, l.Features)
}

func (l Layout) FeaturePath(p *types.Project, entity string) string {
	return filepath.Join(p.Path, l.Features, strings.ToLower(entity)+".feature")
}

func (l Layout) StepsPath(p *types.Project, entity string) string {
	return filepath.Join(p.Path, l.Steps, strings.ToLower(entity)+l.StepsSuffix)
}

func (l Layout) ReportPath(p *types.Project) string {
	if filepath.IsAbs(l.Report) {
		return l.Report
	}
	return filepath.Join(p.Path, l.Report)
}

// ExecutionReportPath is the report file of one execution: the configured
// report name suffixed with the execution id. The path is absolute so the
// runner, started inside the project, writes where the harness reads.
func (l Layout) ExecutionReportPath(p *types.Project, executionID string) string {
	base := l.ReportPath(p)
	ext := filepath.Ext(base)
	path := strings.TrimSuffix(base, ext) + "-" + executionID + ext
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// FeatureGlob matches every feature file of the project.
func (l Layout) FeatureGlob(p *types.Project) string {
	return filepath.Join(p.Path, l.Features, "*.feature")
}

// Section returns the upper-cased identifier section of a project,
// defaulting to its id.
func Section(p *types.Project) string {
	if p.Section != "" {
		return strings.ToUpper(p.Section)
	}
	return strings.ToUpper(p.ID)
}
