package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Definition is one test set or test plan as written in a suites file.
type Definition struct {
	ID        string   `yaml:"id"`
	Project   string   `yaml:"project"`
	Kind      string   `yaml:"kind"`
	Name      string   `yaml:"name"`
	Entity    string   `yaml:"entity,omitempty"`
	Scenarios []string `yaml:"scenarios,omitempty"`
	Sets      []string `yaml:"sets,omitempty"`
}

type Definitions struct {
	Suites []Definition `yaml:"suites"`
}

// ImportStore is the persistence Import needs.
type ImportStore interface {
	GetSuite(ctx context.Context, suiteID string) (*types.TestSuite, error)
	InsertSuite(ctx context.Context, s *types.TestSuite) error
	UpdateSuite(ctx context.Context, s *types.TestSuite) error
}

func LoadDefinitions(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseDefinitions(f)
}

func ParseDefinitions(r io.Reader) (*Definitions, error) {
	var defs Definitions
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing suites: %w", err)
	}
	for i, d := range defs.Suites {
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("suites[%d]: %w", i, err)
		}
	}
	return &defs, nil
}

func (d Definition) validate() error {
	if d.ID == "" || d.Project == "" {
		return errors.New("id and project are required")
	}
	switch types.SuiteKind(d.Kind) {
	case types.TestSet:
		if d.Entity == "" {
			return fmt.Errorf("test set %s needs an entity", d.ID)
		}
	case types.TestPlan:
	default:
		return fmt.Errorf("%s: unknown kind %q", d.ID, d.Kind)
	}
	return nil
}

func itemsOf(names []string) []types.SuiteItem {
	var out []types.SuiteItem
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, types.SuiteItem{ID: n, Name: n})
		}
	}
	return out
}

// Suite converts d into a stored suite. Counters start empty.
func (d Definition) Suite() *types.TestSuite {
	s := &types.TestSuite{
		SuiteID:    d.ID,
		ProjectID:  d.Project,
		Kind:       types.SuiteKind(d.Kind),
		Name:       d.Name,
		EntityName: d.Entity,
		Status:     types.SuiteIdle,
	}
	if s.Name == "" {
		s.Name = d.ID
	}
	if s.Kind == types.TestSet {
		s.TestCases = itemsOf(d.Scenarios)
	} else {
		s.TestSets = itemsOf(d.Sets)
	}
	return s
}

// Import writes every definition, replacing the membership of suites that
// already exist and keeping their last results.
func Import(ctx context.Context, store ImportStore, defs *Definitions) (created, updated int, err error) {
	for _, d := range defs.Suites {
		s := d.Suite()
		existing, gerr := store.GetSuite(ctx, s.SuiteID)
		if gerr != nil {
			if err = store.InsertSuite(ctx, s); err != nil {
				return created, updated, fmt.Errorf("inserting suite %s: %w", s.SuiteID, err)
			}
			created++
			continue
		}
		if existing.Kind != s.Kind {
			return created, updated, &types.ValidationError{Msg: fmt.Sprintf("suite %s is a %s, not a %s", s.SuiteID, existing.Kind, s.Kind)}
		}
		existing.Name, existing.EntityName = s.Name, s.EntityName
		existing.TestCases, existing.TestSets = s.TestCases, s.TestSets
		if err = store.UpdateSuite(ctx, existing); err != nil {
			return created, updated, fmt.Errorf("updating suite %s: %w", s.SuiteID, err)
		}
		updated++
	}
	log.Info().Msgf("Imported suites: %d created, %d updated", created, updated)
	return created, updated, nil
}
