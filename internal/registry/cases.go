// Package registry keeps the test-case and step index in line with the
// feature and step files, which are the source of truth.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ii/api-test-harness/internal/parser"
	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog/log"
)

// SyncReport counts what one entity sync did.
type SyncReport struct {
	Entity    string
	Path      string
	Skipped   bool
	Created   []string
	Updated   []string
	Retired   []string
	Unchanged int
	Deleted   int64
	Failed    int
}

func (r *SyncReport) String() string {
	if r.Skipped {
		return fmt.Sprintf("%s: skipped, no feature file", r.Entity)
	}
	return fmt.Sprintf("%s: %d created, %d updated, %d retired, %d unchanged, %d failed",
		r.Entity, len(r.Created), len(r.Updated), len(r.Retired), r.Unchanged, r.Failed)
}

type ResyncOptions struct {
	// Rebuild deletes every test case and step of the entity and
	// recreates the cases from the file, dropping last-run history.
	Rebuild bool
}

type CaseSync struct {
	Store  CaseStore
	Steps  StepStore
	Files  project.FileStore
	Layout project.Layout
	Now    func() time.Time
}

func (s *CaseSync) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// load reads and grammar-checks an entity's feature file. A missing file
// returns ok=false and no error.
func (s *CaseSync) load(p *types.Project, entity string) (path, content string, ok bool, err error) {
	path = s.Layout.FeaturePath(p, entity)
	if !s.Files.Exists(path) {
		log.Warn().Str("entity", entity).Msgf("feature file %s not found, skipping", path)
		return path, "", false, nil
	}
	b, err := s.Files.ReadFile(path)
	if err != nil {
		return path, "", false, &types.ParseError{Path: path, Err: err}
	}
	if _, err := parser.ParseFeature(path, string(b)); err != nil {
		return path, "", false, err
	}
	return path, string(b), true, nil
}

// ResolveAndRegister replaces every @TC-...-Number placeholder of the
// entity's feature file with a fresh number, writes the file back and
// inserts one test case per resolved marker. It never touches existing
// rows.
func (s *CaseSync) ResolveAndRegister(ctx context.Context, p *types.Project, entity types.Entity) (*SyncReport, error) {
	path, content, ok, err := s.load(p, entity.Name)
	report := &SyncReport{Entity: entity.Name, Path: path, Skipped: !ok && err == nil}
	if !ok {
		return report, err
	}
	section := project.Section(p)
	markers := parser.ScanMarkers(content, parser.MarkerFilter{Section: section, Entity: entity.Name})
	if len(markers) == 0 {
		log.Debug().Str("entity", entity.Name).Msg("no placeholder markers to resolve")
		return report, nil
	}

	// numbers already written into the file count even when their rows
	// are gone, so a retired number is never handed out again
	floor := 0
	for _, m := range parser.ScanMarkers(content, parser.MarkerFilter{Section: section, Entity: entity.Name, Resolved: true}) {
		if m.Number > floor {
			floor = m.Number
		}
	}
	first, err := NextNumber(ctx, s.Store.TestCaseIDs, p.ID, TestCasePrefix(section, entity.Name), floor)
	if err != nil {
		return report, &types.PersistenceError{Op: "allocate test case ids", Err: err}
	}

	rewritten := parser.ResolvePlaceholders(content, markers, first)
	if err := s.Files.WriteFile(path, []byte(rewritten)); err != nil {
		return report, &types.PersistenceError{Op: "write " + path, Err: err}
	}
	log.Info().Str("entity", entity.Name).Msgf("resolved %d markers in %s starting at %d", len(markers), path, first)

	for i := range markers {
		tc := s.newCase(p, section, entity, &markers[i])
		if err := s.Store.InsertTestCase(ctx, tc); err != nil {
			log.Err(err).Str("testCase", tc.TestCaseID).Msg("could not register test case")
			report.Failed++
			continue
		}
		report.Created = append(report.Created, tc.TestCaseID)
	}
	return report, nil
}

// Resync reconciles the index with the resolved markers of the entity's
// feature file. Missing cases are inserted, cases whose marker vanished
// are deprecated and changed cases are rewritten; execution history is
// kept. With opts.Rebuild the entity is wiped and recreated instead.
func (s *CaseSync) Resync(ctx context.Context, p *types.Project, entity types.Entity, opts ResyncOptions) (*SyncReport, error) {
	path, content, ok, err := s.load(p, entity.Name)
	report := &SyncReport{Entity: entity.Name, Path: path, Skipped: !ok && err == nil}
	if !ok {
		return report, err
	}
	section := project.Section(p)
	markers := parser.ScanMarkers(content, parser.MarkerFilter{Section: section, Entity: entity.Name, Resolved: true})

	if opts.Rebuild {
		return s.rebuild(ctx, p, section, entity, markers, report)
	}

	existing, err := s.Store.ListTestCases(ctx, p.ID, entity.Name)
	if err != nil {
		return report, &types.PersistenceError{Op: "list test cases", Err: err}
	}
	byID := make(map[string]*types.TestCase, len(existing))
	for i := range existing {
		byID[existing[i].TestCaseID] = &existing[i]
	}

	seen := map[string]bool{}
	for i := range markers {
		want := s.newCase(p, section, entity, &markers[i])
		if seen[want.TestCaseID] {
			log.Warn().Str("testCase", want.TestCaseID).Msgf("duplicate marker on line %d, keeping the first", markers[i].Line+1)
			continue
		}
		seen[want.TestCaseID] = true

		have, found := byID[want.TestCaseID]
		switch {
		case !found:
			if err := s.Store.InsertTestCase(ctx, want); err != nil {
				log.Err(err).Str("testCase", want.TestCaseID).Msg("could not register test case")
				report.Failed++
				continue
			}
			report.Created = append(report.Created, want.TestCaseID)
		case have.SameContent(want):
			report.Unchanged++
		default:
			want.LastRun = have.LastRun
			want.LastRunStatus = have.LastRunStatus
			want.CreatedAt = have.CreatedAt
			if err := s.Store.UpdateTestCase(ctx, want); err != nil {
				log.Err(err).Str("testCase", want.TestCaseID).Msg("could not update test case")
				report.Failed++
				continue
			}
			report.Updated = append(report.Updated, want.TestCaseID)
		}
	}

	for i := range existing {
		tc := &existing[i]
		if seen[tc.TestCaseID] || tc.Status == types.CaseDeprecated {
			continue
		}
		tc.Status = types.CaseDeprecated
		tc.UpdatedAt = s.now()
		if err := s.Store.UpdateTestCase(ctx, tc); err != nil {
			log.Err(err).Str("testCase", tc.TestCaseID).Msg("could not retire test case")
			report.Failed++
			continue
		}
		report.Retired = append(report.Retired, tc.TestCaseID)
	}
	log.Info().Str("entity", entity.Name).Msg(report.String())
	return report, nil
}

func (s *CaseSync) rebuild(ctx context.Context, p *types.Project, section string, entity types.Entity, markers []parser.Marker, report *SyncReport) (*SyncReport, error) {
	n, err := s.Store.DeleteTestCases(ctx, p.ID, entity.Name)
	if err != nil {
		return report, &types.PersistenceError{Op: "delete test cases", Err: err}
	}
	report.Deleted = n
	if s.Steps != nil {
		if _, err := s.Steps.DeleteTestSteps(ctx, p.ID, entity.Name); err != nil {
			return report, &types.PersistenceError{Op: "delete test steps", Err: err}
		}
	}
	seen := map[string]bool{}
	for i := range markers {
		tc := s.newCase(p, section, entity, &markers[i])
		if seen[tc.TestCaseID] {
			continue
		}
		seen[tc.TestCaseID] = true
		if err := s.Store.InsertTestCase(ctx, tc); err != nil {
			log.Err(err).Str("testCase", tc.TestCaseID).Msg("could not register test case")
			report.Failed++
			continue
		}
		report.Created = append(report.Created, tc.TestCaseID)
	}
	log.Info().Str("entity", entity.Name).Msgf("rebuilt: %d deleted, %s", n, report)
	return report, nil
}

func (s *CaseSync) newCase(p *types.Project, section string, entity types.Entity, m *parser.Marker) *types.TestCase {
	now := s.now()
	return &types.TestCase{
		TestCaseID: m.TestCaseID(),
		ProjectID:  p.ID,
		Section:    section,
		EntityName: entity.Name,
		Name:       m.ScenarioName,
		Tags:       m.Tags,
		Method:     parser.MethodFromScenario(m.ScenarioName, entity.Methods),
		TestType:   types.TestType(parser.TestTypeFromScenario(m.ScenarioName)),
		Scenario:   m.StepsText,
		Status:     types.CaseActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasPlaceholders reports whether the entity's feature file still holds
// unresolved markers.
func (s *CaseSync) HasPlaceholders(p *types.Project, entity string) bool {
	path := s.Layout.FeaturePath(p, entity)
	b, err := s.Files.ReadFile(path)
	if err != nil {
		return false
	}
	markers := parser.ScanMarkers(string(b), parser.MarkerFilter{Section: project.Section(p), Entity: entity})
	return len(markers) > 0
}

// IsParseError reports whether err means the artifact itself was bad.
func IsParseError(err error) bool {
	var perr *types.ParseError
	return errors.As(err, &perr)
}
