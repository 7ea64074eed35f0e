package registry

import (
	"context"
	"time"

	"github.com/ii/api-test-harness/internal/parser"
	"github.com/ii/api-test-harness/internal/project"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog/log"
)

type StepReport struct {
	Entity  string
	Path    string
	Skipped bool
	Created []string
	Existed int
	Failed  int
}

// StepSync registers step definitions. Existing step ids are never
// overwritten.
type StepSync struct {
	Store  StepStore
	Files  project.FileStore
	Layout project.Layout
}

func (s *StepSync) Sync(ctx context.Context, p *types.Project, entity types.Entity) (*StepReport, error) {
	path := s.Layout.StepsPath(p, entity.Name)
	report := &StepReport{Entity: entity.Name, Path: path}
	if !s.Files.Exists(path) {
		log.Warn().Str("entity", entity.Name).Msgf("step file %s not found, skipping", path)
		report.Skipped = true
		return report, nil
	}
	b, err := s.Files.ReadFile(path)
	if err != nil {
		return report, &types.ParseError{Path: path, Err: err}
	}
	defs, err := parser.ParseSteps(path, string(b))
	if err != nil {
		log.Warn().Err(err).Str("entity", entity.Name).Msg("step file partly unreadable")
	}

	section := project.Section(p)
	for i, def := range defs {
		id := parser.FormatStepID(section, entity.Name, i+1)
		exists, err := s.Store.StepExists(ctx, p.ID, id)
		if err != nil {
			log.Err(err).Str("step", id).Msg("could not look up step")
			report.Failed++
			continue
		}
		if exists {
			report.Existed++
			continue
		}
		st := &types.TestStep{
			StepID:         id,
			ProjectID:      p.ID,
			Section:        section,
			EntityName:     entity.Name,
			Name:           def.Pattern,
			Type:           def.Keyword,
			Definition:     def.Header,
			Implementation: def.Implementation,
			Parameters:     def.Parameters,
			Status:         types.CaseActive,
			CreatedAt:      time.Now(),
		}
		if err := s.Store.InsertTestStep(ctx, st); err != nil {
			log.Err(err).Str("step", id).Msg("could not register step")
			report.Failed++
			continue
		}
		report.Created = append(report.Created, id)
	}
	log.Info().Str("entity", entity.Name).Msgf("steps: %d created, %d existing, %d failed", len(report.Created), report.Existed, report.Failed)
	return report, nil
}
