package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ii/api-test-harness/internal/engine"
	"github.com/ii/api-test-harness/internal/results"
	"github.com/ii/api-test-harness/internal/runner"
	"github.com/ii/api-test-harness/internal/suite"
	"github.com/ii/api-test-harness/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// entities returns the named entity, or every entity the project declares.
func (a *app) entities(ctx context.Context, projectID, entity string) ([]string, error) {
	if entity != "" {
		return []string{entity}, nil
	}
	p, err := a.svc.Projects.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range p.Entities {
		names = append(names, e.Name)
	}
	if len(names) == 0 {
		return nil, &types.ValidationError{Msg: "--entity is required for projects that declare no entities"}
	}
	return names, nil
}

func syncCmd() *cobra.Command {
	var projectID, entity, mode string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Register test cases and step definitions from the project files",
	}
	cmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "project id")
	cmd.PersistentFlags().StringVar(&entity, "entity", "", "entity to sync (default every declared entity)")

	features := &cobra.Command{
		Use:   "features",
		Short: "Number placeholder markers and reconcile the test case index",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			m, err := engine.ParseSyncMode(mode)
			if err != nil {
				return err
			}
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			names, err := a.entities(ctx, id, entity)
			if err != nil {
				return err
			}
			var failed int
			for _, name := range names {
				task, err := a.svc.SyncFeatures(ctx, id, name, m)
				if err != nil {
					return err
				}
				report, err := task.Wait(ctx)
				if err != nil {
					return err
				}
				log.Info().Msgf("%s", report)
				failed += report.Failed
			}
			if failed > 0 {
				return fmt.Errorf("%d test cases could not be registered", failed)
			}
			return nil
		}),
	}
	features.Flags().StringVar(&mode, "mode", string(engine.SyncAuto), "auto, resolve, reconcile or rebuild")

	steps := &cobra.Command{
		Use:   "steps",
		Short: "Register step definitions that are not indexed yet",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			names, err := a.entities(ctx, id, entity)
			if err != nil {
				return err
			}
			for _, name := range names {
				task, err := a.svc.SyncSteps(ctx, id, name)
				if err != nil {
					return err
				}
				report, err := task.Wait(ctx)
				if err != nil {
					return err
				}
				log.Info().Msgf("%s: %d created, %d existed, %d failed", report.Entity, len(report.Created), report.Existed, report.Failed)
			}
			return nil
		}),
	}
	cmd.AddCommand(features, steps)
	return cmd
}

func runCmd() *cobra.Command {
	var (
		projectID string
		req       runner.Request
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the feature files of a project and record the results",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			run, err := a.svc.Execute(ctx, id, req)
			if err != nil {
				return err
			}
			log.Info().Msgf("Started execution %s", run.ID())
			exec, err := run.Wait(ctx)
			if errors.Is(err, context.Canceled) {
				log.Info().Msgf("Waiting for execution %s to finish", run.ID())
				<-run.Done()
				exec, err = run.Wait(context.Background())
			}
			if err != nil {
				return err
			}
			log.Info().Msgf("Execution %s %s: %d scenarios, %d passed, %d failed, %d skipped",
				exec.ExecutionID, exec.Status, exec.TotalScenarios, exec.PassedScenarios, exec.FailedScenarios, exec.SkippedScenarios)
			if exec.Status != types.ExecutionCompleted {
				return fmt.Errorf("execution %s %s", exec.ExecutionID, exec.Status)
			}
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&projectID, "project", "p", "", "project id")
	f.StringVar(&req.Entity, "entity", "", "entity to run (default every feature file)")
	f.StringVar(&req.Filters.Method, "method", "", "only scenarios for this HTTP method")
	f.StringVar(&req.Filters.TestType, "type", "", "only positive or negative scenarios")
	f.StringSliceVar(&req.Filters.Tags, "tags", nil, "tags or a tag expression")
	f.StringVar(&req.Filters.SpecificScenario, "scenario", "", "scenario names, comma separated")
	return cmd
}

func suiteCmd() *cobra.Command {
	var suiteID string
	cmd := &cobra.Command{
		Use:   "suite",
		Short: "Manage and run test sets and test plans",
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Run a test set, or every set of a test plan in order",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			s, err := a.repo.GetSuite(ctx, suiteID)
			if err != nil {
				return fmt.Errorf("suite %s: %w", suiteID, err)
			}
			start := a.svc.ExecuteTestSet
			if s.Kind == types.TestPlan {
				start = a.svc.ExecuteTestPlan
			}
			task, err := start(ctx, suiteID)
			if err != nil {
				return err
			}
			res, err := task.Wait(ctx)
			log.Info().Msgf("%s %s: %d scenarios, %d passed, %d failed, %d skipped",
				s.Kind, suiteID, res.Total, res.Passed, res.Failed, res.Skipped)
			return err
		}),
	}
	run.Flags().StringVar(&suiteID, "id", "", "suite id")
	_ = run.MarkFlagRequired("id")

	imp := &cobra.Command{
		Use:   "import [file]",
		Short: "Create or update suites from a definitions file",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			path := a.cfg.Suites
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return &types.ValidationError{Msg: "no suites file given or configured"}
			}
			defs, err := suite.LoadDefinitions(path)
			if err != nil {
				return err
			}
			_, _, err = suite.Import(ctx, a.repo, defs)
			return err
		}),
	}

	var projectID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the suites of a project",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			suites, err := a.repo.ListSuites(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(suites)
		}),
	}
	list.Flags().StringVarP(&projectID, "project", "p", "", "project id")
	cmd.AddCommand(run, imp, list)
	return cmd
}

func bugsCmd() *cobra.Command {
	var projectID, executionID, bugID, status string
	cmd := &cobra.Command{
		Use:   "bugs",
		Short: "Inspect and triage bugs filed for failed scenarios",
	}
	cmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "project id")

	list := &cobra.Command{
		Use:   "list",
		Short: "List bugs, optionally of one execution",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			found, err := a.repo.ListBugs(ctx, id, executionID)
			if err != nil {
				return err
			}
			return printJSON(found)
		}),
	}
	list.Flags().StringVar(&executionID, "execution", "", "execution id")

	transition := &cobra.Command{
		Use:   "status",
		Short: "Move a bug through its workflow",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			b, err := a.svc.Bugs.Transition(ctx, id, bugID, types.BugStatus(status))
			if err != nil {
				return err
			}
			log.Info().Msgf("%s is now %s", b.BugID, b.Status)
			return nil
		}),
	}
	transition.Flags().StringVar(&bugID, "id", "", "bug id")
	transition.Flags().StringVar(&status, "to", "", "open, in-progress, resolved, closed or reopened")
	_ = transition.MarkFlagRequired("id")
	_ = transition.MarkFlagRequired("to")

	var title, entity, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "File a bug by hand",
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			p, err := a.svc.Projects.Project(ctx, id)
			if err != nil {
				return err
			}
			b := &types.Bug{Title: title, EntityName: entity, Description: description, ErrorMessage: description}
			if err := a.svc.Bugs.Create(ctx, p, b); err != nil {
				return err
			}
			log.Info().Msgf("Filed %s (%s, %s)", b.BugID, b.Severity, b.Priority)
			return nil
		}),
	}
	create.Flags().StringVar(&title, "title", "", "bug title")
	create.Flags().StringVar(&entity, "entity", "", "entity the bug belongs to")
	create.Flags().StringVar(&description, "description", "", "what went wrong")
	_ = create.MarkFlagRequired("title")

	cmd.AddCommand(list, transition, create)
	return cmd
}

func statsCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise recorded results",
	}
	cmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "project id")

	execution := &cobra.Command{
		Use:   "execution <id>",
		Short: "Scenario and step statistics of one execution",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			exec, err := a.repo.GetExecution(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(results.ExecutionStats(exec.Results))
		}),
	}

	testCase := &cobra.Command{
		Use:   "case <test-case-id>",
		Short: "Run history of one test case",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			rs, err := a.repo.ResultsForTestCase(ctx, id, args[0])
			if err != nil {
				return err
			}
			return printJSON(results.CaseHistory(args[0], rs))
		}),
	}

	entity := &cobra.Command{
		Use:   "entity <name>",
		Short: "Rollup of every finished execution of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			id, err := a.defaultProject(projectID)
			if err != nil {
				return err
			}
			execs, err := a.repo.ListExecutions(ctx, id, args[0])
			if err != nil {
				return err
			}
			return printJSON(results.EntityRollup(args[0], execs))
		}),
	}
	cmd.AddCommand(execution, testCase, entity)
	return cmd
}
