package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ii/api-test-harness/internal/types"
)

func (s *SQLiteRepository) CreateExecution(ctx context.Context, e *types.TestExecution) error {
	_, err := s.db.ExecContext(ctx, InsertExecutionSQL,
		e.ExecutionID, e.ProjectID, e.EntityName, toJSON(e.Filters), e.Environment, string(e.Status),
		nullTime(e.StartedAt), nullTime(e.CompletedAt), e.TotalScenarios, e.PassedScenarios,
		e.FailedScenarios, e.SkippedScenarios, e.ExecutionTime, e.ErrorMessage)
	return mapErr(err)
}

func (s *SQLiteRepository) UpdateExecution(ctx context.Context, e *types.TestExecution) error {
	res, err := s.db.ExecContext(ctx, UpdateExecutionSQL,
		string(e.Status), nullTime(e.StartedAt), nullTime(e.CompletedAt), e.TotalScenarios,
		e.PassedScenarios, e.FailedScenarios, e.SkippedScenarios, e.ExecutionTime, e.ErrorMessage,
		e.ExecutionID)
	return expectOne(res, err, ErrNotExists)
}

func scanExecution(row scanner) (*types.TestExecution, error) {
	var (
		e         types.TestExecution
		filters   string
		status    string
		started   sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(&e.ExecutionID, &e.ProjectID, &e.EntityName, &filters, &e.Environment, &status,
		&started, &completed, &e.TotalScenarios, &e.PassedScenarios, &e.FailedScenarios,
		&e.SkippedScenarios, &e.ExecutionTime, &e.ErrorMessage)
	if err != nil {
		return nil, err
	}
	fromJSON(filters, &e.Filters)
	e.Status = types.ExecutionStatus(status)
	e.StartedAt = timePtr(started)
	e.CompletedAt = timePtr(completed)
	return &e, nil
}

// GetExecution loads an execution together with its results.
func (s *SQLiteRepository) GetExecution(ctx context.Context, executionID string) (*types.TestExecution, error) {
	e, err := scanExecution(s.db.QueryRowContext(ctx, GetExecutionSQL, executionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotExists
	}
	if err != nil {
		return nil, err
	}
	if e.Results, err = s.queryResults(ctx, ResultsForExecutionSQL, executionID); err != nil {
		return nil, err
	}
	return e, nil
}

// ListExecutions returns executions of one entity, or every execution of
// the project when entity is empty. Results are not loaded.
func (s *SQLiteRepository) ListExecutions(ctx context.Context, projectID, entity string) ([]types.TestExecution, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if entity == "" {
		rows, err = s.db.QueryContext(ctx, ListProjectExecutionSQL, projectID)
	} else {
		rows, err = s.db.QueryContext(ctx, ListExecutionsSQL, projectID, entity)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.TestExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// SaveResults replaces the results of an execution in one transaction.
func (s *SQLiteRepository) SaveResults(ctx context.Context, executionID string, results []types.TestResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, DeleteResultsSQL, executionID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, InsertResultSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range results {
		r := &results[i]
		res, err := stmt.ExecContext(ctx, executionID, r.TestCaseID, r.ScenarioName, r.FeatureURI, r.Line,
			toJSON(r.Tags), string(r.Status), r.Duration, toJSON(r.Steps), r.ErrorMessage, r.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("saving result %q: %w", r.ScenarioName, mapErr(err))
		}
		if id, err := res.LastInsertId(); err == nil {
			r.ID = id
		}
		r.ExecutionID = executionID
	}
	return tx.Commit()
}

func (s *SQLiteRepository) ResultsForTestCase(ctx context.Context, projectID, testCaseID string) ([]types.TestResult, error) {
	return s.queryResults(ctx, ResultsForTestCaseSQL, projectID, testCaseID)
}

func (s *SQLiteRepository) queryResults(ctx context.Context, query string, args ...interface{}) ([]types.TestResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.TestResult
	for rows.Next() {
		var (
			r       types.TestResult
			tags    string
			status  string
			steps   string
			created sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.TestCaseID, &r.ScenarioName, &r.FeatureURI, &r.Line,
			&tags, &status, &r.Duration, &steps, &r.ErrorMessage, &created); err != nil {
			return nil, err
		}
		fromJSON(tags, &r.Tags)
		fromJSON(steps, &r.Steps)
		r.Status = types.ResultStatus(status)
		r.CreatedAt = created.Time
		out = append(out, r)
	}
	return out, rows.Err()
}
