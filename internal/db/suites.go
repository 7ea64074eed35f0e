package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ii/api-test-harness/internal/types"
)

func (s *SQLiteRepository) InsertSuite(ctx context.Context, ts *types.TestSuite) error {
	_, err := s.db.ExecContext(ctx, InsertSuiteSQL,
		ts.SuiteID, ts.ProjectID, string(ts.Kind), ts.Name, ts.EntityName, toJSON(ts.TestCases),
		toJSON(ts.TestSets), string(ts.Status), ts.Total, ts.Passed, ts.Failed, ts.Skipped,
		ts.ExecutionTime, ts.ExecutionLogs, nullTime(ts.LastRun))
	return mapErr(err)
}

func (s *SQLiteRepository) UpdateSuite(ctx context.Context, ts *types.TestSuite) error {
	res, err := s.db.ExecContext(ctx, UpdateSuiteSQL,
		ts.Name, ts.EntityName, toJSON(ts.TestCases), toJSON(ts.TestSets), string(ts.Status), ts.Total,
		ts.Passed, ts.Failed, ts.Skipped, ts.ExecutionTime, ts.ExecutionLogs, nullTime(ts.LastRun),
		ts.SuiteID)
	return expectOne(res, err, ErrNotExists)
}

func scanSuite(row scanner) (*types.TestSuite, error) {
	var (
		ts      types.TestSuite
		kind    string
		cases   string
		sets    string
		status  string
		lastRun sql.NullTime
	)
	err := row.Scan(&ts.SuiteID, &ts.ProjectID, &kind, &ts.Name, &ts.EntityName, &cases, &sets, &status,
		&ts.Total, &ts.Passed, &ts.Failed, &ts.Skipped, &ts.ExecutionTime, &ts.ExecutionLogs, &lastRun)
	if err != nil {
		return nil, err
	}
	ts.Kind = types.SuiteKind(kind)
	ts.Status = types.SuiteStatus(status)
	fromJSON(cases, &ts.TestCases)
	fromJSON(sets, &ts.TestSets)
	ts.LastRun = timePtr(lastRun)
	return &ts, nil
}

func (s *SQLiteRepository) GetSuite(ctx context.Context, suiteID string) (*types.TestSuite, error) {
	ts, err := scanSuite(s.db.QueryRowContext(ctx, GetSuiteSQL, suiteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotExists
	}
	return ts, err
}

func (s *SQLiteRepository) ListSuites(ctx context.Context, projectID string) ([]types.TestSuite, error) {
	rows, err := s.db.QueryContext(ctx, ListSuitesSQL, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.TestSuite
	for rows.Next() {
		ts, err := scanSuite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ts)
	}
	return out, rows.Err()
}
