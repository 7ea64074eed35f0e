package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ii/api-test-harness/internal/types"
)

func (s *SQLiteRepository) BugIDs(ctx context.Context, projectID, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, SelectBugIDsSQL, projectID, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteRepository) InsertBug(ctx context.Context, b *types.Bug) error {
	_, err := s.db.ExecContext(ctx, InsertBugSQL,
		b.ProjectID, b.BugID, b.Section, b.EntityName, b.Title, b.Description, string(b.Severity), b.Type,
		b.Priority, string(b.Status), b.ErrorMessage, b.ErrorType, b.ErrorCode, b.ErrorStack,
		b.TestCaseID, b.TestCaseName, b.ExecutionID, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	return mapErr(err)
}

// UpdateBugStatus persists a status transition; it is the only change a
// bug sees after creation.
func (s *SQLiteRepository) UpdateBugStatus(ctx context.Context, b *types.Bug) error {
	res, err := s.db.ExecContext(ctx, UpdateBugStatusSQL, string(b.Status), time.Now().UTC(), b.ProjectID, b.BugID)
	return expectOne(res, err, ErrNotExists)
}

func scanBug(row scanner) (*types.Bug, error) {
	var (
		b        types.Bug
		severity string
		status   string
		created  sql.NullTime
		updated  sql.NullTime
	)
	err := row.Scan(&b.ProjectID, &b.BugID, &b.Section, &b.EntityName, &b.Title, &b.Description, &severity,
		&b.Type, &b.Priority, &status, &b.ErrorMessage, &b.ErrorType, &b.ErrorCode, &b.ErrorStack,
		&b.TestCaseID, &b.TestCaseName, &b.ExecutionID, &created, &updated)
	if err != nil {
		return nil, err
	}
	b.Severity = types.Severity(severity)
	b.Status = types.BugStatus(status)
	b.CreatedAt = created.Time
	b.UpdatedAt = updated.Time
	return &b, nil
}

func (s *SQLiteRepository) GetBug(ctx context.Context, projectID, bugID string) (*types.Bug, error) {
	b, err := scanBug(s.db.QueryRowContext(ctx, GetBugSQL, projectID, bugID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotExists
	}
	return b, err
}

// ListBugs returns the bugs of a project, or only those raised by one
// execution when executionID is set.
func (s *SQLiteRepository) ListBugs(ctx context.Context, projectID, executionID string) ([]types.Bug, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if executionID != "" {
		rows, err = s.db.QueryContext(ctx, ListExecutionBugsSQL, executionID)
	} else {
		rows, err = s.db.QueryContext(ctx, ListBugsSQL, projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Bug
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
