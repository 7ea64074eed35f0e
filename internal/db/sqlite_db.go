package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ii/api-test-harness/internal/types"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrDuplicate    = errors.New("Record already exists")
	ErrNotExists    = errors.New("Record does not exist")
	ErrUpdateFailed = errors.New("Update failed")
	ErrDeleteFailed = errors.New("Delete failed")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSqliteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db: db,
	}
}

// Open connects to the sqlite file at path (":memory:" works) and
// migrates it. SQLite serialises writers, so one connection is kept.
func Open(path string) (*SQLiteRepository, error) {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	repo := NewSqliteRepository(conn)
	if err := repo.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return repo, nil
}

func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

func (s *SQLiteRepository) Migrate() error {
	_, err := s.db.Exec(MigrateSQL)
	return err
}

// mapErr turns driver constraint violations into ErrDuplicate.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if errors.Is(sqliteErr.ExtendedCode, sqlite3.ErrConstraintUnique) ||
			errors.Is(sqliteErr.ExtendedCode, sqlite3.ErrConstraintPrimaryKey) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
	}
	return err
}

func expectOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func fromJSON(s string, dst interface{}) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), dst)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// Test cases

func (s *SQLiteRepository) TestCaseIDs(ctx context.Context, projectID, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, SelectTestCaseIDsSQL, projectID, len(prefix), prefix)
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

func scanTestCase(row scanner) (*types.TestCase, error) {
	var (
		tc        types.TestCase
		tags      string
		testType  string
		status    string
		lastRun   sql.NullTime
		lastState string
		created   sql.NullTime
		updated   sql.NullTime
	)
	err := row.Scan(&tc.ProjectID, &tc.TestCaseID, &tc.Section, &tc.EntityName, &tc.Name, &tags,
		&tc.Method, &testType, &tc.Scenario, &status, &lastRun, &lastState, &created, &updated)
	if err != nil {
		return nil, err
	}
	fromJSON(tags, &tc.Tags)
	tc.TestType = types.TestType(testType)
	tc.Status = types.CaseStatus(status)
	tc.LastRun = timePtr(lastRun)
	tc.LastRunStatus = types.ResultStatus(lastState)
	tc.CreatedAt = created.Time
	tc.UpdatedAt = updated.Time
	return &tc, nil
}

// ListTestCases returns the cases of one entity, or of the whole project
// when entity is empty.
func (s *SQLiteRepository) ListTestCases(ctx context.Context, projectID, entity string) ([]types.TestCase, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if entity == "" {
		rows, err = s.db.QueryContext(ctx, ListAllTestCasesSQL, projectID)
	} else {
		rows, err = s.db.QueryContext(ctx, ListTestCasesSQL, projectID, entity)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.TestCase
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tc)
	}
	return out, rows.Err()
}

func (s *SQLiteRepository) GetTestCase(ctx context.Context, projectID, testCaseID string) (*types.TestCase, error) {
	tc, err := scanTestCase(s.db.QueryRowContext(ctx, GetTestCaseSQL, projectID, testCaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotExists
	}
	return tc, err
}

func (s *SQLiteRepository) InsertTestCase(ctx context.Context, tc *types.TestCase) error {
	_, err := s.db.ExecContext(ctx, InsertTestCaseSQL,
		tc.ProjectID, tc.TestCaseID, tc.Section, tc.EntityName, tc.Name, toJSON(tc.Tags), tc.Method,
		string(tc.TestType), tc.Scenario, string(tc.Status), nullTime(tc.LastRun), string(tc.LastRunStatus),
		tc.CreatedAt.UTC(), tc.UpdatedAt.UTC())
	return mapErr(err)
}

func (s *SQLiteRepository) UpdateTestCase(ctx context.Context, tc *types.TestCase) error {
	res, err := s.db.ExecContext(ctx, UpdateTestCaseSQL,
		tc.Name, toJSON(tc.Tags), tc.Method, string(tc.TestType), tc.Scenario, string(tc.Status),
		tc.UpdatedAt.UTC(), tc.ProjectID, tc.TestCaseID)
	return expectOne(res, err, ErrUpdateFailed)
}

func (s *SQLiteRepository) UpdateLastRun(ctx context.Context, projectID, testCaseID string, at time.Time, status types.ResultStatus) error {
	res, err := s.db.ExecContext(ctx, UpdateLastRunSQL, at.UTC(), string(status), projectID, testCaseID)
	return expectOne(res, err, ErrNotExists)
}

func (s *SQLiteRepository) DeleteTestCases(ctx context.Context, projectID, entity string) (int64, error) {
	res, err := s.db.ExecContext(ctx, DeleteTestCasesSQL, projectID, entity)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}

// Test steps

func (s *SQLiteRepository) StepExists(ctx context.Context, projectID, stepID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, StepExistsSQL, projectID, stepID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteRepository) InsertTestStep(ctx context.Context, st *types.TestStep) error {
	_, err := s.db.ExecContext(ctx, InsertTestStepSQL,
		st.ProjectID, st.StepID, st.Section, st.EntityName, st.Name, st.Type, st.Definition,
		st.Implementation, toJSON(st.Parameters), string(st.Status), st.CreatedAt.UTC())
	return mapErr(err)
}

func (s *SQLiteRepository) ListTestSteps(ctx context.Context, projectID, entity string) ([]types.TestStep, error) {
	rows, err := s.db.QueryContext(ctx, ListTestStepsSQL, projectID, entity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.TestStep
	for rows.Next() {
		var (
			st      types.TestStep
			params  string
			status  string
			created sql.NullTime
		)
		if err := rows.Scan(&st.ProjectID, &st.StepID, &st.Section, &st.EntityName, &st.Name, &st.Type,
			&st.Definition, &st.Implementation, &params, &status, &created); err != nil {
			return nil, err
		}
		fromJSON(params, &st.Parameters)
		st.Status = types.CaseStatus(status)
		st.CreatedAt = created.Time
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteRepository) DeleteTestSteps(ctx context.Context, projectID, entity string) (int64, error) {
	res, err := s.db.ExecContext(ctx, DeleteTestStepsSQL, projectID, entity)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return res.RowsAffected()
}
