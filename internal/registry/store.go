package registry

import (
	"context"

	"github.com/ii/api-test-harness/internal/types"
)

// CaseStore is the slice of the index test-case sync writes to.
type CaseStore interface {
	TestCaseIDs(ctx context.Context, projectID, prefix string) ([]string, error)
	ListTestCases(ctx context.Context, projectID, entity string) ([]types.TestCase, error)
	InsertTestCase(ctx context.Context, tc *types.TestCase) error
	// UpdateTestCase rewrites content and status; last-run fields are
	// left as stored.
	UpdateTestCase(ctx context.Context, tc *types.TestCase) error
	DeleteTestCases(ctx context.Context, projectID, entity string) (int64, error)
}

// StepStore is the slice of the index step sync writes to.
type StepStore interface {
	StepExists(ctx context.Context, projectID, stepID string) (bool, error)
	InsertTestStep(ctx context.Context, st *types.TestStep) error
	DeleteTestSteps(ctx context.Context, projectID, entity string) (int64, error)
}
