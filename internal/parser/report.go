package parser

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/ii/api-test-harness/internal/types"
)

// ReadReport loads a cucumber JSON report. Any failure, including a
// missing file, is a *types.ReportParseError.
func ReadReport(path string) ([]types.CukeFeatureJSON, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ReportParseError{Path: path, Err: err}
	}
	return DecodeReport(path, b)
}

func DecodeReport(path string, b []byte) ([]types.CukeFeatureJSON, error) {
	if len(b) == 0 {
		return nil, &types.ReportParseError{Path: path, Err: errors.New("empty report")}
	}
	var features []types.CukeFeatureJSON
	if err := json.Unmarshal(b, &features); err != nil {
		return nil, &types.ReportParseError{Path: path, Err: err}
	}
	return features, nil
}
