package types

import (
	"fmt"
	"strings"
)

// ParseError marks an artifact that could not be read. The artifact is
// skipped and processing continues.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AssetMissingError is returned before spawning when an entity has no
// feature or step file.
type AssetMissingError struct {
	Entity string
	Path   string
}

func (e *AssetMissingError) Error() string {
	return fmt.Sprintf("no test assets for entity %q (expected %s)", e.Entity, e.Path)
}

// Inventory lists what a feature file offers, surfaced when filters
// match nothing.
type Inventory struct {
	Scenarios []string `json:"scenarios"`
	Tags      []string `json:"tags"`
}

// ValidationError is a client error raised before any background work.
type ValidationError struct {
	Msg       string
	Inventory *Inventory
}

func (e *ValidationError) Error() string {
	if e.Inventory == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s (available scenarios: [%s], tags: [%s])", e.Msg,
		strings.Join(e.Inventory.Scenarios, ", "), strings.Join(e.Inventory.Tags, ", "))
}

// RunnerProcessError wraps a spawn failure or a non-zero runner exit.
type RunnerProcessError struct {
	ExitCode int
	Err      error
}

func (e *RunnerProcessError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("runner exited with code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("runner failed: %v", e.Err)
}

func (e *RunnerProcessError) Unwrap() error { return e.Err }

// ReportParseError means the structured report was missing or malformed.
// Callers treat it as zero results.
type ReportParseError struct {
	Path string
	Err  error
}

func (e *ReportParseError) Error() string {
	return fmt.Sprintf("report %s: %v", e.Path, e.Err)
}

func (e *ReportParseError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed write to the index.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
