package crocolake

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors for loader operations. Failures raised by the underlying
// columnar engine during materialization are passed through unmodified and
// do not match any of these.
var (
	// ErrInvalidConfig marks a construction-time configuration problem,
	// such as an unrecognized database type.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPathNotFound marks a database root path that does not resolve to
	// an existing directory.
	ErrPathNotFound = errors.New("database path not found")

	// ErrUnknownVariable marks selected or filtered variables that are not
	// in the variable catalog.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrUnknownSource marks selected sources that are not in the source
	// registry.
	ErrUnknownSource = errors.New("unknown source")

	// ErrMissingSourceData marks a registered source with no data under
	// the database root.
	ErrMissingSourceData = errors.New("source data not found")

	// ErrVariableNotStored marks selected variables that are in the
	// catalog but stored by none of the resolved sources.
	ErrVariableNotStored = errors.New("variable not stored by any source")

	// ErrResultTooLarge is returned by Dataset.CollectWithin when the
	// estimated materialized size exceeds the caller's limit.
	ErrResultTooLarge = errors.New("materialized result exceeds limit")
)

// PathNotFoundError reports a missing database directory.
type PathNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("database path not found: %s", e.Path)
}

// Is reports whether the target matches this error.
func (e *PathNotFoundError) Is(target error) bool {
	return target == ErrPathNotFound
}

// UnknownVariableError names the offending variable selections.
type UnknownVariableError struct {
	Variables []string
}

// Error implements the error interface.
func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variables: %s", strings.Join(e.Variables, ", "))
}

// Is reports whether the target matches this error.
func (e *UnknownVariableError) Is(target error) bool {
	return target == ErrUnknownVariable
}

// UnknownSourceError names the offending source selections.
type UnknownSourceError struct {
	Sources []string
}

// Error implements the error interface.
func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown sources: %s", strings.Join(e.Sources, ", "))
}

// Is reports whether the target matches this error.
func (e *UnknownSourceError) Is(target error) bool {
	return target == ErrUnknownSource
}

// MissingSourceDataError reports a source with no on-disk presence under
// the database root.
type MissingSourceDataError struct {
	Source  string
	Pattern string
}

// Error implements the error interface.
func (e *MissingSourceDataError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("no source data found under %s", e.Pattern)
	}
	return fmt.Sprintf("no data for source %s matching %s", e.Source, e.Pattern)
}

// Is reports whether the target matches this error.
func (e *MissingSourceDataError) Is(target error) bool {
	return target == ErrMissingSourceData
}

// VariableNotStoredError names catalog variables that were selected but
// exist in no resolved source's stored schema.
type VariableNotStoredError struct {
	Variables []string
}

// Error implements the error interface.
func (e *VariableNotStoredError) Error() string {
	return fmt.Sprintf("variables stored by no selected source: %s", strings.Join(e.Variables, ", "))
}

// Is reports whether the target matches this error.
func (e *VariableNotStoredError) Is(target error) bool {
	return target == ErrVariableNotStored
}

// AmbiguousSourceError reports multiple on-disk versions of one source.
type AmbiguousSourceError struct {
	Source string
	Paths  []string
}

// Error implements the error interface.
func (e *AmbiguousSourceError) Error() string {
	return fmt.Sprintf("found multiple versions of source %s: %s", e.Source, strings.Join(e.Paths, ", "))
}

// Is reports whether the target matches this error.
func (e *AmbiguousSourceError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ResultTooLargeError reports an estimated materialization size above the
// caller's limit.
type ResultTooLargeError struct {
	EstimatedBytes int64
	LimitBytes     int64
}

// Error implements the error interface.
func (e *ResultTooLargeError) Error() string {
	return fmt.Sprintf("materialized result estimated at %d bytes exceeds limit of %d bytes",
		e.EstimatedBytes, e.LimitBytes)
}

// Is reports whether the target matches this error.
func (e *ResultTooLargeError) Is(target error) bool {
	return target == ErrResultTooLarge
}
