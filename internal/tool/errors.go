package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when invoking a name no tool is registered under.
	ErrNotFound = errors.New("tool not found")
	// ErrManifestParse marks a registration whose fields are malformed.
	ErrManifestParse = errors.New("invalid tool registration")
)

// ManifestError reports one manifest entry (or a whole manifest file when
// Index is 0) that could not be loaded. Loading continues past it.
type ManifestError struct {
	Path  string
	Index int
	Name  string
	Err   error
}

func (e *ManifestError) Error() string {
	switch {
	case e.Index == 0:
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	case e.Name != "":
		return fmt.Sprintf("%s: registration #%d (%s): %v", e.Path, e.Index, e.Name, e.Err)
	default:
		return fmt.Sprintf("%s: registration #%d: %v", e.Path, e.Index, e.Err)
	}
}

func (e *ManifestError) Unwrap() error { return e.Err }

// Stage names the step of the invocation pipeline that failed.
type Stage string

const (
	StageLoad       Stage = "load"
	StageValidate   Stage = "validate"
	StageConvertIn  Stage = "convert-in"
	StageCall       Stage = "call"
	StageConvertOut Stage = "convert-out"
)

// InvokeError wraps a failed script tool invocation with its stage.
type InvokeError struct {
	Tool  string
	Stage Stage
	Err   error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("tool %s failed at %s: %v", e.Tool, e.Stage, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }
