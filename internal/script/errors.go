package script

import (
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// CompileError is returned when guest source cannot be turned into bytecode.
type CompileError struct {
	Name string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s: %v", e.Name, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// ScriptError carries a guest runtime fault. Message is the guest's own
// error text.
type ScriptError struct {
	Message string
	// Err is set when execution was aborted by the host, e.g. on timeout.
	Err error
}

func (e *ScriptError) Error() string {
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		return fmt.Sprintf("script error: %s (%v)", e.Message, e.Err)
	}
	return "script error: " + e.Message
}

func (e *ScriptError) Unwrap() error { return e.Err }

func guestMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}
