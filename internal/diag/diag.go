// Package diag carries ODBC diagnostics (SQLSTATE, native code, message)
// through ordinary Go errors.
//
// Errors are wrapped with github.com/pkg/errors so callers keep a stack and
// the original cause, while StateOf recovers the SQLSTATE that the ODBC layer
// reports through SQLGetDiagRec.
package diag

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// State is a five character SQLSTATE code.
type State string

const (
	StateGeneral              State = "HY000"
	StateCanceled             State = "HY008"
	StateTimeout              State = "HYT00"
	StateFunctionSequence     State = "HY010"
	StateInvalidAttribute     State = "HY092"
	StateInvalidAttrValue     State = "HY024"
	StateInvalidNull          State = "HY009"
	StateInvalidCType         State = "HY003"
	StateInvalidInfoType      State = "HY096"
	StateInvalidDescField     State = "HY091"
	StateInvalidBufferLen     State = "HY090"
	StateNotImplemented       State = "HYC00"
	StateMemory               State = "HY001"
	StateInvalidDescIndex     State = "07009"
	StateInvalidCursorState   State = "24000"
	StateWarning              State = "01000"
	StateTruncated            State = "01004"
	StateOptionChanged        State = "01S02"
	StateFractionalTruncation State = "01S07"
	StateNumericRange         State = "22003"
	StateInvalidDatetime      State = "22007"
	StateInvalidCharValue     State = "22018"
	StateRestrictedType       State = "07006"
	StateConnectFailed        State = "08001"
	StateConnectionInUse      State = "08002"
	StateNoConnection         State = "08003"
	StateLinkFailure          State = "08S01"
	StateAuthFailed           State = "28000"
	StateSyntax               State = "42000"
	StateTableNotFound        State = "42S02"
	StateDataSourceNotFound   State = "IM002"
	StateDriverNotCapable     State = "HYC00"
)

// Error is an error annotated with an SQLSTATE.
type Error struct {
	State   State
	Native  int32
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("[%s] %v", e.State, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.State, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.State, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause stop at the diagnostic instead of digging past it.
func (e *Error) Cause() error { return e.Err }

// Warning reports whether the state belongs to class 01 (success with info).
func (e *Error) Warning() bool { return len(e.State) >= 2 && e.State[:2] == "01" }

// New creates a diagnostic error with a formatted message.
func New(state State, format string, args ...any) error {
	return errors.WithStack(&Error{State: state, Message: fmt.Sprintf(format, args...)})
}

// Wrap annotates err with a state. A nil err yields nil. An err that already
// carries a state keeps it unless the new state is more specific than HY000.
func Wrap(err error, state State, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) && state == StateGeneral {
		state = de.State
	}
	return errors.WithStack(&Error{State: state, Message: fmt.Sprintf(format, args...), Err: err})
}

// WithNative attaches a native error code to a diagnostic error.
func WithNative(err error, native int32) error {
	var de *Error
	if errors.As(err, &de) {
		de.Native = native
	}
	return err
}

// StateOf returns the SQLSTATE attached to err, mapping context errors to
// their ODBC equivalents and anything else to HY000.
func StateOf(err error) State {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.State
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StateTimeout
	case errors.Is(err, context.Canceled):
		return StateCanceled
	}
	return StateGeneral
}

// NativeOf returns the native code attached to err, or 0.
func NativeOf(err error) int32 {
	var de *Error
	if errors.As(err, &de) {
		return de.Native
	}
	return 0
}

// IsWarning reports whether err is an informational diagnostic.
func IsWarning(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Warning()
}

// Record is one diagnostic record as exposed by SQLGetDiagRec.
type Record struct {
	State   State
	Native  int32
	Message string
}

// RecordOf flattens err into a diagnostic record.
func RecordOf(err error) Record {
	return Record{State: StateOf(err), Native: NativeOf(err), Message: err.Error()}
}

// Records is the diagnostic area of a single handle. It is reset at the start
// of every ODBC function call on that handle.
type Records struct {
	list []Record
}

// Reset clears the diagnostic area.
func (r *Records) Reset() { r.list = r.list[:0] }

// Add appends err as a record. Nil errors are ignored.
func (r *Records) Add(err error) {
	if err == nil {
		return
	}
	r.list = append(r.list, RecordOf(err))
}

// Get returns the 1-based record n.
func (r *Records) Get(n int) (Record, bool) {
	if n < 1 || n > len(r.list) {
		return Record{}, false
	}
	return r.list[n-1], true
}

// Len returns the number of records.
func (r *Records) Len() int { return len(r.list) }
