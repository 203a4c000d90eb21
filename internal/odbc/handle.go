// Package odbc implements the ODBC handle model of the driver: environment,
// connection and statement handles with their per-handle diagnostic areas.
//
// Every exported handle method corresponds to one ODBC function. It clears
// the handle's diagnostics, does its work and returns an ODBC return code;
// details of a failure are read back with Diag. The cgo shared library in
// odbc/ only marshals C arguments onto these methods.
package odbc

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/SimonWaldherr/tsodbc/internal/convert"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

// Return is an ODBC return code.
type Return int16

const (
	Success         Return = 0
	SuccessWithInfo Return = 1
	Error           Return = -1
	InvalidHandle   Return = -2
	NoData          Return = 100
)

func (r Return) String() string {
	switch r {
	case Success:
		return "SQL_SUCCESS"
	case SuccessWithInfo:
		return "SQL_SUCCESS_WITH_INFO"
	case Error:
		return "SQL_ERROR"
	case InvalidHandle:
		return "SQL_INVALID_HANDLE"
	case NoData:
		return "SQL_NO_DATA"
	}
	return "SQLRETURN(" + strconv.Itoa(int(r)) + ")"
}

// Succeeded reports whether r is SQL_SUCCESS or SQL_SUCCESS_WITH_INFO.
func (r Return) Succeeded() bool { return r == Success || r == SuccessWithInfo }

// HandleType identifies the kind of a handle.
type HandleType int16

const (
	HandleEnv  HandleType = 1
	HandleDbc  HandleType = 2
	HandleStmt HandleType = 3
)

// errNoData ends a function with SQL_NO_DATA and no diagnostic record.
var errNoData = errors.New("odbc: no data")

// handle is the diagnostic area shared by every handle type.
type handle struct {
	dmu   sync.Mutex
	diags diag.Records
}

// Diag returns the 1-based diagnostic record n of the last function call.
func (h *handle) Diag(n int) (diag.Record, bool) {
	h.dmu.Lock()
	defer h.dmu.Unlock()
	return h.diags.Get(n)
}

// DiagCount returns the number of diagnostic records.
func (h *handle) DiagCount() int {
	h.dmu.Lock()
	defer h.dmu.Unlock()
	return h.diags.Len()
}

func (h *handle) begin() {
	h.dmu.Lock()
	h.diags.Reset()
	h.dmu.Unlock()
}

// warn records an informational diagnostic without ending the call.
func (h *handle) warn(err error) {
	h.dmu.Lock()
	h.diags.Add(err)
	h.dmu.Unlock()
}

// finish maps the outcome of a call onto a return code.
func (h *handle) finish(err error) Return {
	switch {
	case err == nil:
	case errors.Is(err, errNoData), errors.Is(err, convert.ErrNoData):
		return NoData
	default:
		h.warn(err)
		if !diag.IsWarning(err) {
			return Error
		}
	}
	h.dmu.Lock()
	defer h.dmu.Unlock()
	if h.diags.Len() > 0 {
		return SuccessWithInfo
	}
	return Success
}

// Truncated records a 01004 warning for an output string that was cut to
// fit the application buffer. rc is the return code of the call so far.
func (h *handle) Truncated(rc Return, what string) Return {
	if rc != Success && rc != SuccessWithInfo {
		return rc
	}
	h.warn(diag.New(diag.StateTruncated, "%s truncated", what))
	return SuccessWithInfo
}
