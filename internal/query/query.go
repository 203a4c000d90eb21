// Package query turns a paginated Timestream query into a synchronous,
// row-at-a-time cursor.
//
// The first page is requested on the caller's goroutine so that errors
// surface from Execute and the first row is available immediately. Every
// following page is requested on a background goroutine while the consumer
// reads the current one. Continuation tokens are strictly sequential, so at
// most one page request is in flight per session; the queue of received but
// unconsumed pages is bounded by the prefetch depth (1 by default).
//
// A session owns its fetch goroutines. Close and Cancel return only after
// every one of them has exited, and no page is queued once closing has been
// requested.
package query

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

// Request describes one page request. The first request of a session has
// no NextToken; follow-ups repeat the SQL and carry the token of the
// previous page.
type Request struct {
	SQL         string
	NextToken   *string
	MaxRows     int32
	ClientToken string
}

// Page is one batch of result rows.
type Page struct {
	QueryID   string
	Columns   []types.ColumnInfo
	Rows      []types.Row
	NextToken *string
	// Progress is the service reported completion percentage, if any.
	Progress float64
}

// HasNext reports whether another page follows.
func (p *Page) HasNext() bool {
	return p != nil && p.NextToken != nil && *p.NextToken != ""
}

// Transport executes page requests. ExecutePage may block for a network
// round trip and should honour ctx.
type Transport interface {
	ExecutePage(ctx context.Context, req Request) (*Page, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (*Page, error)

func (f TransportFunc) ExecutePage(ctx context.Context, req Request) (*Page, error) {
	return f(ctx, req)
}

// Canceler is implemented by transports that can abort a running query on
// the service side.
type Canceler interface {
	CancelQuery(ctx context.Context, queryID string) error
}

// RowDecoder converts a raw row into driver values.
type RowDecoder interface {
	DecodeRow(cols []types.ColumnInfo, row types.Row, dest []driver.Value) error
}

// Outcome classifies the result of Execute.
type Outcome int

const (
	// OutcomeRows means the first page carried at least one row.
	OutcomeRows Outcome = iota
	// OutcomePending means the first page was empty but more pages follow.
	OutcomePending
	// OutcomeEmpty means the query produced no rows at all.
	OutcomeEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRows:
		return "ROWS"
	case OutcomePending:
		return "PENDING"
	case OutcomeEmpty:
		return "EMPTY"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Stats counts the work a session performed.
type Stats struct {
	// FetchersStarted is the number of background page requests started.
	FetchersStarted int64
	// PagesReceived counts pages delivered by the transport without error,
	// including the first page.
	PagesReceived int64
	// PagesDiscarded counts pages dropped because the session was closing
	// when they arrived.
	PagesDiscarded int64
	// RowsDelivered counts rows returned by Next.
	RowsDelivered int64
}

// RowError reports a row that could not be decoded. The cursor remains
// positioned after the row and can keep fetching.
type RowError struct {
	Row int64
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("query: row %d: %v", e.Row, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

// ErrCanceled is returned by Execute when the session was closed or canceled
// before the first page arrived.
var ErrCanceled = &diag.Error{State: diag.StateCanceled, Message: "query: operation canceled"}

// errSequence is returned when the session is used out of order.
func errSequence(op string, st State) error {
	return diag.New(diag.StateFunctionSequence, "query: %s not allowed in state %s", op, st)
}
