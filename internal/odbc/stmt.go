package odbc

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/pkg/errors"

	"github.com/SimonWaldherr/tsodbc/internal/convert"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/query"
)

// Statement attributes.
const (
	AttrQueryTimeout   = 0
	AttrMaxRows        = 1
	AttrNoScan         = 2
	AttrMaxLength      = 3
	AttrRowBindType    = 5
	AttrCursorType     = 6
	AttrConcurrency    = 7
	AttrRowsFetchedPtr = 26
	AttrRowArraySize   = 27
)

const (
	cursorForwardOnly = 0
	concurReadOnly    = 1
	bindByColumn      = 0
)

// Options of SQLFreeStmt.
const (
	FreeClose       = 0
	FreeDrop        = 1
	FreeUnbind      = 2
	FreeResetParams = 3
)

// Binding is a column buffer registered with SQLBindCol. Buf and Ind point
// into application memory and are written by every Fetch.
type Binding struct {
	Type convert.CType
	Buf  []byte
	Ind  *int64
}

// Statement is an ODBC statement handle. A statement owns at most one
// query session; executing again or closing the cursor closes it.
//
// Every method except Cancel serializes on the statement. Cancel may be
// called from another goroutine while Fetch blocks waiting for a page.
type Statement struct {
	handle
	conn *Connection
	id   uint64

	cursor   atomic.Pointer[query.Session]
	canceled atomic.Bool

	mu          sync.Mutex
	sql         string
	prepared    bool
	enc         *convert.Encoder
	raw         []types.ColumnInfo
	columns     []convert.Column
	row         []convert.Cell
	rowErrs     []error
	hasRow      bool
	offsets     []int
	done        []bool
	bindings    map[int]Binding
	timeout     time.Duration
	maxRows     int64
	fetched     int64
	rowsFetched *uint64
}

func newStatement(c *Connection, id uint64) *Statement {
	return &Statement{conn: c, id: id, bindings: make(map[int]Binding)}
}

// SQL returns the statement text last prepared or executed.
func (s *Statement) SQL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sql
}

// Stats returns the counters of the open cursor.
func (s *Statement) Stats() (query.Stats, bool) {
	if q := s.cursor.Load(); q != nil {
		return q.Stats(), true
	}
	return query.Stats{}, false
}

// Prepare implements SQLPrepare. Timestream has no server-side prepare, so
// the text is kept until Execute.
func (s *Statement) Prepare(sql string) Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(sql) == "" {
		return s.finish(diag.New(diag.StateInvalidNull, "statement text is empty"))
	}
	s.closeCursorLocked()
	s.sql, s.prepared = sql, true
	return s.finish(nil)
}

// Execute implements SQLExecute.
func (s *Statement) Execute(ctx context.Context) Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepared {
		return s.finish(diag.New(diag.StateFunctionSequence, "statement is not prepared"))
	}
	return s.finish(s.execute(ctx))
}

// ExecDirect implements SQLExecDirect.
func (s *Statement) ExecDirect(ctx context.Context, sql string) Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(sql) == "" {
		return s.finish(diag.New(diag.StateInvalidNull, "statement text is empty"))
	}
	s.sql, s.prepared = sql, false
	return s.finish(s.execute(ctx))
}

func (s *Statement) execute(ctx context.Context) error {
	l, err := s.conn.active()
	if err != nil {
		return err
	}
	s.closeCursorLocked()
	s.canceled.Store(false)
	log := l.log.WithField("stmt", s.id)
	q := query.New(l.backend.Transport, s.sql, sessionOptions(l.cfg, s.timeout, log)...)
	// Published before Execute so Cancel can interrupt the first page.
	s.cursor.Store(q)
	outcome, err := q.Execute(ctx)
	if err != nil {
		s.cursor.Store(nil)
		_ = q.Close()
		return err
	}
	log.WithField("outcome", outcome).WithField("query_id", q.QueryID()).Debug("statement executed")
	s.open(q, l.encoder)
	return nil
}

// open makes q the cursor of the statement.
func (s *Statement) open(q *query.Session, enc *convert.Encoder) {
	s.cursor.Store(q)
	s.enc = enc
	s.raw = q.Columns()
	s.columns = convert.DescribeAll(s.raw)
	s.row, s.rowErrs, s.hasRow = nil, nil, false
	s.fetched = 0
}

// Fetch implements SQLFetch: it advances to the next row and fills every
// bound column.
func (s *Statement) Fetch() Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.cursor.Load()
	if q == nil {
		return s.finish(diag.New(diag.StateInvalidCursorState, "no open cursor"))
	}
	s.hasRow = false
	if s.maxRows > 0 && s.fetched >= s.maxRows {
		s.setRowsFetched(0)
		return s.finish(errNoData)
	}
	row, err := q.Next()
	if err == io.EOF {
		s.setRowsFetched(0)
		if s.canceled.Load() {
			return s.finish(query.ErrCanceled)
		}
		return s.finish(errNoData)
	}
	if err != nil {
		return s.finish(err)
	}
	s.fetched++
	s.row, s.rowErrs = convert.Cells(s.raw, row)
	s.hasRow = true
	s.offsets = make([]int, len(s.columns))
	s.done = make([]bool, len(s.columns))
	s.setRowsFetched(1)

	cols := make([]int, 0, len(s.bindings))
	for col := range s.bindings {
		cols = append(cols, col)
	}
	sort.Ints(cols)
	var failed error
	for _, col := range cols {
		err := s.writeBound(col, s.bindings[col])
		switch {
		case err == nil:
		case diag.IsWarning(err) || failed != nil:
			s.warn(err)
		default:
			failed = err
		}
	}
	return s.finish(failed)
}

func (s *Statement) setRowsFetched(n uint64) {
	if s.rowsFetched != nil {
		*s.rowsFetched = n
	}
}

// cell returns the decoded value of the 1-based column col of the current row.
func (s *Statement) cell(col int) (convert.Cell, error) {
	if col < 1 || col > len(s.row) {
		return convert.Cell{}, diag.New(diag.StateInvalidDescIndex, "column %d out of range", col)
	}
	if s.rowErrs != nil && s.rowErrs[col-1] != nil {
		return convert.Cell{}, s.rowErrs[col-1]
	}
	return s.row[col-1], nil
}

func (s *Statement) writeBound(col int, b Binding) error {
	if col > len(s.columns) {
		return nil
	}
	c, err := s.cell(col)
	if err != nil {
		return err
	}
	res, err := s.enc.Encode(c, b.Type, b.Buf, 0)
	if err != nil && !diag.IsWarning(err) {
		return diag.Wrap(err, diag.StateGeneral, "column %d", col)
	}
	if b.Ind != nil {
		*b.Ind = res.Length
	}
	if err != nil {
		return diag.Wrap(err, diag.StateGeneral, "column %d", col)
	}
	return nil
}

// GetData implements SQLGetData. Character and binary data may be read in
// pieces: each call continues where the previous one stopped and the call
// after the last piece returns NoData.
func (s *Statement) GetData(col int, ct convert.CType, buf []byte) (convert.Result, Return) {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Load() == nil || !s.hasRow {
		return convert.Result{}, s.finish(diag.New(diag.StateInvalidCursorState, "no current row"))
	}
	if col < 1 || col > len(s.columns) {
		return convert.Result{}, s.finish(diag.New(diag.StateInvalidDescIndex, "column %d out of range", col))
	}
	i := col - 1
	if s.done[i] {
		return convert.Result{}, s.finish(errNoData)
	}
	c, err := s.cell(col)
	if err != nil {
		return convert.Result{}, s.finish(err)
	}
	res, err := s.enc.Encode(c, ct, buf, s.offsets[i])
	switch {
	case errors.Is(err, convert.ErrNoData):
		s.done[i] = true
		return convert.Result{}, s.finish(errNoData)
	case err != nil && !diag.IsWarning(err):
		return convert.Result{}, s.finish(err)
	}
	if diag.StateOf(err) == diag.StateTruncated {
		s.offsets[i] += res.Written
	} else {
		s.done[i] = true
	}
	return res, s.finish(err)
}

func validCType(ct convert.CType) bool {
	switch ct {
	case convert.CChar, convert.CWChar, convert.CBinary, convert.CDefault:
		return true
	}
	return convert.FixedSize(ct) > 0
}

// BindCol implements SQLBindCol. A nil buffer and indicator unbind col.
func (s *Statement) BindCol(col int, ct convert.CType, buf []byte, ind *int64) Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	if col < 1 {
		return s.finish(diag.New(diag.StateInvalidDescIndex, "bookmark columns are not supported"))
	}
	if buf == nil && ind == nil {
		delete(s.bindings, col)
		return s.finish(nil)
	}
	if !validCType(ct) {
		return s.finish(diag.New(diag.StateInvalidCType, "invalid C type %d", ct))
	}
	s.bindings[col] = Binding{Type: ct, Buf: buf, Ind: ind}
	return s.finish(nil)
}

// NumResultCols implements SQLNumResultCols.
func (s *Statement) NumResultCols() (int, Return) {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.columns), s.finish(nil)
}

// RowCount implements SQLRowCount. Timestream reports no affected rows.
func (s *Statement) RowCount() (int64, Return) {
	s.begin()
	return -1, s.finish(nil)
}

// DescribeCol implements SQLDescribeCol.
func (s *Statement) DescribeCol(col int) (convert.Column, Return) {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Load() == nil {
		return convert.Column{}, s.finish(diag.New(diag.StateFunctionSequence, "statement has no result set"))
	}
	if col < 1 || col > len(s.columns) {
		return convert.Column{}, s.finish(diag.New(diag.StateInvalidDescIndex, "column %d out of range", col))
	}
	return s.columns[col-1], s.finish(nil)
}

// Tables implements SQLTables.
func (s *Statement) Tables(ctx context.Context, catalogName, schema, table, tableTypes string) Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.conn.active()
	if err != nil {
		return s.finish(err)
	}
	s.closeCursorLocked()
	page, err := l.catalog.Tables(ctx, catalogName, schema, table, tableTypes)
	if err != nil {
		return s.finish(err)
	}
	s.open(query.NewStatic(page), l.encoder)
	return s.finish(nil)
}

// Columns implements SQLColumns.
func (s *Statement) Columns(ctx context.Context, catalogName, schema, table, column string) Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.conn.active()
	if err != nil {
		return s.finish(err)
	}
	s.closeCursorLocked()
	page, err := l.catalog.Columns(ctx, catalogName, schema, table, column)
	if err != nil {
		return s.finish(err)
	}
	s.open(query.NewStatic(page), l.encoder)
	return s.finish(nil)
}

// Cancel implements SQLCancel. A Fetch blocked on the cursor returns HY008.
// Failing to cancel the query on the service is reported as a warning.
// Cancel leaves the diagnostics of a concurrently running call in place.
func (s *Statement) Cancel(ctx context.Context) Return {
	q := s.cursor.Load()
	if q == nil {
		return Success
	}
	s.canceled.Store(true)
	if err := q.Cancel(ctx); err != nil {
		s.warn(diag.Wrap(err, diag.StateWarning, "cancel query %s", q.QueryID()))
		return SuccessWithInfo
	}
	return Success
}

// CloseCursor implements SQLCloseCursor.
func (s *Statement) CloseCursor() Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Load() == nil {
		return s.finish(diag.New(diag.StateInvalidCursorState, "no open cursor"))
	}
	s.closeCursorLocked()
	return s.finish(nil)
}

// FreeStmt implements SQLFreeStmt for SQL_CLOSE, SQL_UNBIND and
// SQL_RESET_PARAMS. SQL_DROP is handled by the registry.
func (s *Statement) FreeStmt(option int16) Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch option {
	case FreeClose:
		s.closeCursorLocked()
	case FreeUnbind:
		s.bindings = make(map[int]Binding)
	case FreeResetParams:
	default:
		return s.finish(diag.New(diag.StateInvalidAttrValue, "invalid SQLFreeStmt option %d", option))
	}
	return s.finish(nil)
}

// MoreResults implements SQLMoreResults. There is only ever one result set.
func (s *Statement) MoreResults() Return {
	s.begin()
	return s.finish(errNoData)
}

// closeCursor closes the cursor from outside a statement call. The session
// is closed before taking the lock so a Fetch waiting for a page returns.
func (s *Statement) closeCursor() {
	if q := s.cursor.Load(); q != nil {
		_ = q.Close()
	}
	s.mu.Lock()
	s.closeCursorLocked()
	s.mu.Unlock()
}

func (s *Statement) closeCursorLocked() {
	if q := s.cursor.Swap(nil); q != nil {
		_ = q.Close()
	}
	s.raw, s.columns = nil, nil
	s.row, s.rowErrs, s.hasRow = nil, nil, false
	s.offsets, s.done = nil, nil
	s.fetched = 0
}

// SetAttr implements SQLSetStmtAttr for integer attributes.
func (s *Statement) SetAttr(attr int32, value int64) Return {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch attr {
	case AttrQueryTimeout:
		if value < 0 {
			return s.finish(diag.New(diag.StateInvalidAttrValue, "negative query timeout"))
		}
		s.timeout = time.Duration(value) * time.Second
	case AttrMaxRows:
		if value < 0 {
			return s.finish(diag.New(diag.StateInvalidAttrValue, "negative max rows"))
		}
		s.maxRows = value
	case AttrRowArraySize:
		if value != 1 {
			return s.finish(diag.New(diag.StateOptionChanged, "row array size changed to 1"))
		}
	case AttrRowBindType:
		if value != bindByColumn {
			return s.finish(diag.New(diag.StateDriverNotCapable, "row-wise binding is not supported"))
		}
	case AttrCursorType:
		if value != cursorForwardOnly {
			return s.finish(diag.New(diag.StateOptionChanged, "cursor type changed to forward only"))
		}
	case AttrConcurrency:
		if value != concurReadOnly {
			return s.finish(diag.New(diag.StateOptionChanged, "concurrency changed to read only"))
		}
	case AttrNoScan, AttrMaxLength:
	default:
		return s.finish(diag.New(diag.StateInvalidAttribute, "unknown statement attribute %d", attr))
	}
	return s.finish(nil)
}

// SetRowsFetched implements SQL_ATTR_ROWS_FETCHED_PTR. Fetch stores the
// number of rows it returned (0 or 1) through p.
func (s *Statement) SetRowsFetched(p *uint64) Return {
	s.begin()
	s.mu.Lock()
	s.rowsFetched = p
	s.mu.Unlock()
	return s.finish(nil)
}

// GetAttr implements SQLGetStmtAttr for integer attributes.
func (s *Statement) GetAttr(attr int32) (int64, Return) {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch attr {
	case AttrQueryTimeout:
		return int64(s.timeout / time.Second), s.finish(nil)
	case AttrMaxRows:
		return s.maxRows, s.finish(nil)
	case AttrRowArraySize:
		return 1, s.finish(nil)
	case AttrRowBindType:
		return bindByColumn, s.finish(nil)
	case AttrCursorType:
		return cursorForwardOnly, s.finish(nil)
	case AttrConcurrency:
		return concurReadOnly, s.finish(nil)
	case AttrNoScan, AttrMaxLength:
		return 0, s.finish(nil)
	}
	return 0, s.finish(diag.New(diag.StateInvalidAttribute, "unknown statement attribute %d", attr))
}
