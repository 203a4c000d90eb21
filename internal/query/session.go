package query

import (
	"context"
	"database/sql/driver"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/logging"
)

// Option configures a Session.
type Option func(*Session)

// WithTimeout bounds every page request.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithMaxRowsPerPage sets the MaxRows hint sent with each request.
// Zero leaves the page size to the service.
func WithMaxRowsPerPage(n int32) Option {
	return func(s *Session) { s.maxRows = n }
}

// WithQueueDepth sets how many received pages may wait ahead of the consumer.
func WithQueueDepth(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.depth = n
		}
	}
}

// WithLogger sets the logger used for session events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClientToken overrides the idempotency token sent with the first request.
func WithClientToken(tok string) Option {
	return func(s *Session) { s.clientToken = tok }
}

// Session is one executed query and its cursor.
type Session struct {
	transport   Transport
	sql         string
	timeout     time.Duration
	maxRows     int32
	depth       int
	clientToken string
	id          string
	log         logrus.FieldLogger

	// ctx scopes background page requests; cancel is called by Cancel
	// (to abort in-flight requests) and by Close after joining.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Fetch context shared with the fetch goroutines.
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []pageResult
	closing  bool
	inFlight bool
	pending  *string
	more     bool
	state    State
	err      error
	queryID  string
	columns  []types.ColumnInfo
	async    bool
	stats    Stats

	closed    atomic.Bool
	rowNum    atomic.Int64
	delivered atomic.Int64

	// Cursor position, owned by the consumer goroutine.
	current *Page
	pos     int
}

// New creates a session for sql. Nothing is sent until Execute.
func New(t Transport, sql string, opts ...Option) *Session {
	s := &Session{
		transport:   t,
		sql:         sql,
		depth:       1,
		clientToken: uuid.NewString(),
		log:         logging.Discard(),
		state:       StateCreated,
	}
	s.cond = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, o := range opts {
		o(s)
	}
	s.id = s.clientToken
	if len(s.id) > 8 {
		s.id = s.id[:8]
	}
	s.log = s.log.WithField("session", s.id)
	return s
}

// NewStatic returns an open session over an in-memory page. It has no
// transport and never starts background work.
func NewStatic(page *Page) *Session {
	if page == nil {
		page = &Page{}
	}
	s := New(nil, "")
	s.state = StateOpen
	s.columns = page.Columns
	s.queryID = page.QueryID
	s.current = page
	if len(page.Rows) == 0 {
		s.state = StateExhausted
	}
	return s
}

// SQL returns the statement text.
func (s *Session) SQL() string { return s.sql }

// Execute requests the first page on the calling goroutine. When the page
// carries a continuation token the fetch of the second page starts before
// Execute returns.
func (s *Session) Execute(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.state != StateCreated {
		st := s.state
		s.mu.Unlock()
		return OutcomeEmpty, errSequence("execute", st)
	}
	if s.transport == nil {
		s.mu.Unlock()
		return OutcomeEmpty, errors.New("query: session has no transport")
	}
	s.state = StateExecuting
	s.mu.Unlock()

	// Cancel must also abort the synchronous first request.
	reqCtx, stop := context.WithCancel(ctx)
	defer stop()
	unregister := context.AfterFunc(s.ctx, stop)
	defer unregister()

	start := time.Now()
	page, err := s.request(reqCtx, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return OutcomeEmpty, ErrCanceled
	}
	if err != nil {
		s.state = StateFailed
		s.err = err
		s.log.WithError(err).Warn("first page failed")
		return OutcomeEmpty, err
	}
	s.stats.PagesReceived++
	s.queryID = page.QueryID
	s.columns = page.Columns
	s.current = page
	s.pos = 0
	s.more = page.HasNext()
	s.log.WithFields(logrus.Fields{
		"query_id": page.QueryID,
		"rows":     len(page.Rows),
		"more":     s.more,
		"elapsed":  time.Since(start),
	}).Debug("first page received")

	if s.more {
		s.state = StateOpen
		s.pending = page.NextToken
		s.startFetchLocked()
		if len(page.Rows) == 0 {
			return OutcomePending, nil
		}
		return OutcomeRows, nil
	}
	if len(page.Rows) == 0 {
		s.state = StateExhausted
		return OutcomeEmpty, nil
	}
	s.state = StateOpen
	return OutcomeRows, nil
}

// Next returns the next row. It returns io.EOF after the last row, and
// also when the session is closed while waiting for a page. A failed
// background page is reported once every row before it was returned.
func (s *Session) Next() (types.Row, error) {
	for {
		if s.closed.Load() {
			return types.Row{}, io.EOF
		}
		if s.current != nil && s.pos < len(s.current.Rows) {
			row := s.current.Rows[s.pos]
			s.pos++
			s.rowNum.Add(1)
			s.delivered.Add(1)
			return row, nil
		}
		page, err := s.nextPage()
		if err != nil {
			return types.Row{}, err
		}
		s.current = page
		s.pos = 0
	}
}

// Scan reads the next row and decodes it into dest. A decode failure is
// returned as *RowError and does not end the cursor.
func (s *Session) Scan(dec RowDecoder, dest []driver.Value) error {
	row, err := s.Next()
	if err != nil {
		return err
	}
	if err := dec.DecodeRow(s.Columns(), row, dest); err != nil {
		return &RowError{Row: s.RowNumber(), Err: err}
	}
	return nil
}

// nextPage pops the next page from the queue, waiting for it if needed.
func (s *Session) nextPage() (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCreated, StateExecuting:
		return nil, errSequence("fetch", s.state)
	case StateFailed:
		return nil, s.err
	case StateExhausted, StateClosed:
		return nil, io.EOF
	}
	if !s.more {
		s.state = StateExhausted
		s.current = nil
		return nil, io.EOF
	}
	for len(s.queue) == 0 && !s.closing {
		s.state = StateFetchingNext
		s.cond.Wait()
	}
	if s.closing {
		return nil, io.EOF
	}
	pr := s.queue[0]
	s.queue[0] = pageResult{}
	s.queue = s.queue[1:]
	if pr.err != nil {
		s.state = StateFailed
		s.err = pr.err
		s.more = false
		return nil, pr.err
	}
	s.state = StateOpen
	s.more = pr.page.HasNext()
	s.startFetchLocked()
	return pr.page, nil
}

// Close stops background fetching and waits for every fetch goroutine to
// exit. A request that is in flight is allowed to finish; its page is
// discarded. Close is idempotent.
func (s *Session) Close() error {
	prev, first := s.markClosed()
	if !first {
		s.wg.Wait()
		return nil
	}
	s.join(prev)
	return nil
}

// Cancel aborts the session: it is closed first, so waiters see io.EOF and
// requests failing with the canceled context are discarded, then in-flight
// requests are canceled and the service is asked to stop the query when the
// transport supports it. The service-side cancel is best effort; its error
// is returned but the session is closed regardless.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	id := s.queryID
	s.mu.Unlock()

	prev, first := s.markClosed()
	s.cancel()
	var cerr error
	if c, ok := s.transport.(Canceler); ok && id != "" {
		if err := c.CancelQuery(ctx, id); err != nil {
			cerr = diag.Wrap(err, diag.StateGeneral, "query: cancel %s", id)
			s.log.WithError(err).WithField("query_id", id).Warn("service side cancel failed")
		}
	}
	if first {
		s.join(prev)
	} else {
		s.wg.Wait()
	}
	return cerr
}

// markClosed sets the closing flag and wakes every waiter. first is false
// when the session was already closing.
func (s *Session) markClosed() (prev State, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return s.state, false
	}
	s.closing = true
	s.closed.Store(true)
	prev = s.state
	s.state = StateClosed
	s.cond.Broadcast()
	return prev, true
}

// join waits for the fetch goroutines and drops whatever they queued.
func (s *Session) join(prev State) {
	s.wg.Wait()

	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	s.pending = nil
	s.mu.Unlock()
	s.cancel()

	s.log.WithFields(logrus.Fields{
		"from":    prev.String(),
		"dropped": dropped,
		"rows":    s.rowNum.Load(),
	}).Debug("session closed")
}

// Columns returns the result column metadata of the first page.
func (s *Session) Columns() []types.ColumnInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columns
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// QueryID returns the service query id once the first page arrived.
func (s *Session) QueryID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryID
}

// RowNumber returns the 1-based number of the last row returned by Next.
func (s *Session) RowNumber() int64 { return s.rowNum.Load() }

// AsyncStarted reports whether any background page request was started.
func (s *Session) AsyncStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.async
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()
	st.RowsDelivered = s.delivered.Load()
	return st
}
