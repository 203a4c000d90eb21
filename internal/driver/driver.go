// Package driver implements a database/sql driver for Amazon Timestream.
//
// The DSN is an ODBC connection string ("Region=us-east-1;Auth=AWS_PROFILE")
// or a data source name from the DSN file ("DSN=prod"). Queries run through
// the same paginated session as the ODBC driver: rows stream while later
// pages are prefetched in the background.
//
// Timestream is read-only through the query API. Transactions are not
// supported and Exec only reports zero affected rows.
package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/tsodbc/internal/config"
	"github.com/SimonWaldherr/tsodbc/internal/convert"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/logging"
	"github.com/SimonWaldherr/tsodbc/internal/query"
	"github.com/SimonWaldherr/tsodbc/internal/timestream"
)

// Name is the registered driver name.
const Name = "timestream"

var defaultDrv = &drv{dsns: loadDSNFile}

func init() {
	sql.Register(Name, defaultDrv)
}

var loadDSNFile = sync.OnceValue(func() config.DSNSource {
	f, err := config.LoadDSNFile(config.DefaultDSNFilePath())
	if err != nil {
		logrus.WithError(err).Warn("tsodbc: ignoring dsn file")
		return nil
	}
	return f
})

// Open returns a *sql.DB for an ODBC connection string.
func Open(dsn string) (*sql.DB, error) { return sql.Open(Name, dsn) }

type drv struct {
	dsns func() config.DSNSource
}

func (d *drv) Open(name string) (driver.Conn, error) {
	c, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

// OpenConnector parses name once; every connection of the resulting pool
// shares one AWS SDK context.
func (d *drv) OpenConnector(name string) (driver.Connector, error) {
	var src config.DSNSource
	if d.dsns != nil {
		src = d.dsns()
	}
	cfg, err := config.ParseWith(name, src)
	if err != nil {
		return nil, err
	}
	return NewConnector(cfg), nil
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithTransport replaces the Timestream query API. Used by tests and tools
// that replay recorded pages.
func WithTransport(t query.Transport) ConnectorOption {
	return func(c *Connector) { c.transport = t }
}

// WithLogger sets the connector logger instead of one built from LogLevel.
func WithLogger(l logrus.FieldLogger) ConnectorOption {
	return func(c *Connector) { c.log = l }
}

// Connector opens connections sharing one SDK context and one query
// throttle.
type Connector struct {
	cfg *config.Config
	log logrus.FieldLogger

	mu        sync.Mutex
	transport query.Transport
	env       *timestream.Environment

	pool        chan struct{}
	busyTimeout time.Duration
}

// NewConnector returns a connector for cfg. Use it with sql.OpenDB.
func NewConnector(cfg *config.Config, opts ...ConnectorOption) *Connector {
	c := &Connector{cfg: cfg, busyTimeout: cfg.BusyTimeout}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logging.New(cfg).WithField("driver", Name)
	}
	if cfg.MaxConcurrentQueries > 0 {
		c.pool = make(chan struct{}, cfg.MaxConcurrentQueries)
	}
	return c
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	t, err := c.backend(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{c: c, transport: t}, nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver { return defaultDrv }

// Close releases the SDK context. database/sql calls it from DB.Close.
func (c *Connector) Close() error {
	c.mu.Lock()
	env := c.env
	c.env = nil
	c.mu.Unlock()
	if env == nil {
		return nil
	}
	return env.Close()
}

func (c *Connector) backend(ctx context.Context) (query.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != nil {
		return c.transport, nil
	}
	env, err := timestream.NewEnvironment(ctx, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.env = env
	c.transport = timestream.NewTransport(timestream.NewClient(env).Query, c.log)
	return c.transport, nil
}

func (c *Connector) sessionOptions() []query.Option {
	opts := []query.Option{
		query.WithMaxRowsPerPage(c.cfg.MaxRowsPerPage),
		query.WithLogger(c.log),
	}
	if c.cfg.PrefetchPages > 0 {
		opts = append(opts, query.WithQueueDepth(c.cfg.PrefetchPages))
	}
	return opts
}

// acquire takes a query slot. With a busy timeout it gives up after that
// long; without one it waits for ctx.
//
//nolint:gocyclo // throttling covers timeout, context, and immediate acquisition paths.
func (c *Connector) acquire(ctx context.Context) error {
	if c.pool == nil {
		return ctx.Err()
	}
	if c.busyTimeout <= 0 {
		select {
		case c.pool <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	timeout := c.busyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remain := time.Until(deadline)
		if remain <= 0 {
			return ctx.Err()
		}
		if remain < timeout {
			timeout = remain
		}
	}
	select {
	case c.pool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.pool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return diag.New(diag.StateTimeout, "tsodbc: busy timeout after %s", timeout)
	}
}

func (c *Connector) release() {
	if c.pool == nil {
		return
	}
	select {
	case <-c.pool:
	default:
	}
}

// ------------------- connection -------------------

type conn struct {
	c         *Connector
	transport query.Transport
}

var errNoTx = diag.New(diag.StateDriverNotCapable, "tsodbc: transactions are not supported")

func (cn *conn) Prepare(q string) (driver.Stmt, error) { return &stmt{cn: cn, sql: q}, nil }
func (cn *conn) PrepareContext(_ context.Context, q string) (driver.Stmt, error) {
	return cn.Prepare(q)
}
func (cn *conn) Close() error                                                 { return nil }
func (cn *conn) Begin() (driver.Tx, error)                                    { return nil, errNoTx }
func (cn *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) { return nil, errNoTx }

// Ping runs SELECT 1 to check credentials and reachability.
func (cn *conn) Ping(ctx context.Context) error {
	r, err := cn.query(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	return r.Close()
}

func (cn *conn) QueryContext(ctx context.Context, q string, args []driver.NamedValue) (driver.Rows, error) {
	sqlStr, err := bindPlaceholders(q, args)
	if err != nil {
		return nil, err
	}
	return cn.query(ctx, sqlStr)
}

// ExecContext runs the statement and discards its result set.
func (cn *conn) ExecContext(ctx context.Context, q string, args []driver.NamedValue) (driver.Result, error) {
	sqlStr, err := bindPlaceholders(q, args)
	if err != nil {
		return nil, err
	}
	r, err := cn.query(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return driver.RowsAffected(0), nil
}

func (cn *conn) query(ctx context.Context, sqlStr string) (*rows, error) {
	if err := cn.c.acquire(ctx); err != nil {
		return nil, err
	}
	s := query.New(cn.transport, sqlStr, cn.c.sessionOptions()...)
	if _, err := s.Execute(ctx); err != nil {
		_ = s.Close()
		cn.c.release()
		return nil, err
	}
	r := &rows{
		ctx:     ctx,
		s:       s,
		cols:    convert.DescribeAll(s.Columns()),
		release: cn.c.release,
	}
	r.stop = context.AfterFunc(ctx, func() {
		_ = s.Cancel(context.Background())
	})
	return r, nil
}

// CheckNamedValue rejects named arguments; values are rendered as literals.
func (cn *conn) CheckNamedValue(nv *driver.NamedValue) error {
	if nv.Name != "" {
		return errors.Errorf("tsodbc: named parameter %q is not supported", nv.Name)
	}
	switch v := nv.Value.(type) {
	case literal:
		return nil
	case time.Duration:
		nv.Value = intervalLiteral(v)
		return nil
	default:
		if _, ok := literalOf(v); ok {
			return nil
		}
	}
	return driver.ErrSkip
}

// ------------------- stmt / rows -------------------

type stmt struct {
	cn  *conn
	sql string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), named(args))
}
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), named(args))
}
func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.cn.ExecContext(ctx, s.sql, args)
}
func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.cn.QueryContext(ctx, s.sql, args)
}

func named(args []driver.Value) []driver.NamedValue {
	n := make([]driver.NamedValue, len(args))
	for i, v := range args {
		n[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return n
}

type rows struct {
	ctx     context.Context
	s       *query.Session
	cols    []convert.Column
	dec     convert.Decoder
	stop    func() bool
	release func()
	once    sync.Once
}

func (r *rows) Columns() []string {
	names := make([]string, len(r.cols))
	for i, c := range r.cols {
		names[i] = c.Name
	}
	return names
}

func (r *rows) Close() error {
	var err error
	r.once.Do(func() {
		r.stop()
		err = r.s.Close()
		r.release()
	})
	return err
}

// Next decodes the next row. A canceled context ends iteration with the
// context error rather than io.EOF.
func (r *rows) Next(dest []driver.Value) error {
	err := r.s.Scan(r.dec, dest)
	if errors.Is(err, io.EOF) {
		if cerr := r.ctx.Err(); cerr != nil {
			return cerr
		}
	}
	return err
}

func (r *rows) ColumnTypeDatabaseTypeName(i int) string {
	return strings.ToUpper(r.cols[i].TypeName)
}

func (r *rows) ColumnTypeScanType(i int) reflect.Type { return r.cols[i].ScanType }

func (r *rows) ColumnTypeNullable(i int) (nullable, ok bool) {
	switch r.cols[i].Nullable {
	case convert.SQLNoNulls:
		return false, true
	case convert.SQLNullable:
		return true, true
	}
	return true, false
}

// ColumnTypePrecisionScale reports digits for double and timestamp columns.
func (r *rows) ColumnTypePrecisionScale(i int) (precision, scale int64, ok bool) {
	c := r.cols[i]
	switch c.Kind {
	case convert.KindDouble, convert.KindTimestamp, convert.KindTime:
		return int64(c.Size), int64(c.Digits), true
	}
	return 0, 0, false
}

// Stats exposes the pagination counters of the underlying session.
func (r *rows) Stats() query.Stats { return r.s.Stats() }
