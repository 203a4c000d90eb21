package odbc

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/tsodbc/internal/catalog"
	"github.com/SimonWaldherr/tsodbc/internal/config"
	"github.com/SimonWaldherr/tsodbc/internal/convert"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/logging"
	"github.com/SimonWaldherr/tsodbc/internal/query"
)

// Connection attributes.
const (
	AttrAccessMode        = 101
	AttrAutocommit        = 102
	AttrLoginTimeout      = 103
	AttrTxnIsolation      = 108
	AttrConnectionTimeout = 113
	AttrConnectionDead    = 1209
)

const (
	AutocommitOff = 0
	AutocommitOn  = 1
	ModeReadWrite = 0
	ModeReadOnly  = 1
	CDTrue        = 1
	CDFalse       = 0
)

// Transaction completion types of SQLEndTran.
const (
	Commit   = 0
	Rollback = 1
)

// Connection is an ODBC connection handle.
type Connection struct {
	handle
	env *Environment
	id  uint64

	mu           sync.Mutex
	cfg          *config.Config
	log          logrus.FieldLogger
	backend      *Backend
	catalog      *catalog.Catalog
	encoder      *convert.Encoder
	loginTimeout time.Duration
	connTimeout  time.Duration
	stmts        map[*Statement]struct{}
}

func newConnection(env *Environment, id uint64) *Connection {
	return &Connection{
		env:   env,
		id:    id,
		log:   logging.Discard(),
		stmts: make(map[*Statement]struct{}),
	}
}

// Connected reports whether the connection is open.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend != nil
}

// Config returns the settings of an open connection, or nil.
func (c *Connection) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// DriverConnect implements SQLDriverConnect with SQL_DRIVER_NOPROMPT. It
// returns the completed connection string.
func (c *Connection) DriverConnect(ctx context.Context, connStr string) (string, Return) {
	c.begin()
	cfg, err := config.ParseWith(connStr, c.env.dsns)
	if err != nil {
		return "", c.finish(configError(err))
	}
	if err := c.open(ctx, cfg); err != nil {
		return "", c.finish(err)
	}
	return cfg.ConnectionString(), c.finish(nil)
}

// Connect implements SQLConnect: dsn names an entry of the DSN file, and a
// non-empty uid or pwd overrides the stored key pair.
func (c *Connection) Connect(ctx context.Context, dsn, uid, pwd string) Return {
	c.begin()
	if dsn == "" {
		return c.finish(diag.New(diag.StateDataSourceNotFound, "data source name is empty"))
	}
	attrs := []config.Attr{{Key: "DSN", Value: dsn}}
	if uid != "" {
		attrs = append(attrs, config.Attr{Key: "UID", Value: uid})
	}
	if pwd != "" {
		attrs = append(attrs, config.Attr{Key: "PWD", Value: pwd})
	}
	cfg, err := config.ParseWith(config.FormatConnectionString(attrs), c.env.dsns)
	if err != nil {
		return c.finish(configError(err))
	}
	return c.finish(c.open(ctx, cfg))
}

func configError(err error) error {
	var nf *config.DSNNotFoundError
	if errors.As(err, &nf) {
		return diag.Wrap(err, diag.StateDataSourceNotFound, "data source not found")
	}
	return diag.Wrap(err, diag.StateConnectFailed, "invalid connection settings")
}

func (c *Connection) open(ctx context.Context, cfg *config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		return diag.New(diag.StateConnectionInUse, "connection is already open")
	}
	if c.loginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.loginTimeout)
		defer cancel()
	}
	log := logging.New(cfg).WithField("conn", c.id)
	enc, err := convert.NewEncoder(cfg.Charset)
	if err != nil {
		return err
	}
	b, err := c.env.backend(ctx, cfg, log)
	if err != nil {
		return diag.Wrap(err, diag.StateConnectFailed, "connect")
	}
	if b.Ping != nil {
		if err := b.Ping(ctx); err != nil {
			if b.Close != nil {
				_ = b.Close()
			}
			return diag.Wrap(err, diag.StateGeneral, "connect")
		}
	}
	cat := catalog.New(b.Lister, b.Transport,
		catalog.WithTTL(cfg.MetadataCacheTTL),
		catalog.WithLogger(log),
		catalog.WithSessionOptions(sessionOptions(cfg, 0, log)...),
	)
	if cfg.MetadataRefresh != "" {
		if err := cat.StartRefresh(cfg.MetadataRefresh); err != nil {
			if b.Close != nil {
				_ = b.Close()
			}
			return err
		}
	}
	c.cfg, c.log, c.backend, c.catalog, c.encoder = cfg, log, b, cat, enc
	log.WithField("settings", cfg.String()).Info("connected")
	return nil
}

// sessionOptions are the query options derived from the connection settings
// and a statement query timeout.
func sessionOptions(cfg *config.Config, timeout time.Duration, log logrus.FieldLogger) []query.Option {
	opts := []query.Option{
		query.WithMaxRowsPerPage(cfg.MaxRowsPerPage),
		query.WithLogger(log),
	}
	if cfg.PrefetchPages > 0 {
		opts = append(opts, query.WithQueueDepth(cfg.PrefetchPages))
	}
	if timeout > 0 {
		opts = append(opts, query.WithTimeout(timeout))
	}
	return opts
}

// Disconnect implements SQLDisconnect. Open cursors are closed.
func (c *Connection) Disconnect() Return {
	c.begin()
	c.mu.Lock()
	if c.backend == nil {
		c.mu.Unlock()
		return c.finish(diag.New(diag.StateNoConnection, "connection is not open"))
	}
	stmts := make([]*Statement, 0, len(c.stmts))
	for s := range c.stmts {
		stmts = append(stmts, s)
	}
	b, cat, log := c.backend, c.catalog, c.log
	c.backend, c.catalog, c.cfg = nil, nil, nil
	c.mu.Unlock()

	for _, s := range stmts {
		s.closeCursor()
	}
	cat.Close()
	var err error
	if b.Close != nil {
		err = b.Close()
	}
	log.Info("disconnected")
	if err != nil {
		return c.finish(diag.Wrap(err, diag.StateWarning, "disconnect"))
	}
	return c.finish(nil)
}

// SetAttr implements SQLSetConnectAttr for integer attributes.
func (c *Connection) SetAttr(attr int32, value int64) Return {
	c.begin()
	c.mu.Lock()
	defer c.mu.Unlock()
	switch attr {
	case AttrAutocommit:
		if value != AutocommitOn {
			return c.finish(diag.New(diag.StateDriverNotCapable, "transactions are not supported"))
		}
	case AttrAccessMode:
		if value != ModeReadOnly {
			return c.finish(diag.New(diag.StateOptionChanged, "connection is read-only"))
		}
	case AttrLoginTimeout:
		c.loginTimeout = time.Duration(value) * time.Second
	case AttrConnectionTimeout:
		c.connTimeout = time.Duration(value) * time.Second
	case AttrTxnIsolation:
		return c.finish(diag.New(diag.StateDriverNotCapable, "transactions are not supported"))
	default:
		return c.finish(diag.New(diag.StateInvalidAttribute, "unknown connection attribute %d", attr))
	}
	return c.finish(nil)
}

// GetAttr implements SQLGetConnectAttr for integer attributes.
func (c *Connection) GetAttr(attr int32) (int64, Return) {
	c.begin()
	c.mu.Lock()
	defer c.mu.Unlock()
	switch attr {
	case AttrAutocommit:
		return AutocommitOn, c.finish(nil)
	case AttrAccessMode:
		return ModeReadOnly, c.finish(nil)
	case AttrLoginTimeout:
		return int64(c.loginTimeout / time.Second), c.finish(nil)
	case AttrConnectionTimeout:
		return int64(c.connTimeout / time.Second), c.finish(nil)
	case AttrConnectionDead:
		if c.backend == nil {
			return CDTrue, c.finish(nil)
		}
		return CDFalse, c.finish(nil)
	}
	return 0, c.finish(diag.New(diag.StateInvalidAttribute, "unknown connection attribute %d", attr))
}

// EndTran implements SQLEndTran. Every statement autocommits, so both
// completion types succeed without effect.
func (c *Connection) EndTran(completion int16) Return {
	c.begin()
	switch completion {
	case Commit, Rollback:
		return c.finish(nil)
	}
	return c.finish(diag.New(diag.StateInvalidAttrValue, "invalid completion type %d", completion))
}

func (c *Connection) attach(s *Statement) {
	c.mu.Lock()
	c.stmts[s] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) detach(s *Statement) {
	c.mu.Lock()
	delete(c.stmts, s)
	c.mu.Unlock()
}

func (c *Connection) statements() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stmts)
}

// link is the state of an open connection used by its statements.
type link struct {
	backend *Backend
	catalog *catalog.Catalog
	cfg     *config.Config
	log     logrus.FieldLogger
	encoder *convert.Encoder
}

// active returns the open connection state, or 08003.
func (c *Connection) active() (link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return link{}, diag.New(diag.StateNoConnection, "connection is not open")
	}
	return link{backend: c.backend, catalog: c.catalog, cfg: c.cfg, log: c.log, encoder: c.encoder}, nil
}
