package odbc

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/tsodbc/internal/catalog"
	"github.com/SimonWaldherr/tsodbc/internal/config"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
	"github.com/SimonWaldherr/tsodbc/internal/query"
	"github.com/SimonWaldherr/tsodbc/internal/timestream"
)

// Environment attributes.
const (
	AttrODBCVersion       = 200
	AttrConnectionPooling = 201
	AttrOutputNTS         = 10001
)

// ODBC versions accepted by AttrODBCVersion.
const (
	OVODBC2  = 2
	OVODBC3  = 3
	OVODBC38 = 380
)

// Backend is what a connection needs from the service.
type Backend struct {
	Transport query.Transport
	Lister    catalog.Lister
	// Ping validates the connection settings, typically by resolving
	// credentials.
	Ping func(ctx context.Context) error
	// Close is called on disconnect; it may be nil.
	Close func() error
}

// BackendFunc opens the backend of a connection.
type BackendFunc func(ctx context.Context, c *config.Config, log logrus.FieldLogger) (*Backend, error)

// EnvOption configures an Environment.
type EnvOption func(*Environment)

// WithBackend replaces the Timestream backend, mainly for tests.
func WithBackend(fn BackendFunc) EnvOption {
	return func(e *Environment) { e.backend = fn }
}

// WithDSNSource resolves DSN names from src instead of the DSN file.
func WithDSNSource(src config.DSNSource) EnvOption {
	return func(e *Environment) { e.dsns = src }
}

// Environment is an ODBC environment handle. It owns the SDK contexts of
// its connections: connections with identical settings share one, and all
// of them are released when the environment is freed.
type Environment struct {
	handle

	mu      sync.Mutex
	version int
	conns   int
	sdk     map[string]*timestream.Environment
	backend BackendFunc
	dsns    config.DSNSource
}

// NewEnvironment returns an environment defaulting to ODBC 3.
func NewEnvironment(opts ...EnvOption) *Environment {
	e := &Environment{version: OVODBC3, sdk: make(map[string]*timestream.Environment)}
	e.backend = e.timestreamBackend
	for _, o := range opts {
		o(e)
	}
	return e
}

// Version returns the ODBC version the application declared.
func (e *Environment) Version() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// SetAttr implements SQLSetEnvAttr.
func (e *Environment) SetAttr(attr int32, value int64) Return {
	e.begin()
	e.mu.Lock()
	defer e.mu.Unlock()
	switch attr {
	case AttrODBCVersion:
		switch value {
		case OVODBC2, OVODBC3, OVODBC38:
			e.version = int(value)
		default:
			return e.finish(diag.New(diag.StateInvalidAttrValue, "unsupported ODBC version %d", value))
		}
	case AttrConnectionPooling:
		if value != 0 {
			return e.finish(diag.New(diag.StateOptionChanged, "connection pooling is not supported"))
		}
	case AttrOutputNTS:
		if value == 0 {
			return e.finish(diag.New(diag.StateNotImplemented, "strings are always null-terminated"))
		}
	default:
		return e.finish(diag.New(diag.StateInvalidAttribute, "unknown environment attribute %d", attr))
	}
	return e.finish(nil)
}

// GetAttr implements SQLGetEnvAttr.
func (e *Environment) GetAttr(attr int32) (int64, Return) {
	e.begin()
	e.mu.Lock()
	defer e.mu.Unlock()
	switch attr {
	case AttrODBCVersion:
		return int64(e.version), e.finish(nil)
	case AttrConnectionPooling:
		return 0, e.finish(nil)
	case AttrOutputNTS:
		return 1, e.finish(nil)
	}
	return 0, e.finish(diag.New(diag.StateInvalidAttribute, "unknown environment attribute %d", attr))
}

// release closes every SDK context. It is called when the handle is freed.
func (e *Environment) release() {
	e.mu.Lock()
	sdk := e.sdk
	e.sdk = make(map[string]*timestream.Environment)
	e.mu.Unlock()
	for _, env := range sdk {
		_ = env.Close()
	}
}

// sdkFor returns the SDK context for c, creating it on first use.
func (e *Environment) sdkFor(ctx context.Context, c *config.Config, log logrus.FieldLogger) (*timestream.Environment, error) {
	key := c.ConnectionString()
	e.mu.Lock()
	defer e.mu.Unlock()
	if env, ok := e.sdk[key]; ok {
		return env, nil
	}
	env, err := timestream.NewEnvironment(ctx, c, log)
	if err != nil {
		return nil, err
	}
	e.sdk[key] = env
	return env, nil
}

func (e *Environment) timestreamBackend(ctx context.Context, c *config.Config, log logrus.FieldLogger) (*Backend, error) {
	env, err := e.sdkFor(ctx, c, log)
	if err != nil {
		return nil, err
	}
	cl := timestream.NewClient(env)
	return &Backend{
		Transport: timestream.NewTransport(cl.Query, log),
		Lister:    timestream.NewMetadata(cl.Write),
		Ping: func(ctx context.Context) error {
			_, err := env.Credentials(ctx)
			return err
		},
	}, nil
}
