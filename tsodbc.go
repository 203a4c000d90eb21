// Package tsodbc is an Amazon Timestream driver for ODBC applications and
// Go programs.
//
// The driver runs a query one page at a time. The first page is requested
// synchronously; every later page is fetched by a background goroutine
// while the application consumes the rows it already has. At most one page
// request is in flight per query and prefetched pages are bounded.
//
// # database/sql
//
// Import the driver package and open a pool with an ODBC connection string:
//
//	import _ "github.com/SimonWaldherr/tsodbc/driver"
//
//	db, err := sql.Open("timestream", "Region=us-east-1;Auth=AWS_PROFILE;ProfileName=analytics")
//	rows, err := db.QueryContext(ctx, "SELECT * FROM iot.metrics WHERE time > ago(?)", 15*time.Minute)
//
// # ODBC
//
// Build the shared library and register it with the driver manager:
//
//	go build -buildmode=c-shared -o libtsodbc.so ./odbc
//
// # Embedding the pager
//
// Sessions work with any Transport, which makes them usable for replaying
// recorded pages or for other paginated query APIs:
//
//	s := tsodbc.NewSession(transport, "SELECT 1")
//	defer s.Close()
//	if _, err := s.Execute(ctx); err != nil { ... }
//	for {
//	    row, err := s.Next()
//	    if err == io.EOF { break }
//	    ...
//	}
package tsodbc

import (
	"github.com/SimonWaldherr/tsodbc/internal/config"
	"github.com/SimonWaldherr/tsodbc/internal/convert"
	"github.com/SimonWaldherr/tsodbc/internal/query"
)

// ============================================================================
// Configuration
// ============================================================================

// Config is a parsed connection configuration.
type Config = config.Config

// DSNFile is the YAML file of named data sources.
type DSNFile = config.DSNFile

// ParseConfig parses an ODBC connection string.
func ParseConfig(connStr string) (*Config, error) { return config.Parse(connStr) }

// LoadDSNFile reads a DSN file. A missing file yields an empty one.
func LoadDSNFile(path string) (*DSNFile, error) { return config.LoadDSNFile(path) }

// ============================================================================
// Paginated queries
// ============================================================================

// Session is one executed query and its forward-only cursor.
type Session = query.Session

// Page is one page of a query result.
type Page = query.Page

// Request describes one page request.
type Request = query.Request

// Transport executes single page requests.
type Transport = query.Transport

// TransportFunc adapts a function to Transport.
type TransportFunc = query.TransportFunc

// SessionOption configures a Session.
type SessionOption = query.Option

// Stats counts the pagination work of a session.
type Stats = query.Stats

// Session options.
var (
	WithTimeout        = query.WithTimeout
	WithMaxRowsPerPage = query.WithMaxRowsPerPage
	WithQueueDepth     = query.WithQueueDepth
	WithLogger         = query.WithLogger
	WithClientToken    = query.WithClientToken
)

// NewSession creates a session for sql. Nothing is sent until Execute.
func NewSession(t Transport, sql string, opts ...SessionOption) *Session {
	return query.New(t, sql, opts...)
}

// ============================================================================
// Row decoding
// ============================================================================

// Decoder turns Timestream rows into database/sql values.
type Decoder = convert.Decoder

// Column is the ODBC description of a result column.
type Column = convert.Column

// DescribeColumns describes the result columns of a session.
func DescribeColumns(s *Session) []Column { return convert.DescribeAll(s.Columns()) }
