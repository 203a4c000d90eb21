// Package driver is the public database/sql entry point of the Timestream
// driver. Importing it registers the "timestream" driver.
package driver

import (
	"database/sql"

	"github.com/SimonWaldherr/tsodbc/internal/config"
	id "github.com/SimonWaldherr/tsodbc/internal/driver"
)

// DriverName is the registered database/sql driver name.
const DriverName = id.Name

// Open is a convenience wrapper around sql.Open(DriverName, connStr).
func Open(connStr string) (*sql.DB, error) { return sql.Open(DriverName, connStr) }

// OpenDSN opens the named data source from the DSN file.
func OpenDSN(name string) (*sql.DB, error) { return Open("DSN={" + name + "}") }

// OpenConfig opens a pool for an already parsed configuration.
func OpenConfig(cfg *config.Config) *sql.DB { return sql.OpenDB(id.NewConnector(cfg)) }

// Re-export selected symbols from the internal driver package so external
// consumers can use a stable public API while the implementation remains
// hidden under internal/driver.
var (
	NewConnector  = id.NewConnector
	WithTransport = id.WithTransport
	WithLogger    = id.WithLogger
)

// Connector is the database/sql connector type.
type Connector = id.Connector
