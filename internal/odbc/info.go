package odbc

import (
	"github.com/SimonWaldherr/tsodbc/internal/config"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

// Driver identification reported by SQLGetInfo.
const (
	DriverName    = "libtsodbc.so"
	DriverVersion = "01.00.0000"
	DriverODBCVer = "03.80"
	DBMSName      = "Amazon Timestream"
	DBMSVersion   = "01.00.0000"
)

// Information types of SQLGetInfo.
const (
	InfoMaxDriverConnections     = 0
	InfoMaxConcurrentActivities  = 1
	InfoDataSourceName           = 2
	InfoDriverName               = 6
	InfoDriverVer                = 7
	InfoServerName               = 13
	InfoSearchPatternEscape      = 14
	InfoDatabaseName             = 16
	InfoDBMSName                 = 17
	InfoDBMSVer                  = 18
	InfoAccessibleTables         = 19
	InfoAccessibleProcedures     = 20
	InfoConcatNullBehavior       = 22
	InfoCursorCommitBehavior     = 23
	InfoDataSourceReadOnly       = 25
	InfoDefaultTxnIsolation      = 26
	InfoIdentifierCase           = 28
	InfoIdentifierQuoteChar      = 29
	InfoMaxColumnNameLen         = 30
	InfoMaxCursorNameLen         = 31
	InfoMaxSchemaNameLen         = 32
	InfoMaxCatalogNameLen        = 34
	InfoMaxTableNameLen          = 35
	InfoMultipleActiveTxn        = 37
	InfoSchemaTerm               = 39
	InfoProcedureTerm            = 40
	InfoCatalogNameSeparator     = 41
	InfoCatalogTerm              = 42
	InfoScrollOptions            = 44
	InfoTableTerm                = 45
	InfoTxnCapable               = 46
	InfoUserName                 = 47
	InfoDriverODBCVer            = 77
	InfoGetDataExtensions        = 81
	InfoOrderByColumnsInSelect   = 90
	InfoSchemaUsage              = 91
	InfoCatalogUsage             = 92
	InfoNeedLongDataLen          = 111
	InfoSQLConformance           = 118
	InfoODBCInterfaceConformance = 152
	InfoCatalogName              = 10003
	InfoCollationSeq             = 10004
	InfoMaxIdentifierLen         = 10005
)

const (
	maxNameLen       = 256
	tcNone           = 0
	cbPreserve       = 2
	cbNull           = 0
	icSensitive      = 3
	soForwardOnly    = 1
	gdAnyColumn      = 1
	gdAnyOrder       = 2
	gdBound          = 8
	cuDMLStatements  = 1
	scSQL92Entry     = 1
	oicCore          = 1
	txnReadCommitted = 2
)

// InfoValue is the answer to SQLGetInfo: a string, or an integer of Size
// bytes (2 or 4).
type InfoValue struct {
	Str  string
	Num  uint32
	Size int
}

// IsString reports whether the value is a character string.
func (v InfoValue) IsString() bool { return v.Size == 0 }

func infoStr(s string) InfoValue { return InfoValue{Str: s} }
func infoU16(n uint16) InfoValue { return InfoValue{Num: uint32(n), Size: 2} }
func infoU32(n uint32) InfoValue { return InfoValue{Num: n, Size: 4} }
func infoYN(b bool) InfoValue {
	if b {
		return infoStr("Y")
	}
	return infoStr("N")
}

// GetInfo implements SQLGetInfo.
//
//nolint:gocyclo // flat info type dispatch.
func (c *Connection) GetInfo(infoType uint16) (InfoValue, Return) {
	c.begin()
	cfg := c.Config()
	if cfg == nil {
		cfg = config.Default()
	}
	var v InfoValue
	switch infoType {
	case InfoDriverName:
		v = infoStr(DriverName)
	case InfoDriverVer:
		v = infoStr(DriverVersion)
	case InfoDriverODBCVer:
		v = infoStr(DriverODBCVer)
	case InfoDBMSName:
		v = infoStr(DBMSName)
	case InfoDBMSVer:
		v = infoStr(DBMSVersion)
	case InfoDataSourceName:
		v = infoStr(cfg.DSN)
	case InfoServerName:
		if cfg.EndpointOverride != "" {
			v = infoStr(cfg.EndpointOverride)
		} else {
			v = infoStr(cfg.Region)
		}
	case InfoUserName:
		if cfg.Auth == config.AuthIAM {
			v = infoStr(cfg.AccessKeyID)
		} else {
			v = infoStr(cfg.ProfileName)
		}
	case InfoDatabaseName, InfoSchemaTerm, InfoProcedureTerm, InfoCollationSeq:
		v = infoStr("")
	case InfoCatalogTerm:
		v = infoStr("database")
	case InfoTableTerm:
		v = infoStr("table")
	case InfoCatalogNameSeparator:
		v = infoStr(".")
	case InfoIdentifierQuoteChar:
		v = infoStr(`"`)
	case InfoSearchPatternEscape:
		v = infoStr(`\`)
	case InfoAccessibleTables, InfoDataSourceReadOnly, InfoCatalogName:
		v = infoYN(true)
	case InfoAccessibleProcedures, InfoMultipleActiveTxn, InfoOrderByColumnsInSelect, InfoNeedLongDataLen:
		v = infoYN(false)
	case InfoMaxDriverConnections, InfoMaxConcurrentActivities, InfoMaxCursorNameLen, InfoMaxSchemaNameLen:
		v = infoU16(0)
	case InfoMaxColumnNameLen, InfoMaxCatalogNameLen, InfoMaxTableNameLen, InfoMaxIdentifierLen:
		v = infoU16(maxNameLen)
	case InfoTxnCapable:
		v = infoU16(tcNone)
	case InfoCursorCommitBehavior:
		v = infoU16(cbPreserve)
	case InfoConcatNullBehavior:
		v = infoU16(cbNull)
	case InfoIdentifierCase:
		v = infoU16(icSensitive)
	case InfoDefaultTxnIsolation:
		v = infoU32(txnReadCommitted)
	case InfoScrollOptions:
		v = infoU32(soForwardOnly)
	case InfoGetDataExtensions:
		v = infoU32(gdAnyColumn | gdAnyOrder | gdBound)
	case InfoSchemaUsage:
		v = infoU32(0)
	case InfoCatalogUsage:
		v = infoU32(cuDMLStatements)
	case InfoSQLConformance:
		v = infoU32(scSQL92Entry)
	case InfoODBCInterfaceConformance:
		v = infoU32(oicCore)
	default:
		return InfoValue{}, c.finish(diag.New(diag.StateInvalidInfoType, "unsupported information type %d", infoType))
	}
	return v, c.finish(nil)
}
