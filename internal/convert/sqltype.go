package convert

import (
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
)

// ODBC SQL data types.
const (
	SQLUnknownType         int16 = 0
	SQLChar                int16 = 1
	SQLNumeric             int16 = 2
	SQLInteger             int16 = 4
	SQLDouble              int16 = 8
	SQLVarchar             int16 = 12
	SQLLongVarchar         int16 = -1
	SQLBigint              int16 = -5
	SQLBit                 int16 = -7
	SQLWChar               int16 = -8
	SQLWVarchar            int16 = -9
	SQLTypeDate            int16 = 91
	SQLTypeTime            int16 = 92
	SQLTypeTimestamp       int16 = 93
	SQLIntervalYearToMonth int16 = 107
	SQLIntervalDayToSecond int16 = 110
)

// Nullability and searchability codes.
const (
	SQLNoNulls         int16 = 0
	SQLNullable        int16 = 1
	SQLNullableUnknown int16 = 2
	SQLPredNone        int16 = 0
	SQLSearchable      int16 = 3
)

const (
	maxVarcharLen      = 2147483647
	intervalLen        = 64
	timestampPrecision = 9

	sqlDatetime = 9
	sqlInterval = 10

	datetimeIntervalCodeDate        = 1
	datetimeIntervalCodeTime        = 2
	datetimeIntervalCodeTimestamp   = 3
	datetimeIntervalCodeYearToMonth = 7
	datetimeIntervalCodeDayToSecond = 10
)

// Column describes a result column in ODBC terms.
type Column struct {
	Name        string
	Kind        Kind
	TypeName    string
	SQLType     int16
	Size        uint64
	Digits      int16
	DisplaySize int64
	OctetLength int64
	Radix       int16
	Nullable    int16
	Unsigned    bool
	ScanType    reflect.Type
	// VerboseType and SubCode fill SQL_DATA_TYPE and SQL_DATETIME_SUB.
	VerboseType int16
	SubCode     int16
}

var (
	scanString = reflect.TypeOf("")
	scanBool   = reflect.TypeOf(false)
	scanInt64  = reflect.TypeOf(int64(0))
	scanDouble = reflect.TypeOf(float64(0))
	scanTime   = reflect.TypeOf(time.Time{})
	scanAny    = reflect.TypeOf((*any)(nil)).Elem()
)

// Describe returns the ODBC description of col.
func Describe(col types.ColumnInfo) Column {
	k := KindOf(col.Type)
	c := Column{
		Name:     aws.ToString(col.Name),
		Kind:     k,
		TypeName: TypeName(col.Type),
		Nullable: SQLNullableUnknown,
		SQLType:  SQLVarchar,
		ScanType: scanString,
	}
	switch k {
	case KindBoolean:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength = SQLBit, 1, 1, 1
		c.ScanType = scanBool
	case KindBigint:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength, c.Radix = SQLBigint, 19, 20, 8, 10
		c.ScanType = scanInt64
	case KindInteger:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength, c.Radix = SQLInteger, 10, 11, 4, 10
		c.ScanType = scanInt64
	case KindDouble:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength, c.Radix = SQLDouble, 15, 24, 8, 2
		c.ScanType = scanDouble
	case KindTimestamp:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength = SQLTypeTimestamp, 29, 29, 16
		c.Digits = timestampPrecision
		c.VerboseType, c.SubCode = sqlDatetime, datetimeIntervalCodeTimestamp
		c.ScanType = scanTime
	case KindDate:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength = SQLTypeDate, 10, 10, 6
		c.VerboseType, c.SubCode = sqlDatetime, datetimeIntervalCodeDate
		c.ScanType = scanTime
	case KindTime:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength = SQLTypeTime, 18, 18, 6
		c.Digits = timestampPrecision
		c.VerboseType, c.SubCode = sqlDatetime, datetimeIntervalCodeTime
		c.ScanType = scanTime
	case KindIntervalDayToSecond:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength = SQLIntervalDayToSecond, intervalLen, intervalLen, intervalLen
		c.Digits = timestampPrecision
		c.VerboseType, c.SubCode = sqlInterval, datetimeIntervalCodeDayToSecond
	case KindIntervalYearToMonth:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength = SQLIntervalYearToMonth, intervalLen, intervalLen, intervalLen
		c.VerboseType, c.SubCode = sqlInterval, datetimeIntervalCodeYearToMonth
	case KindUnknown:
		c.SQLType, c.Size, c.DisplaySize, c.OctetLength = SQLVarchar, maxVarcharLen, maxVarcharLen, maxVarcharLen
		c.ScanType = scanAny
	default:
		c.Size, c.DisplaySize, c.OctetLength = maxVarcharLen, maxVarcharLen, maxVarcharLen
	}
	if c.VerboseType == 0 {
		c.VerboseType = c.SQLType
	}
	return c
}

// DescribeAll describes every column.
func DescribeAll(cols []types.ColumnInfo) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = Describe(c)
	}
	return out
}
