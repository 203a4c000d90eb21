// Package convert maps Timestream result data onto Go and ODBC types.
//
// Scalar values decode to the natural Go type (string, bool, int64, float64,
// time.Time). Intervals stay in their Timestream text form and nested values
// (arrays, rows, time series) are rendered into a single string, which is how
// relational clients see them.
package convert

import (
	"database/sql/driver"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

// Timestream text layouts.
const (
	TimestampLayout = "2006-01-02 15:04:05.999999999"
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05.999999999"
)

// Kind is the flattened type of a result column. Nested types collapse to
// their top-level kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindVarchar
	KindBoolean
	KindBigint
	KindInteger
	KindDouble
	KindTimestamp
	KindDate
	KindTime
	KindIntervalDayToSecond
	KindIntervalYearToMonth
	KindArray
	KindRow
	KindTimeSeries
)

var kindNames = [...]string{
	KindUnknown:             "unknown",
	KindVarchar:             "varchar",
	KindBoolean:             "boolean",
	KindBigint:              "bigint",
	KindInteger:             "integer",
	KindDouble:              "double",
	KindTimestamp:           "timestamp",
	KindDate:                "date",
	KindTime:                "time",
	KindIntervalDayToSecond: "interval day to second",
	KindIntervalYearToMonth: "interval year to month",
	KindArray:               "array",
	KindRow:                 "row",
	KindTimeSeries:          "timeseries",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// KindOf returns the kind of a column type. A nil type is unknown.
func KindOf(t *types.Type) Kind {
	if t == nil {
		return KindUnknown
	}
	switch {
	case t.ArrayColumnInfo != nil:
		return KindArray
	case len(t.RowColumnInfo) > 0:
		return KindRow
	case t.TimeSeriesMeasureValueColumnInfo != nil:
		return KindTimeSeries
	}
	return kindOfScalar(t.ScalarType)
}

func kindOfScalar(st types.ScalarType) Kind {
	switch st {
	case types.ScalarTypeVarchar:
		return KindVarchar
	case types.ScalarTypeBoolean:
		return KindBoolean
	case types.ScalarTypeBigint:
		return KindBigint
	case types.ScalarTypeInteger:
		return KindInteger
	case types.ScalarTypeDouble:
		return KindDouble
	case types.ScalarTypeTimestamp:
		return KindTimestamp
	case types.ScalarTypeDate:
		return KindDate
	case types.ScalarTypeTime:
		return KindTime
	case types.ScalarTypeIntervalDayToSecond:
		return KindIntervalDayToSecond
	case types.ScalarTypeIntervalYearToMonth:
		return KindIntervalYearToMonth
	default:
		return KindUnknown
	}
}

// Cell is one decoded value with the kind of its column.
type Cell struct {
	Kind  Kind
	Value driver.Value
}

// IsNull reports whether the cell holds SQL NULL.
func (c Cell) IsNull() bool { return c.Value == nil }

// IsNull reports whether d is a NULL datum.
func IsNull(d types.Datum) bool {
	if d.NullValue != nil && *d.NullValue {
		return true
	}
	return d.ScalarValue == nil && d.ArrayValue == nil && d.RowValue == nil && d.TimeSeriesValue == nil
}

// Decode converts one datum of a column of type t.
func Decode(t *types.Type, d types.Datum) (Cell, error) {
	k := KindOf(t)
	c := Cell{Kind: k}
	if IsNull(d) {
		return c, nil
	}
	switch k {
	case KindArray, KindRow, KindTimeSeries:
		c.Value = Render(t, d)
		return c, nil
	}
	if d.ScalarValue == nil {
		return c, diag.New(diag.StateRestrictedType, "convert: %s column holds a nested value", k)
	}
	v, err := ParseScalar(k, *d.ScalarValue)
	if err != nil {
		return c, err
	}
	c.Value = v
	return c, nil
}

// ParseScalar parses Timestream text for kind k.
func ParseScalar(k Kind, s string) (driver.Value, error) {
	switch k {
	case KindVarchar, KindIntervalDayToSecond, KindIntervalYearToMonth:
		return s, nil
	case KindBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, diag.Wrap(err, diag.StateInvalidCharValue, "convert: boolean %q", s)
		}
		return b, nil
	case KindBigint, KindInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, diag.Wrap(err, diag.StateInvalidCharValue, "convert: %s %q", k, s)
		}
		return n, nil
	case KindDouble:
		return parseDouble(s)
	case KindTimestamp:
		return parseTime(TimestampLayout, s)
	case KindDate:
		return parseTime(DateLayout, s)
	case KindTime:
		return parseTime(TimeLayout, s)
	case KindUnknown:
		return nil, nil
	}
	return s, nil
}

func parseDouble(s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity", "+Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, diag.Wrap(err, diag.StateInvalidCharValue, "convert: double %q", s)
	}
	return f, nil
}

func parseTime(layout, s string) (time.Time, error) {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, diag.Wrap(err, diag.StateInvalidDatetime, "convert: %q", s)
	}
	return t, nil
}

// Format renders a decoded value the way Timestream prints it.
func Format(c Cell) string {
	switch v := c.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatDouble(v)
	case time.Time:
		switch c.Kind {
		case KindDate:
			return v.Format(DateLayout)
		case KindTime:
			return v.Format("15:04:05.000000000")
		default:
			return v.Format("2006-01-02 15:04:05.000000000")
		}
	case []byte:
		return string(v)
	}
	return ""
}

func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Decoder decodes whole rows. It implements query.RowDecoder.
type Decoder struct{}

// DecodeRow fills dest with the values of row. dest must have one slot per
// column. The first failing column aborts the row.
func (Decoder) DecodeRow(cols []types.ColumnInfo, row types.Row, dest []driver.Value) error {
	for i := range dest {
		dest[i] = nil
		if i >= len(row.Data) || i >= len(cols) {
			continue
		}
		c, err := Decode(cols[i].Type, row.Data[i])
		if err != nil {
			return diag.Wrap(err, diag.StateGeneral, "column %d", i+1)
		}
		dest[i] = c.Value
	}
	return nil
}

// Cells decodes every datum of row. Columns beyond the row are NULL. A
// column that fails to decode is left NULL and reported in errs at its index;
// errs is nil when every column decoded.
func Cells(cols []types.ColumnInfo, row types.Row) (cells []Cell, errs []error) {
	cells = make([]Cell, len(cols))
	for i, col := range cols {
		cells[i].Kind = KindOf(col.Type)
		if i >= len(row.Data) {
			continue
		}
		c, err := Decode(col.Type, row.Data[i])
		if err != nil {
			if errs == nil {
				errs = make([]error, len(cols))
			}
			errs[i] = diag.Wrap(err, diag.StateGeneral, "column %d", i+1)
			continue
		}
		cells[i] = c
	}
	return cells, errs
}
