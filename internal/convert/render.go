package convert

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
)

// Render prints a datum of type t as text. Arrays print as [a, b], rows as
// (a, b) and time series as [{time: t, value: v}, ...]. NULL elements print
// as "null".
func Render(t *types.Type, d types.Datum) string {
	var b strings.Builder
	render(&b, t, d)
	return b.String()
}

func render(b *strings.Builder, t *types.Type, d types.Datum) {
	if d.NullValue != nil && *d.NullValue {
		b.WriteString("null")
		return
	}
	switch {
	case d.ArrayValue != nil:
		var elem *types.Type
		if t != nil && t.ArrayColumnInfo != nil {
			elem = t.ArrayColumnInfo.Type
		}
		b.WriteByte('[')
		for i, e := range d.ArrayValue {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, elem, e)
		}
		b.WriteByte(']')
	case d.RowValue != nil:
		b.WriteByte('(')
		for i, e := range d.RowValue.Data {
			if i > 0 {
				b.WriteString(", ")
			}
			var ft *types.Type
			if t != nil && i < len(t.RowColumnInfo) {
				ft = t.RowColumnInfo[i].Type
			}
			render(b, ft, e)
		}
		b.WriteByte(')')
	case d.TimeSeriesValue != nil:
		var vt *types.Type
		if t != nil && t.TimeSeriesMeasureValueColumnInfo != nil {
			vt = t.TimeSeriesMeasureValueColumnInfo.Type
		}
		b.WriteByte('[')
		for i, p := range d.TimeSeriesValue {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("{time: ")
			if p.Time != nil {
				b.WriteString(*p.Time)
			}
			b.WriteString(", value: ")
			if p.Value != nil {
				render(b, vt, *p.Value)
			} else {
				b.WriteString("null")
			}
			b.WriteByte('}')
		}
		b.WriteByte(']')
	case d.ScalarValue != nil:
		b.WriteString(*d.ScalarValue)
	default:
		b.WriteString("null")
	}
}

// TypeName returns the Timestream spelling of t, e.g. array(row(varchar, bigint)).
func TypeName(t *types.Type) string {
	if t == nil {
		return "unknown"
	}
	switch {
	case t.ArrayColumnInfo != nil:
		return "array(" + TypeName(t.ArrayColumnInfo.Type) + ")"
	case len(t.RowColumnInfo) > 0:
		parts := make([]string, len(t.RowColumnInfo))
		for i, c := range t.RowColumnInfo {
			parts[i] = TypeName(c.Type)
		}
		return "row(" + strings.Join(parts, ", ") + ")"
	case t.TimeSeriesMeasureValueColumnInfo != nil:
		return "timeseries(" + TypeName(t.TimeSeriesMeasureValueColumnInfo.Type) + ")"
	}
	return kindOfScalar(t.ScalarType).String()
}

// ParseTypeName is the inverse of TypeName for the names DESCRIBE returns.
// Unknown names map to varchar.
func ParseTypeName(name string) *types.Type {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(name, "array(") && strings.HasSuffix(name, ")"):
		inner := ParseTypeName(name[len("array(") : len(name)-1])
		return &types.Type{ArrayColumnInfo: &types.ColumnInfo{Type: inner}}
	case strings.HasPrefix(name, "timeseries(") && strings.HasSuffix(name, ")"):
		inner := ParseTypeName(name[len("timeseries(") : len(name)-1])
		return &types.Type{TimeSeriesMeasureValueColumnInfo: &types.ColumnInfo{Type: inner}}
	case strings.HasPrefix(name, "row(") && strings.HasSuffix(name, ")"):
		var cols []types.ColumnInfo
		for _, f := range splitTopLevel(name[len("row(") : len(name)-1]) {
			cols = append(cols, types.ColumnInfo{Type: ParseTypeName(f)})
		}
		return &types.Type{RowColumnInfo: cols}
	}
	for k, n := range kindNames {
		if n == name {
			if st, ok := scalarOfKind(Kind(k)); ok {
				return &types.Type{ScalarType: st}
			}
		}
	}
	switch name {
	case "int":
		return &types.Type{ScalarType: types.ScalarTypeInteger}
	case "bool":
		return &types.Type{ScalarType: types.ScalarTypeBoolean}
	}
	return &types.Type{ScalarType: types.ScalarTypeVarchar}
}

func scalarOfKind(k Kind) (types.ScalarType, bool) {
	switch k {
	case KindVarchar:
		return types.ScalarTypeVarchar, true
	case KindBoolean:
		return types.ScalarTypeBoolean, true
	case KindBigint:
		return types.ScalarTypeBigint, true
	case KindInteger:
		return types.ScalarTypeInteger, true
	case KindDouble:
		return types.ScalarTypeDouble, true
	case KindTimestamp:
		return types.ScalarTypeTimestamp, true
	case KindDate:
		return types.ScalarTypeDate, true
	case KindTime:
		return types.ScalarTypeTime, true
	case KindIntervalDayToSecond:
		return types.ScalarTypeIntervalDayToSecond, true
	case KindIntervalYearToMonth:
		return types.ScalarTypeIntervalYearToMonth, true
	case KindUnknown:
		return types.ScalarTypeUnknown, true
	}
	return "", false
}

// splitTopLevel splits on commas that are not inside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
