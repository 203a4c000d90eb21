package odbc

import (
	"github.com/SimonWaldherr/tsodbc/internal/convert"
	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

// Field identifiers of SQLColAttribute.
const (
	DescConciseType          = 2
	DescDisplaySize          = 6
	DescUnsigned             = 8
	DescFixedPrecScale       = 9
	DescUpdatable            = 10
	DescAutoUniqueValue      = 11
	DescCaseSensitive        = 12
	DescSearchable           = 13
	DescTypeName             = 14
	DescTableName            = 15
	DescSchemaName           = 16
	DescCatalogName          = 17
	DescLabel                = 18
	DescBaseColumnName       = 22
	DescBaseTableName        = 23
	DescLiteralPrefix        = 27
	DescLiteralSuffix        = 28
	DescLocalTypeName        = 29
	DescNumPrecRadix         = 32
	DescCount                = 1001
	DescType                 = 1002
	DescLength               = 1003
	DescPrecision            = 1005
	DescScale                = 1006
	DescDatetimeIntervalCode = 1007
	DescNullable             = 1008
	DescName                 = 1011
	DescUnnamed              = 1012
	DescOctetLength          = 1013
)

const (
	named         = 0
	attrReadOnly  = 0
	searchable    = 3
	predBasic     = 2
	sqlTrue       = 1
	sqlFalse      = 0
	literalQuote  = "'"
	timestampLead = "TIMESTAMP '"
)

// ColAttr is the value of a column attribute: a string when IsString,
// otherwise Num.
type ColAttr struct {
	Str      string
	Num      int64
	IsString bool
}

func strAttr(s string) ColAttr { return ColAttr{Str: s, IsString: true} }
func numAttr(n int64) ColAttr  { return ColAttr{Num: n} }

func boolAttr(b bool) ColAttr {
	if b {
		return numAttr(sqlTrue)
	}
	return numAttr(sqlFalse)
}

// ColAttribute implements SQLColAttribute.
func (s *Statement) ColAttribute(col int, field uint16) (ColAttr, Return) {
	s.begin()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Load() == nil {
		return ColAttr{}, s.finish(diag.New(diag.StateFunctionSequence, "statement has no result set"))
	}
	if field == DescCount {
		return numAttr(int64(len(s.columns))), s.finish(nil)
	}
	if col < 1 || col > len(s.columns) {
		return ColAttr{}, s.finish(diag.New(diag.StateInvalidDescIndex, "column %d out of range", col))
	}
	a, err := columnAttribute(s.columns[col-1], field)
	return a, s.finish(err)
}

//nolint:gocyclo // flat field dispatch.
func columnAttribute(c convert.Column, field uint16) (ColAttr, error) {
	switch field {
	case DescName, DescLabel, DescBaseColumnName:
		return strAttr(c.Name), nil
	case DescUnnamed:
		return numAttr(named), nil
	case DescConciseType:
		return numAttr(int64(c.SQLType)), nil
	case DescType:
		return numAttr(int64(c.VerboseType)), nil
	case DescDatetimeIntervalCode:
		return numAttr(int64(c.SubCode)), nil
	case DescTypeName, DescLocalTypeName:
		return strAttr(c.TypeName), nil
	case DescLength:
		return numAttr(int64(c.Size)), nil
	case DescPrecision:
		if c.SubCode > 0 {
			return numAttr(int64(c.Digits)), nil
		}
		return numAttr(int64(c.Size)), nil
	case DescScale:
		return numAttr(int64(c.Digits)), nil
	case DescDisplaySize:
		return numAttr(c.DisplaySize), nil
	case DescOctetLength:
		return numAttr(c.OctetLength), nil
	case DescNumPrecRadix:
		return numAttr(int64(c.Radix)), nil
	case DescNullable:
		return numAttr(int64(c.Nullable)), nil
	case DescUnsigned:
		return boolAttr(c.Unsigned || !numeric(c.Kind)), nil
	case DescFixedPrecScale, DescAutoUniqueValue:
		return boolAttr(false), nil
	case DescCaseSensitive:
		return boolAttr(c.SQLType == convert.SQLVarchar), nil
	case DescSearchable:
		if c.SQLType == convert.SQLVarchar {
			return numAttr(searchable), nil
		}
		return numAttr(predBasic), nil
	case DescUpdatable:
		return numAttr(attrReadOnly), nil
	case DescTableName, DescSchemaName, DescCatalogName, DescBaseTableName:
		return strAttr(""), nil
	case DescLiteralPrefix:
		switch c.SQLType {
		case convert.SQLVarchar:
			return strAttr(literalQuote), nil
		case convert.SQLTypeTimestamp:
			return strAttr(timestampLead), nil
		}
		return strAttr(""), nil
	case DescLiteralSuffix:
		if c.SQLType == convert.SQLVarchar || c.SQLType == convert.SQLTypeTimestamp {
			return strAttr(literalQuote), nil
		}
		return strAttr(""), nil
	}
	return ColAttr{}, diag.New(diag.StateInvalidDescField, "unsupported column attribute %d", field)
}

func numeric(k convert.Kind) bool {
	return k == convert.KindBigint || k == convert.KindInteger || k == convert.KindDouble
}
