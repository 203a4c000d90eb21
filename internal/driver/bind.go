package driver

import (
	"database/sql/driver"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/SimonWaldherr/tsodbc/internal/convert"
)

// literal is SQL text substituted verbatim.
type literal string

// bindPlaceholders substitutes ?, $n and :n with Timestream literals.
// Placeholders inside string literals, quoted identifiers, line comments
// and block comments are left alone.
//
//nolint:gocyclo // single pass lexer over quotes, comments and placeholders.
func bindPlaceholders(sqlStr string, args []driver.NamedValue) (string, error) {
	var sb strings.Builder
	sb.Grow(len(sqlStr) + len(args)*10)
	argi := 0
	numbered := false
	for i := 0; i < len(sqlStr); i++ {
		ch := sqlStr[i]
		switch {
		case ch == '\'' || ch == '"':
			j := skipQuoted(sqlStr, i)
			sb.WriteString(sqlStr[i:j])
			i = j - 1
			continue
		case ch == '-' && i+1 < len(sqlStr) && sqlStr[i+1] == '-':
			j := strings.IndexByte(sqlStr[i:], '\n')
			if j < 0 {
				sb.WriteString(sqlStr[i:])
				i = len(sqlStr)
				continue
			}
			sb.WriteString(sqlStr[i : i+j])
			i += j - 1
			continue
		case ch == '/' && i+1 < len(sqlStr) && sqlStr[i+1] == '*':
			j := strings.Index(sqlStr[i+2:], "*/")
			if j < 0 {
				sb.WriteString(sqlStr[i:])
				i = len(sqlStr)
				continue
			}
			end := i + 2 + j + 2
			sb.WriteString(sqlStr[i:end])
			i = end - 1
			continue
		case ch == '?':
			if argi >= len(args) {
				return "", errors.New("tsodbc: not enough args for placeholders")
			}
			lit, err := sqlLiteral(args[argi].Value)
			if err != nil {
				return "", errors.Wrapf(err, "tsodbc: arg %d", argi+1)
			}
			sb.WriteString(lit)
			argi++
			continue
		case (ch == '$' || ch == ':') && i+1 < len(sqlStr) && isDigit(sqlStr[i+1]):
			j := i + 2
			for j < len(sqlStr) && isDigit(sqlStr[j]) {
				j++
			}
			idxStr := sqlStr[i+1 : j]
			n, err := strconv.Atoi(idxStr)
			if err != nil || n <= 0 || n > len(args) {
				return "", errors.Errorf("tsodbc: invalid placeholder %c%s", ch, idxStr)
			}
			lit, err := sqlLiteral(args[n-1].Value)
			if err != nil {
				return "", errors.Wrapf(err, "tsodbc: arg %d", n)
			}
			sb.WriteString(lit)
			numbered = true
			i = j - 1
			continue
		}
		sb.WriteByte(ch)
	}
	if !numbered && argi != len(args) {
		return "", errors.New("tsodbc: too many args for placeholders")
	}
	return sb.String(), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// skipQuoted returns the index after the quoted run starting at i. A
// doubled quote character escapes itself.
func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// sqlLiteral renders v as a Timestream literal.
func sqlLiteral(v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	if l, ok := literalOf(v); ok {
		return string(l), nil
	}
	return "", errors.Errorf("unsupported argument type %T", v)
}

func literalOf(v any) (literal, bool) {
	switch x := v.(type) {
	case literal:
		return x, true
	case string:
		return quote(x), true
	case []byte:
		return quote(string(x)), true
	case bool:
		if x {
			return "TRUE", true
		}
		return "FALSE", true
	case int:
		return literal(strconv.FormatInt(int64(x), 10)), true
	case int8:
		return literal(strconv.FormatInt(int64(x), 10)), true
	case int16:
		return literal(strconv.FormatInt(int64(x), 10)), true
	case int32:
		return literal(strconv.FormatInt(int64(x), 10)), true
	case int64:
		return literal(strconv.FormatInt(x, 10)), true
	case uint8:
		return literal(strconv.FormatUint(uint64(x), 10)), true
	case uint16:
		return literal(strconv.FormatUint(uint64(x), 10)), true
	case uint32:
		return literal(strconv.FormatUint(uint64(x), 10)), true
	case uint64:
		return literal(strconv.FormatUint(x, 10)), true
	case float32:
		return doubleLiteral(float64(x)), true
	case float64:
		return doubleLiteral(x), true
	case decimal.Decimal:
		return literal(x.String()), true
	case time.Time:
		return literal("TIMESTAMP '" + x.UTC().Format(convert.TimestampLayout) + "'"), true
	case time.Duration:
		return intervalLiteral(x), true
	}
	return "", false
}

func quote(s string) literal {
	return literal("'" + strings.ReplaceAll(s, "'", "''") + "'")
}

func doubleLiteral(f float64) literal {
	switch {
	case math.IsNaN(f):
		return "nan()"
	case math.IsInf(f, 1):
		return "infinity()"
	case math.IsInf(f, -1):
		return "-infinity()"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return literal(s)
}

// intervalLiteral renders d as a Timestream duration such as 90s or 1500ms.
func intervalLiteral(d time.Duration) literal {
	switch {
	case d == 0:
		return "0s"
	case d%time.Hour == 0:
		return literal(strconv.FormatInt(int64(d/time.Hour), 10) + "h")
	case d%time.Minute == 0:
		return literal(strconv.FormatInt(int64(d/time.Minute), 10) + "m")
	case d%time.Second == 0:
		return literal(strconv.FormatInt(int64(d/time.Second), 10) + "s")
	case d%time.Millisecond == 0:
		return literal(strconv.FormatInt(int64(d/time.Millisecond), 10) + "ms")
	case d%time.Microsecond == 0:
		return literal(strconv.FormatInt(int64(d/time.Microsecond), 10) + "us")
	}
	return literal(strconv.FormatInt(int64(d), 10) + "ns")
}
