package convert

import (
	"encoding/binary"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

// CType is an ODBC C data type identifier.
type CType int16

const (
	CChar                   CType = 1
	CNumeric                CType = 2
	CLong                   CType = 4
	CShort                  CType = 5
	CFloat                  CType = 7
	CDouble                 CType = 8
	CTypeDate               CType = 91
	CTypeTime               CType = 92
	CTypeTimestamp          CType = 93
	CDefault                CType = 99
	CIntervalYear           CType = 101
	CIntervalMonth          CType = 102
	CIntervalDay            CType = 103
	CIntervalHour           CType = 104
	CIntervalMinute         CType = 105
	CIntervalSecond         CType = 106
	CIntervalYearToMonth    CType = 107
	CIntervalDayToHour      CType = 108
	CIntervalDayToMinute    CType = 109
	CIntervalDayToSecond    CType = 110
	CIntervalHourToMinute   CType = 111
	CIntervalHourToSecond   CType = 112
	CIntervalMinuteToSecond CType = 113
	CBinary                 CType = -2
	CTinyInt                CType = -6
	CBit                    CType = -7
	CWChar                  CType = -8
	CSLong                  CType = -16
	CSShort                 CType = -15
	CULong                  CType = -18
	CUShort                 CType = -17
	CSBigInt                CType = -25
	CSTinyInt               CType = -26
	CUBigInt                CType = -27
	CUTinyInt               CType = -28
)

// Length indicator values.
const (
	NullData int64 = -1
	NoTotal  int64 = -4
)

// Fixed C struct sizes.
const (
	dateStructSize      = 6
	timeStructSize      = 6
	timestampStructSize = 16
	numericStructSize   = 19
	intervalStructSize  = 28
	maxNumericPrecision = 38
	intervalFracDigits  = 6
)

// ErrNoData is returned when a chunked read has already returned every byte.
var ErrNoData = errors.New("convert: no more data")

// Result describes what Encode wrote.
type Result struct {
	// Written is the number of bytes stored in the buffer, without terminator.
	Written int
	// Length is the value for the length/indicator: the bytes still available
	// before this call for variable types, the struct size for fixed types,
	// or NullData.
	Length int64
}

// FixedSize returns the buffer size of a fixed-length C type, or 0 for
// variable-length types.
func FixedSize(ct CType) int {
	switch ct {
	case CTinyInt, CSTinyInt, CUTinyInt, CBit:
		return 1
	case CShort, CSShort, CUShort:
		return 2
	case CLong, CSLong, CULong, CFloat:
		return 4
	case CSBigInt, CUBigInt, CDouble:
		return 8
	case CTypeDate:
		return dateStructSize
	case CTypeTime:
		return timeStructSize
	case CTypeTimestamp:
		return timestampStructSize
	case CNumeric:
		return numericStructSize
	}
	if isInterval(ct) {
		return intervalStructSize
	}
	return 0
}

// DefaultCType returns the C type SQL_C_DEFAULT resolves to for kind k.
func DefaultCType(k Kind) CType {
	switch k {
	case KindBoolean:
		return CBit
	case KindBigint:
		return CSBigInt
	case KindInteger:
		return CSLong
	case KindDouble:
		return CDouble
	case KindTimestamp:
		return CTypeTimestamp
	case KindDate:
		return CTypeDate
	case KindTime:
		return CTypeTime
	case KindIntervalDayToSecond:
		return CIntervalDayToSecond
	case KindIntervalYearToMonth:
		return CIntervalYearToMonth
	}
	return CChar
}

// Encoder writes cells into ODBC client buffers.
type Encoder struct {
	charset encoding.Encoding
	now     func() time.Time
}

var charsetAliases = map[string]encoding.Encoding{
	"LATIN1": charmap.ISO8859_1,
	"CP1252": charmap.Windows1252,
	"CP850":  charmap.CodePage850,
}

// NewEncoder returns an encoder producing SQL_C_CHAR data in charset.
// An empty name or UTF-8 leaves strings untouched.
func NewEncoder(charset string) (*Encoder, error) {
	name := strings.ToUpper(strings.TrimSpace(charset))
	switch name {
	case "", "UTF-8", "UTF8":
		return &Encoder{now: time.Now}, nil
	}
	if enc, ok := charsetAliases[name]; ok {
		return &Encoder{charset: enc, now: time.Now}, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, diag.New(diag.StateInvalidAttribute, "convert: unsupported charset %q", charset)
	}
	return &Encoder{charset: enc, now: time.Now}, nil
}

// Charset bytes for s. Characters the charset cannot represent are replaced.
func (e *Encoder) charBytes(s string) ([]byte, error) {
	if e.charset == nil {
		return []byte(s), nil
	}
	b, err := encoding.ReplaceUnsupported(e.charset.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, diag.Wrap(err, diag.StateInvalidCharValue, "convert: encode")
	}
	return b, nil
}

// DecodeString converts client SQL_C_CHAR input to UTF-8.
func (e *Encoder) DecodeString(b []byte) (string, error) {
	if e.charset == nil {
		return string(b), nil
	}
	out, err := e.charset.NewDecoder().Bytes(b)
	if err != nil {
		return "", diag.Wrap(err, diag.StateInvalidCharValue, "convert: decode")
	}
	return string(out), nil
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// WideBytes returns s as UTF-16LE without terminator.
func WideBytes(s string) ([]byte, error) {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, diag.Wrap(err, diag.StateInvalidCharValue, "convert: utf-16")
	}
	return b, nil
}

// DecodeWide converts UTF-16LE bytes to a string.
func DecodeWide(b []byte) (string, error) {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", diag.Wrap(err, diag.StateInvalidCharValue, "convert: utf-16")
	}
	return string(out), nil
}

// Encode writes c as C type ct into buf. offset is the number of bytes of
// this value already returned by earlier calls; it is only meaningful for
// character and binary targets and must be 0 otherwise. A returned error
// may be a warning (diag.IsWarning) in which case the result is valid.
func (e *Encoder) Encode(c Cell, ct CType, buf []byte, offset int) (Result, error) {
	if ct == CDefault {
		ct = DefaultCType(c.Kind)
	}
	if c.IsNull() {
		return Result{Length: NullData}, nil
	}
	switch ct {
	case CChar:
		b, err := e.charBytes(Format(c))
		if err != nil {
			return Result{}, err
		}
		return e.chunk(c, b, buf, offset, 1)
	case CWChar:
		b, err := WideBytes(Format(c))
		if err != nil {
			return Result{}, err
		}
		return e.chunk(c, b, buf, offset, 2)
	case CBinary:
		return e.chunk(c, []byte(Format(c)), buf, offset, 0)
	}
	if offset > 0 {
		return Result{}, ErrNoData
	}
	size := FixedSize(ct)
	if size == 0 {
		return Result{}, diag.New(diag.StateRestrictedType, "convert: unsupported C type %d", ct)
	}
	if len(buf) < size {
		return Result{}, diag.New(diag.StateInvalidBufferLen, "convert: buffer of %d bytes for C type %d", len(buf), ct)
	}
	res := Result{Written: size, Length: int64(size)}
	var warn error
	var err error
	switch {
	case ct == CBit:
		warn, err = putBit(c, buf)
	case ct == CFloat || ct == CDouble:
		warn, err = putFloat(c, ct, buf)
	case ct == CTypeDate || ct == CTypeTime || ct == CTypeTimestamp:
		warn, err = e.putDatetime(c, ct, buf)
	case ct == CNumeric:
		warn, err = putNumeric(c, buf)
	case isInterval(ct):
		warn, err = putInterval(c, ct, buf)
	default:
		warn, err = putInteger(c, ct, buf)
	}
	if err != nil {
		return Result{}, err
	}
	return res, warn
}

// chunk copies the part of full starting at offset into buf followed by
// term zero bytes.
func (e *Encoder) chunk(c Cell, full, buf []byte, offset, term int) (Result, error) {
	if offset > len(full) || (offset > 0 && offset == len(full)) {
		return Result{}, ErrNoData
	}
	rest := full[offset:]
	res := Result{Length: int64(len(rest))}
	room := len(buf) - term
	if room < 0 {
		room = 0
	}
	n := len(rest)
	if n > room {
		n = room
		if term == 2 {
			n &^= 1
		}
	}
	copy(buf, rest[:n])
	if len(buf) >= n+term {
		for i := 0; i < term; i++ {
			buf[n+i] = 0
		}
	}
	res.Written = n
	if n < len(rest) {
		if offset == 0 && isExact(c.Kind) && term > 0 {
			return Result{}, diag.New(diag.StateNumericRange, "convert: %s value does not fit in %d bytes", c.Kind, len(buf))
		}
		return res, diag.New(diag.StateTruncated, "String data, right truncated")
	}
	return res, nil
}

func isExact(k Kind) bool {
	return k == KindBigint || k == KindInteger || k == KindBoolean
}

func isInterval(ct CType) bool { return ct >= CIntervalYear && ct <= CIntervalMinuteToSecond }

var native = binary.NativeEndian

func fractionalTruncation() error {
	return diag.New(diag.StateFractionalTruncation, "Fractional truncation")
}

func restricted(k Kind, ct CType) error {
	return diag.New(diag.StateRestrictedType, "convert: %s cannot be converted to C type %d", k, ct)
}

// asInteger returns the integral part of c and whether digits were dropped.
func asInteger(c Cell, ct CType) (int64, bool, error) {
	switch v := c.Value.(type) {
	case int64:
		return v, false, nil
	case bool:
		if v {
			return 1, false, nil
		}
		return 0, false, nil
	case float64:
		return floatToInt(v, ct)
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, false, nil
		}
		f, err := parseDouble(s)
		if err != nil {
			return 0, false, diag.New(diag.StateInvalidCharValue, "convert: %q is not a number", v)
		}
		return floatToInt(f, ct)
	}
	return 0, false, restricted(c.Kind, ct)
}

func floatToInt(f float64, ct CType) (int64, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false, diag.New(diag.StateNumericRange, "convert: %v out of range for C type %d", f, ct)
	}
	t := math.Trunc(f)
	return int64(t), t != f, nil
}

func putInteger(c Cell, ct CType, buf []byte) (error, error) {
	n, frac, err := asInteger(c, ct)
	if err != nil {
		return nil, err
	}
	var lo, hi int64
	switch ct {
	case CTinyInt, CSTinyInt:
		lo, hi = math.MinInt8, math.MaxInt8
	case CUTinyInt:
		lo, hi = 0, math.MaxUint8
	case CShort, CSShort:
		lo, hi = math.MinInt16, math.MaxInt16
	case CUShort:
		lo, hi = 0, math.MaxUint16
	case CLong, CSLong:
		lo, hi = math.MinInt32, math.MaxInt32
	case CULong:
		lo, hi = 0, math.MaxUint32
	case CSBigInt:
		lo, hi = math.MinInt64, math.MaxInt64
	case CUBigInt:
		lo, hi = 0, math.MaxInt64
	default:
		return nil, restricted(c.Kind, ct)
	}
	if n < lo || n > hi {
		return nil, diag.New(diag.StateNumericRange, "convert: %d out of range for C type %d", n, ct)
	}
	switch FixedSize(ct) {
	case 1:
		buf[0] = byte(n)
	case 2:
		native.PutUint16(buf, uint16(n))
	case 4:
		native.PutUint32(buf, uint32(n))
	case 8:
		native.PutUint64(buf, uint64(n))
	}
	if frac {
		return fractionalTruncation(), nil
	}
	return nil, nil
}

func putBit(c Cell, buf []byte) (error, error) {
	var f float64
	switch v := c.Value.(type) {
	case bool:
		buf[0] = 0
		if v {
			buf[0] = 1
		}
		return nil, nil
	case int64:
		f = float64(v)
	case float64:
		f = v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			buf[0] = 1
			return nil, nil
		case "false":
			buf[0] = 0
			return nil, nil
		}
		p, err := parseDouble(strings.TrimSpace(v))
		if err != nil {
			return nil, diag.New(diag.StateInvalidCharValue, "convert: %q is not a bit value", v)
		}
		f = p
	default:
		return nil, restricted(c.Kind, CBit)
	}
	if math.IsNaN(f) || f < 0 || f >= 2 {
		return nil, diag.New(diag.StateNumericRange, "convert: %v out of range for a bit", f)
	}
	buf[0] = byte(f)
	if f != math.Trunc(f) {
		return fractionalTruncation(), nil
	}
	return nil, nil
}

func putFloat(c Cell, ct CType, buf []byte) (error, error) {
	var f float64
	switch v := c.Value.(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	case bool:
		if v {
			f = 1
		}
	case string:
		p, err := parseDouble(strings.TrimSpace(v))
		if err != nil {
			return nil, diag.New(diag.StateInvalidCharValue, "convert: %q is not a number", v)
		}
		f = p
	default:
		return nil, restricted(c.Kind, ct)
	}
	if ct == CDouble {
		native.PutUint64(buf, math.Float64bits(f))
		return nil, nil
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return nil, diag.New(diag.StateNumericRange, "convert: %v out of range for a float", f)
	}
	native.PutUint32(buf, math.Float32bits(float32(f)))
	return nil, nil
}

// asTime returns the time value of c and the kind it carries.
func asTime(c Cell, ct CType) (time.Time, Kind, error) {
	switch v := c.Value.(type) {
	case time.Time:
		return v, c.Kind, nil
	case string:
		s := strings.TrimSpace(v)
		for _, try := range []struct {
			layout string
			kind   Kind
		}{{TimestampLayout, KindTimestamp}, {DateLayout, KindDate}, {TimeLayout, KindTime}} {
			if t, err := time.ParseInLocation(try.layout, s, time.UTC); err == nil {
				return t, try.kind, nil
			}
		}
		return time.Time{}, 0, diag.New(diag.StateInvalidCharValue, "convert: %q is not a date/time", v)
	}
	return time.Time{}, 0, restricted(c.Kind, ct)
}

func (e *Encoder) putDatetime(c Cell, ct CType, buf []byte) (error, error) {
	t, k, err := asTime(c, ct)
	if err != nil {
		return nil, err
	}
	var warn error
	switch ct {
	case CTypeDate:
		if k == KindTime {
			return nil, restricted(k, ct)
		}
		if k == KindTimestamp && (t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0) {
			warn = fractionalTruncation()
		}
		putDate(buf, t)
	case CTypeTime:
		if k == KindDate {
			return nil, restricted(k, ct)
		}
		if t.Nanosecond() != 0 {
			warn = fractionalTruncation()
		}
		putClock(buf, t)
	case CTypeTimestamp:
		if k == KindTime {
			now := e.now().UTC()
			t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		}
		putDate(buf, t)
		putClock(buf[6:], t)
		native.PutUint32(buf[12:], uint32(t.Nanosecond()))
	}
	return warn, nil
}

func putDate(buf []byte, t time.Time) {
	native.PutUint16(buf, uint16(int16(t.Year())))
	native.PutUint16(buf[2:], uint16(t.Month()))
	native.PutUint16(buf[4:], uint16(t.Day()))
}

func putClock(buf []byte, t time.Time) {
	native.PutUint16(buf, uint16(t.Hour()))
	native.PutUint16(buf[2:], uint16(t.Minute()))
	native.PutUint16(buf[4:], uint16(t.Second()))
}

// asDecimal returns c as an exact decimal.
func asDecimal(c Cell) (decimal.Decimal, error) {
	switch v := c.Value.(type) {
	case int64:
		return decimal.NewFromInt(v), nil
	case bool:
		if v {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, diag.New(diag.StateNumericRange, "convert: %v has no numeric value", v)
		}
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, diag.New(diag.StateInvalidCharValue, "convert: %q is not a number", v)
		}
		return d, nil
	}
	return decimal.Zero, restricted(c.Kind, CNumeric)
}

// putNumeric fills SQL_NUMERIC_STRUCT: precision, scale, sign, then the
// unscaled magnitude as 16 little-endian bytes.
func putNumeric(c Cell, buf []byte) (error, error) {
	d, err := asDecimal(c)
	if err != nil {
		return nil, err
	}
	var warn error
	scale := int32(0)
	if exp := d.Exponent(); exp < 0 {
		scale = -exp
	}
	if scale > maxNumericPrecision {
		d = d.Truncate(maxNumericPrecision)
		scale = maxNumericPrecision
		warn = fractionalTruncation()
	}
	unscaled := d.Shift(scale).BigInt()
	sign := byte(1)
	if unscaled.Sign() < 0 {
		sign = 0
	}
	mag := new(big.Int).Abs(unscaled)
	digits := len(mag.String())
	if mag.BitLen() > 128 || digits > maxNumericPrecision {
		return nil, diag.New(diag.StateNumericRange, "convert: %s exceeds numeric precision", d.String())
	}
	if digits < int(scale) {
		digits = int(scale)
	}
	buf[0] = byte(digits)
	buf[1] = byte(int8(scale))
	buf[2] = sign
	val := buf[3:numericStructSize]
	for i := range val {
		val[i] = 0
	}
	be := mag.Bytes()
	for i, b := range be {
		val[len(be)-1-i] = b
	}
	return warn, nil
}

func putInterval(c Cell, ct CType, buf []byte) (error, error) {
	s, ok := c.Value.(string)
	if !ok {
		return nil, restricted(c.Kind, ct)
	}
	iv, err := ParseInterval(s)
	if err != nil {
		return nil, err
	}
	yearMonth := ct == CIntervalYear || ct == CIntervalMonth || ct == CIntervalYearToMonth
	if yearMonth != iv.YearMonth {
		return nil, restricted(c.Kind, ct)
	}
	for i := range buf[:intervalStructSize] {
		buf[i] = 0
	}
	native.PutUint32(buf, uint32(int32(ct-100)))
	if iv.Negative {
		native.PutUint16(buf[4:], 1)
	}
	f := buf[8:intervalStructSize]
	var warn error
	if yearMonth {
		switch ct {
		case CIntervalYear:
			native.PutUint32(f, iv.Years)
			if iv.Months != 0 {
				warn = fractionalTruncation()
			}
		case CIntervalMonth:
			native.PutUint32(f[4:], iv.Years*12+iv.Months)
		default:
			native.PutUint32(f, iv.Years)
			native.PutUint32(f[4:], iv.Months)
		}
		return warn, nil
	}

	days, hours, minutes, seconds := iv.Days, iv.Hours, iv.Minutes, iv.Seconds
	frac := iv.Nanos / uint32(math.Pow10(9-intervalFracDigits))
	dropped := func(nonzero bool) {
		if nonzero {
			warn = fractionalTruncation()
		}
	}
	switch ct {
	case CIntervalDay:
		dropped(hours != 0 || minutes != 0 || seconds != 0 || iv.Nanos != 0)
		hours, minutes, seconds, frac = 0, 0, 0, 0
	case CIntervalHour:
		dropped(minutes != 0 || seconds != 0 || iv.Nanos != 0)
		hours += days * 24
		days, minutes, seconds, frac = 0, 0, 0, 0
	case CIntervalMinute:
		dropped(seconds != 0 || iv.Nanos != 0)
		minutes += (days*24 + hours) * 60
		days, hours, seconds, frac = 0, 0, 0, 0
	case CIntervalSecond:
		seconds += ((days*24+hours)*60 + minutes) * 60
		days, hours, minutes = 0, 0, 0
	case CIntervalDayToHour:
		dropped(minutes != 0 || seconds != 0 || iv.Nanos != 0)
		minutes, seconds, frac = 0, 0, 0
	case CIntervalDayToMinute:
		dropped(seconds != 0 || iv.Nanos != 0)
		seconds, frac = 0, 0
	case CIntervalHourToMinute:
		dropped(seconds != 0 || iv.Nanos != 0)
		hours += days * 24
		days, seconds, frac = 0, 0, 0
	case CIntervalHourToSecond:
		hours += days * 24
		days = 0
	case CIntervalMinuteToSecond:
		minutes += (days*24 + hours) * 60
		days, hours = 0, 0
	}
	if iv.Nanos%uint32(math.Pow10(9-intervalFracDigits)) != 0 && frac != 0 {
		warn = fractionalTruncation()
	}
	native.PutUint32(f, days)
	native.PutUint32(f[4:], hours)
	native.PutUint32(f[8:], minutes)
	native.PutUint32(f[12:], seconds)
	native.PutUint32(f[16:], frac)
	return warn, nil
}
