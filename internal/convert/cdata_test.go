package convert

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

func utf8Encoder(t *testing.T) *Encoder {
	t.Helper()
	e, err := NewEncoder("UTF-8")
	require.NoError(t, err)
	return e
}

func TestEncodeCharInChunks(t *testing.T) {
	e := utf8Encoder(t)
	c := Cell{Kind: KindVarchar, Value: "hello world"}
	buf := make([]byte, 5)

	var got []byte
	offset := 0
	var lengths []int64
	for {
		res, err := e.Encode(c, CChar, buf, offset)
		if errors.Is(err, ErrNoData) {
			break
		}
		if err != nil {
			require.True(t, diag.IsWarning(err), "%v", err)
			assert.Equal(t, diag.StateTruncated, diag.StateOf(err))
		}
		lengths = append(lengths, res.Length)
		got = append(got, buf[:res.Written]...)
		assert.Zero(t, buf[res.Written])
		offset += res.Written
	}
	assert.Equal(t, "hello world", string(got))
	assert.Equal(t, []int64{11, 7, 3}, lengths)
}

func TestEncodeCharExactFit(t *testing.T) {
	e := utf8Encoder(t)
	buf := make([]byte, 4)
	res, err := e.Encode(Cell{Kind: KindVarchar, Value: "abc"}, CChar, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Written)
	assert.Equal(t, []byte("abc\x00"), buf)

	_, err = e.Encode(Cell{Kind: KindVarchar, Value: "abc"}, CChar, buf, 3)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestEncodeEmptyString(t *testing.T) {
	e := utf8Encoder(t)
	buf := []byte{'x', 'x'}
	res, err := e.Encode(Cell{Kind: KindVarchar, Value: ""}, CChar, buf, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Length)
	assert.Zero(t, buf[0])
}

func TestEncodeNumberAsCharTooSmall(t *testing.T) {
	e := utf8Encoder(t)
	_, err := e.Encode(Cell{Kind: KindBigint, Value: int64(123456)}, CChar, make([]byte, 4), 0)
	assert.Equal(t, diag.StateNumericRange, diag.StateOf(err))
}

func TestEncodeWChar(t *testing.T) {
	e := utf8Encoder(t)
	buf := make([]byte, 16)
	res, err := e.Encode(Cell{Kind: KindVarchar, Value: "hé"}, CWChar, buf, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Length)
	assert.Equal(t, []byte{'h', 0, 0xe9, 0, 0, 0}, buf[:6])

	// odd buffer sizes never split a code unit
	res, err = e.Encode(Cell{Kind: KindVarchar, Value: "abc"}, CWChar, make([]byte, 5), 0)
	assert.Equal(t, diag.StateTruncated, diag.StateOf(err))
	assert.Equal(t, 2, res.Written)

	s, err := DecodeWide([]byte{'o', 0, 'k', 0})
	require.NoError(t, err)
	assert.Equal(t, "ok", s)
}

func TestEncodeCharset(t *testing.T) {
	for _, name := range []string{"ISO-8859-1", "latin1", "windows-1252"} {
		e, err := NewEncoder(name)
		require.NoError(t, err, name)
		buf := make([]byte, 4)
		res, err := e.Encode(Cell{Kind: KindVarchar, Value: "é"}, CChar, buf, 0)
		require.NoError(t, err, name)
		assert.Equal(t, []byte{0xe9}, buf[:res.Written], name)

		s, err := e.DecodeString([]byte{'a', 0xe9})
		require.NoError(t, err)
		assert.Equal(t, "aé", s)
	}
	_, err := NewEncoder("klingon")
	assert.Equal(t, diag.StateInvalidAttribute, diag.StateOf(err))
}

func TestEncodeNull(t *testing.T) {
	e := utf8Encoder(t)
	res, err := e.Encode(Cell{Kind: KindBigint}, CSBigInt, make([]byte, 8), 0)
	require.NoError(t, err)
	assert.Equal(t, NullData, res.Length)
}

func TestEncodeIntegers(t *testing.T) {
	e := utf8Encoder(t)
	buf := make([]byte, 8)

	res, err := e.Encode(Cell{Kind: KindBigint, Value: int64(-2)}, CSLong, buf, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Length)
	assert.Equal(t, int32(-2), int32(binary.NativeEndian.Uint32(buf)))

	_, err = e.Encode(Cell{Kind: KindBigint, Value: int64(1 << 40)}, CSLong, buf, 0)
	assert.Equal(t, diag.StateNumericRange, diag.StateOf(err))

	_, err = e.Encode(Cell{Kind: KindBigint, Value: int64(-1)}, CUTinyInt, buf, 0)
	assert.Equal(t, diag.StateNumericRange, diag.StateOf(err))

	_, err = e.Encode(Cell{Kind: KindDouble, Value: 1.5}, CSShort, buf, 0)
	assert.Equal(t, diag.StateFractionalTruncation, diag.StateOf(err))
	assert.True(t, diag.IsWarning(err))
	assert.Equal(t, uint16(1), binary.NativeEndian.Uint16(buf))

	_, err = e.Encode(Cell{Kind: KindVarchar, Value: "abc"}, CSBigInt, buf, 0)
	assert.Equal(t, diag.StateInvalidCharValue, diag.StateOf(err))

	_, err = e.Encode(Cell{Kind: KindTimestamp, Value: time.Now()}, CSBigInt, buf, 0)
	assert.Equal(t, diag.StateRestrictedType, diag.StateOf(err))

	_, err = e.Encode(Cell{Kind: KindBigint, Value: int64(1)}, CSBigInt, make([]byte, 2), 0)
	assert.Equal(t, diag.StateInvalidBufferLen, diag.StateOf(err))
}

func TestEncodeDefaultAndFloat(t *testing.T) {
	e := utf8Encoder(t)
	buf := make([]byte, 8)
	res, err := e.Encode(Cell{Kind: KindDouble, Value: 2.5}, CDefault, buf, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 8, res.Length)
	assert.Equal(t, 2.5, math.Float64frombits(binary.NativeEndian.Uint64(buf)))

	_, err = e.Encode(Cell{Kind: KindDouble, Value: 1e300}, CFloat, buf, 0)
	assert.Equal(t, diag.StateNumericRange, diag.StateOf(err))

	_, err = e.Encode(Cell{Kind: KindBoolean, Value: true}, CDefault, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), buf[0])

	_, err = e.Encode(Cell{Kind: KindBigint, Value: int64(2)}, CBit, buf, 0)
	assert.Equal(t, diag.StateNumericRange, diag.StateOf(err))
}

func TestEncodeTimestampStruct(t *testing.T) {
	e := utf8Encoder(t)
	buf := make([]byte, 16)
	ts := time.Date(2021, 3, 4, 5, 6, 7, 8, time.UTC)
	res, err := e.Encode(Cell{Kind: KindTimestamp, Value: ts}, CTypeTimestamp, buf, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 16, res.Length)
	ne := binary.NativeEndian
	assert.Equal(t, []uint16{2021, 3, 4, 5, 6, 7},
		[]uint16{ne.Uint16(buf), ne.Uint16(buf[2:]), ne.Uint16(buf[4:]), ne.Uint16(buf[6:]), ne.Uint16(buf[8:]), ne.Uint16(buf[10:])})
	assert.Equal(t, uint32(8), ne.Uint32(buf[12:]))

	_, err = e.Encode(Cell{Kind: KindTimestamp, Value: ts}, CTypeDate, buf, 0)
	assert.Equal(t, diag.StateFractionalTruncation, diag.StateOf(err))
	assert.Equal(t, uint16(4), ne.Uint16(buf[4:]))

	_, err = e.Encode(Cell{Kind: KindDate, Value: ts}, CTypeTime, buf, 0)
	assert.Equal(t, diag.StateRestrictedType, diag.StateOf(err))

	e.now = func() time.Time { return time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC) }
	_, err = e.Encode(Cell{Kind: KindTime, Value: time.Date(0, 1, 1, 10, 0, 0, 0, time.UTC)}, CTypeTimestamp, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(2020), ne.Uint16(buf))
	assert.Equal(t, uint16(10), ne.Uint16(buf[6:]))

	_, err = e.Encode(Cell{Kind: KindVarchar, Value: "2022-12-31"}, CTypeDate, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(2022), ne.Uint16(buf))
}

func TestEncodeNumericStruct(t *testing.T) {
	e := utf8Encoder(t)
	buf := make([]byte, 19)
	_, err := e.Encode(Cell{Kind: KindVarchar, Value: "-123.45"}, CNumeric, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(5), buf[0])
	assert.Equal(t, byte(2), buf[1])
	assert.Equal(t, byte(0), buf[2])
	assert.Equal(t, []byte{0x39, 0x30, 0}, buf[3:6])

	_, err = e.Encode(Cell{Kind: KindBigint, Value: int64(255)}, CNumeric, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 1, 0xff, 0}, buf[:5])

	_, err = e.Encode(Cell{Kind: KindDouble, Value: math.NaN()}, CNumeric, buf, 0)
	assert.Equal(t, diag.StateNumericRange, diag.StateOf(err))
}

func TestEncodeIntervalStruct(t *testing.T) {
	e := utf8Encoder(t)
	buf := make([]byte, 28)
	ne := binary.NativeEndian
	ds := Cell{Kind: KindIntervalDayToSecond, Value: "1 02:03:04.500000000"}

	_, err := e.Encode(ds, CDefault, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), ne.Uint32(buf))
	assert.Equal(t, uint16(0), ne.Uint16(buf[4:]))
	assert.Equal(t, []uint32{1, 2, 3, 4, 500000},
		[]uint32{ne.Uint32(buf[8:]), ne.Uint32(buf[12:]), ne.Uint32(buf[16:]), ne.Uint32(buf[20:]), ne.Uint32(buf[24:])})

	_, err = e.Encode(ds, CIntervalHour, buf, 0)
	assert.Equal(t, diag.StateFractionalTruncation, diag.StateOf(err))
	assert.Equal(t, uint32(26), ne.Uint32(buf[12:]))

	ym := Cell{Kind: KindIntervalYearToMonth, Value: "-1-6"}
	_, err = e.Encode(ym, CIntervalMonth, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), ne.Uint16(buf[4:]))
	assert.Equal(t, uint32(18), ne.Uint32(buf[12:]))

	_, err = e.Encode(ym, CIntervalDayToSecond, buf, 0)
	assert.Equal(t, diag.StateRestrictedType, diag.StateOf(err))
}

func TestEncodeBinaryChunks(t *testing.T) {
	e := utf8Encoder(t)
	buf := make([]byte, 2)
	c := Cell{Kind: KindVarchar, Value: "abc"}
	res, err := e.Encode(c, CBinary, buf, 0)
	assert.Equal(t, diag.StateTruncated, diag.StateOf(err))
	assert.Equal(t, "ab", string(buf[:res.Written]))
	res, err = e.Encode(c, CBinary, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "c", string(buf[:res.Written]))
	_, err = e.Encode(c, CBinary, buf, 3)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFixedSize(t *testing.T) {
	assert.Equal(t, 16, FixedSize(CTypeTimestamp))
	assert.Equal(t, 28, FixedSize(CIntervalYear))
	assert.Equal(t, 0, FixedSize(CChar))
	assert.Equal(t, CSBigInt, DefaultCType(KindBigint))
	assert.Equal(t, CChar, DefaultCType(KindArray))
}
