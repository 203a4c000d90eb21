package driver

import (
	"database/sql/driver"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func nv(v any) driver.NamedValue { return driver.NamedValue{Value: v} }

func TestBindPlaceholders_Sequential(t *testing.T) {
	q := "SELECT * FROM iot.metrics WHERE host = ? AND n > ?"
	out, err := bindPlaceholders(q, []driver.NamedValue{nv("O'Hara"), nv(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT * FROM iot.metrics WHERE host = 'O''Hara' AND n > 1"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestBindPlaceholders_Numbered(t *testing.T) {
	q := "SELECT $2, :1, $2"
	out, err := bindPlaceholders(q, []driver.NamedValue{nv(10), nv("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT 'x', 10, 'x'"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestBindPlaceholders_QuotedAndComments(t *testing.T) {
	q := "SELECT '?' AS q, \"a?b\" FROM t -- where x = ?\nWHERE name='it''s'"
	out, err := bindPlaceholders(q, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != q {
		t.Fatalf("quoted text changed: got %q want %q", out, q)
	}
}

func TestBindPlaceholders_BlockComments(t *testing.T) {
	q := "SELECT /* host = ? or $1 */ n FROM t WHERE host = ? /* unterminated ?"
	out, err := bindPlaceholders(q, []driver.NamedValue{nv("a")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT /* host = ? or $1 */ n FROM t WHERE host = 'a' /* unterminated ?"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
	out, err = bindPlaceholders("SELECT 10/2, ?", []driver.NamedValue{nv(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "SELECT 10/2, 3" {
		t.Fatalf("division changed: got %q", out)
	}
}

func TestBindPlaceholders_Errors(t *testing.T) {
	if _, err := bindPlaceholders("SELECT ?, ?", []driver.NamedValue{nv(1)}); err == nil {
		t.Fatal("expected not enough args")
	}
	if _, err := bindPlaceholders("SELECT ?", []driver.NamedValue{nv(1), nv(2)}); err == nil {
		t.Fatal("expected too many args")
	}
	if _, err := bindPlaceholders("SELECT $3", []driver.NamedValue{nv(1)}); err == nil {
		t.Fatal("expected invalid placeholder")
	}
	if _, err := bindPlaceholders("SELECT ?", []driver.NamedValue{nv(struct{}{})}); err == nil {
		t.Fatal("expected unsupported type")
	}
}

func TestSqlLiteral(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{true, "TRUE"},
		{false, "FALSE"},
		{42, "42"},
		{int32(-7), "-7"},
		{uint64(math.MaxUint64), "18446744073709551615"},
		{3.14, "3.14"},
		{float64(2), "2.0"},
		{1e21, "1e+21"},
		{math.NaN(), "nan()"},
		{math.Inf(-1), "-infinity()"},
		{"a'b", "'a''b'"},
		{[]byte("raw"), "'raw'"},
		{decimal.RequireFromString("12.500"), "12.5"},
		{time.Date(2024, 1, 2, 3, 4, 5, 600, time.FixedZone("X", 3600)), "TIMESTAMP '2024-01-02 02:04:05.0000006'"},
		{90 * time.Minute, "90m"},
		{2 * time.Hour, "2h"},
		{1500 * time.Millisecond, "1500ms"},
		{3 * time.Microsecond, "3us"},
		{time.Duration(7), "7ns"},
	}
	for _, c := range cases {
		got, err := sqlLiteral(c.in)
		if err != nil {
			t.Fatalf("sqlLiteral(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("sqlLiteral(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestCheckNamedValue(t *testing.T) {
	c := &conn{}
	v := nv(5 * time.Second)
	if err := c.CheckNamedValue(&v); err != nil {
		t.Fatal(err)
	}
	if v.Value != literal("5s") {
		t.Fatalf("duration not rendered: %#v", v.Value)
	}
	d := nv(decimal.NewFromInt(3))
	if err := c.CheckNamedValue(&d); err != nil {
		t.Fatal(err)
	}
	s := nv(struct{}{})
	if err := c.CheckNamedValue(&s); err != driver.ErrSkip {
		t.Fatalf("expected ErrSkip, got %v", err)
	}
	n := driver.NamedValue{Name: "host", Value: "a"}
	if err := c.CheckNamedValue(&n); err == nil {
		t.Fatal("named parameter accepted")
	}
}
