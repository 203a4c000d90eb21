package convert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/tsodbc/internal/diag"
)

// Interval is a parsed Timestream interval. Year-month intervals set Years
// and Months; day-second intervals set the remaining fields.
type Interval struct {
	YearMonth bool
	Negative  bool
	Years     uint32
	Months    uint32
	Days      uint32
	Hours     uint32
	Minutes   uint32
	Seconds   uint32
	Nanos     uint32
}

// ParseInterval accepts "Y-M" and "D HH:MM:SS[.fffffffff]", optionally
// prefixed by a minus sign.
func ParseInterval(s string) (Interval, error) {
	var iv Interval
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "-") {
		iv.Negative = true
		t = t[1:]
	}
	bad := func() (Interval, error) {
		return Interval{}, diag.New(diag.StateInvalidCharValue, "convert: invalid interval %q", s)
	}
	if !strings.Contains(t, " ") && !strings.Contains(t, ":") {
		y, m, ok := strings.Cut(t, "-")
		if !ok {
			return bad()
		}
		years, err1 := strconv.ParseUint(y, 10, 32)
		months, err2 := strconv.ParseUint(m, 10, 32)
		if err1 != nil || err2 != nil || months > 11 {
			return bad()
		}
		iv.YearMonth = true
		iv.Years, iv.Months = uint32(years), uint32(months)
		return iv, nil
	}
	day, clock, ok := strings.Cut(t, " ")
	if !ok {
		return bad()
	}
	d, err := strconv.ParseUint(day, 10, 32)
	if err != nil {
		return bad()
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return bad()
	}
	h, err1 := strconv.ParseUint(parts[0], 10, 32)
	m, err2 := strconv.ParseUint(parts[1], 10, 32)
	sec, frac, _ := strings.Cut(parts[2], ".")
	sv, err3 := strconv.ParseUint(sec, 10, 32)
	if err1 != nil || err2 != nil || err3 != nil || h > 23 || m > 59 || sv > 59 {
		return bad()
	}
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 32)
		if err != nil {
			return bad()
		}
		iv.Nanos = uint32(n)
	}
	iv.Days, iv.Hours, iv.Minutes, iv.Seconds = uint32(d), uint32(h), uint32(m), uint32(sv)
	return iv, nil
}

// String prints the interval in Timestream form.
func (iv Interval) String() string {
	sign := ""
	if iv.Negative {
		sign = "-"
	}
	if iv.YearMonth {
		return fmt.Sprintf("%s%d-%d", sign, iv.Years, iv.Months)
	}
	return fmt.Sprintf("%s%d %02d:%02d:%02d.%09d", sign, iv.Days, iv.Hours, iv.Minutes, iv.Seconds, iv.Nanos)
}
