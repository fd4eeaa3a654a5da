package pricing

import (
	"errors"
	"testing"
	"time"
)

var loc = time.FixedZone("CET", 3600)

func at(day, hour, minute, sec int) time.Time {
	return time.Date(2026, 3, day, hour, minute, sec, 0, loc)
}

func TestParseTimeOfDay(t *testing.T) {
	good := map[string]TimeOfDay{
		"00:00": {0, 0},
		"08:05": {8, 5},
		"23:59": {23, 59},
	}
	for raw, want := range good {
		got, err := ParseTimeOfDay(raw)
		if err != nil || got != want {
			t.Fatalf("ParseTimeOfDay(%q) = %+v, %v", raw, got, err)
		}
		if got.String() != raw {
			t.Fatalf("String() = %q want %q", got.String(), raw)
		}
	}
	for _, raw := range []string{"", "8:05", "24:00", "12:60", "12-30", "ab:cd", "12:301", " 12:30"} {
		if _, err := ParseTimeOfDay(raw); !errors.Is(err, ErrBadTimeFormat) {
			t.Fatalf("ParseTimeOfDay(%q) expected ErrBadTimeFormat, got %v", raw, err)
		}
	}
}

func TestTimeOfDayAfterIgnoresDate(t *testing.T) {
	dep := TimeOfDay{Hour: 10, Minute: 0}
	if !dep.After(at(1, 9, 59, 59)) {
		t.Fatalf("10:00 must be after 09:59:59")
	}
	if dep.After(at(1, 10, 0, 0)) {
		t.Fatalf("10:00 must not be after 10:00:00")
	}
	if dep.After(at(1, 10, 0, 30)) {
		t.Fatalf("10:00 must not be after 10:00:30")
	}
	// 23:59 request for 00:01 departure compares time-of-day only.
	if (TimeOfDay{Hour: 0, Minute: 1}).After(at(1, 23, 59, 0)) {
		t.Fatalf("00:01 must not be after 23:59")
	}
}

func TestFeeSameDayRoundsUp(t *testing.T) {
	arrival := at(1, 9, 10, 0)
	dep := TimeOfDay{Hour: 12, Minute: 0} // 2h50m -> 3h
	if h := BillableHours(arrival, dep); h != 3 {
		t.Fatalf("billable hours = %d want 3", h)
	}
	if fee := Fee(arrival, dep, 4, 100_00); fee != 1200_00 {
		t.Fatalf("fee = %s want 1200.00", fee)
	}
}

func TestFeeExactHoursNotRoundedFurther(t *testing.T) {
	arrival := at(1, 9, 0, 0)
	if h := BillableHours(arrival, TimeOfDay{Hour: 11, Minute: 0}); h != 2 {
		t.Fatalf("billable hours = %d want 2", h)
	}
}

func TestFeeCrossesMidnight(t *testing.T) {
	arrival := at(1, 22, 30, 0)
	dep := TimeOfDay{Hour: 1, Minute: 0} // next day 01:00, 2h30m -> 3h
	want := at(2, 1, 0, 0)
	if got := DepartureInstant(arrival, dep); !got.Equal(want) {
		t.Fatalf("departure instant = %v want %v", got, want)
	}
	if fee := Fee(arrival, dep, 4, 50_00); fee != 3*50_00*4 {
		t.Fatalf("fee = %s", fee)
	}
}

func TestFeeDepartureEqualToArrivalRollsToNextDay(t *testing.T) {
	arrival := at(1, 8, 0, 0)
	if h := BillableHours(arrival, TimeOfDay{Hour: 8, Minute: 0}); h != 24 {
		t.Fatalf("billable hours = %d want 24", h)
	}
	midnight := at(2, 0, 0, 0)
	if h := BillableHours(midnight, TimeOfDay{Hour: 0, Minute: 0}); h != 24 {
		t.Fatalf("midnight billable hours = %d want 24", h)
	}
}

func TestFeeIsDeterministic(t *testing.T) {
	arrival := at(1, 7, 13, 27)
	dep := TimeOfDay{Hour: 17, Minute: 45}
	a := Fee(arrival, dep, 2, 120_50)
	b := Fee(arrival, dep, 2, 120_50)
	if a != b || a != 11*120_50*2 {
		t.Fatalf("fee mismatch a=%s b=%s", a, b)
	}
}

func TestParseMoney(t *testing.T) {
	cases := map[string]Money{
		"100":    100_00,
		"120.5":  120_50,
		"0.07":   7,
		"-3.25":  -325,
		" 42.00": 42_00,
	}
	for raw, want := range cases {
		got, err := ParseMoney(raw)
		if err != nil || got != want {
			t.Fatalf("ParseMoney(%q) = %d, %v want %d", raw, got, err, want)
		}
	}
	for _, raw := range []string{"", "1.234", "abc", ".5", "5.", "1.-2"} {
		if _, err := ParseMoney(raw); !errors.Is(err, ErrBadAmount) {
			t.Fatalf("ParseMoney(%q) expected ErrBadAmount, got %v", raw, err)
		}
	}
}

func TestMoneyStringAndFloat(t *testing.T) {
	if s := Money(1200_00).String(); s != "1200.00" {
		t.Fatalf("unexpected string %q", s)
	}
	if s := Money(-5).String(); s != "-0.05" {
		t.Fatalf("unexpected string %q", s)
	}
	m, err := FromFloat(19.999)
	if err != nil || m != 20_00 {
		t.Fatalf("FromFloat = %d, %v", m, err)
	}
	if u := Money(250).Units(); u != 2.5 {
		t.Fatalf("units = %v", u)
	}
}

func TestMoneyGrouped(t *testing.T) {
	cases := map[Money]string{
		0:          "0.00",
		5:          "0.05",
		1200_00:    "1,200.00",
		1234567_89: "1,234,567.89",
		-250:       "-2.50",
		-1500_00:   "-1,500.00",
	}
	for in, want := range cases {
		if got := in.Grouped(); got != want {
			t.Fatalf("Grouped(%d)=%q want %q", int64(in), got, want)
		}
	}
}
