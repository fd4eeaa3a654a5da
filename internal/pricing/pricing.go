// Package pricing computes parking fees.
//
// Fee is the single fee function: the coordinator calls it for quotes and
// again at settlement, so both always agree for the same reservation.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	ErrBadTimeFormat = errors.New("pricing: invalid time format, use HH:mm")
	ErrBadAmount     = errors.New("pricing: invalid amount")
)

// Money is a currency amount in minor units (1/100).
type Money int64

// FromFloat converts a unit amount such as 120.5 to Money, rounding to the
// nearest minor unit.
func FromFloat(v float64) (Money, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrBadAmount, v)
	}
	return Money(math.Round(v * 100)), nil
}

// ParseMoney parses decimal text with at most two fractional digits.
func ParseMoney(raw string) (Money, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadAmount)
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 2)) {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, raw)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, raw)
	}
	var cents int64
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadAmount, raw)
		}
	}
	m := Money(units*100 + cents)
	if neg {
		m = -m
	}
	return m, nil
}

// Units returns the amount as a float, for display and metrics only.
func (m Money) Units() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign, v := m.split()
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Grouped renders the amount with thousands separators, e.g. 1,200.00.
func (m Money) Grouped() string {
	sign, v := m.split()
	return fmt.Sprintf("%s%s.%02d", sign, humanize.Comma(v/100), v%100)
}

func (m Money) split() (string, int64) {
	if m < 0 {
		return "-", -int64(m)
	}
	return "", int64(m)
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts exactly "HH:mm" with a 24-hour clock.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	if len(raw) != 5 || raw[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTimeFormat, raw)
	}
	h, errH := twoDigits(raw[0:2])
	m, errM := twoDigits(raw[3:5])
	if errH != nil || errM != nil || h > 23 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTimeFormat, raw)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func twoDigits(s string) (int, error) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, ErrBadTimeFormat
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) sinceMidnight() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute
}

// After reports whether t is strictly later than the time-of-day of now.
// The date of now is ignored.
func (t TimeOfDay) After(now time.Time) bool {
	h, m, s := now.Clock()
	cur := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(now.Nanosecond())
	return t.sinceMidnight() > cur
}

// On returns t on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// DepartureInstant is the first occurrence of departure strictly after arrival.
func DepartureInstant(arrival time.Time, departure TimeOfDay) time.Time {
	at := departure.On(arrival)
	for !at.After(arrival) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// BillableHours rounds the stay up to whole hours.
func BillableHours(arrival time.Time, departure TimeOfDay) int64 {
	elapsed := DepartureInstant(arrival, departure).Sub(arrival)
	hours := int64(elapsed / time.Hour)
	if elapsed%time.Hour != 0 {
		hours++
	}
	return hours
}

// Fee is ceil(hours) * pricePerHour * spaces.
func Fee(arrival time.Time, departure TimeOfDay, spaces int, pricePerHour Money) Money {
	return Money(BillableHours(arrival, departure)) * pricePerHour * Money(spaces)
}
