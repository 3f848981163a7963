package calculator

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPlaces is the number of decimal places of the minor unit (cents).
const DefaultPlaces int32 = 2

// MaxPlaces bounds the supported currency precision.
const MaxPlaces int32 = 8

// maxMinor caps a single adjusted amount so that sums over large batches stay
// far from the int64 limits.
var maxMinor = decimal.NewFromInt(1_000_000_000_000_000)

// MinorUnits is an amount counted in the currency's smallest subdivision.
type MinorUnits int64

// Decimal converts m back to a decimal amount with the given precision.
func (m MinorUnits) Decimal(places int32) decimal.Decimal {
	return decimal.New(int64(m), -places)
}

// ToMinorUnits rounds d half away from zero to places and returns it as minor
// units. ok is false when the result is outside the supported range.
func ToMinorUnits(d decimal.Decimal, places int32) (m MinorUnits, ok bool) {
	scaled := d.Shift(places).Round(0)
	if scaled.Abs().GreaterThan(maxMinor) {
		return 0, false
	}
	return MinorUnits(scaled.IntPart()), true
}

func addMinor(a, b MinorUnits) (MinorUnits, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func validPlaces(places int32) bool {
	return places >= 0 && places <= MaxPlaces
}

// CivilDate drops the clock part of t, keeping the calendar date t shows in
// its own location.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from start to end. It is
// negative when end is before start.
func DaysBetween(start, end time.Time) int64 {
	return (CivilDate(end).Unix() - CivilDate(start).Unix()) / secondsPerDay
}

const secondsPerDay = 24 * 60 * 60
