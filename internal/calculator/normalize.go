package calculator

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PenaltyKind selects how Obligation.Penalty is interpreted.
type PenaltyKind string

const (
	// PenaltyFlat adds Penalty as an amount once the obligation is overdue.
	PenaltyFlat PenaltyKind = "flat"
	// PenaltyRate adds Principal * Penalty once the obligation is overdue.
	PenaltyRate PenaltyKind = "rate"
)

// Obligation is a single directed debt: Debtor owes Creditor Principal.
//
// DueDate is optional; without it the obligation is due immediately and is
// never adjusted. InterestRate is a simple per-day rate and Penalty a one-off
// surcharge; both only apply once the obligation is overdue. Zero values mean
// "absent".
type Obligation struct {
	Debtor       string
	Creditor     string
	Principal    decimal.Decimal
	DueDate      *time.Time
	InterestRate decimal.Decimal
	Penalty      decimal.Decimal
	PenaltyKind  PenaltyKind

	// Timestamp is when the obligation was recorded. It only orders the
	// normalized obligations reported back to the caller.
	Timestamp *time.Time
}

// NormalizedObligation is an obligation with interest and penalty folded into
// a single amount as of one evaluation date.
type NormalizedObligation struct {
	Debtor      string
	Creditor    string
	Amount      MinorUnits
	DaysOverdue int64
	Timestamp   *time.Time
}

// Validate checks the input invariants of o.
func Validate(o Obligation) error {
	switch {
	case strings.TrimSpace(o.Debtor) == "":
		return invalidf("debtor", "debtor is required")
	case strings.TrimSpace(o.Creditor) == "":
		return invalidf("creditor", "creditor is required")
	case o.Debtor == o.Creditor:
		return invalidf("creditor", "debtor and creditor must differ (%q)", o.Debtor)
	case !o.Principal.IsPositive():
		return invalidf("principal", "principal must be greater than zero, got %s", o.Principal)
	case o.InterestRate.IsNegative():
		return invalidf("interest_rate", "interest rate must not be negative, got %s", o.InterestRate)
	case o.Penalty.IsNegative():
		return invalidf("penalty", "penalty must not be negative, got %s", o.Penalty)
	}

	switch o.PenaltyKind {
	case "", PenaltyFlat, PenaltyRate:
	default:
		return invalidf("penalty_kind", "unknown penalty kind %q", o.PenaltyKind)
	}

	for _, f := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"principal", o.Principal},
		{"interest_rate", o.InterestRate},
		{"penalty", o.Penalty},
	} {
		if err := checkMagnitude(f.name, f.value); err != nil {
			return err
		}
	}

	return nil
}

// Decimals outside these bounds would make rescaling to minor units cost
// time and memory proportional to the exponent.
const (
	maxExponent = 18
	maxDigits   = 30
)

func checkMagnitude(field string, d decimal.Decimal) error {
	if exp := d.Exponent(); exp < -maxExponent || exp > maxExponent {
		return invalidf(field, "%s exponent %d is outside [-%d, %d]", field, exp, maxExponent, maxExponent)
	}
	if n := d.NumDigits(); n > maxDigits {
		return invalidf(field, "%s has %d significant digits, at most %d are supported", field, n, maxDigits)
	}
	return nil
}

// Normalize validates o and returns its amount as of evaluationDate, rounded
// to places.
//
// An obligation is overdue only when its due date is strictly before the
// evaluation date. Overdue obligations accrue
//
//	principal * interest_rate * days_overdue
//
// plus the penalty, once. An amount under half a minor unit rounds to zero
// and leaves balances untouched.
func Normalize(o Obligation, evaluationDate time.Time, places int32) (NormalizedObligation, error) {
	if err := Validate(o); err != nil {
		return NormalizedObligation{}, err
	}

	amount := o.Principal
	var daysOverdue int64
	if o.DueDate != nil {
		if days := DaysBetween(*o.DueDate, evaluationDate); days > 0 {
			daysOverdue = days
			interest := o.Principal.Mul(o.InterestRate).Mul(decimal.NewFromInt(days))
			amount = amount.Add(interest).Add(penalty(o))
		}
	}

	minor, ok := ToMinorUnits(amount, places)
	if !ok {
		return NormalizedObligation{}, invalidf("principal", "adjusted amount %s is out of range", amount)
	}

	return NormalizedObligation{
		Debtor:      o.Debtor,
		Creditor:    o.Creditor,
		Amount:      minor,
		DaysOverdue: daysOverdue,
		Timestamp:   o.Timestamp,
	}, nil
}

func penalty(o Obligation) decimal.Decimal {
	if o.PenaltyKind == PenaltyRate {
		return o.Principal.Mul(o.Penalty)
	}
	return o.Penalty
}
