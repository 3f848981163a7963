package calculator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

// assertInvalid checks that err is an InvalidObligationError on field.
func assertInvalid(t *testing.T, err error, field string) *InvalidObligationError {
	t.Helper()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidObligation)

	var invalid *InvalidObligationError
	require.True(t, errors.As(err, &invalid), "expected InvalidObligationError, got %T: %v", err, err)
	assert.Equal(t, field, invalid.Field)

	return invalid
}

func TestNormalize_OverdueAdjustment(t *testing.T) {
	o := Obligation{
		Debtor:       "A",
		Creditor:     "B",
		Principal:    dec("100"),
		DueDate:      datePtr("2024-03-01"),
		InterestRate: dec("0.01"),
		Penalty:      dec("5"),
	}

	n, err := Normalize(o, date("2024-03-11"), DefaultPlaces)
	require.NoError(t, err)

	// 100 + 100*0.01*10 + 5
	assert.Equal(t, MinorUnits(11500), n.Amount)
	assert.Equal(t, int64(10), n.DaysOverdue)
	assert.Equal(t, "A", n.Debtor)
	assert.Equal(t, "B", n.Creditor)
}

func TestNormalize_Boundaries(t *testing.T) {
	base := Obligation{
		Debtor:       "A",
		Creditor:     "B",
		Principal:    dec("100"),
		DueDate:      datePtr("2024-03-01"),
		InterestRate: dec("0.01"),
		Penalty:      dec("5"),
	}

	tests := []struct {
		name       string
		obligation func() Obligation
		evaluation time.Time
		want       MinorUnits
	}{
		{
			name:       "due on evaluation date is not overdue",
			obligation: func() Obligation { return base },
			evaluation: date("2024-03-01"),
			want:       10000,
		},
		{
			name:       "due after evaluation date",
			obligation: func() Obligation { return base },
			evaluation: date("2024-02-01"),
			want:       10000,
		},
		{
			name:       "one day overdue applies penalty once",
			obligation: func() Obligation { return base },
			evaluation: date("2024-03-02"),
			want:       10600,
		},
		{
			name: "clock time on the evaluation date is ignored",
			obligation: func() Obligation {
				return base
			},
			evaluation: time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC),
			want:       10000,
		},
		{
			name: "no due date means no adjustment",
			obligation: func() Obligation {
				o := base
				o.DueDate = nil
				return o
			},
			evaluation: date("2030-01-01"),
			want:       10000,
		},
		{
			name: "rate penalty is a fraction of principal",
			obligation: func() Obligation {
				o := base
				o.InterestRate = dec("0")
				o.Penalty = dec("0.1")
				o.PenaltyKind = PenaltyRate
				return o
			},
			evaluation: date("2024-03-05"),
			want:       11000,
		},
		{
			name: "fractional amounts round half away from zero",
			obligation: func() Obligation {
				o := base
				o.Principal = dec("10.005")
				o.DueDate = nil
				return o
			},
			evaluation: date("2024-03-05"),
			want:       1001,
		},
		{
			name: "principal below half a cent rounds to zero",
			obligation: func() Obligation {
				o := base
				o.Principal = dec("0.004")
				o.DueDate = nil
				return o
			},
			evaluation: date("2024-03-05"),
			want:       0,
		},
		{
			name: "centuries overdue counts every day",
			obligation: func() Obligation {
				o := base
				o.Principal = dec("1")
				o.Penalty = dec("0")
				o.DueDate = datePtr("1700-01-01")
				return o
			},
			evaluation: date("2024-01-01"),
			// 1 + 1*0.01*118338
			want: 118438,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Normalize(tt.obligation(), tt.evaluation, DefaultPlaces)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Amount)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	valid := Obligation{Debtor: "A", Creditor: "B", Principal: dec("10")}

	tests := []struct {
		name   string
		mutate func(o *Obligation)
		field  string
	}{
		{"zero principal", func(o *Obligation) { o.Principal = dec("0") }, "principal"},
		{"negative principal", func(o *Obligation) { o.Principal = dec("-1") }, "principal"},
		{"self debt", func(o *Obligation) { o.Creditor = "A" }, "creditor"},
		{"missing debtor", func(o *Obligation) { o.Debtor = "" }, "debtor"},
		{"blank creditor", func(o *Obligation) { o.Creditor = "  " }, "creditor"},
		{"negative rate", func(o *Obligation) { o.InterestRate = dec("-0.01") }, "interest_rate"},
		{"negative penalty", func(o *Obligation) { o.Penalty = dec("-5") }, "penalty"},
		{"unknown penalty kind", func(o *Obligation) { o.PenaltyKind = "daily" }, "penalty_kind"},
		{"amount out of range", func(o *Obligation) { o.Principal = dec("1e30") }, "principal"},
		{"huge principal exponent", func(o *Obligation) { o.Principal = dec("1e300000000") }, "principal"},
		{"tiny principal exponent", func(o *Obligation) { o.Principal = dec("1e-300000000") }, "principal"},
		{"too many principal digits", func(o *Obligation) { o.Principal = dec("1.0000000000000000000000000000001") }, "principal"},
		{"tiny interest rate exponent", func(o *Obligation) { o.InterestRate = dec("1e-300000000") }, "interest_rate"},
		{"huge penalty exponent", func(o *Obligation) { o.Penalty = dec("5e300000000") }, "penalty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			_, err := Normalize(o, date("2024-01-01"), DefaultPlaces)
			invalid := assertInvalid(t, err, tt.field)
			assert.Equal(t, -1, invalid.Index)
		})
	}
}

func TestNormalize_CaseSensitiveParties(t *testing.T) {
	_, err := Normalize(Obligation{Debtor: "alice", Creditor: "Alice", Principal: dec("1")}, date("2024-01-01"), DefaultPlaces)
	assert.NoError(t, err)
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		start, end string
		want       int64
	}{
		{"2024-03-01", "2024-03-11", 10},
		{"2024-02-01", "2024-03-01", 29},
		{"2024-03-11", "2024-03-01", -10},
		{"2024-03-01", "2024-03-01", 0},
		{"1700-01-01", "2024-01-01", 118338},
		{"2024-01-01", "1700-01-01", -118338},
	}

	for _, tt := range tests {
		got := DaysBetween(date(tt.start), date(tt.end))
		assert.Equal(t, tt.want, got, "DaysBetween(%s, %s)", tt.start, tt.end)
	}

	t.Run("clock time is ignored", func(t *testing.T) {
		start := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
		end := time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC)
		assert.Equal(t, int64(1), DaysBetween(start, end))
	})
}
