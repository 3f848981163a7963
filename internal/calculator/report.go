package calculator

import (
	"github.com/shopspring/decimal"
)

// Settlement is one payment the Payer should make to the Payee.
type Settlement struct {
	Payer  string
	Payee  string
	Amount decimal.Decimal
}

// Report converts transfers into settlements at currency precision and checks
// them against the balances they were derived from.
//
// Zero-amount transfers are dropped. Applying the remaining ones to
// balances must leave every party at zero, and their total must equal the
// total owed to creditors; otherwise an InconsistencyError is returned.
func Report(transfers []Transfer, balances Balances, places int32) ([]Settlement, decimal.Decimal, error) {
	settlements := make([]Settlement, 0, len(transfers))
	total := decimal.Zero
	for _, t := range transfers {
		if t.Amount == 0 {
			continue
		}
		amount := t.Amount.Decimal(places)
		settlements = append(settlements, Settlement{Payer: t.Payer, Payee: t.Payee, Amount: amount})
		total = total.Add(amount)
	}

	residual := balances.Clone()
	for _, s := range settlements {
		if _, ok := residual[s.Payer]; !ok {
			return nil, decimal.Zero, inconsistentf("report", "payer %q has no balance", s.Payer)
		}
		if _, ok := residual[s.Payee]; !ok {
			return nil, decimal.Zero, inconsistentf("report", "payee %q has no balance", s.Payee)
		}
		amount, ok := ToMinorUnits(s.Amount, places)
		if !ok {
			return nil, decimal.Zero, inconsistentf("report", "settlement amount %s is out of range", s.Amount)
		}
		residual[s.Payer] += amount
		residual[s.Payee] -= amount
	}
	for _, id := range residual.parties() {
		if residual[id] != 0 {
			return nil, decimal.Zero, inconsistentf("report", "party %q left with %s after settlement",
				id, residual[id].Decimal(places))
		}
	}

	owed := decimal.Zero
	for _, amount := range balances {
		if amount > 0 {
			owed = owed.Add(amount.Decimal(places))
		}
	}
	if !owed.Equal(total) {
		return nil, decimal.Zero, inconsistentf("report", "settlements total %s, creditors are owed %s", total, owed)
	}

	return settlements, total, nil
}
