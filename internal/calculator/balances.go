package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Balances maps each party to its signed net balance.
// Positive = owed money, Negative = owes money.
type Balances map[string]MinorUnits

// PartyBalance is one party's net position, ready for display.
type PartyBalance struct {
	Party  string
	Amount decimal.Decimal
}

// Aggregate nets normalized obligations into one balance per party.
//
// Every party that appears gets an entry, even when its flows cancel. The
// balances must sum to exactly zero; anything else is reported as an
// InconsistencyError.
func Aggregate(normalized []NormalizedObligation) (Balances, error) {
	balances := make(Balances)

	for i, n := range normalized {
		credit, ok := addMinor(balances[n.Creditor], n.Amount)
		if !ok {
			return nil, NewInvalidObligation(i, "principal", "creditor balance overflows")
		}
		debit, ok := addMinor(balances[n.Debtor], -n.Amount)
		if !ok {
			return nil, NewInvalidObligation(i, "principal", "debtor balance overflows")
		}
		balances[n.Creditor] = credit
		balances[n.Debtor] = debit
	}

	sum, ok := balances.sum()
	if !ok {
		return nil, inconsistentf("aggregate", "balance total overflows")
	}
	if sum != 0 {
		return nil, inconsistentf("aggregate", "balances sum to %d minor units, want 0", sum)
	}

	return balances, nil
}

func (b Balances) sum() (MinorUnits, bool) {
	var total MinorUnits
	for _, party := range b.parties() {
		var ok bool
		if total, ok = addMinor(total, b[party]); !ok {
			return 0, false
		}
	}
	return total, true
}

// parties returns the party identifiers in ascending order.
func (b Balances) parties() []string {
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns an independent copy of b.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for id, amount := range b {
		out[id] = amount
	}
	return out
}

// Nonzero counts the parties that still owe or are owed something.
func (b Balances) Nonzero() int {
	n := 0
	for _, amount := range b {
		if amount != 0 {
			n++
		}
	}
	return n
}

// Sorted returns the balances ordered by party identifier.
func (b Balances) Sorted(places int32) []PartyBalance {
	out := make([]PartyBalance, 0, len(b))
	for _, id := range b.parties() {
		out = append(out, PartyBalance{Party: id, Amount: b[id].Decimal(places)})
	}
	return out
}
