package calculator

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a single line item on a shared bill.
type Item struct {
	Description string
	Amount      decimal.Decimal
	// AssignedTo lists the participants sharing the item. Empty means
	// everyone on the bill.
	AssignedTo []string
}

// Bill is a shared expense paid in full by Payer.
type Bill struct {
	Payer        string
	Total        decimal.Decimal // including tax, tips and fees
	Subtotal     decimal.Decimal // sum of items before tax
	Participants []string
	Items        []Item

	// Repayment terms carried over to every obligation the bill produces.
	DueDate      *time.Time
	InterestRate decimal.Decimal
	Penalty      decimal.Decimal
	PenaltyKind  PenaltyKind
	Timestamp    *time.Time
}

// CalculateSplit computes how much of the bill total each participant
// carries, in minor units.
//
// Without items the total is split equally. With items, each item is split
// equally among its assignees and tax is applied proportionally:
//
//	person_total = person_subtotal × (bill_total / bill_subtotal)
//
// Leftover minor units from rounding go one each to participants in
// identifier order, so the shares always add up to the total exactly.
func CalculateSplit(bill Bill, places int32) (map[string]MinorUnits, error) {
	if !bill.Subtotal.IsPositive() {
		return nil, fmt.Errorf("subtotal must be greater than zero")
	}
	if !bill.Total.IsPositive() {
		return nil, fmt.Errorf("total must be greater than zero")
	}
	if len(bill.Participants) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}

	participants := make([]string, len(bill.Participants))
	copy(participants, bill.Participants)
	sort.Strings(participants)
	for i := 1; i < len(participants); i++ {
		if participants[i] == participants[i-1] {
			return nil, fmt.Errorf("duplicate participant %q", participants[i])
		}
	}

	total, ok := ToMinorUnits(bill.Total, places)
	if !ok {
		return nil, fmt.Errorf("total %s is out of range", bill.Total)
	}

	// If no items, split total equally among all participants
	if len(bill.Items) == 0 {
		weights := make(map[string]MinorUnits, len(participants))
		for _, p := range participants {
			weights[p] = 1
		}
		return allocate(total, weights, participants)
	}

	subtotal, ok := ToMinorUnits(bill.Subtotal, places)
	if !ok {
		return nil, fmt.Errorf("subtotal %s is out of range", bill.Subtotal)
	}

	// Each person's subtotal is their share of the items assigned to them
	member := make(map[string]bool, len(participants))
	for _, p := range participants {
		member[p] = true
	}
	subtotals := make(map[string]MinorUnits, len(participants))
	var itemsTotal MinorUnits
	for _, item := range bill.Items {
		amount, ok := ToMinorUnits(item.Amount, places)
		if !ok || amount < 0 {
			return nil, fmt.Errorf("item %q has invalid amount %s", item.Description, item.Amount)
		}
		assignees := item.AssignedTo
		if len(assignees) == 0 {
			assignees = participants
		}
		weights := make(map[string]MinorUnits, len(assignees))
		for _, person := range assignees {
			if !member[person] {
				return nil, fmt.Errorf("item %q assigned to non-participant %q", item.Description, person)
			}
			weights[person] = 1
		}
		shares, err := allocate(amount, weights, participants)
		if err != nil {
			return nil, err
		}
		for person, share := range shares {
			subtotals[person] += share
		}
		itemsTotal += amount
	}
	if itemsTotal != subtotal {
		return nil, fmt.Errorf("items add up to %s, subtotal is %s",
			itemsTotal.Decimal(places), bill.Subtotal)
	}

	// Apply proportional tax
	return allocate(total, subtotals, participants)
}

// SplitBill turns a shared bill into obligations: every participant other
// than the payer owes the payer their share.
func SplitBill(bill Bill, places int32) ([]Obligation, error) {
	if bill.Payer == "" {
		return nil, fmt.Errorf("payer is required")
	}

	shares, err := CalculateSplit(bill, places)
	if err != nil {
		return nil, err
	}

	debtors := make([]string, 0, len(shares))
	for person := range shares {
		debtors = append(debtors, person)
	}
	sort.Strings(debtors)

	var obligations []Obligation
	for _, person := range debtors {
		if person == bill.Payer || shares[person] <= 0 {
			continue
		}
		obligations = append(obligations, Obligation{
			Debtor:       person,
			Creditor:     bill.Payer,
			Principal:    shares[person].Decimal(places),
			DueDate:      bill.DueDate,
			InterestRate: bill.InterestRate,
			Penalty:      bill.Penalty,
			PenaltyKind:  bill.PenaltyKind,
			Timestamp:    bill.Timestamp,
		})
	}

	return obligations, nil
}

// allocate distributes amount proportionally to weights. order fixes who
// receives the leftover minor units.
func allocate(amount MinorUnits, weights map[string]MinorUnits, order []string) (map[string]MinorUnits, error) {
	var weightSum MinorUnits
	for _, w := range weights {
		weightSum += w
	}
	if weightSum <= 0 {
		return nil, fmt.Errorf("cannot allocate %d minor units over zero weight", amount)
	}

	total := decimal.NewFromInt(int64(amount))
	divisor := decimal.NewFromInt(int64(weightSum))

	shares := make(map[string]MinorUnits, len(weights))
	allocated := MinorUnits(0)
	for person, w := range weights {
		quotient, _ := total.Mul(decimal.NewFromInt(int64(w))).QuoRem(divisor, 0)
		shares[person] = MinorUnits(quotient.IntPart())
		allocated += shares[person]
	}

	for remainder := amount - allocated; remainder > 0; {
		for _, person := range order {
			if remainder == 0 {
				break
			}
			if weights[person] > 0 {
				shares[person]++
				remainder--
			}
		}
	}

	return shares, nil
}
