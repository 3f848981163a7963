package calculator

import (
	"container/heap"
	"math"
)

// Transfer is one payment from Payer to Payee in minor units.
type Transfer struct {
	Payer  string
	Payee  string
	Amount MinorUnits
}

// Reduce turns net balances into transfers that zero every balance.
//
// Greedy algorithm: match the largest creditor with the largest debtor, move
// the smaller of the two amounts, re-queue whoever is left over, repeat. Ties
// go to the smaller party identifier so the output is reproducible. Each
// round clears at least one party, so N nonzero parties produce at most N-1
// transfers.
//
// maxIterations bounds the loop; zero or less means "number of nonzero
// parties". Hitting the bound, or finishing with only one side left, is an
// InconsistencyError.
func Reduce(balances Balances, maxIterations int) ([]Transfer, error) {
	creditors := &partyQueue{}
	debtors := &partyQueue{}
	for id, amount := range balances {
		switch {
		case amount == math.MinInt64:
			return nil, inconsistentf("reduce", "balance of %q is out of range", id)
		case amount > 0:
			*creditors = append(*creditors, partyAmount{id: id, amount: amount})
		case amount < 0:
			*debtors = append(*debtors, partyAmount{id: id, amount: -amount})
		}
	}
	heap.Init(creditors)
	heap.Init(debtors)

	nonzero := creditors.Len() + debtors.Len()
	if maxIterations <= 0 {
		maxIterations = nonzero
	}

	transfers := make([]Transfer, 0, max(nonzero-1, 0))
	for iteration := 0; creditors.Len() > 0 && debtors.Len() > 0; iteration++ {
		if iteration >= maxIterations {
			return nil, inconsistentf("reduce", "no convergence after %d iterations", maxIterations)
		}

		creditor := heap.Pop(creditors).(partyAmount)
		debtor := heap.Pop(debtors).(partyAmount)

		amount := min(creditor.amount, debtor.amount)
		if amount > 0 {
			transfers = append(transfers, Transfer{
				Payer:  debtor.id,
				Payee:  creditor.id,
				Amount: amount,
			})
		}

		creditor.amount -= amount
		debtor.amount -= amount
		if creditor.amount > 0 {
			heap.Push(creditors, creditor)
		}
		if debtor.amount > 0 {
			heap.Push(debtors, debtor)
		}
	}

	if left := creditors.Len() + debtors.Len(); left > 0 {
		return nil, inconsistentf("reduce", "%d parties left unmatched", left)
	}

	return transfers, nil
}

type partyAmount struct {
	id     string
	amount MinorUnits // magnitude, always > 0 while queued
}

// partyQueue is a max-heap on amount, ties broken by ascending id.
type partyQueue []partyAmount

func (q partyQueue) Len() int { return len(q) }

func (q partyQueue) Less(i, j int) bool {
	if q[i].amount != q[j].amount {
		return q[i].amount > q[j].amount
	}
	return q[i].id < q[j].id
}

func (q partyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *partyQueue) Push(x any) { *q = append(*q, x.(partyAmount)) }

func (q *partyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
